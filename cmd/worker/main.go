package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"marketdata-service/internal/bootstrap"
	"marketdata-service/internal/infrastructure/logx"
)

func init() { _ = godotenv.Load() }

func main() {
	log := logx.L()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	w, cleanup, err := bootstrap.InitWorker(ctx)
	if err != nil {
		log.Fatal("init worker", zap.Error(err))
	}
	defer cleanup()

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		cancel()
	}()

	w.Start(ctx)
}
