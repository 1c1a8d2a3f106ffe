package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"

	"marketdata-service/internal/application"
	"marketdata-service/internal/domain"
)

type Server struct {
	usage    *application.UsageService
	fallback *application.FallbackService
	rates    *application.RateService
	priority *application.PriorityService
	ping     func(context.Context) error
}

func NewServer(
	usage *application.UsageService,
	fallback *application.FallbackService,
	rates *application.RateService,
	priority *application.PriorityService,
	ping func(context.Context) error,
) *Server {
	return &Server{usage: usage, fallback: fallback, rates: rates, priority: priority, ping: ping}
}

// --- usage ---

func (s *Server) GetUsage(w http.ResponseWriter, r *http.Request) {
	stats, err := s.usage.Stats(r.Context())
	if err != nil {
		internalError(w)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

type usageCheckRequest struct {
	DataType  string `json:"dataType"`
	SessionID string `json:"sessionId,omitempty"`
}

func (s *Server) CheckUsage(w http.ResponseWriter, r *http.Request) {
	var body usageCheckRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		badRequest(w, "invalid JSON body")
		return
	}
	t := domain.DataType(body.DataType)
	if body.DataType != "" && !domain.IsKnownDataType(t) {
		badRequest(w, "unknown data type")
		return
	}
	dec := s.usage.CheckAndUpdate(r.Context(), domain.UsageRequest{
		DataType:  t,
		IP:        clientIP(r),
		UserAgent: r.UserAgent(),
		SessionID: body.SessionID,
	})
	status := http.StatusOK
	if !dec.Allowed {
		status = http.StatusTooManyRequests
	}
	writeJSON(w, status, dec)
}

func (s *Server) ResetUsage(w http.ResponseWriter, r *http.Request) {
	prior, err := s.usage.Reset(r.Context(), r.URL.Query().Get("scope"))
	if err != nil {
		if errors.Is(err, application.ErrBadRequest) {
			badRequest(w, err.Error())
			return
		}
		internalError(w)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"reset": prior})
}

// --- fallback data ---

func (s *Server) GetFallbackData(w http.ResponseWriter, r *http.Request) {
	force := r.URL.Query().Get("refresh") == "true"
	writeJSON(w, http.StatusOK, s.fallback.GetFallbackData(r.Context(), force))
}

func (s *Server) GetFallbackForSymbol(w http.ResponseWriter, r *http.Request, dataType, symbol string) {
	rec := s.fallback.GetFallbackForSymbol(r.Context(), symbol, domain.DataType(dataType))
	if rec == nil {
		badRequest(w, "unknown data type")
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// --- exchange rates ---

func (s *Server) GetExchangeRate(w http.ResponseWriter, r *http.Request) {
	base := r.URL.Query().Get("base")
	target := r.URL.Query().Get("target")
	rate, err := s.rates.GetExchangeRate(r.Context(), base, target)
	if err != nil {
		if errors.Is(err, application.ErrBadRequest) {
			badRequest(w, err.Error())
			return
		}
		internalError(w)
		return
	}
	writeJSON(w, http.StatusOK, rate)
}

// --- failures ---

type failureReport struct {
	Symbol   string `json:"symbol"`
	DataType string `json:"dataType"`
	Reason   string `json:"reason,omitempty"`
}

func (s *Server) ReportFailure(w http.ResponseWriter, r *http.Request) {
	var body failureReport
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		badRequest(w, "invalid JSON body")
		return
	}
	if body.Symbol == "" {
		badRequest(w, "symbol is required")
		return
	}
	var cause error
	if body.Reason != "" {
		cause = errors.New(body.Reason)
	}
	if err := s.fallback.RecordFailedFetch(r.Context(), body.Symbol, domain.DataType(body.DataType), cause); err != nil {
		if errors.Is(err, domain.ErrUnknownDataType) {
			badRequest(w, err.Error())
			return
		}
		internalError(w)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) GetFailedSymbols(w http.ResponseWriter, r *http.Request) {
	date := r.URL.Query().Get("date")
	t := domain.DataType(r.URL.Query().Get("type"))
	syms, err := s.fallback.GetFailedSymbols(r.Context(), date, t)
	if err != nil {
		if errors.Is(err, domain.ErrUnknownDataType) {
			badRequest(w, err.Error())
			return
		}
		internalError(w)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"date": date, "symbols": syms})
}

func (s *Server) GetFailureStatistics(w http.ResponseWriter, r *http.Request) {
	days := 0
	if raw := r.URL.Query().Get("days"); raw != "" {
		var err error
		if days, err = strconv.Atoi(raw); err != nil {
			badRequest(w, "days must be an integer")
			return
		}
	}
	writeJSON(w, http.StatusOK, s.fallback.GetFailureStatistics(r.Context(), days))
}

// --- source priorities and metrics ---

func (s *Server) GetSourcePriority(w http.ResponseWriter, r *http.Request, dataType string) {
	sources, err := s.priority.GetSourcePriority(r.Context(), domain.DataType(dataType))
	if err != nil {
		if errors.Is(err, domain.ErrUnknownDataType) {
			badRequest(w, err.Error())
			return
		}
		internalError(w)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"dataType": dataType, "sources": sources})
}

type priorityMoveRequest struct {
	Source    string `json:"source"`
	Direction int    `json:"direction"`
}

func (s *Server) MoveSourcePriority(w http.ResponseWriter, r *http.Request, dataType string) {
	var body priorityMoveRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		badRequest(w, "invalid JSON body")
		return
	}
	moved, err := s.priority.UpdateSourcePriority(r.Context(), domain.DataType(dataType), body.Source, body.Direction)
	if err != nil {
		if errors.Is(err, domain.ErrUnknownDataType) {
			badRequest(w, err.Error())
			return
		}
		internalError(w)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"moved": moved})
}

func (s *Server) GetSourceMetrics(w http.ResponseWriter, r *http.Request, dataType, source string) {
	m, err := s.priority.GetSourceMetrics(r.Context(), domain.DataType(dataType), source)
	if err != nil {
		internalError(w)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// --- admin ---

func (s *Server) ExportFallbacks(w http.ResponseWriter, r *http.Request) {
	res, err := s.fallback.ExportCurrentFallbacks(r.Context())
	if err != nil {
		if errors.Is(err, domain.ErrExportDisabled) {
			writeError(w, http.StatusServiceUnavailable, "export is not configured")
			return
		}
		writeJSON(w, http.StatusBadGateway, res)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// --- helpers ---

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		return fwd
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func badRequest(w http.ResponseWriter, msg string) {
	writeError(w, http.StatusBadRequest, msg)
}

func internalError(w http.ResponseWriter) {
	writeError(w, http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError))
}
