// Package github is a minimal client for the repository contents API,
// used to publish the fallback dataset with SHA-guarded updates.
package github

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"marketdata-service/internal/application"
	"marketdata-service/internal/domain"
	"marketdata-service/internal/infrastructure/httpx"
)

const defaultAPIBase = "https://api.github.com"

type ContentsClient struct {
	APIBase string
	Owner   string
	Repo    string
	Branch  string
	client  *httpx.Client
}

var _ application.ContentsRepo = (*ContentsClient)(nil)

// NewContentsClient errors without a token: exports must fail closed
// rather than attempt anonymous writes.
func NewContentsClient(owner, repo, branch, token string, timeout time.Duration) (*ContentsClient, error) {
	if token == "" {
		return nil, errors.New("github: missing token")
	}
	if owner == "" || repo == "" {
		return nil, errors.New("github: missing owner/repo")
	}
	if branch == "" {
		branch = "main"
	}
	c := httpx.New(timeout)
	c.Headers = map[string]string{
		"Authorization":        "token " + token,
		"X-GitHub-Api-Version": "2022-11-28",
	}
	return &ContentsClient{
		APIBase: defaultAPIBase,
		Owner:   owner,
		Repo:    repo,
		Branch:  branch,
		client:  c,
	}, nil
}

type contentsResp struct {
	Content  string `json:"content"`
	Encoding string `json:"encoding"`
	SHA      string `json:"sha"`
}

type putContentsReq struct {
	Message string `json:"message"`
	Content string `json:"content"`
	Branch  string `json:"branch"`
	SHA     string `json:"sha,omitempty"`
}

func (c *ContentsClient) contentsURL(path string) string {
	return fmt.Sprintf("%s/repos/%s/%s/contents/%s",
		strings.TrimSuffix(c.APIBase, "/"), c.Owner, c.Repo, url.PathEscape(path))
}

// GetFile returns the document body and its blob SHA;
// domain.ErrNotFound when the path does not exist on the branch.
func (c *ContentsClient) GetFile(ctx context.Context, path string) ([]byte, string, error) {
	var resp contentsResp
	err := c.client.GetJSON(ctx, c.contentsURL(path)+"?ref="+url.QueryEscape(c.Branch), &resp)
	if err != nil {
		var se *httpx.StatusError
		if errors.As(err, &se) && se.Code == 404 {
			return nil, "", domain.ErrNotFound
		}
		return nil, "", fmt.Errorf("github: get %s: %w", path, err)
	}
	raw, err := base64.StdEncoding.DecodeString(strings.ReplaceAll(resp.Content, "\n", ""))
	if err != nil {
		return nil, "", fmt.Errorf("github: decode %s: %w", path, err)
	}
	return raw, resp.SHA, nil
}

// PutFile creates or updates the document. An empty sha creates; a stale
// sha is rejected by the API, which protects against concurrent writers.
func (c *ContentsClient) PutFile(ctx context.Context, path string, content []byte, sha, message string) error {
	req := putContentsReq{
		Message: message,
		Content: base64.StdEncoding.EncodeToString(content),
		Branch:  c.Branch,
		SHA:     sha,
	}
	if err := c.client.PutJSON(ctx, c.contentsURL(path), req, nil); err != nil {
		return fmt.Errorf("github: put %s: %w", path, err)
	}
	return nil
}
