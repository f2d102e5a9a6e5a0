// Package codehost opens pull requests on the build's code-hosting
// service (GitHub or a GitHub-compatible API) once a fix branch is pushed.
package codehost

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cifix/pipeline/internal/platform/envutil"
)

type Client interface {
	CreatePullRequest(ctx context.Context, req PullRequestRequest) (PullRequestResponse, error)
}

type PullRequestRequest struct {
	RepoURL    string
	HeadBranch string
	BaseBranch string
	Title      string
	Body       string
}

type PullRequestResponse struct {
	ExternalID string
	URL        string
}

type httpClient struct {
	baseURL string
	token   string
	hc      *http.Client
}

func NewHTTPClient() Client {
	return &httpClient{
		baseURL: envutil.String("CODEHOST_BASE_URL", "https://api.github.com"),
		token:   envutil.String("CODEHOST_TOKEN", ""),
		hc:      &http.Client{Timeout: 30 * time.Second},
	}
}

type createPRBody struct {
	Title string `json:"title"`
	Head  string `json:"head"`
	Base  string `json:"base"`
	Body  string `json:"body"`
}

type createPRResult struct {
	Number  int    `json:"number"`
	HTMLURL string `json:"html_url"`
}

func (c *httpClient) CreatePullRequest(ctx context.Context, req PullRequestRequest) (PullRequestResponse, error) {
	owner, repo, err := ownerRepoFromURL(req.RepoURL)
	if err != nil {
		return PullRequestResponse{}, err
	}

	body := createPRBody{Title: req.Title, Head: req.HeadBranch, Base: req.BaseBranch, Body: req.Body}
	b, err := json.Marshal(body)
	if err != nil {
		return PullRequestResponse{}, fmt.Errorf("marshal pull request body: %w", err)
	}

	url := fmt.Sprintf("%s/repos/%s/%s/pulls", c.baseURL, owner, repo)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return PullRequestResponse{}, fmt.Errorf("build pull request request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/vnd.github+json")
	if c.token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.hc.Do(httpReq)
	if err != nil {
		return PullRequestResponse{}, fmt.Errorf("create pull request: %w", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return PullRequestResponse{}, fmt.Errorf("read pull request response: %w", err)
	}
	if resp.StatusCode >= 500 {
		return PullRequestResponse{}, fmt.Errorf("code host error (status %d): %s", resp.StatusCode, string(payload))
	}
	if resp.StatusCode >= 400 {
		return PullRequestResponse{}, fmt.Errorf("code host rejected pull request (status %d): %s", resp.StatusCode, string(payload))
	}

	var parsed createPRResult
	if err := json.Unmarshal(payload, &parsed); err != nil {
		return PullRequestResponse{}, fmt.Errorf("decode pull request response: %w", err)
	}
	return PullRequestResponse{
		ExternalID: fmt.Sprintf("%d", parsed.Number),
		URL:        parsed.HTMLURL,
	}, nil
}

func ownerRepoFromURL(repoURL string) (string, string, error) {
	trimmed := repoURL
	for _, prefix := range []string{"https://github.com/", "git@github.com:"} {
		if len(trimmed) > len(prefix) && trimmed[:len(prefix)] == prefix {
			trimmed = trimmed[len(prefix):]
			break
		}
	}
	trimmed = trimSuffix(trimmed, ".git")
	parts := splitOnce(trimmed, '/')
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("cannot parse owner/repo from %q", repoURL)
	}
	return parts[0], parts[1], nil
}

func trimSuffix(s, suffix string) string {
	if len(s) >= len(suffix) && s[len(s)-len(suffix):] == suffix {
		return s[:len(s)-len(suffix)]
	}
	return s
}

func splitOnce(s string, sep byte) []string {
	for i := 0; i < len(s); i++ {
		if s[i] == sep {
			return []string{s[:i], s[i+1:]}
		}
	}
	return []string{s}
}
