// Package llm talks to the code-fixing model that turns a failure
// analysis into a fix plan and, separately, a unified diff.
package llm

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

// Client is the interface stage handlers depend on.
type Client interface {
	GeneratePlan(ctx context.Context, req PlanRequest) (PlanResponse, error)
	GeneratePatch(ctx context.Context, req PatchRequest) (PatchResponse, error)
}

type PlanRequest struct {
	BuildLogs      string
	CandidateFiles []string
}

type PlanResponse struct {
	Summary string
	Steps   string
}

type PatchRequest struct {
	Plan           string
	CandidateFiles map[string]string // path -> file contents
}

type PatchResponse struct {
	Diff string
}

// httpClient is a vendor-agnostic client for any HTTP chat-completions
// endpoint; the teacher's domain never touched an LLM provider, so this
// is grounded on the plain net/http request/response shape the rest of
// the pack's collaborator adapters use rather than a provider SDK.
type httpClient struct {
	baseURL string
	apiKey  string
	model   string
	hc      *http.Client
}

func NewHTTPClient() Client {
	return &httpClient{
		baseURL: envutil.String("LLM_BASE_URL", "https://api.openai.com/v1"),
		apiKey:  envutil.String("LLM_API_KEY", ""),
		model:   envutil.String("LLM_MODEL", "gpt-4o-mini"),
		hc:      &http.Client{Timeout: 90 * time.Second},
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

func (c *httpClient) complete(ctx context.Context, system, user string) (string, error) {
	reqBody := chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
	}
	b, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshal llm request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(b))
	if err != nil {
		return "", fmt.Errorf("build llm request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.hc.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("llm request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return "", fmt.Errorf("read llm response: %w", err)
	}
	if resp.StatusCode >= 500 {
		return "", fmt.Errorf("llm collaborator error (status %d): %s", resp.StatusCode, string(body))
	}
	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("llm rejected request (status %d): %s", resp.StatusCode, string(body))
	}

	var parsed chatResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("decode llm response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("llm response had no choices")
	}
	return parsed.Choices[0].Message.Content, nil
}

func (c *httpClient) GeneratePlan(ctx context.Context, req PlanRequest) (PlanResponse, error) {
	system := "You are a build failure triage assistant. Summarize the root cause and propose numbered remediation steps."
	user := fmt.Sprintf("Build log:\n%s\n\nCandidate files:\n%v", req.BuildLogs, req.CandidateFiles)
	content, err := c.complete(ctx, system, user)
	if err != nil {
		return PlanResponse{}, err
	}
	return PlanResponse{Summary: content, Steps: content}, nil
}

func (c *httpClient) GeneratePatch(ctx context.Context, req PatchRequest) (PatchResponse, error) {
	system := "You produce a single unified diff that implements the given fix plan. Respond with only the diff."
	user := fmt.Sprintf("Plan:\n%s\n\nFiles:\n%v", req.Plan, req.CandidateFiles)
	content, err := c.complete(ctx, system, user)
	if err != nil {
		return PatchResponse{}, err
	}
	return PatchResponse{Diff: content}, nil
}
