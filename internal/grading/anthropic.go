package grading

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os"
)

const anthropicEndpoint = "https://api.anthropic.com/v1/messages"

type AnthropicClient struct {
	http   *http.Client
	apiKey string
}

func NewAnthropicClient() *AnthropicClient {
	return &AnthropicClient{http: &http.Client{}, apiKey: os.Getenv("ANTHROPIC_API_KEY")}
}

func (c *AnthropicClient) Name() string { return "anthropic" }

type anthropicMsg struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicMsgReq struct {
	Model     string         `json:"model"`
	MaxTokens int            `json:"max_tokens"`
	System    string         `json:"system,omitempty"`
	Messages  []anthropicMsg `json:"messages"`
}

type anthropicMsgResp struct {
	Content []struct {
		Text string `json:"text"`
	} `json:"content"`
}

func (c *AnthropicClient) Grade(ctx context.Context, req Request) (Grade, error) {
	if c.apiKey == "" {
		return Grade{}, errors.New("missing ANTHROPIC_API_KEY")
	}

	payload := anthropicMsgReq{
		Model:     req.Model,
		MaxTokens: 512,
		System:    systemPrompt,
		Messages:  []anthropicMsg{{Role: "user", Content: userPrompt(req)}},
	}

	body, _ := json.Marshal(payload)
	httpReq, _ := http.NewRequestWithContext(ctx, http.MethodPost, anthropicEndpoint, bytes.NewReader(body))
	httpReq.Header.Set("x-api-key", c.apiKey)
	httpReq.Header.Set("anthropic-version", "2023-06-01")
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return Grade{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == 429 {
		return Grade{}, ErrRateLimited
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Grade{}, &HTTPError{StatusCode: resp.StatusCode, Body: string(b), Provider: c.Name()}
	}

	var r anthropicMsgResp
	if err := json.NewDecoder(resp.Body).Decode(&r); err != nil {
		return Grade{}, err
	}
	if len(r.Content) == 0 {
		return Grade{}, errors.New("no content")
	}

	return parseGrade(r.Content[0].Text, req)
}
