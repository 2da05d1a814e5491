package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
)

// ErrInferenceUnavailable is returned by the AI handler when no Inferer is configured.
var ErrInferenceUnavailable = errors.New("AI inference not available")

// InferenceRequest is a single prompt sent to the inference collaborator.
type InferenceRequest struct {
	Prompt       string   `json:"prompt"`
	ModelHint    string   `json:"model_hint,omitempty"`
	MaxTokens    *int     `json:"max_tokens,omitempty"`
	Temperature  *float64 `json:"temperature,omitempty"`
	SystemPrompt string   `json:"system_prompt,omitempty"`
	InvokerID    string   `json:"invoker_id,omitempty"`
	WorkflowID   string   `json:"workflow_id,omitempty"`
}

// InferenceResponse is the collaborator's reply.
type InferenceResponse struct {
	Content    string  `json:"content"`
	ModelUsed  string  `json:"model_used"`
	TokensUsed int     `json:"tokens_used"`
	Cost       float64 `json:"cost"`
}

// Inferer is the AI inference capability used by the ai_task step kind.
type Inferer interface {
	Infer(ctx context.Context, req InferenceRequest) (InferenceResponse, error)
}

// AI runs ai_task steps against an Inferer.
type AI struct {
	inferer Inferer
}

// NewAI creates the ai_task handler. A nil inferer makes every step fail with
// ErrInferenceUnavailable.
func NewAI(inferer Inferer) *AI {
	return &AI{inferer: inferer}
}

// Handle builds an inference request from the step config.
func (a *AI) Handle(ctx context.Context, req Request) (map[string]any, error) {
	if a.inferer == nil {
		return nil, ErrInferenceUnavailable
	}

	ir := InferenceRequest{
		Prompt:       req.ConfigString("prompt", ""),
		ModelHint:    req.ConfigString("model_type", "chat"),
		SystemPrompt: req.ConfigString("system_prompt", ""),
		InvokerID:    req.InvokerID,
		WorkflowID:   req.WorkflowID,
	}
	if v, ok := numberConfig(req, "max_tokens"); ok {
		n := int(v)
		ir.MaxTokens = &n
	}
	if v, ok := numberConfig(req, "temperature"); ok {
		ir.Temperature = &v
	}

	resp, err := a.inferer.Infer(ctx, ir)
	if err != nil {
		return nil, fmt.Errorf("infer: %w", err)
	}
	return map[string]any{
		"content":     resp.Content,
		"model_used":  resp.ModelUsed,
		"tokens_used": resp.TokensUsed,
		"cost":        resp.Cost,
	}, nil
}

// numberConfig reads a numeric field that may also arrive as a resolved
// template string.
func numberConfig(req Request, key string) (float64, bool) {
	if v, ok := req.ConfigFloat(key); ok {
		return v, true
	}
	if s := req.ConfigString(key, ""); s != "" {
		if v, err := strconv.ParseFloat(s, 64); err == nil {
			return v, true
		}
	}
	return 0, false
}

// maxInferenceResponse bounds the body read from the inference endpoint.
const maxInferenceResponse = 4 << 20

// HTTPInferer calls an inference service that accepts an InferenceRequest as
// JSON and replies with an InferenceResponse.
type HTTPInferer struct {
	url    string
	client *http.Client
}

// NewHTTPInferer creates an Inferer that POSTs to url. A nil client uses
// http.DefaultClient.
func NewHTTPInferer(url string, client *http.Client) *HTTPInferer {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPInferer{url: url, client: client}
}

// Infer implements Inferer.
func (h *HTTPInferer) Infer(ctx context.Context, req InferenceRequest) (InferenceResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return InferenceResponse{}, fmt.Errorf("encode inference request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, h.url, bytes.NewReader(body))
	if err != nil {
		return InferenceResponse{}, fmt.Errorf("build inference request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := h.client.Do(httpReq)
	if err != nil {
		return InferenceResponse{}, fmt.Errorf("inference request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxInferenceResponse))
	if err != nil {
		return InferenceResponse{}, fmt.Errorf("read inference response: %w", err)
	}
	if resp.StatusCode/100 != 2 {
		return InferenceResponse{}, fmt.Errorf("inference service returned %d: %s", resp.StatusCode, bytes.TrimSpace(data))
	}

	var out InferenceResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return InferenceResponse{}, fmt.Errorf("decode inference response: %w", err)
	}
	return out, nil
}
