package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/jmespath/go-jmespath"
)

// maxHTTPResponse bounds the body an http_request step will buffer.
const maxHTTPResponse = 10 << 20

// HTTP runs http_request steps.
//
// Config: url (required), method (GET, POST, PUT, PATCH, DELETE; default GET),
// headers (object), data (JSON body for POST, PUT and PATCH) and extract, a
// map of result field -> JMESPath expression evaluated over the JSON response.
//
// Non-2xx responses are returned as results, not errors; status_code carries
// the outcome.
type HTTP struct {
	client *http.Client
}

// NewHTTP creates the http_request handler. A nil client uses http.DefaultClient.
func NewHTTP(client *http.Client) *HTTP {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTP{client: client}
}

// Handle performs the request described by the step config.
func (h *HTTP) Handle(ctx context.Context, req Request) (map[string]any, error) {
	method := strings.ToUpper(req.ConfigString("method", http.MethodGet))
	url := req.ConfigString("url", "")
	if url == "" {
		return nil, fmt.Errorf("http_request: url is required")
	}

	var body io.Reader
	switch method {
	case http.MethodGet, http.MethodDelete:
	case http.MethodPost, http.MethodPut, http.MethodPatch:
		data, ok := req.Step.Config["data"]
		if !ok {
			data = map[string]any{}
		}
		encoded, err := json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("http_request: encode body: %w", err)
		}
		body = bytes.NewReader(encoded)
	default:
		return nil, fmt.Errorf("http_request: unsupported method %q", method)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("http_request: build request: %w", err)
	}
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if headers, ok := req.Step.Config["headers"].(map[string]any); ok {
		for k, v := range headers {
			httpReq.Header.Set(k, fmt.Sprint(v))
		}
	}

	resp, err := h.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("http_request: %w", err)
	}
	defer resp.Body.Close()

	content, err := io.ReadAll(io.LimitReader(resp.Body, maxHTTPResponse))
	if err != nil {
		return nil, fmt.Errorf("http_request: read response: %w", err)
	}

	respHeaders := make(map[string]any, len(resp.Header))
	for k := range resp.Header {
		respHeaders[k] = resp.Header.Get(k)
	}

	result := map[string]any{
		"status_code": resp.StatusCode,
		"headers":     respHeaders,
		"content":     string(content),
		"json":        nil,
	}

	if isJSON(resp.Header.Get("Content-Type")) && len(bytes.TrimSpace(content)) > 0 {
		var doc any
		if err := json.Unmarshal(content, &doc); err != nil {
			return nil, fmt.Errorf("http_request: decode JSON response: %w", err)
		}
		result["json"] = doc
		if err := extract(req.Step.Config["extract"], doc, result); err != nil {
			return nil, err
		}
	}
	return result, nil
}

func isJSON(contentType string) bool {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return mt == "application/json" || strings.HasSuffix(mt, "+json")
}

// extract evaluates each JMESPath expression over doc and stores the match
// under its field name in result.
func extract(exprs any, doc any, result map[string]any) error {
	fields, ok := exprs.(map[string]any)
	if !ok {
		return nil
	}
	for field, raw := range fields {
		expression, ok := raw.(string)
		if !ok {
			return fmt.Errorf("http_request: extract %s: expression must be a string", field)
		}
		value, err := jmespath.Search(expression, doc)
		if err != nil {
			return fmt.Errorf("http_request: extract %s: %w", field, err)
		}
		result[field] = value
	}
	return nil
}
