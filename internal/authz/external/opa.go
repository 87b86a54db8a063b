package external

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const (
	headerContentType = "Content-Type"
	contentTypeJSON   = "application/json"

	// maxResponseBytes bounds a decision document read from the engine.
	maxResponseBytes = 1 << 20
	// errorBodyBytes bounds the body kept in an HTTPError.
	errorBodyBytes = 1024
)

// opaInput is the document sent as OPA input.
type opaInput struct {
	Subject  string `json:"subject"`
	Relation string `json:"relation"`
	Object   string `json:"object"`
}

// OPABackend queries an OPA data document. It does not retry.
type OPABackend struct {
	baseURL    string
	policy     string
	headers    map[string]string
	httpClient *http.Client
}

// NewOPABackend creates an OPA backend.
func NewOPABackend(cfg *OPAConfig, httpClient *http.Client) (*OPABackend, error) {
	if cfg == nil {
		return nil, fmt.Errorf("opa config is required")
	}
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &OPABackend{
		baseURL:    strings.TrimSuffix(cfg.URL, "/"),
		policy:     strings.Trim(cfg.Policy, "/"),
		headers:    cfg.Headers,
		httpClient: httpClient,
	}, nil
}

// Name returns "opa".
func (b *OPABackend) Name() string {
	return TypeOPA
}

// Check posts the request as input to /v1/data/<policy>. The result may be a
// boolean or an object with an "allow" field.
func (b *OPABackend) Check(ctx context.Context, req CheckRequest) (bool, error) {
	bodyBytes, err := json.Marshal(map[string]interface{}{
		"input": opaInput{
			Subject:  req.Subject,
			Relation: req.Relation,
			Object:   req.Object,
		},
	})
	if err != nil {
		return false, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/v1/data/%s", b.baseURL, b.policy)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(bodyBytes))
	if err != nil {
		return false, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set(headerContentType, contentTypeJSON)
	for key, value := range b.headers {
		httpReq.Header.Set(key, value)
	}

	resp, err := b.httpClient.Do(httpReq)
	if err != nil {
		return false, fmt.Errorf("failed to send request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, errorBodyBytes))
		return false, &HTTPError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes+1))
	if err != nil {
		return false, fmt.Errorf("failed to read response: %w", err)
	}
	if len(respBody) > maxResponseBytes {
		return false, fmt.Errorf("response exceeds %d bytes", maxResponseBytes)
	}

	var opaResp struct {
		Result interface{} `json:"result"`
	}
	if err := json.Unmarshal(respBody, &opaResp); err != nil {
		return false, fmt.Errorf("failed to parse response: %w", err)
	}

	switch v := opaResp.Result.(type) {
	case bool:
		return v, nil
	case map[string]interface{}:
		allow, _ := v["allow"].(bool)
		return allow, nil
	case nil:
		// Undefined document.
		return false, nil
	default:
		return false, fmt.Errorf("unexpected result type: %T", opaResp.Result)
	}
}

// Health calls OPA's /health endpoint.
func (b *OPABackend) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.baseURL+"/health", http.NoBody)
	if err != nil {
		return fmt.Errorf("opa health request: %w", err)
	}
	resp, err := b.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("opa health: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, errorBodyBytes))
		return &HTTPError{StatusCode: resp.StatusCode, Body: string(body)}
	}
	return nil
}

// Close is a no-op.
func (b *OPABackend) Close() error {
	return nil
}
