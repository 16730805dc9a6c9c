package inference

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Ollama posts encoded generate requests to a local Ollama server. The
// model id is already part of the payload.
type Ollama struct {
	BaseURL string
	Client  *http.Client
}

func NewOllama(baseURL string, timeout time.Duration) *Ollama {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Ollama{BaseURL: baseURL, Client: &http.Client{Timeout: timeout}}
}

func (o *Ollama) Invoke(ctx context.Context, modelID string, payload []byte) ([]byte, error) {
	if o.BaseURL == "" {
		return nil, errors.New("ollama url not configured")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, fmt.Sprintf("%s/api/generate", o.BaseURL), bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := o.Client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || isTimeout(err) {
			return nil, newError(ErrTimeout, modelID, err.Error())
		}
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		return nil, newError(ErrUnavailable, modelID, err.Error())
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, fmt.Errorf("read ollama response: %w", err)
	}
	switch {
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		return nil, newError(ErrAccessDenied, modelID, string(body))
	case resp.StatusCode == http.StatusNotFound:
		return nil, newError(ErrNotFound, modelID, string(body))
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, newError(ErrThrottled, modelID, string(body))
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return nil, fmt.Errorf("ollama generate %s: status %d", modelID, resp.StatusCode)
	}
	return body, nil
}

func isTimeout(err error) bool {
	var t interface{ Timeout() bool }
	return errors.As(err, &t) && t.Timeout()
}
