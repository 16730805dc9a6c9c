package audit

import (
	"context"
	"errors"
	"strings"
)

var ErrEmptyPrompt = errors.New("prompt is required")

type GenerateResult struct {
	Model    string `json:"model"`
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

// Generate sends a free-form prompt to one provider. Unlike Run it has no
// fallback or mock path and returns the provider error as is.
func (s *Service) Generate(ctx context.Context, prompt, providerID string) (GenerateResult, error) {
	if strings.TrimSpace(prompt) == "" {
		return GenerateResult{}, ErrEmptyPrompt
	}
	p := s.Registry.Lookup(providerID)
	payload, err := s.Registry.Encode(prompt, p)
	if err != nil {
		return GenerateResult{}, err
	}
	body, err := s.Client.Invoke(ctx, p.ID, payload)
	if err != nil {
		return GenerateResult{Model: p.ID}, err
	}
	text := s.Registry.Decode(body, p)
	if text == "" {
		text = "No response generated"
	}
	return GenerateResult{Model: p.ID, Response: text, Done: true}, nil
}
