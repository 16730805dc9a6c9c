package registry

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

const validCatalog = `default: anthropic.claude-3-haiku-20240307-v1:0
fallback: anthropic.claude-3-haiku-20240307-v1:0
providers:
  - id: anthropic.claude-3-haiku-20240307-v1:0
    label: Claude 3 Haiku
    vendor: anthropic
    shape: messages
    max_tokens: 1500
    temperature: 0.2
  - id: cohere.command-r-v1:0
    label: Command R
    vendor: cohere
    shape: prompt_max_tokens
    max_tokens: 800
    temperature: 0.3
`

func TestLoadCatalogFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	if err := os.WriteFile(path, []byte(validCatalog), 0o644); err != nil {
		t.Fatalf("write catalog: %v", err)
	}
	c, err := LoadCatalog(path)
	if err != nil {
		t.Fatalf("load catalog: %v", err)
	}
	if len(c.Providers) != 2 {
		t.Fatalf("expected 2 providers, got %d", len(c.Providers))
	}
	if c.Providers[1].Shape != ShapePromptMaxTokens || c.Providers[1].MaxTokens != 800 {
		t.Fatalf("unexpected provider %+v", c.Providers[1])
	}
	reg, err := c.Build(zerolog.Nop())
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if reg.Default().MaxTokens != 1500 {
		t.Fatalf("expected catalog override of max tokens")
	}
}

func TestParseCatalogRejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"empty":            ``,
		"no providers":     "default: a\nproviders: []\n",
		"zero max tokens":  "default: a\nproviders:\n  - {id: a, label: A, vendor: v, shape: messages, max_tokens: 0, temperature: 0.5}\n",
		"hot temperature":  "default: a\nproviders:\n  - {id: a, label: A, vendor: v, shape: messages, max_tokens: 10, temperature: 9}\n",
		"missing shape":    "default: a\nproviders:\n  - {id: a, label: A, vendor: v, max_tokens: 10, temperature: 0.5}\n",
		"string max token": "default: a\nproviders:\n  - {id: a, label: A, vendor: v, shape: messages, max_tokens: lots, temperature: 0.5}\n",
		"fraction tokens":  "default: a\nproviders:\n  - {id: a, label: A, vendor: v, shape: messages, max_tokens: 1.5, temperature: 0.5}\n",
	}
	for name, doc := range cases {
		if _, err := ParseCatalog([]byte(doc)); err == nil {
			t.Errorf("%s: expected validation error", name)
		} else if !strings.Contains(err.Error(), "catalog") {
			t.Errorf("%s: unexpected error %v", name, err)
		}
	}
}

func TestLoadCatalogMissingFile(t *testing.T) {
	if _, err := LoadCatalog(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatalf("expected missing file error")
	}
}
