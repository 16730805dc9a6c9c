package registry

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"
)

const (
	ClaudeHaiku     = "anthropic.claude-3-haiku-20240307-v1:0"
	ClaudeSonnet    = "anthropic.claude-3-5-sonnet-20241022-v2:0"
	Llama3          = "meta.llama3-70b-instruct-v1:0"
	MistralLarge    = "mistral.mistral-large-2402-v1:0"
	TitanPremier    = "amazon.titan-text-premier-v1:0"
	OllamaLlama3    = "llama3"
	VendorAnthropic = "anthropic"
	VendorMeta      = "meta"
	VendorMistral   = "mistral"
	VendorAmazon    = "amazon"
	VendorOllama    = "ollama"
)

// Catalog is the versionable provider table.
type Catalog struct {
	Default   string    `yaml:"default"`
	Fallback  string    `yaml:"fallback"`
	Providers []Profile `yaml:"providers"`
}

func DefaultCatalog() Catalog {
	return Catalog{
		Default:  ClaudeHaiku,
		Fallback: ClaudeHaiku,
		Providers: []Profile{
			{ID: ClaudeHaiku, Label: "Claude 3 Haiku", Vendor: VendorAnthropic, Shape: ShapeMessages, MaxTokens: 3000, Temperature: 0.7},
			{ID: ClaudeSonnet, Label: "Claude 3.5 Sonnet v2", Vendor: VendorAnthropic, Shape: ShapeMessages, MaxTokens: 3000, Temperature: 0.7},
			{ID: Llama3, Label: "Llama 3 70B Instruct", Vendor: VendorMeta, Shape: ShapePromptGenLen, MaxTokens: 2048, Temperature: 0.5},
			{ID: MistralLarge, Label: "Mistral Large", Vendor: VendorMistral, Shape: ShapePromptMaxTokens, MaxTokens: 2048, Temperature: 0.7},
			{ID: TitanPremier, Label: "Titan Text Premier", Vendor: VendorAmazon, Shape: ShapeTextGeneration, MaxTokens: 3000, Temperature: 0.7},
			{ID: OllamaLlama3, Label: "Llama 3 (local Ollama)", Vendor: VendorOllama, Shape: ShapeOllamaGenerate, MaxTokens: 2048, Temperature: 0.7},
		},
	}
}

const catalogSchema = `{
  "type": "object",
  "required": ["default", "providers"],
  "properties": {
    "default": {"type": "string", "minLength": 1},
    "fallback": {"type": "string"},
    "providers": {
      "type": "array",
      "minItems": 1,
      "items": {
        "type": "object",
        "required": ["id", "label", "vendor", "shape", "max_tokens", "temperature"],
        "properties": {
          "id": {"type": "string", "minLength": 1},
          "label": {"type": "string"},
          "vendor": {"type": "string"},
          "shape": {"type": "string", "minLength": 1},
          "max_tokens": {"type": "integer", "minimum": 1},
          "temperature": {"type": "number", "minimum": 0, "maximum": 2}
        }
      }
    }
  }
}`

var compiledCatalogSchema = mustCompileSchema()

func mustCompileSchema() *jsonschema.Schema {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("catalog.json", bytes.NewReader([]byte(catalogSchema))); err != nil {
		panic(err)
	}
	return compiler.MustCompile("catalog.json")
}

// LoadCatalog reads a yaml provider table and validates it before decoding.
func LoadCatalog(path string) (Catalog, error) {
	var c Catalog
	data, err := os.ReadFile(path)
	if err != nil {
		return c, fmt.Errorf("read catalog %s: %w", path, err)
	}
	return ParseCatalog(data)
}

func ParseCatalog(data []byte) (Catalog, error) {
	var c Catalog
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return c, fmt.Errorf("parse catalog: %w", err)
	}
	asJSON, err := json.Marshal(doc)
	if err != nil {
		return c, fmt.Errorf("parse catalog: %w", err)
	}
	var instance any
	if err := json.Unmarshal(asJSON, &instance); err != nil {
		return c, fmt.Errorf("parse catalog: %w", err)
	}
	if err := compiledCatalogSchema.Validate(instance); err != nil {
		return c, fmt.Errorf("invalid catalog: %w", err)
	}
	if err := yaml.Unmarshal(data, &c); err != nil {
		return c, fmt.Errorf("decode catalog: %w", err)
	}
	return c, nil
}

func (c Catalog) Build(logger zerolog.Logger) (*Registry, error) {
	return New(c.Providers, c.Default, c.Fallback, logger)
}
