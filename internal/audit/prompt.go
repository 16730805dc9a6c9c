package audit

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"
	"text/template"

	"gopkg.in/yaml.v3"
)

// Sections are the headings every audit report is asked to cover, in order.
var Sections = []string{
	"Coding accuracy",
	"Documentation completeness",
	"Medical necessity",
	"Regulatory compliance",
	"Fraud risk indicators",
	"Recommendations",
}

const defaultPromptText = `You are a medical billing auditor. Analyze the following medical claim data and identify
potential anomalies, errors, inconsistencies, or areas needing review (like potential
upcoding/downcoding, mismatches between services and provider specialty, unusual charges,
duplicate services, etc.). Explain your reasoning clearly for each identified point.
If no issues are found, state that clearly.

CLAIM DATA:
{{.Claim}}

Please provide your findings in the following categories:
{{range $i, $s := .Sections}}{{inc $i}}. {{$s}}
{{end}}
YOUR ANALYSIS:
`

var promptFuncs = template.FuncMap{
	"inc": func(i int) int { return i + 1 },
}

type promptData struct {
	Claim    string
	Sections []string
}

// Prompt renders the instruction sent to the model around a formatted claim.
type Prompt struct {
	name string
	tmpl *template.Template
}

type promptFile struct {
	Name string `yaml:"name"`
	User string `yaml:"user"`
}

func ParsePrompt(name, text string) (*Prompt, error) {
	if strings.TrimSpace(text) == "" {
		return nil, errors.New("empty prompt template")
	}
	tmpl, err := template.New(name).Funcs(promptFuncs).Option("missingkey=error").Parse(text)
	if err != nil {
		return nil, fmt.Errorf("parse prompt %s: %w", name, err)
	}
	return &Prompt{name: name, tmpl: tmpl}, nil
}

func DefaultPrompt() *Prompt {
	p, err := ParsePrompt("claim_audit", defaultPromptText)
	if err != nil {
		panic(err)
	}
	return p
}

// LoadPrompt reads a yaml file with name and user keys.
func LoadPrompt(path string) (*Prompt, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read prompt %s: %w", path, err)
	}
	var f promptFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse prompt %s: %w", path, err)
	}
	if f.Name == "" {
		f.Name = "claim_audit"
	}
	return ParsePrompt(f.Name, f.User)
}

func (p *Prompt) Name() string { return p.name }

func (p *Prompt) Render(formattedClaim string) (string, error) {
	var buf bytes.Buffer
	if err := p.tmpl.Execute(&buf, promptData{Claim: formattedClaim, Sections: Sections}); err != nil {
		return "", fmt.Errorf("render prompt %s: %w", p.name, err)
	}
	return buf.String(), nil
}
