package risk

import (
	"errors"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Corpus is the reference material the scorer compares claims against.
type Corpus struct {
	Indicators []string `yaml:"indicators"`
	Exemplars  []string `yaml:"exemplars"`
}

func DefaultCorpus() Corpus {
	return Corpus{
		Indicators: []string{
			"upcoding", "unbundling", "mismatch", "unusual", "excessive",
			"unnecessary", "duplicate", "no documentation", "inconsistent",
			"fraud", "suspicious", "overutilization", "discrepancy",
		},
		Exemplars: []string{
			"multiple high-cost procedures on same day without documentation",
			"billing for services not documented in medical records",
			"unusual patterns of billing across multiple patients",
		},
	}
}

func LoadCorpus(path string) (Corpus, error) {
	var c Corpus
	if path == "" {
		return c, errors.New("missing corpus path")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return c, err
	}
	if err := yaml.Unmarshal(data, &c); err != nil {
		return c, err
	}
	return c, nil
}

func (c Corpus) normalized() Corpus {
	out := Corpus{
		Indicators: make([]string, 0, len(c.Indicators)),
		Exemplars:  make([]string, 0, len(c.Exemplars)),
	}
	for _, term := range c.Indicators {
		term = strings.ToLower(strings.TrimSpace(term))
		if term == "" {
			continue
		}
		out.Indicators = append(out.Indicators, term)
	}
	for _, ex := range c.Exemplars {
		if strings.TrimSpace(ex) == "" {
			continue
		}
		out.Exemplars = append(out.Exemplars, ex)
	}
	return out
}
