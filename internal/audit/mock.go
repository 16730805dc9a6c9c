package audit

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"
	"unicode/utf8"

	"github.com/google/uuid"

	"claimaudit/internal/claim"
	"claimaudit/internal/registry"
	"claimaudit/internal/risk"
)

const unavailableMessage = "The audit service is temporarily unavailable. Please try again later."

const mockReportText = `MOCK AUDIT REPORT
NOTE: {{.Label}} ({{.Model}}) could not be reached. This report was produced offline without a model review.

Claim reviewed:
{{.Claim}}

1. Coding accuracy
The listed procedure codes are consistent with their descriptions. No coding corrections are suggested by the offline review.

2. Documentation completeness
The claim carries the identifiers, dates and charges needed for processing.

3. Medical necessity
Medical necessity cannot be assessed offline. The billed services are within the normal scope of the listed provider.

4. Regulatory compliance
No compliance concerns were raised by the offline checks.

5. Fraud risk indicators
Automated fraud risk score: {{printf "%.2f" .Score}} / 100 ({{.Level}}).{{if .Matched}}
Flagged terms: {{join .Matched}}.{{end}}

6. Recommendations
Re-run this audit once {{.Label}} is available for a complete review.
`

var mockFuncs = template.FuncMap{
	"join": func(items []string) string { return strings.Join(items, ", ") },
}

var mockReport = template.Must(template.New("mock_report").Funcs(mockFuncs).Option("missingkey=error").Parse(mockReportText))

type mockData struct {
	Label   string
	Model   string
	Claim   string
	Score   float64
	Level   string
	Matched []string
}

// MockResponder produces a complete audit result without calling a model.
type MockResponder struct {
	formatter *claim.Formatter
	scorer    *risk.Scorer
}

func NewMockResponder(formatter *claim.Formatter, scorer *risk.Scorer) *MockResponder {
	if formatter == nil {
		formatter = claim.DefaultFormatter()
	}
	if scorer == nil {
		scorer = risk.NewScorer(risk.DefaultCorpus())
	}
	return &MockResponder{formatter: formatter, scorer: scorer}
}

func (m *MockResponder) Respond(in claim.Input, requested registry.Profile, reason string) Result {
	details := Details{
		AuditID:        uuid.NewString(),
		RequestedModel: requested.ID,
		ModelUsed:      MockModelID,
		ModelLabel:     mockModelLabel,
		ModelVendor:    MockModelID,
		Routing:        RoutingMock,
		FallbackReason: reason,
	}

	formatted, err := m.formatter.FormatStrict(in)
	if err != nil {
		details.Routing = RoutingFailed
		details.Error = fmt.Sprintf("format claim: %v", err)
		return Result{Analysis: unavailableMessage, Details: details}
	}
	b := m.scorer.Explain(formatted, "")

	label := requested.Label
	if label == "" {
		label = requested.ID
	}
	var buf bytes.Buffer
	err = mockReport.Execute(&buf, mockData{
		Label:   label,
		Model:   requested.ID,
		Claim:   formatted,
		Score:   b.Score,
		Level:   riskLevel(b.Score),
		Matched: b.Matched,
	})
	if err != nil {
		details.Routing = RoutingFailed
		details.Error = fmt.Sprintf("render mock report: %v", err)
		return Result{Analysis: unavailableMessage, Details: details}
	}

	details.FraudScore = b.Score
	details.MatchedIndicators = b.Matched
	details.ResponseLength = utf8.RuneCountInString(buf.String())
	return Result{Analysis: buf.String(), Success: true, Details: details}
}

func riskLevel(score float64) string {
	switch {
	case score >= 50:
		return "high"
	case score >= 20:
		return "moderate"
	default:
		return "low"
	}
}
