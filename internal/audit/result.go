package audit

// State names a step of one audit run.
type State string

const (
	StateFormatting       State = "formatting"
	StateProviderResolved State = "provider_resolved"
	StateInvoking         State = "invoking"
	StateFallbackInvoking State = "fallback_invoking"
	StateMock             State = "mock"
	StateDecoded          State = "decoded"
	StateScored           State = "scored"
	StateDone             State = "done"
)

// Routing records which path produced the analysis.
type Routing string

const (
	RoutingDirect   Routing = "direct"
	RoutingFallback Routing = "fallback"
	RoutingMock     Routing = "mock"
	RoutingFailed   Routing = "failed"
)

const (
	MockModelID    = "mock"
	mockModelLabel = "Offline mock auditor"
)

type Result struct {
	Analysis string  `json:"audit_result"`
	Success  bool    `json:"success"`
	Details  Details `json:"details"`
}

type Details struct {
	AuditID           string   `json:"audit_id"`
	FraudScore        float64  `json:"fraud_score"`
	RequestedModel    string   `json:"requested_model"`
	ModelUsed         string   `json:"model_used"`
	ModelLabel        string   `json:"model_label"`
	ModelVendor       string   `json:"model_vendor"`
	Routing           Routing  `json:"routing"`
	FallbackReason    string   `json:"fallback_reason,omitempty"`
	PromptLength      int      `json:"prompt_length"`
	ResponseLength    int      `json:"response_length"`
	MatchedIndicators []string `json:"matched_indicators,omitempty"`
	States            []State  `json:"states,omitempty"`
	Error             string   `json:"error,omitempty"`
}
