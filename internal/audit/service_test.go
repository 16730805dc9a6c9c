package audit

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"claimaudit/internal/claim"
	"claimaudit/internal/inference"
	"claimaudit/internal/registry"
)

type scriptedClient struct {
	mu        sync.Mutex
	responses map[string][]byte
	errs      map[string]error
	calls     []string
	payloads  map[string][]byte
}

func (c *scriptedClient) Invoke(ctx context.Context, modelID string, payload []byte) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, modelID)
	if c.payloads == nil {
		c.payloads = map[string][]byte{}
	}
	c.payloads[modelID] = payload
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err, ok := c.errs[modelID]; ok {
		return nil, err
	}
	if body, ok := c.responses[modelID]; ok {
		return body, nil
	}
	return nil, errors.New("connection reset by peer")
}

type countingObserver struct {
	routings []string
}

func (o *countingObserver) RecordAudit(_, _, routing, _ string) {
	o.routings = append(o.routings, routing)
}

func newService(t *testing.T, client inference.Client) *Service {
	t.Helper()
	reg, err := registry.DefaultCatalog().Build(zerolog.Nop())
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	return &Service{Registry: reg, Client: client, Logger: zerolog.Nop()}
}

func claimNine() claim.Input {
	return claim.FromRecord(claim.Record{
		ID:          "9",
		Status:      claim.StatusSubmitted,
		TotalCharge: claim.Money(1250000),
		Items: []claim.LineItem{
			{ProcedureCode: "99213", Charge: claim.Money(125)},
		},
	})
}

func claudeBody(text string) []byte {
	return []byte(`{"content":[{"type":"text","text":"` + text + `"}]}`)
}

func TestRunDirectSuccess(t *testing.T) {
	client := &scriptedClient{responses: map[string][]byte{
		registry.ClaudeSonnet: claudeBody("Coding looks fine. Possible duplicate service."),
	}}
	obs := &countingObserver{}
	svc := newService(t, client)
	svc.Observer = obs

	res := svc.Run(context.Background(), claimNine(), registry.ClaudeSonnet)
	if !res.Success {
		t.Fatalf("expected success, got %+v", res)
	}
	if res.Details.ModelUsed != registry.ClaudeSonnet || res.Details.RequestedModel != registry.ClaudeSonnet {
		t.Fatalf("unexpected models %+v", res.Details)
	}
	if res.Details.Routing != RoutingDirect {
		t.Fatalf("expected direct routing, got %s", res.Details.Routing)
	}
	if res.Details.ModelLabel != "Claude 3.5 Sonnet v2" || res.Details.ModelVendor != registry.VendorAnthropic {
		t.Fatalf("unexpected label/vendor %+v", res.Details)
	}
	if res.Details.FraudScore <= 0 || len(res.Details.MatchedIndicators) != 1 {
		t.Fatalf("expected duplicate to be scored, got %+v", res.Details)
	}
	if res.Details.PromptLength == 0 || res.Details.ResponseLength != len("Coding looks fine. Possible duplicate service.") {
		t.Fatalf("unexpected lengths %+v", res.Details)
	}
	if res.Details.AuditID == "" {
		t.Fatalf("expected audit id")
	}
	wantStates := []State{StateFormatting, StateProviderResolved, StateInvoking, StateDecoded, StateScored, StateDone}
	if !equalStates(res.Details.States, wantStates) {
		t.Fatalf("states = %v, want %v", res.Details.States, wantStates)
	}
	if len(obs.routings) != 1 || obs.routings[0] != "direct" {
		t.Fatalf("expected one direct observation, got %v", obs.routings)
	}

	prompt := string(client.payloads[registry.ClaudeSonnet])
	for _, want := range []string{"Claim ID: 9", "CPT Code: 99213", "Fraud risk indicators", "6. Recommendations"} {
		if !strings.Contains(prompt, want) {
			t.Fatalf("prompt payload missing %q: %s", want, prompt)
		}
	}
}

func TestRunProfileRequiredHopsToFallback(t *testing.T) {
	client := &scriptedClient{
		errs:      map[string]error{registry.ClaudeSonnet: &inference.Error{Kind: inference.ErrProfileRequired, ModelID: registry.ClaudeSonnet}},
		responses: map[string][]byte{registry.ClaudeHaiku: claudeBody("No issues found.")},
	}
	res := newService(t, client).Run(context.Background(), claimNine(), registry.ClaudeSonnet)
	if !res.Success {
		t.Fatalf("expected success, got %+v", res)
	}
	if res.Details.ModelUsed != registry.ClaudeHaiku {
		t.Fatalf("expected fallback model %s, got %s", registry.ClaudeHaiku, res.Details.ModelUsed)
	}
	if res.Details.RequestedModel != registry.ClaudeSonnet {
		t.Fatalf("expected requested model preserved, got %s", res.Details.RequestedModel)
	}
	if res.Details.Routing != RoutingFallback || res.Details.FallbackReason != "profile_required" {
		t.Fatalf("unexpected routing %+v", res.Details)
	}
	if len(client.calls) != 2 {
		t.Fatalf("expected exactly two calls, got %v", client.calls)
	}
	if !containsState(res.Details.States, StateFallbackInvoking) {
		t.Fatalf("expected fallback state in %v", res.Details.States)
	}
}

func TestRunProfileRequiredOnFallbackGoesToMock(t *testing.T) {
	profileErr := &inference.Error{Kind: inference.ErrProfileRequired}
	client := &scriptedClient{errs: map[string]error{
		registry.ClaudeSonnet: profileErr,
		registry.ClaudeHaiku:  profileErr,
	}}
	res := newService(t, client).Run(context.Background(), claimNine(), registry.ClaudeSonnet)
	if !res.Success || res.Details.ModelUsed != MockModelID {
		t.Fatalf("expected mock success, got %+v", res)
	}
	if len(client.calls) != 2 {
		t.Fatalf("expected one hop only, got %v", client.calls)
	}
}

func TestRunProfileRequiredOnDefaultDoesNotRetrySameModel(t *testing.T) {
	client := &scriptedClient{errs: map[string]error{
		registry.ClaudeHaiku: &inference.Error{Kind: inference.ErrProfileRequired},
	}}
	res := newService(t, client).Run(context.Background(), claimNine(), "")
	if len(client.calls) != 1 {
		t.Fatalf("expected a single call, got %v", client.calls)
	}
	if res.Details.ModelUsed != MockModelID || !res.Success {
		t.Fatalf("expected mock, got %+v", res.Details)
	}
}

func TestRunAccessDeniedFailsWithoutRetry(t *testing.T) {
	client := &scriptedClient{errs: map[string]error{
		registry.ClaudeHaiku: &inference.Error{Kind: inference.ErrAccessDenied, ModelID: registry.ClaudeHaiku, Message: "not authorized"},
	}}
	res := newService(t, client).Run(context.Background(), claimNine(), registry.ClaudeHaiku)
	if res.Success {
		t.Fatalf("expected failure, got %+v", res)
	}
	if strings.TrimSpace(res.Analysis) == "" {
		t.Fatalf("failure must carry a message")
	}
	if !strings.Contains(res.Details.Error, "access denied") {
		t.Fatalf("expected error detail, got %q", res.Details.Error)
	}
	if res.Details.RequestedModel != registry.ClaudeHaiku || res.Details.ModelUsed != registry.ClaudeHaiku {
		t.Fatalf("expected requested/used models, got %+v", res.Details)
	}
	if res.Details.Routing != RoutingFailed {
		t.Fatalf("expected failed routing, got %s", res.Details.Routing)
	}
	if len(client.calls) != 1 {
		t.Fatalf("expected no retry, got %v", client.calls)
	}
}

func TestRunAccessDeniedUsesMockWhenEnabled(t *testing.T) {
	client := &scriptedClient{errs: map[string]error{
		registry.ClaudeHaiku: &inference.Error{Kind: inference.ErrAccessDenied},
	}}
	svc := newService(t, client)
	svc.MockOnAccessDenied = true
	res := svc.Run(context.Background(), claimNine(), "")
	if !res.Success || res.Details.ModelUsed != MockModelID {
		t.Fatalf("expected mock success, got %+v", res)
	}
	if res.Details.FallbackReason != "access_denied" {
		t.Fatalf("unexpected reason %q", res.Details.FallbackReason)
	}
}

func TestRunUnknownErrorFallsBackToMock(t *testing.T) {
	client := &scriptedClient{}
	res := newService(t, client).Run(context.Background(), claimNine(), registry.Llama3)
	if !res.Success {
		t.Fatalf("expected success, got %+v", res)
	}
	if res.Details.ModelUsed != MockModelID || res.Details.Routing != RoutingMock {
		t.Fatalf("expected mock origin, got %+v", res.Details)
	}
	if res.Details.RequestedModel != registry.Llama3 || res.Details.FallbackReason != "unknown" {
		t.Fatalf("unexpected details %+v", res.Details)
	}
	if !strings.Contains(res.Analysis, "Llama 3 70B Instruct") {
		t.Fatalf("mock banner should name the requested provider: %s", res.Analysis)
	}
	for _, section := range Sections {
		if !strings.Contains(res.Analysis, section) {
			t.Fatalf("mock report missing %q", section)
		}
	}
	if len(client.calls) != 1 {
		t.Fatalf("expected no second network attempt, got %v", client.calls)
	}
	wantStates := []State{StateFormatting, StateProviderResolved, StateInvoking, StateMock, StateScored, StateDone}
	if !equalStates(res.Details.States, wantStates) {
		t.Fatalf("states = %v, want %v", res.Details.States, wantStates)
	}
}

func TestRunCancelledContextSkipsToMock(t *testing.T) {
	client := &scriptedClient{responses: map[string][]byte{registry.ClaudeHaiku: claudeBody("ok")}}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res := newService(t, client).Run(ctx, claimNine(), "")
	if !res.Success || res.Details.ModelUsed != MockModelID {
		t.Fatalf("expected mock, got %+v", res.Details)
	}
	if res.Details.FallbackReason != "canceled" {
		t.Fatalf("expected canceled reason, got %q", res.Details.FallbackReason)
	}
	if len(client.calls) != 0 {
		t.Fatalf("expected no calls, got %v", client.calls)
	}
}

func TestRunTimeoutGoesToMock(t *testing.T) {
	client := &scriptedClient{errs: map[string]error{
		registry.ClaudeHaiku: &inference.Error{Kind: inference.ErrTimeout},
	}}
	res := newService(t, client).Run(context.Background(), claimNine(), "")
	if !res.Success || res.Details.ModelUsed != MockModelID || res.Details.FallbackReason != "timeout" {
		t.Fatalf("expected mock after timeout, got %+v", res.Details)
	}
}

func TestRunEmptyAnalysisIsSubstituted(t *testing.T) {
	client := &scriptedClient{responses: map[string][]byte{
		registry.Llama3: []byte(`{"generation":"   \n"}`),
	}}
	res := newService(t, client).Run(context.Background(), claimNine(), registry.Llama3)
	if !res.Success {
		t.Fatalf("empty analysis is not a failure: %+v", res)
	}
	if !strings.Contains(res.Analysis, "could not generate an analysis using Llama 3 70B Instruct") {
		t.Fatalf("unexpected substitute %q", res.Analysis)
	}
	if res.Details.ModelUsed != registry.Llama3 {
		t.Fatalf("expected llama as model used, got %s", res.Details.ModelUsed)
	}
}

func TestRunUnknownProviderUsesDefault(t *testing.T) {
	client := &scriptedClient{responses: map[string][]byte{registry.ClaudeHaiku: claudeBody("fine")}}
	res := newService(t, client).Run(context.Background(), claimNine(), "gpt-unknown")
	if res.Details.RequestedModel != registry.ClaudeHaiku || res.Details.ModelUsed != registry.ClaudeHaiku {
		t.Fatalf("expected default provider, got %+v", res.Details)
	}
}

func TestRunRawTextClaim(t *testing.T) {
	client := &scriptedClient{responses: map[string][]byte{registry.ClaudeHaiku: claudeBody("fine")}}
	res := newService(t, client).Run(context.Background(), claim.ParseInput("patient seen twice, billed 99215"), "")
	if !res.Success {
		t.Fatalf("expected success, got %+v", res)
	}
	if !strings.Contains(string(client.payloads[registry.ClaudeHaiku]), "Raw claim data:") {
		t.Fatalf("expected raw claim block in prompt")
	}
}

func TestRunMockFailureReportsUnavailable(t *testing.T) {
	broken, err := claim.NewFormatter("{{.Missing}}")
	if err != nil {
		t.Fatalf("formatter: %v", err)
	}
	svc := newService(t, &scriptedClient{})
	svc.Formatter = broken
	res := svc.Run(context.Background(), claimNine(), "")
	if res.Success {
		t.Fatalf("expected failure when mock cannot format, got %+v", res)
	}
	if res.Analysis != unavailableMessage {
		t.Fatalf("unexpected analysis %q", res.Analysis)
	}
	if res.Details.Error == "" || res.Details.RequestedModel != registry.ClaudeHaiku {
		t.Fatalf("expected error and requested model, got %+v", res.Details)
	}
}

func TestRunConcurrentAudits(t *testing.T) {
	client := &scriptedClient{responses: map[string][]byte{registry.ClaudeHaiku: claudeBody("fine")}}
	svc := newService(t, client)
	var wg sync.WaitGroup
	results := make([]Result, 16)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = svc.Run(context.Background(), claimNine(), "")
		}(i)
	}
	wg.Wait()
	for i, res := range results {
		if !res.Success || res.Details.FraudScore != results[0].Details.FraudScore {
			t.Fatalf("result %d diverged: %+v", i, res.Details)
		}
	}
}

func TestLoadPromptOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prompt.yaml")
	doc := "name: short_audit\nuser: |\n  Audit this claim briefly:\n  {{.Claim}}\n"
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	p, err := LoadPrompt(path)
	if err != nil {
		t.Fatalf("load prompt: %v", err)
	}
	out, err := p.Render("Claim ID: 1")
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if out != "Audit this claim briefly:\nClaim ID: 1\n" {
		t.Fatalf("unexpected prompt %q", out)
	}

	bad, err := ParsePrompt("bad", "{{.Nope}}")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if _, err := bad.Render("x"); err == nil {
		t.Fatalf("expected render error for unknown field")
	}
}

func TestGenerate(t *testing.T) {
	client := &scriptedClient{
		responses: map[string][]byte{registry.ClaudeHaiku: claudeBody("hello")},
		errs:      map[string]error{registry.Llama3: &inference.Error{Kind: inference.ErrNotFound}},
	}
	svc := newService(t, client)

	out, err := svc.Generate(context.Background(), "say hello", "")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if out.Model != registry.ClaudeHaiku || out.Response != "hello" || !out.Done {
		t.Fatalf("unexpected result %+v", out)
	}
	if _, err := svc.Generate(context.Background(), "  ", ""); !errors.Is(err, ErrEmptyPrompt) {
		t.Fatalf("expected empty prompt error, got %v", err)
	}
	if _, err := svc.Generate(context.Background(), "hi", registry.Llama3); !errors.Is(err, inference.ErrNotFound) {
		t.Fatalf("expected provider error, got %v", err)
	}
}

func equalStates(a, b []State) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func containsState(states []State, s State) bool {
	for _, st := range states {
		if st == s {
			return true
		}
	}
	return false
}
