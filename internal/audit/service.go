package audit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"claimaudit/internal/claim"
	"claimaudit/internal/inference"
	"claimaudit/internal/registry"
	"claimaudit/internal/risk"
)

// Observer is notified once per finished audit.
type Observer interface {
	RecordAudit(requested, used, routing, reason string)
}

// Service runs claim audits. All fields are read-only after construction
// and shared across concurrent calls; Registry and Client are required.
type Service struct {
	Registry           *registry.Registry
	Client             inference.Client
	Formatter          *claim.Formatter
	Scorer             *risk.Scorer
	Mock               *MockResponder
	Prompt             *Prompt
	Observer           Observer
	Logger             zerolog.Logger
	MockOnAccessDenied bool
}

// run is the working state of one audit call.
type run struct {
	in        claim.Input
	requested registry.Profile
	current   registry.Profile
	formatted string
	prompt    string
	body      []byte
	analysis  string
	hopped    bool
	reason    string
	failure   error
	mocked    *Result
	breakdown risk.Breakdown
	states    []State
}

// Run audits one claim against providerID, or the default provider when it
// is empty or unknown. It always returns a well-formed Result.
func (s *Service) Run(ctx context.Context, in claim.Input, providerID string) Result {
	r := &run{in: in}
	log := s.Logger.With().Str("component", "audit").Logger()

	state := StateFormatting
	for state != StateDone {
		r.states = append(r.states, state)
		switch state {
		case StateFormatting:
			r.formatted = s.formatter().Format(in)
			state = StateProviderResolved

		case StateProviderResolved:
			r.requested = s.Registry.Lookup(providerID)
			r.current = r.requested
			prompt, err := s.prompt().Render(r.formatted)
			if err != nil {
				log.Error().Err(err).Msg("prompt render failed")
				r.reason = "prompt_error"
				state = StateMock
				continue
			}
			r.prompt = prompt
			state = StateInvoking

		case StateInvoking, StateFallbackInvoking:
			state = s.invoke(ctx, r, log)

		case StateDecoded:
			r.analysis = s.Registry.Decode(r.body, r.current)
			if strings.TrimSpace(r.analysis) == "" {
				log.Warn().Str("model", r.current.ID).Msg("empty analysis from provider")
				r.analysis = emptyAnalysisMessage(r.current)
			}
			state = StateScored

		case StateMock:
			mocked := s.mock().Respond(in, r.requested, r.reason)
			r.mocked = &mocked
			state = StateScored

		case StateScored:
			if r.mocked != nil {
				r.breakdown = risk.Breakdown{Score: r.mocked.Details.FraudScore, Matched: r.mocked.Details.MatchedIndicators}
			} else {
				r.breakdown = s.scorer().Explain(r.formatted, r.analysis)
				if r.breakdown.Err != nil {
					log.Error().Err(r.breakdown.Err).Msg("fraud score failed")
				}
			}
			state = StateDone
		}
	}
	r.states = append(r.states, StateDone)

	res := s.assemble(r)
	if s.Observer != nil {
		s.Observer.RecordAudit(res.Details.RequestedModel, res.Details.ModelUsed, string(res.Details.Routing), res.Details.FallbackReason)
	}
	log.Info().
		Str("audit_id", res.Details.AuditID).
		Str("requested", res.Details.RequestedModel).
		Str("model_used", res.Details.ModelUsed).
		Str("routing", string(res.Details.Routing)).
		Bool("success", res.Success).
		Float64("fraud_score", res.Details.FraudScore).
		Msg("audit finished")
	return res
}

// invoke performs one provider call and picks the next state. The only
// retry is the single hop to the fallback profile.
func (s *Service) invoke(ctx context.Context, r *run, log zerolog.Logger) State {
	if err := ctx.Err(); err != nil {
		r.reason = inference.KindOf(err)
		return StateMock
	}
	payload, err := s.Registry.Encode(r.prompt, r.current)
	if err != nil {
		log.Error().Err(err).Str("model", r.current.ID).Msg("encode request failed")
		r.reason = "encode_error"
		return StateMock
	}
	body, err := s.Client.Invoke(ctx, r.current.ID, payload)
	if err == nil {
		r.body = body
		return StateDecoded
	}

	kind := inference.KindOf(err)
	log.Warn().Err(err).Str("model", r.current.ID).Str("kind", kind).Msg("inference failed")
	fallback := s.Registry.Fallback()
	switch {
	case errors.Is(err, inference.ErrProfileRequired) && !r.hopped && r.current.ID != fallback.ID:
		r.hopped = true
		r.reason = kind
		r.current = fallback
		return StateFallbackInvoking
	case errors.Is(err, inference.ErrAccessDenied) && !s.MockOnAccessDenied:
		r.failure = err
		return StateScored
	default:
		r.reason = kind
		return StateMock
	}
}

func (s *Service) assemble(r *run) Result {
	if r.mocked != nil {
		res := *r.mocked
		res.Details.PromptLength = utf8.RuneCountInString(r.prompt)
		res.Details.States = r.states
		return res
	}

	d := Details{
		AuditID:           uuid.NewString(),
		FraudScore:        r.breakdown.Score,
		RequestedModel:    r.requested.ID,
		ModelUsed:         r.current.ID,
		ModelLabel:        r.current.Label,
		ModelVendor:       r.current.Vendor,
		Routing:           RoutingDirect,
		FallbackReason:    r.reason,
		PromptLength:      utf8.RuneCountInString(r.prompt),
		MatchedIndicators: r.breakdown.Matched,
		States:            r.states,
	}
	if r.hopped {
		d.Routing = RoutingFallback
	}
	if r.failure != nil {
		d.Routing = RoutingFailed
		d.Error = r.failure.Error()
		msg := fmt.Sprintf("Failed to complete audit due to an error: %v. Please check server logs for details.", r.failure)
		return Result{Analysis: msg, Success: false, Details: d}
	}
	d.ResponseLength = utf8.RuneCountInString(r.analysis)
	return Result{Analysis: r.analysis, Success: true, Details: d}
}

func emptyAnalysisMessage(p registry.Profile) string {
	label := p.Label
	if label == "" {
		label = p.ID
	}
	return fmt.Sprintf("The audit system could not generate an analysis using %s at this time. "+
		"Please try again later or contact system administration.", label)
}

func (s *Service) formatter() *claim.Formatter {
	if s.Formatter == nil {
		return claim.DefaultFormatter()
	}
	return s.Formatter
}

func (s *Service) scorer() *risk.Scorer {
	if s.Scorer == nil {
		return defaultScorer
	}
	return s.Scorer
}

func (s *Service) prompt() *Prompt {
	if s.Prompt == nil {
		return defaultPrompt
	}
	return s.Prompt
}

func (s *Service) mock() *MockResponder {
	if s.Mock == nil {
		return NewMockResponder(s.formatter(), s.scorer())
	}
	return s.Mock
}

var (
	defaultScorer = risk.NewScorer(risk.DefaultCorpus())
	defaultPrompt = DefaultPrompt()
)
