package app

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"claimaudit/internal/audit"
	"claimaudit/internal/claim"
	"claimaudit/internal/config"
	"claimaudit/internal/inference"
	"claimaudit/internal/observability"
	"claimaudit/internal/registry"
	"claimaudit/internal/risk"
)

// Core is the audit engine without storage or queue. The CLI uses it
// directly for offline audits.
type Core struct {
	Registry *registry.Registry
	Scorer   *risk.Scorer
	Audit    *audit.Service
	Observer *observability.AuditObserver
}

func NewCore(ctx context.Context, cfg config.Config, logger zerolog.Logger) (*Core, error) {
	reg, err := buildRegistry(cfg, logger)
	if err != nil {
		return nil, err
	}

	corpus := risk.DefaultCorpus()
	if cfg.Audit.CorpusPath != "" {
		corpus, err = risk.LoadCorpus(cfg.Audit.CorpusPath)
		if err != nil {
			return nil, err
		}
	}
	scorer := risk.NewScorer(corpus)

	prompt := audit.DefaultPrompt()
	if cfg.Audit.PromptPath != "" {
		prompt, err = audit.LoadPrompt(cfg.Audit.PromptPath)
		if err != nil {
			return nil, err
		}
	}

	client, err := selectClient(ctx, cfg, reg)
	if err != nil {
		return nil, err
	}

	loaded := scorer.Corpus()
	logger.Debug().
		Str("prompt", prompt.Name()).
		Int("indicators", len(loaded.Indicators)).
		Int("exemplars", len(loaded.Exemplars)).
		Str("default_model", reg.Default().ID).
		Msg("audit core ready")

	formatter := claim.DefaultFormatter()
	observer := observability.NewAuditObserver(logger)
	svc := &audit.Service{
		Registry:           reg,
		Client:             client,
		Formatter:          formatter,
		Scorer:             scorer,
		Mock:               audit.NewMockResponder(formatter, scorer),
		Prompt:             prompt,
		Observer:           observer,
		Logger:             logger,
		MockOnAccessDenied: cfg.Audit.MockOnAccessDenied,
	}
	return &Core{Registry: reg, Scorer: scorer, Audit: svc, Observer: observer}, nil
}

// buildRegistry loads the catalog and lets configuration pick the default
// and fallback providers.
func buildRegistry(cfg config.Config, logger zerolog.Logger) (*registry.Registry, error) {
	catalog := registry.DefaultCatalog()
	if cfg.Inference.CatalogPath != "" {
		loaded, err := registry.LoadCatalog(cfg.Inference.CatalogPath)
		if err != nil {
			return nil, err
		}
		catalog = loaded
	}
	if cfg.Inference.DefaultModel != "" {
		catalog.Default = cfg.Inference.DefaultModel
	}
	if cfg.Inference.FallbackModel != "" {
		catalog.Fallback = cfg.Inference.FallbackModel
	}
	reg, err := catalog.Build(logger.With().Str("component", "registry").Logger())
	if err != nil {
		return nil, fmt.Errorf("build provider registry: %w", err)
	}
	return reg, nil
}

func selectClient(ctx context.Context, cfg config.Config, reg *registry.Registry) (inference.Client, error) {
	router := &inference.Router{Registry: reg, Backends: map[string]inference.Client{}}
	switch cfg.Inference.Backend {
	case "bedrock":
		bedrock, err := inference.NewBedrock(ctx, cfg.AWS.Region, cfg.Inference.Timeout)
		if err != nil {
			return nil, err
		}
		router.Default = bedrock
		if cfg.Ollama.URL != "" {
			router.Backends[registry.VendorOllama] = inference.NewOllama(cfg.Ollama.URL, cfg.Inference.Timeout)
		}
	case "ollama":
		router.Backends[registry.VendorOllama] = inference.NewOllama(cfg.Ollama.URL, cfg.Inference.Timeout)
	default:
		router.Default = inference.Disabled{}
	}

	var client inference.Client = router
	if cfg.Inference.MaxRPM > 0 {
		client = inference.NewLimited(router, cfg.Inference.MaxRPM)
	}
	return client, nil
}
