package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"claimaudit/internal/audit"
	"claimaudit/internal/claim"
	"claimaudit/internal/config"
	"claimaudit/internal/observability"
	"claimaudit/internal/queue"
	"claimaudit/internal/store"
)

var (
	ErrNoStore = errors.New("claim store not configured")
	ErrNoQueue = errors.New("audit queue not configured")
)

type App struct {
	Config config.Config
	Logger zerolog.Logger
	Store  *store.Store
	Queue  *queue.Queue
	*Core
}

func New(ctx context.Context, cfg config.Config) (*App, error) {
	logger := observability.NewLogger(cfg.Log.Level, cfg.Log.Format)

	core, err := NewCore(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	st, err := store.Open(cfg.Database.DSN)
	if err != nil {
		return nil, err
	}
	if err := store.Migrate(ctx, st.DB()); err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	q, err := queue.New(cfg.Redis.URL, cfg.Redis.Queue)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	return &App{
		Config: cfg,
		Logger: logger,
		Store:  st,
		Queue:  q,
		Core:   core,
	}, nil
}

func (a *App) Close() error {
	var err error
	if a.Store != nil {
		err = a.Store.Close()
	}
	if a.Queue != nil {
		_ = a.Queue.Close()
	}
	return err
}

// AuditClaim audits a stored claim. Persisting the score and recording the
// run are best effort; their failures are logged and the result returned.
func (a *App) AuditClaim(ctx context.Context, claimID int64, model string) (audit.Result, error) {
	if a.Store == nil {
		return audit.Result{}, ErrNoStore
	}
	rec, err := a.Store.GetClaim(ctx, claimID)
	if err != nil {
		return audit.Result{}, err
	}
	if err := rec.Validate(); err != nil {
		a.Logger.Warn().Err(err).Int64("claim_id", claimID).Msg("stored claim has invalid fields")
	}
	res := a.Audit.Run(ctx, claim.FromRecord(rec), model)

	log := a.Logger.With().Int64("claim_id", claimID).Str("audit_id", res.Details.AuditID).Logger()
	if a.Config.Audit.PersistScore && persistable(res) {
		if err := a.Store.UpdateFraudScore(ctx, claimID, res.Details.FraudScore); err != nil {
			log.Error().Err(err).Msg("persist fraud score failed")
		}
	}
	a.recordRun(ctx, &claimID, res, log)
	return res, nil
}

// AuditText audits a free-form claim that has no stored row.
func (a *App) AuditText(ctx context.Context, text, model string) audit.Result {
	res := a.Audit.Run(ctx, claim.ParseInput(text), model)
	if a.Store != nil {
		a.recordRun(ctx, nil, res, a.Logger.With().Str("audit_id", res.Details.AuditID).Logger())
	}
	return res
}

func (a *App) EnqueueClaim(ctx context.Context, claimID int64, model string) error {
	if a.Queue == nil {
		return ErrNoQueue
	}
	return a.Queue.PushAuditJob(ctx, queue.Job{ClaimID: claimID, Model: model, RequestedAt: time.Now().UTC()})
}

func (a *App) recordRun(ctx context.Context, claimID *int64, res audit.Result, log zerolog.Logger) {
	_, err := a.Store.RecordAuditRun(ctx, store.AuditRun{
		ID:                res.Details.AuditID,
		ClaimID:           claimID,
		RequestedModel:    res.Details.RequestedModel,
		ModelUsed:         res.Details.ModelUsed,
		Routing:           string(res.Details.Routing),
		FallbackReason:    res.Details.FallbackReason,
		Success:           res.Success,
		FraudScore:        res.Details.FraudScore,
		MatchedIndicators: res.Details.MatchedIndicators,
		PromptLength:      res.Details.PromptLength,
		ResponseLength:    res.Details.ResponseLength,
		Error:             res.Details.Error,
	})
	if err != nil {
		log.Error().Err(err).Msg("record audit run failed")
	}
}

// persistable reports whether a result came from a real provider. Mock
// scores never overwrite a stored score.
func persistable(res audit.Result) bool {
	if !res.Success {
		return false
	}
	return res.Details.Routing == audit.RoutingDirect || res.Details.Routing == audit.RoutingFallback
}

func (a *App) Serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:              a.Config.HTTP.Addr,
		Handler:           a.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		_ = srv.Shutdown(context.Background())
	}()
	return srv.ListenAndServe()
}
