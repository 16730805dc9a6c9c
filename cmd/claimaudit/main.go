package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"claimaudit/internal/app"
	"claimaudit/internal/audit"
	"claimaudit/internal/claim"
	"claimaudit/internal/config"
	"claimaudit/internal/inference"
	"claimaudit/internal/observability"
	"claimaudit/internal/queue"
	"claimaudit/internal/store"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "claimaudit",
	Short: "Medical claim audit tooling",
	Long: `Run claim audits against the configured inference providers,
inspect the provider catalog and check the local environment.

Configuration is read from the file named by --config (or CA_CONFIG)
and CA_* environment variables.`,
	SilenceUsage: true,
}

// --- audit command ---

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Audit one claim",
	Long: `Audit a claim read from a file (JSON record or free text, "-" for stdin)
or a stored claim by id. With --offline no provider is called and the
offline mock report is produced.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		offline, _ := cmd.Flags().GetBool("offline")
		if offline {
			cfg.Inference.Backend = "disabled"
		}
		model, _ := cmd.Flags().GetString("model")
		file, _ := cmd.Flags().GetString("file")
		id, _ := cmd.Flags().GetInt64("id")
		asJSON, _ := cmd.Flags().GetBool("json")

		ctx := cmd.Context()
		var res audit.Result
		switch {
		case id > 0:
			a, err := app.New(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.Close()
			res, err = a.AuditClaim(ctx, id, model)
			if err != nil {
				return err
			}
		case file != "":
			text, err := readInput(file)
			if err != nil {
				return err
			}
			core, err := app.NewCore(ctx, cfg, cliLogger(cfg))
			if err != nil {
				return err
			}
			res = core.Audit.Run(ctx, claim.ParseInput(text), model)
		default:
			return fmt.Errorf("one of --file or --id is required")
		}

		if asJSON {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(res)
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "model: %s (%s)\n", res.Details.ModelUsed, res.Details.Routing)
		if res.Details.FallbackReason != "" {
			fmt.Fprintf(out, "fallback reason: %s\n", res.Details.FallbackReason)
		}
		fmt.Fprintf(out, "fraud score: %.2f\n\n%s\n", res.Details.FraudScore, res.Analysis)
		if !res.Success {
			return fmt.Errorf("audit failed: %s", res.Details.Error)
		}
		return nil
	},
}

// --- models command ---

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "List the provider catalog",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		cfg.Inference.Backend = "disabled"
		core, err := app.NewCore(cmd.Context(), cfg, cliLogger(cfg))
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tLABEL\tVENDOR\tSHAPE\tMAX TOKENS\t")
		for _, p := range core.Registry.Profiles() {
			marker := ""
			switch p.ID {
			case core.Registry.Default().ID:
				marker = " (default)"
			case core.Registry.Fallback().ID:
				marker = " (fallback)"
			}
			fmt.Fprintf(w, "%s%s\t%s\t%s\t%s\t%d\t\n", p.ID, marker, p.Label, p.Vendor, p.Shape, p.MaxTokens)
		}
		return w.Flush()
	},
}

// --- score command ---

var scoreCmd = &cobra.Command{
	Use:   "score",
	Short: "Score claim and analysis text without calling a provider",
	Long: `Compute the fraud risk score for a claim and an analysis.
Values starting with @ are read from the named file.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		cfg.Inference.Backend = "disabled"
		claimArg, _ := cmd.Flags().GetString("claim")
		analysisArg, _ := cmd.Flags().GetString("analysis")
		claimText, err := argText(claimArg)
		if err != nil {
			return err
		}
		analysisText, err := argText(analysisArg)
		if err != nil {
			return err
		}
		core, err := app.NewCore(cmd.Context(), cfg, cliLogger(cfg))
		if err != nil {
			return err
		}
		formatted := claim.DefaultFormatter().Format(claim.ParseInput(claimText))
		b := core.Scorer.Explain(formatted, analysisText)
		if b.Err != nil {
			return b.Err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "score:    %.2f\n", b.Score)
		fmt.Fprintf(out, "lexical:  %.4f\n", b.Lexical)
		fmt.Fprintf(out, "semantic: %.4f\n", b.Semantic)
		if len(b.Matched) > 0 {
			fmt.Fprintf(out, "matched:  %s\n", strings.Join(b.Matched, ", "))
		}
		return nil
	},
}

// --- doctor command ---

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check connectivity to the database, queue and inference backend",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
		defer cancel()

		checks := []struct {
			Name string
			Fn   func() error
		}{
			{"database", func() error { return pingDatabase(ctx, cfg.Database.DSN) }},
			{"redis", func() error { return pingRedis(ctx, cfg, cmd.OutOrStdout()) }},
			{"catalog", func() error {
				offline := cfg
				offline.Inference.Backend = "disabled"
				_, err := app.NewCore(ctx, offline, zerolog.Nop())
				return err
			}},
			{"inference", func() error { return pingInference(ctx, cfg) }},
		}
		failed := 0
		for _, check := range checks {
			if err := check.Fn(); err != nil {
				fmt.Fprintf(cmd.OutOrStdout(), "%s: FAIL (%v)\n", check.Name, err)
				failed++
				continue
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: OK\n", check.Name)
		}
		if failed > 0 {
			return fmt.Errorf("%d checks failed", failed)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().String("config", os.Getenv("CA_CONFIG"), "Path to config file")

	auditCmd.Flags().StringP("file", "f", "", "Claim file (JSON record or free text, - for stdin)")
	auditCmd.Flags().Int64("id", 0, "Stored claim id")
	auditCmd.Flags().StringP("model", "m", "", "Provider id (default provider when empty)")
	auditCmd.Flags().Bool("offline", false, "Skip providers and produce the offline report")
	auditCmd.Flags().Bool("json", false, "Print the full result as JSON")

	scoreCmd.Flags().String("claim", "", "Claim text or @file")
	scoreCmd.Flags().String("analysis", "", "Analysis text or @file")

	rootCmd.AddCommand(auditCmd)
	rootCmd.AddCommand(modelsCmd)
	rootCmd.AddCommand(scoreCmd)
	rootCmd.AddCommand(doctorCmd)
}

func loadConfig(cmd *cobra.Command) (config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return cfg, fmt.Errorf("loading config: %w", err)
	}
	return cfg, nil
}

func cliLogger(cfg config.Config) zerolog.Logger {
	return observability.NewLogger(cfg.Log.Level, "console")
}

func readInput(path string) (string, error) {
	if path == "-" {
		data, err := io.ReadAll(os.Stdin)
		return string(data), err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func argText(v string) (string, error) {
	if strings.HasPrefix(v, "@") {
		return readInput(strings.TrimPrefix(v, "@"))
	}
	return v, nil
}

func pingDatabase(ctx context.Context, dsn string) error {
	st, err := store.Open(dsn)
	if err != nil {
		return err
	}
	defer st.Close()
	return st.Ping(ctx)
}

func pingRedis(ctx context.Context, cfg config.Config, out io.Writer) error {
	if cfg.Redis.URL == "" {
		return fmt.Errorf("missing redis url")
	}
	q, err := queue.New(cfg.Redis.URL, cfg.Redis.Queue)
	if err != nil {
		return err
	}
	defer q.Close()
	if err := q.Ping(ctx); err != nil {
		return err
	}
	depth, err := q.Depth(ctx)
	if err == nil && depth > 0 {
		fmt.Fprintf(out, "redis: %d audit jobs waiting\n", depth)
	}
	return err
}

func pingInference(ctx context.Context, cfg config.Config) error {
	switch cfg.Inference.Backend {
	case "bedrock":
		b, err := inference.NewBedrock(ctx, cfg.AWS.Region, cfg.Inference.Timeout)
		if err != nil {
			return err
		}
		return b.CheckCredentials(ctx)
	case "ollama":
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(cfg.Ollama.URL, "/")+"/api/tags", nil)
		if err != nil {
			return err
		}
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode >= 300 {
			return fmt.Errorf("status %d", resp.StatusCode)
		}
		return nil
	default:
		return fmt.Errorf("inference backend %q: audits will use the offline report", cfg.Inference.Backend)
	}
}
