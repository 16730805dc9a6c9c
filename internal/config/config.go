package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	HTTP struct {
		Addr string `yaml:"addr"`
	} `yaml:"http"`
	Dev struct {
		Mode bool `yaml:"mode"`
	} `yaml:"dev"`
	Database struct {
		DSN string `yaml:"dsn"`
	} `yaml:"database"`
	Redis struct {
		URL   string `yaml:"url"`
		Queue string `yaml:"queue"`
	} `yaml:"redis"`
	AWS struct {
		Region string `yaml:"region"`
	} `yaml:"aws"`
	Ollama struct {
		URL string `yaml:"url"`
	} `yaml:"ollama"`
	Inference struct {
		Backend       string        `yaml:"backend"`
		DefaultModel  string        `yaml:"default_model"`
		FallbackModel string        `yaml:"fallback_model"`
		Timeout       time.Duration `yaml:"timeout"`
		MaxRPM        int           `yaml:"max_rpm"`
		CatalogPath   string        `yaml:"catalog_path"`
	} `yaml:"inference"`
	Audit struct {
		PromptPath         string `yaml:"prompt_path"`
		CorpusPath         string `yaml:"corpus_path"`
		MockOnAccessDenied bool   `yaml:"mock_on_access_denied"`
		PersistScore       bool   `yaml:"persist_score"`
	} `yaml:"audit"`
	Worker struct {
		Concurrency int           `yaml:"concurrency"`
		PollTimeout time.Duration `yaml:"poll_timeout"`
		BatchSize   int           `yaml:"batch_size"`
	} `yaml:"worker"`
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
}

func Default() Config {
	var cfg Config
	cfg.HTTP.Addr = ":8088"
	cfg.Dev.Mode = true
	cfg.Redis.Queue = "audit_jobs"
	cfg.AWS.Region = "us-east-1"
	cfg.Ollama.URL = "http://localhost:11434"
	cfg.Inference.Backend = "bedrock"
	cfg.Inference.Timeout = 60 * time.Second
	cfg.Audit.PersistScore = true
	cfg.Worker.Concurrency = 4
	cfg.Worker.PollTimeout = 5 * time.Second
	cfg.Worker.BatchSize = 500
	cfg.Log.Level = "info"
	cfg.Log.Format = "json"
	return cfg
}

// Load applies, in order, defaults, the yaml file at path (if it exists)
// and CA_* environment overrides.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return cfg, err
			}
		} else {
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, err
			}
		}
	}

	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	var errs []error
	if c.Inference.Timeout <= 0 {
		errs = append(errs, errors.New("inference.timeout must be positive"))
	}
	if c.Worker.Concurrency <= 0 {
		errs = append(errs, errors.New("worker.concurrency must be positive"))
	}
	switch c.Inference.Backend {
	case "bedrock", "ollama", "disabled":
	default:
		errs = append(errs, errors.New("inference.backend must be bedrock, ollama or disabled"))
	}
	return errors.Join(errs...)
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("CA_HTTP_ADDR"); v != "" {
		cfg.HTTP.Addr = v
	}
	if v := os.Getenv("CA_DEV_MODE"); v != "" {
		cfg.Dev.Mode = parseBool(v, cfg.Dev.Mode)
	}
	if v := os.Getenv("CA_DB_DSN"); v != "" {
		cfg.Database.DSN = v
	}
	if v := os.Getenv("CA_REDIS_URL"); v != "" {
		cfg.Redis.URL = v
	}
	if v := os.Getenv("CA_REDIS_QUEUE"); v != "" {
		cfg.Redis.Queue = v
	}
	if v := os.Getenv("CA_AWS_REGION"); v != "" {
		cfg.AWS.Region = v
	}
	if v := os.Getenv("CA_OLLAMA_URL"); v != "" {
		cfg.Ollama.URL = v
	}
	if v := os.Getenv("CA_INFERENCE_BACKEND"); v != "" {
		cfg.Inference.Backend = strings.ToLower(strings.TrimSpace(v))
	}
	if v := os.Getenv("CA_DEFAULT_MODEL"); v != "" {
		cfg.Inference.DefaultModel = v
	}
	if v := os.Getenv("CA_FALLBACK_MODEL"); v != "" {
		cfg.Inference.FallbackModel = v
	}
	if v := os.Getenv("CA_INFERENCE_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Inference.Timeout = d
		}
	}
	if v := os.Getenv("CA_INFERENCE_MAX_RPM"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Inference.MaxRPM = n
		}
	}
	if v := os.Getenv("CA_CATALOG_PATH"); v != "" {
		cfg.Inference.CatalogPath = v
	}
	if v := os.Getenv("CA_PROMPT_PATH"); v != "" {
		cfg.Audit.PromptPath = v
	}
	if v := os.Getenv("CA_CORPUS_PATH"); v != "" {
		cfg.Audit.CorpusPath = v
	}
	if v := os.Getenv("CA_MOCK_ON_ACCESS_DENIED"); v != "" {
		cfg.Audit.MockOnAccessDenied = parseBool(v, cfg.Audit.MockOnAccessDenied)
	}
	if v := os.Getenv("CA_PERSIST_SCORE"); v != "" {
		cfg.Audit.PersistScore = parseBool(v, cfg.Audit.PersistScore)
	}
	if v := os.Getenv("CA_WORKER_CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Worker.Concurrency = n
		}
	}
	if v := os.Getenv("CA_WORKER_POLL_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Worker.PollTimeout = d
		}
	}
	if v := os.Getenv("CA_BACKFILL_BATCH_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Worker.BatchSize = n
		}
	}
	if v := os.Getenv("CA_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("CA_LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
}

func parseBool(input string, fallback bool) bool {
	switch strings.ToLower(strings.TrimSpace(input)) {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return fallback
	}
}
