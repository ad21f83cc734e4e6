package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config captures the settings required to boot the remediation engine.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Clients   ClientsConfig   `yaml:"clients"`
	Policy    PolicyConfig    `yaml:"policy"`
	Learning  LearningConfig  `yaml:"learning"`
	Recommend RecommendConfig `yaml:"recommend"`
	Adaptive  AdaptiveConfig  `yaml:"adaptive"`
	Snapshot  SnapshotConfig  `yaml:"snapshot"`
	Cache     CacheConfig     `yaml:"cache"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// ServerConfig controls the metrics listener and the anomaly poll loop.
type ServerConfig struct {
	MetricsAddress  string        `yaml:"metricsAddress"`
	GracefulTimeout time.Duration `yaml:"gracefulTimeout"`
	PollInterval    time.Duration `yaml:"pollInterval"`
	Workers         int           `yaml:"workers"`
}

// ClientsConfig groups external collaborator endpoints.
type ClientsConfig struct {
	Store    StoreClientConfig    `yaml:"store"`
	Executor ExecutorClientConfig `yaml:"executor"`
}

// StoreClientConfig configures access to the platform persistence APIs.
type StoreClientConfig struct {
	BaseURL       string        `yaml:"baseURL"`
	AnomalyPath   string        `yaml:"anomalyPath"`
	StatePath     string        `yaml:"statePath"`
	RecordPath    string        `yaml:"recordPath"`
	Timeout       time.Duration `yaml:"timeout"`
	OpenBatchSize int           `yaml:"openBatchSize"`
}

// ExecutorClientConfig configures the external remediation executor.
type ExecutorClientConfig struct {
	BaseURL string        `yaml:"baseURL"`
	Path    string        `yaml:"path"`
	Timeout time.Duration `yaml:"timeout"`
}

// PolicyConfig controls policy pack loading and hot reload.
type PolicyConfig struct {
	PackPath string `yaml:"packPath"`
	Watch    bool   `yaml:"watch"`
}

// LearningConfig holds RL and active-learning hyperparameters.
type LearningConfig struct {
	LearningRate         float64   `yaml:"learningRate"`
	DiscountFactor       float64   `yaml:"discountFactor"`
	ExplorationRate      float64   `yaml:"explorationRate"`
	Thresholds           []float64 `yaml:"thresholds"`
	UncertaintyThreshold float64   `yaml:"uncertaintyThreshold"`
	MinRetrainSamples    int       `yaml:"minRetrainSamples"`
}

// RecommendConfig holds recommendation-ranking tunables. CriticalBoost is a
// heuristic multiplier, not calibrated policy.
type RecommendConfig struct {
	SimilarityThreshold float64       `yaml:"similarityThreshold"`
	MinSimilarNodes     int           `yaml:"minSimilarNodes"`
	CriticalBoost       float64       `yaml:"criticalBoost"`
	MaxRecommendations  int           `yaml:"maxRecommendations"`
	CacheTTL            time.Duration `yaml:"cacheTTL"`
}

// AdaptiveConfig holds routing thresholds for the adaptive automation level.
type AdaptiveConfig struct {
	FullAutoConfidence float64 `yaml:"fullAutoConfidence"`
	FullAutoMaxLoad    float64 `yaml:"fullAutoMaxLoad"`
	SemiAutoConfidence float64 `yaml:"semiAutoConfidence"`
}

// SnapshotConfig controls where learned state is persisted across restarts.
type SnapshotConfig struct {
	KnowledgePath string `yaml:"knowledgePath"`
	QTablePath    string `yaml:"qtablePath"`
}

// CacheConfig controls Valkey-backed caching of recommendation lookups.
type CacheConfig struct {
	Enabled      bool          `yaml:"enabled"`
	Addr         string        `yaml:"addr"`
	Password     string        `yaml:"password"`
	DB           int           `yaml:"db"`
	DialTimeout  time.Duration `yaml:"dialTimeout"`
	ReadTimeout  time.Duration `yaml:"readTimeout"`
	WriteTimeout time.Duration `yaml:"writeTimeout"`
}

// LoggingConfig controls structured logging.
type LoggingConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// Load initialises Config from a YAML file and optional environment overrides.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("REMEDY_CONFIG")
	}

	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("config file %s not found: %w", path, err)
			}
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	return &cfg, nil
}

func defaultConfig() Config {
	return Config{
		Server: ServerConfig{
			MetricsAddress:  ":2112",
			GracefulTimeout: 10 * time.Second,
			PollInterval:    30 * time.Second,
			Workers:         4,
		},
		Clients: ClientsConfig{
			Store: StoreClientConfig{
				AnomalyPath:   "/api/v1/anomalies",
				StatePath:     "/api/v1/system-state/latest",
				RecordPath:    "/api/v1/remediations",
				Timeout:       5 * time.Second,
				OpenBatchSize: 50,
			},
			Executor: ExecutorClientConfig{
				Path:    "/api/v1/execute",
				Timeout: 30 * time.Second,
			},
		},
		Policy: PolicyConfig{
			PackPath: "configs/policies/default.yaml",
			Watch:    true,
		},
		Learning: LearningConfig{
			LearningRate:         0.1,
			DiscountFactor:       0.9,
			ExplorationRate:      0.1,
			Thresholds:           []float64{0, 50, 80, 100},
			UncertaintyThreshold: 0.8,
			MinRetrainSamples:    5,
		},
		Recommend: RecommendConfig{
			SimilarityThreshold: 0.3,
			MinSimilarNodes:     2,
			CriticalBoost:       1.1,
			MaxRecommendations:  5,
			CacheTTL:            2 * time.Minute,
		},
		Adaptive: AdaptiveConfig{
			FullAutoConfidence: 0.8,
			FullAutoMaxLoad:    80,
			SemiAutoConfidence: 0.6,
		},
		Snapshot: SnapshotConfig{
			KnowledgePath: "data/knowledge.json",
			QTablePath:    "data/qtable.json",
		},
		Cache: CacheConfig{
			Enabled:      false,
			DialTimeout:  2 * time.Second,
			ReadTimeout:  500 * time.Millisecond,
			WriteTimeout: 500 * time.Millisecond,
		},
		Logging: LoggingConfig{Level: "info", JSON: false},
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("REMEDY_METRICS_ADDRESS"); v != "" {
		cfg.Server.MetricsAddress = v
	}
	if v := os.Getenv("REMEDY_POLL_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Server.PollInterval = d
		}
	}
	if v := os.Getenv("REMEDY_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Server.Workers = n
		}
	}
	if v := os.Getenv("REMEDY_STORE_BASE_URL"); v != "" {
		cfg.Clients.Store.BaseURL = v
	}
	if v := os.Getenv("REMEDY_EXECUTOR_BASE_URL"); v != "" {
		cfg.Clients.Executor.BaseURL = v
	}
	if v := os.Getenv("REMEDY_EXECUTOR_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Clients.Executor.Timeout = d
		}
	}
	if v := os.Getenv("REMEDY_POLICY_PACK"); v != "" {
		cfg.Policy.PackPath = v
	}
	if v := os.Getenv("REMEDY_POLICY_WATCH"); v != "" {
		cfg.Policy.Watch = strings.EqualFold(v, "true") || v == "1"
	}
	if v := os.Getenv("REMEDY_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("REMEDY_LOG_FORMAT"); v == "json" {
		cfg.Logging.JSON = true
	}
	if v := os.Getenv("REMEDY_CACHE_ENABLED"); v != "" {
		cfg.Cache.Enabled = strings.EqualFold(v, "true") || v == "1"
	}
	if v := os.Getenv("REMEDY_CACHE_ADDR"); v != "" {
		cfg.Cache.Addr = v
	}
	if v := os.Getenv("REMEDY_CACHE_PASSWORD"); v != "" {
		cfg.Cache.Password = v
	}
	if v := os.Getenv("REMEDY_CACHE_DB"); v != "" {
		if db, err := strconv.Atoi(v); err == nil {
			cfg.Cache.DB = db
		}
	}
	if v := os.Getenv("REMEDY_KNOWLEDGE_SNAPSHOT"); v != "" {
		cfg.Snapshot.KnowledgePath = v
	}
	if v := os.Getenv("REMEDY_QTABLE_SNAPSHOT"); v != "" {
		cfg.Snapshot.QTablePath = v
	}
}
