package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"evalgate/internal/eval"
)

type ServerConfig struct {
	ListenAddr string              `json:"listen_addr" yaml:"listen_addr"`
	Database   DatabaseConfig      `json:"database" yaml:"database"`
	Auth       AuthConfig          `json:"auth" yaml:"auth"`
	Security   SecurityConfig      `json:"security" yaml:"security"`
	Agent      AgentConfig         `json:"agent" yaml:"agent"`
	Judge      JudgeConfig         `json:"judge" yaml:"judge"`
	Eval       EvalConfig          `json:"eval" yaml:"eval"`
	Observer   ObservabilityConfig `json:"observability" yaml:"observability"`
	Limits     QuickEvalLimits     `json:"limits" yaml:"limits"`
}

type DatabaseConfig struct {
	DSN            string `json:"dsn" yaml:"dsn"`
	MaxConns       int32  `json:"max_conns" yaml:"max_conns"`
	MigrationsPath string `json:"migrations_path" yaml:"migrations_path"`
}

type AuthConfig struct {
	SessionTTL string `json:"session_ttl" yaml:"session_ttl"`
	CookieName string `json:"cookie_name" yaml:"cookie_name"`
}

type SecurityConfig struct {
	AdminAllowedDomains []string `json:"admin_allowed_domains" yaml:"admin_allowed_domains"`
	AdminToken          string   `json:"admin_token" yaml:"admin_token"`
}

type AgentConfig struct {
	BaseURL    string `json:"base_url" yaml:"base_url"`
	TimeoutSec int    `json:"timeout_sec" yaml:"timeout_sec"`
}

type JudgeConfig struct {
	BaseURL     string  `json:"base_url" yaml:"base_url"`
	Model       string  `json:"model" yaml:"model"`
	Temperature float64 `json:"temperature" yaml:"temperature"`
	TimeoutSec  int     `json:"timeout_sec" yaml:"timeout_sec"`
}

type EvalConfig struct {
	ReportsDir         string             `json:"reports_dir" yaml:"reports_dir"`
	DatasetDir         string             `json:"dataset_dir" yaml:"dataset_dir"`
	DefaultConcurrency int                `json:"default_concurrency" yaml:"default_concurrency"`
	DefaultTimeoutSec  int                `json:"default_timeout_sec" yaml:"default_timeout_sec"`
	MaxParallelRuns    int                `json:"max_parallel_runs" yaml:"max_parallel_runs"`
	OverallThreshold   float64            `json:"overall_threshold" yaml:"overall_threshold"`
	CategoryThresholds map[string]float64 `json:"category_thresholds" yaml:"category_thresholds"`
}

type ObservabilityConfig struct {
	OTLPEndpoint string  `json:"otlp_endpoint" yaml:"otlp_endpoint"`
	ServiceName  string  `json:"service_name" yaml:"service_name"`
	SampleRatio  float64 `json:"sample_ratio" yaml:"sample_ratio"`
}

type QuickEvalLimits struct {
	QuickEvalRPM int `json:"quick_eval_rpm" yaml:"quick_eval_rpm"`
}

func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		ListenAddr: ":8080",
		Database: DatabaseConfig{
			MaxConns:       10,
			MigrationsPath: "./migrations",
		},
		Auth: AuthConfig{
			SessionTTL: "8h",
			CookieName: "evalgate_session",
		},
		Agent: AgentConfig{
			BaseURL:    "http://localhost:3100",
			TimeoutSec: 30,
		},
		Judge: JudgeConfig{
			BaseURL:     "http://localhost:11434",
			Model:       "qwen2.5:3b",
			Temperature: 0.1,
			TimeoutSec:  60,
		},
		Eval: EvalConfig{
			ReportsDir:         "./reports",
			DatasetDir:         "./datasets",
			DefaultConcurrency: 4,
			DefaultTimeoutSec:  540,
			MaxParallelRuns:    2,
			OverallThreshold:   0.70,
		},
		Observer: ObservabilityConfig{
			ServiceName: "evalgate-api",
			SampleRatio: 1,
		},
		Limits: QuickEvalLimits{
			QuickEvalRPM: 6,
		},
	}
}

func LoadServerConfig(path string) (ServerConfig, error) {
	cfg := DefaultServerConfig()
	if strings.TrimSpace(path) == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse yaml config: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse json config: %w", err)
		}
	default:
		var yamlErr error
		if yamlErr = yaml.Unmarshal(data, &cfg); yamlErr == nil {
			break
		}
		if err := json.Unmarshal(data, &cfg); err != nil {
			return cfg, errors.New("config format not recognized (expected yaml/json)")
		}
	}
	normalizeConfig(&cfg)
	return cfg, nil
}

func normalizeConfig(cfg *ServerConfig) {
	if cfg == nil {
		return
	}
	if strings.TrimSpace(cfg.ListenAddr) == "" {
		cfg.ListenAddr = ":8080"
	}
	if cfg.Database.MaxConns <= 0 {
		cfg.Database.MaxConns = 10
	}
	if strings.TrimSpace(cfg.Database.MigrationsPath) == "" {
		cfg.Database.MigrationsPath = "./migrations"
	}
	if strings.TrimSpace(cfg.Auth.CookieName) == "" {
		cfg.Auth.CookieName = "evalgate_session"
	}
	if strings.TrimSpace(cfg.Auth.SessionTTL) == "" {
		cfg.Auth.SessionTTL = "8h"
	}
	if strings.TrimSpace(cfg.Agent.BaseURL) == "" {
		cfg.Agent.BaseURL = "http://localhost:3100"
	}
	if cfg.Agent.TimeoutSec <= 0 {
		cfg.Agent.TimeoutSec = 30
	}
	if strings.TrimSpace(cfg.Judge.BaseURL) == "" {
		cfg.Judge.BaseURL = "http://localhost:11434"
	}
	if strings.TrimSpace(cfg.Judge.Model) == "" {
		cfg.Judge.Model = "qwen2.5:3b"
	}
	if cfg.Judge.TimeoutSec <= 0 {
		cfg.Judge.TimeoutSec = 60
	}
	if strings.TrimSpace(cfg.Eval.ReportsDir) == "" {
		cfg.Eval.ReportsDir = "./reports"
	}
	if strings.TrimSpace(cfg.Eval.DatasetDir) == "" {
		cfg.Eval.DatasetDir = "./datasets"
	}
	if cfg.Eval.DefaultConcurrency <= 0 {
		cfg.Eval.DefaultConcurrency = 4
	}
	if cfg.Eval.DefaultTimeoutSec <= 0 {
		cfg.Eval.DefaultTimeoutSec = 540
	}
	if cfg.Eval.MaxParallelRuns <= 0 {
		cfg.Eval.MaxParallelRuns = 2
	}
	if cfg.Eval.OverallThreshold <= 0 || cfg.Eval.OverallThreshold > 1 {
		cfg.Eval.OverallThreshold = 0.70
	}
	if cfg.Observer.SampleRatio <= 0 || cfg.Observer.SampleRatio > 1 {
		cfg.Observer.SampleRatio = 1
	}
	if strings.TrimSpace(cfg.Observer.ServiceName) == "" {
		cfg.Observer.ServiceName = "evalgate-api"
	}
	if cfg.Limits.QuickEvalRPM <= 0 {
		cfg.Limits.QuickEvalRPM = 6
	}
}

// Thresholds builds the gate thresholds from config, falling back to the
// stock defaults for anything unset.
func (cfg ServerConfig) Thresholds() eval.Thresholds {
	thresholds := eval.DefaultThresholds()
	if cfg.Eval.OverallThreshold > 0 {
		thresholds.Overall = cfg.Eval.OverallThreshold
	}
	for category, value := range cfg.Eval.CategoryThresholds {
		thresholds.Categories[category] = value
	}
	return thresholds
}
