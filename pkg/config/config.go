package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/pario-ai/tollgate/pkg/models"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

// ErrInvalid wraps every validation failure returned by Load and Validate.
var ErrInvalid = errors.New("invalid config")

// Config holds all tollgate configuration. It is read-only once loaded.
type Config struct {
	Classifier ClassifierConfig `yaml:"classifier" toml:"classifier"`
	Tokens     TokensConfig     `yaml:"tokens" toml:"tokens"`
	Tiers      TiersConfig      `yaml:"tiers" toml:"tiers"`
	Budget     BudgetConfig     `yaml:"budget" toml:"budget"`
	Router     RouterConfig     `yaml:"router" toml:"router"`
	History    HistoryConfig    `yaml:"history" toml:"history"`
	Log        LogConfig        `yaml:"log" toml:"log"`
	Metrics    MetricsConfig    `yaml:"metrics" toml:"metrics"`
}

// ClassifierConfig holds the classification thresholds.
type ClassifierConfig struct {
	MinAlphaRatio    float64  `yaml:"min_alpha_ratio" toml:"min_alpha_ratio"`
	MinLength        int      `yaml:"min_length" toml:"min_length"`
	MinWordLength    int      `yaml:"min_word_length" toml:"min_word_length"`
	SimpleMaxWords   int      `yaml:"simple_max_words" toml:"simple_max_words"`
	MaxChars         int      `yaml:"max_chars" toml:"max_chars"`
	MaxTokens        int      `yaml:"max_tokens" toml:"max_tokens"`
	TokenMultiplier  float64  `yaml:"token_multiplier" toml:"token_multiplier"`
	ComplexMarkers   []string `yaml:"complex_markers" toml:"complex_markers"`
	MaxQuestionMarks int      `yaml:"max_question_marks" toml:"max_question_marks"`
	MinListItems     int      `yaml:"min_list_items" toml:"min_list_items"`
}

// TokensConfig controls the token estimator.
type TokensConfig struct {
	CharsPerToken float64 `yaml:"chars_per_token" toml:"chars_per_token"`
}

// TierConfig prices one model tier.
type TierConfig struct {
	Model            string  `yaml:"model" toml:"model"`
	CostPer1K        float64 `yaml:"cost_per_1k" toml:"cost_per_1k"`
	ResponseOverhead int     `yaml:"response_overhead" toml:"response_overhead"`
}

// TiersConfig holds the two model tiers.
type TiersConfig struct {
	Cheap  TierConfig `yaml:"cheap" toml:"cheap"`
	Strong TierConfig `yaml:"strong" toml:"strong"`
}

// Get returns the configuration for a tier.
func (t TiersConfig) Get(tier models.Tier) TierConfig {
	if tier == models.TierStrong {
		return t.Strong
	}
	return t.Cheap
}

// BudgetConfig controls the spending limit and its rollover.
type BudgetConfig struct {
	DailyLimit float64             `yaml:"daily_limit" toml:"daily_limit"`
	Period     models.BudgetPeriod `yaml:"period" toml:"period"`
	// ResetSchedule is a standard five-field cron expression. When empty it
	// is derived from Period.
	ResetSchedule string `yaml:"reset_schedule" toml:"reset_schedule"`
}

// RouterConfig holds routing override policies.
type RouterConfig struct {
	ForceStrong         bool `yaml:"force_strong" toml:"force_strong"`
	EscalateAboveTokens int  `yaml:"escalate_above_tokens" toml:"escalate_above_tokens"`
}

// HistoryConfig controls the SQLite decision journal.
type HistoryConfig struct {
	Enabled       bool   `yaml:"enabled" toml:"enabled"`
	DBPath        string `yaml:"db_path" toml:"db_path"`
	RetentionDays int    `yaml:"retention_days" toml:"retention_days"`
}

// LogConfig controls the slog handler.
type LogConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled" toml:"enabled"`
	Listen    string `yaml:"listen" toml:"listen"`
	Namespace string `yaml:"namespace" toml:"namespace"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Classifier: ClassifierConfig{
			MinAlphaRatio:   0.3,
			MinLength:       3,
			MinWordLength:   2,
			SimpleMaxWords:  10,
			MaxChars:        4000,
			MaxTokens:       2000,
			TokenMultiplier: 1.3,
			ComplexMarkers: []string{
				"step by step", "compare", "analyze", "analyse", "explain why",
				"pros and cons", "in detail", "trade-off", "tradeoff",
			},
			MaxQuestionMarks: 1,
			MinListItems:     2,
		},
		Tokens: TokensConfig{
			CharsPerToken: 4,
		},
		Tiers: TiersConfig{
			Cheap:  TierConfig{Model: "gpt-3.5-turbo", CostPer1K: 0.0005, ResponseOverhead: 2},
			Strong: TierConfig{Model: "gpt-4", CostPer1K: 0.003, ResponseOverhead: 4},
		},
		Budget: BudgetConfig{
			DailyLimit: 10.0,
			Period:     models.BudgetDaily,
		},
		History: HistoryConfig{
			DBPath:        "tollgate.db",
			RetentionDays: 30,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Metrics: MetricsConfig{
			Listen:    ":9090",
			Namespace: "tollgate",
		},
	}
}

// Load reads a YAML or TOML config file, expands environment variables and
// validates the result. Files ending in .toml are decoded as TOML.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	cfg := Default()
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		if _, err := toml.Decode(expanded, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	} else if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadOrDefault loads path, or returns the defaults when path is empty.
func LoadOrDefault(path string) (*Config, error) {
	if path == "" {
		return Default(), nil
	}
	return Load(path)
}

// Validate rejects configuration that is internally inconsistent. Every
// problem found is reported.
func (c *Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	cl := c.Classifier
	if !(cl.MinAlphaRatio >= 0 && cl.MinAlphaRatio <= 1) {
		add("classifier.min_alpha_ratio must be within [0, 1], got %v", cl.MinAlphaRatio)
	}
	if cl.MinLength < 0 {
		add("classifier.min_length must not be negative, got %d", cl.MinLength)
	}
	if cl.MinWordLength < 1 {
		add("classifier.min_word_length must be positive, got %d", cl.MinWordLength)
	}
	if cl.SimpleMaxWords <= 0 {
		add("classifier.simple_max_words must be positive, got %d", cl.SimpleMaxWords)
	}
	if cl.MaxChars <= 0 {
		add("classifier.max_chars must be positive, got %d", cl.MaxChars)
	} else if cl.SimpleMaxWords >= cl.MaxChars {
		add("classifier.simple_max_words (%d) must be below classifier.max_chars (%d)", cl.SimpleMaxWords, cl.MaxChars)
	}
	if cl.MaxTokens <= 0 {
		add("classifier.max_tokens must be positive, got %d", cl.MaxTokens)
	}
	if !positive(cl.TokenMultiplier) {
		add("classifier.token_multiplier must be a positive finite number, got %v", cl.TokenMultiplier)
	}
	if cl.MaxQuestionMarks < 0 {
		add("classifier.max_question_marks must not be negative, got %d", cl.MaxQuestionMarks)
	}
	if cl.MinListItems < 0 {
		add("classifier.min_list_items must not be negative, got %d", cl.MinListItems)
	}

	if !positive(c.Tokens.CharsPerToken) {
		add("tokens.chars_per_token must be a positive finite number, got %v", c.Tokens.CharsPerToken)
	}

	for _, tier := range models.Tiers {
		tc := c.Tiers.Get(tier)
		if tc.Model == "" {
			add("tiers.%s.model is required", tier)
		}
		if !nonNegative(tc.CostPer1K) {
			add("tiers.%s.cost_per_1k must be a non-negative finite number, got %v", tier, tc.CostPer1K)
		}
		if tc.ResponseOverhead < 0 {
			add("tiers.%s.response_overhead must not be negative, got %d", tier, tc.ResponseOverhead)
		}
	}
	if nonNegative(c.Tiers.Cheap.CostPer1K) && nonNegative(c.Tiers.Strong.CostPer1K) &&
		c.Tiers.Strong.CostPer1K <= c.Tiers.Cheap.CostPer1K {
		add("tiers.strong.cost_per_1k (%v) must exceed tiers.cheap.cost_per_1k (%v)",
			c.Tiers.Strong.CostPer1K, c.Tiers.Cheap.CostPer1K)
	}

	if !positive(c.Budget.DailyLimit) {
		add("budget.daily_limit must be a positive finite number, got %v", c.Budget.DailyLimit)
	}
	switch c.Budget.Period {
	case models.BudgetDaily, models.BudgetMonthly:
	default:
		add("budget.period must be daily or monthly, got %q", c.Budget.Period)
	}
	if c.Budget.ResetSchedule != "" {
		if _, err := cron.ParseStandard(c.Budget.ResetSchedule); err != nil {
			add("budget.reset_schedule: %v", err)
		}
	}

	if c.Router.EscalateAboveTokens < 0 {
		add("router.escalate_above_tokens must not be negative, got %d", c.Router.EscalateAboveTokens)
	}

	if c.History.Enabled && c.History.DBPath == "" {
		add("history.db_path is required when history is enabled")
	}
	if c.History.RetentionDays < 0 {
		add("history.retention_days must not be negative, got %d", c.History.RetentionDays)
	}

	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		add("log.level must be debug, info, warn or error, got %q", c.Log.Level)
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		add("log.format must be text or json, got %q", c.Log.Format)
	}

	if c.Metrics.Enabled && c.Metrics.Listen == "" {
		add("metrics.listen is required when metrics are enabled")
	}

	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrInvalid, errors.Join(errs...))
}

// positive reports whether v is a finite number above zero. NaN fails.
func positive(v float64) bool {
	return v > 0 && !math.IsInf(v, 1)
}

func nonNegative(v float64) bool {
	return v >= 0 && !math.IsInf(v, 1)
}
