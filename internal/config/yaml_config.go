package config

import (
	"os"

	"gopkg.in/yaml.v3"
)

// YAMLConfig represents the structure of the config.yaml file.
// Engine tuning and seed data that are easier to manage in YAML than env vars.
type YAMLConfig struct {
	Redundancy   RedundancyTuning `yaml:"redundancy"`
	Detection    DetectionTuning  `yaml:"detection"`
	Promotion    PromotionTuning  `yaml:"promotion"`
	Trends       TrendsTuning     `yaml:"trends"`
	SeedKeywords []SeedKeyword    `yaml:"seed_keywords"`
}

// RedundancyTuning configures the near-duplicate scan.
type RedundancyTuning struct {
	HighThreshold   float64 `yaml:"high_threshold"`   // pairs at or above get a merge suggestion
	ReviewThreshold float64 `yaml:"review_threshold"` // pairs at or above are reported
	NGram           int     `yaml:"ngram"`
	EditWeight      float64 `yaml:"edit_weight"` // weight of edit similarity; n-gram Jaccard gets the rest
}

// DetectionTuning configures keyword detection in messages.
type DetectionTuning struct {
	FuzzyThreshold  float64 `yaml:"fuzzy_threshold"`
	RegexPrefix     string  `yaml:"regex_prefix"` // keyword texts with this prefix are patterns
	RegexConfidence float64 `yaml:"regex_confidence"`
}

// PromotionTuning configures client keyword promotion.
type PromotionTuning struct {
	DefaultThreshold int `yaml:"default_threshold"`
}

// TrendsTuning configures forecasting.
type TrendsTuning struct {
	ForecastHistoryDays int `yaml:"forecast_history_days"`
	MinForecastPoints   int `yaml:"min_forecast_points"`
}

// SeedKeyword is a server keyword created at start-up when absent.
type SeedKeyword struct {
	Text        string `yaml:"text"`
	Area        string `yaml:"area,omitempty"`
	Priority    string `yaml:"priority,omitempty"` // low, normal, high, urgent
	Description string `yaml:"description,omitempty"`
}

// DefaultYAMLConfig returns the tuning used when no file is present.
func DefaultYAMLConfig() *YAMLConfig {
	cfg := &YAMLConfig{}
	cfg.applyDefaults()
	return cfg
}

// LoadYAMLConfig loads the YAML configuration file.
// Path is determined by CONFIG_FILE env var, defaulting to "config.yaml".
// A missing file yields the defaults.
func LoadYAMLConfig() (*YAMLConfig, error) {
	return LoadYAMLConfigFile(getEnv("CONFIG_FILE", "config.yaml"))
}

// LoadYAMLConfigFile loads the YAML configuration from path.
func LoadYAMLConfigFile(path string) (*YAMLConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			// Config file is optional
			return DefaultYAMLConfig(), nil
		}
		return nil, err
	}

	var cfg YAMLConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return &cfg, nil
}

func (c *YAMLConfig) applyDefaults() {
	if c.Redundancy.HighThreshold <= 0 {
		c.Redundancy.HighThreshold = 0.90
	}
	if c.Redundancy.ReviewThreshold <= 0 {
		c.Redundancy.ReviewThreshold = 0.80
	}
	if c.Redundancy.NGram <= 0 {
		c.Redundancy.NGram = 2
	}
	if c.Redundancy.EditWeight <= 0 || c.Redundancy.EditWeight > 1 {
		c.Redundancy.EditWeight = 0.6
	}
	if c.Detection.FuzzyThreshold <= 0 {
		c.Detection.FuzzyThreshold = 0.8
	}
	if c.Detection.RegexPrefix == "" {
		c.Detection.RegexPrefix = "re:"
	}
	if c.Detection.RegexConfidence <= 0 {
		c.Detection.RegexConfidence = 0.9
	}
	if c.Promotion.DefaultThreshold <= 0 {
		c.Promotion.DefaultThreshold = 3
	}
	if c.Trends.ForecastHistoryDays <= 0 {
		c.Trends.ForecastHistoryDays = 30
	}
	if c.Trends.MinForecastPoints <= 0 {
		c.Trends.MinForecastPoints = 7
	}
}
