package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// ConfigPath is the default location of the YAML config file.
const ConfigPath = "config.yaml"

const (
	defaultGenerationModel = "gpt-4o-mini"
	defaultEvalStream      = "lessonlab:evaluations"
	defaultEvalGroup       = "evaluators"
	defaultEvalConcurrency = 2

	defaultGenerateRateLimit         = 10
	defaultGenerateRateWindowSeconds = 60
)

// FileConfig represents configuration loaded from YAML.
type FileConfig struct {
	Port             string `yaml:"port"`
	LogLevel         string `yaml:"logLevel"`
	DatabaseURL      string `yaml:"databaseURL"`
	OpenAIAPIKey     string `yaml:"openaiAPIKey"`
	OpenAIBaseURL    string `yaml:"openaiBaseURL"`
	GenerationModel  string `yaml:"generationModel"`
	JWTSecret        string `yaml:"jwtSecret"`
	JWTIssuer        string `yaml:"jwtIssuer"`
	JWTAudience      string `yaml:"jwtAudience"`
	JWTLeewaySeconds int    `yaml:"jwtLeewaySeconds"`
	RedisAddr        string `yaml:"redisAddr"`
	RedisPassword    string `yaml:"redisPassword"`
	EvalStream       string `yaml:"evalStream"`
	EvalGroup        string `yaml:"evalGroup"`
	EvalConcurrency  int    `yaml:"evalConcurrency"`

	// Per-user cap on generate calls; only enforced when redisAddr is set.
	GenerateRateLimit         int `yaml:"generateRateLimit"`
	GenerateRateWindowSeconds int `yaml:"generateRateWindowSeconds"`
}

// Load reads config from path (defaults to config.yaml).
func Load(path string) (FileConfig, error) {
	cfg := FileConfig{}
	if path == "" {
		path = ConfigPath
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	// Override with environment variables
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.DatabaseURL = v
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		cfg.OpenAIAPIKey = v
	}
	if v := os.Getenv("OPENAI_BASE_URL"); v != "" {
		cfg.OpenAIBaseURL = v
	}
	if v := os.Getenv("LESSONLAB_GENERATION_MODEL"); v != "" {
		cfg.GenerationModel = v
	}
	if v := os.Getenv("LESSONLAB_JWT_SECRET"); v != "" {
		cfg.JWTSecret = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.RedisAddr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.RedisPassword = v
	}
	if v := os.Getenv("LESSONLAB_EVAL_CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.EvalConcurrency = n
		}
	}
	applyDefaults(&cfg)
	if err := validateConfig(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyDefaults(cfg *FileConfig) {
	if cfg.GenerationModel == "" {
		cfg.GenerationModel = defaultGenerationModel
	}
	if cfg.EvalStream == "" {
		cfg.EvalStream = defaultEvalStream
	}
	if cfg.EvalGroup == "" {
		cfg.EvalGroup = defaultEvalGroup
	}
	if cfg.EvalConcurrency <= 0 {
		cfg.EvalConcurrency = defaultEvalConcurrency
	}
	if cfg.GenerateRateLimit <= 0 {
		cfg.GenerateRateLimit = defaultGenerateRateLimit
	}
	if cfg.GenerateRateWindowSeconds <= 0 {
		cfg.GenerateRateWindowSeconds = defaultGenerateRateWindowSeconds
	}
}

func validateConfig(cfg FileConfig) error {
	if cfg.Port == "" {
		return errors.New("config: port is required (set in config.yaml)")
	}
	if cfg.OpenAIAPIKey == "" {
		return errors.New("config: openaiAPIKey is required (set in config.yaml or OPENAI_API_KEY)")
	}
	if cfg.JWTSecret == "" {
		return errors.New("config: jwtSecret is required (set in config.yaml or LESSONLAB_JWT_SECRET)")
	}
	return nil
}
