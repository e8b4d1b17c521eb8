package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"

	"rxreader/internal/tasks"
)

type Config struct {
	// Provider selects the model backend for all stage adapters:
	// "openai" or "gemini".
	Provider string `mapstructure:"provider"`

	OpenAI struct {
		APIKey          string `mapstructure:"api_key"`
		TranscribeModel string `mapstructure:"transcribe_model"`
		ExtractModel    string `mapstructure:"extract_model"`
		JudgeModel      string `mapstructure:"judge_model"`
		CorrectModel    string `mapstructure:"correct_model"`
	} `mapstructure:"openai"`

	Gemini struct {
		APIKey          string `mapstructure:"api_key"`
		TranscribeModel string `mapstructure:"transcribe_model"`
		ExtractModel    string `mapstructure:"extract_model"`
		JudgeModel      string `mapstructure:"judge_model"`
		CorrectModel    string `mapstructure:"correct_model"`
	} `mapstructure:"gemini"`

	Store struct {
		// Backend is one of "memory", "redis", "postgres".
		Backend string `mapstructure:"backend"`
		DSN     string `mapstructure:"dsn"`
	} `mapstructure:"store"`

	Redis struct {
		Address  string `mapstructure:"address"`
		Password string `mapstructure:"password"`
		DB       int    `mapstructure:"db"`
	} `mapstructure:"redis"`

	Worker struct {
		Concurrency int            `mapstructure:"concurrency"`
		Queues      map[string]int `mapstructure:"queues"`
	} `mapstructure:"worker"`

	Jobs struct {
		MaxCorrections  int    `mapstructure:"max_corrections"`
		UseTranscriber  bool   `mapstructure:"use_transcriber"`
		ImageRoot       string `mapstructure:"image_root"`
		MedicationsFile string `mapstructure:"medications_file"`
	} `mapstructure:"jobs"`

	Retry struct {
		MaxRateLimitRetries int           `mapstructure:"max_rate_limit_retries"`
		MaxTransientRetries int           `mapstructure:"max_transient_retries"`
		BaseDelay           time.Duration `mapstructure:"base_delay"`
		MaxDelay            time.Duration `mapstructure:"max_delay"`
	} `mapstructure:"retry"`

	Server struct {
		Address string `mapstructure:"address"`
	} `mapstructure:"server"`
}

func LoadConfig() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")

	viper.AutomaticEnv()
	// API keys come from the environment in every real deployment.
	viper.BindEnv("openai.api_key", "OPENAI_API_KEY")
	viper.BindEnv("gemini.api_key", "GEMINI_API_KEY")

	viper.SetDefault("provider", "openai")
	viper.SetDefault("openai.transcribe_model", "gpt-4o-mini")
	viper.SetDefault("openai.extract_model", "gpt-4o-mini")
	viper.SetDefault("openai.judge_model", "gpt-4o")
	viper.SetDefault("openai.correct_model", "gpt-4o")
	viper.SetDefault("gemini.transcribe_model", "gemini-1.5-flash")
	viper.SetDefault("gemini.extract_model", "gemini-1.5-flash")
	viper.SetDefault("gemini.judge_model", "gemini-1.5-pro")
	viper.SetDefault("gemini.correct_model", "gemini-1.5-pro")
	viper.SetDefault("store.backend", "redis")
	viper.SetDefault("redis.address", "localhost:6379")
	viper.SetDefault("worker.concurrency", 10)
	viper.SetDefault("worker.queues", map[string]int{tasks.QueuePrescriptions: 1})
	viper.SetDefault("jobs.max_corrections", 2)
	viper.SetDefault("jobs.use_transcriber", true)
	viper.SetDefault("retry.max_rate_limit_retries", 3)
	viper.SetDefault("retry.max_transient_retries", 3)
	viper.SetDefault("retry.base_delay", "2s")
	viper.SetDefault("retry.max_delay", "1m")
	viper.SetDefault("server.address", ":8080")

	if err := viper.ReadInConfig(); err != nil {
		// Missing config file is fine; defaults and env vars carry it.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}
	return &config, nil
}
