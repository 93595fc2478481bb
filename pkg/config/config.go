package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Server  ServerConfig
	SQLite  SQLiteConfig
	Redis   RedisConfig
	LLM     LLMConfig
	Search  SearchConfig
	Logging LoggingConfig
}

type ServerConfig struct {
	Host              string
	Port              int
	ReadTimeout       int
	WriteTimeout      int
	BodyLimit         int
	MaxQueryLength    int
	MaxDocumentBytes  int
	RequestsPerMinute int
	AllowedOrigins    []string
	Development       bool
}

type SQLiteConfig struct {
	Path string
}

type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
	TTLSec   int
}

type LLMConfig struct {
	Model             string
	APIKey            string
	BaseURL           string
	LowTemperature    float32
	HighTemperature   float32
	Samples           int
	MaxTokens         int
	TimeoutSec        int
	RequestsPerMinute int
	Burst             int
	Budget            BudgetConfig
}

// BudgetConfig splits the per-request token quota. Whatever the reserves leave
// over is the cap for the document context block.
type BudgetConfig struct {
	TotalTokens    int
	SystemTokens   int
	QueryTokens    int
	VehicleTokens  int
	ResponseTokens int
	OverheadTokens int
}

type SearchConfig struct {
	MinScore         float64
	MaxExcerptChars  int
	ContextDocuments int
	VocabularyPath   string
	Weights          WeightsConfig
}

type WeightsConfig struct {
	Automotive float64
	Symptom    float64
	TFIDF      float64
	Vehicle    float64
	Filename   float64
}

type LoggingConfig struct {
	Level      string
	Format     string
	OutputPath string
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/greasemonkey")

	v.SetEnvPrefix("GREASEMONKEY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// Validate rejects settings the engine cannot run with.
func (c *Config) Validate() error {
	b := c.LLM.Budget
	if reserved := b.SystemTokens + b.QueryTokens + b.VehicleTokens + b.ResponseTokens + b.OverheadTokens; reserved >= b.TotalTokens {
		return fmt.Errorf("llm.budget: reserved tokens (%d) leave no room for context within %d", reserved, b.TotalTokens)
	}
	if c.LLM.Samples < 1 {
		return fmt.Errorf("llm.samples must be at least 1, got %d", c.LLM.Samples)
	}
	// go-openai omits a zero temperature and the client treats 0 as "use the default".
	if c.LLM.LowTemperature <= 0 || c.LLM.HighTemperature < c.LLM.LowTemperature {
		return fmt.Errorf("llm temperatures must satisfy 0 < low <= high, got low %.2f high %.2f", c.LLM.LowTemperature, c.LLM.HighTemperature)
	}
	if c.LLM.RequestsPerMinute < 1 {
		return fmt.Errorf("llm.requestsPerMinute must be at least 1, got %d", c.LLM.RequestsPerMinute)
	}

	w := c.Search.Weights
	if sum := w.Automotive + w.Symptom + w.TFIDF + w.Vehicle + w.Filename; sum <= 0 || sum > 1.0001 {
		return fmt.Errorf("search.weights must sum to (0, 1], got %.3f", sum)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.readTimeout", 30)
	v.SetDefault("server.writeTimeout", 120)
	v.SetDefault("server.bodyLimit", 10485760)
	v.SetDefault("server.maxQueryLength", 2000)
	v.SetDefault("server.maxDocumentBytes", 5242880)
	v.SetDefault("server.requestsPerMinute", 30)
	v.SetDefault("server.allowedOrigins", []string{"*"})
	v.SetDefault("server.development", false)

	v.SetDefault("sqlite.path", "./data/greasemonkey.db")

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.ttlSec", 3600)

	// Keys without a default are invisible to AutomaticEnv during Unmarshal.
	v.SetDefault("llm.apiKey", "")
	v.SetDefault("llm.baseURL", "")
	v.SetDefault("llm.model", "gpt-4o-mini")
	v.SetDefault("llm.lowTemperature", 0.3)
	v.SetDefault("llm.highTemperature", 0.7)
	v.SetDefault("llm.samples", 3)
	v.SetDefault("llm.maxTokens", 2000)
	v.SetDefault("llm.timeoutSec", 60)
	v.SetDefault("llm.requestsPerMinute", 60)
	v.SetDefault("llm.burst", 1)
	v.SetDefault("llm.budget.totalTokens", 10000)
	v.SetDefault("llm.budget.systemTokens", 1500)
	v.SetDefault("llm.budget.queryTokens", 500)
	v.SetDefault("llm.budget.vehicleTokens", 200)
	v.SetDefault("llm.budget.responseTokens", 2000)
	v.SetDefault("llm.budget.overheadTokens", 500)

	v.SetDefault("search.minScore", 0.1)
	v.SetDefault("search.maxExcerptChars", 500)
	v.SetDefault("search.contextDocuments", 5)
	v.SetDefault("search.vocabularyPath", "")
	v.SetDefault("search.weights.automotive", 0.40)
	v.SetDefault("search.weights.symptom", 0.25)
	v.SetDefault("search.weights.tfidf", 0.20)
	v.SetDefault("search.weights.vehicle", 0.10)
	v.SetDefault("search.weights.filename", 0.05)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.outputPath", "stdout")
}
