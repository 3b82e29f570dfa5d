package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	OpenAI     OpenAIConfig     `mapstructure:"openai"`
	Classifier ClassifierConfig `mapstructure:"classifier"`
	Auth       AuthConfig       `mapstructure:"auth"`
	Chat       ChatConfig       `mapstructure:"chat"`
	Learning   LearningConfig   `mapstructure:"learning"`
	Log        LogConfig        `mapstructure:"log"`
}

type ServerConfig struct {
	Host           string        `mapstructure:"host"`
	Port           int           `mapstructure:"port"`
	AllowedOrigins []string      `mapstructure:"allowed_origins"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	IdleTimeout    time.Duration `mapstructure:"idle_timeout"`
}

type DatabaseConfig struct {
	Host        string `mapstructure:"host"`
	Port        int    `mapstructure:"port"`
	User        string `mapstructure:"user"`
	Password    string `mapstructure:"password"`
	DBName      string `mapstructure:"dbname"`
	SSLMode     string `mapstructure:"sslmode"`
	UseInMemory bool   `mapstructure:"use_in_memory"`
}

type OpenAIConfig struct {
	APIKey              string  `mapstructure:"api_key"`
	ChatModel           string  `mapstructure:"chat_model"`
	SummaryModel        string  `mapstructure:"summary_model"`
	EmbeddingModel      string  `mapstructure:"embedding_model"`
	EmbeddingDimensions int     `mapstructure:"embedding_dimensions"`
	Temperature         float64 `mapstructure:"temperature"`
}

type ClassifierConfig struct {
	UseLLM      bool    `mapstructure:"use_llm"`
	Model       string  `mapstructure:"model"`
	MaxTokens   int     `mapstructure:"max_tokens"`
	Temperature float64 `mapstructure:"temperature"`
}

type AuthConfig struct {
	JWTSecret      string        `mapstructure:"jwt_secret"`
	TokenTTL       time.Duration `mapstructure:"token_ttl"`
	GoogleClientID string        `mapstructure:"google_client_id"`
}

type ChatConfig struct {
	SummaryTemperature float64       `mapstructure:"summary_temperature"`
	LearningTimeout    time.Duration `mapstructure:"learning_timeout"`
}

type LearningConfig struct {
	ExtractSignals bool `mapstructure:"extract_signals"`
}

type LogConfig struct {
	Development bool `mapstructure:"development"`
}

func parseDatabaseURL(dbURL string) (DatabaseConfig, error) {
	u, err := url.Parse(dbURL)
	if err != nil {
		return DatabaseConfig{}, err
	}

	password, _ := u.User.Password()
	port := 5432 // default PostgreSQL port
	if u.Port() != "" {
		fmt.Sscanf(u.Port(), "%d", &port)
	}

	// Remove leading slash from path to get database name
	dbName := strings.TrimPrefix(u.Path, "/")

	return DatabaseConfig{
		Host:     u.Hostname(),
		Port:     port,
		User:     u.User.Username(),
		Password: password,
		DBName:   dbName,
		SSLMode:  "disable",
	}, nil
}

func LoadConfig(path string) (*Config, error) {
	v := viper.New()

	// Set default values
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"http://localhost:3000"})
	v.SetDefault("server.read_timeout", 30*time.Second)
	// Tutor replies are produced synchronously inside the handler, so the
	// write timeout has to outlast a slow model call.
	v.SetDefault("server.write_timeout", 120*time.Second)
	v.SetDefault("server.idle_timeout", 120*time.Second)
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.use_in_memory", false)
	v.SetDefault("openai.chat_model", "gpt-4o")
	v.SetDefault("openai.summary_model", "gpt-4o-mini")
	v.SetDefault("openai.embedding_model", "text-embedding-3-small")
	v.SetDefault("openai.embedding_dimensions", 1536)
	v.SetDefault("openai.temperature", 0.7)
	v.SetDefault("classifier.use_llm", true)
	v.SetDefault("classifier.model", "gpt-4o-mini")
	v.SetDefault("classifier.max_tokens", 150)
	v.SetDefault("classifier.temperature", 0.0)
	v.SetDefault("auth.token_ttl", 24*time.Hour)
	v.SetDefault("chat.summary_temperature", 0.0)
	v.SetDefault("chat.learning_timeout", 30*time.Second)
	v.SetDefault("learning.extract_signals", true)
	v.SetDefault("log.development", false)

	// Enable environment variable support
	v.AutomaticEnv()

	// Read the config file
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	// Check for DATABASE_URL environment variable
	if dbURL := v.GetString("DATABASE_URL"); dbURL != "" {
		dbConfig, err := parseDatabaseURL(dbURL)
		if err != nil {
			return nil, fmt.Errorf("failed to parse DATABASE_URL: %v", err)
		}
		config.Database = dbConfig
	}

	// Get other environment variables
	if apiKey := v.GetString("OPENAI_API_KEY"); apiKey != "" {
		config.OpenAI.APIKey = apiKey
	}

	if secret := v.GetString("JWT_SECRET"); secret != "" {
		config.Auth.JWTSecret = secret
	}

	if clientID := v.GetString("GOOGLE_CLIENT_ID"); clientID != "" {
		config.Auth.GoogleClientID = clientID
	}

	return &config, nil
}
