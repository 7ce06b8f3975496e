// Package config provides configuration loading via Viper with env bindings.
package config

import (
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// readSecret reads a Docker secret from a file path specified by an env var
// with _FILE suffix. If FOO is already set directly, the file is skipped.
// If FOO_FILE is set, reads the file content and sets FOO.
func readSecret(envKey string) {
	if os.Getenv(envKey) != "" {
		return
	}
	filePath := os.Getenv(envKey + "_FILE")
	if filePath == "" {
		return
	}
	data, err := os.ReadFile(filePath)
	if err != nil {
		return
	}
	os.Setenv(envKey, strings.TrimSpace(string(data)))
}

type Config struct {
	Server   ServerConfig
	Pipeline PipelineConfig
	Search   SearchConfig
	LLM      LLMConfig
	Images   ImagesConfig
	Market   MarketConfig
	Notify   NotifyConfig
}

type ServerConfig struct {
	Port              string
	MetricsPort       string
	ShutdownDrainWait time.Duration // Time to wait for load balancer to drain (0 to skip)
}

type PipelineConfig struct {
	DataDir string        // root for inter-stage JSON documents
	MaxJobs int           // job records retained before oldest is evicted
	Timeout time.Duration // whole-pipeline deadline
}

type SearchConfig struct {
	APIKey     string
	BaseURL    string
	MaxResults int
}

type LLMConfig struct {
	APIKey   string
	BaseURL  string
	Model    string
	MaxIdeas int
}

type ImagesConfig struct {
	APIKey    string
	BaseURL   string
	Model     string
	Size      string
	OutputDir string
	MaxImages int
}

type MarketConfig struct {
	APIKey       string
	RefreshToken string
	ShopID       string
	BaseURL      string
}

type NotifyConfig struct {
	URL         string
	SigningKey  string
	Workers     int
	BufferSize  int
	HTTPTimeout time.Duration
}

func Load() (*Config, error) {
	// Read Docker Swarm secrets from _FILE env vars before Viper binds
	readSecret("SEARCH_API_KEY")
	readSecret("LLM_API_KEY")
	readSecret("IMAGES_API_KEY")
	readSecret("MARKET_API_KEY")
	readSecret("MARKET_REFRESH_TOKEN")
	readSecret("NOTIFY_SIGNING_KEY")

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	viper.AutomaticEnv()

	// Bind environment variables with underscores to nested config keys
	_ = viper.BindEnv("server.port", "PORT")
	_ = viper.BindEnv("server.metrics_port", "METRICS_PORT")
	_ = viper.BindEnv("server.shutdown_drain_wait", "SHUTDOWN_DRAIN_WAIT")
	_ = viper.BindEnv("pipeline.data_dir", "DATA_DIR")
	_ = viper.BindEnv("pipeline.max_jobs", "PIPELINE_MAX_JOBS")
	_ = viper.BindEnv("pipeline.timeout", "PIPELINE_TIMEOUT")
	_ = viper.BindEnv("search.api_key", "SEARCH_API_KEY")
	_ = viper.BindEnv("search.base_url", "SEARCH_BASE_URL")
	_ = viper.BindEnv("search.max_results", "SEARCH_MAX_RESULTS")
	_ = viper.BindEnv("llm.api_key", "LLM_API_KEY")
	_ = viper.BindEnv("llm.base_url", "LLM_BASE_URL")
	_ = viper.BindEnv("llm.model", "LLM_MODEL")
	_ = viper.BindEnv("llm.max_ideas", "LLM_MAX_IDEAS")
	_ = viper.BindEnv("images.api_key", "IMAGES_API_KEY")
	_ = viper.BindEnv("images.base_url", "IMAGES_BASE_URL")
	_ = viper.BindEnv("images.model", "IMAGES_MODEL")
	_ = viper.BindEnv("images.size", "IMAGES_SIZE")
	_ = viper.BindEnv("images.output_dir", "IMAGES_OUTPUT_DIR")
	_ = viper.BindEnv("images.max_images", "IMAGES_MAX_IMAGES")
	_ = viper.BindEnv("market.api_key", "MARKET_API_KEY")
	_ = viper.BindEnv("market.refresh_token", "MARKET_REFRESH_TOKEN")
	_ = viper.BindEnv("market.shop_id", "MARKET_SHOP_ID")
	_ = viper.BindEnv("market.base_url", "MARKET_BASE_URL")
	_ = viper.BindEnv("notify.url", "NOTIFY_URL")
	_ = viper.BindEnv("notify.signing_key", "NOTIFY_SIGNING_KEY")
	_ = viper.BindEnv("notify.workers", "NOTIFY_WORKERS")
	_ = viper.BindEnv("notify.buffer_size", "NOTIFY_BUFFER_SIZE")
	_ = viper.BindEnv("notify.http_timeout", "NOTIFY_HTTP_TIMEOUT")

	// Defaults
	viper.SetDefault("server.port", "8080")
	viper.SetDefault("server.metrics_port", "9090")
	viper.SetDefault("server.shutdown_drain_wait", "5s")
	viper.SetDefault("pipeline.data_dir", "./data")
	viper.SetDefault("pipeline.max_jobs", 10)
	viper.SetDefault("pipeline.timeout", "10m")
	viper.SetDefault("search.base_url", "https://api.tavily.com")
	viper.SetDefault("search.max_results", 5)
	viper.SetDefault("llm.base_url", "https://api.groq.com/openai/v1")
	viper.SetDefault("llm.model", "llama-3.3-70b-versatile")
	viper.SetDefault("llm.max_ideas", 5)
	viper.SetDefault("images.base_url", "https://api.openai.com/v1")
	viper.SetDefault("images.model", "gpt-image-1")
	viper.SetDefault("images.size", "1024x1024")
	viper.SetDefault("images.output_dir", "./data/images")
	viper.SetDefault("images.max_images", 3)
	viper.SetDefault("market.base_url", "https://openapi.etsy.com/v3")
	viper.SetDefault("notify.workers", 2)
	viper.SetDefault("notify.buffer_size", 100)
	viper.SetDefault("notify.http_timeout", "10s")

	// Try to read config file (optional)
	_ = viper.ReadInConfig()

	cfg := &Config{
		Server: ServerConfig{
			Port:              viper.GetString("server.port"),
			MetricsPort:       viper.GetString("server.metrics_port"),
			ShutdownDrainWait: viper.GetDuration("server.shutdown_drain_wait"),
		},
		Pipeline: PipelineConfig{
			DataDir: viper.GetString("pipeline.data_dir"),
			MaxJobs: viper.GetInt("pipeline.max_jobs"),
			Timeout: viper.GetDuration("pipeline.timeout"),
		},
		Search: SearchConfig{
			APIKey:     viper.GetString("search.api_key"),
			BaseURL:    viper.GetString("search.base_url"),
			MaxResults: viper.GetInt("search.max_results"),
		},
		LLM: LLMConfig{
			APIKey:   viper.GetString("llm.api_key"),
			BaseURL:  viper.GetString("llm.base_url"),
			Model:    viper.GetString("llm.model"),
			MaxIdeas: viper.GetInt("llm.max_ideas"),
		},
		Images: ImagesConfig{
			APIKey:    viper.GetString("images.api_key"),
			BaseURL:   viper.GetString("images.base_url"),
			Model:     viper.GetString("images.model"),
			Size:      viper.GetString("images.size"),
			OutputDir: viper.GetString("images.output_dir"),
			MaxImages: viper.GetInt("images.max_images"),
		},
		Market: MarketConfig{
			APIKey:       viper.GetString("market.api_key"),
			RefreshToken: viper.GetString("market.refresh_token"),
			ShopID:       viper.GetString("market.shop_id"),
			BaseURL:      viper.GetString("market.base_url"),
		},
		Notify: NotifyConfig{
			URL:         viper.GetString("notify.url"),
			SigningKey:  viper.GetString("notify.signing_key"),
			Workers:     viper.GetInt("notify.workers"),
			BufferSize:  viper.GetInt("notify.buffer_size"),
			HTTPTimeout: viper.GetDuration("notify.http_timeout"),
		},
	}

	return cfg, nil
}
