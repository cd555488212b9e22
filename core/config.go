package core

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"sync"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

const (
	defaultSearchTool = "duckduckgo"
)

type Config struct {
	Env            string `yaml:"env" env:"ENV" env-default:"local"`
	TelegramApiKey string `yaml:"telegram_api_key" env:"TELEGRAM_API_KEY" env-default:""`
	Username       string `yaml:"username" env:"BOT_USERNAME" env-default:""`
	Generator      struct {
		BaseURL    string `yaml:"base_url" env:"GENERATOR_BASE_URL" env-default:"http://localhost:8000"`
		Path       string `yaml:"path" env:"GENERATOR_PATH" env-default:"/generate_script/"`
		SearchTool string `yaml:"search_tool" env:"GENERATOR_SEARCH_TOOL" env-default:"duckduckgo"`
	} `yaml:"generator"`
	Mongo struct {
		Enabled  bool   `yaml:"enabled" env:"MONGO_ENABLED" env-default:"false"`
		Host     string `yaml:"host" env:"MONGO_HOST" env-default:"127.0.0.1"`
		Port     string `yaml:"port" env:"MONGO_PORT" env-default:"27017"`
		User     string `yaml:"user" env:"MONGO_USER" env-default:"admin"`
		Password string `yaml:"password" env:"MONGO_PASSWORD" env-default:"pass"`
		Database string `yaml:"database" env:"MONGO_DATABASE" env-default:"scripter"`
	} `yaml:"mongo"`
}

// Endpoint is the full URL of the script generation endpoint.
func (c *Config) Endpoint() string {
	base := strings.TrimRight(c.Generator.BaseURL, "/")
	path := c.Generator.Path
	if path != "" && !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return base + path
}

// SearchTool returns the configured search provider, falling back to duckduckgo.
func (c *Config) SearchTool() string {
	if c.Generator.SearchTool == "" {
		return defaultSearchTool
	}
	return c.Generator.SearchTool
}

var instance *Config
var once sync.Once

// Load reads the config file at path, overridden by environment variables.
// A .env file in the working directory is loaded first when present.
// A missing config file is not an error: defaults and environment apply.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	conf := &Config{}
	var err error
	if _, statErr := os.Stat(path); statErr == nil {
		err = cleanenv.ReadConfig(path, conf)
	} else if errors.Is(statErr, os.ErrNotExist) {
		err = cleanenv.ReadEnv(conf)
	} else {
		err = statErr
	}
	if err != nil {
		desc, _ := cleanenv.GetDescription(conf, nil)
		return nil, fmt.Errorf("config: %s; %s", err, desc)
	}
	return conf, nil
}

// MustLoad loads the config once per process and exits on failure.
func MustLoad(path string) *Config {
	once.Do(func() {
		conf, err := Load(path)
		if err != nil {
			log.Fatalf("loading config: %v", err)
		}
		instance = conf
	})
	return instance
}
