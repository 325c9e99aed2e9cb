package config

import (
    "time"

    "github.com/kelseyhightower/envconfig"
)

type Config struct {
    APIBaseURL      string        `envconfig:"API_BASE_URL" default:"http://localhost:5000"`
    RequestTimeout  time.Duration `envconfig:"REQUEST_TIMEOUT" default:"10s"`
    DefaultPageSize int           `envconfig:"DEFAULT_PAGE_SIZE" default:"12"`
    CredentialsFile string        `envconfig:"CREDENTIALS_FILE" default:".sweetshop/credentials.json"`
    LogLevel        string        `envconfig:"LOG_LEVEL" default:"info"`
}

func Load() (*Config, error) {
    var cfg Config
    if err := envconfig.Process("", &cfg); err != nil {
        return nil, err
    }
    return &cfg, nil
}
