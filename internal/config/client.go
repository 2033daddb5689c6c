package config

import (
	"time"

	"github.com/spf13/viper"
)

type ClientConfig struct {
	Environment   string
	BaseURL       string
	APIKey        string
	Timeout       time.Duration
	RefreshMargin time.Duration
	Email         string
	Password      string
	LogLevel      string
}

func LoadClient() (*ClientConfig, error) {
	var cfg ClientConfig
	if err := load("client", "AUTOCARE_CLIENT", setClientDefaults, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setClientDefaults(v *viper.Viper) {
	v.SetDefault("environment", "production")
	v.SetDefault("baseurl", "http://127.0.0.1:8080")
	v.SetDefault("apikey", "")
	v.SetDefault("timeout", "30s")
	v.SetDefault("refreshmargin", "1m")
	v.SetDefault("email", "")
	v.SetDefault("password", "")
	v.SetDefault("loglevel", "warn")
}
