package config

import (
	"github.com/spf13/viper"
)

// AppConfig carries CLI defaults; flags override every field.
type AppConfig struct {
	URL         string
	AccessKey   string
	OutputDir   string
	Concurrency int
	LogPath     string
}

var cfg AppConfig

func Init(path string) AppConfig {
	v := viper.New()
	if path == "" {
		path = "config/agent.yaml"
	}
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	// defaults
	v.SetDefault("agent.output_dir", ".")
	v.SetDefault("agent.concurrency", 4)
	_ = v.ReadInConfig()

	cfg = AppConfig{
		URL:         v.GetString("agent.url"),
		AccessKey:   v.GetString("agent.access_key"),
		OutputDir:   v.GetString("agent.output_dir"),
		Concurrency: v.GetInt("agent.concurrency"),
		LogPath:     v.GetString("agent.log_path"),
	}
	return cfg
}

func Get() AppConfig { return cfg }
