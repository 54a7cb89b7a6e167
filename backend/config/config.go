package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

type DB struct {
	Driver string // mysql or sqlite
	Host   string
	Port   int
	User   string
	Pass   string
	Name   string
	Path   string // sqlite file
}

type Redis struct {
	Addr     string
	Password string
	DB       int
}

type Export struct {
	Workspace  string
	Compress   bool
	TimeBudget time.Duration
}

type Config struct {
	Host          string
	Port          int
	AccessKey     string
	AccessKeyHash string
	SiteRoot      string
	JobTTL        time.Duration
	DB            DB
	Redis         Redis
	Export        Export
}

func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	// Defaults
	v.SetDefault("backend.host", "127.0.0.1")
	v.SetDefault("backend.port", 9400)
	v.SetDefault("backend.site_root", ".")
	v.SetDefault("backend.job_ttl_min", 15)
	v.SetDefault("backend.db.driver", "mysql")
	v.SetDefault("backend.db.host", "127.0.0.1")
	v.SetDefault("backend.db.port", 3306)
	v.SetDefault("backend.db.user", "root")
	v.SetDefault("backend.db.pass", "")
	v.SetDefault("backend.db.name", "sitevault")
	v.SetDefault("backend.db.path", "site.db")
	v.SetDefault("backend.redis.addr", "127.0.0.1:6379")
	v.SetDefault("backend.redis.db", 0)
	v.SetDefault("backend.export.workspace", "export-workspace")
	v.SetDefault("backend.export.compress", false)
	v.SetDefault("backend.export.time_budget_sec", 10)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := &Config{
		Host:          v.GetString("backend.host"),
		Port:          v.GetInt("backend.port"),
		AccessKey:     v.GetString("backend.access_key"),
		AccessKeyHash: v.GetString("backend.access_key_hash"),
		SiteRoot:      v.GetString("backend.site_root"),
		JobTTL:        time.Duration(v.GetInt("backend.job_ttl_min")) * time.Minute,
		DB: DB{
			Driver: v.GetString("backend.db.driver"),
			Host:   v.GetString("backend.db.host"),
			Port:   v.GetInt("backend.db.port"),
			User:   v.GetString("backend.db.user"),
			Pass:   v.GetString("backend.db.pass"),
			Name:   v.GetString("backend.db.name"),
			Path:   v.GetString("backend.db.path"),
		},
		Redis: Redis{
			Addr:     v.GetString("backend.redis.addr"),
			Password: v.GetString("backend.redis.password"),
			DB:       v.GetInt("backend.redis.db"),
		},
		Export: Export{
			Workspace:  v.GetString("backend.export.workspace"),
			Compress:   v.GetBool("backend.export.compress"),
			TimeBudget: time.Duration(v.GetInt("backend.export.time_budget_sec")) * time.Second,
		},
	}
	if cfg.AccessKey == "" && cfg.AccessKeyHash == "" {
		return nil, fmt.Errorf("config: backend.access_key or backend.access_key_hash is required")
	}
	return cfg, nil
}
