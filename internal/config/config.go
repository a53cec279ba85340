package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// AppConfig 汇总运行服务所需的基础配置。
type AppConfig struct {
	ListenAddr        string
	Port              string
	DatabaseDriver    string
	DatabaseURL       string
	SessionSecret     string
	AppSecret         string
	GinMode           string
	RedisURL          string
	ColumnarEnabled   bool
	KafkaBrokers      []string
	KafkaTopic        string
	GeoIPDatabase     string
	CacheTokenTTL     time.Duration
	SaltRotation      string
	DisableBotCheck   bool
	LogLevel          string
	LogFormat         string
	SuperRootUserName string
	SuperRootPassword string
}

const (
	SaltRotationNone    = "none"
	SaltRotationMonthly = "monthly"
)

// Load 读取 .env（若存在）与环境变量，并为缺失项提供安全的默认值。
func Load() AppConfig {
	_ = godotenv.Load()

	v := viper.New()
	v.AutomaticEnv()
	setDefaults(v)

	port := trimmed(v, "port")
	listenAddr := trimmed(v, "listen_addr")
	if listenAddr == "" {
		listenAddr = fmt.Sprintf(":%s", port)
	}

	rotation := strings.ToLower(trimmed(v, "salt_rotation"))
	if rotation != SaltRotationMonthly {
		rotation = SaltRotationNone
	}

	return AppConfig{
		ListenAddr:        listenAddr,
		Port:              port,
		DatabaseDriver:    strings.ToLower(trimmed(v, "database_driver")),
		DatabaseURL:       trimmed(v, "database_url"),
		SessionSecret:     trimmed(v, "session_secret"),
		AppSecret:         trimmed(v, "app_secret"),
		GinMode:           trimmed(v, "gin_mode"),
		RedisURL:          trimmed(v, "redis_url"),
		ColumnarEnabled:   v.GetBool("columnar_enabled"),
		KafkaBrokers:      splitList(v.GetString("kafka_brokers")),
		KafkaTopic:        trimmed(v, "kafka_topic"),
		GeoIPDatabase:     trimmed(v, "geoip_database"),
		CacheTokenTTL:     v.GetDuration("cache_token_ttl"),
		SaltRotation:      rotation,
		DisableBotCheck:   v.GetBool("disable_bot_check"),
		LogLevel:          trimmed(v, "log_level"),
		LogFormat:         trimmed(v, "log_format"),
		SuperRootUserName: trimmed(v, "super_root_user_name"),
		SuperRootPassword: trimmed(v, "super_root_password"),
	}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("port", "8080")
	v.SetDefault("database_driver", "sqlite")
	v.SetDefault("database_url", "pagetrail.db")
	v.SetDefault("session_secret", "pagetrail-dev-secret")
	v.SetDefault("gin_mode", "release")
	v.SetDefault("kafka_topic", "website_events")
	v.SetDefault("cache_token_ttl", "0s")
	v.SetDefault("salt_rotation", SaltRotationNone)
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "console")
}

// CacheEnabled 只要配置了 Redis 即启用查找缓存。
func (c AppConfig) CacheEnabled() bool {
	return c.RedisURL != ""
}

// Validate 检查相互依赖的配置项。
func (c AppConfig) Validate() error {
	switch c.DatabaseDriver {
	case "sqlite", "mysql":
	default:
		return fmt.Errorf("unsupported database driver %q", c.DatabaseDriver)
	}
	if c.DatabaseURL == "" {
		return errors.New("database url is required")
	}
	if c.ColumnarEnabled && len(c.KafkaBrokers) == 0 {
		return errors.New("columnar backend requires KAFKA_BROKERS")
	}
	return nil
}

func trimmed(v *viper.Viper, key string) string {
	return strings.TrimSpace(v.GetString(key))
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
