// Package config loads the static process configuration (env vars bound
// through viper) and the ConfigRegistry documents — intent rules, message
// templates and feature flags — the rest of the control plane reads at
// request time.
package config

import (
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// Config is the flat environment surface described by the external
// interfaces: chat-platform credentials, store addresses, LLM toggles.
type Config struct {
	Port     string
	NodeEnv  string
	AppDebug bool

	ChannelAccessToken string
	ChannelSecret      string

	RedisURL string

	OpenAIAPIKey string
	GeminiAPIKey string

	EnableAIFallback        bool
	AIFallbackMinConfidence float64
	AIFallbackTimeoutMs     int

	EnableRecurringCourses     bool
	UseMockLineService         bool
	AllowTestWebhook           bool
	QAForceReal                bool
	StrictRecordRequiresCourse bool
	DisableContextAutoFill     bool

	DatabaseDriver string
	DatabaseDSN    string
}

// IsProduction reports whether NodeEnv is "production" — the webhook uses
// this to decide whether signature verification may be bypassed.
func (c Config) IsProduction() bool {
	return c.NodeEnv == "production"
}

// AIFallbackTimeout returns AIFallbackTimeoutMs as a time.Duration.
func (c Config) AIFallbackTimeout() time.Duration {
	return time.Duration(c.AIFallbackTimeoutMs) * time.Millisecond
}

// Load reads a local .env file (if present) then binds every environment
// variable through viper, mirroring the teacher's initEnvConfig: defaults
// first, BindEnv second, typed reads into Config third (values are not
// clamped).
func Load() Config {
	if err := godotenv.Load(); err != nil {
		logrus.Debugf("[CONFIG] no .env file loaded: %v", err)
	}

	v := viper.New()
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("port", "3000")
	v.SetDefault("node_env", "development")
	v.SetDefault("app_debug", false)
	v.SetDefault("enable_ai_fallback", false)
	v.SetDefault("ai_fallback_min_confidence", 0.7)
	v.SetDefault("ai_fallback_timeout_ms", 5000)
	v.SetDefault("enable_recurring_courses", true)
	v.SetDefault("use_mock_line_service", false)
	v.SetDefault("allow_test_webhook", false)
	v.SetDefault("qa_force_real", false)
	v.SetDefault("strict_record_requires_course", false)
	v.SetDefault("disable_context_auto_fill", false)
	v.SetDefault("database_driver", "sqlite")
	v.SetDefault("database_dsn", "file:storages/course_assistant.db?_foreign_keys=on")

	for _, key := range []string{
		"port", "node_env", "app_debug", "channel_access_token", "channel_secret",
		"redis_url", "openai_api_key", "gemini_api_key", "enable_ai_fallback",
		"ai_fallback_min_confidence", "ai_fallback_timeout_ms", "enable_recurring_courses",
		"use_mock_line_service", "allow_test_webhook", "qa_force_real",
		"strict_record_requires_course", "disable_context_auto_fill",
		"database_driver", "database_dsn",
	} {
		_ = v.BindEnv(key)
	}

	cfg := Config{
		Port:                       v.GetString("port"),
		NodeEnv:                    v.GetString("node_env"),
		AppDebug:                   v.GetBool("app_debug"),
		ChannelAccessToken:         v.GetString("channel_access_token"),
		ChannelSecret:              v.GetString("channel_secret"),
		RedisURL:                   v.GetString("redis_url"),
		OpenAIAPIKey:               v.GetString("openai_api_key"),
		GeminiAPIKey:               v.GetString("gemini_api_key"),
		EnableAIFallback:           v.GetBool("enable_ai_fallback"),
		AIFallbackMinConfidence:    v.GetFloat64("ai_fallback_min_confidence"),
		AIFallbackTimeoutMs:        v.GetInt("ai_fallback_timeout_ms"),
		EnableRecurringCourses:     v.GetBool("enable_recurring_courses"),
		UseMockLineService:         v.GetBool("use_mock_line_service"),
		AllowTestWebhook:           v.GetBool("allow_test_webhook"),
		QAForceReal:                v.GetBool("qa_force_real"),
		StrictRecordRequiresCourse: v.GetBool("strict_record_requires_course"),
		DisableContextAutoFill:     v.GetBool("disable_context_auto_fill"),
		DatabaseDriver:             v.GetString("database_driver"),
		DatabaseDSN:                v.GetString("database_dsn"),
	}

	if cfg.IsProduction() {
		if cfg.ChannelAccessToken == "" || cfg.ChannelSecret == "" {
			logrus.Warn("[CONFIG] running in production without CHANNEL_ACCESS_TOKEN/CHANNEL_SECRET set")
		}
	}
	return cfg
}
