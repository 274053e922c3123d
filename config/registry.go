package config

import (
	"context"
	"strconv"
	"strings"
	"sync"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// FeatureFlags is the feature-flag document ConfigRegistry serves. Fields
// mirror §4.2 exactly; NewRegistry takes their initial values from Config
// (whose fields viper binds to environment variables such as
// AI_FALLBACK_MIN_CONFIDENCE), then applies the global_settings rows of
// the dynamic store if one was supplied. No separately prefixed
// environment variables are read.
type FeatureFlags struct {
	EnableAIFallback           bool
	AIFallbackMinConfidence    float64
	AIFallbackTimeoutMs        int
	EnableRecurringCourses     bool
	QAForceReal                bool
	AllowTestWebhook           bool
	DisableContextAutoFill     bool
	StrictRecordRequiresCourse bool
}

// globalSettingModel is the row shape for runtime-writable overrides,
// adapted from the teacher's GlobalSettingModel / global_settings table.
type globalSettingModel struct {
	Key   string `gorm:"primaryKey;column:key"`
	Value string `gorm:"column:value"`
}

func (globalSettingModel) TableName() string { return "global_settings" }

// Listener is notified whenever a runtime writer changes a flag value.
type Listener func(namespace, keypath string, value string)

// Registry implements the ConfigRegistry contract: get(namespace, keypath,
// default) with environment overrides and an optional gorm-backed dynamic
// store so operators can flip a flag without a redeploy. Reload is
// optional — Set already takes effect immediately for subsequent Get
// calls, matching "runtime writers notify listeners".
type Registry struct {
	mu        sync.RWMutex
	flags     FeatureFlags
	rules     []IntentRule
	templates map[string]string
	dates     map[string]string

	db        *gorm.DB
	listeners []Listener
}

// NewRegistry loads the three ConfigRegistry documents from process
// defaults plus environment overrides. Pass a non-nil *gorm.DB to enable
// runtime-writable overrides backed by the global_settings table; pass nil
// to run purely from env/file defaults (e.g. in tests).
func NewRegistry(cfg Config, db *gorm.DB) *Registry {
	r := &Registry{
		rules:     DefaultIntentRules(),
		templates: DefaultTemplates(),
		dates:     DateDescriptions(),
		db:        db,
		flags: FeatureFlags{
			EnableAIFallback:           cfg.EnableAIFallback,
			AIFallbackMinConfidence:    cfg.AIFallbackMinConfidence,
			AIFallbackTimeoutMs:        cfg.AIFallbackTimeoutMs,
			EnableRecurringCourses:     cfg.EnableRecurringCourses,
			QAForceReal:                cfg.QAForceReal,
			AllowTestWebhook:           cfg.AllowTestWebhook,
			DisableContextAutoFill:     cfg.DisableContextAutoFill,
			StrictRecordRequiresCourse: cfg.StrictRecordRequiresCourse,
		},
	}
	if db != nil {
		_ = db.WithContext(context.Background()).AutoMigrate(&globalSettingModel{})
		r.loadDynamicOverrides()
	}
	return r
}

func (r *Registry) loadDynamicOverrides() {
	var rows []globalSettingModel
	if err := r.db.Find(&rows).Error; err != nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, row := range rows {
		applyFlagOverride(&r.flags, row.Key, row.Value)
	}
}

func applyFlagOverride(flags *FeatureFlags, key, value string) {
	switch key {
	case "enable_ai_fallback":
		flags.EnableAIFallback = parseBool(value, flags.EnableAIFallback)
	case "ai_fallback_min_confidence":
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			flags.AIFallbackMinConfidence = f
		}
	case "ai_fallback_timeout_ms":
		if n, err := strconv.Atoi(value); err == nil {
			flags.AIFallbackTimeoutMs = n
		}
	case "enable_recurring_courses":
		flags.EnableRecurringCourses = parseBool(value, flags.EnableRecurringCourses)
	case "qa_force_real":
		flags.QAForceReal = parseBool(value, flags.QAForceReal)
	case "allow_test_webhook":
		flags.AllowTestWebhook = parseBool(value, flags.AllowTestWebhook)
	case "disable_context_auto_fill":
		flags.DisableContextAutoFill = parseBool(value, flags.DisableContextAutoFill)
	case "strict_record_requires_course":
		flags.StrictRecordRequiresCourse = parseBool(value, flags.StrictRecordRequiresCourse)
	}
}

func parseBool(v string, fallback bool) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

// Flags returns a snapshot of the current feature flags.
func (r *Registry) Flags() FeatureFlags {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.flags
}

// Rules returns the immutable intent-rule table.
func (r *Registry) Rules() []IntentRule {
	return r.rules
}

// Template looks up a message template by key, returning "" if absent.
func (r *Registry) Template(key string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.templates[key]
}

// DateDescription maps a TimeReference token to its Chinese label.
func (r *Registry) DateDescription(ref string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.dates[ref]
}

// OnChange registers a listener invoked after every successful Set.
func (r *Registry) OnChange(l Listener) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listeners = append(r.listeners, l)
}

// Set writes a runtime override for a feature flag and notifies listeners.
// Without a *gorm.DB the override is applied in memory and listeners are
// notified, but nothing is persisted.
func (r *Registry) Set(namespace, keypath, value string) error {
	r.mu.Lock()
	applyFlagOverride(&r.flags, keypath, value)
	listeners := append([]Listener(nil), r.listeners...)
	db := r.db
	r.mu.Unlock()

	if db != nil {
		if err := db.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "key"}},
			DoUpdates: clause.Assignments(map[string]interface{}{"value": value}),
		}).Create(&globalSettingModel{Key: keypath, Value: value}).Error; err != nil {
			return err
		}
	}
	for _, l := range listeners {
		l(namespace, keypath, value)
	}
	return nil
}
