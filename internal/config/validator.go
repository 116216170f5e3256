package config

import (
	"fmt"
	"strings"
	"time"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("config validation: %s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors collects multiple validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// HasErrors returns true if there are any validation errors.
func (e ValidationErrors) HasErrors() bool {
	return len(e) > 0
}

// Validator validates configuration.
type Validator struct {
	errors ValidationErrors
}

// NewValidator creates a new validator.
func NewValidator() *Validator {
	return &Validator{errors: make(ValidationErrors, 0)}
}

// Validate validates the entire configuration.
func (v *Validator) Validate(cfg *Config) error {
	v.validateLog(&cfg.Log)
	v.validateState(&cfg.State)
	v.validateServer(&cfg.Server)
	v.validateLookup(&cfg.Lookup)
	v.validateCheckpoints(&cfg.Checkpoints)
	v.validateCosts(&cfg.Costs)
	v.validateNotify(&cfg.Notify)

	if len(v.errors) > 0 {
		return v.errors
	}
	return nil
}

// Errors returns the collected validation errors.
func (v *Validator) Errors() ValidationErrors {
	return v.errors
}

func (v *Validator) addError(field string, value interface{}, msg string) {
	v.errors = append(v.errors, ValidationError{Field: field, Value: value, Message: msg})
}

func (v *Validator) validateLog(cfg *LogConfig) {
	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[cfg.Level] {
		v.addError("log.level", cfg.Level, "must be one of: debug, info, warn, error")
	}

	validFormats := map[string]bool{
		"auto": true, "text": true, "json": true,
	}
	if !validFormats[cfg.Format] {
		v.addError("log.format", cfg.Format, "must be one of: auto, text, json")
	}
}

func (v *Validator) validateState(cfg *StateConfig) {
	if cfg.Path == "" {
		v.addError("state.path", cfg.Path, "must not be empty")
	}
}

func (v *Validator) validateServer(cfg *ServerConfig) {
	if cfg.Addr == "" {
		v.addError("server.addr", cfg.Addr, "must not be empty")
	}
	if cfg.ShutdownTimeout != "" {
		if _, err := time.ParseDuration(cfg.ShutdownTimeout); err != nil {
			v.addError("server.shutdown_timeout", cfg.ShutdownTimeout, "must be a valid duration")
		}
	}
}

func (v *Validator) validateLookup(cfg *LookupConfig) {
	if cfg.MonthlyCeiling < 0 {
		v.addError("lookup.monthly_ceiling", cfg.MonthlyCeiling, "must be >= 0")
	}
}

func (v *Validator) validateCheckpoints(cfg *CheckpointsConfig) {
	for field, value := range map[string]string{
		"checkpoints.escalator_interval": cfg.EscalatorInterval,
		"checkpoints.sweep_interval":     cfg.SweepInterval,
	} {
		d, err := time.ParseDuration(value)
		if err != nil {
			v.addError(field, value, "must be a valid duration")
			continue
		}
		if d <= 0 {
			v.addError(field, value, "must be positive")
		}
	}
}

func (v *Validator) validateCosts(cfg *CostsConfig) {
	if cfg.MaxPerOrder <= 0 {
		v.addError("costs.max_per_order", cfg.MaxPerOrder, "must be positive")
	}
	if cfg.AlertThreshold <= 0 || cfg.AlertThreshold > 1 {
		v.addError("costs.alert_threshold", cfg.AlertThreshold, "must be in (0, 1]")
	}
}

func (v *Validator) validateNotify(cfg *NotifyConfig) {
	if cfg.QueueSize <= 0 {
		v.addError("notify.queue_size", cfg.QueueSize, "must be positive")
	}
	if cfg.WebhookURL != "" && !strings.HasPrefix(cfg.WebhookURL, "http://") && !strings.HasPrefix(cfg.WebhookURL, "https://") {
		v.addError("notify.webhook_url", cfg.WebhookURL, "must be an http(s) URL")
	}
}
