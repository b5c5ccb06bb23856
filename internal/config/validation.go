package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"duewatch/pkg/logging"
)

// ValidationError represents a validation error with context
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

// Error implements the error interface
func (ve ValidationError) Error() string {
	if ve.Field == "" {
		return ve.Message
	}
	return fmt.Sprintf("field '%s': %s", ve.Field, ve.Message)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface for multiple validation errors
func (ve ValidationErrors) Error() string {
	if len(ve) == 0 {
		return "no validation errors"
	}
	if len(ve) == 1 {
		return ve[0].Error()
	}

	var messages []string
	for _, err := range ve {
		messages = append(messages, err.Error())
	}
	return fmt.Sprintf("validation failed: %s", strings.Join(messages, "; "))
}

// HasErrors returns true if there are any validation errors
func (ve ValidationErrors) HasErrors() bool {
	return len(ve) > 0
}

// Add adds a new validation error
func (ve *ValidationErrors) Add(field, message string, value ...interface{}) {
	var val interface{}
	if len(value) > 0 {
		val = value[0]
	}
	*ve = append(*ve, ValidationError{
		Field:   field,
		Value:   val,
		Message: message,
	})
}

// ValidateOneOf checks if a value is in a list of allowed values
func ValidateOneOf(field, value string, allowed []string) error {
	for _, allowedValue := range allowed {
		if value == allowedValue {
			return nil
		}
	}
	return ValidationError{
		Field:   field,
		Value:   value,
		Message: fmt.Sprintf("must be one of: %s", strings.Join(allowed, ", ")),
	}
}

// minStateSecretLength is the shortest accepted HMAC key for state signing.
const minStateSecretLength = 32

// Validate checks the whole configuration and reports every problem at once.
func (c Config) Validate() error {
	var errs ValidationErrors

	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		errs.Add("logLevel", err.Error(), c.LogLevel)
	}
	if err := ValidateOneOf("logFormat", c.LogFormat, []string{string(logging.FormatText), string(logging.FormatJSON)}); err != nil {
		errs = append(errs, err.(ValidationError))
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs.Add("server.port", "must be between 1 and 65535", c.Server.Port)
	}
	if c.Server.PublicURL != "" {
		validateURL(&errs, "server.publicURL", c.Server.PublicURL)
	}

	if c.OAuth.Enabled() {
		validateURL(&errs, "oauth.authURL", c.OAuth.AuthURL)
		validateURL(&errs, "oauth.tokenURL", c.OAuth.TokenURL)
		validateURL(&errs, "oauth.redirectURL", c.OAuth.RedirectURL)
		if c.OAuth.RevokeURL != "" {
			validateURL(&errs, "oauth.revokeURL", c.OAuth.RevokeURL)
		}
		if len(c.OAuth.StateSecret) < minStateSecretLength {
			errs.Add("oauth.stateSecret", fmt.Sprintf("must be at least %d characters long", minStateSecretLength))
		}
		if len(c.OAuth.Scopes) == 0 {
			errs.Add("oauth.scopes", "must have at least one scope")
		}
	}
	if !strings.HasPrefix(c.OAuth.CallbackPath, "/") {
		errs.Add("oauth.callbackPath", "must start with '/'", c.OAuth.CallbackPath)
	}

	if err := ValidateOneOf("store.type", c.Store.Type, []string{StoreTypeFile, StoreTypeSQLite, StoreTypePostgres}); err != nil {
		errs = append(errs, err.(ValidationError))
	}
	if c.Store.Type == StoreTypePostgres && c.Store.DSN == "" {
		errs.Add("store.dsn", "is required for the postgres store")
	}

	if _, err := cron.ParseStandard(c.Scheduler.Schedule); err != nil {
		errs.Add("scheduler.schedule", err.Error(), c.Scheduler.Schedule)
	}
	if c.Scheduler.TimeZone != "" {
		if _, err := time.LoadLocation(c.Scheduler.TimeZone); err != nil {
			errs.Add("scheduler.timeZone", err.Error(), c.Scheduler.TimeZone)
		}
	}
	if c.Scheduler.Concurrency < 0 {
		errs.Add("scheduler.concurrency", "must not be negative", c.Scheduler.Concurrency)
	}
	if err := ValidateOneOf("scheduler.defaultSource", c.Scheduler.DefaultSource, []string{"oauth", "session"}); err != nil {
		errs = append(errs, err.(ValidationError))
	}

	if err := ValidateOneOf("delivery.type", c.Delivery.Type, []string{DeliveryTypeSlack, DeliveryTypeLog}); err != nil {
		errs = append(errs, err.(ValidationError))
	}
	if c.Delivery.Type == DeliveryTypeSlack && c.Delivery.SlackToken == "" {
		errs.Add("delivery.slackToken", "is required for slack delivery")
	}

	if errs.HasErrors() {
		return errs
	}
	return nil
}

func validateURL(errs *ValidationErrors, field, raw string) {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		errs.Add(field, "must be an absolute URL", raw)
	}
}

// Location returns the configured scheduler time zone, or time.Local.
func (s SchedulerConfig) Location() *time.Location {
	if s.TimeZone == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(s.TimeZone)
	if err != nil {
		return time.Local
	}
	return loc
}
