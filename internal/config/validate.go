package config

import (
	"fmt"
	"strings"

	"github.com/Ashwinachu030493/AIde/internal/logging"
	"github.com/Ashwinachu030493/AIde/internal/wsconn"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	msgs := make([]string, len(e))
	for i, err := range e {
		msgs[i] = err.Error()
	}
	return strings.Join(msgs, "; ")
}

// Validate checks the configuration and returns every problem found.
func (c *Config) Validate() error {
	var errs ValidationErrors
	add := func(field, format string, args ...any) {
		errs = append(errs, ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	if err := wsconn.ValidateURL(c.Server.URL); err != nil {
		add("server.url", "%v", err)
	}
	if strings.ContainsAny(c.Server.Conversation, "/?#") {
		add("server.conversation", "must not contain '/', '?' or '#'")
	}
	switch c.Server.WireFormat {
	case WireJSON, WireText:
	default:
		add("server.wire_format", "invalid format %q, must be one of: json, text", c.Server.WireFormat)
	}

	switch c.Connection.Transport {
	case TransportCoder, TransportGorilla:
	default:
		add("connection.transport", "invalid transport %q, must be one of: coder, gorilla", c.Connection.Transport)
	}
	if c.Connection.AttemptLimit < 0 {
		add("connection.attempt_limit", "must not be negative")
	}
	if c.Connection.BaseDelay <= 0 {
		add("connection.base_delay", "must be positive")
	}
	if c.Connection.MaxDelay < c.Connection.BaseDelay {
		add("connection.max_delay", "must be at least base_delay (%s)", c.Connection.BaseDelay)
	}
	if c.Connection.MaxJitter < 0 {
		add("connection.max_jitter", "must not be negative")
	}
	if c.Connection.ConnectTimeout <= 0 {
		add("connection.connect_timeout", "must be positive")
	}
	if c.Connection.WriteTimeout <= 0 {
		add("connection.write_timeout", "must be positive")
	}

	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		add("log.level", "invalid level %q", c.Log.Level)
	}

	if c.History.Limit <= 0 {
		add("history.limit", "must be positive")
	}

	if c.Health.Timeout <= 0 {
		add("health.timeout", "must be positive")
	}
	if c.Health.Retries < 0 {
		add("health.retries", "must not be negative")
	}
	if c.Health.Interval <= 0 {
		add("health.interval", "must be positive")
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}
