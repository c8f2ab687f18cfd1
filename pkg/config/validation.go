package config

import (
	"fmt"
	"net"
	"net/url"
	"strconv"

	"github.com/go-playground/validator/v10"
)

// validate is the singleton validator instance
var validate *validator.Validate

func init() {
	validate = validator.New()
}

// Validate validates the configuration using struct tags and custom rules.
//
// Log level normalization is handled in ApplyDefaults, not here, so both
// upper and lower case levels are accepted.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return formatValidationError(err)
	}

	if err := validateCustomRules(cfg); err != nil {
		return err
	}

	return nil
}

// validateCustomRules performs validation that cannot be expressed in tags.
func validateCustomRules(cfg *Config) error {
	if cfg.Credentials.Secret == cfg.OAuth.StateSecret {
		return fmt.Errorf("oauth.state_secret: must differ from credentials.secret")
	}

	if cfg.Store.Type == "badger" {
		path, _ := cfg.Store.Badger["db_path"].(string)
		inMemory, _ := cfg.Store.Badger["in_memory"].(bool)
		if path == "" && !inMemory {
			return fmt.Errorf("store.badger.db_path: required when store.type is badger")
		}
	}

	if cfg.OAuth.CallbackURL != "" {
		u, err := url.Parse(cfg.OAuth.CallbackURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			return fmt.Errorf("oauth.callback_url: must be an http or https URL")
		}
	}

	if cfg.Server.Metrics.Enabled {
		if _, port, err := splitPort(cfg.Server.ListenAddress); err == nil && port == cfg.Server.Metrics.Port {
			return fmt.Errorf("server.metrics.port: %d is already used by server.listen_address", port)
		}
	}

	if cfg.Multipart.SweepInterval > cfg.Multipart.SessionTTL {
		return fmt.Errorf("multipart.sweep_interval: must not exceed multipart.session_ttl")
	}

	return nil
}

// formatValidationError converts validator errors into user-friendly messages.
func formatValidationError(err error) error {
	if validationErrs, ok := err.(validator.ValidationErrors); ok {
		if len(validationErrs) > 0 {
			e := validationErrs[0]
			// Never echo secrets back into logs.
			value := e.Value()
			if e.Tag() == "min" || e.Tag() == "required" {
				value = "<redacted>"
			}
			return fmt.Errorf("%s: validation failed on '%s' tag (value: %v)",
				e.Namespace(), e.Tag(), value)
		}
	}
	return err
}

func splitPort(addr string) (string, int, error) {
	host, p, err := net.SplitHostPort(addr)
	if err != nil {
		return "", 0, err
	}
	port, err := strconv.Atoi(p)
	if err != nil {
		return "", 0, err
	}
	return host, port, nil
}
