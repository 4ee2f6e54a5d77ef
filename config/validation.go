package config

import (
	"errors"
	"net"
	"regexp"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	log "github.com/sirupsen/logrus"
)

type validatable interface {
	Validate() error
}

var hostnameRegex = regexp.MustCompile(`^([a-zA-Z0-9]([a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?)(\.[a-zA-Z0-9]([a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?)*\.?$`)

func newValidator() *validator.Validate {
	validate := validator.New()
	if err := validate.RegisterValidation("host_port", validateHostPort); err != nil {
		panic(err)
	}
	return validate
}

// validateHostPort accepts host:port where host is empty, an IP literal
// (bracketed for IPv6) or an RFC 1123 hostname.
func validateHostPort(fl validator.FieldLevel) bool {
	host, port, err := net.SplitHostPort(fl.Field().String())
	if err != nil {
		return false
	}

	if _, err := strconv.ParseUint(port, 10, 16); err != nil {
		return false
	}

	if host == "" {
		return true
	}
	if net.ParseIP(strings.SplitN(host, "%", 2)[0]) != nil {
		return true
	}
	return len(host) <= 253 && hostnameRegex.MatchString(host)
}

// Validate checks the struct tags of cfg, then its own Validate method.
func Validate(cfg interface{}) error {
	if err := newValidator().Struct(cfg); err != nil {
		return err
	}
	if v, ok := cfg.(validatable); ok {
		return v.Validate()
	}
	return nil
}

func LogValidationErrors(err error) {
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		if err != nil {
			log.Errorf("ConfigError: %s", err)
		}
		return
	}

	for _, err := range validationErrors {
		fieldName := stripPrefix(err.Namespace())
		tag := err.Tag()
		switch tag {
		case "required":
			log.Errorf("ConfigError: Field %s is required but was not found", fieldName)
		default:
			log.Errorf("ConfigError: Field %s has invalid value %v: %s", fieldName, err.Value(), tag)
		}
	}
}

func stripPrefix(s string) string {
	if idx := strings.Index(s, "."); idx != -1 {
		return s[idx+1:]
	}
	return s
}
