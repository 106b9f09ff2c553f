package config

import (
	"errors"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

var sqlIdentifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

// newValidator builds a validator with the custom tags used by Config.
func newValidator() *validator.Validate {
	validate := validator.New()

	// Report fields by their YAML key so errors match what users wrote.
	validate.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("yaml"), ",", 2)[0]
		if name == "" || name == "-" {
			return field.Name
		}
		return name
	})

	_ = validate.RegisterValidation("sqlident", func(fl validator.FieldLevel) bool {
		return sqlIdentifier.MatchString(fl.Field().String())
	})

	_ = validate.RegisterValidation("sqldriver", func(fl validator.FieldLevel) bool {
		switch fl.Field().String() {
		case DriverSQLServer, DriverSQLite, DriverPgx:
			return true
		default:
			return false
		}
	})

	_ = validate.RegisterValidation("datesource", func(fl validator.FieldLevel) bool {
		switch strings.ToLower(fl.Field().String()) {
		case MarketDateFromFilename, MarketDateFromModTime:
			return true
		default:
			return false
		}
	})

	_ = validate.RegisterValidation("loglevel", func(fl validator.FieldLevel) bool {
		switch strings.ToLower(fl.Field().String()) {
		case "", "debug", "info", "warn", "error", "fatal", "panic":
			return true
		default:
			return false
		}
	})

	_ = validate.RegisterValidation("logformat", func(fl validator.FieldLevel) bool {
		switch strings.ToLower(fl.Field().String()) {
		case "", "console", "text", "json":
			return true
		default:
			return false
		}
	})

	return validate
}

// validate checks that the configuration is valid
func (c *Config) validate() error {
	if err := newValidator().Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return toConfigurationError(verrs[0])
		}
		return err
	}

	if c.SQL.DSN == "" && c.SQL.Driver != DriverSQLite && c.SQL.Server == "" {
		return NewConfigurationError("", "SQL_SERVER", "required for driver "+c.SQL.Driver+" unless SQL_DSN is set")
	}

	return nil
}

func toConfigurationError(fe validator.FieldError) *ConfigurationError {
	section := ""
	// Namespace looks like Config.LOGGING.LEVEL; the middle part is the section.
	parts := strings.Split(fe.Namespace(), ".")
	if len(parts) > 2 {
		section = strings.Join(parts[1:len(parts)-1], ".")
	}

	reason := "failed '" + fe.Tag() + "' check"
	switch fe.Tag() {
	case "required", "required_without":
		reason = "required"
	case "min", "max":
		reason = "must satisfy " + fe.Tag() + "=" + fe.Param()
	}

	return NewConfigurationError(section, fe.Field(), reason)
}
