package client

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"
)

var validate *validator.Validate
var translator ut.Translator

func init() {
	validate = validator.New()
	translator, _ = ut.New(en.New(), en.New()).GetTranslator("en")
	err := en_translations.RegisterDefaultTranslations(validate, translator)
	if err != nil {
		panic(err)
	}
}

// config is the validated subset of construction input.
type config struct {
	BaseURL    string `validate:"required,url"`
	SocketPath string `validate:"omitempty,filepath"`
	UserAgent  string `validate:"omitempty,printascii"`
}

// FieldError describes one rejected construction field.
type FieldError struct {
	Field string
	Err   string
}

// FieldErrors represents a collection of field errors.
type FieldErrors []FieldError

// Error implements the error interface.
func (fe FieldErrors) Error() string {
	msgs := make([]string, 0, len(fe))
	for _, f := range fe {
		msgs = append(msgs, fmt.Sprintf("%s: %s", f.Field, f.Err))
	}

	return strings.Join(msgs, "; ")
}

// check validates cfg and parses its base URL, which must be absolute
// with a host.
func (cfg config) check() (*url.URL, error) {
	if err := validate.Struct(cfg); err != nil {
		var verrors validator.ValidationErrors
		if !errors.As(err, &verrors) {
			return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
		}

		fields := make(FieldErrors, 0, len(verrors))
		for _, verror := range verrors {
			fields = append(fields, FieldError{
				Field: verror.Field(),
				Err:   verror.Translate(translator),
			})
		}

		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, fields)
	}

	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("%w: base url %q: %w", ErrInvalidConfig, cfg.BaseURL, err)
	}
	if !base.IsAbs() || base.Host == "" {
		return nil, fmt.Errorf("%w: base url %q must be absolute", ErrInvalidConfig, cfg.BaseURL)
	}

	return base, nil
}
