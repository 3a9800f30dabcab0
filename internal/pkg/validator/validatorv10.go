package validator

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"regexp"

	"github.com/cashkite/cashkite/internal/pkg/strcase"
	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	enTranslations "github.com/go-playground/validator/v10/translations/en"
)

var (
	// E.164: leading plus, 8 to 15 digits, no leading zero.
	rePhone = regexp.MustCompile(`^\+[1-9][0-9]{7,14}$`)

	reAlphaSpace = regexp.MustCompile(`^[a-zA-Z ]+$`)
)

// ErrTranslatorNotFound indicates the requested translator is unavailable.
var ErrTranslatorNotFound = errors.New("translator not found")

// V10ValidationError is a field-to-message map returned when validation
// fails. Keys are field names in snake_case to match the JSON casing of
// request payloads.
type V10ValidationError map[string]string

// Error renders the field map as JSON so log lines keep a parseable shape.
func (vs V10ValidationError) Error() string {
	if len(vs) == 0 {
		return "validation error"
	}

	if b, err := json.Marshal(vs); err == nil {
		return string(b)
	}

	return fmt.Sprintf("validation error: %v", map[string]string(vs))
}

// Values returns the field error map.
func (vs V10ValidationError) Values() map[string]string {
	return vs
}

// V10Validator implements Validator using go-playground/validator v10 with
// English messages and the service's custom tags.
type V10Validator struct {
	validate   *validator.Validate
	translator ut.Translator
}

// NewV10Validator constructs a ready-to-use V10Validator.
func NewV10Validator() (*V10Validator, error) {
	validate := validator.New(validator.WithRequiredStructEnabled())

	lang := en.New()
	trans, ok := ut.New(lang, lang).GetTranslator("en")
	if !ok {
		return nil, ErrTranslatorNotFound
	}

	if err := enTranslations.RegisterDefaultTranslations(validate, trans); err != nil {
		return nil, err
	}

	registerCustomRules(validate, trans)

	return &V10Validator{validate: validate, translator: trans}, nil
}

// Validate checks data against its struct tags. On failure it returns a
// V10ValidationError keyed by snake_case field name.
func (v *V10Validator) Validate(data any) error {
	err := v.validate.Struct(data)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}

	out := make(V10ValidationError, len(fieldErrs))
	for _, fe := range fieldErrs {
		out[strcase.ToLowerSnake(fe.Field())] = fe.Translate(v.translator)
	}

	return out
}

// stringRule adapts a regexp into a validator.Func for string fields.
func stringRule(re *regexp.Regexp) validator.Func {
	return func(fl validator.FieldLevel) bool {
		s, ok := fl.Field().Interface().(string)
		if !ok {
			return false
		}

		return re.MatchString(s)
	}
}

//nolint:errcheck,gosec // registration of static tags cannot fail
func registerCustomRules(validate *validator.Validate, trans ut.Translator) {
	validate.RegisterValidation("phone", stringRule(rePhone))
	registerMessage(validate, trans, "phone", "{0} must be an international phone number like +6281234567890")

	validate.RegisterValidation("alphaspace", stringRule(reAlphaSpace))
	registerMessage(validate, trans, "alphaspace", "{0} can contain only letters and spaces")
}

//nolint:errcheck,gosec,forcetypeassert // make linter silent
func registerMessage(validate *validator.Validate, trans ut.Translator, tag, msg string) {
	validate.RegisterTranslation(tag, trans,
		func(t ut.Translator) error {
			return t.Add(tag, msg, false)
		},
		func(t ut.Translator, fe validator.FieldError) string {
			out, err := t.T(fe.Tag(), fe.Field())
			if err != nil {
				slog.Warn("warning: error translating", "FieldError", fe, "error", err)

				return fe.(error).Error()
			}

			return out
		},
	)
}
