package usecase

import (
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/totegamma/customeradmin/internal/domain"
)

var validate = validator.New()

// NormalizeEmail trims and lower-cases an address so uniqueness holds
// regardless of how it was typed.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func validateEmail(email string) error {
	if err := validate.Var(email, "required,email,max=255"); err != nil {
		return errors.Wrapf(domain.ErrInvalidInput, "email %q", email)
	}
	return nil
}

func validateMetaKey(key string) error {
	if err := validate.Var(key, "required,max=255"); err != nil {
		return errors.Wrapf(domain.ErrInvalidInput, "meta key %q", key)
	}
	return nil
}

func validateStruct(v any) error {
	if err := validate.Struct(v); err != nil {
		return errors.Wrap(domain.ErrInvalidInput, err.Error())
	}
	return nil
}
