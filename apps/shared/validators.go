package shared

import (
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/schoolms/backend/core"
	"github.com/schoolms/backend/core/user"
)

// NewValidation returns a validator with every domain validator registered, and the translator of its messages.
func NewValidation() (*validator.Validate, ut.Translator) {
	translator := core.NewTranslator()
	validate := core.NewValidator(translator)
	user.InitValidators(validate, translator)
	return validate, translator
}
