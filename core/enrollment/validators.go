package enrollment

import (
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
)

// anonymousForm is a Form submitted without a session: it must carry the password of the account to create or sign in to.
type anonymousForm struct {
	Form
}

// InitValidators registers the enrollment validators.
func InitValidators(validate *validator.Validate, _ ut.Translator) {
	validate.RegisterStructValidation(anonymousFormValidation, anonymousForm{})
}

// anonymousFormValidation only requires the password; its length is checked on the Form field.
func anonymousFormValidation(sl validator.StructLevel) {
	if form, ok := sl.Current().Interface().(anonymousForm); ok && form.Password == "" {
		sl.ReportError(form.Password, "password", "Password", "required", "")
	}
}
