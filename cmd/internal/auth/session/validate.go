package session

import (
	"errors"
	"fmt"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"

	"affittochiaro/cmd/identity"
	"affittochiaro/cmd/security/password"
)

// RegisterParams is the sign-up form. Tenant accounts need first and last
// name; agency accounts need the agency name. Everything role-specific is
// passed to the provider as attributes.
type RegisterParams struct {
	Email      string        `json:"email"`
	Password   string        `json:"password"`
	Role       identity.Role `json:"role"`
	FirstName  string        `json:"firstName"`
	LastName   string        `json:"lastName"`
	Phone      string        `json:"phone"`
	City       string        `json:"city"`
	AgencyName string        `json:"agencyName"`
	VATNumber  string        `json:"vatNumber"`
}

// Validate checks the form against policy.
func (p RegisterParams) Validate(policy password.Policy) error {
	fields := []*validation.FieldRules{
		validation.Field(&p.Email, validation.Required.Error(msgEmailRequired), is.Email.Error(msgEmailInvalid)),
		validation.Field(&p.Password, validation.Required.Error(msgPasswordRequired), validation.By(passwordRule(policy))),
		validation.Field(&p.Role,
			validation.Required.Error(msgRoleInvalid),
			validation.In(identity.RoleTenant, identity.RoleAgency).Error(msgRoleInvalid),
		),
	}

	switch p.Role {
	case identity.RoleTenant:
		fields = append(fields,
			validation.Field(&p.FirstName, validation.Required.Error(msgFirstNameRequired)),
			validation.Field(&p.LastName, validation.Required.Error(msgLastNameRequired)),
		)
	case identity.RoleAgency:
		fields = append(fields, validation.Field(&p.AgencyName, validation.Required.Error(msgAgencyRequired)))
	}

	return validation.ValidateStruct(&p, fields...)
}

// Attributes returns the role-specific fields. Empty values are omitted.
func (p RegisterParams) Attributes() map[string]string {
	attrs := map[string]string{}
	put := func(k, v string) {
		if v = strings.TrimSpace(v); v != "" {
			attrs[k] = v
		}
	}

	put("phone", p.Phone)
	put("city", p.City)
	switch p.Role {
	case identity.RoleTenant:
		put("firstName", p.FirstName)
		put("lastName", p.LastName)
	case identity.RoleAgency:
		put("agencyName", p.AgencyName)
		put("vatNumber", p.VATNumber)
	}
	return attrs
}

type loginInput struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (in loginInput) Validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.Email, validation.Required.Error(msgEmailRequired), is.Email.Error(msgEmailInvalid)),
		validation.Field(&in.Password, validation.Required.Error(msgPasswordRequired)),
	)
}

type codeInput struct {
	Email string `json:"email"`
	Code  string `json:"code"`
}

func (in codeInput) Validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.Email, validation.Required.Error(msgEmailRequired), is.Email.Error(msgEmailInvalid)),
		validation.Field(&in.Code, validation.Required.Error(msgCodeRequired)),
	)
}

type emailInput struct {
	Email string `json:"email"`
}

func (in emailInput) Validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.Email, validation.Required.Error(msgEmailRequired), is.Email.Error(msgEmailInvalid)),
	)
}

type resetInput struct {
	Email       string `json:"email"`
	Code        string `json:"code"`
	NewPassword string `json:"newPassword"`
}

func (in resetInput) validate(policy password.Policy) error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.Email, validation.Required.Error(msgEmailRequired), is.Email.Error(msgEmailInvalid)),
		validation.Field(&in.Code, validation.Required.Error(msgCodeRequired)),
		validation.Field(&in.NewPassword, validation.Required.Error(msgPasswordRequired), validation.By(passwordRule(policy))),
	)
}

func passwordRule(policy password.Policy) validation.RuleFunc {
	return func(value interface{}) error {
		pw, _ := value.(string)
		if pw == "" {
			return nil
		}
		switch err := policy.Validate(pw); {
		case err == nil:
			return nil
		case errors.Is(err, password.ErrPasswordTooShort):
			return fmt.Errorf(msgPasswordShort, policy.MinLength)
		case errors.Is(err, password.ErrPasswordTooLong):
			return fmt.Errorf(msgPasswordLong, policy.MaxLength)
		case errors.Is(err, password.ErrMissingClass):
			return errors.New(msgPasswordMixed)
		default:
			return errors.New(msgPasswordWeak)
		}
	}
}

// fieldOrder decides which failure is reported when several fields fail.
var fieldOrder = []string{"email", "password", "newPassword", "code", "role", "firstName", "lastName", "agencyName"}

// validationError turns an ozzo result into an AuthError carrying the first
// failing field's message.
func validationError(op string, err error) *AuthError {
	if err == nil {
		return nil
	}

	var errs validation.Errors
	if !errors.As(err, &errs) {
		return &AuthError{Kind: KindValidation, Op: op, Message: msgUnknown, Err: err}
	}
	for _, f := range fieldOrder {
		if fe, ok := errs[f]; ok && fe != nil {
			return &AuthError{Kind: KindValidation, Op: op, Field: f, Message: fe.Error(), Err: err}
		}
	}
	for f, fe := range errs {
		return &AuthError{Kind: KindValidation, Op: op, Field: f, Message: fe.Error(), Err: err}
	}
	return nil
}
