package validation

import (
	"strings"

	validatorv10 "github.com/go-playground/validator/v10"
)

// New returns a configured validator with custom struct-level validation registered.
func New() *validatorv10.Validate {
	v := validatorv10.New()

	v.RegisterStructValidation(createTicketStructValidation, CreateTicketRequest{})
	v.RegisterStructValidation(credentialsStructValidation, CredentialsRequest{})

	return v
}

// createTicketStructValidation rejects descriptions that are only whitespace.
func createTicketStructValidation(sl validatorv10.StructLevel) {
	req := sl.Current().Interface().(CreateTicketRequest)
	if req.Description != "" && strings.TrimSpace(req.Description) == "" {
		sl.ReportError(req.Description, "description", "Description", "not_blank", "")
	}
}

// credentialsStructValidation keeps usernames free of key separators.
func credentialsStructValidation(sl validatorv10.StructLevel) {
	req := sl.Current().Interface().(CredentialsRequest)
	if strings.ContainsAny(req.Username, "#/") {
		sl.ReportError(req.Username, "username", "Username", "no_key_separator", "")
	}
}
