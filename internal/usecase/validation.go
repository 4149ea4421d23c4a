package usecase

import (
	"fmt"
	"net/mail"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"github.com/xavierca1/ligue-crm/internal/entity"
)

var nonDigits = regexp.MustCompile(`\D`)

type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func ValidateCreateLeadInput(input CreateLeadInput) []ValidationError {
	var errors []ValidationError

	errors = append(errors, validateName(input.Name)...)
	errors = append(errors, validateEmail(input.Email)...)

	if strings.TrimSpace(input.Company) != "" && len(input.Company) > 200 {
		errors = append(errors, ValidationError{"company", "must not exceed 200 characters"})
	}
	if strings.TrimSpace(input.Phone) != "" && !isValidPhoneNumber(input.Phone) {
		errors = append(errors, ValidationError{"phone", "must be a valid phone number"})
	}
	if input.Value != nil && *input.Value < 0 {
		errors = append(errors, ValidationError{"value", "must not be negative"})
	}
	errors = append(errors, validateTags(input.Tags)...)

	owner := input.AssignedTo
	if owner == "" {
		owner = input.CurrentUserID
	}
	errors = append(errors, validateOwner(owner)...)

	return errors
}

func ValidateLeadPatch(patch entity.LeadPatch) []ValidationError {
	var errors []ValidationError

	if patch.IsEmpty() {
		return append(errors, ValidationError{"body", "at least one field is required"})
	}
	if patch.Name != nil {
		errors = append(errors, validateName(*patch.Name)...)
	}
	if patch.Email != nil {
		errors = append(errors, validateEmail(*patch.Email)...)
	}
	if patch.Phone != nil && strings.TrimSpace(*patch.Phone) != "" && !isValidPhoneNumber(*patch.Phone) {
		errors = append(errors, ValidationError{"phone", "must be a valid phone number"})
	}
	if patch.Value != nil && *patch.Value < 0 {
		errors = append(errors, ValidationError{"value", "must not be negative"})
	}
	if patch.Tags != nil {
		errors = append(errors, validateTags(*patch.Tags)...)
	}
	if patch.AssignedTo != nil {
		errors = append(errors, validateOwner(*patch.AssignedTo)...)
	}

	return errors
}

func validationDomainError(errs []ValidationError) *DomainError {
	parts := make([]string, 0, len(errs))
	for _, e := range errs {
		parts = append(parts, e.Field+" ("+e.Message+")")
	}
	return &DomainError{
		Code:    CodeValidation,
		Message: "validation failed: " + strings.Join(parts, ", "),
	}
}

func validateName(name string) []ValidationError {
	name = strings.TrimSpace(name)
	switch {
	case name == "":
		return []ValidationError{{"name", "is required"}}
	case len(name) > 200:
		return []ValidationError{{"name", "must not exceed 200 characters"}}
	}
	return nil
}

func validateEmail(email string) []ValidationError {
	if strings.TrimSpace(email) == "" {
		return []ValidationError{{"email", "is required"}}
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return []ValidationError{{"email", "is invalid"}}
	}
	return nil
}

func validateTags(tags []string) []ValidationError {
	for _, tag := range tags {
		if strings.TrimSpace(tag) == "" {
			return []ValidationError{{"tags", "must not contain empty values"}}
		}
	}
	return nil
}

// validateOwner accepts an empty owner (unassigned) or a user UUID.
func validateOwner(owner string) []ValidationError {
	if owner == "" {
		return nil
	}
	if _, err := uuid.Parse(owner); err != nil {
		return []ValidationError{{"assigned_to", "must be a user id"}}
	}
	return nil
}

// isValidPhoneNumber accepts DDD + number: 10 digits for landlines, 11 for mobiles.
func isValidPhoneNumber(phone string) bool {
	cleaned := nonDigits.ReplaceAllString(phone, "")
	return len(cleaned) >= 10 && len(cleaned) <= 11
}
