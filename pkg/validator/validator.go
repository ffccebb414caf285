// Package validator provides struct validation utilities with custom
// validators for the permission engine's domain types.
package validator

import (
	stderrors "errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/dealgrid/api/pkg/domain/assignment"
	"github.com/dealgrid/api/pkg/domain/permission"
	"github.com/dealgrid/api/pkg/domain/tenant"
)

// roleNameRegex validates role and bundle names: letters, numbers,
// spaces, hyphens; must start with a letter or number.
var roleNameRegex = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9 _-]*$`)

// Validator wraps the go-playground validator with custom validations.
type Validator struct {
	validate *validator.Validate
}

// ValidationError represents a single field validation error.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

// Error implements the error interface.
func (v ValidationErrors) Error() string {
	if len(v) == 0 {
		return ""
	}
	var sb strings.Builder
	for i, e := range v {
		if i > 0 {
			sb.WriteString("; ")
		}
		sb.WriteString(fmt.Sprintf("%s: %s", e.Field, e.Message))
	}
	return sb.String()
}

// New creates a new Validator with custom validators registered.
func New() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())

	_ = v.RegisterValidation("permission_key", validatePermissionKey)
	_ = v.RegisterValidation("tenant_kind", validateTenantKind)
	_ = v.RegisterValidation("relationship_kind", validateRelationshipKind)
	_ = v.RegisterValidation("override_effect", validateOverrideEffect)
	_ = v.RegisterValidation("entity_name", validateEntityName)

	return &Validator{validate: v}
}

// Validate validates a struct and returns ValidationErrors on failure.
func (v *Validator) Validate(s interface{}) error {
	err := v.validate.Struct(s)
	if err == nil {
		return nil
	}

	var validationErrors validator.ValidationErrors
	if !stderrors.As(err, &validationErrors) {
		return err
	}

	result := make(ValidationErrors, 0, len(validationErrors))
	for _, fe := range validationErrors {
		result = append(result, ValidationError{
			Field:   strings.ToLower(fe.Field()),
			Message: messageFor(fe),
		})
	}
	return result
}

func messageFor(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		return fmt.Sprintf("must be at least %s characters", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s characters", fe.Param())
	case "uuid":
		return "must be a valid UUID"
	case "permission_key":
		return "is not a known permission key"
	case "tenant_kind":
		return "must be one of: platform_owner, merchant, supplier, broker"
	case "relationship_kind":
		return "must be one of: supply, brokerage, resale"
	case "override_effect":
		return "must be ALLOW or DENY"
	case "entity_name":
		return "contains invalid characters"
	case "dive":
		return "contains an invalid element"
	default:
		return fmt.Sprintf("failed %s validation", fe.Tag())
	}
}

func validatePermissionKey(fl validator.FieldLevel) bool {
	_, ok := permission.Parse(fl.Field().String())
	return ok
}

func validateTenantKind(fl validator.FieldLevel) bool {
	_, err := tenant.ParseKind(fl.Field().String())
	return err == nil
}

func validateRelationshipKind(fl validator.FieldLevel) bool {
	_, err := tenant.ParseRelationshipKind(fl.Field().String())
	return err == nil
}

func validateOverrideEffect(fl validator.FieldLevel) bool {
	_, err := assignment.ParseEffect(fl.Field().String())
	return err == nil
}

func validateEntityName(fl validator.FieldLevel) bool {
	return roleNameRegex.MatchString(fl.Field().String())
}
