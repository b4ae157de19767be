package contributions

import (
	"errors"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
)

// MinDescriptionLength is the shortest description accepted at the creation boundary.
const MinDescriptionLength = 10

// ErrInvalidContribution indicates that a draft failed boundary validation.
var ErrInvalidContribution = errors.New("contributions: invalid contribution")

var validate = validator.New()

// Draft is the user-supplied input for a new contribution.
type Draft struct {
	Contributor          string           `validate:"required"`
	ProjectID            string           `validate:"required"`
	Type                 ContributionType `validate:"oneof=Comment Edit Remix Suggestion"`
	Description          string           `validate:"required,min=10"`
	ParentContributionID string
	Tags                 []string
}

// ValidationError maps draft fields (by their persisted names) to user-facing messages.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	names := make([]string, 0, len(e.Fields))
	for name := range e.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, name+": "+e.Fields[name])
	}
	return ErrInvalidContribution.Error() + ": " + strings.Join(parts, "; ")
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalidContribution
}

// Normalize trims free-text fields, drops blank tags and defaults the type to Comment.
func (d Draft) Normalize() Draft {
	normalized := Draft{
		Contributor:          strings.TrimSpace(d.Contributor),
		ProjectID:            strings.TrimSpace(d.ProjectID),
		Type:                 ContributionType(strings.TrimSpace(string(d.Type))),
		Description:          strings.TrimSpace(d.Description),
		ParentContributionID: strings.TrimSpace(d.ParentContributionID),
		Tags:                 normalizeTags(d.Tags),
	}
	if normalized.Type == "" {
		normalized.Type = TypeComment
	} else if parsed, err := ParseContributionType(string(normalized.Type)); err == nil {
		normalized.Type = parsed
	}
	return normalized
}

// Validate checks an already normalized draft and returns a *ValidationError on failure.
func (d Draft) Validate() error {
	err := validate.Struct(d)
	if err == nil {
		return nil
	}
	var fieldErrors validator.ValidationErrors
	if !errors.As(err, &fieldErrors) {
		return err
	}
	result := &ValidationError{Fields: make(map[string]string, len(fieldErrors))}
	for _, fieldError := range fieldErrors {
		name, message := describeFieldError(fieldError)
		result.Fields[name] = message
	}
	return result
}

func describeFieldError(fieldError validator.FieldError) (string, string) {
	switch fieldError.StructField() {
	case "Contributor":
		return "contributor", "Contributor name is required"
	case "ProjectID":
		return "projectId", "Project ID/URL is required"
	case "Type":
		return "type", "Type must be one of Comment, Edit, Remix, Suggestion"
	case "Description":
		if fieldError.Tag() == "min" {
			return "description", "Description must be at least 10 characters"
		}
		return "description", "Description is required"
	default:
		return strings.ToLower(fieldError.Field()), fieldError.Field() + " is invalid"
	}
}

// ParseTags splits a comma-separated tag list, trimming entries and dropping empty ones.
func ParseTags(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return []string{}
	}
	return normalizeTags(strings.Split(raw, ","))
}

func normalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		trimmed := strings.TrimSpace(tag)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
