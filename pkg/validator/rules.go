package validator

import (
	"fmt"
	"slices"
	"strings"
	"time"
	"unicode/utf8"
)

// RequiredString fails when value is empty after trimming whitespace.
func RequiredString(field, value string) Rule {
	return Rule{
		Check: func() bool {
			return strings.TrimSpace(value) != ""
		},
		Error: ValidationError{
			Field:          field,
			Message:        "field is required",
			TranslationKey: "validation.required",
			TranslationValues: map[string]any{
				"field": field,
			},
		},
	}
}

// MaxLenString fails when value is longer than max runes.
func MaxLenString(field, value string, max int) Rule {
	return Rule{
		Check: func() bool {
			return utf8.RuneCountInString(value) <= max
		},
		Error: ValidationError{
			Field:          field,
			Message:        fmt.Sprintf("must be at most %d characters long", max),
			TranslationKey: "validation.max_length",
			TranslationValues: map[string]any{
				"field": field,
				"max":   max,
			},
		},
	}
}

// RequiredSlice fails when the slice has no elements.
func RequiredSlice[T any](field string, value []T) Rule {
	return Rule{
		Check: func() bool {
			return len(value) > 0
		},
		Error: ValidationError{
			Field:          field,
			Message:        "must contain at least one item",
			TranslationKey: "validation.required_slice",
			TranslationValues: map[string]any{
				"field": field,
			},
		},
	}
}

// MaxItems fails when the slice has more than max elements.
func MaxItems[T any](field string, value []T, max int) Rule {
	return Rule{
		Check: func() bool {
			return len(value) <= max
		},
		Error: ValidationError{
			Field:          field,
			Message:        fmt.Sprintf("must contain at most %d items", max),
			TranslationKey: "validation.max_items",
			TranslationValues: map[string]any{
				"field": field,
				"max":   max,
				"count": len(value),
			},
		},
	}
}

// InList fails when value is not one of allowed.
func InList[T comparable](field string, value T, allowed []T) Rule {
	return Rule{
		Check: func() bool {
			return slices.Contains(allowed, value)
		},
		Error: ValidationError{
			Field:          field,
			Message:        fmt.Sprintf("must be one of %v", allowed),
			TranslationKey: "validation.in_list",
			TranslationValues: map[string]any{
				"field":   field,
				"allowed": allowed,
			},
		},
	}
}

// MinNum fails when value is below min.
func MinNum[T ~int | ~int32 | ~int64 | ~float64](field string, value, min T) Rule {
	return Rule{
		Check: func() bool {
			return value >= min
		},
		Error: ValidationError{
			Field:          field,
			Message:        fmt.Sprintf("must be at least %v", min),
			TranslationKey: "validation.min",
			TranslationValues: map[string]any{
				"field": field,
				"min":   min,
			},
		},
	}
}

// TimeAfter fails when value is set and not strictly after ref. A nil value passes.
func TimeAfter(field string, value *time.Time, ref time.Time, refName string) Rule {
	return Rule{
		Check: func() bool {
			return value == nil || value.After(ref)
		},
		Error: ValidationError{
			Field:          field,
			Message:        "must be after " + refName,
			TranslationKey: "validation.time_after",
			TranslationValues: map[string]any{
				"field": field,
				"ref":   refName,
			},
		},
	}
}

// Custom builds a rule from an arbitrary check.
func Custom(field, message, key string, check func() bool) Rule {
	return Rule{
		Check: check,
		Error: ValidationError{
			Field:          field,
			Message:        message,
			TranslationKey: key,
			TranslationValues: map[string]any{
				"field": field,
			},
		},
	}
}
