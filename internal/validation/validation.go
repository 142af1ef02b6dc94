// Package validation checks API input before it reaches the engine.
package validation

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"

	"keywordhub/internal/internalerr"
)

// MaxKeywordLength is the longest keyword text accepted, in characters.
const MaxKeywordLength = 100

var validate = validator.New(validator.WithRequiredStructEnabled())

// Struct validates v against its `validate` tags. Failures wrap
// internalerr.ErrValidation and name each offending field.
func Struct(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%v: %w", err, internalerr.ErrValidation)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		if fe.Param() != "" {
			msgs = append(msgs, fmt.Sprintf("%s must satisfy %s=%s", fe.Field(), fe.Tag(), fe.Param()))
		} else {
			msgs = append(msgs, fmt.Sprintf("%s must satisfy %s", fe.Field(), fe.Tag()))
		}
	}
	return fmt.Errorf("%s: %w", strings.Join(msgs, "; "), internalerr.ErrValidation)
}

// ValidateKeyword checks keyword text. Text starting with patternPrefix must
// compile as a regular expression after the prefix is removed.
func ValidateKeyword(text, patternPrefix string) (bool, string) {
	if strings.TrimSpace(text) == "" {
		return false, "Keyword text is required"
	}
	if utf8.RuneCountInString(text) > MaxKeywordLength {
		return false, fmt.Sprintf("Keyword must be at most %d characters", MaxKeywordLength)
	}
	if patternPrefix != "" && strings.HasPrefix(text, patternPrefix) {
		pattern := strings.TrimPrefix(text, patternPrefix)
		if pattern == "" {
			return false, "Keyword pattern is empty"
		}
		if _, err := regexp.Compile(pattern); err != nil {
			return false, "Keyword pattern does not compile"
		}
	}
	return true, ""
}

// NormalizeKeyword trims surrounding whitespace. Case is kept; matching
// folds case itself.
func NormalizeKeyword(keyword string) string {
	return strings.TrimSpace(keyword)
}

// ValidateURL checks if a URL is valid and uses an allowed scheme (http/https only).
// This prevents javascript:, data:, vbscript:, and other dangerous URL schemes.
func ValidateURL(urlStr string) (bool, string) {
	if urlStr == "" {
		return false, "URL is required"
	}

	u, err := url.Parse(urlStr)
	if err != nil {
		return false, "Invalid URL format"
	}

	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return false, "URL must use http:// or https:// scheme"
	}

	if u.Host == "" {
		return false, "URL must have a valid host"
	}

	return true, ""
}
