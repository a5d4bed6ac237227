package chat

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// Validation is the outcome of a pure validation check. Errors holds
// user-facing reasons and is empty when Valid is true.
type Validation struct {
	Valid  bool
	Errors []string
}

const (
	maxAuthorLen   = 50
	maxContentLen  = 500
	minUsernameLen = 3
	maxUsernameLen = 20
)

// usernamePattern allows Unicode letters, digits, spaces, underscore, and
// dash. All-whitespace names pass the pattern and are rejected separately.
var usernamePattern = regexp.MustCompile(`^[\p{L}\p{N}_\s-]+$`)

// ValidateMessage checks a message's author and content. It has no side
// effects; the store trusts its callers to have validated input.
func ValidateMessage(author, content string) Validation {
	var errs []string

	if strings.TrimSpace(author) == "" {
		errs = append(errs, "Author is required")
	}
	if strings.TrimSpace(content) == "" {
		errs = append(errs, "Message content is required")
	}
	if author != "" && utf8.RuneCountInString(author) > maxAuthorLen {
		errs = append(errs, "Author name too long (max 50 characters)")
	}
	if content != "" && utf8.RuneCountInString(content) > maxContentLen {
		errs = append(errs, "Message too long (max 500 characters)")
	}

	return Validation{Valid: len(errs) == 0, Errors: errs}
}

// ValidateUsername checks a username against the join rules: required, 3-20
// characters, and the pattern rule combined with a separate not-all-whitespace
// check.
func ValidateUsername(username string) Validation {
	var errs []string

	if strings.TrimSpace(username) == "" {
		errs = append(errs, "Username is required")
	}
	if username != "" && utf8.RuneCountInString(username) < minUsernameLen {
		errs = append(errs, "Username too short (min 3 characters)")
	}
	if utf8.RuneCountInString(username) > maxUsernameLen {
		errs = append(errs, "Username too long (max 20 characters)")
	}
	if username != "" && (!usernamePattern.MatchString(username) || strings.TrimSpace(username) == "") {
		errs = append(errs, "Username can contain letters, numbers, spaces, underscore, and dash")
	}

	return Validation{Valid: len(errs) == 0, Errors: errs}
}
