// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package auth

import (
	"bufio"
	"embed"
	"fmt"
	"strings"
	"sync"
	"unicode"
)

//go:embed common_passwords.txt
var commonPasswordsFS embed.FS

var (
	commonPasswords     map[string]struct{}
	commonPasswordsOnce sync.Once
)

func loadCommonPasswords() {
	commonPasswords = make(map[string]struct{})
	file, err := commonPasswordsFS.Open("common_passwords.txt")
	if err != nil {
		return
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		password := strings.ToLower(strings.TrimSpace(scanner.Text()))
		if password != "" {
			commonPasswords[password] = struct{}{}
		}
	}
}

// PasswordValidator validates passwords against various criteria
type PasswordValidator struct {
	MinLength            int
	MaxLength            int
	RequireDigit         bool
	RequireSpecial       bool
	CheckCommonPasswords bool
	CheckUserSimilarity  bool
}

// DefaultPasswordValidator returns the policy used for registration and
// password resets. MaxLength is bcrypt's input limit.
func DefaultPasswordValidator() *PasswordValidator {
	return &PasswordValidator{
		MinLength:            12,
		MaxLength:            72,
		CheckCommonPasswords: true,
		CheckUserSimilarity:  true,
	}
}

// ValidationError represents a single password validation error
type ValidationError struct {
	Code    string
	Message string
}

func (e ValidationError) Error() string {
	return e.Message
}

// PasswordValidationError wraps multiple validation errors
type PasswordValidationError struct {
	Errors []ValidationError
}

func (e *PasswordValidationError) Error() string {
	if len(e.Errors) == 0 {
		return "password validation failed"
	}
	return e.Errors[0].Message
}

// Messages returns all error messages
func (e *PasswordValidationError) Messages() []string {
	messages := make([]string, len(e.Errors))
	for i, err := range e.Errors {
		messages[i] = err.Message
	}
	return messages
}

// ValidationResult holds all validation errors
type ValidationResult struct {
	Valid  bool
	Errors []ValidationError
}

type passwordRule struct {
	code    string
	message func(v *PasswordValidator) string
	fails   func(v *PasswordValidator, password string, attrs []string) bool
}

var passwordRules = []passwordRule{
	{
		code: "min_length",
		message: func(v *PasswordValidator) string {
			return fmt.Sprintf("Password must be at least %d characters long.", v.MinLength)
		},
		fails: func(v *PasswordValidator, p string, _ []string) bool { return len(p) < v.MinLength },
	},
	{
		code: "max_length",
		message: func(v *PasswordValidator) string {
			return fmt.Sprintf("Password must be at most %d bytes long.", v.MaxLength)
		},
		fails: func(v *PasswordValidator, p string, _ []string) bool { return v.MaxLength > 0 && len(p) > v.MaxLength },
	},
	{
		code:    "no_digit",
		message: func(*PasswordValidator) string { return "Password must contain at least one digit." },
		fails: func(v *PasswordValidator, p string, _ []string) bool {
			return v.RequireDigit && !strings.ContainsFunc(p, unicode.IsDigit)
		},
	},
	{
		code:    "no_special",
		message: func(*PasswordValidator) string { return "Password must contain at least one special character." },
		fails: func(v *PasswordValidator, p string, _ []string) bool {
			return v.RequireSpecial && !strings.ContainsFunc(p, func(r rune) bool {
				return unicode.IsPunct(r) || unicode.IsSymbol(r)
			})
		},
	},
	{
		code:    "entirely_numeric",
		message: func(*PasswordValidator) string { return "Password cannot be entirely numeric." },
		fails:   func(_ *PasswordValidator, p string, _ []string) bool { return isEntirelyNumeric(p) },
	},
	{
		code: "common_password",
		message: func(*PasswordValidator) string {
			return "This password is too common. Please choose a more secure password."
		},
		fails: func(v *PasswordValidator, p string, _ []string) bool {
			return v.CheckCommonPasswords && isCommonPassword(p)
		},
	},
	{
		code:    "too_similar",
		message: func(*PasswordValidator) string { return "Password is too similar to your personal information." },
		fails: func(v *PasswordValidator, p string, attrs []string) bool {
			return v.CheckUserSimilarity && isSimilarToUserAttributes(p, attrs)
		},
	},
}

// Validate checks a password against all configured rules.
func (v *PasswordValidator) Validate(password string, userAttributes ...string) ValidationResult {
	var errs []ValidationError
	for _, rule := range passwordRules {
		if rule.fails(v, password, userAttributes) {
			errs = append(errs, ValidationError{Code: rule.code, Message: rule.message(v)})
		}
	}
	return ValidationResult{
		Valid:  len(errs) == 0,
		Errors: errs,
	}
}

func isEntirelyNumeric(password string) bool {
	return password != "" && !strings.ContainsFunc(password, func(r rune) bool { return !unicode.IsDigit(r) })
}

func isCommonPassword(password string) bool {
	commonPasswordsOnce.Do(loadCommonPasswords)
	_, exists := commonPasswords[strings.ToLower(password)]
	return exists
}

// isSimilarToUserAttributes compares against each attribute and, for email
// addresses, their local part.
func isSimilarToUserAttributes(password string, attributes []string) bool {
	passwordLower := strings.ToLower(password)

	for _, attr := range attributes {
		candidates := []string{strings.ToLower(attr)}
		if local, _, ok := strings.Cut(candidates[0], "@"); ok && len(local) >= 3 {
			candidates = append(candidates, local)
		}

		for _, c := range candidates {
			if c == "" {
				continue
			}
			if strings.Contains(passwordLower, c) || strings.Contains(c, passwordLower) {
				return true
			}
			if similarity(passwordLower, c) > 0.7 {
				return true
			}
		}
	}

	return false
}

func similarity(a, b string) float64 {
	if a == b {
		return 1.0
	}
	if len(a) == 0 || len(b) == 0 {
		return 0.0
	}
	return float64(longestCommonSubsequence(a, b)) / float64(max(len(a), len(b)))
}

func longestCommonSubsequence(a, b string) int {
	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)

	for i := 1; i <= len(a); i++ {
		for j := 1; j <= len(b); j++ {
			if a[i-1] == b[j-1] {
				curr[j] = prev[j-1] + 1
			} else {
				curr[j] = max(prev[j], curr[j-1])
			}
		}
		prev, curr = curr, prev
	}

	return prev[len(b)]
}
