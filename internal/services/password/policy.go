// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package password holds the password policy and hasher shared by every
// endpoint that accepts a new password.
package password

import (
	"bufio"
	"embed"
	"fmt"
	"strings"
	"unicode"
)

//go:embed common_passwords.txt
var commonPasswordsFS embed.FS

var commonPasswords = loadCommonPasswords()

func loadCommonPasswords() map[string]struct{} {
	set := make(map[string]struct{})
	file, err := commonPasswordsFS.Open("common_passwords.txt")
	if err != nil {
		return set
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		if word := strings.ToLower(strings.TrimSpace(scanner.Text())); word != "" {
			set[word] = struct{}{}
		}
	}
	return set
}

// Violation codes.
const (
	CodeMinLength       = "min_length"
	CodeMaxLength       = "max_length"
	CodeNoUppercase     = "no_uppercase"
	CodeNoLowercase     = "no_lowercase"
	CodeNoDigit         = "no_digit"
	CodeNoSpecial       = "no_special"
	CodeEntirelyNumeric = "entirely_numeric"
	CodeCommon          = "common_password"
	CodeTooSimilar      = "too_similar"
)

// minAttributeLength skips short name fragments in the similarity check.
const minAttributeLength = 3

// MaxBytes is the longest password bcrypt accepts.
const MaxBytes = 72

// Policy is the single password rule set.
type Policy struct {
	MinLength            int
	MaxBytes             int // counted in bytes, not characters
	RequireUppercase     bool
	RequireLowercase     bool
	RequireDigit         bool
	RequireSpecial       bool
	CheckCommonPasswords bool
	CheckUserSimilarity  bool
}

// DefaultPolicy requires 8 characters with upper, lower, digit and special
// characters, and at most MaxBytes bytes.
func DefaultPolicy() *Policy {
	return &Policy{
		MinLength:            8,
		MaxBytes:             MaxBytes,
		RequireUppercase:     true,
		RequireLowercase:     true,
		RequireDigit:         true,
		RequireSpecial:       true,
		CheckCommonPasswords: true,
		CheckUserSimilarity:  true,
	}
}

// Violation is a single failed rule.
type Violation struct {
	Code    string
	Message string
}

// PolicyError lists every rule a password failed, plus the full rule set
// for display.
type PolicyError struct {
	Violations   []Violation
	Requirements []string
}

func (e *PolicyError) Error() string {
	if len(e.Violations) == 0 {
		return "password does not meet requirements"
	}
	return e.Violations[0].Message
}

// Messages returns the violation messages in rule order.
func (e *PolicyError) Messages() []string {
	out := make([]string, 0, len(e.Violations))
	for _, v := range e.Violations {
		out = append(out, v.Message)
	}
	return out
}

// Check validates password and returns a *PolicyError on failure.
// userAttributes are values like email or names the password must not resemble.
func (p *Policy) Check(password string, userAttributes ...string) error {
	violations := p.Violations(password, userAttributes...)
	if len(violations) == 0 {
		return nil
	}
	return &PolicyError{Violations: violations, Requirements: p.HelpTexts()}
}

// Violations returns all failed rules for password.
func (p *Policy) Violations(password string, userAttributes ...string) []Violation {
	var out []Violation
	add := func(code, msg string) {
		out = append(out, Violation{Code: code, Message: msg})
	}

	if len([]rune(password)) < p.MinLength {
		add(CodeMinLength, fmt.Sprintf("Password must be at least %d characters long.", p.MinLength))
	}
	if p.MaxBytes > 0 && len(password) > p.MaxBytes {
		add(CodeMaxLength, fmt.Sprintf("Password must be at most %d bytes long.", p.MaxBytes))
	}

	classes := classify(password)
	if p.RequireUppercase && !classes.upper {
		add(CodeNoUppercase, "Password must contain at least one uppercase letter.")
	}
	if p.RequireLowercase && !classes.lower {
		add(CodeNoLowercase, "Password must contain at least one lowercase letter.")
	}
	if p.RequireDigit && !classes.digit {
		add(CodeNoDigit, "Password must contain at least one digit.")
	}
	if p.RequireSpecial && !classes.special {
		add(CodeNoSpecial, "Password must contain at least one special character.")
	}
	if password != "" && classes.onlyDigits {
		add(CodeEntirelyNumeric, "Password cannot be entirely numeric.")
	}
	if p.CheckCommonPasswords && isCommon(password) {
		add(CodeCommon, "This password is too common. Please choose a more secure password.")
	}
	if p.CheckUserSimilarity && resemblesAny(password, userAttributes) {
		add(CodeTooSimilar, "Password is too similar to your personal information.")
	}

	return out
}

// HelpTexts describes the active rules for display next to a password field.
func (p *Policy) HelpTexts() []string {
	texts := []string{fmt.Sprintf("At least %d characters", p.MinLength)}
	if p.MaxBytes > 0 {
		texts = append(texts, fmt.Sprintf("At most %d bytes", p.MaxBytes))
	}
	if p.RequireUppercase {
		texts = append(texts, "At least one uppercase letter")
	}
	if p.RequireLowercase {
		texts = append(texts, "At least one lowercase letter")
	}
	if p.RequireDigit {
		texts = append(texts, "At least one digit")
	}
	if p.RequireSpecial {
		texts = append(texts, "At least one special character")
	}
	texts = append(texts, "Cannot be entirely numeric")
	if p.CheckCommonPasswords {
		texts = append(texts, "Not a commonly used password")
	}
	if p.CheckUserSimilarity {
		texts = append(texts, "Not too similar to your name or email")
	}
	return texts
}

type charClasses struct {
	upper, lower, digit, special bool
	onlyDigits                   bool
}

func classify(s string) charClasses {
	c := charClasses{onlyDigits: true}
	for _, r := range s {
		switch {
		case unicode.IsUpper(r):
			c.upper = true
		case unicode.IsLower(r):
			c.lower = true
		case unicode.IsDigit(r):
			c.digit = true
		case unicode.IsPunct(r) || unicode.IsSymbol(r) || unicode.IsSpace(r):
			c.special = true
		}
		if !unicode.IsDigit(r) {
			c.onlyDigits = false
		}
	}
	return c
}

func isCommon(password string) bool {
	_, ok := commonPasswords[strings.ToLower(password)]
	return ok
}

// resemblesAny compares the password with each attribute and, for email
// addresses, with the local part.
func resemblesAny(password string, attributes []string) bool {
	pw := strings.ToLower(password)
	if pw == "" {
		return false
	}
	for _, attr := range attributes {
		candidates := []string{strings.ToLower(strings.TrimSpace(attr))}
		if local, _, ok := strings.Cut(candidates[0], "@"); ok {
			candidates = append(candidates, local)
		}
		for _, c := range candidates {
			if len(c) < minAttributeLength {
				continue
			}
			if strings.Contains(pw, c) || strings.Contains(c, pw) || ratio(pw, c) > 0.7 {
				return true
			}
		}
	}
	return false
}

// ratio is the longest common subsequence length relative to the longer string.
func ratio(a, b string) float64 {
	if a == b {
		return 1
	}
	if a == "" || b == "" {
		return 0
	}

	// Two rolling rows are enough for the LCS length.
	prev := make([]int, len(b)+1)
	cur := make([]int, len(b)+1)
	for i := 1; i <= len(a); i++ {
		for j := 1; j <= len(b); j++ {
			if a[i-1] == b[j-1] {
				cur[j] = prev[j-1] + 1
			} else {
				cur[j] = max(prev[j], cur[j-1])
			}
		}
		prev, cur = cur, prev
	}

	return float64(prev[len(b)]) / float64(max(len(a), len(b)))
}
