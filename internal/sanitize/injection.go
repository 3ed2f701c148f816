// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package sanitize

import (
	"fmt"
	"regexp"
	"strings"
)

// InjectionError reports a field that matched an SQL injection signature.
// The offending value is deliberately not included.
type InjectionError struct {
	Field     string
	Signature string
}

func (e *InjectionError) Error() string {
	return fmt.Sprintf("field %q contains a disallowed pattern", e.Field)
}

type signature struct {
	name string
	re   *regexp.Regexp
}

// operand is a quoted string, a number or a bare word.
const operand = `'[^']*'?|"[^"]*"?|\d+(?:\.\d+)?\b|\w+`

// Quote characters are only suspicious next to SQL syntax, so names such as
// O'Brien pass.
var signatures = []signature{
	{"quote_terminator", regexp.MustCompile(`['"` + "`" + `]\s*(?:;|--|/\*|#)`)},
	{"quote_boolean", regexp.MustCompile(`(?i)['"` + "`" + `]\s*\)?\s*\b(?:or|and)\b\s+\S`)},
	{"line_comment", regexp.MustCompile(`--(?:\s|$)`)},
	{"block_comment", regexp.MustCompile(`/\*|\*/`)},
	{"stacked_query", regexp.MustCompile(`(?i);\s*(?:drop|delete|insert|update|select|alter|create|truncate|exec|execute|shutdown)\b`)},
	{"union_select", regexp.MustCompile(`(?i)\bunion\b(?:\s+all)?\s+select\b`)},
	{"tautology", regexp.MustCompile(`(?i)\b(?:or|and)\b\s+(` + operand + `)\s*(<>|!=|<=|>=|=|<|>|\blike\b)\s*(` + operand + `)`)},
	{"stored_procedure", regexp.MustCompile(`(?i)\b(?:xp|sp)_\w+|\bexec(?:ute)?\s*\(|\bexec\s+(?:xp|sp)_`)},
	{"sleep_benchmark", regexp.MustCompile(`(?i)\b(?:sleep|benchmark|pg_sleep|waitfor\s+delay)\s*\(`)},
}

// detectInjection returns the name of the first matching signature.
func detectInjection(s string) (string, bool) {
	for _, sig := range signatures {
		if sig.name == "tautology" {
			if isTautology(sig.re, s) {
				return sig.name, true
			}
			continue
		}
		if sig.re.MatchString(s) {
			return sig.name, true
		}
	}
	return "", false
}

// isTautology matches boolean comparisons an attacker appends to a WHERE
// clause. Two literals compared with any operator ("or 2>1", "or 'a'<>'b")
// always qualify. Bare words only qualify when compared equal to
// themselves, which keeps prose like "or role = lead" out.
func isTautology(re *regexp.Regexp, s string) bool {
	for _, m := range re.FindAllStringSubmatch(s, -1) {
		left, op, right := m[1], strings.ToLower(m[2]), m[3]
		if isLiteral(left) && isLiteral(right) {
			return true
		}
		if (op == "=" || op == "like") && unquote(left) == unquote(right) {
			return true
		}
	}
	return false
}

func isLiteral(s string) bool {
	if s == "" {
		return false
	}
	return s[0] == '\'' || s[0] == '"' || (s[0] >= '0' && s[0] <= '9' && strings.Trim(s, "0123456789.") == "")
}

func unquote(s string) string {
	return strings.Trim(s, `'"`)
}
