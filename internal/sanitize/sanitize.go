// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package sanitize cleans untrusted input before it is stored or rendered
// again.
package sanitize

import (
	"html"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"github.com/samber/lo"
)

// maxPasses bounds the strip/unescape loop for nested encodings.
const maxPasses = 5

var (
	// StrictPolicy drops every tag and the content of script/style.
	policy = bluemonday.StrictPolicy()

	// Browsers skip whitespace and control characters inside a scheme name.
	dangerousScheme = regexp.MustCompile(`(?i)(?:` + schemeName("javascript") + `|` +
		schemeName("vbscript") + `|\b` + schemeName("data") + `)` + schemeGap + `:`)
	eventHandler = regexp.MustCompile(`(?i)\bon\w+\s*=`)
)

const schemeGap = `[\s\x00-\x1f]*`

// schemeName matches name with control characters or whitespace allowed
// between its letters.
func schemeName(name string) string {
	letters := strings.Split(name, "")
	return strings.Join(letters, schemeGap)
}

// Sanitize strips HTML tags, dangerous URI schemes and inline event handler
// patterns from s. Entity-encoded markup is decoded and stripped again until
// the result is stable.
func Sanitize(s string) string {
	if s == "" {
		return ""
	}

	out := s
	for range maxPasses {
		next := pass(out)
		if next == out {
			return strings.TrimSpace(out)
		}
		out = next
	}

	// Still changing: keep the escaped form so no markup survives.
	return strings.TrimSpace(policy.Sanitize(out))
}

func pass(s string) string {
	s = html.UnescapeString(policy.Sanitize(s))
	s = dangerousScheme.ReplaceAllString(s, "")
	return eventHandler.ReplaceAllString(s, "")
}

// SanitizeDeep applies Sanitize to every String leaf of v. Structure and
// non-string leaves are preserved.
func SanitizeDeep(v Value) Value {
	switch t := v.(type) {
	case String:
		return String(Sanitize(string(t)))
	case List:
		out := make(List, len(t))
		for i, item := range t {
			out[i] = SanitizeDeep(item)
		}
		return out
	case Record:
		out := make(Record, len(t))
		for k, item := range t {
			out[k] = SanitizeDeep(item)
		}
		return out
	case Scalar:
		return t
	default:
		return v
	}
}

// SanitizeForStorage rejects v if any string leaf carries an SQL injection
// signature, and otherwise returns SanitizeDeep(v). The input is never
// modified. The returned error is an *InjectionError naming the field.
func SanitizeForStorage(v Value) (Value, error) {
	if err := inspect(v, ""); err != nil {
		return nil, err
	}
	return SanitizeDeep(v), nil
}

// Fields is SanitizeForStorage for flat form payloads.
func Fields(fields map[string]string) (map[string]string, error) {
	clean, err := SanitizeForStorage(FromAny(fields))
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, len(fields))
	for k, v := range clean.(Record) {
		out[k] = string(v.(String))
	}
	return out, nil
}

// inspect walks v in a deterministic order so the reported field is stable.
func inspect(v Value, path string) error {
	switch t := v.(type) {
	case String:
		if sig, ok := detectInjection(string(t)); ok {
			return &InjectionError{Field: fieldName(path), Signature: sig}
		}
	case List:
		for i, item := range t {
			if err := inspect(item, path+"["+strconv.Itoa(i)+"]"); err != nil {
				return err
			}
		}
	case Record:
		keys := lo.Keys(t)
		slices.Sort(keys)
		for _, k := range keys {
			if err := inspect(t[k], joinPath(path, k)); err != nil {
				return err
			}
		}
	}
	return nil
}

func joinPath(path, key string) string {
	if path == "" {
		return key
	}
	return path + "." + key
}

func fieldName(path string) string {
	if path == "" {
		return "value"
	}
	return path
}
