// Package validation implements the pure input predicates shared by the
// signaling server: display names, room ids, room passwords, and custom
// message types. Each predicate returns either nil (valid) or a *Refusal
// carrying a stable code, a human-readable reason, and the offending value.
package validation

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

// Stable refusal codes. Clients and embedders may match on these; the
// reasons are informational only.
const (
	CodeDisplayNameEmpty   = "DISPLAY_NAME_EMPTY"
	CodeDisplayNameTooLong = "DISPLAY_NAME_TOO_LONG"

	CodeRoomIDEmpty          = "ROOM_ID_EMPTY"
	CodeRoomIDTooLong        = "ROOM_ID_TOO_LONG"
	CodeRoomIDInvalidPattern = "ROOM_ID_INVALID_PATTERN"

	CodePasswordEmpty    = "PASSWORD_EMPTY"
	CodePasswordTooShort = "PASSWORD_TOO_SHORT"
	CodePasswordTooLong  = "PASSWORD_TOO_LONG"

	CodeCustomTypeEmpty          = "CUSTOM_TYPE_EMPTY"
	CodeCustomTypeTooLong        = "CUSTOM_TYPE_TOO_LONG"
	CodeCustomTypeInvalidPattern = "CUSTOM_TYPE_INVALID_PATTERN"
)

// Limits, in code units of the input string.
const (
	MaxDisplayNameLength = 50
	MaxRoomIDLength      = 64
	MinPasswordLength    = 4
	MaxPasswordLength    = 128
	MaxCustomTypeLength  = 32
)

var (
	roomIDPattern     = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)
	customTypePattern = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)
)

// Refusal is a structured validation failure.
type Refusal struct {
	Code   string
	Reason string
	Value  string
}

// Error satisfies the error interface so refusals can cross package
// boundaries as errors without losing the code.
func (r *Refusal) Error() string {
	return fmt.Sprintf("%s: %s", r.Code, r.Reason)
}

func refuse(code, reason, value string) *Refusal {
	return &Refusal{Code: code, Reason: reason, Value: value}
}

// DisplayName checks a display name after whitespace trimming: non-empty,
// at most MaxDisplayNameLength code units. Callers that persist the name
// should persist the trimmed form (see TrimDisplayName).
func DisplayName(s string) *Refusal {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return refuse(CodeDisplayNameEmpty, "display name must not be empty", s)
	}
	if utf8.RuneCountInString(trimmed) > MaxDisplayNameLength {
		return refuse(CodeDisplayNameTooLong,
			fmt.Sprintf("display name must be at most %d characters", MaxDisplayNameLength), s)
	}
	return nil
}

// TrimDisplayName returns the canonical (trimmed) form of a display name.
func TrimDisplayName(s string) string {
	return strings.TrimSpace(s)
}

// RoomID checks a room id: non-empty, at most MaxRoomIDLength code units,
// and matching ^[A-Za-z0-9_-]+$.
func RoomID(s string) *Refusal {
	if s == "" {
		return refuse(CodeRoomIDEmpty, "room id must not be empty", s)
	}
	if utf8.RuneCountInString(s) > MaxRoomIDLength {
		return refuse(CodeRoomIDTooLong,
			fmt.Sprintf("room id must be at most %d characters", MaxRoomIDLength), s)
	}
	if !roomIDPattern.MatchString(s) {
		return refuse(CodeRoomIDInvalidPattern,
			"room id may only contain letters, digits, underscores and hyphens", s)
	}
	return nil
}

// Password checks a room password: non-empty and between MinPasswordLength
// and MaxPasswordLength code units.
func Password(s string) *Refusal {
	if s == "" {
		return refuse(CodePasswordEmpty, "password must not be empty", s)
	}
	n := utf8.RuneCountInString(s)
	if n < MinPasswordLength {
		return refuse(CodePasswordTooShort,
			fmt.Sprintf("password must be at least %d characters", MinPasswordLength), s)
	}
	if n > MaxPasswordLength {
		return refuse(CodePasswordTooLong,
			fmt.Sprintf("password must be at most %d characters", MaxPasswordLength), s)
	}
	return nil
}

// CustomType checks the application-defined type tag of CUSTOM messages:
// non-empty, at most MaxCustomTypeLength code units, matching
// ^[A-Za-z0-9._-]+$.
func CustomType(s string) *Refusal {
	if s == "" {
		return refuse(CodeCustomTypeEmpty, "custom type must not be empty", s)
	}
	if utf8.RuneCountInString(s) > MaxCustomTypeLength {
		return refuse(CodeCustomTypeTooLong,
			fmt.Sprintf("custom type must be at most %d characters", MaxCustomTypeLength), s)
	}
	if !customTypePattern.MatchString(s) {
		return refuse(CodeCustomTypeInvalidPattern,
			"custom type may only contain letters, digits, dots, underscores and hyphens", s)
	}
	return nil
}
