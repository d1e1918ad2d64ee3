// Package apperr defines the error kinds surfaced to the screens and commands
// that initiate schedule loads, refreshes and storage writes.
package apperr

import (
	"errors"
	"fmt"
	"strings"
)

type Kind string

const (
	KindUnknown              Kind = ""
	KindSchemaValidation     Kind = "schema_validation"
	KindEmptySchedule        Kind = "empty_schedule"
	KindNetworkFailure       Kind = "network_failure"
	KindAccessBlocked        Kind = "access_blocked"
	KindStorageQuotaExceeded Kind = "storage_quota_exceeded"
	KindStorageFailure       Kind = "storage_failure"
	KindNotFound             Kind = "not_found"
	KindPermissionDenied     Kind = "permission_denied"
	KindUnsupported          Kind = "unsupported"
)

// Issue is a single schema problem at a dotted document path.
type Issue struct {
	Path    string `json:"path"`
	Message string `json:"message"`
}

func (i Issue) String() string {
	if i.Path == "" {
		return i.Message
	}
	return i.Path + ": " + i.Message
}

// Error is the typed error carried across package boundaries.
type Error struct {
	Kind   Kind
	Op     string
	Msg    string
	Issues []Issue
	Err    error
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	switch {
	case e.Msg != "":
		b.WriteString(e.Msg)
	case e.Err != nil:
		b.WriteString(e.Err.Error())
	default:
		b.WriteString(string(e.Kind))
	}
	if len(e.Issues) > 0 {
		parts := make([]string, 0, len(e.Issues))
		for _, is := range e.Issues {
			parts = append(parts, is.String())
		}
		b.WriteString(": ")
		b.WriteString(strings.Join(parts, " | "))
	}
	if e.Msg != "" && e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// E builds an *Error of the given kind.
func E(kind Kind, op, msg string, err error) *Error {
	return &Error{Kind: kind, Op: op, Msg: msg, Err: err}
}

// Schema builds a SchemaValidation error listing every issue.
func Schema(op string, issues []Issue) *Error {
	return &Error{Kind: KindSchemaValidation, Op: op, Msg: "schema validation failed", Issues: issues}
}

func NotFound(op, what string) *Error {
	return &Error{Kind: KindNotFound, Op: op, Msg: fmt.Sprintf("%s not found", what)}
}

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// Is reports whether err carries the given kind. AccessBlocked is also a
// NetworkFailure.
func Is(err error, kind Kind) bool {
	k := KindOf(err)
	if k == kind {
		return true
	}
	return kind == KindNetworkFailure && k == KindAccessBlocked
}

// IssuesOf returns the schema issues carried by err, if any.
func IssuesOf(err error) []Issue {
	var e *Error
	if errors.As(err, &e) {
		return e.Issues
	}
	return nil
}

// Guidance returns a user-facing remediation hint for kinds that have one.
func Guidance(err error) string {
	switch KindOf(err) {
	case KindAccessBlocked:
		return "The server refused this client. Download the JSON file in a browser and use `confsched import` instead."
	case KindStorageQuotaExceeded:
		return "Storage quota exceeded. Free disk space, remove schedules from the library, or raise storage.max_bytes."
	case KindEmptySchedule:
		return "The feed loaded but contained no sessions; check that the URL points at a day/room/event schedule JSON."
	case KindPermissionDenied:
		return "Notifications are not enabled. Start a desktop notification service and run `confsched reminders enable-notifications`."
	default:
		return ""
	}
}
