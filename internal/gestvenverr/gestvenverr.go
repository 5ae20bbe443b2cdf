// Copyright (C) 2021-2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

// Package gestvenverr defines the error kinds shared across the gestvenv core.
//
// Every operation that can fail for a reason a caller should branch on returns
// (or wraps) one of these kinds, never a bare string or a package-private
// sentinel. Callers inspect kinds with errors.Is/errors.As, never by matching
// error text.
package gestvenverr

import (
	"errors"
	"fmt"
)

// Kind identifies the category of failure, per spec.md §7.
type Kind int

const (
	// Validation means an input (name, version string, requirement, path)
	// failed a stated regex or range check.
	Validation Kind = iota
	// NotFound means an interpreter, environment, or cache entry requested
	// by name/path does not exist.
	NotFound
	// Backend means an installer subprocess exited non-zero, timed out, or
	// was unavailable.
	Backend
	// Integrity means a cached artifact's hash did not match, the registry
	// or index failed to parse, or a required on-disk file was missing.
	Integrity
	// Permission means a filesystem probe reported missing read/write
	// rights, or a destructive operation targeted a protected path.
	Permission
	// Config means the config file was malformed in a way that prevented
	// safe defaults.
	Config
)

func (k Kind) String() string {
	switch k {
	case Validation:
		return "ValidationError"
	case NotFound:
		return "NotFound"
	case Backend:
		return "BackendError"
	case Integrity:
		return "IntegrityError"
	case Permission:
		return "PermissionError"
	case Config:
		return "ConfigError"
	default:
		return "UnknownError"
	}
}

// Error is the single uniform error type returned across package boundaries.
// It carries a Kind for programmatic dispatch plus an optional wrapped cause.
type Error struct {
	Kind    Kind
	Message string
	Cause   error

	// Backend-specific detail: the backend name and the captured stderr
	// tail. Empty unless Kind == Backend. No exit category is recorded.
	BackendName string
	StderrTail  string
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// kindMatches reports whether e carries kind k. It backs the package-level
// Is(err, kind) helper below; errors.Is cannot match a bare Kind value.
func (e *Error) kindMatches(k Kind) bool { return e.Kind == k }

// New constructs an *Error of the given kind.
func New(k Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: k, Message: fmt.Sprintf(format, args...)}
}

// Wrap constructs an *Error of the given kind, wrapping cause.
func Wrap(k Kind, cause error, format string, args ...interface{}) *Error {
	return &Error{Kind: k, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// WrapBackend constructs a Backend-kind error carrying the backend's name and
// a truncated stderr tail, per spec.md §7.
func WrapBackend(backendName, stderrTail string, cause error, format string, args ...interface{}) *Error {
	return &Error{
		Kind:        Backend,
		Message:     fmt.Sprintf(format, args...),
		Cause:       cause,
		BackendName: backendName,
		StderrTail:  stderrTail,
	}
}

// Is reports whether err (or something it wraps) is a *Error of kind k.
func Is(err error, k Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.kindMatches(k)
	}
	return false
}
