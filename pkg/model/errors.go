// Package model implements the broadcast/track/group/frame data model:
// reference-counted producer/consumer channels with ownership,
// cancellation, and expiration semantics.
package model

import (
	"errors"
	"fmt"
)

// Code is the closed taxonomy of errors that can be attached to a
// producer/consumer state cell or carried as a QUIC stream reset code.
type Code int

const (
	// CodeCancel means the peer or application cancelled the operation.
	CodeCancel Code = iota
	// CodeRequiredExtension means a required protocol extension was missing.
	CodeRequiredExtension
	// CodeExpired means a group or frame is past its max-latency deadline.
	CodeExpired
	// CodeTimeout means the operation did not complete in time.
	CodeTimeout
	// CodeTransport means the underlying transport failed.
	CodeTransport
	// CodeDecode means the wire data was malformed or truncated.
	CodeDecode
	// CodeUnauthorized means publish/subscribe fell outside allowed prefixes.
	CodeUnauthorized
	// CodeVersion means no common protocol version could be negotiated.
	CodeVersion
	// CodeUnexpectedStream means a stream arrived that didn't fit the protocol.
	CodeUnexpectedStream
	// CodeBoundsExceeded means a value exceeded its encoding's representable range.
	CodeBoundsExceeded
	// CodeDuplicate means an ID or name was reused within a scope that requires uniqueness.
	CodeDuplicate
	// CodeNotFound means a subscribe targeted an unknown broadcast or track.
	CodeNotFound
	// CodeWrongSize means a frame's written bytes didn't match its declared size.
	CodeWrongSize
	// CodeProtocolViolation means the peer violated the wire protocol.
	CodeProtocolViolation
	// CodeDropped means the last producer was dropped without an explicit close.
	CodeDropped
	// CodeApp means an application-level error code, carried as-is.
	CodeApp
)

var codeNames = map[Code]string{
	CodeCancel:             "cancel",
	CodeRequiredExtension:  "required extension",
	CodeExpired:            "expired",
	CodeTimeout:            "timeout",
	CodeTransport:          "transport",
	CodeDecode:             "decode",
	CodeUnauthorized:       "unauthorized",
	CodeVersion:            "version",
	CodeUnexpectedStream:   "unexpected stream",
	CodeBoundsExceeded:     "bounds exceeded",
	CodeDuplicate:          "duplicate",
	CodeNotFound:           "not found",
	CodeWrongSize:          "wrong size",
	CodeProtocolViolation:  "protocol violation",
	CodeDropped:            "dropped",
	CodeApp:                "application",
}

func (c Code) String() string {
	if s, ok := codeNames[c]; ok {
		return s
	}
	return fmt.Sprintf("code(%d)", int(c))
}

// WireCode maps a Code to its wire/QUIC reset-code representation (spec §6.3).
// Application codes are offset by 64 plus the stored AppCode.
func (e *Error) WireCode() uint64 {
	if e.Code == CodeApp {
		return 64 + uint64(e.AppCode)
	}
	return wireCodes[e.Code]
}

var wireCodes = map[Code]uint64{
	CodeCancel:            0,
	CodeRequiredExtension: 1,
	CodeExpired:           2,
	CodeTimeout:           3,
	CodeTransport:         4,
	CodeDecode:            5,
	CodeUnauthorized:      6,
	CodeVersion:           9,
	CodeUnexpectedStream:  10,
	CodeBoundsExceeded:    11,
	CodeDuplicate:         12,
	CodeNotFound:          13,
	CodeWrongSize:         14,
	CodeProtocolViolation: 15,
}

// CodeFromWire maps a QUIC reset code back to a Code, per spec §6.3.
func CodeFromWire(wire uint64) Code {
	if wire >= 64 {
		return CodeApp
	}
	for code, w := range wireCodes {
		if w == wire {
			return code
		}
	}
	return CodeProtocolViolation
}

// Error is the single error type surfaced by model, wire, session, and
// origin operations. It is always attached to a producer/consumer state
// cell rather than returned eagerly from every call (spec §7 Policy).
type Error struct {
	Code Code
	// AppCode carries the application-level code when Code == CodeApp.
	AppCode uint16
	// Cause optionally wraps the underlying error (I/O failure, decode
	// detail, etc).
	Cause error
}

func (e *Error) Error() string {
	if e.Code == CodeApp {
		if e.Cause != nil {
			return fmt.Sprintf("moq: app(%d): %v", e.AppCode, e.Cause)
		}
		return fmt.Sprintf("moq: app(%d)", e.AppCode)
	}
	if e.Cause != nil {
		return fmt.Sprintf("moq: %s: %v", e.Code, e.Cause)
	}
	return fmt.Sprintf("moq: %s", e.Code)
}

func (e *Error) Unwrap() error { return e.Cause }

// NewError builds an Error for the given code with an optional wrapped cause.
func NewError(code Code, cause error) *Error {
	return &Error{Code: code, Cause: cause}
}

// NewAppError builds an application-level Error carrying an opaque code.
func NewAppError(code uint16) *Error {
	return &Error{Code: CodeApp, AppCode: code}
}

// Sentinel errors for the common, argument-less cases; use errors.Is to
// check against these or against a Code via IsCode.
var (
	ErrCancel            = &Error{Code: CodeCancel}
	ErrExpired           = &Error{Code: CodeExpired}
	ErrTransport         = &Error{Code: CodeTransport}
	ErrDecode            = &Error{Code: CodeDecode}
	ErrUnauthorized      = &Error{Code: CodeUnauthorized}
	ErrVersion           = &Error{Code: CodeVersion}
	ErrBoundsExceeded    = &Error{Code: CodeBoundsExceeded}
	ErrDuplicate         = &Error{Code: CodeDuplicate}
	ErrNotFound          = &Error{Code: CodeNotFound}
	ErrWrongSize         = &Error{Code: CodeWrongSize}
	ErrProtocolViolation = &Error{Code: CodeProtocolViolation}
	ErrDropped           = &Error{Code: CodeDropped}
	ErrClosed            = &Error{Code: CodeCancel, Cause: errors.New("closed")}
)

// Is implements the errors.Is protocol by comparing codes, so wrapped or
// re-created Errors with the same Code still match a sentinel.
func (e *Error) Is(target error) bool {
	other, ok := target.(*Error)
	if !ok {
		return false
	}
	if e.Code != other.Code {
		return false
	}
	if e.Code == CodeApp {
		return e.AppCode == other.AppCode
	}
	return true
}

// AsError coerces an arbitrary error into *Error, wrapping it as a
// transport error if it isn't already one of ours.
func AsError(err error) *Error {
	if err == nil {
		return nil
	}
	var me *Error
	if errors.As(err, &me) {
		return me
	}
	return NewError(CodeTransport, err)
}
