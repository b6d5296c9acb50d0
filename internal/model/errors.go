// internal/model/errors.go
package model

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorKind classifies failures raised by the gauge engine
type ErrorKind string

const (
	ErrorKindCommFailure              ErrorKind = "COMM_FAILURE"
	ErrorKindProtocolViolation        ErrorKind = "PROTOCOL_VIOLATION"
	ErrorKindRangeAnomaly             ErrorKind = "RANGE_ANOMALY"
	ErrorKindChannelFault             ErrorKind = "CHANNEL_FAULT"
	ErrorKindWrongModuleConfiguration ErrorKind = "WRONG_MODULE_CONFIGURATION"
	ErrorKindCommandRejected          ErrorKind = "COMMAND_REJECTED"
	ErrorKindTransportError           ErrorKind = "TRANSPORT_ERROR"
)

// Recoverable reports whether the kind is absorbed locally by the polling cycle
func (k ErrorKind) Recoverable() bool {
	switch k {
	case ErrorKindCommFailure, ErrorKindRangeAnomaly, ErrorKindProtocolViolation:
		return true
	}
	return false
}

// Sentinels for errors.Is comparisons
var (
	ErrCommFailure              = &GaugeError{Kind: ErrorKindCommFailure}
	ErrProtocolViolation        = &GaugeError{Kind: ErrorKindProtocolViolation}
	ErrRangeAnomaly             = &GaugeError{Kind: ErrorKindRangeAnomaly}
	ErrChannelFault             = &GaugeError{Kind: ErrorKindChannelFault}
	ErrWrongModuleConfiguration = &GaugeError{Kind: ErrorKindWrongModuleConfiguration}
	ErrCommandRejected          = &GaugeError{Kind: ErrorKindCommandRejected}
	ErrTransportError           = &GaugeError{Kind: ErrorKindTransportError}
)

// ErrInvalidArgument marks requests rejected before anything is sent to the controller
var ErrInvalidArgument = errors.New("invalid argument")

// GaugeError carries the kind of a failure plus the context it happened in
type GaugeError struct {
	Kind    ErrorKind
	Channel Channel
	Command string
	Raw     string
	Err     error
}

// NewReadingError builds an error for a channel reply
func NewReadingError(kind ErrorKind, channel Channel, raw string) *GaugeError {
	return &GaugeError{Kind: kind, Channel: channel, Raw: raw}
}

// NewCommandError builds an error for a dispatched command
func NewCommandError(kind ErrorKind, command, raw string, err error) *GaugeError {
	return &GaugeError{Kind: kind, Command: command, Raw: raw, Err: err}
}

func (e *GaugeError) Error() string {
	var b strings.Builder
	b.WriteString(strings.ToLower(strings.ReplaceAll(string(e.Kind), "_", " ")))
	if e.Channel != "" {
		fmt.Fprintf(&b, " on %s", e.Channel)
	}
	if e.Command != "" {
		fmt.Fprintf(&b, " for command %q", e.Command)
	}
	if e.Raw != "" {
		fmt.Fprintf(&b, ": %q", e.Raw)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *GaugeError) Unwrap() error {
	return e.Err
}

// Is matches any GaugeError of the same kind
func (e *GaugeError) Is(target error) bool {
	t, ok := target.(*GaugeError)
	return ok && t.Kind == e.Kind
}

// KindOf extracts the error kind from an error chain
func KindOf(err error) (ErrorKind, bool) {
	var ge *GaugeError
	if errors.As(err, &ge) {
		return ge.Kind, true
	}
	return "", false
}
