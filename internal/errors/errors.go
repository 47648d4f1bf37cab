// Package errors provides standardized error codes for the spreads client.
//
// Error codes follow the format {domain}.{error} where:
//   - domain: The subsystem that generated the error (transport, protocol, capture, ...)
//   - error: The specific error type within that domain
//
// These codes are stable and are what the terminal screens and the CLI switch on.
// Human-readable messages are provided alongside codes.
package errors

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Error codes by domain.
const (
	// Transport domain - push channel errors. Never fatal; the connection
	// manager degrades to a disconnected, auto-retrying state.
	CodeTransportDialFailed   = "transport.dial_failed"   // Channel could not be opened
	CodeTransportNotConnected = "transport.not_connected" // Send while the channel is down (message dropped)
	CodeTransportSendFailed   = "transport.send_failed"   // Write to an open channel failed
	CodeTransportClosed       = "transport.closed"        // Manager was closed (unmounted)

	// Protocol domain - wire format errors
	CodeProtocolInvalidMessage = "protocol.invalid_message" // Frame could not be parsed
	CodeProtocolEncodeFailed   = "protocol.encode_failed"   // Outbound command could not be encoded

	// Capture domain - capture session transitions
	CodeCaptureNotReady        = "capture.not_ready"         // Device status is not ready
	CodeCaptureInFlight        = "capture.in_flight"         // A capture request is already outstanding
	CodeCaptureNothingToRetake = "capture.nothing_to_retake" // No page captured yet
	CodeCaptureNoPages         = "capture.no_pages"          // Finish requested with zero pages
	CodeCaptureFailed          = "capture.failed"            // Server reported a capture error

	// Processing domain - post-capture pipeline
	CodeProcessingFailed      = "processing.failed"       // Server reported a pipeline error
	CodeProcessingNotCaptured = "processing.not_captured" // Workflow has no captured pages yet

	// API domain - REST collaborator failures
	CodeAPIRequestFailed = "api.request_failed" // Network-level failure
	CodeAPIStatus        = "api.status"         // Non-2xx response
	CodeAPIDecodeFailed  = "api.decode_failed"  // Response body could not be decoded
	CodeAPINotFound      = "api.not_found"      // Resource does not exist

	// Validation domain - local form validation
	CodeValidationFailed = "validation.failed" // One or more fields are invalid

	// Config domain
	CodeConfigInvalid = "config.invalid" // Configuration value rejected

	// Storage domain - simulator persistence
	CodeStorageNotFound    = "storage.not_found"    // Workflow not found
	CodeStorageOpenFailed  = "storage.open_failed"  // Database open failed
	CodeStorageQueryFailed = "storage.query_failed" // Database query failed
	CodeStorageSaveFailed  = "storage.save_failed"  // Failed to save data

	// Keep-awake domain - sleep inhibition during long runs
	CodeKeepAwakeUnsupported   = "keepawake.unsupported"    // No inhibitor available on this host
	CodeKeepAwakeAcquireFailed = "keepawake.acquire_failed" // Inhibitor could not be started

	// General domain - catch-all errors
	CodeUnknown  = "error.unknown"  // Unknown error
	CodeInternal = "error.internal" // Internal error
)

// CodedError wraps an error with a stable error code.
// This allows errors to carry both a code for programmatic handling
// and a message for human consumption.
type CodedError struct {
	Code    string // Stable error code (e.g., "capture.not_ready")
	Message string // Human-readable error message
	Cause   error  // Underlying error (may be nil)

	// Fields holds per-field messages for validation errors, keyed by field name.
	Fields map[string]string
}

// Error implements the error interface.
func (e *CodedError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *CodedError) Unwrap() error {
	return e.Cause
}

// New creates a new CodedError with the given code and message.
func New(code, message string) *CodedError {
	return &CodedError{
		Code:    code,
		Message: message,
	}
}

// Wrap creates a new CodedError wrapping an existing error.
func Wrap(code, message string, cause error) *CodedError {
	return &CodedError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// GetCode extracts the error code from an error.
// Falls back to CodeUnknown for errors that are not CodedErrors.
func GetCode(err error) string {
	if err == nil {
		return ""
	}

	var coded *CodedError
	if errors.As(err, &coded) {
		return coded.Code
	}

	return CodeUnknown
}

// GetMessage extracts a human-readable message from an error.
// If the error is a CodedError, returns its message.
// Otherwise, returns the error's Error() string.
func GetMessage(err error) string {
	if err == nil {
		return ""
	}

	var coded *CodedError
	if errors.As(err, &coded) {
		return coded.Message
	}

	return err.Error()
}

// ToCodeAndMessage extracts both code and message from an error.
// This is what banners and CLI output use to render an error.
func ToCodeAndMessage(err error) (code, message string) {
	if err == nil {
		return "", ""
	}

	var coded *CodedError
	if errors.As(err, &coded) {
		return coded.Code, coded.Message
	}

	return CodeUnknown, err.Error()
}

// IsCode checks if an error has a specific error code.
func IsCode(err error, code string) bool {
	return GetCode(err) == code
}

// FieldErrors returns the per-field messages of a validation error, or nil.
func FieldErrors(err error) map[string]string {
	var coded *CodedError
	if errors.As(err, &coded) {
		return coded.Fields
	}
	return nil
}

// Common error constructors for frequently used error types.

// NotConnected creates a "transport.not_connected" error.
// The outbound message was dropped, not queued.
func NotConnected(msgType string) *CodedError {
	return New(CodeTransportNotConnected, fmt.Sprintf("channel not connected, dropped %s", msgType))
}

// SendFailed creates a "transport.send_failed" error.
func SendFailed(msgType string, cause error) *CodedError {
	return Wrap(CodeTransportSendFailed, fmt.Sprintf("failed to send %s", msgType), cause)
}

// DialFailed creates a "transport.dial_failed" error.
func DialFailed(url string, cause error) *CodedError {
	return Wrap(CodeTransportDialFailed, fmt.Sprintf("failed to connect to %s", url), cause)
}

// InvalidMessage creates a "protocol.invalid_message" error.
// A corrupt frame indicates a server/client protocol mismatch.
func InvalidMessage(reason string, cause error) *CodedError {
	return Wrap(CodeProtocolInvalidMessage, reason, cause)
}

// CaptureNotReady creates a "capture.not_ready" error.
func CaptureNotReady(status string) *CodedError {
	return New(CodeCaptureNotReady, fmt.Sprintf("device is %s, not ready", status))
}

// CaptureInFlight creates a "capture.in_flight" error.
func CaptureInFlight(page int) *CodedError {
	return New(CodeCaptureInFlight, fmt.Sprintf("capture of page %d is still in progress", page))
}

// NothingToRetake creates a "capture.nothing_to_retake" error.
func NothingToRetake() *CodedError {
	return New(CodeCaptureNothingToRetake, "no captured page to retake")
}

// NoPages creates a "capture.no_pages" error.
func NoPages() *CodedError {
	return New(CodeCaptureNoPages, "capture at least one page before finishing")
}

// CaptureFailed creates a "capture.failed" error from a server-pushed message.
func CaptureFailed(message string) *CodedError {
	return New(CodeCaptureFailed, message)
}

// ProcessingFailed creates a "processing.failed" error from a server-pushed message.
func ProcessingFailed(message string) *CodedError {
	return New(CodeProcessingFailed, message)
}

// APIStatus creates an "api.status" error for a non-2xx response.
// A 404 maps to "api.not_found" so callers can distinguish missing workflows.
func APIStatus(method, path string, status int, serverMsg string) *CodedError {
	msg := fmt.Sprintf("%s %s returned %d", method, path, status)
	if serverMsg != "" {
		msg = fmt.Sprintf("%s: %s", msg, serverMsg)
	}
	code := CodeAPIStatus
	if status == 404 {
		code = CodeAPINotFound
	}
	return New(code, msg)
}

// ValidationFailed creates a "validation.failed" error with per-field messages.
func ValidationFailed(fields map[string]string) *CodedError {
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)
	msg := "validation failed"
	if len(names) > 0 {
		msg = fmt.Sprintf("%s: %s", msg, strings.Join(names, ", "))
	}
	return &CodedError{
		Code:    CodeValidationFailed,
		Message: msg,
		Fields:  fields,
	}
}

// ConfigInvalid creates a "config.invalid" error.
func ConfigInvalid(reason string) *CodedError {
	return New(CodeConfigInvalid, reason)
}

// NotFound creates a "storage.not_found" error.
func NotFound(resource string) *CodedError {
	return New(CodeStorageNotFound, fmt.Sprintf("%s not found", resource))
}

// Internal creates an "error.internal" error.
func Internal(message string, cause error) *CodedError {
	return Wrap(CodeInternal, message, cause)
}

// nextActions maps codes to the follow-up a user can take. Screens render
// this below the banner so a stuck screen always says how to get unstuck.
var nextActions = map[string]string{
	CodeTransportDialFailed:    "check that the spreads server is running and reachable",
	CodeTransportNotConnected:  "wait for the reconnect, or press ctrl+r to reconnect now",
	CodeTransportSendFailed:    "retry once the connection is back",
	CodeTransportClosed:        "reopen the screen",
	CodeProtocolInvalidMessage: "client and server versions differ; update spreadsctl",
	CodeCaptureNotReady:        "wait until the device reports ready",
	CodeCaptureInFlight:        "wait for the current capture to complete",
	CodeCaptureNothingToRetake: "capture a page first",
	CodeCaptureNoPages:         "capture at least one page",
	CodeCaptureFailed:          "check the devices, then reopen the capture screen",
	CodeProcessingFailed:       "inspect the log tail, then restart processing",
	CodeProcessingNotCaptured:  "finish capturing before processing",
	CodeAPIRequestFailed:       "check the server address and network",
	CodeAPIStatus:              "retry; if it persists inspect the server log",
	CodeAPINotFound:            "list workflows to find a valid id",
	CodeValidationFailed:       "correct the highlighted fields",
	CodeConfigInvalid:          "fix the configuration file",
	CodeKeepAwakeUnsupported:   "install caffeinate (macOS) or systemd-inhibit (Linux), or keep the machine awake yourself",
}

// NextAction returns a short suggestion for recovering from the given code,
// or "" when there is nothing the user can do.
func NextAction(code string) string {
	return nextActions[code]
}
