package errors

import (
	"errors"
	"strings"
	"testing"
)

func TestCodedError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *CodedError
		expected string
	}{
		{
			name:     "error without cause",
			err:      New(CodeStorageNotFound, "workflow not found"),
			expected: "storage.not_found: workflow not found",
		},
		{
			name:     "error with cause",
			err:      Wrap(CodeTransportDialFailed, "failed to connect", errors.New("connection refused")),
			expected: "transport.dial_failed: failed to connect (connection refused)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.expected {
				t.Errorf("Error() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestCodedError_Unwrap(t *testing.T) {
	cause := errors.New("original error")
	err := Wrap(CodeInternal, "wrapped", cause)

	if err.Unwrap() != cause {
		t.Error("Unwrap() should return the original cause")
	}

	err2 := New(CodeStorageNotFound, "not found")
	if err2.Unwrap() != nil {
		t.Error("Unwrap() should return nil when no cause")
	}
}

func TestGetCode(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected string
	}{
		{name: "nil error", err: nil, expected: ""},
		{name: "CodedError", err: New(CodeCaptureNotReady, "not ready"), expected: CodeCaptureNotReady},
		{name: "wrapped CodedError", err: Wrap(CodeTransportSendFailed, "failed", errors.New("cause")), expected: CodeTransportSendFailed},
		{name: "plain error", err: errors.New("some error"), expected: CodeUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := GetCode(tt.err); got != tt.expected {
				t.Errorf("GetCode() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestGetMessage(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected string
	}{
		{name: "nil error", err: nil, expected: ""},
		{name: "CodedError", err: New(CodeStorageNotFound, "workflow not found"), expected: "workflow not found"},
		{name: "plain error", err: errors.New("some error"), expected: "some error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := GetMessage(tt.err); got != tt.expected {
				t.Errorf("GetMessage() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestToCodeAndMessage(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		wantCode    string
		wantMessage string
	}{
		{name: "nil error"},
		{
			name:        "CodedError",
			err:         New(CodeProcessingFailed, "ocr crashed"),
			wantCode:    CodeProcessingFailed,
			wantMessage: "ocr crashed",
		},
		{
			name:        "plain error",
			err:         errors.New("some error"),
			wantCode:    CodeUnknown,
			wantMessage: "some error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, message := ToCodeAndMessage(tt.err)
			if code != tt.wantCode {
				t.Errorf("ToCodeAndMessage() code = %q, want %q", code, tt.wantCode)
			}
			if message != tt.wantMessage {
				t.Errorf("ToCodeAndMessage() message = %q, want %q", message, tt.wantMessage)
			}
		})
	}
}

func TestIsCode(t *testing.T) {
	err := New(CodeStorageNotFound, "not found")

	if !IsCode(err, CodeStorageNotFound) {
		t.Error("IsCode() should return true for matching code")
	}
	if IsCode(err, CodeCaptureFailed) {
		t.Error("IsCode() should return false for non-matching code")
	}
	if IsCode(nil, CodeStorageNotFound) {
		t.Error("IsCode() should return false for nil error")
	}
}

func TestErrorConstructors(t *testing.T) {
	t.Run("NotConnected", func(t *testing.T) {
		err := NotConnected("capture")
		if !IsCode(err, CodeTransportNotConnected) {
			t.Errorf("NotConnected() code = %q, want %q", GetCode(err), CodeTransportNotConnected)
		}
		if err.Message != "channel not connected, dropped capture" {
			t.Errorf("NotConnected() message = %q", err.Message)
		}
	})

	t.Run("CaptureInFlight", func(t *testing.T) {
		err := CaptureInFlight(4)
		if !IsCode(err, CodeCaptureInFlight) {
			t.Errorf("CaptureInFlight() code = %q, want %q", GetCode(err), CodeCaptureInFlight)
		}
		if err.Message != "capture of page 4 is still in progress" {
			t.Errorf("CaptureInFlight() message = %q", err.Message)
		}
	})

	t.Run("APIStatus 404 maps to not_found", func(t *testing.T) {
		err := APIStatus("GET", "/api/workflow/x", 404, "no such workflow")
		if !IsCode(err, CodeAPINotFound) {
			t.Errorf("APIStatus() code = %q, want %q", GetCode(err), CodeAPINotFound)
		}
		if err.Message != "GET /api/workflow/x returned 404: no such workflow" {
			t.Errorf("APIStatus() message = %q", err.Message)
		}
	})

	t.Run("APIStatus 500", func(t *testing.T) {
		err := APIStatus("PUT", "/api/workflow/x", 500, "")
		if !IsCode(err, CodeAPIStatus) {
			t.Errorf("APIStatus() code = %q, want %q", GetCode(err), CodeAPIStatus)
		}
	})

	t.Run("ValidationFailed", func(t *testing.T) {
		err := ValidationFailed(map[string]string{
			"name":  "Workflow name is required",
			"title": "Title is required",
		})
		if err.Message != "validation failed: name, title" {
			t.Errorf("ValidationFailed() message = %q", err.Message)
		}
		fields := FieldErrors(Wrap(CodeInternal, "outer", err))
		if fields["name"] != "Workflow name is required" {
			t.Errorf("FieldErrors()[name] = %q", fields["name"])
		}
	})

	t.Run("Internal", func(t *testing.T) {
		cause := errors.New("db connection lost")
		err := Internal("database error", cause)
		if !IsCode(err, CodeInternal) {
			t.Errorf("Internal() code = %q, want %q", GetCode(err), CodeInternal)
		}
		if err.Cause != cause {
			t.Error("Internal() should preserve cause")
		}
	})
}

func TestErrorsAs(t *testing.T) {
	cause := errors.New("original")
	coded := Wrap(CodeTransportSendFailed, "wrapped", cause)
	wrapped := Wrap(CodeInternal, "double wrapped", coded)

	var target *CodedError
	if !errors.As(wrapped, &target) {
		t.Fatal("errors.As should find CodedError in chain")
	}
	if target.Code != CodeInternal {
		t.Errorf("errors.As should find outermost CodedError, got code %q", target.Code)
	}
}

// TestUserFacingCodesHaveNextAction makes sure every code a screen can show
// in a banner comes with a recovery hint.
func TestUserFacingCodesHaveNextAction(t *testing.T) {
	codes := []string{
		CodeTransportDialFailed,
		CodeTransportNotConnected,
		CodeTransportSendFailed,
		CodeProtocolInvalidMessage,
		CodeCaptureNotReady,
		CodeCaptureInFlight,
		CodeCaptureNothingToRetake,
		CodeCaptureNoPages,
		CodeCaptureFailed,
		CodeProcessingFailed,
		CodeAPIRequestFailed,
		CodeAPIStatus,
		CodeAPINotFound,
		CodeValidationFailed,
	}

	for _, code := range codes {
		if !strings.Contains(code, ".") {
			t.Errorf("error code %q should be in format {domain}.{error}", code)
		}
		if strings.TrimSpace(NextAction(code)) == "" {
			t.Errorf("missing next action for %q", code)
		}
	}

	if NextAction(CodeUnknown) != "" {
		t.Errorf("NextAction(%q) should be empty", CodeUnknown)
	}
}
