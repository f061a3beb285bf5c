package errors

import (
	stderrors "errors"
	"net/http"
	"strings"
	"testing"
)

func TestErrorString(t *testing.T) {
	err := New(CodeTargetNotFound, "no window titled 'Notepad'")

	if !strings.Contains(err.Error(), "TARGET_NOT_FOUND") {
		t.Errorf("Error() = %q, want code name included", err.Error())
	}
	if !strings.Contains(err.Error(), "no window titled 'Notepad'") {
		t.Errorf("Error() = %q, want message included", err.Error())
	}
}

func TestWrapPreservesCause(t *testing.T) {
	cause := stderrors.New("disk full")
	err := Wrap(cause, CodePersistence, "copy failed")

	if !stderrors.Is(err, cause) {
		t.Error("errors.Is should find the wrapped cause")
	}
	if !strings.Contains(err.Error(), "disk full") {
		t.Errorf("Error() = %q, want cause included", err.Error())
	}
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		code Code
		want int
	}{
		{CodeConfiguration, http.StatusBadRequest},
		{CodeTargetNotFound, http.StatusNotFound},
		{CodeInvalidTarget, http.StatusBadRequest},
		{CodeCaptureProvider, http.StatusInternalServerError},
		{CodePersistence, http.StatusInternalServerError},
		{CodeUnavailable, http.StatusServiceUnavailable},
		{CodeUnknown, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.code.String(), func(t *testing.T) {
			if got := New(tt.code, "x").HTTPStatus(); got != tt.want {
				t.Errorf("HTTPStatus() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestIsCode(t *testing.T) {
	err := Newf(CodeInvalidTarget, "monitor index %d out of range", 7)

	if !IsCode(err, CodeInvalidTarget) {
		t.Error("IsCode should match the assigned code")
	}
	if IsCode(err, CodePersistence) {
		t.Error("IsCode should not match a different code")
	}
	if IsCode(stderrors.New("plain"), CodeInvalidTarget) {
		t.Error("IsCode should not match a foreign error")
	}
}

func TestIsRetryable(t *testing.T) {
	if !IsRetryable(New(CodeCaptureProvider, "provider init failed")) {
		t.Error("provider errors should be retryable")
	}
	if !IsRetryable(New(CodeUnavailable, "database locked")) {
		t.Error("unavailable errors should be retryable")
	}
	if IsRetryable(New(CodeTargetNotFound, "gone")) {
		t.Error("target-not-found should not be retryable")
	}
	if IsRetryable(stderrors.New("plain")) {
		t.Error("foreign errors should not be retryable")
	}
}

func TestWithMetadata(t *testing.T) {
	err := New(CodeCaptureProvider, "grab failed").WithMetadata("monitor", "2")

	if err.Metadata["monitor"] != "2" {
		t.Errorf("metadata = %v, want monitor=2", err.Metadata)
	}
	if !strings.Contains(err.Error(), "monitor") {
		t.Errorf("Error() = %q, want metadata included", err.Error())
	}
}
