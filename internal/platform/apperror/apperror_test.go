package apperror

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestKindOf_Wrapped(t *testing.T) {
	err := fmt.Errorf("save response: %w", Integrity("assessment.RecordResponse", "unknown question %s", "q-1"))
	if KindOf(err) != KindDataIntegrity {
		t.Fatalf("expected data_integrity, got %q", KindOf(err))
	}
	if !Is(err, KindDataIntegrity) {
		t.Error("Is should match wrapped kind")
	}
}

func TestKindOf_Plain(t *testing.T) {
	if KindOf(errors.New("boom")) != "" {
		t.Error("plain error should have no kind")
	}
	if Is(nil, KindValidation) {
		t.Error("nil error should not match")
	}
}

func TestTransient_Unwrap(t *testing.T) {
	cause := errors.New("connection refused")
	err := Transient("workflow.Save", cause)
	if !errors.Is(err, cause) {
		t.Error("expected cause to be reachable through Unwrap")
	}
}

func TestHTTPError(t *testing.T) {
	tests := []struct {
		err  error
		code int
	}{
		{Validation("op", "bad"), http.StatusBadRequest},
		{Integrity("op", "bad"), http.StatusUnprocessableEntity},
		{NotFound("op", "patient"), http.StatusNotFound},
		{Transient("op", errors.New("down")), http.StatusServiceUnavailable},
		{errors.New("other"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := HTTPError(tt.err).Code; got != tt.code {
			t.Errorf("HTTPError(%v) = %d, want %d", tt.err, got, tt.code)
		}
	}
}

func TestStore(t *testing.T) {
	if Store("op", nil) != nil {
		t.Error("nil should stay nil")
	}
	nf := NotFound("op", "patient")
	if got := Store("op", nf); got != nf {
		t.Error("classified errors should pass through")
	}
	if !Is(Store("op", errors.New("dial tcp")), KindTransientStorage) {
		t.Error("plain driver errors should become transient")
	}
}
