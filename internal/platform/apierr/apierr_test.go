package apierr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestFromErrorMapsTaxonomy(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{fmt.Errorf("rename: %w", ErrNotFound), http.StatusNotFound, "not_found"},
		{fmt.Errorf("files: %w", ErrAccessDenied), http.StatusForbidden, "access_denied"},
		{Upstream("embed", errors.New("boom")), http.StatusBadGateway, "upstream_error"},
		{fmt.Errorf("input: %w", ErrInvalidArgument), http.StatusBadRequest, "invalid_argument"},
		{errors.New("other"), http.StatusInternalServerError, "internal_error"},
		{New(http.StatusTeapot, "teapot", nil), http.StatusTeapot, "teapot"},
	}
	for _, tc := range cases {
		got := FromError(tc.err)
		if got.Status != tc.status || got.Code != tc.code {
			t.Fatalf("FromError(%v): want=%d/%s got=%d/%s", tc.err, tc.status, tc.code, got.Status, got.Code)
		}
	}
}

func TestUpstreamKeepsCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := Upstream("vector query", cause)
	if !errors.Is(err, ErrUpstream) {
		t.Fatalf("expected ErrUpstream")
	}
	if !errors.Is(err, cause) {
		t.Fatalf("expected cause to be reachable")
	}
	if err.Error() != "vector query: connection refused" {
		t.Fatalf("message: got=%q", err.Error())
	}
	if again := Upstream("outer", err); again != err {
		t.Fatalf("double wrap should be a no-op")
	}
	if Upstream("noop", nil) != nil {
		t.Fatalf("nil in, nil out")
	}
}
