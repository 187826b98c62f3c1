package response

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/docchat-backend/internal/platform/apierr"
)

func respond(t *testing.T, err error) (*httptest.ResponseRecorder, ErrorEnvelope) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	RespondErr(c, err)
	var env ErrorEnvelope
	if decodeErr := json.Unmarshal(rec.Body.Bytes(), &env); decodeErr != nil {
		t.Fatalf("decode envelope: %v (%s)", decodeErr, rec.Body.String())
	}
	return rec, env
}

func TestRespondErrMapsTaxonomy(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{fmt.Errorf("%w: input is required", apierr.ErrInvalidArgument), http.StatusBadRequest, "invalid_argument"},
		{fmt.Errorf("chat x: %w", apierr.ErrNotFound), http.StatusNotFound, "not_found"},
		{apierr.ErrAccessDenied, http.StatusForbidden, "access_denied"},
		{apierr.Upstream("embed", errors.New("timeout")), http.StatusBadGateway, "upstream_error"},
	}
	for _, tc := range cases {
		rec, env := respond(t, tc.err)
		if rec.Code != tc.status || env.Error.Code != tc.code {
			t.Fatalf("%v: got %d/%s want %d/%s", tc.err, rec.Code, env.Error.Code, tc.status, tc.code)
		}
	}
}

func TestRespondErrHidesInternalDetail(t *testing.T) {
	rec, env := respond(t, errors.New("redis password=hunter2 rejected"))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status: %d", rec.Code)
	}
	if strings.Contains(env.Error.Message, "hunter2") {
		t.Fatalf("internal detail leaked: %q", env.Error.Message)
	}
}

func TestWriteSSE(t *testing.T) {
	var b strings.Builder
	if err := WriteSSE(&b, "", map[string]string{"content": "hi\nthere"}); err != nil {
		t.Fatalf("WriteSSE: %v", err)
	}
	if err := WriteSSE(&b, "done", map[string]string{"output": "x"}); err != nil {
		t.Fatalf("WriteSSE: %v", err)
	}
	want := "data: {\"content\":\"hi\\nthere\"}\n\nevent: done\ndata: {\"output\":\"x\"}\n\n"
	if b.String() != want {
		t.Fatalf("unexpected stream:\n%q\nwant\n%q", b.String(), want)
	}
}
