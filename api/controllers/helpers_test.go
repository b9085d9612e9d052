package controllers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/shopfeed-backend/api/middleware"
	"github.com/angelmondragon/shopfeed-backend/pkg/enums"
	"github.com/angelmondragon/shopfeed-backend/pkg/logger"
)

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "test", Level: logger.ParseLevel("debug"), Output: io.Discard})
}

func authedRequest(method, target, body string, userID int64, userType enums.UserType) *http.Request {
	var reader io.Reader
	if body != "" {
		reader = bytes.NewBufferString(body)
	}
	req := httptest.NewRequest(method, target, reader)
	return req.WithContext(middleware.WithUser(context.Background(), userID, userType))
}

func serve(h http.HandlerFunc, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

type submittedTask struct {
	kind        enums.TaskKind
	submittedBy *int64
	payload     any
}

type stubSubmitter struct {
	id    uuid.UUID
	err   error
	calls []submittedTask
}

func (s *stubSubmitter) Submit(_ context.Context, kind enums.TaskKind, submittedBy *int64, payload any) (uuid.UUID, error) {
	s.calls = append(s.calls, submittedTask{kind: kind, submittedBy: submittedBy, payload: payload})
	return s.id, s.err
}

func httptestRequestWithoutUser(method, target string) *http.Request {
	return httptest.NewRequest(method, target, nil)
}
