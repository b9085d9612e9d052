package controllers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/shopfeed-backend/internal/tasks"
	"github.com/angelmondragon/shopfeed-backend/pkg/enums"
)

type stubStatusReader struct {
	results   map[uuid.UUID]*tasks.StatusResult
	requester int64
	err       error
}

func (s *stubStatusReader) Status(_ context.Context, id uuid.UUID, requester int64) (*tasks.StatusResult, error) {
	s.requester = requester
	if s.err != nil {
		return nil, s.err
	}
	if res, ok := s.results[id]; ok {
		return res, nil
	}
	return &tasks.StatusResult{ID: id, Status: enums.TaskStatusNotFound}, nil
}

func TestResultsReturnsTaskState(t *testing.T) {
	id := uuid.New()
	reader := &stubStatusReader{results: map[uuid.UUID]*tasks.StatusResult{
		id: {ID: id, Status: enums.TaskStatusSucceeded, Result: json.RawMessage(`{"shop":"Svyaznoy"}`)},
	}}

	rec := serve(Results(reader, testLogger()), authedRequest(http.MethodGet, "/results?task_id="+id.String(), "", 7, enums.UserTypeShop))

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, true, body["Status"])
	assert.Equal(t, id.String(), body["Task_id"])
	assert.Equal(t, "succeeded", body["State"])
	assert.Equal(t, map[string]any{"shop": "Svyaznoy"}, body["Results"])
	assert.Equal(t, int64(7), reader.requester)
}

func TestResultsFailedTaskCarriesError(t *testing.T) {
	id := uuid.New()
	reader := &stubStatusReader{results: map[uuid.UUID]*tasks.StatusResult{
		id: {ID: id, Status: enums.TaskStatusFailed, Error: "source url could not be fetched"},
	}}

	rec := serve(Results(reader, testLogger()), authedRequest(http.MethodGet, "/results?task_id="+id.String(), "", 7, enums.UserTypeShop))

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "failed", body["State"])
	assert.Equal(t, "source url could not be fetched", body["Error"])
	assert.Nil(t, body["Results"])
}

func TestResultsUnknownTask(t *testing.T) {
	reader := &stubStatusReader{}
	for _, target := range []string{"/results?task_id=" + uuid.NewString(), "/results?task_id=nope"} {
		rec := serve(Results(reader, testLogger()), authedRequest(http.MethodGet, target, "", 7, enums.UserTypeShop))
		require.Equal(t, http.StatusNotFound, rec.Code, target)
		assert.Equal(t, false, decodeBody(t, rec)["Status"])
	}
}

func TestResultsRequiresTaskID(t *testing.T) {
	rec := serve(Results(&stubStatusReader{}, testLogger()), authedRequest(http.MethodGet, "/results", "", 7, enums.UserTypeShop))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestResultsStoreFailure(t *testing.T) {
	reader := &stubStatusReader{err: errors.New("connection refused")}
	rec := serve(Results(reader, testLogger()), authedRequest(http.MethodGet, "/results?task_id="+uuid.NewString(), "", 7, enums.UserTypeShop))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
