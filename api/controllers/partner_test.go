package controllers

import (
	"context"
	"net/http"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/shopfeed-backend/internal/catalog"
	"github.com/angelmondragon/shopfeed-backend/internal/ingest"
	"github.com/angelmondragon/shopfeed-backend/internal/orders"
	"github.com/angelmondragon/shopfeed-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/shopfeed-backend/pkg/errors"
	"github.com/angelmondragon/shopfeed-backend/pkg/pagination"
)

type stubCatalog struct {
	catalog.Service
	state    *catalog.ShopState
	setCalls []bool
	err      error
}

func (s *stubCatalog) GetShopState(context.Context, int64) (*catalog.ShopState, error) {
	return s.state, s.err
}

func (s *stubCatalog) SetShopState(_ context.Context, _ int64, state bool) error {
	s.setCalls = append(s.setCalls, state)
	return s.err
}

type stubPartnerOrders struct {
	orders.Service
	params  pagination.Params
	updated []enums.OrderState
	err     error
}

func (s *stubPartnerOrders) ListPartnerOrders(_ context.Context, _ int64, params pagination.Params) (*pagination.Page[orders.OrderDTO], error) {
	s.params = params
	return &pagination.Page[orders.OrderDTO]{Items: []orders.OrderDTO{{ID: 1}}}, s.err
}

func (s *stubPartnerOrders) UpdateOrderState(_ context.Context, _, _ int64, state enums.OrderState) error {
	s.updated = append(s.updated, state)
	return s.err
}

func TestPartnerUpdateQueuesIngest(t *testing.T) {
	taskID := uuid.New()
	submitter := &stubSubmitter{id: taskID}
	req := authedRequest(http.MethodPost, "/partner/update", `{"url": " https://example.com/shop.yaml "}`, 7, enums.UserTypeShop)

	rec := serve(PartnerUpdate(submitter, testLogger()), req)

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, true, body["Status"])
	assert.Equal(t, taskID.String(), body["Task_id"])

	require.Len(t, submitter.calls, 1)
	call := submitter.calls[0]
	assert.Equal(t, enums.TaskKindIngest, call.kind)
	require.NotNil(t, call.submittedBy)
	assert.Equal(t, int64(7), *call.submittedBy)
	payload, ok := call.payload.(ingest.Payload)
	require.True(t, ok)
	require.NotNil(t, payload.URL)
	assert.Equal(t, "https://example.com/shop.yaml", *payload.URL)
	assert.Nil(t, payload.Document)
}

func TestPartnerUpdateRejectsMalformedInput(t *testing.T) {
	cases := map[string]string{
		"empty":   `{}`,
		"blank":   `{"url": "  "}`,
		"both":    `{"url": "https://example.com", "document": "shop: x"}`,
		"unknown": `{"link": "https://example.com"}`,
		"not url": `{"url": "not a url"}`,
		"no host": `{"url": "https://"}`,
		"ftp":     `{"url": "ftp://example.com/shop.yaml"}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			submitter := &stubSubmitter{id: uuid.New()}
			req := authedRequest(http.MethodPost, "/partner/update", body, 7, enums.UserTypeShop)

			rec := serve(PartnerUpdate(submitter, testLogger()), req)

			require.Equal(t, http.StatusBadRequest, rec.Code)
			resp := decodeBody(t, rec)
			assert.Equal(t, false, resp["Status"])
			assert.NotNil(t, resp["Errors"])
			assert.Empty(t, submitter.calls)
		})
	}
}

func TestPartnerUpdateNamesInvalidURL(t *testing.T) {
	submitter := &stubSubmitter{id: uuid.New()}
	req := authedRequest(http.MethodPost, "/partner/update", `{"url": "not a url"}`, 7, enums.UserTypeShop)

	rec := serve(PartnerUpdate(submitter, testLogger()), req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, string(pkgerrors.CodeValidation), rec.Header().Get("X-Error-Code"))
	body := decodeBody(t, rec)
	assert.Equal(t, map[string]any{"url": "invalid url"}, body["Errors"])
	assert.Empty(t, submitter.calls)
}

func TestPartnerSetStateParsesLooseBooleans(t *testing.T) {
	svc := &stubCatalog{}
	for _, body := range []string{`{"state": "YES"}`, `{"state": " off "}`, `{"state": 1}`} {
		req := authedRequest(http.MethodPost, "/partner/state", body, 7, enums.UserTypeShop)
		rec := serve(PartnerSetState(svc, testLogger()), req)
		require.Equal(t, http.StatusOK, rec.Code, body)
	}
	assert.Equal(t, []bool{true, false, true}, svc.setCalls)

	req := authedRequest(http.MethodPost, "/partner/state", `{"state": "maybe"}`, 7, enums.UserTypeShop)
	rec := serve(PartnerSetState(svc, testLogger()), req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	req = authedRequest(http.MethodPost, "/partner/state", `{}`, 7, enums.UserTypeShop)
	rec = serve(PartnerSetState(svc, testLogger()), req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Len(t, svc.setCalls, 3)
}

func TestPartnerStateReturnsNameAndState(t *testing.T) {
	svc := &stubCatalog{state: &catalog.ShopState{Name: "Svyaznoy", State: true}}
	req := authedRequest(http.MethodGet, "/partner/state", "", 7, enums.UserTypeShop)

	rec := serve(PartnerState(svc, testLogger()), req)

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "Svyaznoy", body["name"])
	assert.Equal(t, true, body["state"])
}

func TestPartnerStateMissingShop(t *testing.T) {
	svc := &stubCatalog{err: pkgerrors.New(pkgerrors.CodeNotFound, "shop not found")}
	req := authedRequest(http.MethodGet, "/partner/state", "", 7, enums.UserTypeShop)

	rec := serve(PartnerState(svc, testLogger()), req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPartnerOrdersPagination(t *testing.T) {
	svc := &stubPartnerOrders{}
	req := authedRequest(http.MethodGet, "/partner/orders?limit=10&cursor=abc", "", 7, enums.UserTypeShop)

	rec := serve(PartnerOrders(svc, testLogger()), req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, pagination.Params{Limit: 10, Cursor: "abc"}, svc.params)

	req = authedRequest(http.MethodGet, "/partner/orders?limit=1000", "", 7, enums.UserTypeShop)
	rec = serve(PartnerOrders(svc, testLogger()), req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPartnerUpdateOrder(t *testing.T) {
	svc := &stubPartnerOrders{}

	req := authedRequest(http.MethodPut, "/partner/orders", `{"id": "3", "state": "Sent"}`, 7, enums.UserTypeShop)
	rec := serve(PartnerUpdateOrder(svc, testLogger()), req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []enums.OrderState{enums.OrderStateSent}, svc.updated)

	req = authedRequest(http.MethodPut, "/partner/orders", `{"id": 3, "state": "shipped"}`, 7, enums.UserTypeShop)
	rec = serve(PartnerUpdateOrder(svc, testLogger()), req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	req = authedRequest(http.MethodPut, "/partner/orders", `{"state": "sent"}`, 7, enums.UserTypeShop)
	rec = serve(PartnerUpdateOrder(svc, testLogger()), req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, missingArgumentsMessage, body["Error"])
	assert.Len(t, svc.updated, 1)
}

func TestPartnerExportQueuesTask(t *testing.T) {
	submitter := &stubSubmitter{id: uuid.New()}
	req := authedRequest(http.MethodGet, "/partner/export", "", 7, enums.UserTypeShop)

	rec := serve(PartnerExport(submitter, testLogger()), req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, submitter.calls, 1)
	assert.Equal(t, enums.TaskKindExport, submitter.calls[0].kind)
	assert.Equal(t, catalog.ExportPayload{UserID: 7}, submitter.calls[0].payload)
}

func TestPartnerHandlersRequireUser(t *testing.T) {
	req := httptestRequestWithoutUser(http.MethodGet, "/partner/export")
	rec := serve(PartnerExport(&stubSubmitter{}, testLogger()), req)
	require.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "Log in required", decodeBody(t, rec)["Error"])
}
