package gridhttp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/require"

	"github.com/potatogrid/go-potatogrid/gridsession"
	"github.com/potatogrid/go-potatogrid/gridstore"
)

type testAPI struct {
	server *httptest.Server
	store  *gridstore.SQLiteStore
	loads  *loadFailingStore
	token  string
}

// loadFailingStore fails LoadAll while failLoad is set
type loadFailingStore struct {
	gridstore.Store
	failLoad atomic.Bool
}

func (s *loadFailingStore) LoadAll(ctx context.Context) ([]gridstore.Record, error) {
	if s.failLoad.Load() {
		return nil, fmt.Errorf("%w: disk gone", gridstore.ErrUnavailable)
	}
	return s.Store.LoadAll(ctx)
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	ctx := context.Background()

	store, err := gridstore.OpenSQLite(":memory:", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	_, err = gridstore.SeedIfEmpty(ctx, store, []gridstore.Record{
		{Title: "Baked Potato", Category: "Oven", Value: 100, ImageRef: "BakedPotato", Deletable: false},
		{Title: "Potato Soup", Category: "Pot", Value: 40, ImageRef: "LoadedBakedPotatoSoup", Deletable: true},
	}, nil)
	require.NoError(t, err)

	loads := &loadFailingStore{Store: store}
	session, err := gridsession.NewSession(loads, nil, nil)
	require.NoError(t, err)
	require.NoError(t, session.Load(ctx))

	jwtAuth := NewJWTAuth("test-secret", nil)
	router := mux.NewRouter()
	secured := router.NewRoute().Subrouter()
	secured.Use(jwtAuth.Middleware)
	NewHandlers(session, loads, nil).Register(secured)

	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	token, err := jwtAuth.GenerateToken("cook", "tablet-1", time.Minute)
	require.NoError(t, err)
	return &testAPI{server: server, store: store, loads: loads, token: token}
}

func (a *testAPI) do(t *testing.T, method, path string, body any, out any) int {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, a.server.URL+path, reader)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+a.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil && resp.StatusCode != http.StatusNoContent {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func TestHandlersRequireToken(t *testing.T) {
	api := newTestAPI(t)
	resp, err := http.Get(api.server.URL + RouteRecords)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestHandlersEditApplyFlow(t *testing.T) {
	api := newTestAPI(t)

	var rows RowsResponse
	require.Equal(t, http.StatusOK, api.do(t, http.MethodGet, RouteRecords, nil, &rows))
	require.Len(t, rows.Rows, 2)
	require.Equal(t, gridsession.StateClean, rows.State)
	soup := rows.Rows[1]

	// Add with an empty body uses the new-row template
	var added gridsession.Row
	require.Equal(t, http.StatusCreated, api.do(t, http.MethodPost, RouteRecords, nil, &added))
	require.Equal(t, "New Title", added.Title)
	require.Equal(t, "NewType", added.Category)
	require.Zero(t, added.ID)

	var edited gridsession.Row
	value := 250.5
	status := api.do(t, http.MethodPatch, "/records/"+soup.Key.String(), RecordFields{Value: &value}, &edited)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, 250.5, edited.Value)
	require.Equal(t, "Potato Soup", edited.Title)

	var session SessionResponse
	require.Equal(t, http.StatusOK, api.do(t, http.MethodGet, RouteSession, nil, &session))
	require.Equal(t, gridsession.StateDirty, session.State)
	require.Equal(t, PendingCounts{Added: 1, Edited: 1}, session.Counts)

	var applied ApplyResponse
	require.Equal(t, http.StatusOK, api.do(t, http.MethodPost, RouteSessionApply, nil, &applied))
	require.Equal(t, gridsession.OutcomeApplied, applied.Outcome)
	require.Equal(t, MessageApplied, applied.Message)
	require.Len(t, applied.Result.Inserted, 1)

	stored, err := api.store.LoadAll(context.Background())
	require.NoError(t, err)
	require.Len(t, stored, 3)
	require.Equal(t, 250.5, stored[1].Value)
	require.True(t, stored[2].Deletable)

	require.Equal(t, http.StatusOK, api.do(t, http.MethodPost, RouteSessionApply, nil, &applied))
	require.Equal(t, gridsession.OutcomeNothingToApply, applied.Outcome)
	require.Equal(t, MessageNothingToApply, applied.Message)
}

func TestHandlersDelete(t *testing.T) {
	api := newTestAPI(t)

	var rows RowsResponse
	api.do(t, http.MethodGet, RouteRecords, nil, &rows)

	var errResp ErrorResponse
	status := api.do(t, http.MethodDelete, "/records/"+rows.Rows[0].Key.String(), nil, &errResp)
	require.Equal(t, http.StatusConflict, status)
	require.Equal(t, "row_not_deletable", errResp.Error)

	status = api.do(t, http.MethodDelete, "/records/"+rows.Rows[1].Key.String(), nil, nil)
	require.Equal(t, http.StatusNoContent, status)

	status = api.do(t, http.MethodDelete, "/records/not-a-uuid", nil, &errResp)
	require.Equal(t, http.StatusBadRequest, status)

	status = api.do(t, http.MethodDelete, "/records/"+rows.Rows[1].Key.String(), nil, &errResp)
	require.Equal(t, http.StatusNotFound, status)
	require.Equal(t, "row_not_found", errResp.Error)

	// Cancel brings the deleted row back
	require.Equal(t, http.StatusOK, api.do(t, http.MethodPost, RouteSessionCancel, nil, &rows))
	require.Len(t, rows.Rows, 2)
	require.Equal(t, gridsession.StateClean, rows.State)
}

func TestHandlersValidation(t *testing.T) {
	api := newTestAPI(t)

	var rows RowsResponse
	api.do(t, http.MethodGet, RouteRecords, nil, &rows)
	path := "/records/" + rows.Rows[1].Key.String()

	long := string(bytes.Repeat([]byte("x"), 201))
	var errResp ErrorResponse
	status := api.do(t, http.MethodPatch, path, RecordFields{Title: &long}, &errResp)
	require.Equal(t, http.StatusBadRequest, status)
	require.Equal(t, "validation_error", errResp.Error)
	require.Equal(t, "max", errResp.Fields["Title"])

	image := "Fries"
	status = api.do(t, http.MethodPatch, path, RecordFields{ImageRef: &image}, &errResp)
	require.Equal(t, http.StatusBadRequest, status)
	require.Equal(t, "unknown_image", errResp.Error)

	req, err := http.NewRequest(http.MethodPatch, api.server.URL+path, bytes.NewBufferString("{"))
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+api.token)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHandlersFindStored(t *testing.T) {
	api := newTestAPI(t)

	var found StoredRecordsResponse
	require.Equal(t, http.StatusOK, api.do(t, http.MethodGet, RouteStoredRecords+"?TYPE=Pot", nil, &found))
	require.Len(t, found.Records, 1)
	require.Equal(t, "Potato Soup", found.Records[0].Title)

	require.Equal(t, http.StatusOK, api.do(t, http.MethodGet, RouteStoredRecords+"?deleteable=false", nil, &found))
	require.Len(t, found.Records, 1)
	require.Equal(t, "Baked Potato", found.Records[0].Title)

	require.Equal(t, http.StatusOK, api.do(t, http.MethodGet, RouteStoredRecords+"?VALUE=1", nil, &found))
	require.Empty(t, found.Records)

	var errResp ErrorResponse
	require.Equal(t, http.StatusBadRequest, api.do(t, http.MethodGet, RouteStoredRecords+"?colour=red", nil, &errResp))
	require.Equal(t, "invalid_filter", errResp.Error)
	require.Equal(t, http.StatusBadRequest, api.do(t, http.MethodGet, RouteStoredRecords+"?VALUE=lots", nil, &errResp))
}

func TestHandlersImages(t *testing.T) {
	api := newTestAPI(t)

	var images ImagesResponse
	require.Equal(t, http.StatusOK, api.do(t, http.MethodGet, RouteImages, nil, &images))
	require.Equal(t, gridsession.DefaultImageOptions, images.Images)
}

func TestHandlersApplyStorageUnavailable(t *testing.T) {
	api := newTestAPI(t)

	var added gridsession.Row
	api.do(t, http.MethodPost, RouteRecords, map[string]any{"title": "Hash Browns"}, &added)
	require.Equal(t, "Hash Browns", added.Title)
	require.NoError(t, api.store.Close())

	var applied ApplyResponse
	status := api.do(t, http.MethodPost, RouteSessionApply, nil, &applied)
	require.Equal(t, http.StatusServiceUnavailable, status, fmt.Sprintf("%+v", applied))
	require.Equal(t, gridsession.OutcomeFailed, applied.Outcome)
	require.Equal(t, MessageApplyFailed, applied.Message)
	require.NotEmpty(t, applied.Error)
}

func TestHandlersApplyReloadFailureReportsApplied(t *testing.T) {
	api := newTestAPI(t)

	var added gridsession.Row
	require.Equal(t, http.StatusCreated, api.do(t, http.MethodPost, RouteRecords, nil, &added))
	api.loads.failLoad.Store(true)

	var applied ApplyResponse
	status := api.do(t, http.MethodPost, RouteSessionApply, nil, &applied)
	require.Equal(t, http.StatusOK, status, fmt.Sprintf("%+v", applied))
	require.Equal(t, gridsession.OutcomeApplied, applied.Outcome)
	require.Equal(t, MessageApplied, applied.Message)
	require.Equal(t, MessageReloadFailed, applied.Warning)
	require.Empty(t, applied.Error)
	require.Len(t, applied.Result.Inserted, 1)

	var session SessionResponse
	require.Equal(t, http.StatusOK, api.do(t, http.MethodGet, RouteSession, nil, &session))
	require.Equal(t, gridsession.StateClean, session.State)

	count, err := api.store.Count(context.Background())
	require.NoError(t, err)
	require.Equal(t, 3, count)

	// The saved batch is not written again
	require.Equal(t, http.StatusOK, api.do(t, http.MethodPost, RouteSessionApply, nil, &applied))
	require.Equal(t, gridsession.OutcomeNothingToApply, applied.Outcome)
}
