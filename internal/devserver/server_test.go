package devserver

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/flowcanvas/internal/client"
	"github.com/rendis/flowcanvas/internal/store"
	"github.com/rendis/flowcanvas/internal/validation"
	"github.com/rendis/flowcanvas/pkg/schema"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	st, err := store.NewLibSQLStore("file:" + filepath.Join(t.TempDir(), "dev.db"))
	require.NoError(t, err)
	require.NoError(t, st.Migrate(context.Background()))
	t.Cleanup(func() { _ = st.Close() })

	v, err := validation.NewValidator(nil, nil)
	require.NoError(t, err)
	srv := httptest.NewServer(New(Deps{
		Store:     st,
		Validator: v,
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	}))
	t.Cleanup(srv.Close)
	return srv
}

const validDoc = `{
  "workflow_type": "work_order",
  "workflow_name": "Work order",
  "nodes": [
    {"id": "1", "node_id": "s", "label": "Start", "type": "start", "position_x": 0, "position_y": 0},
    {"id": "2", "node_id": "e", "label": "End", "type": "end", "position_x": 200, "position_y": 0}
  ],
  "connections": [{"id": "c1", "from_node": "s", "to_node": "e", "condition": null}]
}`

func post(t *testing.T, url, body string) (*http.Response, map[string]any) {
	t.Helper()
	resp, err := http.Post(url+"/api/v1/workflows", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp, out
}

func TestSave_AssignsRevisions(t *testing.T) {
	srv := newTestServer(t)

	resp, body := post(t, srv.URL, validDoc)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, true, body["success"])
	data := body["data"].(map[string]any)
	assert.Equal(t, "v1", data["revision"])
	assert.NotEmpty(t, data["id"])

	_, body = post(t, srv.URL, validDoc)
	assert.Equal(t, "v2", body["data"].(map[string]any)["revision"])
}

func TestSave_RejectsInvalid(t *testing.T) {
	srv := newTestServer(t)

	tests := []struct {
		name string
		body string
	}{
		{"not json", `{`},
		{"missing nodes", `{"workflow_type":"x","connections":[]}`},
		{"dangling reference", `{"workflow_type":"x","nodes":[{"id":"1","node_id":"a","type":"start"}],"connections":[{"id":"c","from_node":"a","to_node":"zz"}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := post(t, srv.URL, tt.body)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
			assert.Equal(t, false, body["success"])
			assert.NotEmpty(t, body["message"])
		})
	}
}

func TestRevisionsAndListing(t *testing.T) {
	srv := newTestServer(t)
	post(t, srv.URL, validDoc)
	post(t, srv.URL, validDoc)

	resp, err := http.Get(srv.URL + "/api/v1/workflows/revisions/work_order")
	require.NoError(t, err)
	defer resp.Body.Close()
	var env schema.Envelope[[]schema.WorkflowDefinition]
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))
	assert.True(t, env.Success)
	require.Len(t, env.Data, 2)
	assert.False(t, env.Data[0].IsActive)
	assert.True(t, env.Data[1].IsActive)

	resp2, err := http.Get(srv.URL + "/api/v1/workflows?start=0&length=1")
	require.NoError(t, err)
	defer resp2.Body.Close()
	var page schema.DefinitionPage
	require.NoError(t, json.NewDecoder(resp2.Body).Decode(&page))
	assert.Equal(t, 2, page.RecordsTotal)
	assert.Len(t, page.Data, 1)
}

func TestRevisions_UnknownTypeIsEmpty(t *testing.T) {
	srv := newTestServer(t)
	resp, err := http.Get(srv.URL + "/api/v1/workflows/revisions/nothing")
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.JSONEq(t, `{"success":true,"data":[]}`, string(raw))
}

func TestGet_NotFound(t *testing.T) {
	srv := newTestServer(t)
	resp, err := http.Get(srv.URL + "/api/v1/workflows/missing")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHistory(t *testing.T) {
	srv := newTestServer(t)
	post(t, srv.URL, validDoc)
	post(t, srv.URL, validDoc)

	resp, err := http.Get(srv.URL + "/api/v1/workflows/history/work_order")
	require.NoError(t, err)
	defer resp.Body.Close()
	var env schema.Envelope[[]store.HistoryEntry]
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))
	require.Len(t, env.Data, 3)
	assert.Equal(t, store.HistorySaved, env.Data[0].Type)
	assert.Equal(t, store.HistoryDeactivated, env.Data[1].Type)
	assert.Equal(t, store.HistorySaved, env.Data[2].Type)
}

func TestCORSPreflight(t *testing.T) {
	srv := newTestServer(t)
	req, err := http.NewRequest(http.MethodOptions, srv.URL+"/api/v1/workflows", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestClientAgainstServer(t *testing.T) {
	srv := newTestServer(t)
	c, err := client.New(client.Config{BaseURL: srv.URL + "/api/v1"})
	require.NoError(t, err)
	ctx := context.Background()

	var doc schema.WorkflowDefinition
	require.NoError(t, json.Unmarshal([]byte(validDoc), &doc))
	saved, err := c.Save(ctx, &doc)
	require.NoError(t, err)
	assert.Equal(t, "v1", saved.Revision)

	defs, err := c.FetchRevisions(ctx, "work_order")
	require.NoError(t, err)
	require.Len(t, defs, 1)
	assert.Equal(t, saved.ID, defs[0].ID)
	assert.Nil(t, defs[0].Connections[0].Condition)

	_, err = c.Save(ctx, &schema.WorkflowDefinition{WorkflowType: "bad"})
	require.Error(t, err)
	assert.True(t, schema.IsCode(err, schema.ErrCodeRemote))
}

type unavailableStore struct{ DefinitionStore }

func (unavailableStore) ListDefinitions(context.Context, int, int) (*schema.DefinitionPage, error) {
	return nil, schema.NewError(schema.ErrCodeStore, "store: database is locked")
}

func TestStoreFailureIsServerError(t *testing.T) {
	srv := httptest.NewServer(New(Deps{
		Store:  unavailableStore{},
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}))
	t.Cleanup(srv.Close)

	resp, err := http.Get(srv.URL + "/api/v1/workflows")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, schema.ErrCodeStore, body["code"])
	assert.Equal(t, false, body["success"])
}
