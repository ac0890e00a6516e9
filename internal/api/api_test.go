package api

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/draftboard/draftboard/internal/quota"
	"github.com/draftboard/draftboard/internal/storage/sqlite"
	"github.com/draftboard/draftboard/internal/thumbs"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	store, err := sqlite.New(context.Background(), t.TempDir()+"/test.db", quota.DefaultLimits())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	thumbStore, err := thumbs.New(t.TempDir())
	require.NoError(t, err)

	mux := http.NewServeMux()
	NewServer(store, thumbStore, true).Register(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func doJSON(t *testing.T, method, url string, body interface{}) (*http.Response, map[string]interface{}) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, url, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var decoded map[string]interface{}
	_ = json.NewDecoder(resp.Body).Decode(&decoded)
	return resp, decoded
}

func flowchartSpec(nodeIDs ...string) map[string]interface{} {
	nodes := make([]map[string]interface{}, len(nodeIDs))
	for i, id := range nodeIDs {
		nodes[i] = map[string]interface{}{"id": id, "label": "Node " + id}
	}
	return map[string]interface{}{"type": "flowchart", "nodes": nodes, "edges": []interface{}{}}
}

func createDiagram(t *testing.T, srv *httptest.Server, name string) string {
	t.Helper()
	resp, body := doJSON(t, http.MethodPost, srv.URL+"/api/diagrams", map[string]interface{}{
		"name": name,
		"spec": flowchartSpec("a"),
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	return body["id"].(string)
}

func TestCreateGetDelete(t *testing.T) {
	srv := newTestServer(t)

	id := createDiagram(t, srv, "Checkout Flow")

	resp, body := doJSON(t, http.MethodGet, srv.URL+"/api/diagrams/"+id, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Checkout Flow", body["name"])
	assert.Equal(t, float64(1), body["version"])

	resp, _ = doJSON(t, http.MethodDelete, srv.URL+"/api/diagrams/"+id, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, body = doJSON(t, http.MethodGet, srv.URL+"/api/diagrams/"+id, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	errBody := body["error"].(map[string]interface{})
	assert.Equal(t, "NOT_FOUND", errBody["code"])
}

func TestCreateValidationEnvelope(t *testing.T) {
	srv := newTestServer(t)

	resp, body := doJSON(t, http.MethodPost, srv.URL+"/api/diagrams", map[string]interface{}{
		"name": "Bad",
		"spec": map[string]interface{}{"type": "hologram", "nodes": []interface{}{}, "edges": []interface{}{}},
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	errBody := body["error"].(map[string]interface{})
	assert.Equal(t, "VALIDATION_ERROR", errBody["code"])
	// devMode server includes the offending paths.
	assert.NotNil(t, errBody["details"])
}

func TestUpdateConflictEnvelope(t *testing.T) {
	srv := newTestServer(t)
	id := createDiagram(t, srv, "Doc")

	update := func(base int64, nodes ...string) (*http.Response, map[string]interface{}) {
		return doJSON(t, http.MethodPut, srv.URL+"/api/diagrams/"+id, map[string]interface{}{
			"spec":        flowchartSpec(nodes...),
			"baseVersion": base,
		})
	}

	resp, body := update(1, "a", "b")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(2), body["version"])

	resp, body = update(1, "a", "c")
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, true, body["conflict"])
	assert.Equal(t, float64(2), body["currentVersion"])

	resp, body = update(2, "a", "c")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(3), body["version"])
}

func TestVersionsAndTimeline(t *testing.T) {
	srv := newTestServer(t)
	id := createDiagram(t, srv, "Doc")

	for i := 2; i <= 3; i++ {
		ids := make([]string, i)
		for j := range ids {
			ids[j] = fmt.Sprintf("n%d", j)
		}
		resp, _ := doJSON(t, http.MethodPut, srv.URL+"/api/diagrams/"+id, map[string]interface{}{
			"spec": flowchartSpec(ids...),
		})
		require.Equal(t, http.StatusOK, resp.StatusCode)
	}

	resp, body := doJSON(t, http.MethodGet, srv.URL+"/api/diagrams/"+id+"/versions", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(3), body["total"])

	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/api/diagrams/"+id+"/timeline", nil)
	timelineResp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer timelineResp.Body.Close()
	var entries []map[string]interface{}
	require.NoError(t, json.NewDecoder(timelineResp.Body).Decode(&entries))
	require.Len(t, entries, 3)
	// Newest first; each annotated with the diff against its parent.
	assert.Equal(t, float64(3), entries[0]["version"])
	assert.Contains(t, entries[0]["summary"], "added")
	assert.Equal(t, "Initial version", entries[2]["summary"])

	// Restore rewinds the spec and appends a new version.
	resp, body = doJSON(t, http.MethodPost, srv.URL+"/api/diagrams/"+id+"/restore",
		map[string]interface{}{"version": 1})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(4), body["version"])
}

func TestForkEndpoint(t *testing.T) {
	srv := newTestServer(t)
	id := createDiagram(t, srv, "Original")

	resp, body := doJSON(t, http.MethodPost, srv.URL+"/api/diagrams/"+id+"/fork",
		map[string]interface{}{"name": "Copy"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "Copy", body["name"])
	assert.NotEqual(t, id, body["id"])
	assert.Equal(t, float64(1), body["version"])
}

func TestThumbnailRoundTrip(t *testing.T) {
	srv := newTestServer(t)
	id := createDiagram(t, srv, "Doc")

	png := "data:image/png;base64," + base64.StdEncoding.EncodeToString([]byte("\x89PNGfake"))
	resp, _ := doJSON(t, http.MethodPut, srv.URL+"/api/diagrams/"+id+"/thumbnail",
		map[string]interface{}{"dataUrl": png})
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, body := doJSON(t, http.MethodGet, srv.URL+"/api/diagrams/"+id+"/thumbnail", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, png, body["dataUrl"])

	// SVG payloads are refused.
	svg := "data:image/svg+xml;base64," + base64.StdEncoding.EncodeToString([]byte("<svg/>"))
	resp, _ = doJSON(t, http.MethodPut, srv.URL+"/api/diagrams/"+id+"/thumbnail",
		map[string]interface{}{"dataUrl": svg})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestListEndpoint(t *testing.T) {
	srv := newTestServer(t)
	for i := 0; i < 3; i++ {
		createDiagram(t, srv, fmt.Sprintf("Doc %d", i))
	}

	resp, body := doJSON(t, http.MethodGet, srv.URL+"/api/diagrams?limit=2", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(3), body["total"])
	assert.Len(t, body["data"], 2)
}

func TestStatsEndpoint(t *testing.T) {
	srv := newTestServer(t)
	createDiagram(t, srv, "Doc")

	resp, body := doJSON(t, http.MethodGet, srv.URL+"/api/stats", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(1), body["diagramCount"])
}
