package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAPI(t *testing.T) (*http.ServeMux, *recordingPublisher, *MemoryStatus) {
	t.Helper()
	pub := &recordingPublisher{}
	status := NewMemoryStatus()
	svc := newService(t, "true")
	mux := http.NewServeMux()
	NewHandler(NewSubmitter(svc.IndexName(), pub, status), svc).Register(mux)
	return mux, pub, status
}

func serve(mux *http.ServeMux, method, target, contentType, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func TestIngestPublishesEvent(t *testing.T) {
	mux, pub, status := newAPI(t)

	rec := serve(mux, http.MethodPut, "/documents/post/7", "application/json", `{"title": "hi"}`)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	var resp IngestResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, IngestResponse{Index: "docs", Type: "post", ID: "7", Status: StatusPending}, resp)

	require.Len(t, pub.events, 1)
	assert.Equal(t, "post#7", pub.events[0].Key)
	ev := pub.events[0].Value.(IngestEvent)
	assert.JSONEq(t, `{"title": "hi"}`, string(ev.Source))
	assert.False(t, ev.IngestedAt.IsZero())

	st, ok := status.Get("docs", "post#7")
	require.True(t, ok)
	assert.Equal(t, StatusPending, st.Status)
}

func TestIngestYAMLAndGeneratedID(t *testing.T) {
	mux, pub, _ := newAPI(t)

	rec := serve(mux, http.MethodPost, "/documents/post", "application/yaml", "title: hi\n")
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	require.Len(t, pub.events, 1)
	ev := pub.events[0].Value.(IngestEvent)
	assert.Equal(t, "yaml", ev.Format)
	assert.Len(t, ev.ID, 36)
	body, err := ev.body()
	require.NoError(t, err)
	assert.Equal(t, "title: hi\n", string(body))
}

func TestIngestRejectsBadRequests(t *testing.T) {
	mux, pub, _ := newAPI(t)

	rec := serve(mux, http.MethodPost, "/documents/post", "", `{broken`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = serve(mux, http.MethodPost, "/documents/.hidden", "", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "validation failed")

	rec = serve(mux, http.MethodPost, "/documents/post?format=xml", "", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	assert.Empty(t, pub.events)
}

func TestIngestPublishFailure(t *testing.T) {
	mux, pub, _ := newAPI(t)
	pub.err = errors.New("broker down")

	rec := serve(mux, http.MethodPost, "/documents/post", "", `{}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestMappingEndpoints(t *testing.T) {
	mux, _, _ := newAPI(t)

	rec := serve(mux, http.MethodGet, "/mappings/post", "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = serve(mux, http.MethodPut, "/mappings/post", "", `{"properties": {"title": {"type": "keyword"}}}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = serve(mux, http.MethodGet, "/mappings/post", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var got struct {
		Type    string         `json:"type"`
		Version int64          `json:"version"`
		Mapping map[string]any `json:"mapping"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "post", got.Type)
	assert.Equal(t, int64(1), got.Version)
	assert.Contains(t, rec.Body.String(), `"keyword"`)

	rec = serve(mux, http.MethodPut, "/mappings/post", "", `{"properties": {"title": {"type": "long"}}}`)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = serve(mux, http.MethodGet, "/mappings", "", "")
	assert.JSONEq(t, `{"index": "docs", "types": ["post"]}`, rec.Body.String())
}

func TestValidateEvent(t *testing.T) {
	err := ValidateEvent(&IngestEvent{Type: "", ID: strings.Repeat("x", maxIDLength+1), Format: "csv"})
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Len(t, ve.Fields, 4)
	assert.Equal(t, "format: unsupported format \"csv\"; id: id must be at most 512 bytes; source: source is required; type: type is required", ve.Error())

	assert.NoError(t, ValidateEvent(&IngestEvent{Type: "post", Source: json.RawMessage(`{}`)}))
}

func TestSubmitterDefaultsIndex(t *testing.T) {
	pub := &recordingPublisher{}
	s := NewSubmitter("docs", pub, nil)
	resp, err := s.Submit(context.Background(), IngestEvent{Type: "post", ID: "1", Source: json.RawMessage(`{}`)})
	require.NoError(t, err)
	assert.Equal(t, "docs", resp.Index)
	assert.Equal(t, "docs", pub.events[0].Value.(IngestEvent).Index)
}

func TestDocumentStatusEndpoint(t *testing.T) {
	mux, _, status := newAPI(t)

	rec := serve(mux, http.MethodGet, "/documents/post/1", "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "post#1")

	require.NoError(t, status.Record(context.Background(), Status{Index: "docs", UID: "post#1", Type: "post", Status: StatusIndexed, SubDocs: 2, ShardID: 1}))
	rec = serve(mux, http.MethodGet, "/documents/post/1", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"index": "docs", "uid": "post#1", "type": "post", "status": "INDEXED", "sub_docs": 2, "shard_id": 1}`, rec.Body.String())
}

func TestIngestRejectsOversizedBody(t *testing.T) {
	mux, pub, _ := newAPI(t)
	body := `{"a": "` + strings.Repeat("x", maxSourceLength) + `"}`

	rec := serve(mux, http.MethodPost, "/documents/post", "", body)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Empty(t, pub.events)
}
