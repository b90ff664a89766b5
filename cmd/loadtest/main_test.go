package main

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGeneratorAddsNewFields(t *testing.T) {
	g := newGenerator(3, 1, 1)
	doc := g.document("event")
	assert.Contains(t, doc, "location")
	assert.Contains(t, doc, "extra_w3_1")

	g = newGenerator(0, 1, 0)
	for i := 0; i < 20; i++ {
		for k := range g.document("article") {
			assert.False(t, strings.HasPrefix(k, "extra_"), k)
		}
	}
}

func TestRunLoadTestPostsDocuments(t *testing.T) {
	var mu sync.Mutex
	paths := map[string]int{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var doc map[string]any
		if r.Method != http.MethodPost || json.Unmarshal(body, &doc) != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		mu.Lock()
		paths[r.URL.Path]++
		mu.Unlock()
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	stats := runLoadTest(Config{
		BaseURL:     srv.URL,
		Types:       []string{"article", "event"},
		Concurrency: 2,
		Duration:    200 * time.Millisecond,
	})
	assert.Positive(t, stats.successCount.Load())
	assert.Zero(t, stats.errorCount.Load())

	mu.Lock()
	defer mu.Unlock()
	assert.Positive(t, paths["/documents/article"])
	assert.Positive(t, paths["/documents/event"])
}

func TestPostReportsStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	status, err := post(context.Background(), srv.Client(), srv.URL+"/documents/x", []byte(`{}`))
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestPercentile(t *testing.T) {
	sorted := []time.Duration{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	assert.Equal(t, time.Duration(5), percentile(sorted, 50))
	assert.Equal(t, time.Duration(10), percentile(sorted, 99))
	assert.Zero(t, percentile(nil, 50))
}
