package health

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCheckerAggregates(t *testing.T) {
	c := NewChecker()
	c.Register("store", PingCheck(func(context.Context) error { return nil }, false))
	c.Register("cache", PingCheck(func(context.Context) error { return errors.New("refused") }, true))

	report := c.Run(context.Background())
	assert.Equal(t, StatusDegraded, report.Status)
	assert.Equal(t, StatusUp, report.Components["store"].Status)
	assert.Equal(t, "refused", report.Components["cache"].Message)

	c.Register("store", PingCheck(func(context.Context) error { return errors.New("gone") }, false))
	assert.Equal(t, StatusDown, c.Run(context.Background()).Status)
}

func TestPingCheckNotConfigured(t *testing.T) {
	got := PingCheck(nil, true)(context.Background())
	assert.Equal(t, StatusDegraded, got.Status)
}

func TestReadyHandler(t *testing.T) {
	c := NewChecker()
	c.Register("store", PingCheck(func(context.Context) error { return nil }, false))

	rec := httptest.NewRecorder()
	c.ReadyHandler()(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	c.Register("engine", PingCheck(func(context.Context) error { return errors.New("closed") }, false))
	rec = httptest.NewRecorder()
	c.ReadyHandler()(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
