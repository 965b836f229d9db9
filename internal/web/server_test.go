package web

import (
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mkorolev/coindeck/internal/domain"
	"github.com/mkorolev/coindeck/internal/services/marketdata"
)

type fakeData struct {
	status   marketdata.Status
	snapshot marketdata.Snapshot
}

func (f *fakeData) GetStatus() marketdata.Status      { return f.status }
func (f *fakeData) SnapshotView() marketdata.Snapshot { return f.snapshot }
func (f *fakeData) Subscribe(string, []marketdata.DataType, func(marketdata.Snapshot)) func() {
	return func() {}
}

type fakePortfolio struct {
	summary domain.PortfolioSnapshot
}

func (f *fakePortfolio) PortfolioSummary() domain.PortfolioSnapshot { return f.summary }

func TestHandleStatus(t *testing.T) {
	data := &fakeData{status: marketdata.Status{HealthStatus: "healthy", IntervalScale: 1.5}}
	s := NewServer(":0", data, &fakePortfolio{}, nil)

	rec := httptest.NewRecorder()
	s.handleStatus(rec, httptest.NewRequest("GET", "/status", nil))

	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	var got marketdata.Status
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "healthy", got.HealthStatus)
	assert.Equal(t, 1.5, got.IntervalScale)
}

func TestHandlePortfolio(t *testing.T) {
	portfolio := &fakePortfolio{summary: domain.PortfolioSnapshot{
		Cash:        decimal.NewFromInt(1_000_000),
		TotalValue:  decimal.NewFromInt(1_000_000),
		LastUpdated: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
	}}
	s := NewServer(":0", &fakeData{}, portfolio, nil)

	rec := httptest.NewRecorder()
	s.handlePortfolio(rec, httptest.NewRequest("GET", "/portfolio", nil))

	var got map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "1000000", got["cash"])
}
