package dashboard

import (
	"context"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type mockSource struct {
	summary *Summary
	err     error

	recent, top int
}

func (m *mockSource) Summary(_ context.Context, recent, top int) (*Summary, error) {
	m.recent, m.top = recent, top
	if m.err != nil {
		return nil, m.err
	}
	return m.summary, nil
}

func TestService_Summary(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	ctx := zctx.Base(context.Background(), zap.New(core))

	src := &mockSource{summary: &Summary{TotalOrders: 7, TotalRevenue: decimal.RequireFromString("120.50")}}
	svc := NewService(src)
	tick := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	svc.now = func() time.Time {
		tick = tick.Add(time.Millisecond)
		return tick
	}

	sum, err := svc.Summary(ctx)
	require.NoError(t, err)
	assert.Equal(t, 7, sum.TotalOrders)
	assert.Equal(t, RecentOrders, src.recent)
	assert.Equal(t, TopSellers, src.top)

	entries := logs.FilterMessage("Dashboard summary computed").All()
	require.Len(t, entries, 1)
	assert.Equal(t, int64(7), entries[0].ContextMap()["orders"])
}

func TestService_SummaryError(t *testing.T) {
	svc := NewService(&mockSource{err: errors.New("connection reset")})
	_, err := svc.Summary(context.Background())
	require.ErrorContains(t, err, "dashboard summary")
}
