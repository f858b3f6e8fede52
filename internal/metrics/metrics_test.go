package metrics

import (
	"context"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zappabad/herdmarket/internal/engine"
)

func TestMetricsPublish(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	clock := time.Unix(0, 0)
	m.now = func() time.Time {
		clock = clock.Add(10 * time.Millisecond)
		return clock
	}

	ctx := context.Background()
	require.NoError(t, m.Publish(ctx, &engine.StepRecord{Model: engine.ModelRecord{
		Step: 0, Price: 101, Bids: 3, Offers: 1, Optimists: 4, Pessimists: 4, Randoms: 2,
	}}))
	require.NoError(t, m.Publish(ctx, &engine.StepRecord{Model: engine.ModelRecord{
		Step: 1, Price: 99.5, Bids: 1, Offers: 4, Optimists: 5, Pessimists: 3, Randoms: 2, Switches: 1,
	}}))

	assert.Equal(t, 2.0, testutil.ToFloat64(m.StepsTotal))
	assert.Equal(t, 99.5, testutil.ToFloat64(m.Price))
	assert.Equal(t, -3.0, testutil.ToFloat64(m.ExcessDemand))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.OrdersTotal.WithLabelValues("BID")))
	assert.Equal(t, 5.0, testutil.ToFloat64(m.OrdersTotal.WithLabelValues("OFFER")))
	assert.Equal(t, 5.0, testutil.ToFloat64(m.Population.WithLabelValues("OPTIMIST")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SwitchesTotal))
	assert.Equal(t, 1, testutil.CollectAndCount(m.StepInterval))
}

func TestHandlerServesRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	require.NoError(t, m.Publish(context.Background(), &engine.StepRecord{Model: engine.ModelRecord{Price: 100}}))

	srv := httptest.NewServer(Handler(reg))
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(body), "herdmarket_market_price 100"))
	assert.True(t, strings.Contains(string(body), "herdmarket_simulation_steps_total 1"))
}
