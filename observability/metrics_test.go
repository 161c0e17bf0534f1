package observability

import (
	"math/big"
	"testing"
	"time"

	"swapmarket/core/events"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestMarketplaceMetricsRecordSale(t *testing.T) {
	m := Marketplace()
	royaltyBefore := testutil.ToFloat64(m.payouts.WithLabelValues("royalty"))
	feeBefore := testutil.ToFloat64(m.payouts.WithLabelValues("fee"))
	unitsBefore := testutil.ToFloat64(m.units)

	m.RecordSale(big.NewInt(100_000), big.NewInt(25_000), big.NewInt(875_000))

	require.Equal(t, royaltyBefore+100_000, testutil.ToFloat64(m.payouts.WithLabelValues("royalty")))
	require.Equal(t, feeBefore+25_000, testutil.ToFloat64(m.payouts.WithLabelValues("fee")))
	require.Equal(t, unitsBefore+1, testutil.ToFloat64(m.units))
}

func TestMarketplaceMetricsObserve(t *testing.T) {
	m := Marketplace()
	before := testutil.ToFloat64(m.operations.WithLabelValues("collect", "payment_mismatch"))
	m.Observe("collect", "payment_mismatch", 5*time.Millisecond)
	require.Equal(t, before+1, testutil.ToFloat64(m.operations.WithLabelValues("collect", "payment_mismatch")))

	m.SetPaused(true)
	require.Equal(t, float64(1), testutil.ToFloat64(m.paused))
	m.SetPaused(false)
	require.Equal(t, float64(0), testutil.ToFloat64(m.paused))
}

func TestHTTPMetricsCountsErrors(t *testing.T) {
	m := HTTP()
	before := testutil.ToFloat64(m.errors.WithLabelValues("/v1/offers", "POST", "409"))
	m.Observe("/v1/offers", "POST", 409, time.Millisecond)
	require.Equal(t, before+1, testutil.ToFloat64(m.errors.WithLabelValues("/v1/offers", "POST", "409")))

	throttled := testutil.ToFloat64(m.throttles.WithLabelValues("rate_limit"))
	m.RecordThrottle("rate_limit")
	require.Equal(t, throttled+1, testutil.ToFloat64(m.throttles.WithLabelValues("rate_limit")))
}

func TestEventMetricsImplementEmitter(t *testing.T) {
	var emitter events.Emitter = Events()
	before := testutil.ToFloat64(Events().emitted.WithLabelValues("marketplace.offer.created"))
	emitter.Emit(events.Record{Type: "marketplace.offer.created"})
	require.Equal(t, before+1, testutil.ToFloat64(Events().emitted.WithLabelValues("marketplace.offer.created")))
}
