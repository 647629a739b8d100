package observability

import (
	"math/big"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestSovereignMetricsCounters(t *testing.T) {
	m := Sovereign()
	if m != Sovereign() {
		t.Fatalf("expected a single registry")
	}

	before := testutil.ToFloat64(m.intents.WithLabelValues("buy", "ok"))
	m.ObserveIntent(" Buy ", "OK", 5*time.Millisecond)
	if got := testutil.ToFloat64(m.intents.WithLabelValues("buy", "ok")); got != before+1 {
		t.Fatalf("intent counter = %v, want %v", got, before+1)
	}

	m.RecordVolume("moon", "buy", big.NewInt(200_000_000))
	m.RecordVolume("moon", "buy", big.NewInt(0))
	if got := testutil.ToFloat64(m.volume.WithLabelValues("moon", "buy")); got != 200_000_000 {
		t.Fatalf("volume = %v", got)
	}

	m.SubscriberOpened()
	m.SubscriberOpened()
	m.SubscriberClosed()
	if got := testutil.ToFloat64(m.subscribers); got != 1 {
		t.Fatalf("subscribers = %v", got)
	}

	m.RecordEvent("")
	if got := testutil.ToFloat64(m.events.WithLabelValues("unknown")); got != 1 {
		t.Fatalf("unknown events = %v", got)
	}
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *SovereignMetrics
	m.ObserveIntent("buy", "ok", time.Second)
	m.RecordEvent("x")
	m.RecordVolume("moon", "sell", big.NewInt(1))
	m.SubscriberOpened()
	m.SubscriberClosed()
	m.RecordThrottle("intents")
	m.RecordJournalWrite(true)
}
