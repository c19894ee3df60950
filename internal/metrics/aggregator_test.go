package metrics

import (
	"testing"
	"time"

	"github.com/dangphuc2470/TrafficControlModel/pkg/types"
)

func sample(episode int, reward float64, outOfOrder bool) types.MetricSample {
	return types.MetricSample{
		Episode:     episode,
		Reward:      reward,
		QueueLength: float64(episode) * 0.5,
		OutOfOrder:  outOfOrder,
		Timestamp:   time.Now(),
	}
}

func TestAggregator_LatestSkipsOutOfOrder(t *testing.T) {
	agg := New(10)

	agg.Append("a1", sample(1, 0.1, false))
	agg.Append("a1", sample(5, 0.5, false))
	agg.Append("a1", sample(2, 0.2, true))

	latest, ok := agg.Latest("a1")
	if !ok {
		t.Fatal("Latest returned no sample")
	}
	if latest.Episode != 5 {
		t.Errorf("Expected latest in-order episode 5, got %d", latest.Episode)
	}
}

func TestAggregator_LatestEmpty(t *testing.T) {
	agg := New(10)

	if _, ok := agg.Latest("missing"); ok {
		t.Error("Latest for an unknown agent must report no sample")
	}

	agg.Append("a1", sample(1, 0.1, true))
	if _, ok := agg.Latest("a1"); ok {
		t.Error("Latest must report no sample when only out-of-order samples exist")
	}
}

func TestAggregator_SeriesOrderAndLimit(t *testing.T) {
	agg := New(10)
	for i := 1; i <= 5; i++ {
		agg.Append("a1", sample(i, float64(i), false))
	}

	full := agg.Series("a1", 0)
	if len(full) != 5 {
		t.Fatalf("Expected 5 samples, got %d", len(full))
	}
	for i, s := range full {
		if s.Episode != i+1 {
			t.Errorf("Series must run oldest to newest, got episode %d at %d", s.Episode, i)
		}
	}

	capped := agg.Series("a1", 2)
	if len(capped) != 2 || capped[0].Episode != 4 || capped[1].Episode != 5 {
		t.Errorf("Capped series must keep the newest samples, got %+v", capped)
	}
}

func TestAggregator_CapEvictsOldest(t *testing.T) {
	agg := New(3)
	for i := 1; i <= 5; i++ {
		agg.Append("a1", sample(i, float64(i), false))
	}

	got := agg.Series("a1", 0)
	if len(got) != 3 {
		t.Fatalf("Expected cap of 3, got %d", len(got))
	}
	if got[0].Episode != 3 || got[2].Episode != 5 {
		t.Errorf("Cap must evict oldest samples, got episodes %d..%d", got[0].Episode, got[2].Episode)
	}
}

func TestAggregator_Comparison(t *testing.T) {
	agg := New(10)

	agg.Append("a1", sample(1, 1.0, false))
	agg.Append("a1", sample(2, 2.0, false))
	agg.Append("a2", sample(2, 20.0, false))
	agg.Append("a2", sample(3, 30.0, false))
	agg.Append("a2", sample(1, 99.0, true)) // excluded

	view := agg.Comparison()

	if len(view.Episodes) != 3 {
		t.Fatalf("Expected common episode axis [1 2 3], got %v", view.Episodes)
	}
	for i, want := range []int{1, 2, 3} {
		if view.Episodes[i] != want {
			t.Errorf("Episode axis mismatch at %d: got %d", i, view.Episodes[i])
		}
	}

	a1 := view.Rewards["a1"]
	if a1[0] == nil || *a1[0] != 1.0 || a1[2] != nil {
		t.Errorf("a1 rewards misaligned: %v", a1)
	}

	a2 := view.Rewards["a2"]
	if a2[0] != nil {
		t.Error("a2's out-of-order episode 1 sample must be excluded")
	}
	if a2[1] == nil || *a2[1] != 20.0 || a2[2] == nil || *a2[2] != 30.0 {
		t.Errorf("a2 rewards misaligned: %v", a2)
	}
}

func TestAggregator_Reset(t *testing.T) {
	agg := New(10)
	agg.Append("a1", sample(1, 1.0, false))

	agg.Reset()

	if got := agg.Series("a1", 0); len(got) != 0 {
		t.Errorf("Reset must drop all series, got %d samples", len(got))
	}
}
