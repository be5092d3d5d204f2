package store

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func featuresHandler(hits *int64) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(hits, 1)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"success": true,
			"data": []map[string]interface{}{
				{
					"id": "r1",
					"geometry": map[string]interface{}{
						"type":        "Point",
						"coordinates": []float64{106.7, 10.8},
					},
					"properties": map[string]interface{}{"status": "pending"},
				},
			},
		})
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestRefresherPollsIntoStore(t *testing.T) {
	var hits int64
	server := httptest.NewServer(featuresHandler(&hits))
	defer server.Close()

	cfg := &Config{URL: server.URL}
	cfg.Poll.Period = 20 * time.Millisecond
	cfg.Poll.Timeout = time.Second
	cfg.Boot.Retries = 3
	cfg.Boot.RetryCooldown = 10 * time.Millisecond

	s := New()
	r := NewRefresher(cfg, s)
	if err := r.Start(); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	defer r.Stop()

	waitFor(t, "first refresh", func() bool {
		return s.Len() == 1
	})
	waitFor(t, "repeated polls", func() bool {
		return atomic.LoadInt64(&hits) >= 3
	})
}

func TestRefresherSurvivesVisibilityFlips(t *testing.T) {
	var hits int64
	server := httptest.NewServer(featuresHandler(&hits))
	defer server.Close()

	cfg := &Config{URL: server.URL}
	cfg.Poll.Period = 20 * time.Millisecond
	cfg.Poll.Timeout = time.Second
	cfg.Boot.Retries = 3
	cfg.Boot.RetryCooldown = 10 * time.Millisecond

	s := New()
	r := NewRefresher(cfg, s)
	if err := r.Start(); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	defer r.Stop()

	waitFor(t, "first refresh", func() bool {
		return atomic.LoadInt64(&hits) >= 1
	})

	// hiding the view restarts the poll session with a doubled period
	r.SetVisible(false)
	hidden := atomic.LoadInt64(&hits)
	waitFor(t, "polling while hidden", func() bool {
		return atomic.LoadInt64(&hits) > hidden
	})

	r.SetVisible(true)
	visible := atomic.LoadInt64(&hits)
	waitFor(t, "polling after becoming visible again", func() bool {
		return atomic.LoadInt64(&hits) > visible
	})

	if s.Len() != 1 {
		t.Errorf("expected the store to keep its record across restarts, got %d", s.Len())
	}
}
