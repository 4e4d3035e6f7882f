package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	_const "swgconf/internal/const"
)

func TestCounters(t *testing.T) {
	m := New()
	m.PatchResult(_const.ResultSuccess)
	m.PatchResult(_const.ResultSuccess)
	m.PatchResult(_const.ResultNoop)
	m.SnapshotOp(_const.OpSnapshotSave, nil)
	m.SnapshotOp(_const.OpSnapshotSave, errors.New("disk full"))
	m.ApplyOutcome(_const.OutcomePartial)
	m.ObserveCopy(_const.OpSnapshotSave, 250*time.Millisecond)

	if got := testutil.ToFloat64(m.patches.WithLabelValues(_const.ResultSuccess)); got != 2 {
		t.Errorf("Expected 2 successful patches, got %v", got)
	}
	if got := testutil.ToFloat64(m.snapshotOps.WithLabelValues(_const.OpSnapshotSave, _const.ResultFailure)); got != 1 {
		t.Errorf("Expected 1 failed save, got %v", got)
	}
	if got := testutil.ToFloat64(m.applyOutcomes.WithLabelValues(_const.OutcomePartial)); got != 1 {
		t.Errorf("Expected 1 partial apply, got %v", got)
	}
}

func TestHandler(t *testing.T) {
	m := New()
	m.ApplyOutcome(_const.OutcomeFull)

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	if err != nil {
		t.Fatalf("GET failed: %v", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if !strings.Contains(string(body), `swgconf_apply_outcomes_total{outcome="full"} 1`) {
		t.Fatalf("Metric missing from output:\n%s", body)
	}
}
