package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	return rec.Body.String()
}

func TestMetrics_Exposition(t *testing.T) {
	m := New()
	m.SegmentGenerated(KindOpening)
	m.SegmentGenerated(KindAdvance)
	m.SegmentGenerated(KindAdvance)
	m.InteractionApplied("scroll")
	m.MergeRequest("accepted")
	m.ObserveRequest(http.MethodGet, http.StatusOK, 10*time.Millisecond)
	m.SetQueueDepth(3)

	body := scrape(t, m)
	for _, line := range []string{
		`infinite_story_segments_generated_total{kind="opening"} 1`,
		`infinite_story_segments_generated_total{kind="advance"} 2`,
		`infinite_story_interactions_total{type="scroll"} 1`,
		`infinite_story_merge_requests_total{status="accepted"} 1`,
		`infinite_story_http_requests_total{method="GET",status="200"} 1`,
		`infinite_story_http_request_duration_seconds_count{method="GET"} 1`,
		`infinite_story_interaction_queue_depth 3`,
	} {
		assert.Contains(t, body, line)
	}
}

func TestMetrics_RegistriesAreIndependent(t *testing.T) {
	a, b := New(), New()
	a.SegmentGenerated(KindMerge)

	assert.Contains(t, scrape(t, a), `kind="merge"`)
	assert.NotContains(t, scrape(t, b), `kind="merge"`)
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.SegmentGenerated(KindMerge)
		m.InteractionApplied("click")
		m.MergeRequest("rejected")
		m.ObserveRequest("POST", 500, time.Second)
		m.SetQueueDepth(1)
	})
	assert.Nil(t, m.Registry())

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
