package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestInstrumentRecordsRouteTemplate(t *testing.T) {
	metrics := NewMetrics()

	router := mux.NewRouter()
	router.Use(metrics.Instrument)
	router.HandleFunc("/instrumented/{user_id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/instrumented/user-77", nil))

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, 1.0, testutil.ToFloat64(httpRequestsTotal.WithLabelValues("GET", "/instrumented/{user_id}", "201")))
	// The raw path with the user id never becomes a label.
	assert.Equal(t, 0.0, testutil.ToFloat64(httpRequestsTotal.WithLabelValues("GET", "/instrumented/user-77", "201")))
}

func TestInstrumentDefaultsToStatus200(t *testing.T) {
	metrics := NewMetrics()

	router := mux.NewRouter()
	router.Use(metrics.Instrument)
	router.HandleFunc("/implicit-status", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/implicit-status", nil))

	assert.Equal(t, "ok", rec.Body.String())
	assert.Equal(t, 1.0, testutil.ToFloat64(httpRequestsTotal.WithLabelValues("GET", "/implicit-status", "200")))
}

func TestMetricsFacade(t *testing.T) {
	metrics := NewMetrics()

	metrics.RecordMessageReceived("facade-test")
	assert.Equal(t, 1.0, testutil.ToFloat64(messagesReceived.WithLabelValues("facade-test")))

	metrics.RecordCrisisDetection("immediate")
	assert.Equal(t, 1.0, testutil.ToFloat64(crisisDetections.WithLabelValues("immediate")))

	metrics.RecordAIRequest("facade-test", 120*time.Millisecond)
	assert.Equal(t, 1.0, testutil.ToFloat64(aiRequestsTotal.WithLabelValues("facade-test")))

	metrics.RecordFeedbackRating(4)
	assert.Equal(t, 1.0, testutil.ToFloat64(feedbackRatings.WithLabelValues("4")))

	metrics.RecordWebhookFailure("signature")
	assert.Equal(t, 1.0, testutil.ToFloat64(webhookFailures.WithLabelValues("signature")))

	hits := testutil.ToFloat64(cacheHits)
	metrics.RecordCacheHit()
	metrics.RecordCacheMiss()
	assert.Equal(t, hits+1, testutil.ToFloat64(cacheHits))

	metrics.SetActiveSessions(12)
	assert.Equal(t, 12.0, testutil.ToFloat64(activeSessions))
}
