package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestInit(t *testing.T) {
	Init()
	assert.Equal(t, float64(1), testutil.ToFloat64(BuildInfo.WithLabelValues(Version)))
}

func TestRecordRequest(t *testing.T) {
	RequestsTotal.Reset()
	RequestDuration.Reset()

	RecordRequest("GET", "/api/v1/tracks/{id}", 200, 100*time.Millisecond)
	RecordRequest("GET", "/api/v1/tracks/{id}", 404, 10*time.Millisecond)

	assert.Equal(t, float64(1), testutil.ToFloat64(RequestsTotal.WithLabelValues("GET", "/api/v1/tracks/{id}", "2xx")))
	assert.Equal(t, float64(1), testutil.ToFloat64(RequestsTotal.WithLabelValues("GET", "/api/v1/tracks/{id}", "4xx")))
}

func TestCacheLookups(t *testing.T) {
	CacheLookups.Reset()

	RecordCacheHit()
	RecordCacheHit()
	RecordCacheMiss()
	RecordCacheError()

	assert.Equal(t, float64(2), testutil.ToFloat64(CacheLookups.WithLabelValues("hit")))
	assert.Equal(t, float64(1), testutil.ToFloat64(CacheLookups.WithLabelValues("miss")))
	assert.Equal(t, float64(1), testutil.ToFloat64(CacheLookups.WithLabelValues("error")))
}

func TestRecordJob(t *testing.T) {
	JobsTotal.Reset()
	JobDuration.Reset()

	RecordJob("lyrics", nil, false, time.Second)
	RecordJob("lyrics", errors.New("boom"), false, time.Second)
	RecordJob("lyrics", nil, true, time.Second)

	assert.Equal(t, float64(1), testutil.ToFloat64(JobsTotal.WithLabelValues("lyrics", "success")))
	assert.Equal(t, float64(1), testutil.ToFloat64(JobsTotal.WithLabelValues("lyrics", "error")))
	assert.Equal(t, float64(1), testutil.ToFloat64(JobsTotal.WithLabelValues("lyrics", "panic")))
}

func TestRecordPrimingJob(t *testing.T) {
	PrimingUnits.Reset()
	before := testutil.ToFloat64(PrimingJobs)

	RecordPrimingJob(4, 1)
	RecordPrimingCompletion()

	assert.Equal(t, before+1, testutil.ToFloat64(PrimingJobs))
	assert.Equal(t, float64(4), testutil.ToFloat64(PrimingUnits.WithLabelValues("dispatched")))
	assert.Equal(t, float64(1), testutil.ToFloat64(PrimingUnits.WithLabelValues("skipped")))
	assert.Equal(t, float64(1), testutil.ToFloat64(PrimingUnits.WithLabelValues("completed")))
}

func TestStatusCodeToString(t *testing.T) {
	tests := []struct {
		code int
		want string
	}{
		{200, "2xx"},
		{304, "3xx"},
		{429, "4xx"},
		{503, "5xx"},
		{0, "unknown"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusCodeToString(tt.code))
	}
}
