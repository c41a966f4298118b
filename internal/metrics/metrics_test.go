package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUploads_RecordUpload(t *testing.T) {
	reg := prometheus.NewRegistry()
	u, err := NewUploads(reg)
	require.NoError(t, err)

	u.RecordUpload("image", "local", 10, 5*time.Millisecond, true)
	u.RecordUpload("image", "local", 99, time.Millisecond, false)
	u.RecordUpload("video", "r2", 1000, time.Second, true)

	assert.Equal(t, 1.0, testutil.ToFloat64(u.total.WithLabelValues("image", "local", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(u.total.WithLabelValues("image", "local", "failure")))
	assert.Equal(t, 10.0, testutil.ToFloat64(u.bytes.WithLabelValues("image")))
	assert.Equal(t, 1000.0, testutil.ToFloat64(u.bytes.WithLabelValues("video")))
	assert.Equal(t, 2, testutil.CollectAndCount(u.duration))
}

func TestNewUploads_ReusesRegisteredCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	first, err := NewUploads(reg)
	require.NoError(t, err)
	second, err := NewUploads(reg)
	require.NoError(t, err)

	second.RecordUpload("image", "r2", 1, time.Millisecond, true)
	assert.Equal(t, 1.0, testutil.ToFloat64(first.total.WithLabelValues("image", "r2", "success")))
}

func TestUploads_NilIsSafe(t *testing.T) {
	var u *Uploads
	assert.NotPanics(t, func() { u.RecordUpload("image", "local", 1, time.Millisecond, true) })
}
