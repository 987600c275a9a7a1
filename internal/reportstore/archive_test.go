package reportstore

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestArchiver(t *testing.T, store *Store, endpoint string) *Archiver {
	t.Helper()
	a, err := NewArchiver(context.Background(), store, ArchiveConfig{
		Bucket:          "sentinel-reports",
		Prefix:          "reports/",
		Endpoint:        endpoint,
		Region:          "us-east-1",
		AccessKeyID:     "test-key",
		SecretAccessKey: "test-secret",
	}, zerolog.Nop())
	require.NoError(t, err)
	require.NotNil(t, a)
	return a
}

func TestNewArchiver_ReturnsNilWithoutBucket(t *testing.T) {
	a, err := NewArchiver(context.Background(), nil, ArchiveConfig{}, zerolog.Nop())
	require.NoError(t, err)
	assert.Nil(t, a, "archival is optional and disabled when no bucket is configured")
}

func TestArchiveOne_UploadsToConfiguredBucket(t *testing.T) {
	var uploads atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		uploads.Add(1)
		assert.Contains(t, r.URL.Path, "sentinel-reports")
		assert.Contains(t, r.URL.Path, "reports/")
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	s := newTestStore(t)
	a := newTestArchiver(t, s, server.URL)

	r := sampleReport("task-archive-1", "600519", time.Now().UTC().Truncate(time.Second))
	require.NoError(t, a.ArchiveOne(context.Background(), r))
	assert.Equal(t, int32(1), uploads.Load())
}

func TestArchiveSince_UploadsEveryReportInRange(t *testing.T) {
	var uploads atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		uploads.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	s := newTestStore(t)
	ctx := context.Background()
	base := time.Now().UTC().Truncate(time.Second)

	require.NoError(t, s.Save(ctx, sampleReport("t1", "600519", base.Add(-2*time.Hour))))
	require.NoError(t, s.Save(ctx, sampleReport("t2", "600519", base.Add(-time.Hour))))
	require.NoError(t, s.Save(ctx, sampleReport("t3", "600519", base.Add(-30*time.Hour))))

	a := newTestArchiver(t, s, server.URL)
	a.archiveSince(ctx, base.Add(-3*time.Hour))

	assert.Equal(t, int32(2), uploads.Load(), "only reports created within the lookback window are archived")
}
