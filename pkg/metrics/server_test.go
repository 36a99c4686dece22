package metrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestNewServerMetricsDisabled(t *testing.T) {
	resetForTest()

	m := NewServerMetrics()
	require.Nil(t, m)

	// All recording methods must be safe on a nil instance.
	m.RecordMountOperation("mount", nil)
	m.SetActiveMounts(3)
	m.AddUnloadedInodes("/mnt/a", 10)
	m.RecordUnloadPass()
	m.FlushNow()
}

func TestServerMetricsRecording(t *testing.T) {
	resetForTest()
	InitRegistry()
	t.Cleanup(resetForTest)

	m := NewServerMetrics()
	require.NotNil(t, m)

	m.RecordMountOperation("mount", nil)
	m.RecordMountOperation("mount", errors.New("boom"))
	m.RecordMountOperation("unmount", nil)
	m.SetActiveMounts(2)

	require.Equal(t, float64(1),
		testutil.ToFloat64(m.mountOperations.WithLabelValues("mount", "ok")))
	require.Equal(t, float64(1),
		testutil.ToFloat64(m.mountOperations.WithLabelValues("mount", "error")))
	require.Equal(t, float64(1),
		testutil.ToFloat64(m.mountOperations.WithLabelValues("unmount", "ok")))
	require.Equal(t, float64(2), testutil.ToFloat64(m.mountsActive))
}

func TestServerMetricsFlushPublishesStaged(t *testing.T) {
	resetForTest()
	InitRegistry()
	t.Cleanup(resetForTest)

	m := NewServerMetrics()
	require.NotNil(t, m)

	m.AddUnloadedInodes("/mnt/a", 5)
	m.AddUnloadedInodes("/mnt/a", 3)
	m.AddUnloadedInodes("/mnt/b", 1)

	// Nothing published until the flush.
	require.Equal(t, float64(0),
		testutil.ToFloat64(m.inodesUnloaded.WithLabelValues("/mnt/a")))

	m.FlushNow()

	require.Equal(t, float64(8),
		testutil.ToFloat64(m.inodesUnloaded.WithLabelValues("/mnt/a")))
	require.Equal(t, float64(1),
		testutil.ToFloat64(m.inodesUnloaded.WithLabelValues("/mnt/b")))
	require.Equal(t, float64(1), testutil.ToFloat64(m.statsFlushes))

	// A second flush publishes nothing new for the mounts.
	m.FlushNow()
	require.Equal(t, float64(8),
		testutil.ToFloat64(m.inodesUnloaded.WithLabelValues("/mnt/a")))
	require.Equal(t, float64(2), testutil.ToFloat64(m.statsFlushes))
}

func TestServerMetricsZeroCountIgnored(t *testing.T) {
	resetForTest()
	InitRegistry()
	t.Cleanup(resetForTest)

	m := NewServerMetrics()
	require.NotNil(t, m)

	m.AddUnloadedInodes("/mnt/a", 0)
	m.AddUnloadedInodes("/mnt/a", -4)
	m.FlushNow()

	require.Equal(t, float64(0),
		testutil.ToFloat64(m.inodesUnloaded.WithLabelValues("/mnt/a")))
}

func TestInitRegistryIdempotent(t *testing.T) {
	resetForTest()
	t.Cleanup(resetForTest)

	InitRegistry()
	first := GetRegistry()
	InitRegistry()
	require.Same(t, first, GetRegistry())
	require.True(t, IsEnabled())
}
