package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestNewCollectorWithRegistry_Isolated(t *testing.T) {
	// Two collectors on separate registries must not collide.
	a := NewCollectorWithRegistry("rainfall", prometheus.NewRegistry())
	b := NewCollectorWithRegistry("rainfall", prometheus.NewRegistry())

	a.RecordIngestionRows("measurements", "stored", 8)
	assert.Equal(t, 8.0, testutil.ToFloat64(a.IngestionRowsTotal.WithLabelValues("measurements", "stored")))
	assert.Equal(t, 0.0, testutil.ToFloat64(b.IngestionRowsTotal.WithLabelValues("measurements", "stored")))
}

func TestRecordIngestionRows_IgnoresNonPositive(t *testing.T) {
	c := NewCollectorWithRegistry("rainfall", prometheus.NewRegistry())

	c.RecordIngestionRows("metadata", "invalid_coordinates", 0)
	c.RecordIngestionRows("metadata", "invalid_coordinates", -3)

	assert.Equal(t, 0.0, testutil.ToFloat64(c.IngestionRowsTotal.WithLabelValues("metadata", "invalid_coordinates")))
}

func TestUpdateDBConnectionPool(t *testing.T) {
	c := NewCollectorWithRegistry("rainfall", prometheus.NewRegistry())

	c.UpdateDBConnectionPool(3, 2, 5)

	assert.Equal(t, 3.0, testutil.ToFloat64(c.DBConnectionPool.WithLabelValues("in_use")))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.DBConnectionPool.WithLabelValues("idle")))
	assert.Equal(t, 5.0, testutil.ToFloat64(c.DBConnectionPool.WithLabelValues("total")))
}
