package metrics

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/ruteri/certificate-registry/interfaces"
	"github.com/stretchr/testify/assert"
)

func TestRegistryMetrics_Observe(t *testing.T) {
	reg := NewRegistry()
	m := NewRegistryMetrics(reg)

	m.Observe("burn", nil, time.Millisecond)
	m.Observe("burn", fmt.Errorf("burn item 1: %w", interfaces.ErrAlreadyBurned), time.Millisecond)
	m.Observe("burn", fmt.Errorf("burn item 1: %w", interfaces.ErrAlreadyBurned), time.Millisecond)
	m.Observe("mint", errors.New("disk on fire"), time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.operations.WithLabelValues("burn", interfaces.KindOK)))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.operations.WithLabelValues("burn", interfaces.KindAlreadyBurned)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.operations.WithLabelValues("mint", interfaces.KindInternal)))

	families, err := reg.Gather()
	assert.NoError(t, err)
	names := make([]string, 0, len(families))
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.Contains(t, names, "certificate_registry_operations_total")
	assert.Contains(t, names, "certificate_registry_operation_duration_seconds")
}

func TestRegistryMetrics_NilIsNoop(t *testing.T) {
	var m *RegistryMetrics
	assert.NotPanics(t, func() {
		m.Observe("mint", nil, time.Second)
	})
}
