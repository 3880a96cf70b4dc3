package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCountersRegisterAndIncrement(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.IncrementLazyCreated()
	m.IncrementLazyCreated()
	m.ObserveConversion(ResultConverted)
	m.ObserveConversion(ResultNotLazy)
	m.IncrementBlacklisted()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.LazyUsersCreated))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Conversions.WithLabelValues(ResultConverted)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Conversions.WithLabelValues(ResultNotLazy)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.BlacklistedAgents))

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}

func TestNilRegistererDoesNotPanic(t *testing.T) {
	assert.NotPanics(t, func() {
		New(nil).IncrementLazyCreateFailed()
		New(nil).IncrementLazyCreateFailed()
	})
}
