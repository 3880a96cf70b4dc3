package factory

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/crypto/bcrypt"

	"github.com/mcoot/lazysignup-go/internal/dependencies/mocks"
	"github.com/mcoot/lazysignup-go/internal/metrics"
	"github.com/mcoot/lazysignup-go/internal/services/auth"
	"github.com/mcoot/lazysignup-go/internal/services/classifier"
	"github.com/mcoot/lazysignup-go/internal/storage"
	"github.com/mcoot/lazysignup-go/internal/storage/memory"
	"github.com/mcoot/lazysignup-go/internal/testutil"
)

// TestApp extends App with test-specific helpers
type TestApp struct {
	*App

	// Mocks for test control
	MockClock  *mocks.MockClock
	MockRandom *mocks.MockRandom
}

// NewTestApp creates an App configured for testing with mocked dependencies,
// in-memory storage, the default blacklist and the cheapest bcrypt cost
func NewTestApp() *TestApp {
	return NewTestAppWithStorage(memory.New())
}

// NewTestAppWithStorage is NewTestApp over the given store
func NewTestAppWithStorage(store storage.Storage) *TestApp {
	mockClock := mocks.NewMockClock(time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC))
	mockRandom := mocks.NewMockRandom()
	registry := prometheus.NewRegistry()

	authCfg := auth.DefaultConfig()
	authCfg.BcryptCost = bcrypt.MinCost

	app := newWithDependencies(
		store,
		mockClock,
		mockRandom,
		classifier.NewDefault(),
		metrics.New(registry),
		authCfg,
		testutil.NopLogger(),
	)
	app.Registry = registry

	return &TestApp{
		App:        app,
		MockClock:  mockClock,
		MockRandom: mockRandom,
	}
}
