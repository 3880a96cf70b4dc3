package mocks

import (
	"strings"
	"sync"

	"github.com/mcoot/lazysignup-go/internal/dependencies/random"
)

// MockRandom is a mock implementation of Random for testing.
// Queued strings are handed out in order; once the queue is drained String
// falls back to a deterministic counter-based value so generated usernames
// stay unique.
type MockRandom struct {
	mu sync.Mutex

	intnResults []int
	intnIndex   int

	stringResults []string
	stringIndex   int
	fallback      int
}

// Ensure MockRandom implements Random
var _ random.Random = (*MockRandom)(nil)

// NewMockRandom creates a new MockRandom
func NewMockRandom() *MockRandom {
	return &MockRandom{}
}

// Intn returns the next queued result, or 0 if none remaining
func (r *MockRandom) Intn(n int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.intnIndex >= len(r.intnResults) {
		return 0
	}
	result := r.intnResults[r.intnIndex]
	r.intnIndex++
	return result
}

// String returns the next queued result, or a padded counter value if none remaining
func (r *MockRandom) String(length int, alphabet string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stringIndex < len(r.stringResults) {
		result := r.stringResults[r.stringIndex]
		r.stringIndex++
		return result
	}
	r.fallback++
	return padCounter(r.fallback, length, alphabet)
}

// QueueIntn adds values to the Intn result queue
func (r *MockRandom) QueueIntn(values ...int) {
	r.mu.Lock()
	r.intnResults = append(r.intnResults, values...)
	r.mu.Unlock()
}

// QueueString adds values to the String result queue
func (r *MockRandom) QueueString(values ...string) {
	r.mu.Lock()
	r.stringResults = append(r.stringResults, values...)
	r.mu.Unlock()
}

// Reset clears all queued results
func (r *MockRandom) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.intnResults = nil
	r.intnIndex = 0
	r.stringResults = nil
	r.stringIndex = 0
	r.fallback = 0
}

func padCounter(n, length int, alphabet string) string {
	if length <= 0 || alphabet == "" {
		return ""
	}
	base := len(alphabet)
	digits := make([]byte, 0, length)
	for n > 0 && len(digits) < length {
		digits = append(digits, alphabet[n%base])
		n /= base
	}
	var b strings.Builder
	for i := len(digits); i < length; i++ {
		b.WriteByte(alphabet[0])
	}
	for i := len(digits) - 1; i >= 0; i-- {
		b.WriteByte(digits[i])
	}
	return b.String()
}
