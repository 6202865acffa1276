package queue

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBackoff_DoublesPerAttempt(t *testing.T) {
	q := &Queue{backoffBase: 2 * time.Second, backoffMax: 30 * time.Minute}

	assert.Equal(t, 2*time.Second, q.backoff(1))
	assert.Equal(t, 4*time.Second, q.backoff(2))
	assert.Equal(t, 8*time.Second, q.backoff(3))
	assert.Equal(t, 16*time.Second, q.backoff(4))
}

func TestBackoff_CapsAtMax(t *testing.T) {
	q := &Queue{backoffBase: 2 * time.Second, backoffMax: 10 * time.Second}

	assert.Equal(t, 8*time.Second, q.backoff(3))
	assert.Equal(t, 10*time.Second, q.backoff(4))
	assert.Equal(t, 10*time.Second, q.backoff(10))
}

func TestBackoff_NeverBelowBase(t *testing.T) {
	q := &Queue{backoffBase: 2 * time.Second, backoffMax: 30 * time.Minute}

	assert.Equal(t, 2*time.Second, q.backoff(0))
	assert.Equal(t, 2*time.Second, q.backoff(-1))
}
