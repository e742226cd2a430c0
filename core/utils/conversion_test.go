package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestToString(t *testing.T) {
	assert.Equal(t, "", ToString(nil))
	assert.Equal(t, "abc", ToString("abc"))
	assert.Equal(t, "abc", ToString([]byte("abc")))
	assert.Equal(t, "42", ToString(int64(42)))
	assert.Equal(t, "3.5", ToString(3.5))

	ts := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, "2025-03-01T12:00:00Z", ToString(ts))
}

func TestToInt64(t *testing.T) {
	assert.Equal(t, int64(7), ToInt64(7))
	assert.Equal(t, int64(7), ToInt64(int64(7)))
	assert.Equal(t, int64(7), ToInt64(uint32(7)))
	assert.Equal(t, int64(7), ToInt64(7.9))
	assert.Equal(t, int64(7), ToInt64("7"))
	assert.Equal(t, int64(7), ToInt64([]byte("7")))
	assert.Equal(t, int64(0), ToInt64("not a number"))

	ts := time.Unix(1700000000, 0)
	assert.Equal(t, int64(1700000000), ToInt64(ts))
}

func TestToFloat64(t *testing.T) {
	assert.Equal(t, 1.5, ToFloat64(1.5))
	assert.Equal(t, 7.0, ToFloat64(int64(7)))
	assert.Equal(t, 1.5, ToFloat64("1.5"))
	assert.Equal(t, 1.5, ToFloat64([]byte("1.5")))
	assert.Equal(t, 0.0, ToFloat64("not a number"))
}
