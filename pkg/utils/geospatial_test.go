package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHaversineDistance(t *testing.T) {
	// Nairobi CBD to Mombasa is roughly 440km.
	d := HaversineDistance(-1.2864, 36.8172, -4.0435, 39.6682)
	assert.InDelta(t, 440, d, 10)

	assert.Zero(t, HaversineDistance(-1.2864, 36.8172, -1.2864, 36.8172))
	assert.InDelta(t, d, HaversineDistance(-4.0435, 39.6682, -1.2864, 36.8172), 1e-9)
}

func TestIsWithinRadius(t *testing.T) {
	assert.True(t, IsWithinRadius(-1.2864, 36.8172, -1.2921, 36.8219, 5))
	assert.False(t, IsWithinRadius(-1.2864, 36.8172, -4.0435, 39.6682, 50))
}
