package gateway

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMinorUnits(t *testing.T) {
	assert.Equal(t, int64(1999), minorUnits(19.99))
	assert.Equal(t, int64(5000), minorUnits(50))
	assert.Equal(t, int64(1), minorUnits(0.01))
	assert.Equal(t, int64(29985), minorUnits(99.95*3))
	assert.Equal(t, int64(0), minorUnits(0))
}
