//go:build testfaults

package pool

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSimulateAllCooledMarksEveryConnection(t *testing.T) {
	p := newTestPool(t)

	p.SimulateAllCooled()
	assert.True(t, p.AllInCooldown())
}
