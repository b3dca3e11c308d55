package alm

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMgmtStatusBuilder_PacksIndependentCounters(t *testing.T) {
	var b mgmtStatusBuilder
	b.incrOp()
	b.incrErase()
	b.incrErase()
	b.incrTask()
	b.incrTask()
	b.incrTask()
	for i := 0; i < 4; i++ {
		b.incrApp()
	}

	s := b.build()
	assert.Equal(t, uint8(1), s.Op())
	assert.Equal(t, uint8(2), s.Erase())
	assert.Equal(t, uint8(3), s.Task())
	assert.Equal(t, uint8(4), s.App())
}

func TestMgmtStatusBuilder_SaturatesAt255(t *testing.T) {
	var b mgmtStatusBuilder
	for i := 0; i < 300; i++ {
		b.incrOp()
	}
	assert.Equal(t, uint8(255), b.build().Op())
}

func TestSaturatingIncr(t *testing.T) {
	assert.Equal(t, uint8(1), saturatingIncr(0))
	assert.Equal(t, uint8(255), saturatingIncr(254))
	assert.Equal(t, uint8(255), saturatingIncr(255))
}
