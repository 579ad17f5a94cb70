package seqnum

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompareAntisymmetric(t *testing.T) {
	cases := []SeqNum{0, 1, 2, 100, 1000, 0xFFFF, 0x7FFE}
	for _, a := range cases {
		for k := uint16(1); k < 1<<15; k += 997 {
			b := Add(a, k)
			require.Equal(t, -Compare(b, a), Compare(a, b))
		}
	}
}

func TestCompareLessForPositiveDistance(t *testing.T) {
	a := SeqNum(1000)
	for k := uint16(1); k < 1<<15; k += 1000 {
		assert.True(t, Less(a, Add(a, k)), "a=%d k=%d", a, k)
	}
}

func TestCompareEqual(t *testing.T) {
	assert.Equal(t, 0, Compare(SeqNum(42), SeqNum(42)))
}

func TestWrapAround(t *testing.T) {
	a := SeqNum(0xFFFE)
	b := Add(a, 4)
	assert.True(t, Less(a, b))
	assert.Equal(t, SeqNum(2), b)
}

func TestAddSubRoundTrip(t *testing.T) {
	a := SeqNum(60000)
	b := Add(a, 10000)
	assert.Equal(t, a, Sub(b, 10000))
}

func TestDistance(t *testing.T) {
	assert.Equal(t, uint16(5), Distance(SeqNum(10), SeqNum(15)))
	assert.Equal(t, uint16(1), Distance(SeqNum(0xFFFF), SeqNum(0)))
}
