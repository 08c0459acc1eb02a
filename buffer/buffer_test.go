package buffer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddItem(t *testing.T) {
	buf := NewBuffer(10)

	_, _, _, ok := buf.GetAverageMinMax()
	assert.False(t, ok)
	_, ok = buf.GetLast()
	assert.False(t, ok)

	buf.AddItem(20)
	buf.AddItem(22)

	a, mn, mx, ok := buf.GetAverageMinMax()
	require.True(t, ok)
	assert.Equal(t, Average(21), a)
	assert.Equal(t, Minimum(20), mn)
	assert.Equal(t, Maximum(22), mx)
	assert.Equal(t, 2, buf.Len())

	for i := 0; i < 10; i++ {
		buf.AddItem(float64(i))
	}
	a, mn, mx, _ = buf.GetAverageMinMax()
	assert.Equal(t, Average(4.5), a)
	assert.Equal(t, Minimum(0), mn)
	assert.Equal(t, Maximum(9), mx)
	assert.Equal(t, 10, buf.Len())

	last, ok := buf.GetLast()
	require.True(t, ok)
	assert.Equal(t, 9.0, last)
}

func TestNegativeValues(t *testing.T) {
	buf := NewBuffer(4)
	buf.AddItem(-3)
	buf.AddItem(-1)

	a, mn, mx, _ := buf.GetAverageMinMax()
	assert.Equal(t, Average(-2), a)
	assert.Equal(t, Minimum(-3), mn)
	assert.Equal(t, Maximum(-1), mx)
}

func TestValues(t *testing.T) {
	buf := NewBuffer(3)
	assert.Empty(t, buf.Values())

	buf.AddItem(1)
	buf.AddItem(2)
	assert.Equal(t, []float64{1, 2}, buf.Values())

	buf.AddItem(3)
	buf.AddItem(4)
	assert.Equal(t, []float64{2, 3, 4}, buf.Values())
}

func TestAverageLast(t *testing.T) {
	buf := NewBuffer(10)

	_, ok := buf.AverageLast(3)
	assert.False(t, ok)

	for _, v := range []float64{4, 4, 4, 4, 4, 2, 2, 2, 2, 2} {
		buf.AddItem(v)
	}

	a, _ := buf.AverageLast(2)
	assert.Equal(t, Average(2), a)
	a, _ = buf.AverageLast(6)
	assert.Equal(t, Average(2.3333333333333335), a)

	buf.AddItem(2)
	buf.AddItem(2)
	buf.AddItem(2)
	buf.AddItem(2)

	a, _ = buf.AverageLast(9)
	assert.Equal(t, Average(2), a)

	a, _ = buf.AverageLast(10)
	assert.Equal(t, Average(2.2), a)

	// asking for more than is held averages what there is
	a, _ = buf.AverageLast(50)
	assert.Equal(t, Average(2.2), a)
}
