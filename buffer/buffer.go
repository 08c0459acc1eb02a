package buffer

import (
	"math"
	"sync"
)

type Average float64
type Minimum float64
type Maximum float64
type Size int

// SampleBuffer keeps the most recent readings. Statistics only cover the
// slots that have been written, so a fresh buffer does not average in zeros.
type SampleBuffer struct {
	position int
	size     int
	count    int
	data     []float64
	lock     sync.Mutex
}

func NewBuffer(size int) *SampleBuffer {
	if size < 1 {
		size = 1
	}
	return &SampleBuffer{
		size: size,
		data: make([]float64, size),
	}
}

func (b *SampleBuffer) AddItem(val float64) {
	b.lock.Lock()
	defer b.lock.Unlock()
	b.data[b.position] = val
	b.position += 1
	if b.position == b.size {
		b.position = 0
	}
	if b.count < b.size {
		b.count += 1
	}
}

// GetAverageMinMax returns false if nothing has been added yet.
func (b *SampleBuffer) GetAverageMinMax() (Average, Minimum, Maximum, bool) {
	b.lock.Lock()
	defer b.lock.Unlock()
	if b.count == 0 {
		return 0, 0, 0, false
	}
	min := math.MaxFloat64
	max := -math.MaxFloat64
	sum := 0.0
	for _, x := range b.values() {
		if x > max {
			max = x
		}
		if x < min {
			min = x
		}
		sum += x
	}
	return Average(sum / float64(b.count)), Minimum(min), Maximum(max), true
}

// AverageLast averages the newest numberOfItems readings.
func (b *SampleBuffer) AverageLast(numberOfItems int) (Average, bool) {
	b.lock.Lock()
	defer b.lock.Unlock()
	if numberOfItems > b.count {
		numberOfItems = b.count
	}
	if numberOfItems < 1 {
		return 0, false
	}
	v := b.values()
	sum := 0.0
	for _, x := range v[len(v)-numberOfItems:] {
		sum += x
	}
	return Average(sum / float64(numberOfItems)), true
}

func (b *SampleBuffer) GetLast() (float64, bool) {
	b.lock.Lock()
	defer b.lock.Unlock()
	if b.count == 0 {
		return 0, false
	}
	index := b.position - 1
	if index < 0 {
		index += b.size
	}
	return b.data[index], true
}

// Values returns a copy of the readings, oldest first.
func (b *SampleBuffer) Values() []float64 {
	b.lock.Lock()
	defer b.lock.Unlock()
	return b.values()
}

func (b *SampleBuffer) values() []float64 {
	out := make([]float64, 0, b.count)
	start := b.position - b.count
	if start < 0 {
		start += b.size
	}
	for i := 0; i < b.count; i++ {
		out = append(out, b.data[(start+i)%b.size])
	}
	return out
}

func (b *SampleBuffer) Len() int {
	b.lock.Lock()
	defer b.lock.Unlock()
	return b.count
}

func (b *SampleBuffer) GetSize() Size {
	return Size(b.size)
}
