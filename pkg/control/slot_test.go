package control

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSlotEmpty(t *testing.T) {
	var s Slot[int]
	_, ok := s.Latest()
	assert.False(t, ok)
}

func TestSlotLatestWins(t *testing.T) {
	var s Slot[int]
	s.Put(1)
	s.Put(2)
	s.Put(3)

	v, ok := s.Latest()
	assert.True(t, ok)
	assert.Equal(t, 3, v)

	// Reading does not consume: the latest value stays available.
	v, ok = s.Latest()
	assert.True(t, ok)
	assert.Equal(t, 3, v)
}

func TestSlotConcurrentWriter(t *testing.T) {
	var s Slot[int]
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 1; i <= 1000; i++ {
			s.Put(i)
		}
	}()

	// Reader only ever sees a value the writer actually stored.
	for i := 0; i < 1000; i++ {
		if v, ok := s.Latest(); ok {
			assert.GreaterOrEqual(t, v, 1)
			assert.LessOrEqual(t, v, 1000)
		}
	}
	wg.Wait()

	v, ok := s.Latest()
	assert.True(t, ok)
	assert.Equal(t, 1000, v)
}
