package workpool

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunSerialPreservesOrder(t *testing.T) {
	var got []int
	err := Run(0, []int{1, 2, 3, 4}, func(n int) error {
		got = append(got, n)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3, 4}, got)
}

func TestRunSerialReturnsFirstError(t *testing.T) {
	var got []int
	err := Run(1, []int{1, 2, 3}, func(n int) error {
		got = append(got, n)
		if n == 2 {
			return fmt.Errorf("boom on %d", n)
		}
		return nil
	})
	require.EqualError(t, err, "boom on 2")
	// Serial mode still visits every item; the first error wins.
	assert.Equal(t, []int{1, 2, 3}, got)
}

func TestRunParallelRunsEverything(t *testing.T) {
	var count atomic.Int64
	err := Run(4, make([]struct{}, 100), func(struct{}) error {
		count.Add(1)
		return nil
	})
	require.NoError(t, err)
	assert.EqualValues(t, 100, count.Load())
}

func TestRunParallelBoundsConcurrency(t *testing.T) {
	var mu sync.Mutex
	inFlight, peak := 0, 0
	err := Run(3, make([]struct{}, 50), func(struct{}) error {
		mu.Lock()
		inFlight++
		if inFlight > peak {
			peak = inFlight
		}
		mu.Unlock()
		mu.Lock()
		inFlight--
		mu.Unlock()
		return nil
	})
	require.NoError(t, err)
	assert.LessOrEqual(t, peak, 3)
}

func TestRunParallelReturnsErrorInItemOrder(t *testing.T) {
	err := Run(8, []int{0, 1, 2, 3}, func(n int) error {
		if n >= 2 {
			return fmt.Errorf("failed %d", n)
		}
		return nil
	})
	require.EqualError(t, err, "failed 2")
}

func TestRunEmptyItems(t *testing.T) {
	require.NoError(t, Run(4, nil, func(struct{}) error { return nil }))
}
