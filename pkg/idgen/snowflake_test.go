package idgen

import (
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnowflakeUniqueAndIncreasing(t *testing.T) {
	g, err := NewSnowflake(3)
	require.NoError(t, err)

	prev := int64(0)
	for i := 0; i < 10000; i++ {
		id := g.Generate()
		require.Greater(t, id, prev)
		prev = id
	}
	assert.Equal(t, int64(3), (prev>>workerIDShift)&maxWorkerID)
}

func TestSnowflakeConcurrent(t *testing.T) {
	g, err := NewSnowflake(1)
	require.NoError(t, err)

	const workers, perWorker = 8, 2000
	var mu sync.Mutex
	seen := make(map[int64]struct{}, workers*perWorker)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ids := make([]int64, 0, perWorker)
			for i := 0; i < perWorker; i++ {
				ids = append(ids, g.Generate())
			}
			mu.Lock()
			for _, id := range ids {
				seen[id] = struct{}{}
			}
			mu.Unlock()
		}()
	}
	wg.Wait()
	assert.Len(t, seen, workers*perWorker)
}

func TestWorkerIDRange(t *testing.T) {
	_, err := NewSnowflake(-1)
	assert.Error(t, err)
	_, err = NewSnowflake(maxWorkerID + 1)
	assert.Error(t, err)
	assert.Error(t, Init(maxWorkerID+1))
}

func TestGenerateEntryNo(t *testing.T) {
	a, b := GenerateEntryNo(), GenerateEntryNo()
	assert.True(t, strings.HasPrefix(a, "PTL"))
	assert.NotEqual(t, a, b)
}
