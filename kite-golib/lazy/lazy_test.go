package lazy

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func Test_LoadError(t *testing.T) {
	var loadCount, unloadCount int
	loadErr := fmt.Errorf("some load error")

	l := NewLoader(func() error {
		loadCount++
		return loadErr
	}, func() {
		unloadCount++
	})

	require.Equal(t, loadErr, l.Load())
	require.Equal(t, loadErr, l.Load())
	require.Equal(t, 1, loadCount)

	l.Unload()
	require.False(t, l.Loaded())
	require.Equal(t, 0, unloadCount)

	require.Equal(t, loadErr, l.Load())
	require.Equal(t, 2, loadCount)
}

func Test_LoadOnceConcurrent(t *testing.T) {
	var (
		loadCount int
		weights   []float64
	)
	l := NewLoader(func() error {
		loadCount++
		weights = []float64{0.1, 0.2}
		return nil
	}, func() {
		weights = nil
	})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			require.NoError(t, l.Load())
		}()
	}
	wg.Wait()
	require.Equal(t, 1, loadCount)
	require.True(t, l.Loaded())
	require.Len(t, weights, 2)

	l.Unload()
	require.Nil(t, weights)
}
