package workerpool

import (
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kiteco/skillview/kite-golib/errors"
	"github.com/stretchr/testify/require"
)

func Test_RunJobs(t *testing.T) {
	pool := New(5)
	defer pool.Close()

	var jobs []Job
	var completed int32
	for i := 0; i < 15; i++ {
		jobs = append(jobs, func() error {
			time.Sleep(10 * time.Millisecond)
			atomic.AddInt32(&completed, 1)
			return nil
		})
	}

	pool.Add(jobs)
	require.NoError(t, pool.Wait())
	require.EqualValues(t, len(jobs), completed, "expected all jobs to be completed")
}

func Test_ResultSlots(t *testing.T) {
	pool := New(3)
	defer pool.Close()

	results := make([]int, 20)
	var jobs []Job
	for i := range results {
		i := i
		jobs = append(jobs, func() error {
			results[i] = i * i
			return nil
		})
	}
	pool.Add(jobs)
	require.NoError(t, pool.Wait())
	for i, r := range results {
		require.Equal(t, i*i, r)
	}
}

func Test_Errors(t *testing.T) {
	pool := New(2)
	defer pool.Close()

	pool.Add([]Job{
		func() error { return fmt.Errorf("first") },
		func() error { return nil },
		func() error { return fmt.Errorf("second") },
	})
	err := pool.Wait()
	require.Error(t, err)
	require.Equal(t, 2, err.(errors.Errors).Len())

	// errors are reset after Wait
	pool.Add([]Job{func() error { return nil }})
	require.NoError(t, pool.Wait())
}

func Test_StopWait(t *testing.T) {
	pool := New(5)

	var jobs []Job
	for i := 0; i < 15; i++ {
		jobs = append(jobs, func() error {
			time.Sleep(50 * time.Millisecond)
			return nil
		})
	}

	pool.Add(jobs)
	<-time.After(20 * time.Millisecond)
	pool.Stop()
	pool.Wait()
}
