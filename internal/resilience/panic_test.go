package resilience

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecover(t *testing.T) {
	var got error
	func() {
		defer Recover("worker", func(err error) { got = err })
		panic("boom")
	}()
	require.Error(t, got)
	assert.Contains(t, got.Error(), "worker: panic: boom")
}

func TestRecover_NoPanic(t *testing.T) {
	called := false
	func() {
		defer Recover("worker", func(error) { called = true })
	}()
	assert.False(t, called)
}

func TestRecover_InGoroutine(t *testing.T) {
	var wg sync.WaitGroup
	errs := make([]error, 3)
	for i := range errs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer Recover("worker", func(err error) { errs[i] = err })
			if i == 1 {
				panic("second worker")
			}
		}()
	}
	wg.Wait()
	assert.NoError(t, errs[0])
	assert.Error(t, errs[1])
	assert.NoError(t, errs[2])
}

func TestRecover_NilHandler(t *testing.T) {
	assert.NotPanics(t, func() {
		defer Recover("worker", nil)
		panic("ignored")
	})
}
