package testutil

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCacheBusters_Sequence(t *testing.T) {
	var b CacheBusters

	assert.Equal(t, "1", b.Next())
	assert.Equal(t, "2", b.Next())
	assert.Equal(t, 2, b.Issued())
}

func TestCacheBusters_Concurrent(t *testing.T) {
	var b CacheBusters

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			b.Next()
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, b.Issued())
	assert.Equal(t, "51", b.Next())
}
