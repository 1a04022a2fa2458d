package serial

import (
	"sync"
	"testing"

	"github.com/lainio/err2/assert"
)

func TestQueueOrder(t *testing.T) {
	var q Queue
	var got []int
	for i := 0; i < 100; i++ {
		i := i
		q.Go(func() { got = append(got, i) })
	}
	q.Wait()
	assert.Equal(len(got), 100)
	for i, v := range got {
		assert.Equal(v, i)
	}
}

func TestQueueReentrant(t *testing.T) {
	var q Queue
	var wg sync.WaitGroup
	wg.Add(1)
	var order []string
	q.Go(func() {
		order = append(order, "outer")
		q.Go(func() {
			order = append(order, "inner")
			wg.Done()
		})
		order = append(order, "outer-done")
	})
	wg.Wait()
	assert.Equal(len(order), 3)
	assert.Equal(order[0], "outer")
	assert.Equal(order[1], "outer-done")
	assert.Equal(order[2], "inner")
}
