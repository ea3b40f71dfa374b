// Authors: Rohan Adla, Arrio Gonsalves, Shreyan Nalwad, Dylan Setiawan
// Date: Oct 19th 2026
// Project: Coherent Reconciliation of Hierarchical Forecasts
// Class: 02-613 at Caregie Mellon University

package parallel

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// Squares computed concurrently, two at a time.
func ExampleInvokeN() {
	squares := make([]int, 4)
	_ = InvokeN(context.Background(), len(squares), 2, func(_ context.Context, i int) error {
		squares[i] = i * i
		return nil
	})
	fmt.Printf("result: %v\n", squares)
	// Output:
	// result: [0 1 4 9]
}

func Test_InvokeN_basic(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	err := InvokeN(ctx, 0, 4, func(ctx context.Context, i int) error {
		assert.Fail("should not be called")
		return nil
	})
	assert.NoError(err)

	res := make([]int, 5)
	err = InvokeN(ctx, len(res), 2, func(ctx context.Context, i int) error {
		res[i] = i * i
		return nil
	})
	assert.NoError(err)
	assert.Equal([]int{0, 1, 4, 9, 16}, res)
}

func Test_InvokeN_error(t *testing.T) {
	assert := assert.New(t)
	err := InvokeN(context.Background(), 3, 3, func(ctx context.Context, i int) error {
		if i == 1 {
			return errors.New("roar")
		}
		<-ctx.Done()
		return ctx.Err()
	})
	assert.EqualError(err, "roar")
}

func Test_InvokeN_limit(t *testing.T) {
	assert := assert.New(t)
	var running, peak int32
	err := InvokeN(context.Background(), 20, 3, func(ctx context.Context, i int) error {
		now := atomic.AddInt32(&running, 1)
		for {
			old := atomic.LoadInt32(&peak)
			if now <= old || atomic.CompareAndSwapInt32(&peak, old, now) {
				break
			}
		}
		time.Sleep(time.Millisecond)
		atomic.AddInt32(&running, -1)
		return nil
	})
	assert.NoError(err)
	assert.LessOrEqual(atomic.LoadInt32(&peak), int32(3))
}
