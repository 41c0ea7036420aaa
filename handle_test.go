package modtree

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestHandle_SettlesOnce(t *testing.T) {
	h := newHandle()
	assert.False(t, h.Settled())
	assert.NoError(t, h.Err())

	first := errors.New("first")
	h.settle(first)
	h.settle(errors.New("second"))

	assert.True(t, h.Settled())
	assert.Equal(t, first, h.Err())
	assert.Equal(t, first, h.Wait(context.Background()))

	select {
	case <-h.Done():
	default:
		t.Fatal("done channel should be closed")
	}
}

func TestHandle_WaitHonoursContext(t *testing.T) {
	h := newHandle()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	assert.ErrorIs(t, h.Wait(ctx), context.DeadlineExceeded)
	assert.False(t, h.Settled())
}

func TestSettledHandle(t *testing.T) {
	h := settledHandle(nil)
	assert.True(t, h.Settled())
	assert.NoError(t, h.Wait(context.Background()))
}
