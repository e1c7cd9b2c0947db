package service

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prashant-hada-dev/sales-agent-proto/internal/dto"
	"github.com/prashant-hada-dev/sales-agent-proto/internal/models"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zaptest"
)

func TestRegistry_rebindReplacesConnection(t *testing.T) {
	r := NewRegistry(zaptest.NewLogger(t))
	first, second := &recordingConn{}, &recordingConn{}

	r.Bind("s", first)
	r.Bind("s", second)
	assert.True(t, r.Send("s", dto.Message("hi")))

	assert.Empty(t, first.messages())
	assert.Len(t, second.messages(), 1)

	// the replaced socket closing must not evict its successor
	r.Release("s", first)
	assert.True(t, r.Bound("s"))
	r.Release("s", second)
	assert.False(t, r.Bound("s"))
}

func TestRegistry_sendToUnboundSessionDrops(t *testing.T) {
	r := NewRegistry(zaptest.NewLogger(t))
	assert.False(t, r.Send("nobody", dto.Message("hi")))

	r.Bind("s", &recordingConn{})
	r.Unbind("s")
	assert.False(t, r.Send("s", dto.Message("hi")))
}

func TestRegistry_failedWriteUnbinds(t *testing.T) {
	r := NewRegistry(zaptest.NewLogger(t))
	r.Bind("s", &recordingConn{failed: true})

	assert.False(t, r.Send("s", dto.Message("hi")))
	assert.False(t, r.Bound("s"))
}

func TestRegistry_sendToUser(t *testing.T) {
	r := NewRegistry(zaptest.NewLogger(t))
	a, b := &recordingConn{}, &recordingConn{}
	r.Bind("a", a)
	r.Bind("b", b)
	u := &models.User{ID: uuid.New(), Sessions: []string{"a", "b", "closed"}}

	assert.Equal(t, 2, r.SendToUser(u, dto.PaymentLink("https://rzp.io/l/x")))
	assert.Len(t, a.ofType(dto.TypePaymentLink), 1)
	assert.Len(t, b.ofType(dto.TypePaymentLink), 1)
}

// serialConn fails the test if two writes overlap.
type serialConn struct {
	busy    atomic.Bool
	overlap atomic.Bool
}

func (c *serialConn) WriteJSON(any) error {
	if !c.busy.CompareAndSwap(false, true) {
		c.overlap.Store(true)
		return nil
	}
	time.Sleep(time.Millisecond)
	c.busy.Store(false)
	return nil
}

func (c *serialConn) Close() error { return nil }

func TestRegistry_writesDoNotInterleave(t *testing.T) {
	r := NewRegistry(zaptest.NewLogger(t))
	conn := &serialConn{}
	r.Bind("s", conn)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.Send("s", dto.Message("x"))
		}()
	}
	wg.Wait()
	assert.False(t, conn.overlap.Load())
}

func TestKeyedMutex(t *testing.T) {
	k := newKeyedMutex()

	var inside atomic.Int32
	var maxInside atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := k.Lock("user")
			n := inside.Add(1)
			if n > maxInside.Load() {
				maxInside.Store(n)
			}
			time.Sleep(time.Millisecond)
			inside.Add(-1)
			unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxInside.Load())
	assert.Empty(t, k.locks)

	// different keys do not block each other
	unlockA := k.Lock("a")
	unlockB := k.Lock("b")
	unlockB()
	unlockA()
}
