package postgres

import (
	"sync/atomic"
	"testing"
)

type fakeWaker struct {
	calls int32
}

func (f *fakeWaker) Wake() {
	atomic.AddInt32(&f.calls, 1)
}

func TestNotifyListener_StopWithoutStartIsNoOp(t *testing.T) {
	l := &NotifyListener{}

	if err := l.Stop(); err != nil {
		t.Fatalf("Stop on unstarted listener: %v", err)
	}
}

func TestWaker_InterfaceSatisfiedByFake(t *testing.T) {
	var w Waker = &fakeWaker{}
	w.Wake()

	fw := w.(*fakeWaker)
	if atomic.LoadInt32(&fw.calls) != 1 {
		t.Fatalf("expected Wake to be called once")
	}
}
