package bridge

import (
	"context"
	"errors"
	"sync"
	"testing"
)

func TestLoopRunsInOrder(t *testing.T) {
	l := NewLoop()
	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = l.Run(ctx) }()
	defer func() {
		cancel()
		<-l.Done()
	}()

	var mu sync.Mutex
	var got []int
	for i := 0; i < 100; i++ {
		i := i
		l.Post(func() {
			mu.Lock()
			got = append(got, i)
			mu.Unlock()
		})
	}
	if err := l.Do(context.Background(), func() {}); err != nil {
		t.Fatalf("Do() error = %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 100 {
		t.Fatalf("ran %d closures, want 100", len(got))
	}
	for i, v := range got {
		if v != i {
			t.Fatalf("closure %d ran at position %d", v, i)
		}
	}
}

func TestLoopPostFromLoop(t *testing.T) {
	l := NewLoop()
	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = l.Run(ctx) }()
	defer func() {
		cancel()
		<-l.Done()
	}()

	inner := make(chan struct{})
	l.Post(func() {
		l.Post(func() { close(inner) })
	})
	<-inner
}

func TestLoopStopped(t *testing.T) {
	l := NewLoop()
	ctx, cancel := context.WithCancel(context.Background())
	ran := false
	l.Post(func() { ran = true })
	cancel()
	_ = l.Run(ctx)

	if !ran {
		t.Error("queued closure did not run before Run returned")
	}
	if l.Post(func() {}) {
		t.Error("Post() after stop = true")
	}
	if err := l.Do(context.Background(), func() {}); !errors.Is(err, ErrLoopStopped) {
		t.Errorf("Do() after stop error = %v", err)
	}
}
