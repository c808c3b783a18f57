package queue

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestPopHonoursQueueOrder(t *testing.T) {
	ctx := context.Background()
	b := NewMemoryBackend()
	if err := b.Push(ctx, "work", []byte("w1")); err != nil {
		t.Fatalf("push: %v", err)
	}
	if err := b.Push(ctx, "control", []byte("c1")); err != nil {
		t.Fatalf("push: %v", err)
	}

	name, payload, err := b.BlockingPop(ctx, "control", "work")
	if err != nil || name != "control" || string(payload) != "c1" {
		t.Fatalf("unexpected pop %s %s %v", name, payload, err)
	}
	name, payload, err = b.BlockingPop(ctx, "control", "work")
	if err != nil || name != "work" || string(payload) != "w1" {
		t.Fatalf("unexpected pop %s %s %v", name, payload, err)
	}
}

func TestRejectRequeuesAtHead(t *testing.T) {
	ctx := context.Background()
	b := NewMemoryBackend()
	_ = b.Push(ctx, "q", []byte("second"))
	if err := b.Reject(ctx, "q", []byte("first")); err != nil {
		t.Fatalf("reject: %v", err)
	}
	if n, ok, _ := b.Depth(ctx, "q"); !ok || n != 2 {
		t.Fatalf("unexpected depth %d %v", n, ok)
	}
	_, payload, _ := b.BlockingPop(ctx, "q")
	if string(payload) != "first" {
		t.Fatalf("rejected payload must come back first, got %s", payload)
	}
}

func TestBlockingPopWakesOnPush(t *testing.T) {
	b := NewMemoryBackend()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	done := make(chan string, 1)
	go func() {
		_, payload, err := b.BlockingPop(ctx, "q")
		if err != nil {
			done <- "error: " + err.Error()
			return
		}
		done <- string(payload)
	}()

	time.Sleep(10 * time.Millisecond)
	_ = b.Push(context.Background(), "q", []byte("hello"))
	if got := <-done; got != "hello" {
		t.Fatalf("unexpected result %s", got)
	}
}

func TestBlockingPopHonoursContext(t *testing.T) {
	b := NewMemoryBackend()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, _, err := b.BlockingPop(ctx, "empty"); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline, got %v", err)
	}
}

func TestBroadcastFansOutToListeners(t *testing.T) {
	b := NewMemoryBackend()
	ctx, cancel := context.WithCancel(context.Background())

	l1, err := b.Subscribe(ctx, "busy")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	l2, _ := b.Subscribe(ctx, "busy")
	if l1 == l2 {
		t.Fatal("listeners must be distinct")
	}
	if err := b.Broadcast(context.Background(), "busy", true); err != nil {
		t.Fatalf("broadcast: %v", err)
	}
	for _, l := range []string{l1, l2} {
		_, payload, err := b.BlockingPop(context.Background(), l)
		if err != nil || !ParseBusy(payload) {
			t.Fatalf("listener %s: %s %v", l, payload, err)
		}
	}

	cancel()
	deadline := time.Now().Add(time.Second)
	for b.Listeners("busy") != 0 {
		if time.Now().After(deadline) {
			t.Fatal("listeners not removed after context end")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestCloseUnblocksPop(t *testing.T) {
	b := NewMemoryBackend()
	errc := make(chan error, 1)
	go func() {
		_, _, err := b.BlockingPop(context.Background(), "q")
		errc <- err
	}()
	time.Sleep(10 * time.Millisecond)
	_ = b.Close()
	if err := <-errc; !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}
