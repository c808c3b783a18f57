// Package queue defines the backend contract used by the consumer manager and an in-process
// implementation of it.
package queue

import (
	"context"
	"errors"
	"strconv"
)

// ErrClosed is returned by a backend after Close.
var ErrClosed = errors.New("queue: backend closed")

// Backend is a work queue with a busy broadcast channel per queue type.
//
// BlockingPop removes and returns the first available payload, checking the queues in the
// given order so earlier names have priority. Reject puts a payload back at the head of its
// queue. Broadcast delivers a busy flag to every listener subscribed to the channel.
// Subscribe returns the name of a private listener queue that receives those broadcasts
// until ctx ends. Depth returns false when the backend cannot report a size.
type Backend interface {
	Push(ctx context.Context, queue string, payload []byte) error
	BlockingPop(ctx context.Context, queues ...string) (string, []byte, error)
	Reject(ctx context.Context, queue string, payload []byte) error
	Broadcast(ctx context.Context, channel string, busy bool) error
	Subscribe(ctx context.Context, channel string) (string, error)
	Depth(ctx context.Context, queue string) (int, bool, error)
}

// BusyPayload encodes a busy flag as carried on a listener queue.
func BusyPayload(busy bool) []byte {
	return []byte(strconv.FormatBool(busy))
}

// ParseBusy decodes a listener payload. Unknown payloads read as not busy.
func ParseBusy(payload []byte) bool {
	busy, err := strconv.ParseBool(string(payload))
	return err == nil && busy
}
