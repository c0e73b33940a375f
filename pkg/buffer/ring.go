package buffer

import (
	"fmt"
	"io"
	"sync"

	"google.golang.org/api/iterator"
)

// Ring is a thread-safe fixed-capacity FIFO that never blocks the producer:
// when full, Push evicts the oldest element and counts it as dropped. It is
// meant for real-time ingestion where stalling the producer is worse than
// losing the oldest buffered data.
type Ring[T any] struct {
	notify chan struct{}

	mu         sync.Mutex
	buf        []T
	head, tail int64
	dropped    uint64
	closeWrite bool
	closeErr   error
}

// NewRing creates a Ring with the given capacity.
func NewRing[T any](capacity int) *Ring[T] {
	return &Ring[T]{
		notify: make(chan struct{}, 1),
		buf:    make([]T, capacity),
	}
}

// Push appends one element without blocking. If the ring is full the oldest
// element is evicted first. Returns io.ErrClosedPipe after CloseWrite.
func (r *Ring[T]) Push(t T) error {
	r.mu.Lock()
	if r.closeErr != nil {
		err := r.closeErr
		r.mu.Unlock()
		return fmt.Errorf("buffer: push to closed ring: %w", err)
	}
	if r.closeWrite {
		r.mu.Unlock()
		return io.ErrClosedPipe
	}
	if r.tail-r.head == int64(len(r.buf)) {
		r.head++
		r.dropped++
	}
	r.buf[r.tail%int64(len(r.buf))] = t
	r.tail++
	r.mu.Unlock()

	select {
	case r.notify <- struct{}{}:
	default:
	}
	return nil
}

// Next removes and returns the oldest element, blocking while the ring is
// empty. After CloseWrite, remaining elements drain and then Next returns
// iterator.Done.
func (r *Ring[T]) Next() (t T, err error) {
	r.mu.Lock()
	for {
		if r.closeErr != nil {
			err = r.closeErr
			r.mu.Unlock()
			return
		}
		if r.head < r.tail {
			break
		}
		if r.closeWrite {
			r.mu.Unlock()
			err = iterator.Done
			return
		}
		r.mu.Unlock()
		<-r.notify
		r.mu.Lock()
	}
	i := r.head % int64(len(r.buf))
	t = r.buf[i]
	var zero T
	r.buf[i] = zero
	r.head++
	r.mu.Unlock()
	return t, nil
}

// Dropped returns the total number of elements evicted by full-ring pushes.
func (r *Ring[T]) Dropped() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dropped
}

// Len returns the number of buffered elements.
func (r *Ring[T]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return int(r.tail - r.head)
}

// CloseWrite closes the write side. Buffered elements remain readable.
func (r *Ring[T]) CloseWrite() error {
	r.mu.Lock()
	r.closeWrite = true
	r.mu.Unlock()
	r.wake()
	return nil
}

// CloseWithError closes both sides immediately. Pending and future calls
// return err. A nil err is replaced with io.ErrClosedPipe.
func (r *Ring[T]) CloseWithError(err error) error {
	if err == nil {
		err = io.ErrClosedPipe
	}
	r.mu.Lock()
	if r.closeErr == nil {
		r.closeErr = err
		r.closeWrite = true
	}
	r.mu.Unlock()
	r.wake()
	return nil
}

// Close is CloseWithError(io.ErrClosedPipe).
func (r *Ring[T]) Close() error {
	return r.CloseWithError(io.ErrClosedPipe)
}

func (r *Ring[T]) wake() {
	select {
	case r.notify <- struct{}{}:
	default:
	}
}
