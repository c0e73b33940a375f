package buffer

import (
	"fmt"
	"io"
	"sync"

	"google.golang.org/api/iterator"
)

// Queue is a thread-safe fixed-capacity FIFO. Push blocks when the queue is
// full and Next blocks when it is empty, giving predictable memory usage and
// flow control between a producer and a consumer goroutine.
type Queue[T any] struct {
	cond *sync.Cond

	mu         sync.Mutex
	buf        []T
	head, tail int64
	closeWrite bool
	closeErr   error
}

// NewQueue creates a Queue with the given capacity.
func NewQueue[T any](capacity int) *Queue[T] {
	q := &Queue[T]{buf: make([]T, capacity)}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Push appends one element, blocking while the queue is full.
// Returns io.ErrClosedPipe if the write side has been closed.
func (q *Queue[T]) Push(t T) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	for {
		if q.closeErr != nil {
			return fmt.Errorf("buffer: push to closed queue: %w", q.closeErr)
		}
		if q.closeWrite {
			return io.ErrClosedPipe
		}
		if q.tail-q.head < int64(len(q.buf)) {
			break
		}
		q.cond.Wait()
	}
	q.buf[q.tail%int64(len(q.buf))] = t
	q.tail++
	q.cond.Broadcast()
	return nil
}

// Next removes and returns the oldest element, blocking while the queue is
// empty. After CloseWrite, remaining elements drain and then Next returns
// iterator.Done. After CloseWithError, Next returns the close error.
func (q *Queue[T]) Next() (t T, err error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for {
		if q.closeErr != nil {
			err = q.closeErr
			return
		}
		if q.head < q.tail {
			break
		}
		if q.closeWrite {
			err = iterator.Done
			return
		}
		q.cond.Wait()
	}
	i := q.head % int64(len(q.buf))
	t = q.buf[i]
	var zero T
	q.buf[i] = zero
	q.head++
	q.cond.Broadcast()
	return t, nil
}

// Len returns the number of buffered elements.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return int(q.tail - q.head)
}

// CloseWrite closes the write side. Buffered elements remain readable.
func (q *Queue[T]) CloseWrite() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closeWrite = true
	q.cond.Broadcast()
	return nil
}

// CloseWithError closes both sides immediately. Pending and future calls
// return err. A nil err is replaced with io.ErrClosedPipe.
func (q *Queue[T]) CloseWithError(err error) error {
	if err == nil {
		err = io.ErrClosedPipe
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closeErr == nil {
		q.closeErr = err
		q.closeWrite = true
		q.cond.Broadcast()
	}
	return nil
}

// Close is CloseWithError(io.ErrClosedPipe).
func (q *Queue[T]) Close() error {
	return q.CloseWithError(io.ErrClosedPipe)
}

// Err returns the error the queue was closed with, if any.
func (q *Queue[T]) Err() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closeErr
}
