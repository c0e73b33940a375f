// Package buffer provides thread-safe queues for streaming pipeline stages.
//
// Two queue types are provided:
//
//   - Queue: a fixed-capacity FIFO that blocks producers when full. Used
//     where backpressure is the right answer, such as the outbound event
//     stream of a session.
//
//   - Ring: a fixed-capacity FIFO that drops the oldest element when full
//     instead of blocking. Used where the producer must never stall, such
//     as audio ingestion ahead of a slow transcription service. Dropped
//     elements are counted so callers can log them.
//
// Both queues support graceful shutdown via CloseWrite (readers drain the
// remaining elements, then receive iterator.Done) and immediate shutdown
// via CloseWithError.
package buffer
