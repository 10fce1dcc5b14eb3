package logger

import (
	"bufio"
	"errors"
	"io"
	"sync"
	"sync/atomic"
)

var errWriterClosed = errors.New("logger: writer closed")

// asyncWriter fans formatted lines out to sinks from a single goroutine.
// Droppable lines are discarded instead of blocking the caller when the queue is full,
// so debug output never delays a webhook acknowledgement.
type asyncWriter struct {
	queue chan queued
	done  chan struct{}

	// closeMu guards queue against sends after Close.
	closeMu sync.RWMutex
	closed  bool

	sinks   []*bufio.Writer
	dropped atomic.Int64

	errMu sync.Mutex
	err   error
}

// queued is either a line or, when ack is set, a flush barrier.
type queued struct {
	line []byte
	ack  chan error
}

func newAsyncWriter(writers []io.Writer, bufSize int) *asyncWriter {
	if bufSize <= 0 {
		bufSize = 64 * 1024
	}
	w := &asyncWriter{
		queue: make(chan queued, 512),
		done:  make(chan struct{}),
	}
	for _, out := range writers {
		if out != nil {
			w.sinks = append(w.sinks, bufio.NewWriterSize(out, bufSize))
		}
	}
	go w.loop()
	return w
}

// loop owns the sinks. Buffers are flushed whenever the queue runs empty.
func (w *asyncWriter) loop() {
	defer close(w.done)
	for item := range w.queue {
		if item.ack != nil {
			item.ack <- w.flush()
			continue
		}
		w.setErr(w.write(item.line))
		if len(w.queue) == 0 {
			w.setErr(w.flush())
		}
	}
	w.setErr(w.flush())
}

// Write enqueues a copy of p. A droppable line is counted and discarded when the queue is full.
func (w *asyncWriter) Write(p []byte, droppable bool) error {
	if len(p) == 0 {
		return nil
	}
	if err := w.getErr(); err != nil {
		return err
	}
	item := queued{line: append([]byte(nil), p...)}

	w.closeMu.RLock()
	defer w.closeMu.RUnlock()
	if w.closed {
		return errWriterClosed
	}
	if droppable {
		select {
		case w.queue <- item:
		default:
			w.dropped.Add(1)
		}
		return nil
	}
	w.queue <- item
	return nil
}

// Dropped reports how many droppable lines were discarded so far.
func (w *asyncWriter) Dropped() int64 {
	return w.dropped.Load()
}

// Flush blocks until every line queued before the call reached the sinks.
func (w *asyncWriter) Flush() error {
	ack := make(chan error, 1)
	w.closeMu.RLock()
	if w.closed {
		w.closeMu.RUnlock()
		return w.getErr()
	}
	w.queue <- queued{ack: ack}
	w.closeMu.RUnlock()
	if err := <-ack; err != nil {
		return err
	}
	return w.getErr()
}

// Close drains the queue, flushes and reports the first write error.
func (w *asyncWriter) Close() error {
	w.closeMu.Lock()
	if !w.closed {
		w.closed = true
		close(w.queue)
	}
	w.closeMu.Unlock()
	<-w.done
	return w.getErr()
}

func (w *asyncWriter) write(line []byte) error {
	var errs []error
	for _, sink := range w.sinks {
		if _, err := sink.Write(line); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (w *asyncWriter) flush() error {
	var errs []error
	for _, sink := range w.sinks {
		if err := sink.Flush(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (w *asyncWriter) getErr() error {
	w.errMu.Lock()
	defer w.errMu.Unlock()
	return w.err
}

func (w *asyncWriter) setErr(err error) {
	if err == nil {
		return
	}
	w.errMu.Lock()
	defer w.errMu.Unlock()
	if w.err == nil {
		w.err = err
	}
}
