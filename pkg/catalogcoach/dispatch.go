package catalogcoach

import "sync"

// SerialQueue is a Dispatcher backed by a single goroutine draining a FIFO.
// Dispatch never blocks.
type SerialQueue struct {
	mu      sync.Mutex
	cond    *sync.Cond
	queue   []func()
	closed  bool
	stopped chan struct{}
}

func NewSerialQueue() *SerialQueue {
	q := &SerialQueue{stopped: make(chan struct{})}
	q.cond = sync.NewCond(&q.mu)
	go q.run()
	return q
}

// Dispatch queues fn. Work dispatched after Close is dropped.
func (q *SerialQueue) Dispatch(fn func()) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.queue = append(q.queue, fn)
	q.cond.Signal()
}

// Sync blocks until everything dispatched before it has run.
func (q *SerialQueue) Sync() {
	done := make(chan struct{})
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		<-q.stopped
		return
	}
	q.queue = append(q.queue, func() { close(done) })
	q.cond.Signal()
	q.mu.Unlock()
	<-done
}

// Close runs what is already queued and stops the goroutine.
func (q *SerialQueue) Close() {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		q.cond.Signal()
	}
	q.mu.Unlock()
	<-q.stopped
}

func (q *SerialQueue) run() {
	defer close(q.stopped)
	for {
		q.mu.Lock()
		for len(q.queue) == 0 && !q.closed {
			q.cond.Wait()
		}
		if len(q.queue) == 0 {
			q.mu.Unlock()
			return
		}
		fn := q.queue[0]
		q.queue[0] = nil
		q.queue = q.queue[1:]
		q.mu.Unlock()

		fn()
	}
}
