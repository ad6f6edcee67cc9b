package chat

import "sync"

// dispatcher delivers events to a Sink from its own goroutine. push never
// blocks, so neither the manager goroutine nor a writer waits on a slow sink.
// Events reach the sink in push order.
type dispatcher struct {
	sink Sink

	mu     sync.Mutex
	cond   *sync.Cond
	queue  []Event
	closed bool

	done chan struct{}
}

func newDispatcher(sink Sink) *dispatcher {
	d := &dispatcher{sink: sink, done: make(chan struct{})}
	d.cond = sync.NewCond(&d.mu)
	go d.run()
	return d
}

// push queues e. Events pushed after close are dropped.
func (d *dispatcher) push(e Event) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	d.queue = append(d.queue, e)
	d.cond.Signal()
}

func (d *dispatcher) run() {
	defer close(d.done)
	for {
		d.mu.Lock()
		for len(d.queue) == 0 && !d.closed {
			d.cond.Wait()
		}
		batch := d.queue
		d.queue = nil
		d.mu.Unlock()

		if len(batch) == 0 {
			return
		}
		for _, e := range batch {
			d.sink.Emit(e)
		}
	}
}

// close stops accepting events and waits until everything already queued
// has been delivered. Idempotent.
func (d *dispatcher) close() {
	d.mu.Lock()
	d.closed = true
	d.cond.Signal()
	d.mu.Unlock()
	<-d.done
}
