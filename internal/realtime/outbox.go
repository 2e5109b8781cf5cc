package realtime

import "sync"

type outFrame struct {
	data    []byte
	control bool
}

// outbox is a Connection's outbound FIFO. Event frames are bounded: when the
// queue holds capacity events, the oldest queued event is evicted to make
// room and counted as dropped. Control frames (acks, errors) are never
// evicted and do not count against capacity.
//
// ready is buffered to 1 so bursts of pushes coalesce into a single wakeup
// for the send loop, which then drains everything queued.
type outbox struct {
	mu       sync.Mutex
	frames   []outFrame
	events   int
	capacity int
	dropped  uint64
	closed   bool
	ready    chan struct{}
}

func newOutbox(capacity int) *outbox {
	if capacity < 1 {
		capacity = 1
	}
	return &outbox{
		frames:   make([]outFrame, 0, capacity),
		capacity: capacity,
		ready:    make(chan struct{}, 1),
	}
}

// pushEvent enqueues an event frame. It never blocks. evicted is true when an
// older event had to be dropped; ok is false if the outbox is closed.
func (o *outbox) pushEvent(data []byte) (evicted, ok bool) {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return false, false
	}
	if o.events >= o.capacity {
		for i := range o.frames {
			if !o.frames[i].control {
				o.frames = append(o.frames[:i], o.frames[i+1:]...)
				o.events--
				o.dropped++
				evicted = true
				break
			}
		}
	}
	o.frames = append(o.frames, outFrame{data: data})
	o.events++
	o.mu.Unlock()

	o.signal()
	return evicted, true
}

// pushControl enqueues a control frame behind whatever is already queued.
func (o *outbox) pushControl(data []byte) bool {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return false
	}
	o.frames = append(o.frames, outFrame{data: data, control: true})
	o.mu.Unlock()

	o.signal()
	return true
}

func (o *outbox) signal() {
	select {
	case o.ready <- struct{}{}:
	default:
	}
}

// drain removes and returns everything queued, in FIFO order.
func (o *outbox) drain() [][]byte {
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.frames) == 0 {
		return nil
	}
	out := make([][]byte, len(o.frames))
	for i, f := range o.frames {
		out[i] = f.data
	}
	o.frames = make([]outFrame, 0, o.capacity)
	o.events = 0
	return out
}

// close discards queued frames and rejects further pushes.
func (o *outbox) close() {
	o.mu.Lock()
	o.closed = true
	o.frames = nil
	o.events = 0
	o.mu.Unlock()
}

func (o *outbox) len() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.frames)
}

func (o *outbox) droppedCount() uint64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.dropped
}
