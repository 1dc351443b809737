package mqtt

import "log"

// bufferedLine stores a log line for replay after reconnection.
type bufferedLine struct {
	topic    string
	line     string
	retained bool
}

// ringBuffer is a fixed-capacity FIFO that stores lines while disconnected.
// Not safe for concurrent use; the caller must synchronize.
type ringBuffer struct {
	buf      []bufferedLine
	capacity int
	head     int // next write position
	count    int
	overflow bool // true if any line was dropped since last drain
}

func newRingBuffer(capacity int) *ringBuffer {
	if capacity < 1 {
		capacity = 1
	}
	return &ringBuffer{
		buf:      make([]bufferedLine, capacity),
		capacity: capacity,
	}
}

func (r *ringBuffer) push(msg bufferedLine) {
	if r.count == r.capacity {
		if !r.overflow {
			log.Printf("mqtt: buffer full (%d lines), dropping oldest", r.capacity)
			r.overflow = true
		}
		// head points at the oldest entry when full
		r.buf[r.head] = msg
		r.head = (r.head + 1) % r.capacity
		return
	}
	r.buf[r.head] = msg
	r.head = (r.head + 1) % r.capacity
	r.count++
}

// pop removes and returns the oldest line.
func (r *ringBuffer) pop() (bufferedLine, bool) {
	if r.count == 0 {
		return bufferedLine{}, false
	}
	start := (r.head - r.count + r.capacity) % r.capacity
	msg := r.buf[start]
	r.buf[start] = bufferedLine{}
	r.count--
	if r.count == 0 {
		r.overflow = false
	}
	return msg, true
}

// pushFront puts a line back in front of the oldest one. When the buffer
// is full the line is older than everything kept and is dropped.
func (r *ringBuffer) pushFront(msg bufferedLine) bool {
	if r.count == r.capacity {
		return false
	}
	start := (r.head - r.count - 1 + 2*r.capacity) % r.capacity
	r.buf[start] = msg
	r.count++
	return true
}

func (r *ringBuffer) len() int {
	return r.count
}
