package meshqueue

import "sync"

// Queue is an unbounded FIFO of raw byte blocks.
// It is safe for concurrent use.
type Queue struct {
	mu     sync.Mutex
	blocks [][]byte
	ready  chan struct{}
}

// NewQueue creates an empty queue.
func NewQueue() *Queue {
	return &Queue{ready: make(chan struct{}, 1)}
}

// Put appends a block. The queue keeps the slice; callers must not modify it.
func (q *Queue) Put(block []byte) {
	q.mu.Lock()
	q.blocks = append(q.blocks, block)
	q.mu.Unlock()

	select {
	case q.ready <- struct{}{}:
	default:
	}
}

// Get removes and returns the oldest block.
// It never blocks and returns nil when the queue is empty.
func (q *Queue) Get() []byte {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.blocks) == 0 {
		return nil
	}
	block := q.blocks[0]
	q.blocks[0] = nil
	q.blocks = q.blocks[1:]
	if len(q.blocks) == 0 {
		// Drop the backing array so a drained queue does not pin memory.
		q.blocks = nil
	}
	return block
}

// Empty reports whether the queue holds no blocks.
func (q *Queue) Empty() bool {
	return q.Len() == 0
}

// Len returns the number of queued blocks.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.blocks)
}

// Ready returns a channel that receives a value after Put.
// A receive is a hint only: callers must still check Empty.
func (q *Queue) Ready() <-chan struct{} {
	return q.ready
}
