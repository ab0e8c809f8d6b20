// Package queue implements the conversion task queue: an unbounded FIFO
// pending sequence feeding a worker pool bounded by max_concurrent. Workers
// drive one item at a time through the pipeline phases; terminal outcomes
// are delivered through the completion callback configured at construction.
// Pending entries survive restarts via JSON snapshots.
package queue
