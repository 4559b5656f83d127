// Package queue is a time ordered scheduling queue.
package queue

import (
	"container/heap"
	"sync"
	"time"
)

// Item represents a scheduled value
type Item[T any] struct {
	Value    T
	Priority int       // Breaks ties between items due at the same time; higher first
	NextRun  time.Time // When this item should run
	index    int
}

// PriorityQueue orders items by NextRun, then by Priority
type PriorityQueue[T any] struct {
	items itemHeap[T]
	mu    sync.Mutex
}

// NewPriorityQueue creates a new priority queue
func NewPriorityQueue[T any]() *PriorityQueue[T] {
	pq := &PriorityQueue[T]{}
	heap.Init(&pq.items)
	return pq
}

// Push adds an item to the queue
func (pq *PriorityQueue[T]) Push(value T, priority int, nextRun time.Time) {
	pq.mu.Lock()
	defer pq.mu.Unlock()

	heap.Push(&pq.items, &Item[T]{
		Value:    value,
		Priority: priority,
		NextRun:  nextRun,
	})
}

// Pop removes and returns the first item regardless of its run time
func (pq *PriorityQueue[T]) Pop() (T, bool) {
	pq.mu.Lock()
	defer pq.mu.Unlock()

	if pq.items.Len() == 0 {
		var zero T
		return zero, false
	}
	return heap.Pop(&pq.items).(*Item[T]).Value, true
}

// Peek returns a copy of the first item without removing it
func (pq *PriorityQueue[T]) Peek() (Item[T], bool) {
	pq.mu.Lock()
	defer pq.mu.Unlock()

	if pq.items.Len() == 0 {
		return Item[T]{}, false
	}
	return *pq.items[0], true
}

// NextReady removes and returns the first item if its run time has passed
func (pq *PriorityQueue[T]) NextReady(now time.Time) (T, bool) {
	pq.mu.Lock()
	defer pq.mu.Unlock()

	var zero T
	if pq.items.Len() == 0 || now.Before(pq.items[0].NextRun) {
		return zero, false
	}
	return heap.Pop(&pq.items).(*Item[T]).Value, true
}

// Len returns the number of items in the queue
func (pq *PriorityQueue[T]) Len() int {
	pq.mu.Lock()
	defer pq.mu.Unlock()
	return pq.items.Len()
}

// Clear removes all items
func (pq *PriorityQueue[T]) Clear() {
	pq.mu.Lock()
	defer pq.mu.Unlock()
	pq.items = nil
	heap.Init(&pq.items)
}

// itemHeap implements heap.Interface
type itemHeap[T any] []*Item[T]

func (h itemHeap[T]) Len() int { return len(h) }

func (h itemHeap[T]) Less(i, j int) bool {
	if !h[i].NextRun.Equal(h[j].NextRun) {
		return h[i].NextRun.Before(h[j].NextRun)
	}
	return h[i].Priority > h[j].Priority
}

func (h itemHeap[T]) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *itemHeap[T]) Push(x any) {
	item := x.(*Item[T])
	item.index = len(*h)
	*h = append(*h, item)
}

func (h *itemHeap[T]) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	item.index = -1
	*h = old[0 : n-1]
	return item
}
