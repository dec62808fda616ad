package jobs

import (
	"container/heap"
)

// pqItem is something we manage in a priority queue.
type pqItem[T any] struct {
	value    T
	priority int
	// seq keeps equal priorities in submission order.
	seq uint64
	// The index is maintained by the heap.Interface methods.
	index int
}

// priorityQueue pops the highest priority first, oldest first among equals.
type priorityQueue[T any] []*pqItem[T]

func (pq *priorityQueue[T]) Len() int { return len(*pq) }

func (pq *priorityQueue[T]) Less(i, j int) bool {
	a, b := (*pq)[i], (*pq)[j]
	if a.priority != b.priority {
		return a.priority > b.priority
	}
	return a.seq < b.seq
}

func (pq *priorityQueue[T]) Swap(i, j int) {
	(*pq)[i], (*pq)[j] = (*pq)[j], (*pq)[i]
	(*pq)[i].index = i
	(*pq)[j].index = j
}

func (pq *priorityQueue[T]) Push(x any) {
	item := x.(*pqItem[T])
	item.index = len(*pq)
	*pq = append(*pq, item)
}

func (pq *priorityQueue[T]) Pop() any {
	old := *pq
	n := len(old)
	item := old[n-1]
	old[n-1] = nil  // avoid memory leak
	item.index = -1 // for safety
	*pq = old[0 : n-1]
	return item
}

func (pq *priorityQueue[T]) IsEmpty() bool {
	return pq.Len() == 0
}

// queue wraps priorityQueue with a sequence counter.
type queue[T any] struct {
	items priorityQueue[T]
	seq   uint64
}

func (q *queue[T]) push(value T, priority int) {
	q.seq++
	heap.Push(&q.items, &pqItem[T]{value: value, priority: priority, seq: q.seq})
}

func (q *queue[T]) pop() (T, bool) {
	if q.items.IsEmpty() {
		var zero T
		return zero, false
	}
	return heap.Pop(&q.items).(*pqItem[T]).value, true
}

func (q *queue[T]) len() int {
	return q.items.Len()
}
