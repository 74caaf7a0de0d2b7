package scheduler

import (
	"container/heap"

	"github.com/a11yscan/grid/pkg/domain/scanjob"
)

// backlogItem pairs a job with its insertion sequence so equal
// priorities dispatch first-in-first-out.
type backlogItem struct {
	job *scanjob.Job
	seq uint64
}

// backlog is a max-heap over pending jobs: priority descending, then
// insertion sequence ascending. Terminal and scanning jobs never live
// here, so claim cost does not grow with total historical job count.
type backlog []*backlogItem

func (b backlog) Len() int { return len(b) }

func (b backlog) Less(i, j int) bool {
	if b[i].job.Priority != b[j].job.Priority {
		return b[i].job.Priority > b[j].job.Priority
	}
	return b[i].seq < b[j].seq
}

func (b backlog) Swap(i, j int) { b[i], b[j] = b[j], b[i] }

func (b *backlog) Push(x any) { *b = append(*b, x.(*backlogItem)) }

func (b *backlog) Pop() any {
	old := *b
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*b = old[:n-1]
	return item
}

// push inserts a job preserving the heap invariant.
func (b *backlog) push(item *backlogItem) {
	heap.Push(b, item)
}

// pop removes and returns the best item, or nil when empty.
func (b *backlog) pop() *backlogItem {
	if b.Len() == 0 {
		return nil
	}
	return heap.Pop(b).(*backlogItem)
}
