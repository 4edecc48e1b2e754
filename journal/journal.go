// Package journal implements the append-only change log: every successful
// mutating operation the dispatcher performs is recorded here with a
// strictly increasing sequence number, kept in a bounded in-memory ring for
// replay by late subscribers and broadcast live to anyone already
// subscribed.
package journal

import (
	"fmt"
	"sync"

	"github.com/edenfs-go/edenfs/common"
	"github.com/edenfs-go/edenfs/management"
	"github.com/jacobsa/fuse/fuseops"
)

// Kind identifies the shape of a Delta's payload.
type Kind int

const (
	KindCreated Kind = iota
	KindModified
	KindRemoved
	KindRenamed
)

// Delta is one recorded change, addressed by the inode it affects.
type Delta struct {
	Seq       uint64
	Kind      Kind
	ParentID  fuseops.InodeID
	Name      string
	ChildID   fuseops.InodeID
	NewParent fuseops.InodeID // set only for KindRenamed
	NewName   string          // set only for KindRenamed
}

// Subscriber receives live deltas as they are appended, starting from the
// moment Subscribe was called.
type Subscriber chan Delta

// ErrOverrun is returned by Range when from has already been evicted from
// the ring; the caller must resynchronize from a full listing instead of
// replaying the log.
type ErrOverrun struct {
	Requested uint64
	OldestKept uint64
}

func (e *ErrOverrun) Error() string {
	return fmt.Sprintf("journal: requested seq %d but oldest retained is %d", e.Requested, e.OldestKept)
}

// Journal is the append-only log described above. The zero value is not
// usable; construct with New.
type Journal struct {
	mu sync.Mutex

	capacity int
	ring     common.Queue[Delta]
	nextSeq  uint64
	oldest   uint64

	subscribers map[Subscriber]bool
}

// New returns a Journal retaining at most capacity deltas in its ring
// buffer before evicting the oldest.
func New(capacity int) *Journal {
	return &Journal{
		capacity:    capacity,
		ring:        common.NewLinkedListQueue[Delta](),
		subscribers: make(map[Subscriber]bool),
	}
}

// Append records d, assigning it the next sequence number, and broadcasts
// it to every live subscriber. Delivery within a subscription is gap-free:
// a subscriber that falls behind blocks the writer rather than silently
// losing a delta, so a slow subscriber must be drained (or unsubscribed) by
// its owner.
func (j *Journal) Append(d Delta) Delta {
	j.mu.Lock()
	d.Seq = j.nextSeq
	j.nextSeq++
	j.ring.Push(d)
	if j.ring.Len() > j.capacity {
		j.ring.Pop()
		j.oldest++
	}
	depth := j.ring.Len()
	subs := make([]Subscriber, 0, len(j.subscribers))
	for s := range j.subscribers {
		subs = append(subs, s)
	}
	j.mu.Unlock()

	management.JournalDepth.Set(float64(depth))

	for _, s := range subs {
		s <- d
	}
	return d
}

// Range returns every retained delta with fromSeq <= Seq <= toSeq, in
// order. It returns ErrOverrun if fromSeq predates the oldest retained
// sequence number.
func (j *Journal) Range(fromSeq, toSeq uint64) ([]Delta, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.ring.Len() > 0 && fromSeq < j.oldest {
		return nil, &ErrOverrun{Requested: fromSeq, OldestKept: j.oldest}
	}

	out := make([]Delta, 0, j.ring.Len())
	// common.Queue has no native iteration; drain into a slice and refill,
	// since the ring is small and reads are infrequent relative to writes.
	drained := make([]Delta, 0, j.ring.Len())
	for !j.ring.IsEmpty() {
		d := j.ring.Pop()
		drained = append(drained, d)
		if d.Seq >= fromSeq && d.Seq <= toSeq {
			out = append(out, d)
		}
	}
	for _, d := range drained {
		j.ring.Push(d)
	}
	return out, nil
}

// Subscribe registers a new live subscriber and returns the channel it will
// receive deltas on. The channel is buffered; once its buffer is full, Append
// blocks until the subscriber drains it, so no delta is dropped.
func (j *Journal) Subscribe() Subscriber {
	sub := make(Subscriber, 64)
	j.mu.Lock()
	j.subscribers[sub] = true
	j.mu.Unlock()
	return sub
}

// Unsubscribe removes sub and closes its channel. Safe to call more than
// once.
func (j *Journal) Unsubscribe(sub Subscriber) {
	j.mu.Lock()
	if j.subscribers[sub] {
		delete(j.subscribers, sub)
		close(sub)
	}
	j.mu.Unlock()
}

// NextSeq returns the sequence number that will be assigned to the next
// appended delta.
func (j *Journal) NextSeq() uint64 {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.nextSeq
}
