package journal_test

import (
	"testing"
	"time"

	"github.com/edenfs-go/edenfs/journal"
	"github.com/jacobsa/fuse/fuseops"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppendAssignsIncreasingSeq(t *testing.T) {
	j := journal.New(10)
	d1 := j.Append(journal.Delta{Kind: journal.KindCreated, ParentID: 1, Name: "a"})
	d2 := j.Append(journal.Delta{Kind: journal.KindCreated, ParentID: 1, Name: "b"})
	assert.Equal(t, uint64(0), d1.Seq)
	assert.Equal(t, uint64(1), d2.Seq)
}

func TestRangeReturnsFromSeq(t *testing.T) {
	j := journal.New(10)
	j.Append(journal.Delta{Name: "a"})
	j.Append(journal.Delta{Name: "b"})
	j.Append(journal.Delta{Name: "c"})

	got, err := j.Range(1, 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "b", got[0].Name)
	assert.Equal(t, "c", got[1].Name)
}

func TestRangeRespectsUpperBound(t *testing.T) {
	j := journal.New(10)
	j.Append(journal.Delta{Name: "a"})
	j.Append(journal.Delta{Name: "b"})
	j.Append(journal.Delta{Name: "c"})

	got, err := j.Range(0, 1)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].Name)
	assert.Equal(t, "b", got[1].Name)
}

func TestRangeOverrunWhenEvicted(t *testing.T) {
	j := journal.New(2)
	j.Append(journal.Delta{Name: "a"})
	j.Append(journal.Delta{Name: "b"})
	j.Append(journal.Delta{Name: "c"}) // evicts "a"

	_, err := j.Range(0, 10)
	require.Error(t, err)
	var overrun *journal.ErrOverrun
	require.ErrorAs(t, err, &overrun)
	assert.Equal(t, uint64(1), overrun.OldestKept)
}

func TestSubscribeReceivesLiveDeltas(t *testing.T) {
	j := journal.New(10)
	sub := j.Subscribe()
	defer j.Unsubscribe(sub)

	j.Append(journal.Delta{Kind: journal.KindRemoved, ChildID: fuseops.InodeID(42)})

	select {
	case d := <-sub:
		assert.Equal(t, journal.KindRemoved, d.Kind)
		assert.Equal(t, fuseops.InodeID(42), d.ChildID)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for delta")
	}
}

func TestAppendDeliversAllDeltasToSlowSubscriberWithoutGaps(t *testing.T) {
	j := journal.New(10)
	sub := j.Subscribe()
	defer j.Unsubscribe(sub)

	const n = 200 // far more than the subscriber channel's buffer
	done := make(chan struct{})
	go func() {
		for i := 0; i < n; i++ {
			j.Append(journal.Delta{Name: "d", Kind: journal.KindModified})
		}
		close(done)
	}()

	received := 0
	for received < n {
		select {
		case <-sub:
			received++
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out after receiving %d/%d deltas: a slow subscriber must never lose one", received, n)
		}
	}
	<-done
}

func TestUnsubscribeIsIdempotent(t *testing.T) {
	j := journal.New(10)
	sub := j.Subscribe()
	j.Unsubscribe(sub)
	assert.NotPanics(t, func() { j.Unsubscribe(sub) })
}
