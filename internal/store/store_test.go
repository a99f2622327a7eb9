package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bobbyrathoree/macscope/internal/domain"
)

func TestCommitAddedUpdatedRemoved(t *testing.T) {
	s := New()

	first := []domain.Process{
		{PID: 1, Name: "a", Level: domain.LevelLow},
		{PID: 2, Name: "b", Level: domain.LevelLow},
	}
	d1 := s.Commit(first)
	assert.Len(t, d1.Added, 2)
	assert.Empty(t, d1.Updated)
	assert.Empty(t, d1.Removed)

	second := []domain.Process{
		{PID: 1, Name: "a", Level: domain.LevelHigh}, // updated
		{PID: 3, Name: "c", Level: domain.LevelLow},  // added
	}
	d2 := s.Commit(second)
	assert.Len(t, d2.Added, 1)
	assert.Equal(t, 3, d2.Added[0].PID)
	require.Len(t, d2.Updated, 1)
	assert.Equal(t, 1, d2.Updated[0].PID)
	assert.Equal(t, []int{2}, d2.Removed)
}

func TestCommitNoChangeProducesEmptyDelta(t *testing.T) {
	s := New()
	procs := []domain.Process{{PID: 1, Name: "a", Level: domain.LevelLow}}
	s.Commit(procs)
	d := s.Commit(procs)
	assert.True(t, d.Empty())
}

func TestSnapshotReflectsLatestCommit(t *testing.T) {
	s := New()
	s.Commit([]domain.Process{{PID: 1, Name: "a"}})
	snap := s.Snapshot()
	assert.Len(t, snap.Processes, 1)
	assert.NotEmpty(t, snap.Digest)
}

func TestSubscribeReceivesWakeAndSnapshotDiffsClean(t *testing.T) {
	s := New()
	wake := s.Subscribe("sub1")

	lastSent := s.Snapshot().Processes
	s.Commit([]domain.Process{{PID: 1, Name: "a"}})

	select {
	case <-wake:
		snap := s.Snapshot()
		d := Diff(lastSent, snap.Processes)
		assert.Len(t, d.Added, 1)
	default:
		t.Fatal("expected a wake on the subscriber channel")
	}

	s.Unsubscribe("sub1")
	_, ok := <-wake
	assert.False(t, ok)
}

func TestSubscriberSelfHealsAfterDroppedWake(t *testing.T) {
	s := New()
	wake := s.Subscribe("sub1")
	lastSent := s.Snapshot().Processes

	// Two commits land before the subscriber ever reads; the buffered
	// channel coalesces them into a single pending wake.
	s.Commit([]domain.Process{{PID: 1, Name: "a"}})
	s.Commit([]domain.Process{{PID: 1, Name: "a"}, {PID: 2, Name: "b"}})

	<-wake
	snap := s.Snapshot()
	d := Diff(lastSent, snap.Processes)
	// Diffing against the true last-observed state (empty) reproduces both
	// additions even though only one wake was ever delivered.
	assert.Len(t, d.Added, 2)
}

func TestCommitDoesNotBlockOnFullSubscriberBuffer(t *testing.T) {
	s := New()
	s.Subscribe("slow")

	for i := 0; i < subscriberBuffer+5; i++ {
		s.Commit([]domain.Process{{PID: i, Name: "a"}})
	}
	// reaching here without deadlocking is the assertion.
}

func TestDigestStableAcrossIdenticalCommits(t *testing.T) {
	procs := []domain.Process{{PID: 1, Name: "a", CPU: 1.25, Level: domain.LevelMed}}
	assert.Equal(t, digestOf(procs), digestOf(procs))
}

func TestCommitWithUnchangedDigestProducesNoDeltaOrNotification(t *testing.T) {
	s := New()
	wake := s.Subscribe("sub1")

	s.Commit([]domain.Process{{PID: 1, Name: "a", CPU: 12.02, Level: domain.LevelMed}})
	select {
	case <-wake:
	default:
		t.Fatal("expected a wake for the first commit")
	}

	// 12.02 and 12.04 both round to the same digest bucket (120), so this
	// is a cpu fluctuation too small to change the stability digest.
	d := s.Commit([]domain.Process{{PID: 1, Name: "a", CPU: 12.04, Level: domain.LevelMed}})
	assert.True(t, d.Empty())

	select {
	case <-wake:
		t.Fatal("subscriber should not be woken when the digest is unchanged")
	default:
	}

	snap := s.Snapshot()
	require.Len(t, snap.Processes, 1)
	assert.Equal(t, 12.02, snap.Processes[0].CPU, "snapshot must not be replaced when the digest is unchanged")
}
