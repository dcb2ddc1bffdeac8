package state

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carverauto/nodesim/pkg/models"
)

func TestSeed(t *testing.T) {
	t.Parallel()

	b := NewBoard()
	b.Seed([]models.Node{
		{NodeID: "a", Services: "start"},
		{NodeID: "b", Services: "stop"},
		{NodeID: "c"},
	})

	assert.Equal(t, models.NodeStatusRunning, b.Status("a"))
	assert.Equal(t, models.NodeStatusStopped, b.Status("b"))
	assert.Equal(t, models.NodeStatusUnknown, b.Status("c"))
	assert.Equal(t, models.NodeStatusUnknown, b.Status("missing"))
	assert.Equal(t, []string{"a"}, b.Running())
}

func TestRevertAppliesWithoutNewerSignal(t *testing.T) {
	t.Parallel()

	b := NewBoard()
	b.Set("n1", models.NodeStatusStopped)

	stamp := b.Set("n1", models.NodeStatusStarting)
	assert.Equal(t, models.NodeStatusStopped, stamp.Previous)

	require.True(t, b.Revert(stamp))
	assert.Equal(t, models.NodeStatusStopped, b.Status("n1"))
}

func TestRevertSkippedAfterNewerSignal(t *testing.T) {
	t.Parallel()

	b := NewBoard()
	b.Set("n1", models.NodeStatusStopped)

	stamp := b.Set("n1", models.NodeStatusStarting)
	b.Set("n1", models.NodeStatusRunning)

	assert.False(t, b.Revert(stamp))
	assert.Equal(t, models.NodeStatusRunning, b.Status("n1"))
}

func TestAcknowledgeIsTheLatestSignal(t *testing.T) {
	t.Parallel()

	b := NewBoard()
	stamps := b.SetMany([]string{"a", "b"}, models.NodeStatusStopping)
	require.Len(t, stamps, 2)
	assert.Less(t, stamps[0].Generation, stamps[1].Generation)
	assert.Equal(t, models.NodeStatusUnknown, stamps[1].Previous)

	// a success outcome lands while the stop is in flight
	b.MarkRunning("a")
	b.MarkUnhealthy("b")
	require.True(t, b.IsRunning("a"))

	acks := b.Acknowledge([]string{"a", "b"}, models.NodeStatusStopped)
	require.Len(t, acks, 2)
	assert.Equal(t, models.NodeStatusRunning, acks[0].Previous)
	assert.Equal(t, models.NodeStatusStopping, acks[1].Previous)

	assert.Equal(t, models.NodeStatusStopped, b.Status("a"))
	assert.Equal(t, models.NodeStatusStopped, b.Status("b"))
	assert.Empty(t, b.Running())
	assert.Empty(t, b.Unhealthy())
}

func TestAcknowledgeRunningJoinsSet(t *testing.T) {
	t.Parallel()

	b := NewBoard()
	b.SetMany([]string{"a"}, models.NodeStatusStarting)
	b.Acknowledge([]string{"a"}, models.NodeStatusRunning)

	assert.Equal(t, models.NodeStatusRunning, b.Status("a"))
	assert.Equal(t, []string{"a"}, b.Running())
}

func TestFreezeStopsMutation(t *testing.T) {
	t.Parallel()

	b := NewBoard()
	stamp := b.Set("a", models.NodeStatusStarting)
	b.AddRunning("c")
	b.Freeze()

	require.True(t, b.Frozen())
	assert.Nil(t, b.Acknowledge([]string{"a"}, models.NodeStatusRunning))
	assert.False(t, b.Revert(stamp))
	b.MarkRunning("b")
	b.Set("a", models.NodeStatusStopped)
	b.AddRunning("a")
	b.RemoveRunning("c")
	b.MarkUnhealthy("c")

	assert.Equal(t, models.NodeStatusStarting, b.Status("a"))
	assert.Equal(t, models.NodeStatusUnknown, b.Status("b"))
	assert.Equal(t, []string{"c"}, b.Running())
	assert.Empty(t, b.Unhealthy())
}

func TestRunningAndUnhealthySets(t *testing.T) {
	t.Parallel()

	b := NewBoard()
	b.AddRunning("b", "a", "a")
	assert.Equal(t, []string{"a", "b"}, b.Running())
	assert.True(t, b.IsRunning("a"))

	b.RemoveRunning("a")
	assert.False(t, b.IsRunning("a"))

	b.MarkUnhealthy("x")
	b.MarkUnhealthy("w")
	assert.Equal(t, []string{"w", "x"}, b.Unhealthy())

	b.ClearUnhealthy("x")
	assert.Equal(t, []string{"w"}, b.Unhealthy())
}

func TestStatusesIsCopy(t *testing.T) {
	t.Parallel()

	b := NewBoard()
	b.Set("a", models.NodeStatusRunning)

	snap := b.Statuses()
	snap["a"] = models.NodeStatusStopped

	assert.Equal(t, models.NodeStatusRunning, b.Status("a"))
}

func TestConcurrentWriters(t *testing.T) {
	t.Parallel()

	b := NewBoard()

	var wg sync.WaitGroup

	for i := 0; i < 8; i++ {
		wg.Add(1)

		go func() {
			defer wg.Done()

			for j := 0; j < 100; j++ {
				b.Set("n", models.NodeStatusRunning)
				b.AddRunning("n")
				_ = b.Running()
			}
		}()
	}

	wg.Wait()
	assert.Equal(t, []string{"n"}, b.Running())
}
