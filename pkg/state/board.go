// Package state holds the per-view node status board shared by the lifecycle
// controller and the stream reconciler.
package state

import (
	"sort"
	"sync"

	"github.com/carverauto/nodesim/pkg/models"
)

// Stamp identifies one write to a node's status. A later write always
// carries a larger generation.
type Stamp struct {
	NodeID     string
	Previous   models.NodeStatus
	Generation uint64
}

type entry struct {
	status     models.NodeStatus
	generation uint64
}

// Board records the last signal that arrived for every node, the running
// set, and the nodes flagged unhealthy by the stream. One board belongs to
// one view.
type Board struct {
	mu         sync.RWMutex
	generation uint64
	nodes      map[string]entry
	running    map[string]struct{}
	unhealthy  map[string]struct{}
	frozen     bool
}

// NewBoard creates an empty board.
func NewBoard() *Board {
	return &Board{
		nodes:     make(map[string]entry),
		running:   make(map[string]struct{}),
		unhealthy: make(map[string]struct{}),
	}
}

// Seed initialises statuses from the catalog's services field. Nodes seeded
// as running join the running set.
func (b *Board) Seed(nodes []models.Node) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.frozen {
		return
	}

	for i := range nodes {
		status := models.StatusFromServices(nodes[i].Services)
		b.setLocked(nodes[i].NodeID, status)

		if status == models.NodeStatusRunning {
			b.running[nodes[i].NodeID] = struct{}{}
		}
	}
}

// Set records a new signal for id and returns its stamp.
func (b *Board) Set(id string, status models.NodeStatus) Stamp {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.frozen {
		return Stamp{NodeID: id}
	}

	return b.setLocked(id, status)
}

// SetMany records the same signal for every id, in order.
func (b *Board) SetMany(ids []string, status models.NodeStatus) []Stamp {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.frozen {
		return nil
	}

	stamps := make([]Stamp, 0, len(ids))
	for _, id := range ids {
		stamps = append(stamps, b.setLocked(id, status))
	}

	return stamps
}

// Acknowledge records a command acknowledgment as a new signal for every id
// and keeps the running set in line with it: running joins the set, stopped
// leaves it and drops the unhealthy flag. The returned stamps carry the
// status each ack replaced.
func (b *Board) Acknowledge(ids []string, status models.NodeStatus) []Stamp {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.frozen {
		return nil
	}

	stamps := make([]Stamp, 0, len(ids))
	for _, id := range ids {
		stamps = append(stamps, b.setLocked(id, status))
		b.syncRunningLocked(id, status)
	}

	return stamps
}

// MarkRunning records a success outcome for id: the node is running, in the
// running set and no longer unhealthy.
func (b *Board) MarkRunning(id string) Stamp {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.frozen {
		return Stamp{NodeID: id}
	}

	st := b.setLocked(id, models.NodeStatusRunning)
	b.syncRunningLocked(id, models.NodeStatusRunning)

	return st
}

func (b *Board) syncRunningLocked(id string, status models.NodeStatus) {
	switch status {
	case models.NodeStatusRunning:
		b.running[id] = struct{}{}
		delete(b.unhealthy, id)
	case models.NodeStatusStopped:
		delete(b.running, id)
		delete(b.unhealthy, id)
	}
}

// Freeze makes every later mutation a no-op. Reads keep working.
func (b *Board) Freeze() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.frozen = true
}

// Frozen reports whether Freeze was called.
func (b *Board) Frozen() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return b.frozen
}

// Revert restores the status a stamp replaced, unless a newer signal has
// arrived for that node since. It reports whether the revert applied.
func (b *Board) Revert(s Stamp) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	e, ok := b.nodes[s.NodeID]
	if b.frozen || !ok || e.generation != s.Generation {
		return false
	}

	b.setLocked(s.NodeID, s.Previous)

	return true
}

func (b *Board) setLocked(id string, status models.NodeStatus) Stamp {
	prev := models.NodeStatusUnknown
	if e, ok := b.nodes[id]; ok {
		prev = e.status
	}

	b.generation++
	b.nodes[id] = entry{status: status, generation: b.generation}

	return Stamp{NodeID: id, Previous: prev, Generation: b.generation}
}

// Status returns the displayed status of id.
func (b *Board) Status(id string) models.NodeStatus {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if e, ok := b.nodes[id]; ok {
		return e.status
	}

	return models.NodeStatusUnknown
}

// Statuses returns a copy of every known status.
func (b *Board) Statuses() map[string]models.NodeStatus {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make(map[string]models.NodeStatus, len(b.nodes))
	for id, e := range b.nodes {
		out[id] = e.status
	}

	return out
}

// AddRunning adds ids to the running set.
func (b *Board) AddRunning(ids ...string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.frozen {
		return
	}

	for _, id := range ids {
		b.running[id] = struct{}{}
	}
}

// RemoveRunning removes ids from the running set.
func (b *Board) RemoveRunning(ids ...string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.frozen {
		return
	}

	for _, id := range ids {
		delete(b.running, id)
	}
}

// IsRunning reports whether id is in the running set.
func (b *Board) IsRunning(id string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()

	_, ok := b.running[id]

	return ok
}

// Running returns the running set, sorted.
func (b *Board) Running() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return sortedKeys(b.running)
}

// MarkUnhealthy flags id after a failure outcome.
func (b *Board) MarkUnhealthy(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.frozen {
		return
	}

	b.unhealthy[id] = struct{}{}
}

// ClearUnhealthy drops the flag for ids.
func (b *Board) ClearUnhealthy(ids ...string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.frozen {
		return
	}

	for _, id := range ids {
		delete(b.unhealthy, id)
	}
}

// Unhealthy returns the flagged node ids, sorted.
func (b *Board) Unhealthy() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return sortedKeys(b.unhealthy)
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}

	sort.Strings(out)

	return out
}
