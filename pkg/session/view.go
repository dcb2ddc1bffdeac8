package session

import (
	"sort"

	"github.com/carverauto/nodesim/pkg/models"
	"github.com/carverauto/nodesim/pkg/reconciler"
	"github.com/carverauto/nodesim/pkg/stream"
)

// NodeView is one row of the status table.
type NodeView struct {
	Node      models.Node
	Status    models.NodeStatus
	Running   bool
	Unhealthy bool
}

// View is a point-in-time copy of everything the operator console shows.
type View struct {
	Nodes         []NodeView
	Counters      reconciler.Snapshot
	Connection    stream.State
	PendingAlerts int
	Released      bool
}

// View snapshots the session. Running nodes are listed first, otherwise
// catalog order is kept.
func (s *Session) View() View {
	statuses := s.board.Statuses()
	unhealthy := toSet(s.board.Unhealthy())
	snap := s.rec.Snapshot()
	running := toSet(snap.Running)

	rows := make([]NodeView, 0, len(s.nodes))
	for i := range s.nodes {
		id := s.nodes[i].NodeID
		_, isRunning := running[id]
		_, isUnhealthy := unhealthy[id]

		rows = append(rows, NodeView{
			Node:      s.nodes[i],
			Status:    statuses[id],
			Running:   isRunning,
			Unhealthy: isUnhealthy,
		})
	}

	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].Running && !rows[j].Running
	})

	s.mu.Lock()
	pending := len(s.pending)
	released := s.released
	s.mu.Unlock()

	return View{
		Nodes:         rows,
		Counters:      snap,
		Connection:    s.sub.State(),
		PendingAlerts: pending,
		Released:      released,
	}
}

func toSet(ids []string) map[string]struct{} {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}

	return set
}
