package session

import (
	"context"
	"fmt"
)

// Action names a bulk operation that needs operator confirmation.
type Action string

const (
	ActionStartSegment   Action = "start_segment"
	ActionStopSegment    Action = "stop_segment"
	ActionStopAllRunning Action = "stop_all_running"
	ActionStartRange     Action = "start_range"
	ActionStopUnhealthy  Action = "stop_unhealthy"
)

// Prompt describes the bulk action awaiting confirmation.
type Prompt struct {
	Action  Action
	NodeIDs []string
	// Segment is the segment index for segment actions, -1 otherwise.
	Segment int
}

func (p Prompt) String() string {
	switch p.Action {
	case ActionStartSegment:
		return fmt.Sprintf("Start %d nodes in segment %d?", len(p.NodeIDs), p.Segment+1)
	case ActionStopSegment:
		return fmt.Sprintf("Stop %d nodes in segment %d?", len(p.NodeIDs), p.Segment+1)
	case ActionStopAllRunning:
		return fmt.Sprintf("Stop all %d running nodes?", len(p.NodeIDs))
	case ActionStartRange:
		return fmt.Sprintf("Start %d nodes in range?", len(p.NodeIDs))
	case ActionStopUnhealthy:
		return fmt.Sprintf("Stop %d unhealthy nodes?", len(p.NodeIDs))
	default:
		return fmt.Sprintf("%s %d nodes?", p.Action, len(p.NodeIDs))
	}
}

// Confirmer asks the operator to approve a bulk action. Confirm blocks
// until the operator answers or ctx is done.
type Confirmer interface {
	Confirm(ctx context.Context, p Prompt) bool
}

// ConfirmFunc adapts a function to Confirmer.
type ConfirmFunc func(ctx context.Context, p Prompt) bool

// Confirm implements Confirmer.
func (f ConfirmFunc) Confirm(ctx context.Context, p Prompt) bool {
	return f(ctx, p)
}

// DenyAll declines every prompt.
var DenyAll = ConfirmFunc(func(context.Context, Prompt) bool { return false })
