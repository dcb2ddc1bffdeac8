package tui

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/carverauto/nodesim/pkg/session"
)

type promptRequest struct {
	prompt session.Prompt
	reply  chan bool
}

// Prompter is a session.Confirmer answered from the console. Confirm blocks
// until the operator presses y or n.
type Prompter struct {
	requests chan promptRequest
}

// NewPrompter creates a prompter. Pass it to session.WithConfirmer and to New.
func NewPrompter() *Prompter {
	return &Prompter{requests: make(chan promptRequest)}
}

// Confirm implements session.Confirmer.
func (p *Prompter) Confirm(ctx context.Context, prompt session.Prompt) bool {
	req := promptRequest{prompt: prompt, reply: make(chan bool, 1)}

	select {
	case p.requests <- req:
	case <-ctx.Done():
		return false
	}

	select {
	case ok := <-req.reply:
		return ok
	case <-ctx.Done():
		return false
	}
}

type promptMsg promptRequest

func listenForPrompt(p *Prompter) tea.Cmd {
	return func() tea.Msg {
		return promptMsg(<-p.requests)
	}
}
