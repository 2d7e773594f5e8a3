package tools

import (
	"context"
	"sync"

	"pkt.systems/pslog"
)

// Decision is the user's answer to a confirmation prompt.
type Decision int

const (
	DecisionYes Decision = iota
	DecisionNo
	DecisionAll
	DecisionCancel
)

func (d Decision) String() string {
	switch d {
	case DecisionYes:
		return "yes"
	case DecisionNo:
		return "no"
	case DecisionAll:
		return "all"
	case DecisionCancel:
		return "cancel"
	}
	return "unknown"
}

// Confirmer asks the user whether a command may run.
type Confirmer interface {
	Confirm(ctx context.Context, command string) (Decision, error)
}

// ConfirmFunc adapts a function to the Confirmer interface.
type ConfirmFunc func(ctx context.Context, command string) (Decision, error)

func (f ConfirmFunc) Confirm(ctx context.Context, command string) (Decision, error) {
	return f(ctx, command)
}

// Gate decides whether commands may run. It is built once per agent run;
// the approve-all latch never outlives the run.
type Gate struct {
	confirmer Confirmer
	allowed   []string

	mu         sync.Mutex
	approveAll bool
}

// NewGate returns a gate that prompts through c. With autoConfirm the
// approve-all latch starts set. Commands matching one of the allowed regular
// expressions are approved without prompting.
func NewGate(c Confirmer, autoConfirm bool, allowed []string) *Gate {
	return &Gate{confirmer: c, allowed: allowed, approveAll: autoConfirm}
}

// Preapproved reports whether command runs without asking.
func (g *Gate) Preapproved(ctx context.Context, command string) bool {
	g.mu.Lock()
	all := g.approveAll
	g.mu.Unlock()
	return all || isCommandAllowed(ctx, command, g.allowed)
}

// Confirm prompts for command. A prompt that fails (no terminal, EOF) counts
// as cancel. DecisionAll sets the latch.
func (g *Gate) Confirm(ctx context.Context, command string) Decision {
	if g.confirmer == nil {
		return DecisionCancel
	}
	d, err := g.confirmer.Confirm(ctx, command)
	if err != nil {
		pslog.Ctx(ctx).Debug("confirmation failed", "err", err)
		return DecisionCancel
	}
	if d == DecisionAll {
		g.mu.Lock()
		g.approveAll = true
		g.mu.Unlock()
	}
	return d
}
