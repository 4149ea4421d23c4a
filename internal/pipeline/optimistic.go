package pipeline

import (
	"context"
	"errors"
)

// Outcome is the terminal state of an optimistic mutation.
type Outcome int

const (
	OutcomePending Outcome = iota
	OutcomeNoop
	OutcomeCommitted
	OutcomeRolledBack
	// OutcomeSuperseded means the backend rejected the write but a newer
	// local write for the same record already replaced it, so nothing was
	// reverted.
	OutcomeSuperseded
)

func (o Outcome) String() string {
	switch o {
	case OutcomePending:
		return "pending"
	case OutcomeNoop:
		return "noop"
	case OutcomeCommitted:
		return "committed"
	case OutcomeRolledBack:
		return "rolled_back"
	case OutcomeSuperseded:
		return "superseded"
	}
	return "unknown"
}

var errNotApplied = errors.New("optimistic write not applied")

// Optimistic is an apply-locally / confirm-or-revert mutation. T is the token
// returned by Apply that identifies the local write for Revert.
type Optimistic[T any] struct {
	// Apply performs the local write. ok=false aborts with no further calls.
	Apply func() (token T, ok bool)
	// Confirm sends the write to the backend.
	Confirm func(ctx context.Context) error
	// Revert undoes the local write after a failed Confirm. It returns false
	// when the write was superseded and left alone.
	Revert func(ctx context.Context, token T) bool
	// Settle runs after a successful Confirm. Optional.
	Settle func(token T)
}

// Start applies the local write synchronously and returns the function that
// confirms it. The caller picks where finish runs, typically a goroutine.
func (o Optimistic[T]) Start() (finish func(ctx context.Context) (Outcome, error), err error) {
	token, ok := o.Apply()
	if !ok {
		return nil, errNotApplied
	}

	return func(ctx context.Context) (Outcome, error) {
		confirmErr := o.Confirm(ctx)
		if confirmErr == nil {
			if o.Settle != nil {
				o.Settle(token)
			}
			return OutcomeCommitted, nil
		}
		if o.Revert(ctx, token) {
			return OutcomeRolledBack, confirmErr
		}
		return OutcomeSuperseded, confirmErr
	}, nil
}
