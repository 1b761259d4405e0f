package selectplus

import (
	"context"

	"github.com/m-mizutani/goerr/v2"
)

// StepFunc applies a fill through repo. Steps that run before the owner is
// saved write into owner.Attributes.
type StepFunc func(ctx context.Context, repo Repository, owner *Owner) error

// PersistenceStep is the outcome of filling one field. The write orchestrator
// runs steps that are not marked AfterOwnerSaved before writing the owner row
// and the rest once the owner has a key.
type PersistenceStep struct {
	Field           string
	AfterOwnerSaved bool
	run             StepFunc
}

// Immediate builds a step that runs before the owner row is written.
func Immediate(field string, fn StepFunc) *PersistenceStep {
	return &PersistenceStep{Field: field, run: fn}
}

// Deferred builds a step that runs after the owner row is written.
func Deferred(field string, fn StepFunc) *PersistenceStep {
	return &PersistenceStep{Field: field, AfterOwnerSaved: true, run: fn}
}

func (s *PersistenceStep) RunAfterOwnerSaved() bool {
	return s.AfterOwnerSaved
}

func (s *PersistenceStep) Run(ctx context.Context, repo Repository, owner *Owner) error {
	if s.run == nil {
		return nil
	}
	if s.AfterOwnerSaved && owner.Key == nil {
		return goerr.New("owner has no key yet", goerr.V(FieldKey, s.Field))
	}
	return s.run(ctx, repo, owner)
}
