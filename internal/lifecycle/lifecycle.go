// Package lifecycle implements the conversation status state machine.
//
// Transitions are declared in a single table keyed by (current, requested).
// Same-state requests are no-ops, entering deleted is always allowed from a
// live state, and nothing leaves deleted.
package lifecycle

import (
	"errors"
	"fmt"
	"time"

	"github.com/capitalize-ai/conversations-api/internal/model"
)

// ErrIllegalTransition is returned when the current state precludes the
// requested one.
var ErrIllegalTransition = errors.New("illegal status transition")

type stamp int

const (
	keep stamp = iota
	set
	clear
)

type edge struct {
	from model.Status
	to   model.Status
}

type rule struct {
	next     model.Status
	archived stamp
	deleted  stamp
}

var transitions = map[edge]rule{
	{model.StatusActive, model.StatusActive}:     {next: model.StatusActive},
	{model.StatusActive, model.StatusArchived}:   {next: model.StatusArchived, archived: set},
	{model.StatusActive, model.StatusDeleted}:    {next: model.StatusDeleted, deleted: set},
	{model.StatusArchived, model.StatusArchived}: {next: model.StatusArchived},
	{model.StatusArchived, model.StatusActive}:   {next: model.StatusActive, archived: clear},
	{model.StatusArchived, model.StatusDeleted}:  {next: model.StatusDeleted, deleted: set},
}

// Effect is the outcome of an accepted transition.
type Effect struct {
	From       model.Status
	To         model.Status
	ArchivedAt model.Optional[*time.Time]
	DeletedAt  model.Optional[*time.Time]
}

// Changed reports whether the transition moves to a different state.
func (e Effect) Changed() bool {
	return e.From != e.To
}

// Changes returns the field set a store must persist for the effect.
// A no-op transition yields an empty set.
func (e Effect) Changes() model.Changes {
	if !e.Changed() {
		return model.Changes{}
	}
	return model.Changes{
		Status:     model.Some(e.To),
		ArchivedAt: e.ArchivedAt,
		DeletedAt:  e.DeletedAt,
	}
}

// Transition decides whether current may move to requested at time now.
func Transition(current, requested model.Status, now time.Time) (Effect, error) {
	r, ok := transitions[edge{current, requested}]
	if !ok {
		return Effect{}, fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, current, requested)
	}

	eff := Effect{From: current, To: r.next}
	eff.ArchivedAt = stampValue(r.archived, now)
	eff.DeletedAt = stampValue(r.deleted, now)
	return eff, nil
}

// Allowed reports whether Transition would accept the pair.
func Allowed(current, requested model.Status) bool {
	_, ok := transitions[edge{current, requested}]
	return ok
}

func stampValue(s stamp, now time.Time) model.Optional[*time.Time] {
	switch s {
	case set:
		t := now
		return model.Some(&t)
	case clear:
		return model.Some[*time.Time](nil)
	}
	return model.None[*time.Time]()
}
