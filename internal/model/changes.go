package model

import "time"

// Changes is the explicit set of fields a write applies. Absent fields are
// left untouched; present fields are applied as given, nil included.
type Changes struct {
	Title      Optional[*string]
	Metadata   Optional[map[string]any]
	Status     Optional[Status]
	ArchivedAt Optional[*time.Time]
	DeletedAt  Optional[*time.Time]
}

// Empty reports whether no field is present.
func (c Changes) Empty() bool {
	return !c.Title.IsSet() &&
		!c.Metadata.IsSet() &&
		!c.Status.IsSet() &&
		!c.ArchivedAt.IsSet() &&
		!c.DeletedAt.IsSet()
}

// Apply writes the present fields onto conv.
func (c Changes) Apply(conv *Conversation) {
	if v, ok := c.Title.Get(); ok {
		conv.Title = clonePtr(v)
	}
	if v, ok := c.Metadata.Get(); ok {
		conv.Metadata = CloneMetadata(v)
	}
	if v, ok := c.Status.Get(); ok {
		conv.Status = v
	}
	if v, ok := c.ArchivedAt.Get(); ok {
		conv.ArchivedAt = clonePtr(v)
	}
	if v, ok := c.DeletedAt.Get(); ok {
		conv.DeletedAt = clonePtr(v)
	}
}
