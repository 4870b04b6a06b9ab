package database

import (
	"context"
	"time"
)

// Budgets for calls against the access-log store.
const (
	ReadTimeout = 5 * time.Second
	BulkTimeout = 30 * time.Second
)

// ReadContext bounds a lookup or listing query.
func ReadContext(parent context.Context) (context.Context, context.CancelFunc) {
	return within(parent, ReadTimeout)
}

// BulkContext bounds a batch insert or a migration run.
func BulkContext(parent context.Context) (context.Context, context.CancelFunc) {
	return within(parent, BulkTimeout)
}

// within applies budget unless parent already ends sooner.
func within(parent context.Context, budget time.Duration) (context.Context, context.CancelFunc) {
	if deadline, ok := parent.Deadline(); ok && time.Until(deadline) <= budget {
		return context.WithCancel(parent)
	}
	return context.WithTimeout(parent, budget)
}
