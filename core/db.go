package core

import "context"

// Transactor runs fn inside a single database transaction. Repositories called with
// the ctx handed to fn take part in that transaction.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type DBOrdering struct {
	Field     string
	Ascending bool
}

func (ord DBOrdering) String() string {
	direction := "DESC"
	if ord.Ascending {
		direction = "ASC"
	}
	return ord.Field + " " + direction
}

// CleanOrdering drops orderings on fields that are not in allowed.
func CleanOrdering(ordering []DBOrdering, allowed ...string) []DBOrdering {
	cleaned := make([]DBOrdering, 0, len(ordering))
	for _, ord := range ordering {
		if StringInSlice(ord.Field, allowed) {
			cleaned = append(cleaned, ord)
		}
	}
	return cleaned
}
