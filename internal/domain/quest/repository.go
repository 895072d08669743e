package quest

import "context"

// Repository stores shared quest records.
type Repository interface {
	// TransactQuest applies fn to the latest stored record (NewRecord when
	// absent) and writes the result only if nobody changed the record in the
	// meantime, retrying fn on conflict. fn must be free of side effects
	// because it can run several times. The committed record is returned.
	TransactQuest(ctx context.Context, questID string, fn func(r *Record) error) (*Record, error)

	// GetQuest returns the stored record and whether it exists.
	GetQuest(ctx context.Context, questID string) (*Record, bool, error)
}
