package out

import (
	"context"

	"focusguard/internal/modules/analytics/domain"
)

// NoteWriter renders logged sessions as markdown notes.
type NoteWriter interface {
	WriteNotes(ctx context.Context, entries []domain.SessionEntry, reflections []domain.Reflection) (int, error)
}
