package out

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"focusguard/internal/modules/analytics/domain"
	analyticsout "focusguard/internal/modules/analytics/port/out"
	"focusguard/internal/platform/markdown"
	"focusguard/internal/platform/slug"
)

const (
	reflectionStart = "<!-- focusguard:reflection:start -->"
	reflectionEnd   = "<!-- focusguard:reflection:end -->"
)

// MarkdownNoteWriter writes one note per logged session under
// <dir>/sessions/YYYY/MM/DD. Re-exporting rewrites the frontmatter and the
// reflection block but keeps anything else the user added to the body.
type MarkdownNoteWriter struct {
	dir string
}

func NewMarkdownNoteWriter(dir string) analyticsout.NoteWriter {
	return &MarkdownNoteWriter{dir: dir}
}

func (w *MarkdownNoteWriter) WriteNotes(ctx context.Context, entries []domain.SessionEntry, reflections []domain.Reflection) (int, error) {
	written := 0
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return written, err
		}
		if _, err := w.writeNote(e, reflections); err != nil {
			return written, err
		}
		written++
	}
	return written, nil
}

func (w *MarkdownNoteWriter) writeNote(e domain.SessionEntry, reflections []domain.Reflection) (string, error) {
	started := time.UnixMilli(e.Timestamp).UTC()
	dir := filepath.Join(w.dir, "sessions", started.Format("2006"), started.Format("01"), started.Format("02"))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create note dir: %w", err)
	}
	path := filepath.Join(dir, fmt.Sprintf("%s-%s.md", started.Format("150405"), slug.Make(e.Intention)))

	outcome := ""
	if r, ok := domain.MatchReflection(e, reflections); ok {
		outcome = r.Outcome
	}

	body := fmt.Sprintf("# %s\n\n- Site: %s\n- Duration: %d minutes\n", e.Intention, e.Site, e.Duration/60_000)
	existing, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return "", fmt.Errorf("read note: %w", err)
	default:
		_, prevBody, err := markdown.Split(string(existing))
		if err != nil {
			return "", fmt.Errorf("parse note %s: %w", path, err)
		}
		body = strings.TrimPrefix(prevBody, "\n")
	}
	body = markdown.ReplaceManagedBlock(body, reflectionStart, reflectionEnd, reflectionText(outcome))

	rendered, err := markdown.Render([]markdown.Field{
		{Key: "schema_version", Value: domain.SchemaVersion},
		{Key: "type", Value: "focus-session"},
		{Key: "site", Value: e.Site},
		{Key: "intention", Value: e.Intention},
		{Key: "started_at", Value: started.Format(time.RFC3339)},
		{Key: "duration_minutes", Value: e.Duration / 60_000},
		{Key: "tab_id", Value: e.TabID},
		{Key: "outcome", Value: outcome},
	}, body)
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(path, []byte(rendered), 0o644); err != nil {
		return "", fmt.Errorf("write note: %w", err)
	}
	return path, nil
}

func reflectionText(outcome string) string {
	if outcome == "" {
		return "_No reflection recorded._"
	}
	return "Reflection: " + outcome
}
