package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnapshotRoundTrip(t *testing.T) {
	in := Snapshot{
		"title":    "Broken streetlight",
		"status":   "CRITICAL",
		"progress": float64(40),
		"nested":   map[string]interface{}{"ok": true},
		"empty":    nil,
	}
	raw, err := in.Value()
	require.NoError(t, err)

	var out Snapshot
	require.NoError(t, out.Scan(raw))
	assert.Equal(t, in, out)

	var fromBytes Snapshot
	require.NoError(t, fromBytes.Scan([]byte(raw.(string))))
	assert.Equal(t, in, fromBytes)
}

func TestTaskSnapshotSurvivesStorage(t *testing.T) {
	due := time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)
	assignee := "u-2"
	task := &Task{
		Title: "Repaint benches", Status: TaskStatusInProgress, Priority: TaskPriorityHigh,
		AssignedTo: &assignee, CompletionPercentage: 40, DueDate: &due,
	}

	in := task.Snapshot()
	assert.Equal(t, float64(40), in["completion_percentage"])
	assert.Equal(t, "2026-01-02T00:00:00Z", in["due_date"])

	raw, err := in.Value()
	require.NoError(t, err)
	var out Snapshot
	require.NoError(t, out.Scan(raw))
	assert.Equal(t, in, out)

	changes := Changes{FieldCompletionPercentage: 75, FieldDueDate: due}.Snapshot()
	raw, err = changes.Value()
	require.NoError(t, err)
	require.NoError(t, out.Scan(raw))
	assert.Equal(t, changes, out)
}

func TestSnapshotNilIsNull(t *testing.T) {
	var s Snapshot
	v, err := s.Value()
	require.NoError(t, err)
	assert.Nil(t, v)

	out := Snapshot{"stale": true}
	require.NoError(t, out.Scan(nil))
	assert.Nil(t, out)
}

func TestSnapshotMalformedDegradesToNull(t *testing.T) {
	for _, raw := range []string{`{"title":`, `not json`, `[1,2,3]`, `"string"`, `null`} {
		var s Snapshot
		require.NoError(t, s.Scan([]byte(raw)), raw)
		assert.Nil(t, s, raw)
	}

	entry := ActivityLog{ID: "log-1", OldValues: DecodeSnapshot([]byte("{oops"))}
	body, err := json.Marshal(entry)
	require.NoError(t, err)
	assert.Contains(t, string(body), `"old_values":null`)
}

func TestChangesRestrict(t *testing.T) {
	changes := Changes{FieldTitle: "new", FieldStatus: "IN_PROGRESS", FieldNotes: "n"}
	kept, dropped := changes.Restrict(NewFieldSet(FieldStatus, FieldNotes))
	assert.Equal(t, Changes{FieldStatus: "IN_PROGRESS", FieldNotes: "n"}, kept)
	assert.Equal(t, []Field{FieldTitle}, dropped)
	assert.Equal(t, Snapshot{"status": "IN_PROGRESS", "notes": "n"}, kept.Snapshot())
	assert.Nil(t, Changes{}.Snapshot())
}

func TestNewPagination(t *testing.T) {
	p := NewPagination(2, 20, 41)
	assert.Equal(t, 3, p.TotalPages)
	assert.Equal(t, 0, NewPagination(1, 0, 10).TotalPages)

	page := NormalizePage(0, 500)
	assert.Equal(t, Page{Number: 1, Size: MaxPageSize}, page)
	assert.Equal(t, 40, NormalizePage(3, 20).Offset())
}
