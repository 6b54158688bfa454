package render

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/s22625/nexusflow/internal/model"
)

func entries(n int, from int) []model.LogEntry {
	out := make([]model.LogEntry, 0, n)
	for i := from; i < from+n; i++ {
		out = append(out, model.LogEntry{TS: float64(i), Msg: fmt.Sprintf("line %d", i)})
	}
	return out
}

func snapshot(logs ...model.LogEntry) *model.LogSnapshot {
	return &model.LogSnapshot{OK: true, Logs: logs}
}

func TestLogRowFormatting(t *testing.T) {
	r := NewLogRenderer()
	view, changed := r.Render(snapshot(
		model.LogEntry{TS: 3661.75, Msg: "200 via p1", OK: model.Bool(true)},
		model.LogEntry{TS: 3662, Msg: "timeout via p2", OK: model.Bool(false)},
		model.LogEntry{TS: 3663, Msg: "worker started"},
	))
	require.True(t, changed)
	require.Len(t, view.Rows, 3)

	assert.Equal(t, "[01:01:01] 200 via p1", view.Rows[0].Text)
	assert.Equal(t, "01:01:01", view.Rows[0].Clock)
	assert.Equal(t, ClassSuccess, view.Rows[0].Class)
	assert.Equal(t, ClassFail, view.Rows[1].Class)
	assert.Equal(t, ClassInfo, view.Rows[2].Class)
	assert.Equal(t, []int{0, 1, 2}, []int{view.Rows[0].Color, view.Rows[1].Color, view.Rows[2].Color})
}

func TestLogUnchangedSkipsRebuild(t *testing.T) {
	r := NewLogRenderer()
	_, changed := r.Render(snapshot(entries(2, 0)...))
	require.True(t, changed)

	view, changed := r.Render(snapshot(entries(2, 0)...))
	assert.False(t, changed)
	assert.Empty(t, view.Rows)
	assert.Equal(t, 2, r.LastCount())
}

func TestLogEmptyInitialSnapshot(t *testing.T) {
	r := NewLogRenderer()
	_, changed := r.Render(snapshot())
	assert.False(t, changed)

	_, changed = r.Render(nil)
	assert.False(t, changed)
}

func TestLogColorIndexIsGlobal(t *testing.T) {
	r := NewLogRenderer()
	_, _ = r.Render(snapshot(entries(3, 0)...))

	view, changed := r.Render(snapshot(entries(4, 0)...))
	require.True(t, changed)
	var colors []int
	for _, row := range view.Rows {
		colors = append(colors, row.Color)
	}
	// Three rows were drawn before, so the rebuild continues at 3 and wraps.
	assert.Equal(t, []int{3, 4, 0, 1}, colors)
}

func TestLogFullRingBufferStillRebuilds(t *testing.T) {
	r := NewLogRenderer()
	_, _ = r.Render(snapshot(entries(300, 0)...))

	// Same length, window moved forward by one entry.
	view, changed := r.Render(snapshot(entries(300, 1)...))
	require.True(t, changed)
	assert.Equal(t, "line 300", view.Rows[len(view.Rows)-1].Message)
	assert.Equal(t, 300, r.LastCount())
	assert.Equal(t, 1, view.Appended)

	// Two more arrive between polls; the two oldest are dropped.
	view, changed = r.Render(snapshot(entries(300, 3)...))
	require.True(t, changed)
	assert.Equal(t, 2, view.Appended)
}

func TestLogShrinkResyncs(t *testing.T) {
	r := NewLogRenderer()
	first, _ := r.Render(snapshot(entries(5, 0)...))
	assert.Equal(t, 0, first.Session)

	view, changed := r.Render(snapshot(model.LogEntry{TS: 100, Msg: "Worker started"}))
	require.True(t, changed)
	require.Len(t, view.Rows, 1)
	assert.Equal(t, 1, view.Session)
	assert.Equal(t, 1, view.Appended)
	assert.Equal(t, 1, r.LastCount())

	// Growth within the new session is a normal rebuild.
	view, changed = r.Render(snapshot(model.LogEntry{TS: 100, Msg: "Worker started"}, model.LogEntry{TS: 101, Msg: "next"}))
	require.True(t, changed)
	assert.Equal(t, 1, view.Session)
	assert.Equal(t, 1, view.Appended)
	assert.Equal(t, 2, r.LastCount())
}

func TestLogShrinkToEmpty(t *testing.T) {
	r := NewLogRenderer()
	_, _ = r.Render(snapshot(entries(2, 0)...))
	view, changed := r.Render(snapshot())
	assert.True(t, changed)
	assert.Empty(t, view.Rows)
	assert.Equal(t, 0, r.LastCount())
}

func TestLogNewestOutcomeChange(t *testing.T) {
	r := NewLogRenderer()
	_, _ = r.Render(snapshot(model.LogEntry{TS: 1, Msg: "req"}))
	_, changed := r.Render(snapshot(model.LogEntry{TS: 1, Msg: "req", OK: model.Bool(true)}))
	assert.True(t, changed)
}

func TestLogAppendedCountsRepeatedMessages(t *testing.T) {
	first := model.LogEntry{TS: 1700000000.1, Msg: "GET 200 via p1", OK: model.Bool(true)}
	second := model.LogEntry{TS: 1700000000.7, Msg: "GET 200 via p1", OK: model.Bool(true)}

	r := NewLogRenderer()
	view, changed := r.Render(snapshot(first))
	require.True(t, changed)
	assert.Equal(t, 1, view.Appended)

	// Same second, same message: the rows print identically but are two entries.
	view, changed = r.Render(snapshot(first, second))
	require.True(t, changed)
	require.Len(t, view.Rows, 2)
	assert.Equal(t, view.Rows[0].Text, view.Rows[1].Text)
	assert.Equal(t, 1, view.Appended)
}

func TestLogAppendedWhenPreviousNewestIsGone(t *testing.T) {
	r := NewLogRenderer()
	_, _ = r.Render(snapshot(entries(3, 0)...))

	// The whole window moved past the last rendered entry.
	view, changed := r.Render(snapshot(entries(3, 10)...))
	require.True(t, changed)
	assert.Equal(t, 3, view.Appended)
}
