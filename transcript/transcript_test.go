package transcript

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTranscript_AddTurn(t *testing.T) {
	tr := New("exec-1", RunMetadata{Graph: "review"})

	tr.AddTurn(Turn{Role: RoleUser, Content: "hi", TokensIn: 5})
	tr.AddTurn(Turn{Role: RoleAssistant, Content: "hello", TokensOut: 7})

	assert.Equal(t, 2, tr.Metadata.TurnCount)
	assert.Equal(t, 5, tr.Metadata.TotalTokensIn)
	assert.Equal(t, 7, tr.Metadata.TotalTokensOut)
	assert.Equal(t, 2, tr.LastTurn().ID)
	assert.False(t, tr.LastTurn().Timestamp.IsZero())
}

func TestTranscript_AddToolCall(t *testing.T) {
	tr := New("exec-1", RunMetadata{})
	assert.False(t, tr.AddToolCall(ToolCall{Name: "grep"}), "no turns yet")

	tr.AddTurn(Turn{Role: RoleUser, Content: "q"})
	assert.False(t, tr.AddToolCall(ToolCall{Name: "grep"}), "last turn is not assistant")

	tr.AddTurn(Turn{Role: RoleAssistant, Content: "a"})
	assert.True(t, tr.AddToolCall(ToolCall{Name: "grep"}))
	assert.Len(t, tr.LastTurn().ToolCalls, 1)
}

func TestTranscript_SaveLoad(t *testing.T) {
	dir := t.TempDir()
	tr := New("exec-1", RunMetadata{Graph: "g"})
	tr.AddTurn(Turn{Role: RoleUser, NodeID: "plan", Content: "plan it"})
	tr.Finish(RunStatusCompleted, nil)

	require.NoError(t, tr.Save(dir))
	loaded, err := Load(dir, "exec-1")
	require.NoError(t, err)
	assert.Equal(t, "plan it", loaded.Turns[0].Content)
	assert.Equal(t, RunStatusCompleted, loaded.Metadata.Status)

	_, err = Load(dir, "missing")
	assert.ErrorIs(t, err, ErrRunNotFound)
}

func TestTranscript_SaveCompressesLargeTranscripts(t *testing.T) {
	dir := t.TempDir()
	tr := New("big", RunMetadata{})
	tr.AddTurn(Turn{Role: RoleAssistant, Content: strings.Repeat("x", compressionThreshold+1)})

	require.NoError(t, tr.Save(dir))
	_, err := os.Stat(filepath.Join(dir, "big", transcriptFileGz))
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(dir, "big", transcriptFile))
	assert.True(t, os.IsNotExist(err))

	loaded, err := Load(dir, "big")
	require.NoError(t, err)
	assert.Len(t, loaded.Turns[0].Content, compressionThreshold+1)
}

func TestTranscript_Clone(t *testing.T) {
	tr := New("exec", RunMetadata{})
	tr.AddTurn(Turn{Role: RoleAssistant, Content: "a"})
	tr.AddToolCall(ToolCall{Name: "t1"})

	c := tr.Clone()
	c.Turns[0].Content = "changed"
	c.Turns[0].ToolCalls[0].Name = "changed"

	assert.Equal(t, "a", tr.Turns[0].Content)
	assert.Equal(t, "t1", tr.Turns[0].ToolCalls[0].Name)
}

// =============================================================================
// Manager contract
// =============================================================================

func managers(t *testing.T) map[string]Manager {
	fs, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	return map[string]Manager{
		"memory": NewMemoryStore(),
		"file":   fs,
	}
}

func TestManager_Lifecycle(t *testing.T) {
	for name, m := range managers(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, m.StartRun("exec-1", RunMetadata{Graph: "review"}))
			assert.ErrorIs(t, m.StartRun("exec-1", RunMetadata{}), ErrRunAlreadyExists)

			require.NoError(t, m.RecordTurn("exec-1", Turn{Role: RoleUser, NodeID: "a", Content: "hello"}))
			require.NoError(t, m.RecordTurn("exec-1", Turn{Role: RoleAssistant, NodeID: "a", Content: "world", TokensOut: 3}))
			require.NoError(t, m.EndRun("exec-1", RunStatusCompleted, nil))

			tr, err := m.Load("exec-1")
			require.NoError(t, err)
			assert.Len(t, tr.Turns, 2)
			assert.Equal(t, RunStatusCompleted, tr.Metadata.Status)
			assert.Equal(t, 3, tr.Metadata.TotalTokensOut)

			assert.ErrorIs(t, m.RecordTurn("nope", Turn{}), ErrRunNotStarted)
			assert.ErrorIs(t, m.EndRun("nope", RunStatusFailed, nil), ErrRunNotStarted)
		})
	}
}

func TestManager_ReopenPausedRun(t *testing.T) {
	for name, m := range managers(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, m.StartRun("exec-1", RunMetadata{Graph: "g"}))
			require.NoError(t, m.RecordTurn("exec-1", Turn{Role: RoleUser, Content: "before"}))
			require.NoError(t, m.EndRun("exec-1", RunStatusPaused, nil))

			require.NoError(t, m.StartRun("exec-1", RunMetadata{Graph: "g"}))
			require.NoError(t, m.RecordTurn("exec-1", Turn{Role: RoleUser, Content: "after"}))
			require.NoError(t, m.EndRun("exec-1", RunStatusFailed, errors.New("boom")))

			tr, err := m.Load("exec-1")
			require.NoError(t, err)
			require.Len(t, tr.Turns, 2)
			assert.Equal(t, 2, tr.Turns[1].ID)
			assert.Equal(t, "boom", tr.Metadata.Error)
		})
	}
}

func TestManager_ListAndDelete(t *testing.T) {
	for name, m := range managers(t) {
		t.Run(name, func(t *testing.T) {
			for _, id := range []string{"a", "b", "c"} {
				require.NoError(t, m.StartRun(id, RunMetadata{Graph: "g-" + id}))
			}
			require.NoError(t, m.EndRun("a", RunStatusCompleted, nil))
			require.NoError(t, m.EndRun("b", RunStatusFailed, nil))
			require.NoError(t, m.EndRun("c", RunStatusCompleted, nil))

			all, err := m.List(ListFilter{})
			require.NoError(t, err)
			assert.Len(t, all, 3)

			completed, err := m.List(ListFilter{Status: RunStatusCompleted})
			require.NoError(t, err)
			assert.Len(t, completed, 2)

			byGraph, err := m.List(ListFilter{Graph: "g-b"})
			require.NoError(t, err)
			require.Len(t, byGraph, 1)
			assert.Equal(t, "b", byGraph[0].ExecutionID)

			limited, err := m.List(ListFilter{Limit: 1})
			require.NoError(t, err)
			assert.Len(t, limited, 1)

			require.NoError(t, m.Delete("a"))
			_, err = m.Load("a")
			assert.ErrorIs(t, err, ErrRunNotFound)
		})
	}
}

func TestFileStore_RejectsPathTraversal(t *testing.T) {
	fs, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	assert.Error(t, fs.StartRun("../escape", RunMetadata{}))
	_, err = fs.Load("a/b")
	assert.Error(t, err)
}

func TestFileStore_ActiveVisibleBeforeEnd(t *testing.T) {
	fs, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, fs.StartRun("exec", RunMetadata{}))
	require.NoError(t, fs.RecordTurn("exec", Turn{Role: RoleUser, Content: "x"}))

	assert.Equal(t, []string{"exec"}, fs.ListActive())
	tr, err := fs.Load("exec")
	require.NoError(t, err)
	assert.Len(t, tr.Turns, 1)

	meta, err := fs.LoadMetadata("exec")
	require.NoError(t, err)
	assert.Equal(t, RunStatusRunning, meta.Status)
}

// =============================================================================
// Searcher / Viewer
// =============================================================================

func TestSearcher(t *testing.T) {
	m := NewMemoryStore()
	require.NoError(t, m.StartRun("e1", RunMetadata{Graph: "g"}))
	require.NoError(t, m.RecordTurn("e1", Turn{Role: RoleUser, TokensIn: 10, Content: "find the Bug\nsecond line"}))
	require.NoError(t, m.RecordTurn("e1", Turn{Role: RoleAssistant, TokensOut: 4, Content: "no bug here"}))
	require.NoError(t, m.EndRun("e1", RunStatusCompleted, nil))
	require.NoError(t, m.StartRun("e2", RunMetadata{Graph: "g"}))

	s := NewSearcher(m)
	results, err := s.SearchContent("bug", SearchOptions{})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, 1, results[0].Line)

	results, err = s.SearchContent("bug", SearchOptions{CaseSensitive: true})
	require.NoError(t, err)
	assert.Len(t, results, 1)

	results, err = s.SearchContent("bug", SearchOptions{MaxResults: 1})
	require.NoError(t, err)
	assert.Len(t, results, 1)

	stats, err := s.RunStats(ListFilter{})
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TotalRuns)
	assert.Equal(t, 1, stats.CompletedRuns)
	assert.Equal(t, 1, stats.ActiveRuns)
	assert.Equal(t, 5, stats.AvgTokensIn)
}

func TestViewer(t *testing.T) {
	tr := New("exec-9", RunMetadata{Graph: "review"})
	tr.AddTurn(Turn{Role: RoleAssistant, NodeID: "plan", Content: "line one\nline two", TokensOut: 12})
	tr.AddToolCall(ToolCall{Name: "read_file", Input: map[string]any{"path": "a.go"}, Output: "ok"})
	tr.Finish(RunStatusCompleted, nil)

	var buf bytes.Buffer
	require.NoError(t, NewViewer().ViewFull(&buf, tr))
	out := buf.String()
	for _, want := range []string{"Execution: exec-9", "Graph: review", "node=plan", "[12 tokens out]", "Tool: read_file"} {
		assert.Contains(t, out, want)
	}

	buf.Reset()
	require.NoError(t, NewViewer().ViewSummary(&buf, tr))
	assert.Contains(t, buf.String(), "[1] plan assistant: line one line two")

	buf.Reset()
	require.NoError(t, NewViewer().FormatMetaList(&buf, nil))
	assert.Contains(t, buf.String(), "No transcripts found.")
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", truncate("abc", 5))
	assert.Equal(t, "ab...", truncate("abcdefgh", 5))
	assert.Equal(t, "ab", truncate("abcdefgh", 2))
}
