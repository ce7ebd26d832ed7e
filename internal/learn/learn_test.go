package learn

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xaxixak/oracle-v2/internal/oracle"
	"github.com/xaxixak/oracle-v2/internal/store"
)

func newService(t *testing.T) (*Service, *store.Store, string) {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "oracle.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	dir := filepath.Join(t.TempDir(), "learnings")
	svc := New(st, dir, nil, nil)
	svc.now = func() time.Time {
		return time.Date(2026, 8, 24, 15, 30, 0, 0, time.UTC)
	}
	return svc, st, dir
}

func TestSlug(t *testing.T) {
	tests := []struct{ in, want string }{
		{"Never force push!", "never-force-push"},
		{"Use  multiple   spaces", "use-multiple-spaces"},
		{"line one\nline two", "line-one-line-two"},
		{"UPPER lower 123", "upper-lower-123"},
		{strings.Repeat("word ", 20), strings.Repeat("word-", 9) + "word"},
	}
	for _, tt := range tests {
		got := Slug(tt.in)
		assert.Equal(t, tt.want, got, "input %q", tt.in)
		assert.LessOrEqual(t, len(got), 50)
	}
}

func TestLearnWritesFileAndIndex(t *testing.T) {
	svc, st, dir := newService(t)

	resp, err := svc.Learn(Request{
		Pattern:  "Never force push to shared branches",
		Source:   "retro",
		Concepts: []string{"git", "safety"},
	})
	require.NoError(t, err)

	assert.Equal(t, "learning_2026-08-24_never-force-push-to-shared-branches", resp.ID)
	assert.Equal(t, filepath.Join(dir, "2026-08-24_never-force-push-to-shared-branches.md"), resp.File)

	raw, err := os.ReadFile(resp.File)
	require.NoError(t, err)
	text := string(raw)
	assert.Contains(t, text, "title: Never force push to shared branches")
	assert.Contains(t, text, "tags: [git, safety]")
	assert.Contains(t, text, "created: 2026-08-24")
	assert.Contains(t, text, "source: retro")
	assert.Contains(t, text, "# Never force push to shared branches")
	assert.True(t, strings.HasSuffix(text, "---\n*Added via Oracle Learn*\n"))

	doc, err := st.GetDocument(resp.ID)
	require.NoError(t, err)
	assert.Equal(t, oracle.DocTypeLearning, doc.Type)
	assert.Equal(t, "learnings/2026-08-24_never-force-push-to-shared-branches.md", doc.SourceFile)
	// The whole markdown file is the indexed content.
	assert.Equal(t, text, doc.Content)
}

func TestLearnImmediatelyKeywordSearchable(t *testing.T) {
	svc, st, _ := newService(t)
	_, err := svc.Learn(Request{Pattern: "rotate credentials quarterly"})
	require.NoError(t, err)

	rows, err := st.SearchFTS("rotate credentials", "", "", false, 10)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "learning_2026-08-24_rotate-credentials-quarterly", rows[0].ID)
}

func TestLearnConflictOnExistingFile(t *testing.T) {
	svc, _, _ := newService(t)
	_, err := svc.Learn(Request{Pattern: "duplicate entry"})
	require.NoError(t, err)

	_, err = svc.Learn(Request{Pattern: "duplicate entry"})
	require.Error(t, err)
	assert.True(t, oracle.IsConflict(err))
	assert.Contains(t, err.Error(), "File already exists")
}

func TestLearnExtractsConceptsWhenOmitted(t *testing.T) {
	svc, _, _ := newService(t)
	resp, err := svc.Learn(Request{Pattern: "append to history, never delete"})
	require.NoError(t, err)
	assert.Contains(t, resp.Concepts, "append")
	assert.Contains(t, resp.Concepts, "delete")
}

func TestLearnWritesLogRow(t *testing.T) {
	svc, st, _ := newService(t)
	resp, err := svc.Learn(Request{Pattern: "log me", Source: "human"})
	require.NoError(t, err)

	var docID, preview string
	require.NoError(t, st.DB().QueryRow(
		`SELECT document_id, pattern_preview FROM learn_log`).Scan(&docID, &preview))
	assert.Equal(t, resp.ID, docID)
	assert.Equal(t, "log me", preview)
}

func TestLearnValidation(t *testing.T) {
	svc, _, _ := newService(t)

	_, err := svc.Learn(Request{Pattern: "   "})
	assert.True(t, oracle.IsInvalid(err))

	_, err = svc.Learn(Request{Pattern: "x", Origin: "martian"})
	assert.True(t, oracle.IsInvalid(err))

	_, err = svc.Learn(Request{Pattern: "!!!"})
	assert.True(t, oracle.IsInvalid(err))
}
