package verify

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const board = "# Task Board\n\n" +
	"## open (1)\n\n" +
	"### T2: Write docs\n\n" +
	"| Task | Field | Value |\n| --- | --- | --- |\n| T2 | status | open |\n| T2 | owner | a\\|b |\n\n" +
	"```\n### T7: not a heading\n```\n" +
	"## done (1)\n\n" +
	"### T1: Ship ledger\n\n" +
	"| Task | Field | Value |\n| --- | --- | --- |\n| T1 | status | done |\n"

func TestIndexSections(t *testing.T) {
	idx := indexSections(board)
	require.Len(t, idx, 2, "headings inside code fences are ignored")

	require.Contains(t, idx, "T2")
	assert.Equal(t, "open", idx["T2"].group)
	assert.Equal(t, "Write docs", idx["T2"].title[len("T2: "):])
	assert.Equal(t, "open", idx["T2"].fields["status"])
	assert.Equal(t, `a\|b`, idx["T2"].fields["owner"])

	require.Contains(t, idx, "T1")
	assert.Equal(t, "done", idx["T1"].group)
	assert.Equal(t, "done", idx["T1"].fields["status"])
}

func TestCompareSectionsTitleChange(t *testing.T) {
	edited := board[:len(board)-1] + "\n"
	assert.Empty(t, CompareSections(board, edited))

	renamed := strings.Replace(board, "### T1: Ship ledger", "### T1: Ship it", 1)
	drift := CompareSections(board, renamed)
	require.Len(t, drift, 1)
	assert.Equal(t, TaskDrift{TaskID: "T1", Kind: DriftChanged, Fields: []string{"title"}, ExpectedGroup: "done", SnapshotGroup: "done"}, drift[0])
}

func TestSplitRow(t *testing.T) {
	assert.Equal(t, []string{"T1", "owner", `a\|b`}, splitRow(`| T1 | owner | a\|b |`))
}

func TestTaskDriftString(t *testing.T) {
	d := TaskDrift{TaskID: "T1", Kind: DriftMoved, Fields: []string{"status"}, ExpectedGroup: "done", SnapshotGroup: "open"}
	assert.Equal(t, "T1 moved done -> open (status)", d.String())
}
