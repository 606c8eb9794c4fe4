package verify

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/text"

	"github.com/steveyegge/tally/internal/projection"
)

// DriftKind classifies how a task section differs.
type DriftKind string

const (
	// DriftChanged means the task is in the same group with different content
	DriftChanged DriftKind = "changed"
	// DriftMoved means the task sits under a different status group
	DriftMoved DriftKind = "moved"
	// DriftMissing means the ledger has the task and the snapshot does not
	DriftMissing DriftKind = "missing"
	// DriftUnexpected means the snapshot has a task the ledger does not
	DriftUnexpected DriftKind = "unexpected"
)

// TaskDrift describes one task whose snapshot section diverges.
type TaskDrift struct {
	TaskID string    `json:"task_id"`
	Kind   DriftKind `json:"kind"`
	// Fields lists the table fields that differ, sorted.
	Fields        []string `json:"fields,omitempty"`
	ExpectedGroup string   `json:"expected_group,omitempty"`
	SnapshotGroup string   `json:"snapshot_group,omitempty"`
}

func (d TaskDrift) String() string {
	s := fmt.Sprintf("%s %s", d.TaskID, d.Kind)
	if d.Kind == DriftMoved {
		s += fmt.Sprintf(" %s -> %s", d.ExpectedGroup, d.SnapshotGroup)
	}
	if len(d.Fields) > 0 {
		s += " (" + strings.Join(d.Fields, ", ") + ")"
	}
	return s
}

var (
	markdownOnce   sync.Once
	markdownParser goldmark.Markdown
)

func getMarkdownParser() goldmark.Markdown {
	markdownOnce.Do(func() {
		markdownParser = goldmark.New(goldmark.WithExtensions(extension.GFM))
	})
	return markdownParser
}

type heading struct {
	level int
	line  int
	text  string
}

type section struct {
	group  string
	title  string
	body   string
	fields map[string]string
}

// headings returns every ATX/setext heading with its 0-based line index.
// Headings inside code blocks are not headings, which a line scan would
// get wrong.
func headings(source []byte) []heading {
	doc := getMarkdownParser().Parser().Parse(text.NewReader(source))

	var out []heading
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		h, ok := n.(*ast.Heading)
		if !ok {
			return ast.WalkContinue, nil
		}
		if h.Lines().Len() == 0 {
			return ast.WalkSkipChildren, nil
		}
		seg := h.Lines().At(0)
		out = append(out, heading{
			level: h.Level,
			line:  strings.Count(string(source[:seg.Start]), "\n"),
			text:  strings.TrimSpace(string(seg.Value(source))),
		})
		return ast.WalkSkipChildren, nil
	})
	return out
}

// indexSections maps task_id to its section in a rendered board.
func indexSections(doc string) map[string]*section {
	source := []byte(doc)
	lines := strings.Split(doc, "\n")
	hs := headings(source)

	out := make(map[string]*section)
	group := ""
	for i, h := range hs {
		switch h.level {
		case 2:
			group, _, _ = strings.Cut(h.text, " (")
		case 3:
			end := len(lines)
			if i+1 < len(hs) {
				end = hs[i+1].line
			}
			start := h.line
			if start > end {
				start = end
			}
			id := projection.TaskIDFromHeading(h.text)
			body := lines[start:end]
			out[id] = &section{
				group:  group,
				title:  h.text,
				body:   strings.Join(body, "\n"),
				fields: tableFields(id, body),
			}
		}
	}
	return out
}

// tableFields reads "| <id> | <field> | <value> |" rows.
func tableFields(id string, body []string) map[string]string {
	fields := make(map[string]string)
	for _, line := range body {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "|") || !strings.HasSuffix(line, "|") {
			continue
		}
		cells := splitRow(line)
		if len(cells) != 3 || cells[0] != id {
			continue
		}
		fields[cells[1]] = cells[2]
	}
	return fields
}

func splitRow(line string) []string {
	inner := strings.TrimSuffix(strings.TrimPrefix(line, "|"), "|")
	var cells []string
	var cur strings.Builder
	for i := 0; i < len(inner); i++ {
		if inner[i] == '\\' && i+1 < len(inner) && inner[i+1] == '|' {
			cur.WriteString(`\|`)
			i++
			continue
		}
		if inner[i] == '|' {
			cells = append(cells, strings.TrimSpace(cur.String()))
			cur.Reset()
			continue
		}
		cur.WriteByte(inner[i])
	}
	return append(cells, strings.TrimSpace(cur.String()))
}

// CompareSections reports per-task drift between the expected board and a
// snapshot, sorted by task_id.
func CompareSections(expected, snapshot string) []TaskDrift {
	want := indexSections(expected)
	got := indexSections(snapshot)

	ids := make([]string, 0, len(want)+len(got))
	for id := range want {
		ids = append(ids, id)
	}
	for id := range got {
		if _, ok := want[id]; !ok {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)

	var drift []TaskDrift
	for _, id := range ids {
		w, g := want[id], got[id]
		switch {
		case g == nil:
			drift = append(drift, TaskDrift{TaskID: id, Kind: DriftMissing, ExpectedGroup: w.group})
		case w == nil:
			drift = append(drift, TaskDrift{TaskID: id, Kind: DriftUnexpected, SnapshotGroup: g.group})
		case w.group != g.group:
			drift = append(drift, TaskDrift{
				TaskID:        id,
				Kind:          DriftMoved,
				Fields:        diffFields(w, g),
				ExpectedGroup: w.group,
				SnapshotGroup: g.group,
			})
		case w.body != g.body:
			drift = append(drift, TaskDrift{
				TaskID:        id,
				Kind:          DriftChanged,
				Fields:        diffFields(w, g),
				ExpectedGroup: w.group,
				SnapshotGroup: g.group,
			})
		}
	}
	return drift
}

func diffFields(w, g *section) []string {
	seen := make(map[string]bool)
	var fields []string
	for k, v := range w.fields {
		if g.fields[k] != v {
			fields = append(fields, k)
		}
		seen[k] = true
	}
	for k := range g.fields {
		if !seen[k] {
			fields = append(fields, k)
		}
	}
	if w.title != g.title {
		fields = append(fields, "title")
	}
	sort.Strings(fields)
	if len(fields) == 0 && w.body != g.body {
		fields = []string{"history"}
	}
	return fields
}
