package markdown

import (
	"sort"
	"strings"

	"taskplanner/internal/model"
)

// LineChange pairs an old line with the line that replaced it.
type LineChange struct {
	Old string `json:"old"`
	New string `json:"new"`
}

// Diff is a line-set comparison of two texts.
type Diff struct {
	Added    []string     `json:"added"`
	Removed  []string     `json:"removed"`
	Modified []LineChange `json:"modified"`
}

func (d Diff) Empty() bool {
	return len(d.Added) == 0 && len(d.Removed) == 0 && len(d.Modified) == 0
}

// CalculateMarkdownDiff reports non-blank lines present in only one of the
// two texts. It is a set difference, so moved lines count as unchanged and
// an edited line shows up as one removal plus one addition. Modified is
// always empty.
func CalculateMarkdownDiff(oldText, newText string) Diff {
	oldLines := nonBlankLines(oldText)
	newLines := nonBlankLines(newText)

	oldSet := make(map[string]struct{}, len(oldLines))
	for _, line := range oldLines {
		oldSet[line] = struct{}{}
	}
	newSet := make(map[string]struct{}, len(newLines))
	for _, line := range newLines {
		newSet[line] = struct{}{}
	}

	diff := Diff{Added: []string{}, Removed: []string{}, Modified: []LineChange{}}
	for _, line := range newLines {
		if _, ok := oldSet[line]; !ok {
			diff.Added = append(diff.Added, line)
		}
	}
	for _, line := range oldLines {
		if _, ok := newSet[line]; !ok {
			diff.Removed = append(diff.Removed, line)
		}
	}
	return diff
}

func nonBlankLines(text string) []string {
	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		if strings.TrimSpace(line) != "" {
			out = append(out, line)
		}
	}
	return out
}

// Update is a queued change to an existing task.
type Update struct {
	ID    string          `json:"id"`
	Patch model.TaskPatch `json:"patch"`
}

// Changes is the outcome of reconciling a parsed document against stored
// tasks. Apply deletes first, then updates, then creates.
type Changes struct {
	Created []model.Task `json:"created"`
	Updated []Update     `json:"updated"`
	Deleted []string     `json:"deleted"`
}

func (c Changes) Empty() bool {
	return len(c.Created) == 0 && len(c.Updated) == 0 && len(c.Deleted) == 0
}

type matchKey struct {
	title       string
	isCompleted bool
}

// Reconcile matches existing tasks to parsed ones by (title, isCompleted)
// within each quadrant section present in doc. Quadrants without a heading
// in doc are left alone.
//
// Two tasks sharing a key in one quadrant cannot be told apart: each parsed
// task takes the first existing task with its key that is still unused, so
// a reordering of identical lines can come out as updates to the wrong
// rows. The text format carries no ids to do better.
func Reconcile(existing []model.Task, doc Document) Changes {
	changes := Changes{Created: []model.Task{}, Updated: []Update{}, Deleted: []string{}}

	for _, quadrant := range doc.Sections {
		current := model.TasksInQuadrant(existing, quadrant)
		used := make([]bool, len(current))

		for index, parsed := range doc.Tasks[quadrant] {
			parsed.Priority = index
			match := -1
			key := matchKey{title: parsed.Title, isCompleted: parsed.IsCompleted}
			for i, candidate := range current {
				if !used[i] && (matchKey{title: candidate.Title, isCompleted: candidate.IsCompleted}) == key {
					match = i
					break
				}
			}

			if match < 0 {
				changes.Created = append(changes.Created, parsed)
				continue
			}
			used[match] = true
			if !sameContent(current[match], parsed) {
				changes.Updated = append(changes.Updated, Update{ID: current[match].ID, Patch: patchFrom(parsed)})
			}
		}

		for i, task := range current {
			if !used[i] {
				changes.Deleted = append(changes.Deleted, task.ID)
			}
		}
	}
	return changes
}

func sameContent(a, b model.Task) bool {
	return a.Title == b.Title &&
		a.Description == b.Description &&
		a.IsCompleted == b.IsCompleted &&
		a.Quadrant == b.Quadrant &&
		a.Priority == b.Priority &&
		a.TimeRequired == b.TimeRequired &&
		a.TimeBlock == b.TimeBlock &&
		a.Difficulty == b.Difficulty &&
		sameTags(a.Tags, b.Tags)
}

func sameTags(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	x := append([]string(nil), a...)
	y := append([]string(nil), b...)
	sort.Strings(x)
	sort.Strings(y)
	for i := range x {
		if x[i] != y[i] {
			return false
		}
	}
	return true
}

// patchFrom sets every text-visible field, so annotations removed from a
// line are cleared on the stored task.
func patchFrom(task model.Task) model.TaskPatch {
	tags := append([]string{}, task.Tags...)
	return model.TaskPatch{
		Title:        &task.Title,
		Description:  &task.Description,
		IsCompleted:  &task.IsCompleted,
		Quadrant:     &task.Quadrant,
		Priority:     &task.Priority,
		TimeRequired: &task.TimeRequired,
		TimeBlock:    &task.TimeBlock,
		Difficulty:   &task.Difficulty,
		Tags:         &tags,
	}
}
