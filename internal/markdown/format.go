// Package markdown maps planner tasks to and from the checkbox text used by
// the text view, and reconciles an edited text against stored tasks.
//
// A document has one "# <Quadrant Title>" heading per quadrant followed by
// task lines:
//
//	# Do
//	- [x] Ship release #hard @2h [9-11AM] #launch
//	```
//	release notes live here
//	```
//
// Annotations are written in a fixed order: #difficulty, @timeRequired,
// [timeBlock], then #tags. A fenced block right after a task line is that
// task's description.
package markdown

import (
	"regexp"
	"sort"
	"strings"

	"taskplanner/internal/model"
)

const fence = "```"

var (
	checkboxPattern   = regexp.MustCompile(`^-\s*\[(\s*x?\s*)\]\s*(.*)$`)
	difficultyPattern = regexp.MustCompile(`(?i)#(easy|medium|hard)\b`)
	timePattern       = regexp.MustCompile(`(?i)@(\d+(?:min|h|hours?|m))\b`)
	timeBlockPattern  = regexp.MustCompile(`\[([^\]]+)\]`)
	tagPattern        = regexp.MustCompile(`#\w+`)
	spacePattern      = regexp.MustCompile(`\s+`)
)

// TaskToMarkdown renders one task line, plus its fenced description if any.
func TaskToMarkdown(task model.Task) string {
	checkbox := "[ ]"
	if task.IsCompleted {
		checkbox = "[x]"
	}

	var b strings.Builder
	b.WriteString("- ")
	b.WriteString(checkbox)
	b.WriteString(" ")
	b.WriteString(task.Title)

	if task.Difficulty != "" {
		b.WriteString(" #" + string(task.Difficulty))
	}
	if task.TimeRequired != "" {
		b.WriteString(" @" + task.TimeRequired)
	}
	if task.TimeBlock != "" {
		b.WriteString(" [" + task.TimeBlock + "]")
	}
	for _, tag := range task.Tags {
		b.WriteString(" #" + tag)
	}

	if task.Description != "" {
		b.WriteString("\n" + fence + "\n")
		b.WriteString(task.Description)
		b.WriteString("\n" + fence)
	}
	return b.String()
}

// TasksToMarkdown renders tasks by ascending priority. The input slice is
// not reordered.
func TasksToMarkdown(tasks []model.Task) string {
	sorted := append([]model.Task(nil), tasks...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Priority < sorted[j].Priority
	})

	lines := make([]string, 0, len(sorted))
	for _, task := range sorted {
		lines = append(lines, TaskToMarkdown(task))
	}
	return strings.Join(lines, "\n")
}

// PlannerToMarkdown renders every quadrant as a section, empty ones
// included, in matrix order.
func PlannerToMarkdown(tasks []model.Task) string {
	var b strings.Builder
	for _, quadrant := range model.Quadrants {
		quadrantTasks := model.TasksInQuadrant(tasks, quadrant.Key)
		b.WriteString("# " + quadrant.Title + "\n")
		if len(quadrantTasks) > 0 {
			b.WriteString(TasksToMarkdown(quadrantTasks))
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}
	return strings.TrimSpace(b.String())
}

// ParsedLine is the result of parsing a single task line.
type ParsedLine struct {
	Task   model.Task
	Errors []string
}

func (p ParsedLine) Valid() bool {
	return len(p.Errors) == 0
}

// ParseTaskLine parses "- [ ] title #difficulty @time [block] #tags" into a
// task in the given quadrant.
func ParseTaskLine(line string, quadrant model.Quadrant) ParsedLine {
	match := checkboxPattern.FindStringSubmatch(strings.TrimSpace(line))
	if match == nil {
		return ParsedLine{Errors: []string{msgInvalidFormat}}
	}

	content := match[2]
	if strings.TrimSpace(content) == "" {
		return ParsedLine{Errors: []string{msgEmptyTitle}}
	}

	task := model.Task{
		IsCompleted: strings.TrimSpace(match[1]) == "x",
		Quadrant:    quadrant,
		Tags:        []string{},
	}
	task.Title, task.Difficulty, task.TimeRequired, task.TimeBlock, task.Tags = extractAnnotations(content)

	if task.Title == "" {
		return ParsedLine{Task: task, Errors: []string{msgEmptyAfterAnnotations}}
	}
	return ParsedLine{Task: task}
}

func extractAnnotations(content string) (title string, difficulty model.Difficulty, timeRequired, timeBlock string, tags []string) {
	title = strings.TrimSpace(content)
	tags = []string{}

	if m := difficultyPattern.FindStringSubmatch(title); m != nil {
		difficulty = model.Difficulty(strings.ToLower(m[1]))
		title = difficultyPattern.ReplaceAllString(title, "")
	}

	if m := timePattern.FindStringSubmatch(title); m != nil {
		timeRequired = m[1]
		title = timePattern.ReplaceAllString(title, "")
	}

	if m := timeBlockPattern.FindStringSubmatch(title); m != nil {
		timeBlock = m[1]
		title = timeBlockPattern.ReplaceAllString(title, "")
	}

	seen := make(map[string]bool)
	for _, tag := range tagPattern.FindAllString(title, -1) {
		tag = strings.TrimPrefix(tag, "#")
		if seen[tag] {
			continue
		}
		seen[tag] = true
		tags = append(tags, tag)
	}
	title = tagPattern.ReplaceAllString(title, "")

	title = strings.TrimSpace(spacePattern.ReplaceAllString(title, " "))
	return title, difficulty, timeRequired, timeBlock, tags
}
