package markdown

import (
	"fmt"
	"strings"

	"taskplanner/internal/model"
)

const (
	msgInvalidFormat         = "Invalid task format. Use: - [ ] Task Title"
	msgEmptyTitle            = "Task title cannot be empty"
	msgEmptyAfterAnnotations = "Task title cannot be empty after parsing metadata"
	msgUnclosedFence         = "Unclosed code block for description"
	msgStrayFence            = "Code block must directly follow a task line"
)

// LineError points at a 1-based line of the parsed document.
type LineError struct {
	Line    int    `json:"line"`
	Message string `json:"message"`
}

func (e LineError) Error() string {
	return fmt.Sprintf("line %d: %s", e.Line, e.Message)
}

type itemKind int

const (
	itemHeading itemKind = iota
	itemTask
	itemError
)

// item is one logical element of a document: a heading, a task line with
// its optional description, or a line-level error.
type item struct {
	kind        itemKind
	line        int
	text        string
	description string
}

// scan walks the document once, pairing task lines with the fenced block
// that follows them. Heading detection is suspended inside fences.
func scan(text string) []item {
	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	items := make([]item, 0, len(lines))

	for i := 0; i < len(lines); i++ {
		trimmed := strings.TrimSpace(lines[i])
		lineNo := i + 1

		switch {
		case trimmed == "":
			continue

		case strings.HasPrefix(trimmed, "#"):
			items = append(items, item{kind: itemHeading, line: lineNo, text: strings.TrimSpace(strings.TrimLeft(trimmed, "#"))})

		case checkboxPattern.MatchString(trimmed):
			task := item{kind: itemTask, line: lineNo, text: trimmed}
			if i+1 < len(lines) && strings.TrimSpace(lines[i+1]) == fence {
				closing := findClosingFence(lines, i+2)
				if closing < 0 {
					items = append(items, task, item{kind: itemError, line: i + 2, text: msgUnclosedFence})
					i = len(lines)
					continue
				}
				task.description = strings.Join(lines[i+2:closing], "\n")
				i = closing
			}
			items = append(items, task)

		case trimmed == fence:
			closing := findClosingFence(lines, i+1)
			if closing < 0 {
				items = append(items, item{kind: itemError, line: lineNo, text: msgUnclosedFence})
				i = len(lines)
				continue
			}
			items = append(items, item{kind: itemError, line: lineNo, text: msgStrayFence})
			i = closing

		default:
			items = append(items, item{kind: itemError, line: lineNo, text: msgInvalidFormat})
		}
	}
	return items
}

func findClosingFence(lines []string, from int) int {
	for j := from; j < len(lines); j++ {
		if strings.TrimSpace(lines[j]) == fence {
			return j
		}
	}
	return -1
}

// ParseMarkdownTasks parses the task lines of a single quadrant section.
// Headings are ignored. Priorities count up from 0 in line order.
func ParseMarkdownTasks(text string, quadrant model.Quadrant) ([]model.Task, []LineError) {
	tasks := make([]model.Task, 0)
	var errs []LineError

	for _, it := range scan(text) {
		switch it.kind {
		case itemError:
			errs = append(errs, LineError{Line: it.line, Message: it.text})
		case itemTask:
			task, lineErrs := parseItem(it, quadrant, len(tasks))
			if len(lineErrs) > 0 {
				errs = append(errs, lineErrs...)
				continue
			}
			tasks = append(tasks, task)
		}
	}
	return tasks, errs
}

// Document is a parsed planner text. Sections lists the quadrants whose
// heading appeared, in document order.
type Document struct {
	Sections []model.Quadrant
	Tasks    map[model.Quadrant][]model.Task
	Errors   []LineError
}

func (d Document) HasSection(q model.Quadrant) bool {
	for _, s := range d.Sections {
		if s == q {
			return true
		}
	}
	return false
}

// ParsePlanner segments text by headings and parses each recognised
// quadrant section. Lines under an unknown heading, or before the first
// heading, are skipped.
func ParsePlanner(text string) Document {
	doc := Document{Tasks: make(map[model.Quadrant][]model.Task)}

	var current model.Quadrant
	inSection := false
	for _, it := range scan(text) {
		switch it.kind {
		case itemHeading:
			cfg, ok := model.QuadrantByTitle(it.text)
			inSection = ok
			current = cfg.Key
			if ok && !doc.HasSection(current) {
				doc.Sections = append(doc.Sections, current)
				doc.Tasks[current] = make([]model.Task, 0)
			}

		case itemError:
			if inSection {
				doc.Errors = append(doc.Errors, LineError{Line: it.line, Message: it.text})
			}

		case itemTask:
			if !inSection {
				continue
			}
			task, lineErrs := parseItem(it, current, len(doc.Tasks[current]))
			if len(lineErrs) > 0 {
				doc.Errors = append(doc.Errors, lineErrs...)
				continue
			}
			doc.Tasks[current] = append(doc.Tasks[current], task)
		}
	}
	return doc
}

func parseItem(it item, quadrant model.Quadrant, priority int) (model.Task, []LineError) {
	parsed := ParseTaskLine(it.text, quadrant)
	if !parsed.Valid() {
		errs := make([]LineError, 0, len(parsed.Errors))
		for _, msg := range parsed.Errors {
			errs = append(errs, LineError{Line: it.line, Message: msg})
		}
		return model.Task{}, errs
	}
	task := parsed.Task
	task.Description = it.description
	task.Priority = priority
	return task, nil
}

// ValidateMarkdown checks every line of the document against the task line
// grammar, whether or not its heading names a quadrant. An empty document
// is valid.
func ValidateMarkdown(text string) []LineError {
	var errs []LineError
	for _, it := range scan(text) {
		switch it.kind {
		case itemError:
			errs = append(errs, LineError{Line: it.line, Message: it.text})
		case itemTask:
			match := checkboxPattern.FindStringSubmatch(it.text)
			if strings.TrimSpace(match[2]) == "" {
				errs = append(errs, LineError{Line: it.line, Message: msgEmptyTitle})
				continue
			}
			if title, _, _, _, _ := extractAnnotations(match[2]); title == "" {
				errs = append(errs, LineError{Line: it.line, Message: msgEmptyAfterAnnotations})
			}
		}
	}
	return errs
}
