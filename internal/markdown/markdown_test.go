package markdown_test

import (
	"reflect"
	"strings"
	"testing"

	"taskplanner/internal/markdown"
	"taskplanner/internal/model"
)

func TestParseTaskLineExtractsAnnotations(t *testing.T) {
	doc := markdown.ParsePlanner("# Do\n- [x] Ship release #hard @2h [9-11AM] #launch\n")
	if len(doc.Errors) != 0 {
		t.Fatalf("unexpected errors: %v", doc.Errors)
	}

	tasks := doc.Tasks[model.QuadrantUrgentImportant]
	if len(tasks) != 1 {
		t.Fatalf("expected 1 task, got %d", len(tasks))
	}
	got := tasks[0]
	want := model.Task{
		Title:        "Ship release",
		IsCompleted:  true,
		Quadrant:     model.QuadrantUrgentImportant,
		Difficulty:   model.DifficultyHard,
		TimeRequired: "2h",
		TimeBlock:    "9-11AM",
		Tags:         []string{"launch"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("parsed task mismatch\n got: %+v\nwant: %+v", got, want)
	}
}

func TestMarkdownRoundTrip(t *testing.T) {
	tasks := []model.Task{
		{Title: "Write notes", Quadrant: model.QuadrantNotUrgentImportant, Priority: 0, Description: "line one\nline two", Tags: []string{}},
		{Title: "Review PR", Quadrant: model.QuadrantNotUrgentImportant, Priority: 1, IsCompleted: true, Difficulty: model.DifficultyEasy, TimeRequired: "45min", Tags: []string{"work", "code"}},
		{Title: "Plan week", Quadrant: model.QuadrantNotUrgentImportant, Priority: 2, TimeBlock: "Mon 9:00", Tags: []string{}},
	}

	parsed, errs := markdown.ParseMarkdownTasks(markdown.TasksToMarkdown(tasks), model.QuadrantNotUrgentImportant)
	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	if !reflect.DeepEqual(parsed, tasks) {
		t.Fatalf("round trip mismatch\n got: %+v\nwant: %+v", parsed, tasks)
	}
}

func TestTasksToMarkdownSortsByPriorityWithoutMutatingInput(t *testing.T) {
	tasks := []model.Task{
		{Title: "second", Priority: 5},
		{Title: "first", Priority: 1},
	}
	got := markdown.TasksToMarkdown(tasks)
	if got != "- [ ] first\n- [ ] second" {
		t.Fatalf("unexpected markdown %q", got)
	}
	if tasks[0].Title != "second" {
		t.Fatalf("input slice was reordered")
	}
}

func TestPlannerToMarkdownEmitsEverySection(t *testing.T) {
	got := markdown.PlannerToMarkdown([]model.Task{
		{Title: "Call bank", Quadrant: model.QuadrantUrgentNotImportant},
	})
	want := "# Do\n\n# Delegate\n- [ ] Call bank\n\n# Schedule\n\n# Eliminate"
	if got != want {
		t.Fatalf("unexpected planner markdown\n got: %q\nwant: %q", got, want)
	}
}

func TestParsePlannerReportsLineErrors(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		line    int
		message string
	}{
		{name: "wrong bullet", text: "# Do\n* [ ] Task", line: 2, message: "Invalid task format. Use: - [ ] Task Title"},
		{name: "empty title", text: "# Do\n- [ ] ", line: 2, message: "Task title cannot be empty"},
		{name: "only annotations", text: "# Do\n\n- [ ] #hard @2h", line: 3, message: "Task title cannot be empty after parsing metadata"},
		{name: "unclosed description", text: "# Do\n- [ ] A\n```\nnotes", line: 3, message: "Unclosed code block for description"},
		{name: "stray fence", text: "# Do\n```\nx\n```", line: 2, message: "Code block must directly follow a task line"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			doc := markdown.ParsePlanner(tc.text)
			if len(doc.Errors) != 1 {
				t.Fatalf("expected 1 error, got %v", doc.Errors)
			}
			if doc.Errors[0].Line != tc.line || doc.Errors[0].Message != tc.message {
				t.Fatalf("unexpected error %+v", doc.Errors[0])
			}
			if len(doc.Tasks[model.QuadrantUrgentImportant]) != 0 && tc.name != "unclosed description" {
				t.Fatalf("invalid line produced a task")
			}

			validation := markdown.ValidateMarkdown(tc.text)
			if len(validation) != 1 || validation[0] != doc.Errors[0] {
				t.Fatalf("validate disagrees with parser: %v", validation)
			}
		})
	}
}

func TestParsePlannerSkipsUnknownSections(t *testing.T) {
	text := "intro text\n# Notes\nanything goes\n# do\n- [ ] A\n```\n# not a heading\n```"

	doc := markdown.ParsePlanner(text)
	if len(doc.Errors) != 0 {
		t.Fatalf("unexpected errors: %v", doc.Errors)
	}
	if !reflect.DeepEqual(doc.Sections, []model.Quadrant{model.QuadrantUrgentImportant}) {
		t.Fatalf("unexpected sections %v", doc.Sections)
	}
	tasks := doc.Tasks[model.QuadrantUrgentImportant]
	if len(tasks) != 1 || tasks[0].Description != "# not a heading" {
		t.Fatalf("unexpected tasks %+v", tasks)
	}

	errs := markdown.ValidateMarkdown(text)
	if len(errs) != 2 || errs[0].Line != 1 || errs[1].Line != 3 {
		t.Fatalf("expected validation errors on lines 1 and 3, got %v", errs)
	}
}

func TestValidateMarkdownAcceptsEmptyText(t *testing.T) {
	if errs := markdown.ValidateMarkdown("  \n\n"); len(errs) != 0 {
		t.Fatalf("expected no errors, got %v", errs)
	}
}

func TestCalculateMarkdownDiff(t *testing.T) {
	diff := markdown.CalculateMarkdownDiff("- [ ] a\n- [ ] b\n\n- [ ] c", "- [ ] c\n- [ ] a\n- [ ] d")
	if !reflect.DeepEqual(diff.Added, []string{"- [ ] d"}) {
		t.Fatalf("unexpected added %v", diff.Added)
	}
	if !reflect.DeepEqual(diff.Removed, []string{"- [ ] b"}) {
		t.Fatalf("unexpected removed %v", diff.Removed)
	}
	if len(diff.Modified) != 0 {
		t.Fatalf("expected no modified lines, got %v", diff.Modified)
	}
}

func TestReconcileQueuesCreateUpdateDelete(t *testing.T) {
	existing := []model.Task{
		{ID: "a", Title: "A", Quadrant: model.QuadrantUrgentImportant, Priority: 0},
		{ID: "b", Title: "B", Quadrant: model.QuadrantUrgentImportant, Priority: 1},
		{ID: "c", Title: "C", Quadrant: model.QuadrantNotUrgentImportant, Priority: 0},
	}

	doc := markdown.ParsePlanner("# Do\n- [ ] B\n- [x] A\n- [ ] New")
	changes := markdown.Reconcile(existing, doc)

	if !reflect.DeepEqual(changes.Deleted, []string{"a"}) {
		t.Fatalf("unexpected deletes %v", changes.Deleted)
	}
	if len(changes.Updated) != 1 || changes.Updated[0].ID != "b" || *changes.Updated[0].Patch.Priority != 0 {
		t.Fatalf("unexpected updates %+v", changes.Updated)
	}
	if len(changes.Created) != 2 {
		t.Fatalf("expected 2 creates, got %+v", changes.Created)
	}
	if changes.Created[0].Title != "A" || !changes.Created[0].IsCompleted || changes.Created[0].Priority != 1 {
		t.Fatalf("unexpected first create %+v", changes.Created[0])
	}
	if changes.Created[1].Title != "New" || changes.Created[1].Priority != 2 {
		t.Fatalf("unexpected second create %+v", changes.Created[1])
	}
}

func TestReconcileUnchangedTextIsNoop(t *testing.T) {
	existing := []model.Task{
		{ID: "1", Title: "Ship", Quadrant: model.QuadrantUrgentImportant, Priority: 0, Difficulty: model.DifficultyHard, Tags: []string{"x", "y"}},
		{ID: "2", Title: "Read", Quadrant: model.QuadrantNotUrgentNotImportant, Priority: 0, Description: "chapter 3"},
	}

	changes := markdown.Reconcile(existing, markdown.ParsePlanner(markdown.PlannerToMarkdown(existing)))
	if !changes.Empty() {
		t.Fatalf("expected no changes, got %+v", changes)
	}
}

func TestRepeatedTagsDoNotReportChanges(t *testing.T) {
	doc := markdown.ParsePlanner("# Do\n- [ ] Tidy #a #a #b #a")
	tasks := doc.Tasks[model.QuadrantUrgentImportant]
	if len(tasks) != 1 || !reflect.DeepEqual(tasks[0].Tags, []string{"a", "b"}) {
		t.Fatalf("expected tags [a b], got %+v", tasks)
	}

	existing := []model.Task{
		{ID: "1", Title: "Tidy", Quadrant: model.QuadrantUrgentImportant, Priority: 0, Tags: []string{"a", "b"}},
	}
	if changes := markdown.Reconcile(existing, doc); !changes.Empty() {
		t.Fatalf("repeated tags must not count as an edit, got %+v", changes)
	}
}

func TestReconcileDuplicateKeysMatchInOrder(t *testing.T) {
	existing := []model.Task{
		{ID: "x", Title: "Call mom", Quadrant: model.QuadrantUrgentImportant, Priority: 0, Description: "first"},
		{ID: "y", Title: "Call mom", Quadrant: model.QuadrantUrgentImportant, Priority: 1, Description: "second"},
	}

	// The user swapped the two lines; identical keys cannot follow the move.
	text := "# Do\n- [ ] Call mom\n```\nsecond\n```\n- [ ] Call mom\n```\nfirst\n```"
	changes := markdown.Reconcile(existing, markdown.ParsePlanner(text))

	if len(changes.Created) != 0 || len(changes.Deleted) != 0 {
		t.Fatalf("expected updates only, got %+v", changes)
	}
	if len(changes.Updated) != 2 || changes.Updated[0].ID != "x" || changes.Updated[1].ID != "y" {
		t.Fatalf("unexpected updates %+v", changes.Updated)
	}
	if *changes.Updated[0].Patch.Description != "second" {
		t.Fatalf("expected x to take the first line's description")
	}
}

func TestRenderHTMLRendersTaskList(t *testing.T) {
	html, err := markdown.RenderHTML("# Do\n- [x] Ship release\n<script>alert(1)</script>")
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	for _, want := range []string{"<h1", "Do</h1>", `type="checkbox"`, "Ship release"} {
		if !strings.Contains(html, want) {
			t.Fatalf("expected %q in %s", want, html)
		}
	}
	if strings.Contains(html, "<script>") {
		t.Fatalf("raw html passed through: %s", html)
	}
}
