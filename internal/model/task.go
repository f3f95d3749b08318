package model

import (
	"sort"
	"strings"
	"time"
)

type Quadrant string

const (
	QuadrantUrgentImportant       Quadrant = "urgent-important"
	QuadrantUrgentNotImportant    Quadrant = "urgent-not-important"
	QuadrantNotUrgentImportant    Quadrant = "not-urgent-important"
	QuadrantNotUrgentNotImportant Quadrant = "not-urgent-not-important"
)

type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// QuadrantConfig describes one cell of the Eisenhower matrix.
type QuadrantConfig struct {
	Key      Quadrant `json:"key"`
	Title    string   `json:"title"`
	Subtitle string   `json:"subtitle"`
}

// Quadrants lists the matrix cells in display order.
var Quadrants = []QuadrantConfig{
	{Key: QuadrantUrgentImportant, Title: "Do", Subtitle: "Urgent & Important"},
	{Key: QuadrantUrgentNotImportant, Title: "Delegate", Subtitle: "Urgent & Not Important"},
	{Key: QuadrantNotUrgentImportant, Title: "Schedule", Subtitle: "Not Urgent & Important"},
	{Key: QuadrantNotUrgentNotImportant, Title: "Eliminate", Subtitle: "Not Urgent & Not Important"},
}

func (q Quadrant) Valid() bool {
	return q.index() >= 0
}

func (q Quadrant) index() int {
	for i, cfg := range Quadrants {
		if cfg.Key == q {
			return i
		}
	}
	return -1
}

// QuadrantByTitle matches a heading title case-insensitively.
func QuadrantByTitle(title string) (QuadrantConfig, bool) {
	title = strings.TrimSpace(title)
	for _, cfg := range Quadrants {
		if strings.EqualFold(cfg.Title, title) {
			return cfg, true
		}
	}
	return QuadrantConfig{}, false
}

func (d Difficulty) Valid() bool {
	return d == DifficultyEasy || d == DifficultyMedium || d == DifficultyHard
}

type Task struct {
	ID           string     `json:"id"`
	NanoID       string     `json:"nanoId"`
	Title        string     `json:"title"`
	Description  string     `json:"description,omitempty"`
	IsCompleted  bool       `json:"isCompleted"`
	Quadrant     Quadrant   `json:"quadrant"`
	Priority     int        `json:"priority"`
	TimeRequired string     `json:"timeRequired,omitempty"`
	TimeBlock    string     `json:"timeBlock,omitempty"`
	Difficulty   Difficulty `json:"difficulty,omitempty"`
	Tags         []string   `json:"tags"`
	PlannerID    string     `json:"plannerId"`
	UserID       string     `json:"userId"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
}

// TaskPatch is a partial update. Nil fields are left unchanged.
type TaskPatch struct {
	Title        *string     `json:"title,omitempty"`
	Description  *string     `json:"description,omitempty"`
	IsCompleted  *bool       `json:"isCompleted,omitempty"`
	Quadrant     *Quadrant   `json:"quadrant,omitempty"`
	Priority     *int        `json:"priority,omitempty"`
	TimeRequired *string     `json:"timeRequired,omitempty"`
	TimeBlock    *string     `json:"timeBlock,omitempty"`
	Difficulty   *Difficulty `json:"difficulty,omitempty"`
	Tags         *[]string   `json:"tags,omitempty"`
}

func (p TaskPatch) IsEmpty() bool {
	return p.Title == nil && p.Description == nil && p.IsCompleted == nil &&
		p.Quadrant == nil && p.Priority == nil && p.TimeRequired == nil &&
		p.TimeBlock == nil && p.Difficulty == nil && p.Tags == nil
}

// Apply copies the set fields of the patch onto task.
func (p TaskPatch) Apply(task *Task) {
	if p.Title != nil {
		task.Title = *p.Title
	}
	if p.Description != nil {
		task.Description = *p.Description
	}
	if p.IsCompleted != nil {
		task.IsCompleted = *p.IsCompleted
	}
	if p.Quadrant != nil {
		task.Quadrant = *p.Quadrant
	}
	if p.Priority != nil {
		task.Priority = *p.Priority
	}
	if p.TimeRequired != nil {
		task.TimeRequired = *p.TimeRequired
	}
	if p.TimeBlock != nil {
		task.TimeBlock = *p.TimeBlock
	}
	if p.Difficulty != nil {
		task.Difficulty = *p.Difficulty
	}
	if p.Tags != nil {
		task.Tags = append([]string{}, (*p.Tags)...)
	}
}

type Planner struct {
	ID        string    `json:"id"`
	Date      string    `json:"date"`
	UserID    string    `json:"userId"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// DateLayout is the calendar date format used for planners and rooms.
const DateLayout = "2006-01-02"

func ValidDate(date string) bool {
	_, err := time.Parse(DateLayout, date)
	return err == nil
}

// SortTasks orders tasks by quadrant then priority. Equal keys keep their
// current relative order.
func SortTasks(tasks []Task) {
	sort.SliceStable(tasks, func(i, j int) bool {
		qi, qj := tasks[i].Quadrant.index(), tasks[j].Quadrant.index()
		if qi != qj {
			return qi < qj
		}
		return tasks[i].Priority < tasks[j].Priority
	})
}

// TasksInQuadrant returns the tasks of one quadrant sorted by priority.
func TasksInQuadrant(tasks []Task, quadrant Quadrant) []Task {
	out := make([]Task, 0, len(tasks))
	for _, task := range tasks {
		if task.Quadrant == quadrant {
			out = append(out, task)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Priority < out[j].Priority
	})
	return out
}
