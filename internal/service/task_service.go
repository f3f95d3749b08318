package service

import (
	"context"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	gonanoid "github.com/matoous/go-nanoid/v2"

	apperrors "taskplanner/internal/errors"
	"taskplanner/internal/markdown"
	"taskplanner/internal/model"
	"taskplanner/internal/realtime"
	"taskplanner/internal/repository"
)

const (
	nanoIDLength   = 8
	nanoIDAttempts = 3
)

// TaskService is the mutation path shared by the browser API, the text
// view and the tool gateway. Every successful write is followed by a best
// effort broadcast to the task's date room.
type TaskService struct {
	store       *repository.TaskStore
	broadcaster realtime.Broadcaster
}

func NewTaskService(store *repository.TaskStore, broadcaster realtime.Broadcaster) *TaskService {
	if broadcaster == nil {
		broadcaster = realtime.NoopBroadcaster{}
	}
	return &TaskService{store: store, broadcaster: broadcaster}
}

type PlannerView struct {
	Planner model.Planner `json:"planner"`
	Tasks   []model.Task  `json:"tasks"`
}

// GetPlanner returns the user's planner for date, creating it if absent,
// with its tasks by ascending priority.
func (s *TaskService) GetPlanner(ctx context.Context, userID, date string) (*PlannerView, *apperrors.APIError) {
	planner, apiErr := s.findOrCreatePlanner(ctx, userID, date)
	if apiErr != nil {
		return nil, apiErr
	}
	tasks, err := s.store.ListTasks(ctx, planner.ID)
	if err != nil {
		return nil, apperrors.Internal("failed to list tasks")
	}
	return &PlannerView{Planner: *planner, Tasks: tasks}, nil
}

// ListTasks lists one planner's tasks. A planner owned by someone else is
// reported as missing.
func (s *TaskService) ListTasks(ctx context.Context, userID, plannerID string) ([]model.Task, *apperrors.APIError) {
	if strings.TrimSpace(plannerID) == "" {
		return nil, apperrors.BadRequest("invalid_planner_id", "plannerId is required")
	}
	planner, err := s.store.GetPlanner(ctx, plannerID)
	if err == repository.ErrNotFound || (err == nil && planner.UserID != userID) {
		return nil, apperrors.NotFound(apperrors.CodePlannerNotFound, "planner not found")
	}
	if err != nil {
		return nil, apperrors.Internal("failed to load planner")
	}
	tasks, err := s.store.ListTasks(ctx, planner.ID)
	if err != nil {
		return nil, apperrors.Internal("failed to list tasks")
	}
	return tasks, nil
}

// ListTasksByDate lists the tasks of a date without creating its planner.
func (s *TaskService) ListTasksByDate(ctx context.Context, userID, date string) ([]model.Task, *apperrors.APIError) {
	if !model.ValidDate(date) {
		return nil, invalidDate()
	}
	tasks, err := s.store.ListTasksByDate(ctx, userID, date)
	if err != nil {
		return nil, apperrors.Internal("failed to list tasks")
	}
	return tasks, nil
}

type CreateTaskInput struct {
	PlannerID    string           `json:"plannerId"`
	Date         string           `json:"date"`
	Title        string           `json:"title"`
	Description  string           `json:"description"`
	Quadrant     model.Quadrant   `json:"quadrant"`
	Priority     *int             `json:"priority"`
	IsCompleted  bool             `json:"isCompleted"`
	TimeRequired string           `json:"timeRequired"`
	TimeBlock    string           `json:"timeBlock"`
	Difficulty   model.Difficulty `json:"difficulty"`
	Tags         []string         `json:"tags"`
}

// CreateTask adds a task to the planner named by PlannerID, or to the
// planner of Date when no id is given.
func (s *TaskService) CreateTask(ctx context.Context, userID string, input CreateTaskInput) (*model.Task, *apperrors.APIError) {
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return nil, apperrors.BadRequest("invalid_title", "title is required")
	}
	if !input.Quadrant.Valid() {
		return nil, invalidQuadrant()
	}
	if input.Difficulty != "" && !input.Difficulty.Valid() {
		return nil, invalidDifficulty()
	}

	var planner *model.Planner
	var apiErr *apperrors.APIError
	switch {
	case input.PlannerID != "":
		planner, apiErr = s.ownedPlanner(ctx, userID, input.PlannerID)
	case input.Date != "":
		planner, apiErr = s.findOrCreatePlanner(ctx, userID, input.Date)
	default:
		apiErr = apperrors.BadRequest("invalid_planner", "plannerId or date is required")
	}
	if apiErr != nil {
		return nil, apiErr
	}

	now := time.Now().UTC()
	task := model.Task{
		ID:           uuid.NewString(),
		Title:        title,
		Description:  input.Description,
		IsCompleted:  input.IsCompleted,
		Quadrant:     input.Quadrant,
		TimeRequired: input.TimeRequired,
		TimeBlock:    input.TimeBlock,
		Difficulty:   input.Difficulty,
		Tags:         normalizeTags(input.Tags),
		PlannerID:    planner.ID,
		UserID:       userID,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if input.Priority != nil {
		task.Priority = *input.Priority
	}

	if apiErr := s.insertWithNanoID(ctx, &task); apiErr != nil {
		return nil, apiErr
	}
	s.broadcaster.BroadcastTaskCreated(task, planner.Date, userID)
	return &task, nil
}

func (s *TaskService) insertWithNanoID(ctx context.Context, task *model.Task) *apperrors.APIError {
	for attempt := 0; attempt < nanoIDAttempts; attempt++ {
		nanoID, err := gonanoid.New(nanoIDLength)
		if err != nil {
			return apperrors.Internal("failed to generate task id")
		}
		task.NanoID = nanoID

		err = s.store.InsertTask(ctx, task)
		if err == nil {
			return nil
		}
		if err != repository.ErrConflict {
			return apperrors.Internal("failed to create task")
		}
	}
	return apperrors.Internal("failed to allocate task id")
}

// UpdateTask applies a partial update to a task the user owns.
func (s *TaskService) UpdateTask(ctx context.Context, userID, taskID string, patch model.TaskPatch) (*model.Task, *apperrors.APIError) {
	patch, apiErr := normalizePatch(patch)
	if apiErr != nil {
		return nil, apiErr
	}

	task, err := s.store.UpdateTask(ctx, userID, taskID, patch)
	if err == repository.ErrNotFound {
		return nil, taskNotFound()
	}
	if err != nil {
		return nil, apperrors.Internal("failed to update task")
	}

	if date, ok := s.dateOf(ctx, task.PlannerID); ok {
		s.broadcaster.BroadcastTaskUpdated(*task, date, userID)
	}
	return task, nil
}

// UpdateTaskByShortID is UpdateTask addressed by the public nano id.
func (s *TaskService) UpdateTaskByShortID(ctx context.Context, userID, shortID string, patch model.TaskPatch) (*model.Task, *apperrors.APIError) {
	task, apiErr := s.taskByShortID(ctx, userID, shortID)
	if apiErr != nil {
		return nil, apiErr
	}
	return s.UpdateTask(ctx, userID, task.ID, patch)
}

// DeleteTask removes a task the user owns.
func (s *TaskService) DeleteTask(ctx context.Context, userID, taskID string) *apperrors.APIError {
	task, err := s.store.GetTask(ctx, userID, taskID)
	if err == repository.ErrNotFound {
		return taskNotFound()
	}
	if err != nil {
		return apperrors.Internal("failed to load task")
	}
	return s.deleteLoaded(ctx, userID, task)
}

// DeleteTaskByShortID is DeleteTask addressed by the public nano id. Another
// user's id is reported as not found.
func (s *TaskService) DeleteTaskByShortID(ctx context.Context, userID, shortID string) (*model.Task, *apperrors.APIError) {
	task, apiErr := s.taskByShortID(ctx, userID, shortID)
	if apiErr != nil {
		return nil, apiErr
	}
	if apiErr := s.deleteLoaded(ctx, userID, task); apiErr != nil {
		return nil, apiErr
	}
	return task, nil
}

func (s *TaskService) deleteLoaded(ctx context.Context, userID string, task *model.Task) *apperrors.APIError {
	date, ok := s.dateOf(ctx, task.PlannerID)

	err := s.store.DeleteTask(ctx, userID, task.ID)
	if err == repository.ErrNotFound {
		return taskNotFound()
	}
	if err != nil {
		return apperrors.Internal("failed to delete task")
	}

	if ok {
		s.broadcaster.BroadcastTaskDeleted(task.ID, date, userID)
	}
	return nil
}

type ReorderItem struct {
	ID       string         `json:"id"`
	Quadrant model.Quadrant `json:"quadrant"`
	Priority int            `json:"priority"`
}

// ReorderInput is either a single move (TaskID, NewQuadrant, NewPriority)
// or a batch in TaskUpdates.
type ReorderInput struct {
	TaskID      string         `json:"taskId"`
	NewQuadrant model.Quadrant `json:"newQuadrant"`
	NewPriority *int           `json:"newPriority"`
	TaskUpdates []ReorderItem  `json:"taskUpdates"`
}

// Reorder moves one task, broadcasting task:updated, or applies a batch
// atomically and broadcasts tasks:reordered with each affected date's full
// list.
func (s *TaskService) Reorder(ctx context.Context, userID string, input ReorderInput) ([]model.Task, *apperrors.APIError) {
	if input.TaskUpdates != nil {
		return s.reorderBatch(ctx, userID, input.TaskUpdates)
	}
	if input.TaskID == "" || input.NewPriority == nil {
		return nil, apperrors.BadRequest("invalid_reorder", "taskId and newPriority, or taskUpdates, are required")
	}
	if !input.NewQuadrant.Valid() {
		return nil, invalidQuadrant()
	}

	quadrant := input.NewQuadrant
	priority := *input.NewPriority
	task, apiErr := s.UpdateTask(ctx, userID, input.TaskID, model.TaskPatch{Quadrant: &quadrant, Priority: &priority})
	if apiErr != nil {
		return nil, apiErr
	}
	return []model.Task{*task}, nil
}

func (s *TaskService) reorderBatch(ctx context.Context, userID string, items []ReorderItem) ([]model.Task, *apperrors.APIError) {
	if len(items) == 0 {
		return nil, apperrors.BadRequest("invalid_reorder", "taskUpdates must not be empty")
	}

	patches := make(map[string]model.TaskPatch, len(items))
	order := make([]string, 0, len(items))
	for _, item := range items {
		if item.ID == "" || !item.Quadrant.Valid() {
			return nil, apperrors.BadRequest("invalid_reorder", "each update needs an id and a valid quadrant")
		}
		if _, dup := patches[item.ID]; dup {
			return nil, apperrors.BadRequest("invalid_reorder", "duplicate task id "+item.ID)
		}
		quadrant, priority := item.Quadrant, item.Priority
		patches[item.ID] = model.TaskPatch{Quadrant: &quadrant, Priority: &priority}
		order = append(order, item.ID)
	}

	updated, err := s.store.UpdateTasks(ctx, userID, patches, order)
	if err == repository.ErrNotFound {
		return nil, apperrors.NotFound(apperrors.CodeTaskNotFound, "some tasks not found")
	}
	if err != nil {
		return nil, apperrors.Internal("failed to reorder tasks")
	}

	planners := make(map[string]struct{})
	for _, task := range updated {
		if _, seen := planners[task.PlannerID]; seen {
			continue
		}
		planners[task.PlannerID] = struct{}{}
		s.broadcastReordered(ctx, userID, task.PlannerID)
	}
	return updated, nil
}

func (s *TaskService) broadcastReordered(ctx context.Context, userID, plannerID string) {
	date, ok := s.dateOf(ctx, plannerID)
	if !ok {
		return
	}
	tasks, err := s.store.ListTasks(ctx, plannerID)
	if err != nil {
		log.Printf("list tasks for reorder broadcast: %v", err)
		return
	}
	s.broadcaster.BroadcastTasksReordered(tasks, date, userID)
}

// SetCompletion marks a task, addressed by nano id, complete or not.
func (s *TaskService) SetCompletion(ctx context.Context, userID, shortID string, completed bool) (*model.Task, *apperrors.APIError) {
	return s.UpdateTaskByShortID(ctx, userID, shortID, model.TaskPatch{IsCompleted: &completed})
}

// GetMarkdown renders the date's planner as text.
func (s *TaskService) GetMarkdown(ctx context.Context, userID, date string) (string, *apperrors.APIError) {
	view, apiErr := s.GetPlanner(ctx, userID, date)
	if apiErr != nil {
		return "", apiErr
	}
	return markdown.PlannerToMarkdown(view.Tasks), nil
}

// MarkdownResult reports what a save changed. Diff compares the stored
// planner's text with the submitted text line by line.
type MarkdownResult struct {
	Created int           `json:"created"`
	Updated int           `json:"updated"`
	Deleted int           `json:"deleted"`
	Diff    markdown.Diff `json:"diff"`
	Tasks   []model.Task  `json:"tasks"`
}

// ApplyMarkdown saves an edited text view. The whole text is validated
// before anything is written. Changes are applied as deletes, then
// updates, then creates, each broadcast as it lands.
func (s *TaskService) ApplyMarkdown(ctx context.Context, userID, date, text string) (*MarkdownResult, *apperrors.APIError) {
	if errs := markdown.ValidateMarkdown(text); len(errs) > 0 {
		return nil, invalidMarkdown(errs)
	}
	doc := markdown.ParsePlanner(text)
	if len(doc.Errors) > 0 {
		return nil, invalidMarkdown(doc.Errors)
	}

	planner, apiErr := s.findOrCreatePlanner(ctx, userID, date)
	if apiErr != nil {
		return nil, apiErr
	}
	existing, err := s.store.ListTasks(ctx, planner.ID)
	if err != nil {
		return nil, apperrors.Internal("failed to list tasks")
	}

	diff := markdown.CalculateMarkdownDiff(markdown.PlannerToMarkdown(existing), text)
	changes := markdown.Reconcile(existing, doc)

	for _, id := range changes.Deleted {
		if err := s.store.DeleteTask(ctx, userID, id); err != nil && err != repository.ErrNotFound {
			return nil, apperrors.Internal("failed to delete task")
		}
		s.broadcaster.BroadcastTaskDeleted(id, planner.Date, userID)
	}

	for _, update := range changes.Updated {
		task, err := s.store.UpdateTask(ctx, userID, update.ID, update.Patch)
		if err == repository.ErrNotFound {
			continue
		}
		if err != nil {
			return nil, apperrors.Internal("failed to update task")
		}
		s.broadcaster.BroadcastTaskUpdated(*task, planner.Date, userID)
	}

	now := time.Now().UTC()
	for _, parsed := range changes.Created {
		task := parsed
		task.ID = uuid.NewString()
		task.PlannerID = planner.ID
		task.UserID = userID
		task.Tags = normalizeTags(task.Tags)
		task.CreatedAt = now
		task.UpdatedAt = now
		if apiErr := s.insertWithNanoID(ctx, &task); apiErr != nil {
			return nil, apiErr
		}
		s.broadcaster.BroadcastTaskCreated(task, planner.Date, userID)
	}

	tasks, err := s.store.ListTasks(ctx, planner.ID)
	if err != nil {
		return nil, apperrors.Internal("failed to list tasks")
	}
	return &MarkdownResult{
		Created: len(changes.Created),
		Updated: len(changes.Updated),
		Deleted: len(changes.Deleted),
		Diff:    diff,
		Tasks:   tasks,
	}, nil
}

func (s *TaskService) findOrCreatePlanner(ctx context.Context, userID, date string) (*model.Planner, *apperrors.APIError) {
	if !model.ValidDate(date) {
		return nil, invalidDate()
	}
	planner, err := s.store.FindOrCreatePlanner(ctx, userID, date)
	if err != nil {
		return nil, apperrors.Internal("failed to load planner")
	}
	return planner, nil
}

func (s *TaskService) ownedPlanner(ctx context.Context, userID, plannerID string) (*model.Planner, *apperrors.APIError) {
	planner, err := s.store.GetPlanner(ctx, plannerID)
	if err == repository.ErrNotFound || (err == nil && planner.UserID != userID) {
		return nil, apperrors.NotFound(apperrors.CodePlannerNotFound, "planner not found")
	}
	if err != nil {
		return nil, apperrors.Internal("failed to load planner")
	}
	return planner, nil
}

func (s *TaskService) taskByShortID(ctx context.Context, userID, shortID string) (*model.Task, *apperrors.APIError) {
	task, err := s.store.FindTaskByShortID(ctx, userID, shortID)
	if err == repository.ErrNotFound {
		return nil, apperrors.NotFound(apperrors.CodeTaskNotFound, `task with nanoId "`+shortID+`" not found`)
	}
	if err != nil {
		return nil, apperrors.Internal("failed to load task")
	}
	return task, nil
}

// dateOf resolves the planner date used to address a broadcast. A failed
// lookup only costs the broadcast.
func (s *TaskService) dateOf(ctx context.Context, plannerID string) (string, bool) {
	planner, err := s.store.GetPlanner(ctx, plannerID)
	if err != nil {
		log.Printf("resolve planner %s for broadcast: %v", plannerID, err)
		return "", false
	}
	return planner.Date, true
}

// normalizePatch validates a patch and returns it with trimmed title and
// cleaned tags.
func normalizePatch(patch model.TaskPatch) (model.TaskPatch, *apperrors.APIError) {
	if patch.IsEmpty() {
		return patch, apperrors.BadRequest("empty_update", "no fields to update")
	}
	if patch.Title != nil {
		title := strings.TrimSpace(*patch.Title)
		if title == "" {
			return patch, apperrors.BadRequest("invalid_title", "title cannot be empty")
		}
		patch.Title = &title
	}
	if patch.Quadrant != nil && !patch.Quadrant.Valid() {
		return patch, invalidQuadrant()
	}
	if patch.Difficulty != nil && *patch.Difficulty != "" && !patch.Difficulty.Valid() {
		return patch, invalidDifficulty()
	}
	if patch.Tags != nil {
		tags := normalizeTags(*patch.Tags)
		patch.Tags = &tags
	}
	return patch, nil
}

func normalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	seen := make(map[string]struct{}, len(tags))
	for _, tag := range tags {
		tag = strings.TrimPrefix(strings.TrimSpace(tag), "#")
		if tag == "" {
			continue
		}
		if _, dup := seen[tag]; dup {
			continue
		}
		seen[tag] = struct{}{}
		out = append(out, tag)
	}
	return out
}

func invalidDate() *apperrors.APIError {
	return apperrors.BadRequest(apperrors.CodeInvalidDate, "date must be YYYY-MM-DD")
}

func invalidQuadrant() *apperrors.APIError {
	return apperrors.BadRequest("invalid_quadrant", "quadrant must be one of urgent-important, urgent-not-important, not-urgent-important, not-urgent-not-important")
}

func invalidDifficulty() *apperrors.APIError {
	return apperrors.BadRequest("invalid_difficulty", "difficulty must be easy, medium or hard")
}

func taskNotFound() *apperrors.APIError {
	return apperrors.NotFound(apperrors.CodeTaskNotFound, "task not found")
}

func invalidMarkdown(errs []markdown.LineError) *apperrors.APIError {
	return apperrors.Unprocessable(apperrors.CodeInvalidMarkdown, "markdown has errors", map[string]interface{}{"errors": errs})
}
