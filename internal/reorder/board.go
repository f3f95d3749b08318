// Package reorder turns drag gestures over the quadrant board into task
// moves. A gesture only previews changes locally; the single resulting
// move goes out through the action layer and the board converges when the
// broadcast replaces its tasks.
package reorder

import (
	"context"
	"math"
	"sort"
	"sync"

	"taskplanner/internal/model"
)

type Point struct {
	X, Y float64
}

type Rect struct {
	X, Y, Width, Height float64
}

func (r Rect) corners() [4]Point {
	return [4]Point{
		{r.X, r.Y},
		{r.X + r.Width, r.Y},
		{r.X, r.Y + r.Height},
		{r.X + r.Width, r.Y + r.Height},
	}
}

func (r Rect) translate(dx, dy float64) Rect {
	return Rect{X: r.X + dx, Y: r.Y + dy, Width: r.Width, Height: r.Height}
}

// cornerDistance sums the distances between matching corners.
func cornerDistance(a, b Rect) float64 {
	ac, bc := a.corners(), b.corners()
	var sum float64
	for i := range ac {
		sum += math.Hypot(ac[i].X-bc[i].X, ac[i].Y-bc[i].Y)
	}
	return sum
}

// Move is the one mutation a drop produces.
type Move struct {
	TaskID   string
	Quadrant model.Quadrant
	Priority int
}

// Mover sends a move to the server. syncclient.Controller and
// syncclient.Actions both satisfy it.
type Mover interface {
	MoveTask(ctx context.Context, taskID string, quadrant model.Quadrant, priority int) error
}

// Board is the client's picture of one planner: the authoritative tasks,
// the layout of drop targets, and moves sent but not yet confirmed.
type Board struct {
	mu         sync.Mutex
	tasks      []model.Task
	containers map[model.Quadrant]Rect
	cards      map[string]Rect
	pending    map[string]Move
}

func NewBoard(tasks []model.Task) *Board {
	return &Board{
		tasks:      append([]model.Task{}, tasks...),
		containers: make(map[model.Quadrant]Rect),
		cards:      make(map[string]Rect),
		pending:    make(map[string]Move),
	}
}

// SetTasks replaces the authoritative tasks, usually from a broadcast. It
// settles every pending move: the server's answer wins.
func (b *Board) SetTasks(tasks []model.Task) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.tasks = append([]model.Task{}, tasks...)
	b.pending = make(map[string]Move)
}

func (b *Board) SetContainer(quadrant model.Quadrant, rect Rect) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.containers[quadrant] = rect
}

func (b *Board) SetCard(taskID string, rect Rect) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cards[taskID] = rect
}

// Tasks returns the authoritative tasks, sorted.
func (b *Board) Tasks() []model.Task {
	b.mu.Lock()
	out := append([]model.Task{}, b.tasks...)
	b.mu.Unlock()
	model.SortTasks(out)
	return out
}

// View is the authoritative tasks with unconfirmed moves applied.
func (b *Board) View() []model.Task {
	return b.view(nil)
}

func (b *Board) view(preview map[string]model.Quadrant) []model.Task {
	b.mu.Lock()
	out := append([]model.Task{}, b.tasks...)
	for i := range out {
		if move, ok := b.pending[out[i].ID]; ok {
			out[i].Quadrant = move.Quadrant
			out[i].Priority = move.Priority
		}
		if quadrant, ok := preview[out[i].ID]; ok {
			out[i].Quadrant = quadrant
		}
	}
	b.mu.Unlock()

	model.SortTasks(out)
	return out
}

// Submit sends move and shows it until the server answers. A failed send
// drops the provisional state.
func (b *Board) Submit(ctx context.Context, mover Mover, move Move) error {
	b.mu.Lock()
	b.pending[move.TaskID] = move
	b.mu.Unlock()

	if err := mover.MoveTask(ctx, move.TaskID, move.Quadrant, move.Priority); err != nil {
		b.mu.Lock()
		delete(b.pending, move.TaskID)
		b.mu.Unlock()
		return err
	}
	return nil
}

func (b *Board) task(id string) (model.Task, bool) {
	for _, task := range b.tasks {
		if task.ID == id {
			return task, true
		}
	}
	return model.Task{}, false
}

// countIn counts authoritative tasks in quadrant, leaving out one id.
func (b *Board) countIn(quadrant model.Quadrant, except string) int {
	n := 0
	for _, task := range b.tasks {
		if task.Quadrant == quadrant && task.ID != except {
			n++
		}
	}
	return n
}

type TargetKind int

const (
	TargetNone TargetKind = iota
	TargetQuadrant
	TargetTask
)

// Target is the droppable under a gesture.
type Target struct {
	Kind     TargetKind
	Quadrant model.Quadrant
	TaskID   string
}

type droppable struct {
	target Target
	rect   Rect
}

// closest picks the droppable whose corners are nearest to dragged. The
// dragged card's own slot is a candidate too. Containers are scanned first,
// in matrix order, then cards by quadrant, priority and id. The first of
// equal distances wins, so the same layout always gives the same target.
// Callers hold b.mu.
func (b *Board) closest(dragged Rect) Target {
	candidates := make([]droppable, 0, len(b.containers)+len(b.cards))
	for _, cfg := range model.Quadrants {
		if rect, ok := b.containers[cfg.Key]; ok {
			candidates = append(candidates, droppable{target: Target{Kind: TargetQuadrant, Quadrant: cfg.Key}, rect: rect})
		}
	}

	tasks := append([]model.Task{}, b.tasks...)
	sort.Slice(tasks, func(i, j int) bool { return tasks[i].ID < tasks[j].ID })
	model.SortTasks(tasks)
	for _, task := range tasks {
		rect, ok := b.cards[task.ID]
		if !ok {
			continue
		}
		candidates = append(candidates, droppable{target: Target{Kind: TargetTask, Quadrant: task.Quadrant, TaskID: task.ID}, rect: rect})
	}

	best := Target{}
	bestDistance := math.Inf(1)
	for _, candidate := range candidates {
		if d := cornerDistance(dragged, candidate.rect); d < bestDistance {
			best, bestDistance = candidate.target, d
		}
	}
	return best
}
