package reorder_test

import (
	"context"
	"errors"
	"testing"

	"taskplanner/internal/model"
	"taskplanner/internal/reorder"
	"taskplanner/internal/syncclient"
)

var (
	_ reorder.Mover = (*syncclient.Controller)(nil)
	_ reorder.Mover = (*syncclient.Actions)(nil)
)

type fakeMover struct {
	moves []reorder.Move
	err   error
}

func (m *fakeMover) MoveTask(_ context.Context, taskID string, quadrant model.Quadrant, priority int) error {
	m.moves = append(m.moves, reorder.Move{TaskID: taskID, Quadrant: quadrant, Priority: priority})
	return m.err
}

func task(id string, quadrant model.Quadrant, priority int) model.Task {
	return model.Task{ID: id, Title: id, Quadrant: quadrant, Priority: priority}
}

// newBoard lays the matrix out as four 400x400 cells with 380x40 cards
// stacked 60 apart from y+50.
func newBoard(tasks ...model.Task) *reorder.Board {
	board := reorder.NewBoard(tasks)
	origins := map[model.Quadrant]reorder.Point{
		model.QuadrantUrgentImportant:       {X: 0, Y: 0},
		model.QuadrantUrgentNotImportant:    {X: 400, Y: 0},
		model.QuadrantNotUrgentImportant:    {X: 0, Y: 400},
		model.QuadrantNotUrgentNotImportant: {X: 400, Y: 400},
	}
	for quadrant, origin := range origins {
		board.SetContainer(quadrant, reorder.Rect{X: origin.X, Y: origin.Y, Width: 400, Height: 400})
	}
	slots := make(map[model.Quadrant]int)
	for _, t := range tasks {
		origin := origins[t.Quadrant]
		slot := slots[t.Quadrant]
		slots[t.Quadrant]++
		board.SetCard(t.ID, reorder.Rect{X: origin.X + 10, Y: origin.Y + 50 + float64(slot)*60, Width: 380, Height: 40})
	}
	return board
}

func quadrantOf(tasks []model.Task, id string) model.Quadrant {
	for _, t := range tasks {
		if t.ID == id {
			return t.Quadrant
		}
	}
	return ""
}

func TestDropOnTaskTakesItsSlot(t *testing.T) {
	board := newBoard(
		task("a", model.QuadrantUrgentImportant, 0),
		task("b", model.QuadrantUrgentImportant, 1),
		task("c", model.QuadrantUrgentNotImportant, 5),
	)
	g := reorder.NewGesture(board)

	if err := g.Start("a", reorder.Point{X: 200, Y: 70}); err != nil {
		t.Fatalf("start: %v", err)
	}
	if g.Phase() != reorder.PhaseDragging {
		t.Fatalf("expected dragging, got %s", g.Phase())
	}

	target := g.Over(reorder.Point{X: 200, Y: 130})
	if target.Kind != reorder.TargetTask || target.TaskID != "b" {
		t.Fatalf("expected to be over b, got %+v", target)
	}
	if g.Phase() != reorder.PhaseDraggingOver {
		t.Fatalf("expected dragging-over, got %s", g.Phase())
	}

	move := g.Drop(reorder.Point{X: 200, Y: 130})
	want := reorder.Move{TaskID: "a", Quadrant: model.QuadrantUrgentImportant, Priority: 1}
	if move == nil || *move != want {
		t.Fatalf("expected %+v, got %+v", want, move)
	}
	if g.Phase() != reorder.PhaseDropped {
		t.Fatalf("expected dropped, got %s", g.Phase())
	}

	// Dropping onto a card in another quadrant takes that card's quadrant too.
	if err := g.Start("a", reorder.Point{X: 200, Y: 70}); err != nil {
		t.Fatalf("restart: %v", err)
	}
	move = g.Drop(reorder.Point{X: 600, Y: 70})
	want = reorder.Move{TaskID: "a", Quadrant: model.QuadrantUrgentNotImportant, Priority: 5}
	if move == nil || *move != want {
		t.Fatalf("expected %+v, got %+v", want, move)
	}
}

func TestDropOnQuadrantAppendsAndPreviewFollowsPointer(t *testing.T) {
	board := newBoard(
		task("a", model.QuadrantUrgentImportant, 0),
		task("b", model.QuadrantUrgentImportant, 1),
		task("c", model.QuadrantUrgentNotImportant, 0),
	)
	g := reorder.NewGesture(board)

	if err := g.Start("a", reorder.Point{X: 200, Y: 70}); err != nil {
		t.Fatalf("start: %v", err)
	}

	// The card lands low in the Delegate cell, far from c.
	target := g.Over(reorder.Point{X: 600, Y: 350})
	if target.Kind != reorder.TargetQuadrant || target.Quadrant != model.QuadrantUrgentNotImportant {
		t.Fatalf("expected Delegate container, got %+v", target)
	}
	if got := quadrantOf(g.View(), "a"); got != model.QuadrantUrgentNotImportant {
		t.Fatalf("preview should show a in Delegate, got %s", got)
	}
	if got := quadrantOf(board.Tasks(), "a"); got != model.QuadrantUrgentImportant {
		t.Fatalf("authoritative tasks must not change while dragging, got %s", got)
	}

	move := g.Drop(reorder.Point{X: 600, Y: 350})
	want := reorder.Move{TaskID: "a", Quadrant: model.QuadrantUrgentNotImportant, Priority: 1}
	if move == nil || *move != want {
		t.Fatalf("expected %+v, got %+v", want, move)
	}
	if got := quadrantOf(g.View(), "a"); got != model.QuadrantUrgentImportant {
		t.Fatalf("preview must be gone after drop, got %s", got)
	}
}

func TestDropOnItselfOrNothingIsNoop(t *testing.T) {
	board := newBoard(
		task("a", model.QuadrantUrgentImportant, 0),
		task("b", model.QuadrantUrgentImportant, 1),
	)
	g := reorder.NewGesture(board)

	if err := g.Start("a", reorder.Point{X: 200, Y: 70}); err != nil {
		t.Fatalf("start: %v", err)
	}
	if move := g.Drop(reorder.Point{X: 202, Y: 71}); move != nil {
		t.Fatalf("drop on itself should not move, got %+v", move)
	}

	bare := reorder.NewBoard([]model.Task{task("a", model.QuadrantUrgentImportant, 0)})
	g = reorder.NewGesture(bare)
	if err := g.Start("a", reorder.Point{X: 1, Y: 1}); err != nil {
		t.Fatalf("start: %v", err)
	}
	if target := g.Over(reorder.Point{X: 50, Y: 50}); target.Kind != reorder.TargetNone {
		t.Fatalf("expected no target without layout, got %+v", target)
	}
	if move := g.Drop(reorder.Point{X: 50, Y: 50}); move != nil {
		t.Fatalf("drop on nothing should not move, got %+v", move)
	}
}

func TestCancelDiscardsPreview(t *testing.T) {
	board := newBoard(
		task("a", model.QuadrantUrgentImportant, 0),
		task("c", model.QuadrantUrgentNotImportant, 0),
	)
	g := reorder.NewGesture(board)

	if err := g.Start("a", reorder.Point{X: 200, Y: 70}); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := g.Start("c", reorder.Point{X: 600, Y: 70}); !errors.Is(err, reorder.ErrGestureActive) {
		t.Fatalf("expected ErrGestureActive, got %v", err)
	}

	g.Over(reorder.Point{X: 600, Y: 350})
	if got := quadrantOf(g.View(), "a"); got != model.QuadrantUrgentNotImportant {
		t.Fatalf("expected preview in Delegate, got %s", got)
	}

	g.Cancel()
	if g.Phase() != reorder.PhaseIdle {
		t.Fatalf("expected idle, got %s", g.Phase())
	}
	if got := quadrantOf(g.View(), "a"); got != model.QuadrantUrgentImportant {
		t.Fatalf("cancel must restore a, got %s", got)
	}
	if move := g.Drop(reorder.Point{X: 600, Y: 350}); move != nil {
		t.Fatalf("drop after cancel should do nothing, got %+v", move)
	}
}

func TestUnknownTaskCannotBeDragged(t *testing.T) {
	g := reorder.NewGesture(newBoard(task("a", model.QuadrantUrgentImportant, 0)))
	if err := g.Start("ghost", reorder.Point{}); err == nil {
		t.Fatalf("expected error for unknown task")
	}
	if g.Phase() != reorder.PhaseIdle {
		t.Fatalf("expected idle, got %s", g.Phase())
	}
}

func TestEqualDistancesResolveTheSameWay(t *testing.T) {
	board := reorder.NewBoard([]model.Task{
		task("x", model.QuadrantUrgentNotImportant, 0),
		task("w", model.QuadrantUrgentNotImportant, 0),
		task("a", model.QuadrantUrgentImportant, 0),
	})
	overlap := reorder.Rect{X: 410, Y: 50, Width: 380, Height: 40}
	board.SetCard("x", overlap)
	board.SetCard("w", overlap)
	board.SetCard("a", reorder.Rect{X: 10, Y: 50, Width: 380, Height: 40})

	for i := 0; i < 50; i++ {
		g := reorder.NewGesture(board)
		if err := g.Start("a", reorder.Point{X: 200, Y: 70}); err != nil {
			t.Fatalf("start: %v", err)
		}
		target := g.Over(reorder.Point{X: 600, Y: 70})
		if target.TaskID != "w" {
			t.Fatalf("run %d: expected w, got %+v", i, target)
		}
		g.Cancel()
	}
}

func TestSubmitShowsMoveUntilServerAnswers(t *testing.T) {
	board := newBoard(
		task("a", model.QuadrantUrgentImportant, 0),
		task("c", model.QuadrantUrgentNotImportant, 0),
	)
	move := reorder.Move{TaskID: "a", Quadrant: model.QuadrantNotUrgentImportant, Priority: 0}

	mover := &fakeMover{}
	if err := board.Submit(context.Background(), mover, move); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if len(mover.moves) != 1 || mover.moves[0] != move {
		t.Fatalf("expected exactly one move sent, got %+v", mover.moves)
	}
	if got := quadrantOf(board.View(), "a"); got != model.QuadrantNotUrgentImportant {
		t.Fatalf("pending move should be visible, got %s", got)
	}

	// The broadcast wins even when it disagrees with the move.
	board.SetTasks([]model.Task{
		task("a", model.QuadrantNotUrgentNotImportant, 3),
		task("c", model.QuadrantUrgentNotImportant, 0),
	})
	if got := quadrantOf(board.View(), "a"); got != model.QuadrantNotUrgentNotImportant {
		t.Fatalf("server state should replace the pending move, got %s", got)
	}

	failing := &fakeMover{err: errors.New("offline")}
	if err := board.Submit(context.Background(), failing, move); err == nil {
		t.Fatalf("expected submit error")
	}
	if got := quadrantOf(board.View(), "a"); got != model.QuadrantNotUrgentNotImportant {
		t.Fatalf("failed move must be rolled back, got %s", got)
	}
}
