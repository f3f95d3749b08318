package reorder

import (
	"errors"
	"fmt"

	"taskplanner/internal/model"
)

type Phase string

const (
	PhaseIdle         Phase = "idle"
	PhaseDragging     Phase = "dragging"
	PhaseDraggingOver Phase = "dragging-over"
	PhaseDropped      Phase = "dropped"
)

var ErrGestureActive = errors.New("reorder: a drag is already in progress")

// Gesture follows one pointer drag over a board. Quadrant changes seen
// while dragging live in a preview and never touch the board's tasks.
type Gesture struct {
	board *Board

	phase   Phase
	taskID  string
	card    Rect
	grab    Point
	target  Target
	preview map[string]model.Quadrant
}

func NewGesture(board *Board) *Gesture {
	return &Gesture{board: board, phase: PhaseIdle}
}

func (g *Gesture) Phase() Phase {
	return g.phase
}

// Target is the droppable last seen under the pointer.
func (g *Gesture) Target() Target {
	return g.target
}

// Start picks up taskID with the pointer at at. A card without a known
// layout is treated as a point under the pointer.
func (g *Gesture) Start(taskID string, at Point) error {
	if g.phase == PhaseDragging || g.phase == PhaseDraggingOver {
		return ErrGestureActive
	}

	g.board.mu.Lock()
	_, ok := g.board.task(taskID)
	card, hasCard := g.board.cards[taskID]
	g.board.mu.Unlock()
	if !ok {
		return fmt.Errorf("reorder: unknown task %s", taskID)
	}
	if !hasCard {
		card = Rect{X: at.X, Y: at.Y}
	}

	g.phase = PhaseDragging
	g.taskID = taskID
	g.card = card
	g.grab = at
	g.target = Target{}
	g.preview = make(map[string]model.Quadrant)
	return nil
}

// Over re-evaluates the target with the pointer at at. Entering another
// quadrant moves the dragged task there in the preview.
func (g *Gesture) Over(at Point) Target {
	if g.phase != PhaseDragging && g.phase != PhaseDraggingOver {
		return Target{}
	}
	g.phase = PhaseDraggingOver
	g.target = g.locate(at)

	if g.target.Kind == TargetNone {
		return g.target
	}

	g.board.mu.Lock()
	task, ok := g.board.task(g.taskID)
	g.board.mu.Unlock()
	if !ok {
		return g.target
	}

	if g.target.Quadrant == task.Quadrant {
		delete(g.preview, g.taskID)
	} else {
		g.preview[g.taskID] = g.target.Quadrant
	}
	return g.target
}

// Drop ends the gesture with the pointer at at and returns the move to
// send, or nil when the drop lands on nothing or on the dragged task
// itself.
func (g *Gesture) Drop(at Point) *Move {
	if g.phase != PhaseDragging && g.phase != PhaseDraggingOver {
		return nil
	}
	target := g.locate(at)
	taskID := g.taskID
	g.finish(PhaseDropped)
	g.target = target

	g.board.mu.Lock()
	defer g.board.mu.Unlock()

	if _, ok := g.board.task(taskID); !ok {
		return nil
	}

	switch target.Kind {
	case TargetQuadrant:
		return &Move{
			TaskID:   taskID,
			Quadrant: target.Quadrant,
			Priority: g.board.countIn(target.Quadrant, taskID),
		}
	case TargetTask:
		if target.TaskID == taskID {
			return nil
		}
		over, ok := g.board.task(target.TaskID)
		if !ok {
			return nil
		}
		return &Move{TaskID: taskID, Quadrant: over.Quadrant, Priority: over.Priority}
	}
	return nil
}

// Cancel abandons the drag and its preview.
func (g *Gesture) Cancel() {
	g.finish(PhaseIdle)
	g.target = Target{}
}

// View is what to draw: the board's view with the drag preview on top.
func (g *Gesture) View() []model.Task {
	return g.board.view(g.preview)
}

func (g *Gesture) finish(phase Phase) {
	g.phase = phase
	g.taskID = ""
	g.preview = nil
}

func (g *Gesture) locate(at Point) Target {
	dragged := g.card.translate(at.X-g.grab.X, at.Y-g.grab.Y)

	g.board.mu.Lock()
	defer g.board.mu.Unlock()
	return g.board.closest(dragged)
}
