package repository

import "database/sql"

// TaskStore is the planner and task persistence used by the sync core.
type TaskStore struct {
	*PlannerRepository
	*TaskRepository
}

func NewTaskStore(db *sql.DB) *TaskStore {
	return &TaskStore{
		PlannerRepository: NewPlannerRepository(db),
		TaskRepository:    NewTaskRepository(db),
	}
}
