package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"taskplanner/internal/model"
)

type PlannerRepository struct {
	db *sql.DB
}

func NewPlannerRepository(db *sql.DB) *PlannerRepository {
	return &PlannerRepository{db: db}
}

// FindOrCreatePlanner returns the user's planner for date, creating it on
// first use. A concurrent insert that wins the unique index is re-read.
func (r *PlannerRepository) FindOrCreatePlanner(ctx context.Context, userID, date string) (*model.Planner, error) {
	planner, err := r.GetPlannerByDate(ctx, userID, date)
	if err == nil {
		return planner, nil
	}
	if err != ErrNotFound {
		return nil, err
	}

	now := time.Now().UTC()
	created := model.Planner{
		ID:        uuid.NewString(),
		Date:      date,
		UserID:    userID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	_, err = r.db.ExecContext(
		ctx,
		`INSERT INTO planners (id, user_id, date, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?)`,
		created.ID,
		created.UserID,
		created.Date,
		formatTime(created.CreatedAt),
		formatTime(created.UpdatedAt),
	)
	if isUniqueViolation(err) {
		return r.GetPlannerByDate(ctx, userID, date)
	}
	if err != nil {
		return nil, fmt.Errorf("create planner: %w", err)
	}
	return &created, nil
}

func (r *PlannerRepository) GetPlannerByDate(ctx context.Context, userID, date string) (*model.Planner, error) {
	row := r.db.QueryRowContext(
		ctx,
		`SELECT id, user_id, date, created_at, updated_at
		 FROM planners
		 WHERE user_id = ? AND date = ?`,
		userID,
		date,
	)
	return scanPlanner(row)
}

func (r *PlannerRepository) GetPlanner(ctx context.Context, plannerID string) (*model.Planner, error) {
	row := r.db.QueryRowContext(
		ctx,
		`SELECT id, user_id, date, created_at, updated_at
		 FROM planners
		 WHERE id = ?`,
		plannerID,
	)
	return scanPlanner(row)
}

func scanPlanner(s scanner) (*model.Planner, error) {
	var planner model.Planner
	var createdAt, updatedAt string
	if err := s.Scan(&planner.ID, &planner.UserID, &planner.Date, &createdAt, &updatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan planner: %w", err)
	}

	var err error
	if planner.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parse planner created_at: %w", err)
	}
	if planner.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("parse planner updated_at: %w", err)
	}
	return &planner, nil
}
