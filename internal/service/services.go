package service

import (
	"database/sql"
	"time"

	"taskplanner/internal/realtime"
	"taskplanner/internal/repository"
)

// Services bundles the application services over one database.
type Services struct {
	Auth    *AuthService
	APIKeys *APIKeyService
	Tasks   *TaskService
}

func NewServices(database *sql.DB, broadcaster realtime.Broadcaster, jwtSecret string, tokenTTL time.Duration) *Services {
	userRepo := repository.NewUserRepository(database)
	apiKeyRepo := repository.NewAPIKeyRepository(database)
	store := repository.NewTaskStore(database)

	return &Services{
		Auth:    NewAuthService(userRepo, jwtSecret, tokenTTL),
		APIKeys: NewAPIKeyService(apiKeyRepo),
		Tasks:   NewTaskService(store, broadcaster),
	}
}
