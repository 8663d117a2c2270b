package provider

import (
	"context"
	"fmt"
	"time"

	"tonstation_bot/internal/model"
)

type AuthResult struct {
	AccessToken string `json:"accessToken"`
}

// StartFarmResult carries the new expiry. TimeEnd is zero when the platform
// accepted the start but reported no readable expiry.
type StartFarmResult struct {
	TimeEnd time.Time `json:"timeEnd"`
}

type ClaimResult struct {
	Amount float64 `json:"amount"`
}

// StatusError is returned when the platform answers with an unexpected HTTP status.
type StatusError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("%s: unexpected status %d: %s", e.Op, e.StatusCode, e.Body)
	}
	return fmt.Sprintf("%s: unexpected status %d", e.Op, e.StatusCode)
}

type Provider interface {
	Name() string

	Authenticate(ctx context.Context, initData string) (AuthResult, error)

	GetFarmStatus(ctx context.Context, sess model.Session) ([]model.FarmState, error)
	StartFarm(ctx context.Context, sess model.Session) (StartFarmResult, error)
	ClaimFarm(ctx context.Context, sess model.Session, farmID string) (ClaimResult, error)

	GetTasks(ctx context.Context, sess model.Session) ([]model.Quest, error)
	StartTask(ctx context.Context, sess model.Session, quest model.Quest) error
	ClaimTask(ctx context.Context, sess model.Session, quest model.Quest) (ClaimResult, error)
}
