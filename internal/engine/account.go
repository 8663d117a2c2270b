package engine

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"tonstation_bot/internal/credentials"
	"tonstation_bot/internal/model"
)

// runAccount never lets a failure escape: every fault ends up in the log and in the returned run.
func (e *Engine) runAccount(ctx context.Context, passID string, index int, blob string) (run model.AccountRun) {
	run = model.AccountRun{
		ID:        uuid.NewString(),
		PassID:    passID,
		Index:     index,
		StartedAt: e.clock.Now(),
	}
	defer func() {
		if r := recover(); r != nil {
			run.Status = model.AccountStatusPanicked
			run.Error = fmt.Sprint(r)
			e.bus.Error(fmt.Sprintf("Account %d crashed: %v", index, r), nil)
		}
		run.FinishedAt = e.clock.Now()
	}()

	cred, err := credentials.Parse(blob)
	if err != nil {
		run.Status = model.AccountStatusMalformed
		run.Error = err.Error()
		e.bus.Error(fmt.Sprintf("Account %d skipped: %v", index, err), nil)
		return run
	}
	run.AccountID = cred.User.IDString()
	run.FirstName = cred.User.FirstName

	e.bus.Banner(fmt.Sprintf("========== Account %d | %s ==========", index, cred.User.FirstName))

	sess, ok := e.authenticate(ctx, cred)
	if !ok {
		run.Status = model.AccountStatusAuthFailed
		run.Error = "authentication failed"
		e.bus.Error(fmt.Sprintf("Login fails for account %s", run.AccountID), nil)
		return run
	}
	e.bus.Success("Successfully logged in!", nil)

	run.Farm = e.runFarmCycle(ctx, sess)
	run.Quests = e.runQuestCycle(ctx, sess)
	run.Status = model.AccountStatusOK
	return run
}

func (e *Engine) authenticate(ctx context.Context, cred model.Credential) (model.Session, bool) {
	res, err := e.provider.Authenticate(ctx, cred.Raw)
	if err != nil {
		e.bus.Error(fmt.Sprintf("Authentication error: %v", err), nil)
		return model.Session{}, false
	}
	return model.Session{AccessToken: res.AccessToken, AccountID: cred.User.IDString()}, true
}
