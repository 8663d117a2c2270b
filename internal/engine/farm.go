package engine

import (
	"context"
	"fmt"

	"tonstation_bot/internal/model"
	"tonstation_bot/internal/provider"
)

// runFarmCycle starts a farm when none runs, waits while the running one is
// unexpired, and claims then restarts an expired one. Any failed step ends
// the cycle for this pass.
func (e *Engine) runFarmCycle(ctx context.Context, sess model.Session) model.FarmOutcome {
	farms, err := e.provider.GetFarmStatus(ctx, sess)
	if err != nil {
		return e.farmFailed(model.FarmOutcome{}, "Get farming status failed", err)
	}
	if len(farms) == 0 {
		e.bus.Info("Start farm ...", nil)
		return e.startFarm(ctx, sess, model.FarmOutcome{Action: model.FarmActionStarted})
	}

	current := farms[0]
	timeEnd, err := provider.ParseTimeEnd(current.TimeEnd)
	if err != nil {
		return e.farmFailed(model.FarmOutcome{}, "Farm completion time is unreadable", err)
	}
	e.bus.Info(fmt.Sprintf("Farm completion time %s", formatDateTime(timeEnd)), nil)

	now := e.clock.Now()
	if now.Before(timeEnd) {
		e.bus.Wait(fmt.Sprintf("Remaining %s.", formatRemaining(timeEnd.Sub(now))), nil)
		return model.FarmOutcome{Action: model.FarmActionWaiting, TimeEnd: timeEnd}
	}

	claimed, err := e.provider.ClaimFarm(ctx, sess, current.ID)
	if err != nil {
		return e.farmFailed(model.FarmOutcome{}, "Claim Farming failed", err)
	}
	e.bus.Success(fmt.Sprintf("Claim Farming successfully, received %s", formatAmount(claimed.Amount)), nil)

	return e.startFarm(ctx, sess, model.FarmOutcome{
		Action:  model.FarmActionCycled,
		Claimed: true,
		Amount:  claimed.Amount,
	})
}

func (e *Engine) startFarm(ctx context.Context, sess model.Session, out model.FarmOutcome) model.FarmOutcome {
	res, err := e.provider.StartFarm(ctx, sess)
	if err != nil {
		return e.farmFailed(out, "Start Farm failed", err)
	}
	out.TimeEnd = res.TimeEnd
	if res.TimeEnd.IsZero() {
		e.bus.Success("Start Farm successfully, end later unknown", nil)
		return out
	}
	e.bus.Success(fmt.Sprintf("Start Farm successfully, end later %s", formatDateTime(res.TimeEnd)), nil)
	return out
}

func (e *Engine) farmFailed(out model.FarmOutcome, msg string, err error) model.FarmOutcome {
	e.bus.Error(fmt.Sprintf("%s: %v", msg, err), nil)
	out.Action = model.FarmActionFailed
	out.Error = err.Error()
	return out
}
