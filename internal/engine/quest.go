package engine

import (
	"context"
	"fmt"

	"tonstation_bot/internal/model"
)

func (e *Engine) runQuestCycle(ctx context.Context, sess model.Session) model.QuestOutcome {
	var out model.QuestOutcome
	quests, err := e.provider.GetTasks(ctx, sess)
	if err != nil {
		out.Error = err.Error()
		e.bus.Error(fmt.Sprintf("Do not get the mission list: %v", err), nil)
		return out
	}
	out.Listed = len(quests)

	for _, quest := range quests {
		if ctx.Err() != nil {
			break
		}
		if e.skip.Contains(quest.ID) {
			out.Skipped++
			e.bus.Warn(fmt.Sprintf("Ignore the mission with ID %s", quest.ID), nil)
			continue
		}

		// start 的结果不影响 claim：已经开始过的任务服务端会直接拒绝，claim 照常进行
		if err := e.provider.StartTask(ctx, sess, quest); err != nil {
			e.bus.Error(fmt.Sprintf("Start mission %s failure: %v", quest.Description, err), nil)
		}

		res, err := e.provider.ClaimTask(ctx, sess, quest)
		if err != nil {
			out.Failed++
			e.bus.Error(fmt.Sprintf("%s failure: %v", quest.Description, err), nil)
			continue
		}
		amount := res.Amount
		if amount == 0 {
			amount = quest.Reward.Amount
		}
		out.Claimed++
		out.Reward += amount
		e.bus.Success(fmt.Sprintf("%s success | Reward %s SOON", quest.Description, formatAmount(amount)), nil)
	}
	return out
}
