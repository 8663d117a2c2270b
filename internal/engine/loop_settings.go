package engine

import (
	"time"

	"tonstation_bot/internal/model"
)

func DefaultLoopSettings() model.LoopSettings {
	return model.LoopSettings{
		AccountPauseMs:   1000,
		CycleWaitMinutes: 480,
	}
}

func normalizeLoopSettings(in model.LoopSettings) model.LoopSettings {
	out := in
	if out.AccountPauseMs < 0 {
		out.AccountPauseMs = 0
	}
	if out.AccountPauseMs > 60_000 {
		out.AccountPauseMs = 60_000
	}
	if out.CycleWaitMinutes <= 0 {
		out.CycleWaitMinutes = 480
	}
	if out.CycleWaitMinutes > 1440 {
		out.CycleWaitMinutes = 1440
	}
	return out
}

func (e *Engine) LoopSettings() model.LoopSettings {
	if e == nil {
		return DefaultLoopSettings()
	}
	v := e.loopSettings.Load()
	if v == nil {
		return DefaultLoopSettings()
	}
	if s, ok := v.(model.LoopSettings); ok {
		return normalizeLoopSettings(s)
	}
	return DefaultLoopSettings()
}

// SetLoopSettings takes effect at the next pause or countdown.
func (e *Engine) SetLoopSettings(next model.LoopSettings) model.LoopSettings {
	next = normalizeLoopSettings(next)
	if e == nil {
		return next
	}
	e.loopSettings.Store(next)
	return next
}

func (e *Engine) accountPause() time.Duration {
	return time.Duration(e.LoopSettings().AccountPauseMs) * time.Millisecond
}

func (e *Engine) cycleWait() time.Duration {
	return time.Duration(e.LoopSettings().CycleWaitMinutes) * time.Minute
}
