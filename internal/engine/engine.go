package engine

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"tonstation_bot/internal/config"
	"tonstation_bot/internal/credentials"
	"tonstation_bot/internal/logbus"
	"tonstation_bot/internal/model"
	"tonstation_bot/internal/notify"
	"tonstation_bot/internal/provider"
)

// Recorder persists finished passes. *sqlite.Store implements it.
type Recorder interface {
	SavePass(ctx context.Context, pass model.PassSummary) error
}

type Options struct {
	Provider provider.Provider
	Bus      *logbus.Bus
	Clock    Clock
	Out      io.Writer
	Recorder Recorder
	Notifier notify.Notifier
	Loop     config.LoopConfig
	Data     config.DataConfig
	Quests   config.QuestsConfig
}

type Engine struct {
	provider provider.Provider
	bus      *logbus.Bus
	clock    Clock
	out      io.Writer
	recorder Recorder
	notifier notify.Notifier

	credentialsPath string
	skip            SkipSet
	once            bool

	loopSettings atomic.Value // model.LoopSettings

	mu    sync.Mutex
	state model.EngineState
}

func New(opts Options) *Engine {
	clock := opts.Clock
	if clock == nil {
		clock = SystemClock{}
	}
	out := opts.Out
	if out == nil {
		out = os.Stdout
	}
	bus := opts.Bus
	if bus == nil {
		bus = logbus.New(200)
	}
	e := &Engine{
		provider:        opts.Provider,
		bus:             bus,
		clock:           clock,
		out:             out,
		recorder:        opts.Recorder,
		notifier:        opts.Notifier,
		credentialsPath: opts.Data.CredentialsPath,
		skip:            NewSkipSet(opts.Quests.SkipIDs...),
		once:            opts.Loop.Once,
	}
	e.SetLoopSettings(model.LoopSettings{
		AccountPauseMs:   int(opts.Loop.AccountPause() / time.Millisecond),
		CycleWaitMinutes: int(opts.Loop.CycleWait() / time.Minute),
	})
	return e
}

// Run repeats passes over the credential file until ctx ends. An unreadable
// credential file is returned as-is and is meant to stop the process.
func (e *Engine) Run(ctx context.Context) error {
	e.setRunning(true)
	defer e.setRunning(false)

	for {
		blobs, err := credentials.Load(e.credentialsPath)
		if err != nil {
			return err
		}
		e.RunPass(ctx, blobs)
		if err := ctx.Err(); err != nil {
			return err
		}
		if e.once {
			return nil
		}
		if !e.countdown(ctx, e.cycleWait()) {
			return ctx.Err()
		}
	}
}

// RunPass processes every credential once, in order, one at a time.
func (e *Engine) RunPass(ctx context.Context, blobs []string) model.PassSummary {
	pass := model.PassSummary{
		ID:        uuid.NewString(),
		StartedAt: e.clock.Now(),
	}
	e.mu.Lock()
	e.state.PassID = pass.ID
	e.state.NextPassAt = time.Time{}
	e.mu.Unlock()

	e.bus.Info("pass started", map[string]any{
		"passId":   pass.ID,
		"accounts": len(blobs),
		"provider": e.provider.Name(),
		"skipIds":  e.skip.Len(),
	})
	for i, blob := range blobs {
		if ctx.Err() != nil {
			break
		}
		pass.Add(e.runAccount(ctx, pass.ID, i+1, blob))
		if !e.clock.Sleep(ctx, e.accountPause()) {
			break
		}
	}
	pass.FinishedAt = e.clock.Now()
	e.finishPass(ctx, pass)
	return pass
}

func (e *Engine) State() model.EngineState {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := e.state
	if out.LastSummary != nil {
		last := *out.LastSummary
		out.LastSummary = &last
	}
	return out
}

func (e *Engine) finishPass(ctx context.Context, pass model.PassSummary) {
	e.bus.Info("pass finished", map[string]any{
		"passId":        pass.ID,
		"accounts":      pass.Accounts,
		"succeeded":     pass.Succeeded,
		"failed":        pass.Failed,
		"farmsStarted":  pass.FarmsStarted,
		"farmsClaimed":  pass.FarmsClaimed,
		"questsClaimed": pass.QuestsClaimed,
	})

	e.mu.Lock()
	e.state.PassID = ""
	last := pass
	e.state.LastSummary = &last
	e.mu.Unlock()
	e.bus.Publish("pass_summary", pass)

	if e.recorder != nil {
		// 记录失败不影响主循环，shutdown 时也尽量落库
		saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		if err := e.recorder.SavePass(saveCtx, pass); err != nil {
			e.bus.Warn("save pass failed", map[string]any{"error": err.Error()})
		}
		cancel()
	}
	if e.notifier != nil {
		e.notifier.NotifyPassCompleted(ctx, pass)
	}
}

func (e *Engine) countdown(ctx context.Context, d time.Duration) bool {
	secs := int(d / time.Second)
	e.mu.Lock()
	e.state.NextPassAt = e.clock.Now().Add(d)
	e.mu.Unlock()

	for i := secs; i >= 0; i-- {
		_, _ = fmt.Fprintf(e.out, "\r===== Wait %d seconds to continue the loop =====", i)
		if i == 0 {
			break
		}
		if !e.clock.Sleep(ctx, time.Second) {
			_, _ = fmt.Fprintln(e.out)
			return false
		}
	}
	_, _ = fmt.Fprintln(e.out)
	return true
}

func (e *Engine) setRunning(v bool) {
	e.mu.Lock()
	e.state.Running = v
	e.mu.Unlock()
}
