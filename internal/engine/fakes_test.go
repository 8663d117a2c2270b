package engine

import (
	"context"
	"errors"
	"sync"
	"time"

	"tonstation_bot/internal/credentials"
	"tonstation_bot/internal/model"
	"tonstation_bot/internal/provider"
)

type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	sleeps []time.Duration
	// onSleep runs after the clock advanced; tests use it to cancel ctx.
	onSleep func(d time.Duration)
}

func newFakeClock(now time.Time) *fakeClock { return &fakeClock{now: now} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) bool {
	if ctx.Err() != nil {
		return false
	}
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.sleeps = append(c.sleeps, d)
	hook := c.onSleep
	c.mu.Unlock()
	if hook != nil {
		hook(d)
	}
	return ctx.Err() == nil
}

// fakeProvider answers from per-account tables and records every call as
// "<op>:<accountID>[:<arg>]".
type fakeProvider struct {
	mu    sync.Mutex
	calls []string

	authErr       map[string]error
	authPanic     map[string]bool
	farms         map[string][]model.FarmState
	farmStatusErr error
	claimFarmErr  error
	startFarmErr  error
	startFarmEnd  time.Time
	farmAmount    float64
	tasks         []model.Quest
	tasksErr      error
	startTaskErr  map[string]error
	claimTaskErr  map[string]error
	claimAmount   map[string]float64
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{
		authErr:      map[string]error{},
		authPanic:    map[string]bool{},
		farms:        map[string][]model.FarmState{},
		startTaskErr: map[string]error{},
		claimTaskErr: map[string]error{},
		claimAmount:  map[string]float64{},
		farmAmount:   1000,
		startFarmEnd: time.Date(2024, 9, 30, 20, 0, 0, 0, time.UTC),
	}
}

func (p *fakeProvider) record(call string) {
	p.mu.Lock()
	p.calls = append(p.calls, call)
	p.mu.Unlock()
}

func (p *fakeProvider) Calls() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.calls...)
}

func (p *fakeProvider) Name() string { return "fake" }

func (p *fakeProvider) Authenticate(_ context.Context, initData string) (provider.AuthResult, error) {
	cred, err := credentials.Parse(initData)
	if err != nil {
		return provider.AuthResult{}, err
	}
	id := cred.User.IDString()
	p.record("auth:" + id)
	if p.authPanic[id] {
		panic("boom")
	}
	if err := p.authErr[id]; err != nil {
		return provider.AuthResult{}, err
	}
	return provider.AuthResult{AccessToken: "tok-" + id}, nil
}

func (p *fakeProvider) GetFarmStatus(_ context.Context, sess model.Session) ([]model.FarmState, error) {
	p.record("farm_status:" + sess.AccountID)
	if p.farmStatusErr != nil {
		return nil, p.farmStatusErr
	}
	return p.farms[sess.AccountID], nil
}

func (p *fakeProvider) StartFarm(_ context.Context, sess model.Session) (provider.StartFarmResult, error) {
	p.record("start_farm:" + sess.AccountID)
	if p.startFarmErr != nil {
		return provider.StartFarmResult{}, p.startFarmErr
	}
	return provider.StartFarmResult{TimeEnd: p.startFarmEnd}, nil
}

func (p *fakeProvider) ClaimFarm(_ context.Context, sess model.Session, farmID string) (provider.ClaimResult, error) {
	p.record("claim_farm:" + sess.AccountID + ":" + farmID)
	if p.claimFarmErr != nil {
		return provider.ClaimResult{}, p.claimFarmErr
	}
	return provider.ClaimResult{Amount: p.farmAmount}, nil
}

func (p *fakeProvider) GetTasks(_ context.Context, sess model.Session) ([]model.Quest, error) {
	p.record("tasks:" + sess.AccountID)
	if p.tasksErr != nil {
		return nil, p.tasksErr
	}
	return append([]model.Quest(nil), p.tasks...), nil
}

func (p *fakeProvider) StartTask(_ context.Context, sess model.Session, quest model.Quest) error {
	p.record("start_task:" + sess.AccountID + ":" + quest.ID)
	return p.startTaskErr[quest.ID]
}

func (p *fakeProvider) ClaimTask(_ context.Context, sess model.Session, quest model.Quest) (provider.ClaimResult, error) {
	p.record("claim_task:" + sess.AccountID + ":" + quest.ID)
	if err := p.claimTaskErr[quest.ID]; err != nil {
		return provider.ClaimResult{}, err
	}
	return provider.ClaimResult{Amount: p.claimAmount[quest.ID]}, nil
}

var errUpstream = errors.New("upstream said no")

type recordingRecorder struct {
	mu     sync.Mutex
	passes []model.PassSummary
	ctxErr error
}

func (r *recordingRecorder) SavePass(ctx context.Context, pass model.PassSummary) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.passes = append(r.passes, pass)
	r.ctxErr = ctx.Err()
	return nil
}

type recordingNotifier struct {
	mu     sync.Mutex
	passes []model.PassSummary
}

func (n *recordingNotifier) NotifyPassCompleted(_ context.Context, pass model.PassSummary) {
	n.mu.Lock()
	n.passes = append(n.passes, pass)
	n.mu.Unlock()
}
