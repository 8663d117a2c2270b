package engine

import (
	"bytes"
	"context"
	"errors"
	"io/fs"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tonstation_bot/internal/config"
	"tonstation_bot/internal/logbus"
	"tonstation_bot/internal/mockapi"
	"tonstation_bot/internal/model"
	"tonstation_bot/internal/provider/tonstation"
)

const skippedQuestID = "66dad41d9b1e65019ad30629"

var testNow = time.Date(2024, 9, 30, 12, 0, 0, 0, time.UTC)

type harness struct {
	eng   *Engine
	prov  *fakeProvider
	clock *fakeClock
	bus   *logbus.Bus
	out   *bytes.Buffer
}

func newHarness(t *testing.T, mutate func(*Options)) *harness {
	t.Helper()
	h := &harness{
		prov:  newFakeProvider(),
		clock: newFakeClock(testNow),
		bus:   logbus.New(500),
		out:   &bytes.Buffer{},
	}
	opts := Options{
		Provider: h.prov,
		Bus:      h.bus,
		Clock:    h.clock,
		Out:      h.out,
		Quests:   config.QuestsConfig{SkipIDs: config.DefaultSkipQuestIDs},
	}
	if mutate != nil {
		mutate(&opts)
	}
	h.eng = New(opts)
	return h
}

func (h *harness) logged(level, substr string) bool {
	for _, msg := range h.bus.Snapshot() {
		data, ok := msg.Data.(logbus.LogData)
		if !ok {
			continue
		}
		if data.Level == level && strings.Contains(data.Msg, substr) {
			return true
		}
	}
	return false
}

func (h *harness) banners() []string {
	var out []string
	for _, msg := range h.bus.Snapshot() {
		if msg.Type == "banner" {
			out = append(out, msg.Data.(string))
		}
	}
	return out
}

func blob(id int64, name string) string { return mockapi.InitData(id, name) }

func TestFarmAbsentStartsFarm(t *testing.T) {
	h := newHarness(t, nil)

	pass := h.eng.RunPass(context.Background(), []string{blob(1001, "Alice")})

	assert.Equal(t, []string{"auth:1001", "farm_status:1001", "start_farm:1001", "tasks:1001"}, h.prov.Calls())
	require.Len(t, pass.Runs, 1)
	assert.Equal(t, model.FarmActionStarted, pass.Runs[0].Farm.Action)
	assert.True(t, h.prov.startFarmEnd.Equal(pass.Runs[0].Farm.TimeEnd))
	assert.True(t, h.logged(logbus.LevelInfo, "Start farm ..."))
	assert.True(t, h.logged(logbus.LevelSuccess, "Start Farm successfully, end later"))
	assert.Equal(t, 1, pass.FarmsStarted)
	assert.Equal(t, 0, pass.FarmsClaimed)
}

func TestFarmUnexpiredOnlyWaits(t *testing.T) {
	h := newHarness(t, nil)
	h.prov.farms["1001"] = []model.FarmState{{ID: "f1", TimeEnd: "2024-09-30T14:00:00.000Z"}}

	pass := h.eng.RunPass(context.Background(), []string{blob(1001, "Alice")})

	assert.Equal(t, []string{"auth:1001", "farm_status:1001", "tasks:1001"}, h.prov.Calls())
	assert.Equal(t, model.FarmActionWaiting, pass.Runs[0].Farm.Action)
	assert.True(t, h.logged(logbus.LevelWait, "Remaining 02h 00m 00s."))
	assert.True(t, h.logged(logbus.LevelInfo, "Farm completion time"))
}

func TestFarmExpiredClaimsThenStarts(t *testing.T) {
	h := newHarness(t, nil)
	// timeEnd 恰好等于 now 也算到期
	h.prov.farms["1001"] = []model.FarmState{{ID: "f1", TimeEnd: "2024-09-30T12:00:00.000Z"}}

	pass := h.eng.RunPass(context.Background(), []string{blob(1001, "Alice")})

	assert.Equal(t, []string{"auth:1001", "farm_status:1001", "claim_farm:1001:f1", "start_farm:1001", "tasks:1001"}, h.prov.Calls())
	farm := pass.Runs[0].Farm
	assert.Equal(t, model.FarmActionCycled, farm.Action)
	assert.True(t, farm.Claimed)
	assert.Equal(t, 1000.0, farm.Amount)
	assert.True(t, h.logged(logbus.LevelSuccess, "Claim Farming successfully, received 1000"))
	assert.Equal(t, 1, pass.FarmsClaimed)
	assert.Equal(t, 1, pass.FarmsStarted)
}

func TestFarmStartWithoutExpiryCountsAsStarted(t *testing.T) {
	h := newHarness(t, nil)
	h.prov.startFarmEnd = time.Time{}

	pass := h.eng.RunPass(context.Background(), []string{blob(1001, "Alice")})

	assert.Equal(t, []string{"auth:1001", "farm_status:1001", "start_farm:1001", "tasks:1001"}, h.prov.Calls())
	farm := pass.Runs[0].Farm
	assert.Equal(t, model.FarmActionStarted, farm.Action)
	assert.Empty(t, farm.Error)
	assert.True(t, farm.TimeEnd.IsZero())
	assert.Equal(t, 1, pass.FarmsStarted)
	assert.True(t, h.logged(logbus.LevelSuccess, "Start Farm successfully, end later unknown"))
	assert.False(t, h.logged(logbus.LevelError, "Start Farm failed"))
}

func TestFarmUnreadableTimeEndSkipsFarm(t *testing.T) {
	h := newHarness(t, nil)
	h.prov.farms["1001"] = []model.FarmState{{ID: "f1", TimeEnd: "garbage"}}
	h.prov.tasks = []model.Quest{{ID: "q1", Description: "Follow"}}

	pass := h.eng.RunPass(context.Background(), []string{blob(1001, "Alice")})

	assert.Equal(t, []string{"auth:1001", "farm_status:1001", "tasks:1001", "start_task:1001:q1", "claim_task:1001:q1"}, h.prov.Calls())
	assert.Equal(t, model.FarmActionFailed, pass.Runs[0].Farm.Action)
	assert.Equal(t, 1, pass.Runs[0].Quests.Claimed)
	assert.Zero(t, pass.FarmsStarted)
	assert.True(t, h.logged(logbus.LevelError, "Farm completion time is unreadable"))
}

func TestPassStartLogsProviderAndSkipSet(t *testing.T) {
	h := newHarness(t, nil)

	h.eng.RunPass(context.Background(), nil)

	var fields map[string]any
	for _, msg := range h.bus.Snapshot() {
		if data, ok := msg.Data.(logbus.LogData); ok && data.Msg == "pass started" {
			fields = data.Fields
		}
	}
	require.NotNil(t, fields)
	assert.Equal(t, "fake", fields["provider"])
	assert.Equal(t, 2, fields["skipIds"])
}

func TestFarmClaimFailureDoesNotStart(t *testing.T) {
	h := newHarness(t, nil)
	h.prov.farms["1001"] = []model.FarmState{{ID: "f1", TimeEnd: "2024-09-30T11:00:00.000Z"}}
	h.prov.claimFarmErr = errUpstream

	pass := h.eng.RunPass(context.Background(), []string{blob(1001, "Alice")})

	assert.Equal(t, []string{"auth:1001", "farm_status:1001", "claim_farm:1001:f1", "tasks:1001"}, h.prov.Calls())
	assert.Equal(t, model.FarmActionFailed, pass.Runs[0].Farm.Action)
	assert.Equal(t, model.AccountStatusOK, pass.Runs[0].Status)
}

func TestFarmStatusFailureStillRunsQuests(t *testing.T) {
	h := newHarness(t, nil)
	h.prov.farmStatusErr = errUpstream
	h.prov.tasks = []model.Quest{{ID: "q1", Description: "Follow"}}

	pass := h.eng.RunPass(context.Background(), []string{blob(1001, "Alice")})

	assert.Equal(t, []string{"auth:1001", "farm_status:1001", "tasks:1001", "start_task:1001:q1", "claim_task:1001:q1"}, h.prov.Calls())
	assert.Equal(t, model.FarmActionFailed, pass.Runs[0].Farm.Action)
	assert.Equal(t, 1, pass.Runs[0].Quests.Claimed)
	assert.True(t, h.logged(logbus.LevelError, "Get farming status failed"))
}

func TestQuestsSkipListedAndStartBeforeClaim(t *testing.T) {
	h := newHarness(t, nil)
	h.prov.farms["1001"] = []model.FarmState{{ID: "f1", TimeEnd: "2024-09-30T14:00:00.000Z"}}
	h.prov.tasks = []model.Quest{
		{ID: skippedQuestID, Description: "Connect wallet"},
		{ID: "q1", Description: "Follow on X", Reward: model.QuestReward{Amount: 100}},
		{ID: "q2", Description: "Join channel", Reward: model.QuestReward{Amount: 150}},
	}
	h.prov.claimAmount["q2"] = 175

	pass := h.eng.RunPass(context.Background(), []string{blob(1001, "Alice")})

	assert.Equal(t, []string{
		"auth:1001", "farm_status:1001", "tasks:1001",
		"start_task:1001:q1", "claim_task:1001:q1",
		"start_task:1001:q2", "claim_task:1001:q2",
	}, h.prov.Calls())
	q := pass.Runs[0].Quests
	assert.Equal(t, 3, q.Listed)
	assert.Equal(t, 1, q.Skipped)
	assert.Equal(t, 2, q.Claimed)
	assert.Equal(t, 275.0, q.Reward)
	assert.True(t, h.logged(logbus.LevelWarn, "Ignore the mission with ID "+skippedQuestID))
	// 响应没有 amount 时用任务自带的奖励
	assert.True(t, h.logged(logbus.LevelSuccess, "Follow on X success | Reward 100 SOON"))
	assert.True(t, h.logged(logbus.LevelSuccess, "Join channel success | Reward 175 SOON"))
}

func TestQuestStartFailureStillClaims(t *testing.T) {
	h := newHarness(t, nil)
	h.prov.farms["1001"] = []model.FarmState{{ID: "f1", TimeEnd: "2024-09-30T14:00:00.000Z"}}
	h.prov.tasks = []model.Quest{{ID: "q1", Description: "Follow"}, {ID: "q2", Description: "Join"}}
	h.prov.startTaskErr["q1"] = errUpstream
	h.prov.claimTaskErr["q1"] = errUpstream

	pass := h.eng.RunPass(context.Background(), []string{blob(1001, "Alice")})

	assert.Equal(t, []string{
		"auth:1001", "farm_status:1001", "tasks:1001",
		"start_task:1001:q1", "claim_task:1001:q1",
		"start_task:1001:q2", "claim_task:1001:q2",
	}, h.prov.Calls())
	assert.Equal(t, 1, pass.Runs[0].Quests.Failed)
	assert.Equal(t, 1, pass.Runs[0].Quests.Claimed)
	assert.True(t, h.logged(logbus.LevelError, "Start mission Follow failure"))
}

func TestQuestListFailureIsLogged(t *testing.T) {
	h := newHarness(t, nil)
	h.prov.farms["1001"] = []model.FarmState{{ID: "f1", TimeEnd: "2024-09-30T14:00:00.000Z"}}
	h.prov.tasksErr = errUpstream

	pass := h.eng.RunPass(context.Background(), []string{blob(1001, "Alice")})

	assert.Equal(t, errUpstream.Error(), pass.Runs[0].Quests.Error)
	assert.True(t, h.logged(logbus.LevelError, "Do not get the mission list"))
}

func TestQuestCycleRepeatsIdentically(t *testing.T) {
	h := newHarness(t, nil)
	h.prov.tasks = []model.Quest{{ID: skippedQuestID}, {ID: "q1"}}
	sess := model.Session{AccessToken: "tok", AccountID: "1001"}

	h.eng.runQuestCycle(context.Background(), sess)
	first := h.prov.Calls()
	h.eng.runQuestCycle(context.Background(), sess)
	all := h.prov.Calls()

	require.Len(t, all, 2*len(first))
	assert.Equal(t, first, all[len(first):])
}

func TestAuthFailureSkipsAccountWork(t *testing.T) {
	h := newHarness(t, nil)
	h.prov.authErr["1001"] = errUpstream

	pass := h.eng.RunPass(context.Background(), []string{blob(1001, "Alice"), blob(1002, "Bob")})

	calls := h.prov.Calls()
	assert.Equal(t, "auth:1001", calls[0])
	assert.Equal(t, "auth:1002", calls[1])
	assert.Equal(t, model.AccountStatusAuthFailed, pass.Runs[0].Status)
	assert.Equal(t, model.AccountStatusOK, pass.Runs[1].Status)
	assert.True(t, h.logged(logbus.LevelError, "Login fails for account 1001"))
	assert.True(t, h.logged(logbus.LevelError, "Authentication error"))
	assert.Equal(t, 1, pass.Failed)
}

func TestMalformedCredentialDoesNotStopPass(t *testing.T) {
	h := newHarness(t, nil)

	pass := h.eng.RunPass(context.Background(), []string{"garbage", blob(1002, "Bob")})

	require.Len(t, pass.Runs, 2)
	assert.Equal(t, model.AccountStatusMalformed, pass.Runs[0].Status)
	assert.Equal(t, model.AccountStatusOK, pass.Runs[1].Status)
	assert.Equal(t, "auth:1002", h.prov.Calls()[0])
	assert.True(t, h.logged(logbus.LevelError, "Account 1 skipped"))
	assert.Equal(t, []string{"========== Account 2 | Bob =========="}, h.banners())
}

func TestPanicInAccountIsContained(t *testing.T) {
	h := newHarness(t, nil)
	h.prov.authPanic["1001"] = true

	pass := h.eng.RunPass(context.Background(), []string{blob(1001, "Alice"), blob(1002, "Bob")})

	assert.Equal(t, model.AccountStatusPanicked, pass.Runs[0].Status)
	assert.Equal(t, "boom", pass.Runs[0].Error)
	assert.Equal(t, model.AccountStatusOK, pass.Runs[1].Status)
}

func TestTwoAccountPass(t *testing.T) {
	rec := &recordingRecorder{}
	notif := &recordingNotifier{}
	h := newHarness(t, func(o *Options) {
		o.Recorder = rec
		o.Notifier = notif
	})
	h.prov.farms["1002"] = []model.FarmState{{ID: "f2", TimeEnd: "2024-09-30T11:59:59.000Z"}}
	h.prov.tasks = []model.Quest{{ID: skippedQuestID}, {ID: "q1", Reward: model.QuestReward{Amount: 100}}}

	pass := h.eng.RunPass(context.Background(), []string{blob(1001, "Alice"), blob(1002, "Bob")})

	assert.Equal(t, []string{
		"auth:1001", "farm_status:1001", "start_farm:1001", "tasks:1001", "start_task:1001:q1", "claim_task:1001:q1",
		"auth:1002", "farm_status:1002", "claim_farm:1002:f2", "start_farm:1002", "tasks:1002", "start_task:1002:q1", "claim_task:1002:q1",
	}, h.prov.Calls())
	assert.Equal(t, []time.Duration{time.Second, time.Second}, h.clock.sleeps)
	assert.Equal(t, []string{
		"========== Account 1 | Alice ==========",
		"========== Account 2 | Bob ==========",
	}, h.banners())

	assert.Equal(t, 2, pass.Accounts)
	assert.Equal(t, 2, pass.Succeeded)
	assert.Equal(t, 2, pass.FarmsStarted)
	assert.Equal(t, 1, pass.FarmsClaimed)
	assert.Equal(t, 2, pass.QuestsClaimed)
	assert.Equal(t, testNow, pass.StartedAt)
	assert.Equal(t, testNow.Add(2*time.Second), pass.FinishedAt)

	require.Len(t, rec.passes, 1)
	assert.Equal(t, pass.ID, rec.passes[0].ID)
	require.Len(t, notif.passes, 1)

	state := h.eng.State()
	require.NotNil(t, state.LastSummary)
	assert.Equal(t, pass.ID, state.LastSummary.ID)
	assert.Empty(t, state.PassID)
}

func TestCanceledPassIsStillRecorded(t *testing.T) {
	rec := &recordingRecorder{}
	h := newHarness(t, func(o *Options) { o.Recorder = rec })
	ctx, cancel := context.WithCancel(context.Background())
	h.clock.onSleep = func(time.Duration) { cancel() }

	pass := h.eng.RunPass(ctx, []string{blob(1001, "Alice"), blob(1002, "Bob")})

	assert.Equal(t, 1, pass.Accounts)
	require.Len(t, rec.passes, 1)
	assert.NoError(t, rec.ctxErr)
}

func TestCountdownPrintsEverySecond(t *testing.T) {
	h := newHarness(t, nil)

	ok := h.eng.countdown(context.Background(), 3*time.Second)

	require.True(t, ok)
	assert.Equal(t,
		"\r===== Wait 3 seconds to continue the loop ====="+
			"\r===== Wait 2 seconds to continue the loop ====="+
			"\r===== Wait 1 seconds to continue the loop ====="+
			"\r===== Wait 0 seconds to continue the loop =====\n",
		h.out.String())
	assert.Len(t, h.clock.sleeps, 3)
	assert.Equal(t, testNow.Add(3*time.Second), h.eng.State().NextPassAt)
}

func writeCredentials(t *testing.T, lines ...string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "data.txt")
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(lines, "\r\n")+"\n\n"), 0o600))
	return path
}

func TestRunOnceStopsAfterOnePass(t *testing.T) {
	rec := &recordingRecorder{}
	path := writeCredentials(t, blob(1001, "Alice"), "", "garbage")
	h := newHarness(t, func(o *Options) {
		o.Recorder = rec
		o.Data.CredentialsPath = path
		o.Loop.Once = true
	})

	require.NoError(t, h.eng.Run(context.Background()))

	require.Len(t, rec.passes, 1)
	assert.Equal(t, 2, rec.passes[0].Accounts)
	assert.False(t, h.eng.State().Running)
	assert.NotContains(t, h.out.String(), "Wait")
}

func TestRunCountsDownBetweenPasses(t *testing.T) {
	path := writeCredentials(t, blob(1001, "Alice"))
	h := newHarness(t, func(o *Options) {
		o.Data.CredentialsPath = path
		o.Loop.CycleWaitMinutes = 1
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sleeps := 0
	h.clock.onSleep = func(time.Duration) {
		sleeps++
		// 1 次账号间停顿 + 60 次倒计时
		if sleeps == 61 {
			cancel()
		}
	}

	err := h.eng.Run(ctx)

	require.ErrorIs(t, err, context.Canceled)
	out := h.out.String()
	assert.Contains(t, out, "\r===== Wait 60 seconds to continue the loop =====")
	assert.Contains(t, out, "\r===== Wait 1 seconds to continue the loop =====")
	assert.NotContains(t, out, "Wait 0 seconds")
	assert.Equal(t, []string{"auth:1001", "farm_status:1001", "start_farm:1001", "tasks:1001"}, h.prov.Calls())
}

func TestRunFailsOnUnreadableCredentials(t *testing.T) {
	h := newHarness(t, func(o *Options) {
		o.Data.CredentialsPath = filepath.Join(t.TempDir(), "missing.txt")
	})

	err := h.eng.Run(context.Background())

	require.Error(t, err)
	assert.True(t, errors.Is(err, fs.ErrNotExist))
	assert.Empty(t, h.prov.Calls())
}

func TestLoopSettingsAreClamped(t *testing.T) {
	h := newHarness(t, nil)
	assert.Equal(t, model.LoopSettings{AccountPauseMs: 1000, CycleWaitMinutes: 480}, h.eng.LoopSettings())

	got := h.eng.SetLoopSettings(model.LoopSettings{AccountPauseMs: -5, CycleWaitMinutes: 5000})
	assert.Equal(t, model.LoopSettings{AccountPauseMs: 0, CycleWaitMinutes: 1440}, got)
	assert.Equal(t, time.Duration(0), h.eng.accountPause())
	assert.Equal(t, 24*time.Hour, h.eng.cycleWait())
}

func TestPassAgainstMockAPI(t *testing.T) {
	clock := newFakeClock(testNow)
	mock := mockapi.New(mockapi.Options{Now: clock.Now, Quests: mockapi.DefaultQuests()})
	mock.SetFarm("2002", "farm-old", testNow.Add(-time.Minute))
	srv := httptest.NewServer(mock.Handler())
	defer srv.Close()

	cfg := config.Default()
	cfg.Provider.BaseURL = srv.URL
	cfg.Limits.GlobalQPS = 1000
	prov := tonstation.New(cfg.Provider, cfg.Proxy, cfg.Limits, nil)

	eng := New(Options{
		Provider: prov,
		Clock:    clock,
		Out:      &bytes.Buffer{},
		Quests:   cfg.Quests,
	})
	pass := eng.RunPass(context.Background(), []string{blob(2001, "Carol"), blob(2002, "Dave")})

	assert.Equal(t, 2, pass.Succeeded)
	assert.Equal(t, 2, pass.FarmsStarted)
	assert.Equal(t, 1, pass.FarmsClaimed)
	assert.Equal(t, 4, pass.QuestsClaimed)

	farm, ok := mock.Farm("2001")
	require.True(t, ok)
	assert.NotEmpty(t, farm.ID)
	assert.Equal(t, 250.0, mock.Balance("2001"))
	assert.Equal(t, 1250.0, mock.Balance("2002"))

	for _, c := range mock.Calls() {
		assert.NotContains(t, c.Path, skippedQuestID)
		if q, _ := c.Body["questId"].(string); q != "" {
			assert.NotEqual(t, skippedQuestID, q)
		}
	}
}

func TestZeroAccountPauseFromConfigIsKept(t *testing.T) {
	zero := 0
	h := newHarness(t, func(o *Options) { o.Loop.AccountPauseMs = &zero })

	assert.Equal(t, 0, h.eng.LoopSettings().AccountPauseMs)
	h.eng.RunPass(context.Background(), []string{blob(1001, "Alice")})
	assert.Equal(t, []time.Duration{0}, h.clock.sleeps)
}
