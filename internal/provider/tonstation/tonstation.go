package tonstation

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"

	"tonstation_bot/internal/config"
	"tonstation_bot/internal/logbus"
	"tonstation_bot/internal/model"
	"tonstation_bot/internal/provider"
	"tonstation_bot/internal/utils"
)

const farmTaskID = "1"

type TonStationProvider struct {
	cfg     config.ProviderConfig
	client  *resty.Client
	limiter *rate.Limiter
	bus     *logbus.Bus
}

func New(cfg config.ProviderConfig, proxyCfg config.ProxyConfig, limits config.LimitsConfig, bus *logbus.Bus) *TonStationProvider {
	qps := limits.GlobalQPS
	if qps <= 0 {
		qps = 5
	}
	burst := limits.GlobalBurst
	if burst <= 0 {
		burst = 10
	}
	p := &TonStationProvider{
		cfg:     cfg,
		limiter: rate.NewLimiter(rate.Limit(qps), burst),
		bus:     bus,
	}
	p.client = p.newClient(proxyCfg)
	return p
}

func (p *TonStationProvider) Name() string { return "tonstation" }

type apiEnvelope[T any] struct {
	Code    any    `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
	Data    T      `json:"data"`
}

type authReq struct {
	InitData string `json:"initData"`
}

type authResp struct {
	AccessToken string `json:"accessToken"`
}

type farmReq struct {
	UserID string `json:"userId"`
	TaskID string `json:"taskId"`
}

type startFarmData struct {
	TimeEnd string `json:"timeEnd"`
}

type claimData struct {
	Amount float64 `json:"amount"`
}

type questReq struct {
	UserID  string `json:"userId"`
	QuestID string `json:"questId"`
	Project string `json:"project"`
}

func (p *TonStationProvider) Authenticate(ctx context.Context, initData string) (provider.AuthResult, error) {
	var resp authResp
	r, err := p.client.R().
		SetContext(ctx).
		SetBody(authReq{InitData: initData}).
		SetResult(&resp).
		Post("/userprofile/api/v1/users/auth")
	if err != nil {
		return provider.AuthResult{}, fmt.Errorf("authenticate: %w", err)
	}
	if r.StatusCode() != http.StatusOK {
		return provider.AuthResult{}, statusError("authenticate", r)
	}
	if resp.AccessToken == "" {
		return provider.AuthResult{}, errors.New("authenticate: empty access token")
	}
	return provider.AuthResult{AccessToken: resp.AccessToken}, nil
}

func (p *TonStationProvider) GetFarmStatus(ctx context.Context, sess model.Session) ([]model.FarmState, error) {
	var resp apiEnvelope[[]model.FarmState]
	r, err := p.authed(ctx, sess).
		SetPathParam("userId", sess.AccountID).
		SetResult(&resp).
		Get("/farming/api/v1/farming/{userId}/running")
	if err := check("get farm status", r, err); err != nil {
		return nil, err
	}
	return resp.Data, nil
}

func (p *TonStationProvider) StartFarm(ctx context.Context, sess model.Session) (provider.StartFarmResult, error) {
	var resp apiEnvelope[startFarmData]
	r, err := p.authed(ctx, sess).
		SetBody(farmReq{UserID: sess.AccountID, TaskID: farmTaskID}).
		SetResult(&resp).
		Post("/farming/api/v1/farming/start")
	if err := check("start farm", r, err); err != nil {
		return provider.StartFarmResult{}, err
	}
	// 2xx 即已开始；timeEnd 缺失或无法解析时返回零值，由调用方按“未知”处理
	timeEnd, err := provider.ParseTimeEnd(resp.Data.TimeEnd)
	if err != nil {
		if p.bus != nil {
			p.bus.Log(logbus.LevelDebug, "start farm: unreadable timeEnd", map[string]any{
				"timeEnd": resp.Data.TimeEnd,
				"error":   err.Error(),
			})
		}
		return provider.StartFarmResult{}, nil
	}
	return provider.StartFarmResult{TimeEnd: timeEnd}, nil
}

func (p *TonStationProvider) ClaimFarm(ctx context.Context, sess model.Session, farmID string) (provider.ClaimResult, error) {
	var resp apiEnvelope[claimData]
	r, err := p.authed(ctx, sess).
		SetBody(farmReq{UserID: sess.AccountID, TaskID: farmID}).
		SetResult(&resp).
		Post("/farming/api/v1/farming/claim")
	if err := check("claim farm", r, err); err != nil {
		return provider.ClaimResult{}, err
	}
	return provider.ClaimResult{Amount: resp.Data.Amount}, nil
}

func (p *TonStationProvider) GetTasks(ctx context.Context, sess model.Session) ([]model.Quest, error) {
	var resp apiEnvelope[[]model.Quest]
	r, err := p.authed(ctx, sess).
		SetQueryParam("userId", sess.AccountID).
		SetResult(&resp).
		Get("/quests/api/v1/quests")
	if err := check("get quests", r, err); err != nil {
		return nil, err
	}
	return resp.Data, nil
}

func (p *TonStationProvider) StartTask(ctx context.Context, sess model.Session, quest model.Quest) error {
	r, err := p.authed(ctx, sess).
		SetBody(questReq{UserID: sess.AccountID, QuestID: quest.ID, Project: quest.Project}).
		Post("/quests/api/v1/start")
	return check("start quest", r, err)
}

func (p *TonStationProvider) ClaimTask(ctx context.Context, sess model.Session, quest model.Quest) (provider.ClaimResult, error) {
	var resp apiEnvelope[claimData]
	r, err := p.authed(ctx, sess).
		SetBody(questReq{UserID: sess.AccountID, QuestID: quest.ID, Project: quest.Project}).
		SetResult(&resp).
		Post("/quests/api/v1/claim")
	if err := check("claim quest", r, err); err != nil {
		return provider.ClaimResult{}, err
	}
	return provider.ClaimResult{Amount: resp.Data.Amount}, nil
}

func (p *TonStationProvider) authed(ctx context.Context, sess model.Session) *resty.Request {
	return p.client.R().
		SetContext(ctx).
		SetAuthToken(sess.AccessToken)
}

func (p *TonStationProvider) newClient(proxyCfg config.ProxyConfig) *resty.Client {
	ua := utils.NormalizeMobileUserAgent(p.cfg.UserAgent)
	origin := strings.TrimRight(p.cfg.Origin, "/")
	if origin == "" {
		origin = strings.TrimRight(p.cfg.BaseURL, "/")
	}

	client := resty.New().
		SetBaseURL(p.cfg.BaseURL).
		SetTimeout(p.cfg.Timeout()).
		SetHeaders(map[string]string{
			"Accept":             "*/*",
			"Accept-Language":    "en-US,en;q=0.9",
			"Content-Type":       "application/json",
			"Origin":             origin,
			"Referer":            origin + "/app/",
			"Sec-Ch-Ua":          `"Not_A Brand";v="8", "Chromium";v="120"`,
			"Sec-Ch-Ua-Mobile":   "?1",
			"Sec-Ch-Ua-Platform": utils.SecChUaPlatform(ua),
			"Sec-Fetch-Dest":     "empty",
			"Sec-Fetch-Mode":     "cors",
			"Sec-Fetch-Site":     "same-origin",
			"User-Agent":         ua,
		})

	if proxyCfg.Global != "" {
		client.SetProxy(proxyCfg.Global)
	}

	client.OnBeforeRequest(func(_ *resty.Client, req *resty.Request) error {
		if err := p.limiter.Wait(req.Context()); err != nil {
			return err
		}
		if p.bus != nil {
			p.bus.Log(logbus.LevelDebug, "http request", map[string]any{
				"method": req.Method,
				"url":    req.URL,
			})
		}
		return nil
	})

	return client
}

func check(op string, r *resty.Response, err error) error {
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if !r.IsSuccess() {
		return statusError(op, r)
	}
	return nil
}

func statusError(op string, r *resty.Response) error {
	body := truncateRunes(strings.TrimSpace(r.String()), maxErrorBody)
	return &provider.StatusError{Op: op, StatusCode: r.StatusCode(), Body: body}
}

const maxErrorBody = 200

// truncateRunes cuts s to at most limit runes so multi-byte characters stay intact.
func truncateRunes(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	return string([]rune(s)[:limit]) + "..."
}
