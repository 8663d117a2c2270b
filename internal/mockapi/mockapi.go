package mockapi

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"tonstation_bot/internal/credentials"
	"tonstation_bot/internal/model"
)

// Call is one request received by the mock, in arrival order.
type Call struct {
	Method string         `json:"method"`
	Path   string         `json:"path"`
	UserID string         `json:"userId,omitempty"`
	Body   map[string]any `json:"body,omitempty"`
}

type Options struct {
	Now          func() time.Time
	FarmDuration time.Duration
	FarmReward   float64
	Quests       []model.Quest
}

type farm struct {
	ID      string
	TimeEnd time.Time
}

type userState struct {
	farm    *farm
	started map[string]bool
	claimed map[string]bool
	balance float64
}

// Server is an in-memory imitation of the TON Station REST API.
type Server struct {
	mu       sync.Mutex
	now      func() time.Time
	duration time.Duration
	reward   float64
	quests   []model.Quest
	users    map[string]*userState
	reject   map[string]bool
	failures map[string]int
	calls    []Call
	seq      int
}

func New(opts Options) *Server {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.FarmDuration <= 0 {
		opts.FarmDuration = 8 * time.Hour
	}
	if opts.FarmReward <= 0 {
		opts.FarmReward = 1000
	}
	return &Server{
		now:      opts.Now,
		duration: opts.FarmDuration,
		reward:   opts.FarmReward,
		quests:   append([]model.Quest(nil), opts.Quests...),
		users:    make(map[string]*userState),
		reject:   make(map[string]bool),
		failures: make(map[string]int),
	}
}

func DefaultQuests() []model.Quest {
	return []model.Quest{
		{ID: "66dad41d9b1e65019ad30629", Project: "tonstation", Description: "Connect wallet", Reward: model.QuestReward{Amount: 500}},
		{ID: "q-follow-x", Project: "tonstation", Description: "Follow on X", Reward: model.QuestReward{Amount: 100}},
		{ID: "q-join-channel", Project: "tonstation", Description: "Join channel", Reward: model.QuestReward{Amount: 150}},
	}
}

// RejectAuth makes authentication fail with 401 for userID.
func (s *Server) RejectAuth(userID string) {
	s.mu.Lock()
	s.reject[userID] = true
	s.mu.Unlock()
}

// FailNext makes the next n requests to path answer 500.
func (s *Server) FailNext(path string, n int) {
	s.mu.Lock()
	s.failures[path] += n
	s.mu.Unlock()
}

func (s *Server) SetFarm(userID, farmID string, timeEnd time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.userLocked(userID).farm = &farm{ID: farmID, TimeEnd: timeEnd}
}

func (s *Server) Farm(userID string) (model.FarmState, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := s.users[userID]
	if u == nil || u.farm == nil {
		return model.FarmState{}, false
	}
	return model.FarmState{ID: u.farm.ID, TimeEnd: u.farm.TimeEnd.UTC().Format(time.RFC3339Nano)}, true
}

func (s *Server) Balance(userID string) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u := s.users[userID]; u != nil {
		return u.balance
	}
	return 0
}

func (s *Server) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Call(nil), s.calls...)
}

func TokenFor(userID string) string {
	return "mock_token_" + userID
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	})
	mux.HandleFunc("/userprofile/api/v1/users/auth", s.handleAuth)
	mux.HandleFunc("/farming/api/v1/farming/start", s.authed(s.handleStartFarm))
	mux.HandleFunc("/farming/api/v1/farming/claim", s.authed(s.handleClaimFarm))
	mux.HandleFunc("/farming/api/v1/farming/", s.authed(s.handleFarmRunning))
	mux.HandleFunc("/quests/api/v1/quests", s.authed(s.handleQuests))
	mux.HandleFunc("/quests/api/v1/start", s.authed(s.handleStartQuest))
	mux.HandleFunc("/quests/api/v1/claim", s.authed(s.handleClaimQuest))
	return s.recordCalls(mux)
}

func (s *Server) recordCalls(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}
		var body map[string]any
		if r.Method == http.MethodPost {
			_ = json.NewDecoder(r.Body).Decode(&body)
		}
		call := Call{Method: r.Method, Path: r.URL.Path, Body: body}
		if v, ok := body["userId"].(string); ok {
			call.UserID = v
		} else if v := r.URL.Query().Get("userId"); v != "" {
			call.UserID = v
		} else if strings.HasSuffix(r.URL.Path, "/running") {
			call.UserID = strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/farming/api/v1/farming/"), "/running")
		}

		s.mu.Lock()
		s.calls = append(s.calls, call)
		fail := s.failures[r.URL.Path] > 0
		if fail {
			s.failures[r.URL.Path]--
		}
		s.mu.Unlock()

		if fail {
			writeJSON(w, http.StatusInternalServerError, map[string]any{"message": "injected failure"})
			return
		}
		ctx := withBody(r.Context(), body)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) authed(next func(w http.ResponseWriter, r *http.Request, userID string)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		userID, ok := strings.CutPrefix(token, "mock_token_")
		if !ok || userID == "" {
			writeJSON(w, http.StatusUnauthorized, map[string]any{"message": "unauthorized"})
			return
		}
		next(w, r, userID)
	}
}

func (s *Server) handleAuth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]any{"message": "method not allowed"})
		return
	}
	initData, _ := bodyFrom(r.Context())["initData"].(string)
	cred, err := credentials.Parse(initData)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"message": err.Error()})
		return
	}
	userID := cred.User.IDString()

	s.mu.Lock()
	rejected := s.reject[userID]
	if !rejected {
		s.userLocked(userID)
	}
	s.mu.Unlock()

	if rejected {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"message": "invalid init data"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"accessToken":  TokenFor(userID),
		"refreshToken": "mock_refresh_" + userID,
	})
}

func (s *Server) handleFarmRunning(w http.ResponseWriter, r *http.Request, userID string) {
	if r.Method != http.MethodGet || !strings.HasSuffix(r.URL.Path, "/running") {
		writeJSON(w, http.StatusNotFound, map[string]any{"message": "not found"})
		return
	}
	s.mu.Lock()
	u := s.userLocked(userID)
	data := []map[string]any{}
	if u.farm != nil {
		data = append(data, map[string]any{
			"_id":     u.farm.ID,
			"userId":  userID,
			"timeEnd": u.farm.TimeEnd.UTC().Format("2006-01-02T15:04:05.000Z"),
		})
	}
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{"code": 200, "data": data})
}

func (s *Server) handleStartFarm(w http.ResponseWriter, r *http.Request, userID string) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]any{"message": "method not allowed"})
		return
	}
	s.mu.Lock()
	u := s.userLocked(userID)
	if u.farm != nil {
		s.mu.Unlock()
		writeJSON(w, http.StatusBadRequest, map[string]any{"message": "farming already running"})
		return
	}
	s.seq++
	u.farm = &farm{ID: "farm-" + userID + "-" + strconv.Itoa(s.seq), TimeEnd: s.now().Add(s.duration)}
	timeEnd := u.farm.TimeEnd
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]any{
		"code": 200,
		"data": map[string]any{"timeEnd": timeEnd.UTC().Format("2006-01-02T15:04:05.000Z")},
	})
}

func (s *Server) handleClaimFarm(w http.ResponseWriter, r *http.Request, userID string) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]any{"message": "method not allowed"})
		return
	}
	taskID, _ := bodyFrom(r.Context())["taskId"].(string)

	s.mu.Lock()
	u := s.userLocked(userID)
	switch {
	case u.farm == nil || u.farm.ID != taskID:
		s.mu.Unlock()
		writeJSON(w, http.StatusNotFound, map[string]any{"message": "farming not found"})
		return
	case s.now().Before(u.farm.TimeEnd):
		s.mu.Unlock()
		writeJSON(w, http.StatusBadRequest, map[string]any{"message": "farming not finished"})
		return
	}
	u.farm = nil
	u.balance += s.reward
	amount := s.reward
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]any{"code": 200, "data": map[string]any{"amount": amount}})
}

func (s *Server) handleQuests(w http.ResponseWriter, r *http.Request, userID string) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]any{"message": "method not allowed"})
		return
	}
	s.mu.Lock()
	u := s.userLocked(userID)
	out := make([]model.Quest, 0, len(s.quests))
	for _, q := range s.quests {
		if u.claimed[q.ID] {
			continue
		}
		out = append(out, q)
	}
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{"code": 200, "data": out})
}

func (s *Server) handleStartQuest(w http.ResponseWriter, r *http.Request, userID string) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]any{"message": "method not allowed"})
		return
	}
	questID, _ := bodyFrom(r.Context())["questId"].(string)

	s.mu.Lock()
	u := s.userLocked(userID)
	_, known := s.questLocked(questID)
	if known {
		u.started[questID] = true
	}
	s.mu.Unlock()

	if !known {
		writeJSON(w, http.StatusNotFound, map[string]any{"message": "quest not found"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"code": 200})
}

func (s *Server) handleClaimQuest(w http.ResponseWriter, r *http.Request, userID string) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]any{"message": "method not allowed"})
		return
	}
	questID, _ := bodyFrom(r.Context())["questId"].(string)

	s.mu.Lock()
	u := s.userLocked(userID)
	q, known := s.questLocked(questID)
	var status int
	var msg string
	switch {
	case !known:
		status, msg = http.StatusNotFound, "quest not found"
	case u.claimed[questID]:
		status, msg = http.StatusConflict, "quest already claimed"
	case !u.started[questID]:
		status, msg = http.StatusBadRequest, "quest not started"
	default:
		u.claimed[questID] = true
		u.balance += q.Reward.Amount
	}
	s.mu.Unlock()

	if status != 0 {
		writeJSON(w, status, map[string]any{"message": msg})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"code": 200, "data": map[string]any{"amount": q.Reward.Amount}})
}

func (s *Server) userLocked(userID string) *userState {
	u := s.users[userID]
	if u == nil {
		u = &userState{started: make(map[string]bool), claimed: make(map[string]bool)}
		s.users[userID] = u
	}
	return u
}

func (s *Server) questLocked(id string) (model.Quest, bool) {
	for _, q := range s.quests {
		if q.ID == id {
			return q, true
		}
	}
	return model.Quest{}, false
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
