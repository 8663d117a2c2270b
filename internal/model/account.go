package model

import (
	"strconv"
	"time"
)

// UserDescriptor is the Telegram user object embedded in the init data.
type UserDescriptor struct {
	ID        int64  `json:"id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name,omitempty"`
	Username  string `json:"username,omitempty"`
}

func (u UserDescriptor) IDString() string {
	return strconv.FormatInt(u.ID, 10)
}

// Credential is one line of the credential file.
type Credential struct {
	Raw  string         `json:"-"`
	User UserDescriptor `json:"user"`
}

type Session struct {
	AccessToken string `json:"-"`
	AccountID   string `json:"accountId"`
}

type AccountStatus string

const (
	AccountStatusOK         AccountStatus = "ok"
	AccountStatusMalformed  AccountStatus = "malformed"
	AccountStatusAuthFailed AccountStatus = "auth_failed"
	AccountStatusPanicked   AccountStatus = "panicked"
)

// AccountRun is the outcome of processing one account in one pass.
type AccountRun struct {
	ID         string        `json:"id"`
	PassID     string        `json:"passId"`
	Index      int           `json:"index"`
	AccountID  string        `json:"accountId,omitempty"`
	FirstName  string        `json:"firstName,omitempty"`
	Status     AccountStatus `json:"status"`
	Farm       FarmOutcome   `json:"farm"`
	Quests     QuestOutcome  `json:"quests"`
	Error      string        `json:"error,omitempty"`
	StartedAt  time.Time     `json:"startedAt"`
	FinishedAt time.Time     `json:"finishedAt"`
}
