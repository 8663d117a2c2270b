package model

import "time"

// FarmState is one running farm instance as reported by the platform.
type FarmState struct {
	ID      string `json:"_id"`
	TimeEnd string `json:"timeEnd"`
}

type FarmAction string

const (
	FarmActionNone    FarmAction = ""
	FarmActionStarted FarmAction = "started"
	FarmActionWaiting FarmAction = "waiting"
	FarmActionCycled  FarmAction = "claimed_and_started"
	FarmActionFailed  FarmAction = "failed"
)

type FarmOutcome struct {
	Action  FarmAction `json:"action"`
	TimeEnd time.Time  `json:"timeEnd,omitempty"`
	Claimed bool       `json:"claimed,omitempty"`
	Amount  float64    `json:"amount,omitempty"`
	Error   string     `json:"error,omitempty"`
}
