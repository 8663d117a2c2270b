package model

type QuestReward struct {
	Amount float64 `json:"amount"`
}

type Quest struct {
	ID          string      `json:"id"`
	Project     string      `json:"project"`
	Description string      `json:"description"`
	Reward      QuestReward `json:"reward"`
}

type QuestOutcome struct {
	Listed  int     `json:"listed"`
	Skipped int     `json:"skipped"`
	Claimed int     `json:"claimed"`
	Failed  int     `json:"failed"`
	Reward  float64 `json:"reward"`
	Error   string  `json:"error,omitempty"`
}
