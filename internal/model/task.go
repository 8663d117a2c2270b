package model

import "time"

// PassSummary aggregates one full iteration over the credential file.
type PassSummary struct {
	ID            string       `json:"id"`
	StartedAt     time.Time    `json:"startedAt"`
	FinishedAt    time.Time    `json:"finishedAt"`
	Accounts      int          `json:"accounts"`
	Succeeded     int          `json:"succeeded"`
	Failed        int          `json:"failed"`
	FarmsStarted  int          `json:"farmsStarted"`
	FarmsClaimed  int          `json:"farmsClaimed"`
	QuestsClaimed int          `json:"questsClaimed"`
	Runs          []AccountRun `json:"runs,omitempty"`
}

func (p *PassSummary) Add(run AccountRun) {
	p.Accounts++
	if run.Status == AccountStatusOK {
		p.Succeeded++
	} else {
		p.Failed++
	}
	if run.Farm.Claimed {
		p.FarmsClaimed++
	}
	if run.Farm.Action == FarmActionStarted || run.Farm.Action == FarmActionCycled {
		p.FarmsStarted++
	}
	p.QuestsClaimed += run.Quests.Claimed
	p.Runs = append(p.Runs, run)
}

type EngineState struct {
	Running     bool         `json:"running"`
	PassID      string       `json:"passId,omitempty"`
	NextPassAt  time.Time    `json:"nextPassAt,omitempty"`
	LastSummary *PassSummary `json:"lastSummary,omitempty"`
}
