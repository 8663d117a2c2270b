package model

type LoopSettings struct {
	// AccountPauseMs 两个账号之间的停顿（毫秒），0 表示不停顿。
	AccountPauseMs int `json:"accountPauseMs"`
	// CycleWaitMinutes 一轮结束后到下一轮开始的等待（分钟）。
	CycleWaitMinutes int `json:"cycleWaitMinutes"`
}
