package notify

import (
	"context"

	"tonstation_bot/internal/model"
)

type Notifier interface {
	NotifyPassCompleted(ctx context.Context, pass model.PassSummary)
}
