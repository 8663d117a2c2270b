package mockapi

import (
	"context"
	"encoding/json"
	"net/url"
	"strconv"
	"strings"

	"tonstation_bot/internal/model"
)

type bodyKey struct{}

func withBody(ctx context.Context, body map[string]any) context.Context {
	return context.WithValue(ctx, bodyKey{}, body)
}

func bodyFrom(ctx context.Context) map[string]any {
	body, _ := ctx.Value(bodyKey{}).(map[string]any)
	return body
}

// InitData builds a Telegram-style init data blob for a fake user.
func InitData(id int64, firstName string) string {
	user, _ := json.Marshal(model.UserDescriptor{ID: id, FirstName: firstName})
	return "query_id=AAE" + strconv.FormatInt(id, 10) +
		"&user=" + strings.ReplaceAll(url.QueryEscape(string(user)), "+", "%20") +
		"&auth_date=1727000000&hash=deadbeef"
}
