package credentials

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"strings"

	"tonstation_bot/internal/model"
)

// MalformedCredentialError means the user descriptor embedded in a blob
// could not be decoded. It only ever aborts the account it belongs to.
type MalformedCredentialError struct {
	Reason string
	Err    error
}

func (e *MalformedCredentialError) Error() string {
	if e.Err != nil {
		return "malformed credential: " + e.Reason + ": " + e.Err.Error()
	}
	return "malformed credential: " + e.Reason
}

func (e *MalformedCredentialError) Unwrap() error { return e.Err }

// Load returns the non-blank lines of the credential file.
func Load(path string) ([]string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read credentials %s: %w", path, err)
	}
	return SplitLines(string(b)), nil
}

func SplitLines(data string) []string {
	data = strings.ReplaceAll(data, "\r\n", "\n")
	data = strings.ReplaceAll(data, "\r", "\n")
	var out []string
	for _, line := range strings.Split(data, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		out = append(out, line)
	}
	return out
}

// Parse decodes the `user=<urlencoded-json>` segment of an init data blob.
func Parse(blob string) (model.Credential, error) {
	raw := strings.TrimSpace(blob)
	encoded, ok := userSegment(raw)
	if !ok {
		return model.Credential{}, &MalformedCredentialError{Reason: "missing user= segment"}
	}
	decoded, err := url.PathUnescape(encoded)
	if err != nil {
		return model.Credential{}, &MalformedCredentialError{Reason: "bad url encoding", Err: err}
	}
	var user model.UserDescriptor
	if err := json.Unmarshal([]byte(decoded), &user); err != nil {
		return model.Credential{}, &MalformedCredentialError{Reason: "bad user json", Err: err}
	}
	if user.ID == 0 {
		return model.Credential{}, &MalformedCredentialError{Reason: "user id is missing"}
	}
	return model.Credential{Raw: raw, User: user}, nil
}

func userSegment(raw string) (string, bool) {
	// 支持 "query_id=...&user=..." 以及直接以 "user=" 开头的两种格式
	idx := -1
	if strings.HasPrefix(raw, "user=") {
		idx = 0
	} else if i := strings.Index(raw, "&user="); i >= 0 {
		idx = i + 1
	}
	if idx < 0 {
		return "", false
	}
	rest := raw[idx+len("user="):]
	if end := strings.IndexByte(rest, '&'); end >= 0 {
		rest = rest[:end]
	}
	if rest == "" {
		return "", false
	}
	return rest, true
}
