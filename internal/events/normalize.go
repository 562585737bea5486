package events

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/example/ride-sync/internal/models"
)

var (
	ErrNotJSON     = errors.New("frame is not a json object")
	ErrMissingKind = errors.New("frame has no kind")
)

// Normalize turns one raw frame into a notification. The payload is passed
// through untouched; its shape is the reducer's concern.
func Normalize(raw []byte) (models.Notification, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return models.Notification{}, fmt.Errorf("%w: %v", ErrNotJSON, err)
	}
	if fields == nil {
		return models.Notification{}, ErrNotJSON
	}

	var kind string
	if k, ok := fields["kind"]; ok {
		if err := json.Unmarshal(k, &kind); err != nil {
			return models.Notification{}, fmt.Errorf("%w: kind is not a string", ErrMissingKind)
		}
	}
	if strings.TrimSpace(kind) == "" {
		return models.Notification{}, ErrMissingKind
	}

	n := models.Notification{Kind: kind}
	if u, ok := fields["user_id"]; ok {
		// user_id is informational; a non-string value is ignored rather than rejected.
		_ = json.Unmarshal(u, &n.UserID)
	}
	if p, ok := fields["payload"]; ok && string(p) != "null" {
		n.Payload = p
	}
	return n, nil
}
