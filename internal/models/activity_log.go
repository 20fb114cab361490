package models

import (
	"context"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// ActivityAction is the kind of mutation recorded in the activity log.
type ActivityAction string

const (
	ActionCreate ActivityAction = "CREATE"
	ActionUpdate ActivityAction = "UPDATE"
	ActionDelete ActivityAction = "DELETE"
)

// Valid reports whether the action is known.
func (a ActivityAction) Valid() bool {
	switch a {
	case ActionCreate, ActionUpdate, ActionDelete:
		return true
	default:
		return false
	}
}

// Entity types recorded in the activity log and notifications.
const (
	EntityRequests      = "requests"
	EntityTasks         = "tasks"
	EntityNotifications = "notifications"
)

// Snapshot is a structured before/after view of an entity stored as JSON.
// A NULL column scans to nil; so does a column that is not a JSON object.
type Snapshot map[string]interface{}

// Value implements driver.Valuer.
func (s Snapshot) Value() (driver.Value, error) {
	if s == nil {
		return nil, nil
	}
	raw, err := json.Marshal(map[string]interface{}(s))
	if err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}
	return string(raw), nil
}

// Scan implements sql.Scanner.
func (s *Snapshot) Scan(src interface{}) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*s = nil
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		*s = nil
		return nil
	}
	*s = DecodeSnapshot(raw)
	return nil
}

// Normalize returns the snapshot as it reads back from storage: numbers become float64 and
// times become RFC 3339 strings. A snapshot that cannot be encoded is returned unchanged.
func (s Snapshot) Normalize() Snapshot {
	if s == nil {
		return nil
	}
	raw, err := json.Marshal(map[string]interface{}(s))
	if err != nil {
		return s
	}
	return DecodeSnapshot(raw)
}

// DecodeSnapshot parses raw JSON leniently, returning nil for anything that is not an object.
func DecodeSnapshot(raw []byte) Snapshot {
	if len(raw) == 0 {
		return nil
	}
	var out map[string]interface{}
	if err := json.Unmarshal(raw, &out); err != nil || out == nil {
		return nil
	}
	return Snapshot(out)
}

// ActivityLog is an immutable audit record of a mutation.
type ActivityLog struct {
	ID          string         `db:"id" json:"id"`
	UserID      *string        `db:"user_id" json:"user_id,omitempty"`
	UserName    string         `db:"user_name" json:"user_name"`
	UserEmail   string         `db:"user_email" json:"user_email"`
	Action      ActivityAction `db:"action" json:"action"`
	EntityType  string         `db:"entity_type" json:"entity_type"`
	EntityID    string         `db:"entity_id" json:"entity_id"`
	Description string         `db:"description" json:"description"`
	OldValues   Snapshot       `db:"old_values" json:"old_values"`
	NewValues   Snapshot       `db:"new_values" json:"new_values"`
	IPAddress   string         `db:"ip_address" json:"ip_address"`
	UserAgent   string         `db:"user_agent" json:"user_agent"`
	CreatedAt   time.Time      `db:"created_at" json:"created_at"`
	Client      *ClientInfo    `db:"-" json:"client,omitempty"`
}

// ClientInfo summarises the user agent that performed an action.
type ClientInfo struct {
	Browser string `json:"browser,omitempty"`
	Version string `json:"version,omitempty"`
	OS      string `json:"os,omitempty"`
	Mobile  bool   `json:"mobile"`
	Bot     bool   `json:"bot"`
}

// Origin describes where a mutation came from.
type Origin struct {
	IPAddress string
	UserAgent string
}

type originKey struct{}

// ContextWithOrigin attaches request origin metadata to ctx.
func ContextWithOrigin(ctx context.Context, origin Origin) context.Context {
	return context.WithValue(ctx, originKey{}, origin)
}

// OriginFromContext returns the origin attached to ctx, if any.
func OriginFromContext(ctx context.Context) Origin {
	origin, _ := ctx.Value(originKey{}).(Origin)
	return origin
}

// ActivityFilter captures activity log listing criteria.
type ActivityFilter struct {
	Search     string
	Action     ActivityAction
	EntityType string
	EntityID   string
	Page       int
	PageSize   int
}
