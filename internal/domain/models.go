// Package domain defines the persisted shapes of the collection game: group
// tunables, draw accounting, catalog characters and pending exchange
// requests. Values are stored in the key-value layer with msgpack, so every
// persisted struct carries msgpack tags; the json tags serve the read-only
// HTTP API.
package domain

import "time"

// GlobalGroup is the group id used when an event carries no group.
const GlobalGroup = "global"

// Gender of a catalog character.
type Gender string

const (
	GenderMale    Gender = "male"
	GenderFemale  Gender = "female"
	GenderUnknown Gender = "unknown"
)

// ParseGender maps the catalog's gender field ("男"/"女" or english words)
// onto Gender. Anything unrecognized is GenderUnknown.
func ParseGender(s string) Gender {
	switch s {
	case "男", "male", "m", "M":
		return GenderMale
	case "女", "female", "f", "F":
		return GenderFemale
	default:
		return GenderUnknown
	}
}

// Character is an immutable catalog record.
type Character struct {
	ID     int      `json:"id"`
	Name   string   `json:"name"`
	Gender Gender   `json:"gender"`
	Heat   int      `json:"heat,omitempty"`
	Images []string `json:"images,omitempty"`
}

// GroupConfig holds per-group tunables. A zero field means "not configured";
// Resolve fills it from the process defaults.
//
// Fields:
//   - DrawHourlyLimit: draws per user per wall-clock hour.
//   - DrawCooldown: seconds between two draws anywhere in the group (floor 2s).
//   - HaremMaxSize: owned-character capacity, also caps the wish list.
//   - DrawScope: restricts draws to the top-N characters by heat; 0 = whole pool.
type GroupConfig struct {
	DrawHourlyLimit int `msgpack:"draw_hourly_limit,omitempty" json:"draw_hourly_limit"`
	DrawCooldown    int `msgpack:"draw_cooldown,omitempty"     json:"draw_cooldown"`
	HaremMaxSize    int `msgpack:"harem_max_size,omitempty"    json:"harem_max_size"`
	DrawScope       int `msgpack:"draw_scope,omitempty"        json:"draw_scope,omitempty"`
}

// Resolve returns a copy of c with unset fields replaced by def.
func (c GroupConfig) Resolve(def GroupConfig) GroupConfig {
	if c.DrawHourlyLimit <= 0 {
		c.DrawHourlyLimit = def.DrawHourlyLimit
	}
	if c.DrawCooldown <= 0 {
		c.DrawCooldown = def.DrawCooldown
	}
	if c.HaremMaxSize <= 0 {
		c.HaremMaxSize = def.HaremMaxSize
	}
	if c.DrawScope <= 0 {
		c.DrawScope = def.DrawScope
	}
	return c
}

// DrawStatus is the per user-group hourly draw counter.
type DrawStatus struct {
	Bucket string `msgpack:"bucket"`
	Count  int    `msgpack:"count"`
}

// ExchangeRequest is a pending two-party trade, keyed by the message id of
// the announcement that proposed it.
type ExchangeRequest struct {
	MessageID     string    `msgpack:"message_id"     json:"message_id"`
	FromUser      string    `msgpack:"from_uid"       json:"from_user"`
	ToUser        string    `msgpack:"to_uid"         json:"to_user"`
	FromCharacter string    `msgpack:"from_cid"       json:"from_character"`
	ToCharacter   string    `msgpack:"to_cid"         json:"to_character"`
	CreatedAt     time.Time `msgpack:"ts"             json:"created_at"`
}

// Expired reports whether the request is older than ttl at now.
func (r ExchangeRequest) Expired(now time.Time, ttl time.Duration) bool {
	return now.Sub(r.CreatedAt) > ttl
}

// ExchangeIndexEntry tracks one pending request in the age-ordered index.
type ExchangeIndexEntry struct {
	MessageID string    `msgpack:"id"`
	CreatedAt time.Time `msgpack:"ts"`
}

// KVEntry is the SQLite row backing the key-value store.
type KVEntry struct {
	Key       string    `gorm:"type:varchar(255);primaryKey"`
	Value     []byte    `gorm:"type:blob;not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

// TableName returns the database table name for KVEntry.
func (KVEntry) TableName() string { return "kv_entries" }
