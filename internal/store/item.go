package store

import (
	"fmt"
	"strconv"
	"strings"
)

// Item is one store entry read at a point in time. Items are never mutated;
// the With* helpers return modified copies.
type Item struct {
	Store *Store `json:"-"`
	Key   string `json:"key"`
	Kind  Kind   `json:"-"`
	TTL   int64  `json:"ttl"` // -1 no expiry, 0 expired, >0 seconds remaining
	Value Value  `json:"-"`
}

// NewItem returns the template for a key about to be created.
func NewItem(kind Kind) *Item {
	return &Item{Key: "", Kind: kind, TTL: -1, Value: EmptyValue(kind)}
}

func (i *Item) WithKey(key string) *Item {
	c := *i
	c.Key = key
	return &c
}

func (i *Item) WithTTL(ttl int64) *Item {
	c := *i
	c.TTL = ttl
	return &c
}

// WithValue also updates Kind so the pair stays consistent.
func (i *Item) WithValue(v Value) *Item {
	c := *i
	c.Value = v
	c.Kind = KindOf(v)
	return &c
}

// Tooltip is the hover text of the item in a key list.
func (i *Item) Tooltip() string {
	return fmt.Sprintf("name: %s\ntype: %s\nTTL: %d", i.Key, i.Kind, i.TTL)
}

// FormatTTL renders a TTL for display, e.g. "TTL: 1 day, 2:03:04".
func FormatTTL(ttl int64) string {
	if ttl <= 0 {
		return "Persistent"
	}
	days := ttl / 86400
	rest := ttl % 86400
	clock := fmt.Sprintf("%d:%02d:%02d", rest/3600, rest%3600/60, rest%60)
	switch {
	case days == 1:
		return "TTL: 1 day, " + clock
	case days > 1:
		return fmt.Sprintf("TTL: %d days, %s", days, clock)
	}
	return "TTL: " + clock
}

// IncrBy adds step to a numeric string value. Integers stay integers; other
// numbers are handled as floats. ok is false when text is not a number.
func IncrBy(text string, step int64) (string, bool) {
	trimmed := strings.TrimSpace(text)
	if n, err := strconv.ParseInt(trimmed, 10, 64); err == nil {
		return strconv.FormatInt(n+step, 10), true
	}
	f, err := strconv.ParseFloat(trimmed, 64)
	if err != nil {
		return text, false
	}
	out := strconv.FormatFloat(f+float64(step), 'f', -1, 64)
	if !strings.ContainsAny(out, ".eEIN") {
		out += ".0"
	}
	return out, true
}
