package store

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"sort"
)

// ErrUnsupportedKind is returned for store types outside none/string/hash/list/set.
var ErrUnsupportedKind = errors.New("不支持的 Redis 类型")

// Kind is the shape of a stored value.
type Kind int

const (
	KindNone Kind = iota
	KindString
	KindHash
	KindList
	KindSet
)

var kindNames = [...]string{"none", "string", "hash", "list", "set"}

func (k Kind) String() string {
	if k < KindNone || k > KindSet {
		return fmt.Sprintf("kind(%d)", int(k))
	}
	return kindNames[k]
}

// ParseKind maps a TYPE reply to a Kind.
func ParseKind(tag string) (Kind, error) {
	for i, name := range kindNames {
		if name == tag {
			return Kind(i), nil
		}
	}
	return KindNone, fmt.Errorf("%w: %s", ErrUnsupportedKind, tag)
}

// Value is one of StringValue, HashValue, ListValue or SetValue.
// A nil Value is the None kind: the key does not exist.
type Value interface {
	Kind() Kind
	isValue()
}

type (
	StringValue string
	HashValue   map[string]string
	ListValue   []string
	// SetValue holds sorted unique members, build it with NewSetValue.
	SetValue []string
)

func (StringValue) Kind() Kind { return KindString }
func (HashValue) Kind() Kind   { return KindHash }
func (ListValue) Kind() Kind   { return KindList }
func (SetValue) Kind() Kind    { return KindSet }

func (StringValue) isValue() {}
func (HashValue) isValue()   {}
func (ListValue) isValue()   {}
func (SetValue) isValue()    {}

// NewSetValue sorts and de-duplicates members.
func NewSetValue(members ...string) SetValue {
	out := slices.Clone(members)
	sort.Strings(out)
	return SetValue(slices.Compact(out))
}

// KindOf returns KindNone for a nil value.
func KindOf(v Value) Kind {
	if v == nil {
		return KindNone
	}
	return v.Kind()
}

// Empty reports whether writing v would leave the key absent.
func Empty(v Value) bool {
	switch x := v.(type) {
	case nil:
		return true
	case HashValue:
		return len(x) == 0
	case ListValue:
		return len(x) == 0
	case SetValue:
		return len(x) == 0
	}
	return false
}

// EmptyValue is the template value of a new key of the given kind.
func EmptyValue(kind Kind) Value {
	switch kind {
	case KindString:
		return StringValue("")
	case KindHash:
		return HashValue{}
	case KindList:
		return ListValue{}
	case KindSet:
		return SetValue{}
	}
	return nil
}

// Equal compares kind and content.
func Equal(a, b Value) bool {
	if KindOf(a) != KindOf(b) {
		return false
	}
	switch x := a.(type) {
	case nil:
		return true
	case StringValue:
		return x == b.(StringValue)
	case HashValue:
		return maps.Equal(x, b.(HashValue))
	case ListValue:
		return slices.Equal(x, b.(ListValue))
	case SetValue:
		return slices.Equal(x, b.(SetValue))
	}
	return false
}

// Normalize turns a TYPE tag and the raw getter reply into a Value.
func Normalize(tag string, raw interface{}) (Value, error) {
	kind, err := ParseKind(tag)
	if err != nil {
		return nil, err
	}
	switch kind {
	case KindNone:
		return nil, nil
	case KindString:
		if s, ok := raw.(string); ok {
			return StringValue(s), nil
		}
	case KindHash:
		if m, ok := raw.(map[string]string); ok {
			return HashValue(m), nil
		}
	case KindList:
		if l, ok := raw.([]string); ok {
			return ListValue(l), nil
		}
	case KindSet:
		if l, ok := raw.([]string); ok {
			return NewSetValue(l...), nil
		}
	}
	return nil, fmt.Errorf("%s 类型的值格式错误: %T", kind, raw)
}
