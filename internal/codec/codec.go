package codec

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"unicode/utf8"

	"github.com/nlpodyssey/gopickle/pickle"
	"github.com/vmihailenco/msgpack/v5"
)

// Format names reported by Inspect.
const (
	FormatUTF8    = "utf-8"
	FormatPickle  = "pickle"
	FormatMsgpack = "msgpack"
	FormatRaw     = "raw"
)

var errInvalidUTF8 = errors.New("invalid utf-8")

type decoder struct {
	format string
	decode func([]byte) (string, error)
}

// chain is tried in order; the first decoder that does not fail wins.
var chain = []decoder{
	{FormatUTF8, decodeUTF8},
	{FormatPickle, decodePickle},
	{FormatMsgpack, decodeMsgpack},
}

// Decode returns a best-effort display string for an opaque payload.
func Decode(b []byte) string {
	text, _ := Inspect(b)
	return text
}

// Inspect is Decode plus the name of the interpreter that produced the text.
func Inspect(b []byte) (text string, format string) {
	for _, d := range chain {
		if s, err := safeDecode(d.decode, b); err == nil {
			return s, d.format
		}
	}
	return raw(b), FormatRaw
}

func safeDecode(fn func([]byte) (string, error), b []byte) (s string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("decoder panic: %v", r)
		}
	}()
	return fn(b)
}

func decodeUTF8(b []byte) (string, error) {
	if !utf8.Valid(b) {
		return "", errInvalidUTF8
	}
	return string(b), nil
}

func decodePickle(b []byte) (string, error) {
	v, err := pickle.Loads(string(b))
	if err != nil {
		return "", err
	}
	switch x := v.(type) {
	case nil:
		return "None", nil
	case string:
		return x, nil
	case *big.Int:
		return x.String(), nil
	default:
		return fmt.Sprint(x), nil
	}
}

func decodeMsgpack(b []byte) (string, error) {
	r := bytes.NewReader(b)
	dec := msgpack.NewDecoder(r)
	v, err := dec.DecodeInterface()
	if err != nil {
		return "", err
	}
	// trailing bytes mean the payload was not a single msgpack value
	if r.Len() != 0 {
		return "", fmt.Errorf("msgpack: %d trailing bytes", r.Len())
	}
	if s, ok := v.(string); ok {
		return s, nil
	}
	out, err := json.Marshal(jsonSafe(v))
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// jsonSafe rewrites msgpack maps with non-string keys so they can be marshaled.
func jsonSafe(v interface{}) interface{} {
	switch x := v.(type) {
	case map[interface{}]interface{}:
		m := make(map[string]interface{}, len(x))
		for k, val := range x {
			m[fmt.Sprint(k)] = jsonSafe(val)
		}
		return m
	case map[string]interface{}:
		for k, val := range x {
			x[k] = jsonSafe(val)
		}
		return x
	case []interface{}:
		for i, val := range x {
			x[i] = jsonSafe(val)
		}
		return x
	case []byte:
		return raw(x)
	default:
		return v
	}
}

func raw(b []byte) string {
	if len(b) == 0 {
		return ""
	}
	return "0x" + hex.EncodeToString(b)
}
