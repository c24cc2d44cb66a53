package reply

import (
	"bytes"
	"encoding/json"
	"errors"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
)

var (
	// ErrDecodeAmbiguous classifies Passthrough results. It is never fatal.
	ErrDecodeAmbiguous   = errors.New("reply: ambiguous console output")
	ErrMalformedPosition = errors.New("reply: malformed position")
)

// Kind tags which variant of Result is set.
type Kind uint8

const (
	KindSuccess Kind = iota + 1
	KindFailure
	KindPassthrough
)

func (k Kind) String() string {
	switch k {
	case KindSuccess:
		return "success"
	case KindFailure:
		return "failure"
	case KindPassthrough:
		return "passthrough"
	default:
		return "unknown"
	}
}

// Result is the structured form of one console reply. Exactly one of Value,
// Message or Raw is meaningful, as selected by Kind.
type Result struct {
	Kind    Kind
	Value   any
	Message string
	Raw     string
}

func Success(v any) Result          { return Result{Kind: KindSuccess, Value: v} }
func Failure(msg string) Result     { return Result{Kind: KindFailure, Message: msg} }
func Passthrough(raw string) Result { return Result{Kind: KindPassthrough, Raw: raw} }

// Err returns ErrDecodeAmbiguous for Passthrough results and nil otherwise.
func (r Result) Err() error {
	if r.Kind == KindPassthrough {
		return ErrDecodeAmbiguous
	}
	return nil
}

const (
	successPrefix = "Success:"
	failurePrefix = "Failure:"
	failedPrefix  = "Failed:"
)

// Decode classifies raw console output. JSON wins over the text prefixes;
// anything unrecognized passes through unchanged.
func Decode(raw string) Result {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return Success(nil)
	}
	if v, ok := decodeJSON(trimmed); ok {
		return Success(v)
	}
	if rest, ok := strings.CutPrefix(trimmed, successPrefix); ok {
		return Success(strings.TrimSpace(rest))
	}
	for _, p := range []string{failurePrefix, failedPrefix} {
		if rest, ok := strings.CutPrefix(trimmed, p); ok {
			return Failure(strings.TrimSpace(rest))
		}
	}
	log.Warn().Str("component", "reply").Str("raw", raw).Msg("console reply is neither JSON nor prefixed")
	return Passthrough(raw)
}

func decodeJSON(s string) (any, bool) {
	if !json.Valid([]byte(s)) {
		return nil, false
	}
	dec := json.NewDecoder(strings.NewReader(s))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, false
	}
	return v, true
}

// ParsePosition reads the console's map syntax, e.g. "{x = 1.5, y = -2}".
// It returns every key or an error, never a partial map.
func ParsePosition(raw string) (map[string]float64, error) {
	body := strings.TrimSpace(raw)
	if strings.HasPrefix(body, "{") && strings.HasSuffix(body, "}") {
		body = strings.TrimSpace(body[1 : len(body)-1])
	}
	if body == "" {
		return nil, ErrMalformedPosition
	}
	segments, err := splitTopLevel(body)
	if err != nil {
		return nil, err
	}
	out := make(map[string]float64, len(segments))
	for _, seg := range segments {
		if strings.Count(seg, "=") != 1 {
			return nil, wrapPosition("segment %q needs exactly one '='", seg)
		}
		key, value, _ := strings.Cut(seg, "=")
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)
		if key == "" {
			return nil, wrapPosition("segment %q has an empty key", seg)
		}
		if !isNumberLiteral(value) {
			return nil, wrapPosition("value %q for %s is not numeric", value, key)
		}
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return nil, wrapPosition("value %q for %s is not numeric", value, key)
		}
		out[key] = f
	}
	return out, nil
}

// splitTopLevel splits on commas that are not nested inside braces.
func splitTopLevel(body string) ([]string, error) {
	var (
		out   []string
		depth int
		cur   bytes.Buffer
	)
	for _, r := range body {
		switch r {
		case '{':
			depth++
		case '}':
			depth--
			if depth < 0 {
				return nil, wrapPosition("unbalanced braces in %q", body)
			}
		case ',':
			if depth == 0 {
				out = append(out, cur.String())
				cur.Reset()
				continue
			}
		}
		cur.WriteRune(r)
	}
	if depth != 0 {
		return nil, wrapPosition("unbalanced braces in %q", body)
	}
	out = append(out, cur.String())
	return out, nil
}

func isNumberLiteral(s string) bool {
	return json.Valid([]byte(s)) && s != "" && (s[0] == '-' || (s[0] >= '0' && s[0] <= '9'))
}
