package command

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Params holds one command's parameters as decoded from the bus. Numbers
// are expected as json.Number so their literal text survives encoding.
type Params map[string]any

// Has reports whether key is present with a non-null value.
func (p Params) Has(key string) bool {
	v, ok := p[key]
	return ok && v != nil
}

// Number returns the literal text of a numeric parameter.
func (p Params) Number(key string) (string, bool, error) {
	v, ok := p[key]
	if !ok || v == nil {
		return "", false, nil
	}
	switch n := v.(type) {
	case json.Number:
		if _, err := n.Float64(); err != nil {
			return "", true, invalid(key, "a number", v)
		}
		return n.String(), true, nil
	case float64:
		if math.IsNaN(n) || math.IsInf(n, 0) {
			return "", true, invalid(key, "a finite number", v)
		}
		return strconv.FormatFloat(n, 'f', -1, 64), true, nil
	case float32:
		return strconv.FormatFloat(float64(n), 'f', -1, 32), true, nil
	case int:
		return strconv.Itoa(n), true, nil
	case int64:
		return strconv.FormatInt(n, 10), true, nil
	default:
		return "", true, invalid(key, "a number", v)
	}
}

// Int returns the literal text of an integral parameter.
func (p Params) Int(key string) (string, bool, error) {
	s, ok, err := p.Number(key)
	if err != nil || !ok {
		return s, ok, err
	}
	if _, err := strconv.ParseInt(s, 10, 64); err != nil {
		return "", true, invalid(key, "an integer", p[key])
	}
	return s, true, nil
}

// String returns a non-empty string parameter.
func (p Params) String(key string) (string, bool, error) {
	v, ok := p[key]
	if !ok || v == nil {
		return "", false, nil
	}
	s, isString := v.(string)
	if !isString {
		return "", true, invalid(key, "a string", v)
	}
	if strings.TrimSpace(s) == "" {
		return "", false, nil
	}
	return s, true, nil
}

// Names returns a string or list-of-strings parameter as a slice.
func (p Params) Names(key string) ([]string, bool, error) {
	v, ok := p[key]
	if !ok || v == nil {
		return nil, false, nil
	}
	switch n := v.(type) {
	case string:
		if strings.TrimSpace(n) == "" {
			return nil, false, nil
		}
		return []string{n}, true, nil
	case []string:
		if len(n) == 0 {
			return nil, false, nil
		}
		return n, true, nil
	case []any:
		out := make([]string, 0, len(n))
		for _, item := range n {
			s, isString := item.(string)
			if !isString {
				return nil, true, invalid(key, "a list of strings", v)
			}
			out = append(out, s)
		}
		if len(out) == 0 {
			return nil, false, nil
		}
		return out, true, nil
	default:
		return nil, true, invalid(key, "a string or list of strings", v)
	}
}

func (p Params) requireNumber(key string) (string, error) {
	s, ok, err := p.Number(key)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", missing(key)
	}
	return s, nil
}

func (p Params) requireInt(key string) (string, error) {
	s, ok, err := p.Int(key)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", missing(key)
	}
	return s, nil
}

func (p Params) requireString(key string) (string, error) {
	s, ok, err := p.String(key)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", missing(key)
	}
	return s, nil
}

// stringOr returns the string parameter or def when absent.
func (p Params) stringOr(key, def string) (string, error) {
	s, ok, err := p.String(key)
	if err != nil {
		return "", err
	}
	if !ok {
		return def, nil
	}
	return s, nil
}

func missing(key string) error {
	return fmt.Errorf("%w: %s is required", ErrInvalidParameter, key)
}

func invalid(key, want string, got any) error {
	return fmt.Errorf("%w: %s must be %s, got %T", ErrInvalidParameter, key, want, got)
}
