package analysis

import (
	"context"
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/PaesslerAG/jsonpath"
)

// accessor reads one candidate location out of a decoded payload.
// ok is false when the location is absent or null.
type accessor func(doc any) (v any, ok bool)

// path compiles a JSONPath expression into an accessor. Expressions are
// package constants, so a compile failure is a programming error.
func path(expr string) accessor {
	eval, err := jsonpath.New(expr)
	if err != nil {
		panic("analysis: bad path " + expr + ": " + err.Error())
	}
	return func(doc any) (any, bool) {
		if _, isObject := doc.(map[string]any); !isObject {
			return nil, false
		}
		v, err := eval(context.Background(), doc)
		if err != nil || v == nil {
			return nil, false
		}
		return v, true
	}
}

// firstDefined returns the first accessor result that is present.
func firstDefined(doc any, candidates []accessor) (any, bool) {
	for _, get := range candidates {
		if v, ok := get(doc); ok {
			return v, true
		}
	}
	return nil, false
}

// unwrap returns the nested "analysis" object when the service wraps its
// response, otherwise the payload itself.
func unwrap(payload any) any {
	obj, ok := payload.(map[string]any)
	if !ok {
		return payload
	}
	if inner, ok := obj["analysis"].(map[string]any); ok {
		return inner
	}
	return payload
}

// toFloat coerces a decoded JSON value to a finite float64.
func toFloat(v any) (float64, bool) {
	var f float64
	switch t := v.(type) {
	case float64:
		f = t
	case float32:
		f = float64(t)
	case int:
		f = float64(t)
	case int64:
		f = float64(t)
	case json.Number:
		parsed, err := t.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return 0, false
		}
		parsed, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func roundTo(v float64, decimals int) float64 {
	p := math.Pow(10, float64(decimals))
	return math.Round(v*p) / p
}
