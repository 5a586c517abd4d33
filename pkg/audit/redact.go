package audit

import (
	"encoding/json"
	"log/slog"
	"math"
	"reflect"
	"regexp"
	"strconv"
	"strings"
	"unicode"
)

// Redacted replaces every sensitive value before it reaches a sink.
const Redacted = "[REDACTED]"

var sensitiveKeys = []string{
	"password", "passwd", "token", "secret", "key", "auth", "credential",
	"cookie", "session", "authorization", "client_secret", "api_key",
	"apikey", "private", "signature", "jwt", "otp",
}

var (
	schemeToken = regexp.MustCompile(`(?i)\b(bearer|oauth|token)\s+[A-Za-z0-9\-._~+/]+=*`)
	opaqueRun   = regexp.MustCompile(`[A-Za-z0-9_\-]{32,}`)
)

// IsSensitiveKey reports whether a key name contains a sensitive term,
// case-insensitively.
func IsSensitiveKey(key string) bool {
	k := strings.ToLower(key)
	for _, s := range sensitiveKeys {
		if strings.Contains(k, s) {
			return true
		}
	}
	return false
}

// RedactString masks authorization scheme credentials and long opaque runs
// that look like tokens.
func RedactString(s string) string {
	s = schemeToken.ReplaceAllString(s, "$1 "+Redacted)
	return opaqueRun.ReplaceAllStringFunc(s, func(run string) string {
		if looksLikeToken(run) {
			return Redacted
		}
		return run
	})
}

// looksLikeToken keeps long hyphenated words (slugs) intact: a token mixes
// letters and digits.
func looksLikeToken(run string) bool {
	var letter, digit bool
	for _, r := range run {
		switch {
		case unicode.IsDigit(r):
			digit = true
		case unicode.IsLetter(r):
			letter = true
		}
	}
	return letter && digit
}

// Redact returns a sanitized deep copy of v. Values under sensitive keys are
// replaced wholesale at any depth; strings are scanned for tokens. Structs and
// typed collections are normalised through their JSON form first.
func Redact(v any) any {
	switch t := v.(type) {
	case nil:
		return nil
	case string:
		return RedactString(t)
	case bool, int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64, json.Number:
		return t
	case error:
		return RedactString(t.Error())
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			if IsSensitiveKey(k) {
				out[k] = Redacted
				continue
			}
			out[k] = Redact(val)
		}
		return out
	case map[string]string:
		out := make(map[string]any, len(t))
		for k, val := range t {
			if IsSensitiveKey(k) {
				out[k] = Redacted
				continue
			}
			out[k] = RedactString(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = Redact(val)
		}
		return out
	case []string:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = RedactString(val)
		}
		return out
	}

	if out, ok := viaJSON(v); ok {
		return out
	}
	return redactValue(reflect.ValueOf(v), 0)
}

func viaJSON(v any) (any, bool) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, false
	}
	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, false
	}
	return Redact(generic), true
}

const maxRedactDepth = 32

// redactValue walks values JSON cannot encode (NaN, channels, funcs...).
// It applies the same key rules and never formats a composite value as a
// whole.
func redactValue(rv reflect.Value, depth int) any {
	if !rv.IsValid() {
		return nil
	}
	if depth > maxRedactDepth {
		return Redacted
	}
	if rv.CanInterface() {
		switch rv.Kind() {
		case reflect.Struct, reflect.Map, reflect.Slice, reflect.Array, reflect.Pointer, reflect.Interface:
			if out, ok := viaJSON(rv.Interface()); ok {
				return out
			}
		}
	}

	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return nil
		}
		return redactValue(rv.Elem(), depth+1)
	case reflect.Struct:
		out := make(map[string]any, rv.NumField())
		rt := rv.Type()
		for i := 0; i < rt.NumField(); i++ {
			f := rt.Field(i)
			if !f.IsExported() {
				continue
			}
			name := f.Name
			if tag, _, _ := strings.Cut(f.Tag.Get("json"), ","); tag == "-" {
				continue
			} else if tag != "" {
				name = tag
			}
			if IsSensitiveKey(name) || IsSensitiveKey(f.Name) {
				out[name] = Redacted
				continue
			}
			out[name] = redactValue(rv.Field(i), depth+1)
		}
		return out
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return Redacted
		}
		out := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			k := iter.Key().String()
			if IsSensitiveKey(k) {
				out[k] = Redacted
				continue
			}
			out[k] = redactValue(iter.Value(), depth+1)
		}
		return out
	case reflect.Slice, reflect.Array:
		if rv.Kind() == reflect.Slice && rv.IsNil() {
			return nil
		}
		out := make([]any, rv.Len())
		for i := range out {
			out[i] = redactValue(rv.Index(i), depth+1)
		}
		return out
	case reflect.String:
		return RedactString(rv.String())
	case reflect.Bool:
		return rv.Bool()
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int()
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return rv.Uint()
	case reflect.Float32, reflect.Float64:
		f := rv.Float()
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return strconv.FormatFloat(f, 'g', -1, 64)
		}
		return f
	case reflect.Complex64, reflect.Complex128:
		return strconv.FormatComplex(rv.Complex(), 'g', -1, 128)
	}
	// chan, func, unsafe pointer
	return "<" + rv.Type().String() + ">"
}

// redactArgs sanitises slog-style key/value pairs.
func redactArgs(args []any) []any {
	out := make([]any, 0, len(args))
	for i := 0; i < len(args); i++ {
		switch a := args[i].(type) {
		case string:
			if i+1 >= len(args) {
				out = append(out, RedactString(a))
				continue
			}
			if IsSensitiveKey(a) {
				out = append(out, a, Redacted)
			} else {
				out = append(out, a, Redact(args[i+1]))
			}
			i++
		case slog.Attr:
			if IsSensitiveKey(a.Key) {
				out = append(out, slog.String(a.Key, Redacted))
			} else {
				out = append(out, slog.Any(a.Key, Redact(a.Value.Any())))
			}
		default:
			out = append(out, Redact(a))
		}
	}
	return out
}
