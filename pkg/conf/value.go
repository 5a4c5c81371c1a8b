package conf

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Size constants in bytes
const (
	KB = uint64(1024)
	MB = 1024 * KB
	GB = 1024 * MB
	TB = 1024 * GB
)

// Time constants
const (
	day = 24 * time.Hour
)

// memoryRe matches size tokens like "128MB", "1GB", " 64 GB "
var memoryRe = regexp.MustCompile(`^\s*(\d+)\s*([kMGT]B)\s*$`)

// durationRe matches interval tokens like "150 ms", "5min", "2 h"
var durationRe = regexp.MustCompile(`^\s*(\d+)\s*(ms|s|min|h|d)\s*$`)

var memoryMultipliers = map[string]uint64{
	"kB": KB,
	"MB": MB,
	"GB": GB,
	"TB": TB,
}

var durationUnits = map[string]time.Duration{
	"ms":  time.Millisecond,
	"s":   time.Second,
	"min": time.Minute,
	"h":   time.Hour,
	"d":   day,
}

// Kind discriminates the variants of a configuration Value.
type Kind int

const (
	KindString Kind = iota
	KindBool
	KindInt
	KindFloat
	KindMemory
	KindDuration
)

func (k Kind) String() string {
	switch k {
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindMemory:
		return "memory"
	case KindDuration:
		return "duration"
	}
	return "string"
}

// Value holds one typed postgresql.conf value. Memory sizes keep their
// original string form ("128MB") and convert to bytes on demand.
type Value struct {
	kind Kind
	str  string
	b    bool
	i    int64
	f    float64
	d    time.Duration
}

func String(s string) Value          { return Value{kind: KindString, str: s} }
func Bool(b bool) Value              { return Value{kind: KindBool, b: b} }
func Int(i int64) Value              { return Value{kind: KindInt, i: i} }
func Float(f float64) Value          { return Value{kind: KindFloat, f: f} }
func Memory(s string) Value          { return Value{kind: KindMemory, str: s} }
func Duration(d time.Duration) Value { return Value{kind: KindDuration, d: d} }

// InvalidValueError reports a token that looked like a typed value but was
// malformed, such as an unterminated quoted string.
type InvalidValueError struct {
	Raw string
}

func (e *InvalidValueError) Error() string {
	return fmt.Sprintf("invalid value %q", e.Raw)
}

// ParseValue decodes a raw postgresql.conf token into a typed Value.
//
// Single-quoted tokens are unquoted first, unescaping doubled and
// backslashed quotes. Then, in order: octal integers (leading zero),
// memory sizes (digits plus kB/MB/GB/TB), intervals (digits plus
// ms/s/min/h/d), booleans, decimal integers, floats. Anything else stays
// an opaque string.
//
// Ref. https://www.postgresql.org/docs/current/config-setting.html
func ParseValue(raw string) (Value, error) {
	if strings.HasPrefix(raw, "'") {
		if !strings.HasSuffix(raw, "'") {
			return Value{}, &InvalidValueError{Raw: raw}
		}
		body := ""
		if len(raw) >= 2 {
			body = raw[1 : len(raw)-1]
		}
		raw = strings.NewReplacer("''", "'", `\'`, "'").Replace(body)
	}

	if strings.HasPrefix(raw, "0") {
		if i, err := strconv.ParseInt(raw, 8, 64); err == nil {
			return Int(i), nil
		}
	}

	if memoryRe.MatchString(raw) {
		return Memory(strings.TrimSpace(raw)), nil
	}

	if m := durationRe.FindStringSubmatch(raw); m != nil {
		n, err := strconv.ParseInt(m[1], 10, 64)
		if err != nil {
			return Value{}, &InvalidValueError{Raw: raw}
		}
		return Duration(time.Duration(n) * durationUnits[m[2]]), nil
	}

	switch strings.ToLower(raw) {
	case "true", "yes", "on":
		return Bool(true), nil
	case "false", "no", "off":
		return Bool(false), nil
	}

	if i, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64); err == nil {
		return Int(i), nil
	}
	if f, err := strconv.ParseFloat(strings.TrimSpace(raw), 64); err == nil {
		return Float(f), nil
	}
	return String(raw), nil
}

// MustParseValue parses a known-valid token and panics on error.
func MustParseValue(raw string) Value {
	v, err := ParseValue(raw)
	if err != nil {
		panic(fmt.Sprintf("invalid value: %v", err))
	}
	return v
}

func (v Value) Kind() Kind { return v.kind }

// Text returns the string form of a String or Memory value.
func (v Value) Text() (string, error) {
	if v.kind != KindString && v.kind != KindMemory {
		return "", fmt.Errorf("value is %s, not a string", v.kind)
	}
	return v.str, nil
}

func (v Value) GetBool() (bool, error) {
	if v.kind != KindBool {
		return false, fmt.Errorf("value is %s, not a bool", v.kind)
	}
	return v.b, nil
}

func (v Value) GetInt() (int64, error) {
	if v.kind != KindInt {
		return 0, fmt.Errorf("value is %s, not an int", v.kind)
	}
	return v.i, nil
}

func (v Value) GetFloat() (float64, error) {
	switch v.kind {
	case KindFloat:
		return v.f, nil
	case KindInt:
		return float64(v.i), nil
	}
	return 0, fmt.Errorf("value is %s, not a float", v.kind)
}

// Bytes converts a Memory value ("1kB", "512MB") to bytes using binary
// multipliers. Plain integer values are returned as-is.
func (v Value) Bytes() (uint64, error) {
	switch v.kind {
	case KindInt:
		if v.i < 0 {
			return 0, fmt.Errorf("negative size: %d", v.i)
		}
		return uint64(v.i), nil
	case KindMemory:
		m := memoryRe.FindStringSubmatch(v.str)
		if m == nil {
			return 0, fmt.Errorf("malformed memory value %q", v.str)
		}
		n, err := strconv.ParseUint(m[1], 10, 64)
		if err != nil {
			return 0, err
		}
		return n * memoryMultipliers[m[2]], nil
	}
	return 0, fmt.Errorf("value is %s, not a size", v.kind)
}

func (v Value) GetDuration() (time.Duration, error) {
	if v.kind != KindDuration {
		return 0, fmt.Errorf("value is %s, not a duration", v.kind)
	}
	return v.d, nil
}

// timedeltaUnits lists render units from largest to smallest. The space
// before "min" matches PostgreSQL's own sample files.
var timedeltaUnits = []struct {
	suffix  string
	seconds int64
}{
	{"d", 86400},
	{"h", 3600},
	{" min", 60},
	{"s", 1},
}

// Serialize is the near-inverse of ParseValue. Round trips are semantic,
// not byte-identical: decode(Serialize(v)) always equals v, but quoting
// and unit choice may normalize.
func (v Value) Serialize() string {
	switch v.kind {
	case KindBool:
		if v.b {
			return "on"
		}
		return "off"
	case KindInt:
		return strconv.FormatInt(v.i, 10)
	case KindFloat:
		return strconv.FormatFloat(v.f, 'g', -1, 64)
	case KindDuration:
		return v.serializeDuration()
	}
	return quote(v.str)
}

func (v Value) serializeDuration() string {
	d := v.d
	if rem := d % time.Second; rem != 0 {
		// Sub-second component: fall back to milliseconds.
		ms := int64(d/time.Second)*1000 + int64(rem/time.Millisecond)
		return fmt.Sprintf("'%d ms'", ms)
	}
	seconds := int64(d / time.Second)
	for _, u := range timedeltaUnits {
		if seconds%u.seconds != 0 {
			continue
		}
		return fmt.Sprintf("'%d%s'", seconds/u.seconds, u.suffix)
	}
	return fmt.Sprintf("'%ds'", seconds)
}

// quote single-quotes s unless it already is, doubling interior quotes
// unless the string already carries escaped ones.
func quote(s string) string {
	if strings.HasPrefix(s, "'") && strings.HasSuffix(s, "'") && len(s) >= 2 {
		return s
	}
	if !strings.Contains(s, "''") && !strings.Contains(s, `\'`) {
		s = strings.ReplaceAll(s, "'", "''")
	}
	return "'" + s + "'"
}

// String renders the bare value without serialization quoting, for
// display and JSON dumps.
func (v Value) String() string {
	switch v.kind {
	case KindBool:
		if v.b {
			return "on"
		}
		return "off"
	case KindInt:
		return strconv.FormatInt(v.i, 10)
	case KindFloat:
		return strconv.FormatFloat(v.f, 'g', -1, 64)
	case KindDuration:
		return strings.Trim(v.serializeDuration(), "'")
	}
	return v.str
}

// MarshalJSON renders booleans and numbers natively and durations in
// their PostgreSQL unit form.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindBool:
		return json.Marshal(v.b)
	case KindInt:
		return json.Marshal(v.i)
	case KindFloat:
		return json.Marshal(v.f)
	case KindDuration:
		return json.Marshal(strings.Trim(v.serializeDuration(), "'"))
	}
	return json.Marshal(v.str)
}

// MarshalYAML mirrors MarshalJSON for YAML dumps.
func (v Value) MarshalYAML() (interface{}, error) {
	switch v.kind {
	case KindBool:
		return v.b, nil
	case KindInt:
		return v.i, nil
	case KindFloat:
		return v.f, nil
	case KindDuration:
		return strings.Trim(v.serializeDuration(), "'"), nil
	}
	return v.str, nil
}
