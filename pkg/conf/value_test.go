package conf

import (
	"errors"
	"testing"
	"time"
)

func TestParseValue(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  Value
	}{
		{"bool on", "on", Bool(true)},
		{"bool true", "true", Bool(true)},
		{"bool yes uppercase", "YES", Bool(true)},
		{"bool off", "off", Bool(false)},
		{"bool no", "no", Bool(false)},
		{"bool false", "false", Bool(false)},
		{"int", "5432", Int(5432)},
		{"negative int", "-1", Int(-1)},
		{"octal", "010", Int(8)},
		{"float", "3.14", Float(3.14)},
		{"plain string", "hello", String("hello")},
		{"quoted string", "'hello world'", String("hello world")},
		{"doubled quote", "'l''autre'", String("l'autre")},
		{"backslash quote", `'esc\'aped string'`, String("esc'aped string")},
		{"quoted int stays int", "'5432'", Int(5432)},
		{"memory kB", "1kB", Memory("1kB")},
		{"memory GB spaced", "2 GB", Memory("2 GB")},
		{"duration ms", "150 ms", Duration(150 * time.Millisecond)},
		{"duration min quoted", "' 5 min'", Duration(5 * time.Minute)},
		{"duration h", "2 h", Duration(2 * time.Hour)},
		{"duration d", "5d", Duration(5 * 24 * time.Hour)},
		{"empty", "", String("")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseValue(tt.input)
			if err != nil {
				t.Fatalf("ParseValue(%q) error: %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("ParseValue(%q) = %v (%s), want %v (%s)",
					tt.input, got, got.Kind(), tt.want, tt.want.Kind())
			}
		})
	}
}

func TestParseValueUnterminatedQuote(t *testing.T) {
	_, err := ParseValue("'oops")
	if err == nil {
		t.Fatal("expected error for unterminated quote")
	}
	var invalid *InvalidValueError
	if !errors.As(err, &invalid) {
		t.Errorf("expected InvalidValueError, got %T", err)
	}
}

func TestValueBytes(t *testing.T) {
	tests := []struct {
		input string
		want  uint64
	}{
		{"1kB", 1024},
		{"512 MB", 512 * 1024 * 1024},
		{"2GB", 2 * 1024 * 1024 * 1024},
		{"1 TB", 1024 * 1024 * 1024 * 1024},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			v := MustParseValue(tt.input)
			if v.Kind() != KindMemory {
				t.Fatalf("ParseValue(%q) kind = %s, want memory", tt.input, v.Kind())
			}
			got, err := v.Bytes()
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Errorf("Bytes() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestSerialize(t *testing.T) {
	tests := []struct {
		name  string
		value Value
		want  string
	}{
		{"bool true", Bool(true), "on"},
		{"bool false", Bool(false), "off"},
		{"int", Int(5432), "5432"},
		{"float", Float(3.14), "3.14"},
		{"plain string", String("hello"), "'hello'"},
		{"string with quote", String("l'autre"), "'l''autre'"},
		{"already quoted", String("'quoted'"), "'quoted'"},
		{"memory", Memory("1kB"), "'1kB'"},
		{"one day", Duration(24 * time.Hour), "'1d'"},
		{"one hour", Duration(time.Hour), "'1h'"},
		{"61 minutes", Duration(61 * time.Minute), "'61 min'"},
		{"90 seconds", Duration(90 * time.Second), "'90s'"},
		{"sub second", Duration(12 * time.Millisecond), "'12 ms'"},
		{"mixed ms", Duration(2*time.Second + 500*time.Millisecond), "'2500 ms'"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.value.Serialize(); got != tt.want {
				t.Errorf("Serialize() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSerializeRoundTrip(t *testing.T) {
	values := []Value{
		Bool(true),
		Bool(false),
		Int(0),
		Int(-42),
		Float(2.5),
		String("some text"),
		String("with 'quotes'"),
		Duration(5 * time.Minute),
		Duration(150 * time.Millisecond),
		Duration(36 * time.Hour),
	}
	for _, v := range values {
		got, err := ParseValue(v.Serialize())
		if err != nil {
			t.Fatalf("reparsing %q: %v", v.Serialize(), err)
		}
		if got != v {
			t.Errorf("round trip of %v via %q gave %v", v, v.Serialize(), got)
		}
	}
}

func TestGetAccessorsKindMismatch(t *testing.T) {
	v := MustParseValue("hello")
	if _, err := v.GetBool(); err == nil {
		t.Error("GetBool on a string should fail")
	}
	if _, err := v.GetInt(); err == nil {
		t.Error("GetInt on a string should fail")
	}
	if _, err := v.Bytes(); err == nil {
		t.Error("Bytes on a string should fail")
	}
	if _, err := MustParseValue("on").GetDuration(); err == nil {
		t.Error("GetDuration on a bool should fail")
	}
}
