package backend

import (
	"encoding/json"
	"math"
	"testing"

	"pgregory.net/rapid"
)

func TestUnwrapList(t *testing.T) {
	a := Record{"id": "a"}
	b := Record{"id": "b"}

	tests := []struct {
		name string
		in   any
		want int
	}{
		{"nil", nil, 0},
		{"bare array", []any{a, b}, 2},
		{"typed slice", []Record{a}, 1},
		{"records", Record{"records": []any{a}}, 1},
		{"data", Record{"data": []any{a, b}}, 2},
		{"content", Record{"content": []any{a}}, 1},
		{"items", Record{"items": []any{a, b}}, 2},
		{"nested data", Record{"data": Record{"records": []any{a}}}, 1},
		{"records before data", Record{"records": []any{a}, "data": []any{a, b}}, 1},
		{"non-array records falls through", Record{"records": "x", "items": []any{a}}, 1},
		{"scalar", "hello", 0},
		{"object without list", Record{"total": 3}, 0},
		{"non-object elements dropped", []any{a, 1, "x", nil}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := UnwrapList(tt.in)
			if got == nil {
				t.Fatal("UnwrapList must never return nil")
			}
			if len(got) != tt.want {
				t.Errorf("len = %d, want %d", len(got), tt.want)
			}
		})
	}
}

func TestUnwrapList_Property_BareAndEnvelopedAgree(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(0, 20).Draw(t, "n")
		list := make([]any, n)
		for i := range list {
			list[i] = Record{"id": rapid.String().Draw(t, "id")}
		}
		key := rapid.SampledFrom(listKeys).Draw(t, "key")

		bare := UnwrapList(list)
		enveloped := UnwrapList(Record{key: list})
		if len(bare) != n || len(enveloped) != n {
			t.Fatalf("bare=%d enveloped=%d want %d", len(bare), len(enveloped), n)
		}
	})
}

func TestUnwrapObject(t *testing.T) {
	inner := Record{"total": 1}
	if got := UnwrapObject(Record{"code": 200, "data": inner}); got["total"] != 1 {
		t.Errorf("code envelope not unwrapped: %v", got)
	}
	if got := UnwrapObject(Record{"success": true, "data": inner}); got["total"] != 1 {
		t.Errorf("success envelope not unwrapped: %v", got)
	}
	plain := Record{"data": inner, "name": "x"}
	if got := UnwrapObject(plain); got["name"] != "x" {
		t.Errorf("plain object should be returned as is: %v", got)
	}
	if UnwrapObject([]any{}) != nil {
		t.Error("array should not unwrap to an object")
	}
}

func TestLookupAndString(t *testing.T) {
	r := Record{
		"person_id": "",
		"personId":  nil,
		"id":        json.Number("9007199254740993"),
		"age":       float64(81),
		"flag":      true,
	}

	if v, ok := String(r, "person_id", "personId", "id"); !ok || v != "9007199254740993" {
		t.Errorf("String() = %q, %v; empty and null must be skipped", v, ok)
	}
	if v, _ := String(r, "age"); v != "81" {
		t.Errorf("String(age) = %q", v)
	}
	if _, ok := String(r, "missing"); ok {
		t.Error("String(missing) should not resolve")
	}
	if v, _ := String(r, "flag"); v != "true" {
		t.Errorf("String(flag) = %q", v)
	}
}

func TestFloatIntBool(t *testing.T) {
	r := Record{
		"a": "72.5",
		"b": json.Number("40"),
		"c": "abc",
		"d": float64(0),
		"e": "false",
		"f": json.Number("1"),
	}

	if f, ok := Float(r, "a"); !ok || f != 72.5 {
		t.Errorf("Float(a) = %v, %v", f, ok)
	}
	if n, ok := Int(r, "b"); !ok || n != 40 {
		t.Errorf("Int(b) = %v, %v", n, ok)
	}
	if _, ok := Float(r, "c"); ok {
		t.Error("Float(c) should fail for non-numeric string")
	}
	if b, ok := Bool(r, "d"); !ok || b {
		t.Errorf("Bool(d) = %v, %v", b, ok)
	}
	if b, ok := Bool(r, "e"); !ok || b {
		t.Errorf("Bool(e) = %v, %v", b, ok)
	}
	if b, ok := Bool(r, "missing", "f"); !ok || !b {
		t.Errorf("Bool(f) = %v, %v", b, ok)
	}
}

func TestInt_Saturates(t *testing.T) {
	tests := []struct {
		in   any
		want int
	}{
		{float64(1e300), math.MaxInt},
		{float64(-1e300), math.MinInt},
		{json.Number("9.3e18"), math.MaxInt},
		{"-12.9", -12},
		{float64(81), 81},
	}
	for _, tt := range tests {
		got, ok := Int(Record{"age": tt.in}, "age")
		if !ok || got != tt.want {
			t.Errorf("Int(%v) = %d, %v, want %d", tt.in, got, ok, tt.want)
		}
	}
	if _, ok := Int(Record{"age": "NaN"}, "age"); ok {
		t.Error("Int(NaN) should fail")
	}
}

func TestNestedHelpers(t *testing.T) {
	r := Record{
		"person": Record{"person_name": "Ann"},
		"tags":   []any{"fall-risk", 3, "night"},
	}
	if Object(r, "person")["person_name"] != "Ann" {
		t.Error("Object() did not return nested record")
	}
	if Object(r, "device") != nil {
		t.Error("Object(missing) should be nil")
	}
	if got := Strings(r, "tags"); len(got) != 2 {
		t.Errorf("Strings() = %v", got)
	}
	if List(r, "tags") == nil {
		t.Error("List() should return the array")
	}
}
