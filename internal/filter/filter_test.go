package filter

import (
	"errors"
	"testing"
)

func TestNewNoConstraints(t *testing.T) {
	f, err := New()
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if f.HasFilter() {
		t.Error("expected HasFilter() == false for empty filter")
	}
	if !f.TypeIncluded("Anything") {
		t.Error("unconstrained filter should include every type")
	}
	if !f.MethodIncluded("Anything") {
		t.Error("unconstrained filter should include every method")
	}
}

func TestNewEmptyNames(t *testing.T) {
	tests := []struct {
		name string
		opts []Option
	}{
		{"empty type", []Option{WithType("")}},
		{"empty method", []Option{WithMethod("")}},
		{"empty type with valid method", []Option{WithType(""), WithMethod("Main")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.opts...)
			if err == nil {
				t.Fatal("expected error for empty name")
			}
			if !errors.Is(err, ErrInvalidFilter) {
				t.Errorf("error = %v, want ErrInvalidFilter", err)
			}
		})
	}
}

func TestTypeIncluded(t *testing.T) {
	f, err := New(WithType("Program"))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if !f.HasFilter() {
		t.Error("expected HasFilter() == true")
	}
	if !f.TypeIncluded("Program") {
		t.Error("exact match should be included")
	}
	if f.TypeIncluded("program") {
		t.Error("match is case sensitive")
	}
	if f.TypeIncluded("ProgramHelper") {
		t.Error("prefix is not a match")
	}
	// A type-only filter leaves methods unconstrained.
	if !f.MethodIncluded("AnyMethod") {
		t.Error("type filter should not constrain methods")
	}
}

func TestMethodIncluded(t *testing.T) {
	f, err := New(WithMethod("Main"))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if !f.MethodIncluded("Main") {
		t.Error("exact match should be included")
	}
	if f.MethodIncluded("main") {
		t.Error("match is case sensitive")
	}
	if !f.TypeIncluded("AnyType") {
		t.Error("method filter should not constrain types")
	}
}

func TestCombinedConstraints(t *testing.T) {
	f, err := New(WithType("Foo"), WithMethod("Bar"))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if !f.TypeIncluded("Foo") || f.TypeIncluded("Baz") {
		t.Error("type constraint not honoured")
	}
	if !f.MethodIncluded("Bar") || f.MethodIncluded("Qux") {
		t.Error("method constraint not honoured")
	}
}
