// Package filter narrows a disassembly to a single type and/or
// method by exact name match.
package filter

import (
	"errors"
	"fmt"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// ErrInvalidFilter reports a malformed filter constraint.
var ErrInvalidFilter = errors.New("invalid member filter")

// MemberFilter holds optional exact-match constraints on type and
// method names. The zero constraint (option not given) matches
// everything; an explicitly empty constraint is rejected at
// construction, it is never treated as "no constraint".
type MemberFilter struct {
	typeName   *string
	methodName *string
	coll       *collate.Collator
}

// Option configures a MemberFilter.
type Option func(*MemberFilter) error

// WithType constrains rendering to types with the given name.
func WithType(name string) Option {
	return func(f *MemberFilter) error {
		if name == "" {
			return fmt.Errorf("%w: empty type name", ErrInvalidFilter)
		}
		f.typeName = &name
		return nil
	}
}

// WithMethod constrains rendering to methods with the given name.
func WithMethod(name string) Option {
	return func(f *MemberFilter) error {
		if name == "" {
			return fmt.Errorf("%w: empty method name", ErrInvalidFilter)
		}
		f.methodName = &name
		return nil
	}
}

// New builds a filter from the given constraints.
func New(opts ...Option) (*MemberFilter, error) {
	f := &MemberFilter{coll: collate.New(language.Und)}
	for _, opt := range opts {
		if err := opt(f); err != nil {
			return nil, err
		}
	}
	return f, nil
}

// HasFilter reports whether any constraint is set.
func (f *MemberFilter) HasFilter() bool {
	return f.typeName != nil || f.methodName != nil
}

// TypeIncluded reports whether a type with the given name should be
// rendered.
func (f *MemberFilter) TypeIncluded(name string) bool {
	return f.typeName == nil || f.coll.CompareString(*f.typeName, name) == 0
}

// MethodIncluded reports whether a method with the given name should
// be rendered.
func (f *MemberFilter) MethodIncluded(name string) bool {
	return f.methodName == nil || f.coll.CompareString(*f.methodName, name) == 0
}
