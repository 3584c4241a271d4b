// Package metadata defines the decoded view of a managed assembly:
// the object graph a renderer walks. All descriptors are read-only
// once built; the decoder populates them and nothing mutates them
// afterwards. Ownership is a strict tree (Assembly -> Module -> Type
// -> Method -> Instruction); base-type and interface references cross
// subtree boundaries and are therefore held as fully-qualified name
// strings, never as pointers.
package metadata

import "fmt"

// Version is a four-part assembly version.
type Version struct {
	Major    uint16
	Minor    uint16
	Build    uint16
	Revision uint16
}

// MVID is the 128-bit module version identifier.
type MVID [16]byte

// String renders the MVID in registry format, honouring the mixed
// little-endian byte order of the first three GUID fields.
func (g MVID) String() string {
	return fmt.Sprintf("%02x%02x%02x%02x-%02x%02x-%02x%02x-%02x%02x-%02x%02x%02x%02x%02x%02x",
		g[3], g[2], g[1], g[0],
		g[5], g[4],
		g[7], g[6],
		g[8], g[9],
		g[10], g[11], g[12], g[13], g[14], g[15])
}

// Visibility of a type or method.
type Visibility int

const (
	VisibilityOther Visibility = iota
	VisibilityPublic
	VisibilityPrivate
)

// Layout is the class layout kind.
type Layout int

const (
	LayoutAuto Layout = iota
	LayoutSequential
	LayoutExplicit
)

// StringFormat is the string marshalling convention of a type.
type StringFormat int

const (
	StringFormatANSI StringFormat = iota
	StringFormatUnicode
	StringFormatAuto
)

// ModuleKind distinguishes the PE flavours we care about.
type ModuleKind int

const (
	ModuleKindUnknown ModuleKind = iota
	ModuleKindConsole
	ModuleKindWindowed
	ModuleKindLibrary
)

// Assembly is the root of the decoded graph.
type Assembly struct {
	Name             string
	Version          Version
	HashAlgorithm    uint32
	CustomAttributes []CustomAttribute
	References       []AssemblyRef
	Modules          []Module
}

// AssemblyRef is one external assembly reference. The public key
// token may be empty for unsigned references.
type AssemblyRef struct {
	Name           string
	PublicKeyToken []byte
	Version        Version
}

// CustomAttribute is a declarative annotation attached to the
// assembly. Ctor is the resolved constructor signature; when
// resolution failed, Resolved is false and Arguments is empty.
type CustomAttribute struct {
	Ctor      string
	TypeName  string
	Resolved  bool
	Arguments [][]byte
}

// Module is one compiled module of an assembly.
type Module struct {
	AssemblyName string
	Name         string
	MVID         MVID
	Kind         ModuleKind
	Types        []Type
}

// Type is one type definition.
type Type struct {
	Name            string
	FullName        string
	Visibility      Visibility
	Layout          Layout
	Interface       bool
	Abstract        bool
	StringFormat    StringFormat
	BeforeFieldInit bool
	BaseType        string   // fully-qualified, empty when none
	Interfaces      []string // fully-qualified implemented interfaces
	Methods         []Method
}

// Method is one method definition. Body is nil for abstract and
// extern methods.
type Method struct {
	Name          string
	FullName      string
	Visibility    Visibility
	HideBySig     bool
	SpecialName   bool
	RTSpecialName bool
	Static        bool
	Managed       bool
	EntryPoint    bool
	Body          *Body
}

// Body is a decoded method body.
type Body struct {
	CodeSize     uint32
	MaxStack     uint16
	Instructions []Instruction
}

// Instruction is one decoded CIL operation, sufficient to render one
// line of disassembly.
type Instruction struct {
	Offset  uint32
	Opcode  string
	Operand string
}

// String renders the instruction in textual IL form.
func (i Instruction) String() string {
	if i.Operand == "" {
		return fmt.Sprintf("IL_%04x: %s", i.Offset, i.Opcode)
	}
	return fmt.Sprintf("IL_%04x: %s %s", i.Offset, i.Opcode, i.Operand)
}
