// Package decoder builds the read-only metadata object graph from an
// opened managed PE image. Any failure here means the model is
// unavailable and rendering never starts.
package decoder

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/charmbracelet/log"

	"github.com/Trazarw/dotnet-ildasm/internal/cil"
	"github.com/Trazarw/dotnet-ildasm/internal/metadata"
	"github.com/Trazarw/dotnet-ildasm/internal/pex"
)

// ErrModelUnavailable reports that the binary could not be decoded
// into a valid object graph.
var ErrModelUnavailable = errors.New("model unavailable")

// TypeDef flag masks (ECMA-335 II.23.1.15).
const (
	tdVisibilityMask   = 0x00000007
	tdPublic           = 0x00000001
	tdNotPublic        = 0x00000000
	tdLayoutMask       = 0x00000018
	tdSequentialLayout = 0x00000008
	tdExplicitLayout   = 0x00000010
	tdInterface        = 0x00000020
	tdAbstract         = 0x00000080
	tdStringMask       = 0x00030000
	tdUnicodeClass     = 0x00010000
	tdAutoClass        = 0x00020000
	tdBeforeFieldInit  = 0x00100000
)

// MethodDef flag masks (ECMA-335 II.23.1.10).
const (
	mdAccessMask    = 0x0007
	mdPrivate       = 0x0001
	mdPublic        = 0x0006
	mdStatic        = 0x0010
	mdHideBySig     = 0x0080
	mdSpecialName   = 0x0800
	mdRTSpecialName = 0x1000

	miUnmanaged = 0x0004 // impl flags
)

const nativeEntryPointFlag = 0x10 // Cor20 COMIMAGE_FLAGS_NATIVE_ENTRYPOINT

// Decoder turns a pex.Image into the metadata model. It also serves
// as the token resolver for the CIL disassembler.
type Decoder struct {
	img *pex.Image
	log *log.Logger

	methodOwner map[uint32]uint32 // MethodDef row -> TypeDef row
	fieldOwner  map[uint32]uint32 // Field row -> TypeDef row
}

// Decode opens path and builds the full assembly model.
func Decode(path string, logger *log.Logger) (*metadata.Assembly, error) {
	img, err := pex.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrModelUnavailable, err)
	}
	return DecodeImage(img, logger)
}

// DecodeImage builds the assembly model from an already-opened image.
func DecodeImage(img *pex.Image, logger *log.Logger) (*metadata.Assembly, error) {
	d := &Decoder{img: img, log: logger}
	d.buildOwnership()

	asm, err := d.assembly()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrModelUnavailable, err)
	}
	return asm, nil
}

// buildOwnership precomputes method and field row ownership from the
// TypeDef list ranges so token resolution is a map lookup.
func (d *Decoder) buildOwnership() {
	d.methodOwner = make(map[uint32]uint32)
	d.fieldOwner = make(map[uint32]uint32)

	t := &d.img.Tables
	nTypes := t.RowCount(pex.TableTypeDef)
	for i := uint32(1); i <= nTypes; i++ {
		mStart, mEnd := listRange(t, pex.TableTypeDef, i, 5, pex.TableMethodDef)
		for m := mStart; m < mEnd; m++ {
			d.methodOwner[m] = i
		}
		fStart, fEnd := listRange(t, pex.TableTypeDef, i, 4, pex.TableField)
		for f := fStart; f < fEnd; f++ {
			d.fieldOwner[f] = i
		}
	}
}

// listRange resolves a run-list column: rows [start, end) of the
// target table belong to owner row i.
func listRange(t *pex.Tables, ownerTable int, i uint32, col int, target int) (uint32, uint32) {
	row, ok := t.Row(ownerTable, i)
	if !ok {
		return 0, 0
	}
	start := row[col]
	end := t.RowCount(target) + 1
	if next, ok := t.Row(ownerTable, i+1); ok {
		end = next[col]
	}
	if start > end {
		return 0, 0
	}
	return start, end
}

func (d *Decoder) assembly() (*metadata.Assembly, error) {
	t := &d.img.Tables
	row, ok := t.Row(pex.TableAssembly, 1)
	if !ok {
		return nil, errors.New("no Assembly row: image is a netmodule")
	}

	asm := &metadata.Assembly{
		Name:          d.img.String(row[7]),
		HashAlgorithm: row[0],
		Version: metadata.Version{
			Major:    uint16(row[1]),
			Minor:    uint16(row[2]),
			Build:    uint16(row[3]),
			Revision: uint16(row[4]),
		},
	}
	d.log.Debug("decoding assembly", "name", asm.Name, "runtime", d.img.RuntimeVersion)

	asm.References = d.assemblyRefs()
	asm.CustomAttributes = d.assemblyAttributes()

	mod, err := d.module(asm.Name)
	if err != nil {
		return nil, err
	}
	asm.Modules = []metadata.Module{mod}
	return asm, nil
}

func (d *Decoder) assemblyRefs() []metadata.AssemblyRef {
	t := &d.img.Tables
	n := t.RowCount(pex.TableAssemblyRef)
	refs := make([]metadata.AssemblyRef, 0, n)
	for i := uint32(1); i <= n; i++ {
		row, _ := t.Row(pex.TableAssemblyRef, i)
		refs = append(refs, metadata.AssemblyRef{
			Name:           d.img.String(row[6]),
			PublicKeyToken: d.img.Blob(row[5]),
			Version: metadata.Version{
				Major:    uint16(row[0]),
				Minor:    uint16(row[1]),
				Build:    uint16(row[2]),
				Revision: uint16(row[3]),
			},
		})
	}
	return refs
}

// assemblyAttributes collects custom attributes whose parent is the
// assembly row.
func (d *Decoder) assemblyAttributes() []metadata.CustomAttribute {
	t := &d.img.Tables
	n := t.RowCount(pex.TableCustomAttribute)
	var attrs []metadata.CustomAttribute
	for i := uint32(1); i <= n; i++ {
		row, _ := t.Row(pex.TableCustomAttribute, i)
		parentTable, parentRow, ok := pex.DecodeCoded(pex.CodedHasCustomAttribute, row[0])
		if !ok || parentTable != pex.TableAssembly || parentRow != 1 {
			continue
		}
		attrs = append(attrs, d.customAttribute(row))
	}
	return attrs
}

func (d *Decoder) customAttribute(row []uint32) metadata.CustomAttribute {
	ctorTable, ctorRow, ok := pex.DecodeCoded(pex.CodedCustomAttributeType, row[1])
	if !ok {
		return metadata.CustomAttribute{Ctor: fmt.Sprintf("token(0x%08x)", row[1])}
	}

	var typeName, ctorName, owner string
	switch ctorTable {
	case pex.TableMethodDef:
		if mrow, ok := d.img.Tables.Row(pex.TableMethodDef, ctorRow); ok {
			ctorName = d.img.String(mrow[3])
			owner = d.typeDefFullName(d.methodOwner[ctorRow])
			typeName = d.typeDefSimpleName(d.methodOwner[ctorRow])
		}
	case pex.TableMemberRef:
		if mrow, ok := d.img.Tables.Row(pex.TableMemberRef, ctorRow); ok {
			ctorName = d.img.String(mrow[1])
			owner, typeName = d.memberRefParent(mrow[0])
		}
	}
	if ctorName == "" {
		return metadata.CustomAttribute{Ctor: fmt.Sprintf("token(0x%08x)", row[1])}
	}

	attr := metadata.CustomAttribute{
		Ctor:     fmt.Sprintf("instance void class %s::'%s'", owner, ctorName),
		TypeName: typeName,
		Resolved: true,
	}
	if value := d.img.Blob(row[2]); len(value) > 0 {
		attr.Arguments = [][]byte{value}
	}
	return attr
}

func (d *Decoder) module(assemblyName string) (metadata.Module, error) {
	t := &d.img.Tables
	row, ok := t.Row(pex.TableModule, 1)
	if !ok {
		return metadata.Module{}, errors.New("no Module row")
	}

	mod := metadata.Module{
		AssemblyName: assemblyName,
		Name:         d.img.String(row[1]),
		Kind:         d.moduleKind(),
	}
	if g, ok := d.img.GUID(row[2]); ok {
		mod.MVID = metadata.MVID(g)
	}

	entryMethod := uint32(0)
	if tok := d.img.Cor20.EntryPointToken; tok>>24 == pex.TableMethodDef && d.img.Cor20.Flags&nativeEntryPointFlag == 0 {
		entryMethod = tok & 0xFFFFFF
	}

	nTypes := t.RowCount(pex.TableTypeDef)
	mod.Types = make([]metadata.Type, 0, nTypes)
	for i := uint32(1); i <= nTypes; i++ {
		mod.Types = append(mod.Types, d.typeDef(i, entryMethod))
	}
	d.log.Debug("decoded module", "name", mod.Name, "mvid", mod.MVID.String(), "types", len(mod.Types))
	return mod, nil
}

func (d *Decoder) moduleKind() metadata.ModuleKind {
	if d.img.IsLibrary() {
		return metadata.ModuleKindLibrary
	}
	switch d.img.Subsystem() {
	case 3: // IMAGE_SUBSYSTEM_WINDOWS_CUI
		return metadata.ModuleKindConsole
	case 2: // IMAGE_SUBSYSTEM_WINDOWS_GUI
		return metadata.ModuleKindWindowed
	}
	return metadata.ModuleKindUnknown
}

func (d *Decoder) typeDef(i uint32, entryMethod uint32) metadata.Type {
	t := &d.img.Tables
	row, _ := t.Row(pex.TableTypeDef, i)
	flags := row[0]

	typ := metadata.Type{
		Name:            d.img.String(row[1]),
		FullName:        d.typeDefFullName(i),
		BeforeFieldInit: flags&tdBeforeFieldInit != 0,
		Interface:       flags&tdInterface != 0,
		Abstract:        flags&tdAbstract != 0,
	}

	switch flags & tdVisibilityMask {
	case tdPublic:
		typ.Visibility = metadata.VisibilityPublic
	case tdNotPublic:
		typ.Visibility = metadata.VisibilityPrivate
	}

	switch flags & tdLayoutMask {
	case tdSequentialLayout:
		typ.Layout = metadata.LayoutSequential
	case tdExplicitLayout:
		typ.Layout = metadata.LayoutExplicit
	default:
		typ.Layout = metadata.LayoutAuto
	}

	switch flags & tdStringMask {
	case tdUnicodeClass:
		typ.StringFormat = metadata.StringFormatUnicode
	case tdAutoClass:
		typ.StringFormat = metadata.StringFormatAuto
	default:
		typ.StringFormat = metadata.StringFormatANSI
	}

	typ.BaseType = d.typeDefOrRefName(row[3])
	typ.Interfaces = d.interfacesOf(i)

	mStart, mEnd := listRange(t, pex.TableTypeDef, i, 5, pex.TableMethodDef)
	for m := mStart; m < mEnd; m++ {
		typ.Methods = append(typ.Methods, d.methodDef(m, typ.FullName, m == entryMethod))
	}
	d.log.Debug("decoded type", "name", typ.FullName, "methods", len(typ.Methods))
	return typ
}

func (d *Decoder) interfacesOf(typeRow uint32) []string {
	t := &d.img.Tables
	n := t.RowCount(pex.TableInterfaceImpl)
	var out []string
	for i := uint32(1); i <= n; i++ {
		row, _ := t.Row(pex.TableInterfaceImpl, i)
		if row[0] == typeRow {
			out = append(out, d.typeDefOrRefName(row[1]))
		}
	}
	return out
}

func (d *Decoder) methodDef(i uint32, declaringType string, entry bool) metadata.Method {
	t := &d.img.Tables
	row, _ := t.Row(pex.TableMethodDef, i)
	rva, implFlags, flags := row[0], row[1], row[2]
	name := d.img.String(row[3])

	m := metadata.Method{
		Name:          name,
		FullName:      declaringType + "::" + name,
		HideBySig:     flags&mdHideBySig != 0,
		SpecialName:   flags&mdSpecialName != 0,
		RTSpecialName: flags&mdRTSpecialName != 0,
		Static:        flags&mdStatic != 0,
		Managed:       implFlags&miUnmanaged == 0,
		EntryPoint:    entry,
	}
	switch flags & mdAccessMask {
	case mdPublic:
		m.Visibility = metadata.VisibilityPublic
	case mdPrivate:
		m.Visibility = metadata.VisibilityPrivate
	}

	if rva != 0 && m.Managed {
		if body, err := d.methodBody(rva); err != nil {
			d.log.Warn("method body skipped", "method", m.FullName, "error", err)
		} else {
			m.Body = body
		}
	}
	return m
}

func (d *Decoder) methodBody(rva uint32) (*metadata.Body, error) {
	raw, ok := d.img.FromRVA(rva)
	if !ok {
		return nil, fmt.Errorf("body rva 0x%x unmapped", rva)
	}
	parsed, err := cil.ParseBody(raw)
	if err != nil {
		return nil, err
	}
	insts, err := cil.Disassemble(parsed.Code, d)
	if err != nil {
		return nil, err
	}
	return &metadata.Body{
		CodeSize:     parsed.CodeSize,
		MaxStack:     parsed.MaxStack,
		Instructions: insts,
	}, nil
}

// ResolveToken implements cil.TokenResolver.
func (d *Decoder) ResolveToken(tok uint32) (string, bool) {
	table := int(tok >> 24)
	row := tok & 0xFFFFFF

	switch table {
	case 0x70: // user string
		s, ok := d.img.UserString(row)
		if !ok {
			return "", false
		}
		return strconv.Quote(s), true
	case pex.TableMethodDef:
		mrow, ok := d.img.Tables.Row(pex.TableMethodDef, row)
		if !ok {
			return "", false
		}
		return d.typeDefFullName(d.methodOwner[row]) + "::" + d.img.String(mrow[3]), true
	case pex.TableField:
		frow, ok := d.img.Tables.Row(pex.TableField, row)
		if !ok {
			return "", false
		}
		return d.typeDefFullName(d.fieldOwner[row]) + "::" + d.img.String(frow[1]), true
	case pex.TableMemberRef:
		mrow, ok := d.img.Tables.Row(pex.TableMemberRef, row)
		if !ok {
			return "", false
		}
		owner, _ := d.memberRefParent(mrow[0])
		return owner + "::" + d.img.String(mrow[1]), true
	case pex.TableTypeDef:
		if row == 0 || row > d.img.Tables.RowCount(pex.TableTypeDef) {
			return "", false
		}
		return d.typeDefFullName(row), true
	case pex.TableTypeRef:
		if row == 0 || row > d.img.Tables.RowCount(pex.TableTypeRef) {
			return "", false
		}
		return d.typeRefName(row), true
	}
	return "", false
}

// memberRefParent resolves the owner of a MemberRef, returning the
// fully-qualified owner and its simple name.
func (d *Decoder) memberRefParent(coded uint32) (fullName, simpleName string) {
	table, row, ok := pex.DecodeCoded(pex.CodedMemberRefParent, coded)
	if !ok {
		return fmt.Sprintf("token(0x%08x)", coded), ""
	}
	switch table {
	case pex.TableTypeDef:
		return d.typeDefFullName(row), d.typeDefSimpleName(row)
	case pex.TableTypeRef:
		return d.typeRefName(row), d.typeRefSimpleName(row)
	case pex.TableMethodDef:
		if mrow, ok := d.img.Tables.Row(pex.TableMethodDef, row); ok {
			return d.typeDefFullName(d.methodOwner[row]), d.img.String(mrow[3])
		}
	}
	return fmt.Sprintf("token(0x%08x)", coded), ""
}

func (d *Decoder) typeDefSimpleName(row uint32) string {
	if trow, ok := d.img.Tables.Row(pex.TableTypeDef, row); ok {
		return d.img.String(trow[1])
	}
	return ""
}

func (d *Decoder) typeDefFullName(row uint32) string {
	trow, ok := d.img.Tables.Row(pex.TableTypeDef, row)
	if !ok {
		return ""
	}
	return qualify(d.img.String(trow[2]), d.img.String(trow[1]))
}

func (d *Decoder) typeRefSimpleName(row uint32) string {
	if trow, ok := d.img.Tables.Row(pex.TableTypeRef, row); ok {
		return d.img.String(trow[1])
	}
	return ""
}

// typeRefName renders a TypeRef with its resolution scope:
// [assembly]Namespace.Name for external types, Parent/Name for
// nested references.
func (d *Decoder) typeRefName(row uint32) string {
	trow, ok := d.img.Tables.Row(pex.TableTypeRef, row)
	if !ok {
		return ""
	}
	name := qualify(d.img.String(trow[2]), d.img.String(trow[1]))

	scopeTable, scopeRow, ok := pex.DecodeCoded(pex.CodedResolutionScope, trow[0])
	if !ok {
		return name
	}
	switch scopeTable {
	case pex.TableAssemblyRef:
		if arow, ok := d.img.Tables.Row(pex.TableAssemblyRef, scopeRow); ok {
			return "[" + d.img.String(arow[6]) + "]" + name
		}
	case pex.TableTypeRef: // nested type
		return d.typeRefName(scopeRow) + "/" + name
	}
	return name
}

// typeDefOrRefName resolves a TypeDefOrRef coded index to a
// fully-qualified name.
func (d *Decoder) typeDefOrRefName(coded uint32) string {
	table, row, ok := pex.DecodeCoded(pex.CodedTypeDefOrRef, coded)
	if !ok || row == 0 {
		return ""
	}
	switch table {
	case pex.TableTypeDef:
		return d.typeDefFullName(row)
	case pex.TableTypeRef:
		return d.typeRefName(row)
	}
	return fmt.Sprintf("token(0x%08x)", coded)
}

func qualify(namespace, name string) string {
	if namespace == "" {
		return name
	}
	return namespace + "." + name
}
