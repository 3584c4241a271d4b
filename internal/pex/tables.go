package pex

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Metadata table numbers (ECMA-335 II.22).
const (
	TableModule                 = 0x00
	TableTypeRef                = 0x01
	TableTypeDef                = 0x02
	TableFieldPtr               = 0x03
	TableField                  = 0x04
	TableMethodPtr              = 0x05
	TableMethodDef              = 0x06
	TableParamPtr               = 0x07
	TableParam                  = 0x08
	TableInterfaceImpl          = 0x09
	TableMemberRef              = 0x0A
	TableConstant               = 0x0B
	TableCustomAttribute        = 0x0C
	TableFieldMarshal           = 0x0D
	TableDeclSecurity           = 0x0E
	TableClassLayout            = 0x0F
	TableFieldLayout            = 0x10
	TableStandAloneSig          = 0x11
	TableEventMap               = 0x12
	TableEventPtr               = 0x13
	TableEvent                  = 0x14
	TablePropertyMap            = 0x15
	TablePropertyPtr            = 0x16
	TableProperty               = 0x17
	TableMethodSemantics        = 0x18
	TableMethodImpl             = 0x19
	TableModuleRef              = 0x1A
	TableTypeSpec               = 0x1B
	TableImplMap                = 0x1C
	TableFieldRVA               = 0x1D
	TableEncLog                 = 0x1E
	TableEncMap                 = 0x1F
	TableAssembly               = 0x20
	TableAssemblyProcessor      = 0x21
	TableAssemblyOS             = 0x22
	TableAssemblyRef            = 0x23
	TableAssemblyRefProcessor   = 0x24
	TableAssemblyRefOS          = 0x25
	TableFile                   = 0x26
	TableExportedType           = 0x27
	TableManifestResource       = 0x28
	TableNestedClass            = 0x29
	TableGenericParam           = 0x2A
	TableMethodSpec             = 0x2B
	TableGenericParamConstraint = 0x2C

	tableCount = 0x2D
)

// Coded index families.
const (
	CodedTypeDefOrRef = iota
	CodedHasConstant
	CodedHasCustomAttribute
	CodedHasFieldMarshal
	CodedHasDeclSecurity
	CodedMemberRefParent
	CodedHasSemantics
	CodedMethodDefOrRef
	CodedMemberForwarded
	CodedImplementation
	CodedCustomAttributeType
	CodedResolutionScope
	CodedTypeOrMethodDef
)

// -1 marks an unused tag slot.
var codedMembers = [...][]int{
	CodedTypeDefOrRef: {TableTypeDef, TableTypeRef, TableTypeSpec},
	CodedHasConstant:  {TableField, TableParam, TableProperty},
	CodedHasCustomAttribute: {
		TableMethodDef, TableField, TableTypeRef, TableTypeDef, TableParam,
		TableInterfaceImpl, TableMemberRef, TableModule, TableDeclSecurity,
		TableProperty, TableEvent, TableStandAloneSig, TableModuleRef,
		TableTypeSpec, TableAssembly, TableAssemblyRef, TableFile,
		TableExportedType, TableManifestResource, TableGenericParam,
		TableGenericParamConstraint, TableMethodSpec,
	},
	CodedHasFieldMarshal:     {TableField, TableParam},
	CodedHasDeclSecurity:     {TableTypeDef, TableMethodDef, TableAssembly},
	CodedMemberRefParent:     {TableTypeDef, TableTypeRef, TableModuleRef, TableMethodDef, TableTypeSpec},
	CodedHasSemantics:        {TableEvent, TableProperty},
	CodedMethodDefOrRef:      {TableMethodDef, TableMemberRef},
	CodedMemberForwarded:     {TableField, TableMethodDef},
	CodedImplementation:      {TableFile, TableAssemblyRef, TableExportedType},
	CodedCustomAttributeType: {-1, -1, TableMethodDef, TableMemberRef, -1},
	CodedResolutionScope:     {TableModule, TableModuleRef, TableAssemblyRef, TableTypeRef},
	CodedTypeOrMethodDef:     {TableTypeDef, TableMethodDef},
}

type colKind uint8

const (
	colU16 colKind = iota
	colU32
	colString
	colGUID
	colBlob
	colIndex // arg: target table
	colCoded // arg: coded family
)

type column struct {
	kind colKind
	arg  uint8
}

func u16() column          { return column{kind: colU16} }
func u32() column          { return column{kind: colU32} }
func str() column          { return column{kind: colString} }
func guid() column         { return column{kind: colGUID} }
func blob() column         { return column{kind: colBlob} }
func index(t uint8) column { return column{kind: colIndex, arg: t} }
func coded(f uint8) column { return column{kind: colCoded, arg: f} }

// Row layouts for every table we may have to walk over. An unknown
// table in the valid mask is a hard error since its row size cannot
// be computed.
var schemas = [tableCount][]column{
	TableModule:                 {u16(), str(), guid(), guid(), guid()},
	TableTypeRef:                {coded(CodedResolutionScope), str(), str()},
	TableTypeDef:                {u32(), str(), str(), coded(CodedTypeDefOrRef), index(TableField), index(TableMethodDef)},
	TableFieldPtr:               {index(TableField)},
	TableField:                  {u16(), str(), blob()},
	TableMethodPtr:              {index(TableMethodDef)},
	TableMethodDef:              {u32(), u16(), u16(), str(), blob(), index(TableParam)},
	TableParamPtr:               {index(TableParam)},
	TableParam:                  {u16(), u16(), str()},
	TableInterfaceImpl:          {index(TableTypeDef), coded(CodedTypeDefOrRef)},
	TableMemberRef:              {coded(CodedMemberRefParent), str(), blob()},
	TableConstant:               {u16(), coded(CodedHasConstant), blob()},
	TableCustomAttribute:        {coded(CodedHasCustomAttribute), coded(CodedCustomAttributeType), blob()},
	TableFieldMarshal:           {coded(CodedHasFieldMarshal), blob()},
	TableDeclSecurity:           {u16(), coded(CodedHasDeclSecurity), blob()},
	TableClassLayout:            {u16(), u32(), index(TableTypeDef)},
	TableFieldLayout:            {u32(), index(TableField)},
	TableStandAloneSig:          {blob()},
	TableEventMap:               {index(TableTypeDef), index(TableEvent)},
	TableEventPtr:               {index(TableEvent)},
	TableEvent:                  {u16(), str(), coded(CodedTypeDefOrRef)},
	TablePropertyMap:            {index(TableTypeDef), index(TableProperty)},
	TablePropertyPtr:            {index(TableProperty)},
	TableProperty:               {u16(), str(), blob()},
	TableMethodSemantics:        {u16(), index(TableMethodDef), coded(CodedHasSemantics)},
	TableMethodImpl:             {index(TableTypeDef), coded(CodedMethodDefOrRef), coded(CodedMethodDefOrRef)},
	TableModuleRef:              {str()},
	TableTypeSpec:               {blob()},
	TableImplMap:                {u16(), coded(CodedMemberForwarded), str(), index(TableModuleRef)},
	TableFieldRVA:               {u32(), index(TableField)},
	TableEncLog:                 {u32(), u32()},
	TableEncMap:                 {u32()},
	TableAssembly:               {u32(), u16(), u16(), u16(), u16(), u32(), blob(), str(), str()},
	TableAssemblyProcessor:      {u32()},
	TableAssemblyOS:             {u32(), u32(), u32()},
	TableAssemblyRef:            {u16(), u16(), u16(), u16(), u32(), blob(), str(), str(), blob()},
	TableAssemblyRefProcessor:   {u32(), index(TableAssemblyRef)},
	TableAssemblyRefOS:          {u32(), u32(), u32(), index(TableAssemblyRef)},
	TableFile:                   {u32(), str(), blob()},
	TableExportedType:           {u32(), u32(), str(), str(), coded(CodedImplementation)},
	TableManifestResource:       {u32(), u32(), str(), coded(CodedImplementation)},
	TableNestedClass:            {index(TableTypeDef), index(TableTypeDef)},
	TableGenericParam:           {u16(), u16(), coded(CodedTypeOrMethodDef), str()},
	TableMethodSpec:             {coded(CodedMethodDefOrRef), blob()},
	TableGenericParamConstraint: {index(TableGenericParam), coded(CodedTypeDefOrRef)},
}

// Tables holds the decoded #~ stream: row counts and raw rows with
// every column widened to uint32.
type Tables struct {
	RowCounts [64]uint32
	Rows      [64][][]uint32
}

// RowCount returns the number of rows in a table.
func (t *Tables) RowCount(table int) uint32 {
	if table < 0 || table >= 64 {
		return 0
	}
	return t.RowCounts[table]
}

// Row returns the 1-based row of a table, per metadata convention.
func (t *Tables) Row(table int, row uint32) ([]uint32, bool) {
	if table < 0 || table >= 64 || row == 0 || row > t.RowCounts[table] {
		return nil, false
	}
	return t.Rows[table][row-1], true
}

// DecodeCoded splits a coded-index value into its target table and
// 1-based row.
func DecodeCoded(family int, value uint32) (table int, row uint32, ok bool) {
	members := codedMembers[family]
	bits := codedTagBits(family)
	tag := int(value & (1<<bits - 1))
	if tag >= len(members) || members[tag] < 0 {
		return 0, 0, false
	}
	return members[tag], value >> bits, true
}

func codedTagBits(family int) uint {
	n := len(codedMembers[family])
	bits := uint(0)
	for 1<<bits < n {
		bits++
	}
	return bits
}

type tableReader struct {
	data []byte
	pos  int

	heapWide  [3]bool // #Strings, #GUID, #Blob
	rowCounts *[64]uint32
}

func (r *tableReader) uint8v() (uint8, error) {
	if r.pos+1 > len(r.data) {
		return 0, errors.New("truncated table stream")
	}
	v := r.data[r.pos]
	r.pos++
	return v, nil
}

func (r *tableReader) uint16v() (uint16, error) {
	if r.pos+2 > len(r.data) {
		return 0, errors.New("truncated table stream")
	}
	v := binary.LittleEndian.Uint16(r.data[r.pos:])
	r.pos += 2
	return v, nil
}

func (r *tableReader) uint32v() (uint32, error) {
	if r.pos+4 > len(r.data) {
		return 0, errors.New("truncated table stream")
	}
	v := binary.LittleEndian.Uint32(r.data[r.pos:])
	r.pos += 4
	return v, nil
}

func (r *tableReader) uint64v() (uint64, error) {
	if r.pos+8 > len(r.data) {
		return 0, errors.New("truncated table stream")
	}
	v := binary.LittleEndian.Uint64(r.data[r.pos:])
	r.pos += 8
	return v, nil
}

// columnWide reports whether a column is 4 bytes in this image.
func (r *tableReader) columnWide(c column) bool {
	switch c.kind {
	case colU16:
		return false
	case colU32:
		return true
	case colString:
		return r.heapWide[0]
	case colGUID:
		return r.heapWide[1]
	case colBlob:
		return r.heapWide[2]
	case colIndex:
		return r.rowCounts[c.arg] > 0xFFFF
	case colCoded:
		max := uint32(0)
		for _, m := range codedMembers[c.arg] {
			if m >= 0 && r.rowCounts[m] > max {
				max = r.rowCounts[m]
			}
		}
		return max >= 1<<(16-codedTagBits(int(c.arg)))
	}
	return false
}

func (r *tableReader) value(c column) (uint32, error) {
	if r.columnWide(c) {
		return r.uint32v()
	}
	v, err := r.uint16v()
	return uint32(v), err
}

func (im *Image) readTables(stream []byte) error {
	r := &tableReader{data: stream, rowCounts: &im.Tables.RowCounts}

	if _, err := r.uint32v(); err != nil { // reserved
		return err
	}
	if _, err := r.uint16v(); err != nil { // major/minor version
		return err
	}
	heapSizes, err := r.uint8v()
	if err != nil {
		return err
	}
	if _, err := r.uint8v(); err != nil { // reserved
		return err
	}
	r.heapWide[0] = heapSizes&0x01 != 0
	r.heapWide[1] = heapSizes&0x02 != 0
	r.heapWide[2] = heapSizes&0x04 != 0

	valid, err := r.uint64v()
	if err != nil {
		return err
	}
	if _, err := r.uint64v(); err != nil { // sorted mask
		return err
	}

	for t := 0; t < 64; t++ {
		if valid&(1<<uint(t)) == 0 {
			continue
		}
		n, err := r.uint32v()
		if err != nil {
			return err
		}
		im.Tables.RowCounts[t] = n
	}

	for t := 0; t < 64; t++ {
		n := im.Tables.RowCounts[t]
		if n == 0 {
			continue
		}
		if t >= tableCount || schemas[t] == nil {
			return fmt.Errorf("metadata table 0x%02x: unknown layout", t)
		}
		rows := make([][]uint32, n)
		for i := uint32(0); i < n; i++ {
			row := make([]uint32, len(schemas[t]))
			for ci, c := range schemas[t] {
				v, err := r.value(c)
				if err != nil {
					return fmt.Errorf("table 0x%02x row %d: %w", t, i+1, err)
				}
				row[ci] = v
			}
			rows[i] = row
		}
		im.Tables.Rows[t] = rows
	}
	return nil
}
