package pex

import (
	"encoding/binary"
	"testing"
)

// buildStream assembles a minimal #~ stream: Module (1 row) and
// TypeDef (2 rows) with narrow heaps and indexes.
func buildStream(heapSizes byte) []byte {
	var s []byte
	u16 := func(v uint16) {
		var b [2]byte
		binary.LittleEndian.PutUint16(b[:], v)
		s = append(s, b[:]...)
	}
	u32 := func(v uint32) {
		var b [4]byte
		binary.LittleEndian.PutUint32(b[:], v)
		s = append(s, b[:]...)
	}
	u64 := func(v uint64) {
		var b [8]byte
		binary.LittleEndian.PutUint64(b[:], v)
		s = append(s, b[:]...)
	}
	idx := func(v uint32, wide bool) {
		if wide {
			u32(v)
		} else {
			u16(uint16(v))
		}
	}

	wide := heapSizes&0x01 != 0 // same flag for all three heaps here

	u32(0)              // reserved
	s = append(s, 2, 0) // version 2.0
	s = append(s, heapSizes)
	s = append(s, 1) // reserved
	u64(1<<TableModule | 1<<TableTypeDef)
	u64(0) // sorted

	u32(1) // Module rows
	u32(2) // TypeDef rows

	// Module: generation, name, mvid, encid, encbaseid
	u16(0)
	idx(7, wide)
	idx(1, wide)
	idx(0, wide)
	idx(0, wide)

	// TypeDef: flags, name, namespace, extends, fieldList, methodList
	for row := uint32(1); row <= 2; row++ {
		u32(0x100001)
		idx(10*row, wide)
		idx(20*row, wide)
		u16(0) // extends (coded, narrow)
		u16(1) // fieldList
		u16(1) // methodList
	}
	return s
}

func TestReadTables(t *testing.T) {
	im := &Image{}
	if err := im.readTables(buildStream(0)); err != nil {
		t.Fatalf("readTables() error = %v", err)
	}

	if got := im.Tables.RowCount(TableModule); got != 1 {
		t.Errorf("Module rows = %d, want 1", got)
	}
	if got := im.Tables.RowCount(TableTypeDef); got != 2 {
		t.Errorf("TypeDef rows = %d, want 2", got)
	}
	if got := im.Tables.RowCount(TableMethodDef); got != 0 {
		t.Errorf("MethodDef rows = %d, want 0", got)
	}

	row, ok := im.Tables.Row(TableModule, 1)
	if !ok {
		t.Fatal("Module row 1 missing")
	}
	if row[1] != 7 || row[2] != 1 {
		t.Errorf("Module row = %v, want name=7 mvid=1", row)
	}

	row, ok = im.Tables.Row(TableTypeDef, 2)
	if !ok {
		t.Fatal("TypeDef row 2 missing")
	}
	if row[1] != 20 || row[2] != 40 {
		t.Errorf("TypeDef row 2 = %v, want name=20 namespace=40", row)
	}
}

func TestReadTablesWideHeaps(t *testing.T) {
	im := &Image{}
	if err := im.readTables(buildStream(0x07)); err != nil {
		t.Fatalf("readTables() error = %v", err)
	}

	row, ok := im.Tables.Row(TableModule, 1)
	if !ok {
		t.Fatal("Module row 1 missing")
	}
	if row[1] != 7 {
		t.Errorf("Module name index = %d, want 7", row[1])
	}
}

func TestRowBounds(t *testing.T) {
	im := &Image{}
	if err := im.readTables(buildStream(0)); err != nil {
		t.Fatalf("readTables() error = %v", err)
	}

	// Rows are 1-based; 0 is the null index.
	if _, ok := im.Tables.Row(TableModule, 0); ok {
		t.Error("row 0 must not resolve")
	}
	if _, ok := im.Tables.Row(TableTypeDef, 3); ok {
		t.Error("row past the table must not resolve")
	}
	if _, ok := im.Tables.Row(-1, 1); ok {
		t.Error("negative table must not resolve")
	}
}

func TestReadTablesTruncated(t *testing.T) {
	full := buildStream(0)
	for _, cut := range []int{0, 4, 10, 24, len(full) - 1} {
		im := &Image{}
		if err := im.readTables(full[:cut]); err == nil {
			t.Errorf("cut at %d: expected error", cut)
		}
	}
}

func TestDecodeCoded(t *testing.T) {
	tests := []struct {
		name      string
		family    int
		value     uint32
		wantTable int
		wantRow   uint32
		wantOK    bool
	}{
		{"typedef", CodedTypeDefOrRef, 5<<2 | 0, TableTypeDef, 5, true},
		{"typeref", CodedTypeDefOrRef, 3<<2 | 1, TableTypeRef, 3, true},
		{"typespec", CodedTypeDefOrRef, 1<<2 | 2, TableTypeSpec, 1, true},
		{"typedef-or-ref bad tag", CodedTypeDefOrRef, 3, 0, 0, false},
		{"resolution scope assemblyref", CodedResolutionScope, 2<<2 | 2, TableAssemblyRef, 2, true},
		{"custom attribute methoddef", CodedCustomAttributeType, 7<<3 | 2, TableMethodDef, 7, true},
		{"custom attribute memberref", CodedCustomAttributeType, 4<<3 | 3, TableMemberRef, 4, true},
		{"custom attribute unused slot", CodedCustomAttributeType, 1<<3 | 0, 0, 0, false},
		{"has custom attribute assembly", CodedHasCustomAttribute, 1<<5 | 14, TableAssembly, 1, true},
		{"member ref parent typeref", CodedMemberRefParent, 9<<3 | 1, TableTypeRef, 9, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			table, row, ok := DecodeCoded(tt.family, tt.value)
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if !ok {
				return
			}
			if table != tt.wantTable || row != tt.wantRow {
				t.Errorf("got table 0x%02x row %d, want 0x%02x row %d",
					table, row, tt.wantTable, tt.wantRow)
			}
		})
	}
}
