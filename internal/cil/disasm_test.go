package cil

import (
	"strings"
	"testing"
)

// mapResolver resolves tokens from a fixed table.
type mapResolver map[uint32]string

func (m mapResolver) ResolveToken(token uint32) (string, bool) {
	s, ok := m[token]
	return s, ok
}

func TestParseBodyTiny(t *testing.T) {
	// Tiny header: size<<2 | 0x2, max stack fixed at 8.
	raw := []byte{0x0A, 0x00, 0x2A}
	body, err := ParseBody(raw)
	if err != nil {
		t.Fatalf("ParseBody() error = %v", err)
	}
	if body.MaxStack != 8 {
		t.Errorf("MaxStack = %d, want 8", body.MaxStack)
	}
	if body.CodeSize != 2 {
		t.Errorf("CodeSize = %d, want 2", body.CodeSize)
	}
	if len(body.Code) != 2 || body.Code[0] != 0x00 || body.Code[1] != 0x2A {
		t.Errorf("Code = %x, want 002a", body.Code)
	}
}

func TestParseBodyFat(t *testing.T) {
	raw := []byte{
		0x13, 0x30, // flags, header size 3 dwords
		0x04, 0x00, // max stack 4
		0x02, 0x00, 0x00, 0x00, // code size 2
		0x00, 0x00, 0x00, 0x00, // local var sig token
		0x00, 0x2A, // code
	}
	body, err := ParseBody(raw)
	if err != nil {
		t.Fatalf("ParseBody() error = %v", err)
	}
	if body.MaxStack != 4 {
		t.Errorf("MaxStack = %d, want 4", body.MaxStack)
	}
	if body.CodeSize != 2 {
		t.Errorf("CodeSize = %d, want 2", body.CodeSize)
	}
	if len(body.Code) != 2 || body.Code[1] != 0x2A {
		t.Errorf("Code = %x, want 002a", body.Code)
	}
}

func TestParseBodyErrors(t *testing.T) {
	tests := []struct {
		name string
		raw  []byte
	}{
		{"empty", nil},
		{"tiny truncated", []byte{0x0A, 0x00}},
		{"fat truncated header", []byte{0x13, 0x30, 0x04}},
		{"fat header size below minimum", []byte{0x13, 0x20, 0x04, 0x00, 0x02, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x2A}},
		{"fat truncated code", []byte{0x13, 0x30, 0x04, 0x00, 0x10, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00}},
		{"unknown kind", []byte{0x00}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseBody(tt.raw); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestDisassembleSimple(t *testing.T) {
	// nop; ret
	insts, err := Disassemble([]byte{0x00, 0x2A}, nil)
	if err != nil {
		t.Fatalf("Disassemble() error = %v", err)
	}
	if len(insts) != 2 {
		t.Fatalf("got %d instructions, want 2", len(insts))
	}
	if insts[0].Opcode != "nop" || insts[0].Offset != 0 {
		t.Errorf("inst[0] = %+v, want nop at 0", insts[0])
	}
	if insts[1].Opcode != "ret" || insts[1].Offset != 1 {
		t.Errorf("inst[1] = %+v, want ret at 1", insts[1])
	}
	if got := insts[1].String(); got != "IL_0001: ret" {
		t.Errorf("String() = %q, want %q", got, "IL_0001: ret")
	}
}

func TestDisassembleImmediates(t *testing.T) {
	tests := []struct {
		name    string
		code    []byte
		opcode  string
		operand string
	}{
		{"ldc.i4.s positive", []byte{0x1F, 0x2A}, "ldc.i4.s", "42"},
		{"ldc.i4.s negative", []byte{0x1F, 0xFF}, "ldc.i4.s", "-1"},
		{"ldc.i4", []byte{0x20, 0x40, 0xE2, 0x01, 0x00}, "ldc.i4", "123456"},
		{"ldc.i8", []byte{0x21, 0x01, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00}, "ldc.i8", "1"},
		{"ldarg.s", []byte{0x0E, 0x03}, "ldarg.s", "3"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			insts, err := Disassemble(tt.code, nil)
			if err != nil {
				t.Fatalf("Disassemble() error = %v", err)
			}
			if len(insts) != 1 {
				t.Fatalf("got %d instructions, want 1", len(insts))
			}
			if insts[0].Opcode != tt.opcode {
				t.Errorf("Opcode = %q, want %q", insts[0].Opcode, tt.opcode)
			}
			if insts[0].Operand != tt.operand {
				t.Errorf("Operand = %q, want %q", insts[0].Operand, tt.operand)
			}
		})
	}
}

func TestDisassembleBranchTargets(t *testing.T) {
	// br.s +0 lands on the following instruction.
	insts, err := Disassemble([]byte{0x2B, 0x00, 0x2A}, nil)
	if err != nil {
		t.Fatalf("Disassemble() error = %v", err)
	}
	if insts[0].Opcode != "br.s" || insts[0].Operand != "IL_0002" {
		t.Errorf("inst[0] = %+v, want br.s IL_0002", insts[0])
	}

	// brtrue.s backwards to offset 0.
	insts, err = Disassemble([]byte{0x00, 0x2D, 0xFD, 0x2A}, nil)
	if err != nil {
		t.Fatalf("Disassemble() error = %v", err)
	}
	if insts[1].Opcode != "brtrue.s" || insts[1].Operand != "IL_0000" {
		t.Errorf("inst[1] = %+v, want brtrue.s IL_0000", insts[1])
	}

	// 32-bit br forwards.
	insts, err = Disassemble([]byte{0x38, 0x01, 0x00, 0x00, 0x00, 0x00, 0x2A}, nil)
	if err != nil {
		t.Fatalf("Disassemble() error = %v", err)
	}
	if insts[0].Opcode != "br" || insts[0].Operand != "IL_0006" {
		t.Errorf("inst[0] = %+v, want br IL_0006", insts[0])
	}
}

func TestDisassembleSwitch(t *testing.T) {
	// switch with two targets, then two nops and a ret.
	code := []byte{
		0x45,
		0x02, 0x00, 0x00, 0x00,
		0x00, 0x00, 0x00, 0x00, // +0 -> IL_000d
		0x01, 0x00, 0x00, 0x00, // +1 -> IL_000e
		0x00, 0x00, 0x2A,
	}
	insts, err := Disassemble(code, nil)
	if err != nil {
		t.Fatalf("Disassemble() error = %v", err)
	}
	want := "( IL_000d, IL_000e )"
	if insts[0].Operand != want {
		t.Errorf("switch operand = %q, want %q", insts[0].Operand, want)
	}
}

func TestDisassembleTokens(t *testing.T) {
	res := mapResolver{
		0x70000001: `"hello"`,
		0x0A000012: "[mscorlib]System.Console::WriteLine",
	}

	// ldstr <us token>; call <memberref token>; ret
	code := []byte{
		0x72, 0x01, 0x00, 0x00, 0x70,
		0x28, 0x12, 0x00, 0x00, 0x0A,
		0x2A,
	}
	insts, err := Disassemble(code, res)
	if err != nil {
		t.Fatalf("Disassemble() error = %v", err)
	}
	if insts[0].Opcode != "ldstr" || insts[0].Operand != `"hello"` {
		t.Errorf("inst[0] = %+v, want ldstr \"hello\"", insts[0])
	}
	if insts[1].Opcode != "call" || insts[1].Operand != "[mscorlib]System.Console::WriteLine" {
		t.Errorf("inst[1] = %+v", insts[1])
	}
}

func TestDisassembleUnresolvedToken(t *testing.T) {
	insts, err := Disassemble([]byte{0x72, 0x99, 0x00, 0x00, 0x70}, nil)
	if err != nil {
		t.Fatalf("Disassemble() error = %v", err)
	}
	if insts[0].Operand != "token(0x70000099)" {
		t.Errorf("Operand = %q, want raw token form", insts[0].Operand)
	}
}

func TestDisassembleTwoByteOpcodes(t *testing.T) {
	// ceq; ldarg <u16>
	code := []byte{0xFE, 0x01, 0xFE, 0x09, 0x05, 0x00}
	insts, err := Disassemble(code, nil)
	if err != nil {
		t.Fatalf("Disassemble() error = %v", err)
	}
	if insts[0].Opcode != "ceq" {
		t.Errorf("inst[0].Opcode = %q, want ceq", insts[0].Opcode)
	}
	if insts[1].Opcode != "ldarg" || insts[1].Operand != "5" {
		t.Errorf("inst[1] = %+v, want ldarg 5", insts[1])
	}
}

func TestDisassembleTruncated(t *testing.T) {
	tests := []struct {
		name string
		code []byte
	}{
		{"truncated int32", []byte{0x20, 0x01}},
		{"truncated two-byte opcode", []byte{0xFE}},
		{"truncated token", []byte{0x72, 0x01}},
		{"truncated switch table", []byte{0x45, 0x02, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00}},
		{"switch count overflows", []byte{0x45, 0x00, 0x00, 0x00, 0x40, 0xAA, 0xBB, 0xCC, 0xDD}},
		{"switch count max", []byte{0x45, 0xFF, 0xFF, 0xFF, 0xFF}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Disassemble(tt.code, nil); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestDisassembleUndefinedOpcode(t *testing.T) {
	_, err := Disassemble([]byte{0xF0}, nil)
	if err == nil || !strings.Contains(err.Error(), "undefined opcode") {
		t.Errorf("error = %v, want undefined opcode", err)
	}
}
