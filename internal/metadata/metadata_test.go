package metadata

import "testing"

func TestMVIDString(t *testing.T) {
	// The first three GUID fields are stored little-endian.
	g := MVID{
		0x44, 0x33, 0x22, 0x11,
		0x66, 0x55,
		0x88, 0x77,
		0x99, 0xaa,
		0xbb, 0xcc, 0xdd, 0xee, 0xff, 0x00,
	}
	want := "11223344-5566-7788-99aa-bbccddeeff00"
	if got := g.String(); got != want {
		t.Errorf("MVID.String() = %q, want %q", got, want)
	}
}

func TestInstructionString(t *testing.T) {
	tests := []struct {
		inst Instruction
		want string
	}{
		{Instruction{Offset: 0, Opcode: "nop"}, "IL_0000: nop"},
		{Instruction{Offset: 0x1A, Opcode: "ldstr", Operand: `"hi"`}, `IL_001a: ldstr "hi"`},
		{Instruction{Offset: 0x12345, Opcode: "ret"}, "IL_12345: ret"},
	}
	for _, tt := range tests {
		if got := tt.inst.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}
}
