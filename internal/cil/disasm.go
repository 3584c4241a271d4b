package cil

import (
	"encoding/binary"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/Trazarw/dotnet-ildasm/internal/metadata"
)

// TokenResolver resolves a metadata token to a display string. It is
// supplied by the model decoder so this package stays independent of
// the table layout. Tokens in the user-string table (0x70) resolve to
// a quoted literal.
type TokenResolver interface {
	ResolveToken(token uint32) (string, bool)
}

// Body header flags.
const (
	headerTiny = 0x2
	headerFat  = 0x3
)

// RawBody is a method body split into its header fields and code.
type RawBody struct {
	MaxStack uint16
	CodeSize uint32
	Code     []byte
}

// ParseBody splits the tiny or fat body header at the start of raw.
func ParseBody(raw []byte) (RawBody, error) {
	if len(raw) == 0 {
		return RawBody{}, fmt.Errorf("empty method body")
	}
	switch raw[0] & 0x3 {
	case headerTiny:
		size := uint32(raw[0] >> 2)
		if 1+int(size) > len(raw) {
			return RawBody{}, fmt.Errorf("tiny body: %d code bytes out of range", size)
		}
		// Tiny bodies have an implicit max stack of 8.
		return RawBody{MaxStack: 8, CodeSize: size, Code: raw[1 : 1+size]}, nil
	case headerFat:
		if len(raw) < 12 {
			return RawBody{}, fmt.Errorf("fat body: truncated header")
		}
		headerSize := uint32(raw[1]>>4) * 4
		if headerSize < 12 {
			return RawBody{}, fmt.Errorf("fat body: header size %d below minimum", headerSize)
		}
		maxStack := binary.LittleEndian.Uint16(raw[2:])
		codeSize := binary.LittleEndian.Uint32(raw[4:])
		if uint64(headerSize)+uint64(codeSize) > uint64(len(raw)) {
			return RawBody{}, fmt.Errorf("fat body: %d code bytes out of range", codeSize)
		}
		return RawBody{MaxStack: maxStack, CodeSize: codeSize, Code: raw[headerSize : headerSize+codeSize]}, nil
	}
	return RawBody{}, fmt.Errorf("unknown body header kind 0x%x", raw[0]&0x3)
}

// Disassemble decodes a code stream into instructions. Metadata
// tokens are resolved through res; unresolved tokens render as a hex
// token so a bad reference never aborts the disassembly.
func Disassemble(code []byte, res TokenResolver) ([]metadata.Instruction, error) {
	var out []metadata.Instruction
	pos := uint32(0)
	for pos < uint32(len(code)) {
		start := pos
		b := code[pos]
		pos++

		op := opcodes[b]
		if b == 0xFE {
			if pos >= uint32(len(code)) {
				return out, fmt.Errorf("IL_%04x: truncated two-byte opcode", start)
			}
			op = opcodesFE[code[pos]]
			pos++
		}
		if op.name == "" {
			return out, fmt.Errorf("IL_%04x: undefined opcode 0x%02x", start, b)
		}

		operand, next, err := decodeOperand(code, pos, op.kind, res)
		if err != nil {
			return out, fmt.Errorf("IL_%04x %s: %w", start, op.name, err)
		}
		pos = next
		out = append(out, metadata.Instruction{Offset: start, Opcode: op.name, Operand: operand})
	}
	return out, nil
}

func decodeOperand(code []byte, pos uint32, kind operandKind, res TokenResolver) (string, uint32, error) {
	need := func(n uint32) error {
		if uint64(pos)+uint64(n) > uint64(len(code)) {
			return fmt.Errorf("truncated operand")
		}
		return nil
	}

	switch kind {
	case operandNone:
		return "", pos, nil
	case operandInt8:
		if err := need(1); err != nil {
			return "", pos, err
		}
		return strconv.Itoa(int(int8(code[pos]))), pos + 1, nil
	case operandUInt8:
		if err := need(1); err != nil {
			return "", pos, err
		}
		return strconv.Itoa(int(code[pos])), pos + 1, nil
	case operandUInt16:
		if err := need(2); err != nil {
			return "", pos, err
		}
		return strconv.Itoa(int(binary.LittleEndian.Uint16(code[pos:]))), pos + 2, nil
	case operandInt32:
		if err := need(4); err != nil {
			return "", pos, err
		}
		return strconv.Itoa(int(int32(binary.LittleEndian.Uint32(code[pos:])))), pos + 4, nil
	case operandInt64:
		if err := need(8); err != nil {
			return "", pos, err
		}
		return strconv.FormatInt(int64(binary.LittleEndian.Uint64(code[pos:])), 10), pos + 8, nil
	case operandFloat32:
		if err := need(4); err != nil {
			return "", pos, err
		}
		f := math.Float32frombits(binary.LittleEndian.Uint32(code[pos:]))
		return strconv.FormatFloat(float64(f), 'g', -1, 32), pos + 4, nil
	case operandFloat64:
		if err := need(8); err != nil {
			return "", pos, err
		}
		f := math.Float64frombits(binary.LittleEndian.Uint64(code[pos:]))
		return strconv.FormatFloat(f, 'g', -1, 64), pos + 8, nil
	case operandToken:
		if err := need(4); err != nil {
			return "", pos, err
		}
		tok := binary.LittleEndian.Uint32(code[pos:])
		return formatToken(tok, res), pos + 4, nil
	case operandBranch8:
		if err := need(1); err != nil {
			return "", pos, err
		}
		target := int64(pos) + 1 + int64(int8(code[pos]))
		return fmt.Sprintf("IL_%04x", target), pos + 1, nil
	case operandBranch32:
		if err := need(4); err != nil {
			return "", pos, err
		}
		target := int64(pos) + 4 + int64(int32(binary.LittleEndian.Uint32(code[pos:])))
		return fmt.Sprintf("IL_%04x", target), pos + 4, nil
	case operandSwitch:
		if err := need(4); err != nil {
			return "", pos, err
		}
		n := binary.LittleEndian.Uint32(code[pos:])
		pos += 4
		// The count comes from the code stream; widen before
		// multiplying so the bound cannot wrap.
		if uint64(pos)+uint64(n)*4 > uint64(len(code)) {
			return "", pos, fmt.Errorf("truncated operand")
		}
		base := int64(pos) + int64(n)*4
		targets := make([]string, n)
		for i := uint32(0); i < n; i++ {
			delta := int32(binary.LittleEndian.Uint32(code[pos+i*4:]))
			targets[i] = fmt.Sprintf("IL_%04x", base+int64(delta))
		}
		return "( " + strings.Join(targets, ", ") + " )", pos + n*4, nil
	}
	return "", pos, fmt.Errorf("unhandled operand kind %d", kind)
}

func formatToken(tok uint32, res TokenResolver) string {
	if res != nil {
		if s, ok := res.ResolveToken(tok); ok {
			return s
		}
	}
	return fmt.Sprintf("token(0x%08x)", tok)
}
