// Package cil decodes CIL method bodies into a common instruction
// representation used by the disassembly renderer.
package cil

type operandKind uint8

const (
	operandNone operandKind = iota
	operandInt8
	operandUInt8
	operandUInt16
	operandInt32
	operandInt64
	operandFloat32
	operandFloat64
	operandToken
	operandBranch8
	operandBranch32
	operandSwitch
)

type opcode struct {
	name string
	kind operandKind
}

// Single-byte opcodes (ECMA-335 III). An empty name marks an
// undefined encoding.
var opcodes = [256]opcode{
	0x00: {"nop", operandNone},
	0x01: {"break", operandNone},
	0x02: {"ldarg.0", operandNone},
	0x03: {"ldarg.1", operandNone},
	0x04: {"ldarg.2", operandNone},
	0x05: {"ldarg.3", operandNone},
	0x06: {"ldloc.0", operandNone},
	0x07: {"ldloc.1", operandNone},
	0x08: {"ldloc.2", operandNone},
	0x09: {"ldloc.3", operandNone},
	0x0A: {"stloc.0", operandNone},
	0x0B: {"stloc.1", operandNone},
	0x0C: {"stloc.2", operandNone},
	0x0D: {"stloc.3", operandNone},
	0x0E: {"ldarg.s", operandUInt8},
	0x0F: {"ldarga.s", operandUInt8},
	0x10: {"starg.s", operandUInt8},
	0x11: {"ldloc.s", operandUInt8},
	0x12: {"ldloca.s", operandUInt8},
	0x13: {"stloc.s", operandUInt8},
	0x14: {"ldnull", operandNone},
	0x15: {"ldc.i4.m1", operandNone},
	0x16: {"ldc.i4.0", operandNone},
	0x17: {"ldc.i4.1", operandNone},
	0x18: {"ldc.i4.2", operandNone},
	0x19: {"ldc.i4.3", operandNone},
	0x1A: {"ldc.i4.4", operandNone},
	0x1B: {"ldc.i4.5", operandNone},
	0x1C: {"ldc.i4.6", operandNone},
	0x1D: {"ldc.i4.7", operandNone},
	0x1E: {"ldc.i4.8", operandNone},
	0x1F: {"ldc.i4.s", operandInt8},
	0x20: {"ldc.i4", operandInt32},
	0x21: {"ldc.i8", operandInt64},
	0x22: {"ldc.r4", operandFloat32},
	0x23: {"ldc.r8", operandFloat64},
	0x25: {"dup", operandNone},
	0x26: {"pop", operandNone},
	0x27: {"jmp", operandToken},
	0x28: {"call", operandToken},
	0x29: {"calli", operandToken},
	0x2A: {"ret", operandNone},
	0x2B: {"br.s", operandBranch8},
	0x2C: {"brfalse.s", operandBranch8},
	0x2D: {"brtrue.s", operandBranch8},
	0x2E: {"beq.s", operandBranch8},
	0x2F: {"bge.s", operandBranch8},
	0x30: {"bgt.s", operandBranch8},
	0x31: {"ble.s", operandBranch8},
	0x32: {"blt.s", operandBranch8},
	0x33: {"bne.un.s", operandBranch8},
	0x34: {"bge.un.s", operandBranch8},
	0x35: {"bgt.un.s", operandBranch8},
	0x36: {"ble.un.s", operandBranch8},
	0x37: {"blt.un.s", operandBranch8},
	0x38: {"br", operandBranch32},
	0x39: {"brfalse", operandBranch32},
	0x3A: {"brtrue", operandBranch32},
	0x3B: {"beq", operandBranch32},
	0x3C: {"bge", operandBranch32},
	0x3D: {"bgt", operandBranch32},
	0x3E: {"ble", operandBranch32},
	0x3F: {"blt", operandBranch32},
	0x40: {"bne.un", operandBranch32},
	0x41: {"bge.un", operandBranch32},
	0x42: {"bgt.un", operandBranch32},
	0x43: {"ble.un", operandBranch32},
	0x44: {"blt.un", operandBranch32},
	0x45: {"switch", operandSwitch},
	0x46: {"ldind.i1", operandNone},
	0x47: {"ldind.u1", operandNone},
	0x48: {"ldind.i2", operandNone},
	0x49: {"ldind.u2", operandNone},
	0x4A: {"ldind.i4", operandNone},
	0x4B: {"ldind.u4", operandNone},
	0x4C: {"ldind.i8", operandNone},
	0x4D: {"ldind.i", operandNone},
	0x4E: {"ldind.r4", operandNone},
	0x4F: {"ldind.r8", operandNone},
	0x50: {"ldind.ref", operandNone},
	0x51: {"stind.ref", operandNone},
	0x52: {"stind.i1", operandNone},
	0x53: {"stind.i2", operandNone},
	0x54: {"stind.i4", operandNone},
	0x55: {"stind.i8", operandNone},
	0x56: {"stind.r4", operandNone},
	0x57: {"stind.r8", operandNone},
	0x58: {"add", operandNone},
	0x59: {"sub", operandNone},
	0x5A: {"mul", operandNone},
	0x5B: {"div", operandNone},
	0x5C: {"div.un", operandNone},
	0x5D: {"rem", operandNone},
	0x5E: {"rem.un", operandNone},
	0x5F: {"and", operandNone},
	0x60: {"or", operandNone},
	0x61: {"xor", operandNone},
	0x62: {"shl", operandNone},
	0x63: {"shr", operandNone},
	0x64: {"shr.un", operandNone},
	0x65: {"neg", operandNone},
	0x66: {"not", operandNone},
	0x67: {"conv.i1", operandNone},
	0x68: {"conv.i2", operandNone},
	0x69: {"conv.i4", operandNone},
	0x6A: {"conv.i8", operandNone},
	0x6B: {"conv.r4", operandNone},
	0x6C: {"conv.r8", operandNone},
	0x6D: {"conv.u4", operandNone},
	0x6E: {"conv.u8", operandNone},
	0x6F: {"callvirt", operandToken},
	0x70: {"cpobj", operandToken},
	0x71: {"ldobj", operandToken},
	0x72: {"ldstr", operandToken},
	0x73: {"newobj", operandToken},
	0x74: {"castclass", operandToken},
	0x75: {"isinst", operandToken},
	0x76: {"conv.r.un", operandNone},
	0x79: {"unbox", operandToken},
	0x7A: {"throw", operandNone},
	0x7B: {"ldfld", operandToken},
	0x7C: {"ldflda", operandToken},
	0x7D: {"stfld", operandToken},
	0x7E: {"ldsfld", operandToken},
	0x7F: {"ldsflda", operandToken},
	0x80: {"stsfld", operandToken},
	0x81: {"stobj", operandToken},
	0x82: {"conv.ovf.i1.un", operandNone},
	0x83: {"conv.ovf.i2.un", operandNone},
	0x84: {"conv.ovf.i4.un", operandNone},
	0x85: {"conv.ovf.i8.un", operandNone},
	0x86: {"conv.ovf.u1.un", operandNone},
	0x87: {"conv.ovf.u2.un", operandNone},
	0x88: {"conv.ovf.u4.un", operandNone},
	0x89: {"conv.ovf.u8.un", operandNone},
	0x8A: {"conv.ovf.i.un", operandNone},
	0x8B: {"conv.ovf.u.un", operandNone},
	0x8C: {"box", operandToken},
	0x8D: {"newarr", operandToken},
	0x8E: {"ldlen", operandNone},
	0x8F: {"ldelema", operandToken},
	0x90: {"ldelem.i1", operandNone},
	0x91: {"ldelem.u1", operandNone},
	0x92: {"ldelem.i2", operandNone},
	0x93: {"ldelem.u2", operandNone},
	0x94: {"ldelem.i4", operandNone},
	0x95: {"ldelem.u4", operandNone},
	0x96: {"ldelem.i8", operandNone},
	0x97: {"ldelem.i", operandNone},
	0x98: {"ldelem.r4", operandNone},
	0x99: {"ldelem.r8", operandNone},
	0x9A: {"ldelem.ref", operandNone},
	0x9B: {"stelem.i", operandNone},
	0x9C: {"stelem.i1", operandNone},
	0x9D: {"stelem.i2", operandNone},
	0x9E: {"stelem.i4", operandNone},
	0x9F: {"stelem.i8", operandNone},
	0xA0: {"stelem.r4", operandNone},
	0xA1: {"stelem.r8", operandNone},
	0xA2: {"stelem.ref", operandNone},
	0xA3: {"ldelem", operandToken},
	0xA4: {"stelem", operandToken},
	0xA5: {"unbox.any", operandToken},
	0xB3: {"conv.ovf.i1", operandNone},
	0xB4: {"conv.ovf.u1", operandNone},
	0xB5: {"conv.ovf.i2", operandNone},
	0xB6: {"conv.ovf.u2", operandNone},
	0xB7: {"conv.ovf.i4", operandNone},
	0xB8: {"conv.ovf.u4", operandNone},
	0xB9: {"conv.ovf.i8", operandNone},
	0xBA: {"conv.ovf.u8", operandNone},
	0xC2: {"refanyval", operandToken},
	0xC3: {"ckfinite", operandNone},
	0xC6: {"mkrefany", operandToken},
	0xD0: {"ldtoken", operandToken},
	0xD1: {"conv.u2", operandNone},
	0xD2: {"conv.u1", operandNone},
	0xD3: {"conv.i", operandNone},
	0xD4: {"conv.ovf.i", operandNone},
	0xD5: {"conv.ovf.u", operandNone},
	0xD6: {"add.ovf", operandNone},
	0xD7: {"add.ovf.un", operandNone},
	0xD8: {"mul.ovf", operandNone},
	0xD9: {"mul.ovf.un", operandNone},
	0xDA: {"sub.ovf", operandNone},
	0xDB: {"sub.ovf.un", operandNone},
	0xDC: {"endfinally", operandNone},
	0xDD: {"leave", operandBranch32},
	0xDE: {"leave.s", operandBranch8},
	0xDF: {"stind.i", operandNone},
	0xE0: {"conv.u", operandNone},
}

// Two-byte opcodes, prefixed with 0xFE.
var opcodesFE = [256]opcode{
	0x00: {"arglist", operandNone},
	0x01: {"ceq", operandNone},
	0x02: {"cgt", operandNone},
	0x03: {"cgt.un", operandNone},
	0x04: {"clt", operandNone},
	0x05: {"clt.un", operandNone},
	0x06: {"ldftn", operandToken},
	0x07: {"ldvirtftn", operandToken},
	0x09: {"ldarg", operandUInt16},
	0x0A: {"ldarga", operandUInt16},
	0x0B: {"starg", operandUInt16},
	0x0C: {"ldloc", operandUInt16},
	0x0D: {"ldloca", operandUInt16},
	0x0E: {"stloc", operandUInt16},
	0x0F: {"localloc", operandNone},
	0x11: {"endfilter", operandNone},
	0x12: {"unaligned.", operandUInt8},
	0x13: {"volatile.", operandNone},
	0x14: {"tail.", operandNone},
	0x15: {"initobj", operandToken},
	0x16: {"constrained.", operandToken},
	0x17: {"cpblk", operandNone},
	0x18: {"initblk", operandNone},
	0x19: {"no.", operandUInt8},
	0x1A: {"rethrow", operandNone},
	0x1C: {"sizeof", operandToken},
	0x1D: {"refanytype", operandNone},
	0x1E: {"readonly.", operandNone},
}
