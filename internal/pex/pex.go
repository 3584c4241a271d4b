// Package pex provides helpers for opening managed PE binaries,
// locating the CLI header and metadata streams, and mapping relative
// virtual addresses to file offsets.
package pex

import (
	"bytes"
	"debug/pe"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"strings"
	"unicode/utf16"
)

// ErrNotManaged reports a PE file without a CLI header.
var ErrNotManaged = errors.New("no CLI header: not a managed assembly")

const metadataSignature = 0x424A5342 // "BSJB"

// Cor20 is the CLI (COM descriptor) header.
type Cor20 struct {
	Size                    uint32
	MajorRuntimeVersion     uint16
	MinorRuntimeVersion     uint16
	MetadataRVA             uint32
	MetadataSize            uint32
	Flags                   uint32
	EntryPointToken         uint32
	ResourcesRVA            uint32
	ResourcesSize           uint32
	StrongNameSignatureRVA  uint32
	StrongNameSignatureSize uint32
}

// Image is an opened managed PE file with its metadata streams
// located and the #~ tables decoded into raw rows.
type Image struct {
	Path           string
	File           *pe.File
	All            []byte
	Cor20          Cor20
	RuntimeVersion string
	Tables         Tables

	stringsHeap []byte
	usHeap      []byte
	guidHeap    []byte
	blobHeap    []byte
}

// Open reads the file, verifies the PE and CLI headers, and decodes
// the metadata streams.
func Open(path string) (*Image, error) {
	all, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}

	f, err := pe.NewFile(bytes.NewReader(all))
	if err != nil {
		return nil, fmt.Errorf("parse PE: %w", err)
	}

	im := &Image{Path: path, File: f, All: all}

	dir, ok := comDescriptorDirectory(f)
	if !ok || dir.VirtualAddress == 0 {
		return nil, ErrNotManaged
	}

	cor, ok := im.SliceRVA(dir.VirtualAddress, 72)
	if !ok {
		return nil, fmt.Errorf("CLI header at rva 0x%x: out of mapped range", dir.VirtualAddress)
	}
	if err := binary.Read(bytes.NewReader(cor), binary.LittleEndian, &im.Cor20); err != nil {
		return nil, fmt.Errorf("decode CLI header: %w", err)
	}

	if err := im.readMetadata(); err != nil {
		return nil, fmt.Errorf("decode metadata: %w", err)
	}
	return im, nil
}

// IsLibrary reports whether the image is a DLL.
func (im *Image) IsLibrary() bool {
	return im.File.Characteristics&pe.IMAGE_FILE_DLL != 0
}

// Subsystem returns the PE optional-header subsystem value.
func (im *Image) Subsystem() uint16 {
	switch oh := im.File.OptionalHeader.(type) {
	case *pe.OptionalHeader32:
		return oh.Subsystem
	case *pe.OptionalHeader64:
		return oh.Subsystem
	}
	return 0
}

func comDescriptorDirectory(f *pe.File) (pe.DataDirectory, bool) {
	switch oh := f.OptionalHeader.(type) {
	case *pe.OptionalHeader32:
		if int(oh.NumberOfRvaAndSizes) > pe.IMAGE_DIRECTORY_ENTRY_COM_DESCRIPTOR {
			return oh.DataDirectory[pe.IMAGE_DIRECTORY_ENTRY_COM_DESCRIPTOR], true
		}
	case *pe.OptionalHeader64:
		if int(oh.NumberOfRvaAndSizes) > pe.IMAGE_DIRECTORY_ENTRY_COM_DESCRIPTOR {
			return oh.DataDirectory[pe.IMAGE_DIRECTORY_ENTRY_COM_DESCRIPTOR], true
		}
	}
	return pe.DataDirectory{}, false
}

// RVA2Off translates a relative virtual address into a file offset
// using the section table. It returns false if the RVA is unmapped.
func (im *Image) RVA2Off(rva uint32) (uint32, bool) {
	for _, s := range im.File.Sections {
		if rva >= s.VirtualAddress && rva < s.VirtualAddress+s.VirtualSize {
			return s.Offset + (rva - s.VirtualAddress), true
		}
	}
	return 0, false
}

// SliceRVA returns a subslice of the file corresponding to the range
// [rva, rva+size). It returns (nil, false) if the RVA is unmapped or
// the range runs past the end of the file.
func (im *Image) SliceRVA(rva, size uint32) ([]byte, bool) {
	off, ok := im.RVA2Off(rva)
	if !ok {
		return nil, false
	}
	end := uint64(off) + uint64(size)
	if end > uint64(len(im.All)) {
		return nil, false
	}
	return im.All[off:end], true
}

// FromRVA returns the file contents from the RVA to the end of the
// file. Callers parse their own length prefix (method bodies).
func (im *Image) FromRVA(rva uint32) ([]byte, bool) {
	off, ok := im.RVA2Off(rva)
	if !ok || int(off) >= len(im.All) {
		return nil, false
	}
	return im.All[off:], true
}

func (im *Image) readMetadata() error {
	root, ok := im.SliceRVA(im.Cor20.MetadataRVA, im.Cor20.MetadataSize)
	if !ok {
		return fmt.Errorf("metadata at rva 0x%x: out of mapped range", im.Cor20.MetadataRVA)
	}
	if len(root) < 20 || binary.LittleEndian.Uint32(root) != metadataSignature {
		return errors.New("bad metadata signature")
	}

	verLen := binary.LittleEndian.Uint32(root[12:])
	if 16+verLen > uint32(len(root)) {
		return errors.New("runtime version string out of range")
	}
	im.RuntimeVersion = strings.TrimRight(string(root[16:16+verLen]), "\x00")

	p := 16 + int(verLen)
	if p+4 > len(root) {
		return errors.New("truncated stream table")
	}
	streamCount := int(binary.LittleEndian.Uint16(root[p+2:]))
	p += 4

	var tableStream []byte
	for i := 0; i < streamCount; i++ {
		if p+8 > len(root) {
			return errors.New("truncated stream header")
		}
		off := binary.LittleEndian.Uint32(root[p:])
		size := binary.LittleEndian.Uint32(root[p+4:])
		p += 8
		nameStart := p
		for p < len(root) && root[p] != 0 {
			p++
		}
		name := string(root[nameStart:p])
		// Names are null-padded to a 4-byte boundary.
		p += 4 - (p-nameStart)%4

		if uint64(off)+uint64(size) > uint64(len(root)) {
			return fmt.Errorf("stream %q out of range", name)
		}
		data := root[off : off+size]
		switch name {
		case "#~", "#-":
			tableStream = data
		case "#Strings":
			im.stringsHeap = data
		case "#US":
			im.usHeap = data
		case "#GUID":
			im.guidHeap = data
		case "#Blob":
			im.blobHeap = data
		}
	}

	if tableStream == nil {
		return errors.New("missing #~ stream")
	}
	return im.readTables(tableStream)
}

// String reads a null-terminated string from the #Strings heap.
func (im *Image) String(idx uint32) string {
	if idx >= uint32(len(im.stringsHeap)) {
		return ""
	}
	end := idx
	for end < uint32(len(im.stringsHeap)) && im.stringsHeap[end] != 0 {
		end++
	}
	return string(im.stringsHeap[idx:end])
}

// GUID reads the 1-based GUID heap entry.
func (im *Image) GUID(idx uint32) ([16]byte, bool) {
	var g [16]byte
	if idx == 0 {
		return g, false
	}
	off := (idx - 1) * 16
	if uint64(off)+16 > uint64(len(im.guidHeap)) {
		return g, false
	}
	copy(g[:], im.guidHeap[off:off+16])
	return g, true
}

// Blob reads a length-prefixed blob from the #Blob heap.
func (im *Image) Blob(idx uint32) []byte {
	data, _ := blobAt(im.blobHeap, idx)
	return data
}

// UserString reads a UTF-16 string from the #US heap by offset, as
// referenced by ldstr tokens.
func (im *Image) UserString(off uint32) (string, bool) {
	data, n := blobAt(im.usHeap, off)
	if n == 0 {
		return "", false
	}
	// Trailing byte is the "has special chars" flag.
	if len(data)%2 == 1 {
		data = data[:len(data)-1]
	}
	u16 := make([]uint16, len(data)/2)
	for i := range u16 {
		u16[i] = binary.LittleEndian.Uint16(data[i*2:])
	}
	return string(utf16.Decode(u16)), true
}

// blobAt decodes the ECMA-335 compressed length prefix and returns
// the blob contents plus the number of bytes consumed (0 on failure).
func blobAt(heap []byte, idx uint32) ([]byte, int) {
	if idx >= uint32(len(heap)) {
		return nil, 0
	}
	b := heap[idx:]
	var length uint32
	var head int
	switch {
	case b[0]&0x80 == 0:
		length, head = uint32(b[0]), 1
	case b[0]&0xC0 == 0x80:
		if len(b) < 2 {
			return nil, 0
		}
		length, head = uint32(b[0]&0x3F)<<8|uint32(b[1]), 2
	case b[0]&0xE0 == 0xC0:
		if len(b) < 4 {
			return nil, 0
		}
		length = uint32(b[0]&0x1F)<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
		head = 4
	default:
		return nil, 0
	}
	if uint64(head)+uint64(length) > uint64(len(b)) {
		return nil, 0
	}
	return b[head : uint32(head)+length], head
}
