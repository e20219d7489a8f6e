// Package elftest builds minimal, valid ELF64 little-endian AArch64
// relocatable object files in memory, for use as test fixtures across the
// elfobj and linker packages. It is test-only scaffolding, not part of the
// linker's production decode/encode path.
package elftest

import (
	"encoding/binary"

	"github.com/aarch64ld/ld64/internal/elfobj"
)

// Section describes one section to place in the built object.
type Section struct {
	Name      string
	Type      uint32
	Flags     uint64
	Data      []byte // used verbatim for SHT_PROGBITS
	Size      uint64 // used for SHT_NOBITS (Data must be nil)
	AddrAlign uint64
}

// Sym describes one symbol-table entry (the null symbol at index 0 is
// added automatically and need not be listed).
type Sym struct {
	Name  string
	Bind  byte
	Type  byte
	Shndx uint16
	Value uint64
	Size  uint64
}

// RelaEntry describes one RELA entry targeting a section added earlier.
type RelaEntry struct {
	TargetSection int // index returned by Builder.AddSection
	Offset        uint64
	SymIndex      uint32 // index returned by Builder.AddSymbol (1-based)
	Type          uint32
	Addend        int64
}

// Builder accumulates sections, symbols and relocations and serializes them
// into a byte slice shaped like a real linker's `.o` output.
type Builder struct {
	sections []Section
	symbols  []Sym
	relas    map[int][]RelaEntry
}

// NewBuilder returns an empty object builder.
func NewBuilder() *Builder {
	return &Builder{relas: make(map[int][]RelaEntry)}
}

// AddSection appends a section and returns its 1-based index (0 is
// reserved for the null section, matching every real ELF file).
func (b *Builder) AddSection(s Section) int {
	b.sections = append(b.sections, s)
	return len(b.sections)
}

// AddSymbol appends a symbol and returns its 1-based index (0 is the
// reserved null symbol).
func (b *Builder) AddSymbol(s Sym) uint32 {
	b.symbols = append(b.symbols, s)
	return uint32(len(b.symbols))
}

// AddRela records a relocation against the section identified by
// targetSection (as returned from AddSection).
func (b *Builder) AddRela(targetSection int, r RelaEntry) {
	r.TargetSection = targetSection
	b.relas[targetSection] = append(b.relas[targetSection], r)
}

// Build serializes the accumulated sections/symbols/relocations into a
// complete ELF64 LE AArch64 ET_REL byte image.
func (b *Builder) Build() []byte {
	// Section layout: [0]=NULL, [1..n]=user sections, then one
	// .rela<name> per section that has relocations, then .symtab,
	// .strtab, .shstrtab.
	type secOut struct {
		name      string
		shType    uint32
		flags     uint64
		link      uint32
		info      uint32
		addralign uint64
		entsize   uint64
		data      []byte
		sizeOnly  uint64 // for NOBITS
	}

	var secs []secOut
	secs = append(secs, secOut{}) // NULL section

	for _, s := range b.sections {
		secs = append(secs, secOut{
			name:      s.Name,
			shType:    s.Type,
			flags:     s.Flags,
			addralign: s.AddrAlign,
			data:      s.Data,
			sizeOnly:  s.Size,
		})
	}

	symtabIdx := 0 // filled in after we know where .symtab lands
	for srcIdx := 1; srcIdx <= len(b.sections); srcIdx++ {
		relas, ok := b.relas[srcIdx]
		if !ok {
			continue
		}
		var data []byte
		for _, r := range relas {
			var entry [24]byte
			binary.LittleEndian.PutUint64(entry[0:8], r.Offset)
			info := (uint64(r.SymIndex) << 32) | uint64(r.Type)
			binary.LittleEndian.PutUint64(entry[8:16], info)
			binary.LittleEndian.PutUint64(entry[16:24], uint64(r.Addend))
			data = append(data, entry[:]...)
		}
		secs = append(secs, secOut{
			name:    ".rela" + b.sections[srcIdx-1].Name,
			shType:  elfobj.SHTRela,
			info:    uint32(srcIdx),
			entsize: 24,
			data:    data,
		})
	}

	// .strtab (symbol names)
	strtab := []byte{0}
	strOff := make([]uint32, len(b.symbols))
	for i, s := range b.symbols {
		strOff[i] = uint32(len(strtab))
		strtab = append(strtab, []byte(s.Name)...)
		strtab = append(strtab, 0)
	}

	// .symtab (null symbol + user symbols)
	symtabData := make([]byte, 24*(len(b.symbols)+1))
	for i, s := range b.symbols {
		off := 24 * (i + 1)
		binary.LittleEndian.PutUint32(symtabData[off:off+4], strOff[i])
		symtabData[off+4] = (s.Bind << 4) | (s.Type & 0x0f)
		symtabData[off+5] = 0
		binary.LittleEndian.PutUint16(symtabData[off+6:off+8], s.Shndx)
		binary.LittleEndian.PutUint64(symtabData[off+8:off+16], s.Value)
		binary.LittleEndian.PutUint64(symtabData[off+16:off+24], s.Size)
	}

	symtabIdx = len(secs) // index .symtab will occupy once appended (NULL is index 0)
	strtabIdx := symtabIdx + 1
	secs = append(secs, secOut{name: ".symtab", shType: elfobj.SHTSymTab, link: uint32(strtabIdx), entsize: 24, data: symtabData})
	secs = append(secs, secOut{name: ".strtab", shType: elfobj.SHTStrTab, data: strtab})

	// .shstrtab (section names)
	shstrtab := []byte{0}
	shNameOff := make([]uint32, len(secs))
	for i, s := range secs {
		if s.name == "" {
			continue
		}
		shNameOff[i] = uint32(len(shstrtab))
		shstrtab = append(shstrtab, []byte(s.name)...)
		shstrtab = append(shstrtab, 0)
	}
	shstrtabIdx := len(secs)
	shNameOff = append(shNameOff, uint32(len(shstrtab)))
	shstrtab = append(shstrtab, []byte(".shstrtab")...)
	shstrtab = append(shstrtab, 0)
	secs = append(secs, secOut{name: ".shstrtab", shType: elfobj.SHTStrTab, data: shstrtab})

	// Now lay out file offsets: header, then each section's raw bytes
	// back-to-back (no alignment needed for a test fixture), then the
	// section header table.
	const ehsize = 64
	offsets := make([]uint64, len(secs))
	cursor := uint64(ehsize)
	for i, s := range secs {
		offsets[i] = cursor
		if s.shType == elfobj.SHTNoBits {
			continue // NOBITS contributes no file bytes
		}
		cursor += uint64(len(s.data))
	}
	shoff := cursor

	buf := make([]byte, shoff+uint64(len(secs))*64)

	// ELF header.
	copy(buf[0:4], []byte{0x7f, 'E', 'L', 'F'})
	buf[4] = elfobj.Class64
	buf[5] = elfobj.Data2LSB
	buf[6] = 1 // EV_CURRENT
	buf[7] = 0 // ELFOSABI_NONE
	buf[8] = 0
	binary.LittleEndian.PutUint16(buf[16:18], elfobj.ETRel)
	binary.LittleEndian.PutUint16(buf[18:20], elfobj.EMAArch64)
	binary.LittleEndian.PutUint32(buf[20:24], 1)
	binary.LittleEndian.PutUint64(buf[24:32], 0) // e_entry
	binary.LittleEndian.PutUint64(buf[32:40], 0) // e_phoff
	binary.LittleEndian.PutUint64(buf[40:48], shoff)
	binary.LittleEndian.PutUint32(buf[48:52], 0)
	binary.LittleEndian.PutUint16(buf[52:54], ehsize)
	binary.LittleEndian.PutUint16(buf[54:56], 0)
	binary.LittleEndian.PutUint16(buf[56:58], 0)
	binary.LittleEndian.PutUint16(buf[58:60], 64)
	binary.LittleEndian.PutUint16(buf[60:62], uint16(len(secs)))
	binary.LittleEndian.PutUint16(buf[62:64], uint16(shstrtabIdx))

	// Section bytes.
	for i, s := range secs {
		if s.shType == elfobj.SHTNoBits {
			continue
		}
		copy(buf[offsets[i]:], s.data)
	}

	// Section header table.
	for i, s := range secs {
		off := shoff + uint64(i)*64
		entry := buf[off : off+64]
		binary.LittleEndian.PutUint32(entry[0:4], shNameOff[i])
		binary.LittleEndian.PutUint32(entry[4:8], s.shType)
		binary.LittleEndian.PutUint64(entry[8:16], s.flags)
		binary.LittleEndian.PutUint64(entry[16:24], 0) // addr: unset in relocatables
		binary.LittleEndian.PutUint64(entry[24:32], offsets[i])
		size := uint64(len(s.data))
		if s.shType == elfobj.SHTNoBits {
			size = s.sizeOnly
		}
		binary.LittleEndian.PutUint64(entry[32:40], size)
		binary.LittleEndian.PutUint32(entry[40:44], s.link)
		binary.LittleEndian.PutUint32(entry[44:48], s.info)
		binary.LittleEndian.PutUint64(entry[48:56], s.addralign)
		binary.LittleEndian.PutUint64(entry[56:64], s.entsize)
	}

	return buf
}
