package linker

import (
	"encoding/binary"
	"fmt"

	"github.com/aarch64ld/ld64/internal/elfobj"
)

const (
	ptLoad = 1
	pfR    = 4
	pfW    = 2
	pfX    = 1

	etExec = 2
)

// programHeader mirrors the wire layout of an ELF64 program header:
// p_type, p_flags, p_offset, p_vaddr, p_paddr, p_filesz, p_memsz, p_align.
type programHeader struct {
	pType  uint32
	flags  uint32
	offset uint64
	vaddr  uint64
	paddr  uint64
	filesz uint64
	memsz  uint64
	align  uint64
}

// EntryPoint resolves the executable's entry address. A non-empty override
// is the only name looked up, and it is an error if it is undefined;
// otherwise _start is tried, then main, matching write_executable's lookup
// order in elkr's linker.rs.
func (c *Context) EntryPoint(override string) (uint64, error) {
	if override != "" {
		addr, ok := c.SymbolAddress(override)
		if !ok {
			return 0, fmt.Errorf("%s: %w", override, ErrNoEntryPoint)
		}
		return addr, nil
	}
	if addr, ok := c.SymbolAddress("_start"); ok {
		return addr, nil
	}
	if addr, ok := c.SymbolAddress("main"); ok {
		return addr, nil
	}
	return 0, ErrNoEntryPoint
}

// WriteExecutable assembles the final statically-linked ELF64 AArch64
// executable image: one PT_LOAD segment covering the headers and every
// SHF_EXECINSTR output section, a second covering everything else, and no
// section header table at all. Ported field-for-field from
// write_executable in elkr's linker.rs.
func (c *Context) WriteExecutable(entryOverride string) ([]byte, error) {
	c.tracer.Phase("Emitting executable")

	entryPoint, err := c.EntryPoint(entryOverride)
	if err != nil {
		return nil, err
	}
	c.tracer.Addrf("entry", entryPoint, "")

	var codeSections, dataSections []*OutputSection
	names := append([]string(nil), c.outputOrder...)
	sortByAddr(names, c.outputSections)
	for _, name := range names {
		out := c.outputSections[name]
		if out.Header.Flags&elfobj.SHFExecInstr != 0 {
			codeSections = append(codeSections, out)
		} else {
			dataSections = append(dataSections, out)
		}
	}

	codeSegmentStartVaddr := c.BaseAddress
	codeSegmentFileOffset := uint64(0)
	var codeSize uint64
	for _, sec := range codeSections {
		codeSize += sec.Header.Size
	}
	codeSegmentFilesz := headersSize + codeSize
	codeSegmentMemsz := codeSegmentFilesz

	codeSegmentFileOffsetAligned := alignUp(codeSegmentFileOffset, pageSize)
	codeSegmentStartVaddrAligned := alignUp(codeSegmentStartVaddr, pageSize)

	dataSegmentStartVaddr := alignUp(codeSegmentStartVaddr+codeSegmentMemsz, pageSize)
	dataSegmentFileOffset := alignUp(codeSegmentFilesz, pageSize)
	var dataSegmentFilesz, dataSegmentMemsz uint64
	for _, sec := range dataSections {
		dataSegmentMemsz += sec.Header.Size
		if sec.Header.Type != elfobj.SHTNoBits {
			dataSegmentFilesz += sec.Header.Size
		}
	}

	codeHeader := programHeader{
		pType:  ptLoad,
		flags:  pfR | pfX,
		offset: codeSegmentFileOffsetAligned,
		vaddr:  codeSegmentStartVaddrAligned,
		paddr:  codeSegmentStartVaddrAligned,
		filesz: codeSegmentFilesz,
		memsz:  codeSegmentMemsz,
		align:  pageSize,
	}
	dataHeader := programHeader{
		pType:  ptLoad,
		flags:  pfR | pfW,
		offset: dataSegmentFileOffset,
		vaddr:  dataSegmentStartVaddr,
		paddr:  dataSegmentStartVaddr,
		filesz: dataSegmentFilesz,
		memsz:  dataSegmentMemsz,
		align:  pageSize,
	}

	if len(c.inputFiles) == 0 {
		return nil, fmt.Errorf("linker: no input files to derive an ELF header from")
	}
	srcHeader := c.inputFiles[0].Header

	buf := make([]byte, 0, headersSize+int(codeSize)+int(dataSegmentFilesz)+int(pageSize))

	// e_ident
	buf = append(buf, 0x7f, 'E', 'L', 'F', elfobj.Class64, elfobj.Data2LSB, 1, 0, 0, 0, 0, 0, 0, 0, 0, 0)

	var scratch [8]byte
	put16 := func(v uint16) {
		binary.LittleEndian.PutUint16(scratch[:2], v)
		buf = append(buf, scratch[:2]...)
	}
	put32 := func(v uint32) {
		binary.LittleEndian.PutUint32(scratch[:4], v)
		buf = append(buf, scratch[:4]...)
	}
	put64 := func(v uint64) {
		binary.LittleEndian.PutUint64(scratch[:8], v)
		buf = append(buf, scratch[:8]...)
	}

	put16(etExec)
	put16(srcHeader.Machine)
	put32(1) // e_version
	put64(entryPoint)
	put64(elfHeaderSize)              // e_phoff
	put64(0)                          // e_shoff: no section header table
	put32(srcHeader.Flags)
	put16(elfHeaderSize)
	put16(programHeaderSize)
	put16(numProgramHeaders)
	put16(0) // e_shentsize
	put16(0) // e_shnum
	put16(0) // e_shstrndx

	for _, ph := range []programHeader{codeHeader, dataHeader} {
		put32(ph.pType)
		put32(ph.flags)
		put64(ph.offset)
		put64(ph.vaddr)
		put64(ph.paddr)
		put64(ph.filesz)
		put64(ph.memsz)
		put64(ph.align)
	}

	if ph := codeHeader.offset; uint64(len(buf)) < ph {
		buf = append(buf, make([]byte, ph-uint64(len(buf)))...)
	}
	for _, sec := range codeSections {
		buf = append(buf, sec.Data...)
	}

	if off := dataHeader.offset; uint64(len(buf)) < off {
		buf = append(buf, make([]byte, off-uint64(len(buf)))...)
	}
	for _, sec := range dataSections {
		if sec.Header.Type != elfobj.SHTNoBits {
			buf = append(buf, sec.Data...)
		}
	}

	return buf, nil
}

func sortByAddr(names []string, sections map[string]*OutputSection) {
	for i := 1; i < len(names); i++ {
		for j := i; j > 0 && sections[names[j-1]].Header.Addr > sections[names[j]].Header.Addr; j-- {
			names[j-1], names[j] = names[j], names[j-1]
		}
	}
}
