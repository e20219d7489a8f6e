// Package linker implements the four-phase AArch64 static link: merge and
// lay out allocatable sections from every input, resolve global symbols
// against the merged layout, patch relocations into the merged section
// bytes, and emit a statically-linked ELF64 executable.
//
// The algorithms here are a direct Go port of elkr's linker.rs, adapted to
// reject four behaviors of that reference implementation rather than
// reproduce them: silently-won duplicate definitions, silently-skipped
// undefined references, silently-truncated imm26 displacements, and
// relocations against LOCAL-bound symbols, which this linker does not
// relocate.
package linker

import (
	"fmt"

	"github.com/aarch64ld/ld64/internal/elfobj"
	"github.com/aarch64ld/ld64/internal/trace"
)

// DefaultBaseAddress is the virtual address the first byte of the output
// image is loaded at, absent a --base-address override.
const DefaultBaseAddress = 0x400000

const (
	elfHeaderSize     = 64
	programHeaderSize = 56
	numProgramHeaders = 2
	pageSize          = 0x1000
)

// headersSize is the file-and-address space every link reserves up front
// for the ELF header and the two program headers, before any section is
// placed.
const headersSize = elfHeaderSize + numProgramHeaders*programHeaderSize

// InputFile bundles one input object's raw bytes with everything decoded
// out of it. It is read-only once constructed and outlives every later
// phase.
type InputFile struct {
	Filename     string
	Content      []byte
	Header       elfobj.Header
	Sections     []elfobj.SectionHeader
	Symbols      []elfobj.Symbol
	ShstrtabData []byte
	StrtabData   []byte
}

// SectionName resolves the name of the section at index idx within this
// file, or "" if idx is out of range or the name is unreadable.
func (f *InputFile) SectionName(idx int) string {
	if idx < 0 || idx >= len(f.Sections) {
		return ""
	}
	name, ok := elfobj.SectionName(f.ShstrtabData, f.Sections[idx])
	if !ok {
		return ""
	}
	return name
}

// OutputSection is the merged image of every input section sharing a name.
type OutputSection struct {
	Name   string
	Header elfobj.SectionHeader
	Data   []byte
}

// globalSymbol records a resolved global symbol's final virtual address
// and which input file supplied the winning definition, so a later
// duplicate can be reported with both file names.
type globalSymbol struct {
	addr       uint64
	definedIn  string
}

// inputSectionKey identifies one input section for the offset table.
type inputSectionKey struct {
	fileIdx int
	secIdx  int
}

// Context is the linker's process-wide workspace: every input file, the
// merged output sections, the resolved global-symbol table, the running
// address cursor, and the input-section offset table layout populates.
type Context struct {
	BaseAddress uint64

	inputFiles          []InputFile
	outputSections      map[string]*OutputSection
	outputOrder         []string // first-seen order, for deterministic iteration
	globalSymbols       map[string]globalSymbol
	currentAddr         uint64
	inputSectionOffsets map[inputSectionKey]uint64

	tracer *trace.Tracer
}

// NewContext returns an empty linker workspace with the default base
// address and a silent tracer.
func NewContext() *Context {
	return &Context{
		BaseAddress:         DefaultBaseAddress,
		outputSections:      make(map[string]*OutputSection),
		globalSymbols:       make(map[string]globalSymbol),
		currentAddr:         DefaultBaseAddress,
		inputSectionOffsets: make(map[inputSectionKey]uint64),
		tracer:              trace.New(false),
	}
}

// SetTracer installs a diagnostic tracer; nil disables tracing.
func (c *Context) SetTracer(t *trace.Tracer) {
	c.tracer = t
}

// SetBaseAddress overrides the link's base virtual address, rounding it up
// to a page boundary first. The layout cursor that assigns section
// addresses and the emitter's code-segment p_vaddr both derive from
// BaseAddress, so seeding it pre-aligned here is what keeps the two in
// agreement — see write_executable's own base_addr page-rounding in
// elkr's linker.rs, which this mirrors at the point of assignment instead
// of reapplying it inconsistently in each consumer.
func (c *Context) SetBaseAddress(addr uint64) {
	aligned := alignUp(addr, pageSize)
	if aligned != addr {
		c.tracer.Warnf("base address 0x%x is not page-aligned, rounding up to 0x%x", addr, aligned)
	}
	c.BaseAddress = aligned
	c.currentAddr = aligned
}

// AddFile parses content as an ELF64 LE AArch64 relocatable object and adds
// it to the link, in the order files must be processed in (command-line
// order). It locates .strtab via the .symtab section's Link field and
// .shstrtab via the file header's Shstrndx field, exactly as elkr's
// LinkerContext::add_file does.
func (c *Context) AddFile(filename string, content []byte) error {
	header, err := elfobj.ParseHeader(content)
	if err != nil {
		return fmt.Errorf("%s: %w", filename, err)
	}
	if header.Type != elfobj.ETRel {
		return fmt.Errorf("%s: %w (e_type=%d, want ET_REL)", filename, elfobj.ErrUnsupportedTarget, header.Type)
	}

	sections, err := elfobj.ParseSectionHeaderTable(content, header)
	if err != nil {
		return fmt.Errorf("%s: %w", filename, err)
	}

	if int(header.Shstrndx) >= len(sections) {
		return fmt.Errorf("%s: %w (e_shstrndx out of range)", filename, elfobj.ErrMalformed)
	}
	shstrtabHeader := sections[header.Shstrndx]
	shstrtabData, err := sliceSection(content, shstrtabHeader)
	if err != nil {
		return fmt.Errorf("%s: shstrtab: %w", filename, err)
	}

	var symtabHeader *elfobj.SectionHeader
	for i := range sections {
		if sections[i].Type == elfobj.SHTSymTab {
			symtabHeader = &sections[i]
			break
		}
	}

	var symbols []elfobj.Symbol
	var strtabData []byte
	if symtabHeader != nil {
		if int(symtabHeader.Link) >= len(sections) {
			return fmt.Errorf("%s: %w (.symtab link out of range)", filename, elfobj.ErrMalformed)
		}
		strtabHeader := sections[symtabHeader.Link]
		strtabData, err = sliceSection(content, strtabHeader)
		if err != nil {
			return fmt.Errorf("%s: strtab: %w", filename, err)
		}

		symbols, err = elfobj.ParseSymbolTable(content, *symtabHeader)
		if err != nil {
			return fmt.Errorf("%s: symtab: %w", filename, err)
		}
	}

	c.tracer.Filef(filename, "parsed: %d sections, %d symbols", len(sections), len(symbols))

	c.inputFiles = append(c.inputFiles, InputFile{
		Filename:     filename,
		Content:      content,
		Header:       header,
		Sections:     sections,
		Symbols:      symbols,
		ShstrtabData: shstrtabData,
		StrtabData:   strtabData,
	})
	return nil
}

func sliceSection(content []byte, sh elfobj.SectionHeader) ([]byte, error) {
	start := int(sh.Offset)
	end := start + int(sh.Size)
	if start < 0 || end > len(content) || end < start {
		return nil, elfobj.ErrMalformed
	}
	return content[start:end], nil
}
