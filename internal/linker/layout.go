package linker

import (
	"fmt"
	"sort"
	"strings"

	"github.com/aarch64ld/ld64/internal/elfobj"
)

// sectionPriority orders output sections the way a human reading a memory
// map expects: code, then read-only data, then data, then bss, then
// anything else in first-seen order.
func sectionPriority(name string) int {
	switch name {
	case ".text":
		return 0
	case ".rodata":
		return 1
	case ".data":
		return 2
	case ".bss":
		return 3
	default:
		return 4
	}
}

func alignUp(addr, align uint64) uint64 {
	if align == 0 {
		return addr
	}
	return (addr + align - 1) &^ (align - 1)
}

// Layout merges same-named allocatable sections across every input file,
// assigns each merged section a virtual address, and records the byte
// offset at which each input section's bytes begin inside its merged
// output section. Ported from LinkerContext::layout_and_merge_sections in
// elkr's linker.rs.
func (c *Context) Layout() error {
	c.tracer.Phase("Laying out and merging sections")

	if err := c.accumulateSizes(); err != nil {
		return err
	}
	c.assignAddresses()
	if err := c.copySectionData(); err != nil {
		return err
	}
	return nil
}

func (c *Context) accumulateSizes() error {
	for _, file := range c.inputFiles {
		for _, section := range file.Sections {
			if section.Type != elfobj.SHTProgBits && section.Type != elfobj.SHTNoBits {
				continue
			}
			name, ok := elfobj.SectionName(file.ShstrtabData, section)
			if !ok || name == "" {
				continue
			}
			if strings.HasPrefix(name, ".rel") {
				return fmt.Errorf("%s: section %q: %w", file.Filename, name, ErrConsistencyViolation)
			}
			if section.Flags&elfobj.SHFAlloc == 0 {
				continue // not loaded at runtime: .comment, .note.GNU-stack, ...
			}

			out, exists := c.outputSections[name]
			if !exists {
				header := section
				header.Size = 0
				header.Addr = 0
				out = &OutputSection{Name: name, Header: header}
				c.outputSections[name] = out
				c.outputOrder = append(c.outputOrder, name)
			}
			out.Header.Size += section.Size
		}
	}
	return nil
}

func (c *Context) assignAddresses() {
	c.currentAddr += headersSize

	names := append([]string(nil), c.outputOrder...)
	sort.SliceStable(names, func(i, j int) bool {
		return sectionPriority(names[i]) < sectionPriority(names[j])
	})

	for _, name := range names {
		out := c.outputSections[name]
		c.currentAddr = alignUp(c.currentAddr, out.Header.AddrAlign)
		out.Header.Addr = c.currentAddr
		out.Data = make([]byte, out.Header.Size)
		c.tracer.Addrf(name, out.Header.Addr, "size=0x%x", out.Header.Size)
		c.currentAddr += out.Header.Size
	}
}

func (c *Context) copySectionData() error {
	writeCursor := make(map[string]uint64)

	for fileIdx, file := range c.inputFiles {
		for secIdx, section := range file.Sections {
			if section.Type != elfobj.SHTProgBits {
				continue
			}
			name, ok := elfobj.SectionName(file.ShstrtabData, section)
			if !ok || name == "" {
				continue
			}
			out, exists := c.outputSections[name]
			if !exists {
				continue
			}

			offset := writeCursor[name]
			c.inputSectionOffsets[inputSectionKey{fileIdx, secIdx}] = offset

			start := int(section.Offset)
			end := start + int(section.Size)
			if start < 0 || end > len(file.Content) || end < start {
				return fmt.Errorf("%s: section %q: %w", file.Filename, name, elfobj.ErrMalformed)
			}
			if offset+section.Size > out.Header.Size {
				return fmt.Errorf("%s: section %q overruns merged %s (offset 0x%x + size 0x%x > 0x%x)",
					file.Filename, name, name, offset, section.Size, out.Header.Size)
			}

			copy(out.Data[offset:offset+section.Size], file.Content[start:end])
			writeCursor[name] = offset + section.Size
		}
	}
	return nil
}

// inputSectionOffset returns the byte offset within its merged output
// section at which the given input section's bytes begin, defaulting to 0
// when no bytes were ever copied for it (e.g. SHT_NOBITS sections, which
// contribute size but no data).
func (c *Context) inputSectionOffset(fileIdx, secIdx int) uint64 {
	return c.inputSectionOffsets[inputSectionKey{fileIdx, secIdx}]
}
