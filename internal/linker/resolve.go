package linker

import (
	"fmt"

	"github.com/aarch64ld/ld64/internal/elfobj"
)

// ResolveSymbols builds the global-symbol table: for every GLOBAL-bound,
// defined, named symbol across every input file, compute its final virtual
// address from the merged section layout. Ported from
// LinkerContext::resolve_symbols in elkr's linker.rs, with one behavior
// change: a second definition of an already-resolved name is a hard error
// (ErrMultipleDefinition) rather than a silently-ignored no-op — the
// original's first-writer-wins behavior is a likely bug, not a feature.
func (c *Context) ResolveSymbols() error {
	c.tracer.Phase("Resolving symbols")

	for fileIdx, file := range c.inputFiles {
		for _, symbol := range file.Symbols {
			if symbol.Bind() != elfobj.STBGlobal {
				continue // LOCAL and WEAK are not resolved here
			}
			name, ok := elfobj.SymbolName(file.StrtabData, symbol)
			if !ok || name == "" {
				continue
			}
			if symbol.Undefined() {
				continue // referencing this is a hard error at relocation time
			}
			shndx := int(symbol.Shndx)
			if shndx <= 0 || shndx >= len(file.Sections) {
				continue
			}

			section := file.Sections[shndx]
			sectionName, ok := elfobj.SectionName(file.ShstrtabData, section)
			if !ok {
				continue
			}
			out, exists := c.outputSections[sectionName]
			if !exists {
				continue
			}

			finalAddr := out.Header.Addr + c.inputSectionOffset(fileIdx, shndx) + symbol.Value

			if existing, dup := c.globalSymbols[name]; dup {
				if existing.definedIn == file.Filename && existing.addr == finalAddr {
					continue // identical re-encounter, not a real duplicate
				}
				return fmt.Errorf("%s: symbol %q already defined in %s: %w",
					file.Filename, name, existing.definedIn, ErrMultipleDefinition)
			}

			c.globalSymbols[name] = globalSymbol{addr: finalAddr, definedIn: file.Filename}
			c.tracer.Symbolf(name, "0x%x (%s+0x%x in %s)", finalAddr, sectionName, symbol.Value, file.Filename)
		}
	}
	return nil
}

// SymbolAddress returns the final virtual address of a resolved global
// symbol.
func (c *Context) SymbolAddress(name string) (uint64, bool) {
	s, ok := c.globalSymbols[name]
	return s.addr, ok
}
