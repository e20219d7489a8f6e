package linker

import (
	"fmt"
	"os"

	"github.com/aarch64ld/ld64/internal/trace"
)

// Options configures a single invocation of Link.
type Options struct {
	// BaseAddress overrides DefaultBaseAddress when non-zero.
	BaseAddress uint64
	// Entry overrides the _start/main entry-point lookup when non-empty.
	Entry string
	// Tracer receives phase-by-phase diagnostics; nil is silent.
	Tracer *trace.Tracer
	// DumpSymbols, when set, is called with the fully resolved global
	// symbol table once the link has finished successfully.
	DumpSymbols func(map[string]uint64)
}

// Link runs the full four-phase static link over inputPaths — read,
// decode, merge sections, resolve symbols, apply relocations — and
// returns the finished executable image. It does not write to disk;
// callers write the returned bytes to outputPath themselves (see
// cmd/aarch64ld).
func Link(inputPaths []string, opts Options) ([]byte, error) {
	if len(inputPaths) == 0 {
		return nil, fmt.Errorf("linker: no input files")
	}

	c := NewContext()
	if opts.Tracer != nil {
		c.SetTracer(opts.Tracer)
	}
	if opts.BaseAddress != 0 {
		c.SetBaseAddress(opts.BaseAddress)
	}

	for _, path := range inputPaths {
		content, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", path, err)
		}
		if err := c.AddFile(path, content); err != nil {
			return nil, err
		}
	}

	if err := c.Layout(); err != nil {
		return nil, err
	}
	if err := c.ResolveSymbols(); err != nil {
		return nil, err
	}
	if err := c.ApplyRelocations(); err != nil {
		return nil, err
	}

	image, err := c.WriteExecutable(opts.Entry)
	if err != nil {
		return nil, err
	}

	if opts.DumpSymbols != nil {
		snapshot := make(map[string]uint64, len(c.globalSymbols))
		for name, sym := range c.globalSymbols {
			snapshot[name] = sym.addr
		}
		opts.DumpSymbols(snapshot)
	}

	return image, nil
}
