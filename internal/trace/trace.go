// Package trace prints phase-by-phase linker diagnostics to stderr when
// verbose mode is on. It is kept external to the core pipeline — nothing
// in here affects link semantics, it only narrates what the core already
// decided.
//
// The shape is lifted from flapc's VerboseMode-gated fmt.Fprintf(os.Stderr)
// calls (see elf_complete.go/plt_got.go), colorized the way cucaracha's
// cmd/cpu/debug.go colorizes its own trace output.
package trace

import (
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
)

var (
	phaseColor  = color.New(color.FgHiWhite, color.Bold, color.Underline)
	fileColor   = color.New(color.FgHiBlue)
	symbolColor = color.New(color.FgHiGreen)
	addrColor   = color.New(color.FgCyan)
	warnColor   = color.New(color.FgYellow, color.Bold)
)

// Tracer writes colorized diagnostics when enabled, and is silent (and
// cheap to call) when it isn't. A nil *Tracer is valid and silent too, so
// call sites never need a nil check before tracing.
type Tracer struct {
	enabled bool
	out     io.Writer
}

// New returns a Tracer that writes to os.Stderr when enabled is true.
func New(enabled bool) *Tracer {
	return &Tracer{enabled: enabled, out: os.Stderr}
}

// Phase announces the start of a link phase ("Loading inputs", "Laying out
// sections", ...).
func (t *Tracer) Phase(name string) {
	if t == nil || !t.enabled {
		return
	}
	phaseColor.Fprintf(t.out, "=== %s ===\n", name)
}

// Filef logs a per-input-file diagnostic.
func (t *Tracer) Filef(filename, format string, args ...any) {
	if t == nil || !t.enabled {
		return
	}
	fileColor.Fprintf(t.out, "  [%s] ", filename)
	fmt.Fprintf(t.out, format+"\n", args...)
}

// Symbolf logs a symbol-resolution or relocation diagnostic, highlighting
// the symbol name.
func (t *Tracer) Symbolf(name string, format string, args ...any) {
	if t == nil || !t.enabled {
		return
	}
	fmt.Fprint(t.out, "  ")
	symbolColor.Fprint(t.out, name)
	fmt.Fprint(t.out, ": ")
	fmt.Fprintf(t.out, format+"\n", args...)
}

// Addrf logs an address/layout diagnostic, highlighting the hex value.
func (t *Tracer) Addrf(label string, addr uint64, format string, args ...any) {
	if t == nil || !t.enabled {
		return
	}
	fmt.Fprintf(t.out, "  %s @ ", label)
	addrColor.Fprintf(t.out, "0x%x", addr)
	fmt.Fprint(t.out, " ")
	fmt.Fprintf(t.out, format+"\n", args...)
}

// Warnf logs a permissive-but-notable condition.
func (t *Tracer) Warnf(format string, args ...any) {
	if t == nil || !t.enabled {
		return
	}
	warnColor.Fprintf(t.out, "warning: "+format+"\n", args...)
}
