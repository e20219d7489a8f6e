package linker

import "errors"

// Sentinel errors for the linker package. Wrap these with
// fmt.Errorf("...: %w", Err...) to attach the file/symbol/section context
// a diagnostic needs.
var (
	// ErrConsistencyViolation fires when a PROGBITS/NOBITS section whose
	// name starts with ".rel" is encountered during layout — relocation
	// sections are SHT_RELA, never SHT_PROGBITS, so this means the
	// input's section table is corrupt or lying about its own types.
	ErrConsistencyViolation = errors.New("linker: relocation-shaped section presented as PROGBITS/NOBITS")

	// ErrNoEntryPoint fires when an explicit --entry override names no
	// defined global symbol, or, without an override, when neither _start
	// nor main does.
	ErrNoEntryPoint = errors.New("linker: no entry point (_start or main required)")

	// ErrMultipleDefinition fires when two files both provide a GLOBAL
	// definition of the same symbol name. The reference implementation
	// this linker is ported from let the first writer win silently; this
	// linker treats that as the bug it is and rejects the link instead.
	ErrMultipleDefinition = errors.New("linker: multiple definition of global symbol")

	// ErrUndefinedReference fires when a relocation names a symbol with
	// no global definition anywhere in the link. The reference
	// implementation skipped these silently; this linker rejects them.
	ErrUndefinedReference = errors.New("linker: undefined reference")

	// ErrRelocationOverflow fires when a CALL26/JUMP26 displacement does
	// not fit in the signed 26-bit immediate field.
	ErrRelocationOverflow = errors.New("linker: relocation displacement overflows imm26")

	// ErrUnsupportedLocalRelocation fires when a relocation targets a
	// LOCAL-bound symbol. This linker does not relocate locals, so it
	// rejects such inputs outright instead of silently emitting broken
	// code.
	ErrUnsupportedLocalRelocation = errors.New("linker: relocation against a local symbol is unsupported")

	// ErrUnknownRelocationTarget fires when a RELA section's target
	// section never made it into the merged output-section set (for
	// example, because it wasn't SHF_ALLOC).
	ErrUnknownRelocationTarget = errors.New("linker: relocation targets a section that was not merged into the output")

	// ErrUnsupportedRelocationType fires for a relocation type outside
	// the six this linker implements: ABS64, ABS32, ABS16, PREL32,
	// JUMP26, CALL26.
	ErrUnsupportedRelocationType = errors.New("linker: unsupported relocation type")
)
