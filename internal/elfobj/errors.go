package elfobj

import "errors"

// Decode-time error kinds.
var (
	// ErrBadMagic means the file does not start with \x7fELF.
	ErrBadMagic = errors.New("elfobj: bad magic")
	// ErrUnsupportedTarget means class/data/machine isn't ELF64/LE/AArch64.
	ErrUnsupportedTarget = errors.New("elfobj: unsupported target (want ELF64 LE AArch64)")
	// ErrShortInput means fewer than 64 bytes remain for the file header.
	ErrShortInput = errors.New("elfobj: input shorter than an ELF header")
	// ErrMalformed covers zero entsize, non-divisible table sizes, and
	// offsets that index past the end of the file.
	ErrMalformed = errors.New("elfobj: malformed section table")
)
