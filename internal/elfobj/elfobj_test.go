package elfobj_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aarch64ld/ld64/internal/elfobj"
	"github.com/aarch64ld/ld64/internal/elfobj/elftest"
)

func buildSimpleObject() []byte {
	b := elftest.NewBuilder()
	text := b.AddSection(elftest.Section{
		Name:      ".text",
		Type:      elfobj.SHTProgBits,
		Flags:     elfobj.SHFAlloc | elfobj.SHFExecInstr,
		Data:      []byte{0x00, 0x00, 0x80, 0xd2, 0xc0, 0x03, 0x5f, 0xd6}, // mov x0,#0; ret
		AddrAlign: 4,
	})
	b.AddSymbol(elftest.Sym{Name: "_start", Bind: elfobj.STBGlobal, Type: elfobj.STTFunc, Shndx: uint16(text), Value: 0})
	b.AddRela(text, elftest.RelaEntry{Offset: 0, SymIndex: 1, Type: elfobj.RAArch64Call26, Addend: 0})
	return b.Build()
}

func TestParseHeaderRoundTrip(t *testing.T) {
	raw := buildSimpleObject()
	h, err := elfobj.ParseHeader(raw)
	require.NoError(t, err)
	assert.Equal(t, byte(elfobj.Class64), h.Class)
	assert.Equal(t, byte(elfobj.Data2LSB), h.Data)
	assert.Equal(t, uint16(elfobj.ETRel), h.Type)
	assert.Equal(t, uint16(elfobj.EMAArch64), h.Machine)
}

func TestParseHeaderRejectsBadMagic(t *testing.T) {
	raw := buildSimpleObject()
	raw[0] = 0x00
	_, err := elfobj.ParseHeader(raw)
	assert.ErrorIs(t, err, elfobj.ErrBadMagic)
}

func TestParseHeaderRejectsShortInput(t *testing.T) {
	_, err := elfobj.ParseHeader([]byte{0x7f, 'E', 'L', 'F'})
	assert.ErrorIs(t, err, elfobj.ErrShortInput)
}

func TestParseHeaderRejectsUnsupportedMachine(t *testing.T) {
	raw := buildSimpleObject()
	h, err := elfobj.ParseHeader(raw)
	require.NoError(t, err)
	_ = h
	raw[18] = 0x03 // e_machine low byte -> EM_386, not AArch64
	raw[19] = 0x00
	_, err = elfobj.ParseHeader(raw)
	assert.ErrorIs(t, err, elfobj.ErrUnsupportedTarget)
}

func TestParseSectionHeaderTableAndNames(t *testing.T) {
	raw := buildSimpleObject()
	h, err := elfobj.ParseHeader(raw)
	require.NoError(t, err)

	sections, err := elfobj.ParseSectionHeaderTable(raw, h)
	require.NoError(t, err)
	require.NotEmpty(t, sections)

	shstrtab := sections[h.Shstrndx]
	shstrtabData := raw[shstrtab.Offset : shstrtab.Offset+shstrtab.Size]

	var gotText bool
	for _, s := range sections {
		name, ok := elfobj.SectionName(shstrtabData, s)
		if ok && name == ".text" {
			gotText = true
			assert.Equal(t, uint64(elfobj.SHFAlloc|elfobj.SHFExecInstr), s.Flags)
		}
	}
	assert.True(t, gotText, "expected a .text section in the table")
}

func TestParseSymbolTable(t *testing.T) {
	raw := buildSimpleObject()
	h, err := elfobj.ParseHeader(raw)
	require.NoError(t, err)
	sections, err := elfobj.ParseSectionHeaderTable(raw, h)
	require.NoError(t, err)

	var symtab *elfobj.SectionHeader
	for i := range sections {
		if sections[i].Type == elfobj.SHTSymTab {
			symtab = &sections[i]
		}
	}
	require.NotNil(t, symtab)

	strtab := sections[symtab.Link]
	strtabData := raw[strtab.Offset : strtab.Offset+strtab.Size]

	symbols, err := elfobj.ParseSymbolTable(raw, *symtab)
	require.NoError(t, err)
	require.Len(t, symbols, 2) // null + _start

	name, ok := elfobj.SymbolName(strtabData, symbols[1])
	require.True(t, ok)
	assert.Equal(t, "_start", name)
	assert.Equal(t, byte(elfobj.STBGlobal), symbols[1].Bind())
	assert.Equal(t, byte(elfobj.STTFunc), symbols[1].Type())
	assert.False(t, symbols[1].Undefined())
}

func TestParseRelaTable(t *testing.T) {
	raw := buildSimpleObject()
	h, err := elfobj.ParseHeader(raw)
	require.NoError(t, err)
	sections, err := elfobj.ParseSectionHeaderTable(raw, h)
	require.NoError(t, err)

	var rela *elfobj.SectionHeader
	for i := range sections {
		if sections[i].Type == elfobj.SHTRela {
			rela = &sections[i]
		}
	}
	require.NotNil(t, rela)

	relas, err := elfobj.ParseRelaTable(raw, *rela)
	require.NoError(t, err)
	require.Len(t, relas, 1)
	assert.Equal(t, uint32(elfobj.RAArch64Call26), relas[0].Type())
	assert.Equal(t, uint32(1), relas[0].SymbolIndex())
}

func TestParseSectionHeaderTableRejectsTruncatedFile(t *testing.T) {
	raw := buildSimpleObject()
	h, err := elfobj.ParseHeader(raw)
	require.NoError(t, err)
	truncated := raw[:h.Shoff+10]
	_, err = elfobj.ParseSectionHeaderTable(truncated, h)
	assert.ErrorIs(t, err, elfobj.ErrMalformed)
}
