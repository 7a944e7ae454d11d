package metadata

import "fmt"

// TableKind identifies the metadata table a token points into. It occupies
// the high byte of every token.
type TableKind uint8

// Metadata tables referenced by tokens the capture pipeline handles.
const (
	TableModule     TableKind = 0x00
	TableTypeRef    TableKind = 0x01
	TableTypeDef    TableKind = 0x02
	TableField      TableKind = 0x04
	TableMethodDef  TableKind = 0x06
	TableParam      TableKind = 0x08
	TableMemberRef  TableKind = 0x0A
	TableTypeSpec   TableKind = 0x1B
	TableAssembly   TableKind = 0x20
	TableMethodSpec TableKind = 0x2B
)

// Token is an ECMA-335 metadata token: a table kind in the high byte and a
// 1-based row id in the low 24 bits.
type Token uint32

// NewToken builds a token for row in table. Row ids larger than 24 bits are
// truncated.
func NewToken(table TableKind, row uint32) Token {
	return Token(uint32(table)<<24 | row&0x00ffffff)
}

// Table returns the table kind encoded in the token.
func (t Token) Table() TableKind {
	return TableKind(uint32(t) >> 24)
}

// Row returns the row id encoded in the token.
func (t Token) Row() uint32 {
	return uint32(t) & 0x00ffffff
}

// IsNil reports whether the token has no row.
func (t Token) IsNil() bool {
	return t.Row() == 0
}

func (t Token) String() string {
	return fmt.Sprintf("0x%08x", uint32(t))
}
