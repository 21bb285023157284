package expr

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"sync"
	"time"

	"golang.org/x/text/unicode/norm"
)

// Domain prefix for content-addressed expression identity. The version
// suffix enables future encoding migration.
const domainExpr = "tably/expr/v1"

// hashMemo caches digests by node pointer. Nodes are immutable after
// construction, so a pointer's digest never changes; structurally equal
// nodes built independently still hash to the same digest.
var hashMemo sync.Map // Expr -> string

// Hash computes the content-addressed identity of an expression:
// SHA-256 over the domain prefix, a null separator, and the canonical
// node encoding. Equal structure yields equal hashes regardless of how
// or where the nodes were built.
//
// Map and Apply nodes contribute their caller-declared Tag, not the
// function value: opaque closures are an unchecked boundary.
func Hash(e Expr) string {
	if h, ok := hashMemo.Load(e); ok {
		return h.(string)
	}
	h := sha256.New()
	h.Write([]byte(domainExpr))
	h.Write([]byte{0x00}) // separator prevents domain/data ambiguity
	h.Write(encode(e))
	digest := hex.EncodeToString(h.Sum(nil))
	hashMemo.Store(e, digest)
	return digest
}

// encode produces the canonical byte encoding of a node: its kind, its
// parameters in a fixed per-kind order, and its sub-expressions' hashes.
func encode(e Expr) []byte {
	var buf bytes.Buffer
	buf.WriteString(string(e.Kind()))
	buf.WriteByte('(')
	switch n := e.(type) {
	case *Symbol:
		writeString(&buf, n.Name)
		writeString(&buf, n.Typ.String())
	case *Literal:
		writeLiteral(&buf, n.Value)
	case *Projection:
		writeChild(&buf, n.Child)
		for _, f := range n.Fields {
			writeString(&buf, f)
		}
	case *Field:
		writeChild(&buf, n.Child)
		writeString(&buf, n.Name)
	case *Broadcast:
		writeString(&buf, string(n.Op))
		for _, o := range n.Operands {
			writeChild(&buf, o)
		}
	case *Map:
		writeChild(&buf, n.Child)
		writeString(&buf, n.Tag)
		writeString(&buf, n.Out.String())
	case *Label:
		writeChild(&buf, n.Child)
		writeString(&buf, n.Name)
	case *ReLabel:
		writeChild(&buf, n.Child)
		for _, r := range n.Renames {
			writeString(&buf, r.From)
			writeString(&buf, r.To)
		}
	case *DateTimeAttr:
		writeChild(&buf, n.Child)
		writeString(&buf, string(n.Attr))
	case *Merge:
		for _, p := range n.Parts {
			writeChild(&buf, p)
		}
	case *Selection:
		writeChild(&buf, n.Child)
		writeChild(&buf, n.Predicate)
	case *Reduction:
		writeString(&buf, string(n.Op))
		writeChild(&buf, n.Child)
		writeBool(&buf, n.Unbiased)
	case *Summary:
		for _, f := range n.Fields {
			writeString(&buf, f.Name)
			writeChild(&buf, f.Value)
		}
	case *By:
		writeChild(&buf, n.Grouper)
		writeChild(&buf, n.Apply)
	case *Distinct:
		writeChild(&buf, n.Child)
	case *Sort:
		writeChild(&buf, n.Child)
		for _, f := range n.Fields {
			writeString(&buf, f)
		}
		if n.KeyExpr != nil {
			writeChild(&buf, n.KeyExpr)
		}
		writeBool(&buf, n.Ascending)
	case *Head:
		writeChild(&buf, n.Child)
		writeInt(&buf, n.N)
	case *Like:
		writeChild(&buf, n.Child)
		for _, p := range n.Patterns {
			writeString(&buf, p.Field)
			writeString(&buf, p.Glob)
		}
	case *Slice:
		writeChild(&buf, n.Child)
		writeBool(&buf, n.Index.Range)
		writeInt(&buf, n.Index.At)
		writeInt(&buf, n.Index.Start)
		writeInt(&buf, n.Index.Stop)
	case *Apply:
		writeChild(&buf, n.Child)
		writeString(&buf, n.Tag)
		writeString(&buf, n.Out.String())
	case *Union:
		for _, t := range n.Tables {
			writeChild(&buf, t)
		}
	case *Join:
		writeChild(&buf, n.Lhs)
		writeChild(&buf, n.Rhs)
		for _, k := range n.OnLeft {
			writeString(&buf, k)
		}
		for _, k := range n.OnRight {
			writeString(&buf, k)
		}
		writeString(&buf, string(n.How))
	}
	buf.WriteByte(')')
	return buf.Bytes()
}

func writeChild(buf *bytes.Buffer, e Expr) {
	buf.WriteString(Hash(e))
	buf.WriteByte(',')
}

// writeString writes an NFC-normalized, quoted string. Normalization
// keeps visually identical field names from hashing differently.
func writeString(buf *bytes.Buffer, s string) {
	buf.WriteString(strconv.Quote(norm.NFC.String(s)))
	buf.WriteByte(',')
}

func writeBool(buf *bytes.Buffer, b bool) {
	if b {
		buf.WriteString("true,")
	} else {
		buf.WriteString("false,")
	}
}

func writeInt(buf *bytes.Buffer, n int64) {
	buf.WriteString(strconv.FormatInt(n, 10))
	buf.WriteByte(',')
}

// writeLiteral encodes a constant with an explicit type tag so 1,
// 1.0, and "1" never collide.
func writeLiteral(buf *bytes.Buffer, v any) {
	switch val := v.(type) {
	case string:
		buf.WriteString("s:")
		writeString(buf, val)
	case bool:
		buf.WriteString("b:")
		writeBool(buf, val)
	case int:
		buf.WriteString("i:")
		writeInt(buf, int64(val))
	case int64:
		buf.WriteString("i:")
		writeInt(buf, val)
	case float64:
		buf.WriteString("f:")
		buf.WriteString(strconv.FormatFloat(val, 'g', -1, 64))
		buf.WriteByte(',')
	case time.Time:
		buf.WriteString("t:")
		writeString(buf, val.UTC().Format(time.RFC3339Nano))
	default:
		// NewLiteral rejects other types; keep encoding total anyway.
		buf.WriteString(fmt.Sprintf("x:%T:%v,", val, val))
	}
}
