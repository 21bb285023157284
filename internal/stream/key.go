package stream

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/tably/tably/internal/rowfn"
)

// keyOf renders a row or scalar into a deterministic string key for
// grouping, distinct, and join indexing. Values are normalized first
// so int 1 and int64 1 collapse, and type-tagged so int64 1, float64
// 1.0, and "1" stay distinct.
func keyOf(v any) string {
	var b strings.Builder
	writeKey(&b, v)
	return b.String()
}

func writeKey(b *strings.Builder, v any) {
	switch val := rowfn.Normalize(v).(type) {
	case nil:
		b.WriteString("n;")
	case []any:
		b.WriteByte('[')
		for _, e := range val {
			writeKey(b, e)
		}
		b.WriteByte(']')
	case string:
		b.WriteString("s:")
		b.WriteString(strconv.Quote(val))
		b.WriteByte(';')
	case bool:
		b.WriteString("b:")
		b.WriteString(strconv.FormatBool(val))
		b.WriteByte(';')
	case int64:
		b.WriteString("i:")
		b.WriteString(strconv.FormatInt(val, 10))
		b.WriteByte(';')
	case float64:
		b.WriteString("f:")
		b.WriteString(strconv.FormatFloat(val, 'g', -1, 64))
		b.WriteByte(';')
	case time.Time:
		b.WriteString("t:")
		b.WriteString(strconv.FormatInt(val.UnixNano(), 10))
		b.WriteByte(';')
	default:
		// Opaque values key by their formatted representation.
		b.WriteString("x:")
		b.WriteString(strconv.Quote(fmt.Sprintf("%v", val)))
		b.WriteByte(';')
	}
}
