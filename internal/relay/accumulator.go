package relay

import (
	"encoding/json"
	"strings"
)

// Accumulator collects streamed tool-call argument fragments per call id.
// The upstream delivers raw JSON text in arbitrary slices; buffers grow by
// concatenation only and live for one relay session.
type Accumulator struct {
	buffers map[string]*strings.Builder
}

func NewAccumulator() *Accumulator {
	return &Accumulator{buffers: make(map[string]*strings.Builder)}
}

// Accumulate appends fragment to the buffer for id and returns the full
// buffer so far, plus whether this was the first fragment seen for id.
func (a *Accumulator) Accumulate(id, fragment string) (string, bool) {
	buf, ok := a.buffers[id]
	if !ok {
		buf = &strings.Builder{}
		a.buffers[id] = buf
	}
	buf.WriteString(fragment)
	return buf.String(), !ok
}

// Get returns the buffer accumulated so far for id.
func (a *Accumulator) Get(id string) string {
	if buf, ok := a.buffers[id]; ok {
		return buf.String()
	}
	return ""
}

// ExtractStringField pulls the value of field out of buffer, which holds a
// possibly incomplete JSON object. A complete parse is tried first; when the
// buffer is still mid-stream the field is located textually and its value
// hand-walked so that escaped quotes do not terminate the scan early and a
// half-received escape sequence is never leaked into the result.
//
// The walked value is a prefix of the final value: extraction over a growing
// buffer only ever gets longer, which is what lets the relay emit suffix
// deltas against a high-water mark.
func ExtractStringField(buffer, field string) (string, bool) {
	var parsed map[string]interface{}
	if err := json.Unmarshal([]byte(buffer), &parsed); err == nil {
		if val, ok := parsed[field].(string); ok {
			return val, true
		}
		return "", false
	}

	idx := strings.Index(buffer, `"`+field+`"`)
	if idx < 0 {
		return "", false
	}

	i := idx + len(field) + 2
	i = skipSpaces(buffer, i)
	if i >= len(buffer) || buffer[i] != ':' {
		return "", false
	}
	i = skipSpaces(buffer, i+1)
	if i >= len(buffer) || buffer[i] != '"' {
		return "", false
	}
	i++

	var raw strings.Builder
	for i < len(buffer) {
		ch := buffer[i]
		if ch == '\\' {
			if i+1 >= len(buffer) {
				// Trailing half of an escape sequence; the next fragment completes it.
				break
			}
			raw.WriteByte(ch)
			raw.WriteByte(buffer[i+1])
			i += 2
			continue
		}
		if ch == '"' {
			break
		}
		raw.WriteByte(ch)
		i++
	}

	return unescape(raw.String()), true
}

func skipSpaces(s string, i int) int {
	for i < len(s) && (s[i] == ' ' || s[i] == '\t' || s[i] == '\n' || s[i] == '\r') {
		i++
	}
	return i
}

func unescape(s string) string {
	if !strings.ContainsRune(s, '\\') {
		return s
	}

	var out strings.Builder
	out.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if s[i] != '\\' || i+1 >= len(s) {
			out.WriteByte(s[i])
			continue
		}
		i++
		switch s[i] {
		case 'n':
			out.WriteByte('\n')
		case 't':
			out.WriteByte('\t')
		case 'r':
			out.WriteByte('\r')
		case '"':
			out.WriteByte('"')
		case '\\':
			out.WriteByte('\\')
		default:
			out.WriteByte('\\')
			out.WriteByte(s[i])
		}
	}
	return out.String()
}
