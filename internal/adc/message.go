// Package adc implements the ADC wire protocol: message parsing/encoding
// for the command set this client speaks (SCH/RES/CTM/RCM/BINF/INF/MSG/
// STA/SUP), a fixed-tag, space-separated, backslash-escaped line format.
package adc

import (
	"fmt"
	"strconv"
	"strings"
)

// Severity is a STA message's status class.
type Severity int

const (
	SeveritySuccess Severity = iota
	SeverityRecoverable
	SeverityFatal
)

// ADC error reason codes this client recognizes; these mirror
// internal/core's Reason constants but are the wire-level integers ADC
// actually transmits in a STA message's three-digit code.
const (
	CodeFileNotAvailable  = 51
	CodeSlotsFull         = 53
)

// Message is a parsed ADC command: a 3-letter command code (e.g. "INF",
// "SCH"; the leading header letter is not part of it), an optional source/target CID pair depending on the
// message header type, and ordered named parameters.
type Message struct {
	Cmd    string
	Header byte // 'B' broadcast, 'C' client, 'D' direct, 'E' echo, 'F' feature, 'I' info, 'U' udp
	From   string
	To     string // only set for 'D'/'E' headers
	Params []string
}

// Parse decodes one ADC protocol line (without the trailing \n).
func Parse(line string) (*Message, error) {
	fields := splitUnescaped(line)
	if len(fields) == 0 {
		return nil, fmt.Errorf("adc: empty message")
	}
	head := fields[0]
	if len(head) < 4 {
		return nil, fmt.Errorf("adc: malformed command %q", head)
	}
	m := &Message{Cmd: head[:3], Header: head[3]}

	idx := 1
	switch m.Header {
	case 'B', 'I', 'F', 'U':
		if idx < len(fields) {
			m.From = fields[idx]
			idx++
		}
	case 'C':
		// client-to-hub-to-client broadcast with no explicit source field
	case 'D', 'E':
		if idx+1 < len(fields) {
			m.From, m.To = fields[idx], fields[idx+1]
			idx += 2
		}
	}
	m.Params = fields[idx:]
	return m, nil
}

// Get returns the value of a two-letter-keyed parameter (e.g. "SI" in
// "SI1234"), or "" if absent.
func (m *Message) Get(key string) string {
	for _, p := range m.Params {
		if strings.HasPrefix(p, key) {
			return p[len(key):]
		}
	}
	return ""
}

// GetInt64 parses a numeric parameter, returning 0 if absent or invalid.
func (m *Message) GetInt64(key string) int64 {
	v, _ := strconv.ParseInt(m.Get(key), 10, 64)
	return v
}

// Encode serializes the message back to wire form.
func (m *Message) Encode() string {
	var b strings.Builder
	b.WriteString(m.Cmd)
	b.WriteByte(m.Header)
	if m.From != "" {
		b.WriteByte(' ')
		b.WriteString(m.From)
	}
	if m.To != "" {
		b.WriteByte(' ')
		b.WriteString(m.To)
	}
	for _, p := range m.Params {
		b.WriteByte(' ')
		b.WriteString(escape(p))
	}
	return b.String()
}

// escape applies ADC's backslash escaping (space, backslash, newline).
func escape(s string) string {
	r := strings.NewReplacer("\\", "\\\\", " ", "\\s", "\n", "\\n")
	return r.Replace(s)
}

func unescape(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+1 < len(s) {
			i++
			switch s[i] {
			case 's':
				b.WriteByte(' ')
			case 'n':
				b.WriteByte('\n')
			case '\\':
				b.WriteByte('\\')
			default:
				b.WriteByte(s[i])
			}
			continue
		}
		b.WriteByte(s[i])
	}
	return b.String()
}

// splitUnescaped splits line on unescaped spaces, then unescapes each field.
func splitUnescaped(line string) []string {
	var fields []string
	var cur strings.Builder
	for i := 0; i < len(line); i++ {
		if line[i] == '\\' && i+1 < len(line) {
			cur.WriteByte(line[i])
			cur.WriteByte(line[i+1])
			i++
			continue
		}
		if line[i] == ' ' {
			fields = append(fields, unescape(cur.String()))
			cur.Reset()
			continue
		}
		cur.WriteByte(line[i])
	}
	fields = append(fields, unescape(cur.String()))
	return fields
}

// NewSearch builds a "BSCH" search request with the given include tokens
// and TTH-direct lookup support.
func NewSearch(from string, include []string, tth string) *Message {
	m := &Message{Cmd: "SCH", Header: 'B', From: from}
	if tth != "" {
		m.Params = append(m.Params, "TR"+tth)
		return m
	}
	for _, tok := range include {
		m.Params = append(m.Params, "AN"+tok)
	}
	return m
}

// NewResult builds a "RES" search result response to a search's requester.
func NewResult(from, to, virtualPath string, size int64, tth string) *Message {
	return &Message{
		Cmd: "RES", Header: 'D', From: from, To: to,
		Params: []string{"FN" + virtualPath, "SI" + strconv.FormatInt(size, 10), "TR" + tth},
	}
}

// NewStatus builds an "STA" status message.
func NewStatus(header byte, from string, sev Severity, code int, message string) *Message {
	return &Message{
		Cmd: "STA", Header: header, From: from,
		Params: []string{fmt.Sprintf("%d%02d", sev, code), message},
	}
}
