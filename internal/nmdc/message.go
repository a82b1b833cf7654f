// Package nmdc implements the legacy NMDC wire protocol:
// $Search/$SR/$MyINFO/$ConnectToMe/$RevConnectToMe/$To:/$Hello/$Quit/
// $OpList/$Lock/$Key/$GetPass, with CP1252/CP437 "replace on error"
// decoding since NMDC predates UTF-8 and hubs still commonly use either
// legacy codepage.
package nmdc

import (
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
)

// Encoding selects which legacy codepage a hub uses; ADC hubs never reach
// this package, so the default is CP1252, the more common of the two.
type Encoding int

const (
	CP1252 Encoding = iota
	CP437
)

func decoder(enc Encoding) *encoding.Decoder {
	if enc == CP437 {
		return charmap.CodePage437.NewDecoder()
	}
	return charmap.Windows1252.NewDecoder()
}

// Decode converts a legacy-codepage NMDC line to UTF-8, replacing any byte
// sequence the codepage can't represent with U+FFFD rather than failing
// the whole line.
func Decode(raw []byte, enc Encoding) string {
	out, err := decoder(enc).Bytes(raw)
	if err != nil {
		// Decoder already replaces unmappable bytes; an error here means a
		// transform-level failure, not a codepage gap — fall back to the
		// raw bytes reinterpreted as UTF-8 with replacement runes.
		return strings.ToValidUTF8(string(raw), "�")
	}
	return string(out)
}

// Encode converts UTF-8 back to the legacy codepage for outbound messages.
func Encode(s string, enc Encoding) []byte {
	var enc2 *encoding.Encoder
	if enc == CP437 {
		enc2 = charmap.CodePage437.NewEncoder()
	} else {
		enc2 = charmap.Windows1252.NewEncoder()
	}
	out, err := enc2.Bytes([]byte(s))
	if err != nil {
		return []byte(s)
	}
	return out
}

// Message is one parsed NMDC command line (without the trailing '|').
type Message struct {
	Type string // "Search", "MyINFO", "ConnectToMe", ...
	Raw  string // everything after "$Type "
}

// Parse splits a raw NMDC line (sans trailing pipe) into its command type
// and payload. Chat lines (no leading '$') are returned with Type "Chat".
func Parse(line string) *Message {
	if !strings.HasPrefix(line, "$") {
		return &Message{Type: "Chat", Raw: line}
	}
	body := line[1:]
	sp := strings.IndexByte(body, ' ')
	if sp < 0 {
		return &Message{Type: body}
	}
	return &Message{Type: body[:sp], Raw: body[sp+1:]}
}

// SearchRequest is a parsed $Search payload (passive form:
// "$Search Hub:nick F?T?0?1?pattern"; active form: "$Search ip:port
// F?T?0?1?pattern").
type SearchRequest struct {
	Passive    bool
	Nick       string // set when Passive
	Address    string // "ip:port" when active
	SizeLimited bool
	IsMax      bool
	Size       int64
	FileType   int
	Pattern    string
}

// ParseSearch decodes a $Search payload per the classic NMDC grammar.
func ParseSearch(raw string) (SearchRequest, error) {
	sp := strings.IndexByte(raw, ' ')
	if sp < 0 {
		return SearchRequest{}, fmt.Errorf("nmdc: malformed $Search %q", raw)
	}
	target, rest := raw[:sp], raw[sp+1:]

	var req SearchRequest
	if strings.HasPrefix(target, "Hub:") {
		req.Passive = true
		req.Nick = strings.TrimPrefix(target, "Hub:")
	} else {
		req.Address = target
	}

	parts := strings.SplitN(rest, "?", 5)
	if len(parts) != 5 {
		return SearchRequest{}, fmt.Errorf("nmdc: malformed $Search criteria %q", rest)
	}
	req.SizeLimited = parts[0] == "T"
	req.IsMax = parts[1] == "T"
	req.Size, _ = strconv.ParseInt(parts[2], 10, 64)
	ft, _ := strconv.Atoi(parts[3])
	req.FileType = ft
	req.Pattern = strings.ReplaceAll(parts[4], "$", " ")
	return req, nil
}

// FormatSearch encodes a search request back to wire form.
func FormatSearch(req SearchRequest) string {
	target := req.Address
	if req.Passive {
		target = "Hub:" + req.Nick
	}
	bool2 := func(b bool) string {
		if b {
			return "T"
		}
		return "F"
	}
	pattern := strings.ReplaceAll(req.Pattern, " ", "$")
	return fmt.Sprintf("$Search %s %s?%s?%d?%d?%s", target,
		bool2(req.SizeLimited), bool2(req.IsMax), req.Size, req.FileType, pattern)
}

// ConnectToMeRequest is a parsed $ConnectToMe payload: "<nick> <ip:port>".
type ConnectToMeRequest struct {
	Nick    string
	Address string
}

// ParseConnectToMe decodes a $ConnectToMe payload.
func ParseConnectToMe(raw string) (ConnectToMeRequest, error) {
	parts := strings.SplitN(raw, " ", 2)
	if len(parts) != 2 {
		return ConnectToMeRequest{}, fmt.Errorf("nmdc: malformed $ConnectToMe %q", raw)
	}
	return ConnectToMeRequest{Nick: parts[0], Address: parts[1]}, nil
}

// FormatConnectToMe encodes a $ConnectToMe payload addressed to nick.
func FormatConnectToMe(nick, address string) string {
	return fmt.Sprintf("$ConnectToMe %s %s", nick, address)
}

// RevConnectToMeRequest is a parsed $RevConnectToMe payload:
// "<from-nick> <to-nick>".
type RevConnectToMeRequest struct {
	From string
	To   string
}

// ParseRevConnectToMe decodes a $RevConnectToMe payload.
func ParseRevConnectToMe(raw string) (RevConnectToMeRequest, error) {
	parts := strings.SplitN(raw, " ", 2)
	if len(parts) != 2 {
		return RevConnectToMeRequest{}, fmt.Errorf("nmdc: malformed $RevConnectToMe %q", raw)
	}
	return RevConnectToMeRequest{From: parts[0], To: parts[1]}, nil
}

// FormatRevConnectToMe encodes a $RevConnectToMe payload from "from" to "to".
func FormatRevConnectToMe(from, to string) string {
	return fmt.Sprintf("$RevConnectToMe %s %s", from, to)
}

// SearchResult is a parsed $SR payload.
type SearchResult struct {
	Nick       string
	FilePath   string
	Size       int64
	FreeSlots  int
	TotalSlots int
	HubName    string
	HubAddress string
	TTH        string // appended to FilePath as "TTH:<base32>" per the ADC-in-NMDC extension
}

// ParseSearchResult decodes a $SR payload, reversing FormatSearchResult's
// "\x05"-delimited layout.
func ParseSearchResult(raw string) (SearchResult, error) {
	sp := strings.IndexByte(raw, ' ')
	if sp < 0 {
		return SearchResult{}, fmt.Errorf("nmdc: malformed $SR %q", raw)
	}
	nick, rest := raw[:sp], raw[sp+1:]
	fields := strings.Split(rest, "\x05")
	if len(fields) < 2 {
		return SearchResult{}, fmt.Errorf("nmdc: malformed $SR %q", raw)
	}

	res := SearchResult{Nick: nick, FilePath: fields[0]}
	idx := 1
	if strings.HasPrefix(fields[idx], "TTH:") {
		res.TTH = strings.TrimPrefix(fields[idx], "TTH:")
		idx++
	}
	if idx >= len(fields) {
		return SearchResult{}, fmt.Errorf("nmdc: malformed $SR %q", raw)
	}
	sizeSlots := strings.Fields(fields[idx])
	if len(sizeSlots) != 2 {
		return SearchResult{}, fmt.Errorf("nmdc: malformed $SR size/slots %q", raw)
	}
	res.Size, _ = strconv.ParseInt(sizeSlots[0], 10, 64)
	if slots := strings.SplitN(sizeSlots[1], "/", 2); len(slots) == 2 {
		res.FreeSlots, _ = strconv.Atoi(slots[0])
		res.TotalSlots, _ = strconv.Atoi(slots[1])
	}
	idx++
	if idx < len(fields) {
		hubPart := fields[idx]
		if p := strings.LastIndex(hubPart, " ("); p >= 0 && strings.HasSuffix(hubPart, ")") {
			res.HubName, res.HubAddress = hubPart[:p], hubPart[p+2:len(hubPart)-1]
		} else {
			res.HubName = hubPart
		}
	}
	return res, nil
}

// FormatSearchResult encodes a $SR line (the nick-prefixed form sent
// directly over an established connection rather than routed by the hub).
func FormatSearchResult(r SearchResult) string {
	name := r.FilePath
	if r.TTH != "" {
		name = name + "\x05TTH:" + r.TTH
	}
	return fmt.Sprintf("$SR %s %s\x05%d %d/%d\x05%s (%s)",
		r.Nick, name, r.Size, r.FreeSlots, r.TotalSlots, r.HubName, r.HubAddress)
}
