package nmdc

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/airdcpp-go/core/internal/socket"
)

// ActiveHandshake performs the peer-to-peer $MyNick/$Lock/$Key exchange as
// the dialing side, the NMDC counterpart of adc.ActiveHandshake: it sends
// $MyNick and $Lock, then reads the peer's $MyNick and its $Key (the key is
// read but not verified).
func ActiveHandshake(conn socket.Conn, ourNick string, enc Encoding) (remoteNick string, br *bufio.Reader, err error) {
	br = bufio.NewReader(conn)
	if err = writeRaw(conn, "$MyNick "+ourNick, enc); err != nil {
		return "", nil, err
	}
	if err = writeRaw(conn, "$Lock EXTENDEDPROTOCOLABCABCABCABCABCABC Pk=airdc-go", enc); err != nil {
		return "", nil, err
	}
	nick, err := readMyNick(br, enc)
	if err != nil {
		return "", nil, err
	}
	if _, err = readRawLine(br, enc); err != nil {
		return "", nil, err
	}
	return nick, br, nil
}

// PassiveHandshake performs the same exchange from the accepting side: the
// peer speaks $MyNick/$Lock first, and we answer with our own $MyNick and
// the $Key for their lock.
func PassiveHandshake(conn socket.Conn, br *bufio.Reader, ourNick string, enc Encoding) (remoteNick string, err error) {
	nick, err := readMyNick(br, enc)
	if err != nil {
		return "", err
	}
	lock, err := readLock(br, enc)
	if err != nil {
		return "", err
	}
	if err = writeRaw(conn, "$MyNick "+ourNick, enc); err != nil {
		return "", err
	}
	if err = writeRaw(conn, FormatKey(lock), enc); err != nil {
		return "", err
	}
	return nick, nil
}

func readMyNick(br *bufio.Reader, enc Encoding) (string, error) {
	line, err := readRawLine(br, enc)
	if err != nil {
		return "", err
	}
	m := Parse(line)
	if m.Type != "MyNick" {
		return "", fmt.Errorf("nmdc: expected $MyNick, got %q", line)
	}
	return m.Raw, nil
}

func readLock(br *bufio.Reader, enc Encoding) (Lock, error) {
	line, err := readRawLine(br, enc)
	if err != nil {
		return Lock{}, err
	}
	return ParseLock(line)
}

func writeRaw(conn socket.Conn, line string, enc Encoding) error {
	_, err := conn.Write(append(Encode(line, enc), '|'))
	return err
}

func readRawLine(br *bufio.Reader, enc Encoding) (string, error) {
	raw, err := br.ReadBytes('|')
	if err != nil {
		return "", err
	}
	if n := len(raw); n > 0 && raw[n-1] == '|' {
		raw = raw[:n-1]
	}
	return Decode(raw, enc), nil
}

// PeerChunkIO drives $ADCGET/$ADCSND byte-range requests over one already
// handshaken peer connection, NMDC's counterpart of adc.PeerChunkIO (every
// modern NMDC client speaks this extension for segmented transfers rather
// than the legacy whole-file-only $Get/$Send pair).
type PeerChunkIO struct {
	conn socket.Conn
	br   *bufio.Reader
	enc  Encoding
}

func NewPeerChunkIO(conn socket.Conn, br *bufio.Reader, enc Encoding) *PeerChunkIO {
	return &PeerChunkIO{conn: conn, br: br, enc: enc}
}

// GetChunk issues one "$ADCGET file <path> <start> <length>" request and
// copies the response body into w, implementing transfer.ChunkGetter.
func (p *PeerChunkIO) GetChunk(ctx context.Context, path string, start, length int64, w io.Writer) error {
	line := fmt.Sprintf("$ADCGET file %s %d %d", path, start, length)
	if err := writeRaw(p.conn, line, p.enc); err != nil {
		return err
	}
	reply, err := readRawLine(p.br, p.enc)
	if err != nil {
		return err
	}
	if !strings.HasPrefix(reply, "$ADCSND") {
		return fmt.Errorf("nmdc: expected $ADCSND, got %q", reply)
	}
	_, err = io.CopyN(w, p.br, length)
	return err
}

// ReadRequest parses the next incoming "$ADCGET file <path> <start>
// <length>" line.
func (p *PeerChunkIO) ReadRequest() (path string, start, length int64, err error) {
	line, err := readRawLine(p.br, p.enc)
	if err != nil {
		return "", 0, 0, err
	}
	m := Parse(line)
	if m.Type != "ADCGET" {
		return "", 0, 0, fmt.Errorf("nmdc: expected $ADCGET, got %q", line)
	}
	fields := strings.Fields(m.Raw)
	if len(fields) != 4 {
		return "", 0, 0, fmt.Errorf("nmdc: malformed $ADCGET %q", m.Raw)
	}
	start, _ = strconv.ParseInt(fields[2], 10, 64)
	length, _ = strconv.ParseInt(fields[3], 10, 64)
	return fields[1], start, length, nil
}

// ReplyChunk answers a parsed request with "$ADCSND file <path> <start>
// <length>" followed by exactly length bytes read from r.
func (p *PeerChunkIO) ReplyChunk(path string, start, length int64, r io.Reader) error {
	line := fmt.Sprintf("$ADCSND file %s %d %d", path, start, length)
	if err := writeRaw(p.conn, line, p.enc); err != nil {
		return err
	}
	_, err := io.CopyN(p.conn, r, length)
	return err
}
