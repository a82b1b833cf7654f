package adc

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"

	"github.com/airdcpp-go/core/internal/socket"
)

// ActiveHandshake performs the peer-to-peer CSUP/CINF exchange as the
// dialing side: we speak first, matching the ordering hub.Transport.
// Handshake already uses for the client-to-hub exchange. Returns the
// remote's announced CID and the buffered reader subsequent chunk I/O
// must keep using (bytes may already be buffered past the last
// handshake line).
func ActiveHandshake(conn socket.Conn, ourCID string) (remoteCID string, br *bufio.Reader, err error) {
	br = bufio.NewReader(conn)
	if err = writeRaw(conn, "CSUP ADBASE ADTIGR"); err != nil {
		return "", nil, err
	}
	if _, err = readRawLine(br); err != nil {
		return "", nil, fmt.Errorf("adc: peer CSUP reply: %w", err)
	}
	inf := &Message{Cmd: "INF", Header: 'C', Params: []string{"ID" + ourCID}}
	if err = writeRaw(conn, inf.Encode()); err != nil {
		return "", nil, err
	}
	line, err := readRawLine(br)
	if err != nil {
		return "", nil, fmt.Errorf("adc: peer CINF: %w", err)
	}
	m, err := Parse(line)
	if err != nil || m.Cmd != "INF" {
		return "", nil, fmt.Errorf("adc: expected CINF, got %q", line)
	}
	return m.Get("ID"), br, nil
}

// PassiveHandshake performs the same exchange from the accepting side: we
// wait for the peer's CSUP first, then exchange CINF.
func PassiveHandshake(conn socket.Conn, br *bufio.Reader, ourCID string) (remoteCID string, err error) {
	if _, err = readRawLine(br); err != nil {
		return "", fmt.Errorf("adc: peer CSUP: %w", err)
	}
	if err = writeRaw(conn, "CSUP ADBASE ADTIGR"); err != nil {
		return "", err
	}
	line, err := readRawLine(br)
	if err != nil {
		return "", fmt.Errorf("adc: peer CINF: %w", err)
	}
	m, err := Parse(line)
	if err != nil || m.Cmd != "INF" {
		return "", fmt.Errorf("adc: expected CINF, got %q", line)
	}
	inf := &Message{Cmd: "INF", Header: 'C', Params: []string{"ID" + ourCID}}
	if err = writeRaw(conn, inf.Encode()); err != nil {
		return "", err
	}
	return m.Get("ID"), nil
}

func writeRaw(conn socket.Conn, line string) error {
	_, err := conn.Write([]byte(line + "\n"))
	return err
}

func readRawLine(br *bufio.Reader) (string, error) {
	line, err := br.ReadString('\n')
	if err != nil {
		return "", err
	}
	for n := len(line); n > 0 && (line[n-1] == '\n' || line[n-1] == '\r'); n = len(line) {
		line = line[:n-1]
	}
	return line, nil
}

// PeerChunkIO drives GET/SND byte-range requests over one already
// handshaken peer connection, in either role: GetChunk is the downloader
// side (implements transfer.ChunkGetter), ReadRequest/ReplyChunk is the
// uploader side answering whatever the remote asks for.
type PeerChunkIO struct {
	conn socket.Conn
	br   *bufio.Reader
}

func NewPeerChunkIO(conn socket.Conn, br *bufio.Reader) *PeerChunkIO {
	return &PeerChunkIO{conn: conn, br: br}
}

// GetChunk issues one "CGET file <path> <start> <length>" request and
// copies the response body into w, implementing transfer.ChunkGetter.
func (p *PeerChunkIO) GetChunk(ctx context.Context, path string, start, length int64, w io.Writer) error {
	req := &Message{Cmd: "GET", Header: 'C', Params: []string{
		"file", path, strconv.FormatInt(start, 10), strconv.FormatInt(length, 10),
	}}
	if err := writeRaw(p.conn, req.Encode()); err != nil {
		return err
	}
	line, err := readRawLine(p.br)
	if err != nil {
		return err
	}
	m, err := Parse(line)
	if err != nil || m.Cmd != "SND" {
		return fmt.Errorf("adc: expected CSND, got %q", line)
	}
	_, err = io.CopyN(w, p.br, length)
	return err
}

// ReadRequest parses the next incoming "CGET file <path> <start> <length>"
// line, the uploader side's half of the exchange GetChunk drives.
func (p *PeerChunkIO) ReadRequest() (path string, start, length int64, err error) {
	line, err := readRawLine(p.br)
	if err != nil {
		return "", 0, 0, err
	}
	m, err := Parse(line)
	if err != nil || m.Cmd != "GET" || len(m.Params) < 4 {
		return "", 0, 0, fmt.Errorf("adc: expected CGET, got %q", line)
	}
	start, _ = strconv.ParseInt(m.Params[2], 10, 64)
	length, _ = strconv.ParseInt(m.Params[3], 10, 64)
	return m.Params[1], start, length, nil
}

// ReplyChunk answers a parsed request with "CSND file <path> <start>
// <length>" followed by exactly length bytes read from r.
func (p *PeerChunkIO) ReplyChunk(path string, start, length int64, r io.Reader) error {
	resp := &Message{Cmd: "SND", Header: 'C', Params: []string{
		"file", path, strconv.FormatInt(start, 10), strconv.FormatInt(length, 10),
	}}
	if err := writeRaw(p.conn, resp.Encode()); err != nil {
		return err
	}
	_, err := io.CopyN(p.conn, r, length)
	return err
}
