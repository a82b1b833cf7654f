package transfer

import (
	"context"
	"errors"
	"fmt"
	"io"
)

// maxQueuedChunks bounds how many GET requests a fetcher keeps outstanding
// on one connection before waiting for data to arrive, rather than
// requesting a whole segment in one shot. ADC/NMDC GET delivers one
// continuous byte stream per request, so the window here bounds in-flight
// *requests on the wire*, i.e. how far ahead of the last acknowledged
// chunk a fetcher is willing to issue the next GET for resumable
// per-chunk accounting.
const maxQueuedChunks = 4

// ChunkGetter issues one ADC/NMDC "GET file start length" exchange and
// streams the response into w. Implemented by the ADC and NMDC transports;
// SegmentFetcher itself stays wire-format agnostic.
type ChunkGetter interface {
	GetChunk(ctx context.Context, path string, start, length int64, w io.Writer) error
}

// SegmentFetcher downloads one queue.Segment from a single peer in
// chunkSize-sized pieces, tracking how many chunks are outstanding and
// stopping as soon as the context ends or the peer's Close is requested,
// so the caller can release the segment back to the queue. It does not
// measure peer speed.
type SegmentFetcher struct {
	conn      *Peer
	getter    ChunkGetter
	path      string
	chunkSize int64

	limiter chan struct{}
}

// NewSegmentFetcher constructs a fetcher bound to one peer connection and
// remote file path.
func NewSegmentFetcher(conn *Peer, getter ChunkGetter, path string, chunkSize int64) *SegmentFetcher {
	return &SegmentFetcher{
		conn:      conn,
		getter:    getter,
		path:      path,
		chunkSize: chunkSize,
		limiter:   make(chan struct{}, maxQueuedChunks),
	}
}

// Fetch streams [start, start+length) into w, chunkSize bytes at a time,
// via sequential blocking GETs: DC++ peers answer one GET at a time on a
// given connection, so there is nothing to pipeline within a connection
// beyond overlapping the next GET's queueing decision with the current
// read, which the channel-bounded limiter still models.
func (f *SegmentFetcher) Fetch(ctx context.Context, start, length int64, w io.Writer) error {
	remaining := length
	offset := start
	for remaining > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-f.conn.CloseRequested():
			return fmt.Errorf("transfer: peer %s closed mid-segment", f.conn)
		default:
		}
		select {
		case f.limiter <- struct{}{}:
		case <-ctx.Done():
			return ctx.Err()
		case <-f.conn.CloseRequested():
			return fmt.Errorf("transfer: peer %s closed mid-segment", f.conn)
		}

		n := f.chunkSize
		if n > remaining {
			n = remaining
		}
		if err := f.getter.GetChunk(ctx, f.path, offset, n, w); err != nil {
			<-f.limiter
			return fmt.Errorf("transfer: GET %s %d %d from %s: %w", f.path, offset, n, f.conn, err)
		}
		<-f.limiter

		offset += n
		remaining -= n
	}
	return nil
}

var errFetchOnly = errors.New("transfer: download-direction source cannot send")

// fetchOnlySource adapts a SegmentFetcher to SegmentSource for a Download
// direction Connection, which only ever calls FetchSegment.
type fetchOnlySource struct{ fetcher *SegmentFetcher }

// NewFetchOnlySource wraps fetcher so it can be passed as a Connection's
// SegmentSource on the download side of a peer connection.
func NewFetchOnlySource(fetcher *SegmentFetcher) SegmentSource {
	return &fetchOnlySource{fetcher: fetcher}
}

func (f *fetchOnlySource) FetchSegment(ctx context.Context, start, length int64, w io.Writer) error {
	return f.fetcher.Fetch(ctx, start, length, w)
}

func (f *fetchOnlySource) SendSegment(ctx context.Context, start, length int64, r io.Reader) error {
	return errFetchOnly
}

// ChunkReplier answers one already-parsed GET-style request by writing a
// protocol-specific response header followed by exactly length bytes read
// from r. Implemented by the ADC and NMDC transports' PeerChunkIO.
type ChunkReplier interface {
	ReplyChunk(path string, start, length int64, r io.Reader) error
}

var errSendOnly = errors.New("transfer: upload-direction source cannot fetch")

// sendOnlySource adapts a ChunkReplier to SegmentSource for an Upload
// direction Connection, which only ever calls SendSegment.
type sendOnlySource struct {
	replier ChunkReplier
	path    string
}

// NewSendOnlySource wraps replier so it can be passed as a Connection's
// SegmentSource on the upload side of a peer connection, answering
// whichever byte range the peer already requested at path.
func NewSendOnlySource(replier ChunkReplier, path string) SegmentSource {
	return &sendOnlySource{replier: replier, path: path}
}

func (s *sendOnlySource) FetchSegment(ctx context.Context, start, length int64, w io.Writer) error {
	return errSendOnly
}

func (s *sendOnlySource) SendSegment(ctx context.Context, start, length int64, r io.Reader) error {
	return s.replier.ReplyChunk(s.path, start, length, r)
}
