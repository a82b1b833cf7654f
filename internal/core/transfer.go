package core

import (
	"bufio"
	"context"
	"fmt"

	"github.com/airdcpp-go/core/internal/adc"
	"github.com/airdcpp-go/core/internal/hub"
	"github.com/airdcpp-go/core/internal/nmdc"
	"github.com/airdcpp-go/core/internal/queue"
	"github.com/airdcpp-go/core/internal/share"
	"github.com/airdcpp-go/core/internal/socket"
	"github.com/airdcpp-go/core/internal/transfer"
)

// defaultChunkSize is the GET/SND window a single segment fetch or serve
// request moves at a time.
const defaultChunkSize = 256 * 1024

// HandleConnectToMe implements hub.ConnectHandler: dial the peer the hub
// told us about and drive a Download direction Connection against
// whichever queue item we know this peer as a source for.
func (c *Core) HandleConnectToMe(hc *hub.Client, ev hub.Event) {
	if ev.Address == "" {
		c.log.Debugln("CTM from", ev.From, "carried no dialable address")
		return
	}
	go c.connectForDownload(hc.Transport(), ev.Address)
}

// HandleRevConnectToMe implements hub.ConnectHandler. ADC's RCM carries no
// address to dial back to, and queue.Source doesn't track one either, so
// there is nothing actionable here beyond logging the request; see
// DESIGN.md's note on reverse-connect handling.
func (c *Core) HandleRevConnectToMe(hc *hub.Client, ev hub.Event) {
	c.log.Debugln("ignoring reverse connect request from", ev.From, ": no dial-back address known")
}

func (c *Core) connectForDownload(transport hub.Transport, addr string) {
	ctx := c.backgroundCtx()
	conn, err := socket.Dial(ctx, "tcp", addr)
	if err != nil {
		c.log.Warningln("dialing peer", addr, ":", err)
		return
	}

	switch t := transport.(type) {
	case *adc.Transport:
		c.runADCDownload(ctx, conn, addr, t)
	case *nmdc.Transport:
		c.runNMDCDownload(ctx, conn, addr, t)
	default:
		conn.Close()
		c.log.Warningln("unrecognized hub transport for peer", addr)
	}
}

func (c *Core) runADCDownload(ctx context.Context, conn socket.Conn, addr string, t *adc.Transport) {
	remoteCID, br, err := adc.ActiveHandshake(conn, t.CID)
	if err != nil {
		conn.Close()
		c.log.Warningln("ADC peer handshake with", addr, ":", err)
		return
	}
	item := c.Queue.NextForSource(remoteCID)
	if item == nil {
		conn.Close()
		return
	}
	peer := transfer.NewPeerFromHandshake(remoteCID, remoteCID, addr, conn, br)
	getter := adc.NewPeerChunkIO(peer.Conn(), bufio.NewReader(peer.Conn()))
	c.runDownloadConnection(ctx, peer, item, getter)
}

func (c *Core) runNMDCDownload(ctx context.Context, conn socket.Conn, addr string, t *nmdc.Transport) {
	remoteNick, br, err := nmdc.ActiveHandshake(conn, t.Nick, t.Enc)
	if err != nil {
		conn.Close()
		c.log.Warningln("NMDC peer handshake with", addr, ":", err)
		return
	}
	item := c.Queue.NextForSource(remoteNick)
	if item == nil {
		conn.Close()
		return
	}
	peer := transfer.NewPeerFromHandshake(remoteNick, remoteNick, addr, conn, br)
	getter := nmdc.NewPeerChunkIO(peer.Conn(), bufio.NewReader(peer.Conn()), t.Enc)
	c.runDownloadConnection(ctx, peer, item, getter)
}

func (c *Core) runDownloadConnection(ctx context.Context, peer *transfer.Peer, item *queue.Item, getter transfer.ChunkGetter) {
	defer peer.Close()
	fetcher := transfer.NewSegmentFetcher(peer, getter, "TTH/"+item.TTH.String(), defaultChunkSize)
	source := transfer.NewFetchOnlySource(fetcher)
	conn := transfer.New(peer.CID, transfer.Download, item, defaultChunkSize, source, c.Throttle.Down)
	conn.OnItemChanged = c.onItemChanged
	conn.Run(ctx)
}

func (c *Core) onItemChanged(item *queue.Item) {
	if err := c.Bundle.RefreshStatusForItem(item); err != nil {
		c.log.Debugln("refreshing bundle status for", item.Token, ":", err)
	}
}

// acceptLoop accepts incoming peer connections on c.listener and serves
// each one's upload requests until ctx is done.
func (c *Core) acceptLoop(ctx context.Context) {
	for {
		conn, err := c.listener.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return
			default:
				c.log.Warningln("accept:", err)
				continue
			}
		}
		go c.servePeer(ctx, conn)
	}
}

// servePeer sniffs the incoming connection's dialect off its first byte:
// NMDC commands always start with '$' ($MyNick being the first line of
// its handshake), anything else is treated as ADC's CSUP/CINF exchange.
func (c *Core) servePeer(ctx context.Context, conn socket.Conn) {
	br := bufio.NewReader(conn)
	first, err := br.Peek(1)
	if err != nil {
		conn.Close()
		return
	}
	if first[0] == '$' {
		c.serveNMDCUploads(ctx, conn, br)
	} else {
		c.serveADCUploads(ctx, conn, br)
	}
}

func (c *Core) serveADCUploads(ctx context.Context, conn socket.Conn, br *bufio.Reader) {
	remoteCID, err := adc.PassiveHandshake(conn, br, c.Config.ClientCID)
	if err != nil {
		conn.Close()
		c.log.Debugln("ADC peer passive handshake:", err)
		return
	}
	defer conn.Close()
	c.serveUploadRequests(ctx, remoteCID, adc.NewPeerChunkIO(conn, br))
}

func (c *Core) serveNMDCUploads(ctx context.Context, conn socket.Conn, br *bufio.Reader) {
	remoteNick, err := nmdc.PassiveHandshake(conn, br, c.nmdcNick(), nmdc.CP1252)
	if err != nil {
		conn.Close()
		c.log.Debugln("NMDC peer passive handshake:", err)
		return
	}
	defer conn.Close()
	c.serveUploadRequests(ctx, remoteNick, nmdc.NewPeerChunkIO(conn, br, nmdc.CP1252))
}

// nmdcNick is the identity this core answers incoming NMDC peer
// handshakes with. Per-hub nicks live in config.HubConfig, but an
// accepted connection isn't tied to the hub that brokered it, so the
// first configured hub's nick is used as a reasonable default identity.
func (c *Core) nmdcNick() string {
	if len(c.Config.Hubs) > 0 && c.Config.Hubs[0].Nick != "" {
		return c.Config.Hubs[0].Nick
	}
	return "airdc"
}

// peerUploadIO is the request/reply half of one already-handshaken peer
// connection, satisfied by both adc.PeerChunkIO and nmdc.PeerChunkIO.
type peerUploadIO interface {
	ReadRequest() (path string, start, length int64, err error)
	transfer.ChunkReplier
}

// serveUploadRequests answers GET-style requests on one peer connection
// sequentially until the peer disconnects or sends something malformed.
func (c *Core) serveUploadRequests(ctx context.Context, cid string, peer peerUploadIO) {
	for {
		virtualPath, start, length, err := peer.ReadRequest()
		if err != nil {
			return
		}
		if err := c.serveUploadRange(ctx, cid, peer, virtualPath, start, length); err != nil {
			c.log.Debugln("serving", virtualPath, "to", cid, ":", err)
			return
		}
	}
}

func (c *Core) serveUploadRange(ctx context.Context, cid string, peer peerUploadIO, virtualPath string, start, length int64) error {
	realPath, size, err := c.Share.ToRealWithSize(virtualPath, []int{share.ProfileDefault}, cid)
	if err != nil {
		return err
	}
	if start < 0 || length <= 0 || start+length > size {
		return fmt.Errorf("invalid range %d+%d for %s (size %d)", start, length, virtualPath, size)
	}

	release, err := c.Upload.AcquireSlot(cid, size)
	if err != nil {
		return err
	}
	defer release()

	item := queue.NewRangeItem(cid+":"+virtualPath, realPath, start, length)
	source := transfer.NewSendOnlySource(peer, virtualPath)
	conn := transfer.New(cid, transfer.Upload, item, length, source, c.Throttle.Up)
	conn.Run(ctx)
	return nil
}

func (c *Core) backgroundCtx() context.Context {
	if c.ctx != nil {
		return c.ctx
	}
	return context.Background()
}
