// Package core wires every subsystem into a single owned-services context:
// every manager is constructed once, here, and handed explicitly to
// whatever needs it rather than reached through package-level state.
package core

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/airdcpp-go/core/internal/adc"
	"github.com/airdcpp-go/core/internal/autosearch"
	"github.com/airdcpp-go/core/internal/bundle"
	"github.com/airdcpp-go/core/internal/config"
	"github.com/airdcpp-go/core/internal/hub"
	"github.com/airdcpp-go/core/internal/logger"
	"github.com/airdcpp-go/core/internal/nmdc"
	"github.com/airdcpp-go/core/internal/queue"
	"github.com/airdcpp-go/core/internal/share"
	"github.com/airdcpp-go/core/internal/socket"
	"github.com/airdcpp-go/core/internal/throttle"
	"github.com/airdcpp-go/core/internal/transfer"
)

// Core owns every subsystem manager for one running client instance.
type Core struct {
	Config *config.Config

	Share      *share.Manager
	Queue      *queue.Manager
	Bundle     *bundle.Manager
	Throttle   *throttle.Manager
	Hub        *hub.Manager
	Upload     *transfer.UploadManager
	AutoSearch *autosearch.Scheduler

	log logger.Logger

	ctx       context.Context
	cancel    context.CancelFunc
	listener  *socket.Listener
	closeOnce sync.Once
}

// New constructs every subsystem from cfg but does not yet start any
// background loops; call Run for that.
func New(cfg *config.Config, hashSource share.HashSource, searcher autosearch.Searcher) (*Core, error) {
	log := logger.New("core")

	fileListDir := filepath.Join(cfg.ShareCacheDir, "filelists")
	if err := os.MkdirAll(fileListDir, 0o755); err != nil {
		return nil, fmt.Errorf("create share cache dir: %w", err)
	}
	if err := os.MkdirAll(cfg.QueueDir, 0o755); err != nil {
		return nil, fmt.Errorf("create queue dir: %w", err)
	}

	shareMgr := share.NewManager(hashSource, fileListDir)
	if err := shareMgr.LoadCache(filepath.Join(fileListDir, "tree.cache")); err != nil && !os.IsNotExist(err) {
		log.Warningln("loading tree cache:", err)
	}
	for _, p := range cfg.ShareProfiles {
		if p.Token == share.ProfileDefault {
			continue
		}
		shareMgr.AddProfile(p.Token, p.Name)
	}

	queueMgr, err := queue.Open(filepath.Join(cfg.QueueDir, "queue.db"))
	if err != nil {
		return nil, fmt.Errorf("open queue: %w", err)
	}

	bundleMgr, err := bundle.Open(filepath.Join(cfg.QueueDir, "bundles"), filepath.Join(cfg.QueueDir, "bundles.db"), queueMgr)
	if err != nil {
		queueMgr.Close()
		return nil, fmt.Errorf("open bundles: %w", err)
	}

	throttleMgr := throttle.NewManager(int64(cfg.UpLimitKiBps)*1024, int64(cfg.DownLimitKiBps)*1024)
	hubMgr := hub.NewManager()

	// A nil searcher gets the real fan-out implementation, dispatching
	// through this core's own hub manager; callers only need to supply
	// one explicitly in tests that want to fake search results.
	if searcher == nil {
		searcher = newHubFanoutSearcher(hubMgr)
	}

	return &Core{
		Config:     cfg,
		Share:      shareMgr,
		Queue:      queueMgr,
		Bundle:     bundleMgr,
		Throttle:   throttleMgr,
		Hub:        hubMgr,
		Upload:     transfer.NewUploadManager(cfg.UploadSlots, cfg.SmallFileSlots),
		AutoSearch: autosearch.NewScheduler(searcher),
		log:        log,
	}, nil
}

// hubTransport picks the ADC or NMDC wire transport for one configured
// hub based on its URL scheme ("adc://", "adcs://" vs a bare host:port or
// "dchub://" address), the way a real client dispatches on the hub list's
// protocol column rather than guessing from the socket.
func (c *Core) hubTransport(h config.HubConfig) hub.Transport {
	if strings.HasPrefix(h.URL, "adc://") || strings.HasPrefix(h.URL, "adcs://") {
		return adc.NewTransport(c.Config.ClientCID, h.Nick)
	}
	return nmdc.NewTransport(h.Nick, nmdc.CP1252)
}

func hubAddress(url string) string {
	for _, prefix := range []string{"adcs://", "adc://", "dchubs://", "dchub://"} {
		if strings.HasPrefix(url, prefix) {
			return strings.TrimPrefix(url, prefix)
		}
	}
	return url
}

// Run starts every subsystem's background loop (refresh worker is already
// running from share.NewManager; this starts the scheduler) and blocks
// until ctx is cancelled.
func (c *Core) Run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	c.ctx = ctx
	c.cancel = cancel

	if c.AutoSearch != nil {
		go c.AutoSearch.Run(ctx)
	}

	for _, root := range c.Config.ShareRoots() {
		<-c.Share.AddRoot(root.Path, root.Profiles)
	}

	if ln, err := socket.Listen("tcp", fmt.Sprintf(":%d", c.Config.Port), nil); err != nil {
		c.log.Warningln("listening on port", c.Config.Port, ":", err)
	} else {
		c.listener = ln
		go c.acceptLoop(ctx)
	}

	for _, h := range c.Config.Hubs {
		interval := h.SearchInterval
		if interval <= 0 {
			interval = 30
		}
		if _, err := c.Hub.Add(ctx, hubAddress(h.URL), c.hubTransport(h), interval, c, c); err != nil {
			c.log.Warningln("hub", h.URL, err)
		}
	}

	<-ctx.Done()
	c.log.Infoln("shutting down")
	c.Close()
}

// Close stops every owned background goroutine and closes open handles.
// Safe to call more than once (e.g. once from Run's shutdown path and
// once more from a caller's own defer).
func (c *Core) Close() {
	c.closeOnce.Do(func() {
		if c.cancel != nil {
			c.cancel()
		}
		if c.listener != nil {
			c.listener.Close()
		}
		c.Hub.Close()
		c.Share.Close()
		c.Throttle.Stop()
		c.Bundle.Close()
		c.Queue.Close()
	})
}
