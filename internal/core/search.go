package core

import (
	"context"
	"path"
	"strings"
	"sync"

	"github.com/airdcpp-go/core/internal/autosearch"
	"github.com/airdcpp-go/core/internal/hub"
	"github.com/airdcpp-go/core/internal/share"
	"github.com/airdcpp-go/core/internal/tth"
)

// maxSearchResults caps how many hits one incoming SCH/$Search gets back,
// in line with the max results a querying client actually displays.
const maxSearchResults = 5

// HandleSearch implements hub.SearchHandler: it answers an incoming
// search against the default share profile and replies with each matching
// file, up to maxSearchResults hits; matching directories get no reply.
// Incoming searches aren't attributed to a specific hub's configured
// profile (config.HubConfig.ShareProfile isn't threaded through Event),
// so every hub currently sees the default profile's content; per-hub
// profile scoping for inbound search is a documented simplification.
func (c *Core) HandleSearch(hc *hub.Client, ev hub.Event) {
	q := share.SearchQuery{MaxResults: maxSearchResults}
	if ev.TTHOnly != "" {
		t, err := tth.ParseValue(ev.TTHOnly)
		if err != nil {
			return
		}
		q.Root = &t
	} else {
		q.Include = strings.Fields(ev.SearchTerm)
		if len(q.Include) == 0 {
			return
		}
	}

	for _, r := range c.Share.Search(q, share.ProfileDefault) {
		if r.IsDirectory {
			continue
		}
		if err := hc.Reply(ev.From, r.VirtualPath, r.Size, r.TTH.String()); err != nil {
			c.log.Debugln("replying to search from", ev.From, ":", err)
			return
		}
	}
}

// hubFanoutSearcher implements autosearch.Searcher by issuing one direct
// search against every connected hub concurrently and forwarding every
// hit as a Candidate, the fan-out a scheduled auto-search needs instead of
// direct_search.DirectSearch's single-hub call.
type hubFanoutSearcher struct {
	hub *hub.Manager
}

func newHubFanoutSearcher(m *hub.Manager) *hubFanoutSearcher {
	return &hubFanoutSearcher{hub: m}
}

func (s *hubFanoutSearcher) Search(ctx context.Context, term string, resultsCh chan<- autosearch.Candidate) {
	hubs := s.hub.Connected()
	if len(hubs) == 0 {
		return
	}

	var wg sync.WaitGroup
	for _, hc := range hubs {
		wg.Add(1)
		go func(hc *hub.Client) {
			defer wg.Done()
			hits := make(chan hub.Result, 32)
			go func() {
				if err := hc.Search(ctx, term, "", hits); err != nil {
					return
				}
			}()
			for {
				var r hub.Result
				select {
				case res, ok := <-hits:
					if !ok {
						return
					}
					r = res
				case <-ctx.Done():
					return
				}
				cand := autosearch.Candidate{
					DirectoryName: releaseName(r.VirtualPath),
					PeerCID:       r.Nick,
					Proper:        looksProper(r.VirtualPath),
				}
				select {
				case resultsCh <- cand:
				case <-ctx.Done():
					return
				}
			}
		}(hc)
	}
	wg.Wait()
}

// releaseName returns the last path segment of a virtual path, the
// release-directory name the pick step groups candidates by.
func releaseName(virtualPath string) string {
	return path.Base(strings.TrimRight(virtualPath, "/"))
}

func looksProper(virtualPath string) bool {
	upper := strings.ToUpper(virtualPath)
	return strings.Contains(upper, "PROPER") || strings.Contains(upper, "REPACK")
}
