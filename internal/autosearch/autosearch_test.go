package autosearch

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPickPrefersProperThenMostPeers(t *testing.T) {
	candidates := []Candidate{
		{DirectoryName: "Movie.2020.XVID", PeerCID: "p1"},
		{DirectoryName: "Movie.2020.XVID", PeerCID: "p2"},
		{DirectoryName: "Movie.2020.PROPER.XVID", PeerCID: "p3", Proper: true},
	}
	best, count := pick(candidates)
	assert.Equal(t, "Movie.2020.PROPER.XVID", best.DirectoryName)
	assert.Equal(t, 1, count)
}

func TestPickPrefersMorePeersWhenNoProper(t *testing.T) {
	candidates := []Candidate{
		{DirectoryName: "A", PeerCID: "p1"},
		{DirectoryName: "B", PeerCID: "p2"},
		{DirectoryName: "B", PeerCID: "p3"},
	}
	best, count := pick(candidates)
	assert.Equal(t, "B", best.DirectoryName)
	assert.Equal(t, 2, count)
}

type fakeSearcher struct {
	candidates []Candidate
}

func (f *fakeSearcher) Search(ctx context.Context, term string, resultsCh chan<- Candidate) {
	for _, c := range f.candidates {
		select {
		case resultsCh <- c:
		case <-ctx.Done():
			return
		}
	}
}

func TestSchedulerFiresDueItemAndPicks(t *testing.T) {
	searcher := &fakeSearcher{candidates: []Candidate{{DirectoryName: "Result", PeerCID: "p1"}}}
	sched := NewScheduler(searcher)

	picked := make(chan Candidate, 1)
	sched.OnPick = func(item *Item, c Candidate, peerCount int) { picked <- c }

	it := NewItem("tok", "some query", PriorityRecent, 10*time.Millisecond, time.Time{})
	sched.Add(it)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	go sched.Run(ctx)

	select {
	case c := <-picked:
		assert.Equal(t, "Result", c.DirectoryName)
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for auto-search to fire")
	}
}

func TestItemExpires(t *testing.T) {
	it := NewItem("tok", "q", PriorityNormal, time.Millisecond, time.Now().Add(-time.Second))
	require.True(t, it.expired(time.Now()))
}
