package app

import (
	"sync"

	"trivia-service/internal/domain"
)

// rankingFeed fans ranking snapshots out to subscribers, keyed by trivia.
type rankingFeed struct {
	mu   sync.Mutex
	subs map[string]map[chan domain.Ranking]struct{}
}

func newRankingFeed() *rankingFeed {
	return &rankingFeed{
		subs: make(map[string]map[chan domain.Ranking]struct{}),
	}
}

func (f *rankingFeed) subscribe(triviaID string) (chan domain.Ranking, func()) {
	ch := make(chan domain.Ranking, 8)

	f.mu.Lock()
	if f.subs[triviaID] == nil {
		f.subs[triviaID] = make(map[chan domain.Ranking]struct{})
	}
	f.subs[triviaID][ch] = struct{}{}
	f.mu.Unlock()

	cancel := func() {
		f.mu.Lock()
		if set, ok := f.subs[triviaID]; ok {
			if _, ok := set[ch]; ok {
				delete(set, ch)
				close(ch)
			}
			if len(set) == 0 {
				delete(f.subs, triviaID)
			}
		}
		f.mu.Unlock()
	}
	return ch, cancel
}

func (f *rankingFeed) hasSubscribers(triviaID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs[triviaID]) > 0
}

func (f *rankingFeed) publish(ranking domain.Ranking) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for ch := range f.subs[ranking.TriviaID] {
		select {
		case ch <- ranking:
		default:
			// Drop the oldest snapshot so a slow reader never blocks the feed.
			select {
			case <-ch:
			default:
			}
			ch <- ranking
		}
	}
}
