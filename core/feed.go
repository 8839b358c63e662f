package core

import (
	"context"
	"strconv"
	"strings"
	"sync"
)

const feedHistoryLimit = 2048

// FeedUpdate is one entry on the node's event feed. The cursor is an opaque
// resume token: subscribers that reconnect pass their last cursor back and
// receive the missed backlog from the retained history window.
type FeedUpdate struct {
	Sequence   uint64            `json:"sequence"`
	Cursor     string            `json:"cursor"`
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
	Timestamp  int64             `json:"timestamp"`
}

func cloneFeedUpdate(update FeedUpdate) FeedUpdate {
	cloned := update
	if len(update.Attributes) > 0 {
		attrs := make(map[string]string, len(update.Attributes))
		for k, v := range update.Attributes {
			attrs[k] = v
		}
		cloned.Attributes = attrs
	}
	return cloned
}

func (n *Node) publishFeed(update FeedUpdate) {
	n.feedMu.Lock()
	if n.feedSubs == nil {
		n.feedSubs = make(map[uint64]chan FeedUpdate)
	}
	n.feedSeq++
	update.Sequence = n.feedSeq
	update.Cursor = strconv.FormatUint(update.Sequence, 10)
	n.feedHistory = append(n.feedHistory, cloneFeedUpdate(update))
	if len(n.feedHistory) > feedHistoryLimit {
		excess := len(n.feedHistory) - feedHistoryLimit
		trimmed := make([]FeedUpdate, feedHistoryLimit)
		copy(trimmed, n.feedHistory[excess:])
		n.feedHistory = trimmed
	}
	subscribers := make([]chan FeedUpdate, 0, len(n.feedSubs))
	for _, ch := range n.feedSubs {
		subscribers = append(subscribers, ch)
	}
	n.feedMu.Unlock()

	broadcast := cloneFeedUpdate(update)
	for _, ch := range subscribers {
		select {
		case ch <- broadcast:
		default:
		}
	}
}

// EventsSubscribe registers a feed subscriber starting after the supplied
// cursor. It returns the live channel, a cancel function, and the backlog of
// retained history newer than the cursor. Slow subscribers miss updates
// rather than blocking the publishers.
func (n *Node) EventsSubscribe(ctx context.Context, cursor string) (<-chan FeedUpdate, func(), []FeedUpdate, error) {
	if n == nil {
		return nil, nil, nil, ErrNodeNotInitialised
	}
	updates := make(chan FeedUpdate, 32)

	var since uint64
	if trimmed := strings.TrimSpace(cursor); trimmed != "" {
		if parsed, err := strconv.ParseUint(trimmed, 10, 64); err == nil {
			since = parsed
		}
	}

	n.feedMu.Lock()
	if n.feedSubs == nil {
		n.feedSubs = make(map[uint64]chan FeedUpdate)
	}
	id := n.feedNextID
	n.feedNextID++
	n.feedSubs[id] = updates
	history := make([]FeedUpdate, len(n.feedHistory))
	copy(history, n.feedHistory)
	n.feedMu.Unlock()

	backlog := make([]FeedUpdate, 0, len(history))
	for _, entry := range history {
		if entry.Sequence > since {
			backlog = append(backlog, cloneFeedUpdate(entry))
		}
	}

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			n.feedMu.Lock()
			sub, ok := n.feedSubs[id]
			if ok {
				delete(n.feedSubs, id)
				close(sub)
			}
			n.feedMu.Unlock()
		})
	}

	if ctx != nil {
		go func() {
			<-ctx.Done()
			cancel()
		}()
	}

	return updates, cancel, backlog, nil
}
