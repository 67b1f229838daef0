// Package mediagroup collects the photos of one Telegram album into a single
// group once no new photo has arrived for the debounce window.
package mediagroup

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

type Item struct {
	ChatID       int64
	UserID       int64
	Username     string
	MediaGroupID string
	MessageID    int
	Caption      string
	FileID       string
}

// Group lists album photos in message order, so the first sent photo comes
// first even when updates were handled out of order.
type Group struct {
	ChatID   int64
	UserID   int64
	Username string
	Caption  string
	FileIDs  []string
}

type Options struct {
	Debounce time.Duration
	OnFlush  func(Group)
}

type Aggregator struct {
	mu       sync.Mutex
	debounce time.Duration
	onFlush  func(Group)
	groups   map[string]*pendingGroup
}

type pendingGroup struct {
	group Group
	items []Item
	timer *time.Timer
}

func New(opts Options) *Aggregator {
	debounce := opts.Debounce
	if debounce <= 0 {
		debounce = 1200 * time.Millisecond
	}

	return &Aggregator{
		debounce: debounce,
		onFlush:  opts.OnFlush,
		groups:   make(map[string]*pendingGroup),
	}
}

func (a *Aggregator) Add(item Item) {
	if item.MediaGroupID == "" || item.FileID == "" {
		return
	}

	key := makeKey(item.ChatID, item.MediaGroupID)

	a.mu.Lock()
	defer a.mu.Unlock()

	pg, ok := a.groups[key]
	if !ok {
		pg = &pendingGroup{
			group: Group{
				ChatID:   item.ChatID,
				UserID:   item.UserID,
				Username: item.Username,
			},
		}
		a.groups[key] = pg
	}
	pg.items = append(pg.items, item)
	if item.Caption != "" {
		pg.group.Caption = item.Caption
	}

	if pg.timer != nil {
		pg.timer.Stop()
	}
	pg.timer = time.AfterFunc(a.debounce, func() {
		a.flush(key)
	})
}

// Pending reports how many albums are still waiting for their window.
func (a *Aggregator) Pending() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.groups)
}

// Stop cancels every pending album without flushing it and reports how many
// were dropped.
func (a *Aggregator) Stop() int {
	a.mu.Lock()
	defer a.mu.Unlock()

	n := len(a.groups)
	for key, pg := range a.groups {
		if pg.timer != nil {
			pg.timer.Stop()
		}
		delete(a.groups, key)
	}
	return n
}

func (a *Aggregator) flush(key string) {
	a.mu.Lock()
	pg, ok := a.groups[key]
	if !ok {
		a.mu.Unlock()
		return
	}
	delete(a.groups, key)
	onFlush := a.onFlush
	a.mu.Unlock()

	items := pg.items
	sort.SliceStable(items, func(i, j int) bool { return items[i].MessageID < items[j].MessageID })
	group := pg.group
	group.FileIDs = make([]string, 0, len(items))
	for _, it := range items {
		group.FileIDs = append(group.FileIDs, it.FileID)
	}

	if onFlush != nil {
		onFlush(group)
	}
}

func makeKey(chatID int64, mediaGroupID string) string {
	return fmt.Sprintf("%d:%s", chatID, mediaGroupID)
}
