// Package kb keeps the table of IMC systems seen on the network. Entries
// expire when a system stops announcing itself.
package kb

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/signalsfoundry/imc-missions/geo"
	"github.com/signalsfoundry/imc-missions/model"
)

// EventType indicates what kind of change happened in the KB.
type EventType int

const (
	EventSystemAdded EventType = iota
	EventSystemUpdated
	EventSystemLost
)

func (t EventType) String() string {
	switch t {
	case EventSystemAdded:
		return "added"
	case EventSystemUpdated:
		return "updated"
	case EventSystemLost:
		return "lost"
	default:
		return fmt.Sprintf("EventType(%d)", int(t))
	}
}

// Event is emitted to subscribers when a system appears, changes or goes
// away.
type Event struct {
	Type   EventType
	System model.System
}

// Defaults for NewKnowledgeBase.
const (
	DefaultTTL      = 30 * time.Second
	DefaultCapacity = 256
)

// KnowledgeBase is a thread-safe, expiring store of systems keyed by IMC
// address.
type KnowledgeBase struct {
	mu      sync.Mutex
	systems *expirable.LRU[uint16, *model.System]

	subMu sync.Mutex
	subs  map[int]func(Event)
	next  int

	// Evictions happen under the LRU's own lock, so lost systems are queued
	// and delivered by Flush.
	lostMu sync.Mutex
	lost   []model.System
}

// NewKnowledgeBase constructs an empty KB. Non-positive arguments select
// the defaults.
func NewKnowledgeBase(ttl time.Duration, capacity int) *KnowledgeBase {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	kb := &KnowledgeBase{subs: make(map[int]func(Event))}
	kb.systems = expirable.NewLRU[uint16, *model.System](capacity, kb.onEvict, ttl)
	return kb
}

func (kb *KnowledgeBase) onEvict(_ uint16, s *model.System) {
	kb.lostMu.Lock()
	kb.lost = append(kb.lost, *s)
	kb.lostMu.Unlock()
}

// Upsert records sys, refreshing its expiry. Fields left empty in sys keep
// their previous value. It reports whether the system is new.
func (kb *KnowledgeBase) Upsert(sys model.System) bool {
	if sys.LastSeen.IsZero() {
		sys.LastSeen = time.Now()
	}

	kb.mu.Lock()
	cur, ok := kb.systems.Get(sys.ID)
	var merged model.System
	if ok {
		merged = *cur
		merged.LastSeen = sys.LastSeen
		if sys.Name != "" {
			merged.Name = sys.Name
			merged.Type = sys.Type
		}
		if sys.Addr != "" {
			merged.Addr = sys.Addr
		}
		if len(sys.Services) > 0 {
			merged.Services = append([]string(nil), sys.Services...)
		}
		if sys.HasPosition {
			merged.Position = sys.Position
			merged.Depth = sys.Depth
			merged.HasPosition = true
		}
	} else {
		merged = sys
		merged.Services = append([]string(nil), sys.Services...)
	}
	kb.systems.Add(sys.ID, &merged)
	kb.mu.Unlock()

	evType := EventSystemUpdated
	if !ok {
		evType = EventSystemAdded
	}
	kb.notify(Event{Type: evType, System: merged})
	kb.Flush()
	return !ok
}

// UpdatePosition records a new position for a known system.
func (kb *KnowledgeBase) UpdatePosition(id uint16, pos geo.Geo, depth float64) error {
	kb.mu.Lock()
	cur, ok := kb.systems.Get(id)
	if !ok {
		kb.mu.Unlock()
		return fmt.Errorf("system 0x%04x not found", id)
	}
	updated := *cur
	updated.Position = pos
	updated.Depth = depth
	updated.HasPosition = true
	updated.LastSeen = time.Now()
	kb.systems.Add(id, &updated)
	kb.mu.Unlock()

	kb.notify(Event{Type: EventSystemUpdated, System: updated})
	return nil
}

// Get returns a copy of the system with the given address.
func (kb *KnowledgeBase) Get(id uint16) (model.System, bool) {
	kb.mu.Lock()
	defer kb.mu.Unlock()
	s, ok := kb.systems.Get(id)
	if !ok {
		return model.System{}, false
	}
	return *s, true
}

// Lookup finds a system by name (case-insensitive).
func (kb *KnowledgeBase) Lookup(name string) (model.System, bool) {
	for _, s := range kb.List() {
		if strings.EqualFold(s.Name, name) {
			return s, true
		}
	}
	return model.System{}, false
}

// List returns a snapshot of all live systems ordered by name, then address.
func (kb *KnowledgeBase) List() []model.System {
	kb.mu.Lock()
	vals := kb.systems.Values()
	kb.mu.Unlock()

	res := make([]model.System, 0, len(vals))
	for _, s := range vals {
		res = append(res, *s)
	}
	sort.Slice(res, func(i, j int) bool {
		if res[i].Name != res[j].Name {
			return res[i].Name < res[j].Name
		}
		return res[i].ID < res[j].ID
	})
	return res
}

// Len returns the number of live systems.
func (kb *KnowledgeBase) Len() int {
	kb.mu.Lock()
	defer kb.mu.Unlock()
	return len(kb.systems.Keys())
}

// Remove forgets a system. Subscribers see it as lost.
func (kb *KnowledgeBase) Remove(id uint16) {
	kb.mu.Lock()
	kb.systems.Remove(id)
	kb.mu.Unlock()
	kb.Flush()
}

// Flush delivers EventSystemLost for systems that expired or were evicted
// since the last call. Expiry runs in the background, so callers that care
// about prompt loss notification call Flush periodically.
func (kb *KnowledgeBase) Flush() {
	kb.lostMu.Lock()
	lost := kb.lost
	kb.lost = nil
	kb.lostMu.Unlock()

	for _, s := range lost {
		kb.notify(Event{Type: EventSystemLost, System: s})
	}
}

// Subscribe registers a callback for KB events. It returns an unsubscribe function.
func (kb *KnowledgeBase) Subscribe(fn func(Event)) (unsubscribe func()) {
	kb.subMu.Lock()
	defer kb.subMu.Unlock()
	id := kb.next
	kb.next++
	kb.subs[id] = fn

	return func() {
		kb.subMu.Lock()
		defer kb.subMu.Unlock()
		delete(kb.subs, id)
	}
}

func (kb *KnowledgeBase) notify(ev Event) {
	kb.subMu.Lock()
	ids := make([]int, 0, len(kb.subs))
	for id := range kb.subs {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	subs := make([]func(Event), 0, len(ids))
	for _, id := range ids {
		subs = append(subs, kb.subs[id])
	}
	kb.subMu.Unlock()

	// Notify subscribers outside the lock to avoid deadlocks.
	for _, sub := range subs {
		sub(ev)
	}
}
