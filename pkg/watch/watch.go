// Package watch implements strata's Watch Service: a process-wide publisher
// that streams post-commit key/value updates to subscribers filtered by a
// pair of regular expressions, one over verifiable (UTF-8) keys and one over
// non-verifiable (raw byte) keys.
package watch

import (
	"regexp"
	"sync"

	"github.com/google/uuid"

	"github.com/duskbridge/strata/pkg/log"
	"github.com/duskbridge/strata/pkg/metrics"
	"github.com/duskbridge/strata/pkg/types"
)

// KVEntry is a single verifiable key update from a commit.
type KVEntry struct {
	Key     string
	Value   []byte
	Deleted bool
}

// NvKVEntry is a single non-verifiable key update from a commit.
type NvKVEntry struct {
	Key     []byte
	Value   []byte
	Deleted bool
}

// Entry is one (version, update) pair delivered to a subscriber. Exactly one
// of KV or NvKV is set.
type Entry struct {
	Version types.Version
	KV      *KVEntry
	NvKV    *NvKVEntry
}

// Update carries every key/value change produced by a single commit, in key
// order, to the Watch Service. The Commit Pipeline is the only caller of
// Publish.
type Update struct {
	Version types.Version
	KV      []KVEntry
	NvKV    []NvKVEntry
}

const subscriberBuffer = 256
const publishQueue = 256

type subscription struct {
	id      string
	keyRe   *regexp.Regexp
	nvKeyRe *regexp.Regexp
	ch      chan *Entry
}

// Service is the process-wide Watch Service singleton; its lifecycle is tied
// to the Backend's open/close.
type Service struct {
	mu          sync.RWMutex
	subscribers map[string]*subscription
	updates     chan *Update
	stopCh      chan struct{}
}

// NewService creates a new Watch Service. Call Start before the first commit.
func NewService() *Service {
	return &Service{
		subscribers: make(map[string]*subscription),
		updates:     make(chan *Update, publishQueue),
		stopCh:      make(chan struct{}),
	}
}

// Start begins the dispatch loop.
func (s *Service) Start() {
	go s.run()
}

// Stop halts the dispatch loop and closes every subscriber channel.
func (s *Service) Stop() {
	close(s.stopCh)

	s.mu.Lock()
	defer s.mu.Unlock()
	for id, sub := range s.subscribers {
		close(sub.ch)
		delete(s.subscribers, id)
	}
}

// neverMatch never matches any input; used when a caller only cares about
// one of the two key spaces.
var neverMatch = regexp.MustCompile(`$^`)

// Subscribe registers a new subscriber. keyRegex filters verifiable keys
// (matched as UTF-8 strings); nvKeyRegex filters non-verifiable keys
// (matched as raw bytes). Either may be empty to match nothing in that
// space. Returns the subscriber's channel and an unsubscribe function.
func (s *Service) Subscribe(keyRegex, nvKeyRegex string) (<-chan *Entry, func(), error) {
	keyRe := neverMatch
	if keyRegex != "" {
		re, err := regexp.Compile(keyRegex)
		if err != nil {
			return nil, nil, err
		}
		keyRe = re
	}

	nvKeyRe := neverMatch
	if nvKeyRegex != "" {
		re, err := regexp.Compile(nvKeyRegex)
		if err != nil {
			return nil, nil, err
		}
		nvKeyRe = re
	}

	sub := &subscription{
		id:      uuid.NewString(),
		keyRe:   keyRe,
		nvKeyRe: nvKeyRe,
		ch:      make(chan *Entry, subscriberBuffer),
	}

	s.mu.Lock()
	s.subscribers[sub.id] = sub
	s.mu.Unlock()
	metrics.WatchSubscribers.Set(float64(s.count()))

	return sub.ch, func() { s.unsubscribe(sub.id) }, nil
}

func (s *Service) unsubscribe(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sub, ok := s.subscribers[id]; ok {
		close(sub.ch)
		delete(s.subscribers, id)
	}
	metrics.WatchSubscribers.Set(float64(len(s.subscribers)))
}

func (s *Service) count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.subscribers)
}

// Publish hands a commit's updates to the dispatch loop. It never blocks the
// caller: if the internal queue is full, the update is dropped for every
// subscriber and a warning is logged, since a commit must never wait on a
// slow subscriber.
func (s *Service) Publish(u *Update) {
	select {
	case s.updates <- u:
	default:
		log.Logger.Warn().Uint64("version", uint64(u.Version)).Msg("watch: publish queue full, update dropped")
	case <-s.stopCh:
	}
}

func (s *Service) run() {
	for {
		select {
		case u := <-s.updates:
			s.dispatch(u)
		case <-s.stopCh:
			return
		}
	}
}

// dispatch delivers u to every matching subscriber in key order, and in the
// single order given by the run loop across versions.
func (s *Service) dispatch(u *Update) {
	s.mu.RLock()
	subs := make([]*subscription, 0, len(s.subscribers))
	for _, sub := range s.subscribers {
		subs = append(subs, sub)
	}
	s.mu.RUnlock()

	for _, sub := range subs {
		for _, kv := range u.KV {
			if !sub.keyRe.MatchString(kv.Key) {
				continue
			}
			kv := kv
			s.send(sub, &Entry{Version: u.Version, KV: &kv})
		}
		for _, nv := range u.NvKV {
			if !sub.nvKeyRe.Match(nv.Key) {
				continue
			}
			nv := nv
			s.send(sub, &Entry{Version: u.Version, NvKV: &nv})
		}
	}
}

// send is a non-blocking delivery; a subscriber whose buffer is full is
// dropped rather than allowed to stall the rest of the fan-out.
func (s *Service) send(sub *subscription, e *Entry) {
	select {
	case sub.ch <- e:
		metrics.WatchEventsDelivered.Inc()
	default:
		metrics.WatchEventsDropped.Inc()
		s.unsubscribe(sub.id)
	}
}
