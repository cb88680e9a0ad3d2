package bridge

import (
	"sync"

	"go.uber.org/zap"
)

const (
	defaultSubscriberCapacity = 32
	defaultBacklogLimit       = 20
	defaultDedupeWindow       = 1024
)

// RouterOption customizes Router construction.
type RouterOption func(*Router)

// Router delivers transcripts to the subscriber of their session. Transcripts
// for sessions nobody listens to yet wait in a bounded backlog.
type Router struct {
	mu           sync.Mutex
	subscribers  map[string]map[*subscriber]struct{}
	backlog      map[string][]Transcript
	recentIDs    map[string]struct{}
	recentOrder  []string
	channelSize  int
	backlogLimit int
	dedupeWindow int
	logger       *zap.Logger
}

// Subscription is an active listener for one session.
type Subscription struct {
	Transcripts <-chan Transcript
	cancel      func()
}

// Close terminates the subscription.
func (s Subscription) Close() {
	if s.cancel != nil {
		s.cancel()
	}
}

// NewRouter constructs a router.
func NewRouter(opts ...RouterOption) *Router {
	r := &Router{
		subscribers:  map[string]map[*subscriber]struct{}{},
		backlog:      map[string][]Transcript{},
		recentIDs:    map[string]struct{}{},
		recentOrder:  make([]string, 0, defaultDedupeWindow),
		channelSize:  defaultSubscriberCapacity,
		backlogLimit: defaultBacklogLimit,
		dedupeWindow: defaultDedupeWindow,
		logger:       zap.NewNop(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

// RouterWithLogger injects a logger for drop diagnostics.
func RouterWithLogger(logger *zap.Logger) RouterOption {
	return func(r *Router) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// RouterWithSubscriberCapacity overrides the buffered channel size.
func RouterWithSubscriberCapacity(n int) RouterOption {
	return func(r *Router) {
		if n > 0 {
			r.channelSize = n
		}
	}
}

// RouterWithBacklogLimit overrides the per-session backlog size.
func RouterWithBacklogLimit(limit int) RouterOption {
	return func(r *Router) {
		if limit > 0 {
			r.backlogLimit = limit
		}
	}
}

// RouterWithDedupeWindow controls how many recent event IDs are retained.
func RouterWithDedupeWindow(size int) RouterOption {
	return func(r *Router) {
		if size > 0 {
			r.dedupeWindow = size
		}
	}
}

// Subscribe listens for transcripts of sessionID. Any backlog is delivered
// first, oldest first.
func (r *Router) Subscribe(sessionID string) Subscription {
	sub := newSubscriber(r.channelSize, r.logger)
	r.mu.Lock()
	if r.subscribers[sessionID] == nil {
		r.subscribers[sessionID] = map[*subscriber]struct{}{}
	}
	r.subscribers[sessionID][sub] = struct{}{}
	backlog := r.backlog[sessionID]
	delete(r.backlog, sessionID)
	r.mu.Unlock()
	for _, t := range backlog {
		sub.deliver(t)
	}
	return Subscription{
		Transcripts: sub.channel(),
		cancel:      func() { r.removeSubscriber(sessionID, sub) },
	}
}

// HandleTranscript satisfies Processor.
func (r *Router) HandleTranscript(t Transcript) error {
	if !r.Route(t) {
		return ErrDuplicate
	}
	return nil
}

// Route delivers or buffers t. It returns false for duplicates.
func (r *Router) Route(t Transcript) bool {
	r.mu.Lock()
	if t.EventID != "" && r.seen(t.EventID) {
		r.mu.Unlock()
		return false
	}
	subs := make([]*subscriber, 0, len(r.subscribers[t.SessionID]))
	for sub := range r.subscribers[t.SessionID] {
		subs = append(subs, sub)
	}
	if len(subs) == 0 {
		r.buffer(t)
		r.mu.Unlock()
		return true
	}
	r.mu.Unlock()
	for _, sub := range subs {
		sub.deliver(t)
	}
	return true
}

// Pending returns how many transcripts wait for sessionID.
func (r *Router) Pending(sessionID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.backlog[sessionID])
}

func (r *Router) removeSubscriber(sessionID string, sub *subscriber) {
	r.mu.Lock()
	if subs := r.subscribers[sessionID]; subs != nil {
		delete(subs, sub)
		if len(subs) == 0 {
			delete(r.subscribers, sessionID)
		}
	}
	r.mu.Unlock()
	sub.close()
}

// buffer must be called with r.mu held.
func (r *Router) buffer(t Transcript) {
	queue := r.backlog[t.SessionID]
	if len(queue) >= r.backlogLimit {
		r.logger.Warn("bridge: backlog full, dropping oldest transcript",
			zap.String("session", t.SessionID),
			zap.String("dropped", queue[0].EventID),
			zap.Int("limit", r.backlogLimit))
		queue = queue[1:]
	}
	r.backlog[t.SessionID] = append(queue, t)
}

// seen must be called with r.mu held.
func (r *Router) seen(eventID string) bool {
	if _, ok := r.recentIDs[eventID]; ok {
		return true
	}
	r.recentIDs[eventID] = struct{}{}
	r.recentOrder = append(r.recentOrder, eventID)
	if len(r.recentOrder) > r.dedupeWindow {
		oldest := r.recentOrder[0]
		r.recentOrder = r.recentOrder[1:]
		delete(r.recentIDs, oldest)
	}
	return false
}

type subscriber struct {
	mu     sync.Mutex
	ch     chan Transcript
	logger *zap.Logger
	closed bool
}

func newSubscriber(capacity int, logger *zap.Logger) *subscriber {
	if capacity <= 0 {
		capacity = defaultSubscriberCapacity
	}
	return &subscriber{ch: make(chan Transcript, capacity), logger: logger}
}

func (s *subscriber) channel() <-chan Transcript {
	return s.ch
}

// deliver never blocks: when the channel is full the oldest transcript is
// dropped in favor of the newest.
func (s *subscriber) deliver(t Transcript) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	for {
		select {
		case s.ch <- t:
			return
		default:
		}
		select {
		case dropped := <-s.ch:
			s.logger.Warn("bridge: subscriber queue full, dropping oldest transcript",
				zap.String("session", dropped.SessionID),
				zap.String("dropped", dropped.EventID))
		default:
		}
	}
}

func (s *subscriber) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.ch)
}
