package timeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"client/internal/app/message"
	"client/internal/app/session"
	"client/internal/utils"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	ErrNotFound      = errors.New("message not found")
	ErrInvalidRating = errors.New("rating must be between 1 and 5")
	ErrNotPersisted  = errors.New("message is not persisted yet")
	ErrNoSession     = errors.New("no active session")
)

const optimisticPrefix = "local-"

var validate = validator.New()

// A Source is the authoritative remote timeline.
type Source interface {
	FetchTimeline(ctx context.Context, userID string) ([]message.Message, error)
	RateMessage(ctx context.Context, messageID string, rating int) error
}

// A SnapshotCache keeps the last confirmed timeline of a user between runs.
type SnapshotCache interface {
	Load(ctx context.Context, userID string) ([]message.Message, error)
	Save(ctx context.Context, userID string, msgs []message.Message) error
}

type Publisher interface {
	Publish(event string, data interface{})
}

type entry struct {
	message.Message
	gen uint64
}

// Store is the ordered message sequence shown to the user. Entries are unique
// by id. Refetch replaces the sequence; everything else appends provisionally.
type Store struct {
	mu      sync.RWMutex
	entries []entry
	index   map[string]int
	gen     uint64
	fetches uint64
	userID  string
	loading bool
	sending int

	source Source
	cache  SnapshotCache
	events Publisher
	logger *zap.SugaredLogger
	now    func() time.Time
}

func NewStore(source Source, cache SnapshotCache, events Publisher, logger *zap.Logger) *Store {
	return &Store{
		index:  make(map[string]int),
		source: source,
		cache:  cache,
		events: events,
		logger: logger.Sugar(),
		now:    time.Now,
	}
}

// Messages returns a copy of the current sequence.
func (s *Store) Messages() []message.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

func (s *Store) UserID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.userID
}

func (s *Store) IsLoading() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loading
}

func (s *Store) IsSending() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sending > 0
}

// BeginSend marks a send in flight; the returned func ends it.
func (s *Store) BeginSend() func() {
	s.mu.Lock()
	s.sending++
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			s.sending--
			s.mu.Unlock()
		})
	}
}

// AwaitingReply reports whether the last entry was written by the local user.
func (s *Store) AwaitingReply() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.entries) == 0 || s.userID == "" {
		return false
	}
	return s.entries[len(s.entries)-1].SenderID == s.userID
}

// Append adds server messages in order. Ids already present are skipped and a
// message from the local user supersedes a matching optimistic entry in place.
func (s *Store) Append(src message.Source, msgs ...message.Message) int {
	s.mu.Lock()
	added := s.mergeLocked(src, msgs)
	var snap []message.Message
	if added > 0 {
		snap = s.snapshotLocked()
	}
	s.mu.Unlock()

	if added > 0 {
		s.publish(snap)
	}
	return added
}

// AppendOptimistic shows draft immediately under a local id and returns it.
func (s *Store) AppendOptimistic(draft message.Message) string {
	draft.ID = optimisticPrefix + uuid.NewString()
	draft.Source = message.SourceOptimistic
	if draft.Timestamp.IsZero() {
		draft.Timestamp = s.now().UTC()
	}

	s.mu.Lock()
	if draft.SenderID == "" {
		draft.SenderID = s.userID
	}
	s.gen++
	s.entries = append(s.entries, entry{Message: draft, gen: s.gen})
	s.index[draft.ID] = len(s.entries) - 1
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.publish(snap)
	return draft.ID
}

// Resolve replaces the optimistic entry localID with the server's messages,
// keeping its position. Without the entry it behaves like Append.
func (s *Store) Resolve(localID string, msgs []message.Message) int {
	s.mu.Lock()
	pos, ok := s.index[localID]
	if !ok {
		added := s.mergeLocked(message.SourceResponse, msgs)
		snap := s.snapshotLocked()
		s.mu.Unlock()
		s.publish(snap)
		return added
	}

	fresh := make([]entry, 0, len(msgs))
	seen := make(map[string]bool, len(msgs))
	for _, m := range msgs {
		if _, exists := s.index[m.ID]; exists || seen[m.ID] || m.ID == "" {
			continue
		}
		seen[m.ID] = true
		m.Source = message.SourceResponse
		s.gen++
		fresh = append(fresh, entry{Message: m, gen: s.gen})
	}

	out := make([]entry, 0, len(s.entries)-1+len(fresh))
	out = append(out, s.entries[:pos]...)
	out = append(out, fresh...)
	out = append(out, s.entries[pos+1:]...)
	s.entries = out
	s.reindexLocked()
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.publish(snap)
	return len(fresh)
}

// Discard removes an optimistic entry after a failed send.
func (s *Store) Discard(localID string) {
	if !strings.HasPrefix(localID, optimisticPrefix) {
		return
	}
	s.mu.Lock()
	pos, ok := s.index[localID]
	if !ok {
		s.mu.Unlock()
		return
	}
	s.entries = append(s.entries[:pos:pos], s.entries[pos+1:]...)
	s.reindexLocked()
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.publish(snap)
}

// Refetch replaces the sequence with the server's order. Entries appended
// while the fetch was in flight and optimistic entries the server does not
// report yet are kept after it. A result superseded by a later Refetch is
// dropped.
func (s *Store) Refetch(ctx context.Context) error {
	s.mu.Lock()
	userID := s.userID
	if userID == "" {
		s.mu.Unlock()
		return ErrNoSession
	}
	s.fetches++
	ticket := s.fetches
	startGen := s.gen
	s.loading = true
	s.mu.Unlock()

	fetched, err := s.source.FetchTimeline(ctx, userID)

	s.mu.Lock()
	if ticket == s.fetches {
		s.loading = false
	}
	if err != nil {
		s.mu.Unlock()
		s.logger.Warnw("Failed to refetch timeline", "user_id", userID, "error", err)
		return fmt.Errorf("failed to refetch timeline: %w", err)
	}
	if ticket != s.fetches || userID != s.userID {
		s.mu.Unlock()
		s.logger.Debugw("Dropping stale refetch result", "user_id", userID)
		return nil
	}

	s.replaceLocked(fetched, startGen)
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.logger.Debugw("Timeline refetched", "user_id", userID, "count", len(snap))
	s.publish(snap)
	s.saveSnapshot(ctx, userID, snap)
	return nil
}

// UpdateRating sets the rating of one entry in place.
func (s *Store) UpdateRating(id string, rating int) error {
	if err := validate.Var(rating, "min=1,max=5"); err != nil {
		return ErrInvalidRating
	}

	s.mu.Lock()
	pos, ok := s.index[id]
	if !ok {
		s.mu.Unlock()
		return ErrNotFound
	}
	r := rating
	s.entries[pos].Rating = &r
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.publish(snap)
	return nil
}

// Rate records a rating remotely and then locally.
func (s *Store) Rate(ctx context.Context, id string, rating int) error {
	if err := validate.Var(rating, "min=1,max=5"); err != nil {
		return ErrInvalidRating
	}
	if strings.HasPrefix(id, optimisticPrefix) {
		return ErrNotPersisted
	}
	s.mu.RLock()
	_, ok := s.index[id]
	s.mu.RUnlock()
	if !ok {
		return ErrNotFound
	}

	if err := s.source.RateMessage(ctx, id, rating); err != nil {
		return fmt.Errorf("failed to rate message: %w", err)
	}
	return s.UpdateRating(id, rating)
}

// HandleEvent consumes push events from the event bus.
func (s *Store) HandleEvent(e utils.Event) {
	if e.Event != utils.EventNewMessage {
		return
	}
	p, ok := e.Data.(message.Push)
	if !ok {
		s.logger.Warnw("Ignoring malformed push event", "event", e.Event)
		return
	}

	s.mu.Lock()
	if s.userID == "" || p.UserID != s.userID {
		s.mu.Unlock()
		s.logger.Debugw("Dropping push from another session", "message_id", p.Message.ID, "push_user_id", p.UserID)
		return
	}
	added := s.mergeLocked(message.SourcePush, []message.Message{p.Message})
	var snap []message.Message
	if added > 0 {
		snap = s.snapshotLocked()
	}
	s.mu.Unlock()

	if added == 0 {
		s.logger.Debugw("Push message already in timeline", "message_id", p.Message.ID)
		return
	}
	s.publish(snap)
}

// SessionStarted shows the cached snapshot of the user, then refetches.
func (s *Store) SessionStarted(ctx context.Context, sess session.Session) {
	s.mu.Lock()
	changed := s.userID != sess.UserID
	s.userID = sess.UserID
	if changed {
		s.resetLocked()
	}
	s.mu.Unlock()

	s.restoreSnapshot(ctx, sess.UserID)
	if err := s.Refetch(ctx); err != nil {
		s.logger.Warnw("Initial refetch failed", "user_id", sess.UserID, "error", err)
	}
}

// SessionEnded forgets the timeline.
func (s *Store) SessionEnded(context.Context) {
	s.mu.Lock()
	s.userID = ""
	s.resetLocked()
	s.mu.Unlock()
	s.publish(nil)
}

func (s *Store) restoreSnapshot(ctx context.Context, userID string) {
	if s.cache == nil {
		return
	}
	cached, err := s.cache.Load(ctx, userID)
	if err != nil {
		s.logger.Warnw("Failed to load timeline snapshot", "user_id", userID, "error", err)
		return
	}
	if len(cached) == 0 {
		return
	}

	s.mu.Lock()
	if len(s.entries) > 0 || s.userID != userID {
		s.mu.Unlock()
		return
	}
	s.mergeLocked(message.SourceCache, cached)
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.logger.Infow("Timeline restored from snapshot", "user_id", userID, "count", len(snap))
	s.publish(snap)
}

func (s *Store) saveSnapshot(ctx context.Context, userID string, snap []message.Message) {
	if s.cache == nil {
		return
	}
	confirmed := make([]message.Message, 0, len(snap))
	for _, m := range snap {
		if m.Source == message.SourceRefetch {
			confirmed = append(confirmed, m)
		}
	}
	if err := s.cache.Save(ctx, userID, confirmed); err != nil {
		s.logger.Warnw("Failed to save timeline snapshot", "user_id", userID, "error", err)
	}
}

func (s *Store) mergeLocked(src message.Source, msgs []message.Message) int {
	added := 0
	for _, m := range msgs {
		if m.ID == "" {
			continue
		}
		if _, exists := s.index[m.ID]; exists {
			continue
		}
		m.Source = src
		s.gen++
		if pos, ok := s.matchOptimisticLocked(m); ok {
			s.entries[pos] = entry{Message: m, gen: s.gen}
			s.reindexLocked()
			added++
			continue
		}
		s.entries = append(s.entries, entry{Message: m, gen: s.gen})
		s.index[m.ID] = len(s.entries) - 1
		added++
	}
	return added
}

func (s *Store) replaceLocked(fetched []message.Message, startGen uint64) {
	old := s.entries
	oldIndex := s.index

	s.entries = make([]entry, 0, len(fetched))
	s.index = make(map[string]int, len(fetched))
	for _, m := range fetched {
		if m.ID == "" {
			continue
		}
		if _, dup := s.index[m.ID]; dup {
			continue
		}
		if m.Rating == nil {
			if pos, ok := oldIndex[m.ID]; ok && old[pos].Rating != nil {
				m.Rating = old[pos].Rating
			}
		}
		m.Source = message.SourceRefetch
		s.gen++
		s.entries = append(s.entries, entry{Message: m, gen: s.gen})
		s.index[m.ID] = len(s.entries) - 1
	}

	for _, e := range old {
		if _, reported := s.index[e.ID]; reported {
			continue
		}
		switch {
		case e.Source == message.SourceOptimistic:
			if _, ok := s.matchNewLocked(e.Message, oldIndex); ok {
				continue
			}
		case e.gen > startGen:
		default:
			continue
		}
		s.entries = append(s.entries, e)
		s.index[e.ID] = len(s.entries) - 1
	}
}

// matchOptimisticLocked finds the oldest optimistic entry that m confirms.
func (s *Store) matchOptimisticLocked(m message.Message) (int, bool) {
	if s.userID == "" || m.SenderID != s.userID {
		return 0, false
	}
	for i, e := range s.entries {
		if e.Source == message.SourceOptimistic && sameContent(e.Message, m) {
			return i, true
		}
	}
	return 0, false
}

// matchNewLocked finds a freshly reported message that confirms optimistic.
func (s *Store) matchNewLocked(optimistic message.Message, previous map[string]int) (int, bool) {
	for i, e := range s.entries {
		if e.Source != message.SourceRefetch || e.SenderID != optimistic.SenderID {
			continue
		}
		if _, known := previous[e.ID]; known {
			continue
		}
		if sameContent(optimistic, e.Message) {
			return i, true
		}
	}
	return 0, false
}

func sameContent(a, b message.Message) bool {
	return strings.TrimSpace(a.Text) == strings.TrimSpace(b.Text) &&
		(a.ImageURL != "") == (b.ImageURL != "") &&
		(a.AudioURL != "") == (b.AudioURL != "")
}

func (s *Store) resetLocked() {
	s.entries = nil
	s.index = make(map[string]int)
	s.loading = false
	s.fetches++
}

func (s *Store) reindexLocked() {
	s.index = make(map[string]int, len(s.entries))
	for i, e := range s.entries {
		s.index[e.ID] = i
	}
}

func (s *Store) snapshotLocked() []message.Message {
	out := make([]message.Message, len(s.entries))
	for i, e := range s.entries {
		out[i] = e.Message
		if e.Rating != nil {
			r := *e.Rating
			out[i].Rating = &r
		}
	}
	return out
}

func (s *Store) publish(snap []message.Message) {
	if s.events == nil {
		return
	}
	if snap == nil {
		snap = []message.Message{}
	}
	s.events.Publish(utils.EventTimelineUpdated, snap)
}
