package tasks

import (
	"sort"
	"sync"
	"time"
)

// GroupStatus represents the lifecycle of a submitted task group.
type GroupStatus string

const (
	GroupSubmitted GroupStatus = "submitted"
	GroupRunning   GroupStatus = "running"
	GroupCompleted GroupStatus = "completed"
	GroupFailed    GroupStatus = "failed"
	GroupCancelled GroupStatus = "cancelled"
)

// GroupRecord keeps track of one group while it is polled.
type GroupRecord struct {
	ID         string      `json:"group_id"`
	SubIDs     []string    `json:"url_ids"`
	Status     GroupStatus `json:"status"`
	Polls      int         `json:"polls"`
	Error      string      `json:"error,omitempty"`
	Generation uint64      `json:"generation"`
	CreatedAt  time.Time   `json:"created_at"`
	UpdatedAt  time.Time   `json:"updated_at"`
}

// GroupBook stores group records indexed by group id. Only the most recent
// records are kept.
type GroupBook struct {
	mu     sync.RWMutex
	limit  int
	groups map[string]*GroupRecord
}

// NewGroupBook constructs a book that keeps at most limit records.
func NewGroupBook(limit int) *GroupBook {
	if limit <= 0 {
		limit = 256
	}
	return &GroupBook{
		limit:  limit,
		groups: make(map[string]*GroupRecord),
	}
}

// Add registers a freshly submitted group.
func (b *GroupBook) Add(groupID string, reqs []SubRequest, tok Token) {
	ids := make([]string, 0, len(reqs))
	for _, r := range reqs {
		ids = append(ids, r.ID)
	}
	now := time.Now()
	rec := &GroupRecord{
		ID:         groupID,
		SubIDs:     ids,
		Status:     GroupSubmitted,
		Generation: tok.Generation(),
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	b.mu.Lock()
	b.groups[groupID] = rec
	b.evictLocked()
	b.mu.Unlock()
}

// Polled counts one status check and marks the group running.
func (b *GroupBook) Polled(groupID string) {
	b.update(groupID, func(rec *GroupRecord) {
		rec.Status = GroupRunning
		rec.Polls++
	})
}

func (b *GroupBook) Complete(groupID string) {
	b.update(groupID, func(rec *GroupRecord) {
		rec.Status = GroupCompleted
	})
}

// Fail records a failure and the error text.
func (b *GroupBook) Fail(groupID string, err error) {
	b.update(groupID, func(rec *GroupRecord) {
		rec.Status = GroupFailed
		rec.Error = err.Error()
	})
}

func (b *GroupBook) Cancel(groupID string) {
	b.update(groupID, func(rec *GroupRecord) {
		rec.Status = GroupCancelled
	})
}

// Get returns a copy of the record.
func (b *GroupBook) Get(groupID string) (GroupRecord, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	rec, ok := b.groups[groupID]
	if !ok {
		return GroupRecord{}, false
	}
	return *rec, true
}

func (b *GroupBook) update(groupID string, update func(rec *GroupRecord)) {
	b.mu.Lock()
	defer b.mu.Unlock()

	rec, ok := b.groups[groupID]
	if !ok {
		return
	}

	update(rec)
	rec.UpdatedAt = time.Now()
}

func (b *GroupBook) evictLocked() {
	if len(b.groups) <= b.limit {
		return
	}
	recs := make([]*GroupRecord, 0, len(b.groups))
	for _, r := range b.groups {
		recs = append(recs, r)
	}
	sort.Slice(recs, func(i, j int) bool {
		return recs[i].CreatedAt.Before(recs[j].CreatedAt)
	})
	for _, r := range recs[:len(recs)-b.limit] {
		delete(b.groups, r.ID)
	}
}
