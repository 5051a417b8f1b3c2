package runtime

import (
	"chat-router/domain"
	"chat-router/errors"
	"fmt"
	"sync"
	"time"

	"github.com/samber/lo"
)

// groupEntry guards one group. Membership changes and the snapshot used for
// fan-out are taken under the same lock, so a notification never reaches a
// member that left in the same operation.
type groupEntry struct {
	mu      sync.Mutex
	group   *domain.Group
	deleted bool
}

// GroupRegistry maps group IDs to groups.
// The registry lock only protects the map; each group has its own lock.
type GroupRegistry struct {
	mu     sync.RWMutex
	groups map[string]*groupEntry
}

type JoinResult struct {
	Group domain.Group
	// Added is false when the user was already a member.
	Added bool
	// Others are the members to notify, the joiner excluded.
	Others []string
}

type LeaveResult struct {
	Group domain.Group
	// Left is false when the group is unknown or the user was not a member.
	Left      bool
	Remaining []string
	Deleted   bool
}

func NewGroupRegistry() *GroupRegistry {
	return &GroupRegistry{groups: make(map[string]*groupEntry)}
}

// Create registers a new group with its creator as first member.
// An existing group ID fails with ErrDuplicateGroup.
func (r *GroupRegistry) Create(id, name, creatorID string, at time.Time) (domain.Group, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.groups[id]; ok && !existing.isDeleted() {
		return domain.Group{}, fmt.Errorf("%w: %s", errors.ErrDuplicateGroup, id)
	}
	entry := &groupEntry{group: domain.NewGroup(id, name, creatorID, at)}
	r.groups[id] = entry
	return entry.group.Snapshot(), nil
}

// Join adds userID to the group. Joining twice is not an error: the result
// still lists the other members so the caller can notify them again.
func (r *GroupRegistry) Join(id, userID string) (JoinResult, error) {
	entry, ok := r.entry(id)
	if !ok {
		return JoinResult{}, fmt.Errorf("%w: %s", errors.ErrGroupNotFound, id)
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()
	if entry.deleted {
		return JoinResult{}, fmt.Errorf("%w: %s", errors.ErrGroupNotFound, id)
	}

	added := entry.group.Add(userID)
	return JoinResult{
		Group:  entry.group.Snapshot(),
		Added:  added,
		Others: without(entry.group.MemberIDs(), userID),
	}, nil
}

// Leave removes userID from the group. The group is dropped from the registry
// once its last member leaves.
func (r *GroupRegistry) Leave(id, userID string) LeaveResult {
	entry, ok := r.entry(id)
	if !ok {
		return LeaveResult{}
	}

	entry.mu.Lock()
	if entry.deleted || !entry.group.Remove(userID) {
		entry.mu.Unlock()
		return LeaveResult{}
	}
	result := LeaveResult{
		Group:     entry.group.Snapshot(),
		Left:      true,
		Remaining: entry.group.MemberIDs(),
	}
	if len(entry.group.Members) == 0 {
		entry.deleted = true
		result.Deleted = true
	}
	entry.mu.Unlock()

	if result.Deleted {
		r.mu.Lock()
		// A new group may have been created under the same ID meanwhile.
		if current, ok := r.groups[id]; ok && current == entry {
			delete(r.groups, id)
		}
		r.mu.Unlock()
	}
	return result
}

// Get returns a snapshot of the group.
func (r *GroupRegistry) Get(id string) (domain.Group, bool) {
	entry, ok := r.entry(id)
	if !ok {
		return domain.Group{}, false
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	if entry.deleted {
		return domain.Group{}, false
	}
	return entry.group.Snapshot(), true
}

func (r *GroupRegistry) Exists(id string) bool {
	_, ok := r.Get(id)
	return ok
}

func (r *GroupRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.groups)
}

func (r *GroupRegistry) entry(id string) (*groupEntry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.groups[id]
	return entry, ok
}

func (e *groupEntry) isDeleted() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.deleted
}

func without(ids []string, excluded string) []string {
	return lo.Filter(ids, func(id string, _ int) bool { return id != excluded })
}
