package domain

import (
	"sort"
	"time"

	"github.com/samber/lo"
)

type Set map[string]struct{}

// Group is a named set of users. The creator is always a member at creation.
type Group struct {
	ID        string
	Name      string
	CreatedBy string
	Members   Set
	CreatedAt time.Time
}

func NewGroup(id, name, createdBy string, createdAt time.Time) *Group {
	return &Group{
		ID:        id,
		Name:      name,
		CreatedBy: createdBy,
		Members:   Set{createdBy: {}},
		CreatedAt: createdAt,
	}
}

func (g *Group) HasMember(userID string) bool {
	_, ok := g.Members[userID]
	return ok
}

// Add reports whether userID was not already a member.
func (g *Group) Add(userID string) bool {
	if g.HasMember(userID) {
		return false
	}
	g.Members[userID] = struct{}{}
	return true
}

// Remove reports whether userID was a member.
func (g *Group) Remove(userID string) bool {
	if !g.HasMember(userID) {
		return false
	}
	delete(g.Members, userID)
	return true
}

// MemberIDs returns the members sorted, so notifications are emitted in a stable order.
func (g *Group) MemberIDs() []string {
	ids := lo.Keys(g.Members)
	sort.Strings(ids)
	return ids
}

// Snapshot returns a copy that shares nothing with g.
func (g *Group) Snapshot() Group {
	members := make(Set, len(g.Members))
	for id := range g.Members {
		members[id] = struct{}{}
	}
	return Group{
		ID:        g.ID,
		Name:      g.Name,
		CreatedBy: g.CreatedBy,
		Members:   members,
		CreatedAt: g.CreatedAt,
	}
}
