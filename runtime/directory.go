package runtime

import (
	"chat-router/domain"
	"chat-router/errors"
	"fmt"
	"sort"
	"sync"

	"github.com/samber/lo"
)

// maxGenerateAttempts bounds retries when a generated ID is already taken.
const maxGenerateAttempts = 3

// Directory maps user IDs to display names.
type Directory struct {
	mu    sync.RWMutex
	users map[string]domain.User
	ids   IDGenerator
}

func NewDirectory(ids IDGenerator) *Directory {
	return &Directory{users: make(map[string]domain.User), ids: ids}
}

// Register inserts a user. A requested ID that is already taken fails with
// ErrDuplicateID and leaves the directory untouched.
func (d *Directory) Register(name, requestedID string) (domain.User, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	id := requestedID
	if id != "" {
		if _, ok := d.users[id]; ok {
			return domain.User{}, fmt.Errorf("%w: %s", errors.ErrDuplicateID, id)
		}
	} else {
		for i := 0; i < maxGenerateAttempts; i++ {
			id = d.ids.New()
			if _, ok := d.users[id]; !ok {
				break
			}
		}
		if _, ok := d.users[id]; ok {
			return domain.User{}, fmt.Errorf("%w: generated %s", errors.ErrDuplicateID, id)
		}
	}

	user := domain.User{ID: id, DisplayName: name}
	d.users[id] = user
	return user, nil
}

func (d *Directory) Lookup(id string) (domain.User, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	user, ok := d.users[id]
	return user, ok
}

// Remove is idempotent.
func (d *Directory) Remove(id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.users, id)
}

func (d *Directory) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.users)
}

// Users returns every registered user ordered by ID.
func (d *Directory) Users() []domain.User {
	d.mu.RLock()
	defer d.mu.RUnlock()
	users := lo.Values(d.users)
	sort.Slice(users, func(i, j int) bool { return users[i].ID < users[j].ID })
	return users
}
