package runtime_test

import (
	"chat-router/errors"
	"chat-router/runtime"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var at = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func TestGroupRegistry_Create_Adds_Creator(t *testing.T) {
	req := require.New(t)
	groups := runtime.NewGroupRegistry()

	group, err := groups.Create("g1", "Friends", "A1", at)

	req.NoError(err)
	req.Equal("Friends", group.Name)
	req.Equal("A1", group.CreatedBy)
	req.Equal([]string{"A1"}, group.MemberIDs())
	req.True(groups.Exists("g1"))
}

func TestGroupRegistry_Create_Rejects_Duplicate(t *testing.T) {
	req := require.New(t)
	groups := runtime.NewGroupRegistry()
	_, err := groups.Create("g1", "Friends", "A1", at)
	req.NoError(err)

	// When another user creates the same group ID
	_, err = groups.Create("g1", "Enemies", "bob-1", at)

	// Then the original group is kept as is
	req.ErrorIs(err, errors.ErrDuplicateGroup)
	group, ok := groups.Get("g1")
	req.True(ok)
	req.Equal("Friends", group.Name)
	req.Equal([]string{"A1"}, group.MemberIDs())
}

func TestGroupRegistry_Joins_Count_Unique_Members(t *testing.T) {
	req := require.New(t)
	groups := runtime.NewGroupRegistry()
	_, err := groups.Create("g1", "Friends", "A1", at)
	req.NoError(err)

	// Given N unique joins and some repeated ones
	for i := 0; i < 5; i++ {
		result, err := groups.Join("g1", fmt.Sprintf("u%d", i))
		req.NoError(err)
		req.True(result.Added)
	}
	result, err := groups.Join("g1", "u0")
	req.NoError(err)

	// Then re-joining does not change the count but still lists the others
	req.False(result.Added)
	req.Len(result.Group.Members, 6)
	req.Equal([]string{"A1", "u1", "u2", "u3", "u4"}, result.Others)
}

func TestGroupRegistry_Join_Unknown_Group(t *testing.T) {
	req := require.New(t)
	groups := runtime.NewGroupRegistry()

	_, err := groups.Join("nope", "A1")

	req.ErrorIs(err, errors.ErrGroupNotFound)
}

func TestGroupRegistry_Leave_Reduces_Membership_By_One(t *testing.T) {
	req := require.New(t)
	groups := runtime.NewGroupRegistry()
	_, err := groups.Create("g1", "Friends", "A1", at)
	req.NoError(err)
	_, err = groups.Join("g1", "bob-1")
	req.NoError(err)

	result := groups.Leave("g1", "bob-1")

	req.True(result.Left)
	req.False(result.Deleted)
	req.Equal([]string{"A1"}, result.Remaining)
	group, ok := groups.Get("g1")
	req.True(ok)
	req.Len(group.Members, 1)
}

func TestGroupRegistry_Leave_Non_Member_Is_Noop(t *testing.T) {
	req := require.New(t)
	groups := runtime.NewGroupRegistry()
	_, err := groups.Create("g1", "Friends", "A1", at)
	req.NoError(err)

	req.False(groups.Leave("g1", "stranger").Left)
	req.False(groups.Leave("unknown", "A1").Left)
	req.True(groups.Exists("g1"))
}

func TestGroupRegistry_Last_Leave_Deletes_Group(t *testing.T) {
	req := require.New(t)
	groups := runtime.NewGroupRegistry()
	_, err := groups.Create("g1", "Friends", "A1", at)
	req.NoError(err)

	// When the last member leaves
	result := groups.Leave("g1", "A1")

	// Then the group can no longer be resolved
	req.True(result.Deleted)
	req.Empty(result.Remaining)
	req.False(groups.Exists("g1"))
	req.Equal(0, groups.Len())
	_, err = groups.Join("g1", "bob-1")
	req.ErrorIs(err, errors.ErrGroupNotFound)

	// And its ID is free again
	_, err = groups.Create("g1", "Again", "bob-1", at)
	req.NoError(err)
}

func TestGroupRegistry_Get_Returns_Independent_Snapshot(t *testing.T) {
	req := require.New(t)
	groups := runtime.NewGroupRegistry()
	_, err := groups.Create("g1", "Friends", "A1", at)
	req.NoError(err)

	snapshot, _ := groups.Get("g1")
	snapshot.Members["intruder"] = struct{}{}

	group, _ := groups.Get("g1")
	req.Equal([]string{"A1"}, group.MemberIDs())
}

func TestGroupRegistry_Concurrent_Joins_And_Leaves(t *testing.T) {
	req := require.New(t)
	groups := runtime.NewGroupRegistry()
	_, err := groups.Create("g1", "Friends", "owner", at)
	req.NoError(err)

	// Given 100 users joining concurrently, half of them leaving again
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("u%d", i)
			if _, err := groups.Join("g1", id); err != nil {
				return
			}
			if i%2 == 0 {
				groups.Leave("g1", id)
			}
		}(i)
	}
	wg.Wait()

	// Then the owner and the 50 odd users remain
	group, ok := groups.Get("g1")
	req.True(ok)
	req.Len(group.Members, 51)
}
