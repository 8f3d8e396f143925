package relay

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meetcreator/roomdrop/internal/protocol"
)

func ids(peers []protocol.Peer) []string {
	out := make([]string, len(peers))
	for i, p := range peers {
		out[i] = p.ID
	}
	return out
}

func TestRegistryJoinReturnsOtherMembers(t *testing.T) {
	r := NewRegistry()

	assert.Empty(t, r.Join("a", "demo", map[string]string{"name": "alpha"}))

	others := r.Join("b", "demo", map[string]string{"name": "beta"})
	require.Len(t, others, 1)
	assert.Equal(t, "a", others[0].ID)
	assert.Equal(t, "alpha", others[0].Name())

	others = r.Join("c", "demo", nil)
	assert.Equal(t, []string{"a", "b"}, ids(others))
	assert.Equal(t, []string{"a", "b", "c"}, r.Members("demo"))
}

func TestRegistryJoinOrderDoesNotMatter(t *testing.T) {
	orders := [][]string{
		{"a", "b", "c", "d"},
		{"d", "c", "b", "a"},
		{"b", "d", "a", "c"},
	}

	for _, order := range orders {
		r := NewRegistry()
		var last []protocol.Peer
		for _, id := range order {
			last = r.Join(id, "demo", nil)
		}
		joiner := order[len(order)-1]
		assert.NotContains(t, ids(last), joiner)
		assert.Len(t, last, len(order)-1)
		assert.ElementsMatch(t, []string{"a", "b", "c", "d"}, append(ids(last), joiner))
	}
}

func TestRegistryRejoinIsIdempotent(t *testing.T) {
	r := NewRegistry()
	r.Join("a", "demo", map[string]string{"name": "old"})
	r.Join("b", "demo", nil)

	others := r.Join("a", "demo", map[string]string{"name": "new"})
	assert.Equal(t, []string{"b"}, ids(others))
	assert.Equal(t, []string{"a", "b"}, r.Members("demo"))

	p, ok := r.Peer("a")
	require.True(t, ok)
	assert.Equal(t, "new", p.Name())
}

func TestRegistryMetaIsCopied(t *testing.T) {
	r := NewRegistry()
	meta := map[string]string{"name": "alpha"}
	r.Join("a", "demo", meta)
	meta["name"] = "mutated"

	p, _ := r.Peer("a")
	assert.Equal(t, "alpha", p.Name())
}

func TestRegistryLeaveAllRooms(t *testing.T) {
	r := NewRegistry()
	r.Join("a", "one", nil)
	r.Join("a", "two", nil)
	r.Join("b", "one", nil)
	r.Join("c", "two", nil)
	r.Join("d", "three", nil)

	assert.Equal(t, []string{"one", "two"}, r.Rooms("a"))

	left := r.Leave("a")
	assert.Equal(t, map[string][]string{
		"one": {"b"},
		"two": {"c"},
	}, left)

	_, ok := r.Peer("a")
	assert.False(t, ok)
	assert.Nil(t, r.Leave("a"))
}

func TestRegistryEmptyRoomsDisappear(t *testing.T) {
	r := NewRegistry()
	r.Join("a", "demo", nil)
	r.Join("b", "demo", nil)
	assert.Equal(t, 1, r.RoomCount())

	remaining, ok := r.LeaveRoom("a", "demo")
	assert.True(t, ok)
	assert.Equal(t, []string{"b"}, remaining)

	left := r.Leave("b")
	assert.Equal(t, map[string][]string{"demo": nil}, left)
	assert.Equal(t, 0, r.RoomCount())
	assert.Nil(t, r.Members("demo"))
}

func TestRegistryLeaveRoomNotMember(t *testing.T) {
	r := NewRegistry()
	r.Join("a", "demo", nil)

	_, ok := r.LeaveRoom("a", "other")
	assert.False(t, ok)
	_, ok = r.LeaveRoom("ghost", "demo")
	assert.False(t, ok)

	assert.Equal(t, []string{"demo"}, r.Rooms("a"))
}
