package relay

import (
	"maps"
	"slices"

	"github.com/meetcreator/roomdrop/internal/protocol"
)

// Registry tracks which peers belong to which named rooms, plus the opaque
// metadata each peer announced. Rooms exist only while they have members.
//
// Registry is not safe for concurrent use; the hub goroutine owns it.
type Registry struct {
	peers map[string]*member
	rooms map[string]map[string]struct{}
}

type member struct {
	meta  map[string]string
	rooms map[string]struct{}
}

func NewRegistry() *Registry {
	return &Registry{
		peers: make(map[string]*member),
		rooms: make(map[string]map[string]struct{}),
	}
}

// Join adds peerID to room and records meta, replacing whatever the peer
// announced before. It returns the other current members of the room.
// Joining a room twice is allowed.
func (r *Registry) Join(peerID, room string, meta map[string]string) []protocol.Peer {
	m, ok := r.peers[peerID]
	if !ok {
		m = &member{rooms: make(map[string]struct{})}
		r.peers[peerID] = m
	}
	m.meta = maps.Clone(meta)
	if m.meta == nil {
		m.meta = map[string]string{}
	}
	m.rooms[room] = struct{}{}

	ids, ok := r.rooms[room]
	if !ok {
		ids = make(map[string]struct{})
		r.rooms[room] = ids
	}
	ids[peerID] = struct{}{}

	others := make([]protocol.Peer, 0, len(ids)-1)
	for _, id := range r.sortedMembers(room) {
		if id == peerID {
			continue
		}
		others = append(others, r.peer(id))
	}
	return others
}

// LeaveRoom removes peerID from one room and returns the members left
// behind. ok is false when the peer was not in the room.
func (r *Registry) LeaveRoom(peerID, room string) (remaining []string, ok bool) {
	m, found := r.peers[peerID]
	if !found {
		return nil, false
	}
	if _, in := m.rooms[room]; !in {
		return nil, false
	}
	delete(m.rooms, room)
	if len(m.rooms) == 0 {
		delete(r.peers, peerID)
	}
	return r.removeFromRoom(peerID, room), true
}

// Leave removes peerID from every room it joined and returns, per room, the
// members left behind.
func (r *Registry) Leave(peerID string) map[string][]string {
	m, ok := r.peers[peerID]
	if !ok {
		return nil
	}
	delete(r.peers, peerID)

	left := make(map[string][]string, len(m.rooms))
	for room := range m.rooms {
		left[room] = r.removeFromRoom(peerID, room)
	}
	return left
}

// Members returns the ids currently in room, sorted.
func (r *Registry) Members(room string) []string {
	return r.sortedMembers(room)
}

// Rooms returns the rooms peerID belongs to, sorted.
func (r *Registry) Rooms(peerID string) []string {
	m, ok := r.peers[peerID]
	if !ok {
		return nil
	}
	return slices.Sorted(maps.Keys(m.rooms))
}

// Peer returns the registered view of peerID.
func (r *Registry) Peer(peerID string) (protocol.Peer, bool) {
	if _, ok := r.peers[peerID]; !ok {
		return protocol.Peer{}, false
	}
	return r.peer(peerID), true
}

// RoomCount returns the number of non-empty rooms.
func (r *Registry) RoomCount() int {
	return len(r.rooms)
}

func (r *Registry) peer(id string) protocol.Peer {
	p := protocol.Peer{ID: id}
	if m, ok := r.peers[id]; ok {
		p.Meta = maps.Clone(m.meta)
	}
	return p
}

func (r *Registry) removeFromRoom(peerID, room string) []string {
	ids, ok := r.rooms[room]
	if !ok {
		return nil
	}
	delete(ids, peerID)
	if len(ids) == 0 {
		delete(r.rooms, room)
		return nil
	}
	return r.sortedMembers(room)
}

func (r *Registry) sortedMembers(room string) []string {
	ids, ok := r.rooms[room]
	if !ok {
		return nil
	}
	return slices.Sorted(maps.Keys(ids))
}
