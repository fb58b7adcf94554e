// Package rooms holds the room directory: which members are in which room, and which
// room each member is in.
package rooms

import (
	"sort"

	"breakout/pkg/types"
)

// Directory maps rooms to member IDs and member IDs to rooms. It is not safe for
// concurrent use; the session manager serializes every call under its lock.
type Directory struct {
	rooms   map[string]map[string]struct{} // room -> member IDs
	members map[string]string              // member ID -> room
}

// NewDirectory returns a directory holding only the main room.
func NewDirectory() *Directory {
	return &Directory{
		rooms: map[string]map[string]struct{}{
			types.MainRoom: {},
		},
		members: make(map[string]string),
	}
}

// Create adds an empty room.
func (d *Directory) Create(name string) error {
	if _, exists := d.rooms[name]; exists {
		return ErrRoomExists
	}
	d.rooms[name] = make(map[string]struct{})
	return nil
}

// Exists reports whether a room is defined.
func (d *Directory) Exists(name string) bool {
	_, exists := d.rooms[name]
	return exists
}

// Add places a new member into the main room.
func (d *Directory) Add(id string) error {
	if _, exists := d.members[id]; exists {
		return ErrAlreadyMember
	}
	d.rooms[types.MainRoom][id] = struct{}{}
	d.members[id] = types.MainRoom
	return nil
}

// Remove drops a member from whatever room holds it and returns that room.
func (d *Directory) Remove(id string) (string, bool) {
	room, exists := d.members[id]
	if !exists {
		return "", false
	}
	delete(d.rooms[room], id)
	delete(d.members, id)
	return room, true
}

// Move takes a member out of its current room and into target. On error nothing changes.
func (d *Directory) Move(id, target string) error {
	members, exists := d.rooms[target]
	if !exists {
		return ErrRoomNotFound
	}
	current, exists := d.members[id]
	if !exists {
		return ErrNotMember
	}
	delete(d.rooms[current], id)
	members[id] = struct{}{}
	d.members[id] = target
	return nil
}

// CallBack moves every member of room into main and returns the moved IDs. The room
// itself stays defined.
func (d *Directory) CallBack(room string) ([]string, error) {
	members, exists := d.rooms[room]
	if !exists {
		return nil, ErrRoomNotFound
	}
	if room == types.MainRoom {
		return nil, nil
	}

	moved := sortedKeys(members)
	for _, id := range moved {
		delete(members, id)
		d.rooms[types.MainRoom][id] = struct{}{}
		d.members[id] = types.MainRoom
	}
	return moved, nil
}

// MembersOf returns the member IDs of a room, sorted.
func (d *Directory) MembersOf(room string) []string {
	return sortedKeys(d.rooms[room])
}

// RoomOf returns the room a member is in.
func (d *Directory) RoomOf(id string) (string, bool) {
	room, exists := d.members[id]
	return room, exists
}

// Rooms returns every room name, sorted, main included.
func (d *Directory) Rooms() []string {
	names := make([]string, 0, len(d.rooms))
	for name := range d.rooms {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of members across all rooms.
func (d *Directory) Len() int {
	return len(d.members)
}

func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
