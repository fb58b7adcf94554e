package session

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	"breakout/internal/mute"
	"breakout/internal/rooms"
	"breakout/pkg/interfaces"
	"breakout/pkg/protocol"
	"breakout/pkg/types"
)

// Participant is one admitted connection. Its room lives in the manager's directory.
type Participant struct {
	ID       string
	Username string
	Role     types.Role
	Peer     interfaces.Peer
	JoinedAt time.Time
}

// IsInstructor is the capability check for moderation commands.
func (p *Participant) IsInstructor() bool {
	return p.Role == types.RoleInstructor
}

// Departure describes what Remove changed.
type Departure struct {
	Participant   *Participant
	Room          string
	WasInstructor bool
	Evicted       []*Participant // students removed because the instructor left
}

// Manager owns all shared broker state: roster, room directory, mute registry and the
// instructor slot. Every method takes the one lock for its whole duration and never
// touches the network; callers send to the returned participants after it returns.
type Manager struct {
	mu         sync.Mutex
	roster     map[string]*Participant // participant ID -> participant
	byName     map[string]*Participant // username -> participant
	directory  *rooms.Directory
	mutes      *mute.Registry
	instructor *Participant
	now        func() time.Time
	logger     *slog.Logger
}

// NewManager creates a manager using the wall clock.
func NewManager(logger *slog.Logger) *Manager {
	return NewManagerWithClock(logger, time.Now)
}

// NewManagerWithClock creates a manager whose mute expiries follow now.
func NewManagerWithClock(logger *slog.Logger, now func() time.Time) *Manager {
	return &Manager{
		roster:    make(map[string]*Participant),
		byName:    make(map[string]*Participant),
		directory: rooms.NewDirectory(),
		mutes:     mute.NewRegistryWithClock(now),
		now:       now,
		logger:    logger.With(slog.String("component", "session")),
	}
}

// Admit applies the role policy to a login and, on success, registers the peer in the
// roster and the main room.
func (m *Manager) Admit(peer interfaces.Peer, login protocol.Login) (*Participant, error) {
	role, ok := types.ParseRole(login.Role)
	if !ok {
		return nil, reject("Invalid role", ErrInvalidRole)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	switch role {
	case types.RoleInstructor:
		if m.instructor != nil {
			return nil, reject("Instructor already connected", ErrInstructorPresent)
		}
	case types.RoleStudent:
		if m.instructor == nil {
			return nil, reject("No instructor connected yet", ErrNoInstructor)
		}
	}

	if !types.IsValidUsername(login.Username) {
		return nil, reject("Invalid username", ErrInvalidUsername)
	}
	if _, taken := m.byName[login.Username]; taken {
		return nil, reject("Username already taken", ErrUsernameTaken)
	}

	p := &Participant{
		ID:       peer.ID(),
		Username: login.Username,
		Role:     role,
		Peer:     peer,
		JoinedAt: m.now(),
	}
	if err := m.directory.Add(p.ID); err != nil {
		return nil, reject("Duplicate connection", err)
	}
	m.roster[p.ID] = p
	m.byName[p.Username] = p
	if p.IsInstructor() {
		m.instructor = p
	}

	m.logger.Debug("Participant admitted",
		slog.String("conn_id", p.ID), slog.String("username", p.Username), slog.String("role", string(p.Role)))
	return p, nil
}

// Remove takes p out of every index. When p holds the instructor slot, the slot is
// cleared and every student is removed too and reported in Departure.Evicted. It
// reports false if p was already gone.
func (m *Manager) Remove(p *Participant) (Departure, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if current, exists := m.roster[p.ID]; !exists || current != p {
		return Departure{}, false
	}

	dep := Departure{
		Participant: p,
		Room:        m.removeLocked(p),
	}

	if m.instructor == p {
		m.instructor = nil
		dep.WasInstructor = true
		for _, other := range m.roster {
			if other.Role == types.RoleStudent {
				m.removeLocked(other)
				dep.Evicted = append(dep.Evicted, other)
			}
		}
		sortByUsername(dep.Evicted)
	}

	m.logger.Debug("Participant removed",
		slog.String("conn_id", p.ID), slog.String("username", p.Username), slog.Int("evicted", len(dep.Evicted)))
	return dep, true
}

func (m *Manager) removeLocked(p *Participant) string {
	delete(m.roster, p.ID)
	if m.byName[p.Username] == p {
		delete(m.byName, p.Username)
	}
	m.mutes.Forget(p.ID)
	room, _ := m.directory.Remove(p.ID)
	return room
}

// IsActive reports whether p is still admitted.
func (m *Manager) IsActive(p *Participant) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.roster[p.ID] == p
}

// Lookup finds an active participant by username and returns its room.
func (m *Manager) Lookup(username string) (*Participant, string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, exists := m.byName[username]
	if !exists {
		return nil, "", false
	}
	room, _ := m.directory.RoomOf(p.ID)
	return p, room, true
}

// RoomOf returns the room p is in.
func (m *Manager) RoomOf(p *Participant) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.roster[p.ID] != p {
		return "", false
	}
	return m.directory.RoomOf(p.ID)
}

// PrepareChat checks the mute state of sender and collects the recipients of its chat
// message in one critical section. A muted sender gets no recipients and the time left
// on its mute.
func (m *Manager) PrepareChat(sender *Participant) (recipients []*Participant, mutedFor time.Duration, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.roster[sender.ID] != sender {
		return nil, 0, ErrNotActive
	}
	if left := m.mutes.Remaining(sender.ID); left > 0 {
		return nil, left, nil
	}
	_, recipients, err = m.roomMatesLocked(sender)
	return recipients, 0, err
}

func (m *Manager) roomMatesLocked(p *Participant) (string, []*Participant, error) {
	if m.roster[p.ID] != p {
		return "", nil, ErrNotActive
	}
	room, _ := m.directory.RoomOf(p.ID)
	ids := m.directory.MembersOf(room)
	others := make([]*Participant, 0, len(ids))
	for _, id := range ids {
		if id == p.ID {
			continue
		}
		if member, exists := m.roster[id]; exists {
			others = append(others, member)
		}
	}
	return room, others, nil
}

// Members returns every active participant in room, sorted by username.
func (m *Manager) Members(room string) []*Participant {
	m.mu.Lock()
	defer m.mu.Unlock()

	ids := m.directory.MembersOf(room)
	members := make([]*Participant, 0, len(ids))
	for _, id := range ids {
		if p, exists := m.roster[id]; exists {
			members = append(members, p)
		}
	}
	sortByUsername(members)
	return members
}

// WhisperTarget resolves a whisper recipient. Students may only whisper within their
// own room; instructors may whisper to anyone.
func (m *Manager) WhisperTarget(sender *Participant, username string) (*Participant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.roster[sender.ID] != sender {
		return nil, ErrNotActive
	}
	target, exists := m.byName[username]
	if !exists {
		return nil, ErrUserNotFound
	}
	if !sender.IsInstructor() {
		senderRoom, _ := m.directory.RoomOf(sender.ID)
		targetRoom, _ := m.directory.RoomOf(target.ID)
		if senderRoom != targetRoom {
			return nil, ErrNotInSameRoom
		}
	}
	return target, nil
}

// CreateRoom defines a new empty room.
func (m *Manager) CreateRoom(name string) error {
	if !types.IsValidRoomName(name) {
		return types.ErrInvalidRoomName
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	return m.directory.Create(name)
}

// Move puts the named participant into room.
func (m *Manager) Move(username, room string) (*Participant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, exists := m.byName[username]
	if !exists {
		return nil, ErrUserNotFound
	}
	if err := m.directory.Move(p.ID, room); err != nil {
		return nil, err
	}
	return p, nil
}

// CallBack returns every member of room to main and reports who moved.
func (m *Manager) CallBack(room string) ([]*Participant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ids, err := m.directory.CallBack(room)
	if err != nil {
		return nil, err
	}
	moved := make([]*Participant, 0, len(ids))
	for _, id := range ids {
		if p, exists := m.roster[id]; exists {
			moved = append(moved, p)
		}
	}
	sortByUsername(moved)
	return moved, nil
}

// Mute silences the named participant for d.
func (m *Manager) Mute(username string, d time.Duration) (*Participant, time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, exists := m.byName[username]
	if !exists {
		return nil, time.Time{}, ErrUserNotFound
	}
	until := m.mutes.Mute(p.ID, d)
	return p, until, nil
}

// SweepMutes drops expired mute entries.
func (m *Manager) SweepMutes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.mutes.Sweep()
}

// Snapshot returns the presence entry of every active participant together with the
// participants themselves, both sorted by username.
func (m *Manager) Snapshot() ([]types.Presence, []*Participant) {
	m.mu.Lock()
	defer m.mu.Unlock()

	participants := make([]*Participant, 0, len(m.roster))
	for _, p := range m.roster {
		participants = append(participants, p)
	}
	sortByUsername(participants)

	entries := make([]types.Presence, len(participants))
	for i, p := range participants {
		entries[i] = m.presenceLocked(p)
	}
	return entries, participants
}

// Rooms returns every room with its members.
func (m *Manager) Rooms() []types.RoomView {
	m.mu.Lock()
	defer m.mu.Unlock()

	names := m.directory.Rooms()
	views := make([]types.RoomView, 0, len(names))
	for _, name := range names {
		view := types.RoomView{Name: name, Members: []types.Presence{}}
		for _, id := range m.directory.MembersOf(name) {
			if p, exists := m.roster[id]; exists {
				view.Members = append(view.Members, m.presenceLocked(p))
			}
		}
		sort.Slice(view.Members, func(i, j int) bool {
			return view.Members[i].Username < view.Members[j].Username
		})
		views = append(views, view)
	}
	return views
}

func (m *Manager) presenceLocked(p *Participant) types.Presence {
	room, _ := m.directory.RoomOf(p.ID)
	return types.Presence{Username: p.Username, Role: p.Role, Room: room, Muted: m.mutes.IsMuted(p.ID)}
}

// InstructorConnected reports whether the instructor slot is held.
func (m *Manager) InstructorConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.instructor != nil
}

// GetStats returns counters for the health endpoint.
func (m *Manager) GetStats() map[string]int {
	m.mu.Lock()
	defer m.mu.Unlock()

	students := 0
	for _, p := range m.roster {
		if p.Role == types.RoleStudent {
			students++
		}
	}
	instructors := 0
	if m.instructor != nil {
		instructors = 1
	}
	return map[string]int{
		"total_connections": len(m.roster),
		"students":          students,
		"instructors":       instructors,
		"rooms":             len(m.directory.Rooms()),
		"mute_entries":      m.mutes.Len(),
	}
}

func sortByUsername(ps []*Participant) {
	sort.Slice(ps, func(i, j int) bool {
		return ps[i].Username < ps[j].Username
	})
}
