// Package room tracks which connections are in which live room. It knows nothing
// about session status; rooms and sessions only share the join code.
package room

import (
	"sync"

	"github.com/samber/lo"
)

// UnknownPlayer is the name reported for connections that are not in the roster.
const UnknownPlayer = "Unknown"

type Player struct {
	ConnID string
	Name   string
}

// Room is the live state of one join code. Its methods must only be called from
// within Table.Update or Table.View.
type Room struct {
	mu      sync.Mutex
	code    string
	players []Player
	host    string
	removed bool
}

func (r *Room) Code() string {
	return r.code
}

// Join adds a player. Joining again with the same connection renames the player
// and keeps its position.
func (r *Room) Join(connID, name string) {
	_, i, ok := lo.FindIndexOf(r.players, func(p Player) bool {
		return p.ConnID == connID
	})
	if ok {
		r.players[i].Name = name
		return
	}

	r.players = append(r.players, Player{ConnID: connID, Name: name})
}

// Leave removes a player and returns its name.
func (r *Room) Leave(connID string) (string, bool) {
	p, i, ok := lo.FindIndexOf(r.players, func(p Player) bool {
		return p.ConnID == connID
	})
	if !ok {
		return "", false
	}

	r.players = append(r.players[:i], r.players[i+1:]...)
	return p.Name, true
}

func (r *Room) SetHost(connID string) {
	r.host = connID
}

// ClearHost removes the host designation if connID holds it.
func (r *Room) ClearHost(connID string) bool {
	if r.host == "" || r.host != connID {
		return false
	}

	r.host = ""
	return true
}

func (r *Room) Host() (string, bool) {
	return r.host, r.host != ""
}

func (r *Room) IsHost(connID string) bool {
	return r.host != "" && r.host == connID
}

// Name returns the display name of a player, or UnknownPlayer.
func (r *Room) Name(connID string) string {
	p, ok := lo.Find(r.players, func(p Player) bool {
		return p.ConnID == connID
	})
	if !ok {
		return UnknownPlayer
	}
	return p.Name
}

// Players returns the roster in join order.
func (r *Room) Players() []Player {
	return append([]Player(nil), r.players...)
}

// Roster returns the player names in join order.
func (r *Room) Roster() []string {
	return lo.Map(r.players, func(p Player, _ int) string {
		return p.Name
	})
}

func (r *Room) Count() int {
	return len(r.players)
}

// Recipients returns every connection a room broadcast is delivered to: the
// players followed by the host.
func (r *Room) Recipients() []string {
	ids := lo.Map(r.players, func(p Player, _ int) string {
		return p.ConnID
	})
	if r.host != "" {
		ids = append(ids, r.host)
	}
	return lo.Uniq(ids)
}

// Clear drops every player and the host. The room is removed once the current
// update returns.
func (r *Room) Clear() {
	r.players = nil
	r.host = ""
}

func (r *Room) empty() bool {
	return len(r.players) == 0 && r.host == ""
}

// Table maps join codes to rooms. Updates to the same room are serialized, while
// updates to different rooms run in parallel.
type Table struct {
	mu    sync.RWMutex
	rooms map[string]*Room
}

func NewTable() *Table {
	return &Table{rooms: make(map[string]*Room)}
}

// Update runs fn with exclusive access to the room of code, creating the room
// first when create is set. It reports whether fn ran. A room left without
// players and host is removed before Update returns.
func (t *Table) Update(code string, create bool, fn func(r *Room)) bool {
	for {
		r := t.get(code, create)
		if r == nil {
			return false
		}

		r.mu.Lock()
		if r.removed {
			// Lost a race with the removal of this room; retry against the table.
			r.mu.Unlock()
			continue
		}

		fn(r)

		if r.empty() {
			r.removed = true
			t.remove(code, r)
		}
		r.mu.Unlock()
		return true
	}
}

// View runs fn with exclusive access to an existing room. fn must not mutate it.
func (t *Table) View(code string, fn func(r *Room)) bool {
	r := t.get(code, false)
	if r == nil {
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.removed {
		return false
	}

	fn(r)
	return true
}

// Len returns the number of live rooms.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return len(t.rooms)
}

func (t *Table) get(code string, create bool) *Room {
	t.mu.RLock()
	r, ok := t.rooms[code]
	t.mu.RUnlock()
	if ok || !create {
		return r
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if r, ok := t.rooms[code]; ok {
		return r
	}

	r = &Room{code: code}
	t.rooms[code] = r
	return r
}

func (t *Table) remove(code string, r *Room) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.rooms[code] == r {
		delete(t.rooms, code)
	}
}
