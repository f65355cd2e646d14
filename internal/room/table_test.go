package room_test

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/victornm/livequiz/internal/room"
)

func TestTable_JoinAndLeave(t *testing.T) {
	tb := room.NewTable()

	ran := tb.Update("123456", true, func(r *room.Room) {
		r.Join("c1", "alice")
		r.Join("c2", "bob")
		r.Join("c1", "alice2")
	})
	require.True(t, ran)

	tb.View("123456", func(r *room.Room) {
		assert.Equal(t, []string{"alice2", "bob"}, r.Roster())
		assert.Equal(t, "bob", r.Name("c2"))
		assert.Equal(t, room.UnknownPlayer, r.Name("c3"))
		assert.Equal(t, []string{"c1", "c2"}, r.Recipients())
	})

	tb.Update("123456", false, func(r *room.Room) {
		name, ok := r.Leave("c1")
		assert.True(t, ok)
		assert.Equal(t, "alice2", name)

		_, ok = r.Leave("c1")
		assert.False(t, ok)
	})
	require.Equal(t, 1, tb.Len())

	tb.Update("123456", false, func(r *room.Room) {
		r.Leave("c2")
	})
	require.Equal(t, 0, tb.Len(), "room without players and host should be removed")
	require.False(t, tb.View("123456", func(*room.Room) {}))
}

func TestTable_UpdateMissingRoom(t *testing.T) {
	tb := room.NewTable()

	ran := tb.Update("000001", false, func(*room.Room) {
		t.Fatal("should not run for a missing room")
	})
	require.False(t, ran)
	require.Equal(t, 0, tb.Len())
}

func TestTable_EmptyCreateIsDropped(t *testing.T) {
	tb := room.NewTable()

	require.True(t, tb.Update("000001", true, func(*room.Room) {}))
	require.Equal(t, 0, tb.Len())
}

func TestTable_Host(t *testing.T) {
	tests := map[string]struct {
		arrange func(t *testing.T, r *room.Room)
		assert  func(t *testing.T, tb *room.Table)
	}{
		"host only room survives without players": {
			arrange: func(t *testing.T, r *room.Room) {
				r.SetHost("h1")
			},
			assert: func(t *testing.T, tb *room.Table) {
				require.True(t, tb.View("123456", func(r *room.Room) {
					host, ok := r.Host()
					assert.True(t, ok)
					assert.Equal(t, "h1", host)
					assert.True(t, r.IsHost("h1"))
					assert.False(t, r.IsHost("p1"))
					assert.Equal(t, 0, r.Count())
					assert.Equal(t, []string{"h1"}, r.Recipients())
				}))
			},
		},

		"host disconnect keeps the players": {
			arrange: func(t *testing.T, r *room.Room) {
				r.Join("p1", "alice")
				r.SetHost("h1")
				assert.False(t, r.ClearHost("p1"), "only the host itself can be cleared")
				assert.True(t, r.ClearHost("h1"))
			},
			assert: func(t *testing.T, tb *room.Table) {
				require.True(t, tb.View("123456", func(r *room.Room) {
					_, ok := r.Host()
					assert.False(t, ok)
					assert.False(t, r.IsHost(""))
					assert.Equal(t, []string{"alice"}, r.Roster())
				}))
			},
		},

		"host joining as a player is delivered once": {
			arrange: func(t *testing.T, r *room.Room) {
				r.Join("h1", "hosty")
				r.SetHost("h1")
			},
			assert: func(t *testing.T, tb *room.Table) {
				tb.View("123456", func(r *room.Room) {
					assert.Equal(t, []string{"h1"}, r.Recipients())
				})
			},
		},

		"clear removes the room": {
			arrange: func(t *testing.T, r *room.Room) {
				r.Join("p1", "alice")
				r.SetHost("h1")
				r.Clear()
			},
			assert: func(t *testing.T, tb *room.Table) {
				require.Equal(t, 0, tb.Len())
			},
		},
	}

	for name, tt := range tests {
		tt := tt
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			tb := room.NewTable()
			tb.Update("123456", true, func(r *room.Room) { tt.arrange(t, r) })
			tt.assert(t, tb)
		})
	}
}

func TestTable_ConcurrentJoins(t *testing.T) {
	const n = 100
	tb := room.NewTable()

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tb.Update("123456", true, func(r *room.Room) {
				r.Join(fmt.Sprintf("c%d", i), fmt.Sprintf("player-%d", i))
			})
		}(i)
	}
	wg.Wait()

	tb.View("123456", func(r *room.Room) {
		require.Equal(t, n, r.Count())
		require.ElementsMatch(t, expectedNames(n), r.Roster())
	})
}

func TestTable_ConcurrentJoinAndLeave(t *testing.T) {
	// Players keep emptying and refilling the room, which races joins against
	// removals of the room itself.
	const n = 50
	tb := room.NewTable()

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("c%d", i)
			for j := 0; j < 20; j++ {
				tb.Update("123456", true, func(r *room.Room) { r.Join(id, id) })
				tb.Update("123456", false, func(r *room.Room) { r.Leave(id) })
			}
			tb.Update("123456", true, func(r *room.Room) { r.Join(id, id) })
		}(i)
	}
	wg.Wait()

	require.Equal(t, 1, tb.Len())
	tb.View("123456", func(r *room.Room) {
		require.Equal(t, n, r.Count())
	})
}

func TestTable_RoomsAreIndependent(t *testing.T) {
	tb := room.NewTable()

	tb.Update("111111", true, func(r *room.Room) { r.Join("c1", "alice") })
	tb.Update("222222", true, func(r *room.Room) { r.Join("c2", "bob") })

	tb.Update("111111", false, func(r *room.Room) { r.Leave("c1") })

	require.Equal(t, 1, tb.Len())
	require.True(t, tb.View("222222", func(r *room.Room) {
		assert.Equal(t, []string{"bob"}, r.Roster())
	}))
}

func expectedNames(n int) []string {
	names := make([]string, 0, n)
	for i := 0; i < n; i++ {
		names = append(names, fmt.Sprintf("player-%d", i))
	}
	return names
}
