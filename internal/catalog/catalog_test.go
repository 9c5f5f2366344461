package catalog

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault_RoomsNonEmptyAndStable(t *testing.T) {
	c := Default()

	corridors := c.Corridors()
	require.Len(t, corridors, 6)
	assert.Equal(t, "Corredor A Térreo", corridors[0])

	for _, corridor := range corridors {
		first, err := c.RoomsFor(corridor)
		require.NoError(t, err)
		assert.NotEmpty(t, first, corridor)

		second, err := c.RoomsFor(corridor)
		require.NoError(t, err)
		assert.Equal(t, first, second, corridor)
	}
}

func TestDefault_RoomLabels(t *testing.T) {
	c := Default()

	rooms, err := c.RoomsFor("Corredor A Térreo")
	require.NoError(t, err)
	assert.Equal(t, "Sala 01", rooms[0])
	assert.Equal(t, "Sala 19", rooms[len(rooms)-1])

	rooms, err = c.RoomsFor("Corredor B Térreo")
	require.NoError(t, err)
	assert.Equal(t, "Sala 41", rooms[0])
	assert.Len(t, rooms, 11)
}

func TestRoomsFor_UnknownCorridor(t *testing.T) {
	_, err := Default().RoomsFor("Corredor Z")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRoomsFor_ReturnsCopy(t *testing.T) {
	c := Default()
	rooms, err := c.RoomsFor("Corredor C Térreo")
	require.NoError(t, err)
	rooms[0] = "changed"

	again, err := c.RoomsFor("Corredor C Térreo")
	require.NoError(t, err)
	assert.Equal(t, "Sala 80", again[0])
}

func TestNew_Validation(t *testing.T) {
	testCases := []struct {
		name      string
		corridors []Corridor
	}{
		{name: "empty catalog", corridors: nil},
		{name: "empty corridor name", corridors: []Corridor{{Name: " ", Rooms: []string{"1"}}}},
		{name: "no rooms", corridors: []Corridor{{Name: "A"}}},
		{name: "duplicate corridor", corridors: []Corridor{{Name: "A", Rooms: []string{"1"}}, {Name: "A", Rooms: []string{"2"}}}},
		{name: "duplicate room", corridors: []Corridor{{Name: "A", Rooms: []string{"1", "1"}}}},
		{name: "corridor name too long", corridors: []Corridor{{Name: strings.Repeat("C", MaxNameBytes+1), Rooms: []string{"1"}}}},
		{name: "room name too long", corridors: []Corridor{{Name: "A", Rooms: []string{strings.Repeat("é", MaxNameBytes/2+1)}}}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := New(tc.corridors)
			assert.Error(t, err)
		})
	}
}

func TestNew_LongestNameAccepted(t *testing.T) {
	name := strings.Repeat("C", MaxNameBytes)
	c, err := New([]Corridor{{Name: name, Rooms: []string{strings.Repeat("S", MaxNameBytes)}}})
	require.NoError(t, err)
	assert.Equal(t, []string{name}, c.Corridors())
}

func TestMatchCorridor(t *testing.T) {
	c := Default()

	name, err := c.MatchCorridor("corredor a térreo")
	require.NoError(t, err)
	assert.Equal(t, "Corredor A Térreo", name)

	_, err = c.MatchCorridor("Corredor A")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMatchRoom(t *testing.T) {
	c := Default()

	for _, input := range []string{"Sala 07", "sala 07", "07", "7"} {
		room, err := c.MatchRoom("Corredor A Térreo", input)
		require.NoError(t, err, input)
		assert.Equal(t, "Sala 07", room, input)
	}

	_, err := c.MatchRoom("Corredor A Térreo", "41")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = c.MatchRoom("Corredor A Térreo", "abc")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = c.MatchRoom("Nowhere", "1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.json")
	content := `{"corridors":[{"name":"Ala Norte","rooms":["N1","N2"]},{"name":"Ala Sul","rooms":["S1"]}]}`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"Ala Norte", "Ala Sul"}, c.Corridors())
	assert.True(t, c.HasRoom("Ala Norte", "N2"))
	assert.False(t, c.HasRoom("Ala Sul", "N2"))
}

func TestLoad_InvalidFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(path, []byte("{"), 0o600))
	_, err = Load(path)
	assert.Error(t, err)
}
