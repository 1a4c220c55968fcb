package registry

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CodeHiveAPP/codehive/internal/hive"
	"github.com/CodeHiveAPP/codehive/internal/relay/room"
)

func seat(t *testing.T, r *room.Room, deviceID, name string) {
	t.Helper()
	conn := room.NewTestConn(func([]byte) error { return nil })
	require.NoError(t, r.AddMember(deviceID, name, conn, ""))
}

func TestCreateRoom(t *testing.T) {
	reg := New()

	r, err := reg.CreateRoom("Zeus", "pw", true, 24)
	require.NoError(t, err)
	assert.True(t, hive.IsValidRoomCode(r.Code()))
	assert.True(t, reg.Has(r.Code()))
	assert.Same(t, r, reg.Get(r.Code()))
	assert.Equal(t, 1, reg.Len())

	assert.Nil(t, reg.Get("HIVE-ZZZZZZ"))
	assert.False(t, reg.Has("HIVE-ZZZZZZ"))
}

func TestPublicRooms(t *testing.T) {
	reg := New()

	pub, err := reg.CreateRoom("Zeus", "", true, 0)
	require.NoError(t, err)
	seat(t, pub, "d1", "Zeus")

	// Public but empty: not discoverable.
	_, err = reg.CreateRoom("Ghost", "", true, 0)
	require.NoError(t, err)

	// Non-empty but private: not discoverable.
	priv, err := reg.CreateRoom("Hermit", "", false, 0)
	require.NoError(t, err)
	seat(t, priv, "d2", "Hermit")

	rooms := reg.PublicRooms()
	require.Len(t, rooms, 1)
	assert.Equal(t, pub.Code(), rooms[0].Code())

	// Toggling visibility removes it from discovery.
	pub.SetPublic(false)
	assert.Empty(t, reg.PublicRooms())
}

func TestPruneEmptyRooms(t *testing.T) {
	reg := New()

	occupied, err := reg.CreateRoom("Zeus", "", false, 0)
	require.NoError(t, err)
	seat(t, occupied, "d1", "Zeus")

	_, err = reg.CreateRoom("Ghost", "", false, 0)
	require.NoError(t, err)

	assert.Equal(t, 1, reg.PruneEmptyRooms())
	assert.Equal(t, 1, reg.Len())
	assert.True(t, reg.Has(occupied.Code()))
}

func TestSnapshotSkipsEmptyAndHidesPassword(t *testing.T) {
	reg := New()

	r, err := reg.CreateRoom("Zeus", "secret123", true, 24)
	require.NoError(t, err)
	seat(t, r, "d1", "Zeus")

	_, err = reg.CreateRoom("Ghost", "", false, 0)
	require.NoError(t, err)

	records := reg.Snapshot()
	require.Len(t, records, 1)
	rec := records[0]
	assert.Equal(t, r.Code(), rec.Code)
	assert.True(t, rec.HasPassword)
	require.NotNil(t, rec.PasswordHash)
	assert.Equal(t, room.HashPassword("secret123"), *rec.PasswordHash)
	assert.NotContains(t, *rec.PasswordHash, "secret123")
}

func TestSaveLoadRestore(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rooms.json")

	reg := New()
	r, err := reg.CreateRoom("Zeus", "secret123", true, 24)
	require.NoError(t, err)
	seat(t, r, "d1", "Zeus")

	require.NoError(t, Save(path, reg.Snapshot()))

	records, err := Load(path)
	require.NoError(t, err)
	require.Len(t, records, 1)

	fresh := New()
	fresh.RestoreSnapshot(records)
	require.Equal(t, 1, fresh.Len())

	recovered := fresh.Get(r.Code())
	require.NotNil(t, recovered)
	assert.True(t, recovered.IsEmpty(), "membership is never restored")
	assert.True(t, recovered.HasPassword())
	assert.True(t, recovered.CheckPassword("secret123"))
	assert.False(t, recovered.CheckPassword("wrong"))
	assert.True(t, recovered.IsPublic())
	assert.Equal(t, 24, recovered.ExpiresInHours())
}

func TestLoadMissingAndCorrupt(t *testing.T) {
	records, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	require.NoError(t, err)
	assert.Nil(t, records)

	bad := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte("{nope"), 0o600))
	_, err = Load(bad)
	assert.Error(t, err)
}
