package flarm

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)

func TestTable_UpsertCapacityExceeded(t *testing.T) {
	const n = 4
	tbl := NewTable(n)
	for id := uint32(1); id <= n; id++ {
		_, err := tbl.Upsert(id, Report{RelativeNorth: float64(id)}, t0)
		require.NoError(t, err)
	}

	before := tbl.Clone()
	_, err := tbl.Upsert(n+1, Report{}, t0)
	require.ErrorIs(t, err, ErrTableFull)
	assert.Equal(t, n, tbl.Count())
	assert.Equal(t, -1, tbl.Find(n+1))
	assert.Equal(t, before.Active(), tbl.Active(), "existing slots must be untouched")
}

func TestTable_UpsertRefreshesExisting(t *testing.T) {
	tbl := NewTable(2)
	i, err := tbl.Upsert(0xDDA5BA, Report{RelativeNorth: 100}, t0)
	require.NoError(t, err)

	j, err := tbl.Upsert(0xDDA5BA, Report{RelativeNorth: 300, RelativeEast: 400}, t0.Add(time.Second))
	require.NoError(t, err)
	assert.Equal(t, i, j)
	assert.Equal(t, 1, tbl.Count())

	s, ok := tbl.Slot(i)
	require.True(t, ok)
	assert.Equal(t, 500.0, s.Distance)
	assert.Equal(t, t0, s.FirstSeen)
	assert.Equal(t, t0.Add(time.Second), s.LastUpdate)
}

func TestTable_UpsertRejectsZeroID(t *testing.T) {
	tbl := NewTable(2)
	_, err := tbl.Upsert(0, Report{}, t0)
	assert.Error(t, err)
	assert.Zero(t, tbl.Count())
}

func TestTable_RefreshAllAgesAndEvicts(t *testing.T) {
	tbl := NewTable(3)
	_, _ = tbl.Upsert(1, Report{RelativeNorth: 1000, AlarmLevel: 2}, t0)
	_, _ = tbl.Upsert(2, Report{RelativeNorth: 200, AlarmLevel: 1}, t0.Add(20*time.Second))
	_, _ = tbl.Upsert(3, Report{RelativeNorth: 50}, t0.Add(28*time.Second))

	evicted := tbl.RefreshAll(t0.Add(31 * time.Second))
	assert.Equal(t, 1, evicted)
	assert.Equal(t, -1, tbl.Find(1))
	assert.Equal(t, 2, tbl.Count())

	ghost, _ := tbl.Slot(tbl.Find(2))
	assert.Equal(t, SlotGhost, ghost.Status)
	live, _ := tbl.Slot(tbl.Find(3))
	assert.Equal(t, SlotReal, live.Status)

	// Ghosts do not raise the alarm, the alarmed target was evicted.
	assert.Equal(t, 0, tbl.MaxAlarm)

	active := tbl.Active()
	require.Len(t, active, 2)
	assert.Equal(t, uint32(3), active[0].RadioID)
	assert.Equal(t, 1, active[0].Rank)
	assert.Equal(t, uint32(2), active[1].RadioID)
	assert.Equal(t, 2, active[1].Rank)

	// The freed slot can be reused.
	_, err := tbl.Upsert(4, Report{}, t0.Add(31*time.Second))
	assert.NoError(t, err)
}

func TestTable_RefreshAllMaxAlarm(t *testing.T) {
	tbl := NewTable(3)
	_, _ = tbl.Upsert(1, Report{AlarmLevel: 1}, t0)
	_, _ = tbl.Upsert(2, Report{AlarmLevel: 3}, t0)
	tbl.RefreshAll(t0.Add(time.Second))
	assert.Equal(t, 3, tbl.MaxAlarm)
}

func TestTable_CloneIsDeep(t *testing.T) {
	tbl := NewTable(2)
	_, _ = tbl.Upsert(7, Report{}, t0)
	c := tbl.Clone()
	tbl.Clear()
	assert.Equal(t, 0, tbl.Count())
	assert.Equal(t, 1, c.Count())
}
