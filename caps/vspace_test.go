package caps

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

// 2 directory + 10 table slots serve a 1 + 8 request and leave 1 + 2.
func Test_ReserveAddrSlots_IndependentSubCounts(t *testing.T) {
	led, _ := newTestLedger()
	p := NewAddrSlotPool(9, 2, 10)

	dirs, tables, rest, err := led.ReserveAddrSlots(p, 1, 8)
	require.NoError(t, err)
	require.Len(t, dirs, 1)
	require.Len(t, tables, 8)
	require.Equal(t, LevelDirectory, dirs[0].Level)
	require.Equal(t, LevelTable, tables[0].Level)
	require.Equal(t, uint64(1), rest.DirFree())
	require.Equal(t, uint64(2), rest.TableFree())
}

func Test_ReserveAddrSlots_NamesExhaustedLevel(t *testing.T) {
	led, _ := newTestLedger()

	p := NewAddrSlotPool(9, 2, 10)
	_, _, _, err := led.ReserveAddrSlots(p, 3, 1)
	var ae *AddrSpaceExhaustionError
	require.ErrorAs(t, err, &ae)
	require.Equal(t, LevelDirectory, ae.Level)
	require.Equal(t, uint64(3), ae.Requested)
	require.Equal(t, uint64(2), ae.Available)
	require.False(t, p.Spent())

	p2 := NewAddrSlotPool(9, 2, 10)
	_, _, _, err = led.ReserveAddrSlots(p2, 1, 11)
	require.ErrorAs(t, err, &ae)
	require.Equal(t, LevelTable, ae.Level)
	require.Equal(t, uint64(10), ae.Available)
}

func Test_ReserveAddrSlots_DirectoryOnly(t *testing.T) {
	led, _ := newTestLedger()
	p := NewAddrSlotPool(3, 4, 0)

	dirs, tables, rest, err := led.ReserveAddrSlots(p, 2, 0)
	require.NoError(t, err)
	require.Len(t, dirs, 2)
	require.Empty(t, tables)
	require.Equal(t, uint64(2), rest.DirFree())
}

func Test_ReserveAddrSlots_DoubleSpend(t *testing.T) {
	led, _ := newTestLedger()
	p := NewAddrSlotPool(3, 4, 4)

	_, _, _, err := led.ReserveAddrSlots(p, 1, 1)
	require.NoError(t, err)

	_, _, _, err = led.ReserveAddrSlots(p, 1, 1)
	require.True(t, errors.Is(err, ErrPoolSpent))
}

func Test_ReserveAddrSlots_BadCounts(t *testing.T) {
	led, _ := newTestLedger()
	p := NewAddrSlotPool(3, 4, 4)

	_, _, _, err := led.ReserveAddrSlots(p, 0, 0)
	require.True(t, errors.Is(err, ErrBadCount))

	_, _, _, err = led.ReserveAddrSlots(p, -1, 2)
	require.True(t, errors.Is(err, ErrBadCount))
}
