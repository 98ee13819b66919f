package bootstrap

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

const sampleDescriptor = `
regions:
  - size_bits: 20
    paddr: 0x100000
  - size_bits: 16
    paddr: 0x10000
  - size_bits: 16
    paddr: 0x30000
    device: true
root_node:
  slots: 4096
  first_free: 64
vspace:
  directory_slots: 4096
  table_slots: 256
`

func Test_Parse_And_Discover(t *testing.T) {
	d, err := Parse([]byte(sampleDescriptor))
	require.NoError(t, err)
	require.Len(t, d.Regions, 3)

	boot, err := Discover(d)
	require.NoError(t, err)

	require.Equal(t, uint64(4096-64), boot.RootSlots.Free())
	require.Equal(t, uint64(64), boot.RootSlots.Base())
	require.Equal(t, uint64(4096), boot.AddrSlots.DirFree())
	require.Equal(t, uint64(256), boot.AddrSlots.TableFree())
	require.Equal(t, 3, boot.Alloc.FreeRegions())
}

func Test_GetUntyped_SmallestSufficient(t *testing.T) {
	d, err := Parse([]byte(sampleDescriptor))
	require.NoError(t, err)
	boot, err := Discover(d)
	require.NoError(t, err)

	// A class-14 request gets the class-16 general region, not class 20
	// and not the device region.
	p, err := boot.Alloc.GetUntyped(14)
	require.NoError(t, err)
	require.Equal(t, uint8(16), p.SizeBits())
	require.False(t, p.Device())

	// Handed-out regions are gone for good.
	q, err := boot.Alloc.GetUntyped(14)
	require.NoError(t, err)
	require.Equal(t, uint8(20), q.SizeBits())

	_, err = boot.Alloc.GetUntyped(14)
	require.True(t, errors.Is(err, ErrNoMatchingRegion),
		"device region must not serve a general request")
}

func Test_GetDeviceUntyped_ByAddress(t *testing.T) {
	d, err := Parse([]byte(sampleDescriptor))
	require.NoError(t, err)
	boot, err := Discover(d)
	require.NoError(t, err)

	p, err := boot.Alloc.GetDeviceUntyped(16, 0x30000)
	require.NoError(t, err)
	require.True(t, p.Device())
	require.Equal(t, uint64(0x30000), p.Paddr())

	_, err = boot.Alloc.GetDeviceUntyped(16, 0x50000)
	require.True(t, errors.Is(err, ErrNoMatchingRegion))
}

func Test_Validate_Rejections(t *testing.T) {
	cases := []struct {
		name string
		desc Descriptor
		want error
	}{
		{
			name: "size class too large",
			desc: Descriptor{
				Regions:  []Region{{SizeBits: 40, Paddr: 0}},
				RootNode: RootNode{Slots: 16, FirstFree: 1},
			},
			want: ErrRegionSizeOutOfRange,
		},
		{
			name: "size class too small",
			desc: Descriptor{
				Regions:  []Region{{SizeBits: 2, Paddr: 0}},
				RootNode: RootNode{Slots: 16, FirstFree: 1},
			},
			want: ErrRegionSizeOutOfRange,
		},
		{
			name: "misaligned region",
			desc: Descriptor{
				Regions:  []Region{{SizeBits: 16, Paddr: 0x8000}},
				RootNode: RootNode{Slots: 16, FirstFree: 1},
			},
			want: ErrMisalignedRegion,
		},
		{
			name: "no free slots",
			desc: Descriptor{
				Regions:  []Region{{SizeBits: 16, Paddr: 0}},
				RootNode: RootNode{Slots: 16, FirstFree: 16},
			},
			want: ErrSlotRangeInvalid,
		},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			err := c.desc.Validate()
			require.True(t, errors.Is(err, c.want), "got %v", err)
		})
	}
}

func Test_Parse_BadYAML(t *testing.T) {
	_, err := Parse([]byte("regions: [not a region"))
	require.Error(t, err)
}
