package buffershare

import (
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestAddRejectsDuplicate(t *testing.T) {
	tbl := New(1024)
	require.NoError(t, tbl.Add(1, nil))
	require.ErrorIs(t, tbl.Add(1, nil), ErrAlreadyExists)
}

func TestOffsetUpdateUnknownIDIsNoop(t *testing.T) {
	tbl := New(1024)
	tbl.OffsetUpdate(42, 100)
	require.Equal(t, uint32(0), tbl.MinimumOffset())
}

func TestGrowsByDoublingPastInitialSize(t *testing.T) {
	tbl := New(1024)
	for i := uint32(0); i < initialSize+3; i++ {
		require.NoError(t, tbl.Add(i, nil))
	}
	require.Equal(t, uint32(0), tbl.MinimumOffset())
}

// TestUpdateWritePointLeavesStateUnchangedOnFailure encodes invariant 3.
func TestUpdateWritePointLeavesStateUnchangedOnFailure(t *testing.T) {
	tbl := New(1024)
	require.NoError(t, tbl.Add(1, nil))
	require.NoError(t, tbl.Add(2, nil))
	tbl.OffsetUpdate(1, 100)
	tbl.OffsetUpdate(2, 50)

	require.ErrorIs(t, tbl.UpdateWritePoint(60), ErrBehindWritePoint)
	require.Equal(t, uint32(100), tbl.IDOffset(1))
	require.Equal(t, uint32(50), tbl.IDOffset(2))

	require.NoError(t, tbl.UpdateWritePoint(50))
	require.Equal(t, uint32(50), tbl.IDOffset(1))
	require.Equal(t, uint32(0), tbl.IDOffset(2))
}

// TestMinimumOffsetMonotonicity encodes invariant 2: after any sequence
// of offset_update(id, +delta) calls with delta >= 0 and no reset,
// MinimumOffset is non-decreasing.
func TestMinimumOffsetMonotonicity(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		tbl := New(1 << 20)
		numStreams := rapid.IntRange(1, 8).Draw(rt, "numStreams")
		for i := 0; i < numStreams; i++ {
			require.NoError(rt, tbl.Add(uint32(i), nil))
		}

		prevMin := tbl.MinimumOffset()
		steps := rapid.IntRange(0, 100).Draw(rt, "steps")
		for i := 0; i < steps; i++ {
			id := uint32(rapid.IntRange(0, numStreams-1).Draw(rt, "id"))
			delta := rapid.Uint32Range(0, 1000).Draw(rt, "delta")
			tbl.OffsetUpdate(id, delta)

			gotMin := tbl.MinimumOffset()
			require.GreaterOrEqualf(rt, gotMin, prevMin, "minimum offset decreased")
			prevMin = gotMin
		}
	})
}

// TestAllStreamsWrittenClipsAndReportsBreach encodes scenario S6.
func TestAllStreamsWrittenClipsAndReportsBreach(t *testing.T) {
	tbl := New(1024)
	require.NoError(t, tbl.Add(1, nil))
	require.NoError(t, tbl.Add(2, nil))
	require.NoError(t, tbl.Add(3, nil))

	tbl.OffsetUpdate(1, 400)
	tbl.OffsetUpdate(2, 400)
	tbl.OffsetUpdate(3, 700)

	advanced, breached := tbl.AllStreamsWritten(500)
	require.Equal(t, uint32(400), advanced)
	require.Equal(t, []uint32{3}, breached)

	require.Equal(t, uint32(0), tbl.IDOffset(1))
	require.Equal(t, uint32(0), tbl.IDOffset(2))
	require.Equal(t, uint32(300), tbl.IDOffset(3))
}

func TestResetWritePointZeroesAll(t *testing.T) {
	tbl := New(1024)
	require.NoError(t, tbl.Add(1, "payload"))
	tbl.OffsetUpdate(1, 500)
	tbl.ResetWritePoint()
	require.Equal(t, uint32(0), tbl.IDOffset(1))
	require.Equal(t, "payload", tbl.Data(1))
}
