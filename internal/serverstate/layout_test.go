package serverstate

import (
	"reflect"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// TestFieldOrderMatchesDocumentedLayout asserts State's Go field order
// has not drifted from Layout, the recorded ABI field order — the part
// of spec §6's "offsets are part of the ABI, append only" rule that
// still applies once the byte-level packing itself is out of scope.
func TestFieldOrderMatchesDocumentedLayout(t *testing.T) {
	typ := reflect.TypeOf(State{})
	require.Equal(t, len(Layout), typ.NumField(), "State's field count must match Layout's entry count")
	for i, entry := range Layout {
		require.Equal(t, entry.Field, typ.Field(i).Name, "field %d name mismatch", i)
	}
}

func TestUpdateCountBracketsAroundWrites(t *testing.T) {
	s := New()
	require.Equal(t, uint32(0), s.UpdateCount())

	s.Update(func(s *State) { s.Volume = 42 })
	require.Equal(t, uint32(2), s.UpdateCount())
	require.Equal(t, uint32(42), s.Volume)
}

func TestReadSnapshotRetriesOnOddCount(t *testing.T) {
	s := New()
	s.updateCount.Store(1) // simulate an in-flight write

	done := make(chan struct{})
	go func() {
		time.Sleep(2 * time.Millisecond)
		s.Volume = 7
		s.updateCount.Store(2)
		close(done)
	}()

	var observed uint32
	ReadSnapshot(s, func(s *State) { observed = s.Volume })
	<-done
	require.Equal(t, uint32(7), observed)
}
