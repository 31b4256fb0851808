package snapshot_test

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grissiom/fvs/internal/snapshot"
)

func Test_Export_Import_Round_Trips(t *testing.T) {
	t.Parallel()

	page0 := make([]byte, 128)
	for i := range page0 {
		page0[i] = 0xFF
	}
	page1 := append([]byte{0x01, 0x02, 0x03}, page0[3:]...)

	want := snapshot.Snapshot{PageSize: 128, Page0: page0, Page1: page1}

	blob, err := snapshot.Export(want)
	require.NoError(t, err)

	got, err := snapshot.Import(blob)
	require.NoError(t, err)

	diff := cmp.Diff(want, got)
	assert.Empty(t, diff, "round-tripped snapshot should be identical")
}

func Test_Import_Rejects_Garbage(t *testing.T) {
	t.Parallel()

	_, err := snapshot.Import([]byte("not a snapshot"))
	require.Error(t, err)
}

func Test_Export_Compresses_A_Highly_Repetitive_Page(t *testing.T) {
	t.Parallel()

	page := make([]byte, 4096)
	for i := range page {
		page[i] = 0xFF
	}
	blob, err := snapshot.Export(snapshot.Snapshot{PageSize: 4096, Page0: page, Page1: page})
	require.NoError(t, err)
	require.Less(t, len(blob), len(page), "an all-erased page should compress well below its raw size")
}
