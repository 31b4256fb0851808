package store_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/grissiom/fvs/flash"
	"github.com/grissiom/fvs/flash/simhal"
	"github.com/grissiom/fvs/store"
	"github.com/grissiom/fvs/word"
)

const (
	scenarioPageSize = 128
	scenarioPayload  = 4
)

func newScenarioBlock(t *testing.T) (*store.Block, *simhal.Flash) {
	t.Helper()
	w := word.Width16
	fl := simhal.New(2*scenarioPageSize, scenarioPageSize, w)
	b, err := store.New(fl, 0, scenarioPageSize, scenarioPageSize, w)
	require.NoError(t, err)
	return b, fl
}

func erased4() []byte { return []byte{0xFF, 0xFF, 0xFF, 0xFF} }

// Scenario 1: fill then reject.
func Test_Scenario_FillThenReject(t *testing.T) {
	t.Parallel()

	b, _ := newScenarioBlock(t)

	for i := uint32(1); i <= 12; i++ {
		payload, err := b.Get(i, scenarioPayload)
		require.NoError(t, err, "get(%d) should succeed", i)
		require.Equal(t, erased4(), payload)
	}

	_, err := b.Get(13, scenarioPayload)
	require.ErrorIs(t, err, flash.ErrOutOfSpace, "the 13th reservation must be rejected: the page holds only 12")
}

// Scenario 2: simple write.
func Test_Scenario_SimpleWrite(t *testing.T) {
	t.Parallel()

	b, _ := newScenarioBlock(t)
	for i := uint32(1); i <= 12; i++ {
		_, err := b.Get(i, scenarioPayload)
		require.NoError(t, err)
	}

	require.NoError(t, b.Write(2, scenarioPayload, []byte{0x78, 0x56, 0x34, 0x12}))

	got, err := b.Get(2, scenarioPayload)
	require.NoError(t, err)
	require.Equal(t, []byte{0x78, 0x56, 0x34, 0x12}, got)

	got1, err := b.Get(1, scenarioPayload)
	require.NoError(t, err)
	require.Equal(t, erased4(), got1)

	got3, err := b.Get(3, scenarioPayload)
	require.NoError(t, err)
	require.Equal(t, erased4(), got3)
}

// Scenario 3: idempotent write.
func Test_Scenario_IdempotentWrite(t *testing.T) {
	t.Parallel()

	b, fl := newScenarioBlock(t)
	for i := uint32(1); i <= 12; i++ {
		_, err := b.Get(i, scenarioPayload)
		require.NoError(t, err)
	}
	require.NoError(t, b.Write(2, scenarioPayload, []byte{0x78, 0x56, 0x34, 0x12}))

	before := fl.Image()
	require.NoError(t, b.Write(2, scenarioPayload, []byte{0x78, 0x56, 0x34, 0x12}))
	after := fl.Image()

	require.Equal(t, before, after, "repeating an identical write must not program any flash")

	got, err := b.Get(2, scenarioPayload)
	require.NoError(t, err)
	require.Equal(t, []byte{0x78, 0x56, 0x34, 0x12}, got)
}

// Scenario 4: rewrite triggers roll.
func Test_Scenario_RewriteTriggersRoll(t *testing.T) {
	t.Parallel()

	b, fl := newScenarioBlock(t)
	for i := uint32(1); i <= 12; i++ {
		_, err := b.Get(i, scenarioPayload)
		require.NoError(t, err)
	}
	require.NoError(t, b.Write(2, scenarioPayload, []byte{0x78, 0x56, 0x34, 0x12}))

	require.NoError(t, b.Write(2, scenarioPayload, []byte{0x34, 0x12, 0x78, 0x56}))

	// The original active page (page 0) must have been erased by the roll.
	// Checked before the Gets below: re-reserving the other eleven records
	// fills page 1, and the last of them rolls back onto page 0.
	page0 := make([]byte, scenarioPageSize)
	fl.ReadAt(0, page0)
	for _, bt := range page0 {
		require.Equal(t, byte(0xFF), bt)
	}

	got, err := b.Get(2, scenarioPayload)
	require.NoError(t, err)
	require.Equal(t, []byte{0x34, 0x12, 0x78, 0x56}, got)

	for i := uint32(1); i <= 12; i++ {
		if i == 2 {
			continue
		}
		v, err := b.Get(i, scenarioPayload)
		require.NoError(t, err)
		require.Equal(t, erased4(), v, "record %d must read erased after the roll discarded its reservation", i)
	}
}

// Scenario 5: delete then reuse.
func Test_Scenario_DeleteThenReuse(t *testing.T) {
	t.Parallel()

	b, _ := newScenarioBlock(t)
	for i := uint32(1); i <= 12; i++ {
		_, err := b.Get(i, scenarioPayload)
		require.NoError(t, err)
	}

	require.NoError(t, b.Delete(1, scenarioPayload))

	got, err := b.Get(13, scenarioPayload)
	require.NoError(t, err, "deleting record 1 frees enough budget for get(13) to roll and succeed")
	require.Equal(t, erased4(), got)
}

// Scenario 6: crash during rewrite. Inject a HAL failure at every mutating
// call (program or erase) of scenario 4's rewrite — the roll and the record
// rewrite after it — reload from the post-crash image, and confirm get(2,4)
// always reads a value from before or after the rewrite, never anything
// else.
func Test_Scenario_CrashDuringRewrite(t *testing.T) {
	t.Parallel()

	w := word.Width16
	before := []byte{0x78, 0x56, 0x34, 0x12}
	after := []byte{0x34, 0x12, 0x78, 0x56}

	// Run the uninjected sequence once to learn how many mutating calls the
	// triggering write makes, so every injection point gets covered.
	probe := simhal.New(2*scenarioPageSize, scenarioPageSize, w)
	pb, err := store.New(probe, 0, scenarioPageSize, scenarioPageSize, w)
	require.NoError(t, err)
	for i := uint32(1); i <= 12; i++ {
		_, err := pb.Get(i, scenarioPayload)
		require.NoError(t, err)
	}
	require.NoError(t, pb.Write(2, scenarioPayload, before))
	probe.FailAfter(0)
	probeCalls := probe.Calls()
	require.NoError(t, pb.Write(2, scenarioPayload, after))
	totalCalls := probe.Calls() - probeCalls

	for n := 1; n <= totalCalls; n++ {
		fl := simhal.New(2*scenarioPageSize, scenarioPageSize, w)
		b, err := store.New(fl, 0, scenarioPageSize, scenarioPageSize, w)
		require.NoError(t, err)
		for i := uint32(1); i <= 12; i++ {
			_, err := b.Get(i, scenarioPayload)
			require.NoError(t, err)
		}
		require.NoError(t, b.Write(2, scenarioPayload, before))

		fl.FailAfter(n)
		_ = b.Write(2, scenarioPayload, after) // may fail; that is the point

		// Simulate a reboot: reload a fresh Block over the same image.
		recovered, err := store.New(fl, 0, scenarioPageSize, scenarioPageSize, w)
		require.NoError(t, err, "injection at call %d must leave a recoverable image", n)

		got, err := recovered.Get(2, scenarioPayload)
		require.NoError(t, err, "injection at call %d", n)
		require.Contains(t, [][]byte{before, after}, got, "injection at call %d produced a third value", n)
	}
}

func Test_Delete_Is_Idempotent_When_Record_Absent(t *testing.T) {
	t.Parallel()

	b, _ := newScenarioBlock(t)
	require.NoError(t, b.Delete(1, scenarioPayload))
}

func Test_Write_Without_Prior_Get_Returns_NotFound(t *testing.T) {
	t.Parallel()

	b, _ := newScenarioBlock(t)
	err := b.Write(1, scenarioPayload, []byte{1, 2, 3, 4})
	require.ErrorIs(t, err, flash.ErrNotFound)
}

func Test_IsUsed_Reflects_Whether_A_Page_Is_Active(t *testing.T) {
	t.Parallel()

	b, _ := newScenarioBlock(t)
	require.False(t, b.IsUsed())
	_, err := b.Get(1, scenarioPayload)
	require.NoError(t, err)
	require.True(t, b.IsUsed())
}
