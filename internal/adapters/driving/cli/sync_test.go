package cli

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/homeqa/internal/core/domain"
)

func TestSyncCmd_Flags(t *testing.T) {
	assert.NotNil(t, syncCmd.Flags().Lookup("plain"))
	assert.NotNil(t, syncCmd.Flags().Lookup("no-wait"))
}

func TestSyncCmd_ErrorsWithoutServices(t *testing.T) {
	SetServices(Services{})

	_, err := runCLI(t, "sync")

	assert.ErrorIs(t, err, errSyncNotConfigured)
}

func TestSyncCmd_SingleSourceConnectsAndCompletes(t *testing.T) {
	setupTestServices(t)
	id := addDemo(t)

	out, err := runCLI(t, "sync", id, "--plain")

	require.NoError(t, err)
	assert.Contains(t, out, "Source "+id+" connected.")
	assert.Contains(t, out, "["+id+" 100%] Sync complete! Added 2 new messages to knowledge base.")
}

func TestSyncCmd_SecondRunAddsNothing(t *testing.T) {
	setupTestServices(t)
	id := addDemo(t, "--connect")

	_, err := runCLI(t, "sync", id)
	require.NoError(t, err)

	out, err := runCLI(t, "sync", id)
	require.NoError(t, err)
	assert.Contains(t, out, "Added 0 new messages")
}

func TestSyncCmd_UnknownSource(t *testing.T) {
	setupTestServices(t)

	_, err := runCLI(t, "sync", "nope")

	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestSyncCmd_FailedFetch(t *testing.T) {
	setupTestServices(t)
	id := addDemo(t, "--set", "fail_fetch=true")

	out, err := runCLI(t, "sync", id)

	require.Error(t, err)
	assert.Contains(t, err.Error(), domain.SyncFailedPrefix)
	assert.Contains(t, out, "Sync failed")
}

func TestSyncCmd_NoWait(t *testing.T) {
	env := setupTestServices(t)
	id := addDemo(t, "--connect")

	out, err := runCLI(t, "sync", id, "--no-wait")

	require.NoError(t, err)
	assert.Contains(t, out, "Sync of "+id+" started.")
	assert.Eventually(t, func() bool {
		p, err := env.orch.GetProgress(id)
		return err == nil && p.Idle()
	}, 2*time.Second, 10*time.Millisecond)
}

func TestSyncCmd_AllWithoutConnectedSources(t *testing.T) {
	setupTestServices(t)
	addDemo(t)

	out, err := runCLI(t, "sync")

	require.NoError(t, err)
	assert.Contains(t, out, "No connected sources to sync.")
}

func TestSyncCmd_All(t *testing.T) {
	setupTestServices(t)
	first := addDemo(t, "--connect")
	second := addDemo(t, "--connect")

	out, err := runCLI(t, "sync")

	require.NoError(t, err)
	assert.Contains(t, out, "["+first+" 100%]")
	assert.Contains(t, out, "["+second+" 100%]")
	assert.Contains(t, out, "All sources synced.")
}
