package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/homeqa/internal/core/domain"
)

// syncedDemo registers and syncs the demo corpus.
func syncedDemo(t *testing.T) string {
	t.Helper()
	setupTestServices(t)
	id := addDemo(t, "--connect")
	_, err := runCLI(t, "sync", id)
	require.NoError(t, err)
	return id
}

func TestSearchCmd_ErrorsWithoutServices(t *testing.T) {
	SetServices(Services{})

	_, err := runCLI(t, "search", "party")
	assert.ErrorIs(t, err, errAnswerNotConfigured)

	_, err = runCLI(t, "ask", "party")
	assert.ErrorIs(t, err, errAnswerNotConfigured)

	_, err = runCLI(t, "stats")
	assert.ErrorIs(t, err, errAnswerNotConfigured)
}

func TestSearchCmd_RequiresQuery(t *testing.T) {
	setupTestServices(t)

	_, err := runCLI(t, "search")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "requires at least 1 arg")
}

func TestSearchCmd_Results(t *testing.T) {
	syncedDemo(t)

	out, err := runCLI(t, "search", "football", "practice", "boots", "-n", "1")

	require.NoError(t, err)
	assert.Contains(t, out, "Results:")
	assert.Contains(t, out, "[1] Football Practice - This Weekend")
	assert.NotContains(t, out, "[2]")
	assert.Contains(t, out, "From: coach.mike@sportsclub.com")
}

func TestSearchCmd_JSON(t *testing.T) {
	syncedDemo(t)

	out, err := runCLI(t, "search", "birthday party", "--json")

	require.NoError(t, err)
	assert.Contains(t, out, `"DocID": "gmail_demo_1"`)
}

func TestSearchCmd_NoResults(t *testing.T) {
	setupTestServices(t)

	out, err := runCLI(t, "search", "xyzzy-unrelated-token")

	require.NoError(t, err)
	assert.Contains(t, out, "No results found.")
}

func TestAskCmd_Plain(t *testing.T) {
	syncedDemo(t)

	out, err := runCLI(t, "ask", "tell", "me", "about", "the", "birthday", "party")

	require.NoError(t, err)
	assert.Contains(t, out, "Riverside Park")
	assert.Contains(t, out, "Sources:")
	assert.Contains(t, out, "[1] Emma's Birthday Party Invitation")
}

func TestAskCmd_JSON(t *testing.T) {
	syncedDemo(t)

	out, err := runCLI(t, "ask", "tell me about the birthday party", "--json")

	require.NoError(t, err)
	assert.Contains(t, out, `"intent": "event"`)
	assert.Contains(t, out, `"processing_time"`)
	assert.Contains(t, out, `"relevance_score"`)
}

func TestAskCmd_FilterExcludesMessages(t *testing.T) {
	syncedDemo(t)

	out, err := runCLI(t, "ask", "tell me about the birthday party", "--filter", "sender=nobody@example.com")

	require.NoError(t, err)
	assert.NotContains(t, out, "Riverside Park")
	assert.NotContains(t, out, "Sources:")
}

func TestAskCmd_BadFilter(t *testing.T) {
	setupTestServices(t)

	_, err := runCLI(t, "ask", "anything", "--filter", "novalue")

	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestAskCmd_EmptyIndexFallsBack(t *testing.T) {
	setupTestServices(t)

	out, err := runCLI(t, "ask", "when is the party")

	require.NoError(t, err)
	assert.NotEmpty(t, out)
	assert.NotContains(t, out, "Sources:")
}

func TestStatsCmd(t *testing.T) {
	syncedDemo(t)

	out, err := runCLI(t, "stats")

	require.NoError(t, err)
	assert.Contains(t, out, "Documents:   2")
	assert.Contains(t, out, "Backend:     memory:messages")
	assert.Contains(t, out, "Initialised: true")
	assert.Contains(t, out, "Sources:     1")

	out, err = runCLI(t, "stats", "--json")
	require.NoError(t, err)
	assert.Contains(t, out, `"total_documents": 2`)
}
