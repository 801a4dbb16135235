package bot

import (
	"testing"

	"bidkeeper/internal/auction"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseIgnoresOrdinaryChat(t *testing.T) {
	for _, message := range []string{"hello there", "", "! ", "10 points to gryffindor"} {
		result := Parse(message)
		assert.Equal(t, PARSEID_NO_BOT_PREFIX, result.parseid, message)
	}
}

func TestParseUnknownCommand(t *testing.T) {
	result := Parse("!dance")
	assert.Equal(t, PARSEID_COMMAND_NOT_RECOGNISED, result.parseid)
	assert.Contains(t, result.errorMessage, "dance")
}

func TestParseBid(t *testing.T) {
	result := Parse("!bid 150")
	require.Equal(t, PARSEID_OK, result.parseid)
	assert.Equal(t, COMMAND_BID, result.command)
	assert.Equal(t, 150, result.arguments)

	result = Parse("!bid")
	assert.Equal(t, PARSEID_NO_INPUT, result.parseid)

	result = Parse("!bid lots")
	assert.Equal(t, PARSEID_NOT_A_NUMBER, result.parseid)
}

func TestParseAliases(t *testing.T) {
	cases := map[string]int{
		"!b 100":    COMMAND_BID,
		"!pts":      COMMAND_MYPOINTS,
		"!mp":       COMMAND_MYPOINTS,
		"!bs":       COMMAND_BIDSTATUS,
		"!?":        COMMAND_HELP,
		"!ql":       COMMAND_QUEUELIST,
		"!queue":    COMMAND_QUEUELIST,
		"!rm sword": COMMAND_REMOVEITEM,
		"!start":    COMMAND_STARTAUCTION,
		"!auc-now":  COMMAND_STARTAUCTIONNOW,
		"!hold":     COMMAND_PAUSE,
		"!continue": COMMAND_RESUME,
		"!end-item": COMMAND_STOP,
		"!ext 5":    COMMAND_EXTEND,
	}
	for message, want := range cases {
		result := Parse(message)
		require.Equal(t, PARSEID_OK, result.parseid, message)
		assert.Equal(t, want, result.command, message)
	}
}

func TestParseCommandsAreCaseInsensitive(t *testing.T) {
	result := Parse("!BID 100")
	require.Equal(t, PARSEID_OK, result.parseid)
	assert.Equal(t, COMMAND_BID, result.command)
}

func TestParseAddItem(t *testing.T) {
	result := Parse("!additem Dragon Sword 500 30")
	require.Equal(t, PARSEID_OK, result.parseid)
	spec, ok := result.arguments.(auction.LotSpec)
	require.True(t, ok)
	assert.Equal(t, "Dragon Sword", spec.Name)
	assert.Equal(t, 500, spec.StartPrice)
	assert.Equal(t, 30, spec.DurationMin)
	assert.Equal(t, 1, spec.Quantity)
}

func TestParseAddItemWithQuantity(t *testing.T) {
	result := Parse("!auction Phoenix Plume 100 15 3")
	require.Equal(t, PARSEID_OK, result.parseid)
	spec := result.arguments.(auction.LotSpec)
	assert.Equal(t, "Phoenix Plume", spec.Name)
	assert.Equal(t, 100, spec.StartPrice)
	assert.Equal(t, 15, spec.DurationMin)
	assert.Equal(t, 3, spec.Quantity)
}

func TestParseAddItemRejectsBadSpecs(t *testing.T) {
	for _, message := range []string{
		"!additem",
		"!additem Dragon Sword",
		"!additem Dragon Sword 500",
		"!additem 500 30",
		"!additem Dragon Sword 0 30",
		"!additem Dragon Sword 500 30 0",
	} {
		result := Parse(message)
		assert.Equal(t, PARSEID_BAD_ITEM_SPEC, result.parseid, message)
	}
}

func TestParseRemoveItemJoinsTheName(t *testing.T) {
	result := Parse("!removeitem Dragon Sword")
	require.Equal(t, PARSEID_OK, result.parseid)
	assert.Equal(t, "Dragon Sword", result.arguments)
}
