package bot

import (
	"fmt"
	"strconv"
	"strings"

	"bidkeeper/internal/auction"
)

const prefix string = "!"

const (
	COMMAND_BID = iota
	COMMAND_MYPOINTS
	COMMAND_BIDSTATUS
	COMMAND_STATUS
	COMMAND_HELP
	COMMAND_ADDITEM
	COMMAND_QUEUELIST
	COMMAND_REMOVEITEM
	COMMAND_CLEARQUEUE
	COMMAND_STARTAUCTION
	COMMAND_STARTAUCTIONNOW
	COMMAND_PAUSE
	COMMAND_RESUME
	COMMAND_STOP
	COMMAND_EXTEND
	COMMAND_CANCELITEM
	COMMAND_SKIPITEM
	COMMAND_FORCEEND
	COMMAND_FORCESUBMIT
	COMMAND_FORCEUNLOCK
	COMMAND_CLEARPENDING
	COMMAND_FORCEENDAUCTION
	COMMAND_FORCESYNC
	COMMAND_DIAGNOSTICS
)

const (
	PARSEID_OK = iota
	PARSEID_NO_BOT_PREFIX
	PARSEID_COMMAND_NOT_RECOGNISED
	PARSEID_NO_INPUT
	PARSEID_NOT_A_NUMBER
	PARSEID_BAD_ITEM_SPEC
)

var errorMessages map[int]string = map[int]string{
	PARSEID_COMMAND_NOT_RECOGNISED: "Command `%s` not recognised",
	PARSEID_NO_INPUT:               "Command `%s` requires an argument",
	PARSEID_NOT_A_NUMBER:           "`%s` is not a whole number",
	PARSEID_BAD_ITEM_SPEC:          "Expected `<name> <startPrice> <duration> [quantity]`",
}

// Shorthand the guild is used to typing
var aliases map[string]string = map[string]string{
	"?":          "help",
	"b":          "bid",
	"pts":        "mypoints",
	"mypts":      "mypoints",
	"mp":         "mypoints",
	"bstatus":    "bidstatus",
	"bs":         "bidstatus",
	"st":         "status",
	"auction":    "additem",
	"ql":         "queuelist",
	"queue":      "queuelist",
	"rm":         "removeitem",
	"start":      "startauction",
	"auc-start":  "startauction",
	"auc-now":    "startauctionnow",
	"auc-pause":  "pause",
	"hold":       "pause",
	"auc-resume": "resume",
	"continue":   "resume",
	"auc-stop":   "stop",
	"end-item":   "stop",
	"ext":        "extend",
	"auc-extend": "extend",
}

var commands map[string]int = map[string]int{
	"bid":             COMMAND_BID,
	"mypoints":        COMMAND_MYPOINTS,
	"bidstatus":       COMMAND_BIDSTATUS,
	"status":          COMMAND_STATUS,
	"help":            COMMAND_HELP,
	"additem":         COMMAND_ADDITEM,
	"queuelist":       COMMAND_QUEUELIST,
	"removeitem":      COMMAND_REMOVEITEM,
	"clearqueue":      COMMAND_CLEARQUEUE,
	"startauction":    COMMAND_STARTAUCTION,
	"startauctionnow": COMMAND_STARTAUCTIONNOW,
	"pause":           COMMAND_PAUSE,
	"resume":          COMMAND_RESUME,
	"stop":            COMMAND_STOP,
	"extend":          COMMAND_EXTEND,
	"cancelitem":      COMMAND_CANCELITEM,
	"skipitem":        COMMAND_SKIPITEM,
	"forceend":        COMMAND_FORCEEND,
	"forcesubmit":     COMMAND_FORCESUBMIT,
	"forceunlock":     COMMAND_FORCEUNLOCK,
	"clearpending":    COMMAND_CLEARPENDING,
	"forceendauction": COMMAND_FORCEENDAUCTION,
	"forcesync":       COMMAND_FORCESYNC,
	"diagnostics":     COMMAND_DIAGNOSTICS,
}

type ParseResult struct {
	command      int
	parseid      int
	errorMessage string
	arguments    interface{}
}

func Parse(message string) ParseResult {

	// The message has to start with the bot prefix
	if !strings.HasPrefix(message, prefix) {
		return ParseResult{parseid: PARSEID_NO_BOT_PREFIX}
	}

	words := strings.Fields(message[len(prefix):])
	if len(words) == 0 {
		return ParseResult{parseid: PARSEID_NO_BOT_PREFIX}
	}
	commandString := strings.ToLower(words[0])
	if canonical, ok := aliases[commandString]; ok {
		commandString = canonical
	}
	words = words[1:]

	command, ok := commands[commandString]
	if !ok {
		parseid := PARSEID_COMMAND_NOT_RECOGNISED
		return ParseResult{parseid: parseid, errorMessage: fmt.Sprintf(errorMessages[parseid], commandString)}
	}

	switch command {
	case COMMAND_BID:
		// !bid <amount>
		if len(words) == 0 {
			return noInput(command, commandString)
		}
		return parseAmount(command, words[0])
	case COMMAND_EXTEND:
		// !extend <minutes>
		if len(words) == 0 {
			return noInput(command, commandString)
		}
		return parseAmount(command, words[0])
	case COMMAND_ADDITEM:
		// !additem <name> <startPrice> <duration> [quantity]
		return parseItemSpec(command, words)
	case COMMAND_REMOVEITEM:
		// !removeitem <name>
		if len(words) == 0 {
			return noInput(command, commandString)
		}
		return ParseResult{command: command, parseid: PARSEID_OK, arguments: strings.Join(words, " ")}
	default:
		return ParseResult{command: command, parseid: PARSEID_OK}
	}
}

func noInput(command int, commandString string) ParseResult {
	parseid := PARSEID_NO_INPUT
	return ParseResult{command: command, parseid: parseid, errorMessage: fmt.Sprintf(errorMessages[parseid], commandString)}
}

func parseAmount(command int, word string) ParseResult {
	amount, err := strconv.Atoi(word)
	if err != nil {
		parseid := PARSEID_NOT_A_NUMBER
		return ParseResult{command: command, parseid: parseid, errorMessage: fmt.Sprintf(errorMessages[parseid], word)}
	}
	return ParseResult{command: command, parseid: PARSEID_OK, arguments: amount}
}

// parseItemSpec reads the numeric fields from the tail of the input so
// the item name itself can contain spaces
func parseItemSpec(command int, words []string) ParseResult {

	bad := ParseResult{command: command, parseid: PARSEID_BAD_ITEM_SPEC, errorMessage: errorMessages[PARSEID_BAD_ITEM_SPEC]}

	numbers := []int{}
	for len(words) > 0 && len(numbers) < 3 {
		n, err := strconv.Atoi(words[len(words)-1])
		if err != nil {
			break
		}
		numbers = append([]int{n}, numbers...)
		words = words[:len(words)-1]
	}
	if len(words) == 0 || len(numbers) < 2 {
		return bad
	}

	spec := auction.LotSpec{
		Name:        strings.Join(words, " "),
		StartPrice:  numbers[0],
		DurationMin: numbers[1],
		Quantity:    1,
	}
	if len(numbers) == 3 {
		spec.Quantity = numbers[2]
	}
	if spec.StartPrice <= 0 || spec.DurationMin <= 0 || spec.Quantity <= 0 {
		return bad
	}
	return ParseResult{command: command, parseid: PARSEID_OK, arguments: spec}
}
