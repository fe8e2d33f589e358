package hunt

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	tele "gopkg.in/telebot.v3"
)

// Callback actions.
const (
	CallbackPrefix = "hunt_"
	ActionGuess    = "guess"
	ActionEnd      = "end"
)

// ErrBadCallback is returned for callback data that is not a hunt action.
var ErrBadCallback = errors.New("malformed hunt callback")

// Callback is a decoded board button press.
type Callback struct {
	Action  string
	RoundID uuid.UUID
	Cell    Cell
}

// EncodeGuess returns the callback data of a grid button.
func EncodeGuess(roundID uuid.UUID, c Cell) string {
	return fmt.Sprintf("%s%s_%s_%d_%d", CallbackPrefix, ActionGuess, roundID, c.Row, c.Col)
}

// EncodeEnd returns the callback data of the "End Hunt" button.
func EncodeEnd(roundID uuid.UUID) string {
	return fmt.Sprintf("%s%s_%s", CallbackPrefix, ActionEnd, roundID)
}

// IsCallback reports whether data belongs to the hunt.
func IsCallback(data string) bool {
	return strings.HasPrefix(data, CallbackPrefix)
}

// DecodeCallback parses hunt callback data.
func DecodeCallback(data string) (*Callback, error) {
	if !IsCallback(data) {
		return nil, ErrBadCallback
	}

	parts := strings.Split(strings.TrimPrefix(data, CallbackPrefix), "_")
	if len(parts) < 2 {
		return nil, ErrBadCallback
	}

	id, err := uuid.Parse(parts[1])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadCallback, err)
	}
	cb := &Callback{Action: parts[0], RoundID: id}

	switch cb.Action {
	case ActionEnd:
		if len(parts) != 2 {
			return nil, ErrBadCallback
		}
	case ActionGuess:
		if len(parts) != 4 {
			return nil, ErrBadCallback
		}
		row, err := strconv.Atoi(parts[2])
		if err != nil {
			return nil, ErrBadCallback
		}
		col, err := strconv.Atoi(parts[3])
		if err != nil {
			return nil, ErrBadCallback
		}
		cb.Cell = Cell{Row: row, Col: col}
	default:
		return nil, ErrBadCallback
	}
	return cb, nil
}

// BuildBoard builds the hidden grid with an "End Hunt" row underneath.
func BuildBoard(r *Round, rows, cols int) *tele.ReplyMarkup {
	keyboard := make([][]tele.InlineButton, 0, rows+1)
	for i := 0; i < rows; i++ {
		row := make([]tele.InlineButton, 0, cols)
		for j := 0; j < cols; j++ {
			row = append(row, tele.InlineButton{
				Text: "👑",
				Data: EncodeGuess(r.ID, Cell{Row: i, Col: j}),
			})
		}
		keyboard = append(keyboard, row)
	}
	keyboard = append(keyboard, []tele.InlineButton{
		{Text: "End Hunt", Data: EncodeEnd(r.ID)},
	})

	return &tele.ReplyMarkup{InlineKeyboard: keyboard}
}

// FormatBoardMessage is the text sent with a fresh board.
func FormatBoardMessage(cfg Config) string {
	return "🏰 Royal Glass Slipper Hunt!\n\n" +
		"The Prince has hidden a glass slipper in his castle!\n" +
		fmt.Sprintf("Be the first to find it within %d seconds and win %d royal coins!\n\n", int(cfg.Timeout.Seconds()), cfg.Reward) +
		"Click on the 👑 buttons to search for the slipper!"
}

// HintMessage is the alert shown for a wrong guess.
func HintMessage(h Hint) string {
	switch h {
	case HintVeryClose:
		return "❌ No glass slipper here! You're very close! The slipper is just one step away!"
	case HintWarm:
		return "❌ No glass slipper here! Getting warmer! The slipper is nearby."
	default:
		return "❌ No glass slipper here! You're far from the slipper. Keep searching!"
	}
}

// FormatWinMessage announces the winner.
func FormatWinMessage(winner string, o *Outcome) string {
	return fmt.Sprintf("🎉 The glass slipper has been found by %s!\n"+
		"It was hidden at position %s after %d guesses from %s.\n"+
		"They have been awarded %d royal coins!",
		winner, o.Round.Target, o.Attempts, huntersPhrase(o.Hunters), o.Reward)
}

// FormatExpiredMessage reveals the target after a timeout.
func FormatExpiredMessage(o *Outcome) string {
	return fmt.Sprintf("⏰ Time's up! No one found the glass slipper!\n"+
		"It was hidden at position %s. %s searched in vain.\n"+
		"The Prince will continue his search elsewhere.", o.Round.Target, capitalize(huntersPhrase(o.Hunters)))
}

func huntersPhrase(n int) string {
	switch n {
	case 0:
		return "no hunters"
	case 1:
		return "1 hunter"
	default:
		return fmt.Sprintf("%d hunters", n)
	}
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// FormatCancelledMessage reveals the target after an early end.
func FormatCancelledMessage(o *Outcome) string {
	return fmt.Sprintf("🛑 The glass slipper hunt was ended early!\n"+
		"The slipper was hidden at position %s.\n"+
		"Better luck next time!", o.Round.Target)
}
