package handler

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	tele "gopkg.in/telebot.v3"

	"cinderella-bot/internal/provider"
)

// Inference is the part of the inference client the magic commands use.
type Inference interface {
	Enabled() bool
	Classify(ctx context.Context, text string) (provider.Sentiment, error)
	Synthesize(ctx context.Context, text string) ([]byte, error)
	Imagine(ctx context.Context, prompt string) ([]byte, error)
}

const msgMagicOff = "🔮 The Fairy Godmother's wand is resting. Magic commands are not configured."

var forbiddenPrompt = []string{"nude", "naked", "sexy", "adult", "porn", "nsfw"}

var moodEmoji = map[string]string{
	"joy":      "😊",
	"love":     "💖",
	"surprise": "😲",
	"sadness":  "😢",
	"anger":    "😠",
	"fear":     "😨",
	"positive": "😊",
	"negative": "😞",
	"neutral":  "😐",
}

// MagicHandler handles the commands backed by the inference provider.
type MagicHandler struct {
	ctx    context.Context
	client Inference
}

// NewMagicHandler creates a new MagicHandler.
func NewMagicHandler(ctx context.Context, client Inference) *MagicHandler {
	return &MagicHandler{ctx: ctx, client: client}
}

// HandleMood handles the /mood command. It reads the text after the
// command or the replied-to message.
func (h *MagicHandler) HandleMood(c tele.Context) error {
	text := strings.TrimSpace(c.Message().Payload)
	if text == "" && c.Message().ReplyTo != nil {
		text = c.Message().ReplyTo.Text
	}
	if text == "" {
		return c.Reply("🔮 Usage: /mood <text>, or reply to a message with /mood")
	}
	if !h.client.Enabled() {
		return c.Reply(msgMagicOff)
	}

	_ = c.Notify(tele.Typing)
	mood, err := h.client.Classify(h.ctx, text)
	if err != nil {
		return h.fail(c, err, "mood")
	}

	return c.Reply(FormatMood(mood))
}

// FormatMood renders a classification result.
func FormatMood(s provider.Sentiment) string {
	emoji, ok := moodEmoji[s.Label]
	if !ok {
		emoji = "🪞"
	}
	return fmt.Sprintf("🪞 The magic mirror senses: %s %s (%.0f%% sure)", emoji, s.Label, s.Score*100)
}

// HandleImagine handles the /imagine command.
func (h *MagicHandler) HandleImagine(c tele.Context) error {
	prompt := strings.TrimSpace(c.Message().Payload)
	if prompt == "" {
		return c.Reply("🎨 Usage: /imagine <what to paint>")
	}
	if !PromptAllowed(prompt) {
		return c.Reply("🚫 The Fairy Godmother only paints what is fit for the royal ball!")
	}
	if !h.client.Enabled() {
		return c.Reply(msgMagicOff)
	}

	_ = c.Notify(tele.UploadingPhoto)
	img, err := h.client.Imagine(h.ctx, prompt)
	if err != nil {
		return h.fail(c, err, "imagine")
	}

	photo := &tele.Photo{
		File:    tele.FromReader(bytes.NewReader(img)),
		Caption: "🎨 Bibbidi-Bobbidi-Boo! Behold: " + prompt,
	}
	return c.Reply(photo)
}

// PromptAllowed reports whether an image prompt avoids the forbidden words.
func PromptAllowed(prompt string) bool {
	lower := strings.ToLower(prompt)
	for _, w := range forbiddenPrompt {
		if strings.Contains(lower, w) {
			return false
		}
	}
	return true
}

// HandleSpeak handles the /speak command.
func (h *MagicHandler) HandleSpeak(c tele.Context) error {
	text := strings.TrimSpace(c.Message().Payload)
	if text == "" {
		return c.Reply("🗣 Usage: /speak <text>")
	}
	if !h.client.Enabled() {
		return c.Reply(msgMagicOff)
	}

	_ = c.Notify(tele.RecordingAudio)
	audio, err := h.client.Synthesize(h.ctx, text)
	if err != nil {
		return h.fail(c, err, "speak")
	}

	return c.Reply(&tele.Audio{
		File:     tele.FromReader(bytes.NewReader(audio)),
		FileName: "fairy-godmother.flac",
		Title:    "The Fairy Godmother speaks",
	})
}

func (h *MagicHandler) fail(c tele.Context, err error, command string) error {
	if errors.Is(err, provider.ErrNotConfigured) {
		return c.Reply(msgMagicOff)
	}
	log.Error().Err(err).Str("command", command).Msg("Inference request failed")

	var perr *provider.Error
	if errors.As(err, &perr) && perr.Temporary() {
		return c.Reply("⏳ The magic is still warming up. Please try again in a minute.")
	}
	return c.Reply("💫 The spell fizzled! Please try again later.")
}
