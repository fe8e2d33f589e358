package service

import (
	"context"
	"fmt"
	"math/rand"
	"strings"

	"github.com/rs/zerolog/log"
)

// TextGenerator produces free text from a prompt.
type TextGenerator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

var fallbackFortunes = []string{
	"A stroke of luck will come your way when the clock strikes twelve.",
	"Be careful not to lose your glass slippers at the next ball.",
	"A royal opportunity awaits - don't let it turn into a pumpkin!",
	"Someone from your past may return with an old shoe.",
	"Kindness to small creatures will bring unexpected rewards.",
	"A fairy godmother figure will appear when you least expect it.",
	"Your true worth will be recognized by someone important.",
	"A journey over water will lead to a happy ending.",
	"Have courage and be kind, and good fortune will follow.",
	"Dreams really do come true if you believe in them.",
	"Magic is all around you, if you just believe.",
	"A grand ball is in your future - prepare to dance!",
	"Even the smallest of animals can be your greatest allies.",
	"Remember, %s, a dream is a wish your heart makes.",
	"Midnight isn't the end of magic - it's just the beginning of a new chapter.",
	"Your kindness today will be rewarded with a coach, not a pumpkin.",
}

// FortuneService writes prophecies, falling back to a canned list when no
// generator is configured or it fails.
type FortuneService struct {
	gen TextGenerator
}

// NewFortuneService creates a FortuneService. gen may be nil.
func NewFortuneService(gen TextGenerator) *FortuneService {
	return &FortuneService{gen: gen}
}

// Prophecy returns a short fortune for name.
func (s *FortuneService) Prophecy(ctx context.Context, name string) string {
	if s.gen != nil {
		prompt := fmt.Sprintf("Generate a short, whimsical fortune or prophecy for a user named %s. "+
			"Use a fairy-tale style with references to Cinderella themes like glass slippers, "+
			"pumpkins, fairy godmothers, royal balls, or midnight magic. "+
			"Keep it positive, G-rated, and under 60 words. No hashtags or emojis.\nFortune:", name)

		text, err := s.gen.Generate(ctx, prompt)
		if err == nil {
			if text = cleanGenerated(text); text != "" {
				return text
			}
		} else {
			log.Warn().Err(err).Msg("Fortune generation failed, using fallback")
		}
	}
	return CannedFortune(name)
}

// CannedFortune picks one of the built-in fortunes.
func CannedFortune(name string) string {
	f := fallbackFortunes[rand.Intn(len(fallbackFortunes))]
	if strings.Contains(f, "%s") {
		return fmt.Sprintf(f, name)
	}
	return f
}

func cleanGenerated(text string) string {
	text = strings.TrimSpace(text)
	text = strings.Trim(text, "\"")
	return strings.TrimSpace(text)
}
