package store

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"cinderella-bot/internal/model"
)

// legacyUser is the unversioned user layout with float epoch timestamps.
type legacyUser struct {
	Coins         int64   `json:"coins"`
	Luck          *int    `json:"luck"`
	FoundSlippers int     `json:"found_slippers"`
	PumpkinsGrown int     `json:"pumpkins_grown"`
	CreatedAt     float64 `json:"created_at"`
}

type legacyGroup struct {
	CreatedAt     float64 `json:"created_at"`
	TotalMessages int64   `json:"total_messages"`
	GamesPlayed   int64   `json:"games_played"`
	Settings      *struct {
		WelcomeEnabled *bool `json:"welcome_enabled"`
		GamesEnabled   *bool `json:"games_enabled"`
	} `json:"settings"`
}

type legacySnapshot struct {
	Users    map[string]map[string]legacyUser `json:"users"`
	Groups   map[string]legacyGroup           `json:"groups"`
	Admins   map[string][]json.RawMessage     `json:"admins"`
	Warnings map[string]map[string]int        `json:"warnings"`
	Rules    map[string]string                `json:"rules"`
}

// decodeSnapshot decodes any known snapshot version into the current layout.
func decodeSnapshot(data []byte) (*model.Snapshot, error) {
	var head struct {
		Version int `json:"version"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptSnapshot, err)
	}

	switch {
	case head.Version == 0:
		snap, err := upgradeLegacy(data)
		if err != nil {
			return nil, err
		}
		log.Info().Int("to", model.SnapshotVersion).Msg("Upgraded legacy snapshot")
		return snap, nil
	case head.Version > model.SnapshotVersion:
		return nil, fmt.Errorf("%w: %d (newest known %d)", ErrUnsupportedVersion, head.Version, model.SnapshotVersion)
	}

	snap := model.NewSnapshot()
	if err := json.Unmarshal(data, snap); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptSnapshot, err)
	}
	snap.Normalize()
	return snap, nil
}

// upgradeLegacy converts the unversioned layout to version 1.
func upgradeLegacy(data []byte) (*model.Snapshot, error) {
	var old legacySnapshot
	if err := json.Unmarshal(data, &old); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptSnapshot, err)
	}

	snap := model.NewSnapshot()

	for chatKey, users := range old.Users {
		converted := make(map[string]model.UserRecord, len(users))
		for userKey, u := range users {
			luck := model.DefaultLuck
			if u.Luck != nil {
				luck = min(max(*u.Luck, 0), model.MaxLuck)
			}
			converted[userKey] = model.UserRecord{
				Coins:      max(u.Coins, 0),
				Luck:       luck,
				FoundCount: max(u.FoundSlippers, 0),
				GrownCount: max(u.PumpkinsGrown, 0),
				CreatedAt:  fromEpoch(u.CreatedAt),
			}
		}
		snap.Users[chatKey] = converted
	}

	for chatKey, g := range old.Groups {
		rec := model.NewGroupRecord(fromEpoch(g.CreatedAt))
		rec.MessageCount = g.TotalMessages
		rec.GameCount = g.GamesPlayed
		if g.Settings != nil {
			if g.Settings.WelcomeEnabled != nil {
				rec.Settings.WelcomeEnabled = *g.Settings.WelcomeEnabled
			}
			if g.Settings.GamesEnabled != nil {
				rec.Settings.GamesEnabled = *g.Settings.GamesEnabled
			}
		}
		snap.Groups[chatKey] = rec
	}

	// Admin ids were written both as strings and as numbers.
	for chatKey, raw := range old.Admins {
		ids := make([]string, 0, len(raw))
		for _, r := range raw {
			var s string
			if err := json.Unmarshal(r, &s); err == nil {
				ids = append(ids, s)
				continue
			}
			var n int64
			if err := json.Unmarshal(r, &n); err == nil {
				ids = append(ids, strconv.FormatInt(n, 10))
			}
		}
		snap.Admins[chatKey] = ids
	}

	for chatKey, counts := range old.Warnings {
		kept := make(map[string]int)
		for userKey, n := range counts {
			if n > 0 {
				kept[userKey] = n
			}
		}
		if len(kept) > 0 {
			snap.Warnings[chatKey] = kept
		}
	}

	for chatKey, text := range old.Rules {
		snap.Rules[chatKey] = text
	}

	return snap, nil
}

func fromEpoch(sec float64) time.Time {
	if sec <= 0 {
		return time.Time{}
	}
	whole, frac := math.Modf(sec)
	return time.Unix(int64(whole), int64(frac*1e9)).UTC()
}
