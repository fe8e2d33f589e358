package handler

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tele "gopkg.in/telebot.v3"
)

func TestResolveTarget(t *testing.T) {
	alice := &tele.User{ID: 11, FirstName: "Alice", Username: "alice"}
	bob := &tele.User{ID: 22, FirstName: "Bob"}

	dir := NewDirectory()
	dir.Remember(alice)

	tests := []struct {
		name     string
		msg      *tele.Message
		args     []string
		wantID   int64
		wantRest []string
	}{
		{
			name:     "reply wins over arguments",
			msg:      &tele.Message{ReplyTo: &tele.Message{Sender: bob}},
			args:     []string{"@alice", "2h"},
			wantID:   22,
			wantRest: []string{"@alice", "2h"},
		},
		{
			name: "text mention",
			msg: &tele.Message{Entities: tele.Entities{
				{Type: tele.EntityTMention, User: bob},
			}},
			args:     []string{"Bob", "30m"},
			wantID:   22,
			wantRest: []string{"30m"},
		},
		{
			name:     "known username",
			msg:      &tele.Message{},
			args:     []string{"@Alice", "1d"},
			wantID:   11,
			wantRest: []string{"1d"},
		},
		{
			name:     "numeric id",
			msg:      &tele.Message{},
			args:     []string{"42"},
			wantID:   42,
			wantRest: []string{},
		},
		{
			name:     "unknown username",
			msg:      &tele.Message{},
			args:     []string{"@ghost"},
			wantRest: []string{"@ghost"},
		},
		{
			name:     "negative id is not a user",
			msg:      &tele.Message{},
			args:     []string{"-100"},
			wantRest: []string{"-100"},
		},
		{
			name: "no target",
			msg:  &tele.Message{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, rest := ResolveTarget(tt.msg, tt.args, dir)
			if tt.wantID == 0 {
				assert.Nil(t, got)
			} else {
				require.NotNil(t, got)
				assert.Equal(t, tt.wantID, got.ID)
			}
			if len(tt.wantRest) == 0 {
				assert.Empty(t, rest)
			} else {
				assert.Equal(t, tt.wantRest, rest)
			}
		})
	}
}

func TestResolveTargetNilMessage(t *testing.T) {
	got, rest := ResolveTarget(nil, []string{"@alice"}, nil)
	assert.Nil(t, got)
	assert.Equal(t, []string{"@alice"}, rest)
}

func TestDirectory(t *testing.T) {
	dir := NewDirectory()
	dir.Remember(&tele.User{ID: 1, FirstName: "Ella", Username: "Cinder"})
	dir.Remember(&tele.User{ID: 2, IsBot: true, Username: "somebot"})
	dir.Remember(nil)

	assert.Equal(t, 1, dir.Len())

	u, ok := dir.Lookup("@cinder")
	require.True(t, ok)
	assert.Equal(t, int64(1), u.ID)

	_, ok = dir.Lookup("somebot")
	assert.False(t, ok, "bots are not remembered")

	assert.Equal(t, "Ella", dir.Name(1))
	assert.Equal(t, "Subject #99", dir.Name(99))
}

func TestDisplayName(t *testing.T) {
	assert.Equal(t, "someone", displayName(nil))
	assert.Equal(t, "Ella Tremaine", displayName(&tele.User{FirstName: "Ella", LastName: "Tremaine"}))
	assert.Equal(t, "@prince", displayName(&tele.User{Username: "prince"}))
	assert.Equal(t, "7", displayName(&tele.User{ID: 7}))
}

func TestIsPermissionError(t *testing.T) {
	assert.False(t, isPermissionError(nil))
	assert.True(t, isPermissionError(errors.New("telegram: Bad Request: not enough rights to restrict/unrestrict chat member (400)")))
	assert.True(t, isPermissionError(errors.New("telegram: Bad Request: CHAT_ADMIN_REQUIRED (400)")))
	assert.True(t, isPermissionError(errors.New("telegram: Bad Request: need administrator rights in the channel chat (400)")))
	assert.False(t, isPermissionError(errors.New("telegram: Bad Request: user is an administrator of the chat (400)")))
	assert.False(t, isPermissionError(errors.New("telegram: Bad Request: can't remove chat owner (400)")))
	assert.False(t, isPermissionError(errors.New("telegram: Bad Request: message to edit not found (400)")))
}

func TestIsTargetAdminError(t *testing.T) {
	assert.False(t, isTargetAdminError(nil))
	assert.True(t, isTargetAdminError(errors.New("telegram: Bad Request: user is an administrator of the chat (400)")))
	assert.True(t, isTargetAdminError(errors.New("telegram: Bad Request: can't remove chat owner (400)")))
	assert.True(t, isTargetAdminError(errors.New("telegram: Bad Request: can't restrict self (400)")))
	assert.False(t, isTargetAdminError(errors.New("telegram: Bad Request: not enough rights to restrict/unrestrict chat member (400)")))
}

func TestRefusalReply(t *testing.T) {
	targetAdmin := errors.New("telegram: Bad Request: user is an administrator of the chat (400)")
	noRights := errors.New("telegram: Bad Request: not enough rights to ban a chat member (400)")

	assert.Equal(t, "👑 Members of the royal court cannot be silenced!", refusalReply(targetAdmin, "silence"))
	assert.Equal(t, "👑 Members of the royal court cannot be banished!", refusalReply(targetAdmin, "banish"))
	assert.Equal(t, "❌ I don't have the royal authority to banish members!", refusalReply(noRights, "banish"))
	assert.Equal(t, msgTryLater, refusalReply(errors.New("telegram: Too Many Requests (429)"), "banish"))
}

func TestParseSwitch(t *testing.T) {
	for _, s := range []string{"on", "ON", "true", "yes", "1", "enable"} {
		v, ok := parseSwitch(s)
		assert.True(t, ok, s)
		assert.True(t, v, s)
	}
	for _, s := range []string{"off", "false", "no", "0", "Disabled"} {
		v, ok := parseSwitch(s)
		assert.True(t, ok, s)
		assert.False(t, v, s)
	}
	_, ok := parseSwitch("maybe")
	assert.False(t, ok)
}

func TestPastTense(t *testing.T) {
	assert.Equal(t, "cursed", pastTense("curse"))
	assert.Equal(t, "banished", pastTense("banish"))
	assert.Equal(t, "silenced", pastTense("silence"))
	assert.Equal(t, "pardoned", pastTense("pardon"))
}
