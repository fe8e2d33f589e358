package bot

import (
	"context"
	"slices"
	"testing"

	tele "gopkg.in/telebot.v3"
	"pgregory.net/rapid"

	"cinderella-bot/internal/config"
	"cinderella-bot/internal/handler"
	"cinderella-bot/internal/store"
)

// fakeContext implements the parts of tele.Context the middleware uses.
type fakeContext struct {
	tele.Context
	chat     *tele.Chat
	sender   *tele.User
	message  *tele.Message
	callback *tele.Callback
	replies  []string
}

func (f *fakeContext) Chat() *tele.Chat { return f.chat }
func (f *fakeContext) Sender() *tele.User { return f.sender }
func (f *fakeContext) Message() *tele.Message { return f.message }
func (f *fakeContext) Callback() *tele.Callback { return f.callback }
func (f *fakeContext) Text() string { return "/curse" }
func (f *fakeContext) Reply(what interface{}, _ ...interface{}) error {
	if s, ok := what.(string); ok {
		f.replies = append(f.replies, s)
	}
	return nil
}

func groupContext(chatID, userID int64) *fakeContext {
	return &fakeContext{
		chat:    &tele.Chat{ID: chatID, Type: tele.ChatSuperGroup},
		sender:  &tele.User{ID: userID},
		message: &tele.Message{Text: "hello"},
	}
}

func passes(mw tele.MiddlewareFunc, c tele.Context) bool {
	called := false
	_ = mw(func(tele.Context) error {
		called = true
		return nil
	})(c)
	return called
}

// TestAdminMiddlewareProperty checks that a court command passes exactly
// when the sender is a static admin or a cached chat admin.
func TestAdminMiddlewareProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		st, err := store.Open(context.Background(), store.NewMemoryPersister())
		if err != nil {
			t.Fatalf("open store: %v", err)
		}
		defer st.Close()

		static := rapid.SliceOfN(rapid.Int64Range(1, 1000), 0, 5).Draw(t, "static")
		cached := rapid.SliceOfN(rapid.Int64Range(1, 1000), 1, 5).Draw(t, "cached")
		chatID := -rapid.Int64Range(1, 1000000).Draw(t, "chatID")
		userID := rapid.Int64Range(1, 1000).Draw(t, "userID")

		if err := st.SetAdmins(context.Background(), chatID, cached); err != nil {
			t.Fatalf("set admins: %v", err)
		}
		policy := handler.NewAdminPolicy(static, st, nil)

		c := groupContext(chatID, userID)
		got := passes(AdminMiddleware(policy), c)
		want := slices.Contains(static, userID) || slices.Contains(cached, userID)

		if got != want {
			t.Fatalf("admin check mismatch: user=%d static=%v cached=%v want=%v got=%v",
				userID, static, cached, want, got)
		}
		if !got && len(c.replies) != 1 {
			t.Fatalf("rejected command should get one reply, got %v", c.replies)
		}
	})
}

// TestWhitelistMiddlewareProperty checks that group updates pass exactly
// when the chat is whitelisted or the whitelist is empty.
func TestWhitelistMiddlewareProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		chats := rapid.SliceOfN(rapid.Int64Range(-1000, -1), 0, 10).Draw(t, "chats")
		chatID := rapid.Int64Range(-1000, -1).Draw(t, "chatID")
		userID := rapid.Int64Range(1, 1000000).Draw(t, "userID")

		cfg := &config.Config{Whitelist: config.WhitelistConfig{Chats: chats}}
		access := NewPrivateAccess()

		got := passes(WhitelistMiddleware(cfg, access), groupContext(chatID, userID))
		want := len(chats) == 0 || slices.Contains(chats, chatID)

		if got != want {
			t.Fatalf("whitelist mismatch: chat=%d whitelist=%v want=%v got=%v", chatID, chats, want, got)
		}
		if access.Allowed(userID) != want {
			t.Fatalf("private access should follow group admission for user %d", userID)
		}
	})
}

// TestPrivateAccessProperty checks that private chats open only after the
// user was seen in a whitelisted group.
func TestPrivateAccessProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		allowed := -rapid.Int64Range(1, 1000).Draw(t, "allowed")
		userID := rapid.Int64Range(1, 1000000).Draw(t, "userID")

		cfg := &config.Config{Whitelist: config.WhitelistConfig{Chats: []int64{allowed}}}
		access := NewPrivateAccess()
		mw := WhitelistMiddleware(cfg, access)

		private := &fakeContext{
			chat:   &tele.Chat{ID: userID, Type: tele.ChatPrivate},
			sender: &tele.User{ID: userID},
		}
		if passes(mw, private) {
			t.Fatalf("unknown user %d passed in private chat", userID)
		}

		passes(mw, groupContext(allowed, userID))

		if !passes(mw, private) {
			t.Fatalf("user %d should pass in private chat after visiting a whitelisted group", userID)
		}
	})
}
