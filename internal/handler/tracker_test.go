package handler

import (
	"errors"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	tele "gopkg.in/telebot.v3"
)

type fakeDeleter struct {
	deleted []int
	err     error
}

func (f *fakeDeleter) Delete(msg tele.Editable) error {
	id, _ := msg.MessageSig()
	n, _ := strconv.Atoi(id)
	f.deleted = append(f.deleted, n)
	return f.err
}

func TestTrackerClean(t *testing.T) {
	now := time.Now()
	tr := NewTracker(time.Minute)

	tr.Track(-1, 10, now.Add(-2*time.Minute))
	tr.Track(-1, 11, now.Add(-30*time.Second))
	tr.Track(-2, 12, now.Add(-time.Minute))
	tr.Track(-2, 0, now.Add(-time.Hour))
	assert.Equal(t, 3, tr.Len())

	d := &fakeDeleter{}
	assert.Equal(t, 2, tr.Clean(d, now))
	assert.ElementsMatch(t, []int{10, 12}, d.deleted)
	assert.Equal(t, 1, tr.Len())

	assert.Equal(t, 1, tr.Clean(d, now.Add(time.Minute)))
	assert.Equal(t, 0, tr.Len())
}

func TestTrackerCleanDropsFailedDeletes(t *testing.T) {
	now := time.Now()
	tr := NewTracker(0)
	tr.Track(-1, 10, now.Add(-MessageRetention))

	d := &fakeDeleter{err: errors.New("message to delete not found")}
	assert.Equal(t, 1, tr.Clean(d, now))
	assert.Equal(t, 0, tr.Len())
}
