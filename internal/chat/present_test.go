// ABOUTME: Tests for the Present projection
// ABOUTME: Verifies day bucketing, labels, classification, and idempotence

package chat

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var presentNow = time.Date(2025, 6, 12, 15, 0, 0, 0, time.UTC)

func viewerMsg(id string, at time.Time) Message {
	return Message{ID: id, Content: "c-" + id, CreatedAt: at, AuthorKind: AuthorUser, AuthorID: "u1"}
}

func TestPresent_GroupsByAscendingDay(t *testing.T) {
	msgs := []Message{
		viewerMsg("m1", presentNow.Add(-48*time.Hour)),
		viewerMsg("m2", presentNow.Add(-24*time.Hour)),
		viewerMsg("m3", presentNow.Add(-23*time.Hour)),
		viewerMsg("m4", presentNow.Add(-time.Hour)),
	}

	groups := Present(msgs, "u1", presentNow, time.UTC)
	require.Len(t, groups, 3)
	assert.True(t, groups[0].Day.Before(groups[1].Day))
	assert.True(t, groups[1].Day.Before(groups[2].Day))
	assert.Len(t, groups[1].Messages, 2)
}

func TestPresent_Labels(t *testing.T) {
	msgs := []Message{
		viewerMsg("m1", presentNow.Add(-30*24*time.Hour)),
		viewerMsg("m2", presentNow.Add(-3*24*time.Hour)),
		viewerMsg("m3", presentNow.Add(-24*time.Hour)),
		viewerMsg("m4", presentNow),
	}

	groups := Present(msgs, "u1", presentNow, time.UTC)
	require.Len(t, groups, 4)
	assert.Equal(t, "May 13, 2025", groups[0].Label)
	assert.Equal(t, "Monday", groups[1].Label)
	assert.Equal(t, "Yesterday", groups[2].Label)
	assert.Equal(t, "Today", groups[3].Label)
}

func TestPresent_ClassifiesMessages(t *testing.T) {
	msgs := []Message{
		{ID: "m1", CreatedAt: presentNow, AuthorKind: AuthorUser, AuthorID: "u1"},
		{ID: "m2", CreatedAt: presentNow.Add(time.Second), AuthorKind: AuthorBot},
		{ID: "m3", CreatedAt: presentNow.Add(2 * time.Second), AuthorKind: AuthorUser, AuthorID: "u2"},
	}

	groups := Present(msgs, "u1", presentNow, time.UTC)
	require.Len(t, groups, 1)
	require.Len(t, groups[0].Messages, 3)
	assert.Equal(t, KindOwn, groups[0].Messages[0].Kind)
	assert.Equal(t, KindBot, groups[0].Messages[1].Kind)
	assert.Equal(t, KindOtherUser, groups[0].Messages[2].Kind)
}

func TestPresent_Idempotent(t *testing.T) {
	msgs := []Message{
		viewerMsg("m1", presentNow.Add(-24*time.Hour)),
		viewerMsg("m2", presentNow),
	}

	first := Present(msgs, "u1", presentNow, time.UTC)
	second := Present(msgs, "u1", presentNow, time.UTC)
	assert.Equal(t, first, second)
}

func TestPresent_EmptyInput(t *testing.T) {
	assert.Empty(t, Present(nil, "u1", presentNow, time.UTC))
}
