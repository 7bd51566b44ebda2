package membership

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubChatAPI отвечает заранее заданными статусами по каналам.
type stubChatAPI struct {
	statuses   map[string]string
	resolveErr map[string]error
	statusErr  map[string]error
}

func (s *stubChatAPI) ResolveChatID(channel string) (int64, error) {
	if err := s.resolveErr[channel]; err != nil {
		return 0, err
	}
	return int64(len(channel)) + 1000, nil
}

func (s *stubChatAPI) MemberStatus(chatID int64, userID int64) (string, error) {
	for channel, err := range s.statusErr {
		if chatID == int64(len(channel))+1000 {
			return "", err
		}
	}
	for channel, status := range s.statuses {
		if chatID == int64(len(channel))+1000 {
			return status, nil
		}
	}
	return "", errors.New("unknown chat")
}

func TestCheckAllAllJoined(t *testing.T) {
	api := &stubChatAPI{statuses: map[string]string{
		"srdexchange": "member",
		"srdearning":  "administrator",
	}}
	v := NewVerifier(api, []string{"srdexchange", "srdearning"}, 0)

	results, err := v.CheckAll(context.Background(), 42)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.True(t, AllJoined(results))
	assert.Empty(t, Missing(results))
}

func TestCheckAllDetectsLeftAndKicked(t *testing.T) {
	api := &stubChatAPI{statuses: map[string]string{
		"srdexchange": "left",
		"srdearning":  "kicked",
		"srdglobal":   "restricted", // restricted still counts as joined
	}}
	v := NewVerifier(api, []string{"srdexchange", "srdearning", "srdglobal"}, 0)

	results, err := v.CheckAll(context.Background(), 42)
	require.NoError(t, err)
	assert.False(t, AllJoined(results))
	assert.ElementsMatch(t, []string{"srdexchange", "srdearning"}, Missing(results))
	assert.Equal(t, StateJoined, results[2].State)
}

func TestCheckAllLookupFailureIsUnresolvable(t *testing.T) {
	api := &stubChatAPI{
		statuses:   map[string]string{"srdearning": "member"},
		resolveErr: map[string]error{"srdexchange": errors.New("chat not found")},
	}
	v := NewVerifier(api, []string{"srdexchange", "srdearning"}, 0)

	results, err := v.CheckAll(context.Background(), 42)
	require.NoError(t, err)

	// Сбой lookup никогда не засчитывается как подписка.
	assert.Equal(t, StateUnresolvable, results[0].State)
	assert.Error(t, results[0].Err)
	assert.False(t, AllJoined(results))
	assert.Equal(t, []string{"srdexchange"}, Missing(results))
}

func TestCheckAllMemberStatusFailureIsUnresolvable(t *testing.T) {
	api := &stubChatAPI{
		statusErr: map[string]error{"srdexchange": errors.New("bot is not a member")},
	}
	v := NewVerifier(api, []string{"srdexchange"}, 0)

	results, err := v.CheckAll(context.Background(), 42)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, StateUnresolvable, results[0].State)
}

func TestCheckAllEmptyChannelListSatisfiesTrivially(t *testing.T) {
	v := NewVerifier(&stubChatAPI{}, nil, 0)
	results, err := v.CheckAll(context.Background(), 42)
	require.NoError(t, err)
	assert.Empty(t, results)
	assert.True(t, AllJoined(results))
}

func TestCheckAllHonorsContextCancellation(t *testing.T) {
	api := &stubChatAPI{statuses: map[string]string{"srdexchange": "member"}}
	v := NewVerifier(api, []string{"srdexchange", "srdearning"}, 0)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := v.CheckAll(ctx, 42)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestChannelLink(t *testing.T) {
	assert.Equal(t, "https://t.me/srdexchange", ChannelLink("srdexchange"))
	assert.Equal(t, "https://t.me/srdexchange", ChannelLink("@srdexchange"))
	assert.Equal(t, "-1001234567890", ChannelLink("-1001234567890"))
}
