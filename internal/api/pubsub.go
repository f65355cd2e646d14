package api

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/victornm/livequiz/internal/domain"
)

type (
	Notification struct {
		Event string `json:"event"`
		Data  any    `json:"data"`
	}

	Leaderboard struct {
		SessionID int64                     `json:"session_id"`
		Code      string                    `json:"code"`
		Entries   []domain.LeaderboardEntry `json:"entries"`
	}
)

// PublishLeaderboardUpdated notifies subscribers of the session's channel about new
// standings.
func (a *API) PublishLeaderboardUpdated(ctx context.Context, e domain.EventLeaderboardUpdated) error {
	l := e.Leaderboard

	data := Leaderboard{
		SessionID: l.SessionID,
		Code:      l.Code,
		Entries:   l.Entries,
	}
	if data.Entries == nil {
		data.Entries = []domain.LeaderboardEntry{}
	}

	return a.publishNotification(ctx, SessionChannel(a.prefix, l.Code), e.Name(), data)
}

// SessionChannel is the Redis channel notifications about a session are published on.
func SessionChannel(prefix, code string) string {
	return fmt.Sprintf("%s:session:%s", prefix, code)
}

func (a *API) publishNotification(ctx context.Context, channel, event string, data any) error {
	n := Notification{
		Event: event,
		Data:  data,
	}

	b, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("pubsub: marshal %s: %v", event, err)
	}

	return a.redis.Publish(ctx, channel, b).Err()
}
