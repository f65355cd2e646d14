package router

import (
	"context"
	"log/slog"
	"strings"

	"github.com/victornm/livequiz/internal/domain"
	"github.com/victornm/livequiz/internal/errors"
	"github.com/victornm/livequiz/internal/room"
)

func notHost(code string) error {
	return errors.PermissionDenied("not authorized: only the host of %s can do this", code)
}

func (r *Router) joinLobby(ctx context.Context, c *client, in JoinLobby) error {
	if _, err := r.sessions.ResolveJoinable(ctx, in.Code); err != nil {
		return err
	}

	name := strings.TrimSpace(in.DisplayName)
	if name == "" {
		name = DefaultDisplayName
	}

	if !c.trackJoined(in.Code) {
		return nil
	}

	r.rooms.Update(in.Code, true, func(rm *room.Room) {
		// The connection may have gone away after it was tracked.
		if c.isClosed() {
			return
		}

		rm.Join(c.id, name)
		roster := rm.Roster()

		r.send(ctx, c.id, Message{Event: EventLobbyJoined, Data: LobbyJoined{
			Code:        in.Code,
			DisplayName: name,
			Players:     roster,
		}})
		r.broadcast(ctx, rm, Message{Event: EventPlayerJoined, Data: PlayerJoined{
			DisplayName: name,
			Players:     roster,
			PlayerCount: len(roster),
		}})
	})

	slog.InfoContext(ctx, "router: player joined", "conn", c.id, "code", in.Code, "player", name)
	return nil
}

func (r *Router) hostJoin(ctx context.Context, c *client, in HostJoin) error {
	if _, err := r.sessions.ResolveJoinable(ctx, in.Code); err != nil {
		return err
	}

	if !c.trackHosted(in.Code) {
		return nil
	}

	r.rooms.Update(in.Code, true, func(rm *room.Room) {
		if c.isClosed() {
			return
		}

		rm.SetHost(c.id)
		r.send(ctx, c.id, Message{Event: EventHostJoined, Data: HostJoined{
			Code:        in.Code,
			Players:     rm.Roster(),
			PlayerCount: rm.Count(),
		}})
	})

	slog.InfoContext(ctx, "router: host joined", "conn", c.id, "code", in.Code)
	return nil
}

// isHost reports whether c currently hosts the room of code.
func (r *Router) isHost(c *client, code string) bool {
	var ok bool
	r.rooms.View(code, func(rm *room.Room) {
		ok = rm.IsHost(c.id)
	})
	return ok
}

// broadcastAsHost delivers m to the room of code if c is still its host.
func (r *Router) broadcastAsHost(ctx context.Context, c *client, code string, m Message) error {
	var ok bool
	r.rooms.View(code, func(rm *room.Room) {
		if ok = rm.IsHost(c.id); ok {
			r.broadcast(ctx, rm, m)
		}
	})
	if !ok {
		return notHost(code)
	}
	return nil
}

func (r *Router) startGame(ctx context.Context, c *client, in StartGame) error {
	if !r.isHost(c, in.Code) {
		return notHost(in.Code)
	}

	ss, err := r.sessions.ResolveJoinable(ctx, in.Code)
	if err != nil {
		return err
	}

	if ss.Status == domain.StatusLobby {
		_, err := r.sessions.Start(ctx, ss.ID)
		// A concurrent start through the REST surface is fine.
		if err != nil && !errors.Is(err, errors.CodeFailedPrecondition) {
			return err
		}
	}

	if err := r.broadcastAsHost(ctx, c, in.Code, Message{Event: EventGameStarted, Data: GameStarted{Code: in.Code}}); err != nil {
		return err
	}

	slog.InfoContext(ctx, "router: game started", "conn", c.id, "code", in.Code, "session", ss.ID)
	return nil
}

func (r *Router) showQuestion(ctx context.Context, c *client, in ShowQuestion) error {
	limit := in.TimeLimitMS
	if limit == 0 {
		limit = r.timeLimit.Milliseconds()
	}

	err := r.broadcastAsHost(ctx, c, in.Code, Message{Event: EventQuestionShown, Data: QuestionShown{
		Question:      in.Question,
		QuestionIndex: in.QuestionIndex,
		TimeLimitMS:   limit,
	}})
	if err != nil {
		return err
	}

	slog.InfoContext(ctx, "router: question shown", "code", in.Code, "question", in.Question.ID, "index", in.QuestionIndex)
	return nil
}

// submitAnswer acknowledges an answer. Scoring happens through the answer
// endpoint, so neither the player nor the host learns correctness here.
func (r *Router) submitAnswer(ctx context.Context, c *client, in SubmitAnswer) error {
	name := room.UnknownPlayer
	ack := Message{Event: EventAnswerReceived, Data: AnswerReceived{
		QuestionID:  in.QuestionID,
		AnswerIndex: in.AnswerIndex,
	}}

	inRoom := r.rooms.View(in.Code, func(rm *room.Room) {
		name = rm.Name(c.id)
		r.send(ctx, c.id, ack)

		if host, ok := rm.Host(); ok {
			r.send(ctx, host, Message{Event: EventPlayerAnswered, Data: PlayerAnswered{PlayerName: name}})
		}
	})
	if !inRoom {
		r.send(ctx, c.id, ack)
	}

	slog.InfoContext(ctx, "router: answer received", "conn", c.id, "code", in.Code, "player", name, "question", in.QuestionID)
	return nil
}

func (r *Router) updateLeaderboard(ctx context.Context, c *client, in UpdateLeaderboard) error {
	entries := in.Leaderboard
	if entries == nil {
		entries = []domain.LeaderboardEntry{}
	}

	err := r.broadcastAsHost(ctx, c, in.Code, Message{Event: EventLeaderboardUpdate, Data: LeaderboardUpdate{Leaderboard: entries}})
	if err != nil {
		return err
	}

	slog.InfoContext(ctx, "router: leaderboard updated", "code", in.Code, "entries", len(entries))
	return nil
}

// endGame announces the final standings and then forgets the room and its host.
func (r *Router) endGame(ctx context.Context, c *client, in EndGame) error {
	if !r.isHost(c, in.Code) {
		return notHost(in.Code)
	}

	ss, err := r.sessions.ResolveJoinable(ctx, in.Code)
	switch {
	case errors.Is(err, errors.CodeNotFound):
		// Already finished, for example by advancing past the last question.
	case err != nil:
		return err
	default:
		if _, err := r.sessions.End(ctx, ss.ID); err != nil {
			return err
		}
	}

	entries := in.FinalLeaderboard
	if entries == nil {
		entries = []domain.LeaderboardEntry{}
	}

	var ok bool
	r.rooms.Update(in.Code, false, func(rm *room.Room) {
		if ok = rm.IsHost(c.id); !ok {
			return
		}

		r.broadcast(ctx, rm, Message{Event: EventGameEnded, Data: GameEnded{FinalLeaderboard: entries}})
		rm.Clear()
	})
	if !ok {
		return notHost(in.Code)
	}

	slog.InfoContext(ctx, "router: game ended", "conn", c.id, "code", in.Code)
	return nil
}
