package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/mknutsen/chorequest/internal/errs"
	"github.com/mknutsen/chorequest/internal/game"
	"github.com/mknutsen/chorequest/internal/model"
	"github.com/mknutsen/chorequest/internal/remote/rpc"
)

// writeError maps repository sentinels onto HTTP statuses. Anything
// unrecognized becomes a 502: the remote is the usual culprit once the
// session and input checks have passed.
func writeError(w http.ResponseWriter, logger *slog.Logger, err error) {
	switch {
	case errors.Is(err, errs.ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
	case errors.Is(err, errs.ErrNoSession):
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "no active session"})
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		writeJSON(w, http.StatusGatewayTimeout, map[string]string{"error": "operation cancelled"})
	default:
		if auth, ok := errs.AsAuthRequired(err); ok {
			writeJSON(w, http.StatusUnauthorized, map[string]string{
				"error":           auth.Message,
				"remediation_url": auth.RemediationURL,
			})
			return
		}
		logger.Error("request failed", "error", err)
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": err.Error()})
	}
}

func (s *Server) choreCreate(w http.ResponseWriter, r *http.Request) {
	var chore model.Chore
	if err := readJSON(r, &chore); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}
	if chore.Title == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "title is required"})
		return
	}
	created, err := s.chores.Create(r.Context(), chore)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) choreList(w http.ResponseWriter, r *http.Request) {
	if userID := r.URL.Query().Get("user_id"); userID != "" {
		chores, err := s.chores.ListForUser(userID)
		if err != nil {
			writeError(w, s.logger, err)
			return
		}
		writeJSON(w, http.StatusOK, chores)
		return
	}
	chores, err := s.chores.List()
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, chores)
}

func (s *Server) choreGet(w http.ResponseWriter, r *http.Request) {
	chore, err := s.chores.Get(r.PathValue("id"))
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	if chore == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
		return
	}
	writeJSON(w, http.StatusOK, chore)
}

func (s *Server) choreUpdate(w http.ResponseWriter, r *http.Request) {
	var chore model.Chore
	if err := readJSON(r, &chore); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}
	chore.ID = r.PathValue("id")
	updated, err := s.chores.Update(r.Context(), chore)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (s *Server) choreDelete(w http.ResponseWriter, r *http.Request) {
	if err := s.chores.Delete(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) choreStart(w http.ResponseWriter, r *http.Request) {
	chore, err := s.chores.Start(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, chore)
}

func (s *Server) choreComplete(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID     string `json:"user_id"`
		PhotoProof string `json:"photo_proof"`
	}
	if err := readJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}
	chore, err := s.chores.Complete(r.Context(), r.PathValue("id"), req.UserID, req.PhotoProof)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, chore)
}

func (s *Server) choreVerify(w http.ResponseWriter, r *http.Request) {
	var req struct {
		VerifierID string `json:"verifier_id"`
		Approved   bool   `json:"approved"`
	}
	if err := readJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}
	chore, err := s.chores.Verify(r.Context(), r.PathValue("id"), req.VerifierID, req.Approved)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, chore)
}

func (s *Server) templateList(w http.ResponseWriter, r *http.Request) {
	templates, err := s.chores.Templates()
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, templates)
}

func (s *Server) rewardCreate(w http.ResponseWriter, r *http.Request) {
	var reward model.Reward
	if err := readJSON(r, &reward); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}
	if reward.Title == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "title is required"})
		return
	}
	created, err := s.rewards.Create(r.Context(), reward)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) rewardList(w http.ResponseWriter, r *http.Request) {
	rewards, err := s.rewards.List()
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, rewards)
}

func (s *Server) rewardUpdate(w http.ResponseWriter, r *http.Request) {
	var reward model.Reward
	if err := readJSON(r, &reward); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}
	reward.ID = r.PathValue("id")
	updated, err := s.rewards.Update(r.Context(), reward)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (s *Server) rewardDelete(w http.ResponseWriter, r *http.Request) {
	if err := s.rewards.Delete(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) rewardRedeem(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID string `json:"user_id"`
	}
	if err := readJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}
	if req.UserID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "user_id is required"})
		return
	}
	redemption, err := s.redemptions.Redeem(r.Context(), r.PathValue("id"), req.UserID)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, redemption)
}

func (s *Server) redemptionList(w http.ResponseWriter, r *http.Request) {
	if userID := r.URL.Query().Get("user_id"); userID != "" {
		redemptions, err := s.redemptions.ListForUser(userID)
		if err != nil {
			writeError(w, s.logger, err)
			return
		}
		writeJSON(w, http.StatusOK, redemptions)
		return
	}
	redemptions, err := s.redemptions.List()
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, redemptions)
}

func (s *Server) redemptionApprove(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ResolverID string `json:"resolver_id"`
	}
	if err := readJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}
	redemption, err := s.redemptions.Approve(r.Context(), r.PathValue("id"), req.ResolverID)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, redemption)
}

func (s *Server) redemptionDeny(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ResolverID string `json:"resolver_id"`
	}
	if err := readJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}
	redemption, err := s.redemptions.Deny(r.Context(), r.PathValue("id"), req.ResolverID)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, redemption)
}

func (s *Server) userCreate(w http.ResponseWriter, r *http.Request) {
	var user model.User
	if err := readJSON(r, &user); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}
	if user.Name == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "name is required"})
		return
	}
	created, err := s.users.Create(r.Context(), user)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) userList(w http.ResponseWriter, r *http.Request) {
	users, err := s.users.List()
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, users)
}

func (s *Server) userCurrent(w http.ResponseWriter, r *http.Request) {
	user, err := s.users.Current()
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	if user == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (s *Server) userPrimaryParent(w http.ResponseWriter, r *http.Request) {
	user, err := s.users.PrimaryParent()
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	if user == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (s *Server) userUpdate(w http.ResponseWriter, r *http.Request) {
	var user model.User
	if err := readJSON(r, &user); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}
	user.ID = r.PathValue("id")
	updated, err := s.users.Update(r.Context(), user)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (s *Server) userDelete(w http.ResponseWriter, r *http.Request) {
	if err := s.users.Delete(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) activityList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := rpc.ActivityFilter{
		UserID:     q.Get("user_id"),
		ActionType: model.ActionType(q.Get("action_type")),
	}
	if v := q.Get("since"); v != "" {
		since, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "since must be RFC 3339"})
			return
		}
		filter.Since = &since
	}
	filter.Page, _ = strconv.Atoi(q.Get("page"))
	filter.PageSize, _ = strconv.Atoi(q.Get("page_size"))

	logs, err := s.activity.Fetch(r.Context(), filter)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, logs)
}

// activityRecent serves straight from the cache, no remote fetch. The
// dashboard polls it.
func (s *Server) activityRecent(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	if limit <= 0 {
		limit = 50
	}
	var (
		logs []model.ActivityLog
		err  error
	)
	if userID := q.Get("user_id"); userID != "" {
		logs, err = s.activity.RecentForUser(userID, limit)
	} else {
		logs, err = s.activity.Recent(limit)
	}
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, logs)
}

// gameView flattens a snapshot for JSON. Board is a value type with
// unexported cells, so the grid is expanded by hand.
type gameView struct {
	Size      int        `json:"size"`
	Cells     [][]string `json:"cells"`
	Turn      string     `json:"turn"`
	Status    string     `json:"status"`
	Outcome   string     `json:"outcome"`
	Flipping  bool       `json:"flipping"`
	Tally     game.Tally `json:"tally"`
	MoveCount int        `json:"move_count"`
}

func viewOf(snap game.Snapshot) gameView {
	n := snap.Board.Size()
	cells := make([][]string, n)
	for row := 0; row < n; row++ {
		cells[row] = make([]string, n)
		for col := 0; col < n; col++ {
			cells[row][col] = string(snap.Board.At(row, col))
		}
	}
	return gameView{
		Size:      n,
		Cells:     cells,
		Turn:      string(snap.Turn),
		Status:    string(snap.Status),
		Outcome:   snap.Outcome.String(),
		Flipping:  snap.Flipping,
		Tally:     snap.Tally,
		MoveCount: snap.MoveCount,
	}
}

func (s *Server) gameNew(w http.ResponseWriter, r *http.Request) {
	var req struct {
		BoardSize  int    `json:"board_size"`
		WinLength  int    `json:"win_length"`
		FlipMode   string `json:"flip_mode"`
		Difficulty string `json:"difficulty"`
		HumanMark  string `json:"human_mark"`
	}
	if err := readJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}
	if req.BoardSize == 0 {
		req.BoardSize = 3
	}
	g, err := game.New(game.Options{
		BoardSize:  req.BoardSize,
		WinLength:  req.WinLength,
		FlipMode:   game.FlipMode(req.FlipMode),
		Difficulty: game.Difficulty(req.Difficulty),
		HumanMark:  game.Mark(req.HumanMark),
	}, s.logger)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	s.gameMu.Lock()
	if s.gameCancel != nil {
		s.gameCancel()
		s.currentGame.StopAI()
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.currentGame, s.gameCancel = g, cancel
	g.StartAI(ctx)
	s.gameMu.Unlock()

	writeJSON(w, http.StatusCreated, viewOf(g.Snapshot()))
}

func (s *Server) activeGame() *game.Game {
	s.gameMu.Lock()
	defer s.gameMu.Unlock()
	return s.currentGame
}

func (s *Server) gameState(w http.ResponseWriter, r *http.Request) {
	g := s.activeGame()
	if g == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "no game in progress"})
		return
	}
	writeJSON(w, http.StatusOK, viewOf(g.Snapshot()))
}

func (s *Server) gameMove(w http.ResponseWriter, r *http.Request) {
	g := s.activeGame()
	if g == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "no game in progress"})
		return
	}
	var req struct {
		Row int `json:"row"`
		Col int `json:"col"`
	}
	if err := readJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}
	snap, err := g.PlayHuman(req.Row, req.Col)
	if err != nil {
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, viewOf(snap))
}

func (s *Server) gameReset(w http.ResponseWriter, r *http.Request) {
	g := s.activeGame()
	if g == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "no game in progress"})
		return
	}
	snap, err := g.Reset()
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, viewOf(snap))
}
