package console

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/park285/pickleball-rallyscore/internal/msgcat"
	"github.com/park285/pickleball-rallyscore/internal/rallylog"
	"github.com/park285/pickleball-rallyscore/internal/score"
	"github.com/park285/pickleball-rallyscore/internal/session"
	"github.com/park285/pickleball-rallyscore/internal/sessionstore"
	"go.uber.org/zap"
)

// Archiver receives sessions whose game has been decided.
type Archiver interface {
	SaveResult(ctx context.Context, s *session.Session) error
}

// Handler turns text commands into session operations, one at a time.
// Every successful mutation is saved through the store.
type Handler struct {
	sess    *session.Session
	store   sessionstore.Store
	archive Archiver
	cat     *msgcat.Catalog
	logger  *zap.Logger

	archived *decided // last result handed to the archive
}

// decided identifies a finished game state. Undo can reach a different result
// with the same rally count, so the scores are part of it.
type decided struct {
	winner  int
	scores  [2]uint
	rallies int
}

func NewHandler(sess *session.Session, store sessionstore.Store, archive Archiver, cat *msgcat.Catalog, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{sess: sess, store: store, archive: archive, cat: cat, logger: logger}
}

func (h *Handler) Session() *session.Session { return h.sess }

// Handle executes one command line and returns the reply. quit is true when
// the user asked to leave.
func (h *Handler) Handle(ctx context.Context, line string) (reply string, quit bool) {
	fields := strings.Fields(strings.TrimSpace(line))
	if len(fields) == 0 {
		return "", false
	}
	cmd := strings.ToLower(fields[0])
	args := fields[1:]
	rest := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(line), fields[0]))

	switch cmd {
	case "help", "?":
		return h.text("help", map[string]any{"Format": h.scoreFormat()}), false
	case "status", "s":
		return h.status(), false
	case "rallies", "list":
		return h.rallies(), false
	case "start":
		return h.start(ctx, args), false
	case "end":
		return h.end(ctx, args), false
	case "score":
		return h.setScore(ctx, args), false
	case "sideout":
		h.sess.ForceSideOut()
		return h.mutated(ctx, "manual.side_out", map[string]any{"Score": h.sess.CurrentScoreString()}), false
	case "comment":
		if rest == "" {
			return h.usage("comment <text>"), false
		}
		h.sess.AddComment(rest)
		return h.mutated(ctx, "manual.comment", nil), false
	case "intervene", "intervention":
		if rest == "" {
			return h.usage("intervene <text>"), false
		}
		h.sess.AddIntervention(rest)
		return h.mutated(ctx, "manual.intervention", nil), false
	case "undo", "u":
		return h.undo(ctx), false
	case "seek":
		return h.seek(ctx, args), false
	case "save":
		if err := h.save(ctx); err != nil {
			return h.text("session.save_failed", map[string]any{"Error": err.Error()}), false
		}
		return h.text("session.saved", nil), false
	case "quit", "exit", "q":
		if err := h.save(ctx); err != nil {
			return h.text("session.save_failed", map[string]any{"Error": err.Error()}), true
		}
		return h.text("session.bye", nil), true
	default:
		return h.text("error.unknown_command", map[string]any{"Command": fields[0]}), false
	}
}

func (h *Handler) start(ctx context.Context, args []string) string {
	if len(args) != 1 {
		return h.usage("start <frame>")
	}
	frame, err := parseFrame(args[0])
	if err != nil {
		return h.usage("start <frame>")
	}
	if err := h.sess.StartRally(frame); err != nil {
		return h.errorText(err, "")
	}
	return h.mutated(ctx, "rally.started", map[string]any{"Frame": frame, "Score": h.sess.CurrentScoreString()})
}

func (h *Handler) end(ctx context.Context, args []string) string {
	if len(args) != 2 {
		return h.usage("end <frame> <server|receiver>")
	}
	frame, err := parseFrame(args[0])
	if err != nil {
		return h.usage("end <frame> <server|receiver>")
	}
	winner, err := rallylog.ParseWinner(args[1])
	if err != nil {
		return h.errorText(err, "")
	}
	r, err := h.sess.EndRally(frame, winner)
	if err != nil {
		return h.errorText(err, "")
	}
	reply := h.mutated(ctx, "rally.ended", map[string]any{
		"Number": h.sess.RallyCount(),
		"Winner": string(r.Winner),
		"Before": r.ScoreAtStart,
		"Score":  h.sess.CurrentScoreString(),
	})
	return h.withGameOver(ctx, reply)
}

func (h *Handler) setScore(ctx context.Context, args []string) string {
	if len(args) != 1 {
		return h.usage("score <" + h.scoreFormat() + ">")
	}
	if err := h.sess.SetScore(args[0]); err != nil {
		return h.errorText(err, args[0])
	}
	reply := h.mutated(ctx, "manual.score_set", map[string]any{"Score": h.sess.CurrentScoreString()})
	return h.withGameOver(ctx, reply)
}

func (h *Handler) undo(ctx context.Context) string {
	a, err := h.sess.Undo()
	if err != nil {
		return h.errorText(err, "")
	}
	return h.mutated(ctx, "undo.done", map[string]any{
		"Action": strings.ReplaceAll(string(a.Kind), "_", " "),
		"Score":  h.sess.CurrentScoreString(),
	})
}

func (h *Handler) seek(ctx context.Context, args []string) string {
	if len(args) != 1 {
		return h.usage("seek <seconds>")
	}
	sec, err := strconv.ParseFloat(args[0], 64)
	if err != nil || sec < 0 {
		return h.usage("seek <seconds>")
	}
	h.sess.SetLastPosition(sec)
	return h.mutated(ctx, "manual.seek", map[string]any{"Seconds": strconv.FormatFloat(sec, 'f', -1, 64)})
}

func (h *Handler) status() string {
	info := h.sess.ServerInfo()
	open, active := uint(0), h.sess.RallyActive()
	if active {
		open, _ = h.sess.OpenRallyStart()
	}
	line := h.text("status.line", map[string]any{
		"Score":        h.sess.CurrentScoreString(),
		"Server":       info.PlayerName,
		"Team":         info.ServingTeam + 1,
		"ServerNumber": info.ServerNumber,
		"Rallies":      h.sess.RallyCount(),
		"Active":       active,
		"OpenFrame":    open,
	})
	if over := h.gameOverText(); over != "" {
		line += "\n" + over
	}
	return line
}

func (h *Handler) rallies() string {
	list := h.sess.Rallies()
	if len(list) == 0 {
		return h.text("rally.list_empty", nil)
	}
	lines := make([]string, 0, len(list))
	for i, r := range list {
		lines = append(lines, h.text("rally.list_item", map[string]any{
			"Number": i + 1,
			"Start":  r.StartFrame,
			"End":    r.EndFrame,
			"Score":  r.ScoreAtStart,
			"Winner": string(r.Winner),
		}))
	}
	return strings.Join(lines, "\n")
}

// mutated saves the session after a successful change and renders key.
func (h *Handler) mutated(ctx context.Context, key string, data map[string]any) string {
	reply := h.text(key, data)
	if err := h.save(ctx); err != nil {
		reply += "\n" + h.text("session.save_failed", map[string]any{"Error": err.Error()})
	}
	return reply
}

func (h *Handler) withGameOver(ctx context.Context, reply string) string {
	over := h.gameOverText()
	if over == "" {
		return reply
	}
	winner, _ := h.sess.GameOver()
	a, b := h.sess.Scores()
	state := decided{winner: winner, scores: [2]uint{a, b}, rallies: h.sess.RallyCount()}
	if h.archive != nil && (h.archived == nil || *h.archived != state) {
		if err := h.archive.SaveResult(ctx, h.sess); err != nil {
			h.logger.Warn("archive_failed", zap.String("session_id", h.sess.ID()), zap.Error(err))
		} else {
			h.archived = &state
			h.logger.Info("game_archived", zap.String("session_id", h.sess.ID()), zap.String("score", h.sess.CurrentScoreString()))
		}
	}
	return reply + "\n" + over
}

func (h *Handler) gameOverText() string {
	winner, over := h.sess.GameOver()
	if !over {
		return ""
	}
	a, b := h.sess.Scores()
	if winner == 1 {
		a, b = b, a
	}
	return h.text("status.game_over", map[string]any{"Team": winner + 1, "Score": fmt.Sprintf("%d-%d", a, b)})
}

func (h *Handler) save(ctx context.Context) error {
	if h.store == nil {
		return nil
	}
	if err := h.store.Save(ctx, h.sess.ToDocument()); err != nil {
		h.logger.Warn("session_save_failed", zap.String("session_id", h.sess.ID()), zap.Error(err))
		return err
	}
	return nil
}

func (h *Handler) errorText(err error, input string) string {
	switch {
	case errors.Is(err, rallylog.ErrRallyAlreadyInProgress):
		return h.text("error.rally_in_progress", nil)
	case errors.Is(err, rallylog.ErrNoRallyInProgress):
		return h.text("error.no_rally", nil)
	case errors.Is(err, rallylog.ErrNothingToUndo):
		return h.text("error.nothing_to_undo", nil)
	case errors.Is(err, rallylog.ErrInvalidFrameRange):
		return h.text("error.frame_range", nil)
	case errors.Is(err, rallylog.ErrInvalidWinner):
		return h.text("error.invalid_winner", nil)
	case errors.Is(err, score.ErrInvalidScoreFormat):
		return h.text("error.invalid_score", map[string]any{"Input": input, "Format": h.scoreFormat()})
	default:
		h.logger.Error("command_failed", zap.String("session_id", h.sess.ID()), zap.Error(err))
		return h.text("error.generic", map[string]any{"Error": err.Error()})
	}
}

func (h *Handler) usage(u string) string {
	return h.text("error.usage", map[string]any{"Usage": u})
}

func (h *Handler) scoreFormat() string {
	if h.sess.GameType() == score.Doubles {
		return "serving-receiving-server, e.g. 4-2-1"
	}
	return "serving-receiving, e.g. 4-2"
}

func (h *Handler) text(key string, data map[string]any) string {
	if data == nil {
		data = map[string]any{}
	}
	return h.cat.Text(key, data)
}

func parseFrame(s string) (uint, error) {
	n, err := strconv.ParseUint(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0, err
	}
	return uint(n), nil
}
