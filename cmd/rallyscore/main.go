package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	appcfg "github.com/park285/pickleball-rallyscore/internal/config"
	"github.com/park285/pickleball-rallyscore/internal/console"
	"github.com/park285/pickleball-rallyscore/internal/msgcat"
	"github.com/park285/pickleball-rallyscore/internal/obslog"
	"github.com/park285/pickleball-rallyscore/internal/score"
	"github.com/park285/pickleball-rallyscore/internal/session"
	"github.com/park285/pickleball-rallyscore/internal/sessionstore"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
)

const (
	videoFlag    = "video"
	gameTypeFlag = "game-type"
	victoryFlag  = "victory"
	team1Flag    = "team1"
	team2Flag    = "team2"
	newFlag      = "new"
)

var build string
var semanticVersion = "v0.1.0-dev" + build

func main() {
	app := &cli.App{
		Name:    "rallyscore",
		Usage:   "Score pickleball rallies while reviewing a match video",
		Version: semanticVersion,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    videoFlag,
				Aliases: []string{"v"},
				Usage:   "Path to the match video; one session is kept per video",
			},
			&cli.StringFlag{
				Name:    gameTypeFlag,
				Aliases: []string{"g"},
				Usage:   "singles or doubles (default from DEFAULT_GAME_TYPE)",
			},
			&cli.UintFlag{
				Name:  victoryFlag,
				Usage: "Points needed to win (default from DEFAULT_VICTORY_RULE)",
			},
			&cli.StringSliceFlag{
				Name:  team1Flag,
				Usage: "Team 1 player names, comma separated",
			},
			&cli.StringSliceFlag{
				Name:  team2Flag,
				Usage: "Team 2 player names, comma separated",
			},
			&cli.BoolFlag{
				Name:  newFlag,
				Usage: "Start a fresh session even if one is stored for the video",
			},
		},
		Action: runSession,
		Commands: []*cli.Command{
			{
				Name:   "list",
				Usage:  "List stored sessions",
				Action: listSessions,
			},
			{
				Name:      "delete",
				Usage:     "Delete the stored session for a video",
				ArgsUsage: "<video>",
				Action:    deleteSession,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "rallyscore: %v\n", err)
		os.Exit(1)
	}
}

type deps struct {
	cfg     *appcfg.AppConfig
	store   sessionstore.Store
	archive *sessionstore.Archive
	cat     *msgcat.Catalog
	logger  *zap.Logger
}

func setup(ctx context.Context) (*deps, error) {
	cfg, err := appcfg.Load()
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := obslog.InitFromEnv(); err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	logger := obslog.L()

	cat, err := msgcat.New(cfg.MessagesDir)
	if err != nil {
		return nil, fmt.Errorf("messages: %w", err)
	}

	store, err := openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	var archive *sessionstore.Archive
	if cfg.DatabaseURL != "" {
		archive, err = sessionstore.OpenArchive(ctx, cfg.DatabaseURL)
		if err != nil {
			// scoring still works without the archive
			logger.Warn("archive_unavailable", zap.Error(err))
			archive = nil
		}
	}

	logger.Info("rallyscore_start", zap.String("store", cfg.StoreBackend), zap.Bool("archive", archive != nil))
	return &deps{cfg: cfg, store: store, archive: archive, cat: cat, logger: logger}, nil
}

func (rt *deps) Close() {
	_ = rt.store.Close()
	_ = rt.archive.Close()
	_ = rt.logger.Sync()
}

func openStore(ctx context.Context, cfg *appcfg.AppConfig) (sessionstore.Store, error) {
	switch cfg.StoreBackend {
	case appcfg.BackendRedis:
		s, err := sessionstore.OpenRedis(ctx, cfg.RedisURL, time.Duration(cfg.SessionTTLSec)*time.Second)
		if err != nil {
			return nil, fmt.Errorf("redis store: %w", err)
		}
		return s, nil
	case appcfg.BackendSQLite:
		s, err := sessionstore.OpenSQLite(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("sqlite store: %w", err)
		}
		return s, nil
	default:
		return sessionstore.NewMemory(), nil
	}
}

func runSession(c *cli.Context) error {
	if strings.TrimSpace(c.String(videoFlag)) == "" {
		return cli.Exit("--video is required", 2)
	}
	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rt, err := setup(ctx)
	if err != nil {
		return err
	}
	defer rt.Close()

	sess, greeting, err := rt.openSession(ctx, c)
	if err != nil {
		return err
	}
	var archiver console.Archiver
	if rt.archive != nil {
		archiver = rt.archive
	}
	h := console.NewHandler(sess, rt.store, archiver, rt.cat, rt.logger)
	fmt.Fprintln(os.Stdout, greeting)
	reply, _ := h.Handle(ctx, "status")
	fmt.Fprintln(os.Stdout, reply)

	return readLoop(ctx, os.Stdin, os.Stdout, h)
}

// readLoop feeds stdin lines to the handler until quit, EOF or a signal.
func readLoop(ctx context.Context, in io.Reader, out io.Writer, h *console.Handler) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	lines := make(chan string)
	scanErr := make(chan error, 1)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
		scanErr <- sc.Err()
	}()

	for {
		fmt.Fprint(out, "> ")
		select {
		case <-ctx.Done():
			reply, _ := h.Handle(context.Background(), "quit")
			fmt.Fprintln(out, "\n"+reply)
			return nil
		case line, ok := <-lines:
			if !ok {
				reply, _ := h.Handle(ctx, "quit")
				fmt.Fprintln(out, "\n"+reply)
				select {
				case err := <-scanErr:
					return err
				default:
					return nil
				}
			}
			reply, quit := h.Handle(ctx, line)
			if reply != "" {
				fmt.Fprintln(out, reply)
			}
			if quit {
				return nil
			}
		}
	}
}

func (rt *deps) openSession(ctx context.Context, c *cli.Context) (*session.Session, string, error) {
	video := strings.TrimSpace(c.String(videoFlag))
	opts := []session.Option{session.WithLogger(rt.logger)}

	if !c.Bool(newFlag) {
		doc, err := rt.store.Load(ctx, video)
		if err != nil {
			return nil, "", fmt.Errorf("load session: %w", err)
		}
		if doc != nil {
			sess, err := session.FromDocument(doc, opts...)
			if err != nil {
				return nil, "", fmt.Errorf("stored session for %s is unreadable (use --new to replace it): %w", video, err)
			}
			rt.logger.Info("session_resumed", zap.String("session_id", sess.ID()), zap.Int("rallies", sess.RallyCount()))
			return sess, rt.cat.Text("session.resumed", map[string]any{
				"Video":   video,
				"Score":   sess.CurrentScoreString(),
				"Rallies": sess.RallyCount(),
			}), nil
		}
	}

	gtName := c.String(gameTypeFlag)
	if gtName == "" {
		gtName = rt.cfg.DefaultGameType
	}
	gt, err := score.ParseGameType(gtName)
	if err != nil {
		return nil, "", err
	}
	victory := c.Uint(victoryFlag)
	if victory == 0 {
		victory = rt.cfg.DefaultVictoryRule
	}
	sess, err := session.New(session.Params{
		VideoPath:   video,
		GameType:    gt,
		VictoryRule: victory,
		Players: score.Players{
			Team1: trimNames(c.StringSlice(team1Flag)),
			Team2: trimNames(c.StringSlice(team2Flag)),
		},
	}, opts...)
	if err != nil {
		return nil, "", err
	}
	return sess, rt.cat.Text("session.created", map[string]any{
		"GameType":    string(gt),
		"Video":       video,
		"VictoryRule": sess.VictoryRule(),
	}), nil
}

func listSessions(c *cli.Context) error {
	rt, err := setup(c.Context)
	if err != nil {
		return err
	}
	defer rt.Close()

	list, err := rt.store.List(c.Context)
	if err != nil {
		return fmt.Errorf("list sessions: %w", err)
	}
	if len(list) == 0 {
		fmt.Fprintln(os.Stdout, "No stored sessions.")
		return nil
	}
	for _, s := range list {
		fmt.Fprintf(os.Stdout, "%s  %-8s %-9s %3d rallies  %s\n",
			s.ModifiedAt.Local().Format("2006-01-02 15:04"), s.GameType, s.Score, s.RallyCount, s.VideoPath)
	}
	return nil
}

func deleteSession(c *cli.Context) error {
	video := strings.TrimSpace(c.Args().First())
	if video == "" {
		return cli.Exit("usage: rallyscore delete <video>", 2)
	}
	rt, err := setup(c.Context)
	if err != nil {
		return err
	}
	defer rt.Close()

	if err := rt.store.Delete(c.Context, video); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	rt.logger.Info("session_deleted", zap.String("video", video))
	return nil
}

func trimNames(in []string) []string {
	out := make([]string, 0, len(in))
	for _, n := range in {
		if n = strings.TrimSpace(n); n != "" {
			out = append(out, n)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
