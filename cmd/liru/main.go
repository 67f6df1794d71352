package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	appcfg "github.com/park285/liru-go/internal/config"
	"github.com/park285/liru-go/internal/cookiestore"
	"github.com/park285/liru-go/internal/game"
	"github.com/park285/liru-go/internal/journal"
	"github.com/park285/liru-go/internal/lila"
	"github.com/park285/liru-go/internal/msgcat"
	"github.com/park285/liru-go/internal/obslog"
	"github.com/park285/liru-go/internal/protocol"
	"github.com/park285/liru-go/internal/render"
	"github.com/park285/liru-go/internal/session"
	"github.com/park285/liru-go/internal/socket"
)

const clearScreen = "\x1b[H\x1b[2J"

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Printf(".env: %v", err)
	}
	cfg, err := appcfg.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	if err := obslog.InitFromEnv(); err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	logger := obslog.L()
	defer func() { _ = logger.Sync() }()

	cat, err := msgcat.New(cfg.MsgcatDir)
	if err != nil {
		log.Fatalf("msgcat error: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, cat, logger, os.Args[1:]); err != nil {
		logger.Error("liru_exit", zap.Error(err))
		stop()
		log.Fatalf("%v", err)
	}
	fmt.Println(cat.Text("cli.bye", nil))
}

func run(ctx context.Context, cfg *appcfg.AppConfig, cat *msgcat.Catalog, logger *zap.Logger, args []string) error {
	store, err := openCookieStore(ctx, cfg)
	if err != nil {
		return err
	}
	if c, ok := store.(io.Closer); ok {
		defer func() { _ = c.Close() }()
	}

	client := lila.NewClient(cfg.LichessBaseURL,
		lila.WithTimeout(cfg.HTTPTimeout),
		lila.WithUserAgent(cfg.UserAgent),
		lila.WithLogger(logger),
	)
	user, err := authenticate(ctx, cfg, client, store, cat, os.Stdin, os.Stdout)
	if err != nil {
		return err
	}
	if user.Anonymous() {
		fmt.Println(cat.Text("cli.anonymous", nil))
	} else {
		fmt.Println(cat.Text("cli.signed_in", map[string]any{"User": user.Username}))
	}

	path := gamePath(args, user)
	fmt.Println(cat.Text("cli.opening", map[string]any{"Path": path}))

	j, closeJournal, err := openJournal(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeJournal()

	var rec *journal.Recorder
	sess, err := session.Open(ctx, client, path,
		session.WithSocketBase(cfg.LichessSocketURL),
		session.WithUserAgent(cfg.UserAgent),
		session.WithLogger(logger),
		session.WithHeartbeatInterval(cfg.HeartbeatInterval),
		session.WithQueueSize(cfg.SendQueueSize),
		session.WithObserverFor(func(p game.Pov) socket.Observer {
			rec = journal.NewRecorder(j, p.Game.ID, journal.WithRecorderLogger(logger))
			return rec
		}),
	)
	if err != nil {
		if rec != nil {
			_ = rec.Close(context.Background())
		}
		return err
	}
	defer func() {
		cctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = sess.Close(cctx)
		if rec != nil {
			if err := rec.Close(cctx); err != nil {
				logger.Warn("journal_close_timeout", zap.Error(err))
			}
		}
	}()

	lines := make(chan string)
	go readLines(os.Stdin, lines)

	renderer := render.New(cat)
	ticker := time.NewTicker(cfg.RenderInterval)
	defer ticker.Stop()

	var status string
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-sess.Done():
			reason := "closed"
			if err := sess.Err(); err != nil {
				reason = err.Error()
			}
			draw(sess, renderer, status)
			fmt.Println(cat.Text("game.disconnected", map[string]any{"Reason": reason}))
			return nil
		case line, ok := <-lines:
			if !ok {
				// stdin closed; keep watching until interrupted.
				lines = nil
				continue
			}
			status = handleInput(sess, cat, line)
		case <-ticker.C:
			sess.State().Tick()
			draw(sess, renderer, status)
			fmt.Print(cat.Text("prompt.move", nil))
		}
	}
}

func draw(sess *session.Session, r *render.Renderer, status string) {
	snap := sess.State().Snapshot()
	var b strings.Builder
	b.WriteString(clearScreen)
	b.WriteString(r.Text(snap, sess.Latency().Snapshot(), sess.State().Now()))
	if status != "" {
		b.WriteString(status)
		b.WriteByte('\n')
	}
	fmt.Print(b.String())
}

func handleInput(sess *session.Session, cat *msgcat.Catalog, line string) string {
	line = strings.TrimSpace(line)
	if line == "" {
		return ""
	}
	m, err := protocol.ParseUCI(line)
	if err == nil {
		err = sess.Send(m)
	}
	if err != nil {
		return cat.Text("cli.bad_move", map[string]any{"Input": line, "Error": err.Error()})
	}
	return ""
}

func readLines(r io.Reader, out chan<- string) {
	defer close(out)
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		out <- sc.Text()
	}
}

// gamePath picks the snapshot path: the first argument, else the first game
// in progress, else the featured TV game.
func gamePath(args []string, user *lila.User) string {
	if len(args) > 0 && strings.TrimSpace(args[0]) != "" {
		return strings.TrimPrefix(strings.TrimSpace(args[0]), "/")
	}
	if user != nil {
		for _, g := range user.NowPlaying {
			if g.FullID != "" {
				return g.FullID
			}
		}
	}
	return "tv/best"
}

func openCookieStore(ctx context.Context, cfg *appcfg.AppConfig) (cookiestore.Store, error) {
	if cfg.RedisURL == "" {
		return cookiestore.NewMemory(nil), nil
	}
	s, err := cookiestore.DialRedis(ctx, cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("cookie store: %w", err)
	}
	return s, nil
}

func openJournal(ctx context.Context, cfg *appcfg.AppConfig) (journal.Journal, func(), error) {
	if cfg.DatabaseURL == "" {
		return journal.NewMemory(), func() {}, nil
	}
	pg, err := journal.OpenPostgres(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, err
	}
	return pg, func() { _ = pg.Close() }, nil
}
