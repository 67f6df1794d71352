package main

import (
	"context"
	"errors"
	"io/fs"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"

	appcfg "github.com/park285/liru-go/internal/config"
	"github.com/park285/liru-go/internal/lila"
	"github.com/park285/liru-go/internal/obslog"
	"github.com/park285/liru-go/internal/protocol"
	"github.com/park285/liru-go/internal/session"
)

type printObserver struct{}

func (printObserver) Observe(d protocol.Decoded) {
	if d.Version != nil {
		log.Printf("event v=%d %T", *d.Version, d.Event)
		return
	}
	log.Printf("event %T", d.Event)
}

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

	path := "tv/best"
	if len(os.Args) > 1 {
		path = os.Args[1]
	}

	client := lila.NewClient(cfg.LichessBaseURL,
		lila.WithTimeout(8*time.Second),
		lila.WithUserAgent(cfg.UserAgent),
		lila.WithLogger(obslog.L()),
	)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	sess, err := session.Open(ctx, client, path,
		session.WithSocketBase(cfg.LichessSocketURL),
		session.WithUserAgent(cfg.UserAgent),
		session.WithLogger(obslog.L()),
		session.WithHeartbeatInterval(cfg.HeartbeatInterval),
		session.WithObserver(printObserver{}),
	)
	if err != nil {
		log.Printf("open %s error: %v", path, err)
		return
	}
	snap := sess.State().Snapshot()
	log.Printf("open ok: game=%s version=%d socket=%s sri=%s", snap.Game.ID, snap.Version(), snap.URL.Socket, sess.SRI())

	// Observe for a short window
	t := time.NewTimer(10 * time.Second)
	select {
	case <-t.C:
	case <-sess.Done():
		log.Printf("socket closed early: %v", sess.Err())
	}

	lat := sess.Latency().Snapshot()
	log.Printf("latency last=%s avg=%s samples=%d state=%s", lat.Last, lat.Average, lat.Samples, sess.SocketState())
	_ = sess.Close(context.Background())
}
