package input

import (
	"context"
	"os"
	"sync"
	"time"

	"github.com/jezek/xgb"
	"github.com/jezek/xgb/screensaver"
	"github.com/jezek/xgb/xproto"
	"github.com/pkg/errors"
)

// X11Source queries the MIT-SCREEN-SAVER extension over a native X
// connection. It also works under XWayland, but there it only sees input
// delivered to X clients.
type X11Source struct {
	mu   sync.Mutex
	conn *xgb.Conn
	root xproto.Window
}

func NewX11Source() *X11Source {
	return &X11Source{}
}

func (s *X11Source) Name() string {
	return "x11-screensaver"
}

func (s *X11Source) IsAvailable() bool {
	return os.Getenv("DISPLAY") != ""
}

func (s *X11Source) connect() error {
	if s.conn != nil {
		return nil
	}

	conn, err := xgb.NewConn()
	if err != nil {
		return errors.Wrap(err, "failed to connect to X server")
	}
	if err := screensaver.Init(conn); err != nil {
		conn.Close()
		return errors.Wrap(err, "MIT-SCREEN-SAVER extension unavailable")
	}

	s.conn = conn
	s.root = xproto.Setup(conn).DefaultScreen(conn).Root
	return nil
}

func (s *X11Source) IdleTime(ctx context.Context) (time.Duration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.connect(); err != nil {
		return 0, err
	}

	reply, err := screensaver.QueryInfo(s.conn, xproto.Drawable(s.root)).Reply()
	if err != nil {
		// Drop the connection so the next call reconnects, e.g. after the
		// X server restarted.
		s.conn.Close()
		s.conn = nil
		return 0, errors.Wrap(err, "screensaver query failed")
	}

	return time.Duration(reply.MsSinceUserInput) * time.Millisecond, nil
}

func (s *X11Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn != nil {
		s.conn.Close()
		s.conn = nil
	}
	return nil
}
