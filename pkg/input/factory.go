package input

import "github.com/pkg/errors"

// ErrNoSource is returned by New when nothing on this system can report idle
// time.
var ErrNoSource = errors.New("no idle time source available")

// New returns a chain of the idle sources usable in the current session,
// ordered by display server.
func New() (*Chain, error) {
	var candidates []IdleSource
	switch DetectDisplayServer() {
	case "wayland":
		candidates = []IdleSource{NewMutterSource(), NewX11Source(), NewXprintidleSource()}
	default:
		candidates = []IdleSource{NewX11Source(), NewXprintidleSource(), NewMutterSource()}
	}

	var available []IdleSource
	for _, s := range candidates {
		if s.IsAvailable() {
			available = append(available, s)
		}
	}
	if len(available) == 0 {
		return nil, ErrNoSource
	}
	return NewChain(available...), nil
}
