//go:build !windows

package backend

import "log/slog"

func newWindows(log *slog.Logger) (Backend, error) {
	return nil, ErrUnsupported
}
