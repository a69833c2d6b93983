//go:build !cgo || windows

package backend

import "log/slog"

func newListener(log *slog.Logger) (Backend, error) {
	return nil, ErrUnsupported
}
