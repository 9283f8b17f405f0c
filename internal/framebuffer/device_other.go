//go:build !linux

package framebuffer

import (
	"fmt"
	"runtime"

	"go.uber.org/zap"
)

// Open is only supported on Linux
func Open(path string, logger *zap.Logger) (*Compositor, error) {
	return nil, fmt.Errorf("framebuffer %s: not supported on %s", path, runtime.GOOS)
}
