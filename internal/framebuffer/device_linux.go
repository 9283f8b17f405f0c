//go:build linux

package framebuffer

import (
	"fmt"
	"unsafe"

	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

const (
	ioctlGetVScreenInfo = 0x4600 // FBIOGET_VSCREENINFO
	ioctlGetFScreenInfo = 0x4602 // FBIOGET_FSCREENINFO
)

// fbBitfield mirrors struct fb_bitfield
type fbBitfield struct {
	Offset   uint32
	Length   uint32
	MsbRight uint32
}

// fbVarScreeninfo mirrors struct fb_var_screeninfo
type fbVarScreeninfo struct {
	Xres, Yres               uint32
	XresVirtual, YresVirtual uint32
	Xoffset, Yoffset         uint32
	BitsPerPixel             uint32
	Grayscale                uint32
	Red, Green, Blue, Transp fbBitfield
	Nonstd                   uint32
	Activate                 uint32
	Height, Width            uint32
	AccelFlags               uint32
	Pixclock                 uint32
	LeftMargin, RightMargin  uint32
	UpperMargin, LowerMargin uint32
	HsyncLen, VsyncLen       uint32
	Sync, Vmode, Rotate      uint32
	Colorspace               uint32
	Reserved                 [4]uint32
}

// fbFixScreeninfo mirrors struct fb_fix_screeninfo
type fbFixScreeninfo struct {
	ID           [16]byte
	SmemStart    uintptr
	SmemLen      uint32
	Type         uint32
	TypeAux      uint32
	Visual       uint32
	Xpanstep     uint16
	Ypanstep     uint16
	Ywrapstep    uint16
	LineLength   uint32
	MmioStart    uintptr
	MmioLen      uint32
	Accel        uint32
	Capabilities uint16
	Reserved     [2]uint16
}

func ioctl(fd int, req uintptr, arg unsafe.Pointer) error {
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), req, uintptr(arg))
	if errno != 0 {
		return errno
	}
	return nil
}

// Open opens a framebuffer device and queries its geometry. Memory is mapped
// on the first draw (or by Map). The returned compositor owns the descriptor.
func Open(path string, logger *zap.Logger) (*Compositor, error) {
	fd, err := unix.Open(path, unix.O_RDWR|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to open framebuffer %s: %w", path, err)
	}

	var vinfo fbVarScreeninfo
	if err := ioctl(fd, ioctlGetVScreenInfo, unsafe.Pointer(&vinfo)); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("FBIOGET_VSCREENINFO on %s: %w", path, err)
	}

	var finfo fbFixScreeninfo
	if err := ioctl(fd, ioctlGetFScreenInfo, unsafe.Pointer(&finfo)); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("FBIOGET_FSCREENINFO on %s: %w", path, err)
	}

	geom := Geometry{
		Width:        int(vinfo.Xres),
		Height:       int(vinfo.Yres),
		BitsPerPixel: int(vinfo.BitsPerPixel),
		RedOffset:    int(vinfo.Red.Offset),
		GreenOffset:  int(vinfo.Green.Offset),
		BlueOffset:   int(vinfo.Blue.Offset),
		AlphaOffset:  int(vinfo.Transp.Offset),
		Stride:       int(finfo.LineLength),
	}

	mapLen := int(finfo.SmemLen)
	if mapLen < geom.Size() {
		mapLen = geom.Size()
	}

	logger.Info("Framebuffer opened",
		zap.String("device", path),
		zap.Stringer("geometry", geom),
		zap.Int("smem_len", int(finfo.SmemLen)))

	c, err := newCompositor(path, geom, region{
		mapFn: func() ([]byte, error) {
			return unix.Mmap(fd, 0, mapLen, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
		},
		unmapFn: unix.Munmap,
		closeFn: func() error { return unix.Close(fd) },
	}, logger)
	if err != nil {
		unix.Close(fd)
		return nil, err
	}
	return c, nil
}
