package handlers

import (
	"context"
	"net"
	"os/exec"
	"strings"
	"time"

	"golang.org/x/sys/unix"

	"github.com/koios/eplayer/pkg/models"
)

const (
	shopCode    = "0001"
	deviceModel = "linux"
)

// NewRegistration collects the device details announced on connect
func NewRegistration(clientID, version string, width, height int) models.Registration {
	return models.Registration{
		MAC:         clientID,
		ClientType:  models.ClientType,
		Version:     version,
		ShopCode:    shopCode,
		Width:       width,
		Height:      height,
		IP:          localIP(),
		DeviceModel: deviceModel,
		Firmware:    firmware(),
		SSID:        wifiSSID(),
	}
}

// localIP returns the first non-loopback IPv4 address
func localIP() string {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return ""
	}
	for _, addr := range addrs {
		if ipNet, ok := addr.(*net.IPNet); ok && !ipNet.IP.IsLoopback() {
			if ip4 := ipNet.IP.To4(); ip4 != nil {
				return ip4.String()
			}
		}
	}
	return ""
}

// firmware reports the kernel release
func firmware() string {
	var uts unix.Utsname
	if err := unix.Uname(&uts); err != nil {
		return ""
	}
	return unix.ByteSliceToString(uts.Release[:])
}

func wifiSSID() string {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	out, err := exec.CommandContext(ctx, "iwgetid", "-r").Output()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(out))
}
