package models

import (
	"fmt"
	"strconv"
	"strings"
)

// Command is a decoded inbound command code
type Command int

const (
	CommandUnknown Command = iota
	CommandHeartbeatAck
	CommandPlaylistUpdate
	CommandBrightness
	CommandScreenOff
	CommandConfig
)

// codeLen is the width of the code prefix on every inbound message
const codeLen = 4

var commandCodes = map[string]Command{
	"0001": CommandHeartbeatAck,
	"0002": CommandPlaylistUpdate,
	"0005": CommandBrightness,
	"0006": CommandScreenOff,
	"0008": CommandConfig,
}

func (c Command) String() string {
	switch c {
	case CommandHeartbeatAck:
		return "heartbeat-ack"
	case CommandPlaylistUpdate:
		return "playlist-update"
	case CommandBrightness:
		return "brightness"
	case CommandScreenOff:
		return "screen-off"
	case CommandConfig:
		return "config"
	default:
		return "unknown"
	}
}

// Frame is one inbound command as delivered by a transport
type Frame struct {
	Code    string
	Command Command
	Body    string
}

// ParseFrame splits a raw message into its 4-character code and body.
// Messages shorter than the code prefix are rejected.
func ParseFrame(payload []byte) (Frame, bool) {
	if len(payload) < codeLen {
		return Frame{}, false
	}

	code := string(payload[:codeLen])
	return Frame{
		Code:    code,
		Command: commandCodes[code],
		Body:    string(payload[codeLen:]),
	}, true
}

// ConfigFrame holds the fields of a config command body:
// brightness&server-timestamp&heartbeat-seconds[&open-time&close-time]
type ConfigFrame struct {
	Brightness       int
	ServerTime       int64
	HeartbeatSeconds int
	OpenTime         int64
	CloseTime        int64
}

// ParseConfigFrame parses a config command body. At least three fields are required.
func ParseConfigFrame(body string) (*ConfigFrame, error) {
	fields := strings.Split(body, "&")
	if len(fields) < 3 {
		return nil, fmt.Errorf("config frame needs at least 3 fields, got %d", len(fields))
	}

	var cfg ConfigFrame
	var err error

	if cfg.Brightness, err = strconv.Atoi(fields[0]); err != nil {
		return nil, fmt.Errorf("invalid brightness %q: %w", fields[0], err)
	}
	if cfg.ServerTime, err = strconv.ParseInt(fields[1], 10, 64); err != nil {
		return nil, fmt.Errorf("invalid server timestamp %q: %w", fields[1], err)
	}
	if cfg.HeartbeatSeconds, err = strconv.Atoi(fields[2]); err != nil {
		return nil, fmt.Errorf("invalid heartbeat interval %q: %w", fields[2], err)
	}

	if len(fields) >= 5 {
		if cfg.OpenTime, err = parseOptionalInt64(fields[3]); err != nil {
			return nil, fmt.Errorf("invalid open time %q: %w", fields[3], err)
		}
		if cfg.CloseTime, err = parseOptionalInt64(fields[4]); err != nil {
			return nil, fmt.Errorf("invalid close time %q: %w", fields[4], err)
		}
	}

	return &cfg, nil
}

func parseOptionalInt64(s string) (int64, error) {
	if s == "" {
		return 0, nil
	}
	return strconv.ParseInt(s, 10, 64)
}
