package models

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// DisplayProfile describes the local screen, loaded from an optional YAML file
type DisplayProfile struct {
	DeviceID    string   `yaml:"deviceId" json:"deviceId"`
	Framebuffer string   `yaml:"framebuffer" json:"framebuffer"`
	Title       string   `yaml:"title" json:"title"`
	Lines       []string `yaml:"lines" json:"lines"`
	Background  string   `yaml:"background" json:"background"`
	Foreground  string   `yaml:"foreground" json:"foreground"`

	// Runtime fields (not in profile)
	Path string `yaml:"-" json:"path"`
}

// LoadDisplayProfile loads a profile YAML file
func LoadDisplayProfile(path string) (*DisplayProfile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read display profile: %w", err)
	}

	var profile DisplayProfile
	if err := yaml.Unmarshal(data, &profile); err != nil {
		return nil, fmt.Errorf("failed to parse display profile: %w", err)
	}

	profile.Path = path

	if profile.Background != "" {
		if _, err := ParseHexColor(profile.Background); err != nil {
			return nil, fmt.Errorf("invalid background color: %w", err)
		}
	}
	if profile.Foreground != "" {
		if _, err := ParseHexColor(profile.Foreground); err != nil {
			return nil, fmt.Errorf("invalid foreground color: %w", err)
		}
	}

	return &profile, nil
}

// ParseHexColor parses "#RRGGBB" or "#AARRGGBB" into a packed ARGB value.
// Six-digit colors are opaque.
func ParseHexColor(s string) (uint32, error) {
	if len(s) == 0 || s[0] != '#' {
		return 0, fmt.Errorf("color %q must start with #", s)
	}

	var v uint32
	for _, c := range s[1:] {
		var d uint32
		switch {
		case c >= '0' && c <= '9':
			d = uint32(c - '0')
		case c >= 'a' && c <= 'f':
			d = uint32(c-'a') + 10
		case c >= 'A' && c <= 'F':
			d = uint32(c-'A') + 10
		default:
			return 0, fmt.Errorf("color %q has invalid hex digit %q", s, c)
		}
		v = v<<4 | d
	}

	switch len(s) {
	case 7:
		return 0xFF000000 | v, nil
	case 9:
		return v, nil
	default:
		return 0, fmt.Errorf("color %q must have 6 or 8 hex digits", s)
	}
}
