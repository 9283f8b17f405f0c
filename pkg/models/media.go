package models

import (
	"path/filepath"
	"strings"
)

// MediaKind identifies how a media asset is fetched and shown
type MediaKind int

const (
	MediaImage MediaKind = 0
	MediaVideo MediaKind = 1
)

func (k MediaKind) String() string {
	switch k {
	case MediaImage:
		return "image"
	case MediaVideo:
		return "video"
	default:
		return "unknown"
	}
}

// Display groups used by the server when placing media
const (
	GroupBackground = 0
	GroupOverlay    = 1
	GroupPrice      = 99
)

// Rect is a placement rectangle in screen pixels
type Rect struct {
	Left   int `json:"Left"`
	Top    int `json:"Top"`
	Width  int `json:"Width"`
	Height int `json:"Height"`
}

// MediaDescriptor is one entry of a device playlist
type MediaDescriptor struct {
	ID          string    `json:"Id"`
	DownloadURL string    `json:"DownloadURL"`
	ConfirmURL  string    `json:"ConfirmURL"`
	FileName    string    `json:"FileName"`
	Checksum    string    `json:"MD5"`
	Size        int64     `json:"Size"`
	Kind        MediaKind `json:"Type"`
	Group       int       `json:"Group"`
	Index       int       `json:"Index"`
	Rect
	SyncPlay bool `json:"SyncPlay"`
	PlayTime int  `json:"Playtime"`

	// Runtime fields (not sent by the server)
	DeviceID string `json:"-"`
}

// IsOverlay reports whether the descriptor belongs to the overlay/price slot
func (m MediaDescriptor) IsOverlay() bool {
	return m.Group == GroupOverlay || m.Group == GroupPrice
}

// IsBackground reports whether the descriptor belongs to the background slot
func (m MediaDescriptor) IsBackground() bool {
	return m.Group == GroupBackground
}

// CacheName is the file name used for the local copy of the asset.
// It depends only on the checksum and the original extension.
func (m MediaDescriptor) CacheName() string {
	return strings.ToLower(m.Checksum) + strings.ToLower(filepath.Ext(m.FileName))
}

// Playlist is the payload of a playlist-update command
type Playlist struct {
	Device   string            `json:"device"`
	TaskID   string            `json:"taskId"`
	TaskCode int               `json:"taskCode"`
	Items    []MediaDescriptor `json:"videoTasks"`
}
