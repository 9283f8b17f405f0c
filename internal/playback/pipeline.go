package playback

import (
	"fmt"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/koios/eplayer/pkg/models"
)

// DefaultSink draws video directly on the display plane
const DefaultSink = "kmssink"

// Pipeline is a declarative description of one playback: which file, which
// video sink, and where on screen.
type Pipeline struct {
	Path string
	Sink string
	Rect models.Rect
}

// URI returns the file:// URI of the media path
func (p Pipeline) URI() string {
	abs, err := filepath.Abs(p.Path)
	if err != nil {
		abs = p.Path
	}
	return (&url.URL{Scheme: "file", Path: abs}).String()
}

// SinkDescription returns the sink element with its placement properties
func (p Pipeline) SinkDescription() string {
	sink := p.Sink
	if sink == "" {
		sink = DefaultSink
	}
	if p.Rect.Width <= 0 || p.Rect.Height <= 0 {
		return sink
	}
	return fmt.Sprintf(`%s render-rectangle=\"<%d,%d,%d,%d>\" can-scale=false`,
		sink, p.Rect.Left, p.Rect.Top, p.Rect.Width, p.Rect.Height)
}

// Args returns the gst-launch arguments for a playbin pipeline
func (p Pipeline) Args() []string {
	return []string{
		"-q",
		"playbin",
		"uri=" + p.URI(),
		fmt.Sprintf(`video-sink="%s"`, p.SinkDescription()),
	}
}

func (p Pipeline) String() string {
	return strings.Join(p.Args(), " ")
}
