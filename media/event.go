// Package media defines the event types that flow through the subtext
// processing pipeline, from transport demuxing through recognition.
package media

import "image"

// Channel buffer sizes used by the pipeline (producer) and host loops
// (consumer) to decouple decode from consumption. Subtitle bitmaps arrive at
// most every few seconds of stream time, so small buffers absorb bursts
// without unbounded memory.
const (
	StreamInfoBufferSize = 4
	BitmapBufferSize     = 30
	SubtitleBufferSize   = 30
)

// SubtitleStream describes one subtitle-bearing elementary stream discovered
// in a PMT. Language and page ids come from the DVB subtitling descriptor
// (tag 0x59) when present.
type SubtitleStream struct {
	PID             uint16
	Type            uint8
	TypeName        string
	Language        string
	CompositionPage uint16
	AncillaryPage   uint16
}

// Bitmap is one rendered display set, trimmed to its opaque bounding box.
// X and Y are the offset of the trimmed pixels within the 720x576 display
// canvas. Time is PTS converted to seconds (90 kHz clock).
type Bitmap struct {
	Pixels *image.NRGBA
	Width  int
	Height int
	X      int
	Y      int
	PTS    int64
	Time   float64
}

// SubtitleEvent is one recognized subtitle with its display window in
// stream seconds.
type SubtitleEvent struct {
	Text       string
	Confidence float64
	Start      float64
	End        float64
	Source     string
}
