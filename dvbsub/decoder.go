// Package dvbsub decodes DVB bitmap subtitles (ETSI EN 300 743) from
// reassembled PES payloads. The Decoder parses the segment grammar into
// page, region, CLUT, and object state, and renders a trimmed bitmap for
// each completed display set.
package dvbsub

import (
	"fmt"
	"image/color"
	"log/slog"

	"github.com/veldt/subtext/media"
)

const (
	segmentSync = 0x0F

	segmentTypePageComposition   = 0x10
	segmentTypeRegionComposition = 0x11
	segmentTypeCLUTDefinition    = 0x12
	segmentTypeObjectData        = 0x13
	segmentTypeDisplayDefinition = 0x14
	segmentTypeEndOfDisplaySet   = 0x80

	// PES data identifiers preceding the first segment. 0x20 is the DVB
	// subtitle identifier; 0x00 is seen from legacy muxers.
	dataIdentifierDVBSub = 0x20
	dataIdentifierLegacy = 0x00

	// Rendering assumes the standard definition display; display definition
	// segments are parsed but do not change the canvas.
	displayWidth  = 720
	displayHeight = 576
)

type regionPlacement struct {
	regionID int
	x, y     int
}

type page struct {
	id      int
	timeout int
	state   int // 2-bit page_state: normal / acquisition / mode change / reserved
	pts     int64
	regions []regionPlacement
}

type objectPlacement struct {
	objectID int
	objType  int
	x, y     int
}

type region struct {
	id         int
	width      int
	height     int
	compat     int
	depth      int
	clutID     int
	background int
	objects    []objectPlacement
}

type clut struct {
	id     int
	colors [256]color.NRGBA
}

type object struct {
	id          int
	coding      int
	topField    []byte
	bottomField []byte
}

func (o *object) hasPixelData() bool {
	return o.coding == 0 && (len(o.topField) > 0 || len(o.bottomField) > 0)
}

// Decoder holds the cumulative page/region/CLUT/object state of one decode
// session. State grows until Reset; definitions are replaced wholesale by id,
// matching the broadcast model where display sets supersede prior ones.
//
// Decode and Reset must be called from a single goroutine; rendering happens
// synchronously inside Decode when an end-of-display-set segment arrives.
type Decoder struct {
	// OnBitmap is invoked for each rendered display set.
	OnBitmap func(bitmap media.Bitmap)

	log     *slog.Logger
	pages   map[int]*page
	regions map[int]*region
	cluts   map[int]*clut
	objects map[int]*object
	errors  int64
}

// NewDecoder creates an empty decoder. If log is nil, slog.Default() is used.
func NewDecoder(log *slog.Logger) *Decoder {
	if log == nil {
		log = slog.Default()
	}
	d := &Decoder{log: log.With("component", "dvbsub")}
	d.Reset()
	return d
}

// Reset clears all page, region, CLUT, and object state. The error counter
// survives reset for observability.
func (d *Decoder) Reset() {
	d.pages = make(map[int]*page)
	d.regions = make(map[int]*region)
	d.cluts = make(map[int]*clut)
	d.objects = make(map[int]*object)
}

// ErrorCount returns the number of malformed segments skipped so far.
func (d *Decoder) ErrorCount() int64 { return d.errors }

// Decode parses one reassembled PES payload at the given 90 kHz timestamp.
// Malformed segments are skipped and counted; decoding always continues with
// the next sync byte.
func (d *Decoder) Decode(data []byte, pts int64) {
	if len(data) >= 2 && (data[0] == dataIdentifierDVBSub || data[0] == dataIdentifierLegacy) {
		data = data[2:]
	}

	i := 0
	for i < len(data) {
		if data[i] != segmentSync {
			i++ // defensive resync
			continue
		}
		if i+6 > len(data) {
			break
		}

		segType := data[i+1]
		pageID := int(data[i+2])<<8 | int(data[i+3])
		segLen := int(data[i+4])<<8 | int(data[i+5])
		if i+6+segLen > len(data) {
			// Declared length exceeds remaining data: stop for this unit.
			break
		}
		body := data[i+6 : i+6+segLen]
		i += 6 + segLen

		if err := d.dispatch(segType, pageID, body, pts); err != nil {
			d.errors++
			d.log.Debug("skipping malformed segment",
				"type", fmt.Sprintf("0x%02X", segType),
				"page", pageID,
				"error", err,
			)
		}
	}
}

func (d *Decoder) dispatch(segType uint8, pageID int, body []byte, pts int64) error {
	switch segType {
	case segmentTypePageComposition:
		return d.parsePageComposition(pageID, body, pts)
	case segmentTypeRegionComposition:
		return d.parseRegionComposition(body)
	case segmentTypeCLUTDefinition:
		return d.parseCLUTDefinition(body)
	case segmentTypeObjectData:
		return d.parseObjectData(body)
	case segmentTypeDisplayDefinition:
		return d.parseDisplayDefinition(body)
	case segmentTypeEndOfDisplaySet:
		d.renderPage(pageID, pts)
		return nil
	default:
		// Unknown segment types are ignored; the declared length already
		// advanced the cursor past them.
		return nil
	}
}
