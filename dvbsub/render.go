package dvbsub

import (
	"image"
	"image/color"

	"github.com/veldt/subtext/media"
)

// renderPage composes every region and object referenced by the page onto a
// transparent 720x576 canvas, trims the result to the opaque bounding box,
// and emits a bitmap event. Pages without regions, missing definitions, and
// fully transparent results all produce no event.
func (d *Decoder) renderPage(pageID int, pts int64) {
	pg, ok := d.pages[pageID]
	if !ok || len(pg.regions) == 0 {
		return
	}

	canvas := image.NewNRGBA(image.Rect(0, 0, displayWidth, displayHeight))
	drew := false

	for _, rp := range pg.regions {
		reg, ok := d.regions[rp.regionID]
		if !ok {
			continue
		}
		colors := d.clutColors(reg.clutID)

		for _, op := range reg.objects {
			obj, ok := d.objects[op.objectID]
			if !ok || !obj.hasPixelData() {
				continue
			}
			if d.drawObject(canvas, obj, colors, reg, rp.x+op.x, rp.y+op.y) {
				drew = true
			}
		}
	}

	if !drew {
		return
	}

	bmp, ok := trim(canvas, pts)
	if !ok {
		return
	}

	d.log.Debug("rendered display set",
		"page", pageID,
		"width", bmp.Width,
		"height", bmp.Height,
		"time", bmp.Time,
	)
	if d.OnBitmap != nil {
		d.OnBitmap(bmp)
	}
}

// drawObject RLE-decodes the object's two interlace fields onto the canvas
// with its top-left corner at (ox, oy), clipped to the region dimensions.
// If the bottom field is empty the top field is mirrored into the odd rows
// (progressive fallback).
func (d *Decoder) drawObject(canvas *image.NRGBA, obj *object, colors *[256]color.NRGBA, reg *region, ox, oy int) bool {
	drew := drawField(canvas, obj.topField, colors, reg.width, reg.height, ox, oy, 0)

	if len(obj.bottomField) > 0 {
		if drawField(canvas, obj.bottomField, colors, reg.width, reg.height, ox, oy, 1) {
			drew = true
		}
	} else if drew {
		mirrorTopRows(canvas, reg.width, reg.height, ox, oy)
	}

	return drew
}

// drawField walks one field's RLE byte stream. A 0x00 byte ends the current
// line and moves to the field's next output row (two rows down); any other
// byte is a CLUT index for a single pixel.
func drawField(canvas *image.NRGBA, data []byte, colors *[256]color.NRGBA, width, height, ox, oy, startRow int) bool {
	bounds := canvas.Bounds()
	x, y := 0, startRow
	drew := false

	for _, b := range data {
		if b == 0x00 {
			y += 2
			x = 0
			continue
		}
		if x < width && y < height {
			px, py := ox+x, oy+y
			if px >= bounds.Min.X && px < bounds.Max.X && py >= bounds.Min.Y && py < bounds.Max.Y {
				canvas.SetNRGBA(px, py, colors[b])
				drew = true
			}
		}
		x++
	}

	return drew
}

// mirrorTopRows copies each even row of the object area into the odd row
// below it.
func mirrorTopRows(canvas *image.NRGBA, width, height, ox, oy int) {
	bounds := canvas.Bounds()
	for y := 0; y+1 < height; y += 2 {
		for x := 0; x < width; x++ {
			px, py := ox+x, oy+y
			if px < bounds.Min.X || px >= bounds.Max.X || py < bounds.Min.Y || py+1 >= bounds.Max.Y {
				continue
			}
			canvas.SetNRGBA(px, py+1, canvas.NRGBAAt(px, py))
		}
	}
}

// trim crops the canvas to the minimal bounding box of non-transparent
// pixels. Returns ok=false when no opaque pixel exists.
func trim(canvas *image.NRGBA, pts int64) (media.Bitmap, bool) {
	bounds := canvas.Bounds()
	minX, minY := bounds.Max.X, bounds.Max.Y
	maxX, maxY := bounds.Min.X-1, bounds.Min.Y-1

	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			if canvas.NRGBAAt(x, y).A == 0 {
				continue
			}
			if x < minX {
				minX = x
			}
			if x > maxX {
				maxX = x
			}
			if y < minY {
				minY = y
			}
			if y > maxY {
				maxY = y
			}
		}
	}

	if maxX < minX || maxY < minY {
		return media.Bitmap{}, false
	}

	rect := image.Rect(minX, minY, maxX+1, maxY+1)
	trimmed := image.NewNRGBA(image.Rect(0, 0, rect.Dx(), rect.Dy()))
	for y := 0; y < rect.Dy(); y++ {
		for x := 0; x < rect.Dx(); x++ {
			trimmed.SetNRGBA(x, y, canvas.NRGBAAt(minX+x, minY+y))
		}
	}

	return media.Bitmap{
		Pixels: trimmed,
		Width:  rect.Dx(),
		Height: rect.Dy(),
		X:      minX,
		Y:      minY,
		PTS:    pts,
		Time:   float64(pts) / 90000.0,
	}, true
}
