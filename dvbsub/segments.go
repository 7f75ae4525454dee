package dvbsub

import "fmt"

// parsePageComposition decodes a page composition segment (0x10):
// timeout(8), reserved(2)+page_state(2)+reserved(4), then 6-byte region
// placement records: region_id(8), reserved(8), x(16), y(16).
func (d *Decoder) parsePageComposition(pageID int, body []byte, pts int64) error {
	if len(body) < 2 {
		return fmt.Errorf("dvbsub: page composition too short (%d bytes)", len(body))
	}

	pg := &page{
		id:      pageID,
		timeout: int(body[0]),
		state:   int(body[1]>>2) & 0x03,
		pts:     pts,
	}

	for i := 2; i+6 <= len(body); i += 6 {
		pg.regions = append(pg.regions, regionPlacement{
			regionID: int(body[i]),
			x:        int(body[i+2])<<8 | int(body[i+3]),
			y:        int(body[i+4])<<8 | int(body[i+5]),
		})
	}

	d.pages[pageID] = pg
	return nil
}

// parseRegionComposition decodes a region composition segment (0x11):
// region_id(8), version+fill(8), width(16), height(16),
// level_of_compatibility(3)+depth(3)+reserved(2), CLUT_id(8),
// 8-bit background pixel(8), 4/2-bit background+reserved(8), then 6-byte
// object placement records. Object types 1 and 2 (character and text
// objects) carry 2 extra foreground/background bytes.
func (d *Decoder) parseRegionComposition(body []byte) error {
	if len(body) < 10 {
		return fmt.Errorf("dvbsub: region composition too short (%d bytes)", len(body))
	}

	reg := &region{
		id:         int(body[0]),
		width:      int(body[2])<<8 | int(body[3]),
		height:     int(body[4])<<8 | int(body[5]),
		compat:     int(body[6]>>5) & 0x07,
		depth:      int(body[6]>>2) & 0x07,
		clutID:     int(body[7]),
		background: int(body[8]),
	}

	i := 10
	for i+6 <= len(body) {
		flags := body[i+2]
		op := objectPlacement{
			objectID: int(body[i])<<8 | int(body[i+1]),
			objType:  int(flags>>6) & 0x03,
			x:        int(flags&0x0F)<<8 | int(body[i+3]),
			y:        int(body[i+4]&0x0F)<<8 | int(body[i+5]),
		}
		reg.objects = append(reg.objects, op)

		i += 6
		if op.objType == 1 || op.objType == 2 {
			i += 2 // foreground/background pixel codes
		}
	}

	d.regions[reg.id] = reg
	return nil
}

// parseCLUTDefinition decodes a CLUT definition segment (0x12):
// CLUT_id(8), version+reserved(8), then per-entry records of entry_id(8) and
// a flags byte selecting the 2/4/8-bit table(s) and full-range flag, followed
// by either 4 raw bytes (Y, Cr, Cb, T) or 2 packed bytes
// (Y:6, Cr:4, Cb:4, T:2).
func (d *Decoder) parseCLUTDefinition(body []byte) error {
	if len(body) < 2 {
		return fmt.Errorf("dvbsub: CLUT definition too short (%d bytes)", len(body))
	}

	cl := &clut{
		id:     int(body[0]),
		colors: defaultColors(),
	}

	i := 2
	for i+2 <= len(body) {
		entryID := body[i]
		flags := body[i+1]
		fullRange := flags&0x01 != 0
		i += 2

		var y, cr, cb, t uint8
		if fullRange {
			if i+4 > len(body) {
				return fmt.Errorf("dvbsub: CLUT entry %d truncated", entryID)
			}
			y, cr, cb, t = body[i], body[i+1], body[i+2], body[i+3]
			i += 4
		} else {
			if i+2 > len(body) {
				return fmt.Errorf("dvbsub: CLUT entry %d truncated", entryID)
			}
			// Packed layout: YYYYYYCC CCBBBBTT (Y:6, Cr:4, Cb:4, T:2),
			// scaled up to full range.
			y = body[i] & 0xFC
			cr = (body[i]&0x03)<<6 | (body[i+1]>>6)<<4
			cb = (body[i+1] >> 2 & 0x0F) << 4
			t = (body[i+1] & 0x03) << 6
			i += 2
		}

		cl.colors[entryID] = ycbcrToNRGBA(y, cr, cb, t)
	}

	d.cluts[cl.id] = cl
	return nil
}

// parseObjectData decodes an object data segment (0x13): object_id(16),
// version(4)+coding_method(2)+non_modifying(1)+reserved(1). Coding method 0
// (pixels) carries two 16-bit length-prefixed RLE fields for the top and
// bottom interlace fields; other coding methods are kept without pixel data.
func (d *Decoder) parseObjectData(body []byte) error {
	if len(body) < 3 {
		return fmt.Errorf("dvbsub: object data too short (%d bytes)", len(body))
	}

	obj := &object{
		id:     int(body[0])<<8 | int(body[1]),
		coding: int(body[2]>>2) & 0x03,
	}

	if obj.coding == 0 {
		if len(body) < 7 {
			return fmt.Errorf("dvbsub: object %d field lengths truncated", obj.id)
		}
		topLen := int(body[3])<<8 | int(body[4])
		botLen := int(body[5])<<8 | int(body[6])
		if 7+topLen+botLen > len(body) {
			return fmt.Errorf("dvbsub: object %d fields exceed segment (%d+%d > %d)",
				obj.id, topLen, botLen, len(body)-7)
		}
		obj.topField = body[7 : 7+topLen]
		obj.bottomField = body[7+topLen : 7+topLen+botLen]
	}

	d.objects[obj.id] = obj
	return nil
}

// parseDisplayDefinition decodes a display definition segment (0x14) for
// completeness. Rendering keeps the fixed 720x576 canvas regardless.
func (d *Decoder) parseDisplayDefinition(body []byte) error {
	if len(body) < 5 {
		return fmt.Errorf("dvbsub: display definition too short (%d bytes)", len(body))
	}
	width := (int(body[1])<<8 | int(body[2])) + 1
	height := (int(body[3])<<8 | int(body[4])) + 1
	d.log.Debug("display definition", "width", width, "height", height)
	return nil
}
