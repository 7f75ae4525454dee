package mpegts

import "fmt"

const (
	packetSize = 188
	syncByte   = 0x47
)

// Header flag masks: byte 1 carries the error and unit-start indicators,
// byte 3 the adaptation/payload field control.
const (
	flagTransportError = 0x80
	flagUnitStart      = 0x40
	flagAdaptation     = 0x20
	flagPayload        = 0x10
	flagDiscontinuity  = 0x80 // first adaptation field byte
)

// parsePacket decodes one 188-byte transport packet. The payload slice is a
// copy, valid beyond the caller's buffer.
func parsePacket(buf []byte) (*Packet, error) {
	if len(buf) != packetSize {
		return nil, fmt.Errorf("mpegts: packet size %d, expected %d", len(buf), packetSize)
	}
	if buf[0] != syncByte {
		return nil, fmt.Errorf("mpegts: invalid sync byte 0x%02X", buf[0])
	}

	p := &Packet{
		Header: PacketHeader{
			TransportErrorIndicator:   buf[1]&flagTransportError != 0,
			PayloadUnitStartIndicator: buf[1]&flagUnitStart != 0,
			PID:                       uint16(buf[1]&0x1F)<<8 | uint16(buf[2]),
			HasAdaptationField:        buf[3]&flagAdaptation != 0,
			HasPayload:                buf[3]&flagPayload != 0,
			ContinuityCounter:         buf[3] & 0x0F,
		},
	}

	offset := 4
	if p.Header.HasAdaptationField {
		afLen := int(buf[offset])
		if afLen > 0 && offset+1 < packetSize {
			// The discontinuity indicator legitimizes continuity counter
			// jumps; the PES accumulator consults it before dropping
			// packets as retransmissions.
			p.Header.DiscontinuityIndicator = buf[offset+1]&flagDiscontinuity != 0
		}
		offset += 1 + afLen
		if offset > packetSize {
			// Oversized adaptation field; nothing left for a payload.
			offset = packetSize
		}
	}

	if p.Header.HasPayload && offset < packetSize {
		p.Payload = append([]byte(nil), buf[offset:]...)
	}

	return p, nil
}
