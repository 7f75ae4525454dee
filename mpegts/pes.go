package mpegts

import "fmt"

// isPESPayload checks for the PES start code prefix (0x000001).
func isPESPayload(data []byte) bool {
	return len(data) >= 3 && data[0] == 0x00 && data[1] == 0x00 && data[2] == 0x01
}

// parsePESHeader parses the fixed and optional PES headers at the start of a
// unit and returns the PTS (when present) and the offset of the elementary
// payload.
func parsePESHeader(payload []byte) (pesHeader, error) {
	var h pesHeader

	if len(payload) < 9 {
		return h, fmt.Errorf("mpegts: PES header too short (%d bytes)", len(payload))
	}
	if !isPESPayload(payload) {
		return h, fmt.Errorf("mpegts: invalid PES start code")
	}

	h.streamID = payload[3]
	// PES_packet_length counts the bytes after this field; 0 means unbounded
	// (only video streams use that).
	h.packetLength = int(payload[4])<<8 | int(payload[5])

	// payload[6]: marker(2) + scrambling(2) + priority(1) + alignment(1) + copyright(1) + original(1)
	// payload[7]: PTS_DTS_indicator(2) + ESCR(1) + ES_rate(1) + DSM_trick(1) + additional_copy(1) + CRC(1) + extension(1)
	// payload[8]: PES_header_data_length
	ptsDTSIndicator := (payload[7] >> 6) & 0x03
	headerDataLength := int(payload[8])

	h.dataStart = 9 + headerDataLength
	if h.dataStart > len(payload) {
		h.dataStart = len(payload)
	}

	// The PTS is present whenever bit 0x02 of the indicator is set (values
	// 2 and 3; 3 additionally carries a DTS we don't need).
	if ptsDTSIndicator&0x02 != 0 && len(payload) >= 14 {
		h.pts = parsePTS(payload[9:14])
		h.hasPTS = true
	}

	return h, nil
}

// parsePTS extracts a 33-bit timestamp from 5 PES timestamp bytes.
func parsePTS(bs []byte) int64 {
	return int64(bs[0]>>1&0x07)<<30 |
		int64(bs[1])<<22 |
		int64(bs[2]>>1&0x7F)<<15 |
		int64(bs[3])<<7 |
		int64(bs[4]>>1&0x7F)
}
