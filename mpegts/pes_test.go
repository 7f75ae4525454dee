package mpegts

import "testing"

// encodePTS encodes a 33-bit PTS value into 5 bytes with marker bits.
func encodePTS(marker byte, value int64) []byte {
	bs := make([]byte, 5)
	bs[0] = marker<<4 | byte((value>>29)&0x0E) | 0x01
	bs[1] = byte(value >> 22)
	bs[2] = byte((value>>14)&0xFE) | 0x01
	bs[3] = byte(value >> 7)
	bs[4] = byte((value<<1)&0xFE) | 0x01
	return bs
}

// buildPESPacket assembles a PES packet with an optional PTS, as carried at
// the start of a payload unit.
func buildPESPacket(streamID byte, pts int64, hasPTS bool, data []byte) []byte {
	var optHeader []byte
	ptsDTSIndicator := byte(0)
	if hasPTS {
		ptsDTSIndicator = 2
		optHeader = append(optHeader, encodePTS(0x02, pts)...)
	}

	headerDataLen := len(optHeader)
	// PES header: start_code(3) + stream_id(1) + packet_length(2) + flags(2) + header_data_length(1) + optional + data
	packetLength := 3 + headerDataLen + len(data)

	buf := make([]byte, 0, 6+3+headerDataLen+len(data))
	buf = append(buf, 0x00, 0x00, 0x01) // start code
	buf = append(buf, streamID)
	buf = append(buf, byte(packetLength>>8), byte(packetLength))
	buf = append(buf, 0x80)                // marker bits
	buf = append(buf, ptsDTSIndicator<<6)  // PTS_DTS_indicator
	buf = append(buf, byte(headerDataLen)) // PES_header_data_length
	buf = append(buf, optHeader...)
	buf = append(buf, data...)
	return buf
}

func TestParsePESHeader_WithPTS(t *testing.T) {
	t.Parallel()
	data := []byte{0xAA, 0xBB, 0xCC}
	buf := buildPESPacket(0xBD, 900000, true, data) // private stream 1, PTS=10s

	h, err := parsePESHeader(buf)
	if err != nil {
		t.Fatal(err)
	}
	if h.streamID != 0xBD {
		t.Errorf("stream ID = 0x%02X, want 0xBD", h.streamID)
	}
	if !h.hasPTS {
		t.Fatal("expected PTS")
	}
	if h.pts != 900000 {
		t.Errorf("PTS = %d, want 900000", h.pts)
	}
	if got := buf[h.dataStart:]; len(got) != 3 || got[0] != 0xAA {
		t.Errorf("payload = % X, want AA BB CC", got)
	}
}

func TestParsePESHeader_NoPTS(t *testing.T) {
	t.Parallel()
	buf := buildPESPacket(0xBD, 0, false, []byte{0x01})

	h, err := parsePESHeader(buf)
	if err != nil {
		t.Fatal(err)
	}
	if h.hasPTS {
		t.Error("expected no PTS")
	}
	if got := buf[h.dataStart:]; len(got) != 1 || got[0] != 0x01 {
		t.Errorf("payload = % X, want 01", got)
	}
}

func TestParsePESHeader_LargePTS(t *testing.T) {
	t.Parallel()
	// Near the top of the 33-bit range.
	const pts = (int64(1) << 33) - 90001
	buf := buildPESPacket(0xBD, pts, true, nil)

	h, err := parsePESHeader(buf)
	if err != nil {
		t.Fatal(err)
	}
	if h.pts != pts {
		t.Errorf("PTS = %d, want %d", h.pts, pts)
	}
}

func TestParsePESHeader_BadStartCode(t *testing.T) {
	t.Parallel()
	buf := buildPESPacket(0xBD, 0, false, nil)
	buf[2] = 0x02

	if _, err := parsePESHeader(buf); err == nil {
		t.Error("expected error for bad start code")
	}
}

func TestParsePESHeader_TooShort(t *testing.T) {
	t.Parallel()
	if _, err := parsePESHeader([]byte{0x00, 0x00, 0x01, 0xBD}); err == nil {
		t.Error("expected error for truncated header")
	}
}

func TestParsePTS_RoundTrip(t *testing.T) {
	t.Parallel()
	for _, pts := range []int64{0, 1, 90000, 900000, (int64(1) << 33) - 1} {
		bs := encodePTS(0x02, pts)
		if got := parsePTS(bs); got != pts {
			t.Errorf("parsePTS(encodePTS(%d)) = %d", pts, got)
		}
	}
}
