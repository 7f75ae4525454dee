package mpegts

import (
	"testing"
)

func makePacket(pid uint16, cc uint8, pusi bool, payload []byte) []byte {
	buf := make([]byte, packetSize)
	buf[0] = syncByte
	buf[1] = byte(pid>>8) & 0x1F
	buf[2] = byte(pid)
	buf[3] = 0x10 | (cc & 0x0F) // payload only
	if pusi {
		buf[1] |= 0x40
	}
	copy(buf[4:], payload)
	return buf
}

func makePacketWithAF(pid uint16, cc uint8, afLen int, payload []byte) []byte {
	buf := make([]byte, packetSize)
	buf[0] = syncByte
	buf[1] = byte(pid>>8) & 0x1F
	buf[2] = byte(pid)
	if len(payload) > 0 {
		buf[3] = 0x30 | (cc & 0x0F) // adaptation + payload
	} else {
		buf[3] = 0x20 | (cc & 0x0F) // adaptation only
	}
	buf[4] = byte(afLen)
	// AF body is zeros (no flags set)
	offset := 5 + afLen
	if offset < packetSize {
		copy(buf[offset:], payload)
	}
	return buf
}

func TestParsePacket_Normal(t *testing.T) {
	t.Parallel()
	payload := []byte{0x01, 0x02, 0x03}
	buf := makePacket(0x100, 5, false, payload)

	p, err := parsePacket(buf)
	if err != nil {
		t.Fatal(err)
	}

	if p.Header.PID != 0x100 {
		t.Errorf("PID = %d, want %d", p.Header.PID, 0x100)
	}
	if p.Header.ContinuityCounter != 5 {
		t.Errorf("CC = %d, want 5", p.Header.ContinuityCounter)
	}
	if p.Header.PayloadUnitStartIndicator {
		t.Error("PUSI should be false")
	}
	if !p.Header.HasPayload {
		t.Error("HasPayload should be true")
	}
	if len(p.Payload) != packetSize-4 {
		t.Errorf("payload length = %d, want %d", len(p.Payload), packetSize-4)
	}
	for i, b := range payload {
		if p.Payload[i] != b {
			t.Errorf("payload[%d] = 0x%02X, want 0x%02X", i, p.Payload[i], b)
		}
	}
}

func TestParsePacket_PUSI(t *testing.T) {
	t.Parallel()
	buf := makePacket(0x1FFF, 0, true, nil)

	p, err := parsePacket(buf)
	if err != nil {
		t.Fatal(err)
	}
	if !p.Header.PayloadUnitStartIndicator {
		t.Error("PUSI should be true")
	}
	if p.Header.PID != 0x1FFF {
		t.Errorf("PID = %d, want 0x1FFF", p.Header.PID)
	}
}

func TestParsePacket_AdaptationField(t *testing.T) {
	t.Parallel()
	payload := []byte{0xAA, 0xBB}
	buf := makePacketWithAF(0x200, 3, 10, payload)

	p, err := parsePacket(buf)
	if err != nil {
		t.Fatal(err)
	}
	if !p.Header.HasAdaptationField {
		t.Error("HasAdaptationField should be true")
	}
	if len(p.Payload) != packetSize-4-1-10 {
		t.Errorf("payload length = %d, want %d", len(p.Payload), packetSize-4-1-10)
	}
	if p.Payload[0] != 0xAA || p.Payload[1] != 0xBB {
		t.Errorf("payload = % X, want AA BB", p.Payload[:2])
	}
}

func TestParsePacket_DiscontinuityIndicator(t *testing.T) {
	t.Parallel()
	buf := makePacketWithAF(0x300, 0, 1, []byte{0xAA})
	buf[5] = 0x80 // adaptation field flags: discontinuity

	p, err := parsePacket(buf)
	if err != nil {
		t.Fatal(err)
	}
	if !p.Header.DiscontinuityIndicator {
		t.Error("DiscontinuityIndicator should be true")
	}
	if len(p.Payload) == 0 || p.Payload[0] != 0xAA {
		t.Errorf("payload = % X, want AA...", p.Payload)
	}
}

func TestParsePacket_BadSync(t *testing.T) {
	t.Parallel()
	buf := makePacket(0x100, 0, false, nil)
	buf[0] = 0x00

	if _, err := parsePacket(buf); err == nil {
		t.Error("expected error for bad sync byte")
	}
}

func TestParsePacket_WrongSize(t *testing.T) {
	t.Parallel()
	if _, err := parsePacket(make([]byte, 100)); err == nil {
		t.Error("expected error for short buffer")
	}
}

func TestParsePacket_AdaptationOverflow(t *testing.T) {
	t.Parallel()
	// Adaptation field length that exceeds the packet must not panic and
	// must produce an empty payload.
	buf := makePacketWithAF(0x300, 0, 200, []byte{0x01})

	p, err := parsePacket(buf)
	if err != nil {
		t.Fatal(err)
	}
	if len(p.Payload) != 0 {
		t.Errorf("payload length = %d, want 0", len(p.Payload))
	}
}
