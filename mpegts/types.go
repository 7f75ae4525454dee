// Package mpegts implements the transport-stream side of DVB subtitle
// extraction: packet framing, PAT/PMT discovery with DVB subtitling
// descriptor scanning, and per-PID PES reassembly with PTS extraction.
//
// The demuxer is push-driven: callers feed sequential byte chunks to Parse
// and receive discovered streams and completed presentation units through
// the OnPMT and OnPES callbacks.
package mpegts

// Packet is a parsed 188-byte MPEG-TS transport stream packet.
type Packet struct {
	Header  PacketHeader
	Payload []byte
}

// PacketHeader contains the parsed header fields of a transport stream packet.
type PacketHeader struct {
	PID                       uint16
	ContinuityCounter         uint8
	HasAdaptationField        bool
	HasPayload                bool
	PayloadUnitStartIndicator bool
	TransportErrorIndicator   bool
	DiscontinuityIndicator    bool
}

// PESUnit is one complete reassembled presentation unit for a subtitle PID.
// PTS is the 33-bit presentation timestamp on the 90 kHz clock; HasPTS is
// false when the PES header carried no timestamp.
type PESUnit struct {
	PID    uint16
	PTS    int64
	HasPTS bool
	Data   []byte
}

// pesHeader is the parsed fixed + optional PES header of one unit start.
type pesHeader struct {
	streamID uint8
	pts      int64
	hasPTS   bool
	// packetLength is the declared PES_packet_length, 0 for unbounded.
	packetLength int
	// dataStart is the offset of the elementary payload within the packet.
	dataStart int
}

// pmtStream is one elementary stream entry from a PMT section, including any
// DVB subtitling descriptor items found in its descriptor loop.
type pmtStream struct {
	pid        uint16
	streamType uint8
	subtitling []subtitlingItem
}

// subtitlingItem is one entry of the DVB subtitling descriptor (tag 0x59):
// ISO-639 language, subtitling type, and composition/ancillary page ids.
type subtitlingItem struct {
	language        string
	subtitlingType  uint8
	compositionPage uint16
	ancillaryPage   uint16
}
