package mpegts

import (
	"log/slog"
	"sort"

	"github.com/veldt/subtext/media"
)

const pidPAT = 0x0000

// Demuxer splits raw MPEG-TS byte chunks into subtitle presentation units.
// It tracks the PAT and the first program's PMT, discovers subtitle-bearing
// elementary streams via the DVB subtitling descriptor, and reassembles each
// subtitle PID's PES payloads.
//
// Parse may be called repeatedly with sequential chunks of any length; bytes
// are buffered across calls and the demuxer resynchronizes on the 0x47 sync
// byte after corruption. Malformed packets are skipped, never fatal.
type Demuxer struct {
	// OnPMT is invoked with the full set of discovered subtitle streams
	// whenever a PMT adds at least one new subtitle PID.
	OnPMT func(streams []media.SubtitleStream)
	// OnPES is invoked for every completed presentation unit on a subtitle PID.
	OnPES func(unit PESUnit)

	log        *slog.Logger
	buf        []byte
	pmtPID     uint16
	havePMTPID bool
	psiAccs    map[uint16]*sectionAccumulator
	pesAccs    map[uint16]*pesAccumulator
	streams    map[uint16]media.SubtitleStream
	streamPIDs []uint16 // discovery order, for stable OnPMT reporting

	packets       int64
	framingErrors int64
}

// NewDemuxer creates a push-driven demuxer. If log is nil, slog.Default()
// is used.
func NewDemuxer(log *slog.Logger) *Demuxer {
	if log == nil {
		log = slog.Default()
	}
	return &Demuxer{
		log:     log.With("component", "mpegts"),
		psiAccs: make(map[uint16]*sectionAccumulator),
		pesAccs: make(map[uint16]*pesAccumulator),
		streams: make(map[uint16]media.SubtitleStream),
	}
}

// Packets returns the number of transport packets parsed so far.
func (d *Demuxer) Packets() int64 { return d.packets }

// FramingErrors returns the number of skipped bytes, corrupt packets, and
// malformed headers encountered so far.
func (d *Demuxer) FramingErrors() int64 { return d.framingErrors }

// Streams returns the subtitle streams discovered so far, in PMT order.
func (d *Demuxer) Streams() []media.SubtitleStream {
	out := make([]media.SubtitleStream, 0, len(d.streamPIDs))
	for _, pid := range d.streamPIDs {
		out = append(out, d.streams[pid])
	}
	return out
}

// Parse consumes the next chunk of transport stream bytes. Chunks need not
// align to packet boundaries.
func (d *Demuxer) Parse(chunk []byte) {
	d.buf = append(d.buf, chunk...)

	for {
		// Resync: skip single bytes until a sync byte leads the buffer.
		skipped := 0
		for skipped < len(d.buf) && d.buf[skipped] != syncByte {
			skipped++
		}
		if skipped > 0 {
			d.framingErrors += int64(skipped)
			d.buf = d.buf[skipped:]
		}
		if len(d.buf) < packetSize {
			break
		}

		pkt, err := parsePacket(d.buf[:packetSize])
		d.buf = d.buf[packetSize:]
		if err != nil {
			d.framingErrors++
			continue
		}
		d.packets++
		d.handlePacket(pkt)
	}

	// Re-slice the remainder into its own array so large input chunks can
	// be collected.
	if len(d.buf) > 0 {
		d.buf = append([]byte(nil), d.buf...)
	} else {
		d.buf = nil
	}
}

// Flush emits any non-empty PES accumulators as final units. Call at end of
// stream, when no further payload-unit-start will arrive to flush them.
func (d *Demuxer) Flush() {
	pids := make([]int, 0, len(d.pesAccs))
	for pid := range d.pesAccs {
		pids = append(pids, int(pid))
	}
	sort.Ints(pids)
	for _, pid := range pids {
		d.flushPES(uint16(pid), d.pesAccs[uint16(pid)])
	}
}

func (d *Demuxer) handlePacket(pkt *Packet) {
	if pkt.Header.TransportErrorIndicator {
		d.framingErrors++
		return
	}
	if !pkt.Header.HasPayload {
		return
	}

	pid := pkt.Header.PID
	switch {
	case pid == pidPAT || (d.havePMTPID && pid == d.pmtPID):
		d.handlePSI(pid, pkt)
	default:
		if _, ok := d.streams[pid]; ok {
			d.handlePES(pid, pkt)
		}
	}
}

// sectionAccumulator reassembles a PSI section that may span packets.
type sectionAccumulator struct {
	data    []byte
	started bool
}

func (d *Demuxer) handlePSI(pid uint16, pkt *Packet) {
	acc, ok := d.psiAccs[pid]
	if !ok {
		acc = &sectionAccumulator{}
		d.psiAccs[pid] = acc
	}

	if pkt.Header.PayloadUnitStartIndicator {
		acc.data = nil
		acc.started = true
	}
	if !acc.started {
		return
	}
	acc.data = append(acc.data, pkt.Payload...)

	if !isSectionComplete(acc.data) {
		return
	}
	payload := acc.data
	acc.data = nil
	acc.started = false

	err := walkSections(payload, func(tableID uint8, section []byte) error {
		switch tableID {
		case tableIDPAT:
			d.handlePAT(section)
		case tableIDPMT:
			d.handlePMT(section)
		}
		return nil
	})
	if err != nil {
		d.framingErrors++
		d.log.Debug("skipping malformed PSI payload", "pid", pid, "error", err)
	}
}

func (d *Demuxer) handlePAT(section []byte) {
	pmtPID, err := parsePATSection(section)
	if err != nil {
		d.framingErrors++
		d.log.Debug("skipping malformed PAT", "error", err)
		return
	}
	if !d.havePMTPID || d.pmtPID != pmtPID {
		d.log.Info("found PMT PID", "pid", pmtPID)
	}
	d.pmtPID = pmtPID
	d.havePMTPID = true
}

func (d *Demuxer) handlePMT(section []byte) {
	entries, err := parsePMTSection(section)
	if err != nil {
		d.framingErrors++
		d.log.Debug("skipping malformed PMT", "error", err)
		return
	}

	added := false
	for _, es := range entries {
		if !isSubtitleStreamType(es.streamType) || len(es.subtitling) == 0 {
			continue
		}
		if _, exists := d.streams[es.pid]; exists {
			continue
		}

		stream := media.SubtitleStream{
			PID:      es.pid,
			Type:     es.streamType,
			TypeName: streamTypeName(es.streamType),
		}
		// First descriptor item carries the primary language and pages.
		item := es.subtitling[0]
		stream.Language = item.language
		stream.CompositionPage = item.compositionPage
		stream.AncillaryPage = item.ancillaryPage

		d.streams[es.pid] = stream
		d.streamPIDs = append(d.streamPIDs, es.pid)
		added = true
		d.log.Info("found subtitle PID",
			"pid", es.pid,
			"type", stream.TypeName,
			"language", stream.Language,
		)
	}

	if added && d.OnPMT != nil {
		d.OnPMT(d.Streams())
	}
}

// isSubtitleStreamType reports whether a PMT stream type can carry DVB
// subtitles; the subtitling descriptor still has to confirm it.
func isSubtitleStreamType(streamType uint8) bool {
	return streamType == streamTypePrivatePES ||
		streamType == streamTypeDVBSubtitle ||
		streamType >= streamTypeUserPrivateL
}

// pesAccumulator holds one subtitle PID's in-progress presentation unit.
type pesAccumulator struct {
	pts     int64
	hasPTS  bool
	data    []byte
	want    int  // remaining elementary bytes per PES_packet_length
	bounded bool // false when PES_packet_length was 0 (unbounded)
	started bool
	lastCC  uint8
	haveCC  bool
}

// appendData adds payload bytes, discarding transport stuffing past the
// declared PES packet length.
func (a *pesAccumulator) appendData(p []byte) {
	if a.bounded {
		if len(p) > a.want {
			p = p[:a.want]
		}
		a.want -= len(p)
	}
	a.data = append(a.data, p...)
}

func (d *Demuxer) handlePES(pid uint16, pkt *Packet) {
	acc, ok := d.pesAccs[pid]
	if !ok {
		acc = &pesAccumulator{}
		d.pesAccs[pid] = acc
	}

	// Drop retransmitted packets: an unchanged continuity counter without a
	// unit start is a duplicate, unless the adaptation field declares a
	// discontinuity.
	if acc.haveCC && !pkt.Header.PayloadUnitStartIndicator &&
		pkt.Header.ContinuityCounter == acc.lastCC &&
		!pkt.Header.DiscontinuityIndicator {
		return
	}
	acc.lastCC = pkt.Header.ContinuityCounter
	acc.haveCC = true

	if !pkt.Header.PayloadUnitStartIndicator {
		if acc.started {
			acc.appendData(pkt.Payload)
		}
		return
	}

	// A unit start flushes the previous unit before the new header is parsed.
	d.flushPES(pid, acc)

	h, err := parsePESHeader(pkt.Payload)
	if err != nil {
		d.framingErrors++
		d.log.Debug("skipping malformed PES header", "pid", pid, "error", err)
		acc.started = false
		return
	}

	acc.started = true
	acc.pts = h.pts
	acc.hasPTS = h.hasPTS
	acc.data = nil
	acc.bounded = h.packetLength > 0
	acc.want = 0
	if acc.bounded {
		// PES_packet_length covers everything after its own field; subtract
		// the optional headers to get the elementary payload size.
		acc.want = h.packetLength - (h.dataStart - 6)
		if acc.want < 0 {
			acc.want = 0
		}
	}
	acc.appendData(pkt.Payload[h.dataStart:])
}

func (d *Demuxer) flushPES(pid uint16, acc *pesAccumulator) {
	if !acc.started || len(acc.data) == 0 {
		return
	}
	unit := PESUnit{
		PID:    pid,
		PTS:    acc.pts,
		HasPTS: acc.hasPTS,
		Data:   acc.data,
	}
	acc.started = false
	acc.data = nil
	if d.OnPES != nil {
		d.OnPES(unit)
	}
}
