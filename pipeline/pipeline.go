// Package pipeline wires the transport demuxer, the DVB-SUB decoder, and
// the recognition worker into a single extractor that turns raw transport
// stream bytes into timed bitmap and subtitle events.
package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/veldt/subtext/dvbsub"
	"github.com/veldt/subtext/media"
	"github.com/veldt/subtext/mpegts"
	"github.com/veldt/subtext/ocr"
)

// readChunkSize is a whole number of 188-byte transport packets per read.
const readChunkSize = 188 * 64

// DefaultSubtitleDuration is the display duration assigned to recognized
// subtitles when the stream carries no end marker and no other policy is
// configured.
const DefaultSubtitleDuration = 5 * time.Second

// Stats is a point-in-time snapshot of extractor counters. No error class
// is ever fatal to the stream; these counters are the observability surface.
type Stats struct {
	Packets        int64
	FramingErrors  int64
	PESUnits       int64
	DecodeErrors   int64
	Bitmaps        int64
	BitmapsDropped int64
	OCRErrors      int64
	OCRDropped     int64
	Subtitles      int64
}

// Extractor converts an MPEG transport stream into timed subtitle events.
// Feed pushes raw byte chunks through demuxing, segment decoding, and
// rendering synchronously; recognition runs on a single serialized worker
// started by Run. Output is delivered on the Streams, Bitmaps, and
// Subtitles channels.
type Extractor struct {
	log     *slog.Logger
	demuxer *mpegts.Demuxer
	decoder *dvbsub.Decoder
	rec     *recognizer

	engine    ocr.Engine
	languages []string
	duration  time.Duration
	endAtNext bool

	streamCh chan []media.SubtitleStream
	bitmapCh chan media.Bitmap

	pesUnits       atomic.Int64
	bitmaps        atomic.Int64
	bitmapsDropped atomic.Int64
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(log *slog.Logger) Option {
	return func(e *Extractor) { e.log = log }
}

// WithEngine attaches a recognition engine. Without one the pipeline
// degrades to bitmap-only events.
func WithEngine(engine ocr.Engine) Option {
	return func(e *Extractor) { e.engine = engine }
}

// WithLanguages sets language hints passed to the recognition engine.
func WithLanguages(languages ...string) Option {
	return func(e *Extractor) { e.languages = languages }
}

// WithSubtitleDuration sets the fixed display duration for recognized
// subtitles. Ignored when WithEndAtNextBitmap is set.
func WithSubtitleDuration(d time.Duration) Option {
	return func(e *Extractor) { e.duration = d }
}

// WithEndAtNextBitmap ends each subtitle at the next bitmap's timestamp
// instead of after a fixed duration. The last subtitle of a stream keeps
// the fixed duration, since no later bitmap exists to close it.
func WithEndAtNextBitmap() Option {
	return func(e *Extractor) { e.endAtNext = true }
}

// New creates an Extractor.
func New(opts ...Option) *Extractor {
	e := &Extractor{
		log:      slog.Default(),
		duration: DefaultSubtitleDuration,
		streamCh: make(chan []media.SubtitleStream, media.StreamInfoBufferSize),
		bitmapCh: make(chan media.Bitmap, media.BitmapBufferSize),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.log = e.log.With("stream", "dvbsub")

	e.demuxer = mpegts.NewDemuxer(e.log)
	e.decoder = dvbsub.NewDecoder(e.log)
	e.rec = newRecognizer(e.log, e.engine, e.languages, e.duration.Seconds(), e.endAtNext)

	e.demuxer.OnPMT = e.handlePMT
	e.demuxer.OnPES = e.handlePES
	e.decoder.OnBitmap = e.handleBitmap

	return e
}

// Streams delivers the discovered subtitle stream set whenever a PMT adds
// subtitle PIDs.
func (e *Extractor) Streams() <-chan []media.SubtitleStream { return e.streamCh }

// Bitmaps delivers every rendered display set, whether or not recognition
// is enabled.
func (e *Extractor) Bitmaps() <-chan media.Bitmap { return e.bitmapCh }

// Subtitles delivers recognized subtitle events in bitmap order. The channel
// is closed when Run returns; it stays silent when no engine is attached.
func (e *Extractor) Subtitles() <-chan media.SubtitleEvent { return e.rec.out }

// Stats returns a snapshot of the extractor's counters.
func (e *Extractor) Stats() Stats {
	return Stats{
		Packets:        e.demuxer.Packets(),
		FramingErrors:  e.demuxer.FramingErrors(),
		PESUnits:       e.pesUnits.Load(),
		DecodeErrors:   e.decoder.ErrorCount(),
		Bitmaps:        e.bitmaps.Load(),
		BitmapsDropped: e.bitmapsDropped.Load(),
		OCRErrors:      e.rec.errors.Load(),
		OCRDropped:     e.rec.dropped.Load(),
		Subtitles:      e.rec.emitted.Load(),
	}
}

// Feed pushes the next chunk of transport stream bytes through demuxing,
// decoding, and rendering. Chunks need not align to packet boundaries.
// Feed and Reset must be called from a single goroutine.
func (e *Extractor) Feed(chunk []byte) {
	e.demuxer.Parse(chunk)
}

// Reset clears the decoder's page/region/CLUT/object state and drops queued
// bitmaps that have not started recognition. An in-flight recognition
// completes and still emits its event, possibly against the stale session.
func (e *Extractor) Reset() {
	e.decoder.Reset()
	e.rec.dropPending()
	e.log.Info("decoder reset")
}

// Run reads transport stream chunks from input until EOF or context
// cancellation, feeding them through the pipeline while the recognition
// worker drains bitmaps. All output channels are closed on return.
func (e *Extractor) Run(ctx context.Context, input io.Reader) error {
	defer close(e.streamCh)
	defer close(e.bitmapCh)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return e.rec.run(ctx)
	})

	g.Go(func() error {
		defer e.rec.closeQueue()

		buf := make([]byte, readChunkSize)
		for {
			if ctx.Err() != nil {
				return nil
			}
			n, err := input.Read(buf)
			if n > 0 {
				e.Feed(buf[:n])
			}
			if err != nil {
				if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
					e.demuxer.Flush()
					return nil
				}
				return err
			}
		}
	})

	return g.Wait()
}

func (e *Extractor) handlePMT(streams []media.SubtitleStream) {
	select {
	case e.streamCh <- streams:
	default:
		// Stream discovery is informational; a slow host loses only the
		// intermediate snapshots.
	}
}

func (e *Extractor) handlePES(unit mpegts.PESUnit) {
	e.pesUnits.Add(1)
	if !unit.HasPTS {
		// A display set without a timestamp cannot be placed on the
		// timeline; decoding it would render events at time zero.
		e.log.Debug("skipping presentation unit without PTS", "pid", unit.PID)
		return
	}
	e.decoder.Decode(unit.Data, unit.PTS)
}

func (e *Extractor) handleBitmap(bmp media.Bitmap) {
	e.bitmaps.Add(1)
	select {
	case e.bitmapCh <- bmp:
	default:
		e.bitmapsDropped.Add(1)
		e.log.Warn("bitmap channel full, dropping bitmap", "pts", bmp.PTS)
	}
	e.rec.enqueue(bmp)
}
