package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"image/png"
	"log/slog"
	"sync/atomic"

	"github.com/veldt/subtext/media"
	"github.com/veldt/subtext/ocr"
)

const subtitleSource = "dvb-ocr"

// recognizer serializes bitmaps through the recognition engine: a bounded
// FIFO queue drained by exactly one worker, so subtitle events keep the
// chronological order of the bitmaps even under variable recognition latency.
type recognizer struct {
	log       *slog.Logger
	engine    ocr.Engine
	languages []string
	duration  float64 // default display duration in seconds
	endAtNext bool    // close each event at the next bitmap's timestamp

	queue chan media.Bitmap
	out   chan media.SubtitleEvent

	errors    atomic.Int64
	dropped   atomic.Int64
	emitted   atomic.Int64
	closeOnce atomic.Bool
}

func newRecognizer(log *slog.Logger, engine ocr.Engine, languages []string, duration float64, endAtNext bool) *recognizer {
	return &recognizer{
		log:       log.With("component", "recognizer"),
		engine:    engine,
		languages: languages,
		duration:  duration,
		endAtNext: endAtNext,
		queue:     make(chan media.Bitmap, media.BitmapBufferSize),
		out:       make(chan media.SubtitleEvent, media.SubtitleBufferSize),
	}
}

// enqueue adds a bitmap to the recognition queue without blocking. A full
// queue drops the bitmap and counts it.
func (r *recognizer) enqueue(bmp media.Bitmap) {
	if r.engine == nil || r.closeOnce.Load() {
		return
	}
	select {
	case r.queue <- bmp:
	default:
		r.dropped.Add(1)
		r.log.Warn("recognition queue full, dropping bitmap", "pts", bmp.PTS)
	}
}

// dropPending discards queued bitmaps that have not started recognition.
// An in-flight recognition completes and still emits its event. Safe to call
// after the queue has been closed.
func (r *recognizer) dropPending() {
	for {
		select {
		case bmp, ok := <-r.queue:
			if !ok {
				return
			}
			r.dropped.Add(1)
			r.log.Debug("dropping pending bitmap on reset", "pts", bmp.PTS)
		default:
			return
		}
	}
}

// closeQueue signals end of input. The worker drains remaining items and
// then closes the output channel.
func (r *recognizer) closeQueue() {
	if r.closeOnce.CompareAndSwap(false, true) {
		close(r.queue)
	}
}

// run is the single recognition worker. It exits when the queue is closed
// and drained, or the context is cancelled, closing the output channel
// either way.
func (r *recognizer) run(ctx context.Context) error {
	defer close(r.out)

	// held is the last recognized event waiting for its end time under the
	// end-at-next policy.
	var held *media.SubtitleEvent

	for {
		select {
		case <-ctx.Done():
			return nil
		case bmp, ok := <-r.queue:
			if !ok {
				if held != nil {
					r.emit(ctx, *held)
				}
				return nil
			}

			if held != nil {
				held.End = bmp.Time
				r.emit(ctx, *held)
				held = nil
			}

			event, ok := r.recognize(ctx, bmp)
			if !ok {
				continue
			}
			if r.endAtNext {
				held = &event
			} else {
				r.emit(ctx, event)
			}
		}
	}
}

// recognize runs one bitmap through the engine. Failures and empty text
// produce no event; failures are counted.
func (r *recognizer) recognize(ctx context.Context, bmp media.Bitmap) (media.SubtitleEvent, bool) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, bmp.Pixels); err != nil {
		r.errors.Add(1)
		r.log.Warn("failed to encode bitmap", "pts", bmp.PTS, "error", err)
		return media.SubtitleEvent{}, false
	}

	res, err := r.engine.Recognize(ctx, ocr.Input{
		ID:        fmt.Sprintf("pts-%d", bmp.PTS),
		Image:     buf.Bytes(),
		Format:    ocr.ImageFormatPNG,
		Languages: r.languages,
	})
	if err != nil {
		r.errors.Add(1)
		r.log.Warn("recognition failed", "pts", bmp.PTS, "engine", r.engine.Name(), "error", err)
		return media.SubtitleEvent{}, false
	}
	if res.PlainText == "" {
		return media.SubtitleEvent{}, false
	}

	return media.SubtitleEvent{
		Text:       res.PlainText,
		Confidence: res.Confidence,
		Start:      bmp.Time,
		End:        bmp.Time + r.duration,
		Source:     subtitleSource,
	}, true
}

func (r *recognizer) emit(ctx context.Context, event media.SubtitleEvent) {
	select {
	case r.out <- event:
		r.emitted.Add(1)
	case <-ctx.Done():
	}
}
