package pipeline

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/veldt/subtext/media"
	"github.com/veldt/subtext/ocr"
)

// stubEngine answers recognition requests from a test-provided function.
type stubEngine struct {
	recognize func(ctx context.Context, in ocr.Input) (ocr.Result, error)
}

func (s *stubEngine) Name() string { return "stub" }

func (s *stubEngine) Recognize(ctx context.Context, in ocr.Input) (ocr.Result, error) {
	return s.recognize(ctx, in)
}

func textEngine(text string, confidence float64) *stubEngine {
	return &stubEngine{recognize: func(context.Context, ocr.Input) (ocr.Result, error) {
		return ocr.Result{PlainText: text, Confidence: confidence}, nil
	}}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// testBitmap builds a 1x1 opaque bitmap at the given 90 kHz timestamp.
func testBitmap(pts int64) media.Bitmap {
	img := image.NewNRGBA(image.Rect(0, 0, 1, 1))
	img.SetNRGBA(0, 0, color.NRGBA{R: 255, G: 255, B: 255, A: 255})
	return media.Bitmap{
		Pixels: img,
		Width:  1,
		Height: 1,
		PTS:    pts,
		Time:   float64(pts) / 90000.0,
	}
}

func drainEvents(t *testing.T, r *recognizer) []media.SubtitleEvent {
	t.Helper()
	var events []media.SubtitleEvent
	for ev := range r.out {
		events = append(events, ev)
	}
	return events
}

func TestRecognizer_EmitsOrderedEvents(t *testing.T) {
	t.Parallel()
	// The first bitmap recognizes slower than the second; the single worker
	// must still emit events in enqueue order.
	engine := &stubEngine{recognize: func(_ context.Context, in ocr.Input) (ocr.Result, error) {
		if in.ID == "pts-90000" {
			time.Sleep(20 * time.Millisecond)
		}
		return ocr.Result{PlainText: in.ID, Confidence: 0.9}, nil
	}}
	r := newRecognizer(discardLogger(), engine, []string{"eng"}, 5.0, false)

	r.enqueue(testBitmap(90000))
	r.enqueue(testBitmap(180000))
	r.closeQueue()
	if err := r.run(context.Background()); err != nil {
		t.Fatal(err)
	}

	events := drainEvents(t, r)
	if len(events) != 2 {
		t.Fatalf("got %d events, want 2", len(events))
	}
	if events[0].Text != "pts-90000" || events[1].Text != "pts-180000" {
		t.Errorf("events out of order: %q, %q", events[0].Text, events[1].Text)
	}
	if events[0].Start != 1.0 || events[0].End != 6.0 {
		t.Errorf("event timing = [%v, %v], want [1, 6]", events[0].Start, events[0].End)
	}
	if events[0].Source != subtitleSource {
		t.Errorf("source = %q, want %q", events[0].Source, subtitleSource)
	}
	if events[0].Confidence != 0.9 {
		t.Errorf("confidence = %v, want 0.9", events[0].Confidence)
	}
	if r.emitted.Load() != 2 {
		t.Errorf("emitted = %d, want 2", r.emitted.Load())
	}
}

func TestRecognizer_FailureProducesNoEvent(t *testing.T) {
	t.Parallel()
	engine := &stubEngine{recognize: func(context.Context, ocr.Input) (ocr.Result, error) {
		return ocr.Result{}, fmt.Errorf("engine crashed")
	}}
	r := newRecognizer(discardLogger(), engine, nil, 5.0, false)

	r.enqueue(testBitmap(90000))
	r.closeQueue()
	if err := r.run(context.Background()); err != nil {
		t.Fatal(err)
	}

	if events := drainEvents(t, r); len(events) != 0 {
		t.Fatalf("got %d events from failed recognition, want 0", len(events))
	}
	if r.errors.Load() != 1 {
		t.Errorf("errors = %d, want 1", r.errors.Load())
	}
}

func TestRecognizer_EmptyTextProducesNoEvent(t *testing.T) {
	t.Parallel()
	r := newRecognizer(discardLogger(), textEngine("", 0), nil, 5.0, false)

	r.enqueue(testBitmap(90000))
	r.closeQueue()
	if err := r.run(context.Background()); err != nil {
		t.Fatal(err)
	}

	if events := drainEvents(t, r); len(events) != 0 {
		t.Fatalf("got %d events for empty text, want 0", len(events))
	}
	if r.errors.Load() != 0 {
		t.Errorf("errors = %d, want 0 (empty text is not a failure)", r.errors.Load())
	}
}

func TestRecognizer_EndAtNextBitmap(t *testing.T) {
	t.Parallel()
	engine := &stubEngine{recognize: func(_ context.Context, in ocr.Input) (ocr.Result, error) {
		return ocr.Result{PlainText: in.ID, Confidence: 1}, nil
	}}
	r := newRecognizer(discardLogger(), engine, nil, 5.0, true)

	r.enqueue(testBitmap(90000))  // 1s
	r.enqueue(testBitmap(270000)) // 3s
	r.closeQueue()
	if err := r.run(context.Background()); err != nil {
		t.Fatal(err)
	}

	events := drainEvents(t, r)
	if len(events) != 2 {
		t.Fatalf("got %d events, want 2", len(events))
	}
	if events[0].Start != 1.0 || events[0].End != 3.0 {
		t.Errorf("first event = [%v, %v], want closed at next bitmap [1, 3]", events[0].Start, events[0].End)
	}
	// The last event has no later bitmap; it keeps the fixed duration.
	if events[1].Start != 3.0 || events[1].End != 8.0 {
		t.Errorf("last event = [%v, %v], want [3, 8]", events[1].Start, events[1].End)
	}
}

func TestRecognizer_QueueFullDrops(t *testing.T) {
	t.Parallel()
	r := newRecognizer(discardLogger(), textEngine("x", 1), nil, 5.0, false)

	// No worker running: fill the queue past its capacity.
	for i := 0; i < media.BitmapBufferSize+5; i++ {
		r.enqueue(testBitmap(int64(i)))
	}

	if got := r.dropped.Load(); got != 5 {
		t.Errorf("dropped = %d, want 5", got)
	}
	if got := len(r.queue); got != media.BitmapBufferSize {
		t.Errorf("queued = %d, want %d", got, media.BitmapBufferSize)
	}
}

func TestRecognizer_DropPending(t *testing.T) {
	t.Parallel()
	r := newRecognizer(discardLogger(), textEngine("x", 1), nil, 5.0, false)

	r.enqueue(testBitmap(1))
	r.enqueue(testBitmap(2))
	r.enqueue(testBitmap(3))
	r.dropPending()

	if got := r.dropped.Load(); got != 3 {
		t.Errorf("dropped = %d, want 3", got)
	}
	if got := len(r.queue); got != 0 {
		t.Errorf("queued = %d, want 0", got)
	}
}

func TestRecognizer_DropPendingAfterClose(t *testing.T) {
	t.Parallel()
	r := newRecognizer(discardLogger(), textEngine("x", 1), nil, 5.0, false)

	r.enqueue(testBitmap(1))
	r.enqueue(testBitmap(2))
	r.closeQueue()
	r.dropPending() // must drain and return, not spin on the closed channel
	r.dropPending() // and stay callable once the queue is empty

	if got := r.dropped.Load(); got != 2 {
		t.Errorf("dropped = %d, want 2", got)
	}
}

func TestRecognizer_EnqueueAfterCloseIgnored(t *testing.T) {
	t.Parallel()
	r := newRecognizer(discardLogger(), textEngine("x", 1), nil, 5.0, false)

	r.closeQueue()
	r.enqueue(testBitmap(1)) // must not panic on the closed channel
	r.closeQueue()           // idempotent

	if err := r.run(context.Background()); err != nil {
		t.Fatal(err)
	}
	if events := drainEvents(t, r); len(events) != 0 {
		t.Fatalf("got %d events, want 0", len(events))
	}
}

func TestRecognizer_NilEngine(t *testing.T) {
	t.Parallel()
	r := newRecognizer(discardLogger(), nil, nil, 5.0, false)

	r.enqueue(testBitmap(1)) // no-op without an engine
	r.closeQueue()
	if err := r.run(context.Background()); err != nil {
		t.Fatal(err)
	}
	if events := drainEvents(t, r); len(events) != 0 {
		t.Fatalf("got %d events without an engine, want 0", len(events))
	}
}

func TestRecognizer_ContextCancel(t *testing.T) {
	t.Parallel()
	r := newRecognizer(discardLogger(), textEngine("x", 1), nil, 5.0, false)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := r.run(ctx); err != nil {
		t.Fatalf("run returned %v on cancellation, want nil", err)
	}
	if _, open := <-r.out; open {
		t.Error("output channel must be closed after run returns")
	}
}
