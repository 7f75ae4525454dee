package tesseract

import (
	"context"
	"errors"
	"testing"

	"github.com/otiai10/gosseract/v2"

	"github.com/veldt/subtext/ocr"
)

func TestEngine_Name(t *testing.T) {
	t.Parallel()
	if got := New().Name(); got != "tesseract" {
		t.Errorf("Name() = %q, want tesseract", got)
	}
}

func TestRecognize_CancelledContext(t *testing.T) {
	t.Parallel()
	e := New()
	e.clientFactory = func() *gosseract.Client {
		t.Fatal("client must not be created for a cancelled context")
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := e.Recognize(ctx, ocr.Input{Image: []byte{0x00}})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}
