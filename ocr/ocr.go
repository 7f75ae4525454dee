// Package ocr defines the boundary to the external text recognition engine.
// The core pipeline only depends on the Engine interface; the tesseract
// subpackage provides the default implementation.
package ocr

import "context"

// ImageFormat identifies the content type of a recognition input image.
type ImageFormat string

const (
	ImageFormatPNG ImageFormat = "image/png"
)

// Input encapsulates a single image submitted for recognition.
type Input struct {
	// ID is an optional caller-provided identifier echoed back in the Result.
	ID string
	// Image is the encoded image payload in the format declared by Format.
	Image []byte
	// Format declares the image content type.
	Format ImageFormat
	// Languages is a list of language hints (e.g. "eng", "deu") that engines
	// can use to select trained data.
	Languages []string
}

// Result captures recognition output for a single input image.
type Result struct {
	// InputID mirrors the Input.ID that produced this result.
	InputID string
	// PlainText contains the trimmed text extracted from the image.
	PlainText string
	// Confidence is the mean word confidence in [0, 1]; zero when the engine
	// reports none.
	Confidence float64
}

// Engine is the recognition provider contract: one image in, one result out.
// Recognize may take arbitrarily long; implementations must honor context
// cancellation where the underlying engine allows it.
type Engine interface {
	Name() string
	Recognize(ctx context.Context, input Input) (Result, error)
}
