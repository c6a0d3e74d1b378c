// Package qrsink renders each exchange body as a PNG QR code and hands
// it to a caller-supplied writer. No teacher file exercises
// skip2/go-qrcode directly; it ships in the dependency set unused, so
// this sink gives it the straightforward external-library-wrapped-as-
// Destination shape used throughout the other sinks.
package qrsink

import (
	"fmt"
	"io"

	"github.com/routecraftjs/routecraft"
	"github.com/skip2/go-qrcode"
)

// WriterFor returns the io.Writer that should receive the PNG bytes
// for a given exchange, letting the caller decide naming/destination
// (a file per message, a fixed stream, etc). The returned writer is
// closed afterward if it implements io.Closer.
type WriterFor func(ex *routecraft.Exchange) (io.Writer, error)

// Options configures a QR code sink.
type Options struct {
	// Size is the PNG's width and height in pixels. Default: 256.
	Size int
	// RecoveryLevel sets the QR error-correction level. The zero value
	// is qrcode.Low.
	RecoveryLevel qrcode.RecoveryLevel
}

// New returns a routecraft.Destination that encodes fmt.Sprint(ex.Body)
// as a QR code PNG and writes it via writerFor(ex).
func New(writerFor WriterFor, opts Options) routecraft.Destination {
	size := opts.Size
	if size <= 0 {
		size = 256
	}

	return routecraft.DestinationFunc(func(ex *routecraft.Exchange) error {
		png, err := qrcode.Encode(fmt.Sprint(ex.Body), opts.RecoveryLevel, size)
		if err != nil {
			return fmt.Errorf("encode qr code: %w", err)
		}

		w, err := writerFor(ex)
		if err != nil {
			return fmt.Errorf("resolve writer: %w", err)
		}
		if _, err := w.Write(png); err != nil {
			return fmt.Errorf("write qr code: %w", err)
		}
		if closer, ok := w.(io.Closer); ok {
			return closer.Close()
		}
		return nil
	})
}
