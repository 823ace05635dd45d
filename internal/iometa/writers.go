package iometa

import (
	"fmt"
	"io"
)

type CountingWriter struct {
	Writer       io.Writer
	bytesWritten int
}

func (c *CountingWriter) Write(p []byte) (int, error) {
	written, err := c.Writer.Write(p)
	c.bytesWritten += written

	return written, err
}

func (c *CountingWriter) BytesWritten() int {
	return c.bytesWritten
}

// OverlayWriter writes fixed-offset fields into a region that starts at Base
// within the underlying io.WriterAt, the way a header's fields are patched
// into a pre-sized template. Offsets passed to WriteAt are relative to Base.
type OverlayWriter struct {
	Dest io.WriterAt
	Base int64
}

func (o *OverlayWriter) WriteAt(p []byte, relOffset int64) error {
	if _, err := o.Dest.WriteAt(p, o.Base+relOffset); err != nil {
		return fmt.Errorf("failed to write field at offset 0x%x: %w", relOffset, err)
	}

	return nil
}
