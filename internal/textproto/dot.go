package textproto

import (
	"bufio"
	"io"
)

// DotWriter writes a dot-stuffed message body to an SMTP DATA stream.
// Lines starting with "." are doubled to ".." and Close() writes the
// termination sequence ".\r\n" (RFC 5321 §4.5.2). Output is buffered
// until Close.
type DotWriter struct {
	w         *bufio.Writer
	beginLine bool
	closed    bool
}

func newDotWriter(w *bufio.Writer) *DotWriter {
	return &DotWriter{w: w, beginLine: true}
}

// Write writes p unchanged except for dot-stuffing.
func (d *DotWriter) Write(p []byte) (int, error) {
	if d.closed {
		return 0, io.ErrClosedPipe
	}

	written := 0
	for _, b := range p {
		if d.beginLine && b == '.' {
			if err := d.w.WriteByte('.'); err != nil {
				return written, err
			}
		}

		if err := d.w.WriteByte(b); err != nil {
			return written, err
		}
		written++

		d.beginLine = (b == '\n')
	}
	return written, nil
}

// WriteLine writes line followed by \r\n, starting a new line first if the
// previous write did not end one.
func (d *DotWriter) WriteLine(line string) error {
	if err := d.EndLine(); err != nil {
		return err
	}
	if _, err := d.Write([]byte(line)); err != nil {
		return err
	}
	_, err := d.Write([]byte("\r\n"))
	return err
}

// EndLine terminates the current line if data was written since the last
// line break.
func (d *DotWriter) EndLine() error {
	if d.beginLine {
		return nil
	}
	_, err := d.Write([]byte("\r\n"))
	return err
}

// Close writes the termination sequence and flushes the writer.
// If the last data written did not end with \r\n, Close adds \r\n first.
func (d *DotWriter) Close() error {
	if d.closed {
		return nil
	}
	if err := d.EndLine(); err != nil {
		return err
	}
	d.closed = true
	if _, err := d.w.WriteString(".\r\n"); err != nil {
		return err
	}
	return d.w.Flush()
}
