package codec

import (
	"bufio"
	"fmt"
	"io"
	"math"
)

// writePlanes writes planes values per pixel band-sequentially, each plane
// ordered x-major. value returns element plane of pixel idx = y*width+x.
func writePlanes(w io.Writer, width, height, planes int, value func(idx, plane int) float32) error {
	bw := bufio.NewWriter(w)
	buf := make([]byte, 0, 4*width*height)
	for p := 0; p < planes; p++ {
		buf = buf[:0]
		for x := 0; x < width; x++ {
			for y := 0; y < height; y++ {
				buf = byteOrder.AppendUint32(buf, math.Float32bits(value(y*width+x, p)))
			}
		}
		if _, err := bw.Write(buf); err != nil {
			return fmt.Errorf("writing plane %d: %w", p, err)
		}
	}
	return bw.Flush()
}

// readPlanes is the inverse of writePlanes.
func readPlanes(r io.Reader, width, height, planes int, set func(idx, plane int, v float32)) error {
	if width <= 0 || height <= 0 {
		return fmt.Errorf("%w: invalid tile size %dx%d", ErrSizeMismatch, width, height)
	}

	br := bufio.NewReader(r)
	plane := make([]byte, 4*width*height)
	for p := 0; p < planes; p++ {
		if _, err := io.ReadFull(br, plane); err != nil {
			if err == io.ErrUnexpectedEOF || err == io.EOF {
				return fmt.Errorf("%w: plane %d of %d", ErrShortRecord, p, planes)
			}
			return fmt.Errorf("reading plane %d: %w", p, err)
		}
		i := 0
		for x := 0; x < width; x++ {
			for y := 0; y < height; y++ {
				set(y*width+x, p, math.Float32frombits(byteOrder.Uint32(plane[4*i:])))
				i++
			}
		}
	}
	return nil
}
