package pipeline

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/chrissnell/globalbedo/internal/types"
)

// productFormat is bumped whenever the encoded layout changes.
const productFormat = 1

// ErrProductFormat is returned for product files of an unknown layout.
var ErrProductFormat = errors.New("pipeline: unsupported product format")

// ProductHeader describes an albedo product.
type ProductHeader struct {
	Format int    `msgpack:"format"`
	Tile   string `msgpack:"tile"`
	Year   int    `msgpack:"year"`
	DoY    int    `msgpack:"doy,omitempty"`
	Month  int    `msgpack:"month,omitempty"`
	Mode   Mode   `msgpack:"mode"`
	Width  int    `msgpack:"width"`
	Height int    `msgpack:"height"`

	// Coverage is set on monthly products: the mean over pixels of the share
	// of the month's nominal weight supplied by valid products.
	Coverage float64 `msgpack:"coverage,omitempty"`
}

// Product is an albedo product tile.
type Product struct {
	ProductHeader

	// Pixels is indexed by y*Width + x.
	Pixels []types.AlbedoResult
}

// NewProduct allocates a product with every pixel NoData.
func NewProduct(h ProductHeader) *Product {
	h.Format = productFormat
	p := &Product{ProductHeader: h, Pixels: make([]types.AlbedoResult, h.Width*h.Height)}
	for i := range p.Pixels {
		p.Pixels[i] = types.NoDataAlbedo()
	}
	return p
}

// At returns a pointer to the pixel at (x, y).
func (p *Product) At(x, y int) *types.AlbedoResult {
	return &p.Pixels[y*p.Width+x]
}

// Row returns row y of the product.
func (p *Product) Row(y int) []types.AlbedoResult {
	return p.Pixels[y*p.Width : (y+1)*p.Width]
}

// WriteProduct encodes p as a msgpack stream: the header followed by one
// array of results per row.
func WriteProduct(w io.Writer, p *Product) error {
	if len(p.Pixels) != p.Width*p.Height {
		return fmt.Errorf("product has %d pixels for %dx%d", len(p.Pixels), p.Width, p.Height)
	}

	enc := msgpack.NewEncoder(w)
	enc.UseCompactInts(true)

	h := p.ProductHeader
	h.Format = productFormat
	if err := enc.Encode(&h); err != nil {
		return fmt.Errorf("encoding product header: %w", err)
	}
	for y := 0; y < p.Height; y++ {
		if err := enc.Encode(p.Row(y)); err != nil {
			return fmt.Errorf("encoding product row %d: %w", y, err)
		}
	}
	return nil
}

// ReadProduct decodes a product written by WriteProduct.
func ReadProduct(r io.Reader) (*Product, error) {
	dec := msgpack.NewDecoder(r)

	var h ProductHeader
	if err := dec.Decode(&h); err != nil {
		return nil, fmt.Errorf("decoding product header: %w", err)
	}
	if h.Format != productFormat {
		return nil, fmt.Errorf("%w: %d", ErrProductFormat, h.Format)
	}
	if h.Width <= 0 || h.Height <= 0 {
		return nil, fmt.Errorf("product has invalid size %dx%d", h.Width, h.Height)
	}

	p := &Product{ProductHeader: h, Pixels: make([]types.AlbedoResult, 0, h.Width*h.Height)}
	for y := 0; y < h.Height; y++ {
		var row []types.AlbedoResult
		if err := dec.Decode(&row); err != nil {
			return nil, fmt.Errorf("decoding product row %d: %w", y, err)
		}
		if len(row) != h.Width {
			return nil, fmt.Errorf("product row %d has %d pixels, want %d", y, len(row), h.Width)
		}
		p.Pixels = append(p.Pixels, row...)
	}
	return p, nil
}

// EncodeProduct returns the msgpack encoding of p.
func EncodeProduct(p *Product) ([]byte, error) {
	var buf bytes.Buffer
	if err := WriteProduct(&buf, p); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DecodeProduct parses the output of EncodeProduct.
func DecodeProduct(data []byte) (*Product, error) {
	return ReadProduct(bytes.NewReader(data))
}
