package raster

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"github.com/klauspost/compress/zstd"
)

// payload is the on-disk layout of a raster column.
type payload struct {
	Width     int        `cbor:"1,keyasint"`
	Height    int        `cbor:"2,keyasint"`
	Transform [6]float64 `cbor:"3,keyasint"`
	SRID      int        `cbor:"4,keyasint"`
	NoData    *float64   `cbor:"5,keyasint"`
	Values    []float32  `cbor:"6,keyasint"`
}

var (
	encoder = mustEncoder()
	decoder = mustDecoder()
)

func mustEncoder() *zstd.Encoder {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic(err)
	}
	return enc
}

func mustDecoder() *zstd.Decoder {
	dec, err := zstd.NewReader(nil)
	if err != nil {
		panic(err)
	}
	return dec
}

// Encode serializes r as zstd-compressed CBOR.
func Encode(r *Raster) ([]byte, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	doc, err := cbor.Marshal(payload{
		Width:     r.Width,
		Height:    r.Height,
		Transform: r.Transform,
		SRID:      r.SRID,
		NoData:    r.NoData,
		Values:    r.Values,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode raster: %w", err)
	}
	return encoder.EncodeAll(doc, nil), nil
}

// Decode reverses Encode. A payload that does not decode into a valid
// raster is reported as ErrInvalidRaster.
func Decode(data []byte) (*Raster, error) {
	doc, err := decoder.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to decompress payload: %v", ErrInvalidRaster, err)
	}
	var p payload
	if err := cbor.Unmarshal(doc, &p); err != nil {
		return nil, fmt.Errorf("%w: failed to decode payload: %v", ErrInvalidRaster, err)
	}
	r := &Raster{
		Width:     p.Width,
		Height:    p.Height,
		Transform: GeoTransform(p.Transform),
		SRID:      p.SRID,
		NoData:    p.NoData,
		Values:    p.Values,
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return r, nil
}
