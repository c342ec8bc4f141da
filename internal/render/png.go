package render

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"

	"github.com/stwalsh4118/canopy/internal/raster"
)

var encoder = png.Encoder{CompressionLevel: png.BestSpeed}

// Image paints r with style. Nodata pixels stay fully transparent, so a
// raster without valid pixels yields a transparent image of the same size.
func Image(ctx context.Context, r *raster.Raster, style Style) (*image.NRGBA, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}

	img := image.NewNRGBA(image.Rect(0, 0, r.Width, r.Height))
	for row := 0; row < r.Height; row++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for col := 0; col < r.Width; col++ {
			v := r.At(col, row)
			if r.IsNoData(v) {
				continue
			}
			img.SetNRGBA(col, row, style.Color(float64(v)))
		}
	}
	return img, nil
}

// PNG renders r with style and encodes the result.
func PNG(ctx context.Context, r *raster.Raster, style Style) ([]byte, error) {
	img, err := Image(ctx, r, style)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := encoder.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("failed to encode png: %w", err)
	}
	return buf.Bytes(), nil
}
