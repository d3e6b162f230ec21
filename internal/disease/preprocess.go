package disease

import (
	"bytes"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

// DefaultMaxPixels bounds the decoded size of an upload. Compressed images
// can be tiny on the wire and still decode to gigabytes.
const DefaultMaxPixels = 40_000_000

// Preprocess decodes a JPEG, PNG or WebP image, resizes it to size x size
// and returns it as an HWC float32 RGB tensor with values in [0, 255].
// Images with more than maxPixels pixels are rejected before decoding;
// maxPixels <= 0 means DefaultMaxPixels.
func Preprocess(data []byte, size, maxPixels int) ([]float32, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty image", ErrInvalidImage)
	}
	if maxPixels <= 0 {
		maxPixels = DefaultMaxPixels
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}
	if pixels := int64(cfg.Width) * int64(cfg.Height); pixels > int64(maxPixels) {
		return nil, fmt.Errorf("%w: %dx%d exceeds %d pixels", ErrInvalidImage, cfg.Width, cfg.Height, maxPixels)
	}

	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}

	dst := image.NewRGBA(image.Rect(0, 0, size, size))
	draw.BiLinear.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)

	tensor := make([]float32, 0, size*size*3)
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			off := dst.PixOffset(x, y)
			tensor = append(tensor,
				float32(dst.Pix[off]),
				float32(dst.Pix[off+1]),
				float32(dst.Pix[off+2]),
			)
		}
	}
	return tensor, nil
}
