package monitor

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
)

// EncodeJPEG 把一帧 bgr24 裸数据编码为 JPEG
func EncodeJPEG(data []byte, width, height, quality int) ([]byte, error) {
	if len(data) != width*height*3 {
		return nil, fmt.Errorf("frame size mismatch: got %d want %d", len(data), width*height*3)
	}
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			src := (y*width + x) * 3
			dst := img.PixOffset(x, y)
			// bgr -> rgb
			img.Pix[dst] = data[src+2]
			img.Pix[dst+1] = data[src+1]
			img.Pix[dst+2] = data[src]
			img.Pix[dst+3] = 0xff
		}
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}
