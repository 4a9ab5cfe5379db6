package sign

import (
	"bytes"
	"compress/zlib"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"math"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// imageCacheKey returns the key under which the current field's image is
// deduplicated. An explicit key groups fields that share one image; without
// one each field caches its own.
func (context *SignContext) imageCacheKey() string {
	if context.SignData.Field.ImageKey != "" {
		return context.SignData.Field.ImageKey
	}
	return context.SignData.Field.Name
}

// hasImage reports whether this signature should paint an image, either from
// fresh image data or from an XObject embedded earlier in the session.
func (context *SignContext) hasImage() bool {
	if len(context.SignData.Field.Image) > 0 {
		return true
	}
	if context.SignData.ImageCache == nil {
		return false
	}
	_, ok := context.SignData.ImageCache[context.imageCacheKey()]
	return ok
}

// embedImage returns the object id of the image XObject for the current
// field. A cache hit reuses the id from an earlier signature in the same
// session, so the payload is stored once no matter how many fields draw it.
func (context *SignContext) embedImage() (imageID uint32, cached bool, err error) {
	key := context.imageCacheKey()
	if context.SignData.ImageCache != nil {
		if id, ok := context.SignData.ImageCache[key]; ok {
			return id, true, nil
		}
	}

	imageID, err = context.registerImage(context.SignData.Field.Image)
	if err != nil {
		return 0, false, err
	}
	if context.SignData.ImageCache != nil {
		context.SignData.ImageCache[key] = imageID
	}

	return imageID, false, nil
}

// registerImage encodes image data and adds it as an image XObject. Opaque
// JPEG data passes through under DCTDecode; everything else is re-encoded as
// 8-bit RGB, flate-compressed, with a DeviceGray soft mask when the source
// carries transparency.
func (context *SignContext) registerImage(data []byte) (uint32, error) {
	if len(data) == 0 {
		return 0, fmt.Errorf("%w: empty image data", ErrImageDecode)
	}

	srcImg, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrImageDecode, err)
	}

	bounds := srcImg.Bounds()
	width, height := bounds.Dx(), bounds.Dy()

	var rgbBuf, alphaBuf bytes.Buffer
	zlibRgb := newZlibWriter(&rgbBuf, context.CompressLevel)
	zlibAlpha := newZlibWriter(&alphaBuf, context.CompressLevel)

	hasAlpha := false
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			c := srcImg.At(bounds.Min.X+x, bounds.Min.Y+y)
			r, g, b, a := c.RGBA()
			a8 := uint8(a >> 8)
			if a8 < 255 {
				hasAlpha = true
			}
			zlibAlpha.Write([]byte{a8})
			zlibRgb.Write([]byte{uint8(r >> 8), uint8(g >> 8), uint8(b >> 8)})
		}
	}

	zlibRgb.Close()
	zlibAlpha.Close()

	var smaskID uint32
	if hasAlpha {
		smaskDict := fmt.Sprintf("<< /Type /XObject /Subtype /Image /Width %d /Height %d /ColorSpace /DeviceGray /BitsPerComponent 8 /Filter /FlateDecode /Length %d >>\nstream\n",
			width, height, alphaBuf.Len())
		smaskData := append([]byte(smaskDict), alphaBuf.Bytes()...)
		smaskData = append(smaskData, []byte("\nendstream")...)
		smaskID, err = context.addObject(smaskData)
		if err != nil {
			return 0, fmt.Errorf("failed to add soft mask object: %w", err)
		}
	}

	var objBuf bytes.Buffer
	objBuf.WriteString("<< /Type /XObject /Subtype /Image\n")
	fmt.Fprintf(&objBuf, "  /Width %d /Height %d /ColorSpace /DeviceRGB /BitsPerComponent 8\n", width, height)
	if smaskID != 0 {
		fmt.Fprintf(&objBuf, "  /SMask %d 0 R\n", smaskID)
	}

	if format == "jpeg" && !hasAlpha {
		fmt.Fprintf(&objBuf, "  /Filter /DCTDecode /Length %d >>\nstream\n", len(data))
		objBuf.Write(data)
	} else {
		fmt.Fprintf(&objBuf, "  /Filter /FlateDecode /Length %d >>\nstream\n", rgbBuf.Len())
		objBuf.Write(rgbBuf.Bytes())
	}
	objBuf.WriteString("\nendstream")

	return context.addObject(objBuf.Bytes())
}

// newZlibWriter wraps w at the requested level, falling back to the default
// level when the level is out of range.
func newZlibWriter(w io.Writer, level int) *zlib.Writer {
	zw, err := zlib.NewWriterLevel(w, level)
	if err != nil {
		return zlib.NewWriter(w)
	}
	return zw
}

// imageResourceName is the page resource name an embedded image is drawn by.
func imageResourceName(imageID uint32) string {
	return fmt.Sprintf("SigImg%d", imageID)
}

// createImageDrawContent builds a content stream that scales the image
// XObject's unit square into the field rectangle and paints it there.
func (context *SignContext) createImageDrawContent(imageName string) []byte {
	rect := context.SignData.Field.Rect
	llx := math.Min(rect[0], rect[2])
	lly := math.Min(rect[1], rect[3])
	rectWidth := math.Abs(rect[2] - rect[0])
	rectHeight := math.Abs(rect[3] - rect[1])

	var stream bytes.Buffer
	stream.WriteString("q\n")
	fmt.Fprintf(&stream, "%.2f 0 0 %.2f %.2f %.2f cm\n", rectWidth, rectHeight, llx, lly)
	fmt.Fprintf(&stream, "/%s Do\n", imageName)
	stream.WriteString("Q")

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "<< /Length %d >>\nstream\n", stream.Len())
	buf.Write(stream.Bytes())
	buf.WriteString("\nendstream")

	return buf.Bytes()
}
