package img2bag

import (
	"bufio"
	"image"
	"image/draw"
	"os"

	// decoders registered for FileCodec
	_ "image/jpeg"
	_ "image/png"

	"github.com/disintegration/imaging"
	_ "github.com/lmittmann/ppm"
	"github.com/pkg/errors"
	_ "github.com/xfmoulet/qoi"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// Codec reads images from storage.
type Codec interface {
	// DecodeConfig reads only the header of the image at path.
	DecodeConfig(path string) (image.Config, error)
	Decode(path string) (image.Image, error)
}

// FileCodec decodes files with the decoders registered in the image package.
type FileCodec struct{}

func (FileCodec) DecodeConfig(path string) (image.Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return image.Config{}, err
	}
	defer f.Close()

	cfg, _, err := image.DecodeConfig(bufio.NewReader(f))
	return cfg, err
}

func (FileCodec) Decode(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	img, _, err := image.Decode(bufio.NewReader(f))
	return img, err
}

// loadFrame decodes and, when size is set, resizes the image of item.
func loadFrame(codec Codec, item SourceItem, size *ImageSize) (image.Image, error) {
	img, err := codec.Decode(item.Path)
	if err != nil {
		return nil, withKind(ErrDecode, errors.Wrapf(err, "failed to decode %s", item.Path))
	}

	if size == nil {
		return img, nil
	}

	bounds := img.Bounds()
	w, h, err := size.Resolve(bounds.Dx(), bounds.Dy())
	if err != nil {
		return nil, err
	}
	if w == bounds.Dx() && h == bounds.Dy() {
		return img, nil
	}

	return imaging.Resize(img, w, h, imaging.Lanczos), nil
}

// NewImageMessage converts img to an Image message. Gray images become mono8, images with
// transparent pixels rgba8 and everything else rgb8.
func NewImageMessage(img image.Image, header Header) *Image {
	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()

	msg := &Image{
		Header: header,
		Height: uint32(height),
		Width:  uint32(width),
	}

	switch src := img.(type) {
	case *image.Gray:
		msg.Encoding = EncodingMono8
		msg.Step = uint32(width)
		msg.Data = packRows(src.Pix, src.Stride, width, height, src.PixOffset(bounds.Min.X, bounds.Min.Y))
		return msg
	case *image.Gray16:
		gray := image.NewGray(image.Rect(0, 0, width, height))
		draw.Draw(gray, gray.Bounds(), src, bounds.Min, draw.Src)
		msg.Encoding = EncodingMono8
		msg.Step = uint32(width)
		msg.Data = gray.Pix
		return msg
	}

	// NRGBA keeps straight alpha, which is what rgba8 consumers expect
	nrgba := imaging.Clone(img)
	if hasAlpha(img) && !isOpaque(nrgba) {
		msg.Encoding = EncodingRGBA8
		msg.Step = uint32(4 * width)
		msg.Data = nrgba.Pix
		return msg
	}

	msg.Encoding = EncodingRGB8
	msg.Step = uint32(3 * width)
	msg.Data = make([]byte, 0, 3*width*height)
	for i := 0; i < len(nrgba.Pix); i += 4 {
		msg.Data = append(msg.Data, nrgba.Pix[i], nrgba.Pix[i+1], nrgba.Pix[i+2])
	}
	return msg
}

func packRows(pix []byte, stride, rowLen, rows, off int) []byte {
	if stride == rowLen && off == 0 && len(pix) == rowLen*rows {
		return pix
	}

	out := make([]byte, 0, rowLen*rows)
	for y := 0; y < rows; y++ {
		start := off + y*stride
		out = append(out, pix[start:start+rowLen]...)
	}
	return out
}

func hasAlpha(img image.Image) bool {
	switch img.(type) {
	case *image.NRGBA, *image.NRGBA64, *image.RGBA, *image.RGBA64, *image.Paletted, *image.Alpha, *image.Alpha16:
		return true
	default:
		return false
	}
}

func isOpaque(img *image.NRGBA) bool {
	for i := 3; i < len(img.Pix); i += 4 {
		if img.Pix[i] != 0xff {
			return false
		}
	}
	return true
}
