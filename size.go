package img2bag

import (
	"fmt"
	"regexp"
	"strconv"
)

// "W" keeps the aspect ratio, "WxH" and "W,H" force both dimensions. Zero is rejected.
var imageSizePattern = regexp.MustCompile(`^([1-9][0-9]*)(?:[x,]([1-9][0-9]*))?$`)

// ImageSize is the requested output size of every image of a stream.
type ImageSize struct {
	Width int
	// Height is zero when the aspect ratio is kept.
	Height int
}

// ParseImageSize parses "WIDTH", "WIDTHxHEIGHT" or "WIDTH,HEIGHT".
func ParseImageSize(s string) (*ImageSize, error) {
	m := imageSizePattern.FindStringSubmatch(s)
	if m == nil {
		return nil, configErrorf("invalid image size %q: expected WIDTH, WIDTHxHEIGHT or WIDTH,HEIGHT with positive integers", s)
	}

	var size ImageSize
	var err error
	size.Width, err = strconv.Atoi(m[1])
	if err != nil {
		return nil, configErrorf("invalid image width %q: %v", m[1], err)
	}
	if m[2] != "" {
		size.Height, err = strconv.Atoi(m[2])
		if err != nil {
			return nil, configErrorf("invalid image height %q: %v", m[2], err)
		}
	}

	return &size, nil
}

// KeepAspect reports whether the height follows from the source image.
func (size *ImageSize) KeepAspect() bool {
	return size.Height == 0
}

func (size *ImageSize) String() string {
	if size.KeepAspect() {
		return strconv.Itoa(size.Width)
	}
	return fmt.Sprintf("%dx%d", size.Width, size.Height)
}

// Resolve returns the output dimensions for a source image of width x height. When the
// aspect ratio is kept the height is round(height * Width / width), rounding half up.
func (size *ImageSize) Resolve(width, height int) (int, int, error) {
	w, h := size.Width, size.Height
	if size.KeepAspect() {
		if width <= 0 || height <= 0 {
			return 0, 0, configErrorf("invalid source image size %dx%d", width, height)
		}
		num := int64(height) * int64(w)
		h = int((2*num + int64(width)) / (2 * int64(width)))
	}

	if w <= 0 || h <= 0 {
		return 0, 0, configErrorf("resolved image size %dx%d is not positive", w, h)
	}
	return w, h, nil
}
