package img2bag

import (
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pkg/errors"
)

// DefaultExtensions lists the image formats a FileCodec can decode.
var DefaultExtensions = []string{".png", ".jpg", ".jpeg", ".bmp", ".tif", ".tiff", ".webp", ".ppm", ".qoi"}

// SourceItem is one discovered image file.
type SourceItem struct {
	Path string
	Key  PathSegmentKey
}

func newSourceItem(path string) SourceItem {
	return SourceItem{Path: path, Key: NewPathSegmentKey(path)}
}

// SortSourceItems sorts items in natural order of their paths.
func SortSourceItems(items []SourceItem) {
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].Key.Compare(items[j].Key) < 0
	})
}

// Enumerate lists the image files under root in natural order. Only direct children are
// considered unless recursive is set. exts is matched case-insensitively against the file
// extension; nil selects DefaultExtensions.
//
// A directory without matching files yields an empty, non-nil slice.
func Enumerate(root string, recursive bool, exts []string) ([]SourceItem, error) {
	if exts == nil {
		exts = DefaultExtensions
	}
	allowed := make(map[string]struct{}, len(exts))
	for _, ext := range exts {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		allowed[ext] = struct{}{}
	}

	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, withKind(ErrDiscovery, errors.Wrapf(err, "failed to resolve %s", root))
	}
	root = abs

	info, err := os.Stat(root)
	if err != nil {
		return nil, withKind(ErrDiscovery, errors.Wrapf(err, "failed to open image directory"))
	}
	if !info.IsDir() {
		return nil, withKind(ErrDiscovery, errors.Wrapf(ErrNotADirectory, "%s", root))
	}

	items := []SourceItem{}
	match := func(path string, d fs.DirEntry) error {
		if _, ok := allowed[strings.ToLower(filepath.Ext(path))]; !ok {
			return nil
		}

		regular, err := isRegularFile(path, d)
		if err != nil {
			return err
		}
		if regular {
			items = append(items, newSourceItem(path))
		}
		return nil
	}

	if recursive {
		err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				return nil
			}
			return match(path, d)
		})
	} else {
		var entries []fs.DirEntry
		entries, err = os.ReadDir(root)
		for _, d := range entries {
			if err != nil {
				break
			}
			if d.IsDir() {
				continue
			}
			err = match(filepath.Join(root, d.Name()), d)
		}
	}
	if err != nil {
		return nil, withKind(ErrDiscovery, errors.Wrapf(err, "failed to list %s", root))
	}

	SortSourceItems(items)
	return items, nil
}

// isRegularFile follows symlinks to regular files. Symlinks to directories are not
// descended, WalkDir does not follow them either.
func isRegularFile(path string, d fs.DirEntry) (bool, error) {
	if d.Type()&fs.ModeSymlink == 0 {
		return d.Type().IsRegular(), nil
	}

	info, err := os.Stat(path)
	if err != nil {
		return false, err
	}
	return info.Mode().IsRegular(), nil
}

// DirectoryTopic pairs an image directory with the topic its images are published on.
type DirectoryTopic struct {
	Directory string
	Topic     string
}

// TopicStream is the ordered image sequence of one topic.
type TopicStream struct {
	Topic     string
	Directory string
	Items     []SourceItem
	Size      *ImageSize
}

// Empty reports whether the directory held no matching images.
func (stream *TopicStream) Empty() bool {
	return len(stream.Items) == 0
}

// NewTopicStream enumerates pair.Directory.
func NewTopicStream(pair DirectoryTopic, recursive bool, exts []string, size *ImageSize) (*TopicStream, error) {
	items, err := Enumerate(pair.Directory, recursive, exts)
	if err != nil {
		return nil, err
	}

	return &TopicStream{
		Topic:     pair.Topic,
		Directory: pair.Directory,
		Items:     items,
		Size:      size,
	}, nil
}
