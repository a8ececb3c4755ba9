package img2bag

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/zap/zaptest"
)

type writeCall struct {
	Topic     string
	Type      string
	Timestamp int64
	FrameID   string
	Width     uint32
	Height    uint32
}

// recordingWriter is a FrameWriter that keeps every call in memory.
type recordingWriter struct {
	topics []Topic
	calls  []writeCall
	closed bool
}

func (w *recordingWriter) CreateTopic(topic Topic) error {
	w.topics = append(w.topics, topic)
	return nil
}

func (w *recordingWriter) Write(topic string, timestamp int64, msg Message) error {
	call := writeCall{Topic: topic, Type: msg.MessageType(), Timestamp: timestamp}
	switch msg := msg.(type) {
	case *Image:
		call.FrameID, call.Width, call.Height = msg.Header.FrameID, msg.Width, msg.Height
	case *CameraInfo:
		call.FrameID, call.Width, call.Height = msg.Header.FrameID, msg.Width, msg.Height
	}
	w.calls = append(w.calls, call)
	return nil
}

func (w *recordingWriter) Close() error {
	w.closed = true
	return nil
}

type countingProgress struct {
	titles     []string
	totals     []int
	increments int
	stops      int
}

func (p *countingProgress) Start(title string, total int) {
	p.titles = append(p.titles, title)
	p.totals = append(p.totals, total)
}

func (p *countingProgress) Increment() { p.increments++ }
func (p *countingProgress) Stop()      { p.stops++ }

// makeImageDirs creates one directory per count, holding that many 8x6 png files named 1.png,
// 2.png and so on.
func makeImageDirs(t *testing.T, counts ...int) []string {
	t.Helper()
	root := t.TempDir()

	dirs := make([]string, len(counts))
	for i, n := range counts {
		dirs[i] = filepath.Join(root, "dir"+strconv.Itoa(i))
		if err := os.Mkdir(dirs[i], 0o755); err != nil {
			t.Fatal(err)
		}
		for j := 1; j <= n; j++ {
			writePNG(t, filepath.Join(dirs[i], strconv.Itoa(j)+".png"), 8, 6)
		}
	}
	return dirs
}

func newTestConverter(t *testing.T, dirs []string, topics ...string) *Converter {
	t.Helper()

	pairs, err := PairDirectoriesWithTopics(dirs, topics)
	if err != nil {
		t.Fatal(err)
	}
	c := NewConverter(pairs)
	c.StartTime = time.Unix(1000, 0)
	c.Rate = 5
	c.Logger = zaptest.NewLogger(t).Sugar()
	return c
}

func TestConverterConvertTo(t *testing.T) {
	dirs := makeImageDirs(t, 3, 2)
	c := newTestConverter(t, dirs, "camera_a/image", "camera_b/image")
	progress := &countingProgress{}
	c.Progress = progress

	streams, err := c.Prepare()
	if err != nil {
		t.Fatal(err)
	}

	w := &recordingWriter{}
	if err := c.ConvertTo(context.Background(), w, streams); err != nil {
		t.Fatal(err)
	}
	if w.closed {
		t.Fatal("ConvertTo must leave the writer open")
	}

	expectedTopics := []Topic{
		NewTopic("/camera_a/image", TypeImage),
		NewTopic("/camera_a/camera_info", TypeCameraInfo),
		NewTopic("/camera_b/image", TypeImage),
		NewTopic("/camera_b/camera_info", TypeCameraInfo),
	}
	if diff := cmp.Diff(expectedTopics, w.topics); diff != "" {
		t.Fatal(diff)
	}

	image := func(topic, frameID string, ts int64) writeCall {
		return writeCall{Topic: topic, Type: TypeImage, Timestamp: ts, FrameID: frameID, Width: 8, Height: 6}
	}
	info := func(topic, frameID string, ts int64) writeCall {
		return writeCall{Topic: topic, Type: TypeCameraInfo, Timestamp: ts, FrameID: frameID, Width: 8, Height: 6}
	}
	expectedCalls := []writeCall{
		image("/camera_a/image", "camera_a", 1000000000000),
		info("/camera_a/camera_info", "camera_a", 1000000000000),
		image("/camera_a/image", "camera_a", 1000200000000),
		image("/camera_a/image", "camera_a", 1000400000000),
		image("/camera_b/image", "camera_b", 1000000000000),
		info("/camera_b/camera_info", "camera_b", 1000000000000),
		image("/camera_b/image", "camera_b", 1000200000000),
	}
	if diff := cmp.Diff(expectedCalls, w.calls); diff != "" {
		t.Fatal(diff)
	}

	if diff := cmp.Diff([]int{3, 2}, progress.totals); diff != "" {
		t.Fatal(diff)
	}
	if progress.increments != 5 || progress.stops != 2 {
		t.Fatalf("expected 5 increments and 2 stops, got %d and %d", progress.increments, progress.stops)
	}
	if progress.titles[0] != "Working on topic '/camera_a/image'" {
		t.Fatalf("unexpected title %q", progress.titles[0])
	}
}

func TestConverterResize(t *testing.T) {
	dirs := makeImageDirs(t, 2)
	c := newTestConverter(t, dirs, "camera/image")
	c.ImageSize = &ImageSize{Width: 4}

	streams, err := c.Prepare()
	if err != nil {
		t.Fatal(err)
	}

	w := &recordingWriter{}
	if err := c.ConvertTo(context.Background(), w, streams); err != nil {
		t.Fatal(err)
	}

	if len(w.calls) != 3 {
		t.Fatalf("expected 3 writes, got %d", len(w.calls))
	}
	for _, call := range w.calls {
		if call.Width != 4 || call.Height != 3 {
			t.Fatalf("expected 4x3, got %dx%d on %s", call.Width, call.Height, call.Topic)
		}
	}
}

func TestConverterDecodeErrorAborts(t *testing.T) {
	dirs := makeImageDirs(t, 3, 2)
	if err := os.WriteFile(filepath.Join(dirs[0], "2.png"), []byte("corrupt"), 0o644); err != nil {
		t.Fatal(err)
	}
	c := newTestConverter(t, dirs, "camera_a/image", "camera_b/image")

	streams, err := c.Prepare()
	if err != nil {
		t.Fatal(err)
	}

	w := &recordingWriter{}
	err = c.ConvertTo(context.Background(), w, streams)
	if !errors.Is(err, ErrDecode) {
		t.Fatalf("expected a decode error, got %v", err)
	}

	// the first frame and its camera info, nothing after the corrupt frame
	expected := []string{"/camera_a/image", "/camera_a/camera_info"}
	var actual []string
	for _, call := range w.calls {
		actual = append(actual, call.Topic)
	}
	if diff := cmp.Diff(expected, actual); diff != "" {
		t.Fatal(diff)
	}
}

func TestConverterDecodeErrorWhileProbing(t *testing.T) {
	dirs := makeImageDirs(t, 2)
	if err := os.WriteFile(filepath.Join(dirs[0], "3.png"), []byte("corrupt"), 0o644); err != nil {
		t.Fatal(err)
	}
	c := newTestConverter(t, dirs, "camera/image")
	c.ImageSize = &ImageSize{Width: 4}

	if _, err := c.Prepare(); !errors.Is(err, ErrDecode) {
		t.Fatalf("expected a decode error, got %v", err)
	}
}

func TestConverterInvalidRate(t *testing.T) {
	dirs := makeImageDirs(t, 2)

	for _, rate := range []float64{0, -5} {
		c := newTestConverter(t, dirs, "camera/image")
		c.Rate = rate

		output := filepath.Join(t.TempDir(), "bag")
		if err := c.Convert(context.Background(), output); !errors.Is(err, ErrConfiguration) {
			t.Fatalf("rate %v: expected a configuration error, got %v", rate, err)
		}
		if _, err := os.Stat(output); !os.IsNotExist(err) {
			t.Fatalf("rate %v: expected no output, got %v", rate, err)
		}

		// the scheduler refuses as well when validation is skipped
		streams := []*TopicStream{newTestStream("camera/image", 2)}
		w := &recordingWriter{}
		if err := c.ConvertTo(context.Background(), w, streams); !errors.Is(err, ErrConfiguration) {
			t.Fatalf("rate %v: expected a configuration error, got %v", rate, err)
		}
		if len(w.calls) != 0 || len(w.topics) != 0 {
			t.Fatalf("rate %v: expected no writes, got %+v", rate, w)
		}
	}
}

func TestConverterConfigurationErrors(t *testing.T) {
	dirs := makeImageDirs(t, 2, 0, 0)

	testCases := []struct {
		Name     string
		Setup    func(t *testing.T, c *Converter)
		Expected error
	}{
		{
			Name:  "No pairs",
			Setup: func(_ *testing.T, c *Converter) { c.Pairs = nil },
		},
		{
			Name:  "Duplicate topics",
			Setup: func(_ *testing.T, c *Converter) { c.Pairs[1].Topic = "/" + c.Pairs[0].Topic },
		},
		{
			Name:  "Empty topic",
			Setup: func(_ *testing.T, c *Converter) { c.Pairs[0].Topic = "//" },
		},
		{
			Name:  "Invalid camera info topic",
			Setup: func(_ *testing.T, c *Converter) { c.CameraInfoTopic = "camera-info" },
		},
		{
			Name:  "Start before the epoch",
			Setup: func(_ *testing.T, c *Converter) { c.StartTime = time.Unix(-1, 0) },
		},
		{
			Name:     "Start after the last representable stamp",
			Setup:    func(_ *testing.T, c *Converter) { c.StartTime = time.Unix(3e9, 0) },
			Expected: ErrStampRange,
		},
		{
			Name: "Last frame after the last representable stamp",
			Setup: func(_ *testing.T, c *Converter) {
				c.StartTime = time.Unix(math.MaxInt32, 0)
				c.Rate = 1
			},
			Expected: ErrStampRange,
		},
		{
			Name:     "Offsets beyond int64",
			Setup:    func(_ *testing.T, c *Converter) { c.Rate = 1e-18 },
			Expected: ErrStampRange,
		},
		{
			Name:  "Camera info topic equals the image topic",
			Setup: func(_ *testing.T, c *Converter) { c.Pairs[0].Topic = "cam/camera_info" },
		},
		{
			Name: "Camera info topic equals another image topic",
			Setup: func(_ *testing.T, c *Converter) {
				c.Pairs[0].Topic = "cam/image"
				c.Pairs[1].Topic = "cam/camera_info"
			},
		},
		{
			Name:  "Camera info topic resolves to root",
			Setup: func(_ *testing.T, c *Converter) { c.CameraInfoTopic = "//" },
		},
		{
			Name:  "Unknown storage",
			Setup: func(_ *testing.T, c *Converter) { c.Storage = "bag" },
		},
		{
			Name:     "No images at all",
			Setup:    func(_ *testing.T, c *Converter) { c.Pairs = c.Pairs[1:] },
			Expected: ErrNoImages,
		},
		{
			Name: "Height resolves to zero",
			Setup: func(t *testing.T, c *Converter) {
				dir := t.TempDir()
				writePNG(t, filepath.Join(dir, "wide.png"), 100, 1)
				c.Pairs = []DirectoryTopic{{Directory: dir, Topic: "wide/image"}}
				c.ImageSize = &ImageSize{Width: 1}
			},
		},
	}

	for _, testCase := range testCases {
		testCase := testCase
		t.Run(testCase.Name, func(t *testing.T) {
			c := newTestConverter(t, dirs, "a/image", "b/image", "c/image")
			testCase.Setup(t, c)

			_, err := c.Prepare()
			if !errors.Is(err, ErrConfiguration) {
				t.Fatalf("expected a configuration error, got %v", err)
			}
			if testCase.Expected != nil && !errors.Is(err, testCase.Expected) {
				t.Fatalf("expected %v, got %v", testCase.Expected, err)
			}
		})
	}
}

func TestConverterTopicClashWritesNothing(t *testing.T) {
	dirs := makeImageDirs(t, 1, 1)
	c := newTestConverter(t, dirs, "cam/image", "cam/camera_info")
	output := filepath.Join(t.TempDir(), "bag")

	if err := c.Convert(context.Background(), output); !errors.Is(err, ErrConfiguration) {
		t.Fatalf("expected a configuration error, got %v", err)
	}
	if _, err := os.Stat(output); !os.IsNotExist(err) {
		t.Fatalf("expected no bag directory, got %v", err)
	}
}

func TestConverterSharedCameraInfo(t *testing.T) {
	dirs := makeImageDirs(t, 1, 1)
	c := newTestConverter(t, dirs, "cam/left", "cam/right")
	w := &recordingWriter{}

	streams, err := c.Prepare()
	if err != nil {
		t.Fatal(err)
	}
	if err := c.ConvertTo(context.Background(), w, streams); err != nil {
		t.Fatal(err)
	}

	infos := 0
	for _, call := range w.calls {
		if call.Topic == "/cam/camera_info" {
			infos++
		}
	}
	if infos != 2 {
		t.Fatalf("expected one camera info per stream on /cam/camera_info, got %d", infos)
	}
}

func TestConverterUnequalStreams(t *testing.T) {
	dirs := makeImageDirs(t, 2, 0)
	c := newTestConverter(t, dirs, "camera_a/image", "camera_b/image")

	streams, err := c.Prepare()
	if err != nil {
		t.Fatal(err)
	}

	w := &recordingWriter{}
	if err := c.ConvertTo(context.Background(), w, streams); err != nil {
		t.Fatal(err)
	}
	// an empty directory contributes no topics
	if len(w.topics) != 2 || len(w.calls) != 3 {
		t.Fatalf("expected 2 topics and 3 writes, got %d and %d", len(w.topics), len(w.calls))
	}
}

func TestConverterMismatchedPairs(t *testing.T) {
	_, err := PairDirectoriesWithTopics([]string{"a", "b"}, []string{"a"})
	if !errors.Is(err, ErrConfiguration) {
		t.Fatalf("expected a configuration error, got %v", err)
	}
}

func TestConverterCanceled(t *testing.T) {
	dirs := makeImageDirs(t, 2)
	c := newTestConverter(t, dirs, "camera/image")

	streams, err := c.Prepare()
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	w := &recordingWriter{}
	if err := c.ConvertTo(ctx, w, streams); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if len(w.calls) != 0 {
		t.Fatalf("expected no writes, got %d", len(w.calls))
	}
}

func TestConverterConvert(t *testing.T) {
	for _, id := range []StorageID{StorageMCAP, StorageSQLite3} {
		id := id
		t.Run(string(id), func(t *testing.T) {
			dirs := makeImageDirs(t, 3, 2)
			c := newTestConverter(t, dirs, "camera_a/image", "camera_b/image")
			c.Storage = id

			output := filepath.Join(t.TempDir(), "bag")
			if err := c.Convert(context.Background(), output); err != nil {
				t.Fatal(err)
			}

			m, err := ReadMetadata(output)
			if err != nil {
				t.Fatal(err)
			}

			counts := make(map[string]uint64)
			for _, topic := range m.Info.Topics {
				counts[topic.Topic.Name] = topic.MessageCount
			}
			expected := map[string]uint64{
				"/camera_a/image":       3,
				"/camera_a/camera_info": 1,
				"/camera_b/image":       2,
				"/camera_b/camera_info": 1,
			}
			if diff := cmp.Diff(expected, counts); diff != "" {
				t.Fatal(diff)
			}
			if m.Info.MessageCount != 7 || m.Info.StorageIdentifier != id {
				t.Fatalf("unexpected metadata %+v", m.Info)
			}
			if !m.Info.Start().Equal(time.Unix(1000, 0)) || !m.Info.End().Equal(time.Unix(1000, 400000000)) {
				t.Fatalf("unexpected time range %v - %v", m.Info.Start(), m.Info.End())
			}

			// the output must not be overwritten
			if err := c.Convert(context.Background(), output); !errors.Is(err, ErrWrite) {
				t.Fatalf("expected a write error, got %v", err)
			}
		})
	}
}
