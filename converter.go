package img2bag

import (
	"context"
	"fmt"
	"io"
	"math"
	"regexp"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

const DefaultCameraInfoTopic = "camera_info"

var cameraInfoTopicPattern = regexp.MustCompile(`^[A-Za-z/_]+$`)

// Converter turns directories of images into a bag. Topics are converted one after
// another, each stamped independently from StartTime at Rate.
type Converter struct {
	Pairs []DirectoryTopic
	// ImageSize resizes every image when set.
	ImageSize *ImageSize
	StartTime time.Time
	// Rate is in frames per second.
	Rate            float64
	CameraInfoTopic string
	Recursive       bool
	// Extensions restricts the files picked up, nil means DefaultExtensions.
	Extensions    []string
	Storage       StorageID
	WriterOptions []WriterOption

	Codec    Codec
	Progress Progress
	Logger   *zap.SugaredLogger
}

// NewConverter returns a converter with the defaults of the command line tool: start at the
// current second, 1 Hz, mcap storage.
func NewConverter(pairs []DirectoryTopic) *Converter {
	return &Converter{
		Pairs:           pairs,
		StartTime:       time.Now().Truncate(time.Second),
		Rate:            1,
		CameraInfoTopic: DefaultCameraInfoTopic,
		Storage:         StorageMCAP,
		Codec:           FileCodec{},
		Progress:        NopProgress,
		Logger:          zap.NewNop().Sugar(),
	}
}

// PairDirectoriesWithTopics zips directories and topics. Both lists must have the same
// length.
func PairDirectoriesWithTopics(directories, topics []string) ([]DirectoryTopic, error) {
	if len(directories) != len(topics) {
		return nil, configErrorf(
			"number of directories and topics must be equal, but got %d directories and %d topics",
			len(directories), len(topics))
	}

	pairs := make([]DirectoryTopic, len(directories))
	for i := range directories {
		pairs[i] = DirectoryTopic{Directory: directories[i], Topic: topics[i]}
	}
	return pairs, nil
}

func (c *Converter) setDefaults() {
	if c.Codec == nil {
		c.Codec = FileCodec{}
	}
	if c.Progress == nil {
		c.Progress = NopProgress
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop().Sugar()
	}
	if c.CameraInfoTopic == "" {
		c.CameraInfoTopic = DefaultCameraInfoTopic
	}
	if c.Storage == "" {
		c.Storage = StorageMCAP
	}
}

// Validate checks everything that can be checked without touching the filesystem.
func (c *Converter) Validate() error {
	if len(c.Pairs) == 0 {
		return configErrorf("at least one directory and topic are required")
	}

	if c.CameraInfoTopic != "" && !cameraInfoTopicPattern.MatchString(c.CameraInfoTopic) {
		return configErrorf("invalid camera info topic %q: only letters, '/' and '_' are allowed", c.CameraInfoTopic)
	}
	if err := c.validateTopics(); err != nil {
		return err
	}

	if math.IsNaN(c.Rate) || math.IsInf(c.Rate, 0) || c.Rate <= 0 {
		return withKind(ErrConfiguration, fmt.Errorf("%w, got %v", ErrInvalidRate, c.Rate))
	}
	if err := checkStartTime(c.StartTime); err != nil {
		return err
	}
	if c.ImageSize != nil && (c.ImageSize.Width <= 0 || c.ImageSize.Height < 0) {
		return configErrorf("invalid image size %dx%d", c.ImageSize.Width, c.ImageSize.Height)
	}
	if c.Storage != "" {
		if _, err := ParseStorageID(string(c.Storage)); err != nil {
			return err
		}
	}

	return nil
}

// validateTopics checks every topic the conversion will create. Image topics are unique and
// no name is used for both images and camera info.
func (c *Converter) validateTopics() error {
	cameraInfoTopic := c.CameraInfoTopic
	if cameraInfoTopic == "" {
		cameraInfoTopic = DefaultCameraInfoTopic
	}

	images := make(map[string]string, len(c.Pairs))
	cameraInfos := make(map[string]string, len(c.Pairs))
	for _, pair := range c.Pairs {
		if pair.Directory == "" {
			return configErrorf("empty directory for topic %q", pair.Topic)
		}
		topic := ImageTopicName(pair.Topic)
		if topic == "/" {
			return configErrorf("empty topic for directory %s", pair.Directory)
		}
		if _, ok := images[topic]; ok {
			return configErrorf("topic %s is used for more than one directory", topic)
		}
		images[topic] = pair.Directory

		info := CameraInfoTopicName(FrameIDFromTopic(pair.Topic), cameraInfoTopic)
		if info == "/" {
			return configErrorf("camera info topic %q of %s resolves to /", cameraInfoTopic, topic)
		}
		cameraInfos[info] = topic
	}

	for info, topic := range cameraInfos {
		if dir, ok := images[info]; ok {
			return configErrorf("camera info topic of %s clashes with the image topic of %s", topic, dir)
		}
	}
	return nil
}

// Prepare validates the configuration, enumerates every directory and, when the aspect
// ratio is kept, probes every image so an unusable size fails before anything is written.
func (c *Converter) Prepare() ([]*TopicStream, error) {
	c.setDefaults()
	if err := c.Validate(); err != nil {
		return nil, err
	}

	streams := make([]*TopicStream, 0, len(c.Pairs))
	total := 0
	for _, pair := range c.Pairs {
		stream, err := NewTopicStream(pair, c.Recursive, c.Extensions, c.ImageSize)
		if err != nil {
			return nil, err
		}
		if stream.Empty() {
			c.Logger.Warnf("no images found in %s", stream.Directory)
		} else if _, err := Schedule(stream, c.StartTime, c.Rate); err != nil {
			return nil, err
		}

		total += len(stream.Items)
		streams = append(streams, stream)
	}

	if total == 0 {
		return nil, withKind(ErrConfiguration, ErrNoImages)
	}

	if c.ImageSize != nil && c.ImageSize.KeepAspect() {
		for _, stream := range streams {
			if err := c.validateSizes(stream); err != nil {
				return nil, err
			}
		}
	}

	return streams, nil
}

func (c *Converter) validateSizes(stream *TopicStream) error {
	for _, item := range stream.Items {
		cfg, err := c.Codec.DecodeConfig(item.Path)
		if err != nil {
			return withKind(ErrDecode, errors.Wrapf(err, "failed to read image header of %s", item.Path))
		}

		if _, _, err := stream.Size.Resolve(cfg.Width, cfg.Height); err != nil {
			return withKind(ErrConfiguration, errors.Wrapf(err, "%s", item.Path))
		}
	}
	return nil
}

// Convert writes the bag directory output.
func (c *Converter) Convert(ctx context.Context, output string) error {
	streams, err := c.Prepare()
	if err != nil {
		return err
	}

	bag, err := Open(output, c.Storage, c.WriterOptions...)
	if err != nil {
		return err
	}

	err = c.ConvertTo(ctx, bag, streams)
	if err := multierr.Append(err, bag.Close()); err != nil {
		return err
	}

	c.Logger.Infof("saved bag to %s", bag.URI())
	return nil
}

// ConvertTo writes streams to w without closing it. The first error aborts the conversion.
func (c *Converter) ConvertTo(ctx context.Context, w FrameWriter, streams []*TopicStream) error {
	c.setDefaults()
	for _, stream := range streams {
		if err := c.convertStream(ctx, w, stream); err != nil {
			return err
		}
	}
	return nil
}

func (c *Converter) convertStream(ctx context.Context, w FrameWriter, stream *TopicStream) error {
	if stream.Empty() {
		return nil
	}

	frameID := FrameIDFromTopic(stream.Topic)
	imageTopic := ImageTopicName(stream.Topic)
	cameraInfoTopic := CameraInfoTopicName(frameID, c.CameraInfoTopic)

	scheduler, err := Schedule(stream, c.StartTime, c.Rate)
	if err != nil {
		return err
	}

	if err := w.CreateTopic(NewTopic(imageTopic, TypeImage)); err != nil {
		return withKind(ErrWrite, err)
	}
	if err := w.CreateTopic(NewTopic(cameraInfoTopic, TypeCameraInfo)); err != nil {
		return withKind(ErrWrite, err)
	}

	c.Progress.Start(fmt.Sprintf("Working on topic '%s'", imageTopic), scheduler.Len())
	defer c.Progress.Stop()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		frame, err := scheduler.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}

		c.Logger.Debugf("parsing %s", frame.Item.Path)
		img, err := loadFrame(c.Codec, frame.Item, stream.Size)
		if err != nil {
			return err
		}

		header := Header{Stamp: frame.Stamp(), FrameID: frameID}
		msg := NewImageMessage(img, header)
		if err := w.Write(imageTopic, frame.Timestamp, msg); err != nil {
			return withKind(ErrWrite, err)
		}

		// the calibration follows the first image, every image of a topic shares it
		if frame.Sequence == 0 {
			info := NewCameraInfo(int(msg.Width), int(msg.Height), header)
			if err := w.Write(cameraInfoTopic, frame.Timestamp, info); err != nil {
				return withKind(ErrWrite, err)
			}
		}

		c.Progress.Increment()
	}
}
