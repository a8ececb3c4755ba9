// Package main is the img2bag command line tool.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/fatih/color"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"

	"github.com/lherman-cs/go-img2bag"
)

const (
	// Flags.
	flagConfig          = "config"
	flagDirectories     = "directories"
	flagTopics          = "topics"
	flagCameraInfoTopic = "camera-info-topic"
	flagImageSize       = "image-size"
	flagTimestamp       = "timestamp"
	flagRate            = "rate"
	flagRecursiveDirs   = "recursive-dirs"
	flagExtensions      = "extensions"
	flagOutput          = "output"
	flagFormat          = "format"
	flagCompression     = "compression"
	flagVerbose         = "verbose"

	flagRaw    = "raw"
	flagDecode = "decode"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := newApp().RunContext(ctx, os.Args)
	stop()

	if err != nil {
		if errors.Is(err, context.Canceled) {
			fmt.Fprintln(os.Stderr)
		} else {
			printError(err)
		}
		os.Exit(1)
	}
}

func printError(err error) {
	_, _ = color.New(color.FgRed, color.Bold).Fprint(os.Stderr, "Error:")
	fmt.Fprintf(os.Stderr, " %v\n", err)
}

func init() {
	// -v is --verbose
	cli.VersionFlag = &cli.BoolFlag{
		Name:  "version",
		Usage: "print the version",
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:    "img2bag",
		Usage:   "convert directories of images into a ROS 2 bag",
		Version: img2bag.Version,
		Flags:   convertFlags(),
		// a bare invocation converts, like the convert command
		Action: convertAction,
		Commands: []*cli.Command{
			{
				Name:   "convert",
				Usage:  "write the images of every directory onto its topic",
				Flags:  convertFlags(),
				Action: convertAction,
			},
			{
				Name:      "info",
				Usage:     "summarize a bag written by img2bag",
				ArgsUsage: "<bag directory>",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  flagRaw,
						Usage: "dump the parsed metadata.yaml instead of a table",
					},
					&cli.BoolFlag{
						Name:  flagDecode,
						Usage: "read back and deserialize every message of an mcap bag",
					},
				},
				Action: infoAction,
			},
		},
	}
}

func convertFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:  flagConfig,
			Usage: "load options from a YAML or JSON `FILE`, explicit flags take precedence",
		},
		&cli.StringSliceFlag{
			Name:  flagDirectories,
			Usage: "directories containing images, one per topic",
		},
		&cli.StringSliceFlag{
			Name:  flagTopics,
			Usage: "topics to publish the images of each directory under",
		},
		&cli.StringFlag{
			Name:    flagCameraInfoTopic,
			Aliases: []string{"c"},
			Value:   img2bag.DefaultCameraInfoTopic,
			Usage:   "name of the camera info topic next to each image topic",
		},
		&cli.StringFlag{
			Name:    flagImageSize,
			Aliases: []string{"s"},
			Usage:   "resize images to WIDTH (keeping the aspect ratio), WIDTHxHEIGHT or WIDTH,HEIGHT",
		},
		&cli.Float64Flag{
			Name:        flagTimestamp,
			Aliases:     []string{"ts"},
			Usage:       "start of the bag in seconds since the Unix epoch",
			DefaultText: "now",
		},
		&cli.Float64Flag{
			Name:    flagRate,
			Aliases: []string{"r"},
			Value:   1,
			Usage:   "frames per second of every image topic",
		},
		&cli.BoolFlag{
			Name:    flagRecursiveDirs,
			Aliases: []string{"rd"},
			Usage:   "search directories recursively",
		},
		&cli.StringSliceFlag{
			Name:  flagExtensions,
			Usage: "file extensions treated as images",
		},
		&cli.StringFlag{
			Name:    flagOutput,
			Aliases: []string{"o"},
			Usage:   "bag directory to create",
		},
		&cli.StringFlag{
			Name:    flagFormat,
			Aliases: []string{"f"},
			Value:   string(img2bag.StorageMCAP),
			Usage:   "storage format, mcap or sqlite3",
		},
		&cli.StringFlag{
			Name:  flagCompression,
			Value: "lz4",
			Usage: "mcap chunk compression, lz4 or none",
		},
		&cli.BoolFlag{
			Name:    flagVerbose,
			Aliases: []string{"v"},
			Usage:   "log every parsed file",
		},
	}
}

// loadConfig builds the configuration from defaults, the config file and then the flags set
// on the command line.
func loadConfig(c *cli.Context) (*img2bag.Config, error) {
	cfg := img2bag.DefaultConfig()
	if path := c.String(flagConfig); path != "" {
		if err := img2bag.LoadConfig(path, cfg); err != nil {
			return nil, err
		}
	}

	if c.IsSet(flagDirectories) {
		cfg.Directories = c.StringSlice(flagDirectories)
	}
	if c.IsSet(flagTopics) {
		cfg.Topics = c.StringSlice(flagTopics)
	}
	if c.IsSet(flagCameraInfoTopic) {
		cfg.CameraInfoTopic = c.String(flagCameraInfoTopic)
	}
	if c.IsSet(flagImageSize) {
		cfg.ImageSize = c.String(flagImageSize)
	}
	if c.IsSet(flagTimestamp) {
		cfg.Timestamp = c.Float64(flagTimestamp)
	}
	if c.IsSet(flagRate) {
		cfg.Rate = c.Float64(flagRate)
	}
	if c.IsSet(flagRecursiveDirs) {
		cfg.RecursiveDirs = c.Bool(flagRecursiveDirs)
	}
	if c.IsSet(flagExtensions) {
		cfg.Extensions = c.StringSlice(flagExtensions)
	}
	if c.IsSet(flagOutput) {
		cfg.Output = c.String(flagOutput)
	}
	if c.IsSet(flagFormat) {
		cfg.Format = c.String(flagFormat)
	}
	if c.IsSet(flagCompression) {
		cfg.Compression = c.String(flagCompression)
	}
	if c.IsSet(flagVerbose) {
		cfg.Verbose = c.Bool(flagVerbose)
	}

	if cfg.Output == "" {
		return nil, errors.Wrapf(img2bag.ErrConfiguration, "--%s is required", flagOutput)
	}
	return cfg, nil
}

func convertAction(c *cli.Context) error {
	if c.Args().Present() {
		return errors.Errorf("unexpected argument %q, see --help", c.Args().First())
	}

	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	logger, err := img2bag.NewLogger("img2bag", cfg.Verbose)
	if err != nil {
		return err
	}
	defer func() {
		_ = logger.Sync()
	}()

	converter, err := cfg.Converter()
	if err != nil {
		return err
	}
	converter.Logger = logger
	converter.Progress = img2bag.NewTerminalProgress()

	return converter.Convert(c.Context, cfg.Output)
}
