package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/k0kubun/pp"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"go.uber.org/multierr"

	"github.com/lherman-cs/go-img2bag"
)

func infoAction(c *cli.Context) error {
	if c.NArg() != 1 {
		return errors.New("expected exactly one bag directory")
	}
	uri := c.Args().First()

	m, err := img2bag.ReadMetadata(uri)
	if err != nil {
		return err
	}

	if c.Bool(flagRaw) {
		_, err := pp.Println(m)
		return err
	}

	fmt.Println(renderInfo(m))

	if !c.Bool(flagDecode) {
		return nil
	}
	if m.Info.StorageIdentifier != img2bag.StorageMCAP {
		return errors.Errorf("--%s supports mcap bags only, got %s", flagDecode, m.Info.StorageIdentifier)
	}

	counts := make(map[string]uint64)
	for _, name := range m.Info.RelativeFilePaths {
		if err := decodeFile(filepath.Join(uri, name), counts); err != nil {
			return err
		}
	}

	for _, topic := range m.Info.Topics {
		if counts[topic.Topic.Name] != topic.MessageCount {
			return errors.Errorf("%s: metadata lists %d messages, the bag holds %d",
				topic.Topic.Name, topic.MessageCount, counts[topic.Topic.Name])
		}
	}
	fmt.Printf("decoded %d messages\n", m.Info.MessageCount)
	return nil
}

func renderInfo(m *img2bag.Metadata) string {
	info := &m.Info

	t := table.NewWriter()
	t.SetTitle("%s bag, %d messages, %v",
		info.StorageIdentifier, info.MessageCount, time.Duration(info.Duration.Nanoseconds))
	t.AppendHeader(table.Row{"Topic", "Type", "Format", "Messages"})
	for _, topic := range info.Topics {
		t.AppendRow(table.Row{
			topic.Topic.Name,
			topic.Topic.Type,
			topic.Topic.SerializationFormat,
			topic.MessageCount,
		})
	}
	t.AppendFooter(table.Row{"Start", info.Start().UTC().Format(time.RFC3339Nano), "", ""})
	t.AppendFooter(table.Row{"End", info.End().UTC().Format(time.RFC3339Nano), "", ""})
	return t.Render()
}

func newMessage(msgType string) img2bag.Message {
	switch msgType {
	case img2bag.TypeImage:
		return &img2bag.Image{}
	case img2bag.TypeCameraInfo:
		return &img2bag.CameraInfo{}
	default:
		return nil
	}
}

func decodeFile(path string, counts map[string]uint64) (err error) {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Append(err, f.Close())
	}()

	decoder, err := img2bag.NewDecoder(f)
	if err != nil {
		return errors.Wrapf(err, "failed to read %s", path)
	}

	for {
		msg, err := decoder.Read()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return errors.Wrapf(err, "failed to read %s", path)
		}

		if m := newMessage(msg.Topic.Type); m != nil {
			if err := msg.UnmarshallTo(m); err != nil {
				return errors.Wrapf(err, "failed to decode message %d of %s", msg.Sequence, msg.Topic.Name)
			}
		}
		counts[msg.Topic.Name]++
	}
}
