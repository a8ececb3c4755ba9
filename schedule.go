package img2bag

import (
	"fmt"
	"io"
	"math"
	"math/big"
	"time"
)

var (
	nanosPerSecond = big.NewInt(int64(time.Second))
	maxStamp       = big.NewInt(maxStampNanos)
)

// ScheduledFrame is one image of a topic with its assigned timestamp.
type ScheduledFrame struct {
	Topic string
	Item  SourceItem
	// Timestamp is in nanoseconds since the Unix epoch.
	Timestamp int64
	// Sequence counts the frames of a topic, starting at 0.
	Sequence uint64
}

// Stamp returns the frame timestamp as a message stamp.
func (frame *ScheduledFrame) Stamp() Time {
	return nanoToTime(frame.Timestamp)
}

func (frame *ScheduledFrame) String() string {
	return fmt.Sprintf(`
topic     : %s
path      : %s
timestamp : %d
sequence  : %d
`, frame.Topic, frame.Item.Path, frame.Timestamp, frame.Sequence)
}

// Scheduler hands out the frames of one stream in order. Frame i is stamped
// start + floor(i / rate) in nanoseconds, computed exactly so long recordings never drift.
type Scheduler struct {
	stream *TopicStream
	start  int64
	// rate = num / den exactly
	num *big.Int
	den *big.Int
	next int
}

// Schedule creates a scheduler for stream. rate is in frames per second and must be a
// finite number greater than zero. Every frame must be stamped between the Unix epoch and
// the end of a builtin_interfaces/Time, otherwise ErrStampRange is returned.
func Schedule(stream *TopicStream, start time.Time, rate float64) (*Scheduler, error) {
	if math.IsNaN(rate) || math.IsInf(rate, 0) || rate <= 0 {
		return nil, withKind(ErrConfiguration, fmt.Errorf("%w, got %v", ErrInvalidRate, rate))
	}
	if err := checkStartTime(start); err != nil {
		return nil, err
	}

	// SetFloat64 is exact for every finite float
	r := new(big.Rat).SetFloat64(rate)
	scheduler := &Scheduler{
		stream: stream,
		start:  start.UnixNano(),
		num:    new(big.Int).Set(r.Num()),
		den:    new(big.Int).Set(r.Denom()),
	}

	if n := scheduler.Len(); n > 0 {
		last := scheduler.offset(n - 1)
		last.Add(last, big.NewInt(scheduler.start))
		if last.Cmp(maxStamp) > 0 {
			return nil, withKind(ErrConfiguration, fmt.Errorf(
				"%w: frame %d of %s at %v Hz would be stamped %s ns after the Unix epoch",
				ErrStampRange, n-1, stream.Topic, rate, last))
		}
	}
	return scheduler, nil
}

func checkStartTime(start time.Time) error {
	if start.Before(time.Unix(0, 0)) || start.Unix() > math.MaxInt32 {
		return withKind(ErrConfiguration, fmt.Errorf(
			"%w: start %s must lie between the Unix epoch and %s",
			ErrStampRange, start.UTC().Format(time.RFC3339Nano), time.Unix(0, maxStampNanos).UTC().Format(time.RFC3339Nano)))
	}
	return nil
}

// Len returns the number of frames.
func (scheduler *Scheduler) Len() int {
	return len(scheduler.stream.Items)
}

// Reset restarts the sequence from the first frame.
func (scheduler *Scheduler) Reset() {
	scheduler.next = 0
}

// Offset returns the timestamp offset of frame i from the start in nanoseconds,
// truncated toward zero.
func (scheduler *Scheduler) Offset(i int) int64 {
	return scheduler.offset(i).Int64()
}

// offset is i * 1e9 * den / num. Schedule bounds it for every frame of the stream.
func (scheduler *Scheduler) offset(i int) *big.Int {
	off := new(big.Int).SetInt64(int64(i))
	off.Mul(off, nanosPerSecond)
	off.Mul(off, scheduler.den)
	return off.Quo(off, scheduler.num)
}

// Next returns the next frame, or io.EOF after the last one.
func (scheduler *Scheduler) Next() (ScheduledFrame, error) {
	if scheduler.next >= len(scheduler.stream.Items) {
		return ScheduledFrame{}, io.EOF
	}

	i := scheduler.next
	scheduler.next++

	return ScheduledFrame{
		Topic:     scheduler.stream.Topic,
		Item:      scheduler.stream.Items[i],
		Timestamp: scheduler.start + scheduler.Offset(i),
		Sequence:  uint64(i),
	}, nil
}
