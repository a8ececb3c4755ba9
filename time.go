package img2bag

import (
	"math"
	"time"
)

// maxStampNanos is the last instant a Time can hold, in nanoseconds since the Unix epoch.
const maxStampNanos = math.MaxInt32*int64(time.Second) + int64(time.Second) - 1

// Time mirrors builtin_interfaces/msg/Time.
type Time struct {
	Sec     int32  `rosbag:"sec"`
	Nanosec uint32 `rosbag:"nanosec"`
}

func nanoToTime(nsec int64) Time {
	sec := nsec / int64(time.Second)
	nsec -= sec * int64(time.Second)
	if nsec < 0 {
		sec--
		nsec += int64(time.Second)
	}
	return Time{Sec: int32(sec), Nanosec: uint32(nsec)}
}

// Nanoseconds returns t as nanoseconds since the Unix epoch.
func (t Time) Nanoseconds() int64 {
	return int64(t.Sec)*int64(time.Second) + int64(t.Nanosec)
}

// Std converts t to a time.Time.
func (t Time) Std() time.Time {
	return time.Unix(int64(t.Sec), int64(t.Nanosec))
}
