package img2bag

import (
	"path"
	"strings"
)

const (
	TypeTime             = "builtin_interfaces/msg/Time"
	TypeHeader           = "std_msgs/msg/Header"
	TypeRegionOfInterest = "sensor_msgs/msg/RegionOfInterest"
	TypeImage            = "sensor_msgs/msg/Image"
	TypeCameraInfo       = "sensor_msgs/msg/CameraInfo"
)

const (
	EncodingRGB8  = "rgb8"
	EncodingRGBA8 = "rgba8"
	EncodingMono8 = "mono8"

	DistortionPlumbBob = "plumb_bob"
)

const timeDefinition = `int32 sec
uint32 nanosec
`

const headerDefinition = `builtin_interfaces/Time stamp
string frame_id
`

const regionOfInterestDefinition = `uint32 x_offset
uint32 y_offset
uint32 height
uint32 width
bool do_rectify
`

const imageDefinition = `std_msgs/Header header
uint32 height
uint32 width
string encoding
uint8 is_bigendian
uint32 step
uint8[] data
`

const cameraInfoDefinition = `std_msgs/Header header
uint32 height
uint32 width
string distortion_model
float64[] d
float64[9] k
float64[9] r
float64[12] p
uint32 binning_x
uint32 binning_y
RegionOfInterest roi
`

func withDependencies(def string, deps ...string) string {
	var b strings.Builder
	b.WriteString(def)
	for i := 0; i+1 < len(deps); i += 2 {
		b.WriteString(msgSeparator)
		b.WriteString("\nMSG: ")
		b.WriteString(deps[i])
		b.WriteString("\n")
		b.WriteString(deps[i+1])
	}
	return b.String()
}

// definitionTexts holds the ros2msg text of every registered type, dependencies appended
// the way rosbag2 stores them in mcap schemas.
var definitionTexts = map[string]string{
	TypeTime:             timeDefinition,
	TypeHeader:           withDependencies(headerDefinition, timeDependency...),
	TypeRegionOfInterest: regionOfInterestDefinition,
	TypeImage:            withDependencies(imageDefinition, headerDependency...),
	TypeCameraInfo:       withDependencies(cameraInfoDefinition, append(headerDependency, roiDependency...)...),
}

var (
	timeDependency   = []string{"builtin_interfaces/Time", timeDefinition}
	headerDependency = append([]string{"std_msgs/Header", headerDefinition}, timeDependency...)
	roiDependency    = []string{"sensor_msgs/RegionOfInterest", regionOfInterestDefinition}
)

// Header mirrors std_msgs/msg/Header.
type Header struct {
	Stamp   Time   `rosbag:"stamp"`
	FrameID string `rosbag:"frame_id"`
}

func (Header) MessageType() string { return TypeHeader }

func (Time) MessageType() string { return TypeTime }

// RegionOfInterest mirrors sensor_msgs/msg/RegionOfInterest.
type RegionOfInterest struct {
	XOffset   uint32 `rosbag:"x_offset"`
	YOffset   uint32 `rosbag:"y_offset"`
	Height    uint32 `rosbag:"height"`
	Width     uint32 `rosbag:"width"`
	DoRectify bool   `rosbag:"do_rectify"`
}

func (RegionOfInterest) MessageType() string { return TypeRegionOfInterest }

// Image mirrors sensor_msgs/msg/Image.
type Image struct {
	Header      Header `rosbag:"header"`
	Height      uint32 `rosbag:"height"`
	Width       uint32 `rosbag:"width"`
	Encoding    string `rosbag:"encoding"`
	IsBigendian uint8  `rosbag:"is_bigendian"`
	Step        uint32 `rosbag:"step"`
	Data        []byte `rosbag:"data"`
}

func (Image) MessageType() string { return TypeImage }

// CameraInfo mirrors sensor_msgs/msg/CameraInfo.
type CameraInfo struct {
	Header          Header           `rosbag:"header"`
	Height          uint32           `rosbag:"height"`
	Width           uint32           `rosbag:"width"`
	DistortionModel string           `rosbag:"distortion_model"`
	D               []float64        `rosbag:"d"`
	K               [9]float64       `rosbag:"k"`
	R               [9]float64       `rosbag:"r"`
	P               [12]float64      `rosbag:"p"`
	BinningX        uint32           `rosbag:"binning_x"`
	BinningY        uint32           `rosbag:"binning_y"`
	ROI             RegionOfInterest `rosbag:"roi"`
}

func (CameraInfo) MessageType() string { return TypeCameraInfo }

// NewCameraInfo returns an ideal pinhole calibration for a width x height image: no
// distortion, focal length equal to the width and the principal point at the center.
func NewCameraInfo(width, height int, header Header) *CameraInfo {
	w, h := float64(width), float64(height)
	// fy = h / (h / w)
	fx, fy := w, w
	cx, cy := w/2, h/2

	return &CameraInfo{
		Header:          header,
		Height:          uint32(height),
		Width:           uint32(width),
		DistortionModel: DistortionPlumbBob,
		D:               make([]float64, 5),
		K: [9]float64{
			fx, 0, cx,
			0, fy, cy,
			0, 0, 1,
		},
		R: [9]float64{
			1, 0, 0,
			0, 1, 0,
			0, 0, 1,
		},
		P: [12]float64{
			fx, 0, cx, 0,
			0, fy, cy, 0,
			0, 0, 1, 0,
		},
	}
}

// FrameIDFromTopic returns the namespace of topic, or topic itself when it has none.
// "/camera/front/image" yields "camera/front".
func FrameIDFromTopic(topic string) string {
	parts := strings.Split(strings.Trim(topic, "/"), "/")
	if len(parts) > 1 {
		parts = parts[:len(parts)-1]
	}
	return path.Join(parts...)
}

// ImageTopicName returns topic with exactly one leading slash.
func ImageTopicName(topic string) string {
	return "/" + strings.TrimLeft(topic, "/")
}

// CameraInfoTopicName returns the camera info topic published next to the images of
// frameID.
func CameraInfoTopicName(frameID, cameraInfoTopic string) string {
	// an absolute camera info topic replaces the namespace
	if strings.HasPrefix(cameraInfoTopic, "/") {
		return path.Clean(cameraInfoTopic)
	}
	return path.Join("/"+frameID, cameraInfoTopic)
}
