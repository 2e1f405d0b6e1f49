package codec

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/RecM/recm/pkg/core"
)

// Binary layout, little endian:
//
//	header: magic "RECM" | uint16 version | uint16 flags | uint32 count
//	record: uint32 time | 12 x float32 vectors | 3 x float32 controls | uint8 handbrake
const (
	Version    uint16 = 1
	headerSize        = 12
	recordSize        = 65
)

var magic = [4]byte{'R', 'E', 'C', 'M'}

// ErrNonFinite is returned for NaN or infinite frame values.
var ErrNonFinite = errors.New("value is not finite")

type header struct {
	Magic   [4]byte
	Version uint16
	Flags   uint16
	Count   uint32
}

type record struct {
	Time      uint32
	Position  [3]float32
	Velocity  [3]float32
	Forward   [3]float32
	Right     [3]float32
	Steering  float32
	Gas       float32
	Brake     float32
	Handbrake uint8
}

func toArray(v core.Vector3) [3]float32 { return [3]float32{v.X, v.Y, v.Z} }

func fromArray(a [3]float32) core.Vector3 { return core.Vector3{X: a[0], Y: a[1], Z: a[2]} }

func (r record) finite() bool {
	vals := []float32{r.Steering, r.Gas, r.Brake}
	for _, a := range [][3]float32{r.Position, r.Velocity, r.Forward, r.Right} {
		vals = append(vals, a[:]...)
	}
	for _, v := range vals {
		if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
			return false
		}
	}
	return true
}

func recordOf(f core.Frame) record {
	r := record{
		Time:     f.Time,
		Position: toArray(f.Position),
		Velocity: toArray(f.Velocity),
		Forward:  toArray(f.Forward),
		Right:    toArray(f.Right),
		Steering: f.SteeringAngle,
		Gas:      f.Gas,
		Brake:    f.Brake,
	}
	if f.Handbrake {
		r.Handbrake = 1
	}
	return r
}

func (r record) frame() core.Frame {
	return core.Frame{
		Time:          r.Time,
		Position:      fromArray(r.Position),
		Velocity:      fromArray(r.Velocity),
		Forward:       fromArray(r.Forward),
		Right:         fromArray(r.Right),
		SteeringAngle: r.Steering,
		Gas:           r.Gas,
		Brake:         r.Brake,
		Handbrake:     r.Handbrake != 0,
	}
}

// Compile turns a document into the binary resource.
func Compile(doc Document) ([]byte, error) {
	if len(doc.Items) == 0 {
		return nil, &EncodeError{Index: -1, Err: core.ErrEmptyRecording}
	}

	var buf bytes.Buffer
	buf.Grow(headerSize + recordSize*len(doc.Items))
	h := header{Magic: magic, Version: Version, Count: uint32(len(doc.Items))}
	if err := binary.Write(&buf, binary.LittleEndian, h); err != nil {
		return nil, &EncodeError{Index: -1, Err: err}
	}

	var prev uint32
	for i, it := range doc.Items {
		f, err := it.Frame()
		if err != nil {
			return nil, &EncodeError{Index: i, Err: err}
		}
		if i > 0 && f.Time < prev {
			return nil, &EncodeError{Index: i, Err: core.ErrNonMonotonicTime}
		}
		prev = f.Time
		r := recordOf(f)
		if !r.finite() {
			return nil, &EncodeError{Index: i, Err: ErrNonFinite}
		}
		if err := binary.Write(&buf, binary.LittleEndian, r); err != nil {
			return nil, &EncodeError{Index: i, Err: err}
		}
	}
	return buf.Bytes(), nil
}

func readHeader(data []byte) (header, error) {
	var h header
	if len(data) < headerSize {
		return h, &DecodeError{Offset: len(data), Reason: "truncated header"}
	}
	if err := binary.Read(bytes.NewReader(data[:headerSize]), binary.LittleEndian, &h); err != nil {
		return h, &DecodeError{Offset: 0, Reason: "header", Err: err}
	}
	if h.Magic != magic {
		return h, &DecodeError{Offset: 0, Reason: fmt.Sprintf("bad magic %q", h.Magic[:])}
	}
	if h.Version != Version {
		return h, &DecodeError{Offset: 4, Reason: fmt.Sprintf("unsupported version %d", h.Version)}
	}
	if h.Count == 0 {
		return h, &DecodeError{Offset: 8, Reason: "no frames", Err: core.ErrEmptyRecording}
	}
	return h, nil
}

// Decode reads every frame from a binary resource.
func Decode(data []byte) ([]core.Frame, error) {
	h, err := readHeader(data)
	if err != nil {
		return nil, err
	}
	body := data[headerSize:]
	if want := uint64(h.Count) * recordSize; uint64(len(body)) != want {
		return nil, &DecodeError{
			Offset: headerSize,
			Reason: fmt.Sprintf("expected %d bytes for %d frames, got %d", want, h.Count, len(body)),
		}
	}

	frames := make([]core.Frame, h.Count)
	rd := bytes.NewReader(body)
	for i := range frames {
		var r record
		if err := binary.Read(rd, binary.LittleEndian, &r); err != nil {
			return nil, &DecodeError{Offset: headerSize + i*recordSize, Reason: "record", Err: err}
		}
		if i > 0 && r.Time < frames[i-1].Time {
			return nil, &DecodeError{Offset: headerSize + i*recordSize, Reason: "time goes backwards"}
		}
		frames[i] = r.frame()
	}
	return frames, nil
}

// Decompile reads a binary resource back into document form.
func Decompile(data []byte) (Document, error) {
	frames, err := Decode(data)
	if err != nil {
		return Document{}, err
	}
	return NewDocument(frames), nil
}

// StartPose reads only the first frame and returns where the recording begins.
func StartPose(data []byte) (core.Pose, error) {
	if _, err := readHeader(data); err != nil {
		return core.Pose{}, err
	}
	if len(data) < headerSize+recordSize {
		return core.Pose{}, &DecodeError{Offset: len(data), Reason: "truncated first record"}
	}
	var r record
	if err := binary.Read(bytes.NewReader(data[headerSize:headerSize+recordSize]), binary.LittleEndian, &r); err != nil {
		return core.Pose{}, &DecodeError{Offset: headerSize, Reason: "record", Err: err}
	}
	f := r.frame()
	return core.Pose{Position: f.Position, Heading: core.HeadingFromForward(f.Forward)}, nil
}

// FrameCount reads the frame count from the header.
func FrameCount(data []byte) (int, error) {
	h, err := readHeader(data)
	if err != nil {
		return 0, err
	}
	return int(h.Count), nil
}

// Encode converts frames to the binary resource by way of the document form.
func Encode(frames []core.Frame) ([]byte, error) {
	if err := core.ValidateFrames(frames); err != nil {
		return nil, &EncodeError{Index: -1, Err: err}
	}
	return Compile(NewDocument(frames))
}
