package codec

import (
	"encoding/xml"
	"fmt"
	"strconv"

	"github.com/RecM/recm/pkg/core"
)

// Document is the structured intermediate form of a recording, one Item per
// frame. It mirrors the XML layout consumed by the resource compiler.
type Document struct {
	XMLName xml.Name `xml:"VehicleRecordList"`
	Items   []Item   `xml:"Item"`
}

// Item is one frame in document form. All values are kept as text so the
// formatting is decided once, here.
type Item struct {
	Time       Value  `xml:"Time"`
	Position   Vector `xml:"Position"`
	Velocity   Vector `xml:"Velocity"`
	Forward    Vector `xml:"Forward"`
	Right      Vector `xml:"Right"`
	Steering   Value  `xml:"Steering"`
	GasPedal   Value  `xml:"GasPedal"`
	BrakePedal Value  `xml:"BrakePedal"`
	Handbrake  Value  `xml:"Handbrake"`
}

type Value struct {
	Value string `xml:"value,attr"`
}

type Vector struct {
	X string `xml:"x,attr"`
	Y string `xml:"y,attr"`
	Z string `xml:"z,attr"`
}

// formatFloat writes the shortest text that parses back to the same float32.
func formatFloat(f float32) string {
	return strconv.FormatFloat(float64(f), 'g', -1, 32)
}

func parseFloat(s string) (float32, error) {
	f, err := strconv.ParseFloat(s, 32)
	if err != nil {
		return 0, err
	}
	return float32(f), nil
}

func vectorOf(v core.Vector3) Vector {
	return Vector{X: formatFloat(v.X), Y: formatFloat(v.Y), Z: formatFloat(v.Z)}
}

func (v Vector) parse() (core.Vector3, error) {
	x, err := parseFloat(v.X)
	if err != nil {
		return core.Vector3{}, err
	}
	y, err := parseFloat(v.Y)
	if err != nil {
		return core.Vector3{}, err
	}
	z, err := parseFloat(v.Z)
	if err != nil {
		return core.Vector3{}, err
	}
	return core.Vector3{X: x, Y: y, Z: z}, nil
}

// NewDocument converts frames to document form.
func NewDocument(frames []core.Frame) Document {
	doc := Document{Items: make([]Item, len(frames))}
	for i, f := range frames {
		doc.Items[i] = Item{
			Time:       Value{strconv.FormatUint(uint64(f.Time), 10)},
			Position:   vectorOf(f.Position),
			Velocity:   vectorOf(f.Velocity),
			Forward:    vectorOf(f.Forward),
			Right:      vectorOf(f.Right),
			Steering:   Value{formatFloat(f.SteeringAngle)},
			GasPedal:   Value{formatFloat(f.Gas)},
			BrakePedal: Value{formatFloat(f.Brake)},
			Handbrake:  Value{strconv.FormatBool(f.Handbrake)},
		}
	}
	return doc
}

// Frame parses a single item.
func (it Item) Frame() (core.Frame, error) {
	var f core.Frame
	t, err := strconv.ParseUint(it.Time.Value, 10, 32)
	if err != nil {
		return f, fmt.Errorf("time: %w", err)
	}
	f.Time = uint32(t)
	if f.Position, err = it.Position.parse(); err != nil {
		return f, fmt.Errorf("position: %w", err)
	}
	if f.Velocity, err = it.Velocity.parse(); err != nil {
		return f, fmt.Errorf("velocity: %w", err)
	}
	if f.Forward, err = it.Forward.parse(); err != nil {
		return f, fmt.Errorf("forward: %w", err)
	}
	if f.Right, err = it.Right.parse(); err != nil {
		return f, fmt.Errorf("right: %w", err)
	}
	if f.SteeringAngle, err = parseFloat(it.Steering.Value); err != nil {
		return f, fmt.Errorf("steering: %w", err)
	}
	if f.Gas, err = parseFloat(it.GasPedal.Value); err != nil {
		return f, fmt.Errorf("gas: %w", err)
	}
	if f.Brake, err = parseFloat(it.BrakePedal.Value); err != nil {
		return f, fmt.Errorf("brake: %w", err)
	}
	if f.Handbrake, err = strconv.ParseBool(it.Handbrake.Value); err != nil {
		return f, fmt.Errorf("handbrake: %w", err)
	}
	return f, nil
}

// Frames parses every item in order.
func (d Document) Frames() ([]core.Frame, error) {
	frames := make([]core.Frame, len(d.Items))
	for i, it := range d.Items {
		f, err := it.Frame()
		if err != nil {
			return nil, &DecodeError{Offset: -1, Reason: fmt.Sprintf("item %d", i), Err: err}
		}
		frames[i] = f
	}
	return frames, nil
}

// XML renders the document as indented XML with a header.
func (d Document) XML() ([]byte, error) {
	out, err := xml.MarshalIndent(d, "", "  ")
	if err != nil {
		return nil, err
	}
	return append([]byte(xml.Header), out...), nil
}

// ParseDocument reads a document from its XML form.
func ParseDocument(data []byte) (Document, error) {
	var d Document
	if err := xml.Unmarshal(data, &d); err != nil {
		return Document{}, &DecodeError{Offset: -1, Reason: "malformed document", Err: err}
	}
	return d, nil
}
