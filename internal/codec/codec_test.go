package codec

import (
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RecM/recm/pkg/core"
)

func sampleFrames() []core.Frame {
	return []core.Frame{
		{
			Time:          0,
			Position:      core.Vector3{X: -1034.5, Y: 4882.25, Z: 28.5},
			Velocity:      core.Vector3{X: 0.1, Y: 12.3333, Z: -0.02},
			Forward:       core.Vector3{X: 1, Y: 0, Z: 0},
			Right:         core.Vector3{X: 0, Y: -1, Z: 0},
			SteeringAngle: 0.1745329,
			Gas:           1,
		},
		{
			Time:          100,
			Position:      core.Vector3{X: -1033.1, Y: 4883.7, Z: 28.51},
			Forward:       core.Vector3{X: 0.98, Y: 0.17, Z: 0},
			SteeringAngle: -0.3,
			Gas:           -0.45,
			Brake:         0.2,
			Handbrake:     true,
		},
		{Time: 100},
		{Time: 233, Gas: 1e-7},
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	frames := sampleFrames()

	data, err := Encode(frames)
	require.NoError(t, err)
	assert.Len(t, data, headerSize+len(frames)*recordSize)

	got, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, frames, got)
}

func TestDocumentFormatting(t *testing.T) {
	doc := NewDocument(sampleFrames()[:2])
	out, err := doc.XML()
	require.NoError(t, err)

	text := string(out)
	assert.True(t, strings.HasPrefix(text, "<?xml"))
	assert.Contains(t, text, "<VehicleRecordList>")
	assert.Contains(t, text, `<Time value="100"></Time>`)
	assert.Contains(t, text, `<Position x="-1034.5" y="4882.25" z="28.5"></Position>`)
	assert.Contains(t, text, `<Handbrake value="true"></Handbrake>`)

	parsed, err := ParseDocument(out)
	require.NoError(t, err)
	frames, err := parsed.Frames()
	require.NoError(t, err)
	assert.Equal(t, sampleFrames()[:2], frames)
}

func TestEncodeRejectsInvalidFrames(t *testing.T) {
	_, err := Encode(nil)
	var encErr *EncodeError
	require.ErrorAs(t, err, &encErr)
	assert.ErrorIs(t, err, core.ErrEmptyRecording)

	_, err = Encode([]core.Frame{{Time: 10}, {Time: 5}})
	require.ErrorAs(t, err, &encErr)
	assert.ErrorIs(t, err, core.ErrNonMonotonicTime)

	_, err = Encode([]core.Frame{{Time: 0}, {Time: 1, Gas: float32(math.NaN())}})
	require.ErrorAs(t, err, &encErr)
	assert.Equal(t, 1, encErr.Index)
	assert.ErrorIs(t, err, ErrNonFinite)
}

func TestCompileRejectsBadDocument(t *testing.T) {
	doc := NewDocument(sampleFrames())
	doc.Items[2].Steering.Value = "left"

	_, err := Compile(doc)
	var encErr *EncodeError
	require.ErrorAs(t, err, &encErr)
	assert.Equal(t, 2, encErr.Index)
}

func TestDecodeMalformed(t *testing.T) {
	good, err := Encode(sampleFrames())
	require.NoError(t, err)

	badMagic := append([]byte{}, good...)
	copy(badMagic, "NOPE")

	badVersion := append([]byte{}, good...)
	badVersion[4] = 9

	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"short header", good[:5]},
		{"bad magic", badMagic},
		{"bad version", badVersion},
		{"truncated body", good[:len(good)-3]},
		{"trailing bytes", append(append([]byte{}, good...), 0)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.NotPanics(t, func() {
				_, err := Decode(tt.data)
				var decErr *DecodeError
				assert.True(t, errors.As(err, &decErr), "got %v", err)
			})
		})
	}
}

func TestParseDocumentMalformed(t *testing.T) {
	_, err := ParseDocument([]byte("<Recording><Item>"))
	var decErr *DecodeError
	require.ErrorAs(t, err, &decErr)
	assert.NotContains(t, err.Error(), "offset")

	doc := NewDocument(sampleFrames())
	doc.Items[1].Position.Y = "north"
	data, err := doc.XML()
	require.NoError(t, err)
	parsed, err := ParseDocument(data)
	require.NoError(t, err)

	_, err = parsed.Frames()
	require.ErrorAs(t, err, &decErr)
	assert.Equal(t, "item 1", decErr.Reason)
	assert.NotContains(t, err.Error(), "offset")
	assert.Contains(t, err.Error(), "position")
}

func TestDecodeMatchesDocumentPath(t *testing.T) {
	frames := sampleFrames()
	frames = append(frames, core.Frame{
		Time:     1000,
		Position: core.Vector3{X: 1.0 / 3, Y: -0.1, Z: 3.4028235e38},
		Velocity: core.Vector3{X: 1e-40},
		Gas:      float32(math.Pi),
	})
	data, err := Encode(frames)
	require.NoError(t, err)

	direct, err := Decode(data)
	require.NoError(t, err)

	doc, err := Decompile(data)
	require.NoError(t, err)
	xmlData, err := doc.XML()
	require.NoError(t, err)
	parsed, err := ParseDocument(xmlData)
	require.NoError(t, err)
	viaDocument, err := parsed.Frames()
	require.NoError(t, err)

	assert.Equal(t, direct, viaDocument)
	assert.Equal(t, frames, direct)
}

func TestStartPose(t *testing.T) {
	data, err := Encode(sampleFrames())
	require.NoError(t, err)

	pose, err := StartPose(data)
	require.NoError(t, err)
	assert.Equal(t, sampleFrames()[0].Position, pose.Position)
	assert.InDelta(t, 90, pose.Heading, 1e-3)

	// Only the first record is needed.
	pose2, err := StartPose(data[:headerSize+recordSize])
	require.NoError(t, err)
	assert.Equal(t, pose, pose2)

	n, err := FrameCount(data)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
}

func TestDecompile(t *testing.T) {
	data, err := Encode(sampleFrames())
	require.NoError(t, err)

	doc, err := Decompile(data)
	require.NoError(t, err)
	require.Len(t, doc.Items, 4)
	assert.Equal(t, "233", doc.Items[3].Time.Value)
	assert.Equal(t, "1e-07", doc.Items[3].GasPedal.Value)
}
