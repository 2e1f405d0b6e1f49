package hostsim

import (
	"sort"
	"time"

	"github.com/RecM/recm/pkg/core"
)

type recKey struct {
	id   int
	name string
}

type recordingState struct {
	frames      []core.Frame
	requestedAt time.Time
}

type playbackState struct {
	key      recKey
	frames   []core.Frame
	duration time.Duration
	elapsed  time.Duration
	speed    float32
	last     time.Time
	active   bool
}

// SetLoadDelay makes requested recordings take d to load.
func (h *Host) SetLoadDelay(d time.Duration) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.loadDelay = d
}

func durationOf(frames []core.Frame) time.Duration {
	if len(frames) == 0 {
		return 0
	}
	return time.Duration(frames[len(frames)-1].Time) * time.Millisecond
}

// frameAt returns the last frame at or before at.
func frameAt(frames []core.Frame, at time.Duration) core.Frame {
	ms := at.Milliseconds()
	i := sort.Search(len(frames), func(i int) bool { return int64(frames[i].Time) > ms })
	if i == 0 {
		return frames[0]
	}
	return frames[i-1]
}

func (h *Host) RequestRecording(id int, name string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.resolver == nil {
		return
	}
	frames, ok := h.resolver(id, name)
	if !ok || len(frames) == 0 {
		return
	}
	h.recordings[recKey{id, name}] = &recordingState{frames: frames, requestedAt: h.clock.Now()}
}

func (h *Host) loadedLocked(k recKey) (*recordingState, bool) {
	st, ok := h.recordings[k]
	if !ok || h.clock.Since(st.requestedAt) < h.loadDelay {
		return nil, false
	}
	return st, true
}

func (h *Host) RecordingLoaded(id int, name string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, ok := h.loadedLocked(recKey{id, name})
	return ok
}

func (h *Host) RemoveRecording(id int, name string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.recordings, recKey{id, name})
}

// Loaded counts recordings currently held by the host.
func (h *Host) Loaded() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.recordings)
}

func (h *Host) StartPlayback(v core.Handle, id int, name string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	k := recKey{id, name}
	st, ok := h.loadedLocked(k)
	if !ok {
		return
	}
	if _, ok := h.entities[v]; !ok {
		return
	}
	h.playbacks[v] = &playbackState{
		key:      k,
		frames:   st.frames,
		duration: durationOf(st.frames),
		speed:    1,
		last:     h.clock.Now(),
		active:   true,
	}
	h.advanceLocked(v)
}

// advanceLocked moves v's playback forward to the current clock time.
func (h *Host) advanceLocked(v core.Handle) {
	pb, ok := h.playbacks[v]
	if !ok || !pb.active {
		return
	}
	now := h.clock.Now()
	pb.elapsed += time.Duration(float64(now.Sub(pb.last)) * float64(pb.speed))
	pb.last = now
	if pb.elapsed < 0 || pb.elapsed >= pb.duration {
		pb.active = false
	}
	if ent, ok := h.entities[v]; ok {
		f := frameAt(pb.frames, pb.elapsed)
		ent.Pose = core.Pose{Position: f.Position, Heading: core.HeadingFromForward(f.Forward)}
		ent.Forward, ent.Right, ent.Velocity = f.Forward, f.Right, f.Velocity
	}
}

func (h *Host) StopPlayback(v core.Handle) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.playbacks, v)
}

func (h *Host) PlaybackActive(v core.Handle) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.advanceLocked(v)
	pb, ok := h.playbacks[v]
	return ok && pb.active
}

func (h *Host) PlaybackPosition(v core.Handle) time.Duration {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.advanceLocked(v)
	if pb, ok := h.playbacks[v]; ok {
		return pb.elapsed
	}
	return 0
}

func (h *Host) RecordingDuration(id int, name string) time.Duration {
	h.mu.Lock()
	defer h.mu.Unlock()
	if st, ok := h.recordings[recKey{id, name}]; ok {
		return durationOf(st.frames)
	}
	return 0
}

func (h *Host) PositionAt(id int, name string, at time.Duration) core.Vector3 {
	h.mu.Lock()
	defer h.mu.Unlock()
	if st, ok := h.recordings[recKey{id, name}]; ok {
		return frameAt(st.frames, at).Position
	}
	return core.Vector3{}
}

func (h *Host) SetPlaybackSpeed(v core.Handle, speed float32) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.advanceLocked(v)
	if pb, ok := h.playbacks[v]; ok {
		pb.speed = speed
	}
	h.speedWrites = append(h.speedWrites, speed)
}

// SpeedWrites lists every speed applied to any vehicle, in order.
func (h *Host) SpeedWrites() []float32 {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]float32, len(h.speedWrites))
	copy(out, h.speedWrites)
	return out
}
