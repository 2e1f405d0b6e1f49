// Package hostsim is a deterministic in-process stand-in for the game host.
// It backs the engine tests and the offline simulate command.
package hostsim

import (
	"strings"
	"sync"
	"time"

	"github.com/RecM/recm/internal/capture"
	"github.com/RecM/recm/internal/clock"
	"github.com/RecM/recm/internal/playback"
	"github.com/RecM/recm/pkg/core"
)

var (
	_ capture.Host  = (*Host)(nil)
	_ playback.Host = (*Host)(nil)
)

// DefaultModels are present in every simulated host.
var DefaultModels = []string{"dubsta2", "sultan", "adder", "police", playback.DefaultDriverModel}

// Resolver finds the frames behind a host recording id and name.
type Resolver func(id int, name string) ([]core.Frame, bool)

type kind int

const (
	kindVehicle kind = iota
	kindPed
)

// Entity is a simulated vehicle or ped.
type Entity struct {
	Handle core.Handle
	Model  uint32
	Pose   core.Pose

	Velocity   core.Vector3
	LocalSpeed core.Vector3
	Forward    core.Vector3
	Right      core.Vector3
	Steering   float32 // degrees
	Handbrake  bool

	Invincible           bool
	VisiblyDamageable    bool
	EngineRunning        bool
	RadioOff             bool
	Networked            bool
	CanWrithe            bool
	BlockPermanentEvents bool
	TasksCleared         bool
	SeatedIn             core.Handle

	Look    VehicleLook
	Clothes PedLook

	kind kind
}

// Host simulates entities, the player and the recording playback engine.
type Host struct {
	mu    sync.Mutex
	clock clock.Clock

	models    map[uint32]string
	requested map[uint32]bool
	// modelFails lists models that never finish loading.
	modelFails map[uint32]bool

	entities map[core.Handle]*Entity
	next     core.Handle

	playerPed     core.Handle
	playerPose    core.Pose
	playerVehicle core.Handle
	playerControl bool
	controls      map[capture.Control]float32

	resolver    Resolver
	loadDelay   time.Duration
	recordings  map[recKey]*recordingState
	playbacks   map[core.Handle]*playbackState
	speedWrites []float32
	teleports   []core.Pose
}

// New creates a host with the default models and the player on foot at the origin.
func New(clk clock.Clock, resolver Resolver) *Host {
	h := &Host{
		clock:         clk,
		models:        make(map[uint32]string),
		requested:     make(map[uint32]bool),
		modelFails:    make(map[uint32]bool),
		entities:      make(map[core.Handle]*Entity),
		playerControl: true,
		controls:      make(map[capture.Control]float32),
		resolver:      resolver,
		recordings:    make(map[recKey]*recordingState),
		playbacks:     make(map[core.Handle]*playbackState),
	}
	for _, m := range DefaultModels {
		h.models[core.ModelHash(m)] = m
	}
	h.playerPed = h.spawn(kindPed, core.ModelHash("mp_m_freemode_01"), core.Pose{}).Handle
	return h
}

// AddModel makes a model name known to the host.
func (h *Host) AddModel(name string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.models[core.ModelHash(name)] = strings.ToLower(name)
}

// FailModelLoad makes a known model never finish loading.
func (h *Host) FailModelLoad(name string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.modelFails[core.ModelHash(name)] = true
}

func (h *Host) ModelInCdimage(model uint32) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, ok := h.models[model]
	return ok
}

func (h *Host) RequestModel(model uint32) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.requested[model] = true
}

func (h *Host) ModelLoaded(model uint32) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.requested[model] && !h.modelFails[model]
}

func (h *Host) ReleaseModel(model uint32) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.requested, model)
}

func (h *Host) spawn(k kind, model uint32, pose core.Pose) *Entity {
	h.next++
	e := &Entity{
		Handle:            h.next,
		Model:             model,
		Pose:              pose,
		VisiblyDamageable: true,
		CanWrithe:         true,
		Forward:           core.Vector3{Y: 1},
		Right:             core.Vector3{X: 1},
		kind:              k,
	}
	if k == kindVehicle {
		e.Look = newVehicleLook()
	} else {
		e.Clothes = newPedLook()
	}
	h.entities[e.Handle] = e
	return e
}

// SpawnVehicle refuses models that were not requested and loaded.
func (h *Host) SpawnVehicle(model uint32, pose core.Pose, networked bool) core.Handle {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.models[model]; !ok || !h.requested[model] {
		return 0
	}
	e := h.spawn(kindVehicle, model, pose)
	e.Networked = networked
	return e.Handle
}

func (h *Host) SpawnPed(model uint32, pose core.Pose) core.Handle {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.requested[model] {
		return 0
	}
	return h.spawn(kindPed, model, pose).Handle
}

// PlaceVehicle creates a vehicle directly, bypassing model streaming.
func (h *Host) PlaceVehicle(model string, pose core.Pose) core.Handle {
	h.mu.Lock()
	defer h.mu.Unlock()
	hash := core.ModelHash(model)
	h.models[hash] = strings.ToLower(model)
	return h.spawn(kindVehicle, hash, pose).Handle
}

func (h *Host) Exists(e core.Handle) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, ok := h.entities[e]
	return ok
}

func (h *Host) Delete(e core.Handle) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.entities, e)
	delete(h.playbacks, e)
	if h.playerVehicle == e {
		h.playerVehicle = 0
	}
}

// Entity returns a copy of an entity's state.
func (h *Host) Entity(e core.Handle) (Entity, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	ent, ok := h.entities[e]
	if !ok {
		return Entity{}, false
	}
	return *ent, true
}

// Count returns the number of live entities, not counting the player ped.
func (h *Host) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := len(h.entities)
	if _, ok := h.entities[h.playerPed]; ok {
		n--
	}
	return n
}

func (h *Host) with(e core.Handle, fn func(*Entity)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if ent, ok := h.entities[e]; ok {
		fn(ent)
	}
}

func (h *Host) VehicleModel(v core.Handle) string {
	h.mu.Lock()
	defer h.mu.Unlock()
	if ent, ok := h.entities[v]; ok {
		return h.models[ent.Model]
	}
	return ""
}

func (h *Host) EntityPose(e core.Handle) core.Pose {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.advanceLocked(e)
	if ent, ok := h.entities[e]; ok {
		return ent.Pose
	}
	return core.Pose{}
}

func (h *Host) SetEntityPose(e core.Handle, pose core.Pose) {
	h.with(e, func(ent *Entity) { ent.Pose = pose })
}

func (h *Host) SetInvincible(e core.Handle, on bool) {
	h.with(e, func(ent *Entity) { ent.Invincible = on })
}

func (h *Host) SetVisiblyDamageable(v core.Handle, on bool) {
	h.with(v, func(ent *Entity) { ent.VisiblyDamageable = on })
}

func (h *Host) SetEngineRunning(v core.Handle, on bool) {
	h.with(v, func(ent *Entity) { ent.EngineRunning = on })
}

func (h *Host) SetRadioOff(v core.Handle) {
	h.with(v, func(ent *Entity) { ent.RadioOff = true })
}

func (h *Host) ClearTasks(p core.Handle) {
	h.with(p, func(ent *Entity) { ent.TasksCleared = true })
}

func (h *Host) SetCanWrithe(p core.Handle, on bool) {
	h.with(p, func(ent *Entity) { ent.CanWrithe = on })
}

func (h *Host) SetIntoDriverSeat(p, v core.Handle) {
	h.with(p, func(ent *Entity) { ent.SeatedIn = v })
}

func (h *Host) SetBlockPermanentEvents(p core.Handle, on bool) {
	h.with(p, func(ent *Entity) { ent.BlockPermanentEvents = on })
}

// PlayerPed is the local player's character.
func (h *Host) PlayerPed() core.Handle {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.playerPed
}

func (h *Host) PlayerVehicle() (core.Handle, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.entities[h.playerVehicle]; !ok {
		return 0, false
	}
	return h.playerVehicle, true
}

func (h *Host) PlayerPose() core.Pose {
	h.mu.Lock()
	defer h.mu.Unlock()
	if ent, ok := h.entities[h.playerVehicle]; ok {
		h.advanceLocked(ent.Handle)
		return ent.Pose
	}
	return h.playerPose
}

func (h *Host) SetPlayerIntoVehicle(v core.Handle) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.entities[v]; ok {
		h.playerVehicle = v
	}
}

// LeaveVehicle puts the player on foot where they are.
func (h *Host) LeaveVehicle() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if ent, ok := h.entities[h.playerVehicle]; ok {
		h.playerPose = ent.Pose
	}
	h.playerVehicle = 0
}

// TeleportPlayer moves the player, and the vehicle they sit in.
func (h *Host) TeleportPlayer(pose core.Pose) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.playerPose = pose
	if ent, ok := h.entities[h.playerVehicle]; ok {
		ent.Pose = pose
	}
	h.teleports = append(h.teleports, pose)
}

// Teleports lists every player teleport in order.
func (h *Host) Teleports() []core.Pose {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]core.Pose, len(h.teleports))
	copy(out, h.teleports)
	return out
}

func (h *Host) SetPlayerControl(on bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.playerControl = on
}

func (h *Host) PlayerControl() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.playerControl
}

// Drive sets the kinematic state the capture sampler will read from v.
func (h *Host) Drive(v core.Handle, pos, velocity, localSpeed core.Vector3, steering float32) {
	h.with(v, func(ent *Entity) {
		ent.Pose.Position = pos
		ent.Velocity = velocity
		ent.LocalSpeed = localSpeed
		ent.Steering = steering
	})
}

// SetHandbrake engages or releases v's handbrake.
func (h *Host) SetHandbrake(v core.Handle, on bool) {
	h.with(v, func(ent *Entity) { ent.Handbrake = on })
}

// SetControl sets an analogue input value.
func (h *Host) SetControl(c capture.Control, value float32) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.controls[c] = value
}

func (h *Host) DrivenVehicle() (core.Handle, bool) {
	return h.PlayerVehicle()
}

func (h *Host) EntityMatrix(v core.Handle) (forward, right, position core.Vector3) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if ent, ok := h.entities[v]; ok {
		return ent.Forward, ent.Right, ent.Pose.Position
	}
	return
}

func (h *Host) Velocity(v core.Handle) core.Vector3 {
	h.mu.Lock()
	defer h.mu.Unlock()
	if ent, ok := h.entities[v]; ok {
		return ent.Velocity
	}
	return core.Vector3{}
}

func (h *Host) LocalSpeed(v core.Handle) core.Vector3 {
	h.mu.Lock()
	defer h.mu.Unlock()
	if ent, ok := h.entities[v]; ok {
		return ent.LocalSpeed
	}
	return core.Vector3{}
}

func (h *Host) SteeringAngle(v core.Handle) float32 {
	h.mu.Lock()
	defer h.mu.Unlock()
	if ent, ok := h.entities[v]; ok {
		return ent.Steering
	}
	return 0
}

func (h *Host) Handbrake(v core.Handle) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if ent, ok := h.entities[v]; ok {
		return ent.Handbrake
	}
	return false
}

func (h *Host) ControlNormal(c capture.Control) float32 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.controls[c]
}
