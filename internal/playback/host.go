package playback

import (
	"time"

	"github.com/RecM/recm/internal/capture"
	"github.com/RecM/recm/pkg/core"
)

// Natives is the host's vehicle recording playback engine.
type Natives interface {
	RequestRecording(id int, name string)
	RecordingLoaded(id int, name string) bool
	RemoveRecording(id int, name string)
	StartPlayback(v core.Handle, id int, name string)
	StopPlayback(v core.Handle)
	PlaybackActive(v core.Handle) bool
	// PlaybackPosition is how far into its recording v currently is.
	PlaybackPosition(v core.Handle) time.Duration
	RecordingDuration(id int, name string) time.Duration
	PositionAt(id int, name string, at time.Duration) core.Vector3
	SetPlaybackSpeed(v core.Handle, speed float32)
}

// World is the host's entity and player surface.
type World interface {
	ModelInCdimage(model uint32) bool
	RequestModel(model uint32)
	ModelLoaded(model uint32) bool
	ReleaseModel(model uint32)

	// SpawnVehicle returns 0 when the host refused to create the vehicle.
	SpawnVehicle(model uint32, pose core.Pose, networked bool) core.Handle
	SpawnPed(model uint32, pose core.Pose) core.Handle
	Exists(h core.Handle) bool
	Delete(h core.Handle)
	// VehicleModel is the display name of v's model, lower case.
	VehicleModel(v core.Handle) string
	EntityPose(h core.Handle) core.Pose
	SetEntityPose(h core.Handle, pose core.Pose)

	SetInvincible(h core.Handle, on bool)
	SetVisiblyDamageable(v core.Handle, on bool)
	SetEngineRunning(v core.Handle, on bool)
	SetRadioOff(v core.Handle)

	ClearTasks(p core.Handle)
	SetCanWrithe(p core.Handle, on bool)
	SetIntoDriverSeat(p, v core.Handle)
	SetBlockPermanentEvents(p core.Handle, on bool)

	// PlayerVehicle is the vehicle the local player is sitting in, if any.
	PlayerVehicle() (core.Handle, bool)
	PlayerPose() core.Pose
	SetPlayerIntoVehicle(v core.Handle)
	TeleportPlayer(pose core.Pose)
	SetPlayerControl(on bool)
}

// Host is everything playback needs from the game.
type Host interface {
	Natives
	World
	capture.VehicleStyle
	capture.PedStyle
}
