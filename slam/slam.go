// Package slam defines the surface between the node and a visual SLAM
// engine: the pose and keyframe types an engine produces and the System
// interface the bridge drives. Production engines are bound out of tree;
// the fake subpackage carries a simulated one.
package slam

// PoseMatrix is a row major 4x4 homogeneous transform, camera from world
// (T_C_W), the convention the tracking engine estimates in.
type PoseMatrix [16]float64

// IdentityPose returns the identity pose matrix.
func IdentityPose() PoseMatrix {
	return PoseMatrix{
		1, 0, 0, 0,
		0, 1, 0, 0,
		0, 0, 1, 0,
		0, 0, 0, 1,
	}
}

// PoseWithID is one keyframe pose of the engine trajectory.
type PoseWithID struct {
	Pose  PoseMatrix
	Stamp float64 // seconds since the unix epoch
	ID    uint64
}

// PoseUpdate is delivered through the pose callback on every tracked frame.
type PoseUpdate struct {
	Pose  PoseMatrix
	Stamp float64
}

// KeyframeEvent reports whether a tracked frame was promoted to a keyframe.
// KeyframeID is the most recent keyframe either way.
type KeyframeEvent struct {
	Stamp      float64
	IsKeyframe bool
	KeyframeID uint64
}

// TrackingState mirrors the engine tracking state machine.
type TrackingState int

const (
	SystemNotReady TrackingState = iota - 1
	NoImagesYet
	NotInitialized
	TrackingOK
	TrackingLost
)

func (s TrackingState) String() string {
	switch s {
	case SystemNotReady:
		return "system not ready"
	case NoImagesYet:
		return "no images yet"
	case NotInitialized:
		return "not initialized"
	case TrackingOK:
		return "ok"
	case TrackingLost:
		return "lost"
	}
	return "unknown"
}

// Frame is one camera image handed to an engine.
type Frame struct {
	Data     []byte
	Width    int
	Height   int
	Step     int
	Encoding string
	Stamp    float64
}

// System is the engine the bridge drives. Implementations must be safe for
// concurrent use: tracking, polling and callback delivery overlap.
type System interface {
	// TrackMonocular feeds one monocular frame to the engine.
	TrackMonocular(frame Frame)
	// TrackStereo feeds one rectified stereo pair to the engine.
	TrackStereo(left Frame, right Frame)
	// State reports the current tracking state.
	State() TrackingState
	// IsUpdatedTrajectoryAvailable reports whether the keyframe trajectory
	// changed since the last GetUpdatedTrajectory call.
	IsUpdatedTrajectoryAvailable() bool
	// GetUpdatedTrajectory returns the full keyframe trajectory and clears
	// the updated flag.
	GetUpdatedTrajectory() []PoseWithID
	// SetPoseCallback registers the per frame pose callback.
	SetPoseCallback(cb func(PoseUpdate))
	// SetKeyframeCallback registers the per frame keyframe status callback.
	SetKeyframeCallback(cb func(KeyframeEvent))
	// Reset clears the map and restarts tracking.
	Reset()
	// Shutdown stops the engine. No callbacks fire afterwards.
	Shutdown() error
}
