// Package fake carries a deterministic simulated SLAM engine. It traces a
// circle, promotes every Nth tracked frame to a keyframe and periodically
// rewrites the stored trajectory the way a loop closure would. That is
// enough to develop and test the bridge without a camera or a real engine.
package fake

import (
	"math"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/edwinhayes/orb-slam2-ros/slam"
)

// Config parameterizes the simulated trajectory. Zero values fall back to
// the defaults.
type Config struct {
	// Radius of the circular path in meters.
	Radius float64
	// AngularVelocity along the path in radians per second.
	AngularVelocity float64
	// KeyframeEvery promotes every Nth tracked frame to a keyframe.
	KeyframeEvery int
	// LoopClosureEvery rewrites the trajectory after every Nth keyframe.
	LoopClosureEvery int
	// DriftPerKeyframe is the angular error a loop closure corrects.
	DriftPerKeyframe float64
	// FrameRate, when positive, starts an internal clock that tracks
	// synthetic frames so the engine runs without anybody feeding images.
	FrameRate float64
}

const (
	defaultRadius           = 5.0
	defaultAngularVelocity  = 0.2
	defaultKeyframeEvery    = 5
	defaultLoopClosureEvery = 12
	defaultDriftPerKeyframe = 0.002
)

type keyframe struct {
	id    uint64
	theta float64
	drift float64
	stamp float64
}

// System fabricates poses instead of tracking them. It satisfies
// slam.System.
type System struct {
	cfg Config

	mu         sync.Mutex
	state      slam.TrackingState
	frames     int
	start      float64
	keyframes  []keyframe
	nextID     uint64
	updated    bool
	down       bool
	poseCb     func(slam.PoseUpdate)
	keyframeCb func(slam.KeyframeEvent)

	quit chan struct{}
	wg   sync.WaitGroup
}

// New returns a simulated engine. With cfg.FrameRate set the internal
// clock starts immediately; otherwise the engine only advances when frames
// are fed to it.
func New(cfg Config) *System {
	if cfg.Radius == 0 {
		cfg.Radius = defaultRadius
	}
	if cfg.AngularVelocity == 0 {
		cfg.AngularVelocity = defaultAngularVelocity
	}
	if cfg.KeyframeEvery == 0 {
		cfg.KeyframeEvery = defaultKeyframeEvery
	}
	if cfg.LoopClosureEvery == 0 {
		cfg.LoopClosureEvery = defaultLoopClosureEvery
	}
	if cfg.DriftPerKeyframe == 0 {
		cfg.DriftPerKeyframe = defaultDriftPerKeyframe
	}
	sys := &System{
		cfg:   cfg,
		state: slam.NoImagesYet,
		quit:  make(chan struct{}),
	}
	if cfg.FrameRate > 0 {
		sys.wg.Add(1)
		go sys.clock()
	}
	return sys
}

func (s *System) clock() {
	defer s.wg.Done()
	ticker := time.NewTicker(time.Duration(float64(time.Second) / s.cfg.FrameRate))
	defer ticker.Stop()
	for {
		select {
		case <-s.quit:
			return
		case now := <-ticker.C:
			s.step(float64(now.UnixNano()) / 1e9)
		}
	}
}

// TrackMonocular feeds one frame; only its stamp matters to the simulation.
func (s *System) TrackMonocular(frame slam.Frame) {
	s.step(frame.Stamp)
}

// TrackStereo feeds a stereo pair; the left stamp drives the simulation.
func (s *System) TrackStereo(left slam.Frame, right slam.Frame) {
	s.step(left.Stamp)
}

func (s *System) step(stamp float64) {
	s.mu.Lock()
	if s.down {
		s.mu.Unlock()
		return
	}
	if s.frames == 0 {
		s.start = stamp
		s.state = slam.NotInitialized
	}
	s.frames++

	theta := s.cfg.AngularVelocity * (stamp - s.start)
	drift := s.cfg.DriftPerKeyframe * float64(len(s.keyframes))
	pose := circlePose(s.cfg.Radius, theta+drift)

	isKeyframe := (s.frames-1)%s.cfg.KeyframeEvery == 0
	if isKeyframe {
		s.keyframes = append(s.keyframes, keyframe{
			id:    s.nextID,
			theta: theta,
			drift: drift,
			stamp: stamp,
		})
		s.nextID++
		s.updated = true
		if len(s.keyframes) >= 2 {
			s.state = slam.TrackingOK
		}
		if len(s.keyframes)%s.cfg.LoopClosureEvery == 0 {
			// A closure pulls the accumulated drift back out of the
			// stored trajectory.
			for i := range s.keyframes {
				s.keyframes[i].drift = 0
			}
		}
	}
	var lastID uint64
	if n := len(s.keyframes); n > 0 {
		lastID = s.keyframes[n-1].id
	}
	poseCb, keyframeCb := s.poseCb, s.keyframeCb
	s.mu.Unlock()

	if poseCb != nil {
		poseCb(slam.PoseUpdate{Pose: pose, Stamp: stamp})
	}
	if keyframeCb != nil {
		keyframeCb(slam.KeyframeEvent{Stamp: stamp, IsKeyframe: isKeyframe, KeyframeID: lastID})
	}
}

// State reports the simulated tracking state.
func (s *System) State() slam.TrackingState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// IsUpdatedTrajectoryAvailable reports whether the keyframe trajectory
// changed since the last fetch.
func (s *System) IsUpdatedTrajectoryAvailable() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updated
}

// GetUpdatedTrajectory returns the keyframe trajectory and clears the
// updated flag.
func (s *System) GetUpdatedTrajectory() []slam.PoseWithID {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updated = false
	trajectory := make([]slam.PoseWithID, len(s.keyframes))
	for i, kf := range s.keyframes {
		trajectory[i] = slam.PoseWithID{
			Pose:  circlePose(s.cfg.Radius, kf.theta+kf.drift),
			Stamp: kf.stamp,
			ID:    kf.id,
		}
	}
	return trajectory
}

// SetPoseCallback registers the per frame pose callback.
func (s *System) SetPoseCallback(cb func(slam.PoseUpdate)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.poseCb = cb
}

// SetKeyframeCallback registers the per frame keyframe status callback.
func (s *System) SetKeyframeCallback(cb func(slam.KeyframeEvent)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keyframeCb = cb
}

// Reset clears the simulated map and starts tracking over.
func (s *System) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.down {
		return
	}
	s.state = slam.NoImagesYet
	s.frames = 0
	s.keyframes = nil
	s.nextID = 0
	s.updated = false
}

// Shutdown stops the internal clock. Further frames are ignored.
func (s *System) Shutdown() error {
	s.mu.Lock()
	if s.down {
		s.mu.Unlock()
		return errors.New("engine already shut down")
	}
	s.down = true
	s.state = slam.SystemNotReady
	s.mu.Unlock()
	close(s.quit)
	s.wg.Wait()
	return nil
}

// circlePose is the camera from world transform of a camera sitting on a
// circle at angle theta, heading along the tangent.
func circlePose(radius, theta float64) slam.PoseMatrix {
	yaw := theta + math.Pi/2
	c, s := math.Cos(yaw), math.Sin(yaw)
	px, py := radius*math.Cos(theta), radius*math.Sin(theta)
	return slam.PoseMatrix{
		c, s, 0, -(c*px + s*py),
		-s, c, 0, s*px - c*py,
		0, 0, 1, 0,
		0, 0, 0, 1,
	}
}
