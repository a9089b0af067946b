package fake

import (
	"math"
	"testing"
	"time"

	"github.com/edwinhayes/orb-slam2-ros/slam"
)

func feedFrames(sys *System, n int, dt float64) {
	for i := 0; i < n; i++ {
		sys.TrackMonocular(slam.Frame{Stamp: float64(i) * dt})
	}
}

func TestKeyframePromotion(t *testing.T) {
	sys := New(Config{KeyframeEvery: 2, LoopClosureEvery: 1000})
	defer sys.Shutdown()

	var events []slam.KeyframeEvent
	sys.SetKeyframeCallback(func(ev slam.KeyframeEvent) {
		events = append(events, ev)
	})

	feedFrames(sys, 4, 0.1)

	if len(events) != 4 {
		t.Fatal(len(events))
	}
	// Frames 0 and 2 become keyframes with ids 0 and 1.
	expected := []struct {
		isKeyframe bool
		id         uint64
	}{
		{true, 0}, {false, 0}, {true, 1}, {false, 1},
	}
	for i, ev := range events {
		if ev.IsKeyframe != expected[i].isKeyframe || ev.KeyframeID != expected[i].id {
			t.Error(i, ev)
		}
	}
}

func TestTrajectoryFlag(t *testing.T) {
	sys := New(Config{KeyframeEvery: 1, LoopClosureEvery: 1000})
	defer sys.Shutdown()

	if sys.IsUpdatedTrajectoryAvailable() {
		t.Fail()
	}
	feedFrames(sys, 3, 0.1)
	if !sys.IsUpdatedTrajectoryAvailable() {
		t.Fail()
	}

	trajectory := sys.GetUpdatedTrajectory()
	if len(trajectory) != 3 {
		t.Fatal(len(trajectory))
	}
	if sys.IsUpdatedTrajectoryAvailable() {
		t.Fail()
	}
	for i, pose := range trajectory {
		if pose.ID != uint64(i) {
			t.Error(i, pose.ID)
		}
		if math.Abs(pose.Stamp-float64(i)*0.1) > 1e-12 {
			t.Error(i, pose.Stamp)
		}
	}
}

func TestPoseCallback(t *testing.T) {
	sys := New(Config{KeyframeEvery: 1, LoopClosureEvery: 1000, AngularVelocity: 1.0, Radius: 2.0})
	defer sys.Shutdown()

	var updates []slam.PoseUpdate
	sys.SetPoseCallback(func(u slam.PoseUpdate) {
		updates = append(updates, u)
	})

	sys.TrackMonocular(slam.Frame{Stamp: 100.0})
	if len(updates) != 1 {
		t.Fatal(len(updates))
	}
	// First frame sits at theta zero: position (radius, 0), yaw 90 degrees.
	pose := updates[0].Pose
	want := slam.PoseMatrix{
		0, 1, 0, 0,
		-1, 0, 0, 2,
		0, 0, 1, 0,
		0, 0, 0, 1,
	}
	for i := range pose {
		if math.Abs(pose[i]-want[i]) > 1e-12 {
			t.Errorf("pose[%d] = %v, want %v", i, pose[i], want[i])
		}
	}
}

func TestLoopClosureRemovesDrift(t *testing.T) {
	sys := New(Config{KeyframeEvery: 1, LoopClosureEvery: 3, DriftPerKeyframe: 0.1})
	defer sys.Shutdown()

	feedFrames(sys, 2, 0.1)
	before := sys.GetUpdatedTrajectory()

	sys.TrackMonocular(slam.Frame{Stamp: 0.2})
	after := sys.GetUpdatedTrajectory()

	if len(before) != 2 || len(after) != 3 {
		t.Fatal(len(before), len(after))
	}
	// The second keyframe was stored with drift, the closure removed it.
	if before[1].Pose == after[1].Pose {
		t.Error("expected the closure to rewrite the second keyframe")
	}
	clean := circlePose(sys.cfg.Radius, sys.cfg.AngularVelocity*0.1)
	if after[1].Pose != clean {
		t.Error(after[1].Pose)
	}
}

func TestReset(t *testing.T) {
	sys := New(Config{KeyframeEvery: 1, LoopClosureEvery: 1000})
	defer sys.Shutdown()

	feedFrames(sys, 5, 0.1)
	if sys.State() != slam.TrackingOK {
		t.Error(sys.State())
	}

	sys.Reset()
	if sys.State() != slam.NoImagesYet {
		t.Error(sys.State())
	}
	if sys.IsUpdatedTrajectoryAvailable() {
		t.Fail()
	}
	if len(sys.GetUpdatedTrajectory()) != 0 {
		t.Fail()
	}
	// Ids restart after a reset.
	var ev slam.KeyframeEvent
	sys.SetKeyframeCallback(func(e slam.KeyframeEvent) { ev = e })
	sys.TrackMonocular(slam.Frame{Stamp: 1.0})
	if !ev.IsKeyframe || ev.KeyframeID != 0 {
		t.Error(ev)
	}
}

func TestShutdown(t *testing.T) {
	sys := New(Config{})
	if err := sys.Shutdown(); err != nil {
		t.Error(err)
	}
	if err := sys.Shutdown(); err == nil {
		t.Fail()
	}
	if sys.State() != slam.SystemNotReady {
		t.Error(sys.State())
	}

	fired := false
	sys.SetPoseCallback(func(slam.PoseUpdate) { fired = true })
	sys.TrackMonocular(slam.Frame{Stamp: 1.0})
	if fired {
		t.Fail()
	}
}

func TestFreeRunning(t *testing.T) {
	sys := New(Config{KeyframeEvery: 1, LoopClosureEvery: 1000, FrameRate: 200})
	defer sys.Shutdown()

	keyframes := make(chan slam.KeyframeEvent, 1)
	sys.SetKeyframeCallback(func(ev slam.KeyframeEvent) {
		if ev.IsKeyframe {
			select {
			case keyframes <- ev:
			default:
			}
		}
	})

	select {
	case <-keyframes:
	case <-time.After(5 * time.Second):
		t.Fatal("internal clock produced no keyframes")
	}
}
