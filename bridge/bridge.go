// Package bridge republishes the output of an ORB_SLAM2 tracking engine as
// ROS topics. It feeds the engine camera images, turns every tracked pose
// and every map update into stamped transforms, and keeps the tf tree
// supplied with the latest camera pose.
package bridge

import (
	"bufio"
	"fmt"
	"os"
	"sync"
	"time"

	modular "github.com/edwinhayes/logrus-modular"
	"github.com/pkg/errors"

	"github.com/edwinhayes/orb-slam2-ros/msgs/geometry_msgs"
	"github.com/edwinhayes/orb-slam2-ros/msgs/orb_slam2_msgs"
	"github.com/edwinhayes/orb-slam2-ros/msgs/sensor_msgs"
	"github.com/edwinhayes/orb-slam2-ros/msgs/std_msgs"
	"github.com/edwinhayes/orb-slam2-ros/msgs/std_srvs"
	"github.com/edwinhayes/orb-slam2-ros/msgs/tf2_msgs"
	"github.com/edwinhayes/orb-slam2-ros/ros"
	"github.com/edwinhayes/orb-slam2-ros/slam"
	"github.com/edwinhayes/orb-slam2-ros/transform"
)

const (
	// trajectoryPollPeriod is how often the engine is asked whether a map
	// update rewrote the keyframe trajectory.
	trajectoryPollPeriod = 5 * time.Millisecond
	// tfRate is the republish frequency of the world to camera transform
	// on /tf, deliberately slower than the camera rate so the tf tree is
	// not flooded.
	tfRate = 10.0
)

// Bridge connects a slam.System to the ROS graph.
type Bridge struct {
	node   ros.Node
	engine slam.System
	cfg    Config
	logger *modular.ModuleLogger

	posePub       ros.Publisher
	trajectoryPub ros.Publisher
	vizPub        ros.Publisher
	keyframePub   ros.Publisher
	tfPub         ros.Publisher
	resetSrv      ros.ServiceServer
	subs          []ros.Subscriber

	pairer *stereoPairer

	mu            sync.Mutex
	stopping      bool
	current       transform.Transformation
	haveStamp     bool
	lastStamp     float64
	trajectory    []slam.PoseWithID
	poseSeq       uint32
	trajectorySeq uint32
	vizSeq        uint32
	keyframeSeq   uint32
	tfSeq         uint32

	quit         chan struct{}
	wg           sync.WaitGroup
	shutdownOnce sync.Once
}

// New wires a bridge to the given node and engine. It advertises the output
// topics and the reset service, registers for the engine's pose and keyframe
// callbacks and subscribes to the camera topics the configured sensor needs.
// The trajectory and tf publishers do not run until their Run methods are
// called.
func New(node ros.Node, engine slam.System, cfg Config) *Bridge {
	b := &Bridge{
		node:    node,
		engine:  engine,
		cfg:     cfg,
		logger:  node.Logger(),
		current: transform.Identity(),
		quit:    make(chan struct{}),
	}

	b.posePub = node.NewPublisher("~transform_cam", geometry_msgs.MsgTransformStamped)
	b.trajectoryPub = node.NewPublisher("~trajectory_cam", orb_slam2_msgs.MsgTransformsWithIds)
	b.vizPub = node.NewPublisher("~trajectory_viz", geometry_msgs.MsgPoseArray)
	b.keyframePub = node.NewPublisher("~keyframe_status", orb_slam2_msgs.MsgKeyframeStatus)
	b.tfPub = node.NewPublisher("/tf", tf2_msgs.MsgTFMessage)
	b.resetSrv = node.NewServiceServer("~reset", std_srvs.SrvTrigger, b.onReset)

	engine.SetPoseCallback(b.handlePoseUpdate)
	engine.SetKeyframeCallback(b.handleKeyframeEvent)

	switch cfg.Sensor {
	case slam.Stereo:
		b.pairer = newStereoPairer(stereoSlop, engine.TrackStereo)
		b.subs = append(b.subs,
			node.NewSubscriber("~camera/left/image_raw", sensor_msgs.MsgImage, b.handleLeftImage),
			node.NewSubscriber("~camera/right/image_raw", sensor_msgs.MsgImage, b.handleRightImage))
	default:
		b.subs = append(b.subs,
			node.NewSubscriber("~camera/image_raw", sensor_msgs.MsgImage, b.handleMonoImage))
	}

	return b
}

// addWorker registers a publisher loop with the shutdown wait group, unless
// shutdown already started.
func (b *Bridge) addWorker() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.stopping {
		return false
	}
	b.wg.Add(1)
	return true
}

// RunTrajectoryPublisher polls the engine for rewritten trajectories until
// Shutdown is called or the node stops. Always returns nil; the error result
// makes it usable as an errgroup task.
func (b *Bridge) RunTrajectoryPublisher() error {
	if !b.addWorker() {
		return nil
	}
	defer b.wg.Done()

	ticker := time.NewTicker(trajectoryPollPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-b.quit:
			return nil
		case <-ticker.C:
			if !b.node.OK() {
				return nil
			}
			b.publishUpdatedTrajectory()
		}
	}
}

// RunTFPublisher periodically publishes the held camera pose on /tf until
// Shutdown is called or the node stops. Always returns nil.
func (b *Bridge) RunTFPublisher() error {
	if !b.addWorker() {
		return nil
	}
	defer b.wg.Done()

	rate := ros.NewRate(tfRate)
	for {
		select {
		case <-b.quit:
			return nil
		default:
		}
		if !b.node.OK() {
			return nil
		}
		b.publishCurrentPoseAsTF()
		rate.Sleep()
	}
}

// Shutdown stops the publisher loops, drains a final pending map update out
// of the engine, saves the trajectory if an output path is configured and
// tears the topics down. Only the first call does anything.
func (b *Bridge) Shutdown() error {
	var err error
	b.shutdownOnce.Do(func() {
		b.mu.Lock()
		b.stopping = true
		b.mu.Unlock()
		close(b.quit)
		b.wg.Wait()

		// A map update raised after the poller stopped would otherwise
		// be lost to the export.
		if b.engine.IsUpdatedTrajectoryAvailable() {
			keyframes := b.engine.GetUpdatedTrajectory()
			b.mu.Lock()
			b.trajectory = keyframes
			b.mu.Unlock()
		}
		if b.cfg.TrajectoryOutputPath != "" {
			err = b.exportTrajectory(b.cfg.TrajectoryOutputPath)
		}

		for _, sub := range b.subs {
			sub.Shutdown()
		}
		b.resetSrv.Shutdown()
		b.posePub.Shutdown()
		b.trajectoryPub.Shutdown()
		b.vizPub.Shutdown()
		b.keyframePub.Shutdown()
		b.tfPub.Shutdown()
	})
	return err
}

// handlePoseUpdate runs on the engine's tracking thread for every frame with
// a pose. The stamped transform goes out immediately; the held pose that
// feeds /tf is only replaced when the update is not older than what is held.
func (b *Bridge) handlePoseUpdate(update slam.PoseUpdate) {
	pose, err := worldPose(update.Pose)
	if err != nil {
		logger := *b.logger
		logger.Warnf("dropping pose update: %v", err)
		return
	}

	b.mu.Lock()
	if !b.haveStamp || update.Stamp >= b.lastStamp {
		b.current = pose
		b.lastStamp = update.Stamp
		b.haveStamp = true
	}
	b.poseSeq++
	seq := b.poseSeq
	b.mu.Unlock()

	msg := geometry_msgs.TransformStamped{
		Header: std_msgs.Header{
			Seq:     seq,
			Stamp:   stampFromSec(update.Stamp),
			FrameId: b.cfg.FrameId,
		},
		ChildFrameId: b.cfg.ChildFrameId,
		Transform:    transformMsg(pose),
	}
	b.posePub.Publish(&msg)
}

// handleKeyframeEvent runs on the engine's tracking thread for every frame,
// reporting whether that frame became a keyframe.
func (b *Bridge) handleKeyframeEvent(event slam.KeyframeEvent) {
	b.mu.Lock()
	b.keyframeSeq++
	seq := b.keyframeSeq
	b.mu.Unlock()

	msg := orb_slam2_msgs.KeyframeStatus{
		Header: std_msgs.Header{
			Seq:   seq,
			Stamp: stampFromSec(event.Stamp),
		},
		Status:     event.IsKeyframe,
		KeyframeId: std_msgs.UInt64{Data: event.KeyframeID},
	}
	b.keyframePub.Publish(&msg)
}

// publishUpdatedTrajectory republishes the whole keyframe trajectory when a
// map update rewrote it. Loop closures and bundle adjustment move old
// keyframes, so subscribers always get the full history, even when it is
// empty right after a reset.
func (b *Bridge) publishUpdatedTrajectory() {
	if !b.engine.IsUpdatedTrajectoryAvailable() {
		return
	}
	keyframes := b.engine.GetUpdatedTrajectory()

	b.mu.Lock()
	b.trajectory = keyframes
	b.trajectorySeq++
	trajectorySeq := b.trajectorySeq
	b.vizSeq++
	vizSeq := b.vizSeq
	b.mu.Unlock()

	logger := *b.logger
	logger.Debugf("map update rewrote %d keyframes", len(keyframes))

	msg := orb_slam2_msgs.TransformsWithIds{
		Transforms:  make([]geometry_msgs.TransformStamped, 0, len(keyframes)),
		KeyframeIds: make([]std_msgs.UInt64, 0, len(keyframes)),
	}
	viz := geometry_msgs.PoseArray{
		Header: std_msgs.Header{
			Seq:     vizSeq,
			Stamp:   ros.Now(),
			FrameId: b.cfg.FrameId,
		},
		Poses: make([]geometry_msgs.Pose, 0, len(keyframes)),
	}
	for _, keyframe := range keyframes {
		pose, err := worldPose(keyframe.Pose)
		if err != nil {
			logger.Warnf("dropping keyframe %d from the trajectory: %v", keyframe.ID, err)
			continue
		}
		msg.Transforms = append(msg.Transforms, geometry_msgs.TransformStamped{
			Header: std_msgs.Header{
				Seq:     trajectorySeq,
				Stamp:   stampFromSec(keyframe.Stamp),
				FrameId: b.cfg.FrameId,
			},
			ChildFrameId: b.cfg.ChildFrameId,
			Transform:    transformMsg(pose),
		})
		msg.KeyframeIds = append(msg.KeyframeIds, std_msgs.UInt64{Data: keyframe.ID})
		viz.Poses = append(viz.Poses, poseMsg(pose))
	}
	b.trajectoryPub.Publish(&msg)
	b.vizPub.Publish(&viz)
}

// publishCurrentPoseAsTF publishes the held camera pose, identity until the
// engine produces one, stamped with the wall clock so the transform stays
// fresh for tf consumers even when tracking is lost.
func (b *Bridge) publishCurrentPoseAsTF() {
	b.mu.Lock()
	pose := b.current
	b.tfSeq++
	seq := b.tfSeq
	b.mu.Unlock()

	msg := tf2_msgs.TFMessage{
		Transforms: []geometry_msgs.TransformStamped{{
			Header: std_msgs.Header{
				Seq:     seq,
				Stamp:   ros.Now(),
				FrameId: b.cfg.FrameId,
			},
			ChildFrameId: b.cfg.ChildFrameId,
			Transform:    transformMsg(pose),
		}},
	}
	b.tfPub.Publish(&msg)
}

func (b *Bridge) onReset(srv *std_srvs.Trigger) error {
	logger := *b.logger
	logger.Info("map reset requested")
	b.engine.Reset()

	b.mu.Lock()
	b.current = transform.Identity()
	b.haveStamp = false
	b.lastStamp = 0
	b.trajectory = nil
	b.mu.Unlock()

	srv.Response.Success = true
	srv.Response.Message = "map reset"
	return nil
}

func (b *Bridge) handleMonoImage(msg *sensor_msgs.Image) {
	if frame, ok := b.frameFromImage(msg); ok {
		b.engine.TrackMonocular(frame)
	}
}

func (b *Bridge) handleLeftImage(msg *sensor_msgs.Image) {
	if frame, ok := b.frameFromImage(msg); ok {
		b.pairer.PushLeft(frame)
	}
}

func (b *Bridge) handleRightImage(msg *sensor_msgs.Image) {
	if frame, ok := b.frameFromImage(msg); ok {
		b.pairer.PushRight(frame)
	}
}

// frameFromImage converts an image message into an engine frame. Images in
// encodings the engine cannot convert to grayscale are dropped with a
// warning rather than fed through.
func (b *Bridge) frameFromImage(msg *sensor_msgs.Image) (slam.Frame, bool) {
	switch msg.Encoding {
	case "mono8", "rgb8", "bgr8":
	default:
		logger := *b.logger
		logger.Warnf("dropping image with unsupported encoding %q", msg.Encoding)
		return slam.Frame{}, false
	}
	return slam.Frame{
		Data:     msg.Data,
		Width:    int(msg.Width),
		Height:   int(msg.Height),
		Step:     int(msg.Step),
		Encoding: msg.Encoding,
		Stamp:    msg.Header.Stamp.ToSec(),
	}, true
}

// exportTrajectory writes the last published trajectory in the TUM ground
// truth format, one "stamp tx ty tz qx qy qz qw" line per keyframe, which
// the common evaluation scripts consume directly.
func (b *Bridge) exportTrajectory(path string) error {
	b.mu.Lock()
	keyframes := b.trajectory
	b.mu.Unlock()

	file, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "failed to create trajectory file")
	}
	defer file.Close()

	w := bufio.NewWriter(file)
	for _, keyframe := range keyframes {
		pose, err := worldPose(keyframe.Pose)
		if err != nil {
			continue
		}
		fmt.Fprintf(w, "%.9f %.7f %.7f %.7f %.7f %.7f %.7f %.7f\n",
			keyframe.Stamp,
			pose.Translation.X, pose.Translation.Y, pose.Translation.Z,
			pose.Rotation.Imag, pose.Rotation.Jmag, pose.Rotation.Kmag, pose.Rotation.Real)
	}
	if err := w.Flush(); err != nil {
		return errors.Wrap(err, "failed to write trajectory file")
	}

	logger := *b.logger
	logger.Infof("saved %d keyframes to %s", len(keyframes), path)
	return nil
}
