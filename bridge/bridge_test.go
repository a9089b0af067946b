package bridge

import (
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	modular "github.com/edwinhayes/logrus-modular"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/edwinhayes/orb-slam2-ros/msgs/geometry_msgs"
	"github.com/edwinhayes/orb-slam2-ros/msgs/orb_slam2_msgs"
	"github.com/edwinhayes/orb-slam2-ros/msgs/sensor_msgs"
	"github.com/edwinhayes/orb-slam2-ros/msgs/std_srvs"
	"github.com/edwinhayes/orb-slam2-ros/msgs/tf2_msgs"
	"github.com/edwinhayes/orb-slam2-ros/ros"
	"github.com/edwinhayes/orb-slam2-ros/slam"
	"github.com/edwinhayes/orb-slam2-ros/slam/fake"
)

type stubPublisher struct {
	mu        sync.Mutex
	published []ros.Message
	down      bool
}

func (p *stubPublisher) Publish(msg ros.Message) {
	p.mu.Lock()
	p.published = append(p.published, msg)
	p.mu.Unlock()
}

func (p *stubPublisher) Shutdown() {
	p.mu.Lock()
	p.down = true
	p.mu.Unlock()
}

func (p *stubPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.published)
}

func (p *stubPublisher) last() ros.Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.published[len(p.published)-1]
}

type stubSubscriber struct{ down bool }

func (s *stubSubscriber) GetNumPublishers() int { return 0 }
func (s *stubSubscriber) Shutdown()             { s.down = true }

type stubServiceServer struct{ down bool }

func (s *stubServiceServer) Shutdown() { s.down = true }

// stubNode records what the bridge registers so tests can inspect the
// publishers and drive the subscriber callbacks directly.
type stubNode struct {
	logger modular.ModuleLogger
	params map[string]interface{}
	pubs   map[string]*stubPublisher
	subs   map[string]interface{}
	srvs   map[string]interface{}
}

func newStubNode() *stubNode {
	root := logrus.New()
	root.SetLevel(logrus.FatalLevel)
	return &stubNode{
		logger: modular.NewRootLogger(root),
		params: make(map[string]interface{}),
		pubs:   make(map[string]*stubPublisher),
		subs:   make(map[string]interface{}),
		srvs:   make(map[string]interface{}),
	}
}

func (n *stubNode) NewPublisher(topic string, msgType ros.MessageType) ros.Publisher {
	pub := &stubPublisher{}
	n.pubs[topic] = pub
	return pub
}

func (n *stubNode) NewPublisherWithCallbacks(topic string, msgType ros.MessageType,
	connect, disconnect func(ros.SingleSubscriberPublisher)) ros.Publisher {
	return n.NewPublisher(topic, msgType)
}

func (n *stubNode) NewSubscriber(topic string, msgType ros.MessageType, callback interface{}) ros.Subscriber {
	n.subs[topic] = callback
	return &stubSubscriber{}
}

func (n *stubNode) NewServiceClient(service string, srvType ros.ServiceType) ros.ServiceClient {
	return nil
}

func (n *stubNode) NewServiceServer(service string, srvType ros.ServiceType, callback interface{}) ros.ServiceServer {
	n.srvs[service] = callback
	return &stubServiceServer{}
}

func (n *stubNode) RemovePublisher(topic string)  { delete(n.pubs, topic) }
func (n *stubNode) RemoveSubscriber(topic string) { delete(n.subs, topic) }

func (n *stubNode) GetPublishedTopics(subgraph string) ([]interface{}, error) { return nil, nil }
func (n *stubNode) GetTopicTypes() ([]interface{}, error)                     { return nil, nil }

func (n *stubNode) OK() bool  { return true }
func (n *stubNode) SpinOnce() {}
func (n *stubNode) Spin()     {}
func (n *stubNode) Shutdown() {}

func (n *stubNode) GetParam(name string) (interface{}, error) {
	value, ok := n.params[name]
	if !ok {
		return nil, errors.Errorf("parameter %s is not set", name)
	}
	return value, nil
}

func (n *stubNode) SetParam(name string, value interface{}) error {
	n.params[name] = value
	return nil
}

func (n *stubNode) HasParam(name string) (bool, error) {
	_, ok := n.params[name]
	return ok, nil
}

func (n *stubNode) SearchParam(name string) (string, error) { return name, nil }

func (n *stubNode) DeleteParam(name string) error {
	delete(n.params, name)
	return nil
}

func (n *stubNode) Name() string                      { return "/test_node" }
func (n *stubNode) Logger() *modular.ModuleLogger     { return &n.logger }
func (n *stubNode) SetLogSeverity(level logrus.Level) {}
func (n *stubNode) NonRosArgs() []string              { return nil }

func (n *stubNode) pub(t *testing.T, topic string) *stubPublisher {
	t.Helper()
	pub, ok := n.pubs[topic]
	if !ok {
		t.Fatalf("no publisher advertised on %s", topic)
	}
	return pub
}

// stubEngine is a scriptable slam.System for driving the bridge from tests.
type stubEngine struct {
	mu          sync.Mutex
	state       slam.TrackingState
	updated     bool
	trajectory  []slam.PoseWithID
	monoFrames  int
	stereoPairs int
	resets      int
	poseCb      func(slam.PoseUpdate)
	keyframeCb  func(slam.KeyframeEvent)
}

func (e *stubEngine) TrackMonocular(frame slam.Frame) {
	e.mu.Lock()
	e.monoFrames++
	e.mu.Unlock()
}

func (e *stubEngine) TrackStereo(left slam.Frame, right slam.Frame) {
	e.mu.Lock()
	e.stereoPairs++
	e.mu.Unlock()
}

func (e *stubEngine) State() slam.TrackingState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

func (e *stubEngine) IsUpdatedTrajectoryAvailable() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.updated
}

func (e *stubEngine) GetUpdatedTrajectory() []slam.PoseWithID {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.updated = false
	return e.trajectory
}

func (e *stubEngine) SetPoseCallback(cb func(slam.PoseUpdate))        { e.poseCb = cb }
func (e *stubEngine) SetKeyframeCallback(cb func(slam.KeyframeEvent)) { e.keyframeCb = cb }

func (e *stubEngine) Reset() {
	e.mu.Lock()
	e.resets++
	e.trajectory = nil
	e.mu.Unlock()
}

func (e *stubEngine) Shutdown() error { return nil }

func (e *stubEngine) setTrajectory(keyframes []slam.PoseWithID) {
	e.mu.Lock()
	e.trajectory = keyframes
	e.updated = true
	e.mu.Unlock()
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.FrameId = "map"
	cfg.ChildFrameId = "camera"
	return cfg
}

func near(a float64, b float64) bool {
	return math.Abs(a-b) <= 1e-9
}

func translatedPose(x float64, y float64, z float64) slam.PoseMatrix {
	pose := slam.IdentityPose()
	pose[3] = x
	pose[7] = y
	pose[11] = z
	return pose
}

func monoImage(stamp float64, encoding string) *sensor_msgs.Image {
	img := sensor_msgs.Image{
		Height:   2,
		Width:    2,
		Encoding: encoding,
		Step:     2,
		Data:     []uint8{0, 1, 2, 3},
	}
	img.Header.Stamp = ros.NewTime(uint32(stamp), uint32((stamp-math.Floor(stamp))*1e9))
	return &img
}

func TestPosePublishing(t *testing.T) {
	node := newStubNode()
	engine := fake.New(fake.Config{Radius: 2})
	bridge := New(node, engine, testConfig())
	defer bridge.Shutdown()

	feed, ok := node.subs["~camera/image_raw"].(func(*sensor_msgs.Image))
	if !ok {
		t.Fatalf("monocular image callback has the wrong signature")
	}
	feed(monoImage(100.5, "mono8"))

	pub := node.pub(t, "~transform_cam")
	if pub.count() != 1 {
		t.Fatalf("Expected 1 transform message, got %d", pub.count())
	}
	msg, ok := pub.last().(*geometry_msgs.TransformStamped)
	if !ok {
		t.Fatalf("Expected a TransformStamped, got %T", pub.last())
	}
	if msg.Header.Seq != 1 {
		t.Errorf("Expected seq 1, got %d", msg.Header.Seq)
	}
	if msg.Header.Stamp.Sec != 100 || msg.Header.Stamp.NSec != 500000000 {
		t.Errorf("Wrong stamp: %d.%d", msg.Header.Stamp.Sec, msg.Header.Stamp.NSec)
	}
	if msg.Header.FrameId != "map" || msg.ChildFrameId != "camera" {
		t.Errorf("Wrong frames: %s -> %s", msg.Header.FrameId, msg.ChildFrameId)
	}
	// The engine starts on a circle of radius 2 at angle zero, so the
	// camera sits at (2, 0, 0) looking along the circle, a 90 degree yaw.
	if !near(msg.Transform.Translation.X, 2) ||
		!near(msg.Transform.Translation.Y, 0) ||
		!near(msg.Transform.Translation.Z, 0) {
		t.Errorf("Wrong translation: %+v", msg.Transform.Translation)
	}
	half := math.Sqrt2 / 2
	if !near(msg.Transform.Rotation.W, half) || !near(msg.Transform.Rotation.Z, half) ||
		!near(msg.Transform.Rotation.X, 0) || !near(msg.Transform.Rotation.Y, 0) {
		t.Errorf("Wrong rotation: %+v", msg.Transform.Rotation)
	}
}

func TestKeyframeStatusPublishing(t *testing.T) {
	node := newStubNode()
	engine := fake.New(fake.Config{KeyframeEvery: 2})
	bridge := New(node, engine, testConfig())
	defer bridge.Shutdown()

	feed := node.subs["~camera/image_raw"].(func(*sensor_msgs.Image))
	feed(monoImage(10.0, "mono8"))
	feed(monoImage(10.1, "mono8"))

	pub := node.pub(t, "~keyframe_status")
	if pub.count() != 2 {
		t.Fatalf("Expected 2 status messages, got %d", pub.count())
	}
	first, ok := pub.published[0].(*orb_slam2_msgs.KeyframeStatus)
	if !ok {
		t.Fatalf("Expected a KeyframeStatus, got %T", pub.published[0])
	}
	if !first.Status || first.KeyframeId.Data != 0 {
		t.Errorf("Expected first frame to be keyframe 0, got status=%v id=%d",
			first.Status, first.KeyframeId.Data)
	}
	second := pub.published[1].(*orb_slam2_msgs.KeyframeStatus)
	if second.Status {
		t.Errorf("Expected second frame not to be a keyframe")
	}
	if second.KeyframeId.Data != 0 {
		t.Errorf("Expected the last keyframe id 0, got %d", second.KeyframeId.Data)
	}
	if second.Header.Stamp.Sec != 10 {
		t.Errorf("Wrong stamp: %d.%d", second.Header.Stamp.Sec, second.Header.Stamp.NSec)
	}
}

func TestTrajectoryPublishing(t *testing.T) {
	node := newStubNode()
	engine := &stubEngine{}
	bridge := New(node, engine, testConfig())
	defer bridge.Shutdown()

	engine.setTrajectory([]slam.PoseWithID{
		{Pose: slam.IdentityPose(), Stamp: 1.5, ID: 7},
		{Pose: translatedPose(1, 2, 3), Stamp: 2.5, ID: 9},
	})
	bridge.publishUpdatedTrajectory()

	pub := node.pub(t, "~trajectory_cam")
	if pub.count() != 1 {
		t.Fatalf("Expected 1 trajectory message, got %d", pub.count())
	}
	msg := pub.last().(*orb_slam2_msgs.TransformsWithIds)
	if len(msg.Transforms) != 2 || len(msg.KeyframeIds) != 2 {
		t.Fatalf("Expected 2 keyframes, got %d transforms and %d ids",
			len(msg.Transforms), len(msg.KeyframeIds))
	}
	if msg.KeyframeIds[0].Data != 7 || msg.KeyframeIds[1].Data != 9 {
		t.Errorf("Wrong keyframe ids: %v", msg.KeyframeIds)
	}
	if msg.Transforms[0].Header.Stamp.Sec != 1 || msg.Transforms[0].Header.Stamp.NSec != 500000000 {
		t.Errorf("Wrong keyframe stamp: %+v", msg.Transforms[0].Header.Stamp)
	}
	if msg.Transforms[0].Header.FrameId != "map" || msg.Transforms[0].ChildFrameId != "camera" {
		t.Errorf("Wrong frames on trajectory transform")
	}
	// The second keyframe holds the world at (1, 2, 3) in camera
	// coordinates, so the camera sits at (-1, -2, -3) in the world.
	second := msg.Transforms[1].Transform
	if !near(second.Translation.X, -1) || !near(second.Translation.Y, -2) ||
		!near(second.Translation.Z, -3) {
		t.Errorf("Wrong inverted translation: %+v", second.Translation)
	}
	if !near(second.Rotation.W, 1) {
		t.Errorf("Wrong rotation: %+v", second.Rotation)
	}

	viz := node.pub(t, "~trajectory_viz")
	if viz.count() != 1 {
		t.Fatalf("Expected 1 pose array, got %d", viz.count())
	}
	poses := viz.last().(*geometry_msgs.PoseArray)
	if len(poses.Poses) != 2 {
		t.Errorf("Expected 2 poses, got %d", len(poses.Poses))
	}
	if poses.Header.FrameId != "map" {
		t.Errorf("Wrong pose array frame: %s", poses.Header.FrameId)
	}

	// The engine flag was cleared by the fetch, so nothing new goes out.
	bridge.publishUpdatedTrajectory()
	if pub.count() != 1 || viz.count() != 1 {
		t.Errorf("Expected no republish without a new map update")
	}
}

func TestEmptyTrajectoryPublished(t *testing.T) {
	node := newStubNode()
	engine := &stubEngine{}
	bridge := New(node, engine, testConfig())
	defer bridge.Shutdown()

	engine.setTrajectory(nil)
	bridge.publishUpdatedTrajectory()

	pub := node.pub(t, "~trajectory_cam")
	if pub.count() != 1 {
		t.Fatalf("Expected an empty trajectory to be published, got %d messages", pub.count())
	}
	msg := pub.last().(*orb_slam2_msgs.TransformsWithIds)
	if len(msg.Transforms) != 0 || len(msg.KeyframeIds) != 0 {
		t.Errorf("Expected empty arrays, got %d transforms and %d ids",
			len(msg.Transforms), len(msg.KeyframeIds))
	}
}

func TestTFBeforeFirstPose(t *testing.T) {
	node := newStubNode()
	bridge := New(node, &stubEngine{}, testConfig())
	defer bridge.Shutdown()

	bridge.publishCurrentPoseAsTF()

	pub := node.pub(t, "/tf")
	if pub.count() != 1 {
		t.Fatalf("Expected 1 tf message, got %d", pub.count())
	}
	msg := pub.last().(*tf2_msgs.TFMessage)
	if len(msg.Transforms) != 1 {
		t.Fatalf("Expected 1 transform in the tf message, got %d", len(msg.Transforms))
	}
	tf := msg.Transforms[0]
	if tf.Header.FrameId != "map" || tf.ChildFrameId != "camera" {
		t.Errorf("Wrong frames: %s -> %s", tf.Header.FrameId, tf.ChildFrameId)
	}
	if !near(tf.Transform.Rotation.W, 1) || !near(tf.Transform.Translation.X, 0) ||
		!near(tf.Transform.Translation.Y, 0) || !near(tf.Transform.Translation.Z, 0) {
		t.Errorf("Expected the identity before the first pose, got %+v", tf.Transform)
	}
	if tf.Header.Stamp.IsZero() {
		t.Errorf("Expected a wall clock stamp")
	}
}

func TestTFHoldsNewestPose(t *testing.T) {
	node := newStubNode()
	engine := &stubEngine{}
	bridge := New(node, engine, testConfig())
	defer bridge.Shutdown()

	engine.poseCb(slam.PoseUpdate{Pose: translatedPose(1, 2, 3), Stamp: 10})
	// An out of order update must not win over the newer held pose.
	engine.poseCb(slam.PoseUpdate{Pose: translatedPose(9, 9, 9), Stamp: 5})

	if got := node.pub(t, "~transform_cam").count(); got != 2 {
		t.Fatalf("Expected both updates republished, got %d", got)
	}

	bridge.publishCurrentPoseAsTF()
	msg := node.pub(t, "/tf").last().(*tf2_msgs.TFMessage)
	translation := msg.Transforms[0].Transform.Translation
	if !near(translation.X, -1) || !near(translation.Y, -2) || !near(translation.Z, -3) {
		t.Errorf("Expected tf to hold the newest pose, got %+v", translation)
	}
}

func TestResetService(t *testing.T) {
	node := newStubNode()
	engine := &stubEngine{}
	bridge := New(node, engine, testConfig())
	defer bridge.Shutdown()

	if _, ok := node.srvs["~reset"].(func(*std_srvs.Trigger) error); !ok {
		t.Fatalf("reset service callback has the wrong signature")
	}

	engine.poseCb(slam.PoseUpdate{Pose: translatedPose(1, 2, 3), Stamp: 10})

	var srv std_srvs.Trigger
	if err := bridge.onReset(&srv); err != nil {
		t.Fatalf("Failed to reset: %s", err)
	}
	if !srv.Response.Success {
		t.Errorf("Expected a successful reset")
	}
	if engine.resets != 1 {
		t.Errorf("Expected the engine to be reset once, got %d", engine.resets)
	}

	bridge.publishCurrentPoseAsTF()
	msg := node.pub(t, "/tf").last().(*tf2_msgs.TFMessage)
	if !near(msg.Transforms[0].Transform.Rotation.W, 1) ||
		!near(msg.Transforms[0].Transform.Translation.X, 0) {
		t.Errorf("Expected tf back at the identity after a reset")
	}
}

func TestUnsupportedEncodingDropped(t *testing.T) {
	node := newStubNode()
	engine := &stubEngine{}
	bridge := New(node, engine, testConfig())
	defer bridge.Shutdown()

	feed := node.subs["~camera/image_raw"].(func(*sensor_msgs.Image))
	feed(monoImage(1.0, "yuv422"))
	if engine.monoFrames != 0 {
		t.Errorf("Expected an unsupported encoding to be dropped")
	}
	feed(monoImage(1.0, "mono8"))
	if engine.monoFrames != 1 {
		t.Errorf("Expected a mono8 image to be tracked, got %d frames", engine.monoFrames)
	}
}

func TestStereoPairsFedToEngine(t *testing.T) {
	node := newStubNode()
	engine := &stubEngine{}
	cfg := testConfig()
	cfg.Sensor = slam.Stereo
	bridge := New(node, engine, cfg)
	defer bridge.Shutdown()

	if _, ok := node.subs["~camera/image_raw"]; ok {
		t.Fatalf("Expected no monocular subscription in stereo mode")
	}
	left := node.subs["~camera/left/image_raw"].(func(*sensor_msgs.Image))
	right := node.subs["~camera/right/image_raw"].(func(*sensor_msgs.Image))

	left(monoImage(5.0, "mono8"))
	if engine.stereoPairs != 0 {
		t.Fatalf("Expected no pair from a single eye")
	}
	right(monoImage(5.001, "mono8"))
	if engine.stereoPairs != 1 {
		t.Errorf("Expected 1 stereo pair, got %d", engine.stereoPairs)
	}
}

func TestShutdownExportsTrajectory(t *testing.T) {
	node := newStubNode()
	engine := &stubEngine{}
	cfg := testConfig()
	cfg.TrajectoryOutputPath = filepath.Join(t.TempDir(), "keyframes.txt")
	bridge := New(node, engine, cfg)

	// The update arrives after the poller stopped; Shutdown drains it.
	engine.setTrajectory([]slam.PoseWithID{
		{Pose: translatedPose(1, 0, 0), Stamp: 1.5, ID: 0},
		{Pose: translatedPose(2, 0, 0), Stamp: 2.5, ID: 1},
	})
	if err := bridge.Shutdown(); err != nil {
		t.Fatalf("Failed to shut down: %s", err)
	}

	data, err := os.ReadFile(cfg.TrajectoryOutputPath)
	if err != nil {
		t.Fatalf("Failed to read the exported trajectory: %s", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 2 {
		t.Fatalf("Expected 2 exported keyframes, got %d lines", len(lines))
	}
	fields := strings.Fields(lines[0])
	if len(fields) != 8 {
		t.Fatalf("Expected 8 fields per line, got %d", len(fields))
	}
	if fields[0] != "1.500000000" {
		t.Errorf("Wrong stamp field: %s", fields[0])
	}
	if fields[1] != "-1.0000000" {
		t.Errorf("Wrong tx field: %s", fields[1])
	}

	if !node.pub(t, "~transform_cam").down {
		t.Errorf("Expected the publishers to be shut down")
	}
	if err := bridge.Shutdown(); err != nil {
		t.Errorf("Expected a second shutdown to be a no-op, got %s", err)
	}
}

func TestRunTrajectoryPublisherStopsOnShutdown(t *testing.T) {
	node := newStubNode()
	engine := &stubEngine{}
	bridge := New(node, engine, testConfig())

	done := make(chan error, 1)
	go func() { done <- bridge.RunTrajectoryPublisher() }()

	engine.setTrajectory([]slam.PoseWithID{{Pose: slam.IdentityPose(), Stamp: 1, ID: 0}})
	deadline := time.After(5 * time.Second)
	for node.pub(t, "~trajectory_cam").count() == 0 {
		select {
		case <-deadline:
			t.Fatalf("Timed out waiting for the poller to publish")
		case <-time.After(time.Millisecond):
		}
	}

	if err := bridge.Shutdown(); err != nil {
		t.Fatalf("Failed to shut down: %s", err)
	}
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Expected a clean poller exit, got %s", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("Timed out waiting for the poller to stop")
	}
}
