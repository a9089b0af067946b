package orb_slam2_msgs

import (
	"bytes"
	"testing"

	"github.com/edwinhayes/orb-slam2-ros/msgs/geometry_msgs"
	"github.com/edwinhayes/orb-slam2-ros/msgs/std_msgs"
	"github.com/edwinhayes/orb-slam2-ros/ros"
)

func CheckBytes(t *testing.T, a, b []byte) {
	if !bytes.Equal(a, b) {
		if len(a) != len(b) {
			t.Errorf("expected length is %d but %d", len(a), len(b))
		} else {
			for i := 0; i < len(a); i++ {
				if a[i] != b[i] {
					t.Errorf("result[%3d] is expected to be %02X but %02X", i, a[i], b[i])
				}
			}
		}
	}
}

func TestInitialize(t *testing.T) {
	msg := MsgTransformsWithIds.NewMessage().(*TransformsWithIds)
	if len(msg.Transforms) != 0 {
		t.Error(msg.Transforms)
	}
	if len(msg.KeyframeIds) != 0 {
		t.Error(msg.KeyframeIds)
	}

	status := MsgKeyframeStatus.NewMessage().(*KeyframeStatus)
	if status.Status != false {
		t.Error(status.Status)
	}
	if status.KeyframeId.Data != 0 {
		t.Error(status.KeyframeId)
	}
}

func TestSerializeKeyframeStatus(t *testing.T) {
	var msg KeyframeStatus
	msg.Header.Seq = 0x89ABCDEF
	msg.Header.Stamp = ros.NewTime(0x89ABCDEF, 0x01234567)
	msg.Header.FrameId = "cam0"
	msg.Status = true
	msg.KeyframeId.Data = 0x0123456789ABCDEF

	var buf bytes.Buffer
	err := msg.Serialize(&buf)
	if err != nil {
		t.Error(err)
	}
	result := buf.Bytes()
	expected := []byte{
		// Header.Seq
		0xEF, 0xCD, 0xAB, 0x89,
		// Header.Stamp
		0xEF, 0xCD, 0xAB, 0x89,
		0x67, 0x45, 0x23, 0x01,
		// Header.FrameId
		0x04, 0x00, 0x00, 0x00,
		0x63, 0x61, 0x6D, 0x30,
		// Status
		0x01,
		// KeyframeId
		0xEF, 0xCD, 0xAB, 0x89, 0x67, 0x45, 0x23, 0x01,
	}
	CheckBytes(t, expected, result)
}

func getTrajectoryTestData() []byte {
	return []byte{
		// Transforms length
		0x01, 0x00, 0x00, 0x00,
		// Transforms[0].Header.Seq
		0x01, 0x00, 0x00, 0x00,
		// Transforms[0].Header.Stamp
		0x02, 0x00, 0x00, 0x00,
		0x00, 0x65, 0xCD, 0x1D,
		// Transforms[0].Header.FrameId
		0x05, 0x00, 0x00, 0x00,
		0x77, 0x6F, 0x72, 0x6C, 0x64,
		// Transforms[0].ChildFrameId
		0x04, 0x00, 0x00, 0x00,
		0x63, 0x61, 0x6D, 0x30,
		// Transforms[0].Transform.Translation
		0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0xF0, 0x3F,
		0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0xE0, 0x3F,
		0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0xD0, 0x3F,
		// Transforms[0].Transform.Rotation
		0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
		0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
		0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
		0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0xF0, 0x3F,
		// KeyframeIds length
		0x01, 0x00, 0x00, 0x00,
		// KeyframeIds[0]
		0x2A, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
	}
}

func TestSerializeTransformsWithIds(t *testing.T) {
	var msg TransformsWithIds
	msg.Transforms = make([]geometry_msgs.TransformStamped, 1)
	msg.Transforms[0].Header.Seq = 1
	msg.Transforms[0].Header.Stamp = ros.NewTime(2, 500000000)
	msg.Transforms[0].Header.FrameId = "world"
	msg.Transforms[0].ChildFrameId = "cam0"
	msg.Transforms[0].Transform.Translation = geometry_msgs.Vector3{X: 1.0, Y: 0.5, Z: 0.25}
	msg.Transforms[0].Transform.Rotation = geometry_msgs.Quaternion{X: 0.0, Y: 0.0, Z: 0.0, W: 1.0}
	msg.KeyframeIds = make([]std_msgs.UInt64, 1)
	msg.KeyframeIds[0].Data = 42

	var buf bytes.Buffer
	err := msg.Serialize(&buf)
	if err != nil {
		t.Error(err)
	}
	CheckBytes(t, getTrajectoryTestData(), buf.Bytes())
}

func TestDeserializeTransformsWithIds(t *testing.T) {
	reader := bytes.NewReader(getTrajectoryTestData())
	var msg TransformsWithIds
	err := msg.Deserialize(reader)
	if err != nil {
		t.Error(err)
	}

	if len(msg.Transforms) != 1 || len(msg.KeyframeIds) != 1 {
		t.Error(msg)
	}
	ts := msg.Transforms[0]
	if ts.Header.Seq != 1 || ts.Header.FrameId != "world" {
		t.Error(ts.Header)
	}
	if ts.Header.Stamp.Sec != 2 || ts.Header.Stamp.NSec != 500000000 {
		t.Error(ts.Header.Stamp)
	}
	if ts.ChildFrameId != "cam0" {
		t.Error(ts.ChildFrameId)
	}
	if ts.Transform.Translation.X != 1.0 || ts.Transform.Translation.Y != 0.5 || ts.Transform.Translation.Z != 0.25 {
		t.Error(ts.Transform.Translation)
	}
	if ts.Transform.Rotation.W != 1.0 {
		t.Error(ts.Transform.Rotation)
	}
	if msg.KeyframeIds[0].Data != 42 {
		t.Error(msg.KeyframeIds)
	}
	if reader.Len() != 0 {
		t.Fail()
	}
}
