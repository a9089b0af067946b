// Automatically generated from the message definition "orb_slam2_msgs/KeyframeStatus.msg"
package orb_slam2_msgs

import (
	"bytes"
	"encoding/binary"

	"github.com/edwinhayes/orb-slam2-ros/msgs/std_msgs"
	"github.com/edwinhayes/orb-slam2-ros/ros"
)

type _MsgKeyframeStatus struct {
	text   string
	name   string
	md5sum string
}

func (t *_MsgKeyframeStatus) Text() string {
	return t.text
}

func (t *_MsgKeyframeStatus) Name() string {
	return t.name
}

func (t *_MsgKeyframeStatus) MD5Sum() string {
	return t.md5sum
}

func (t *_MsgKeyframeStatus) NewMessage() ros.Message {
	m := new(KeyframeStatus)
	m.Header = std_msgs.Header{}
	m.Status = false
	m.KeyframeId = std_msgs.UInt64{}
	return m
}

var (
	MsgKeyframeStatus = &_MsgKeyframeStatus{
		`# Whether the frame tracked at header.stamp was promoted to a keyframe.
# keyframe_id is the id of the most recent keyframe either way.
Header header
bool status
std_msgs/UInt64 keyframe_id
`,
		"orb_slam2_msgs/KeyframeStatus",
		"8523eb9f9ea3bf9716c8a930509aa8e9",
	}
)

type KeyframeStatus struct {
	Header     std_msgs.Header `rosmsg:"header:Header"`
	Status     bool            `rosmsg:"status:bool"`
	KeyframeId std_msgs.UInt64 `rosmsg:"keyframe_id:UInt64"`
}

func (m *KeyframeStatus) Type() ros.MessageType {
	return MsgKeyframeStatus
}

func (m *KeyframeStatus) Serialize(buf *bytes.Buffer) error {
	var err error = nil
	if err = m.Header.Serialize(buf); err != nil {
		return err
	}
	binary.Write(buf, binary.LittleEndian, m.Status)
	if err = m.KeyframeId.Serialize(buf); err != nil {
		return err
	}
	return err
}

func (m *KeyframeStatus) Deserialize(buf *bytes.Reader) error {
	var err error = nil
	if err = m.Header.Deserialize(buf); err != nil {
		return err
	}
	if err = binary.Read(buf, binary.LittleEndian, &m.Status); err != nil {
		return err
	}
	if err = m.KeyframeId.Deserialize(buf); err != nil {
		return err
	}
	return err
}
