// Package orb_slam2_msgs is automatically generated from the message definition "orb_slam2_msgs/TransformsWithIds.msg"
package orb_slam2_msgs

import (
	"bytes"
	"encoding/binary"

	"github.com/edwinhayes/orb-slam2-ros/msgs/geometry_msgs"
	"github.com/edwinhayes/orb-slam2-ros/msgs/std_msgs"
	"github.com/edwinhayes/orb-slam2-ros/ros"
)

type _MsgTransformsWithIds struct {
	text   string
	name   string
	md5sum string
}

func (t *_MsgTransformsWithIds) Text() string {
	return t.text
}

func (t *_MsgTransformsWithIds) Name() string {
	return t.name
}

func (t *_MsgTransformsWithIds) MD5Sum() string {
	return t.md5sum
}

func (t *_MsgTransformsWithIds) NewMessage() ros.Message {
	m := new(TransformsWithIds)
	m.Transforms = []geometry_msgs.TransformStamped{}
	m.KeyframeIds = []std_msgs.UInt64{}
	return m
}

var (
	MsgTransformsWithIds = &_MsgTransformsWithIds{
		`# Camera trajectory after a map update, one stamped transform per keyframe.
# transforms[i] is the world pose of the keyframe with id keyframe_ids[i],
# so both arrays always have the same length.
geometry_msgs/TransformStamped[] transforms
std_msgs/UInt64[] keyframe_ids
`,
		"orb_slam2_msgs/TransformsWithIds",
		"e876958ec097d5083ecd34cc11d177d9",
	}
)

type TransformsWithIds struct {
	Transforms  []geometry_msgs.TransformStamped `rosmsg:"transforms:TransformStamped[]"`
	KeyframeIds []std_msgs.UInt64                `rosmsg:"keyframe_ids:UInt64[]"`
}

func (m *TransformsWithIds) Type() ros.MessageType {
	return MsgTransformsWithIds
}

func (m *TransformsWithIds) Serialize(buf *bytes.Buffer) error {
	var err error = nil
	binary.Write(buf, binary.LittleEndian, uint32(len(m.Transforms)))
	for _, e := range m.Transforms {
		if err = e.Serialize(buf); err != nil {
			return err
		}
	}
	binary.Write(buf, binary.LittleEndian, uint32(len(m.KeyframeIds)))
	for _, e := range m.KeyframeIds {
		if err = e.Serialize(buf); err != nil {
			return err
		}
	}
	return err
}

func (m *TransformsWithIds) Deserialize(buf *bytes.Reader) error {
	var err error = nil
	{
		var size uint32
		if err = binary.Read(buf, binary.LittleEndian, &size); err != nil {
			return err
		}
		m.Transforms = make([]geometry_msgs.TransformStamped, int(size))
		for i := 0; i < int(size); i++ {
			if err = m.Transforms[i].Deserialize(buf); err != nil {
				return err
			}
		}
	}
	{
		var size uint32
		if err = binary.Read(buf, binary.LittleEndian, &size); err != nil {
			return err
		}
		m.KeyframeIds = make([]std_msgs.UInt64, int(size))
		for i := 0; i < int(size); i++ {
			if err = m.KeyframeIds[i].Deserialize(buf); err != nil {
				return err
			}
		}
	}
	return err
}
