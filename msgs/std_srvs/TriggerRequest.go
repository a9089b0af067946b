// Package std_srvs is automatically generated from the message definition "std_srvs/TriggerRequest.msg"
package std_srvs

import (
	"bytes"

	"github.com/edwinhayes/orb-slam2-ros/ros"
)

type _MsgTriggerRequest struct {
	text   string
	name   string
	md5sum string
}

func (t *_MsgTriggerRequest) Text() string {
	return t.text
}

func (t *_MsgTriggerRequest) Name() string {
	return t.name
}

func (t *_MsgTriggerRequest) MD5Sum() string {
	return t.md5sum
}

func (t *_MsgTriggerRequest) NewMessage() ros.Message {
	m := new(TriggerRequest)
	return m
}

var (
	MsgTriggerRequest = &_MsgTriggerRequest{
		``,
		"std_srvs/TriggerRequest",
		"d41d8cd98f00b204e9800998ecf8427e",
	}
)

type TriggerRequest struct {
}

func (m *TriggerRequest) Type() ros.MessageType {
	return MsgTriggerRequest
}

func (m *TriggerRequest) Serialize(buf *bytes.Buffer) error {
	var err error = nil
	return err
}

func (m *TriggerRequest) Deserialize(buf *bytes.Reader) error {
	var err error = nil
	return err
}
