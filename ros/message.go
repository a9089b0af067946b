package ros

import (
	"bytes"
)

// MessageType carries the static metadata of a generated message binding:
// its full definition text, its md5sum and its package qualified name.
type MessageType interface {
	Text() string
	MD5Sum() string
	Name() string
	NewMessage() Message
}

// Message is one wire serializable message instance.
type Message interface {
	Type() MessageType
	Serialize(buf *bytes.Buffer) error
	Deserialize(buf *bytes.Reader) error
}
