// Package ros is a pure Go ROS client: nodes, topics, services and
// parameters, speaking XMLRPC to the master and TCPROS to its peers.
package ros

import (
	"time"

	modular "github.com/edwinhayes/logrus-modular"
	"github.com/sirupsen/logrus"
)

// Node is a handle to a running ROS node: its registrations with the master,
// its slave API endpoint and its connections to peers.
type Node interface {
	NewPublisher(topic string, msgType MessageType) Publisher
	// NewPublisherWithCallbacks also reports subscriber arrivals and
	// departures. Both callbacks run on a goroutine of their own, so they
	// may block without holding up the connection.
	NewPublisherWithCallbacks(topic string,
		msgType MessageType,
		connectCallback, disconnectCallback func(SingleSubscriberPublisher)) Publisher
	// NewSubscriber accepts a callback of zero, one or two arguments: the
	// message of the subscribed type, optionally followed by a
	// MessageEvent, or nothing at all when only the arrival matters.
	NewSubscriber(topic string, msgType MessageType, callback interface{}) Subscriber
	NewServiceClient(service string, srvType ServiceType) ServiceClient
	NewServiceServer(service string, srvType ServiceType, callback interface{}) ServiceServer
	RemovePublisher(topic string)
	RemoveSubscriber(topic string)
	// GetPublishedTopics and GetTopicTypes query the master for the topic
	// graph, answering [topic, type] pairs.
	GetPublishedTopics(subgraph string) ([]interface{}, error)
	GetTopicTypes() ([]interface{}, error)

	OK() bool
	SpinOnce()
	Spin()
	Shutdown()

	GetParam(name string) (interface{}, error)
	SetParam(name string, value interface{}) error
	HasParam(name string) (bool, error)
	SearchParam(name string) (string, error)
	DeleteParam(name string) error

	Name() string
	Logger() *modular.ModuleLogger
	SetLogSeverity(level logrus.Level)

	NonRosArgs() []string
}

// NewNode starts a node named name, processing ROS command line remappings
// from args. The node registers with the master named by ROS_MASTER_URI (or a
// __master remapping) and serves its slave API immediately; callbacks are not
// dispatched until Spin or SpinOnce is called.
func NewNode(name string, args []string) (Node, error) {
	return newDefaultNode(name, args)
}

type Publisher interface {
	Publish(msg Message)
	Shutdown()
}

// SingleSubscriberPublisher targets exactly one subscriber. The connect and
// disconnect callbacks of NewPublisherWithCallbacks receive one so they can
// address a peer before the regular fanout reaches it.
type SingleSubscriberPublisher interface {
	Publish(msg Message)
	GetSubscriberName() string
	GetTopic() string
}

type Subscriber interface {
	GetNumPublishers() int
	Shutdown()
}

// MessageEvent is the optional second callback argument, carrying where a
// message came from and when it arrived.
type MessageEvent struct {
	PublisherName    string
	ReceiptTime      time.Time
	ConnectionHeader map[string]string
}

type ServiceServer interface {
	Shutdown()
}

type ServiceClient interface {
	Call(srv Service) error
	Shutdown()
}
