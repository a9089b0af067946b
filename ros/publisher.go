package ros

import (
	"bytes"
	"container/list"
	"encoding/binary"
	"fmt"
	"net"
	"sync"
	"time"

	modular "github.com/edwinhayes/logrus-modular"
)

// subscriberSessionError reports which session died so the fanout loop can
// drop it from the session list.
type subscriberSessionError struct {
	session *remoteSubscriberSession
	err     error
}

func (e *subscriberSessionError) Error() string {
	return fmt.Sprintf("subscriber session %v: %v", e.session, e.err)
}

type defaultPublisher struct {
	node               *defaultNode
	topic              string
	msgType            MessageType
	msgChan            chan []byte
	shutdownChan       chan struct{}
	sessions           *list.List
	sessionChan        chan *remoteSubscriberSession
	sessionErrorChan   chan error
	listenerErrorChan  chan error
	listener           net.Listener
	queueSize          int
	connectCallback    func(SingleSubscriberPublisher)
	disconnectCallback func(SingleSubscriberPublisher)
}

func newDefaultPublisher(node *defaultNode,
	topic string, msgType MessageType,
	connectCallback, disconnectCallback func(SingleSubscriberPublisher)) *defaultPublisher {
	listener, err := listenRandomPort(node.listenIP, 10)
	if err != nil {
		panic(err)
	}
	return &defaultPublisher{
		node:               node,
		topic:              topic,
		msgType:            msgType,
		msgChan:            make(chan []byte, 10),
		shutdownChan:       make(chan struct{}, 10),
		sessions:           list.New(),
		sessionChan:        make(chan *remoteSubscriberSession, 10),
		sessionErrorChan:   make(chan error, 10),
		listenerErrorChan:  make(chan error, 10),
		listener:           listener,
		queueSize:          100,
		connectCallback:    connectCallback,
		disconnectCallback: disconnectCallback,
	}
}

// start runs the fanout loop: accepted sessions join the list, published
// messages go to every session, dead sessions fall out.
func (pub *defaultPublisher) start(wg *sync.WaitGroup) {
	logger := pub.node.logger
	logger.Debugf("publisher loop for %s started", pub.topic)
	wg.Add(1)
	defer func() {
		logger.Debugf("publisher loop for %s finished", pub.topic)
		wg.Done()
	}()

	go pub.acceptSubscribers()

	for {
		select {
		case raw := <-pub.msgChan:
			for e := pub.sessions.Front(); e != nil; e = e.Next() {
				e.Value.(*remoteSubscriberSession).msgChan <- raw
			}
		case err := <-pub.listenerErrorChan:
			logger.Debugf("listener on %s closed: %v", pub.topic, err)
			pub.listener.Close()
			return
		case session := <-pub.sessionChan:
			pub.sessions.PushBack(session)
			go session.start()
		case err := <-pub.sessionErrorChan:
			logger.Debug(err)
			if closed, ok := err.(*subscriberSessionError); ok {
				pub.dropSession(closed.session)
			}
		case <-pub.shutdownChan:
			pub.listener.Close()
			_, err := callRosAPI(pub.node.masterURI, "unregisterPublisher",
				pub.node.qualifiedName, pub.topic, pub.node.xmlrpcURI)
			if err != nil {
				logger.Warn(err)
			}
			for e := pub.sessions.Front(); e != nil; e = e.Next() {
				e.Value.(*remoteSubscriberSession).quitChan <- struct{}{}
			}
			pub.sessions.Init()
			return
		}
	}
}

func (pub *defaultPublisher) dropSession(target *remoteSubscriberSession) {
	for e := pub.sessions.Front(); e != nil; e = e.Next() {
		if e.Value == target {
			pub.sessions.Remove(e)
			return
		}
	}
}

func (pub *defaultPublisher) acceptSubscribers() {
	logger := pub.node.logger
	logger.Debugf("accepting subscribers on %s", pub.listener.Addr().String())
	for {
		conn, err := pub.listener.Accept()
		if err != nil {
			pub.listenerErrorChan <- err
			close(pub.listenerErrorChan)
			return
		}
		logger.Debugf("subscriber connected from %s", conn.RemoteAddr().String())
		pub.sessionChan <- newRemoteSubscriberSession(pub, conn)
	}
}

func (pub *defaultPublisher) Publish(msg Message) {
	var buf bytes.Buffer
	if err := msg.Serialize(&buf); err != nil {
		logger := pub.node.logger
		logger.Errorf("failed to serialize a message on %s: %v", pub.topic, err)
		return
	}
	pub.msgChan <- buf.Bytes()
}

func (pub *defaultPublisher) Shutdown() {
	pub.shutdownChan <- struct{}{}
}

func (pub *defaultPublisher) hostAndPort() (string, string, error) {
	_, port, err := net.SplitHostPort(pub.listener.Addr().String())
	if err != nil {
		return "", "", err
	}
	return pub.node.hostname, port, nil
}

// remoteSubscriberSession serves one connected subscriber. Messages queue up
// to queueSize deep; when the subscriber cannot keep up the oldest message is
// dropped first.
type remoteSubscriberSession struct {
	conn               net.Conn
	nodeID             string
	topic              string
	typeText           string
	md5sum             string
	typeName           string
	queueSize          int
	quitChan           chan struct{}
	msgChan            chan []byte
	errorChan          chan error
	logger             *modular.ModuleLogger
	connectCallback    func(SingleSubscriberPublisher)
	disconnectCallback func(SingleSubscriberPublisher)
}

func newRemoteSubscriberSession(pub *defaultPublisher, conn net.Conn) *remoteSubscriberSession {
	return &remoteSubscriberSession{
		conn:               conn,
		nodeID:             pub.node.qualifiedName,
		topic:              pub.topic,
		typeText:           pub.msgType.Text(),
		md5sum:             pub.msgType.MD5Sum(),
		typeName:           pub.msgType.Name(),
		queueSize:          pub.queueSize,
		quitChan:           make(chan struct{}),
		msgChan:            make(chan []byte, 10),
		errorChan:          pub.sessionErrorChan,
		logger:             &pub.node.logger,
		connectCallback:    pub.connectCallback,
		disconnectCallback: pub.disconnectCallback,
	}
}

// singleSubPub narrows the publisher to one subscriber for the connect and
// disconnect callbacks.
type singleSubPub struct {
	subName string
	topic   string
	msgChan chan []byte
}

func (ssp *singleSubPub) Publish(msg Message) {
	var buf bytes.Buffer
	if msg.Serialize(&buf) == nil {
		ssp.msgChan <- buf.Bytes()
	}
}

func (ssp *singleSubPub) GetSubscriberName() string {
	return ssp.subName
}

func (ssp *singleSubPub) GetTopic() string {
	return ssp.topic
}

func (session *remoteSubscriberSession) start() {
	logger := *session.logger

	ssp := &singleSubPub{
		topic:   session.topic,
		msgChan: session.msgChan,
		// subName is filled in after the connection header is read.
	}
	defer func() {
		if session.disconnectCallback != nil {
			session.disconnectCallback(ssp)
		}
	}()
	defer func() {
		// The fanout loop drops this session on any exit.
		if r := recover(); r != nil {
			if e, ok := r.(error); ok {
				session.errorChan <- &subscriberSessionError{session, e}
			} else {
				session.errorChan <- &subscriberSessionError{session, fmt.Errorf("panic: %v", r)}
			}
		} else {
			session.errorChan <- &subscriberSessionError{session, fmt.Errorf("session finished")}
		}
	}()

	headers, err := readConnectionHeader(session.conn)
	if err != nil {
		logger.Errorf("failed to read the connection header on %s: %v", session.topic, err)
		return
	}
	headerMap := make(map[string]string)
	for _, h := range headers {
		headerMap[h.key] = h.value
		logger.Debugf("subscriber header `%s` = `%s`", h.key, h.value)
	}

	// A "*" from the peer accepts whatever this topic carries.
	if name := headerMap["type"]; name != session.typeName && name != "*" {
		logger.Errorf("incompatible message type on %s: want %s, got %s",
			session.topic, session.typeName, name)
		return
	}
	if sum := headerMap["md5sum"]; sum != session.md5sum && sum != "*" {
		logger.Errorf("incompatible message md5sum on %s: want %s, got %s",
			session.topic, session.md5sum, sum)
		return
	}

	ssp.subName = headerMap["callerid"]
	if session.connectCallback != nil {
		go session.connectCallback(ssp)
	}

	response := []header{
		{"message_definition", session.typeText},
		{"callerid", session.nodeID},
		{"latching", "0"},
		{"md5sum", session.md5sum},
		{"topic", session.topic},
		{"type", session.typeName},
	}
	if err := writeConnectionHeader(response, session.conn); err != nil {
		logger.Errorf("failed to write the response header on %s: %v", session.topic, err)
		return
	}

	queue := make(chan []byte, session.queueSize)
	for {
		select {
		case raw := <-session.msgChan:
			if len(queue) == cap(queue) {
				// Drop the oldest message rather than stall the fanout.
				<-queue
			}
			queue <- raw
		case <-session.quitChan:
			return
		case raw := <-queue:
			if err := session.sendFrame(raw); err != nil {
				logger.Error(err)
				return
			}
		}
	}
}

// sendFrame writes one length prefixed message. A send timeout only loses
// this frame; the stream continues with the next one.
func (session *remoteSubscriberSession) sendFrame(raw []byte) error {
	session.conn.SetDeadline(time.Now().Add(10 * time.Millisecond))
	if err := binary.Write(session.conn, binary.LittleEndian, uint32(len(raw))); err != nil {
		return ignoreTimeout(err)
	}
	session.conn.SetDeadline(time.Now().Add(10 * time.Millisecond))
	if _, err := session.conn.Write(raw); err != nil {
		return ignoreTimeout(err)
	}
	return nil
}

func ignoreTimeout(err error) error {
	if neterr, ok := err.(net.Error); ok && neterr.Timeout() {
		return nil
	}
	return err
}
