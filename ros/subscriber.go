package ros

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"reflect"
	"sync"
	"time"

	modular "github.com/edwinhayes/logrus-modular"
)

// messageEvent pairs the raw wire bytes with the metadata handed to callbacks.
type messageEvent struct {
	bytes []byte
	event MessageEvent
}

// defaultSubscriber owns every connection for one topic. Its state is
// confined to the start goroutine; other goroutines reach it through the
// channels only.
type defaultSubscriber struct {
	topic            string
	msgType          MessageType
	pubList          []string
	pubListChan      chan []string
	msgChan          chan messageEvent
	callbacks        []interface{}
	addCallbackChan  chan interface{}
	shutdownChan     chan struct{}
	connections      map[string]chan struct{}
	disconnectedChan chan string
}

func newDefaultSubscriber(topic string, msgType MessageType, callback interface{}) *defaultSubscriber {
	return &defaultSubscriber{
		topic:            topic,
		msgType:          msgType,
		pubListChan:      make(chan []string, 10),
		msgChan:          make(chan messageEvent, 10),
		callbacks:        []interface{}{callback},
		addCallbackChan:  make(chan interface{}, 10),
		shutdownChan:     make(chan struct{}, 10),
		connections:      make(map[string]chan struct{}),
		disconnectedChan: make(chan string, 10),
	}
}

func (sub *defaultSubscriber) start(wg *sync.WaitGroup, nodeID string, nodeAPIURI string, masterURI string, jobChan chan func(), log *modular.ModuleLogger) {
	logger := *log
	logger.Debugf("subscriber loop for %s started", sub.topic)
	wg.Add(1)
	defer func() {
		logger.Debugf("subscriber loop for %s finished", sub.topic)
		wg.Done()
	}()
	for {
		select {
		case list := <-sub.pubListChan:
			sub.syncConnections(list, nodeID, log)
		case callback := <-sub.addCallbackChan:
			sub.callbacks = append(sub.callbacks, callback)
		case msgEvent := <-sub.msgChan:
			// Deserialization happens on the job queue so a slow callback
			// does not hold up the connection reads.
			jobChan <- sub.newCallbackJob(msgEvent, log)
		case pubURI := <-sub.disconnectedChan:
			logger.Debugf("connection to %s closed for %s", pubURI, sub.topic)
			delete(sub.connections, pubURI)
		case <-sub.shutdownChan:
			for _, quitChan := range sub.connections {
				quitChan <- struct{}{}
				close(quitChan)
			}
			_, err := callRosAPI(masterURI, "unregisterSubscriber", nodeID, sub.topic, nodeAPIURI)
			if err != nil {
				logger.Warn(err)
			}
			return
		}
	}
}

// syncConnections reconciles the running connections against the publisher
// list the master reported for this topic.
func (sub *defaultSubscriber) syncConnections(pubURIs []string, nodeID string, log *modular.ModuleLogger) {
	logger := *log
	deadPubs := setDifference(sub.pubList, pubURIs)
	newPubs := setDifference(pubURIs, sub.pubList)
	sub.pubList = pubURIs

	for _, pub := range deadPubs {
		quitChan := sub.connections[pub]
		quitChan <- struct{}{}
		delete(sub.connections, pub)
	}
	for _, pub := range newPubs {
		protocols := []interface{}{[]interface{}{"TCPROS"}}
		result, err := callRosAPI(pub, "requestTopic", nodeID, sub.topic, protocols)
		if err != nil {
			logger.Errorf("requestTopic to %s failed for %s: %v", pub, sub.topic, err)
			continue
		}
		params, ok := result.([]interface{})
		if !ok || len(params) < 3 {
			logger.Errorf("%s answered requestTopic for %s with a malformed result", pub, sub.topic)
			continue
		}
		protocol, _ := params[0].(string)
		if protocol != "TCPROS" {
			logger.Warnf("%s offered unsupported protocol %v for %s", pub, params[0], sub.topic)
			continue
		}
		addr, _ := params[1].(string)
		port, _ := params[2].(int32)
		uri := fmt.Sprintf("%s:%d", addr, port)
		quitChan := make(chan struct{}, 10)
		sub.connections[pub] = quitChan
		go connectToPublisher(log, uri, sub.topic,
			sub.msgType.MD5Sum(), sub.msgType.Name(), nodeID,
			sub.msgChan, quitChan, sub.disconnectedChan)
	}
}

// newCallbackJob binds the received bytes to the callbacks registered at the
// time of arrival.
func (sub *defaultSubscriber) newCallbackJob(msgEvent messageEvent, log *modular.ModuleLogger) func() {
	callbacks := make([]interface{}, len(sub.callbacks))
	copy(callbacks, sub.callbacks)
	return func() {
		logger := *log
		m := sub.msgType.NewMessage()
		if err := m.Deserialize(bytes.NewReader(msgEvent.bytes)); err != nil {
			logger.Errorf("failed to deserialize a message on %s: %v", sub.topic, err)
			return
		}
		args := []reflect.Value{reflect.ValueOf(m), reflect.ValueOf(msgEvent.event)}
		for _, callback := range callbacks {
			fun := reflect.ValueOf(callback)
			numArgsNeeded := fun.Type().NumIn()
			if numArgsNeeded <= 2 {
				fun.Call(args[0:numArgsNeeded])
			}
		}
	}
}

// connectToPublisher runs one TCPROS connection: handshake, then a read loop
// that forwards every message to msgChan until quit or the peer goes away.
func connectToPublisher(log *modular.ModuleLogger,
	pubURI string, topic string, md5sum string,
	msgType string, nodeID string,
	msgChan chan messageEvent,
	quitChan chan struct{},
	disconnectedChan chan string) {
	logger := *log

	conn, err := net.Dial("tcp", pubURI)
	if err != nil {
		logger.Errorf("failed to connect to %s for %s: %v", pubURI, topic, err)
		return
	}

	headers := []header{
		{"topic", topic},
		{"md5sum", md5sum},
		{"type", msgType},
		{"callerid", nodeID},
	}
	for _, h := range headers {
		logger.Debugf("request header `%s` = `%s`", h.key, h.value)
	}
	if err := writeConnectionHeader(headers, conn); err != nil {
		logger.Errorf("failed to write the connection header to %s: %v", pubURI, err)
		return
	}

	resHeaders, err := readConnectionHeader(conn)
	if err != nil {
		logger.Errorf("failed to read the response header from %s: %v", pubURI, err)
		return
	}
	resHeaderMap := make(map[string]string)
	for _, h := range resHeaders {
		resHeaderMap[h.key] = h.value
		logger.Debugf("response header `%s` = `%s`", h.key, h.value)
	}
	if resHeaderMap["type"] != msgType || resHeaderMap["md5sum"] != md5sum {
		logger.Errorf("incompatible message on %s: want %s (%s), got %s (%s)",
			topic, msgType, md5sum, resHeaderMap["type"], resHeaderMap["md5sum"])
		return
	}

	event := MessageEvent{
		PublisherName:    resHeaderMap["callerid"],
		ConnectionHeader: resHeaderMap,
	}

	var sizeBuf [4]byte
	for {
		quit, err := readConnFull(conn, sizeBuf[:], quitChan)
		if quit {
			return
		}
		if err != nil {
			logger.Errorf("failed to read a message size on %s: %v", topic, err)
			disconnectedChan <- pubURI
			return
		}
		buffer := make([]byte, binary.LittleEndian.Uint32(sizeBuf[:]))
		quit, err = readConnFull(conn, buffer, quitChan)
		if quit {
			return
		}
		if err != nil {
			logger.Errorf("failed to read a message body on %s: %v", topic, err)
			disconnectedChan <- pubURI
			return
		}
		event.ReceiptTime = time.Now()
		msgChan <- messageEvent{bytes: buffer, event: event}
	}
}

// readConnFull fills buf from conn, extending the deadline each pass so the
// quit channel is checked about once a second even on an idle stream. A
// timeout resumes where the previous pass stopped.
func readConnFull(conn net.Conn, buf []byte, quitChan chan struct{}) (bool, error) {
	filled := 0
	for filled < len(buf) {
		select {
		case <-quitChan:
			return true, nil
		default:
		}
		conn.SetDeadline(time.Now().Add(1000 * time.Millisecond))
		n, err := io.ReadFull(conn, buf[filled:])
		filled += n
		if err != nil {
			if neterr, ok := err.(net.Error); ok && neterr.Timeout() {
				continue
			}
			return false, err
		}
	}
	return false, nil
}

func (sub *defaultSubscriber) Shutdown() {
	sub.shutdownChan <- struct{}{}
}

func (sub *defaultSubscriber) GetNumPublishers() int {
	return len(sub.pubList)
}
