package ros

import (
	"bytes"
	"container/list"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"reflect"
	"time"
)

// clientSessionCloseEvent reports which session finished so the server loop
// can drop it from the session list.
type clientSessionCloseEvent struct {
	session *remoteClientSession
	err     error
}

type defaultServiceServer struct {
	node             *defaultNode
	service          string
	srvType          ServiceType
	handler          interface{}
	listener         *net.TCPListener
	sessions         *list.List
	shutdownChan     chan struct{}
	sessionCloseChan chan *clientSessionCloseEvent
}

func newDefaultServiceServer(node *defaultNode, service string, srvType ServiceType, handler interface{}) *defaultServiceServer {
	logger := node.logger
	listener, err := listenRandomPort(node.listenIP, 10)
	if err != nil {
		panic(err)
	}
	tcpListener, ok := listener.(*net.TCPListener)
	if !ok {
		panic(fmt.Errorf("service listener is not a TCP listener"))
	}
	server := &defaultServiceServer{
		node:             node,
		service:          service,
		srvType:          srvType,
		handler:          handler,
		listener:         tcpListener,
		sessions:         list.New(),
		shutdownChan:     make(chan struct{}, 10),
		sessionCloseChan: make(chan *clientSessionCloseEvent, 10),
	}
	_, port, err := net.SplitHostPort(tcpListener.Addr().String())
	if err != nil {
		// The listener always carries a host:port address.
		panic(err)
	}
	address := fmt.Sprintf("rosrpc://%s:%s", node.hostname, port)
	logger.Debugf("service server for %s listening on %s", service, address)
	_, err = callRosAPI(node.masterURI, "registerService",
		node.qualifiedName, service, address, node.xmlrpcURI)
	if err != nil {
		logger.Errorf("failed to register service %s: %v", service, err)
		tcpListener.Close()
		return nil
	}
	go server.start()
	return server
}

func (s *defaultServiceServer) Shutdown() {
	s.shutdownChan <- struct{}{}
}

// start alternates between accepting new clients and tending the running
// sessions until shutdown or a listener failure.
func (s *defaultServiceServer) start() {
	logger := s.node.logger
	logger.Debugf("service server for %s started", s.service)
	s.node.waitGroup.Add(1)
	defer func() {
		logger.Debugf("service server for %s finished", s.service)
		s.node.waitGroup.Done()
	}()

	for {
		if !s.accept() {
			return
		}

		select {
		case ev := <-s.sessionCloseChan:
			if ev.err != nil {
				logger.Errorf("service session failed: %v", ev.err)
			}
			for e := s.sessions.Front(); e != nil; e = e.Next() {
				if e.Value == ev.session {
					s.sessions.Remove(e)
					break
				}
			}
		case <-s.shutdownChan:
			s.listener.Close()
			_, err := callRosAPI(s.node.masterURI, "unregisterService",
				s.node.qualifiedName, s.service, s.node.xmlrpcURI)
			if err != nil {
				logger.Warnf("failed to unregister service %s: %v", s.service, err)
			}
			for e := s.sessions.Front(); e != nil; e = e.Next() {
				session := e.Value.(*remoteClientSession)
				session.quitChan <- struct{}{}
			}
			s.sessions.Init()
			return
		case <-time.After(1 * time.Millisecond):
		}
	}
}

// accept takes at most one pending connection. The short deadline keeps the
// loop responsive to shutdown.
func (s *defaultServiceServer) accept() bool {
	logger := s.node.logger
	s.listener.SetDeadline(time.Now().Add(1 * time.Millisecond))
	conn, err := s.listener.Accept()
	if err != nil {
		if opError, ok := err.(*net.OpError); ok && opError.Timeout() {
			return true
		}
		logger.Debugf("service server for %s stopped accepting: %v", s.service, err)
		return false
	}
	logger.Debugf("service client connected from %s", conn.RemoteAddr().String())
	session := newRemoteClientSession(s, conn)
	s.sessions.PushBack(session)
	go session.start()
	return true
}

// remoteClientSession serves one client call on a service server.
type remoteClientSession struct {
	server       *defaultServiceServer
	conn         net.Conn
	quitChan     chan struct{}
	responseChan chan []byte
	errorChan    chan error
}

func newRemoteClientSession(server *defaultServiceServer, conn net.Conn) *remoteClientSession {
	return &remoteClientSession{
		server:   server,
		conn:     conn,
		quitChan: make(chan struct{}, 1),
		// Buffered so a late handler job never blocks on a session that
		// already timed out or quit.
		responseChan: make(chan []byte, 1),
		errorChan:    make(chan error, 1),
	}
}

func (session *remoteClientSession) start() {
	logger := session.server.node.logger
	conn := session.conn
	service := session.server.service
	md5sum := session.server.srvType.MD5Sum()
	typeName := session.server.srvType.Name()
	defer func() {
		// The server loop drops this session on any exit.
		if r := recover(); r != nil {
			err := fmt.Errorf("client session on %s: %v", service, r)
			session.server.sessionCloseChan <- &clientSessionCloseEvent{session, err}
		} else {
			session.server.sessionCloseChan <- &clientSessionCloseEvent{session, nil}
		}
	}()

	conn.SetDeadline(time.Now().Add(10 * time.Millisecond))
	reqHeaders, err := readConnectionHeader(conn)
	if err != nil {
		panic(err)
	}
	reqHeaderMap := make(map[string]string)
	for _, h := range reqHeaders {
		reqHeaderMap[h.key] = h.value
		logger.Debugf("client header `%s` = `%s`", h.key, h.value)
	}

	response := []header{
		{"service", service},
		{"md5sum", md5sum},
		{"type", typeName},
		{"callerid", session.server.node.qualifiedName},
	}
	conn.SetDeadline(time.Now().Add(10 * time.Millisecond))
	if err := writeConnectionHeader(response, conn); err != nil {
		panic(err)
	}

	// rosservice probes the header exchange without sending a request.
	if reqHeaderMap["probe"] == "1" {
		return
	}
	if reqHeaderMap["service"] != service || (reqHeaderMap["md5sum"] != md5sum && reqHeaderMap["md5sum"] != "*") {
		logger.Errorf("incompatible request on service %s", service)
		return
	}

	var msgSize uint32
	conn.SetDeadline(time.Now().Add(10 * time.Millisecond))
	if err := binary.Read(conn, binary.LittleEndian, &msgSize); err != nil {
		panic(err)
	}
	reqBuffer := make([]byte, int(msgSize))
	conn.SetDeadline(time.Now().Add(10 * time.Millisecond))
	if _, err := io.ReadFull(conn, reqBuffer); err != nil {
		panic(err)
	}

	session.server.node.jobChan <- session.newHandlerJob(reqBuffer)

	select {
	case resMsg := <-session.responseChan:
		if err := writeServiceReply(conn, 1, resMsg); err != nil {
			panic(err)
		}
	case err := <-session.errorChan:
		logger.Error(err)
		if err := writeServiceReply(conn, 0, []byte(err.Error())); err != nil {
			panic(err)
		}
	case <-session.quitChan:
	case <-time.After(1000 * time.Millisecond):
		panic(fmt.Errorf("service handler timeout on %s", service))
	}
}

// newHandlerJob runs the registered handler on the job queue and routes the
// outcome back to the waiting session.
func (session *remoteClientSession) newHandlerJob(reqBuffer []byte) func() {
	return func() {
		srv := session.server.srvType.NewService()
		if err := srv.ReqMessage().Deserialize(bytes.NewReader(reqBuffer)); err != nil {
			session.errorChan <- err
			return
		}
		fun := reflect.ValueOf(session.server.handler)
		results := fun.Call([]reflect.Value{reflect.ValueOf(srv)})
		if len(results) != 1 || results[0].Kind() != reflect.Interface {
			session.errorChan <- fmt.Errorf("service handler must return exactly an error")
			return
		}
		result := results[0]
		if result.IsNil() {
			var buf bytes.Buffer
			if err := srv.ResMessage().Serialize(&buf); err != nil {
				session.errorChan <- err
				return
			}
			session.responseChan <- buf.Bytes()
			return
		}
		if err, ok := result.Interface().(error); ok {
			session.errorChan <- err
		} else {
			session.errorChan <- fmt.Errorf("service handler must return an error value")
		}
	}
}

// writeServiceReply sends the status byte and one length prefixed payload.
func writeServiceReply(conn net.Conn, ok byte, payload []byte) error {
	conn.SetDeadline(time.Now().Add(10 * time.Millisecond))
	if err := binary.Write(conn, binary.LittleEndian, ok); err != nil {
		return err
	}
	conn.SetDeadline(time.Now().Add(10 * time.Millisecond))
	if err := binary.Write(conn, binary.LittleEndian, uint32(len(payload))); err != nil {
		return err
	}
	conn.SetDeadline(time.Now().Add(10 * time.Millisecond))
	_, err := conn.Write(payload)
	return err
}
