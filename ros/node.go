package ros

import (
	"fmt"
	"math/rand"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/buger/jsonparser"
	modular "github.com/edwinhayes/logrus-modular"
	"github.com/edwinhayes/orb-slam2-ros/xmlrpc"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// defaultNode implements Node. Create and drive a node from one goroutine;
// the slave API handlers and the per topic loops run on goroutines of their
// own.
type defaultNode struct {
	name           string
	namespace      string
	qualifiedName  string
	masterURI      string
	xmlrpcURI      string
	xmlrpcListener net.Listener
	xmlrpcHandler  *xmlrpc.Handler
	subscribers    map[string]*defaultSubscriber
	publishers     sync.Map
	servers        map[string]*defaultServiceServer
	jobChan        chan func()
	interruptChan  chan os.Signal
	logger         modular.ModuleLogger
	rootLogger     *logrus.Logger
	ok             bool
	okMutex        sync.RWMutex
	waitGroup      sync.WaitGroup
	logDir         string
	hostname       string
	listenIP       string
	homeDir        string
	nameResolver   *NameResolver
	nonRosArgs     []string
}

// listenRandomPort binds an ephemeral port in the registered range, retrying
// on collisions.
func listenRandomPort(address string, trialLimit int) (net.Listener, error) {
	for trial := 0; trial < trialLimit; trial++ {
		port := 1024 + rand.Intn(65535-1024)
		listener, err := net.Listen("tcp", fmt.Sprintf("%s:%d", address, port))
		if err == nil {
			return listener, nil
		}
	}
	return nil, errors.Errorf("no free port found in %d trials", trialLimit)
}

func newDefaultNode(name string, args []string) (*defaultNode, error) {
	node := new(defaultNode)
	node.logger, node.rootLogger = newNodeLogger()

	namespace, nodeName, err := qualifyNodeName(name)
	if err != nil {
		return nil, err
	}
	node.name = nodeName
	node.namespace = namespace

	remapping, params, specials, rest := processArguments(args)
	if err := node.applyEnvironment(specials); err != nil {
		return nil, err
	}

	node.nameResolver = newNameResolver(node.namespace, node.name, remapping)
	node.qualifiedName = node.nameResolver.qualifiedName
	node.nonRosArgs = rest

	node.subscribers = make(map[string]*defaultSubscriber)
	node.servers = make(map[string]*defaultServiceServer)
	node.jobChan = make(chan func(), 100)
	node.interruptChan = make(chan os.Signal, 1)
	node.ok = true
	node.trapInterrupt()

	if err := node.pushCommandLineParams(params); err != nil {
		return nil, err
	}
	if err := node.startSlaveAPI(); err != nil {
		return nil, err
	}
	node.logger.Debugf("started %s with master %s", node.qualifiedName, node.masterURI)
	return node, nil
}

// applyEnvironment settles the node identity and endpoints from the
// environment, with __name, __ns, __log, __hostname, __ip and __master
// command line specials taking precedence.
func (node *defaultNode) applyEnvironment(specials map[string]string) error {
	node.homeDir = filepath.Join(os.Getenv("HOME"), ".ros")
	if homeDir := os.Getenv("ROS_HOME"); len(homeDir) > 0 {
		node.homeDir = homeDir
	}

	if value, ok := specials["__name"]; ok {
		if !isValidName(value) {
			return errors.Errorf("invalid node name %q", value)
		}
		node.name = value
	}

	if ns := os.Getenv("ROS_NAMESPACE"); len(ns) > 0 {
		node.namespace = ns
	}
	if value, ok := specials["__ns"]; ok {
		node.namespace = value
	}
	if !isValidNamespace(node.namespace) {
		return errors.Errorf("invalid namespace %q", node.namespace)
	}

	node.logDir = filepath.Join(node.homeDir, "log")
	if logDir := os.Getenv("ROS_LOG_DIR"); len(logDir) > 0 {
		node.logDir = logDir
	}
	if value, ok := specials["__log"]; ok {
		node.logDir = value
	}

	var onlyLocalhost bool
	node.hostname, onlyLocalhost = determineHost()
	if value, ok := specials["__hostname"]; ok {
		node.hostname = value
		onlyLocalhost = (value == "localhost")
	} else if value, ok := specials["__ip"]; ok {
		node.hostname = value
		onlyLocalhost = (value == "::1" || strings.HasPrefix(value, "127."))
	}
	if onlyLocalhost {
		node.listenIP = "127.0.0.1"
	} else {
		node.listenIP = "0.0.0.0"
	}

	node.masterURI = os.Getenv("ROS_MASTER_URI")
	if value, ok := specials["__master"]; ok {
		node.masterURI = value
	}
	return nil
}

func (node *defaultNode) trapInterrupt() {
	logger := node.logger
	signal.Notify(node.interruptChan, os.Interrupt)
	go func() {
		<-node.interruptChan
		logger.Info("interrupted")
		node.okMutex.Lock()
		node.ok = false
		node.okMutex.Unlock()
	}()
}

// pushCommandLineParams sends the _key:=value arguments to the parameter
// server as the private parameters ~key.
func (node *defaultNode) pushCommandLineParams(params map[string]string) error {
	for k, v := range params {
		value, err := loadParamFromString(v)
		if err != nil {
			return errors.Wrapf(err, "bad value for parameter %s", k)
		}
		name := node.nameResolver.resolve(PrivateNS + k)
		if _, err := callRosAPI(node.masterURI, "setParam", node.qualifiedName, name, value); err != nil {
			return err
		}
	}
	return nil
}

// startSlaveAPI serves the XMLRPC endpoint other nodes and the master call
// back into.
func (node *defaultNode) startSlaveAPI() error {
	listener, err := listenRandomPort(node.listenIP, 10)
	if err != nil {
		return err
	}
	_, port, err := net.SplitHostPort(listener.Addr().String())
	if err != nil {
		// The listener always carries a host:port address.
		panic(err)
	}
	node.xmlrpcURI = fmt.Sprintf("http://%s:%s", node.hostname, port)
	node.xmlrpcListener = listener
	node.xmlrpcHandler = xmlrpc.NewHandler(map[string]xmlrpc.Method{
		"getBusStats":      func(callerID string) (interface{}, error) { return node.getBusStats(callerID) },
		"getBusInfo":       func(callerID string) (interface{}, error) { return node.getBusInfo(callerID) },
		"getMasterUri":     func(callerID string) (interface{}, error) { return node.getMasterURI(callerID) },
		"shutdown":         func(callerID string, msg string) (interface{}, error) { return node.slaveShutdown(callerID, msg) },
		"getPid":           func(callerID string) (interface{}, error) { return node.getPid(callerID) },
		"getSubscriptions": func(callerID string) (interface{}, error) { return node.getSubscriptions(callerID) },
		"getPublications":  func(callerID string) (interface{}, error) { return node.getPublications(callerID) },
		"paramUpdate": func(callerID string, key string, value interface{}) (interface{}, error) {
			return node.paramUpdate(callerID, key, value)
		},
		"publisherUpdate": func(callerID string, topic string, publishers []interface{}) (interface{}, error) {
			return node.publisherUpdate(callerID, topic, publishers)
		},
		"requestTopic": func(callerID string, topic string, protocols []interface{}) (interface{}, error) {
			return node.requestTopic(callerID, topic, protocols)
		},
	})
	go http.Serve(node.xmlrpcListener, node.xmlrpcHandler)
	node.logger.Debugf("%s serving the slave API on %s", node.qualifiedName, node.xmlrpcURI)
	return nil
}

func (node *defaultNode) OK() bool {
	node.okMutex.RLock()
	ok := node.ok
	node.okMutex.RUnlock()
	return ok
}

func (node *defaultNode) Name() string {
	return node.name
}

func (node *defaultNode) getBusStats(callerID string) (interface{}, error) {
	return buildRosAPIResult(APIStatusError, "Not implemented", 0), nil
}

func (node *defaultNode) getBusInfo(callerID string) (interface{}, error) {
	return buildRosAPIResult(APIStatusError, "Not implemented", 0), nil
}

func (node *defaultNode) getMasterURI(callerID string) (interface{}, error) {
	return buildRosAPIResult(APIStatusSuccess, "Success", node.masterURI), nil
}

func (node *defaultNode) slaveShutdown(callerID string, msg string) (interface{}, error) {
	node.okMutex.Lock()
	node.ok = false
	node.okMutex.Unlock()
	return buildRosAPIResult(APIStatusSuccess, "Success", 0), nil
}

func (node *defaultNode) getPid(callerID string) (interface{}, error) {
	return buildRosAPIResult(APIStatusSuccess, "Success", os.Getpid()), nil
}

func (node *defaultNode) getSubscriptions(callerID string) (interface{}, error) {
	result := []interface{}{}
	for t, s := range node.subscribers {
		result = append(result, []interface{}{t, s.msgType.Name()})
	}
	return buildRosAPIResult(APIStatusSuccess, "Success", result), nil
}

func (node *defaultNode) getPublications(callerID string) (interface{}, error) {
	result := []interface{}{}
	node.publishers.Range(func(t interface{}, p interface{}) bool {
		result = append(result, []interface{}{t.(string), p.(*defaultPublisher).msgType.Name()})
		return true
	})
	return buildRosAPIResult(APIStatusSuccess, "Success", result), nil
}

func (node *defaultNode) paramUpdate(callerID string, key string, value interface{}) (interface{}, error) {
	return buildRosAPIResult(APIStatusError, "Not implemented", 0), nil
}

func (node *defaultNode) publisherUpdate(callerID string, topic string, publishers []interface{}) (interface{}, error) {
	logger := node.logger
	logger.Debugf("slave API publisherUpdate(%s, %s) called", callerID, topic)
	sub, ok := node.subscribers[topic]
	if !ok {
		return buildRosAPIResult(APIStatusFailure, "No such topic", 0), nil
	}
	pubURIs := make([]string, 0, len(publishers))
	for _, uri := range publishers {
		s, ok := uri.(string)
		if !ok {
			return buildRosAPIResult(APIStatusError, "publisher list contains a non string URI", 0), nil
		}
		pubURIs = append(pubURIs, s)
	}
	sub.pubListChan <- pubURIs
	return buildRosAPIResult(APIStatusSuccess, "Success", 0), nil
}

func (node *defaultNode) requestTopic(callerID string, topic string, protocols []interface{}) (interface{}, error) {
	logger := node.logger
	logger.Debugf("slave API requestTopic(%s, %s) called", callerID, topic)
	pub, ok := node.publishers.Load(topic)
	if !ok {
		return buildRosAPIResult(APIStatusFailure, "No such topic", nil), nil
	}
	selected := make([]interface{}, 0)
	for _, v := range protocols {
		params, ok := v.([]interface{})
		if !ok || len(params) == 0 {
			continue
		}
		if name, _ := params[0].(string); name != "TCPROS" {
			continue
		}
		host, portText, err := pub.(*defaultPublisher).hostAndPort()
		if err != nil {
			return nil, err
		}
		port, err := strconv.ParseInt(portText, 10, 32)
		if err != nil {
			return nil, err
		}
		selected = append(selected, "TCPROS", host, int(port))
		break
	}
	return buildRosAPIResult(APIStatusSuccess, "Success", selected), nil
}

func (node *defaultNode) NewPublisher(topic string, msgType MessageType) Publisher {
	return node.NewPublisherWithCallbacks(topic, msgType, nil, nil)
}

func (node *defaultNode) NewPublisherWithCallbacks(topic string, msgType MessageType, connectCallback, disconnectCallback func(SingleSubscriberPublisher)) Publisher {
	logger := node.logger
	name := node.nameResolver.remap(topic)
	pub, ok := node.publishers.Load(name)
	if !ok {
		_, err := callRosAPI(node.masterURI, "registerPublisher",
			node.qualifiedName, name, msgType.Name(), node.xmlrpcURI)
		if err != nil {
			logger.Fatalf("failed to register publisher for %s: %v", name, err)
		}
		pub = newDefaultPublisher(node, name, msgType, connectCallback, disconnectCallback)
		node.publishers.Store(name, pub)
		go pub.(*defaultPublisher).start(&node.waitGroup)
	}
	return pub.(*defaultPublisher)
}

// RemovePublisher shuts down and deletes an existing topic publisher.
func (node *defaultNode) RemovePublisher(topic string) {
	name := node.nameResolver.remap(topic)
	if pub, ok := node.publishers.Load(name); ok {
		pub.(*defaultPublisher).Shutdown()
		node.publishers.Delete(name)
	}
}

// GetPublishedTopics asks the master for the topics currently carrying
// publishers, optionally restricted to a subgraph, as [topic, type] pairs.
func (node *defaultNode) GetPublishedTopics(subgraph string) ([]interface{}, error) {
	result, err := callRosAPI(node.masterURI, "getPublishedTopics", node.qualifiedName, subgraph)
	if err != nil {
		return nil, err
	}
	list, ok := result.([]interface{})
	if !ok {
		return nil, errors.Errorf("getPublishedTopics answered with %T, not a list", result)
	}
	return list, nil
}

// GetTopicTypes asks the master for every known topic as [topic, type] pairs.
func (node *defaultNode) GetTopicTypes() ([]interface{}, error) {
	result, err := callRosAPI(node.masterURI, "getTopicTypes", node.qualifiedName)
	if err != nil {
		return nil, err
	}
	list, ok := result.([]interface{})
	if !ok {
		return nil, errors.Errorf("getTopicTypes answered with %T, not a list", result)
	}
	return list, nil
}

// RemoveSubscriber shuts down and deletes an existing topic subscriber.
func (node *defaultNode) RemoveSubscriber(topic string) {
	name := node.nameResolver.remap(topic)
	if sub, ok := node.subscribers[name]; ok {
		sub.Shutdown()
		delete(node.subscribers, name)
	}
}

func (node *defaultNode) NewSubscriber(topic string, msgType MessageType, callback interface{}) Subscriber {
	logger := node.logger
	name := node.nameResolver.remap(topic)
	sub, ok := node.subscribers[name]
	if ok {
		sub.addCallbackChan <- callback
		return sub
	}

	result, err := callRosAPI(node.masterURI, "registerSubscriber",
		node.qualifiedName, name, msgType.Name(), node.xmlrpcURI)
	if err != nil {
		logger.Fatalf("failed to register subscriber for %s: %v", name, err)
	}
	list, ok := result.([]interface{})
	if !ok {
		logger.Fatalf("registerSubscriber answered with %T, not a list", result)
	}
	var publishers []string
	for _, item := range list {
		s, ok := item.(string)
		if !ok {
			logger.Fatal("publisher list contains a non string URI")
		}
		publishers = append(publishers, s)
	}

	sub = newDefaultSubscriber(name, msgType, callback)
	node.subscribers[name] = sub
	logger.Debugf("subscribed to %s, publishers: %v", name, publishers)
	go sub.start(&node.waitGroup, node.qualifiedName, node.xmlrpcURI, node.masterURI, node.jobChan, &node.logger)
	sub.pubListChan <- publishers
	return sub
}

func (node *defaultNode) NewServiceClient(service string, srvType ServiceType) ServiceClient {
	name := node.nameResolver.remap(service)
	return newDefaultServiceClient(&node.logger, node.qualifiedName, node.masterURI, name, srvType)
}

func (node *defaultNode) NewServiceServer(service string, srvType ServiceType, handler interface{}) ServiceServer {
	name := node.nameResolver.remap(service)
	server, ok := node.servers[name]
	if ok {
		server.Shutdown()
	}
	server = newDefaultServiceServer(node, name, srvType, handler)
	if server == nil {
		return nil
	}
	node.servers[name] = server
	return server
}

func (node *defaultNode) SpinOnce() {
	select {
	case job := <-node.jobChan:
		job()
	case <-time.After(10 * time.Millisecond):
	}
}

func (node *defaultNode) Spin() {
	for node.OK() {
		select {
		case job := <-node.jobChan:
			job()
		case <-time.After(1000 * time.Millisecond):
		}
	}
}

func (node *defaultNode) Shutdown() {
	logger := node.logger
	logger.Debug("shutting the node down")
	node.okMutex.Lock()
	node.ok = false
	node.okMutex.Unlock()
	for _, s := range node.subscribers {
		s.Shutdown()
	}
	node.publishers.Range(func(key, value interface{}) bool {
		value.(*defaultPublisher).Shutdown()
		return true
	})
	for _, s := range node.servers {
		s.Shutdown()
	}
	node.waitGroup.Wait()
	node.xmlrpcListener.Close()
	node.xmlrpcHandler.WaitForShutdown()
	logger.Debug("node shutdown complete")
}

func (node *defaultNode) GetParam(key string) (interface{}, error) {
	name := node.nameResolver.remap(key)
	return callRosAPI(node.masterURI, "getParam", node.qualifiedName, name)
}

func (node *defaultNode) SetParam(key string, value interface{}) error {
	name := node.nameResolver.remap(key)
	_, err := callRosAPI(node.masterURI, "setParam", node.qualifiedName, name, value)
	return err
}

func (node *defaultNode) HasParam(key string) (bool, error) {
	name := node.nameResolver.remap(key)
	result, err := callRosAPI(node.masterURI, "hasParam", node.qualifiedName, name)
	if err != nil {
		return false, err
	}
	hasParam, ok := result.(bool)
	if !ok {
		return false, errors.Errorf("hasParam answered with %T, not a bool", result)
	}
	return hasParam, nil
}

func (node *defaultNode) SearchParam(key string) (string, error) {
	result, err := callRosAPI(node.masterURI, "searchParam", node.qualifiedName, key)
	if err != nil {
		return "", err
	}
	foundKey, ok := result.(string)
	if !ok {
		return "", errors.Errorf("searchParam answered with %T, not a string", result)
	}
	return foundKey, nil
}

func (node *defaultNode) DeleteParam(key string) error {
	name := node.nameResolver.remap(key)
	_, err := callRosAPI(node.masterURI, "deleteParam", node.qualifiedName, name)
	return err
}

func (node *defaultNode) Logger() *modular.ModuleLogger {
	return &node.logger
}

func (node *defaultNode) SetLogSeverity(level logrus.Level) {
	node.rootLogger.SetLevel(level)
}

func (node *defaultNode) NonRosArgs() []string {
	return node.nonRosArgs
}

// loadParamFromString parses a parameter literal from the command line.
// JSON scalars, arrays and objects are decoded; a literal that does not parse
// as JSON is kept as a plain string, following rosparam conventions.
func loadParamFromString(s string) (interface{}, error) {
	literal := []byte(strings.TrimSpace(s))
	value, dataType, _, err := jsonparser.Get(literal)
	if err != nil {
		return string(literal), nil
	}
	return convertParamValue(value, dataType)
}

func convertParamValue(value []byte, dataType jsonparser.ValueType) (interface{}, error) {
	switch dataType {
	case jsonparser.Boolean:
		return jsonparser.ParseBoolean(value)
	case jsonparser.Number:
		return jsonparser.ParseFloat(value)
	case jsonparser.String:
		return jsonparser.ParseString(value)
	case jsonparser.Null:
		return nil, nil
	case jsonparser.Array:
		items := make([]interface{}, 0)
		var innerErr error
		_, err := jsonparser.ArrayEach(value, func(item []byte, itemType jsonparser.ValueType, _ int, _ error) {
			if innerErr != nil {
				return
			}
			v, err := convertParamValue(item, itemType)
			if err != nil {
				innerErr = err
				return
			}
			items = append(items, v)
		})
		if err != nil {
			return nil, err
		}
		if innerErr != nil {
			return nil, innerErr
		}
		return items, nil
	case jsonparser.Object:
		object := make(map[string]interface{})
		err := jsonparser.ObjectEach(value, func(key, item []byte, itemType jsonparser.ValueType, _ int) error {
			v, err := convertParamValue(item, itemType)
			if err != nil {
				return err
			}
			object[string(key)] = v
			return nil
		})
		if err != nil {
			return nil, err
		}
		return object, nil
	}
	return nil, errors.Errorf("unsupported parameter literal type %v", dataType)
}
