package ros

import (
	"bytes"
	"encoding/binary"
	"io"
	"net"
	"net/url"
	"time"

	modular "github.com/edwinhayes/logrus-modular"
	"github.com/pkg/errors"
)

// defaultServiceClient dials the service fresh on every call. The master is
// asked for the provider each time so a restarted server is picked up.
type defaultServiceClient struct {
	logger    *modular.ModuleLogger
	service   string
	srvType   ServiceType
	masterURI string
	nodeID    string
}

func newDefaultServiceClient(log *modular.ModuleLogger, nodeID string, masterURI string, service string, srvType ServiceType) *defaultServiceClient {
	return &defaultServiceClient{
		logger:    log,
		service:   service,
		srvType:   srvType,
		masterURI: masterURI,
		nodeID:    nodeID,
	}
}

func (c *defaultServiceClient) Call(srv Service) error {
	logger := *c.logger

	result, err := callRosAPI(c.masterURI, "lookupService", c.nodeID, c.service)
	if err != nil {
		return errors.Wrapf(err, "lookup of service %s failed", c.service)
	}
	serviceRawURL, ok := result.(string)
	if !ok {
		return errors.Errorf("master answered lookupService for %s with a non string URI", c.service)
	}
	serviceURL, err := url.Parse(serviceRawURL)
	if err != nil {
		return err
	}

	conn, err := net.Dial("tcp", serviceURL.Host)
	if err != nil {
		return errors.Wrapf(err, "failed to connect to %s", serviceRawURL)
	}
	defer conn.Close()

	md5sum := c.srvType.MD5Sum()
	headers := []header{
		{"service", c.service},
		{"md5sum", md5sum},
		{"type", c.srvType.Name()},
		{"callerid", c.nodeID},
	}
	for _, h := range headers {
		logger.Debugf("request header `%s` = `%s`", h.key, h.value)
	}
	conn.SetDeadline(time.Now().Add(10 * time.Millisecond))
	if err := writeConnectionHeader(headers, conn); err != nil {
		return err
	}

	conn.SetDeadline(time.Now().Add(10 * time.Millisecond))
	resHeaders, err := readConnectionHeader(conn)
	if err != nil {
		return err
	}
	resHeaderMap := make(map[string]string)
	for _, h := range resHeaders {
		resHeaderMap[h.key] = h.value
		logger.Debugf("response header `%s` = `%s`", h.key, h.value)
	}
	if resHeaderMap["md5sum"] != md5sum && resHeaderMap["md5sum"] != "*" {
		return errors.Errorf("incompatible response on service %s", c.service)
	}

	var buf bytes.Buffer
	if err := srv.ReqMessage().Serialize(&buf); err != nil {
		return errors.Wrapf(err, "failed to serialize a request on %s", c.service)
	}
	reqMsg := buf.Bytes()
	conn.SetDeadline(time.Now().Add(10 * time.Millisecond))
	if err := binary.Write(conn, binary.LittleEndian, uint32(len(reqMsg))); err != nil {
		return err
	}
	conn.SetDeadline(time.Now().Add(10 * time.Millisecond))
	if _, err := conn.Write(reqMsg); err != nil {
		return err
	}

	// The status byte arrives once the remote handler has run, so this wait
	// matches the handler budget on the server side.
	var status byte
	conn.SetDeadline(time.Now().Add(1000 * time.Millisecond))
	if err := binary.Read(conn, binary.LittleEndian, &status); err != nil {
		return err
	}
	if status == 0 {
		errMsg, err := readLengthPrefixed(conn)
		if err != nil {
			return err
		}
		return errors.New(string(errMsg))
	}

	resBuffer, err := readLengthPrefixed(conn)
	if err != nil {
		return err
	}
	return srv.ResMessage().Deserialize(bytes.NewReader(resBuffer))
}

// readLengthPrefixed reads one size prefixed block from the stream.
func readLengthPrefixed(conn net.Conn) ([]byte, error) {
	var size uint32
	conn.SetDeadline(time.Now().Add(10 * time.Millisecond))
	if err := binary.Read(conn, binary.LittleEndian, &size); err != nil {
		return nil, err
	}
	payload := make([]byte, int(size))
	conn.SetDeadline(time.Now().Add(10 * time.Millisecond))
	if _, err := io.ReadFull(conn, payload); err != nil {
		return nil, err
	}
	return payload, nil
}

func (*defaultServiceClient) Shutdown() {}
