package ros

import (
	"github.com/edwinhayes/orb-slam2-ros/xmlrpc"
	"github.com/pkg/errors"
)

// Status codes of the ROS master and slave APIs.
const (
	APIStatusError   = -1
	APIStatusFailure = 0
	APIStatusSuccess = 1
)

// callRosAPI invokes an XMLRPC method on a master or slave endpoint and
// unwraps the (code, statusMessage, value) triplet every ROS API call
// answers with, turning non success codes into errors.
func callRosAPI(uri string, method string, args ...interface{}) (interface{}, error) {
	result, err := xmlrpc.Call(uri, method, args...)
	if err != nil {
		return nil, errors.Wrapf(err, "%s call to %s failed", method, uri)
	}
	triplet, ok := result.([]interface{})
	if !ok || len(triplet) != 3 {
		return nil, errors.Errorf("%s answered with a malformed result", method)
	}
	code, ok := triplet[0].(int32)
	if !ok {
		return nil, errors.New("status code is not an int")
	}
	message, ok := triplet[1].(string)
	if !ok {
		return nil, errors.New("status message is not a string")
	}
	if code != APIStatusSuccess {
		return nil, errors.Errorf("%s failed with code %d: %s", method, code, message)
	}
	return triplet[2], nil
}

// buildRosAPIResult wraps a value in the (code, statusMessage, value)
// triplet the ROS APIs answer with.
func buildRosAPIResult(code int32, message string, value interface{}) interface{} {
	return []interface{}{code, message, value}
}
