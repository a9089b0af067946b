package ros

import (
	"net"
	"os"
	"strings"
)

// determineHost picks the address this node advertises to peers, honoring
// ROS_HOSTNAME and ROS_IP before falling back on the hostname and the first
// non-loopback interface. The second result reports whether the choice only
// makes sense on the local machine.
func determineHost() (string, bool) {
	if rosHostname, ok := os.LookupEnv("ROS_HOSTNAME"); ok {
		return rosHostname, (rosHostname == "localhost")
	}

	if rosIP, ok := os.LookupEnv("ROS_IP"); ok {
		return rosIP, (rosIP == "::1" || strings.HasPrefix(rosIP, "127."))
	}

	if osHostname, err := os.Hostname(); err == nil && osHostname != "localhost" {
		return osHostname, false
	}

	if addrs, err := net.InterfaceAddrs(); err == nil {
		for _, addr := range addrs {
			if ipnet, ok := addr.(*net.IPNet); ok && !ipnet.IP.IsLoopback() {
				return ipnet.IP.String(), false
			}
		}
	}
	return "127.0.0.1", true
}
