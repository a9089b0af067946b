package ros

import (
	"os"
	"testing"
)

func TestDetermineHost(t *testing.T) {
	cases := []struct {
		name      string
		hostname  string
		ip        string
		want      string
		localOnly bool
	}{
		{"hostname localhost", "localhost", "", "localhost", true},
		{"hostname set", "brix.local", "", "brix.local", false},
		{"hostname wins over ip", "brix.local", "1.2.3.4", "brix.local", false},
		{"ip set", "", "1.2.3.4", "1.2.3.4", false},
		{"ip loopback", "", "127.0.0.1", "127.0.0.1", true},
		{"ip v6 loopback", "", "::1", "::1", true},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			// Touch both so t.Setenv restores whatever the host had.
			t.Setenv("ROS_HOSTNAME", "")
			t.Setenv("ROS_IP", "")
			os.Unsetenv("ROS_HOSTNAME")
			os.Unsetenv("ROS_IP")
			if c.hostname != "" {
				os.Setenv("ROS_HOSTNAME", c.hostname)
			}
			if c.ip != "" {
				os.Setenv("ROS_IP", c.ip)
			}

			host, localOnly := determineHost()
			if host != c.want || localOnly != c.localOnly {
				t.Errorf("determineHost() = (%q, %v), want (%q, %v)",
					host, localOnly, c.want, c.localOnly)
			}
		})
	}
}
