package bridge

import (
	"testing"

	"github.com/edwinhayes/orb-slam2-ros/slam"
)

type stereoPair struct {
	left  slam.Frame
	right slam.Frame
}

func collectPairs(pairs *[]stereoPair) func(left slam.Frame, right slam.Frame) {
	return func(left slam.Frame, right slam.Frame) {
		*pairs = append(*pairs, stereoPair{left, right})
	}
}

func stampedFrame(stamp float64) slam.Frame {
	return slam.Frame{Stamp: stamp, Encoding: "mono8"}
}

func TestPairerMatchesWithinSlop(t *testing.T) {
	var pairs []stereoPair
	pairer := newStereoPairer(0.01, collectPairs(&pairs))

	pairer.PushLeft(stampedFrame(1.000))
	if len(pairs) != 0 {
		t.Fatalf("Expected no pair from a single frame")
	}
	pairer.PushRight(stampedFrame(1.004))
	if len(pairs) != 1 {
		t.Fatalf("Expected 1 pair, got %d", len(pairs))
	}
	if pairs[0].left.Stamp != 1.000 || pairs[0].right.Stamp != 1.004 {
		t.Errorf("Wrong pair: %+v", pairs[0])
	}
}

func TestPairerIgnoresStampsOutsideSlop(t *testing.T) {
	var pairs []stereoPair
	pairer := newStereoPairer(0.01, collectPairs(&pairs))

	pairer.PushLeft(stampedFrame(1.0))
	pairer.PushRight(stampedFrame(1.5))
	if len(pairs) != 0 {
		t.Fatalf("Expected no pair across half a second, got %d", len(pairs))
	}
	// Both frames stay queued and pair up with their real partners.
	pairer.PushRight(stampedFrame(1.001))
	pairer.PushLeft(stampedFrame(1.499))
	if len(pairs) != 2 {
		t.Fatalf("Expected both queued frames to pair up, got %d", len(pairs))
	}
	if pairs[0].left.Stamp != 1.0 || pairs[0].right.Stamp != 1.001 {
		t.Errorf("Wrong first pair: %+v", pairs[0])
	}
	if pairs[1].left.Stamp != 1.499 || pairs[1].right.Stamp != 1.5 {
		t.Errorf("Wrong second pair: %+v", pairs[1])
	}
}

func TestPairerPicksClosest(t *testing.T) {
	var pairs []stereoPair
	pairer := newStereoPairer(0.01, collectPairs(&pairs))

	pairer.PushRight(stampedFrame(0.995))
	pairer.PushRight(stampedFrame(1.002))
	pairer.PushLeft(stampedFrame(1.000))
	if len(pairs) != 1 {
		t.Fatalf("Expected 1 pair, got %d", len(pairs))
	}
	if pairs[0].right.Stamp != 1.002 {
		t.Errorf("Expected the closest right frame, got %v", pairs[0].right.Stamp)
	}
}

func TestPairerBoundsItsQueues(t *testing.T) {
	var pairs []stereoPair
	pairer := newStereoPairer(0.01, collectPairs(&pairs))

	// Ten lefts a second apart with no rights; only the newest
	// stereoQueueDepth survive.
	for i := 0; i < 10; i++ {
		pairer.PushLeft(stampedFrame(float64(i)))
	}
	if len(pairer.lefts) != stereoQueueDepth {
		t.Fatalf("Expected the queue bounded at %d, got %d", stereoQueueDepth, len(pairer.lefts))
	}
	pairer.PushRight(stampedFrame(0.0))
	if len(pairs) != 0 {
		t.Fatalf("Expected the oldest frames to have been dropped")
	}
	pairer.PushRight(stampedFrame(9.0))
	if len(pairs) != 1 || pairs[0].left.Stamp != 9.0 {
		t.Fatalf("Expected the newest frame to still be queued")
	}
}
