package bridge

import (
	"math"
	"sync"

	"github.com/edwinhayes/orb-slam2-ros/slam"
)

const (
	// stereoSlop is how far apart in seconds the two stamps of a stereo
	// pair may be. Hardware-triggered rigs stamp both images identically,
	// software-triggered ones are usually within a frame period.
	stereoSlop = 0.01
	// stereoQueueDepth bounds the per-eye backlog of unpaired frames.
	stereoQueueDepth = 8
)

// stereoPairer matches left and right camera frames by timestamp. A frame
// with no partner within the slop window waits in a bounded queue until one
// arrives or newer frames push it out.
type stereoPairer struct {
	slop    float64
	matched func(left, right slam.Frame)

	mu     sync.Mutex
	lefts  []slam.Frame
	rights []slam.Frame
}

func newStereoPairer(slop float64, matched func(left, right slam.Frame)) *stereoPairer {
	return &stereoPairer{slop: slop, matched: matched}
}

func (p *stereoPairer) PushLeft(frame slam.Frame) {
	p.mu.Lock()
	match, ok := takeClosest(&p.rights, frame.Stamp, p.slop)
	if !ok {
		p.lefts = enqueueFrame(p.lefts, frame)
		p.mu.Unlock()
		return
	}
	p.mu.Unlock()
	p.matched(frame, match)
}

func (p *stereoPairer) PushRight(frame slam.Frame) {
	p.mu.Lock()
	match, ok := takeClosest(&p.lefts, frame.Stamp, p.slop)
	if !ok {
		p.rights = enqueueFrame(p.rights, frame)
		p.mu.Unlock()
		return
	}
	p.mu.Unlock()
	p.matched(match, frame)
}

// takeClosest removes and returns the queued frame closest to stamp, as long
// as it is within slop seconds.
func takeClosest(queue *[]slam.Frame, stamp float64, slop float64) (slam.Frame, bool) {
	best := -1
	for i, frame := range *queue {
		distance := math.Abs(frame.Stamp - stamp)
		if distance > slop {
			continue
		}
		if best < 0 || distance < math.Abs((*queue)[best].Stamp-stamp) {
			best = i
		}
	}
	if best < 0 {
		return slam.Frame{}, false
	}
	match := (*queue)[best]
	*queue = append((*queue)[:best], (*queue)[best+1:]...)
	return match, true
}

func enqueueFrame(queue []slam.Frame, frame slam.Frame) []slam.Frame {
	queue = append(queue, frame)
	if len(queue) > stereoQueueDepth {
		queue = queue[1:]
	}
	return queue
}
