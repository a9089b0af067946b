package bridge

import (
	"gonum.org/v1/gonum/mat"

	"github.com/edwinhayes/orb-slam2-ros/msgs/geometry_msgs"
	"github.com/edwinhayes/orb-slam2-ros/ros"
	"github.com/edwinhayes/orb-slam2-ros/slam"
	"github.com/edwinhayes/orb-slam2-ros/transform"
)

// worldPose converts an engine pose, the world seen from the camera, into
// the camera seen from the world.
func worldPose(pose slam.PoseMatrix) (transform.Transformation, error) {
	tCW, err := transform.FromMatrix(mat.NewDense(4, 4, pose[:]))
	if err != nil {
		return transform.Transformation{}, err
	}
	return tCW.Inverse(), nil
}

func transformMsg(t transform.Transformation) geometry_msgs.Transform {
	return geometry_msgs.Transform{
		Translation: geometry_msgs.Vector3{
			X: t.Translation.X,
			Y: t.Translation.Y,
			Z: t.Translation.Z,
		},
		Rotation: geometry_msgs.Quaternion{
			X: t.Rotation.Imag,
			Y: t.Rotation.Jmag,
			Z: t.Rotation.Kmag,
			W: t.Rotation.Real,
		},
	}
}

func poseMsg(t transform.Transformation) geometry_msgs.Pose {
	return geometry_msgs.Pose{
		Position: geometry_msgs.Point{
			X: t.Translation.X,
			Y: t.Translation.Y,
			Z: t.Translation.Z,
		},
		Orientation: geometry_msgs.Quaternion{
			X: t.Rotation.Imag,
			Y: t.Rotation.Jmag,
			Z: t.Rotation.Kmag,
			W: t.Rotation.Real,
		},
	}
}

// stampFromSec converts an engine timestamp, seconds since the unix epoch,
// into a ros.Time. Timestamps from before the epoch collapse to zero.
func stampFromSec(sec float64) ros.Time {
	var t ros.Time
	if sec > 0 {
		t.FromSec(sec)
	}
	return t
}
