package robot

import (
	"math"
	"sync/atomic"
)

// Heading holds the latest yaw estimate. Transports call Set as odometry
// arrives; controllers read it synchronously through Yaw.
type Heading struct {
	bits    atomic.Uint64
	valid   atomic.Bool
	updates atomic.Uint64
}

// Set stores a new yaw in radians.
func (h *Heading) Set(yaw float64) {
	h.bits.Store(math.Float64bits(yaw))
	h.valid.Store(true)
	h.updates.Add(1)
}

// Yaw returns the latest yaw and whether any reading has arrived.
func (h *Heading) Yaw() (float64, bool) {
	if !h.valid.Load() {
		return 0, false
	}
	return math.Float64frombits(h.bits.Load()), true
}

// Updates returns the number of readings received.
func (h *Heading) Updates() uint64 {
	return h.updates.Load()
}

// YawFromQuaternion extracts the rotation about the vertical axis from an
// orientation quaternion (ZYX convention).
func YawFromQuaternion(x, y, z, w float64) float64 {
	sinyCosp := 2 * (w*z + x*y)
	cosyCosp := 1 - 2*(y*y+z*z)
	return math.Atan2(sinyCosp, cosyCosp)
}
