package main

import (
	"math"

	"hordestream.ai/internal/sim/spatial"
)

// leg is one scripted observer segment.
type leg struct {
	Name  string
	Ticks int
	// At returns the observer position for step i of the leg, given where the
	// leg started.
	At func(start spatial.Vec3, i int) spatial.Vec3
}

// script is straight line, diagonal, teleport, circle. speed is world units
// per tick.
func script(speed float32, ticksPerLeg int, teleportTo spatial.Vec3, circleRadius float32) []leg {
	return []leg{
		{Name: "straight", Ticks: ticksPerLeg, At: func(s spatial.Vec3, i int) spatial.Vec3 {
			return spatial.Vec3{X: s.X + speed*float32(i+1), Y: s.Y, Z: s.Z}
		}},
		{Name: "diagonal", Ticks: ticksPerLeg, At: func(s spatial.Vec3, i int) spatial.Vec3 {
			d := speed * float32(i+1) / math.Sqrt2
			return spatial.Vec3{X: s.X - d, Y: s.Y, Z: s.Z + d}
		}},
		{Name: "teleport", Ticks: ticksPerLeg / 2, At: func(_ spatial.Vec3, _ int) spatial.Vec3 {
			return teleportTo
		}},
		{Name: "circle", Ticks: ticksPerLeg, At: func(s spatial.Vec3, i int) spatial.Vec3 {
			// Start on the circle's rim so the first step is continuous.
			theta := float64(speed) * float64(i+1) / float64(circleRadius)
			cx := s.X - circleRadius
			return spatial.Vec3{
				X: cx + circleRadius*float32(math.Cos(theta)),
				Y: s.Y,
				Z: s.Z + circleRadius*float32(math.Sin(theta)),
			}
		}},
	}
}
