// Package rategen generates per-burst inter-send intervals for a
// sender's rate-shaping loop (spec §4.7): given a target aggregate
// packet rate split evenly across sender cores, each core draws its
// next gap from an exponential distribution whose mean keeps the core
// on target on average while letting individual bursts arrive early or
// late, modeling a Poisson arrival process rather than a fixed clock.
//
// Grounded on the teacher's own use of math/rand/v2 for a similarly
// non-security-sensitive per-session random draw (bfd.ApplyJitter's
// RFC 5880 jitter), generalized from a uniform reduction to an
// exponential generator and from time.Duration jitter to a full
// interval draw.
package rategen

import (
	"math/rand/v2"
	"time"
)

// Generator draws per-burst inter-send intervals for one sender core
// from an exponential distribution with the configured mean.
type Generator struct {
	meanNS float64
	rng    *rand.Rand
}

// New builds a Generator for one sender core. burstSize is the number
// of packets submitted per burst; packetRate is the aggregate target
// packet rate (packets/sec) across every sender core; nbSenderCores is
// the number of cores sharing that aggregate rate. The per-core mean
// inter-burst interval is 1e9 * burstSize / (packetRate / nbSenderCores)
// nanoseconds (spec §4.7).
//
// seed distinguishes one core's draws from another's; callers
// typically seed with the core's own logical id mixed into a run-wide
// base seed so repeated runs are reproducible.
func New(burstSize, packetRate, nbSenderCores int, seed uint64) *Generator {
	perCoreRate := float64(packetRate) / float64(nbSenderCores)
	meanNS := 1e9 * float64(burstSize) / perCoreRate
	return &Generator{
		meanNS: meanNS,
		rng:    rand.New(rand.NewPCG(seed, seed>>32|1)),
	}
}

// Next draws the next inter-burst interval.
func (g *Generator) Next() time.Duration {
	return time.Duration(g.meanNS * g.rng.ExpFloat64())
}

// Mean reports the configured mean inter-burst interval.
func (g *Generator) Mean() time.Duration {
	return time.Duration(g.meanNS)
}
