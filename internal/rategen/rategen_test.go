package rategen_test

import (
	"testing"
	"time"

	"github.com/soconnect-project/soconnect/internal/rategen"
	"github.com/stretchr/testify/require"
)

func TestNew_ComputesMeanFromRateFormula(t *testing.T) {
	// burst=32, rate=1,000,000 pkt/s across 4 cores -> per-core rate
	// 250,000 pkt/s -> mean interval = 1e9*32/250000 = 128000ns.
	g := rategen.New(32, 1_000_000, 4, 1)
	require.Equal(t, 128_000*time.Nanosecond, g.Mean())
}

func TestNext_IsPositiveAndVariesAroundMean(t *testing.T) {
	g := rategen.New(16, 100_000, 1, 42)
	var sum time.Duration
	const n = 10_000
	for i := 0; i < n; i++ {
		d := g.Next()
		require.GreaterOrEqual(t, d, time.Duration(0))
		sum += d
	}
	avg := sum / n
	mean := g.Mean()
	// An exponential draw's sample mean over 10k trials should land
	// within a generous factor of the true mean.
	require.InEpsilon(t, float64(mean), float64(avg), 0.25)
}

func TestNew_DifferentSeedsDiverge(t *testing.T) {
	a := rategen.New(8, 10_000, 1, 1)
	b := rategen.New(8, 10_000, 1, 2)

	same := true
	for i := 0; i < 20; i++ {
		if a.Next() != b.Next() {
			same = false
			break
		}
	}
	require.False(t, same, "distinct seeds must not produce identical draw sequences")
}
