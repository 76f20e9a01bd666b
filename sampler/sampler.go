/*
 * CapMaster - Cross-Capture TCP Correlation Toolkit
 *
 * THE SOFTWARE IS PROVIDED "AS IS" AND THE AUTHORS DISCLAIM ALL WARRANTIES
 * WITH REGARD TO THIS SOFTWARE INCLUDING ALL IMPLIED WARRANTIES OF
 * MERCHANTABILITY AND FITNESS.
 */

// Package sampler implements the optional time-stratified subsampling
// stage (spec.md §4.4), reducing a very large connection set before
// bucketing/scoring while preserving rare ("minority") connections
// unconditionally.
package sampler

import (
	"hash/fnv"
	"math/rand"
	"sort"

	"github.com/netforensic/capmaster/connection"
	"github.com/netforensic/capmaster/defaults"
)

// Options configures the sampler. Zero-value Options falls back to
// defaults package values.
type Options struct {
	Enabled   bool
	Threshold int
	Rate      float64
	Strata    int
	Seed      *int64 // explicit override; nil means derive from file path
}

func (o Options) withDefaults() Options {
	if o.Threshold == 0 {
		o.Threshold = defaults.SampleThreshold
	}
	if o.Rate == 0 {
		o.Rate = defaults.SampleRate
	}
	if o.Strata == 0 {
		o.Strata = defaults.SampleStrata
	}
	return o
}

// SeedFromPath derives a deterministic RNG seed from a file path, per
// spec.md §5 "Sampler RNG is keyed by a seed derived from the file path".
func SeedFromPath(path string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(path))
	return int64(h.Sum64())
}

// Sample applies time-stratified subsampling with minority preservation,
// returning the retained subset. If sampling is disabled or the input is
// at or below the threshold, the input is returned unchanged.
func Sample(conns []*connection.TcpConnection, file string, opts Options) []*connection.TcpConnection {
	opts = opts.withDefaults()

	if !opts.Enabled || len(conns) <= opts.Threshold {
		return conns
	}

	seed := SeedFromPath(file)
	if opts.Seed != nil {
		seed = *opts.Seed
	}
	rng := rand.New(rand.NewSource(seed))

	n := len(conns)
	target := clamp(round(opts.Rate*float64(n)), defaults.SampleTargetMin, defaults.SampleTargetMax)

	retained := make(map[*connection.TcpConnection]struct{}, target)

	minorityCap := maxInt(defaults.SampleMinorityCountFloor, round(defaults.SampleMinorityQuotaPercent*float64(target)))
	var minority []*connection.TcpConnection
	for _, c := range conns {
		if isMinority(c) {
			minority = append(minority, c)
		}
	}
	// deterministic order before random selection, since map iteration
	// elsewhere in the pipeline is never relied upon for connection order.
	sort.Slice(minority, func(i, j int) bool { return minority[i].StreamID < minority[j].StreamID })
	rng.Shuffle(len(minority), func(i, j int) { minority[i], minority[j] = minority[j], minority[i] })
	if len(minority) > minorityCap {
		minority = minority[:minorityCap]
	}
	for _, c := range minority {
		retained[c] = struct{}{}
	}

	strata := stratify(conns, opts.Strata)
	remaining := target - len(retained)
	if remaining > 0 {
		allocateFromStrata(strata, remaining, rng, retained)
	}

	out := make([]*connection.TcpConnection, 0, len(retained))
	for _, c := range conns {
		if _, ok := retained[c]; ok {
			out = append(out, c)
		}
	}
	return out
}

// isMinority flags outlier connections by packet count, per spec.md §4.4.
func isMinority(c *connection.TcpConnection) bool {
	return c.PacketCount <= defaults.MinorityPacketCountLow || c.PacketCount >= defaults.MinorityPacketCountHigh
}

// stratify buckets connections into T equal-width time strata by
// first-packet time.
func stratify(conns []*connection.TcpConnection, strataCount int) [][]*connection.TcpConnection {
	if len(conns) == 0 {
		return nil
	}

	lo, hi := conns[0].FirstPacketTime, conns[0].FirstPacketTime
	for _, c := range conns {
		if c.FirstPacketTime < lo {
			lo = c.FirstPacketTime
		}
		if c.FirstPacketTime > hi {
			hi = c.FirstPacketTime
		}
	}

	strata := make([][]*connection.TcpConnection, strataCount)
	span := hi - lo
	for _, c := range conns {
		idx := 0
		if span > 0 {
			idx = int(float64(c.FirstPacketTime-lo) / float64(span) * float64(strataCount))
			if idx >= strataCount {
				idx = strataCount - 1
			}
		}
		strata[idx] = append(strata[idx], c)
	}
	return strata
}

// allocateFromStrata draws proportional-to-size random samples from each
// stratum until the target is met, skipping connections already retained
// via minority preservation.
func allocateFromStrata(strata [][]*connection.TcpConnection, remaining int, rng *rand.Rand, retained map[*connection.TcpConnection]struct{}) {
	total := 0
	for _, s := range strata {
		total += len(s)
	}
	if total == 0 {
		return
	}

	for _, stratum := range strata {
		if remaining <= 0 {
			return
		}

		quota := round(float64(len(stratum)) / float64(total) * float64(remaining))
		if quota > len(stratum) {
			quota = len(stratum)
		}

		order := rng.Perm(len(stratum))
		taken := 0
		for _, idx := range order {
			if taken >= quota {
				break
			}
			c := stratum[idx]
			if _, already := retained[c]; already {
				continue
			}
			retained[c] = struct{}{}
			taken++
		}
	}
}

func round(f float64) int {
	if f < 0 {
		return int(f - 0.5)
	}
	return int(f + 0.5)
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
