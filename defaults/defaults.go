/*
 * CapMaster - Cross-Capture TCP Correlation Toolkit
 *
 * THE SOFTWARE IS PROVIDED "AS IS" AND THE AUTHORS DISCLAIM ALL WARRANTIES
 * WITH REGARD TO THIS SOFTWARE INCLUDING ALL IMPLIED WARRANTIES OF
 * MERCHANTABILITY AND FITNESS. IN NO EVENT SHALL THE AUTHORS BE LIABLE FOR
 * ANY SPECIAL, DIRECT, INDIRECT, OR CONSEQUENTIAL DAMAGES OR ANY DAMAGES
 * WHATSOEVER RESULTING FROM LOSS OF USE, DATA OR PROFITS, WHETHER IN AN
 * ACTION OF CONTRACT, NEGLIGENCE OR OTHER TORTIOUS ACTION, ARISING OUT OF
 * OR IN CONNECTION WITH THE USE OR PERFORMANCE OF THIS SOFTWARE.
 */

// Package defaults centralizes the numeric and string constants referenced
// throughout the pipeline, so a config layer has a single place to fall
// back to.
package defaults

import "time"

const (
	// DirectoryPermission is the mode used when creating output directories.
	DirectoryPermission = 0o755

	// DissectorTimeout is how long a single dissector invocation may run
	// before it is killed and the file reported as failed.
	DissectorTimeout = 120 * time.Second

	// DissectorBinary is the name the dissector driver looks up on PATH.
	DissectorBinary = "tshark"

	// MinDissectorVersionMajor is the pinned floor for the dissector version.
	// A lower major version is a warning, not a fatal error (spec.md §6.4).
	MinDissectorVersionMajor = 4

	// LengthSignatureTokens is N, the number of payload-bearing frames
	// recorded per connection for the length-signature feature.
	LengthSignatureTokens = 12

	// PayloadHashBytes is the number of leading payload bytes hashed per
	// direction for the payload-MD5 feature.
	PayloadHashBytes = 256

	// HeaderOnlyRatio is the cap_len<orig_len fraction at or above which a
	// connection is flagged header-only.
	HeaderOnlyRatio = 0.80

	// SampleThreshold is the connection-count above which sampling kicks in.
	SampleThreshold = 1000

	// SampleRate is the default fraction of connections retained.
	SampleRate = 0.1

	// SampleTargetMin and SampleTargetMax clamp the sampler's computed target.
	SampleTargetMin = 100
	SampleTargetMax = 3000

	// SampleStrata is the number of time-based buckets used for stratified sampling.
	SampleStrata = 20

	// SampleMinorityCountFloor and SampleMinorityQuotaPercent bound how many
	// minority (outlier) connections are retained unconditionally.
	SampleMinorityCountFloor   = 5
	SampleMinorityQuotaPercent = 0.05

	// MinorityPacketCountLow and MinorityPacketCountHigh define an outlier
	// connection: packet_count <= Low or packet_count >= High.
	MinorityPacketCountLow  = 3
	MinorityPacketCountHigh = 500

	// ScoreThreshold is the default acceptance threshold for normalized scores.
	ScoreThreshold = 0.60

	// BucketStrategy is the default bucketing strategy.
	BucketStrategy = "auto"

	// MatchMode is the default matcher mode.
	MatchMode = "one-to-one"

	// IPIDGateMode controls how the IP-ID hard gate behaves for IPv6-only
	// traffic, where no IP-ID field exists (spec.md §9 Open Questions).
	IPIDGateMode = "fail-fast"

	// ReassemblyTimeout bounds how long the orchestrator waits for
	// in-flight per-file work to settle during shutdown.
	ReassemblyTimeout = 30 * time.Second
)
