/*
 * CapMaster - Cross-Capture TCP Correlation Toolkit
 *
 * THE SOFTWARE IS PROVIDED "AS IS" AND THE AUTHORS DISCLAIM ALL WARRANTIES
 * WITH REGARD TO THIS SOFTWARE INCLUDING ALL IMPLIED WARRANTIES OF
 * MERCHANTABILITY AND FITNESS.
 */

// Package utils holds small helpers shared across the pipeline: decimal
// timestamp conversion, payload hashing, and set/mode arithmetic used by
// the connection builder and scorer.
package utils

import (
	"encoding/hex"

	"github.com/dreadl0ck/cryptoutils"
	"github.com/shopspring/decimal"
)

// DecimalSecondsToNanos converts the dissector's decimal-seconds string
// (e.g. "1700000000.123456") into whole nanoseconds using arbitrary
// precision decimal arithmetic, per spec.md §4.10: float multiplication
// silently drops sub-microsecond digits that a human-authored capture
// comparison cares about reproducing exactly.
func DecimalSecondsToNanos(secs string) (int64, error) {
	d, err := decimal.NewFromString(secs)
	if err != nil {
		return 0, err
	}

	return d.Mul(decimal.NewFromInt(1_000_000_000)).Round(0).IntPart(), nil
}

// NanosToDecimalSeconds is the inverse of DecimalSecondsToNanos, used by
// the round-trip tests in spec.md §8.
func NanosToDecimalSeconds(nanos int64) string {
	return decimal.New(nanos, -9).String()
}

// MD5Hex hashes data and returns the lowercase hex digest, using the
// teacher's cryptoutils helper rather than reimplementing a digest
// wrapper around crypto/md5.
func MD5Hex(data []byte) string {
	return hex.EncodeToString(cryptoutils.MD5Data(data))
}

// MD5Prefix hashes at most maxBytes of data and returns the digest as a
// uint128 encoded in two uint64 halves (hi, lo), matching the
// payload_hash_client_first / payload_hash_server_first u128 fields in
// spec.md §3.
func MD5Prefix(data []byte, maxBytes int) (hi, lo uint64) {
	if len(data) > maxBytes {
		data = data[:maxBytes]
	}

	sum := cryptoutils.MD5Data(data)

	for i := 0; i < 8; i++ {
		hi = hi<<8 | uint64(sum[i])
	}

	for i := 8; i < 16; i++ {
		lo = lo<<8 | uint64(sum[i])
	}

	return hi, lo
}

// JaccardStrings computes the Jaccard similarity of two string slices
// treated as sets.
func JaccardStrings(a, b []string) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}

	setA := make(map[string]struct{}, len(a))
	for _, s := range a {
		setA[s] = struct{}{}
	}

	setB := make(map[string]struct{}, len(b))
	for _, s := range b {
		setB[s] = struct{}{}
	}

	var intersection int

	for s := range setA {
		if _, ok := setB[s]; ok {
			intersection++
		}
	}

	union := len(setA) + len(setB) - intersection
	if union == 0 {
		return 0
	}

	return float64(intersection) / float64(union)
}

// ModeUint8 returns the most common value in vals and whether vals was
// non-empty. Used to compute the mode TTL per direction (spec.md §4.2).
func ModeUint8(vals []uint8) (mode uint8, ok bool) {
	if len(vals) == 0 {
		return 0, false
	}

	counts := make(map[uint8]int, len(vals))
	best := -1

	for _, v := range vals {
		counts[v]++
		if counts[v] > best {
			best = counts[v]
			mode = v
		}
	}

	return mode, true
}

// IntersectsUint16 reports whether two uint16 sets share any element.
func IntersectsUint16(a, b map[uint16]struct{}) bool {
	small, large := a, b
	if len(a) > len(b) {
		small, large = b, a
	}

	for v := range small {
		if _, ok := large[v]; ok {
			return true
		}
	}

	return false
}
