/*
 * CapMaster - Cross-Capture TCP Correlation Toolkit
 *
 * THE SOFTWARE IS PROVIDED "AS IS" AND THE AUTHORS DISCLAIM ALL WARRANTIES
 * WITH REGARD TO THIS SOFTWARE INCLUDING ALL IMPLIED WARRANTIES OF
 * MERCHANTABILITY AND FITNESS.
 */

// Package config layers CLI flags over a config file over built-in
// defaults with viper, and validates the merged result (spec.md §6.2,
// §7 ConfigInvalid).
package config

import (
	"regexp"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/netforensic/capmaster/bucket"
	"github.com/netforensic/capmaster/defaults"
	"github.com/netforensic/capmaster/internal/errs"
	"github.com/netforensic/capmaster/match"
)

var caseIDPattern = regexp.MustCompile(`^[a-zA-Z0-9_]+$`)

// Config is the fully-resolved, validated set of options driving one
// match or compare invocation.
type Config struct {
	BucketStrategy  bucket.Strategy
	MatchMode       match.Mode
	ScoreThreshold  float64

	SampleEnabled   bool
	SampleThreshold int
	SampleRate      float64

	DissectorBinary  string
	DissectorTimeout time.Duration

	DBDriver string
	DBDSN    string
	CaseID   string

	IPv6GateMode string

	// Debug enables verbose logging and spew dumps of every built
	// TcpConnection and scored pair, driven by the --debug flag.
	Debug bool
}

// Load builds a Config from viper settings already populated by flags
// and a config file (flags take precedence, viper's own default), falling
// back to the defaults package for anything left unset. Environment
// variables are not consulted.
func Load(v *viper.Viper) (*Config, error) {
	if v == nil {
		v = viper.New()
	}

	c := &Config{
		BucketStrategy:   bucket.Strategy(v.GetString("bucket-strategy")),
		MatchMode:        match.Mode(v.GetString("match-mode")),
		ScoreThreshold:   v.GetFloat64("score-threshold"),
		SampleEnabled:    v.GetBool("sample-enabled"),
		SampleThreshold:  v.GetInt("sample-threshold"),
		SampleRate:       v.GetFloat64("sample-rate"),
		DissectorBinary:  v.GetString("dissector-binary"),
		DissectorTimeout: v.GetDuration("dissector-timeout"),
		DBDriver:         v.GetString("db-driver"),
		DBDSN:            v.GetString("db-dsn"),
		CaseID:           v.GetString("case-id"),
		IPv6GateMode:     v.GetString("ipid-gate-mode"),
		Debug:            v.GetBool("debug"),
	}

	c.applyDefaults()

	if err := c.Validate(); err != nil {
		return nil, err
	}

	return c, nil
}

func (c *Config) applyDefaults() {
	if c.BucketStrategy == "" {
		c.BucketStrategy = defaults.BucketStrategy
	}
	if c.MatchMode == "" {
		c.MatchMode = defaults.MatchMode
	}
	if c.ScoreThreshold == 0 {
		c.ScoreThreshold = defaults.ScoreThreshold
	}
	if c.SampleThreshold == 0 {
		c.SampleThreshold = defaults.SampleThreshold
	}
	if c.SampleRate == 0 {
		c.SampleRate = defaults.SampleRate
	}
	if c.DissectorBinary == "" {
		c.DissectorBinary = defaults.DissectorBinary
	}
	if c.DissectorTimeout == 0 {
		c.DissectorTimeout = defaults.DissectorTimeout
	}
	if c.DBDriver == "" {
		c.DBDriver = "sqlite"
	}
	if c.IPv6GateMode == "" {
		c.IPv6GateMode = defaults.IPIDGateMode
	}
}

// Validate checks range and mutual-exclusivity invariants, returning a
// *errs.Error of KindConfigInvalid on failure.
func (c *Config) Validate() error {
	switch c.BucketStrategy {
	case bucket.StrategyServer, bucket.StrategyPort, bucket.StrategyNone, bucket.StrategyAuto:
	default:
		return errs.New(errs.KindConfigInvalid, "bucket strategy must be one of server, port, none, auto")
	}

	switch c.MatchMode {
	case match.ModeOneToOne, match.ModeOneToMany:
	default:
		return errs.New(errs.KindConfigInvalid, "match mode must be one-to-one or one-to-many")
	}

	if c.ScoreThreshold < 0 || c.ScoreThreshold > 1 {
		return errs.New(errs.KindConfigInvalid, "score threshold must be between 0 and 1")
	}

	if c.SampleRate < 0 || c.SampleRate > 1 {
		return errs.New(errs.KindConfigInvalid, "sample rate must be between 0 and 1")
	}

	if c.IPv6GateMode != "fail-fast" && c.IPv6GateMode != "skip-gate" {
		return errs.New(errs.KindConfigInvalid, "ipid gate mode must be fail-fast or skip-gate")
	}

	if c.DBDSN != "" && c.CaseID == "" {
		return errs.New(errs.KindConfigInvalid, "a database DSN requires a case id")
	}

	if c.CaseID != "" && !caseIDPattern.MatchString(c.CaseID) {
		return errs.New(errs.KindConfigInvalid, "case id must match [a-zA-Z0-9_]+")
	}

	return nil
}

// BindFlags registers the shared flag set on fs, the way the teacher's
// CLI binds flags once and lets viper read them back by name.
func BindFlags(fs *pflag.FlagSet) {
	fs.String("bucket-strategy", string(defaults.BucketStrategy), "bucketing strategy: server, port, none, auto")
	fs.String("match-mode", defaults.MatchMode, "matcher mode: one-to-one, one-to-many")
	fs.Float64("score-threshold", defaults.ScoreThreshold, "minimum normalized score to accept a match")
	fs.Bool("sample-enabled", false, "enable time-stratified subsampling for large inputs")
	fs.Int("sample-threshold", defaults.SampleThreshold, "connection count above which sampling activates")
	fs.Float64("sample-rate", defaults.SampleRate, "fraction of connections retained when sampling")
	fs.String("dissector-binary", defaults.DissectorBinary, "external dissector binary name")
	fs.Duration("dissector-timeout", defaults.DissectorTimeout, "per-file dissector invocation timeout")
	fs.String("db-driver", "sqlite", "database/sql driver name for the compare write-through sink")
	fs.String("db-dsn", "", "database connection string; empty disables the DB sink")
	fs.String("case-id", "", "case id used to derive the compare output table name")
	fs.String("ipid-gate-mode", defaults.IPIDGateMode, "IP-ID hard gate behavior with no captured IP-ID: fail-fast, skip-gate")
}
