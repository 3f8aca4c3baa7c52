package engine

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// EngineConfig holds the tunables for one engine instance — the pool
// path and heap/zone sizing, the GC credit budget, the DTX commit
// batch thresholds, and the HLC clock skew tolerance — bound the same
// way the teacher binds ServerConfig: viper flags/env in cmd/serve,
// this struct is the parsed result handed to Init.
type EngineConfig struct {
	// Pool / heap
	PoolPath string
	NumZones int

	// Garbage collector
	GCTightCredits int
	GCSlackCredits int
	GCTickInterval time.Duration

	// DTX cache
	DTXCommitBatchCount int
	DTXCommitBatchAge   time.Duration

	// HLC
	HLCEpsilon time.Duration

	// Fabric/environment (spec.md §6 — names are normative, read
	// verbatim from the process environment by ApplyEnviron)
	CrtTimeout            time.Duration
	Interface             string
	Domain                string
	Provider              string
	RxmUseSRX             bool
	SecondaryProviderIdx  int

	LogLevel string
}

// DefaultEngineConfig mirrors the teacher's DefaultOptions pattern —
// sane defaults a caller overrides selectively.
func DefaultEngineConfig() *EngineConfig {
	return &EngineConfig{
		PoolPath:            "pool.vosd",
		NumZones:            4,
		GCTightCredits:      32,
		GCSlackCredits:      8,
		GCTickInterval:      100 * time.Millisecond,
		DTXCommitBatchCount: 512,
		DTXCommitBatchAge:   10 * time.Second,
		HLCEpsilon:          500 * time.Millisecond,
		CrtTimeout:          30 * time.Second,
		LogLevel:            "info",
	}
}

// envNames are the normative environment variable names from spec.md
// §6 — D_INTERFACE/D_DOMAIN are preferred over the deprecated
// OFI_INTERFACE/OFI_DOMAIN aliases.
const (
	envCrtTimeout          = "CRT_TIMEOUT"
	envInterface           = "D_INTERFACE"
	envInterfaceDeprecated = "OFI_INTERFACE"
	envDomain              = "D_DOMAIN"
	envDomainDeprecated    = "OFI_DOMAIN"
	envProvider            = "D_PROVIDER"
	envRxmUseSRX           = "FI_OFI_RXM_USE_SRX"
	envSecondaryProvider   = "CRT_SECONDARY_PROVIDER"
)

// ApplyEnviron reads spec.md §6's normative environment variables
// (via lookup, not os.Getenv directly, so tests can inject a fake
// environment) into c, preferring the non-deprecated variable name
// when both an alias and its replacement are present.
func (c *EngineConfig) ApplyEnviron(lookup func(string) (string, bool)) {
	if v, ok := lookup(envCrtTimeout); ok {
		if secs, err := strconv.Atoi(v); err == nil {
			c.CrtTimeout = time.Duration(secs) * time.Second
		}
	}
	if v, ok := lookup(envInterface); ok {
		c.Interface = v
	} else if v, ok := lookup(envInterfaceDeprecated); ok {
		c.Interface = v
	}
	if v, ok := lookup(envDomain); ok {
		c.Domain = v
	} else if v, ok := lookup(envDomainDeprecated); ok {
		c.Domain = v
	}
	if v, ok := lookup(envProvider); ok {
		c.Provider = v
	}
	if v, ok := lookup(envRxmUseSRX); ok {
		c.RxmUseSRX = v == "1" || strings.EqualFold(v, "true")
	}
	if v, ok := lookup(envSecondaryProvider); ok {
		if idx, err := strconv.Atoi(v); err == nil {
			c.SecondaryProviderIdx = idx
		}
	}
}

// String renders a section-based layout matching
// rpc/common.ServerConfig.String()'s format.
func (c *EngineConfig) String() string {
	var sb strings.Builder

	addSection := func(title string) {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("%s\n", strings.ToUpper(title)))
	}
	addField := func(name, value string) {
		sb.WriteString(fmt.Sprintf("  %-22s: %s\n", name, value))
	}

	addSection("Pool")
	addField("Path", c.PoolPath)
	addField("Zones", strconv.Itoa(c.NumZones))

	addSection("Garbage Collector")
	addField("Tight Credits", strconv.Itoa(c.GCTightCredits))
	addField("Slack Credits", strconv.Itoa(c.GCSlackCredits))
	addField("Tick Interval", c.GCTickInterval.String())

	addSection("DTX")
	addField("Commit Batch Count", strconv.Itoa(c.DTXCommitBatchCount))
	addField("Commit Batch Age", c.DTXCommitBatchAge.String())

	addSection("HLC")
	addField("Epsilon", c.HLCEpsilon.String())

	addSection("Fabric")
	addField("Timeout", c.CrtTimeout.String())
	addField("Interface", c.Interface)
	addField("Domain", c.Domain)
	addField("Provider", c.Provider)
	addField("RXM Use SRX", fmt.Sprintf("%t", c.RxmUseSRX))
	addField("Secondary Provider", strconv.Itoa(c.SecondaryProviderIdx))

	addSection("Logging")
	addField("Log Level", c.LogLevel)

	return sb.String()
}
