// Package zones detects support and resistance levels from open
// interest concentration and tracks their lifecycle across ticks.
package zones

import (
	"math"
	"sort"
	"time"

	"github.com/montanaflynn/stats"

	"options-analyzer/internal/analysis"
	"options-analyzer/internal/models"
)

// Config controls candidate detection and zone lifecycle.
type Config struct {
	// OIRatio is the dominance ratio one side's OI must exceed over
	// the other for a strike to become a candidate.
	OIRatio float64
	// ProminenceSigma is how many standard deviations above the mean
	// chain OI the dominant side must sit. Zero disables the filter.
	ProminenceSigma float64
	// MergeTolerance is the price distance within which candidates
	// collapse into one zone.
	MergeTolerance float64
	// ConfirmTicks is how many consecutive ticks a candidate must
	// reappear before the zone is confirmed.
	ConfirmTicks int
	// DecayTicks is how many consecutive absent ticks a confirmed
	// zone survives before it is dropped.
	DecayTicks int
}

// DefaultConfig returns the regular-session zone parameters.
func DefaultConfig() Config {
	return Config{
		OIRatio:         1.12,
		ProminenceSigma: 1.0,
		MergeTolerance:  20,
		ConfirmTicks:    3,
		DecayTicks:      5,
	}
}

// trackedZone is the internal lifecycle record behind a published zone.
type trackedZone struct {
	level      float64
	kind       analysis.ZoneKind
	strength   float64
	seenTicks  int
	missTicks  int
	confirmed  bool
	lastUpdate time.Time
}

// Detector tracks zones across ticks. Not safe for concurrent use; the
// engine calls it from its single processing goroutine.
type Detector struct {
	cfg    Config
	zones  []*trackedZone
	expiry bool
}

// NewDetector creates a detector with the given configuration.
func NewDetector(cfg Config) *Detector {
	return &Detector{cfg: cfg}
}

// SetExpiryMode halves the confirmation and decay requirements so the
// detector reacts to the faster positioning churn of expiry day.
func (d *Detector) SetExpiryMode(on bool) {
	d.expiry = on
}

func (d *Detector) confirmTicks() int {
	if d.expiry {
		return max(1, d.cfg.ConfirmTicks/2)
	}
	return d.cfg.ConfirmTicks
}

func (d *Detector) decayTicks() int {
	if d.expiry {
		return max(1, d.cfg.DecayTicks/2)
	}
	return d.cfg.DecayTicks
}

// Update ingests one snapshot and returns the currently confirmed
// zones, strongest first.
func (d *Detector) Update(snap *models.OptionChainSnapshot) []analysis.SRZone {
	candidates := d.candidates(snap)

	matched := make(map[*trackedZone]bool)
	for _, c := range candidates {
		z := d.match(c)
		if z == nil {
			d.zones = append(d.zones, &trackedZone{
				level:      c.level,
				kind:       c.kind,
				strength:   c.strength,
				seenTicks:  1,
				confirmed:  d.confirmTicks() <= 1,
				lastUpdate: snap.Timestamp,
			})
			continue
		}
		// Drift the centroid toward the fresh reading.
		z.level = (z.level + c.level) / 2
		z.strength = c.strength
		z.seenTicks++
		z.missTicks = 0
		z.lastUpdate = snap.Timestamp
		if z.seenTicks >= d.confirmTicks() {
			z.confirmed = true
		}
		matched[z] = true
	}

	kept := d.zones[:0]
	for _, z := range d.zones {
		if matched[z] || z.lastUpdate.Equal(snap.Timestamp) {
			kept = append(kept, z)
			continue
		}
		z.missTicks++
		if z.confirmed && z.missTicks <= d.decayTicks() {
			kept = append(kept, z)
		}
		// Unconfirmed candidates drop on the first missed tick.
	}
	d.zones = kept

	return d.Confirmed()
}

// Confirmed returns the confirmed zones sorted by strength descending.
func (d *Detector) Confirmed() []analysis.SRZone {
	var out []analysis.SRZone
	for _, z := range d.zones {
		if !z.confirmed {
			continue
		}
		out = append(out, analysis.SRZone{
			PriceLevel:     z.level,
			Kind:           z.kind,
			Strength:       z.strength,
			ConfirmedTicks: z.seenTicks,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Strength != out[j].Strength {
			return out[i].Strength > out[j].Strength
		}
		return out[i].PriceLevel < out[j].PriceLevel
	})
	return out
}

// Nearest returns the closest confirmed zone of the given kind to the
// price, or nil when none exists. Ties break toward the stronger zone.
func (d *Detector) Nearest(price float64, kind analysis.ZoneKind) *analysis.SRZone {
	var best *trackedZone
	bestDist := math.MaxFloat64
	for _, z := range d.zones {
		if !z.confirmed || z.kind != kind {
			continue
		}
		dist := math.Abs(z.level - price)
		if dist < bestDist || (dist == bestDist && best != nil && z.strength > best.strength) {
			best = z
			bestDist = dist
		}
	}
	if best == nil {
		return nil
	}
	return &analysis.SRZone{
		PriceLevel:     best.level,
		Kind:           best.kind,
		Strength:       best.strength,
		ConfirmedTicks: best.seenTicks,
	}
}

// Reset drops all tracked state, confirmed or not. Used after a feed
// gap long enough that continuity cannot be assumed.
func (d *Detector) Reset() {
	d.zones = nil
}

type candidate struct {
	level    float64
	kind     analysis.ZoneKind
	strength float64
}

// candidates scans the chain for strikes where one side's OI dominates
// the other by the configured ratio and clears the prominence filter.
func (d *Detector) candidates(snap *models.OptionChainSnapshot) []candidate {
	floor := d.oiFloor(snap)

	var raw []candidate
	for _, row := range snap.Strikes {
		if row.Call == nil || row.Put == nil {
			continue
		}
		callOI := float64(row.Call.OI)
		putOI := float64(row.Put.OI)
		switch {
		case putOI > d.cfg.OIRatio*callOI && putOI >= floor:
			raw = append(raw, candidate{
				level:    row.StrikePrice,
				kind:     analysis.ZoneSupport,
				strength: putOI,
			})
		case callOI > d.cfg.OIRatio*putOI && callOI >= floor:
			raw = append(raw, candidate{
				level:    row.StrikePrice,
				kind:     analysis.ZoneResistance,
				strength: callOI,
			})
		}
	}
	return d.merge(raw)
}

// oiFloor returns mean + k*sigma of per-side OI across the chain, the
// minimum a dominant side must carry to count as concentration.
func (d *Detector) oiFloor(snap *models.OptionChainSnapshot) float64 {
	if d.cfg.ProminenceSigma <= 0 {
		return 0
	}
	var sample []float64
	for _, row := range snap.Strikes {
		if row.Call != nil {
			sample = append(sample, float64(row.Call.OI))
		}
		if row.Put != nil {
			sample = append(sample, float64(row.Put.OI))
		}
	}
	if len(sample) < 2 {
		return 0
	}
	mean, err := stats.Mean(sample)
	if err != nil {
		return 0
	}
	sigma, err := stats.StandardDeviation(sample)
	if err != nil {
		return 0
	}
	return mean + d.cfg.ProminenceSigma*sigma
}

// merge collapses same-kind candidates within MergeTolerance into one,
// at the strength-weighted centroid.
func (d *Detector) merge(raw []candidate) []candidate {
	if len(raw) == 0 {
		return nil
	}
	sort.Slice(raw, func(i, j int) bool { return raw[i].level < raw[j].level })

	var out []candidate
	cur := raw[0]
	weight := cur.strength
	weighted := cur.level * cur.strength
	for _, c := range raw[1:] {
		if c.kind == cur.kind && c.level-cur.level <= d.cfg.MergeTolerance {
			weighted += c.level * c.strength
			weight += c.strength
			if c.strength > cur.strength {
				cur.strength = c.strength
			}
			cur.level = c.level
			continue
		}
		out = append(out, candidate{level: weighted / weight, kind: cur.kind, strength: cur.strength})
		cur = c
		weight = c.strength
		weighted = c.level * c.strength
	}
	out = append(out, candidate{level: weighted / weight, kind: cur.kind, strength: cur.strength})
	return out
}

// match finds the tracked zone this candidate refreshes, if any.
func (d *Detector) match(c candidate) *trackedZone {
	var best *trackedZone
	bestDist := d.cfg.MergeTolerance
	for _, z := range d.zones {
		if z.kind != c.kind {
			continue
		}
		dist := math.Abs(z.level - c.level)
		if dist <= bestDist {
			best = z
			bestDist = dist
		}
	}
	return best
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
