package desktop

import (
	"log/slog"
	"sync"
	"time"
)

// Network-signal thresholds from client telemetry.
const (
	netCooldown = 2 * time.Second // minimum interval between adjustments

	severeLatencyMs = 500
	severeLossPct   = 10.0
	badLatencyMs    = 200
	badLossPct      = 5.0
	goodLatencyMs   = 50
	goodBandwidth   = 5.0 // Mbps
	goodLossPct     = 1.0

	// EWMA alpha = 0.3 gives ~70% weight to history, 30% to new sample,
	// so a single transient spike does not trigger a moderate adjustment.
	netEwmaAlpha = 0.3
)

// netAdaptor applies client network_stats to quality and bitrate.
//
// Moderate tiers use EWMA-smoothed telemetry; severe degradation reacts to
// the raw sample so a collapsing link is answered within one report. Bitrate
// is bounded to [initial/4, initial*2].
type netAdaptor struct {
	mu sync.Mutex

	initialBitrate int
	minBitrate     int
	maxBitrate     int
	targetBitrate  int
	lastAdjust     time.Time

	smoothedLatency float64
	smoothedLoss    float64
	samplesCount    int
}

func newNetAdaptor(initialBitrate int) *netAdaptor {
	if initialBitrate <= 0 {
		initialBitrate = 2_500_000
	}
	return &netAdaptor{
		initialBitrate: initialBitrate,
		minBitrate:     initialBitrate / 4,
		maxBitrate:     initialBitrate * 2,
		targetBitrate:  initialBitrate,
	}
}

// Bitrate returns the current target bitrate in bits per second.
func (a *netAdaptor) Bitrate() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.targetBitrate
}

// Update feeds one network_stats report and returns the adjusted quality.
func (a *netAdaptor) Update(now time.Time, latencyMs uint32, bandwidthMbps, packetLossPct float32, quality int) (int, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.updateEWMA(float64(latencyMs), float64(packetLossPct))

	if !a.lastAdjust.IsZero() && now.Sub(a.lastAdjust) < netCooldown {
		return quality, false
	}

	newQuality := quality
	newBitrate := a.targetBitrate
	action := "hold"

	switch {
	case latencyMs > severeLatencyMs || packetLossPct > severeLossPct:
		action = "severe"
		newQuality = quality / 2
		newBitrate = int(float64(newBitrate) * 0.7)
	case a.smoothedLatency > badLatencyMs || a.smoothedLoss > badLossPct:
		action = "degrade"
		newQuality = quality - 15
		newBitrate = int(float64(newBitrate) * 0.7)
	case a.smoothedLatency < goodLatencyMs && float64(bandwidthMbps) > goodBandwidth && a.smoothedLoss < goodLossPct:
		action = "upgrade"
		newQuality = quality + 10
		newBitrate = int(float64(newBitrate) * 1.1)
	}

	newQuality = clampInt(newQuality, 0, 100)
	newBitrate = clampInt(newBitrate, a.minBitrate, a.maxBitrate)

	if newQuality == quality && newBitrate == a.targetBitrate {
		return quality, false
	}

	prevBitrate := a.targetBitrate
	a.targetBitrate = newBitrate
	a.lastAdjust = now

	slog.Debug("network adaptation",
		"action", action,
		"quality", newQuality,
		"bitrate", newBitrate,
		"prevBitrate", prevBitrate,
		"smoothedLatencyMs", int(a.smoothedLatency),
		"smoothedLossPct", a.smoothedLoss,
	)

	return newQuality, newQuality != quality
}

func (a *netAdaptor) updateEWMA(latencyMs, lossPct float64) {
	a.samplesCount++
	if a.samplesCount == 1 {
		a.smoothedLatency = latencyMs
		a.smoothedLoss = lossPct
		return
	}
	a.smoothedLatency = netEwmaAlpha*latencyMs + (1-netEwmaAlpha)*a.smoothedLatency
	a.smoothedLoss = netEwmaAlpha*lossPct + (1-netEwmaAlpha)*a.smoothedLoss
}
