package miner

// ActivityTracker is a fixed-window ring buffer recording, once per tick,
// whether the donation cycle or the operator pools held the active client.
// Adapted from statistics.HashRate's ring-buffer shape in the teacher repo,
// repurposed from a rolling hashrate sum to a rolling donation-active ratio
// for the status API.
type ActivityTracker struct {
	dataSeries [3600]float64
	currentPos int
	samples    int
}

// Sample records one tick's outcome: true if the donation cycle was the
// active source during that tick, false if the operator pools were (or
// nothing was active at all).
func (a *ActivityTracker) Sample(donationActive bool) {
	a.currentPos = (a.currentPos + 1) % len(a.dataSeries)
	if donationActive {
		a.dataSeries[a.currentPos] = 1
	} else {
		a.dataSeries[a.currentPos] = 0
	}
	if a.samples < len(a.dataSeries) {
		a.samples++
	}
}

// RecentNSum mirrors statistics.HashRate.RecentNSum: the sum of the last
// recentn samples, most recent first, wrapping around the ring.
func (a *ActivityTracker) RecentNSum(recentn int) (sum float64) {
	if recentn > len(a.dataSeries) {
		recentn = len(a.dataSeries)
	}
	pos := 0
	for i := 0; i < recentn; i++ {
		pos = a.currentPos - i
		if pos < 0 {
			pos += len(a.dataSeries)
		}
		sum += a.dataSeries[pos]
	}
	return
}

// DonationRatio returns the fraction of the last recentn samples (capped at
// however many have actually been recorded) during which the donation
// cycle was active, in [0, 1].
func (a *ActivityTracker) DonationRatio(recentn int) float64 {
	if recentn > a.samples {
		recentn = a.samples
	}
	if recentn <= 0 {
		return 0
	}
	return a.RecentNSum(recentn) / float64(recentn)
}
