package guidance

// DetectionStreak counts consecutive complete and consecutive incomplete
// samples. At most one counter is non-zero at any time.
type DetectionStreak struct {
	Complete int
	Lost     int
}

// Observe advances the streak matching complete and zeroes the other.
func (d *DetectionStreak) Observe(complete bool) {
	if complete {
		d.Complete++
		d.Lost = 0
		return
	}
	d.Lost++
	d.Complete = 0
}

// Reset zeroes both counters.
func (d *DetectionStreak) Reset() {
	*d = DetectionStreak{}
}
