package testutil

// RaceEnabled returns whether the race detector is enabled. Stress tests use
// it to scale down their iteration counts, since the race detector slows
// contended code by an order of magnitude.
func RaceEnabled() bool {
	return raceEnabled
}
