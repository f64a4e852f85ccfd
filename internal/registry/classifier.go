package registry

import (
	"time"

	"hearthwatch/pkg/models"
)

// Classification thresholds. A resident needs both a visit history and a
// tenure so a busy first day cannot promote a stranger.
const (
	residentMinVisits = 5
	residentMinAge    = 72 * time.Hour
	frequentMinVisits = 3
	passerbyMaxSignal = -75 // dBm; weaker than this on a single visit
)

// Classify buckets a device. The rules are ordered by priority: the first
// match wins. Age is the span between the first and last sighting, not the
// wall clock, so a device's bucket changes only when it is actually seen.
//
// A randomized MAC is always a passerby. Real identity continuity cannot
// be established for locally administered addresses, so visit counts on
// them are meaningless no matter how large they grow.
func Classify(d *models.Device) models.Classification {
	switch {
	case d.IsRandomized:
		return models.ClassificationPasserby
	case d.VisitCount >= residentMinVisits && d.LastSeen.Sub(d.FirstSeen) >= residentMinAge:
		return models.ClassificationResident
	case d.VisitCount >= frequentMinVisits:
		return models.ClassificationFrequent
	case d.VisitCount == 1 && d.SignalStrength < passerbyMaxSignal:
		return models.ClassificationPasserby
	}
	return models.ClassificationUnknown
}
