// Package relevance maps fused scores and distances to display labels.
package relevance

// Label is the coarse relevance tier shown to users.
type Label string

const (
	TresPertinent Label = "TRES_PERTINENT"
	Pertinent     Label = "PERTINENT"
	Moyen         Label = "MOYEN"
	Faible        Label = "FAIBLE"
	HorsZone      Label = "HORS_ZONE"
)

// DistanceLabel qualifies how far a candidate is relative to the soft radius.
type DistanceLabel string

const (
	Proche    DistanceLabel = "PROCHE"
	Eloigne   DistanceLabel = "ELOIGNE"
	OutOfZone DistanceLabel = "HORS_ZONE"
)

// Thresholds are the minimum scores of each tier above FAIBLE.
type Thresholds struct {
	High   float64
	Medium float64
	Low    float64
}

var DefaultThresholds = Thresholds{High: 2.5, Medium: 1.2, Low: 0.5}

// Classifier labels scored candidates. SoftRadiusKm <= 0 disables the
// distance override.
type Classifier struct {
	Thresholds   Thresholds
	SoftRadiusKm float64
}

func NewClassifier(t Thresholds, softRadiusKm float64) Classifier {
	return Classifier{Thresholds: t, SoftRadiusKm: softRadiusKm}
}

// Classify returns the relevance tier and the nullable distance label.
// Beyond twice the soft radius the tier is forced to HORS_ZONE; between one
// and two soft radii it is forced to FAIBLE.
func (c Classifier) Classify(score float64, distanceKm *float64) (Label, *DistanceLabel) {
	label := c.scoreLabel(score)

	if distanceKm == nil || c.SoftRadiusKm <= 0 {
		return label, nil
	}

	d := *distanceKm
	var dl DistanceLabel
	switch {
	case d > 2*c.SoftRadiusKm:
		label = HorsZone
		dl = OutOfZone
	case d > c.SoftRadiusKm:
		label = Faible
		dl = Eloigne
	default:
		dl = Proche
	}
	return label, &dl
}

func (c Classifier) scoreLabel(score float64) Label {
	switch {
	case score >= c.Thresholds.High:
		return TresPertinent
	case score >= c.Thresholds.Medium:
		return Pertinent
	case score >= c.Thresholds.Low:
		return Moyen
	default:
		return Faible
	}
}
