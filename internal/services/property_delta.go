package services

import (
	"time"

	"github.com/lienledger/api/internal/models"
)

// propertyDelta is the statistic contribution of one property. The same
// delta is applied positively by create, negatively by delete, and both
// ways by move, so the three structural operations can never diverge.
type propertyDelta struct {
	properties int
	taxLiens   int
	withLiens  int
	value      float64
}

// deltaFor computes the contribution a property makes to its ancestors'
// aggregate statistics.
func deltaFor(p *models.Property) propertyDelta {
	d := propertyDelta{
		properties: 1,
		value:      p.TaxStatus.AssessedValue,
	}
	if p.TaxStatus.HasActiveLien() {
		d.taxLiens = 1
		d.withLiens = 1
	}
	return d
}

func (d propertyDelta) negate() propertyDelta {
	return propertyDelta{
		properties: -d.properties,
		taxLiens:   -d.taxLiens,
		withLiens:  -d.withLiens,
		value:      -d.value,
	}
}

// minus returns the delta that turns o's contribution into d's. Used by
// update to shift ancestor statistics when tax fields change in place.
func (d propertyDelta) minus(o propertyDelta) propertyDelta {
	return propertyDelta{
		properties: d.properties - o.properties,
		taxLiens:   d.taxLiens - o.taxLiens,
		withLiens:  d.withLiens - o.withLiens,
		value:      d.value - o.value,
	}
}

func (d propertyDelta) isZero() bool {
	return d.properties == 0 && d.taxLiens == 0 && d.withLiens == 0 && d.value == 0
}

// applyDelta folds a delta into a statistics block, rederiving the average
// and stamping LastUpdated.
func applyDelta(stats *models.Statistics, d propertyDelta, now time.Time) {
	stats.TotalProperties += d.properties
	stats.TotalTaxLiens += d.taxLiens
	stats.TotalPropertiesWithLiens += d.withLiens
	stats.TotalValue += d.value
	stats.RecomputeAverage()
	stats.LastUpdated = now
}
