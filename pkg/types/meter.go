package types

import (
	"time"
)

// QuarterHour is the native granularity of SolarEdge energy details.
const QuarterHour = 15 * time.Minute

// Well known SolarEdge meter types. The API may return others and they are
// treated the same way.
const (
	MeterProduction      = "Production"
	MeterConsumption     = "Consumption"
	MeterSelfConsumption = "SelfConsumption"
	MeterFeedIn          = "FeedIn"
	MeterPurchased       = "Purchased"
)

// Reading is a single (timestamp, meter, value) triple as received from the
// vendor.
type Reading struct {
	Time  time.Time `json:"time"`
	Meter string    `json:"meter"`
	// Value is in watt-hours as reported by the vendor. Missing values are
	// flattened to 0.
	Value float64 `json:"value"`
}

// Point is one entry in a meter's value list. Value is nil when the vendor
// omitted it.
type Point struct {
	Time  time.Time `json:"date"`
	Value *float64  `json:"value,omitempty"`
}

// Meter is the list of points reported for a single meter type.
type Meter struct {
	Type   string  `json:"type"`
	Points []Point `json:"values"`
}

// Batch is a raw fetched response reshaped into a Go friendly form.
type Batch struct {
	// Unit is the energy unit reported by the vendor (usually "Wh").
	Unit   string  `json:"unit,omitempty"`
	Meters []Meter `json:"meters"`
}

// Empty returns true if the batch contains no points at all.
func (b Batch) Empty() bool {
	for _, m := range b.Meters {
		if len(m.Points) > 0 {
			return false
		}
	}
	return true
}

// Len returns the total number of points in the batch.
func (b Batch) Len() int {
	var n int
	for _, m := range b.Meters {
		n += len(m.Points)
	}
	return n
}

// Append adds the meters of other to the batch, keeping meter types merged so
// a chunked fetch looks like a single response.
func (b *Batch) Append(other Batch) {
	if b.Unit == "" {
		b.Unit = other.Unit
	}
	for _, om := range other.Meters {
		found := false
		for i := range b.Meters {
			if b.Meters[i].Type == om.Type {
				b.Meters[i].Points = append(b.Meters[i].Points, om.Points...)
				found = true
				break
			}
		}
		if !found {
			b.Meters = append(b.Meters, Meter{
				Type:   om.Type,
				Points: append([]Point(nil), om.Points...),
			})
		}
	}
}

// Window is the closed time range requested from the vendor.
type Window struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Empty returns true when the window can't contain any reading, which
// happens when the dataset's watermark is ahead of the wall clock.
func (w Window) Empty() bool {
	return w.Start.After(w.End)
}
