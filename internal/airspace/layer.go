package airspace

// Layer is one of the three contiguous altitude bands used to segregate traffic.
type Layer int

const (
	// LayerLow spans [0, 60) meters.
	LayerLow Layer = iota
	// LayerMedium spans [60, 120) meters.
	LayerMedium
	// LayerHigh spans [120, 180) meters.
	LayerHigh
)

type layerDef struct {
	name  string
	min   float64
	max   float64
	speed float64
}

var layerDefs = [...]layerDef{
	LayerLow:    {name: "LOW", min: 0, max: 60, speed: 15},
	LayerMedium: {name: "MEDIUM", min: 60, max: 120, speed: 25},
	LayerHigh:   {name: "HIGH", min: 120, max: 180, speed: 35},
}

// Layers lists every layer from lowest to highest.
func Layers() []Layer {
	return []Layer{LayerLow, LayerMedium, LayerHigh}
}

// LayerFromAltitude maps an altitude to its layer. Altitudes outside
// [0, 180) belong to no layer.
func LayerFromAltitude(alt float64) (Layer, bool) {
	for _, l := range Layers() {
		d := layerDefs[l]
		if alt >= d.min && alt < d.max {
			return l, true
		}
	}
	return 0, false
}

// String returns the layer name.
func (l Layer) String() string {
	if l < LayerLow || l > LayerHigh {
		return "UNKNOWN"
	}
	return layerDefs[l].name
}

// MinAltitude returns the inclusive lower bound.
func (l Layer) MinAltitude() float64 { return layerDefs[l].min }

// MaxAltitude returns the exclusive upper bound.
func (l Layer) MaxAltitude() float64 { return layerDefs[l].max }

// RecommendedSpeed returns the advisory speed in m/s for the layer.
func (l Layer) RecommendedSpeed() float64 { return layerDefs[l].speed }

// CenterAltitude returns the mid altitude of the band.
func (l Layer) CenterAltitude() float64 {
	return (layerDefs[l].min + layerDefs[l].max) / 2
}
