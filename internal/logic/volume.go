package logic

import "time"

// VolumeModel converts pressure-high duration into estimated gallons pumped.
// The switch stays closed for ResidualPressure after flow actually stops, so
// that much is subtracted before the linear conversion.
type VolumeModel struct {
	ResidualPressure time.Duration
	GallonsPerSecond float64
}

// DefaultVolumeModel is calibrated for the well pump feeding the tank.
var DefaultVolumeModel = VolumeModel{
	ResidualPressure: 30 * time.Second,
	GallonsPerSecond: 0.2,
}

// EstimateGallons returns 0 for any duration at or below the deadband and a
// strictly increasing amount above it (for a positive rate).
func (m VolumeModel) EstimateGallons(d time.Duration) float64 {
	flow := d - m.ResidualPressure
	if flow <= 0 || m.GallonsPerSecond <= 0 {
		return 0
	}
	return flow.Seconds() * m.GallonsPerSecond
}
