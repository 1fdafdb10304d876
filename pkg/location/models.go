package location

// Location represents one geographical fix reported by a provider. Accuracy,
// Altitude, Speed and Heading are nil when the provider cannot report them.
type Location struct {
	Latitude  float64
	Longitude float64
	Accuracy  *float64
	Altitude  *float64
	Speed     *float64
	Heading   *float64
}
