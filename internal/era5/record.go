package era5

// Record is a collection of readings taken at a given geo location at a given
// time.
type Record struct {
	// Dimensions
	Timestamp int64 // unix milliseconds
	Latitude  float64
	Longitude float64

	// Values holds one reading per scanned variable, in the order reported
	// by Scanner.Variables. A missing reading is NaN.
	Values []float64
}
