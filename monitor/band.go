package monitor

import "github.com/ftl/hamradio/bandplan"

// bandName returns the name of the IARU region 1 band that contains the given frequency, or an
// empty string if the frequency is outside of all bands.
func bandName(frequency int64) string {
	return lookupBand(bandplan.IARURegion1.ByFrequency, frequency)
}

func lookupBand[F ~float64 | ~int64 | ~int](byFrequency func(F) bandplan.Band, frequency int64) string {
	band := byFrequency(F(frequency))
	// no band contains 0Hz
	if band.Name == byFrequency(0).Name {
		return ""
	}
	return string(band.Name)
}
