package telemetry

// earthRadius is the length of one degree of latitude in meters.
const earthRadius uint32 = 111194

// gpsState assembles a position from GPS frames. Coordinates are kept the way
// they travel: bp is degrees*100+minutes, ap is the minute fraction *10000.
type gpsState struct {
	latitudeBP  uint32
	latitudeAP  uint32
	longitudeBP uint32
	longitudeAP uint32
	latitudeNS  byte
	longitudeEW byte

	pilotLatitude     uint32
	pilotLongitude    uint32
	distFromEarthAxis uint32
}

// extract returns latitude and longitude in micro-degrees, unsigned.
func (g *gpsState) extract() (latitude, longitude uint32) {
	latitude = (g.latitudeBP/100)*1_000_000 + ((g.latitudeBP%100)*10_000+g.latitudeAP)*5/3
	longitude = (g.longitudeBP/100)*1_000_000 + ((g.longitudeBP%100)*10_000+g.longitudeAP)*5/3
	return
}

// decodeCombined applies a single GPS frame: bits 30-31 select latitude N/S or
// longitude E/W, bits 0-29 hold minutes*10000.
func (g *gpsState) decodeCombined(data uint32) {
	minutes := (data & 0x3fffffff) / 10000
	fraction := (data & 0x3fffffff) % 10000
	bp := (minutes/60)*100 + minutes%60

	switch data >> 30 {
	case 0:
		g.latitudeBP, g.latitudeAP, g.latitudeNS = bp, fraction, 'N'
	case 1:
		g.latitudeBP, g.latitudeAP, g.latitudeNS = bp, fraction, 'S'
	case 2:
		g.longitudeBP, g.longitudeAP, g.longitudeEW = bp, fraction, 'E'
	case 3:
		g.longitudeBP, g.longitudeAP, g.longitudeEW = bp, fraction, 'W'
	}
}

func (g *gpsState) hasHemispheres() bool {
	return g.latitudeNS != 0 && g.longitudeEW != 0
}

// hasFix reports whether split frames delivered both coordinates and hemispheres.
func (g *gpsState) hasFix() bool {
	return g.hasHemispheres() && g.latitudeAP != 0 && g.longitudeAP != 0
}

// positionReceived captures the pilot reference point on the first fix.
func (g *gpsState) positionReceived() {
	if g.distFromEarthAxis != 0 {
		return
	}

	g.pilotLatitude, g.pilotLongitude = g.extract()

	// cos(latitude) as 1 - x²/2 + x⁴/24, scaled to meters per degree of longitude
	lat := g.pilotLatitude / 10000
	angle2 := (lat * lat) / 10000
	angle4 := angle2 * angle2
	g.distFromEarthAxis = 139 * ((10_000_000 - (angle2*123370)/81 + angle4/25) / 12500)
}

// EncodeGPSCoordinate builds a combined GPS wire value from degrees and
// minutes*10000. Latitude uses quadrants 0 (N) and 1 (S), longitude 2 (E) and 3 (W).
func EncodeGPSCoordinate(degrees, minutes10k uint32, longitude, negative bool) int32 {
	v := degrees*60*10000 + minutes10k
	quadrant := uint32(0)
	if longitude {
		quadrant = 2
	}
	if negative {
		quadrant++
	}
	return int32(v&0x3fffffff | quadrant<<30)
}

// Position is a GPS fix in signed micro-degrees.
type Position struct {
	Latitude  int64 `json:"latitude"`
	Longitude int64 `json:"longitude"`
}

func (g *gpsState) position() Position {
	lat, lon := g.extract()
	p := Position{Latitude: int64(lat), Longitude: int64(lon)}
	if g.latitudeNS == 'S' {
		p.Latitude = -p.Latitude
	}
	if g.longitudeEW == 'W' {
		p.Longitude = -p.Longitude
	}
	return p
}
