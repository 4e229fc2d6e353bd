package reference

import "math"

const earthRadius = 6378137.0

// Origin anchors the local frame. Yaw0 rotates the local x axis
// counter-clockwise from east.
type Origin struct {
	Lat0 float64 `yaml:"lat0" json:"lat0"`
	Lon0 float64 `yaml:"lon0" json:"lon0"`
	Yaw0 float64 `yaml:"yaw0" json:"yaw0"`
}

// Project maps latitude/longitude in degrees to local x/y in meters using an
// equirectangular approximation about the mean latitude.
func (o Origin) Project(lat, lon float64) (x, y float64) {
	dLat := radians(lat - o.Lat0)
	dLon := radians(lon - o.Lon0)
	latAvg := 0.5 * (radians(lat) + radians(o.Lat0))

	east := earthRadius * dLon * math.Cos(latAvg)
	north := earthRadius * dLat

	c, s := math.Cos(o.Yaw0), math.Sin(o.Yaw0)
	return c*east + s*north, -s*east + c*north
}

// Unproject is the exact inverse of Project.
func (o Origin) Unproject(x, y float64) (lat, lon float64) {
	c, s := math.Cos(o.Yaw0), math.Sin(o.Yaw0)
	east := c*x - s*y
	north := s*x + c*y

	lat = o.Lat0 + degrees(north/earthRadius)
	latAvg := 0.5 * (radians(lat) + radians(o.Lat0))
	lon = o.Lon0 + degrees(east/(earthRadius*math.Cos(latAvg)))
	return lat, lon
}

// LocalYaw converts an ENU heading into the rotated local frame.
func (o Origin) LocalYaw(psi float64) float64 {
	return psi - o.Yaw0
}

func radians(deg float64) float64 { return deg * math.Pi / 180 }
func degrees(rad float64) float64 { return rad * 180 / math.Pi }
