package utils

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// CRS identifies a coordinate reference system by EPSG code. The
// supported families are geographic WGS84, spherical web mercator and
// the WGS84 UTM zones, which covers the grids the GeoZarr products are
// published on. Projection formulas follow the standard ellipsoidal
// series, written out the same way hand-rolled Go projections in the
// wild do it rather than binding libproj through cgo.
type CRS struct {
	epsg int
}

var (
	CRSWGS84       = CRS{4326}
	CRSWebMercator = CRS{3857}
)

const (
	wgs84A  = 6378137.0
	wgs84F  = 1.0 / 298.257223563
	wgs84E2 = wgs84F * (2 - wgs84F)
)

// ParseCRS accepts "EPSG:4326", "epsg:4326", bare codes and OGC URI
// forms such as "http://www.opengis.net/def/crs/EPSG/0/4326".
func ParseCRS(s string) (CRS, error) {
	raw := strings.TrimSpace(s)
	if raw == "" {
		return CRS{}, fmt.Errorf("crs: empty identifier")
	}

	code := raw
	lower := strings.ToLower(raw)
	if strings.HasPrefix(lower, "epsg:") {
		code = raw[len("epsg:"):]
	} else if strings.Contains(lower, "/epsg/") {
		parts := strings.Split(raw, "/")
		code = parts[len(parts)-1]
	} else if strings.HasPrefix(lower, "urn:") {
		parts := strings.Split(raw, ":")
		code = parts[len(parts)-1]
	}

	epsg, err := strconv.Atoi(code)
	if err != nil {
		return CRS{}, fmt.Errorf("crs: cannot parse %q", s)
	}

	c := CRS{epsg}
	if !c.supported() {
		return CRS{}, fmt.Errorf("crs: unsupported EPSG:%d", epsg)
	}
	return c, nil
}

func (c CRS) supported() bool {
	if c.epsg == 4326 || c.epsg == 3857 {
		return true
	}
	return c.utmZone() != 0
}

func (c CRS) utmZone() int {
	if c.epsg >= 32601 && c.epsg <= 32660 {
		return c.epsg - 32600
	}
	if c.epsg >= 32701 && c.epsg <= 32760 {
		return c.epsg - 32700
	}
	return 0
}

func (c CRS) utmSouth() bool { return c.epsg >= 32701 && c.epsg <= 32760 }

func (c CRS) EPSG() int { return c.epsg }

func (c CRS) String() string {
	return fmt.Sprintf("EPSG:%d", c.epsg)
}

func (c CRS) IsZero() bool { return c.epsg == 0 }

func (c CRS) Equal(o CRS) bool { return c.epsg == o.epsg }

// IsGeographic reports whether coordinates are degrees of lon/lat.
func (c CRS) IsGeographic() bool { return c.epsg == 4326 }

// ToLonLat converts projected coordinates to WGS84 degrees.
func (c CRS) ToLonLat(x, y float64) (float64, float64, error) {
	switch {
	case c.epsg == 4326:
		return x, y, nil
	case c.epsg == 3857:
		lon := x / wgs84A * 180 / math.Pi
		lat := (2*math.Atan(math.Exp(y/wgs84A)) - math.Pi/2) * 180 / math.Pi
		return lon, lat, nil
	case c.utmZone() != 0:
		return utmInverse(x, y, c.utmZone(), c.utmSouth())
	}
	return 0, 0, fmt.Errorf("crs: unsupported EPSG:%d", c.epsg)
}

// FromLonLat converts WGS84 degrees into this CRS.
func (c CRS) FromLonLat(lon, lat float64) (float64, float64, error) {
	switch {
	case c.epsg == 4326:
		return lon, lat, nil
	case c.epsg == 3857:
		if lat > 85.06 {
			lat = 85.06
		}
		if lat < -85.06 {
			lat = -85.06
		}
		x := lon * math.Pi / 180 * wgs84A
		y := wgs84A * math.Log(math.Tan(math.Pi/4+lat*math.Pi/360))
		return x, y, nil
	case c.utmZone() != 0:
		return utmForward(lon, lat, c.utmZone(), c.utmSouth())
	}
	return 0, 0, fmt.Errorf("crs: unsupported EPSG:%d", c.epsg)
}

// TransformPoint converts a coordinate between two supported systems.
func TransformPoint(src, dst CRS, x, y float64) (float64, float64, error) {
	if src.Equal(dst) {
		return x, y, nil
	}
	lon, lat, err := src.ToLonLat(x, y)
	if err != nil {
		return 0, 0, err
	}
	return dst.FromLonLat(lon, lat)
}

// TransformBounds reprojects a bounding box by walking densified box
// edges, which keeps curved edges (e.g. UTM to geographic) inside the
// result.
func TransformBounds(src, dst CRS, bounds [4]float64, densifyPts int) ([4]float64, error) {
	if src.Equal(dst) {
		return bounds, nil
	}
	if densifyPts < 1 {
		densifyPts = 1
	}

	xmin, ymin := math.Inf(1), math.Inf(1)
	xmax, ymax := math.Inf(-1), math.Inf(-1)

	n := densifyPts + 1
	for i := 0; i <= n; i++ {
		t := float64(i) / float64(n)
		pts := [][2]float64{
			{bounds[0] + t*(bounds[2]-bounds[0]), bounds[1]},
			{bounds[0] + t*(bounds[2]-bounds[0]), bounds[3]},
			{bounds[0], bounds[1] + t*(bounds[3]-bounds[1])},
			{bounds[2], bounds[1] + t*(bounds[3]-bounds[1])},
		}
		for _, p := range pts {
			x, y, err := TransformPoint(src, dst, p[0], p[1])
			if err != nil {
				return [4]float64{}, err
			}
			xmin = math.Min(xmin, x)
			ymin = math.Min(ymin, y)
			xmax = math.Max(xmax, x)
			ymax = math.Max(ymax, y)
		}
	}

	return [4]float64{xmin, ymin, xmax, ymax}, nil
}

const utmK0 = 0.9996

func utmMeridionalArc(phi float64) float64 {
	e2 := wgs84E2
	e4 := e2 * e2
	e6 := e4 * e2
	return wgs84A * ((1-e2/4-3*e4/64-5*e6/256)*phi -
		(3*e2/8+3*e4/32+45*e6/1024)*math.Sin(2*phi) +
		(15*e4/256+45*e6/1024)*math.Sin(4*phi) -
		(35*e6/3072)*math.Sin(6*phi))
}

func utmForward(lonDeg, latDeg float64, zone int, south bool) (float64, float64, error) {
	phi := latDeg * math.Pi / 180
	lam := lonDeg * math.Pi / 180
	lam0 := float64(zone*6-183) * math.Pi / 180

	e2 := wgs84E2
	ep2 := e2 / (1 - e2)

	sinPhi, cosPhi := math.Sin(phi), math.Cos(phi)
	nu := wgs84A / math.Sqrt(1-e2*sinPhi*sinPhi)
	t := math.Tan(phi) * math.Tan(phi)
	cc := ep2 * cosPhi * cosPhi
	aa := (lam - lam0) * cosPhi

	m := utmMeridionalArc(phi)

	x := 500000 + utmK0*nu*(aa+
		(1-t+cc)*aa*aa*aa/6+
		(5-18*t+t*t+72*cc-58*ep2)*math.Pow(aa, 5)/120)
	y := utmK0 * (m + nu*math.Tan(phi)*(aa*aa/2+
		(5-t+9*cc+4*cc*cc)*math.Pow(aa, 4)/24+
		(61-58*t+t*t+600*cc-330*ep2)*math.Pow(aa, 6)/720))
	if south {
		y += 10000000
	}
	return x, y, nil
}

func utmInverse(x, y float64, zone int, south bool) (float64, float64, error) {
	e2 := wgs84E2
	ep2 := e2 / (1 - e2)
	lam0 := float64(zone*6-183) * math.Pi / 180

	if south {
		y -= 10000000
	}

	m := y / utmK0
	mu := m / (wgs84A * (1 - e2/4 - 3*e2*e2/64 - 5*e2*e2*e2/256))

	e1 := (1 - math.Sqrt(1-e2)) / (1 + math.Sqrt(1-e2))
	phi1 := mu +
		(3*e1/2-27*e1*e1*e1/32)*math.Sin(2*mu) +
		(21*e1*e1/16-55*math.Pow(e1, 4)/32)*math.Sin(4*mu) +
		(151*e1*e1*e1/96)*math.Sin(6*mu) +
		(1097*math.Pow(e1, 4)/512)*math.Sin(8*mu)

	sin1, cos1 := math.Sin(phi1), math.Cos(phi1)
	c1 := ep2 * cos1 * cos1
	t1 := math.Tan(phi1) * math.Tan(phi1)
	n1 := wgs84A / math.Sqrt(1-e2*sin1*sin1)
	r1 := wgs84A * (1 - e2) / math.Pow(1-e2*sin1*sin1, 1.5)
	d := (x - 500000) / (n1 * utmK0)

	phi := phi1 - (n1*math.Tan(phi1)/r1)*(d*d/2-
		(5+3*t1+10*c1-4*c1*c1-9*ep2)*math.Pow(d, 4)/24+
		(61+90*t1+298*c1+45*t1*t1-252*ep2-3*c1*c1)*math.Pow(d, 6)/720)
	lam := lam0 + (d-
		(1+2*t1+c1)*d*d*d/6+
		(5-2*c1+28*t1-3*c1*c1+8*ep2+24*t1*t1)*math.Pow(d, 5)/120)/cos1

	return lam * 180 / math.Pi, phi * 180 / math.Pi, nil
}
