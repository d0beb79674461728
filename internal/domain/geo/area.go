package geo

// ServiceArea describes where a resource serves clients: a radius around a
// center, a polygon, or both. The zero value covers nothing.
type ServiceArea struct {
	Center      *Point  `json:"center,omitempty"`
	RadiusMiles float64 `json:"radius_miles,omitempty"`
	Polygon     []Point `json:"polygon,omitempty"`
}

// IsZero reports whether the area defines no geometry.
func (a ServiceArea) IsZero() bool {
	return (a.Center == nil || a.RadiusMiles <= 0) && len(a.Polygon) < 3
}

// Contains reports whether p falls inside the radius or the polygon.
func (a ServiceArea) Contains(p Point) bool {
	if a.Center != nil && a.RadiusMiles > 0 && DistanceMiles(*a.Center, p) <= a.RadiusMiles {
		return true
	}
	return len(a.Polygon) >= 3 && pointInPolygon(p, a.Polygon)
}

// pointInPolygon is an even-odd ray cast in lon/lat space. Adequate for
// service areas that do not cross the antimeridian.
func pointInPolygon(p Point, poly []Point) bool {
	inside := false
	j := len(poly) - 1
	for i := range poly {
		a, b := poly[i], poly[j]
		if (a.Lat > p.Lat) != (b.Lat > p.Lat) {
			x := (b.Lon-a.Lon)*(p.Lat-a.Lat)/(b.Lat-a.Lat) + a.Lon
			if p.Lon < x {
				inside = !inside
			}
		}
		j = i
	}
	return inside
}
