// Package geo holds the small amount of spatial math the dashboard needs:
// distance-from-home-base and overall map bounds.
package geo

import (
	"context"
	"math"
	"sync"

	"github.com/twpayne/go-geom"
	"golang.org/x/sync/singleflight"

	"github.com/integratec/plant-crm/internal/model"
	"github.com/integratec/plant-crm/pkg/geocode"
)

// ReferenceAddress anchors the "distance from me" column.
const ReferenceAddress = "Forney TX, 75126"

const earthRadiusMiles = 3959

// HaversineMiles returns the great-circle distance in miles between two
// lat/lng points.
func HaversineMiles(lat1, lng1, lat2, lng2 float64) float64 {
	dLat := (lat2 - lat1) * math.Pi / 180
	dLng := (lng2 - lng1) * math.Pi / 180
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1*math.Pi/180)*math.Cos(lat2*math.Pi/180)*
			math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return earthRadiusMiles * c
}

// RefCache memoizes the geocoded reference point for the process lifetime.
// It is constructed explicitly and passed to whoever needs it; there is no
// invalidation — the reference address does not move.
type RefCache struct {
	geocoder geocode.Client
	address  string

	group singleflight.Group
	mu    sync.RWMutex
	point *geocode.LatLng
}

// NewRefCache creates a cache around the given geocoder.
func NewRefCache(gc geocode.Client) *RefCache {
	return &RefCache{geocoder: gc, address: ReferenceAddress}
}

// Point returns the reference coordinates, geocoding on first use. A failed
// lookup returns nil and will be retried on the next call; concurrent
// callers share one in-flight lookup.
func (r *RefCache) Point(ctx context.Context) *geocode.LatLng {
	r.mu.RLock()
	pt := r.point
	r.mu.RUnlock()
	if pt != nil {
		return pt
	}

	v, err, _ := r.group.Do("ref", func() (any, error) {
		return r.geocoder.Locate(ctx, r.address)
	})
	if err != nil || v == nil {
		return nil
	}

	pt = v.(*geocode.LatLng)
	r.mu.Lock()
	r.point = pt
	r.mu.Unlock()
	return pt
}

// DistanceMiles computes the distance from the reference point to the given
// facility, rounded to a tenth of a mile. Returns nil when either the
// reference point or the facility coordinates are unavailable.
func (r *RefCache) DistanceMiles(ctx context.Context, lat, lng *float64) *float64 {
	if lat == nil || lng == nil {
		return nil
	}
	ref := r.Point(ctx)
	if ref == nil {
		return nil
	}
	d := math.Round(HaversineMiles(ref.Lat, ref.Lng, *lat, *lng)*10) / 10
	return &d
}

// FacilityBounds aggregates the bounding box of all facilities that carry
// coordinates, for fitting the dashboard map. Returns nil when no facility
// has coordinates.
func FacilityBounds(facilities []model.Facility) *geom.Bounds {
	bounds := geom.NewBounds(geom.XY)
	found := false
	for _, f := range facilities {
		if f.Lat == nil || f.Lng == nil {
			continue
		}
		bounds = bounds.Extend(geom.NewPointFlat(geom.XY, []float64{*f.Lng, *f.Lat}))
		found = true
	}
	if !found {
		return nil
	}
	return bounds
}
