// Package geo считает расстояния по дуге большого круга и отбирает
// подписчиков в радиусе от точки запроса.
package geo

import (
	"math"
	"sort"

	"github.com/magabrotheeeer/helper-dispatch/internal/models"
)

// EarthRadiusKm средний радиус Земли.
const EarthRadiusKm = 6371.0

// Candidate подписчик в радиусе запроса вместе с расстоянием до него.
type Candidate struct {
	Subscriber models.Subscriber
	DistanceKm float64
}

// DistanceKm расстояние между точками по формуле гаверсинусов.
func DistanceKm(a, b models.Location) float64 {
	lat1 := radians(a.Lat)
	lat2 := radians(b.Lat)
	dLat := radians(b.Lat - a.Lat)
	dLng := radians(b.Lng - a.Lng)

	h := hav(dLat) + math.Cos(lat1)*math.Cos(lat2)*hav(dLng)
	return 2 * EarthRadiusKm * math.Asin(math.Sqrt(math.Min(1, h)))
}

// CandidatesWithinRadius возвращает подписчиков с известной точкой,
// расстояние до которых не больше radiusKm, от ближайшего к дальнему.
func CandidatesWithinRadius(origin models.Location, radiusKm float64, subscribers []models.Subscriber) []Candidate {
	out := make([]Candidate, 0, len(subscribers))
	for _, s := range subscribers {
		if s.Location == nil {
			continue
		}
		d := DistanceKm(origin, *s.Location)
		if d <= radiusKm {
			out = append(out, Candidate{Subscriber: s, DistanceKm: d})
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].DistanceKm != out[j].DistanceKm {
			return out[i].DistanceKm < out[j].DistanceKm
		}
		return out[i].Subscriber.ID < out[j].Subscriber.ID
	})
	return out
}

// Box прямоугольник координат для грубого отбора в хранилище.
type Box struct {
	MinLat, MaxLat float64
	MinLng, MaxLng float64
}

// BoundingBox возвращает прямоугольник, гарантированно покрывающий круг радиуса radiusKm.
// Точная проверка все равно выполняется CandidatesWithinRadius.
func BoundingBox(origin models.Location, radiusKm float64) Box {
	dLat := degrees(radiusKm / EarthRadiusKm)
	box := Box{
		MinLat: math.Max(-90, origin.Lat-dLat),
		MaxLat: math.Min(90, origin.Lat+dLat),
		MinLng: -180,
		MaxLng: 180,
	}
	// у полюсов и при переходе через антимеридиан берем всю долготу
	cosLat := math.Cos(radians(math.Max(math.Abs(box.MinLat), math.Abs(box.MaxLat))))
	if cosLat < 1e-6 {
		return box
	}
	dLng := degrees(radiusKm / (EarthRadiusKm * cosLat))
	if origin.Lng-dLng < -180 || origin.Lng+dLng > 180 {
		return box
	}
	box.MinLng = origin.Lng - dLng
	box.MaxLng = origin.Lng + dLng
	return box
}

func hav(x float64) float64 {
	s := math.Sin(x / 2)
	return s * s
}

func radians(deg float64) float64 { return deg * math.Pi / 180 }

func degrees(rad float64) float64 { return rad * 180 / math.Pi }
