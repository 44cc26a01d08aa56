package dispatch

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/magabrotheeeer/helper-dispatch/internal/models"
	"github.com/magabrotheeeer/helper-dispatch/internal/notifier"
)

const (
	posterFallback = "A neighbour"
	priceFallback  = "Negotiable"
)

// BuildPayload собирает параметры сообщения о запросе на расстоянии distanceKm.
func BuildPayload(req models.HelpRequest, distanceKm float64) notifier.Payload {
	poster := posterFallback
	if req.PosterName != nil && strings.TrimSpace(*req.PosterName) != "" {
		poster = strings.TrimSpace(*req.PosterName)
	}
	return notifier.Payload{
		CategoryLabel: req.Category.Label(),
		Title:         req.Title,
		Distance:      FormatDistance(distanceKm),
		PosterName:    poster,
		Price:         FormatPrice(req.OfferPrice),
	}
}

// FormatDistance округляет расстояние: до километра с шагом 10 м ("850 m"),
// дальше с точностью до 0.1 км ("2.3 km").
func FormatDistance(km float64) string {
	if km < 1 {
		m := int(math.Round(km*100)) * 10
		if m < 1000 {
			return fmt.Sprintf("%d m", m)
		}
	}
	return fmt.Sprintf("%.1f km", km)
}

// FormatPrice форматирует цену в рупиях с индийской группировкой разрядов ("₹1,50,000").
// Копейки выводятся только для дробной цены. nil означает договорную цену.
func FormatPrice(price *float64) string {
	if price == nil {
		return priceFallback
	}
	v := math.Round(*price*100) / 100
	whole := math.Trunc(v)
	out := "₹" + groupIndian(strconv.FormatFloat(whole, 'f', 0, 64))
	if frac := v - whole; frac > 0 {
		out += fmt.Sprintf(".%02d", int(math.Round(frac*100)))
	}
	return out
}

func groupIndian(digits string) string {
	if len(digits) <= 3 {
		return digits
	}
	head, tail := digits[:len(digits)-3], digits[len(digits)-3:]
	var parts []string
	for len(head) > 2 {
		parts = append([]string{head[len(head)-2:]}, parts...)
		head = head[:len(head)-2]
	}
	parts = append([]string{head}, parts...)
	return strings.Join(parts, ",") + "," + tail
}
