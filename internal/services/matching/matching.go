// Package matching решает, должен ли подписчик получить уведомление о запросе:
// порог доверия, тихие часы, подписка на категорию и наличие канала связи.
package matching

import (
	"errors"
	"fmt"
	"time"

	"github.com/magabrotheeeer/helper-dispatch/internal/models"
)

// SkipReason причина, по которой подписчик пропущен. Пропуск не является ошибкой.
type SkipReason string

// Причины пропуска.
const (
	SkipNone       SkipReason = ""
	SkipOutOfRange SkipReason = "out_of_radius"
	SkipOwnRequest SkipReason = "own_request"
	SkipTrust      SkipReason = "trust"
	SkipNoChannel  SkipReason = "no_channel"
	SkipQuietHours SkipReason = "quiet_hours"
	SkipCategory   SkipReason = "category"
	SkipDailyLimit SkipReason = "daily_limit"

	// уведомление по этому запросу уже отправлялось при прошлой доставке события
	SkipAlreadyNotified SkipReason = "already_notified"
)

// ErrInvalidClock неверный формат времени суток.
var ErrInvalidClock = errors.New("time of day must be HH:MM")

// Admit пропускает подписчика, только если его рейтинг не ниже порога запроса.
func Admit(sub models.Subscriber, req models.HelpRequest) bool {
	return sub.TrustScore >= req.MinTrustRequired
}

// InQuietHours проверяет, попадает ли минута суток now в интервал [start, end).
// При start > end интервал проходит через полночь. Если любая граница не задана,
// тихие часы не действуют.
func InQuietHours(start, end *int, now int) bool {
	if start == nil || end == nil {
		return false
	}
	s, e := *start, *end
	if s <= e {
		return now >= s && now < e
	}
	return now >= s || now < e
}

// CategoryAllowed проверяет подписку на категорию запроса.
func CategoryAllowed(sub models.Subscriber, req models.HelpRequest) bool {
	return sub.Categories.Allows(req.Category)
}

// MinuteOfDay возвращает минуту суток момента t в часовом поясе loc.
func MinuteOfDay(t time.Time, loc *time.Location) int {
	local := t.In(loc)
	return local.Hour()*60 + local.Minute()
}

// ParseClock разбирает строку вида "HH:MM" в минуту суток.
func ParseClock(s string) (int, error) {
	t, err := time.Parse("15:04", s)
	if err != nil || len(s) != 5 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidClock, s)
	}
	return t.Hour()*60 + t.Minute(), nil
}

// FormatClock форматирует минуту суток как "HH:MM".
func FormatClock(minute int) string {
	return fmt.Sprintf("%02d:%02d", minute/60, minute%60)
}

// Filter применяет политики к одному кандидату.
type Filter struct {
	defaultLoc *time.Location
}

// NewFilter создает фильтр. defaultLoc используется для подписчиков без часового пояса.
func NewFilter(defaultLoc *time.Location) *Filter {
	if defaultLoc == nil {
		defaultLoc = time.UTC
	}
	return &Filter{defaultLoc: defaultLoc}
}

// Location возвращает часовой пояс подписчика или системный по умолчанию.
func (f *Filter) Location(sub models.Subscriber) *time.Location {
	if sub.Timezone == "" {
		return f.defaultLoc
	}
	loc, err := time.LoadLocation(sub.Timezone)
	if err != nil {
		return f.defaultLoc
	}
	return loc
}

// Evaluate возвращает SkipNone, если подписчик проходит все проверки, иначе причину пропуска.
// Проверки идут от дешевых к дорогим; дневной лимит проверяется отдельно, атомарно с созданием записи.
func (f *Filter) Evaluate(sub models.Subscriber, req models.HelpRequest, now time.Time) SkipReason {
	switch {
	case sub.ID == req.PosterID:
		return SkipOwnRequest
	case !Admit(sub, req):
		return SkipTrust
	case !sub.ChannelEnabled || sub.ChannelHandle == nil || *sub.ChannelHandle == "":
		return SkipNoChannel
	case InQuietHours(sub.QuietHoursStart, sub.QuietHoursEnd, MinuteOfDay(now, f.Location(sub))):
		return SkipQuietHours
	case !CategoryAllowed(sub, req):
		return SkipCategory
	}
	return SkipNone
}
