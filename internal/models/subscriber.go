package models

// Location географические координаты в градусах.
type Location struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Subscriber подписчик, которому могут приходить уведомления о запросах рядом.
type Subscriber struct {
	ID              string      // Идентификатор пользователя
	Location        *Location   // Последняя известная точка, nil если не задана
	TrustScore      int         // Рейтинг доверия 0–100
	ChannelHandle   *string     // Адрес во внешнем канале (телефон, email)
	ChannelEnabled  bool        // Пользователь не отключил уведомления
	QuietHoursStart *int        // Начало тихих часов, минута суток
	QuietHoursEnd   *int        // Конец тихих часов, минута суток
	Categories      CategorySet // Разрешенные категории, пустой набор означает все
	Timezone        string      // IANA часовой пояс, пустая строка означает системный
}

// PreferencesUpdate частичное обновление настроек уведомлений.
// nil-поля не изменяются. SetQuietHours=true перезаписывает оба конца тихих часов,
// включая сброс в NULL.
type PreferencesUpdate struct {
	ChannelEnabled  *bool
	ChannelHandle   *string
	SetQuietHours   bool
	QuietHoursStart *int
	QuietHoursEnd   *int
	Categories      *CategorySet
	Timezone        *string
}

// PreferencesRequest тело запроса на обновление настроек уведомлений.
type PreferencesRequest struct {
	ChannelEnabled    *bool     `json:"channel_enabled,omitempty"`
	ChannelHandle     *string   `json:"channel_handle,omitempty" validate:"omitempty,min=3,max=320"`
	QuietHoursStart   *string   `json:"quiet_hours_start,omitempty"`
	QuietHoursEnd     *string   `json:"quiet_hours_end,omitempty"`
	CategoryAllowList *[]string `json:"category_allow_list,omitempty"`
	Timezone          *string   `json:"timezone,omitempty"`
}

// Preferences представление настроек уведомлений для ответа API.
type Preferences struct {
	SubscriberID      string   `json:"subscriber_id"`
	ChannelEnabled    bool     `json:"channel_enabled"`
	ChannelHandle     *string  `json:"channel_handle,omitempty"`
	QuietHoursStart   *string  `json:"quiet_hours_start,omitempty"`
	QuietHoursEnd     *string  `json:"quiet_hours_end,omitempty"`
	CategoryAllowList []string `json:"category_allow_list"`
	Timezone          string   `json:"timezone,omitempty"`
}

// ProfileEvent снимок профиля из сервиса пользователей: точка, рейтинг и телефон.
// Настройки уведомлений событием не меняются.
type ProfileEvent struct {
	ID         string   `json:"id" validate:"required"`
	Lat        *float64 `json:"lat,omitempty" validate:"omitempty,min=-90,max=90"`
	Lng        *float64 `json:"lng,omitempty" validate:"omitempty,min=-180,max=180"`
	TrustScore int      `json:"trustScore" validate:"min=0,max=100"`
	Phone      *string  `json:"phone,omitempty"`
}
