package models

import "time"

// HelperRegistration отклик помощника на запрос. После создания не изменяется.
type HelperRegistration struct {
	RequestID        string    `json:"request_id"`
	SubscriberID     string    `json:"subscriber_id"`
	Rank             int       `json:"rank"`
	HasContactAccess bool      `json:"has_contact_access"`
	RegisteredAt     time.Time `json:"registered_at"`
}

// HelperStatus ответ UI на «Ready to Help» и повторное открытие экрана.
type HelperStatus struct {
	Registered       bool    `json:"registered"`
	Rank             int     `json:"rank,omitempty"`
	HasContactAccess bool    `json:"has_contact_access"`
	PosterPhone      *string `json:"poster_phone,omitempty"`
	PosterName       *string `json:"poster_name,omitempty"`
}

// RegisterHelperRequest тело запроса «Ready to Help».
type RegisterHelperRequest struct {
	SubscriberID string `json:"subscriber_id" validate:"required"`
}
