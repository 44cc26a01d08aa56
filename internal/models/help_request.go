package models

// HelpRequest запрос о помощи из события «request posted».
type HelpRequest struct {
	ID               string   `json:"id" validate:"required"`
	Category         Category `json:"category" validate:"required"`
	Title            string   `json:"title" validate:"required"`
	Lat              float64  `json:"lat" validate:"min=-90,max=90"`
	Lng              float64  `json:"lng" validate:"min=-180,max=180"`
	MinTrustRequired int      `json:"minTrustRequired" validate:"min=0,max=100"`
	OfferPrice       *float64 `json:"offerPrice,omitempty" validate:"omitempty,min=0,max=9999999999.99"`
	PosterID         string   `json:"posterId" validate:"required"`
	PosterName       *string  `json:"posterName,omitempty"`
	PosterPhone      string   `json:"posterPhone"`
}

// Origin возвращает точку запроса.
func (r HelpRequest) Origin() Location {
	return Location{Lat: r.Lat, Lng: r.Lng}
}
