package models

// Place is the subset of place details the service caches
type Place struct {
	ID               string     `json:"id"`
	Name             string     `json:"name,omitempty"`
	FormattedAddress string     `json:"formattedAddress,omitempty"`
	Rating           float64    `json:"rating,omitempty"`
	UserRatingCount  int        `json:"userRatingCount,omitempty"`
	Types            []string   `json:"types,omitempty"`
	Location         *LatLng    `json:"location,omitempty"`
	Photos           []PhotoRef `json:"photos,omitempty"`
	Unavailable      bool       `json:"unavailable,omitempty"`
}

// LatLng is a geographic coordinate
type LatLng struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// PhotoRef references a photo resource of a place
type PhotoRef struct {
	Name     string `json:"name"`
	WidthPx  int    `json:"widthPx,omitempty"`
	HeightPx int    `json:"heightPx,omitempty"`
}

// Score is the AI assessment of a place
type Score struct {
	PlaceID     string   `json:"placeId"`
	Score       float64  `json:"score"`
	Summary     string   `json:"summary,omitempty"`
	Highlights  []string `json:"highlights,omitempty"`
	Unavailable bool     `json:"unavailable,omitempty"`
}
