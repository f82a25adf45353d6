// Package listings is the client for the RapidAPI Bayut property listings API.
package listings

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	// ErrMissingAPIKey is returned when the client has no RapidAPI key configured
	ErrMissingAPIKey = errors.New("listings API key is not configured")

	// ErrCircuitOpen is returned without calling out while the breaker is open
	ErrCircuitOpen = errors.New("listings circuit breaker is open")
)

// UpstreamError is a non-2xx answer from the listings API
type UpstreamError struct {
	StatusCode int
	Body       string
}

func (e *UpstreamError) Error() string {
	body := e.Body
	if len(body) > 200 {
		body = body[:200]
	}
	return fmt.Sprintf("listings API returned status %d: %s", e.StatusCode, body)
}

// Query selects one page of listings for a location
type Query struct {
	LocationExternalID string
	Purpose            string
	HitsPerPage        int
	Page               int
}

// Page is one page of the properties/list response
type Page struct {
	Hits    []SourceRecord `json:"hits"`
	NbHits  int            `json:"nbHits"`
	NbPages int            `json:"nbPages"`
	Page    int            `json:"page"`
}

// SourceRecord is a raw listing as delivered by the API
type SourceRecord struct {
	ID               int64      `json:"id"`
	ExternalID       string     `json:"externalID"`
	Title            string     `json:"title"`
	Description      string     `json:"description"`
	Price            float64    `json:"price"`
	RentFrequency    string     `json:"rentFrequency"`
	Rooms            FlexString `json:"rooms"`
	Baths            FlexString `json:"baths"`
	Area             float64    `json:"area"` // square metres
	Location         []Location `json:"location"`
	Category         []Category `json:"category"`
	Geography        Geography  `json:"geography"`
	CoverPhoto       *Photo     `json:"coverPhoto"`
	Photos           []Photo    `json:"photos"`
	PhotoCount       int        `json:"photoCount"`
	Purpose          string     `json:"purpose"`
	PermitNumber     string     `json:"permitNumber"`
	Agency           *Agency    `json:"agency"`
	FurnishingStatus string     `json:"furnishingStatus"`
	IsVerified       bool       `json:"isVerified"`
}

// Identity returns the external id, falling back to the numeric id
func (r SourceRecord) Identity() string {
	if r.ExternalID != "" {
		return r.ExternalID
	}
	if r.ID != 0 {
		return strconv.FormatInt(r.ID, 10)
	}
	return ""
}

type Location struct {
	Level      int    `json:"level"`
	Name       string `json:"name"`
	ExternalID string `json:"externalID"`
	Slug       string `json:"slug"`
}

type Category struct {
	Level int    `json:"level"`
	Name  string `json:"name"`
	Slug  string `json:"slug"`
}

type Geography struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

type Photo struct {
	ID  int64  `json:"id"`
	URL string `json:"url"`
}

type Agency struct {
	Name string `json:"name"`
}

// FlexString accepts a JSON string, number or null.
// The API sends rooms as 2 on most listings and as "studio" or "7+" on others.
type FlexString string

func (f *FlexString) UnmarshalJSON(data []byte) error {
	raw := strings.TrimSpace(string(data))
	if raw == "null" || raw == "" {
		*f = ""
		return nil
	}
	if strings.HasPrefix(raw, `"`) {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = FlexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("unexpected value for numeric text field: %s", raw)
	}
	*f = FlexString(n.String())
	return nil
}

func (f FlexString) String() string {
	return string(f)
}
