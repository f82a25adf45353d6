package models

import "time"

// Property is an internal listing record created and updated by the sync coordinator
type Property struct {
	// Identity
	ID             string `gorm:"type:varchar(32);primaryKey" json:"id"`
	ExternalID     string `gorm:"type:varchar(64);not null;uniqueIndex:idx_property_external,priority:1" json:"external_id"`
	ExternalSource string `gorm:"type:varchar(32);not null;uniqueIndex:idx_property_external,priority:2" json:"external_source"`

	Title       string `gorm:"type:text;not null" json:"title"`
	Slug        string `gorm:"type:varchar(128);not null;uniqueIndex" json:"slug"`
	Description string `gorm:"type:text" json:"description,omitempty"`

	// Pricing and physical attributes
	PropertyType  string  `gorm:"type:varchar(32);not null;index" json:"property_type"`
	Purpose       string  `gorm:"type:varchar(16);index" json:"purpose"`
	Price         int64   `gorm:"index" json:"price"`
	RentFrequency string  `gorm:"type:varchar(16)" json:"rent_frequency,omitempty"`
	Bedrooms      int     `gorm:"index" json:"bedrooms"`
	Bathrooms     int     `json:"bathrooms"`
	AreaSqft      float64 `gorm:"type:decimal(12,2)" json:"area_sqft"`

	// Location
	LocationArea string  `gorm:"type:varchar(128);index" json:"location_area"`
	Community    string  `gorm:"type:varchar(128)" json:"community,omitempty"`
	Latitude     float64 `json:"latitude"`
	Longitude    float64 `json:"longitude"`

	CoverImageURL string `gorm:"type:text" json:"cover_image_url,omitempty"`
	PhotoCount    int    `json:"photo_count"`
	PermitNumber  string `gorm:"type:varchar(64)" json:"permit_number,omitempty"`
	AgencyName    string `gorm:"type:varchar(255)" json:"agency_name,omitempty"`
	Furnishing    string `gorm:"type:varchar(32)" json:"furnishing,omitempty"`
	IsVerified    bool   `json:"is_verified"`

	// Publication and lifecycle
	IsPublished  bool           `gorm:"not null;default:false;index" json:"is_published"`
	Status       PropertyStatus `gorm:"type:varchar(20);not null;default:'active';index" json:"status"`
	RemovedAt    *time.Time     `json:"removed_at,omitempty"`
	LastSyncedAt time.Time      `gorm:"not null;index" json:"last_synced_at"`
	CreatedAt    time.Time      `gorm:"not null;autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time      `gorm:"not null;autoUpdateTime" json:"updated_at"`
}

// PropertyStatus is the lifecycle state of a listing
type PropertyStatus string

const (
	PropertyStatusActive  PropertyStatus = "active"
	PropertyStatusRemoved PropertyStatus = "removed"
)

// Property types supported by the portal
const (
	PropertyTypeApartment      = "apartment"
	PropertyTypeVilla          = "villa"
	PropertyTypeTownhouse      = "townhouse"
	PropertyTypePenthouse      = "penthouse"
	PropertyTypeDuplex         = "duplex"
	PropertyTypeHotelApartment = "hotel_apartment"
	PropertyTypeLand           = "land"
	PropertyTypeOffice         = "office"
	PropertyTypeShop           = "shop"
	PropertyTypeWarehouse      = "warehouse"
)

// TableName specifies the table name
func (Property) TableName() string {
	return "properties"
}

// IsActive reports whether the listing is still live at the source
func (p *Property) IsActive() bool {
	return p.Status == PropertyStatusActive
}
