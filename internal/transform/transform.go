// Package transform maps raw listings into portal properties.
package transform

import (
	"errors"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/jashabalcom/dubai-wealth-ai-sub007/internal/listings"
	"github.com/jashabalcom/dubai-wealth-ai-sub007/internal/models"
)

const (
	// DefaultLocationArea is used when a listing carries no usable location
	DefaultLocationArea = "Dubai"

	// SqftPerSqm converts square metres to square feet
	SqftPerSqm = 10.7639

	maxSlugBaseLength = 50
)

// ErrMissingIdentity is returned for records with neither externalID nor id
var ErrMissingIdentity = errors.New("listing has no external id")

// propertyTypes maps category slugs to portal property types.
// Anything not listed falls back to apartment.
var propertyTypes = map[string]string{
	"apartment":         models.PropertyTypeApartment,
	"apartments":        models.PropertyTypeApartment,
	"villa":             models.PropertyTypeVilla,
	"villas":            models.PropertyTypeVilla,
	"townhouse":         models.PropertyTypeTownhouse,
	"townhouses":        models.PropertyTypeTownhouse,
	"penthouse":         models.PropertyTypePenthouse,
	"penthouses":        models.PropertyTypePenthouse,
	"duplex":            models.PropertyTypeDuplex,
	"duplexes":          models.PropertyTypeDuplex,
	"hotel-apartment":   models.PropertyTypeHotelApartment,
	"hotel-apartments":  models.PropertyTypeHotelApartment,
	"land":              models.PropertyTypeLand,
	"residential-plot":  models.PropertyTypeLand,
	"residential-plots": models.PropertyTypeLand,
	"commercial-plot":   models.PropertyTypeLand,
	"commercial-plots":  models.PropertyTypeLand,
	"office":            models.PropertyTypeOffice,
	"offices":           models.PropertyTypeOffice,
	"shop":              models.PropertyTypeShop,
	"shops":             models.PropertyTypeShop,
	"warehouse":         models.PropertyTypeWarehouse,
	"warehouses":        models.PropertyTypeWarehouse,
}

var (
	nonSlugChars  = regexp.MustCompile(`[^a-z0-9]+`)
	leadingInt    = regexp.MustCompile(`^\d+`)
	whitespaceRun = regexp.MustCompile(`\s+`)
)

// ExtractLocationArea returns the area name of a listing.
// Level 2 (community) wins over level 1 (city); otherwise the first named entry.
func ExtractLocationArea(locs []listings.Location) string {
	for _, level := range []int{2, 1} {
		for _, loc := range locs {
			if loc.Level == level && strings.TrimSpace(loc.Name) != "" {
				return strings.TrimSpace(loc.Name)
			}
		}
	}
	for _, loc := range locs {
		if name := strings.TrimSpace(loc.Name); name != "" {
			return name
		}
	}
	return DefaultLocationArea
}

// ExtractCommunity returns the sub-community (level 3) name, if any
func ExtractCommunity(locs []listings.Location) string {
	for _, loc := range locs {
		if loc.Level == 3 {
			return strings.TrimSpace(loc.Name)
		}
	}
	return ""
}

// ExtractPropertyType maps the most specific known category to a property type.
// Unknown categories silently become apartment.
func ExtractPropertyType(cats []listings.Category) string {
	for i := len(cats) - 1; i >= 0; i-- {
		slug := strings.ToLower(strings.TrimSpace(cats[i].Slug))
		slug = strings.ReplaceAll(slug, "_", "-")
		if t, ok := propertyTypes[slug]; ok {
			return t
		}
	}
	return models.PropertyTypeApartment
}

// ParseBedrooms reads a bedroom count from free text.
// "studio" and anything without a leading number count as zero.
func ParseBedrooms(text string) int {
	text = strings.ToLower(strings.TrimSpace(text))
	if text == "" || text == "studio" {
		return 0
	}
	return parseLeadingInt(text)
}

func parseLeadingInt(text string) int {
	digits := leadingInt.FindString(strings.TrimSpace(text))
	if digits == "" {
		return 0
	}
	n, err := strconv.Atoi(digits)
	if err != nil {
		return 0
	}
	return n
}

// GenerateSlug builds a URL-safe slug that stays unique through the id suffix
func GenerateSlug(title, id string) string {
	base := nonSlugChars.ReplaceAllString(strings.ToLower(title), "-")
	base = strings.Trim(base, "-")
	if len(base) > maxSlugBaseLength {
		base = strings.TrimRight(base[:maxSlugBaseLength], "-")
	}
	if base == "" {
		base = "property"
	}
	return base + "-" + id
}

// CleanDescription strips markup and collapses whitespace, keeping paragraph breaks
func CleanDescription(html string) string {
	if strings.TrimSpace(html) == "" {
		return ""
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return strings.Join(strings.Fields(html), " ")
	}
	// raw newlines in text are plain whitespace; only markup breaks lines
	doc.Find("*").Contents().Each(func(_ int, node *goquery.Selection) {
		if goquery.NodeName(node) == "#text" {
			node.Nodes[0].Data = whitespaceRun.ReplaceAllString(node.Nodes[0].Data, " ")
		}
	})
	doc.Find("br").ReplaceWithHtml("\n")
	doc.Find("p, li, div").AppendHtml("\n")

	var lines []string
	for _, line := range strings.Split(doc.Text(), "\n") {
		if line = strings.Join(strings.Fields(line), " "); line != "" {
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, "\n")
}

// SqmToSqft converts an area in square metres to square feet, rounded to cents
func SqmToSqft(sqm float64) float64 {
	return math.Round(sqm*SqftPerSqm*100) / 100
}

// ToProperty maps a raw record to an unpublished property and its photo URLs
func ToProperty(rec listings.SourceRecord, source string, now time.Time) (*models.Property, []string, error) {
	externalID := rec.Identity()
	if externalID == "" {
		return nil, nil, ErrMissingIdentity
	}

	title := strings.TrimSpace(rec.Title)

	images := make([]string, 0, len(rec.Photos))
	for _, photo := range rec.Photos {
		if photo.URL != "" {
			images = append(images, photo.URL)
		}
	}

	cover := ""
	if rec.CoverPhoto != nil && rec.CoverPhoto.URL != "" {
		cover = rec.CoverPhoto.URL
	} else if len(images) > 0 {
		cover = images[0]
	}

	photoCount := rec.PhotoCount
	if photoCount == 0 {
		photoCount = len(images)
	}

	agency := ""
	if rec.Agency != nil {
		agency = strings.TrimSpace(rec.Agency.Name)
	}

	p := &models.Property{
		ExternalID:     externalID,
		ExternalSource: source,
		Title:          title,
		Slug:           GenerateSlug(title, externalID),
		Description:    CleanDescription(rec.Description),
		PropertyType:   ExtractPropertyType(rec.Category),
		Purpose:        rec.Purpose,
		Price:          int64(math.Round(rec.Price)),
		RentFrequency:  rec.RentFrequency,
		Bedrooms:       ParseBedrooms(rec.Rooms.String()),
		Bathrooms:      parseLeadingInt(rec.Baths.String()),
		AreaSqft:       SqmToSqft(rec.Area),
		LocationArea:   ExtractLocationArea(rec.Location),
		Community:      ExtractCommunity(rec.Location),
		Latitude:       rec.Geography.Lat,
		Longitude:      rec.Geography.Lng,
		CoverImageURL:  cover,
		PhotoCount:     photoCount,
		PermitNumber:   rec.PermitNumber,
		AgencyName:     agency,
		Furnishing:     rec.FurnishingStatus,
		IsVerified:     rec.IsVerified,
		IsPublished:    false,
		Status:         models.PropertyStatusActive,
		LastSyncedAt:   now,
	}
	return p, images, nil
}
