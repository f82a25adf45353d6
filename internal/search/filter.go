package search

import (
	"fmt"
	"strings"
)

type FilterParams struct {
	Query         string
	Area          string
	PropertyTypes []string
	Purpose       string
	MinPrice      *int64
	MaxPrice      *int64
	MinBedrooms   *int
	MaxBedrooms   *int
	PublishedOnly bool
	ActiveOnly    bool
	SortBy        string
	Facets        []string
	Limit         int64
	Offset        int64
}

var sortFields = map[string]string{
	"price_asc":     "price:asc",
	"price_desc":    "price:desc",
	"area_desc":     "area_sqft:desc",
	"bedrooms_desc": "bedrooms:desc",
	"newest":        "last_synced_at:desc",
}

// BuildFilter turns search parameters into a Meilisearch filter expression
func BuildFilter(params FilterParams) string {
	var filters []string

	if params.Area != "" {
		filters = append(filters, fmt.Sprintf("location_area = %s", quote(params.Area)))
	}

	if len(params.PropertyTypes) > 0 {
		typeFilters := make([]string, len(params.PropertyTypes))
		for i, t := range params.PropertyTypes {
			typeFilters[i] = fmt.Sprintf("property_type = %s", quote(t))
		}
		filters = append(filters, fmt.Sprintf("(%s)", strings.Join(typeFilters, " OR ")))
	}

	if params.Purpose != "" {
		filters = append(filters, fmt.Sprintf("purpose = %s", quote(params.Purpose)))
	}

	if params.MinPrice != nil {
		filters = append(filters, fmt.Sprintf("price >= %d", *params.MinPrice))
	}
	if params.MaxPrice != nil {
		filters = append(filters, fmt.Sprintf("price <= %d", *params.MaxPrice))
	}

	if params.MinBedrooms != nil {
		filters = append(filters, fmt.Sprintf("bedrooms >= %d", *params.MinBedrooms))
	}
	if params.MaxBedrooms != nil {
		filters = append(filters, fmt.Sprintf("bedrooms <= %d", *params.MaxBedrooms))
	}

	if params.PublishedOnly {
		filters = append(filters, "is_published = true")
	}
	if params.ActiveOnly {
		filters = append(filters, `status = "active"`)
	}

	return strings.Join(filters, " AND ")
}

// BuildSort maps a sort key to Meilisearch sort rules. Unknown keys mean relevance.
func BuildSort(sortBy string) []string {
	if rule, ok := sortFields[sortBy]; ok {
		return []string{rule}
	}
	return nil
}

func quote(value string) string {
	return `"` + strings.ReplaceAll(value, `"`, `\"`) + `"`
}
