package search

import (
	"encoding/json"
	"strings"

	"github.com/meilisearch/meilisearch-go"

	"github.com/jashabalcom/dubai-wealth-ai-sub007/internal/models"
)

// Indexer receives synced properties
type Indexer interface {
	IndexProperties(properties []models.Property) error
	DeleteProperties(ids []string) error
}

type SearchClient struct {
	client *meilisearch.Client
	index  string
}

func NewSearchClient(host, apiKey, index string) *SearchClient {
	client := meilisearch.NewClient(meilisearch.ClientConfig{
		Host:   host,
		APIKey: apiKey,
	})

	if index == "" {
		index = "properties"
	}

	return &SearchClient{
		client: client,
		index:  index,
	}
}

// IsHealthy reports whether the Meilisearch server answers
func (s *SearchClient) IsHealthy() bool {
	return s.client.IsHealthy()
}

// InitIndex initializes the Meilisearch index
func (s *SearchClient) InitIndex() error {
	_, err := s.client.CreateIndex(&meilisearch.IndexConfig{
		Uid:        s.index,
		PrimaryKey: "id",
	})
	// Ignore error if index already exists
	if err != nil && !strings.Contains(err.Error(), "already exists") {
		return err
	}

	_, err = s.client.Index(s.index).UpdateSearchableAttributes(&[]string{
		"title",
		"location_area",
		"community",
		"agency_name",
		"description",
	})
	if err != nil {
		return err
	}

	_, err = s.client.Index(s.index).UpdateFilterableAttributes(&[]string{
		"id",
		"location_area",
		"community",
		"property_type",
		"purpose",
		"price",
		"bedrooms",
		"area_sqft",
		"is_published",
		"status",
	})
	if err != nil {
		return err
	}

	_, err = s.client.Index(s.index).UpdateSortableAttributes(&[]string{
		"price",
		"area_sqft",
		"bedrooms",
		"last_synced_at",
		"created_at",
	})
	if err != nil {
		return err
	}

	return nil
}

// IndexProperties indexes multiple properties
func (s *SearchClient) IndexProperties(properties []models.Property) error {
	if len(properties) == 0 {
		return nil
	}
	_, err := s.client.Index(s.index).AddDocuments(properties, "id")
	return err
}

// DeleteProperties removes documents of deleted listings
func (s *SearchClient) DeleteProperties(ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := s.client.Index(s.index).DeleteDocuments(ids)
	return err
}

// SearchResult represents search results with facets
type SearchResult struct {
	Hits           []models.Property      `json:"hits"`
	TotalHits      int64                  `json:"total_hits"`
	Facets         map[string]interface{} `json:"facets,omitempty"`
	ProcessingTime int64                  `json:"processing_time_ms"`
}

// FilterSearch performs a filtered search
func (s *SearchClient) FilterSearch(params FilterParams) (*SearchResult, error) {
	limit := params.Limit
	if limit <= 0 {
		limit = 20
	}

	searchReq := &meilisearch.SearchRequest{
		Limit:  limit,
		Offset: params.Offset,
	}

	if filterStr := BuildFilter(params); filterStr != "" {
		searchReq.Filter = filterStr
	}
	if sort := BuildSort(params.SortBy); len(sort) > 0 {
		searchReq.Sort = sort
	}
	if len(params.Facets) > 0 {
		searchReq.Facets = params.Facets
	}

	searchRes, err := s.client.Index(s.index).Search(params.Query, searchReq)
	if err != nil {
		return nil, err
	}

	properties := make([]models.Property, 0, len(searchRes.Hits))
	for _, hit := range searchRes.Hits {
		if property, ok := parsePropertyFromHit(hit); ok {
			properties = append(properties, property)
		}
	}

	var facets map[string]interface{}
	if searchRes.FacetDistribution != nil {
		facets, _ = searchRes.FacetDistribution.(map[string]interface{})
	}

	return &SearchResult{
		Hits:           properties,
		TotalHits:      searchRes.EstimatedTotalHits,
		Facets:         facets,
		ProcessingTime: searchRes.ProcessingTimeMs,
	}, nil
}

// parsePropertyFromHit converts a search hit to a Property
func parsePropertyFromHit(hit interface{}) (models.Property, bool) {
	var property models.Property

	hitJSON, err := json.Marshal(hit)
	if err != nil {
		return property, false
	}
	if err := json.Unmarshal(hitJSON, &property); err != nil {
		return property, false
	}
	return property, true
}
