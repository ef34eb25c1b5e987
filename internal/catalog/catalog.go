// Package catalog holds the viewpoint records that flow from retrieval into
// ranking.
package catalog

import "github.com/seanankenbruck/viewpoint-search/internal/vocabulary"

// Candidate is one retrieved viewpoint. Country and Region are empty when
// unknown.
type Candidate struct {
	ID         int64    `json:"id"`
	Name       string   `json:"name"`
	Aliases    []string `json:"aliases,omitempty"`
	Category   string   `json:"category,omitempty"`
	Country    string   `json:"country,omitempty"`
	Region     string   `json:"region,omitempty"`
	Popularity float64  `json:"popularity"`
}

// TagRecord is the set of visual tags observed for a viewpoint in one season.
type TagRecord struct {
	Tags       []string          `json:"tags"`
	Season     vocabulary.Season `json:"season"`
	Confidence float64           `json:"confidence"`
}

// Enrichment is auxiliary data fetched per candidate after retrieval.
type Enrichment struct {
	Tags    []TagRecord `json:"tags,omitempty"`
	History string      `json:"history,omitempty"`
}
