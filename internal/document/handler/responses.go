package handler

import (
	"canopy/internal/document/models"
)

// ListResponse is the HTTP response for GET /v1/documents.
type ListResponse struct {
	Documents []*models.Document `json:"documents"`
	Count     int                `json:"count"`
}
