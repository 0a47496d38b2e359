package api

import (
	"github.com/welldanyogia/feedback-forms/internal/field"
	"github.com/welldanyogia/feedback-forms/internal/repository"
)

// ParseFieldRequest is the body of POST /fields/parse
type ParseFieldRequest struct {
	Tag string `json:"tag" validate:"required,max=10000"`
}

// ParseFieldResponse carries the canonical tag and what it declares
type ParseFieldResponse struct {
	Canonical   string             `json:"canonical"`
	Definitions []field.Definition `json:"definitions"`
}

// ArchiveRequest is the body of POST /feedback/export/archive
type ArchiveRequest struct {
	IDs []string `json:"ids" validate:"required,min=1,max=1000,dive,uuid"`
}

// EraseRequest is the body of POST /privacy/erase
type EraseRequest struct {
	Email    string `json:"email" validate:"required,email,max=254"`
	Page     int    `json:"page" validate:"omitempty,min=1"`
	PageSize int    `json:"page_size" validate:"omitempty,min=1,max=1000"`
	All      bool   `json:"all"`
}

// EraseResponse reports an erase call
type EraseResponse struct {
	ItemsRemoved int  `json:"items_removed"`
	Done         bool `json:"done"`
}

// PersonalDataQuery holds the query of GET /privacy/export
type PersonalDataQuery struct {
	Email    string `validate:"required,email,max=254"`
	Page     int    `validate:"min=1"`
	PageSize int    `validate:"min=1,max=1000"`
}

// SweepRequest is the optional body of POST /maintenance/sweep-spam
type SweepRequest struct {
	ThresholdDays int `json:"threshold_days" validate:"omitempty,min=1,max=3650"`
}

// SweepResponse reports a sweep
type SweepResponse struct {
	Deleted       int `json:"deleted"`
	ThresholdDays int `json:"threshold_days"`
}

// ListFeedbackResponse represents the response for listing feedback
type ListFeedbackResponse struct {
	Feedback   []repository.FeedbackSummary `json:"feedback"`
	Pagination PaginationInfo               `json:"pagination"`
}

// PaginationInfo contains pagination metadata
type PaginationInfo struct {
	CurrentPage int `json:"current_page"`
	PerPage     int `json:"per_page"`
	TotalPages  int `json:"total_pages"`
	TotalCount  int `json:"total_count"`
}

// CalculateTotalPages returns the number of pages of size perPage
func CalculateTotalPages(totalCount, perPage int) int {
	if perPage <= 0 {
		return 0
	}
	return (totalCount + perPage - 1) / perPage
}
