package common

import (
	"fmt"
	"net/http"
	"strconv"
)

// PaginationInfo contains offset pagination details
type PaginationInfo struct {
	Limit   int  `json:"limit"`
	Offset  int  `json:"offset"`
	Count   int  `json:"count"`
	HasMore bool `json:"has_more"`
}

// OffsetParams are limit/offset query parameters
type OffsetParams struct {
	Limit  int
	Offset int
}

// ExtractOffsetParams reads limit and offset from the query string.
// Missing values default to zero; malformed or negative values are rejected.
func ExtractOffsetParams(r *http.Request) (OffsetParams, error) {
	var params OffsetParams
	var err error

	if params.Limit, err = queryInt(r, "limit"); err != nil {
		return params, err
	}
	if params.Offset, err = queryInt(r, "offset"); err != nil {
		return params, err
	}
	return params, nil
}

// BuildPaginationInfo builds pagination metadata for a page of count items
func BuildPaginationInfo(params OffsetParams, count int) *PaginationInfo {
	return &PaginationInfo{
		Limit:   params.Limit,
		Offset:  params.Offset,
		Count:   count,
		HasMore: params.Limit > 0 && count == params.Limit,
	}
}

func queryInt(r *http.Request, name string) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%s must be a non-negative integer", name)
	}
	return n, nil
}

// QueryBool reads a boolean query parameter; absent or malformed values are false
func QueryBool(r *http.Request, name string) bool {
	b, _ := strconv.ParseBool(r.URL.Query().Get(name))
	return b
}
