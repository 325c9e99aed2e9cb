package api

import (
    "encoding/json"

    "github.com/Dev020403/sweet-shop-management-system/internal/domain"
)

// The backend answers list requests with either a bare JSON array or an
// object wrapping the array in a "data" field, optionally alongside
// pagination metadata and a total count. listPayload is the canonical
// shape everything is normalized to before it reaches application logic.
type listPayload struct {
    Sweets     []domain.Sweet
    Pagination *domain.Pagination
    Total      int
    HasTotal   bool
}

func decodeListPayload(body []byte) listPayload {
    var bare []domain.Sweet
    if err := json.Unmarshal(body, &bare); err == nil {
        return listPayload{Sweets: bare}
    }

    var env struct {
        Data       []domain.Sweet     `json:"data"`
        Pagination *domain.Pagination `json:"pagination"`
        Total      *int               `json:"total"`
    }
    if err := json.Unmarshal(body, &env); err != nil || env.Data == nil {
        // Neither shape matched.
        return listPayload{Sweets: []domain.Sweet{}}
    }

    p := listPayload{Sweets: env.Data, Pagination: env.Pagination}
    if env.Total != nil {
        p.Total = *env.Total
        p.HasTotal = true
    }
    return p
}

// decodeSweet unwraps a single-item response, with or without a "data" envelope.
func decodeSweet(body []byte) (domain.Sweet, error) {
    var env struct {
        Data *domain.Sweet `json:"data"`
    }
    if err := json.Unmarshal(body, &env); err == nil && env.Data != nil {
        return *env.Data, nil
    }

    var sweet domain.Sweet
    if err := json.Unmarshal(body, &sweet); err != nil {
        return domain.Sweet{}, err
    }
    return sweet, nil
}
