package types

import "encoding/json"

// RequestInfo is attached to sync results under the "request" key.
type RequestInfo struct {
	Service string          `json:"service"`
	Payload json.RawMessage `json:"payload"`

	// ProcessingTime is the handler time in milliseconds.
	ProcessingTime int64 `json:"processingTime"`
}

// AsyncAccepted is the 202 body of an async broker call.
type AsyncAccepted struct {
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	RequestID string `json:"requestId"`
}

// SyncResult merges info into a handler result under the "request" key.
// A result that is not a JSON object is wrapped as {"result": ...}.
func SyncResult(result json.RawMessage, info RequestInfo) (json.RawMessage, error) {
	obj := map[string]json.RawMessage{}
	if err := json.Unmarshal(result, &obj); err != nil || obj == nil {
		obj = map[string]json.RawMessage{}
		if len(result) == 0 {
			result = json.RawMessage("null")
		}
		obj["result"] = result
	}

	raw, err := json.Marshal(info)
	if err != nil {
		return nil, err
	}
	obj["request"] = raw
	return json.Marshal(obj)
}

// Page is the body of a discovery response.
type Page[T any] struct {
	Items    []T `json:"items"`
	Page     int `json:"page"`
	PageSize int `json:"pageSize"`
	Total    int `json:"total"`
}

// NewPage slices items according to p.
func NewPage[T any](items []T, p Pagination) Page[T] {
	start, end := p.Bounds(len(items))
	page := make([]T, end-start)
	copy(page, items[start:end])
	return Page[T]{
		Items:    page,
		Page:     p.Page,
		PageSize: p.PageSize,
		Total:    len(items),
	}
}
