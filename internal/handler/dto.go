package handler

import "encoding/json"

// APIError is the standardized error response body.
type APIError struct {
	Message string `json:"message"`
}

type createPlotRequest struct {
	Title string `json:"title"`
}

type patchPlotRequest struct {
	Action  string          `json:"action"`
	Payload json.RawMessage `json:"payload"`
}

type generateFlowRequest struct {
	Prompt   string  `json:"prompt"`
	PromptID *string `json:"promptId,omitempty"`
}

type createSnapshotRequest struct {
	State  json.RawMessage `json:"state"`
	Source string          `json:"source"`
}
