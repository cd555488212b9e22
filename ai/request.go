package ai

import "Scripter/core"

// GenerateRequest is the JSON body posted to the generation endpoint.
type GenerateRequest struct {
	Topic       string  `json:"topic"`
	Tone        string  `json:"tone"`
	Format      string  `json:"format"`
	Temperature float64 `json:"temperature"`
	SearchTool  string  `json:"search_tool"`
}

// GenerateResponse is the body of a successful response.
type GenerateResponse struct {
	Script *string `json:"script"`
}

func NewRequest(req core.ScriptRequest) *GenerateRequest {
	return &GenerateRequest{
		Topic:       req.Topic,
		Tone:        req.Tone,
		Format:      req.Format,
		Temperature: req.Temperature,
		SearchTool:  req.SearchTool,
	}
}
