package types

// StatusEnvelope is the acknowledgement body: {"Status": true, ...}.
type StatusEnvelope map[string]any

// ErrorEnvelope is the failure body. Errors carries field or per-item details.
type ErrorEnvelope struct {
	Status bool   `json:"Status"`
	Error  string `json:"Error"`
	Errors any    `json:"Errors,omitempty"`
}
