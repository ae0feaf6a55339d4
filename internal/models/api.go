package models

// Request/response shapes for the HTTP deployment service.

type DeployRequest struct {
	SourcePath string `json:"source_path"`
	SkipSwitch bool   `json:"skip_switch,omitempty"`
	Force      bool   `json:"force,omitempty"`
	Cleanup    bool   `json:"cleanup,omitempty"`
}

type DeployResponse struct {
	Status    string `json:"status"`
	AttemptID string `json:"attempt_id,omitempty"`
	Message   string `json:"message,omitempty"`
}

type StatusResponse struct {
	LiveSlot Slot              `json:"live_slot"`
	Record   *DeploymentRecord `json:"record,omitempty"`
	Message  string            `json:"message,omitempty"`
}
