package httpdto

// PresenceQuery binds GET /v1/presence
type PresenceQuery struct {
	UserIDs string `form:"user_ids" binding:"required"`
}

// PresenceStatus is one entry of a presence answer
type PresenceStatus struct {
	UserID string `json:"user_id"`
	Online bool   `json:"online"`
}

// PresenceResponse keeps the order of the requested ids
type PresenceResponse struct {
	Users []PresenceStatus `json:"users"`
}

// HealthResponse is returned by GET /health
type HealthResponse struct {
	Status     string            `json:"status"`
	InstanceID string            `json:"instance_id,omitempty"`
	Components map[string]string `json:"components"`
}
