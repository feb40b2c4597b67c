package request

// CreateQuizRequest is the request body for creating a quiz
type CreateQuizRequest struct {
	Topic    string `json:"topic"`
	Title    string `json:"title,omitempty"`
	HostName string `json:"hostName,omitempty"`
	// CreatedByName is accepted as an alias of HostName for older web clients
	CreatedByName string `json:"createdByName,omitempty"`
	Email         string `json:"email,omitempty"`
}

// HostDisplayName returns the host name, preferring HostName
func (r CreateQuizRequest) HostDisplayName() string {
	if r.HostName != "" {
		return r.HostName
	}
	return r.CreatedByName
}

// JoinPlayerRequest is the request body for registering a player
type JoinPlayerRequest struct {
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
}
