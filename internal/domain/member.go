package domain

// Presence is the public view of an online user.
type Presence struct {
	Username string `json:"username"`
	Status   Status `json:"status"`
	Channel  string `json:"channel,omitempty"`
	Visitor  bool   `json:"visitor,omitempty"`
}
