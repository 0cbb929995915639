package notify

import "context"

// Payload is the push content for one call.
type Payload struct {
	Title      string            `json:"title"`
	Body       string            `json:"body"`
	CallID     string            `json:"call_id,omitempty"`
	TableID    string            `json:"table_id,omitempty"`
	BusinessID string            `json:"business_id,omitempty"`
	Data       map[string]string `json:"data,omitempty"`
}

// Sender delivers a payload to every device registered for a staff member.
type Sender interface {
	Send(ctx context.Context, staffID string, p Payload) error
}

// Endpoint is one registered push destination. Target is interpreted by the
// configured provider: a shoutrrr service URL or a webhook URL.
type Endpoint struct {
	ID      string `json:"id" db:"id"`
	StaffID string `json:"staff_id" db:"staff_id"`
	Target  string `json:"target" db:"target"`
	Label   string `json:"label,omitempty" db:"label"`
}

// EndpointSource resolves the push endpoints registered for a staff member.
// Registration itself is managed elsewhere.
type EndpointSource interface {
	Endpoints(ctx context.Context, staffID string) ([]Endpoint, error)
}

// Provider delivers one payload to one endpoint.
type Provider interface {
	Name() string
	Deliver(ctx context.Context, ep Endpoint, p Payload) error
}
