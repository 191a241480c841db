package event

import "encoding/json"

const (
	TypeUserCreated = "user_created"
	TypeSendEmail   = "send_email"
)

const (
	TemplateRegister        = "register.html"
	TemplateRestorePassword = "restore_pass.html"
)

// Envelope is the wire format of every message on the bus.
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type UserCreated struct {
	ID           uint64 `json:"id"`
	Email        string `json:"email"`
	Username     string `json:"username"`
	IsSuperadmin bool   `json:"is_superadmin"`
}

type SendEmail struct {
	Email        string            `json:"email"`
	Subject      string            `json:"subject"`
	TemplateName string            `json:"template_name"`
	Context      map[string]string `json:"context"`
}

func Marshal(eventType string, data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Type: eventType, Data: raw})
}
