package dto

// Server to client message kinds.
const (
	TypeSessionInfo        = "session_info"
	TypeSetCookie          = "set_cookie"
	TypeMessage            = "message"
	TypeFollowUp           = "follow_up"
	TypePaymentLink        = "payment_link"
	TypeShowDocumentUpload = "show_document_upload"
)

// Client to server message kinds.
const (
	TypeInactive = "inactive"
)

// Outbound is every message the server pushes over the real-time channel.
type Outbound struct {
	Type             string `json:"type"`
	Text             string `json:"text,omitempty"`
	Link             string `json:"link,omitempty"`
	SessionID        string `json:"session_id,omitempty"`
	CookieID         string `json:"cookie_id,omitempty"`
	RequiresCookie   *bool  `json:"requires_cookie,omitempty"`
	RequiresDeviceID *bool  `json:"requires_device_id,omitempty"`
}

func SessionInfo(sessionID string, requiresCookie, requiresDeviceID bool) Outbound {
	return Outbound{
		Type:             TypeSessionInfo,
		SessionID:        sessionID,
		RequiresCookie:   &requiresCookie,
		RequiresDeviceID: &requiresDeviceID,
	}
}

func SetCookie(cookieID string) Outbound {
	return Outbound{Type: TypeSetCookie, CookieID: cookieID}
}

func Message(text string) Outbound {
	return Outbound{Type: TypeMessage, Text: text}
}

func FollowUp(text string) Outbound {
	return Outbound{Type: TypeFollowUp, Text: text}
}

func PaymentLink(link string) Outbound {
	return Outbound{Type: TypePaymentLink, Link: link}
}

func ShowDocumentUpload() Outbound {
	return Outbound{Type: TypeShowDocumentUpload}
}

// ClientInfo is contact data the client collected itself, e.g. from a form.
type ClientInfo struct {
	Device string `json:"device,omitempty"`
	Name   string `json:"name,omitempty"`
	Email  string `json:"email,omitempty"`
	Phone  string `json:"phone,omitempty"`
}

// Inbound is a client envelope. Identifier fields may ride along on any kind.
type Inbound struct {
	Type              string      `json:"type"`
	Text              string      `json:"text,omitempty"`
	Context           string      `json:"context,omitempty"`
	SessionID         string      `json:"session_id,omitempty"`
	CookieID          string      `json:"cookie_id,omitempty"`
	DeviceID          string      `json:"device_id,omitempty"`
	PreviousSessionID string      `json:"previous_session_id,omitempty"`
	ClientInfo        *ClientInfo `json:"client_info,omitempty"`
}
