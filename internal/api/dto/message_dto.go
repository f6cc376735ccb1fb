package dto

// SendMessageRequest is the body of POST /api/v1/messages/send. An empty
// SourceID means the contact replied and their follow-ups must be canceled;
// a non-empty SourceID schedules the campaign and reloads that source.
type SendMessageRequest struct {
	Phone           string `json:"phone" binding:"required"`
	Name            string `json:"name"`
	Message         string `json:"message" binding:"required"`
	SourceID        string `json:"source_id"`
	TemplateVariant int    `json:"template_variant"`
}

// ReloadContactRequest is the body of POST /api/v1/contacts/reload
type ReloadContactRequest struct {
	SourceID string `json:"source_id" binding:"required"`
	Phone    string `json:"phone" binding:"required"`
}

// ReloadContactResponse reports the reload outcome
type ReloadContactResponse struct {
	Success  bool  `json:"success"`
	Canceled int64 `json:"canceled"`
	Allowed  int   `json:"allowed"`
}

// WebhookPayload is the subset of the Cloud API notification we read
type WebhookPayload struct {
	Entry []WebhookEntry `json:"entry"`
}

// WebhookEntry is one account-level notification entry
type WebhookEntry struct {
	Changes []WebhookChange `json:"changes"`
}

// WebhookChange wraps the value object of one change
type WebhookChange struct {
	Value WebhookValue `json:"value"`
}

// WebhookValue carries inbound messages and contact profiles
type WebhookValue struct {
	Contacts []WebhookContact `json:"contacts"`
	Messages []WebhookMessage `json:"messages"`
}

// WebhookContact is the sender profile attached to a notification
type WebhookContact struct {
	WaID    string `json:"wa_id"`
	Profile struct {
		Name string `json:"name"`
	} `json:"profile"`
}

// WebhookMessage is one inbound message
type WebhookMessage struct {
	From      string `json:"from"`
	Timestamp string `json:"timestamp"`
	Type      string `json:"type"`
	Text      *struct {
		Body string `json:"body"`
	} `json:"text"`
}
