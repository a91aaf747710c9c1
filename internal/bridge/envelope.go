package bridge

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// PageTopic is the default bus topic shared by the page and the extension.
const PageTopic = "spost.page"

// Envelope types exchanged on the page topic.
const (
	TypeCheck       = "EXT_CHECK"
	TypeCheckResult = "EXT_CHECK_RESPONSE"
	TypeCall        = "REMOTE_API_CALL"
	TypeCallResult  = "REMOTE_API_RESPONSE"
	TypeReady       = "SPOST_READY"
)

// Envelope is the tagged message carried on the page topic. Which fields are
// set depends on Type; a response carries exactly one of Response and Error.
type Envelope struct {
	Type       string            `json:"type"`
	RequestID  string            `json:"requestId,omitempty"`
	Available  *bool             `json:"available,omitempty"`
	Endpoint   string            `json:"endpoint,omitempty"`
	Method     string            `json:"method,omitempty"`
	Body       json.RawMessage   `json:"body,omitempty"`
	Token      string            `json:"token,omitempty"`
	Headers    map[string]string `json:"headers,omitempty"`
	Response   json.RawMessage   `json:"response,omitempty"`
	Error      *string           `json:"error,omitempty"`
	Capability string            `json:"capability,omitempty"`
	At         time.Time         `json:"at,omitzero"`
}

// DecodeEnvelope parses a bus payload. Payloads without a type are rejected
// so foreign traffic on the shared topic never looks like a response.
func DecodeEnvelope(payload []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return Envelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	if env.Type == "" {
		return Envelope{}, fmt.Errorf("decode envelope: missing type")
	}
	return env, nil
}

// NewRequestID returns a correlation id made of the current unix milliseconds
// and a random suffix.
func NewRequestID() string {
	return newRequestID(time.Now())
}

func newRequestID(now time.Time) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")
	return fmt.Sprintf("req_%d_%s", now.UnixMilli(), suffix[:12])
}

// CheckResponse builds the reply to an availability probe.
func CheckResponse(requestID string, available bool) Envelope {
	return Envelope{Type: TypeCheckResult, RequestID: requestID, Available: &available, At: time.Now().UTC()}
}

// CallResponse builds a successful reply to a REMOTE_API_CALL.
func CallResponse(requestID string, response json.RawMessage) Envelope {
	if len(response) == 0 {
		response = json.RawMessage("null")
	}
	return Envelope{Type: TypeCallResult, RequestID: requestID, Response: response, At: time.Now().UTC()}
}

// CallFailure builds a failed reply to a REMOTE_API_CALL.
func CallFailure(requestID string, message string) Envelope {
	return Envelope{Type: TypeCallResult, RequestID: requestID, Error: &message, At: time.Now().UTC()}
}

// ReadyBroadcast is the unsolicited envelope announcing an injected capability.
func ReadyBroadcast(capability string) Envelope {
	return Envelope{Type: TypeReady, Capability: capability, At: time.Now().UTC()}
}
