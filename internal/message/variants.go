package message

import (
	"encoding/json"

	"github.com/google/uuid"
)

// Well-known type discriminators for the built-in envelope variants.
const (
	TypeSimpleText          = "conexus.SimpleTextMessage"
	TypeRequest             = "conexus.RequestMessage"
	TypeResponse            = "conexus.ResponseMessage"
	TypeNetworkEventMessage = "conexus.NetworkEventMessage"
	TypeDataUpdate          = "conexus.DataUpdateMessage"
)

var (
	_ Message = (*SimpleText)(nil)
	_ Message = (*Request)(nil)
	_ Message = (*Response)(nil)
	_ Message = (*NetworkEventMessage)(nil)
	_ Message = (*DataUpdate)(nil)
)

// SimpleText is a free-form text message with an application-chosen category.
type SimpleText struct {
	Base
	Content  string `json:"content"`
	Category string `json:"category"`
}

// NewSimpleText constructs a SimpleText envelope from sourceNodeID.
func NewSimpleText(sourceNodeID, content, category string) *SimpleText {
	return &SimpleText{
		Base:     NewBase(TypeSimpleText, sourceNodeID),
		Content:  content,
		Category: category,
	}
}

// Request is a message expecting a correlated Response. The request's
// MessageID is the correlation id the response must echo back.
type Request struct {
	Base
	Action  string          `json:"action"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// NewRequest constructs a Request envelope with the given action and payload.
func NewRequest(sourceNodeID, action string, payload json.RawMessage) *Request {
	return &Request{
		Base:    NewBase(TypeRequest, sourceNodeID),
		Action:  action,
		Payload: payload,
	}
}

// Response answers a Request. CorrelationID equals the originating
// Request's MessageID.
type Response struct {
	Base
	CorrelationID uuid.UUID       `json:"correlationId"`
	Success       bool            `json:"success"`
	Payload       json.RawMessage `json:"payload,omitempty"`
	Error         string          `json:"error,omitempty"`
}

// NewResponse constructs a Response correlated to a request id.
func NewResponse(sourceNodeID string, correlationID uuid.UUID, success bool, payload json.RawMessage, errMsg string) *Response {
	return &Response{
		Base:          NewBase(TypeResponse, sourceNodeID),
		CorrelationID: correlationID,
		Success:       success,
		Payload:       payload,
		Error:         errMsg,
	}
}

// DataUpdate carries an out-of-band player-data change notification.
// The persistence policy behind this variant is an external collaborator
// (see internal/collaborators); this type is only the wire shape.
type DataUpdate struct {
	Base
	PlayerID       string `json:"playerId"`
	DataType       string `json:"dataType"`
	SerializedData string `json:"serializedData"`
	Version        int64  `json:"version"`
}

// NewDataUpdate constructs a DataUpdate envelope.
func NewDataUpdate(sourceNodeID, playerID, dataType, serializedData string, version int64) *DataUpdate {
	return &DataUpdate{
		Base:           NewBase(TypeDataUpdate, sourceNodeID),
		PlayerID:       playerID,
		DataType:       dataType,
		SerializedData: serializedData,
		Version:        version,
	}
}
