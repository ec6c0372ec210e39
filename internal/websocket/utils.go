package websocket

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/gorilla/websocket"

	"github.com/DuyTinh-T/Smart-Learning-New-sub000/internal/apperror"
)

const (
	WriteWait  = 10 * time.Second
	PongWait   = 60 * time.Second
	PingPeriod = (PongWait * 9) / 10
	// MaxMessageSize bounds a single inbound frame.
	MaxMessageSize = 64 * 1024
)

// Encode marshals a server frame.
func Encode(event Event, data interface{}) ([]byte, error) {
	return json.Marshal(Frame{Event: event, Data: data})
}

// ErrorFrame builds the error frame for err.
func ErrorFrame(err error) []byte {
	data := ErrorData{
		Code:    string(apperror.KindOf(err)),
		Message: apperror.MessageOf(err),
	}
	var appErr *apperror.Error
	if errors.As(err, &appErr) {
		data.Retryable = appErr.Retryable()
	}
	b, _ := Encode(EventError, data)
	return b
}

// WriteRaw sends an already encoded frame.
func WriteRaw(conn *websocket.Conn, b []byte) error {
	conn.SetWriteDeadline(time.Now().Add(WriteWait))
	return conn.WriteMessage(websocket.TextMessage, b)
}

// ReadJSON reads and decodes a message into the provided structure.
// Every successful read extends the read deadline.
func ReadJSON(conn *websocket.Conn, v interface{}) error {
	conn.SetReadDeadline(time.Now().Add(PongWait))
	return conn.ReadJSON(v)
}

// DecodePayload unmarshals the payload of a request envelope.
func DecodePayload(env *RequestEnvelope, v interface{}) error {
	if len(env.Payload) == 0 {
		return apperror.Validation("payload is required for %s", env.Action)
	}
	if err := json.Unmarshal(env.Payload, v); err != nil {
		return apperror.Validation("invalid %s payload: %v", env.Action, err)
	}
	return nil
}

// DecodeOptionalPayload is DecodePayload for actions whose payload may be omitted.
func DecodeOptionalPayload(env *RequestEnvelope, v interface{}) error {
	if len(env.Payload) == 0 || string(env.Payload) == "null" {
		return nil
	}
	return DecodePayload(env, v)
}
