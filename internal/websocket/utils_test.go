package websocket

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/DuyTinh-T/Smart-Learning-New-sub000/internal/apperror"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorFrame(t *testing.T) {
	var f struct {
		Event Event     `json:"event"`
		Data  ErrorData `json:"data"`
	}

	require.NoError(t, json.Unmarshal(ErrorFrame(apperror.RoomFull("room ABC123 is full")), &f))
	assert.Equal(t, EventError, f.Event)
	assert.Equal(t, "ROOM_FULL", f.Data.Code)
	assert.Equal(t, "room ABC123 is full", f.Data.Message)
	assert.False(t, f.Data.Retryable)

	require.NoError(t, json.Unmarshal(ErrorFrame(apperror.ServiceUnavailable(errors.New("mailbox full"), "room busy")), &f))
	assert.Equal(t, "SERVICE_UNAVAILABLE", f.Data.Code)
	assert.True(t, f.Data.Retryable)
}

func TestDecodePayload(t *testing.T) {
	var req RoomRequest

	err := DecodePayload(&RequestEnvelope{Action: ActionJoinRoom}, &req)
	assert.ErrorIs(t, err, apperror.ErrValidation)

	err = DecodePayload(&RequestEnvelope{Action: ActionJoinRoom, Payload: json.RawMessage(`{"roomCode":`)}, &req)
	assert.ErrorIs(t, err, apperror.ErrValidation)

	err = DecodePayload(&RequestEnvelope{Action: ActionJoinRoom, Payload: json.RawMessage(`{"roomCode":"ABC123"}`)}, &req)
	require.NoError(t, err)
	assert.Equal(t, "ABC123", req.RoomCode)
}

func TestDecodeOptionalPayload(t *testing.T) {
	req := RoomRequest{RoomCode: "KEEP00"}

	require.NoError(t, DecodeOptionalPayload(&RequestEnvelope{Action: ActionEndExam}, &req))
	require.NoError(t, DecodeOptionalPayload(&RequestEnvelope{Action: ActionEndExam, Payload: json.RawMessage(`null`)}, &req))
	assert.Equal(t, "KEEP00", req.RoomCode)

	require.NoError(t, DecodeOptionalPayload(&RequestEnvelope{Action: ActionEndExam, Payload: json.RawMessage(`{"roomCode":"ABC123"}`)}, &req))
	assert.Equal(t, "ABC123", req.RoomCode)
}
