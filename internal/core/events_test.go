package core

import (
	"encoding/json"
	"testing"

	"github.com/dkeye/coderoom/internal/domain"
	"github.com/stretchr/testify/require"
)

func TestDecode_TypedPayloads(t *testing.T) {
	req := require.New(t)

	ev, err := Decode([]byte(`{"type":"code-update","payload":{"roomId":"r1","code":"x=1"}}`))
	req.NoError(err)
	req.Equal(CodeUpdate{RoomID: "r1", Code: "x=1"}, ev)

	ev, err = Decode([]byte(`{"type":"cursor-update","payload":{"roomId":"r1","lineNumber":3,"column":7}}`))
	req.NoError(err)
	req.Equal(CursorUpdate{RoomID: "r1", LineNumber: 3, Column: 7}, ev)

	ev, err = Decode([]byte(`{"type":"join-room","payload":{"roomId":"r1"}}`))
	req.NoError(err)
	req.Equal(JoinRoom{RoomID: "r1"}, ev)

	ev, err = Decode([]byte(`{"type":"execution-result","payload":{"roomId":"r1","result":{"output":"ok"}}}`))
	req.NoError(err)
	req.JSONEq(`{"output":"ok"}`, string(ev.(ExecutionResult).Result))

	ev, err = Decode([]byte(`{"type":"ping"}`))
	req.NoError(err)
	req.Equal(Ping{}, ev)
}

func TestDecode_RejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"not json":          `{`,
		"unknown type":      `{"type":"delete-room","payload":{"roomId":"r1"}}`,
		"missing payload":   `{"type":"code-update"}`,
		"missing room":      `{"type":"code-update","payload":{"code":"x"}}`,
		"bad language":      `{"type":"language-update","payload":{"roomId":"r1","language":"ruby"}}`,
		"negative column":   `{"type":"cursor-update","payload":{"roomId":"r1","lineNumber":1,"column":-1}}`,
		"missing result":    `{"type":"execution-result","payload":{"roomId":"r1"}}`,
		"wrong field types": `{"type":"code-update","payload":{"roomId":"r1","code":5}}`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Decode([]byte(raw))
			require.ErrorIs(t, err, domain.ErrValidation)
		})
	}
}

func TestEncode_Envelope(t *testing.T) {
	req := require.New(t)
	frame, err := Encode(LanguageUpdate{RoomID: "r1", Language: domain.LanguagePython})
	req.NoError(err)

	var env Envelope
	req.NoError(json.Unmarshal(frame, &env))
	req.Equal(EventLanguageUpdate, env.Type)
	req.JSONEq(`{"roomId":"r1","language":"python"}`, string(env.Payload))
}
