package server

import "encoding/json"

// Wire message types. Every frame in either direction is a JSON object
// with a "type" discriminator.
const (
	msgConnected    = "CONNECTED"
	msgSubscribed   = "SUBSCRIBED"
	msgUnsubscribed = "UNSUBSCRIBED"
	msgPong         = "PONG"
	msgError        = "ERROR"
	msgTick         = "TICK"
	msgDepth        = "DEPTH"

	cmdSubscribe   = "SUBSCRIBE"
	cmdUnsubscribe = "UNSUBSCRIBE"
	cmdPing        = "PING"
)

// command is a client -> server frame.
type command struct {
	Type        string   `json:"type"`
	Instruments []string `json:"instruments,omitempty"`
	Category    string   `json:"category,omitempty"`
}

// envelope is a server -> client frame carrying a market payload.
type envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

func marshalControl(msgType string, fields map[string]any) []byte {
	out := make(map[string]any, len(fields)+1)
	out["type"] = msgType
	for k, v := range fields {
		out[k] = v
	}
	b, _ := json.Marshal(out)
	return b
}

func connectedMsg(sessionID string) []byte {
	return marshalControl(msgConnected, map[string]any{"sessionId": sessionID})
}

func subscribedMsg(instruments []string) []byte {
	return marshalControl(msgSubscribed, map[string]any{"instruments": instruments})
}

func unsubscribedMsg(instruments []string) []byte {
	var v any = "all"
	if instruments != nil {
		v = instruments
	}
	return marshalControl(msgUnsubscribed, map[string]any{"instruments": v})
}

func pongMsg() []byte {
	return marshalControl(msgPong, nil)
}

func errorMsg(message string) []byte {
	return marshalControl(msgError, map[string]any{"message": message})
}
