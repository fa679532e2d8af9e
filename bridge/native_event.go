package bridge

import "github.com/chrisuehlinger/hostbridge/native"

// NativeEvent is the host's description of an occurrence (user gesture,
// timer, load) to be dispatched into the script side.
type NativeEvent struct {
	Type       string       `json:"type"`
	Bubbles    bool         `json:"bubbles,omitempty"`
	Cancelable bool         `json:"cancelable,omitempty"`
	TimeStamp  float64      `json:"timeStamp,omitempty"`
	Detail     native.Value `json:"detail"`
}
