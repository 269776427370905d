package desktop

import (
	"encoding/json"
	"time"
)

// Text protocol messages. Every message carries a top-level type
// discriminator; unknown types and malformed JSON are logged and ignored,
// never fatal.

// Server-originated messages.

type serverInfoMsg struct {
	Type       string `json:"type"`
	Width      int    `json:"width"`
	Height     int    `json:"height"`
	Hostname   string `json:"hostname"`
	Monitor    int    `json:"monitor"`
	Codec      string `json:"codec"`
	Audio      bool   `json:"audio"`
	TileWidth  int    `json:"tile_width"`
	TileHeight int    `json:"tile_height"`
	TileSize   int    `json:"tile_size"`
}

type monitorsMsg struct {
	Type     string    `json:"type"`
	Monitors []Monitor `json:"monitors"`
}

type pongMsg struct {
	Type      string `json:"type"`
	Timestamp uint64 `json:"timestamp"`
}

type qualityMsg struct {
	Type  string `json:"type"`
	Value int    `json:"value"`
}

type errorMsg struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type keyframeResponseMsg struct {
	Type      string `json:"type"`
	Status    string `json:"status"`
	Timestamp uint64 `json:"timestamp"`
}

type codecSwitchResponseMsg struct {
	Type    string `json:"type"`
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// controlMessage is the union of client-originated control fields; Type
// selects which are meaningful.
type controlMessage struct {
	Type       string  `json:"type"`
	Timestamp  uint64  `json:"timestamp,omitempty"`
	Latency    uint32  `json:"latency,omitempty"`     // ms
	Bandwidth  float32 `json:"bandwidth,omitempty"`   // Mbps
	PacketLoss float32 `json:"packet_loss,omitempty"` // percent
	Quality    int     `json:"quality,omitempty"`
	Codec      string  `json:"codec,omitempty"`
	Mode       string  `json:"mode,omitempty"`
}

func marshalMsg(v any) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		// All message types are plain structs; this cannot fail.
		panic(err)
	}
	return data
}

func newPong(timestamp uint64) []byte {
	if timestamp == 0 {
		timestamp = nowMillis()
	}
	return marshalMsg(pongMsg{Type: "pong", Timestamp: timestamp})
}

func newQualityMsg(value int) []byte {
	return marshalMsg(qualityMsg{Type: "quality", Value: value})
}

func newErrorMsg(message string) []byte {
	return marshalMsg(errorMsg{Type: "error", Message: message})
}

func newKeyframeResponse() []byte {
	return marshalMsg(keyframeResponseMsg{Type: "keyframe_response", Status: "requested", Timestamp: nowMillis()})
}

func newCodecSwitchResponse(success bool, message string) []byte {
	return marshalMsg(codecSwitchResponseMsg{Type: "codec_switch_response", Success: success, Message: message})
}

func nowMillis() uint64 {
	return uint64(time.Now().UnixMilli())
}
