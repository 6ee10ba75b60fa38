package observerproto

// Version is the observer feed protocol version.
const Version = "0.1"

const (
	TypeSubscribe = "SUBSCRIBE"
	TypePosition  = "POSITION"
	TypeTick      = "TICK"
	TypeError     = "ERROR"
)

// Client -> Server. First message on the observer WS connection.
type SubscribeMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	SessionID       string `json:"session_id,omitempty"`
	// Drive marks the session as the camera feeding observer positions.
	Drive bool `json:"drive,omitempty"`
}

// Client -> Server. Observer world position, sampled by the engine once per tick.
type PositionMsg struct {
	Type string     `json:"type"`
	Pos  [3]float32 `json:"pos"`
}

// Server -> Client. Sent every tick.
type TickMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Tick            uint64 `json:"tick"`
	Disabled        bool   `json:"disabled,omitempty"`

	Center  [2]int `json:"center"`
	Radius  int    `json:"radius"`
	Visible int    `json:"visible"`

	Load    [][2]int `json:"load,omitempty"`
	Unload  [][2]int `json:"unload,omitempty"`
	Promote [][2]int `json:"promote,omitempty"`

	LiveAgents     int `json:"live_agents"`
	ActiveAgents   int `json:"active_agents"`
	RenderedAgents int `json:"rendered_agents"`

	// Agents lists rendered agents only, capped per tick.
	Agents []AgentState `json:"agents,omitempty"`
}

type AgentState struct {
	ID       uint64     `json:"id"`
	Cell     [2]int     `json:"cell"`
	Pos      [3]float32 `json:"pos"`
	Behavior string     `json:"behavior"`
	Active   bool       `json:"active"`
}

// Server -> Client.
type ErrorMsg struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}
