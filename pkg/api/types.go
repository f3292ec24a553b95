package api

// GamepadMsg is one operator input frame received on the input websocket:
// raw axis values in [-1, 1] and the pressed state of each button, in the
// device's index order.
type GamepadMsg struct {
	Axes    []float64 `json:"axes"`
	Buttons []bool    `json:"buttons"`
}
