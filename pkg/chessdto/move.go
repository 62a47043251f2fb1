package chessdto

// MoveSpec is a move request in coordinate form (From/To/Promotion) or algebraic form (SAN).
// Coordinate form wins when both From and To are set.
type MoveSpec struct {
	From      string `json:"from,omitempty"`
	To        string `json:"to,omitempty"`
	Promotion string `json:"promotion,omitempty"`
	SAN       string `json:"san,omitempty"`
	// TimeLeft optionally carries the mover's client clock.
	TimeLeft *Clock `json:"timeLeft,omitempty"`
}

// Clock holds remaining seconds per colour as reported by clients.
type Clock struct {
	W int `json:"w"`
	B int `json:"b"`
}

// HasCoordinates reports whether the move is given in coordinate form.
func (m MoveSpec) HasCoordinates() bool { return m.From != "" && m.To != "" }
