// internal/models/seat.go
package models

// Seat is one of the three fixed player positions.
type Seat string

const (
	SeatLeft  Seat = "LEFT"
	SeatRight Seat = "RIGHT"
	SeatIndep Seat = "INDEP"
)

// Seats lists the seats in turn order: LEFT -> RIGHT -> INDEP -> LEFT.
var Seats = []Seat{SeatLeft, SeatRight, SeatIndep}

// Next returns the seat that plays after s.
func (s Seat) Next() Seat {
	for i, seat := range Seats {
		if seat == s {
			return Seats[(i+1)%len(Seats)]
		}
	}
	return SeatLeft
}

// IsValid reports whether s is one of the three defined seats.
func (s Seat) IsValid() bool {
	return s == SeatLeft || s == SeatRight || s == SeatIndep
}
