// Package seatmap lays out the seats of a party room.
package seatmap

import (
	"fmt"
	"slices"
)

const (
	defaultRows = 3
	defaultCols = 4
)

type SeatMap struct {
	Rows  int      `json:"rows"`
	Cols  int      `json:"cols"`
	Seats []string `json:"seats"`
}

// Build returns the seat grid for a room capacity. Labels are generated row
// major starting at A-1. Unrecognized capacities get the 3x4 grid.
func Build(capacity int) SeatMap {
	rows, cols := defaultRows, defaultCols
	switch capacity {
	case 6:
		rows, cols = 2, 3
	case 24:
		rows, cols = 4, 6
	case 48:
		rows, cols = 6, 8
	}

	seats := make([]string, 0, rows*cols)
	for r := range rows {
		for c := 1; c <= cols; c++ {
			seats = append(seats, Label(r, c))
		}
	}

	return SeatMap{Rows: rows, Cols: cols, Seats: seats}
}

// Label formats the seat in zero based row r and one based column c.
func Label(r, c int) string {
	return fmt.Sprintf("%c-%d", 'A'+r, c)
}

func BestHostSeat(capacity int) string {
	m := Build(capacity)
	if len(m.Seats) == 0 {
		return Label(0, 1)
	}
	return m.Seats[0]
}

func (m SeatMap) Contains(seat string) bool {
	return slices.Contains(m.Seats, seat)
}
