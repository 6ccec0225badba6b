// Package game implements the built-in tic-tac-toe mini game: boards
// of size 3 to 5, a tiered AI opponent, and the column-flip variant.
package game

import "fmt"

// Mark is a player's symbol on the board. Empty cells hold NoMark.
type Mark string

const (
	NoMark Mark = ""
	MarkX  Mark = "X"
	MarkO  Mark = "O"
)

// Opponent returns the other player's mark.
func (m Mark) Opponent() Mark {
	switch m {
	case MarkX:
		return MarkO
	case MarkO:
		return MarkX
	}
	return NoMark
}

// Cell addresses one board position.
type Cell struct {
	Row, Col int
}

// Outcome is the result of evaluating a board.
type Outcome int

const (
	OutcomeNone Outcome = iota // game still open
	OutcomeXWins
	OutcomeOWins
	OutcomeDraw
)

func (o Outcome) String() string {
	switch o {
	case OutcomeXWins:
		return "x_wins"
	case OutcomeOWins:
		return "o_wins"
	case OutcomeDraw:
		return "draw"
	}
	return "open"
}

// Board is an immutable N×N grid. Mutating operations return a new
// board and never touch the receiver, so values can be shared freely
// across goroutines and through the minimax recursion.
type Board struct {
	n     int
	cells []Mark
}

// NewBoard creates an empty board. Size must be 3, 4 or 5.
func NewBoard(n int) (Board, error) {
	if n < 3 || n > 5 {
		return Board{}, fmt.Errorf("board size %d not supported, want 3 to 5", n)
	}
	return Board{n: n, cells: make([]Mark, n*n)}, nil
}

func (b Board) Size() int { return b.n }

// At returns the mark at the given cell.
func (b Board) At(row, col int) Mark {
	return b.cells[row*b.n+col]
}

func (b Board) inBounds(row, col int) bool {
	return row >= 0 && row < b.n && col >= 0 && col < b.n
}

func (b Board) clone() Board {
	cells := make([]Mark, len(b.cells))
	copy(cells, b.cells)
	return Board{n: b.n, cells: cells}
}

// WithMove returns a copy of the board with the mark placed.
func (b Board) WithMove(row, col int, m Mark) (Board, error) {
	if !b.inBounds(row, col) {
		return b, fmt.Errorf("cell (%d,%d) outside %dx%d board", row, col, b.n, b.n)
	}
	if b.At(row, col) != NoMark {
		return b, fmt.Errorf("cell (%d,%d) already taken", row, col)
	}
	next := b.clone()
	next.cells[row*b.n+col] = m
	return next, nil
}

// EmptyCells lists the open positions in row-major order.
func (b Board) EmptyCells() []Cell {
	var open []Cell
	for r := 0; r < b.n; r++ {
		for c := 0; c < b.n; c++ {
			if b.At(r, c) == NoMark {
				open = append(open, Cell{r, c})
			}
		}
	}
	return open
}

// Full reports whether no empty cell remains.
func (b Board) Full() bool {
	for _, m := range b.cells {
		if m == NoMark {
			return false
		}
	}
	return true
}

// FlipColumn returns a copy with one column reversed top to bottom.
func (b Board) FlipColumn(col int) Board {
	next := b.clone()
	for top, bottom := 0, b.n-1; top < bottom; top, bottom = top+1, bottom-1 {
		next.cells[top*b.n+col], next.cells[bottom*b.n+col] = next.cells[bottom*b.n+col], next.cells[top*b.n+col]
	}
	return next
}

// FlipAllColumns returns a copy with every column reversed.
func (b Board) FlipAllColumns() Board {
	next := b.clone()
	for col := 0; col < b.n; col++ {
		for top, bottom := 0, b.n-1; top < bottom; top, bottom = top+1, bottom-1 {
			next.cells[top*b.n+col], next.cells[bottom*b.n+col] = next.cells[bottom*b.n+col], next.cells[top*b.n+col]
		}
	}
	return next
}

// HasLine reports whether the mark has winLength in a row anywhere:
// along rows, columns, or either diagonal direction.
func (b Board) HasLine(m Mark, winLength int) bool {
	if m == NoMark {
		return false
	}
	dirs := [4][2]int{{0, 1}, {1, 0}, {1, 1}, {1, -1}}
	for r := 0; r < b.n; r++ {
		for c := 0; c < b.n; c++ {
			if b.At(r, c) != m {
				continue
			}
			for _, d := range dirs {
				run := 1
				for step := 1; step < winLength; step++ {
					rr, cc := r+d[0]*step, c+d[1]*step
					if !b.inBounds(rr, cc) || b.At(rr, cc) != m {
						break
					}
					run++
				}
				if run >= winLength {
					return true
				}
			}
		}
	}
	return false
}

// Evaluate classifies the board. Both players holding a winning line at
// once counts as a draw: a column flip can complete two lines in one
// move, and neither player earns it.
func (b Board) Evaluate(winLength int) Outcome {
	xWins := b.HasLine(MarkX, winLength)
	oWins := b.HasLine(MarkO, winLength)
	switch {
	case xWins && oWins:
		return OutcomeDraw
	case xWins:
		return OutcomeXWins
	case oWins:
		return OutcomeOWins
	case b.Full():
		return OutcomeDraw
	}
	return OutcomeNone
}
