package game

import (
	"fmt"
	"math/rand"
)

// Difficulty selects the AI strategy tier.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// mediumHardWeight is the chance a medium AI plays the hard move
// instead of a random one.
const mediumHardWeight = 0.7

// maxMinimaxDepth caps the 3x3 search at the board size.
const maxMinimaxDepth = 9

// ChooseMove picks the AI's next move for the given player.
func ChooseMove(b Board, player Mark, winLength int, difficulty Difficulty, rng *rand.Rand) (Cell, error) {
	open := b.EmptyCells()
	if len(open) == 0 {
		return Cell{}, fmt.Errorf("no empty cell to play")
	}
	switch difficulty {
	case DifficultyEasy:
		return open[rng.Intn(len(open))], nil
	case DifficultyMedium:
		if rng.Float64() < mediumHardWeight {
			return hardMove(b, player, winLength, rng), nil
		}
		return open[rng.Intn(len(open))], nil
	case DifficultyHard:
		return hardMove(b, player, winLength, rng), nil
	}
	return Cell{}, fmt.Errorf("unknown difficulty %q", difficulty)
}

// hardMove runs full minimax on 3x3 boards and the heuristic pipeline
// on larger ones, where exhaustive search is intractable.
func hardMove(b Board, player Mark, winLength int, rng *rand.Rand) Cell {
	if b.Size() == 3 {
		return minimaxMove(b, player, winLength)
	}
	return heuristicMove(b, player, winLength, rng)
}

// minimaxMove searches the full game tree with alpha-beta pruning.
// Wins score 10-depth and losses depth-10, so the search prefers the
// fastest win and the slowest loss.
func minimaxMove(b Board, player Mark, winLength int) Cell {
	best := Cell{-1, -1}
	bestScore := -1 << 20
	for _, cell := range b.EmptyCells() {
		next, err := b.WithMove(cell.Row, cell.Col, player)
		if err != nil {
			continue
		}
		score := minimax(next, player, player.Opponent(), winLength, 1, -1<<20, 1<<20)
		if score > bestScore {
			bestScore = score
			best = cell
		}
	}
	return best
}

func minimax(b Board, aiPlayer, toMove Mark, winLength, depth, alpha, beta int) int {
	switch b.Evaluate(winLength) {
	case OutcomeXWins, OutcomeOWins:
		// The player who just moved made the line.
		if toMove == aiPlayer {
			return depth - 10
		}
		return 10 - depth
	case OutcomeDraw:
		return 0
	}
	if depth >= maxMinimaxDepth {
		return 0
	}

	if toMove == aiPlayer {
		best := -1 << 20
		for _, cell := range b.EmptyCells() {
			next, err := b.WithMove(cell.Row, cell.Col, toMove)
			if err != nil {
				continue
			}
			score := minimax(next, aiPlayer, toMove.Opponent(), winLength, depth+1, alpha, beta)
			if score > best {
				best = score
			}
			if best > alpha {
				alpha = best
			}
			if beta <= alpha {
				break
			}
		}
		return best
	}

	best := 1 << 20
	for _, cell := range b.EmptyCells() {
		next, err := b.WithMove(cell.Row, cell.Col, toMove)
		if err != nil {
			continue
		}
		score := minimax(next, aiPlayer, toMove.Opponent(), winLength, depth+1, alpha, beta)
		if score < best {
			best = score
		}
		if best < beta {
			beta = best
		}
		if beta <= alpha {
			break
		}
	}
	return best
}

// heuristicMove applies a strict priority pipeline: win now, block the
// opponent's win, take the center, take a corner, then maximize
// alignment with own marks.
func heuristicMove(b Board, player Mark, winLength int, rng *rand.Rand) Cell {
	open := b.EmptyCells()

	if cell, ok := winningCell(b, player, winLength); ok {
		return cell
	}
	if cell, ok := winningCell(b, player.Opponent(), winLength); ok {
		return cell
	}
	n := b.Size()
	if n%2 == 1 {
		center := Cell{n / 2, n / 2}
		if b.At(center.Row, center.Col) == NoMark {
			return center
		}
	}
	corners := []Cell{{0, 0}, {0, n - 1}, {n - 1, 0}, {n - 1, n - 1}}
	var openCorners []Cell
	for _, c := range corners {
		if b.At(c.Row, c.Col) == NoMark {
			openCorners = append(openCorners, c)
		}
	}
	if len(openCorners) > 0 {
		return openCorners[rng.Intn(len(openCorners))]
	}

	best := open[0]
	bestScore := -1
	for _, cell := range open {
		if score := alignmentScore(b, cell, player); score > bestScore {
			bestScore = score
			best = cell
		}
	}
	return best
}

// winningCell finds a move that completes a line for the mark.
func winningCell(b Board, m Mark, winLength int) (Cell, bool) {
	for _, cell := range b.EmptyCells() {
		next, err := b.WithMove(cell.Row, cell.Col, m)
		if err != nil {
			continue
		}
		if next.HasLine(m, winLength) {
			return cell, true
		}
	}
	return Cell{}, false
}

// alignmentScore counts same-mark cells sharing the cell's row, column
// and diagonals.
func alignmentScore(b Board, cell Cell, m Mark) int {
	n := b.Size()
	score := 0
	for c := 0; c < n; c++ {
		if c != cell.Col && b.At(cell.Row, c) == m {
			score++
		}
	}
	for r := 0; r < n; r++ {
		if r != cell.Row && b.At(r, cell.Col) == m {
			score++
		}
	}
	if cell.Row == cell.Col {
		for i := 0; i < n; i++ {
			if i != cell.Row && b.At(i, i) == m {
				score++
			}
		}
	}
	if cell.Row+cell.Col == n-1 {
		for i := 0; i < n; i++ {
			if i != cell.Row && b.At(i, n-1-i) == m {
				score++
			}
		}
	}
	return score
}
