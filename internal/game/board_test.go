package game

import "testing"

// place fills cells on a fresh board, alternating nothing: the marks
// are given explicitly per cell.
func place(t *testing.T, n int, moves map[Cell]Mark) Board {
	t.Helper()
	b, err := NewBoard(n)
	if err != nil {
		t.Fatalf("NewBoard(%d) error = %v", n, err)
	}
	for cell, m := range moves {
		b, err = b.WithMove(cell.Row, cell.Col, m)
		if err != nil {
			t.Fatalf("WithMove(%v, %s) error = %v", cell, m, err)
		}
	}
	return b
}

func TestNewBoardSizeBounds(t *testing.T) {
	for _, n := range []int{3, 4, 5} {
		if _, err := NewBoard(n); err != nil {
			t.Errorf("NewBoard(%d) error = %v, want nil", n, err)
		}
	}
	for _, n := range []int{0, 2, 6} {
		if _, err := NewBoard(n); err == nil {
			t.Errorf("NewBoard(%d) error = nil, want size error", n)
		}
	}
}

func TestWithMoveDoesNotMutateReceiver(t *testing.T) {
	b, _ := NewBoard(3)
	next, err := b.WithMove(1, 1, MarkX)
	if err != nil {
		t.Fatalf("WithMove() error = %v", err)
	}
	if b.At(1, 1) != NoMark {
		t.Error("original board mutated by WithMove")
	}
	if next.At(1, 1) != MarkX {
		t.Error("move missing from returned board")
	}
	if _, err := next.WithMove(1, 1, MarkO); err == nil {
		t.Error("WithMove() on taken cell succeeded")
	}
}

func TestFlipColumnReverses(t *testing.T) {
	b := place(t, 3, map[Cell]Mark{
		{0, 1}: MarkX,
		{2, 1}: MarkO,
	})
	flipped := b.FlipColumn(1)
	if flipped.At(0, 1) != MarkO || flipped.At(2, 1) != MarkX {
		t.Errorf("column not reversed: top=%q bottom=%q", flipped.At(0, 1), flipped.At(2, 1))
	}
	if b.At(0, 1) != MarkX {
		t.Error("FlipColumn mutated the original board")
	}
}

func TestFlipAllColumnsReversesEach(t *testing.T) {
	b := place(t, 4, map[Cell]Mark{
		{0, 0}: MarkX,
		{0, 3}: MarkO,
	})
	flipped := b.FlipAllColumns()
	if flipped.At(3, 0) != MarkX || flipped.At(3, 3) != MarkO {
		t.Error("marks did not move to the opposite end of their columns")
	}
	if flipped.At(0, 0) != NoMark {
		t.Error("original top cell still occupied after flip")
	}
}

func TestHasLineRowsColumnsDiagonals(t *testing.T) {
	row := place(t, 3, map[Cell]Mark{{1, 0}: MarkX, {1, 1}: MarkX, {1, 2}: MarkX})
	if !row.HasLine(MarkX, 3) {
		t.Error("full row not detected")
	}
	col := place(t, 3, map[Cell]Mark{{0, 2}: MarkO, {1, 2}: MarkO, {2, 2}: MarkO})
	if !col.HasLine(MarkO, 3) {
		t.Error("full column not detected")
	}
	diag := place(t, 3, map[Cell]Mark{{0, 0}: MarkX, {1, 1}: MarkX, {2, 2}: MarkX})
	if !diag.HasLine(MarkX, 3) {
		t.Error("main diagonal not detected")
	}
	anti := place(t, 3, map[Cell]Mark{{0, 2}: MarkO, {1, 1}: MarkO, {2, 0}: MarkO})
	if !anti.HasLine(MarkO, 3) {
		t.Error("anti-diagonal not detected")
	}
}

func TestHasLineReducedWinLength(t *testing.T) {
	// A diagonal run of three in the middle of a 5x5 board.
	b := place(t, 5, map[Cell]Mark{{1, 1}: MarkX, {2, 2}: MarkX, {3, 3}: MarkX})
	if !b.HasLine(MarkX, 3) {
		t.Error("3-in-a-row on 5x5 not detected with winLength 3")
	}
	if b.HasLine(MarkX, 5) {
		t.Error("3-in-a-row reported as a full-length line")
	}
}

func TestEvaluateSimultaneousWinIsDraw(t *testing.T) {
	b := place(t, 3, map[Cell]Mark{
		{0, 0}: MarkX, {0, 1}: MarkX, {0, 2}: MarkX,
		{2, 0}: MarkO, {2, 1}: MarkO, {2, 2}: MarkO,
	})
	if got := b.Evaluate(3); got != OutcomeDraw {
		t.Errorf("Evaluate() = %v, want draw when both players hold a line", got)
	}
}

func TestEvaluateFullBoardDraw(t *testing.T) {
	// X O X / X O O / O X X: no line for either player.
	b := place(t, 3, map[Cell]Mark{
		{0, 0}: MarkX, {0, 1}: MarkO, {0, 2}: MarkX,
		{1, 0}: MarkX, {1, 1}: MarkO, {1, 2}: MarkO,
		{2, 0}: MarkO, {2, 1}: MarkX, {2, 2}: MarkX,
	})
	if got := b.Evaluate(3); got != OutcomeDraw {
		t.Errorf("Evaluate() = %v, want draw on full lineless board", got)
	}
}

func TestEvaluateOpenBoard(t *testing.T) {
	b := place(t, 3, map[Cell]Mark{{0, 0}: MarkX})
	if got := b.Evaluate(3); got != OutcomeNone {
		t.Errorf("Evaluate() = %v, want open", got)
	}
}
