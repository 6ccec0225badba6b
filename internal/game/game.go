package game

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"
)

// FlipMode controls the column flip applied after every move.
type FlipMode string

const (
	FlipNone   FlipMode = "none"   // classic rules
	FlipPlayed FlipMode = "played" // flip the column just played in
	FlipAll    FlipMode = "all"    // flip every column
)

// Status is the lifecycle of one game.
type Status string

const (
	StatusInProgress Status = "in_progress"
	StatusFinished   Status = "finished"
)

// Tally accumulates results across games in one session.
type Tally struct {
	XWins int
	OWins int
	Draws int
}

// Options configure a new game.
type Options struct {
	BoardSize  int
	WinLength  int // 0 means full board size
	FlipMode   FlipMode
	FlipDelay  time.Duration // how long a flip stays in flight; 0 means 250ms
	Difficulty Difficulty
	HumanMark  Mark // defaults to X
	Seed       int64
}

// Snapshot is an immutable view of the game published to watchers.
type Snapshot struct {
	Board     Board
	Turn      Mark
	Status    Status
	Outcome   Outcome
	Flipping  bool
	Tally     Tally
	MoveCount int
}

// Game owns one match against the AI. All state lives behind a mutex;
// watchers receive snapshots instead of sharing the struct.
type Game struct {
	mu        sync.Mutex
	board     Board
	turn      Mark
	status    Status
	outcome   Outcome
	flipping  bool
	moveCount int
	tally     Tally

	opts   Options
	rng    *rand.Rand
	logger *slog.Logger

	watchMu  sync.Mutex
	watchers map[int]chan Snapshot
	nextID   int

	runMu  sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a game ready for the human's first move.
func New(opts Options, logger *slog.Logger) (*Game, error) {
	board, err := NewBoard(opts.BoardSize)
	if err != nil {
		return nil, err
	}
	if opts.WinLength == 0 {
		opts.WinLength = opts.BoardSize
	}
	if opts.WinLength < 3 || opts.WinLength > opts.BoardSize {
		return nil, fmt.Errorf("win length %d invalid for %dx%d board", opts.WinLength, opts.BoardSize, opts.BoardSize)
	}
	if opts.FlipMode == "" {
		opts.FlipMode = FlipNone
	}
	if opts.FlipDelay <= 0 {
		opts.FlipDelay = 250 * time.Millisecond
	}
	if opts.Difficulty == "" {
		opts.Difficulty = DifficultyMedium
	}
	if opts.HumanMark == NoMark {
		opts.HumanMark = MarkX
	}
	seed := opts.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Game{
		board:    board,
		turn:     MarkX,
		status:   StatusInProgress,
		opts:     opts,
		rng:      rand.New(rand.NewSource(seed)),
		logger:   logger.With("component", "game"),
		watchers: make(map[int]chan Snapshot),
	}, nil
}

func (g *Game) aiMark() Mark { return g.opts.HumanMark.Opponent() }

// Snapshot returns the current state.
func (g *Game) Snapshot() Snapshot {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.snapshotLocked()
}

func (g *Game) snapshotLocked() Snapshot {
	return Snapshot{
		Board:     g.board,
		Turn:      g.turn,
		Status:    g.status,
		Outcome:   g.outcome,
		Flipping:  g.flipping,
		Tally:     g.tally,
		MoveCount: g.moveCount,
	}
}

// Watch streams snapshots after every state change. The channel keeps
// only the latest value; slow consumers never block the game.
func (g *Game) Watch(ctx context.Context) <-chan Snapshot {
	// Buffer the current snapshot before registering: once the watcher
	// is visible to publish, sends on the channel must never block.
	ch := make(chan Snapshot, 1)
	ch <- g.Snapshot()

	g.watchMu.Lock()
	id := g.nextID
	g.nextID++
	g.watchers[id] = ch
	g.watchMu.Unlock()

	go func() {
		<-ctx.Done()
		g.watchMu.Lock()
		delete(g.watchers, id)
		g.watchMu.Unlock()
	}()
	return ch
}

func (g *Game) publish(snap Snapshot) {
	g.watchMu.Lock()
	defer g.watchMu.Unlock()
	for _, ch := range g.watchers {
		select {
		case ch <- snap:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- snap:
			default:
			}
		}
	}
}

// PlayHuman places the human's mark. The flip runs before the outcome
// is decided: a flip can complete or destroy lines, so evaluation waits
// for the settled board.
func (g *Game) PlayHuman(row, col int) (Snapshot, error) {
	return g.play(row, col, g.opts.HumanMark)
}

func (g *Game) play(row, col int, mark Mark) (Snapshot, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.status != StatusInProgress {
		return g.snapshotLocked(), fmt.Errorf("game already finished")
	}
	if g.turn != mark {
		return g.snapshotLocked(), fmt.Errorf("not %s's turn", mark)
	}
	if g.flipping {
		return g.snapshotLocked(), fmt.Errorf("board flip in progress")
	}

	placed, err := g.board.WithMove(row, col, mark)
	if err != nil {
		return g.snapshotLocked(), err
	}
	g.board = placed
	g.moveCount++

	if g.opts.FlipMode != FlipNone {
		// The flip settles asynchronously; the outcome is unknown
		// until it does, since the flip can make or break lines.
		// No one may move while it is in flight.
		g.flipping = true
		snap := g.snapshotLocked()
		g.publish(snap)
		go g.settleFlip(col)
		return snap, nil
	}

	g.settleLocked()
	snap := g.snapshotLocked()
	g.publish(snap)
	return snap, nil
}

// settleFlip applies the pending column flip after the animation
// delay, then evaluates the settled board. It re-reads the game state
// under the lock rather than trusting anything captured at move time.
func (g *Game) settleFlip(playedCol int) {
	time.Sleep(g.opts.FlipDelay)
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.flipping {
		return
	}
	switch g.opts.FlipMode {
	case FlipPlayed:
		g.board = g.board.FlipColumn(playedCol)
	case FlipAll:
		g.board = g.board.FlipAllColumns()
	}
	g.flipping = false
	g.settleLocked()
	g.publish(g.snapshotLocked())
}

// settleLocked evaluates the board and advances the turn or ends the
// game. Caller holds the lock.
func (g *Game) settleLocked() {
	g.outcome = g.board.Evaluate(g.opts.WinLength)
	if g.outcome == OutcomeNone {
		g.turn = g.turn.Opponent()
		return
	}
	g.status = StatusFinished
	switch g.outcome {
	case OutcomeXWins:
		g.tally.XWins++
	case OutcomeOWins:
		g.tally.OWins++
	case OutcomeDraw:
		g.tally.Draws++
	}
}

// Reset starts the next round on a fresh board, keeping the tally.
// The loser of the previous round would traditionally start; X always
// starts here to keep the AI loop simple.
func (g *Game) Reset() (Snapshot, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	board, err := NewBoard(g.opts.BoardSize)
	if err != nil {
		return g.snapshotLocked(), err
	}
	g.board = board
	g.turn = MarkX
	g.status = StatusInProgress
	g.outcome = OutcomeNone
	g.flipping = false
	g.moveCount = 0
	snap := g.snapshotLocked()
	g.publish(snap)
	return snap, nil
}

// aiPollInterval is how often the AI loop re-checks whose turn it is.
const aiPollInterval = 100 * time.Millisecond

// StartAI launches the opponent loop. It polls the game state and only
// moves when it is genuinely the AI's turn and no flip is in flight,
// then re-checks the state before committing: the board may have
// changed while the move was being computed.
func (g *Game) StartAI(ctx context.Context) {
	g.runMu.Lock()
	defer g.runMu.Unlock()
	if g.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	g.cancel = cancel
	g.done = make(chan struct{})
	go g.aiLoop(ctx)
}

// StopAI halts the opponent loop.
func (g *Game) StopAI() {
	g.runMu.Lock()
	cancel, done := g.cancel, g.done
	g.cancel, g.done = nil, nil
	g.runMu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (g *Game) aiLoop(ctx context.Context) {
	defer close(g.done)
	ticker := time.NewTicker(aiPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			g.maybeMove()
		}
	}
}

func (g *Game) maybeMove() {
	snap := g.Snapshot()
	if snap.Status != StatusInProgress || snap.Turn != g.aiMark() || snap.Flipping {
		return
	}

	g.mu.Lock()
	rng := g.rng
	g.mu.Unlock()
	cell, err := ChooseMove(snap.Board, g.aiMark(), g.opts.WinLength, g.opts.Difficulty, rng)
	if err != nil {
		g.logger.Warn("ai move selection failed", "error", err)
		return
	}

	// Latest state may differ from the snapshot the move was computed
	// on; play re-validates turn and cell under the lock and the move
	// is simply dropped if the world moved on.
	if _, err := g.play(cell.Row, cell.Col, g.aiMark()); err != nil {
		g.logger.Debug("ai move discarded", "error", err)
	}
}
