package backtrackingsudokusolver

import (
	"context"
	"errors"
	"math/rand"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sudokulab/sudoku-evolution/constraintpropagation"
	"github.com/sudokulab/sudoku-evolution/sudokuboard"
)

// Difficulty represents the difficulty of a generated puzzle
type Difficulty int

const (
	Easy Difficulty = iota
	Medium
	Hard
	Expert
)

func (d Difficulty) String() string {
	switch d {
	case Easy:
		return "easy"
	case Medium:
		return "medium"
	case Hard:
		return "hard"
	case Expert:
		return "expert"
	default:
		return "unknown"
	}
}

// Config contains configuration for the exact solver
type Config struct {
	MaxWorkers     int
	UsePropagation bool
	RandomSeed     int64
}

// DefaultConfig returns a solver configuration with sensible defaults
func DefaultConfig() Config {
	return Config{
		MaxWorkers:     runtime.NumCPU(),
		UsePropagation: true,
	}
}

// Stats contains solving statistics
type Stats struct {
	TasksSpawned     int64
	BacktrackCount   int64
	PropagatedCells  int64
	SuccessfulSolves int64
	FailedSolves     int64
	LastSolveTime    time.Duration
}

// Solver solves Sudoku boards exactly, fanning the first branching decision
// out across a worker pool and backtracking within each worker.
type Solver struct {
	config     Config
	stats      Stats
	statsMutex sync.RWMutex
}

// NewSolver creates a new exact solver
func NewSolver(config Config) *Solver {
	if config.MaxWorkers <= 0 {
		config.MaxWorkers = runtime.NumCPU()
	}

	return &Solver{config: config}
}

// ErrNoSolution is returned when a board has no valid completion
var ErrNoSolution = errors.New("no solution exists")

// Solve returns a completed board, or ErrNoSolution if the puzzle cannot be
// completed. The input board must be internally consistent; callers should
// check IsValid first.
func (s *Solver) Solve(ctx context.Context, board sudokuboard.Board) (*sudokuboard.Board, error) {
	startTime := time.Now()

	if !board.IsValid() {
		return nil, errors.New("input board has conflicting givens")
	}

	if s.config.UsePropagation {
		reduced, propStats := constraintpropagation.Reduce(board)
		board = reduced
		atomic.AddInt64(&s.stats.PropagatedCells, int64(propStats.CellsFilled))
	}

	emptyCells := board.EmptyCells()
	if len(emptyCells) == 0 {
		s.recordSolve(startTime, true)
		return &board, nil
	}

	solution, err := s.solveParallel(ctx, board, emptyCells)
	s.recordSolve(startTime, solution != nil)
	return solution, err
}

// solveParallel branches on the first empty cell and hands each legal digit
// to the worker pool as an independent backtracking task
func (s *Solver) solveParallel(ctx context.Context, board sudokuboard.Board, emptyCells []sudokuboard.Cell) (*sudokuboard.Board, error) {
	first := emptyCells[0]
	rest := emptyCells[1:]

	type task struct {
		board sudokuboard.Board
	}

	tasks := make(chan task, 9)
	results := make(chan *sudokuboard.Board, s.config.MaxWorkers)

	taskCtx, cancelTasks := context.WithCancel(ctx)
	defer cancelTasks()

	var wg sync.WaitGroup
	for i := 0; i < s.config.MaxWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case t, ok := <-tasks:
					if !ok {
						return
					}
					solution := s.backtrack(taskCtx, &t.board, rest, 0)
					if solution != nil {
						select {
						case results <- solution:
							cancelTasks()
						case <-taskCtx.Done():
						}
						return
					}
				case <-taskCtx.Done():
					return
				}
			}
		}()
	}

	for digit := 1; digit <= 9; digit++ {
		if !placementAllowed(&board, first.Row, first.Col, digit) {
			continue
		}

		branch := board
		branch[first.Row][first.Col] = digit
		atomic.AddInt64(&s.stats.TasksSpawned, 1)

		select {
		case tasks <- task{board: branch}:
		case <-taskCtx.Done():
		}
	}
	close(tasks)

	go func() {
		wg.Wait()
		close(results)
	}()

	if solution, ok := <-results; ok {
		return solution, nil
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	return nil, ErrNoSolution
}

// backtrack fills emptyCells[index:] recursively, returning the first
// completed board found or nil
func (s *Solver) backtrack(ctx context.Context, board *sudokuboard.Board, emptyCells []sudokuboard.Cell, index int) *sudokuboard.Board {
	if index >= len(emptyCells) {
		solution := *board
		return &solution
	}

	// Poll cancellation at a coarse stride to keep the hot loop cheap
	if index%16 == 0 {
		select {
		case <-ctx.Done():
			return nil
		default:
		}
	}

	cell := emptyCells[index]
	if board[cell.Row][cell.Col] != 0 {
		// Filled by an earlier propagation pass
		return s.backtrack(ctx, board, emptyCells, index+1)
	}

	for digit := 1; digit <= 9; digit++ {
		if !placementAllowed(board, cell.Row, cell.Col, digit) {
			continue
		}

		board[cell.Row][cell.Col] = digit
		if solution := s.backtrack(ctx, board, emptyCells, index+1); solution != nil {
			return solution
		}
		board[cell.Row][cell.Col] = 0
		atomic.AddInt64(&s.stats.BacktrackCount, 1)
	}

	return nil
}

func placementAllowed(board *sudokuboard.Board, row, col, digit int) bool {
	for i := 0; i < 9; i++ {
		if board[row][i] == digit || board[i][col] == digit {
			return false
		}
	}

	boxRow := (row / 3) * 3
	boxCol := (col / 3) * 3
	for i := boxRow; i < boxRow+3; i++ {
		for j := boxCol; j < boxCol+3; j++ {
			if board[i][j] == digit {
				return false
			}
		}
	}

	return true
}

func (s *Solver) recordSolve(startTime time.Time, success bool) {
	s.statsMutex.Lock()
	defer s.statsMutex.Unlock()

	s.stats.LastSolveTime = time.Since(startTime)
	if success {
		s.stats.SuccessfulSolves++
	} else {
		s.stats.FailedSolves++
	}
}

// GetStats returns a snapshot of the solver statistics
func (s *Solver) GetStats() Stats {
	s.statsMutex.RLock()
	defer s.statsMutex.RUnlock()

	stats := s.stats
	stats.TasksSpawned = atomic.LoadInt64(&s.stats.TasksSpawned)
	stats.BacktrackCount = atomic.LoadInt64(&s.stats.BacktrackCount)
	stats.PropagatedCells = atomic.LoadInt64(&s.stats.PropagatedCells)
	return stats
}

// Puzzle generation

// GenerateSolvedBoard produces a random complete valid board by filling the
// three diagonal boxes independently and completing the rest exactly
func GenerateSolvedBoard(seed int64) sudokuboard.Board {
	r := rand.New(rand.NewSource(seed))

	var board sudokuboard.Board
	for box := 0; box < 3; box++ {
		fillBox(&board, box*3, box*3, r)
	}

	solver := NewSolver(Config{MaxWorkers: 1, UsePropagation: true})
	solution, err := solver.Solve(context.Background(), board)
	if err != nil || solution == nil {
		return defaultSolvedBoard()
	}

	return *solution
}

// GeneratePuzzle produces a puzzle and its solution by removing cells from a
// random solved board. The number of removed cells depends on difficulty.
func GeneratePuzzle(difficulty Difficulty, seed int64) (puzzle, solution sudokuboard.Board) {
	r := rand.New(rand.NewSource(seed))

	solution = GenerateSolvedBoard(seed)
	puzzle = solution

	positions := r.Perm(81)
	for _, p := range positions[:cellsToRemove(difficulty)] {
		puzzle[p/9][p%9] = 0
	}

	return puzzle, solution
}

func fillBox(board *sudokuboard.Board, row, col int, r *rand.Rand) {
	digits := r.Perm(9)
	for i := 0; i < 9; i++ {
		board[row+i/3][col+i%3] = digits[i] + 1
	}
}

func cellsToRemove(difficulty Difficulty) int {
	switch difficulty {
	case Easy:
		return 35
	case Medium:
		return 45
	case Hard:
		return 55
	case Expert:
		return 60
	default:
		return 40
	}
}

func defaultSolvedBoard() sudokuboard.Board {
	return sudokuboard.Board{
		{5, 3, 4, 6, 7, 8, 9, 1, 2},
		{6, 7, 2, 1, 9, 5, 3, 4, 8},
		{1, 9, 8, 3, 4, 2, 5, 6, 7},
		{8, 5, 9, 7, 6, 1, 4, 2, 3},
		{4, 2, 6, 8, 5, 3, 7, 9, 1},
		{7, 1, 3, 9, 2, 4, 8, 5, 6},
		{9, 6, 1, 5, 3, 7, 2, 8, 4},
		{2, 8, 7, 4, 1, 9, 6, 3, 5},
		{3, 4, 5, 2, 8, 6, 1, 7, 9},
	}
}
