package backtrackingsudokusolver

import (
	"context"
	"testing"
	"time"

	"github.com/sudokulab/sudoku-evolution/sudokuboard"
)

var knownSolution = sudokuboard.Board{
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

var classicPuzzle = sudokuboard.Board{
	{5, 3, 0, 0, 7, 0, 0, 0, 0},
	{6, 0, 0, 1, 9, 5, 0, 0, 0},
	{0, 9, 8, 0, 0, 0, 0, 6, 0},
	{8, 0, 0, 0, 6, 0, 0, 0, 3},
	{4, 0, 0, 8, 0, 3, 0, 0, 1},
	{7, 0, 0, 0, 2, 0, 0, 0, 6},
	{0, 6, 0, 0, 0, 0, 2, 8, 0},
	{0, 0, 0, 4, 1, 9, 0, 0, 5},
	{0, 0, 0, 0, 8, 0, 0, 7, 9},
}

func TestSolveClassicPuzzle(t *testing.T) {
	solver := NewSolver(Config{MaxWorkers: 4})

	solution, err := solver.Solve(context.Background(), classicPuzzle)
	if err != nil {
		t.Fatalf("Solve failed: %v", err)
	}

	if !solution.IsSolved() {
		t.Errorf("returned board is not solved:\n%s", solution)
	}

	for i := 0; i < 9; i++ {
		for j := 0; j < 9; j++ {
			if classicPuzzle[i][j] != 0 && solution[i][j] != classicPuzzle[i][j] {
				t.Errorf("given cell (%d,%d) changed from %d to %d", i, j, classicPuzzle[i][j], solution[i][j])
			}
		}
	}
}

func TestSolveWithoutPropagation(t *testing.T) {
	solver := NewSolver(Config{MaxWorkers: 2, UsePropagation: false})

	solution, err := solver.Solve(context.Background(), classicPuzzle)
	if err != nil {
		t.Fatalf("Solve failed: %v", err)
	}

	if !solution.IsSolved() {
		t.Error("returned board is not solved")
	}
}

func TestSolveCompleteBoard(t *testing.T) {
	solver := NewSolver(DefaultConfig())

	solution, err := solver.Solve(context.Background(), knownSolution)
	if err != nil {
		t.Fatalf("Solve failed: %v", err)
	}

	if *solution != knownSolution {
		t.Error("complete board should be returned unchanged")
	}
}

func TestSolveRejectsConflictingGivens(t *testing.T) {
	board := sudokuboard.Board{}
	board[0][0] = 7
	board[0][1] = 7

	solver := NewSolver(DefaultConfig())
	if _, err := solver.Solve(context.Background(), board); err == nil {
		t.Error("expected error for conflicting givens")
	}
}

func TestSolveNoSolution(t *testing.T) {
	// Row 0 holds 1-8, so (0,8) must be 9, but column 8 already has one.
	// No pair of givens conflicts directly.
	board := sudokuboard.Board{}
	for col := 0; col < 8; col++ {
		board[0][col] = col + 1
	}
	board[5][8] = 9

	if !board.IsValid() {
		t.Fatal("test board should have no direct conflicts")
	}

	solver := NewSolver(Config{MaxWorkers: 2, UsePropagation: false})
	_, err := solver.Solve(context.Background(), board)
	if err != ErrNoSolution {
		t.Errorf("expected ErrNoSolution, got %v", err)
	}
}

func TestSolveCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	solver := NewSolver(Config{MaxWorkers: 2, UsePropagation: false})
	board := sudokuboard.Board{}
	board[0][0] = 1

	_, err := solver.Solve(ctx, board)
	if err == nil {
		t.Error("expected error after cancellation")
	}
}

func TestGenerateSolvedBoard(t *testing.T) {
	board := GenerateSolvedBoard(42)

	if !board.IsSolved() {
		t.Errorf("generated board is not solved:\n%s", board)
	}

	other := GenerateSolvedBoard(43)
	if board == other {
		t.Error("different seeds should produce different boards")
	}
}

func TestGeneratePuzzle(t *testing.T) {
	puzzle, solution := GeneratePuzzle(Medium, 7)

	if !solution.IsSolved() {
		t.Fatal("generated solution is not a solved board")
	}

	for i := 0; i < 9; i++ {
		for j := 0; j < 9; j++ {
			if puzzle[i][j] != 0 && puzzle[i][j] != solution[i][j] {
				t.Fatalf("puzzle given (%d,%d) disagrees with solution", i, j)
			}
		}
	}

	if empty := len(puzzle.EmptyCells()); empty != 45 {
		t.Errorf("medium puzzle should have 45 empty cells, got %d", empty)
	}

	solver := NewSolver(DefaultConfig())
	solved, err := solver.Solve(context.Background(), puzzle)
	if err != nil {
		t.Fatalf("generated puzzle is unsolvable: %v", err)
	}

	if !solved.IsSolved() {
		t.Error("solution of generated puzzle is not valid")
	}
}

func TestGeneratePuzzleDifficulties(t *testing.T) {
	expected := map[Difficulty]int{
		Easy:   35,
		Medium: 45,
		Hard:   55,
		Expert: 60,
	}

	for difficulty, want := range expected {
		puzzle, _ := GeneratePuzzle(difficulty, 11)
		if got := len(puzzle.EmptyCells()); got != want {
			t.Errorf("%s puzzle: expected %d empty cells, got %d", difficulty, want, got)
		}
	}
}

func TestStatsAccumulate(t *testing.T) {
	solver := NewSolver(Config{MaxWorkers: 2})

	if _, err := solver.Solve(context.Background(), classicPuzzle); err != nil {
		t.Fatalf("Solve failed: %v", err)
	}

	stats := solver.GetStats()
	if stats.SuccessfulSolves != 1 {
		t.Errorf("expected 1 successful solve, got %d", stats.SuccessfulSolves)
	}

	if stats.LastSolveTime <= 0 || stats.LastSolveTime > time.Minute {
		t.Errorf("implausible solve time: %v", stats.LastSolveTime)
	}
}

func BenchmarkSolveClassicPuzzle(b *testing.B) {
	solver := NewSolver(Config{MaxWorkers: 4})

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := solver.Solve(context.Background(), classicPuzzle); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkGeneratePuzzle(b *testing.B) {
	for i := 0; i < b.N; i++ {
		GeneratePuzzle(Medium, int64(i))
	}
}
