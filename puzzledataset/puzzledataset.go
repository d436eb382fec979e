package puzzledataset

import (
	"errors"
	"fmt"
	"os"

	"github.com/tidwall/gjson"

	"github.com/sudokulab/sudoku-evolution/sudokuboard"
)

// Entry is one puzzle from a dataset, optionally paired with its known
// solution
type Entry struct {
	ID          string
	Difficulty  string
	Puzzle      sudokuboard.Board
	Solution    sudokuboard.Board
	HasSolution bool
}

// Parse reads a dataset document of the form
//
//	{"puzzles": [{"id": "...", "difficulty": "...",
//	              "grid": "81 chars or [81]int",
//	              "solution": "81 chars or [81]int"}, ...]}
//
// Grids are accepted either as 81-character digit strings ('0' or '.' for
// blanks) or as arrays of 81 integers. Entries with a malformed grid abort
// the parse; a missing solution is allowed.
func Parse(data string) ([]Entry, error) {
	if !gjson.Valid(data) {
		return nil, errors.New("invalid JSON document")
	}

	puzzles := gjson.Get(data, "puzzles")
	if !puzzles.Exists() || !puzzles.IsArray() {
		return nil, errors.New(`missing "puzzles" array`)
	}

	var entries []Entry
	var parseErr error

	puzzles.ForEach(func(index, v gjson.Result) bool {
		entry := Entry{
			ID:         v.Get("id").String(),
			Difficulty: v.Get("difficulty").String(),
		}

		grid := v.Get("grid")
		if !grid.Exists() {
			parseErr = fmt.Errorf("entry %d: missing grid", index.Int())
			return false
		}

		puzzle, err := parseGrid(grid)
		if err != nil {
			parseErr = fmt.Errorf("entry %d: %w", index.Int(), err)
			return false
		}
		entry.Puzzle = puzzle

		if solution := v.Get("solution"); solution.Exists() {
			solved, err := parseGrid(solution)
			if err != nil {
				parseErr = fmt.Errorf("entry %d solution: %w", index.Int(), err)
				return false
			}
			entry.Solution = solved
			entry.HasSolution = true
		}

		entries = append(entries, entry)
		return true
	})

	if parseErr != nil {
		return nil, parseErr
	}

	return entries, nil
}

// ParseFile reads and parses a dataset file
func ParseFile(path string) ([]Entry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(string(data))
}

func parseGrid(v gjson.Result) (sudokuboard.Board, error) {
	if v.IsArray() {
		raw := v.Array()
		cells := make([]int, 0, len(raw))
		for _, cell := range raw {
			cells = append(cells, int(cell.Int()))
		}
		return sudokuboard.FromSlice(cells)
	}

	return sudokuboard.FromString(v.String())
}
