package constraintpropagation

import (
	"github.com/sudokulab/sudoku-evolution/sudokuboard"
)

// Stats counts the deductions committed during one reduction
type Stats struct {
	NakedSingles  int
	HiddenSingles int
	Passes        int
	CellsFilled   int
}

// Reduce fills every cell whose value is logically forced by the naked-single
// and hidden-single rules, iterating both to a fixed point. It never guesses
// and never backtracks; on a contradictory board it simply stops making
// progress and returns the board as far as it got.
func Reduce(board sudokuboard.Board) (sudokuboard.Board, Stats) {
	var stats Stats

	changed := true
	for changed {
		changed = false
		stats.Passes++

		if n := fillNakedSingles(&board); n > 0 {
			stats.NakedSingles += n
			stats.CellsFilled += n
			changed = true
		}

		if n := fillHiddenSingles(&board); n > 0 {
			stats.HiddenSingles += n
			stats.CellsFilled += n
			changed = true
		}
	}

	return board, stats
}

// candidateMask returns a bitmask of the legal digits for an empty cell,
// bit d set meaning digit d is still possible
func candidateMask(board *sudokuboard.Board, row, col int) uint16 {
	var used uint16

	for i := 0; i < 9; i++ {
		if v := board[row][i]; v != 0 {
			used |= 1 << v
		}
		if v := board[i][col]; v != 0 {
			used |= 1 << v
		}
	}

	boxRow := (row / 3) * 3
	boxCol := (col / 3) * 3
	for i := boxRow; i < boxRow+3; i++ {
		for j := boxCol; j < boxCol+3; j++ {
			if v := board[i][j]; v != 0 {
				used |= 1 << v
			}
		}
	}

	return ^used & 0b1111111110
}

// soleDigit returns the digit of a single-bit mask, or 0 if the mask does not
// have exactly one bit set
func soleDigit(mask uint16) int {
	if mask == 0 || mask&(mask-1) != 0 {
		return 0
	}
	for d := 1; d <= 9; d++ {
		if mask&(1<<d) != 0 {
			return d
		}
	}
	return 0
}

// fillNakedSingles fills every empty cell that has exactly one legal digit
// left and returns how many cells were filled
func fillNakedSingles(board *sudokuboard.Board) int {
	filled := 0

	for row := 0; row < 9; row++ {
		for col := 0; col < 9; col++ {
			if board[row][col] != 0 {
				continue
			}
			if d := soleDigit(candidateMask(board, row, col)); d != 0 {
				board[row][col] = d
				filled++
			}
		}
	}

	return filled
}

// fillHiddenSingles places every digit that fits exactly one empty cell
// within a row, column or box, and returns how many cells were filled
func fillHiddenSingles(board *sudokuboard.Board) int {
	filled := 0

	for unit := 0; unit < 9; unit++ {
		filled += fillHiddenSinglesInUnit(board, rowCells(unit))
		filled += fillHiddenSinglesInUnit(board, columnCells(unit))
		filled += fillHiddenSinglesInUnit(board, boxCells(unit))
	}

	return filled
}

func fillHiddenSinglesInUnit(board *sudokuboard.Board, cells [9]sudokuboard.Cell) int {
	var present uint16
	for _, c := range cells {
		if v := board[c.Row][c.Col]; v != 0 {
			present |= 1 << v
		}
	}

	filled := 0
	for d := 1; d <= 9; d++ {
		if present&(1<<d) != 0 {
			continue
		}

		target := sudokuboard.Cell{Row: -1, Col: -1}
		count := 0
		for _, c := range cells {
			if board[c.Row][c.Col] != 0 {
				continue
			}
			if candidateMask(board, c.Row, c.Col)&(1<<d) != 0 {
				target = c
				count++
				if count > 1 {
					break
				}
			}
		}

		if count == 1 {
			board[target.Row][target.Col] = d
			filled++
		}
	}

	return filled
}

func rowCells(row int) [9]sudokuboard.Cell {
	var cells [9]sudokuboard.Cell
	for i := 0; i < 9; i++ {
		cells[i] = sudokuboard.Cell{Row: row, Col: i}
	}
	return cells
}

func columnCells(col int) [9]sudokuboard.Cell {
	var cells [9]sudokuboard.Cell
	for i := 0; i < 9; i++ {
		cells[i] = sudokuboard.Cell{Row: i, Col: col}
	}
	return cells
}

func boxCells(box int) [9]sudokuboard.Cell {
	var cells [9]sudokuboard.Cell
	for i := 0; i < 9; i++ {
		row, col := sudokuboard.BoxCell(box, i)
		cells[i] = sudokuboard.Cell{Row: row, Col: col}
	}
	return cells
}
