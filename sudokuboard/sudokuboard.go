package sudokuboard

import (
	"errors"
	"fmt"
	"strings"
)

// Board represents a 9x9 Sudoku board. A zero value means an empty cell.
type Board [9][9]int

// Cell represents a position on the board
type Cell struct {
	Row, Col int
}

// UnitType identifies the kind of unit a conflict occurs in
type UnitType int

const (
	RowUnit UnitType = iota
	ColumnUnit
	BoxUnit
)

func (u UnitType) String() string {
	switch u {
	case RowUnit:
		return "row"
	case ColumnUnit:
		return "column"
	case BoxUnit:
		return "box"
	default:
		return "unknown"
	}
}

// Conflict reports one digit duplicated within a single unit
type Conflict struct {
	Unit  UnitType
	Index int // unit index 0-8
	Digit int
	Cells []Cell
}

func (c Conflict) String() string {
	return fmt.Sprintf("digit %d repeated in %s %d at %v", c.Digit, c.Unit, c.Index, c.Cells)
}

// FromSlice builds a board from 81 ordered cell values (row-major, 0 = empty)
func FromSlice(cells []int) (Board, error) {
	var board Board

	if len(cells) != 81 {
		return board, fmt.Errorf("expected 81 cells, got %d", len(cells))
	}

	for i, value := range cells {
		if value < 0 || value > 9 {
			return board, fmt.Errorf("cell %d holds %d, want 0-9", i, value)
		}
		board[i/9][i%9] = value
	}

	return board, nil
}

// FromString builds a board from an 81-character digit string. '0' and '.'
// denote empty cells; whitespace is ignored.
func FromString(s string) (Board, error) {
	var board Board

	index := 0
	for _, r := range s {
		if r == ' ' || r == '\n' || r == '\t' || r == '\r' {
			continue
		}

		if index >= 81 {
			return board, errors.New("more than 81 cells in input")
		}

		switch {
		case r == '.' || r == '0':
			board[index/9][index%9] = 0
		case r >= '1' && r <= '9':
			board[index/9][index%9] = int(r - '0')
		default:
			return board, fmt.Errorf("invalid cell character %q at index %d", r, index)
		}
		index++
	}

	if index != 81 {
		return board, fmt.Errorf("expected 81 cells, got %d", index)
	}

	return board, nil
}

// Slice returns the board as 81 ordered cell values (row-major)
func (b Board) Slice() []int {
	cells := make([]int, 81)
	for i := 0; i < 9; i++ {
		for j := 0; j < 9; j++ {
			cells[i*9+j] = b[i][j]
		}
	}
	return cells
}

// EmptyCells returns the positions of all empty cells in row-major order
func (b Board) EmptyCells() []Cell {
	var cells []Cell
	for i := 0; i < 9; i++ {
		for j := 0; j < 9; j++ {
			if b[i][j] == 0 {
				cells = append(cells, Cell{Row: i, Col: j})
			}
		}
	}
	return cells
}

// IsComplete reports whether every cell is filled
func (b Board) IsComplete() bool {
	for i := 0; i < 9; i++ {
		for j := 0; j < 9; j++ {
			if b[i][j] == 0 {
				return false
			}
		}
	}
	return true
}

// IsValid reports whether no filled digit repeats within any row, column or box.
// Empty cells are allowed.
func (b Board) IsValid() bool {
	for i := 0; i < 9; i++ {
		var rowSeen, colSeen, boxSeen [10]bool
		for j := 0; j < 9; j++ {
			if v := b[i][j]; v != 0 {
				if v < 1 || v > 9 || rowSeen[v] {
					return false
				}
				rowSeen[v] = true
			}

			if v := b[j][i]; v != 0 {
				if v < 1 || v > 9 || colSeen[v] {
					return false
				}
				colSeen[v] = true
			}

			row, col := BoxCell(i, j)
			if v := b[row][col]; v != 0 {
				if v < 1 || v > 9 || boxSeen[v] {
					return false
				}
				boxSeen[v] = true
			}
		}
	}
	return true
}

// IsSolved reports whether the board is complete and valid
func (b Board) IsSolved() bool {
	return b.IsComplete() && b.IsValid()
}

// Conflicts enumerates every duplicated digit per unit, for diagnostics
func (b Board) Conflicts() []Conflict {
	var conflicts []Conflict

	for index := 0; index < 9; index++ {
		var rowCells, colCells, boxCells [10][]Cell
		for j := 0; j < 9; j++ {
			if v := b[index][j]; v != 0 {
				rowCells[v] = append(rowCells[v], Cell{Row: index, Col: j})
			}
			if v := b[j][index]; v != 0 {
				colCells[v] = append(colCells[v], Cell{Row: j, Col: index})
			}
			row, col := BoxCell(index, j)
			if v := b[row][col]; v != 0 {
				boxCells[v] = append(boxCells[v], Cell{Row: row, Col: col})
			}
		}

		for digit := 1; digit <= 9; digit++ {
			if len(rowCells[digit]) > 1 {
				conflicts = append(conflicts, Conflict{Unit: RowUnit, Index: index, Digit: digit, Cells: rowCells[digit]})
			}
			if len(colCells[digit]) > 1 {
				conflicts = append(conflicts, Conflict{Unit: ColumnUnit, Index: index, Digit: digit, Cells: colCells[digit]})
			}
			if len(boxCells[digit]) > 1 {
				conflicts = append(conflicts, Conflict{Unit: BoxUnit, Index: index, Digit: digit, Cells: boxCells[digit]})
			}
		}
	}

	return conflicts
}

// BoxIndex returns the 0-8 index of the 3x3 box containing the given cell
func BoxIndex(row, col int) int {
	return (row/3)*3 + col/3
}

// BoxCell returns the position of the i-th cell (0-8) within the given box
func BoxCell(box, i int) (int, int) {
	return (box/3)*3 + i/3, (box%3)*3 + i%3
}

func (b Board) String() string {
	var sb strings.Builder
	for i := 0; i < 9; i++ {
		if i%3 == 0 && i != 0 {
			sb.WriteString("------+-------+------\n")
		}
		for j := 0; j < 9; j++ {
			if j%3 == 0 && j != 0 {
				sb.WriteString("| ")
			}
			if b[i][j] == 0 {
				sb.WriteString(". ")
			} else {
				sb.WriteString(fmt.Sprintf("%d ", b[i][j]))
			}
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

func (b Board) PrettyString() string {
	var sb strings.Builder
	sb.WriteString("┌───────┬───────┬───────┐\n")
	for i := 0; i < 9; i++ {
		if i == 3 || i == 6 {
			sb.WriteString("├───────┼───────┼───────┤\n")
		}
		sb.WriteString("│ ")
		for j := 0; j < 9; j++ {
			if j == 3 || j == 6 {
				sb.WriteString("│ ")
			}
			if b[i][j] == 0 {
				sb.WriteString(". ")
			} else {
				sb.WriteString(fmt.Sprintf("%d ", b[i][j]))
			}
		}
		sb.WriteString("│\n")
	}
	sb.WriteString("└───────┴───────┴───────┘\n")
	return sb.String()
}
