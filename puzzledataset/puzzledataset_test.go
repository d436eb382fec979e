package puzzledataset

import (
	"os"
	"path/filepath"
	"testing"
)

const sampleDataset = `{
	"puzzles": [
		{
			"id": "classic-1",
			"difficulty": "medium",
			"grid": "53..7....6..195....98....6.8...6...34..8.3..17...2...6.6....28....419..5....8..79",
			"solution": "534678912672195348198342567859761423426853791713924856961537284287419635345286179"
		},
		{
			"id": "array-form",
			"grid": [0,0,0,0,0,0,0,0,0,
			         0,0,0,0,0,0,0,0,0,
			         0,0,0,0,0,0,0,0,0,
			         0,0,0,0,0,0,0,0,0,
			         0,0,0,0,5,0,0,0,0,
			         0,0,0,0,0,0,0,0,0,
			         0,0,0,0,0,0,0,0,0,
			         0,0,0,0,0,0,0,0,0,
			         0,0,0,0,0,0,0,0,0]
		}
	]
}`

func TestParse(t *testing.T) {
	entries, err := Parse(sampleDataset)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}

	first := entries[0]
	if first.ID != "classic-1" || first.Difficulty != "medium" {
		t.Errorf("unexpected metadata: %+v", first)
	}

	if first.Puzzle[0][0] != 5 || first.Puzzle[0][2] != 0 {
		t.Errorf("puzzle grid parsed incorrectly: %v", first.Puzzle[0])
	}

	if !first.HasSolution {
		t.Fatal("first entry should carry a solution")
	}

	if !first.Solution.IsSolved() {
		t.Error("parsed solution should be a solved board")
	}

	second := entries[1]
	if second.HasSolution {
		t.Error("second entry should have no solution")
	}

	if second.Puzzle[4][4] != 5 {
		t.Errorf("array-form grid parsed incorrectly, center = %d", second.Puzzle[4][4])
	}
}

func TestParseSolutionMatchesGivens(t *testing.T) {
	entries, err := Parse(sampleDataset)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	entry := entries[0]
	for i := 0; i < 9; i++ {
		for j := 0; j < 9; j++ {
			if entry.Puzzle[i][j] != 0 && entry.Puzzle[i][j] != entry.Solution[i][j] {
				t.Errorf("given (%d,%d) disagrees with solution", i, j)
			}
		}
	}
}

func TestParseInvalidJSON(t *testing.T) {
	if _, err := Parse("{not json"); err == nil {
		t.Error("expected error for invalid JSON")
	}
}

func TestParseMissingPuzzlesArray(t *testing.T) {
	if _, err := Parse(`{"boards": []}`); err == nil {
		t.Error("expected error for missing puzzles array")
	}
}

func TestParseMalformedGrid(t *testing.T) {
	doc := `{"puzzles": [{"id": "bad", "grid": "12345"}]}`
	if _, err := Parse(doc); err == nil {
		t.Error("expected error for short grid")
	}
}

func TestParseMissingGrid(t *testing.T) {
	doc := `{"puzzles": [{"id": "empty"}]}`
	if _, err := Parse(doc); err == nil {
		t.Error("expected error for entry without grid")
	}
}

func TestParseFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dataset.json")
	if err := os.WriteFile(path, []byte(sampleDataset), 0o644); err != nil {
		t.Fatal(err)
	}

	entries, err := ParseFile(path)
	if err != nil {
		t.Fatalf("ParseFile failed: %v", err)
	}

	if len(entries) != 2 {
		t.Errorf("expected 2 entries, got %d", len(entries))
	}
}

func TestParseFileMissing(t *testing.T) {
	if _, err := ParseFile(filepath.Join(t.TempDir(), "absent.json")); err == nil {
		t.Error("expected error for missing file")
	}
}
