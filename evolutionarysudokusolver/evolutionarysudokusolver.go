package evolutionarysudokusolver

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"runtime"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sudokulab/sudoku-evolution/constraintpropagation"
	"github.com/sudokulab/sudoku-evolution/sudokuboard"
)

// PredictorFunc supplies a full grid guess for a puzzle, used to seed a
// minority of the initial population
type PredictorFunc func(sudokuboard.Board) sudokuboard.Board

// ProgressFunc receives per-generation progress reports
type ProgressFunc func(Progress)

// Progress describes the state of one island at the end of a generation
type Progress struct {
	Island       int     `json:"island"`
	Generation   int     `json:"generation"`
	BestFitness  int     `json:"best_fitness"`
	MutationRate float64 `json:"mutation_rate"`
	Stagnation   int     `json:"stagnation"`
	Restarts     int     `json:"restarts"`
}

// Config contains configuration for the evolutionary solver
type Config struct {
	PopulationSize int
	MaxGenerations int

	MutationRate          float64 // base per-offspring mutation probability
	MaxMutationRate       float64 // adaptive ceiling
	HighMutationThreshold float64 // above this rate, extra targeted mutations apply
	CrossoverRate         float64
	EliteCount            int
	TournamentSize        int

	NumIslands        int
	MigrationInterval int
	MigrationRate     float64

	AdaptiveThreshold  int     // stagnant generations before the mutation rate ramps
	DiversityThreshold int     // stagnant generations before fresh individuals are injected
	DiversityFraction  float64 // share of the population replaced per injection
	RestartThreshold   int     // stagnant generations before a seeded restart
	MaxRestarts        int

	NumWorkers       int
	RandomSeed       int64
	ApplyPropagation bool

	Predictor         PredictorFunc
	PredictorFraction float64
	OnProgress        ProgressFunc
}

// DefaultConfig returns a solver configuration with sensible defaults
func DefaultConfig() Config {
	return Config{
		PopulationSize:        300,
		MaxGenerations:        1000,
		MutationRate:          0.1,
		MaxMutationRate:       0.8,
		HighMutationThreshold: 0.4,
		CrossoverRate:         0.85,
		EliteCount:            5,
		TournamentSize:        3,
		NumIslands:            1,
		MigrationInterval:     20,
		MigrationRate:         0.05,
		AdaptiveThreshold:     20,
		DiversityThreshold:    50,
		DiversityFraction:     0.2,
		RestartThreshold:      100,
		MaxRestarts:           3,
		NumWorkers:            runtime.NumCPU(),
		ApplyPropagation:      true,
		PredictorFraction:     0.2,
	}
}

// Result contains the outcome of one solver run
type Result struct {
	Board       sudokuboard.Board
	Fitness     int
	Solved      bool
	Generations int
	Restarts    int
	Islands     int
	Elapsed     time.Duration
}

// Candidate represents one full grid hypothesis in the search population.
// Candidates are value objects: every operator returns a new Candidate, and
// the cached fitness is cleared whenever the values change.
type Candidate struct {
	values  [81]int
	mutable [81]bool
	fitness int
	scored  bool
}

// MutabilityMask reports which cells of the puzzle are blank and therefore
// free to change. The mask is a pure function of the puzzle, so a Candidate
// can always be reconstructed from raw values plus the puzzle alone.
func MutabilityMask(puzzle sudokuboard.Board) [81]bool {
	var mask [81]bool
	for i := 0; i < 9; i++ {
		for j := 0; j < 9; j++ {
			mask[i*9+j] = puzzle[i][j] == 0
		}
	}
	return mask
}

// NewCandidateFromPuzzle builds a candidate whose rows are individually
// conflict-free: each row's blank cells receive a random permutation of the
// digits missing from that row's givens. Columns and boxes are not
// constrained.
func NewCandidateFromPuzzle(puzzle sudokuboard.Board, r *rand.Rand) Candidate {
	c := Candidate{mutable: MutabilityMask(puzzle)}

	for row := 0; row < 9; row++ {
		var present [10]bool
		for col := 0; col < 9; col++ {
			if v := puzzle[row][col]; v != 0 {
				present[v] = true
				c.values[row*9+col] = v
			}
		}

		var missing []int
		for d := 1; d <= 9; d++ {
			if !present[d] {
				missing = append(missing, d)
			}
		}

		r.Shuffle(len(missing), func(i, j int) {
			missing[i], missing[j] = missing[j], missing[i]
		})

		next := 0
		for col := 0; col < 9; col++ {
			if c.mutable[row*9+col] {
				c.values[row*9+col] = missing[next]
				next++
			}
		}
	}

	return c
}

// NewCandidateFromPrediction copies given cells from the puzzle and blank
// cells from an externally predicted full grid. Row validity is not
// guaranteed.
func NewCandidateFromPrediction(puzzle, predicted sudokuboard.Board) Candidate {
	c := Candidate{mutable: MutabilityMask(puzzle)}

	for i := 0; i < 9; i++ {
		for j := 0; j < 9; j++ {
			if puzzle[i][j] != 0 {
				c.values[i*9+j] = puzzle[i][j]
			} else {
				c.values[i*9+j] = predicted[i][j]
			}
		}
	}

	return c
}

// NewCandidateFromValues reconstructs a candidate from 81 raw values and the
// puzzle they belong to. Values at given positions are taken from the puzzle.
func NewCandidateFromValues(puzzle sudokuboard.Board, values []int) (Candidate, error) {
	if len(values) != 81 {
		return Candidate{}, errors.New("expected 81 values")
	}

	c := Candidate{mutable: MutabilityMask(puzzle)}
	for i := 0; i < 81; i++ {
		if c.mutable[i] {
			c.values[i] = values[i]
		} else {
			c.values[i] = puzzle[i/9][i%9]
		}
	}

	return c, nil
}

// WithSwapped returns a copy with two same-row cells exchanged and the
// fitness cache cleared. Both positions must be mutable; that is the
// caller's responsibility.
func (c Candidate) WithSwapped(row, colA, colB int) Candidate {
	c.values[row*9+colA], c.values[row*9+colB] = c.values[row*9+colB], c.values[row*9+colA]
	c.scored = false
	return c
}

// Fitness returns the cached violation count, if the candidate has been
// evaluated
func (c Candidate) Fitness() (int, bool) {
	return c.fitness, c.scored
}

// Board returns the candidate as a board
func (c Candidate) Board() sudokuboard.Board {
	var board sudokuboard.Board
	for i := 0; i < 81; i++ {
		board[i/9][i%9] = c.values[i]
	}
	return board
}

// Value returns the digit at the given position
func (c Candidate) Value(row, col int) int {
	return c.values[row*9+col]
}

// IsMutable reports whether the cell at the given position was blank in the
// originating puzzle
func (c Candidate) IsMutable(row, col int) bool {
	return c.mutable[row*9+col]
}

func (c Candidate) mutableColumns(row int) []int {
	var cols []int
	for col := 0; col < 9; col++ {
		if c.mutable[row*9+col] {
			cols = append(cols, col)
		}
	}
	return cols
}

// Fitness evaluation

// Violations counts duplicated digits across all rows, columns and boxes of
// a board. Zero means the board is a valid complete solution.
func Violations(board sudokuboard.Board) int {
	var values [81]int
	for i := 0; i < 9; i++ {
		for j := 0; j < 9; j++ {
			values[i*9+j] = board[i][j]
		}
	}
	return countViolations(&values)
}

// countViolations sums max(0, occurrences-1) per digit per unit. Rows are
// counted too: construction keeps rows duplicate-free, but box crossover and
// predictions can break that, so the evaluator assumes nothing. Blank or
// out-of-range cells each count as one violation, so fitness 0 holds exactly
// for complete valid grids.
func countViolations(values *[81]int) int {
	total := 0

	for unit := 0; unit < 9; unit++ {
		var rowCount, colCount, boxCount [10]int

		for i := 0; i < 9; i++ {
			if v := values[unit*9+i]; v >= 1 && v <= 9 {
				rowCount[v]++
			} else {
				total++
			}
			if v := values[i*9+unit]; v >= 1 && v <= 9 {
				colCount[v]++
			}
			row, col := sudokuboard.BoxCell(unit, i)
			if v := values[row*9+col]; v >= 1 && v <= 9 {
				boxCount[v]++
			}
		}

		for d := 1; d <= 9; d++ {
			if rowCount[d] > 1 {
				total += rowCount[d] - 1
			}
			if colCount[d] > 1 {
				total += colCount[d] - 1
			}
			if boxCount[d] > 1 {
				total += boxCount[d] - 1
			}
		}
	}

	return total
}

func (c *Candidate) score() int {
	if !c.scored {
		c.fitness = countViolations(&c.values)
		c.scored = true
	}
	return c.fitness
}

// Solver runs the population-based heuristic search
type Solver struct {
	config Config

	mutex       sync.RWMutex
	best        Candidate
	bestFitness int
	haveBest    bool

	candidatesEvaluated int64
	generationsRun      int64
}

// NewSolver creates a new evolutionary solver. Zero-value config fields are
// replaced by defaults.
func NewSolver(config Config) (*Solver, error) {
	defaults := DefaultConfig()

	if config.PopulationSize == 0 {
		config.PopulationSize = defaults.PopulationSize
	}
	if config.MaxGenerations == 0 {
		config.MaxGenerations = defaults.MaxGenerations
	}
	if config.MutationRate == 0 {
		config.MutationRate = defaults.MutationRate
	}
	if config.MaxMutationRate == 0 {
		config.MaxMutationRate = defaults.MaxMutationRate
	}
	if config.HighMutationThreshold == 0 {
		config.HighMutationThreshold = defaults.HighMutationThreshold
	}
	if config.CrossoverRate == 0 {
		config.CrossoverRate = defaults.CrossoverRate
	}
	if config.EliteCount == 0 {
		config.EliteCount = defaults.EliteCount
	}
	if config.TournamentSize == 0 {
		config.TournamentSize = defaults.TournamentSize
	}
	if config.NumIslands == 0 {
		config.NumIslands = defaults.NumIslands
	}
	if config.MigrationInterval == 0 {
		config.MigrationInterval = defaults.MigrationInterval
	}
	if config.MigrationRate == 0 {
		config.MigrationRate = defaults.MigrationRate
	}
	if config.AdaptiveThreshold == 0 {
		config.AdaptiveThreshold = defaults.AdaptiveThreshold
	}
	if config.DiversityThreshold == 0 {
		config.DiversityThreshold = defaults.DiversityThreshold
	}
	if config.DiversityFraction == 0 {
		config.DiversityFraction = defaults.DiversityFraction
	}
	if config.RestartThreshold == 0 {
		config.RestartThreshold = defaults.RestartThreshold
	}
	if config.NumWorkers <= 0 {
		config.NumWorkers = runtime.NumCPU()
	}
	if config.RandomSeed == 0 {
		config.RandomSeed = time.Now().UnixNano()
	}
	if config.PredictorFraction == 0 {
		config.PredictorFraction = defaults.PredictorFraction
	}

	if config.PopulationSize < 2 {
		return nil, errors.New("population size must be at least 2")
	}
	if config.EliteCount >= config.PopulationSize {
		return nil, errors.New("elite count must be smaller than the population")
	}
	if config.TournamentSize < 1 {
		return nil, errors.New("tournament size must be at least 1")
	}
	if config.MutationRate < 0 || config.MutationRate > 1 || config.CrossoverRate < 0 || config.CrossoverRate > 1 {
		return nil, errors.New("rates must lie in [0,1]")
	}
	if config.MigrationRate < 0 || config.MigrationRate > 1 {
		return nil, errors.New("migration rate must lie in [0,1]")
	}

	return &Solver{config: config, bestFitness: math.MaxInt}, nil
}

// runState tracks the per-run control variables that adapt during a search
type runState struct {
	generation   int
	stagnation   int
	mutationRate float64
	restarts     int
}

// island is one independently evolving sub-population with its own random
// stream and run state
type island struct {
	id          int
	population  []Candidate
	rand        *rand.Rand
	state       runState
	best        Candidate
	bestFitness int
	haveBest    bool
}

// Solve runs the single-population search. Non-convergence and cancellation
// are not errors: the best candidate found so far is always returned.
func (s *Solver) Solve(ctx context.Context, puzzle sudokuboard.Board) *Result {
	startTime := time.Now()

	if s.config.ApplyPropagation {
		puzzle, _ = constraintpropagation.Reduce(puzzle)
	}

	isl := s.newIsland(ctx, 0, puzzle, s.config.RandomSeed, true)

	for isl.state.generation < s.config.MaxGenerations {
		if solved, ok := solvedCandidate(isl.population); ok {
			return s.buildResult(isl, solved, startTime, 1)
		}

		select {
		case <-ctx.Done():
			return s.bestEffortResult([]*island{isl}, startTime, 1)
		default:
		}

		s.stepGeneration(ctx, puzzle, isl)
		s.reportProgress(isl)
	}

	if solved, ok := solvedCandidate(isl.population); ok {
		return s.buildResult(isl, solved, startTime, 1)
	}

	return s.bestEffortResult([]*island{isl}, startTime, 1)
}

// SolveIslands runs the island-model search: NumIslands sub-populations
// evolve concurrently and exchange their best individuals over a ring every
// MigrationInterval generations.
func (s *Solver) SolveIslands(ctx context.Context, puzzle sudokuboard.Board) *Result {
	numIslands := s.config.NumIslands
	if numIslands < 2 {
		return s.Solve(ctx, puzzle)
	}

	startTime := time.Now()

	if s.config.ApplyPropagation {
		puzzle, _ = constraintpropagation.Reduce(puzzle)
	}

	islands := make([]*island, numIslands)
	for i := 0; i < numIslands; i++ {
		// Only island 0 receives predictor-seeded individuals
		seed := s.config.RandomSeed + int64(i)*7919
		islands[i] = s.newIsland(ctx, i, puzzle, seed, i == 0)
	}

	for generation := 0; generation < s.config.MaxGenerations; generation++ {
		for _, isl := range islands {
			if solved, ok := solvedCandidate(isl.population); ok {
				return s.buildResult(isl, solved, startTime, numIslands)
			}
		}

		select {
		case <-ctx.Done():
			return s.bestEffortResult(islands, startTime, numIslands)
		default:
		}

		// Islands evolve independently; the WaitGroup is the migration
		// barrier required before any migrant is collected
		var wg sync.WaitGroup
		for _, isl := range islands {
			wg.Add(1)
			go func(isl *island) {
				defer wg.Done()
				s.stepGeneration(ctx, puzzle, isl)
			}(isl)
		}
		wg.Wait()

		if (generation+1)%s.config.MigrationInterval == 0 {
			s.migrate(islands)
		}

		for _, isl := range islands {
			s.reportProgress(isl)
		}
	}

	for _, isl := range islands {
		if solved, ok := solvedCandidate(isl.population); ok {
			return s.buildResult(isl, solved, startTime, numIslands)
		}
	}

	return s.bestEffortResult(islands, startTime, numIslands)
}

// newIsland initializes one sub-population, evaluates it and primes the
// island's bookkeeping
func (s *Solver) newIsland(ctx context.Context, id int, puzzle sudokuboard.Board, seed int64, allowPredictor bool) *island {
	isl := &island{
		id:          id,
		rand:        rand.New(rand.NewSource(seed)),
		bestFitness: math.MaxInt,
		state:       runState{mutationRate: s.config.MutationRate},
	}

	isl.population = s.initializePopulation(ctx, puzzle, seed, allowPredictor)
	s.evaluatePopulation(ctx, isl.population)
	s.trackBest(isl)

	return isl
}

// initializePopulation builds PopulationSize candidates in parallel, each
// worker drawing from its own random stream. When a predictor is configured
// and allowed, at most PredictorFraction of the population is seeded from
// its prediction; the remainder stays random to avoid premature convergence.
func (s *Solver) initializePopulation(ctx context.Context, puzzle sudokuboard.Board, seed int64, allowPredictor bool) []Candidate {
	population := make([]Candidate, s.config.PopulationSize)

	seeded := 0
	if allowPredictor && s.config.Predictor != nil {
		predicted := s.config.Predictor(puzzle)
		seeded = int(float64(s.config.PopulationSize) * s.config.PredictorFraction)
		for i := 0; i < seeded; i++ {
			population[i] = NewCandidateFromPrediction(puzzle, predicted)
		}
	}

	jobs := make(chan int, s.config.PopulationSize)
	var wg sync.WaitGroup

	for w := 0; w < s.config.NumWorkers; w++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			localRand := rand.New(rand.NewSource(seed + int64(workerID) + 1))

			for {
				select {
				case idx, ok := <-jobs:
					if !ok {
						return
					}
					population[idx] = NewCandidateFromPuzzle(puzzle, localRand)
				case <-ctx.Done():
					return
				}
			}
		}(w)
	}

	for i := seeded; i < s.config.PopulationSize; i++ {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	return population
}

// evaluatePopulation scores every candidate over a worker pool and writes
// the fitness back into each candidate's cache
func (s *Solver) evaluatePopulation(ctx context.Context, population []Candidate) {
	jobs := make(chan int, len(population))
	var wg sync.WaitGroup

	for w := 0; w < s.config.NumWorkers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case idx, ok := <-jobs:
					if !ok {
						return
					}
					population[idx].score()
					atomic.AddInt64(&s.candidatesEvaluated, 1)
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	for i := range population {
		jobs <- i
	}
	close(jobs)
	wg.Wait()
}

// stepGeneration advances one island by a single generation: evolve,
// evaluate, track the global best, then adapt mutation, inject diversity or
// restart depending on how long the island has stagnated.
func (s *Solver) stepGeneration(ctx context.Context, puzzle sudokuboard.Board, isl *island) {
	isl.population = s.evolvePopulation(ctx, puzzle, isl)
	s.evaluatePopulation(ctx, isl.population)
	isl.state.generation++
	atomic.AddInt64(&s.generationsRun, 1)

	improved := s.trackBest(isl)

	if improved {
		isl.state.stagnation = 0
		isl.state.mutationRate = s.config.MutationRate
		return
	}

	isl.state.stagnation++

	if isl.state.stagnation > s.config.AdaptiveThreshold {
		isl.state.mutationRate = s.rampedMutationRate(isl.state.stagnation)
	}

	if isl.state.stagnation > s.config.DiversityThreshold {
		s.injectDiversity(puzzle, isl)
	}

	if isl.state.stagnation >= s.config.RestartThreshold && isl.state.restarts < s.config.MaxRestarts {
		s.restart(ctx, puzzle, isl)
	}
}

// rampedMutationRate linearly increases the rate from the base toward the
// configured ceiling as stagnation grows past the adaptive threshold
func (s *Solver) rampedMutationRate(stagnation int) float64 {
	excess := float64(stagnation - s.config.AdaptiveThreshold)
	ramp := excess / mutationRampGenerations
	if ramp > 1 {
		ramp = 1
	}
	return s.config.MutationRate + ramp*(s.config.MaxMutationRate-s.config.MutationRate)
}

// mutationRampGenerations is how many stagnant generations it takes the
// mutation rate to climb from base to ceiling
const mutationRampGenerations = 50

// extraMutationScale converts the excess over HighMutationThreshold into a
// number of additional targeted mutations per offspring
const extraMutationScale = 10

// evolvePopulation produces the next generation: elites are copied
// unchanged, offspring pairs are bred in parallel, and any slot left over by
// pairing is padded with a fresh random candidate
func (s *Solver) evolvePopulation(ctx context.Context, puzzle sudokuboard.Board, isl *island) []Candidate {
	population := isl.population
	sortByFitness(population)

	eliteCount := s.config.EliteCount
	newPopulation := make([]Candidate, s.config.PopulationSize)
	copy(newPopulation, extractElites(population, eliteCount))

	pairCount := (s.config.PopulationSize - eliteCount) / 2
	mutationRate := isl.state.mutationRate

	jobs := make(chan int, pairCount)
	var wg sync.WaitGroup

	// Seeds are drawn from the island's stream before the workers start, so
	// the island RNG is never shared across goroutines
	workerSeeds := make([]int64, s.config.NumWorkers)
	for i := range workerSeeds {
		workerSeeds[i] = isl.rand.Int63()
	}

	for w := 0; w < s.config.NumWorkers; w++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			localRand := rand.New(rand.NewSource(workerSeeds[workerID]))

			for {
				select {
				case pair, ok := <-jobs:
					if !ok {
						return
					}

					first := eliteCount + pair*2
					childA, childB := s.breedOffspring(population, mutationRate, localRand)
					newPopulation[first] = childA
					newPopulation[first+1] = childB
				case <-ctx.Done():
					return
				}
			}
		}(w)
	}

	for pair := 0; pair < pairCount; pair++ {
		jobs <- pair
	}
	close(jobs)
	wg.Wait()

	// Odd remainder after pairing
	for i := eliteCount + pairCount*2; i < s.config.PopulationSize; i++ {
		newPopulation[i] = NewCandidateFromPuzzle(puzzle, isl.rand)
	}

	return newPopulation
}

// breedOffspring runs selection, probabilistic crossover and mutation for
// one offspring pair
func (s *Solver) breedOffspring(population []Candidate, mutationRate float64, r *rand.Rand) (Candidate, Candidate) {
	parentA := tournamentSelection(population, s.config.TournamentSize, r)
	parentB := tournamentSelection(population, s.config.TournamentSize, r)

	childA, childB := parentA, parentB
	if r.Float64() < s.config.CrossoverRate {
		if r.Float64() < 0.5 {
			childA, childB = rowCrossover(parentA, parentB, r)
		} else {
			childA, childB = boxCrossover(parentA, parentB, r)
		}
	}

	childA = s.mutateOffspring(childA, mutationRate, r)
	childB = s.mutateOffspring(childB, mutationRate, r)

	return childA, childB
}

// mutateOffspring applies the base swap mutation probabilistically; at high
// adaptive rates a single swap under-explores, so extra targeted mutations
// are stacked in proportion to the excess over the threshold
func (s *Solver) mutateOffspring(c Candidate, mutationRate float64, r *rand.Rand) Candidate {
	if r.Float64() < mutationRate {
		c = swapMutation(c, r)
	}

	if mutationRate > s.config.HighMutationThreshold {
		extra := int((mutationRate - s.config.HighMutationThreshold) * extraMutationScale)
		for i := 0; i < extra; i++ {
			c = smartMutation(c, r)
		}
	}

	return c
}

// trackBest updates the island's all-time best and the solver-wide best.
// It returns true only on a strict global improvement for this island; the
// stagnation counter must not reset on mere within-generation oscillation.
func (s *Solver) trackBest(isl *island) bool {
	idx := bestIndex(isl.population)
	if idx < 0 {
		return false
	}

	fitness := isl.population[idx].fitness
	improved := !isl.haveBest || fitness < isl.bestFitness
	if improved {
		isl.best = isl.population[idx]
		isl.bestFitness = fitness
		isl.haveBest = true
	}

	s.mutex.Lock()
	if !s.haveBest || fitness < s.bestFitness {
		s.best = isl.population[idx]
		s.bestFitness = fitness
		s.haveBest = true
	}
	s.mutex.Unlock()

	return improved
}

// injectDiversity replaces the worst-performing share of the island with
// fresh random candidates, independent of the restart mechanism
func (s *Solver) injectDiversity(puzzle sudokuboard.Board, isl *island) {
	count := int(float64(s.config.PopulationSize) * s.config.DiversityFraction)
	if count == 0 {
		return
	}

	sortByFitness(isl.population)
	for i := s.config.PopulationSize - count; i < s.config.PopulationSize; i++ {
		fresh := NewCandidateFromPuzzle(puzzle, isl.rand)
		fresh.score()
		atomic.AddInt64(&s.candidatesEvaluated, 1)
		isl.population[i] = fresh
	}
}

// restart discards the population but keeps the progress made so far: slot 0
// is the all-time best, the next EliteCount slots hold increasingly mutated
// copies of it, and the rest is random. Stagnation and mutation rate reset.
func (s *Solver) restart(ctx context.Context, puzzle sudokuboard.Board, isl *island) {
	population := s.initializePopulation(ctx, puzzle, isl.rand.Int63(), false)

	if isl.haveBest {
		population[0] = isl.best
		for i := 1; i <= s.config.EliteCount && i < len(population); i++ {
			mutated := isl.best
			for m := 0; m < i; m++ {
				mutated = swapMutation(mutated, isl.rand)
			}
			population[i] = mutated
		}
	}

	s.evaluatePopulation(ctx, population)
	isl.population = population
	isl.state.stagnation = 0
	isl.state.mutationRate = s.config.MutationRate
	isl.state.restarts++
}

// migrate exchanges top individuals over the ring: island i receives the
// migrants of island (i-1 mod M), which overwrite its worst individuals.
// All migrant buffers are fully materialized before any island is touched.
func (s *Solver) migrate(islands []*island) {
	numIslands := len(islands)

	migrantCount := int(math.Round(float64(s.config.PopulationSize) * s.config.MigrationRate))
	if migrantCount < 1 {
		migrantCount = 1
	}

	buffers := make([][]Candidate, numIslands)
	for i, isl := range islands {
		sortByFitness(isl.population)
		buffers[i] = make([]Candidate, migrantCount)
		copy(buffers[i], isl.population[:migrantCount])
	}

	for i, isl := range islands {
		migrants := buffers[(i-1+numIslands)%numIslands]
		for j, migrant := range migrants {
			isl.population[len(isl.population)-1-j] = migrant
		}
	}
}

// Operator library

// tournamentSelection draws tournamentSize candidates uniformly at random
// with replacement and returns the fittest; ties keep the first seen
func tournamentSelection(population []Candidate, tournamentSize int, r *rand.Rand) Candidate {
	best := population[r.Intn(len(population))]

	for i := 1; i < tournamentSize; i++ {
		challenger := population[r.Intn(len(population))]
		if fitnessOrMax(challenger) < fitnessOrMax(best) {
			best = challenger
		}
	}

	return best
}

// rowCrossover exchanges the mutable cells of every row at or below a random
// pivot row. Each parent's mutable cells per row hold a permutation of that
// row's missing digits, so both children keep row-level validity as long as
// the parents had it.
func rowCrossover(parentA, parentB Candidate, r *rand.Rand) (Candidate, Candidate) {
	pivot := 1 + r.Intn(8)

	childA, childB := parentA, parentB
	for row := pivot; row < 9; row++ {
		for col := 0; col < 9; col++ {
			idx := row*9 + col
			if childA.mutable[idx] {
				childA.values[idx], childB.values[idx] = parentB.values[idx], parentA.values[idx]
			}
		}
	}

	childA.scored = false
	childB.scored = false
	return childA, childB
}

// boxCrossover exchanges the mutable cells of a random non-empty subset of
// the nine boxes. This can break row validity; the fitness evaluator is the
// sole arbiter of the result.
func boxCrossover(parentA, parentB Candidate, r *rand.Rand) (Candidate, Candidate) {
	mask := 1 + r.Intn(511)

	childA, childB := parentA, parentB
	for box := 0; box < 9; box++ {
		if mask&(1<<box) == 0 {
			continue
		}

		for i := 0; i < 9; i++ {
			row, col := sudokuboard.BoxCell(box, i)
			idx := row*9 + col
			if childA.mutable[idx] {
				childA.values[idx], childB.values[idx] = parentB.values[idx], parentA.values[idx]
			}
		}
	}

	childA.scored = false
	childB.scored = false
	return childA, childB
}

// swapMutation exchanges two distinct mutable cells within a random row.
// Rows with fewer than two mutable cells are left unchanged.
func swapMutation(c Candidate, r *rand.Rand) Candidate {
	row := r.Intn(9)

	cols := c.mutableColumns(row)
	if len(cols) < 2 {
		return c
	}

	a := r.Intn(len(cols))
	b := r.Intn(len(cols) - 1)
	if b >= a {
		b++
	}

	return c.WithSwapped(row, cols[a], cols[b])
}

// smartMutation swaps two random mutable cells within the row that currently
// contributes the most column and box conflicts. Conflict-free candidates
// and rows with fewer than two mutable cells are left unchanged.
func smartMutation(c Candidate, r *rand.Rand) Candidate {
	worstRow := -1
	worstConflicts := 0

	for row := 0; row < 9; row++ {
		if conflicts := rowConflicts(&c, row); conflicts > worstConflicts {
			worstRow = row
			worstConflicts = conflicts
		}
	}

	if worstRow < 0 {
		return c
	}

	cols := c.mutableColumns(worstRow)
	if len(cols) < 2 {
		return c
	}

	a := r.Intn(len(cols))
	b := r.Intn(len(cols) - 1)
	if b >= a {
		b++
	}

	return c.WithSwapped(worstRow, cols[a], cols[b])
}

// rowConflicts counts, for every cell of the row, how many other cells in
// its column and box duplicate its digit. Computed directly rather than via
// the cached fitness, since mutation works on a single candidate.
func rowConflicts(c *Candidate, row int) int {
	conflicts := 0

	for col := 0; col < 9; col++ {
		v := c.values[row*9+col]
		if v == 0 {
			continue
		}

		for i := 0; i < 9; i++ {
			if i != row && c.values[i*9+col] == v {
				conflicts++
			}
		}

		boxRow := (row / 3) * 3
		boxCol := (col / 3) * 3
		for i := boxRow; i < boxRow+3; i++ {
			for j := boxCol; j < boxCol+3; j++ {
				if (i != row || j != col) && c.values[i*9+j] == v {
					conflicts++
				}
			}
		}
	}

	return conflicts
}

// extractElites returns deep copies of the k fittest evaluated candidates.
// The input order is not disturbed.
func extractElites(population []Candidate, k int) []Candidate {
	evaluated := make([]Candidate, 0, len(population))
	for _, c := range population {
		if c.scored {
			evaluated = append(evaluated, c)
		}
	}

	sortByFitness(evaluated)
	if k > len(evaluated) {
		k = len(evaluated)
	}

	elites := make([]Candidate, k)
	copy(elites, evaluated[:k])
	return elites
}

// Helpers

func fitnessOrMax(c Candidate) int {
	if !c.scored {
		return math.MaxInt
	}
	return c.fitness
}

func sortByFitness(population []Candidate) {
	sort.SliceStable(population, func(i, j int) bool {
		return fitnessOrMax(population[i]) < fitnessOrMax(population[j])
	})
}

func bestIndex(population []Candidate) int {
	best := -1
	for i := range population {
		if !population[i].scored {
			continue
		}
		if best < 0 || population[i].fitness < population[best].fitness {
			best = i
		}
	}
	return best
}

func solvedCandidate(population []Candidate) (Candidate, bool) {
	for i := range population {
		if population[i].scored && population[i].fitness == 0 {
			return population[i], true
		}
	}
	return Candidate{}, false
}

func (s *Solver) reportProgress(isl *island) {
	if s.config.OnProgress == nil {
		return
	}

	s.config.OnProgress(Progress{
		Island:       isl.id,
		Generation:   isl.state.generation,
		BestFitness:  isl.bestFitness,
		MutationRate: isl.state.mutationRate,
		Stagnation:   isl.state.stagnation,
		Restarts:     isl.state.restarts,
	})
}

func (s *Solver) buildResult(isl *island, solved Candidate, startTime time.Time, islands int) *Result {
	s.mutex.Lock()
	s.best = solved
	s.bestFitness = 0
	s.haveBest = true
	s.mutex.Unlock()

	return &Result{
		Board:       solved.Board(),
		Fitness:     0,
		Solved:      true,
		Generations: isl.state.generation,
		Restarts:    isl.state.restarts,
		Islands:     islands,
		Elapsed:     time.Since(startTime),
	}
}

// bestEffortResult returns the global best across all islands, used on
// budget exhaustion and cancellation alike
func (s *Solver) bestEffortResult(islands []*island, startTime time.Time, islandCount int) *Result {
	best := Candidate{}
	bestFitness := math.MaxInt
	have := false

	generations := 0
	restarts := 0
	for _, isl := range islands {
		if isl.haveBest && isl.bestFitness < bestFitness {
			best = isl.best
			bestFitness = isl.bestFitness
			have = true
		}
		if isl.state.generation > generations {
			generations = isl.state.generation
		}
		restarts += isl.state.restarts
	}

	if !have {
		// Population was never evaluated; fall back to whatever exists
		for _, isl := range islands {
			if len(isl.population) > 0 {
				best = isl.population[0]
				bestFitness = best.score()
				have = true
				break
			}
		}
	}

	return &Result{
		Board:       best.Board(),
		Fitness:     bestFitness,
		Solved:      bestFitness == 0,
		Generations: generations,
		Restarts:    restarts,
		Islands:     islandCount,
		Elapsed:     time.Since(startTime),
	}
}

// GetBestCandidate returns a copy of the best candidate seen so far
func (s *Solver) GetBestCandidate() (Candidate, bool) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.best, s.haveBest
}

// GetStats returns a snapshot of solver-wide counters
func (s *Solver) GetStats() map[string]interface{} {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	stats := map[string]interface{}{
		"population_size":      s.config.PopulationSize,
		"max_generations":      s.config.MaxGenerations,
		"islands":              s.config.NumIslands,
		"base_mutation_rate":   s.config.MutationRate,
		"crossover_rate":       s.config.CrossoverRate,
		"num_workers":          s.config.NumWorkers,
		"generations_run":      atomic.LoadInt64(&s.generationsRun),
		"candidates_evaluated": atomic.LoadInt64(&s.candidatesEvaluated),
	}

	if s.haveBest {
		stats["best_fitness"] = s.bestFitness
	}

	return stats
}
