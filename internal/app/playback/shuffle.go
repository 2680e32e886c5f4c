package playback

import (
	"math/rand/v2"
	"time"
)

// maxHistory bounds the shuffle history kept for Previous.
const maxHistory = 1024

// ShufflePolicy chooses playlist indices while shuffle is enabled.
// Next and Previous only propose a move; the controller records it with
// Advance or Back once the proposed track has been opened.
type ShufflePolicy interface {
	// Next returns the index to play after current in a playlist of n tracks.
	Next(current, n int) int
	// Advance records the move from current to index, an index Next proposed.
	Advance(current, index, n int)
	// Previous returns the index played before the current one, if any.
	Previous() (int, bool)
	// Back drops the history entry Previous returned.
	Back()
	// Visit records that the user jumped from current to index.
	Visit(current, index int)
	// Reset forgets the current pass and history.
	Reset()
}

// PassShuffler visits every index once per pass in random order.
// The first pick of a pass never repeats the index that was playing when the
// previous pass ended, so the same track is never picked twice in a row
// (unless the playlist has a single track).
type PassShuffler struct {
	rng     *rand.Rand
	visited []bool
	history []int
}

// NewPassShuffler creates a shuffler seeded with seed (0 seeds from the clock).
func NewPassShuffler(seed uint64) *PassShuffler {
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	return &PassShuffler{
		rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
	}
}

// Next implements ShufflePolicy.
func (s *PassShuffler) Next(current, n int) int {
	if n <= 0 {
		return -1
	}
	visited := s.visited
	if len(visited) != n {
		visited = make([]bool, n)
	}

	candidates := unvisited(visited, current)
	if len(candidates) == 0 {
		// Pass complete
		candidates = unvisited(make([]bool, n), current)
	}
	if len(candidates) == 0 {
		// Single track playlist
		return 0
	}
	return candidates[s.rng.IntN(len(candidates))]
}

// Advance implements ShufflePolicy.
func (s *PassShuffler) Advance(current, index, n int) {
	if index < 0 || index >= n {
		return
	}
	if len(s.visited) != n || len(unvisited(s.visited, current)) == 0 {
		s.visited = make([]bool, n)
	}
	s.visited[index] = true
	if index != current {
		s.push(current)
	}
}

// Previous implements ShufflePolicy.
func (s *PassShuffler) Previous() (int, bool) {
	if len(s.history) == 0 {
		return -1, false
	}
	return s.history[len(s.history)-1], true
}

// Back implements ShufflePolicy.
func (s *PassShuffler) Back() {
	if len(s.history) > 0 {
		s.history = s.history[:len(s.history)-1]
	}
}

// Visit implements ShufflePolicy.
func (s *PassShuffler) Visit(current, index int) {
	if index >= 0 && index < len(s.visited) {
		s.visited[index] = true
	}
	s.push(current)
}

// Reset implements ShufflePolicy.
func (s *PassShuffler) Reset() {
	s.visited = nil
	s.history = nil
}

func unvisited(visited []bool, current int) []int {
	result := make([]int, 0, len(visited))
	for i, seen := range visited {
		if !seen && i != current {
			result = append(result, i)
		}
	}
	return result
}

func (s *PassShuffler) push(index int) {
	if index < 0 {
		return
	}
	s.history = append(s.history, index)
	if len(s.history) > maxHistory {
		s.history = s.history[len(s.history)-maxHistory:]
	}
}
