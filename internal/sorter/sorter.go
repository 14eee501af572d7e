// package sorter implements the deterministic baseline ordering for group
// playlists.
//
// The sort is pure and local: no I/O, no randomness, no failure modes. It
// is the engine's fallback of last resort, so every path through it must
// return a valid permutation of the input.
package sorter

import (
	"sort"
	"strings"

	"github.com/groupmix/smartsort/internal/models"
)

// Heuristic orders songs by genre flow, artist spacing, popularity
// balance, and (when available) a smooth energy arc, in that priority.
type Heuristic struct {
	ArtistGap int // minimum positions between songs by the same artist
	TierRun   int // longest tolerated run at one popularity extreme
	Lookahead int // how far repair passes may reach for a substitute
}

// NewHeuristic returns a Heuristic with default tuning.
func NewHeuristic() *Heuristic {
	return &Heuristic{
		ArtistGap: 2,
		TierRun:   8,
		Lookahead: 8,
	}
}

// entry is one song's precomputed sort keys.
type entry struct {
	idx       int // position in the input; final tiebreaker everywhere
	songID    string
	artist    string
	genreRank int
	tier      int
	energy    float64
	hasEnergy bool
}

// Sort returns a listening order over the input as song IDs. The output is
// always a permutation of the input set; identical input yields identical
// output.
func (h *Heuristic) Sort(songs []models.SongMetadata) []string {
	if len(songs) <= 1 {
		ids := make([]string, len(songs))
		for i, s := range songs {
			ids[i] = s.SongID
		}
		return ids
	}

	rank := genreOrder(songs)
	unknownRank := len(rank)

	entries := make([]*entry, len(songs))
	withEnergy := 0
	for i, s := range songs {
		e := &entry{
			idx:       i,
			songID:    s.SongID,
			artist:    strings.ToLower(strings.TrimSpace(s.Artist)),
			genreRank: unknownRank,
			tier:      popularityTier(s.Popularity),
		}
		if len(s.Genres) > 0 {
			if r, ok := rank[s.Genres[0]]; ok {
				e.genreRank = r
			}
		}
		if v, ok := s.Audio["energy"]; ok {
			e.energy = v
			e.hasEnergy = true
			withEnergy++
		}
		entries[i] = e
	}

	// Audio characteristics only shape the order when most songs have them.
	useEnergy := withEnergy*2 >= len(songs)

	// Pass 1: genre flow. Group songs by primary genre, genres sequenced
	// so that co-occurring tags sit next to each other.
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].genreRank != entries[j].genreRank {
			return entries[i].genreRank < entries[j].genreRank
		}
		return entries[i].idx < entries[j].idx
	})

	// Pass 2: within each genre group, cluster popularity tiers and bias
	// toward the energy arc phase the group falls into.
	h.orderWithinGroups(entries, useEnergy)

	// Pass 3: break long runs at a popularity extreme.
	h.breakTierRuns(entries)

	// Pass 4: spread out repeated artists. Applied last so no later pass
	// can reintroduce back-to-back repeats.
	h.spreadArtists(entries)

	ids := make([]string, len(entries))
	for i, e := range entries {
		ids[i] = e.songID
	}
	return ids
}

// genreOrder sequences the distinct primary genre tags so that tags which
// co-occur on the same songs end up adjacent. Returns each tag's position.
func genreOrder(songs []models.SongMetadata) map[string]int {
	freq := make(map[string]int)
	weight := make(map[string]map[string]int)

	for _, s := range songs {
		for _, g := range s.Genres {
			freq[g]++
		}
		for i := 0; i < len(s.Genres); i++ {
			for j := i + 1; j < len(s.Genres); j++ {
				a, b := s.Genres[i], s.Genres[j]
				if a == b {
					continue
				}
				if weight[a] == nil {
					weight[a] = make(map[string]int)
				}
				if weight[b] == nil {
					weight[b] = make(map[string]int)
				}
				weight[a][b]++
				weight[b][a]++
			}
		}
	}

	if len(freq) == 0 {
		return map[string]int{}
	}

	// Seed order: most common first, lexicographic on ties.
	byFreq := make([]string, 0, len(freq))
	for g := range freq {
		byFreq = append(byFreq, g)
	}
	sort.Slice(byFreq, func(i, j int) bool {
		if freq[byFreq[i]] != freq[byFreq[j]] {
			return freq[byFreq[i]] > freq[byFreq[j]]
		}
		return byFreq[i] < byFreq[j]
	})

	// Walk the co-occurrence graph greedily from the most common tag,
	// always preferring the strongest unvisited neighbor.
	type edge struct {
		to string
		w  int
	}
	adj := make(map[string][]edge, len(weight))
	for g, nbrs := range weight {
		edges := make([]edge, 0, len(nbrs))
		for to, w := range nbrs {
			edges = append(edges, edge{to: to, w: w})
		}
		sort.Slice(edges, func(i, j int) bool {
			if edges[i].w != edges[j].w {
				return edges[i].w > edges[j].w
			}
			return edges[i].to < edges[j].to
		})
		adj[g] = edges
	}

	rank := make(map[string]int, len(freq))
	seedPos := 0
	current := byFreq[0]
	rank[current] = 0

	for len(rank) < len(freq) {
		next := ""
		for _, e := range adj[current] {
			if _, seen := rank[e.to]; !seen {
				next = e.to
				break
			}
		}
		if next == "" {
			// Dead end: restart from the next most common unvisited tag.
			for seedPos < len(byFreq) {
				if _, seen := rank[byFreq[seedPos]]; !seen {
					next = byFreq[seedPos]
					break
				}
				seedPos++
			}
		}
		rank[next] = len(rank)
		current = next
	}

	return rank
}

// popularityTier buckets 0-100 popularity into five coarse tiers.
func popularityTier(pop int) int {
	if pop < 0 {
		pop = 0
	}
	if pop > 100 {
		pop = 100
	}
	tier := pop / 25
	if tier > 4 {
		tier = 4
	}
	return tier
}

// orderWithinGroups stable-sorts each contiguous genre group by popularity
// tier, breaking ties by the energy arc phase of the group's position:
// ascending energy early in the sequence (ramp), input order through the
// middle (sustain), descending toward the end (taper).
func (h *Heuristic) orderWithinGroups(entries []*entry, useEnergy bool) {
	n := len(entries)
	start := 0
	for start < n {
		end := start
		for end < n && entries[end].genreRank == entries[start].genreRank {
			end++
		}

		group := entries[start:end]
		phase := arcPhase(start, n)
		sort.SliceStable(group, func(i, j int) bool {
			if group[i].tier != group[j].tier {
				return group[i].tier > group[j].tier
			}
			if useEnergy {
				ei, ej := groupEnergy(group[i]), groupEnergy(group[j])
				if ei != ej {
					switch phase {
					case phaseRamp:
						return ei < ej
					case phaseTaper:
						return ei > ej
					}
				}
			}
			return group[i].idx < group[j].idx
		})

		start = end
	}
}

type phase int

const (
	phaseRamp phase = iota
	phaseSustain
	phaseTaper
)

// arcPhase maps a position in the overall sequence to an energy arc phase.
func arcPhase(pos, n int) phase {
	frac := float64(pos) / float64(n)
	switch {
	case frac < 0.4:
		return phaseRamp
	case frac < 0.75:
		return phaseSustain
	default:
		return phaseTaper
	}
}

// groupEnergy returns a song's energy, defaulting to the midpoint when the
// song itself has none even though the run is energy-aware.
func groupEnergy(e *entry) float64 {
	if e.hasEnergy {
		return e.energy
	}
	return 0.5
}

// breakTierRuns rotates a different-tier song into any run at a popularity
// extreme that exceeds the tolerated length.
func (h *Heuristic) breakTierRuns(entries []*entry) {
	n := len(entries)
	run := 1
	for i := 1; i < n; i++ {
		tier := entries[i].tier
		if tier == entries[i-1].tier && (tier == 0 || tier == 4) {
			run++
		} else {
			run = 1
			continue
		}

		if run <= h.TierRun {
			continue
		}

		rotated := false
		for j := i + 1; j < n && j <= i+h.Lookahead; j++ {
			if entries[j].tier != tier {
				rotateIn(entries, i, j)
				run = 1
				rotated = true
				break
			}
		}
		if !rotated {
			// Nothing different-tier in reach; tolerate the run.
			run = 1
		}
	}
}

// spreadArtists enforces the minimum positional gap between songs by the
// same artist, looking ahead a bounded distance for a substitute.
func (h *Heuristic) spreadArtists(entries []*entry) {
	n := len(entries)
	lastPos := make(map[string]int, n)

	for i := 0; i < n; i++ {
		if !h.violatesGap(entries[i].artist, i, lastPos) {
			lastPos[entries[i].artist] = i
			continue
		}

		for j := i + 1; j < n && j <= i+h.Lookahead; j++ {
			if !h.violatesGap(entries[j].artist, i, lastPos) {
				rotateIn(entries, i, j)
				break
			}
		}
		// Whether or not a substitute was found, record whoever now sits
		// at position i.
		lastPos[entries[i].artist] = i
	}
}

// violatesGap reports whether placing the artist at pos would put it within
// the minimum gap of its previous appearance.
func (h *Heuristic) violatesGap(artist string, pos int, lastPos map[string]int) bool {
	if artist == "" {
		return false
	}
	last, seen := lastPos[artist]
	return seen && pos-last <= h.ArtistGap
}

// rotateIn moves entries[j] to position i, shifting i..j-1 right by one.
// Relative order of the shifted entries is preserved.
func rotateIn(entries []*entry, i, j int) {
	moved := entries[j]
	copy(entries[i+1:j+1], entries[i:j])
	entries[i] = moved
}
