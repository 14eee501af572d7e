// Package metadata aggregates song attributes from the external catalogs.
//
// A Fetcher fans one group's songs out to every configured
// [services.MetadataSource] in bounded-concurrency batches, then merges
// the partial attribute sets into canonical [models.SongMetadata]. Source
// failures degrade coverage instead of failing the run; a song no source
// recognizes still comes back with its title and artist.
package metadata

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/groupmix/smartsort/internal/models"
	"github.com/groupmix/smartsort/internal/services"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

const defaultBatchSize = 50

// Options tunes one fetch run. Zero values fall back to conservative
// defaults so a bare Options{} is always safe.
type Options struct {
	// Concurrency caps simultaneous in-flight source batches.
	Concurrency int
	// BatchSize is the number of songs per source request.
	BatchSize int
	// SkipSources lists source names to leave out of this run.
	SkipSources []string
}

// Result is the outcome of one fetch run.
type Result struct {
	// Songs holds merged metadata in the input song order.
	Songs []models.SongMetadata
	// Latencies maps each queried source to its mean batch latency.
	Latencies map[string]time.Duration
	// Failed lists sources whose every batch errored.
	Failed []string
	// Coverage is the fraction of songs at least one source recognized.
	Coverage float64
}

// Fetcher aggregates metadata from a fixed set of sources.
type Fetcher struct {
	sources []services.MetadataSource
	logger  *log.Logger
}

// NewFetcher creates a fetcher over the given sources.
func NewFetcher(sources []services.MetadataSource, logger *log.Logger) *Fetcher {
	return &Fetcher{sources: sources, logger: logger}
}

// sourceStats accumulates one source's batch outcomes under the fetch mutex.
type sourceStats struct {
	batches  int
	failures int
	elapsed  time.Duration
}

// Fetch resolves attributes for songs from every non-skipped source and
// merges them. The only returned error is context cancellation; source
// errors are logged, counted, and absorbed.
func (f *Fetcher) Fetch(ctx context.Context, songs []models.Song, opts Options) (*Result, error) {
	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	batchSize := opts.BatchSize
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}

	active := f.activeSources(opts.SkipSources)

	var (
		mu    sync.Mutex
		attrs = make(map[string][]sourceContribution)
		stats = make(map[string]*sourceStats, len(active))
	)
	for _, src := range active {
		stats[src.Name()] = &sourceStats{}
	}

	sem := semaphore.NewWeighted(int64(concurrency))
	g, gctx := errgroup.WithContext(ctx)

	for _, src := range active {
		for start := 0; start < len(songs); start += batchSize {
			end := start + batchSize
			if end > len(songs) {
				end = len(songs)
			}

			src, batch := src, songs[start:end]
			g.Go(func() error {
				if err := sem.Acquire(gctx, 1); err != nil {
					return err
				}
				defer sem.Release(1)

				began := time.Now()
				result, err := src.FetchBatch(gctx, batch)
				elapsed := time.Since(began)

				mu.Lock()
				defer mu.Unlock()

				st := stats[src.Name()]
				st.batches++
				st.elapsed += elapsed
				if err != nil {
					st.failures++
					f.logger.Warn("metadata source batch failed",
						"source", src.Name(), "songs", len(batch), "error", err)
					return nil
				}

				for _, a := range result {
					attrs[a.SongID] = append(attrs[a.SongID], sourceContribution{
						source: src.Name(),
						attrs:  a,
					})
				}
				return nil
			})
		}
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	res := &Result{
		Songs:     make([]models.SongMetadata, 0, len(songs)),
		Latencies: make(map[string]time.Duration, len(active)),
	}

	covered := 0
	for _, s := range songs {
		meta := merge(s, attrs[s.ID], f.sourceRank())
		if len(meta.Sources) > 0 {
			covered++
		}
		res.Songs = append(res.Songs, meta)
	}
	if len(songs) > 0 {
		res.Coverage = float64(covered) / float64(len(songs))
	}

	for name, st := range stats {
		if st.batches > 0 {
			res.Latencies[name] = st.elapsed / time.Duration(st.batches)
		}
		if st.batches > 0 && st.failures == st.batches {
			res.Failed = append(res.Failed, name)
		}
	}
	sort.Strings(res.Failed)

	return res, nil
}

// activeSources filters out skipped sources.
func (f *Fetcher) activeSources(skip []string) []services.MetadataSource {
	if len(skip) == 0 {
		return f.sources
	}

	skipped := make(map[string]bool, len(skip))
	for _, name := range skip {
		skipped[name] = true
	}

	var out []services.MetadataSource
	for _, src := range f.sources {
		if !skipped[src.Name()] {
			out = append(out, src)
		}
	}
	return out
}

// sourceRank maps each source name to its position in the configured
// order. Earlier sources win conflicting scalar fields.
func (f *Fetcher) sourceRank() map[string]int {
	rank := make(map[string]int, len(f.sources))
	for i, src := range f.sources {
		rank[src.Name()] = i
	}
	return rank
}

type sourceContribution struct {
	source string
	attrs  models.SourceAttributes
}

// merge folds every source contribution for one song into canonical
// metadata. Genres keep contribution order with duplicates dropped,
// popularity comes from the highest-ranked source that reported one, and
// audio characteristics union with highest-ranked sources winning keys.
func merge(song models.Song, contribs []sourceContribution, rank map[string]int) models.SongMetadata {
	meta := models.SongMetadata{
		SongID:     song.ID,
		PlaylistID: song.PlaylistID,
		Title:      song.Title,
		Artist:     song.Artist,
		Platform:   song.Platform,
	}
	if len(contribs) == 0 {
		return meta
	}

	sort.SliceStable(contribs, func(i, j int) bool {
		return rank[contribs[i].source] < rank[contribs[j].source]
	})

	seenGenre := make(map[string]bool)
	popSet := false
	for _, c := range contribs {
		meta.Sources = append(meta.Sources, c.source)

		for _, g := range c.attrs.Genres {
			if !seenGenre[g] {
				seenGenre[g] = true
				meta.Genres = append(meta.Genres, g)
			}
		}

		if c.attrs.Popularity != nil && !popSet {
			meta.Popularity = *c.attrs.Popularity
			popSet = true
		}

		for key, val := range c.attrs.Audio {
			if meta.Audio == nil {
				meta.Audio = make(map[string]float64)
			}
			if _, ok := meta.Audio[key]; !ok {
				meta.Audio[key] = val
			}
		}
	}

	return meta
}
