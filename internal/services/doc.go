// Package services implements the catalog collaborators the metadata
// fetcher aggregates over.
//
// Each catalog implements [MetadataSource] and contributes whatever
// partial data it has:
//
//   - [SpotifyCatalog] : track popularity, artist genres, and audio
//     features from the Spotify Web API (OAuth2 bearer auth)
//   - [YTMusicCatalog] : genres and view-derived popularity through the
//     YouTube Music proxy service (static client token auth)
//   - [LastFMCatalog] : community tags and listener counts from the
//     Last.fm API (API key auth); the slowest source, and the first one
//     the advisor recommends skipping on large inputs
//
// Per-song and per-source failures degrade that song's metadata rather
// than failing a batch; a source-level error degrades the whole source
// for the run. Requests are paced with a per-source [rate.Limiter] so
// bulk fetches respect upstream request budgets.
package services
