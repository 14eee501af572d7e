// submodule cmd contains command definitions
package main

import "github.com/urfave/cli/v3"

func configFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "Path to configuration file",
		Value:   "config.toml",
	}
}

// setupCommand initializes the database and config file
func setupCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:   "setup",
		Usage:  "Initialize database and run migrations",
		Flags:  []cli.Flag{configFlag()},
		Action: r.Setup,
	}
}

// authCommand handles catalog authentication
func authCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "auth",
		Usage: "Authenticate with metadata catalogs",
		Commands: []*cli.Command{
			{
				Name:   "spotify",
				Usage:  "Authenticate with Spotify using OAuth2",
				Flags:  []cli.Flag{configFlag()},
				Action: r.AuthSpotify,
			},
			{
				Name:    "ytmusic",
				Aliases: []string{"yt"},
				Usage:   "Configure YouTube Music auth from a browser cURL command",
				Flags: []cli.Flag{
					configFlag(),
					&cli.StringFlag{
						Name:  "curl",
						Usage: "cURL command copied from browser DevTools",
					},
					&cli.StringFlag{
						Name:  "curl-file",
						Usage: "Path to a file containing the cURL command",
					},
				},
				Action: r.AuthYTMusic,
			},
		},
	}
}

// seedCommand loads playlists into the local database for development
func seedCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "seed",
		Usage: "Seed a group playlist from a JSON file",
		Flags: []cli.Flag{
			configFlag(),
			&cli.StringFlag{
				Name:     "file",
				Aliases:  []string{"f"},
				Usage:    "Path to seed JSON (playlist plus songs)",
				Required: true,
			},
		},
		Action: r.Seed,
	}
}

// sortCommand runs one sort from the terminal
func sortCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "sort",
		Usage: "Sort a group's combined playlists",
		Flags: []cli.Flag{
			configFlag(),
			&cli.StringFlag{
				Name:     "group",
				Aliases:  []string{"g"},
				Usage:    "Group ID to sort",
				Required: true,
			},
			&cli.StringFlag{
				Name:  "mode",
				Usage: "Sort scope: all (one unified order) or playlist (per playlist)",
				Value: "all",
			},
			&cli.BoolFlag{
				Name:  "skip-ai",
				Usage: "Keep the heuristic order without model refinement",
			},
			&cli.StringFlag{
				Name:  "format",
				Usage: "Output format: text, json, csv, markdown",
				Value: "text",
			},
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "Base path for export files (writes to stdout when empty)",
			},
		},
		Action: r.Sort,
	}
}

// serveCommand hosts the sort API
func serveCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:   "serve",
		Usage:  "Run the sort engine HTTP server",
		Flags:  []cli.Flag{configFlag()},
		Action: r.Serve,
	}
}

// statusCommand queries a running server
func statusCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "status",
		Usage: "Show queue health of a running server",
		Flags: []cli.Flag{
			configFlag(),
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Print the raw JSON response",
			},
			&cli.BoolFlag{
				Name:  "watch",
				Usage: "Poll and reprint the snapshot every 2 seconds",
			},
		},
		Action: r.Status,
	}
}

// tuiCommand launches the interactive terminal UI
func tuiCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:   "tui",
		Usage:  "Interactive sort with live progress",
		Flags:  []cli.Flag{configFlag()},
		Action: r.TUI,
	}
}
