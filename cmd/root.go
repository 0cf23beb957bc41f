/*
Copyright © 2023 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
)

func RootApp() *cli.App {
	return &cli.App{
		Name:  "rss-reader",
		Usage: "A reader client for feeds stored in a hosted backend",
		Description: `A reader client for RSS/Atom feeds, YouTube channels, subreddits
		and GitHub releases stored in a hosted backend.

		The serve command starts a local HTTP server that exposes the reader
		state as a JSON API with a server-sent event stream. Unread counts are
		kept current through the backend change stream, and reading settings
		are persisted in a local SQLite database.

		Flags can generally be set via environment variables, e.g.:

		--config => READER_CONFIG=config.toml
		--database => READER_DATABASE=reader.db
		`,
		Commands: []*cli.Command{
			serveCmd(),
			migrateCmd(),
			rollbackCmd(),
			subscribeCmd(),
			readAllCmd(),
		},
		Action: func(ctx *cli.Context) error {
			// Show help if no command is specified
			return ctx.App.Run([]string{"", "help"})
		},
	}
}

func Execute() {
	if err := RootApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
