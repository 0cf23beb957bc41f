/*
Copyright © 2023 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"time"

	"github.com/TerryMooreII/rss-reader/config"
	"github.com/TerryMooreII/rss-reader/gateway"
	"github.com/TerryMooreII/rss-reader/models"
	"github.com/TerryMooreII/rss-reader/realtime"
	"github.com/TerryMooreII/rss-reader/server"
	"github.com/TerryMooreII/rss-reader/settings"
	"github.com/TerryMooreII/rss-reader/store"

	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
)

// serveCmd represents the serve command
func serveCmd() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Serve the reader API",
		Description: `Starts the reader HTTP server and the backend change-stream listener.

Launches the HTTP server on the configured host and port and exposes the
entry list, the sidebar aggregates and the reading settings as a JSON API
with a server-sent event stream. New entries arriving on the change stream
update the unread counts and are pushed to connected clients; when realtime
is disabled the backend is polled on a fixed interval instead.`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Value:   "config.toml",
				Usage:   "Path to the TOML configuration file",
				EnvVars: []string{"READER_CONFIG"},
			},
			&cli.StringFlag{
				Name:    "database",
				Aliases: []string{"d"},
				Value:   "reader.db",
				Usage:   "SQLite database for reading settings",
				EnvVars: []string{"READER_DATABASE"},
			},
			&cli.StringFlag{
				Name:    "host",
				Usage:   "Host to listen on, overrides the config file",
				EnvVars: []string{"READER_HOST"},
			},
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port to listen on, overrides the config file",
				EnvVars: []string{"READER_PORT"},
			},
		},
		Action: func(ctx *cli.Context) error {

			fmt.Println("Starting rss-reader...")

			cfg, err := config.LoadConfig(ctx.String("config"))
			if err != nil {
				return err
			}
			if ctx.IsSet("host") {
				cfg.Server.Host = ctx.String("host")
			}
			if ctx.IsSet("port") {
				cfg.Server.Port = ctx.Int("port")
			}

			client := gateway.NewClient(cfg.Backend.URL, gateway.Credentials{
				APIKey: cfg.Backend.APIKey,
				Token:  cfg.Backend.Token,
				UserID: cfg.Backend.UserID,
			}, nil)

			database := ctx.String("database")
			if err := settings.Migrate(database); err != nil {
				return fmt.Errorf("failed to migrate settings database: %w", err)
			}
			prefs, err := settings.Open(settings.Config{Path: database, Gateway: client})
			if err != nil {
				return err
			}

			current, found, err := prefs.Load(ctx.Context)
			if err != nil {
				return err
			}
			if !found {
				current = cfg.Settings()
			}

			bus := store.NewBus()
			entries := store.NewEntryStore(store.EntryStoreConfig{
				Gateway:        client,
				Bus:            bus,
				PageSize:       current.PageSize,
				PaginationMode: current.PaginationMode,
			})
			feeds := store.NewFeedStore(client, bus)
			groups := store.NewGroupStore(client, bus)
			categories := store.NewCategoryStore(client, bus)

			// Warm the stores before serving traffic. The API comes up either
			// way; a failed load surfaces again on /api/refresh.
			if err := feeds.Load(ctx.Context); err != nil {
				log.WithError(err).Warn("Initial feed load failed")
			}
			if err := groups.Load(ctx.Context); err != nil {
				log.WithError(err).Warn("Initial group load failed")
			}
			if err := categories.Load(ctx.Context); err != nil {
				log.WithError(err).Warn("Initial category load failed")
			}
			entries.SetFilter(ctx.Context, models.Filter{
				Type:       models.FilterAll,
				UnreadOnly: current.UnreadOnly,
			})

			broadcaster := server.NewBroadcaster()

			// Setup the server and the change-stream listener
			app := server.Server(&server.Config{
				Entries:      entries,
				Feeds:        feeds,
				Groups:       groups,
				Categories:   categories,
				Settings:     prefs,
				Defaults:     cfg.Settings(),
				Bus:          bus,
				Broadcaster:  broadcaster,
				AllowOrigins: cfg.Server.AllowOrigins,
			})

			streamCtx, stopStream := context.WithCancel(ctx.Context)
			defer stopStream()

			// Graceful shutdown
			c := make(chan os.Signal, 1)
			signal.Notify(c, os.Interrupt)
			var wg sync.WaitGroup

			go func() {
				<-c
				fmt.Println("Gracefully shutting down...")
				app.ShutdownWithTimeout(60 * time.Second)
				defer wg.Add(-2) // Decrement the waitgroup counter by 2 after shutdown of server and stream
				stopStream()
				broadcaster.Shutdown()
				prefs.Close()
			}()

			go func() {
				if cfg.Realtime.Enabled {
					fmt.Println("Subscribing to change stream...")
					listener := realtime.NewListener(realtime.Config{
						Hosts:  cfg.RealtimeHosts(),
						APIKey: cfg.Backend.APIKey,
						Token:  cfg.Backend.Token,
					}, func(change models.ChangeEvent) {
						if change.Type != models.ChangeInsert {
							return
						}
						bus.Publish(models.NewEntriesEvent{Entries: []models.Entry{change.Record}})
						entries.SilentRefresh(streamCtx)
					})
					if err := listener.Run(streamCtx); err != nil && !errors.Is(err, context.Canceled) {
						log.Panic(err)
					}
				} else {
					fmt.Println("Polling for new entries every", cfg.Realtime.RefreshInterval.Duration)
					poll(streamCtx, cfg.Realtime.RefreshInterval.Duration, entries, feeds, groups, categories)
				}
			}()

			go func() {
				fmt.Println("Starting server...")
				if err := app.Listen(cfg.Address()); err != nil {
					log.Panic(err)
				}
			}()

			// Wait for both the server and the stream to shutdown
			wg.Add(2)
			wg.Wait()

			fmt.Println("Done!")

			return nil
		},
	}
}

// poll is the fallback when the change stream is disabled: reconcile the entry
// list and the sidebar counts on a fixed interval.
func poll(ctx context.Context, interval time.Duration, entries *store.EntryStore, feeds *store.FeedStore, groups *store.GroupStore, categories *store.CategoryStore) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			entries.SilentRefresh(ctx)
			if err := feeds.Load(ctx); err != nil {
				log.WithError(err).Debug("Feed reload failed")
			}
			if err := groups.Load(ctx); err != nil {
				log.WithError(err).Debug("Group reload failed")
			}
			if err := categories.Load(ctx); err != nil {
				log.WithError(err).Debug("Category reload failed")
			}
		}
	}
}
