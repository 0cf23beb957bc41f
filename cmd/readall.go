/*
Copyright © 2023 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/TerryMooreII/rss-reader/config"
	"github.com/TerryMooreII/rss-reader/gateway"

	"github.com/cqroot/prompt"
	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
)

// readAllCmd represents the read-all command
func readAllCmd() *cli.Command {
	return &cli.Command{
		Name:  "read-all",
		Usage: "Mark entries as read from the command line",
		Description: `Marks every entry as read, optionally scoped to a single feed,
group or category.

Useful for clearing a backlog without starting the server. Prints the
executed scope as a JSON object on a single line so the output can be
piped to a tool like jq.

Prints all other log messages to stderr.`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Value:   "config.toml",
				Usage:   "Path to the TOML configuration file",
				EnvVars: []string{"READER_CONFIG"},
			},
			&cli.Int64Flag{
				Name:  "feed",
				Usage: "Only mark entries of this feed id",
			},
			&cli.Int64Flag{
				Name:  "group",
				Usage: "Only mark entries of feeds in this group id",
			},
			&cli.StringFlag{
				Name:  "category",
				Usage: "Only mark entries of feeds in this category",
			},
			&cli.BoolFlag{
				Name:    "yes",
				Aliases: []string{"y"},
				Usage:   "Skip the confirmation prompt",
			},
			&cli.BoolFlag{
				Name:  "dry-run",
				Usage: "Print the scope without calling the backend",
			},
		},
		Action: func(ctx *cli.Context) error {
			// Disable logging to stdout
			log.SetOutput(os.Stderr)

			scopes := 0
			for _, set := range []bool{ctx.IsSet("feed"), ctx.IsSet("group"), ctx.IsSet("category")} {
				if set {
					scopes++
				}
			}
			if scopes > 1 {
				return errors.New("--feed, --group and --category are mutually exclusive")
			}

			cfg, err := config.LoadConfig(ctx.String("config"))
			if err != nil {
				return err
			}

			result := readAllResult{Scope: "all"}
			switch {
			case ctx.IsSet("feed"):
				result = readAllResult{Scope: "feed", FeedID: ctx.Int64("feed")}
			case ctx.IsSet("group"):
				result = readAllResult{Scope: "group", GroupID: ctx.Int64("group")}
			case ctx.IsSet("category"):
				result = readAllResult{Scope: "category", Category: ctx.String("category")}
			}

			if ctx.Bool("dry-run") {
				return printResult(result)
			}

			if !ctx.Bool("yes") {
				var what string
				switch result.Scope {
				case "feed":
					what = fmt.Sprintf("feed %d", result.FeedID)
				case "group":
					what = fmt.Sprintf("group %d", result.GroupID)
				case "category":
					what = fmt.Sprintf("category %q", result.Category)
				default:
					what = "all feeds"
				}
				answer, err := prompt.New().Ask(fmt.Sprintf("Mark everything in %s as read? (y/N):", what)).Input("")
				if err != nil {
					return err
				}
				if !strings.HasPrefix(strings.ToLower(strings.TrimSpace(answer)), "y") {
					fmt.Fprintln(os.Stderr, "Aborted")
					return nil
				}
			}

			client := gateway.NewClient(cfg.Backend.URL, gateway.Credentials{
				APIKey: cfg.Backend.APIKey,
				Token:  cfg.Backend.Token,
				UserID: cfg.Backend.UserID,
			}, nil)

			switch result.Scope {
			case "feed":
				err = client.MarkFeedRead(ctx.Context, result.FeedID)
			case "group":
				err = client.MarkGroupRead(ctx.Context, result.GroupID)
			case "category":
				err = client.MarkCategoryRead(ctx.Context, result.Category)
			default:
				err = client.MarkAllRead(ctx.Context)
			}
			if err != nil {
				return fmt.Errorf("could not mark entries read: %w", err)
			}

			return printResult(result)
		},
	}
}

type readAllResult struct {
	Scope    string `json:"scope"`
	FeedID   int64  `json:"feed_id,omitempty"`
	GroupID  int64  `json:"group_id,omitempty"`
	Category string `json:"category,omitempty"`
}

func printResult(result readAllResult) error {
	// Print as single JSON string on a single line
	line, err := json.Marshal(result)
	if err != nil {
		return err
	}
	fmt.Println(string(line))
	return nil
}
