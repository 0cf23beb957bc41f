/*
Copyright © 2023 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"fmt"
	"strconv"

	"github.com/TerryMooreII/rss-reader/config"
	"github.com/TerryMooreII/rss-reader/gateway"
	"github.com/TerryMooreII/rss-reader/models"

	"github.com/cqroot/prompt"
	"github.com/urfave/cli/v2"
)

// subscribeCmd represents the subscribe command
func subscribeCmd() *cli.Command {
	return &cli.Command{
		Name:  "subscribe",
		Usage: "Subscribe to a feed",
		Description: `Subscribes the configured account to a new feed.

Prompts for the page or feed URL, a title, a category and an optional
group. YouTube channel, subreddit and GitHub repository URLs are mapped
to their feed endpoints automatically; anything else is assumed to
already point at a feed. Fetching happens server-side once the
subscription is stored.`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Value:   "config.toml",
				Usage:   "Path to the TOML configuration file",
				EnvVars: []string{"READER_CONFIG"},
			},
		},
		Action: func(ctx *cli.Context) error {
			cfg, err := config.LoadConfig(ctx.String("config"))
			if err != nil {
				return err
			}

			rawURL, err := prompt.New().Ask("URL:").Input("https://www.youtube.com/channel/UC...")
			if err != nil {
				return err
			}

			feedURL, err := gateway.DeriveFeedURL(rawURL)
			if err != nil {
				return fmt.Errorf("could not derive a feed URL: %w", err)
			}

			title, err := prompt.New().Ask("Title:").Input("")
			if err != nil {
				return err
			}

			category, err := prompt.New().Ask("Category:").Input("news")
			if err != nil {
				return err
			}

			groupInput, err := prompt.New().Ask("Group id (empty for none):").Input("")
			if err != nil {
				return err
			}

			sub := models.Subscription{
				Title:    title,
				FeedURL:  feedURL,
				Category: category,
			}
			if feedURL != rawURL {
				// The pasted page URL doubles as the site link when we had to
				// derive the feed endpoint from it.
				sub.SiteURL = rawURL
			}
			if groupInput != "" {
				groupID, err := strconv.ParseInt(groupInput, 10, 64)
				if err != nil {
					return fmt.Errorf("invalid group id %q: %w", groupInput, err)
				}
				sub.GroupID = &groupID
			}

			client := gateway.NewClient(cfg.Backend.URL, gateway.Credentials{
				APIKey: cfg.Backend.APIKey,
				Token:  cfg.Backend.Token,
				UserID: cfg.Backend.UserID,
			}, nil)

			if err := client.CreateSubscription(ctx.Context, sub); err != nil {
				return fmt.Errorf("could not create subscription: %w", err)
			}

			fmt.Println("Subscribed to...", feedURL)
			return nil
		},
	}
}
