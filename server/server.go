package server

import (
	"bufio"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gofiber/adaptor/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"github.com/valyala/fasthttp"

	"github.com/TerryMooreII/rss-reader/models"
	"github.com/TerryMooreII/rss-reader/settings"
	"github.com/TerryMooreII/rss-reader/store"
)

type Config struct {

	// The entry list store backing the /api/entries surface
	Entries *store.EntryStore

	// Sidebar aggregate stores
	Feeds      *store.FeedStore
	Groups     *store.GroupStore
	Categories *store.CategoryStore

	// Local settings persistence
	Settings *settings.Store

	// Defaults returned before the user has saved any settings
	Defaults models.Settings

	// Bus carrying read-state and new-entry events to SSE clients
	Bus *store.Bus

	// Broadcast channels to pass events to SSE clients
	Broadcaster *Broadcaster

	// Comma-separated CORS origins; empty allows any origin
	AllowOrigins string
}

// Event is one server-sent event: a name and a JSON-encodable payload.
type Event struct {
	Name string
	Data any
}

// Broadcaster fans events out to connected SSE clients over per-client
// buffered channels. Sends never block; a slow client just misses events.
type Broadcaster struct {
	sync.RWMutex
	clients map[string]chan Event
}

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{
		clients: make(map[string]chan Event),
	}
}

func (b *Broadcaster) Broadcast(event Event) {
	b.RLock()
	defer b.RUnlock()

	for id, client := range b.clients {
		select {
		case client <- event: // Non-blocking send
		default:
			log.Warnf("Client channel full, skipping event for client: %v", id)
		}
	}
}

func (b *Broadcaster) AddClient(key string, client chan Event) {
	b.Lock()
	defer b.Unlock()
	b.clients[key] = client
	log.WithFields(log.Fields{
		"key":   key,
		"count": len(b.clients),
	}).Info("Adding client to broadcaster")
}

func (b *Broadcaster) RemoveClient(key string) {
	b.Lock()
	defer b.Unlock()

	if client, ok := b.clients[key]; ok {
		close(client)
		delete(b.clients, key)
	}

	log.WithFields(log.Fields{
		"key":   key,
		"count": len(b.clients),
	}).Info("Removed client from broadcaster")
}

func (b *Broadcaster) Shutdown() {
	log.Info("Shutting down broadcaster")
	b.Lock()
	defer b.Unlock()
	for key, client := range b.clients {
		close(client)
		delete(b.clients, key)
	}
}

// Server returns a fiber.App exposing the reader stores as a JSON API plus an
// SSE stream. Read-state and new-entry events published on the bus are
// forwarded to every connected SSE client.
func Server(config *Config) *fiber.App {

	bc := config.Broadcaster

	// Forward bus events to SSE clients
	if config.Bus != nil {
		config.Bus.Subscribe(func(event any) {
			switch e := event.(type) {
			case models.ReadStateEvent:
				bc.Broadcast(Event{Name: "read-state", Data: e})
			case models.BulkReadEvent:
				bc.Broadcast(Event{Name: "bulk-read", Data: e})
			case models.NewEntriesEvent:
				bc.Broadcast(Event{Name: "new-entries", Data: e})
			}
		})
	}

	app := fiber.New()

	// Middleware to track the latency of each request
	app.Use(func(c *fiber.Ctx) error {
		// start timer
		start := time.Now()

		// next routes
		err := c.Next()

		// stop timer
		stop := time.Now()

		log.WithFields(log.Fields{
			"method":  c.Method(),
			"route":   c.Route().Path,
			"latency": stop.Sub(start),
		}).Info("Request")
		return err
	})

	app.Use(requestid.New(requestid.ConfigDefault))
	app.Use(compress.New())

	corsConfig := cors.ConfigDefault
	if config.AllowOrigins != "" {
		corsConfig = cors.Config{
			AllowOrigins:     config.AllowOrigins,
			AllowHeaders:     "Cache-Control,Content-Type",
			AllowCredentials: true,
		}
	}
	app.Use(cors.New(corsConfig))

	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	api := app.Group("/api")

	// Entry list

	api.Get("/entries", func(c *fiber.Ctx) error {
		return c.JSON(config.Entries.Snapshot())
	})

	api.Put("/filter", func(c *fiber.Ctx) error {
		var filter models.Filter
		if err := c.BodyParser(&filter); err != nil {
			return c.Status(400).SendString("Invalid filter")
		}
		if err := filter.Validate(); err != nil {
			return c.Status(400).SendString(err.Error())
		}
		config.Entries.SetFilter(c.UserContext(), filter)
		return c.JSON(config.Entries.Snapshot())
	})

	api.Post("/entries/more", func(c *fiber.Ctx) error {
		config.Entries.FetchMore(c.UserContext())
		return c.JSON(config.Entries.Snapshot())
	})

	api.Post("/entries/page", func(c *fiber.Ctx) error {
		var req struct {
			Direction models.PageDirection `json:"direction"`
		}
		if err := c.BodyParser(&req); err != nil {
			return c.Status(400).SendString("Invalid direction")
		}
		if req.Direction != models.PageNext && req.Direction != models.PagePrevious {
			return c.Status(400).SendString("Direction must be next or previous")
		}
		config.Entries.FetchPage(c.UserContext(), req.Direction)
		return c.JSON(config.Entries.Snapshot())
	})

	api.Put("/search", func(c *fiber.Ctx) error {
		var req struct {
			Query string `json:"query"`
		}
		if err := c.BodyParser(&req); err != nil {
			return c.Status(400).SendString("Invalid query")
		}
		config.Entries.SetSearchQuery(req.Query)
		// The fetch happens after the debounce; clients follow up on /entries.
		return c.SendStatus(202)
	})

	// Per-entry read state

	api.Post("/entries/:id/read", entryAction(config, func(c *fiber.Ctx, id int64) {
		config.Entries.MarkRead(c.UserContext(), id)
	}))

	api.Post("/entries/:id/unread", entryAction(config, func(c *fiber.Ctx, id int64) {
		config.Entries.MarkUnread(c.UserContext(), id)
	}))

	api.Post("/entries/:id/toggle-read", entryAction(config, func(c *fiber.Ctx, id int64) {
		config.Entries.ToggleRead(c.UserContext(), id)
	}))

	api.Post("/entries/:id/star", entryAction(config, func(c *fiber.Ctx, id int64) {
		config.Entries.ToggleStar(c.UserContext(), id)
	}))

	api.Post("/entries/:id/select", entryAction(config, func(c *fiber.Ctx, id int64) {
		config.Entries.Select(id)
	}))

	api.Post("/selection/next", func(c *fiber.Ctx) error {
		config.Entries.SelectNext()
		return c.JSON(config.Entries.Snapshot())
	})

	api.Post("/selection/previous", func(c *fiber.Ctx) error {
		config.Entries.SelectPrevious()
		return c.JSON(config.Entries.Snapshot())
	})

	api.Post("/reader/open", func(c *fiber.Ctx) error {
		config.Entries.OpenReader()
		return c.JSON(config.Entries.Snapshot())
	})

	api.Post("/reader/close", func(c *fiber.Ctx) error {
		config.Entries.CloseReader()
		return c.JSON(config.Entries.Snapshot())
	})

	// Bulk read

	api.Post("/mark-all-read", func(c *fiber.Ctx) error {
		var req struct {
			Scope    string `json:"scope"`
			FeedID   int64  `json:"feed_id"`
			GroupID  int64  `json:"group_id"`
			Category string `json:"category"`
		}
		if len(c.Body()) > 0 {
			if err := c.BodyParser(&req); err != nil {
				return c.Status(400).SendString("Invalid scope")
			}
		}

		ctx := c.UserContext()
		switch req.Scope {
		case "", "all":
			config.Entries.MarkAllRead(ctx)
		case "feed":
			if req.FeedID == 0 {
				return c.Status(400).SendString("feed scope requires feed_id")
			}
			config.Entries.MarkFeedRead(ctx, req.FeedID)
		case "group":
			if req.GroupID == 0 {
				return c.Status(400).SendString("group scope requires group_id")
			}
			config.Entries.MarkGroupRead(ctx, req.GroupID)
		case "category":
			if req.Category == "" {
				return c.Status(400).SendString("category scope requires category")
			}
			config.Entries.MarkCategoryRead(ctx, req.Category)
		default:
			return c.Status(400).SendString("Invalid scope")
		}
		return c.JSON(config.Entries.Snapshot())
	})

	// Sidebar

	api.Get("/feeds", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"feeds":        config.Feeds.Feeds(),
			"total_unread": config.Feeds.TotalUnread(),
		})
	})

	api.Get("/groups", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"groups": config.Groups.Groups()})
	})

	api.Get("/categories", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"categories": config.Categories.Categories()})
	})

	api.Post("/refresh", func(c *fiber.Ctx) error {
		ctx := c.UserContext()
		if err := config.Feeds.Load(ctx); err != nil {
			return c.Status(502).SendString(err.Error())
		}
		if err := config.Groups.Load(ctx); err != nil {
			return c.Status(502).SendString(err.Error())
		}
		if err := config.Categories.Load(ctx); err != nil {
			return c.Status(502).SendString(err.Error())
		}
		config.Entries.SilentRefresh(ctx)
		return c.JSON(config.Entries.Snapshot())
	})

	// Settings

	api.Get("/settings", func(c *fiber.Ctx) error {
		stored, found, err := config.Settings.Load(c.UserContext())
		if err != nil {
			return c.Status(500).SendString(err.Error())
		}
		if !found {
			return c.JSON(config.Defaults)
		}
		return c.JSON(stored)
	})

	api.Put("/settings", func(c *fiber.Ctx) error {
		var s models.Settings
		if err := c.BodyParser(&s); err != nil {
			return c.Status(400).SendString("Invalid settings")
		}
		s = s.Validate()
		if err := config.Settings.Save(c.UserContext(), s); err != nil {
			return c.Status(500).SendString(err.Error())
		}
		config.Entries.ApplySettings(s)
		return c.JSON(s)
	})

	// SSE

	api.Delete("/events", func(c *fiber.Ctx) error {
		key := c.Query("key", "")
		bc.RemoveClient(key)
		return c.Status(200).SendString("OK")
	})

	api.Get("/events", func(c *fiber.Ctx) error {
		c.Set("Content-Type", "text/event-stream")
		c.Set("Cache-Control", "no-cache")
		c.Set("Connection", "keep-alive")
		c.Set("Transfer-Encoding", "chunked")

		// Unique client key
		key := uuid.New().String()
		events := make(chan Event, 32) // Buffered channel
		aliveChan := time.NewTicker(5 * time.Second)

		defer aliveChan.Stop()

		bc.AddClient(key, events)

		cleanup := func() {
			log.Infof("Cleaning up SSE stream for client: %s", key)
			bc.RemoveClient(key)
		}

		// Use StreamWriter to manage SSE streaming
		c.Context().SetBodyStreamWriter(fasthttp.StreamWriter(func(w *bufio.Writer) {
			defer cleanup()

			// Send initial event with client key
			fmt.Fprintf(w, "event: init\ndata: %s\n\n", key)
			if err := w.Flush(); err != nil {
				log.Errorf("Failed to send init event: %v", err)
				return
			}

			for {
				select {
				case <-aliveChan.C:
					// Send keep-alive pings
					if _, err := fmt.Fprintf(w, "event: ping\ndata: \n\n"); err != nil {
						log.Warnf("Failed to send ping to client %s: %v", key, err)
						return
					}
					if err := w.Flush(); err != nil {
						log.Warnf("Failed to flush ping for client %s: %v", key, err)
						return
					}

				case event, ok := <-events:
					if !ok {
						log.Warnf("Event channel closed for client %s", key)
						return
					}
					data, err := json.Marshal(event.Data)
					if err != nil {
						log.Errorf("Error marshalling event for client %s: %v", key, err)
						continue
					}
					if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Name, data); err != nil {
						log.Warnf("Failed to send %s event to client %s: %v", event.Name, key, err)
						return
					}
					if err := w.Flush(); err != nil {
						log.Warnf("Failed to flush %s event for client %s: %v", event.Name, key, err)
						return
					}
				}
			}
		}))

		return nil
	})

	return app
}

// entryAction wraps a per-entry mutation: parse the id, run it, answer with
// the fresh snapshot. Unknown ids are silent no-ops by store contract, so the
// handler never 404s.
func entryAction(config *Config, action func(c *fiber.Ctx, id int64)) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := c.ParamsInt("id")
		if err != nil || id <= 0 {
			return c.Status(400).SendString("Invalid entry id")
		}
		action(c, int64(id))
		return c.JSON(config.Entries.Snapshot())
	}
}
