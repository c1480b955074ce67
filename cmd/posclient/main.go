// cmd/posclient: the tablet POS agent. Sales are always recorded in the local
// SQLite store first and uploaded when the server is reachable.
//
//	posclient login --username maya --password 1234
//	posclient catalog
//	posclient sale --item <product-id>:2 --payment cash
//	posclient sync
//	posclient run
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"clawpos/internal/apiclient"
	"clawpos/internal/config"
	"clawpos/internal/connectivity"
	"clawpos/internal/localstore"
	"clawpos/internal/syncengine"
	"clawpos/internal/terminal"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"
)

// agent bundles the components every command needs.
type agent struct {
	cfg     *config.ClientConfig
	store   *localstore.Store
	client  *apiclient.Client
	monitor *connectivity.Monitor
	engine  *syncengine.Engine
	term    *terminal.Terminal
}

func newAgent(cfg *config.ClientConfig) (*agent, error) {
	store, err := localstore.Open(cfg.DBPath)
	if err != nil {
		return nil, err
	}
	client := apiclient.New(cfg.APIBaseURL, cfg.HTTPTimeout)
	monitor := connectivity.New(client, cfg.ProbeInterval, cfg.ProbeThreshold)
	term := terminal.New(store, client, monitor)
	a := &agent{
		cfg:     cfg,
		store:   store,
		client:  client,
		monitor: monitor,
		engine: syncengine.New(store, client, monitor,
			syncengine.WithTimeout(cfg.HTTPTimeout),
			syncengine.WithAuthGate(term.CanUpload)),
		term: term,
	}
	a.engine.OnReport(func(r syncengine.Report) {
		if msg := r.Message(); msg != "" {
			fmt.Fprintln(os.Stderr, msg)
		}
	})
	return a, nil
}

func (a *agent) close() {
	_ = a.client.Close()
	_ = a.store.Close()
}

// probe runs enough checks to settle the debounced status. One-shot commands
// have no time to wait for the polling loop.
func (a *agent) probe(ctx context.Context) connectivity.Status {
	var st connectivity.Status
	for i := 0; i < a.cfg.ProbeThreshold; i++ {
		if st = a.monitor.Check(ctx); st == connectivity.Online {
			return st
		}
	}
	return st
}

// withAgent builds the agent, resumes the saved session when required and
// runs fn. An expired session still lets sales be recorded; only uploads
// wait for a new login.
func withAgent(needSession bool, fn func(ctx context.Context, a *agent, c *cli.Context) error) cli.ActionFunc {
	return func(c *cli.Context) error {
		cfg, err := config.LoadClient()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		setupLogger(cfg.LogLevel)

		a, err := newAgent(cfg)
		if err != nil {
			return err
		}
		defer a.close()

		if needSession {
			_, err := a.term.Resume(c.Context)
			switch {
			case errors.Is(err, terminal.ErrSessionExpired):
				log.Warn().Msg("session expired; sales are recorded locally, log in again to upload")
			case err != nil:
				return err
			}
		}
		return fn(c.Context, a, c)
	}
}

func setupLogger(level string) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
}

func main() {
	app := &cli.App{
		Name:  "posclient",
		Usage: "ClawPOS tablet agent with offline sale queue",
		Commands: []*cli.Command{
			{
				Name:  "login",
				Usage: "log an operator in and save the session on this device",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "username", Required: true},
					&cli.StringFlag{Name: "password", Required: true},
				},
				Action: withAgent(false, login),
			},
			{
				Name:   "logout",
				Usage:  "forget the saved session (queued sales are kept)",
				Action: withAgent(false, func(ctx context.Context, a *agent, _ *cli.Context) error { return a.term.Logout(ctx) }),
			},
			{
				Name:   "catalog",
				Usage:  "refresh the product cache when online and list it",
				Action: withAgent(true, catalog),
			},
			{
				Name:  "sale",
				Usage: "record a sale locally and upload it when online",
				Flags: []cli.Flag{
					&cli.StringSliceFlag{Name: "item", Required: true, Usage: "product-id:quantity, repeatable"},
					&cli.StringFlag{Name: "payment", Value: "cash", Usage: "cash | card | upi | digital_wallet | coins"},
				},
				Action: withAgent(true, sale),
			},
			{
				Name:   "sync",
				Usage:  "upload queued sales once",
				Action: withAgent(true, syncOnce),
			},
			{
				Name:   "status",
				Usage:  "show connectivity and queued sales",
				Action: withAgent(false, status),
			},
			{
				Name:  "run",
				Usage: "watch connectivity and sync on every reconnect",
				Flags: []cli.Flag{
					&cli.DurationFlag{Name: "sync-every", Usage: "also sync on this interval while online (0 disables)"},
				},
				Action: withAgent(true, run),
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Error().Err(err).Msg("posclient failed")
		os.Exit(1)
	}
}

func login(ctx context.Context, a *agent, c *cli.Context) error {
	a.probe(ctx)
	sess, err := a.term.Login(ctx, c.String("username"), c.String("password"))
	if err != nil {
		return err
	}
	fmt.Printf("logged in as %s (%s), session valid until %s\n", sess.Username, sess.Role, sess.ExpiresAt.Local().Format(time.RFC1123))
	return nil
}

func catalog(ctx context.Context, a *agent, _ *cli.Context) error {
	if a.probe(ctx) == connectivity.Online {
		n, err := a.term.RefreshCatalog(ctx)
		if err != nil {
			log.Warn().Err(err).Msg("catalog refresh failed, showing cached copy")
		} else {
			log.Info().Int("products", n).Msg("catalog refreshed")
		}
	}
	products, err := a.store.Products(ctx)
	if err != nil {
		return err
	}
	for _, p := range products {
		fmt.Printf("%-36s  %-24s  %8s  %s\n", p.ID, p.Name, p.Price.StringFixed(2), p.Category)
	}
	return nil
}

func sale(ctx context.Context, a *agent, c *cli.Context) error {
	lines, err := parseLines(c.StringSlice("item"))
	if err != nil {
		return err
	}
	a.probe(ctx)
	rcpt, err := a.term.Checkout(ctx, lines, c.String("payment"))
	if err != nil {
		if errors.Is(err, localstore.ErrStorage) {
			return fmt.Errorf("sale NOT recorded: %w", err)
		}
		return err
	}
	if rcpt.Uploaded {
		fmt.Printf("sale %s recorded, total %s\n", rcpt.Sale.SaleNumber, rcpt.Sale.Total.StringFixed(2))
	} else {
		fmt.Printf("sale recorded offline (%s), total %s; it will sync when online\n", rcpt.Sale.ClientID, rcpt.Sale.Total.StringFixed(2))
	}
	return nil
}

func parseLines(raw []string) ([]terminal.Line, error) {
	lines := make([]terminal.Line, 0, len(raw))
	for _, r := range raw {
		id, qtyStr, ok := strings.Cut(r, ":")
		qty := 1
		if ok {
			n, err := strconv.Atoi(qtyStr)
			if err != nil || n < 1 {
				return nil, fmt.Errorf("bad quantity in %q", r)
			}
			qty = n
		}
		if id == "" {
			return nil, fmt.Errorf("missing product id in %q", r)
		}
		lines = append(lines, terminal.Line{ProductID: id, Quantity: qty})
	}
	return lines, nil
}

func syncOnce(ctx context.Context, a *agent, _ *cli.Context) error {
	a.probe(ctx)
	rep := a.engine.Sync(ctx)
	switch {
	case rep.Skipped == syncengine.SkippedOffline:
		fmt.Println("offline, nothing sent")
	case rep.Skipped == syncengine.SkippedUnauthorized:
		fmt.Printf("%d sales waiting; log in again to upload\n", rep.Failed)
	case rep.Attempted == 0 && rep.Err == nil:
		fmt.Println("nothing to sync")
	}
	return nil
}

func status(ctx context.Context, a *agent, _ *cli.Context) error {
	st := a.probe(ctx)
	pending, err := a.store.CountUnsynced(ctx)
	if err != nil {
		return err
	}
	total, err := a.store.Count(ctx)
	if err != nil {
		return err
	}
	who := "nobody"
	if sess, err := a.store.Session(ctx); err == nil && sess != nil {
		who = sess.Username
	}
	fmt.Printf("server:   %s (%s)\noperator: %s\nsales:    %d recorded, %d waiting to sync\n", st, a.cfg.APIBaseURL, who, total, pending)
	return nil
}

func run(ctx context.Context, a *agent, c *cli.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	detach := a.engine.Attach(ctx, a.monitor)
	defer detach()
	detachCatalog := a.term.Attach(ctx, a.monitor)
	defer detachCatalog()

	if every := c.Duration("sync-every"); every > 0 {
		go func() {
			t := time.NewTicker(every)
			defer t.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-t.C:
					a.engine.Sync(ctx)
				}
			}
		}()
	}

	log.Info().Str("server", a.cfg.APIBaseURL).Dur("probe_every", a.cfg.ProbeInterval).Msg("POS agent running")
	if err := a.monitor.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	log.Info().Msg("POS agent stopped")
	return nil
}
