package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/delaneyj/cdom/cdom"
	"github.com/delaneyj/cdom/config"
	"github.com/delaneyj/cdom/helpers"
	"github.com/delaneyj/cdom/render"
	"github.com/delaneyj/cdom/server"
)

const (
	configKey     = "config"
	exprKey       = "expr"
	descriptorKey = "descriptor"
	addrKey       = "addr"
	settleKey     = "settle"
)

func main() {
	configFlag := &cli.StringFlag{
		Name:    configKey,
		Aliases: []string{"c"},
		Usage:   "YAML config declaring storage, helpers and state",
	}
	descriptorFlag := &cli.StringFlag{
		Name:    descriptorKey,
		Aliases: []string{"d"},
		Usage:   "JSON or YAML file holding a descriptor",
	}
	settleFlag := &cli.DurationFlag{
		Name:  settleKey,
		Usage: "How long to wait for helpers to load",
		Value: 10 * time.Second,
	}

	cmd := &cli.Command{
		Name:  "cdom",
		Usage: "Evaluate, render and serve reactive documents",
		Commands: []*cli.Command{
			{
				Name:  "eval",
				Usage: "Evaluate an expression or descriptor and print the result",
				Flags: []cli.Flag{
					configFlag,
					descriptorFlag,
					settleFlag,
					&cli.StringFlag{
						Name:    exprKey,
						Aliases: []string{"e"},
						Usage:   "Expression to evaluate",
					},
				},
				Action: eval,
			},
			{
				Name:   "render",
				Usage:  "Render a descriptor to HTML",
				Flags:  []cli.Flag{configFlag, descriptorFlag, settleFlag},
				Action: renderHTML,
			},
			{
				Name:  "serve",
				Usage: "Serve cells over HTTP and websockets",
				Flags: []cli.Flag{
					configFlag,
					&cli.StringFlag{
						Name:  addrKey,
						Usage: "Listen address, overrides the config",
					},
				},
				Action: serve,
			},
		},
	}
	if err := cmd.Run(context.Background(), os.Args); err != nil {
		log.Fatal(err)
	}
}

func build(cmd *cli.Command) (*config.Built, error) {
	c, err := config.Parse(nil)
	if path := cmd.String(configKey); path != "" {
		c, err = config.Load(path)
	}
	if err != nil {
		return nil, err
	}
	return c.Build()
}

func readDescriptor(path string) (any, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return helpers.ParseLiteral(string(b))
}

func settle(ctx context.Context, sys *cdom.System, d time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()
	return sys.Settle(ctx)
}

func eval(ctx context.Context, cmd *cli.Command) error {
	b, err := build(cmd)
	if err != nil {
		return err
	}
	defer b.Close()
	sys := b.System

	var last any
	apply := func(v any) { last = v }
	switch {
	case cmd.String(exprKey) != "":
		if _, err := sys.BindExpression(cmd.String(exprKey), nil, apply); err != nil {
			return err
		}
	case cmd.String(descriptorKey) != "":
		desc, err := readDescriptor(cmd.String(descriptorKey))
		if err != nil {
			return err
		}
		sys.BindStructural(desc, nil, apply)
	default:
		return errors.New("one of --expr or --descriptor is required")
	}

	if err := settle(ctx, sys, cmd.Duration(settleKey)); err != nil {
		return fmt.Errorf("waiting for helpers: %w", err)
	}
	fmt.Println(cdom.Stringify(last))
	return nil
}

func renderHTML(ctx context.Context, cmd *cli.Command) error {
	path := cmd.String(descriptorKey)
	if path == "" {
		return errors.New("--descriptor is required")
	}
	desc, err := readDescriptor(path)
	if err != nil {
		return err
	}
	b, err := build(cmd)
	if err != nil {
		return err
	}
	defer b.Close()

	tree := render.New(b.System)
	if err := tree.Render(desc); err != nil {
		return err
	}
	if err := settle(ctx, b.System, cmd.Duration(settleKey)); err != nil {
		return fmt.Errorf("waiting for helpers: %w", err)
	}
	fmt.Println(tree.HTML())
	return nil
}

func serve(ctx context.Context, cmd *cli.Command) error {
	start := time.Now()
	b, err := build(cmd)
	if err != nil {
		return err
	}
	defer b.Close()

	addr := b.Addr
	if a := cmd.String(addrKey); a != "" {
		addr = a
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	go b.System.Run(ctx)

	var opts []server.Option
	if b.Registry != nil {
		opts = append(opts, server.WithGatherer(b.Registry))
	}
	srv := server.New(b.System, opts...)
	hs := &http.Server{Addr: addr, Handler: srv, ReadHeaderTimeout: 10 * time.Second}

	errs := make(chan error, 1)
	go func() {
		log.Printf("Serving %d cells on %s", len(b.Cells), addr)
		errs <- hs.ListenAndServe()
	}()

	select {
	case err := <-errs:
		return err
	case <-ctx.Done():
	}

	log.Printf("Shutting down after %v", time.Since(start))
	srv.Close()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := hs.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
