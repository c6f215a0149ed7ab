package main

import (
	"context"
	"flag"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"

	"github.com/yanun0323/go-link/internal/chaos"
	"github.com/yanun0323/go-link/internal/echo"
	"github.com/yanun0323/go-link/pkg/link/transport"
	"github.com/yanun0323/go-link/pkg/uds"
)

func main() {
	if err := run(); err != nil {
		logs.Errorf("linkecho: %+v", err)
		os.Exit(1)
	}
}

func run() error {
	network := flag.String("network", transport.NetworkTCP, "tcp or unix")
	address := flag.String("address", "127.0.0.1:7600", "listen address or socket path")
	seed := flag.Int64("seed", 0, "RNG seed (0=now)")
	dropRate := flag.Float64("drop-rate", 0, "Reply drop probability [0-1]")
	dupRate := flag.Float64("dup-rate", 0, "Reply duplicate probability [0-1]")
	maxDelay := flag.Duration("max-delay", 0, "Max reply delay")
	flag.Parse()

	engine, err := chaos.NewEngine(chaos.Config{
		Seed:          *seed,
		DropRate:      *dropRate,
		DuplicateRate: *dupRate,
		MaxDelay:      *maxDelay,
	})
	if err != nil {
		return errors.Wrap(err, "chaos config invalid")
	}

	ln, err := listen(*network, *address)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logs.Infof("echo peer listening on %s %s", *network, *address)
	return echo.New(engine).Serve(ctx, ln)
}

func listen(network, address string) (echo.Listener, error) {
	switch network {
	case transport.NetworkTCP:
		ln, err := net.Listen(network, address)
		if err != nil {
			return nil, errors.Wrap(err, "listen tcp").With("address", address)
		}
		return ln, nil
	case transport.NetworkUnix:
		server, err := uds.NewServer(address)
		if err != nil {
			return nil, err
		}
		if err := server.Listen(); err != nil {
			return nil, errors.Wrap(err, "listen unix").With("path", address)
		}
		return server, nil
	default:
		return nil, errors.Errorf("unknown network %q", network)
	}
}
