package main

import (
	"bufio"
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	pyroscope "github.com/grafana/pyroscope-go"
	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"
	"github.com/yanun0323/pkg/sys"

	"github.com/yanun0323/go-link/internal/config"
	"github.com/yanun0323/go-link/internal/deadletter"
	"github.com/yanun0323/go-link/pkg/conn"
	"github.com/yanun0323/go-link/pkg/link"
	"github.com/yanun0323/go-link/pkg/link/transport"
)

const metricsInterval = 15 * time.Second

func main() {
	if err := run(); err != nil {
		logs.Errorf("linkclient: %+v", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "JSON config file (optional)")
	network := flag.String("network", "", "tcp or unix, overrides the config")
	address := flag.String("address", "", "peer address or socket path, overrides the config")
	flag.Parse()

	cfg, err := loadConfig(*configPath, *network, *address)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Profiling.Enabled {
		profiler, err := pyroscope.Start(pyroscope.Config{
			ApplicationName: cfg.Profiling.ApplicationName,
			ServerAddress:   cfg.Profiling.ServerAddress,
			Tags:            cfg.Profiling.Tags,
			Logger:          emptyLogger{},
			ProfileTypes: []pyroscope.ProfileType{
				pyroscope.ProfileCPU,
				pyroscope.ProfileAllocObjects,
				pyroscope.ProfileAllocSpace,
				pyroscope.ProfileInuseObjects,
				pyroscope.ProfileInuseSpace,
			},
		})
		if err != nil {
			return errors.Wrap(err, "start profiler")
		}
		defer func() {
			_ = profiler.Stop()
		}()
	}

	opt := cfg.ClientOption()
	if cfg.DeadLetter.Enabled {
		db, err := conn.New(cfg.DeadLetter.Postgres.ConnOption())
		if err != nil {
			return errors.Wrap(err, "connect dead-letter database")
		}
		defer db.Close()

		store, err := deadletter.NewStore(db.DB(), nil)
		if err != nil {
			return err
		}
		if err := store.Migrate(ctx); err != nil {
			return err
		}
		opt.OnDrop = store.Hook()
	}

	var (
		tr      *transport.Conn
		backoff = cfg.BackoffPolicy()
	)
	opt.OnReconnect = func() {
		go func() {
			if err := tr.Redial(ctx, backoff); err != nil && ctx.Err() == nil {
				logs.Errorf("redial, err: %+v", err)
			}
		}()
	}
	opt.OnEvent = func(msg link.Message) {
		logs.Infof("event %s: %s", msg.ReqID, msg.Body)
	}

	client := link.New(opt)
	defer client.Close()

	tr, err = transport.New(client, cfg.TransportOption())
	if err != nil {
		return errors.Wrap(err, "build transport")
	}
	defer tr.Close()

	if err := tr.Redial(ctx, backoff); err != nil {
		return errors.Wrap(err, "dial peer")
	}
	if err := client.StartLoopOnce(); err != nil {
		return err
	}

	go readLines(ctx, client)

	ticker := time.NewTicker(metricsInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-sys.Shutdown():
			stop()
			return nil
		case <-ticker.C:
			m := client.Metrics()
			logs.Infof("metrics: pending=%d sent=%d acked=%d dropped=%d probes=%d deadVerdicts=%d reconnects=%d ackAvg=%s",
				client.PendingLen(), m.Sent, m.Acked, m.Dropped, m.Probes, m.DeadVerdicts, m.Reconnects, m.AckLatency.Avg)
		}
	}
}

func loadConfig(path, network, address string) (config.Config, error) {
	cfg := config.Default()
	if path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return config.Config{}, err
		}
		cfg = loaded
	}
	if network != "" {
		cfg.Link.Network = network
	}
	if address != "" {
		cfg.Link.Address = address
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

// readLines sends every stdin line as a business message.
func readLines(ctx context.Context, client *link.Client) {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		line := scanner.Text()
		if line == "" {
			continue
		}
		client.Send(link.NewMessage(link.CodeChat, []byte(line)))
	}
	if err := scanner.Err(); err != nil {
		logs.Errorf("read stdin, err: %+v", err)
	}
}

type emptyLogger struct{}

func (emptyLogger) Infof(_ string, _ ...interface{})  {}
func (emptyLogger) Debugf(_ string, _ ...interface{}) {}
func (emptyLogger) Errorf(_ string, _ ...interface{}) {}
