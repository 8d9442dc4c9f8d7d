package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"slices"
	"strings"
	"syscall"
	"time"

	"go.miragespace.co/keyval/gateway"
	"go.miragespace.co/keyval/node"
	"go.miragespace.co/keyval/rpc"
	"go.miragespace.co/keyval/rtt"
	"go.miragespace.co/keyval/spec/ring"
	"go.miragespace.co/keyval/util"
	"go.miragespace.co/keyval/util/ratecounter"

	"github.com/TheZeroSlave/zapsentry"
	"github.com/alecthomas/units"
	"github.com/avast/retry-go/v4"
	"github.com/getsentry/sentry-go"
	"github.com/pires/go-proxyproto"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const joinAttempts = 5

func Generate() *cli.Command {
	return &cli.Command{
		Name:  "server",
		Usage: "start a keyval node",
		Description: `Start a node of the ring. Without --join or --peers the node forms a ring of its own.

	Every node serves clients on /db/{key}, its peers on /nodes, /ring, /keys and /{key}, and debug pages under /_internal.
	To protect the internal endpoint, provide username and password under environment variables INTERNAL_USER and INTERNAL_PASS.

	Options can also be given in a yaml file with --config, keyed by flag name. Flags on the command line take precedence.`,
		ArgsUsage: " ",
		Flags: []cli.Flag{
			&cli.PathFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to a yaml file providing any of the options below",
			},

			&cli.StringFlag{
				Name:     "listen-addr",
				Aliases:  []string{"listen"},
				Value:    "0.0.0.0:7100",
				Usage:    "Address and port to listen for clients and peers",
				Category: "Network Options",
			},
			&cli.StringFlag{
				Name:        "advertise-addr",
				Aliases:     []string{"advertise"},
				DefaultText: "outbound ip with the port of listen-addr",
				Usage: `Address and port to advertise to peers.
			Note that the node ID is the hash of the advertised address, so it must be stable across restarts.`,
				Category: "Network Options",
			},
			&cli.BoolFlag{
				Name:     "proxy-protocol",
				Usage:    "Expect PROXY protocol headers on incoming connections, useful behind a load balancer",
				Category: "Network Options",
			},

			&cli.StringFlag{
				Name:     "engine",
				Value:    "memory",
				Usage:    fmt.Sprintf("Storage engine for local keys, one of %s", strings.Join(engines, ", ")),
				Category: "Node Options",
			},
			&cli.PathFlag{
				Name:     "data-dir",
				Aliases:  []string{"data"},
				Usage:    "Path to directory that will be used for persisting keys. Required unless engine is memory",
				Category: "Node Options",
			},
			&cli.IntFlag{
				Name:     "replicas",
				Value:    ring.MaxReplicas,
				Usage:    "Maximum number of nodes holding each key",
				Category: "Node Options",
			},
			&cli.StringSliceFlag{
				Name:     "peers",
				Usage:    "Advertise addresses of peers known at start up. Gossip takes care of the rest",
				Category: "Node Options",
			},
			&cli.StringFlag{
				Name: "join",
				Usage: `Advertise address of a node already in the ring.
			The node fetches the ring membership from it and takes over the keys it is now responsible for`,
				Category: "Node Options",
			},

			&cli.DurationFlag{
				Name:     "gossip-interval",
				Value:    node.DefaultGossipInterval,
				Usage:    "Interval between two gossip rounds",
				Category: "Gossip Options",
			},
			&cli.DurationFlag{
				Name:     "gossip-delay",
				Value:    node.DefaultGossipDelay,
				Usage:    "Delay before the first gossip round",
				Category: "Gossip Options",
			},
			&cli.DurationFlag{
				Name:     "rpc-timeout",
				Value:    node.DefaultRPCTimeout,
				Usage:    "Timeout of every call to a peer",
				Category: "Gossip Options",
			},

			&cli.StringFlag{
				Name:     "max-body",
				Value:    "1MiB",
				Usage:    "Maximum size of a value",
				Category: "Gateway Options",
			},
			&cli.IntFlag{
				Name:     "rate-limit",
				Usage:    "Maximum number of client requests per second on /db, 0 for unlimited",
				Category: "Gateway Options",
			},

			&cli.StringFlag{
				Name:        "sentry",
				DefaultText: "https://public@sentry.example.com/1",
				Usage:       "Sentry DSN for error monitoring. Alternatively, you can set the DSN via the environment variable SENTRY_DSN",
				EnvVars:     []string{"SENTRY_DSN"},
				Category:    "Miscellaneous",
			},

			&cli.StringFlag{
				Name:    "auth_user",
				Hidden:  true,
				EnvVars: []string{"INTERNAL_USER"},
			},
			&cli.StringFlag{
				Name:    "auth_pass",
				Hidden:  true,
				EnvVars: []string{"INTERNAL_PASS"},
			},
		},
		Before: func(ctx *cli.Context) error {
			if ctx.IsSet("config") {
				if err := applyConfigFile(ctx, ctx.Path("config")); err != nil {
					return err
				}
			}
			if !slices.Contains(engines, ctx.String("engine")) {
				return fmt.Errorf("unknown storage engine: %s", ctx.String("engine"))
			}
			if ctx.String("engine") != "memory" && !ctx.IsSet("data-dir") {
				return fmt.Errorf("data-dir is required for engine %s", ctx.String("engine"))
			}
			if ctx.Int("replicas") < 1 {
				return fmt.Errorf("minimum of 1 replica is required")
			}
			if ctx.Int("rate-limit") < 0 {
				return fmt.Errorf("rate-limit cannot be negative")
			}
			if _, err := units.ParseBase2Bytes(ctx.String("max-body")); err != nil {
				return fmt.Errorf("error parsing max-body: %w", err)
			}
			return nil
		},
		Action: cmdServer,
	}
}

func modifyToSentryLogger(logger *zap.Logger, client *sentry.Client) *zap.Logger {
	cfg := zapsentry.Configuration{
		Level:             zapcore.WarnLevel,
		EnableBreadcrumbs: true,
		BreadcrumbLevel:   zapcore.InfoLevel,
	}
	core, err := zapsentry.NewCore(cfg, zapsentry.NewSentryClientFromClient(client))

	if err != nil {
		logger.Warn("failed to init zap", zap.Error(err))
	}

	logger = zapsentry.AttachCoreToLogger(core, logger)

	return logger
}

// advertiseAddr fills in the outbound ip when listening on all interfaces
func advertiseAddr(ctx *cli.Context) (string, error) {
	if ctx.IsSet("advertise-addr") {
		advertise := ctx.String("advertise-addr")
		if _, _, err := net.SplitHostPort(advertise); err != nil {
			return "", fmt.Errorf("error parsing advertise address: %w", err)
		}
		return advertise, nil
	}
	host, port, err := net.SplitHostPort(ctx.String("listen-addr"))
	if err != nil {
		return "", fmt.Errorf("error parsing listen address: %w", err)
	}
	if ip := net.ParseIP(host); host == "" || (ip != nil && ip.IsUnspecified()) {
		host = util.GetOutboundIP().String()
	}
	return net.JoinHostPort(host, port), nil
}

func cmdServer(ctx *cli.Context) error {
	logger, ok := ctx.App.Metadata["logger"].(*zap.Logger)
	if !ok || logger == nil {
		return fmt.Errorf("unable to obtain logger from app context")
	}

	if ctx.IsSet("sentry") {
		client, err := sentry.NewClient(sentry.ClientOptions{
			Dsn:     ctx.String("sentry"),
			Release: ctx.App.Version,
		})
		if err != nil {
			return fmt.Errorf("initializing sentry client: %w", err)
		}
		defer client.Flush(time.Second * 2)

		logger = modifyToSentryLogger(logger, client)
		defer logger.Sync()
	}

	advertise, err := advertiseAddr(ctx)
	if err != nil {
		return err
	}
	maxBody, err := units.ParseBase2Bytes(ctx.String("max-body"))
	if err != nil {
		return fmt.Errorf("error parsing max-body: %w", err)
	}

	listener, err := net.Listen("tcp", ctx.String("listen-addr"))
	if err != nil {
		return fmt.Errorf("error setting up listener: %w", err)
	}
	if ctx.Bool("proxy-protocol") {
		logger.Info("Expecting PROXY protocol headers on incoming connections")
		listener = &proxyproto.Listener{
			Listener:          listener,
			ReadHeaderTimeout: time.Second * 5,
		}
	}
	defer listener.Close()

	kvProvider, kvStop, err := getKVProvider(
		logger.With(zapsentry.NewScope()).With(zap.String("component", "kv")),
		ctx.Path("data-dir"),
		ctx.String("engine"),
	)
	if err != nil {
		return fmt.Errorf("initializing kv storage: %w", err)
	}
	defer kvStop()

	nodesRTT := rtt.NewInstrumentation(20)
	outbound := ratecounter.New(time.Second, time.Second*5)

	transport := rpc.NewClient(rpc.ClientConfig{
		Logger:   logger.With(zapsentry.NewScope()).With(zap.String("component", "rpc")),
		Recorder: nodesRTT,
		Counter:  outbound,
	})

	localNode := node.NewLocalNode(node.NodeConfig{
		Logger:         logger.With(zapsentry.NewScope()).With(zap.String("component", "node")),
		Address:        advertise,
		KVProvider:     kvProvider,
		Transport:      transport,
		Seeds:          ctx.StringSlice("peers"),
		MaxReplicas:    ctx.Int("replicas"),
		GossipDelay:    ctx.Duration("gossip-delay"),
		GossipInterval: ctx.Duration("gossip-interval"),
		RPCTimeout:     ctx.Duration("rpc-timeout"),
		NodesRTT:       nodesRTT,
		OutboundRate:   outbound,
	})
	if err := localNode.Start(); err != nil {
		return fmt.Errorf("starting node: %w", err)
	}

	gw := gateway.New(gateway.GatewayConfig{
		Logger:   logger.With(zapsentry.NewScope()).With(zap.String("component", "gateway")),
		Node:     localNode,
		Listener: listener,
		Handlers: gateway.InternalHandlers{
			Stats: http.HandlerFunc(localNode.StatsHandler),
			Graph: http.HandlerFunc(localNode.RingGraphHandler),
		},
		MaxBodySize:     int64(maxBody),
		ClientRateLimit: ctx.Int("rate-limit"),
		AdminUser:       ctx.String("auth_user"),
		AdminPass:       ctx.String("auth_pass"),
	})
	gw.Start(ctx.Context)

	defer func() {
		leaveCtx, cancel := context.WithTimeout(context.Background(), ctx.Duration("rpc-timeout")*2)
		defer cancel()

		localNode.Leave(leaveCtx)
		if err := gw.Shutdown(leaveCtx); err != nil {
			logger.Warn("Error shutting down gateway", zap.Error(err))
		}
	}()

	if ctx.IsSet("join") {
		err := retry.Do(func() error {
			return localNode.Join(ctx.Context, ctx.String("join"))
		},
			retry.Context(ctx.Context),
			retry.Attempts(joinAttempts),
			retry.Delay(ctx.Duration("gossip-interval")),
			retry.LastErrorOnly(true),
			retry.RetryIf(ring.ErrorIsRetryable),
			retry.OnRetry(func(attempt uint, err error) {
				logger.Warn("Retrying on join error", zap.Uint("attempt", attempt), zap.Error(err))
			}),
		)
		if err != nil {
			return fmt.Errorf("error joining existing ring: %w", err)
		}
	}

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigs:
		logger.Info("received signal to stop", zap.String("signal", sig.String()))
	case <-ctx.Context.Done():
		logger.Info("context done", zap.Error(ctx.Context.Err()))
	}

	return nil
}
