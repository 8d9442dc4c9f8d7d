package client

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"io"
	"maps"
	"os"
	"slices"
	"time"

	"go.miragespace.co/keyval/rpc"
	"go.miragespace.co/keyval/spec/ring"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
)

func Generate() *cli.Command {
	return &cli.Command{
		Name:  "client",
		Usage: "talk to a running keyval node",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "addr",
				Aliases: []string{"a"},
				Value:   "127.0.0.1:7100",
				Usage:   "Advertise address of the node to talk to",
				EnvVars: []string{"KEYVAL_ADDR"},
			},
			&cli.DurationFlag{
				Name:  "timeout",
				Value: time.Second * 10,
				Usage: "Timeout of the request",
			},
		},
		Subcommands: []*cli.Command{
			{
				Name:      "get",
				ArgsUsage: "KEY",
				Usage:     "print the value of a key",
				Action:    cmdGet,
			},
			{
				Name:      "put",
				ArgsUsage: "KEY [VALUE]",
				Usage:     "write a key, reading the value from stdin when omitted",
				Action:    cmdPut,
			},
			{
				Name:      "delete",
				Aliases:   []string{"rm"},
				ArgsUsage: "KEY",
				Usage:     "delete a key",
				Action:    cmdDelete,
			},
			{
				Name:   "nodes",
				Usage:  "list the members known to the node",
				Action: cmdNodes,
			},
			{
				Name:      "join",
				ArgsUsage: "BOOTSTRAP",
				Usage:     "ask the node to join the ring that BOOTSTRAP belongs to",
				Action:    cmdJoin,
			},
			{
				Name:  "keys",
				Usage: "list the keys stored on the node itself",
				Flags: []cli.Flag{
					&cli.Uint64Flag{
						Name:  "lower",
						Usage: "Exclusive lower bound of the key hash",
					},
					&cli.Uint64Flag{
						Name:  "upper",
						Usage: "Inclusive upper bound of the key hash",
					},
				},
				Action: cmdKeys,
			},
		},
	}
}

type session struct {
	ctx    context.Context
	cancel context.CancelFunc
	addr   string
	client *rpc.Client
}

func newSession(ctx *cli.Context) *session {
	logger, ok := ctx.App.Metadata["logger"].(*zap.Logger)
	if !ok {
		logger = zap.NewNop()
	}
	reqCtx, cancel := context.WithTimeout(ctx.Context, ctx.Duration("timeout"))
	return &session{
		ctx:    reqCtx,
		cancel: cancel,
		addr:   ctx.String("addr"),
		client: rpc.NewClient(rpc.ClientConfig{
			Logger: logger,
		}),
	}
}

func keyArg(ctx *cli.Context) ([]byte, error) {
	if ctx.NArg() < 1 || ctx.Args().First() == "" {
		return nil, fmt.Errorf("missing key")
	}
	return []byte(ctx.Args().First()), nil
}

func cmdGet(ctx *cli.Context) error {
	key, err := keyArg(ctx)
	if err != nil {
		return err
	}
	s := newSession(ctx)
	defer s.cancel()

	value, found, err := s.client.ClientGet(s.ctx, s.addr, key)
	if err != nil {
		return err
	}
	if !found {
		return ring.ErrKeyNotFound
	}
	_, err = ctx.App.Writer.Write(value)
	return err
}

func cmdPut(ctx *cli.Context) error {
	key, err := keyArg(ctx)
	if err != nil {
		return err
	}
	var value []byte
	if ctx.NArg() > 1 {
		value = []byte(ctx.Args().Get(1))
	} else {
		value, err = io.ReadAll(os.Stdin)
		if err != nil {
			return fmt.Errorf("reading value from stdin: %w", err)
		}
	}
	s := newSession(ctx)
	defer s.cancel()

	committed, err := s.client.ClientPut(s.ctx, s.addr, key, value)
	if err != nil {
		return err
	}
	fmt.Fprintf(ctx.App.Writer, "%d bytes written\n", len(committed))
	return nil
}

func cmdDelete(ctx *cli.Context) error {
	key, err := keyArg(ctx)
	if err != nil {
		return err
	}
	s := newSession(ctx)
	defer s.cancel()

	_, found, err := s.client.ClientDelete(s.ctx, s.addr, key)
	if err != nil {
		return err
	}
	if !found {
		return ring.ErrKeyNotFound
	}
	return nil
}

func cmdNodes(ctx *cli.Context) error {
	s := newSession(ctx)
	defer s.cancel()

	members, version, err := s.client.GetMembership(s.ctx, s.addr)
	if err != nil {
		return err
	}

	t := table.NewWriter()
	t.SetOutputMirror(ctx.App.Writer)
	t.AppendHeader(table.Row{"ID", "Address"})
	for _, id := range members.IDs() {
		t.AppendRow(table.Row{id, members[id]})
	}
	t.SetCaption("(%d members, version %d)", len(members), version)
	t.SetStyle(table.StyleDefault)
	t.Render()
	return nil
}

func cmdJoin(ctx *cli.Context) error {
	if ctx.NArg() < 1 {
		return fmt.Errorf("missing bootstrap address")
	}
	s := newSession(ctx)
	defer s.cancel()

	err := s.client.Join(s.ctx, s.addr, ctx.Args().First())
	if errors.Is(err, ring.ErrDuplicateNodeID) {
		return fmt.Errorf("node ID of %s is already taken in that ring", s.addr)
	}
	return err
}

func cmdKeys(ctx *cli.Context) error {
	r := ring.HashRange{InclusiveUpper: true}
	if ctx.IsSet("lower") {
		r.Lower = ring.At(ctx.Uint64("lower"))
	}
	if ctx.IsSet("upper") {
		r.Upper = ring.At(ctx.Uint64("upper"))
	}
	s := newSession(ctx)
	defer s.cancel()

	entries, err := s.client.FetchRange(s.ctx, s.addr, r)
	if err != nil {
		return err
	}

	t := table.NewWriter()
	t.SetOutputMirror(ctx.App.Writer)
	t.AppendHeader(table.Row{"hash(key)", "key", "size"})
	keys := slices.Collect(maps.Keys(entries))
	slices.SortFunc(keys, func(a, b string) int {
		return cmp.Compare(ring.Hash(a), ring.Hash(b))
	})
	for _, key := range keys {
		t.AppendRow(table.Row{ring.Hash(key), key, len(entries[key])})
	}
	t.SetCaption("(%d keys in %s)", len(entries), r.String())
	t.SetStyle(table.StyleDefault)
	t.Render()
	return nil
}
