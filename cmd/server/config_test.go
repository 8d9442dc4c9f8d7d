package server

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"
)

type parsed struct {
	engine    string
	dataDir   string
	replicas  int
	peers     []string
	interval  time.Duration
	advertise string
}

func runServerCommand(args ...string) (*parsed, error) {
	result := &parsed{}
	cmd := Generate()
	cmd.Action = func(ctx *cli.Context) error {
		result.engine = ctx.String("engine")
		result.dataDir = ctx.Path("data-dir")
		result.replicas = ctx.Int("replicas")
		result.peers = ctx.StringSlice("peers")
		result.interval = ctx.Duration("gossip-interval")
		advertise, err := advertiseAddr(ctx)
		result.advertise = advertise
		return err
	}
	app := &cli.App{
		Name:     "keyval",
		Commands: []*cli.Command{cmd},
	}
	err := app.Run(append([]string{"keyval", "server"}, args...))
	return result, err
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestConfigFile(t *testing.T) {
	as := require.New(t)

	path := writeConfig(t, `
engine: aof
data-dir: /var/lib/keyval
replicas: 3
peers:
  - 10.0.0.1:7100
  - 10.0.0.2:7100
gossip-interval: 250ms
advertise-addr: 10.0.0.3:7100
`)

	p, err := runServerCommand("--config", path, "--replicas", "1")
	as.NoError(err)
	as.Equal("aof", p.engine)
	as.Equal("/var/lib/keyval", p.dataDir)
	// the command line wins
	as.Equal(1, p.replicas)
	as.Equal([]string{"10.0.0.1:7100", "10.0.0.2:7100"}, p.peers)
	as.Equal(time.Millisecond*250, p.interval)
	as.Equal("10.0.0.3:7100", p.advertise)
}

func TestConfigFileErrors(t *testing.T) {
	as := require.New(t)

	_, err := runServerCommand("--config", writeConfig(t, "unknown: 1\n"))
	as.ErrorContains(err, "unknown option")

	_, err = runServerCommand("--config", writeConfig(t, "peers:\n  nested: map\n"))
	as.Error(err)

	_, err = runServerCommand("--config", filepath.Join(t.TempDir(), "missing.yaml"))
	as.Error(err)

	// an empty file is fine
	p, err := runServerCommand("--config", writeConfig(t, ""), "--advertise", "127.0.0.1:7100")
	as.NoError(err)
	as.Equal("memory", p.engine)
}

func TestValidation(t *testing.T) {
	as := require.New(t)

	_, err := runServerCommand("--engine", "rocksdb")
	as.ErrorContains(err, "unknown storage engine")

	_, err = runServerCommand("--engine", "sqlite")
	as.ErrorContains(err, "data-dir")

	_, err = runServerCommand("--replicas", "0")
	as.Error(err)

	_, err = runServerCommand("--max-body", "lots")
	as.ErrorContains(err, "max-body")

	_, err = runServerCommand("--advertise", "no-port")
	as.Error(err)

	p, err := runServerCommand("--listen", "127.0.0.1:7200")
	as.NoError(err)
	as.Equal("127.0.0.1:7200", p.advertise)
}
