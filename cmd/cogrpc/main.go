package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"go.uber.org/zap"

	"relaynet.dev/cogrpc/cogrpc"
	"relaynet.dev/cogrpc/config"
	"relaynet.dev/cogrpc/observability"
	"relaynet.dev/cogrpc/spool"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, out io.Writer, errOut io.Writer) int {
	return runWith(ctx, args, out, errOut)
}

// runWith is run with extra options for every client the command builds.
func runWith(ctx context.Context, args []string, out io.Writer, errOut io.Writer, opts ...cogrpc.Option) int {
	if len(args) == 0 {
		printUsage(errOut)
		return 2
	}

	switch args[0] {
	case "deliver":
		return cmdDeliver(ctx, args[1:], out, errOut, opts)
	case "collect":
		return cmdCollect(ctx, args[1:], out, errOut, opts)
	case "help", "-h", "--help":
		printUsage(out)
		return 0
	default:
		fmt.Fprintf(errOut, "unknown command: %s\n\n", args[0])
		printUsage(errOut)
		return 2
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "cogrpc: exchange cargo with a CogRPC relay")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  cogrpc deliver [--config <file>] [--server <url>] [--require-tls=true|false] [--outbox <dir>] [<file> ...]")
	fmt.Fprintln(w, "  cogrpc collect [--config <file>] [--server <url>] [--require-tls=true|false] [--cca <file>] [--inbox <dir>]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Notes:")
	fmt.Fprintln(w, "  - files given to deliver are added to the outbox first; the whole outbox is then delivered")
	fmt.Fprintln(w, "  - acknowledged cargo is removed from the outbox; the rest stays for the next run")
	fmt.Fprintln(w, "  - collected cargo is stored in the inbox before it is acknowledged")
	fmt.Fprintln(w, "  - configuration is read from cogrpc.yaml and COGRPC_* environment variables")
}

type commonFlags struct {
	configPath string
	server     string
	requireTLS bool
}

func (c *commonFlags) add(fs *flag.FlagSet) {
	fs.StringVar(&c.configPath, "config", "", "Config file (default: $COGRPC_CONFIG or ./cogrpc.yaml)")
	fs.StringVar(&c.server, "server", "", "Relay URL, http(s)://host[:port]")
	fs.BoolVar(&c.requireTLS, "require-tls", true, "Refuse plaintext relay URLs")
}

// load reads the configuration and applies the flags that were set.
func (c *commonFlags) load(fs *flag.FlagSet) (*config.Config, error) {
	cfg, err := config.Load(c.configPath)
	if err != nil {
		return nil, err
	}
	var serr error
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "server":
			if err := config.ValidateServer(c.server); err != nil {
				serr = err
			}
			cfg.Server = c.server
		case "require-tls":
			cfg.RequireTLS = c.requireTLS
		}
	})
	if serr != nil {
		return nil, serr
	}
	return cfg, nil
}

func newClient(cfg *config.Config, logger *zap.Logger, extra []cogrpc.Option) (*cogrpc.Client, error) {
	opts := []cogrpc.Option{
		cogrpc.WithRequireTLS(cfg.RequireTLS),
		cogrpc.WithCallDeadline(cfg.CallDeadline),
		cogrpc.WithCloseGrace(cfg.CloseGrace),
		cogrpc.WithCompatHandshake(cfg.CompatHandshake),
		cogrpc.WithLogger(logger),
	}
	return cogrpc.New(cfg.Server, append(opts, extra...)...)
}

func cmdDeliver(ctx context.Context, args []string, out io.Writer, errOut io.Writer, opts []cogrpc.Option) int {
	fs := flag.NewFlagSet("deliver", flag.ContinueOnError)
	fs.SetOutput(errOut)
	var common commonFlags
	common.add(fs)
	var outboxDir string
	fs.StringVar(&outboxDir, "outbox", "", "Outbox spool directory (overrides spool.outbox)")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	cfg, err := common.load(fs)
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 2
	}
	if outboxDir != "" {
		cfg.Spool.Outbox = outboxDir
	}
	if cfg.Server == "" {
		fmt.Fprintln(errOut, "missing --server")
		return 2
	}

	logger, err := observability.SetupLogger(cfg.Log)
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	defer func() { _ = logger.Sync() }()

	outbox, err := spool.New(cfg.Spool.Outbox)
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	for _, p := range fs.Args() {
		b, err := os.ReadFile(p)
		if err != nil {
			fmt.Fprintf(errOut, "read %s: %v\n", filepath.Base(p), err)
			return 1
		}
		id, err := outbox.Put(b)
		if err != nil {
			fmt.Fprintf(errOut, "spool %s: %v\n", filepath.Base(p), err)
			return 1
		}
		logger.Debug("spooled cargo", zap.String("file", p), zap.Stringer("cid", id))
	}

	ids, err := outbox.List()
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	if len(ids) == 0 {
		_, _ = fmt.Fprintln(out, "delivered 0/0")
		return 0
	}
	items := make([]cogrpc.CargoItem, 0, len(ids))
	for _, id := range ids {
		items = append(items, cogrpc.CargoItem{
			ID:   id.String(),
			Open: func() (io.ReadCloser, error) { return outbox.Open(id) },
		})
	}

	client, err := newClient(cfg, logger, opts)
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	defer client.Close()

	stream, err := client.DeliverCargo(ctx, items)
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	defer stream.Close()

	acked := 0
	code := 0
	for {
		ackID, err := stream.Recv()
		if err == io.EOF {
			break
		}
		if err != nil {
			fmt.Fprintf(errOut, "deliver: %v\n", err)
			code = 1
			break
		}
		acked++
		_, _ = fmt.Fprintf(out, "acked %s\n", ackID)
		id, err := spool.ParseID(ackID)
		if err != nil {
			continue
		}
		if err := outbox.Remove(id); err != nil && !spool.IsNotFound(err) {
			logger.Warn("remove delivered cargo", zap.String("cid", ackID), zap.Error(err))
		}
	}
	_, _ = fmt.Fprintf(out, "delivered %d/%d\n", acked, len(items))
	return code
}

func cmdCollect(ctx context.Context, args []string, out io.Writer, errOut io.Writer, opts []cogrpc.Option) int {
	fs := flag.NewFlagSet("collect", flag.ContinueOnError)
	fs.SetOutput(errOut)
	var common commonFlags
	common.add(fs)
	var ccaPath, inboxDir string
	fs.StringVar(&ccaPath, "cca", "", "Cargo Collection Authorization file (overrides cca_file)")
	fs.StringVar(&inboxDir, "inbox", "", "Inbox spool directory (overrides spool.inbox)")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() != 0 {
		fmt.Fprintln(errOut, "usage: cogrpc collect [flags]")
		return 2
	}

	cfg, err := common.load(fs)
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 2
	}
	if ccaPath != "" {
		cfg.CCAFile = ccaPath
	}
	if inboxDir != "" {
		cfg.Spool.Inbox = inboxDir
	}
	if cfg.Server == "" {
		fmt.Fprintln(errOut, "missing --server")
		return 2
	}
	if cfg.CCAFile == "" {
		fmt.Fprintln(errOut, "missing --cca")
		return 2
	}

	logger, err := observability.SetupLogger(cfg.Log)
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	defer func() { _ = logger.Sync() }()

	inbox, err := spool.New(cfg.Spool.Inbox)
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}

	client, err := newClient(cfg, logger, opts)
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	defer client.Close()

	stream, err := client.CollectCargo(ctx, func() ([]byte, error) {
		return os.ReadFile(cfg.CCAFile)
	})
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	defer stream.Close()

	collected := 0
	for {
		item, err := stream.Recv()
		if err == io.EOF {
			break
		}
		if cogrpc.IsKind(err, cogrpc.KindCollectionRefused) {
			fmt.Fprintln(errOut, "collect: the relay refused the CCA; obtain a new one")
			return 1
		}
		if err != nil {
			fmt.Fprintf(errOut, "collect: %v\n", err)
			return 1
		}

		id, err := inbox.Put(item.Payload)
		if err != nil {
			// Unacknowledged cargo is sent again on the next collection.
			fmt.Fprintf(errOut, "store cargo %s: %v\n", item.ID, err)
			return 1
		}
		if err := item.Ack(); err != nil {
			if errors.Is(err, cogrpc.ErrStreamClosed) {
				logger.Warn("collection ended before ack", zap.String("cargo_id", item.ID))
			} else {
				fmt.Fprintf(errOut, "ack %s: %v\n", item.ID, err)
				return 1
			}
		}
		collected++
		_, _ = fmt.Fprintf(out, "collected %s %s\n", item.ID, id)
	}
	_, _ = fmt.Fprintf(out, "collected %d\n", collected)
	return 0
}
