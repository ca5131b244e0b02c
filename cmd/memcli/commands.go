package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/MakeNowJust/heredoc"
	"github.com/pkg/errors"
	"github.com/samber/lo"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/memcli/memcli"
)

// commandDoer runs one tokenized command line against the server.
type commandDoer interface {
	Do(ctx context.Context, tokens []string) (memcli.Reply, error)
}

func newRootCommand() *cobra.Command {
	var configFile string
	v := viper.New()

	cmd := &cobra.Command{
		Use:   "memcli [flags] <command> <key> [value]",
		Short: "A command line client for the memcached text protocol",
		Long: heredoc.Docf(`
			memcli sends a single storage or retrieval command to a memcached
			server and prints the reply. Without a command it starts an
			interactive prompt.

			Storage commands:   %s
			Retrieval commands: %s
		`, joinVerbs(memcli.CategoryStorage), joinVerbs(memcli.CategoryRetrieval)),
		Example: heredoc.Doc(`
			memcli set dog bark
			memcli -p 11212 --host 10.0.0.2 get dog
			memcli append dog "ing loudly"
		`),
		Version:      version,
		Args:         cobra.ArbitraryArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(v, configFile)
			if err != nil {
				return err
			}

			logger, err := newLogger(cfg.Log)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			client := newClient(cfg, logger)
			if len(args) == 0 {
				return startInteractiveMode(client)
			}

			return execute(cmd.Context(), client, cmd.OutOrStdout(), args)
		},
	}

	flags := cmd.Flags()
	// everything after the memcached verb belongs to the command line
	flags.SetInterspersed(false)
	flags.StringVar(&configFile, "config", "", "config file (default $HOME/.memcli/config.yaml)")
	flags.String("host", defaultHost, "memcached server host")
	flags.Uint16P("port", "p", defaultPort, "memcached server port")
	flags.Duration("dial-timeout", 0, "dial timeout (default 5s)")
	flags.Duration("read-timeout", 0, "idle read timeout while waiting for a reply (default 200ms)")
	flags.Duration("write-timeout", 0, "write timeout (default 5s)")
	flags.String("log-level", "", "log level, one of: debug, info, warn(default), error")
	flags.String("log-file", "", "write JSON logs to a rotating file instead of stderr")
	flags.Bool("debug", false, "shortcut for --log-level=debug")

	if err := bindFlags(v, flags); err != nil {
		panic(err)
	}

	return cmd
}

func newClient(cfg *config, logger *zap.Logger) *memcli.Client {
	return memcli.New(cfg.Host, cfg.Port,
		memcli.WithDialTimeout(cfg.DialTimeout),
		memcli.WithReadTimeout(cfg.ReadTimeout),
		memcli.WithWriteTimeout(cfg.WriteTimeout),
		memcli.WithLogger(logger),
	)
}

func joinVerbs(category memcli.Category) string {
	return strings.Join(lo.Map(memcli.Verbs(category), func(v memcli.Verb, _ int) string {
		return string(v)
	}), ", ")
}

// execute runs tokens and prints the reply to w. Failures of the command
// itself are printed as well; only unexpected errors are returned.
func execute(ctx context.Context, client commandDoer, w io.Writer, tokens []string) error {
	reply, err := client.Do(ctx, tokens)
	if err != nil {
		return ignoreMemcliError(w, err)
	}

	printReply(w, reply)
	return nil
}

func printReply(w io.Writer, reply memcli.Reply) {
	_, _ = fmt.Fprintln(w, reply.Message())

	r, ok := reply.(*memcli.RetrievalResponse)
	if !ok || !r.Found() {
		return
	}

	if header, ok := r.Header(); ok {
		_, _ = fmt.Fprintf(w, "Key:   %s\n", header.Key)
		_, _ = fmt.Fprintf(w, "Flags: %d (0x%x)\n", header.Flags, header.Flags)
		_, _ = fmt.Fprintf(w, "Bytes: %d\n", header.Bytes)
		if header.HasCAS {
			_, _ = fmt.Fprintf(w, "CAS:   %d\n", header.CAS)
		}
	}

	_, _ = fmt.Fprintln(w, "Value:")
	for _, line := range r.Data() {
		_, _ = fmt.Fprintln(w, line)
	}
}

var memcliErrs = []error{
	memcli.ErrInsufficientArguments,
	memcli.ErrUnknownCommand,
	memcli.ErrUnexpectedArgument,
	memcli.ErrCommandNotFound,
	memcli.ErrInvalidKey,
	memcli.ErrConnectFailed,
	memcli.ErrWriteFailed,
	memcli.ErrFlushFailed,
	memcli.ErrReadFailed,
	memcli.ErrDecodeFailed,
	memcli.ErrUnparsableResponse,
	memcli.ErrUnknownIndicator,
}

// ignoreMemcliError prints errors raised by memcli and swallows them, the
// process still exits with 0 in that case.
func ignoreMemcliError(w io.Writer, err error) error {
	if err == nil {
		return nil
	}

	known := lo.ContainsBy(memcliErrs, func(target error) bool {
		return errors.Is(err, target)
	})
	if !known {
		return err
	}

	_, _ = fmt.Fprintf(w, "Error: %v\n", err)
	return nil
}
