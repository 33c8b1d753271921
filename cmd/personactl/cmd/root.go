package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	persona "github.com/pilab-dev/persona-client"
	"github.com/pilab-dev/persona-client/cache"
	"github.com/pilab-dev/persona-client/config"
	"github.com/pilab-dev/persona-client/internal/telemetry"
	"github.com/pilab-dev/persona-client/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"github.com/spf13/cobra"
)

const appName = "personactl"

// buildVersion is set with -ldflags "-X .../cmd.buildVersion=...".
var buildVersion = "dev"

// app is the state shared by every command of one invocation.
type app struct {
	cfgFile  string
	logLevel string
	trace    bool
	metrics  bool

	shutdownTracing telemetry.ShutdownFunc
	registry        *prometheus.Registry

	cfg    *config.Config
	logger log.Logger
	cache  cache.Provider
	client *persona.Client
	ui     *ui
}

func newApp() *app {
	return &app{ui: newUI()}
}

// NewRootCmd builds the personactl command tree.
func NewRootCmd() *cobra.Command {
	return newApp().rootCmd()
}

func (a *app) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           appName,
		Short:         "personactl talks to persona, babel and manifesto",
		Long:          `A command-line interface for obtaining and validating persona OAuth tokens, looking up users and requesting manifesto archives.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.init(cmd.Context())
		},
		PersistentPostRunE: func(cmd *cobra.Command, _ []string) error {
			return a.close(cmd.Context(), cmd.ErrOrStderr())
		},
	}

	root.PersistentFlags().StringVar(&a.cfgFile, "config", "", "config file (default is $HOME/.persona/persona.yaml)")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "log level override (debug, info, warn, error)")
	root.PersistentFlags().BoolVar(&a.trace, "trace", false, "print OpenTelemetry spans to stderr")
	root.PersistentFlags().BoolVar(&a.metrics, "metrics", false, "print client metrics to stderr on exit")

	root.AddCommand(newTokenCmd(a), newUserCmd(a), newArchiveCmd(a))

	return root
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	ctx := context.Background()
	a := newApp()
	if err := a.rootCmd().ExecuteContext(ctx); err != nil {
		// PersistentPostRunE does not run after a failed command.
		if cerr := a.close(ctx, os.Stderr); cerr != nil {
			fmt.Fprintln(os.Stderr, a.ui.err("error:"), cerr)
		}
		fmt.Fprintln(os.Stderr, a.ui.err("error:"), err)
		os.Exit(1)
	}
}

func (a *app) init(ctx context.Context) error {
	cfg, err := config.LoadConfig(a.cfgFile)
	if err != nil {
		return err
	}
	if a.logLevel != "" {
		cfg.Log.Level = a.logLevel
	}

	if a.trace {
		shutdown, err := telemetry.InitTracing(appName, buildVersion, os.Stderr)
		if err != nil {
			return fmt.Errorf("failed to initialise tracing: %w", err)
		}
		a.shutdownTracing = shutdown
	} else {
		telemetry.SetPropagator()
	}

	if a.metrics {
		a.registry = prometheus.NewRegistry()
		persona.RegisterMetrics(a.registry)
	}

	a.cfg = cfg
	a.logger = cfg.Logger().With(log.Fields{"app": appName})
	a.logger.Debug(ctx, "configuration loaded", log.Fields{"host": cfg.Host, "cache": cfg.Cache.Backend})

	return nil
}

// persona lazily builds the persona client, so commands that never reach
// persona do not require its configuration.
func (a *app) persona() (*persona.Client, error) {
	if a.client != nil {
		return a.client, nil
	}

	provider, err := a.cfg.CacheProvider()
	if err != nil {
		return nil, err
	}
	a.cache = provider

	cfg, err := a.cfg.PersonaConfig(provider, a.logger)
	if err != nil {
		return nil, err
	}
	client, err := persona.New(cfg)
	if err != nil {
		return nil, err
	}
	a.client = client

	return client, nil
}

// close flushes everything init and persona opened. It is safe to call more
// than once.
func (a *app) close(ctx context.Context, w io.Writer) error {
	var errs []error

	if a.registry != nil {
		errs = append(errs, writeMetrics(w, a.registry))
		a.registry = nil
	}
	if a.shutdownTracing != nil {
		errs = append(errs, a.shutdownTracing(ctx))
		a.shutdownTracing = nil
	}
	if closer, ok := a.cache.(io.Closer); ok {
		errs = append(errs, closer.Close())
	}
	a.cache = nil

	return errors.Join(errs...)
}

func writeMetrics(w io.Writer, g prometheus.Gatherer) error {
	families, err := g.Gather()
	if err != nil {
		return fmt.Errorf("failed to gather metrics: %w", err)
	}

	enc := expfmt.NewEncoder(w, expfmt.NewFormat(expfmt.TypeTextPlain))
	for _, mf := range families {
		if err := enc.Encode(mf); err != nil {
			return fmt.Errorf("failed to encode metrics: %w", err)
		}
	}

	return nil
}

// credentials returns the client id and secret from flags, then config. A
// missing secret is prompted for when stdin is a terminal.
func (a *app) credentials(clientID, clientSecret string) (string, string, error) {
	if clientID == "" {
		clientID = a.cfg.ClientID
	}
	if clientSecret == "" {
		clientSecret = a.cfg.ClientSecret
	}
	if clientID == "" {
		return "", "", errors.New("client id is required via --client-id or client_id in config")
	}
	if clientSecret == "" {
		secret, err := promptSecret("Client secret: ")
		if err != nil {
			return "", "", err
		}
		clientSecret = secret
	}

	return clientID, clientSecret, nil
}

// bearer returns token, or obtains one with the configured client credentials.
func (a *app) bearer(ctx context.Context, token string) (string, error) {
	if token != "" {
		return token, nil
	}

	client, err := a.persona()
	if err != nil {
		return "", err
	}
	id, secret, err := a.credentials("", "")
	if err != nil {
		return "", err
	}
	t, err := client.Tokens.ObtainNewToken(ctx, id, secret)
	if err != nil {
		return "", err
	}

	return t.AccessToken, nil
}
