package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"collectes/internal/calculator"
	"collectes/internal/config"
	"collectes/internal/logging"
	"collectes/internal/store"
)

// app 命令共享的运行时状态
type app struct {
	configPath string
	dataDir    string
	verbose    bool
	format     string

	cfg    *config.AppConfig
	logger *zap.Logger
	store  *store.Store
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "collectesctl",
		Short: "Ingestion, agrégation et synthèse des collectes de déchetteries",
		Long: `collectesctl importe les classeurs de pesées, reconstruit les agrégats
site × mois × catégorie, génère la feuille CALCUL POIDS et rapproche
les deux chemins de calcul (fichiers sources / base).`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init()
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.configPath, "config", "", "config.toml path (default: next to the executable)")
	pf.StringVar(&a.dataDir, "data-dir", "", "data directory (overrides config)")
	pf.BoolVarP(&a.verbose, "verbose", "v", false, "debug logging")
	pf.StringVarP(&a.format, "format", "f", formatText, "output format: text, json or yaml")

	root.AddCommand(
		a.ingestCmd(),
		a.rebuildCmd(),
		a.totalsCmd(),
		a.synthesizeCmd(),
		a.reconcileCmd(),
		a.insightsCmd(),
		a.duplicatesCmd(),
		a.classifyCmd(),
		a.siteCmd(),
	)
	return root
}

func (a *app) init() error {
	if err := validateFormat(a.format); err != nil {
		return err
	}

	path := a.configPath
	if path == "" {
		path = config.DefaultConfigPath()
	}
	cfg, _, err := config.LoadConfigFrom(path)
	if err != nil {
		return fmt.Errorf("failed to load config %s: %w", path, err)
	}
	if a.dataDir != "" {
		cfg.Data.DataDir = a.dataDir
	}
	a.cfg = cfg

	logger, err := logging.New(cfg.Log, a.verbose)
	if err != nil {
		return err
	}
	a.logger = logger
	return nil
}

// openStore 首次使用时打开数据库
func (a *app) openStore() (*store.Store, error) {
	if a.store != nil {
		return a.store, nil
	}
	if _, err := config.EnsureDataDir(a.cfg); err != nil {
		return nil, fmt.Errorf("failed to create data dir: %w", err)
	}
	st, err := store.New(config.DBPath(a.cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	a.store = st
	return st, nil
}

func (a *app) calculator() (*calculator.Calculator, error) {
	st, err := a.openStore()
	if err != nil {
		return nil, err
	}
	return calculator.NewCalculator(st, a.logger.Named("calculator")), nil
}

func (a *app) close() {
	if a.store != nil {
		_ = a.store.Close()
		a.store = nil
	}
	if a.logger != nil {
		_ = a.logger.Sync()
	}
}

// execute 运行一次命令，结束时关闭数据库
func execute(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	a := &app{}
	defer a.close()

	root := newRootCmd(a)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	return root.ExecuteContext(ctx)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := execute(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, errorStyle.Render("erreur:"), err)
		stop()
		os.Exit(1)
	}
}
