package main

import (
	"context"
	"fmt"
	"io/ioutil"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/ngaut/log"
	"github.com/pingcap-incubator/tinydb/config"
	"github.com/pingcap-incubator/tinydb/session"
	"github.com/pingcap/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
)

var (
	configPath string
	logLevel   string
	statusAddr string
	walDir     string
)

var (
	gitHash = "None"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "tinydb",
		Short: "A small in-memory MVCC relational database",
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file path")
	rootCmd.PersistentFlags().StringVarP(&logLevel, "log-level", "L", "", "log level, overrides the config file")
	rootCmd.PersistentFlags().StringVar(&statusAddr, "status", "", "serve prometheus metrics on this address")
	rootCmd.PersistentFlags().StringVar(&walDir, "wal", "", "enable the WAL and write it to this directory")

	rootCmd.AddCommand(
		newShellCommand(),
		newExecCommand(),
	)
	cobra.EnablePrefixMatching = true

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	conf := config.NewDefaultConfig()
	if configPath != "" {
		var err error
		if conf, err = config.Load(configPath); err != nil {
			return nil, err
		}
	}
	if logLevel != "" {
		conf.LogLevel = logLevel
	}
	if walDir != "" {
		conf.WAL.Enabled = true
		conf.WAL.Dir = walDir
	}
	return conf, errors.Trace(conf.Validate())
}

// openEngine loads the config, sets up logging and the status server and starts an engine.
func openEngine() (*session.Engine, error) {
	conf, err := loadConfig()
	if err != nil {
		return nil, err
	}
	log.SetLevelByString(conf.LogLevel)
	log.SetFlags(log.Ldate | log.Ltime | log.Lmicroseconds | log.Lshortfile)
	log.Info("gitHash:", gitHash)
	log.Infof("conf %+v", conf)

	if statusAddr != "" {
		go func() {
			log.Infof("listening on %v", statusAddr)
			http.Handle("/metrics", promhttp.Handler())
			http.HandleFunc("/status", func(writer http.ResponseWriter, request *http.Request) {
				writer.WriteHeader(http.StatusOK)
			})
			if err := http.ListenAndServe(statusAddr, nil); err != nil {
				log.Errorf("status server: %v", err)
			}
		}()
	}
	return session.NewEngine(conf)
}

// signalContext is cancelled on the first termination signal, interrupting the running statement.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh,
		syscall.SIGHUP,
		syscall.SIGTERM,
		syscall.SIGQUIT)
	go func() {
		select {
		case sig := <-sigCh:
			log.Infof("Got signal [%s] to exit.", sig)
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}

func newExecCommand() *cobra.Command {
	var file string
	m := &cobra.Command{
		Use:   "exec [sql]",
		Short: "Run the statements given as argument or read from a file",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var script string
			switch {
			case len(args) == 1:
				script = args[0]
			case file != "":
				data, err := ioutil.ReadFile(file)
				if err != nil {
					return errors.Trace(err)
				}
				script = string(data)
			default:
				return errors.New("either a statement or --file is required")
			}
			return runExec(script)
		},
	}
	m.Flags().StringVarP(&file, "file", "f", "", "read statements from this file")
	return m
}

func runExec(script string) error {
	engine, err := openEngine()
	if err != nil {
		return err
	}
	defer engine.Close()
	ctx, cancel := signalContext()
	defer cancel()

	s := engine.NewSession()
	defer s.Close()
	results, err := s.ExecuteScript(ctx, script)
	for _, rs := range results {
		printResult(os.Stdout, rs)
	}
	return err
}
