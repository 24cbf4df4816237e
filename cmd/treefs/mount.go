package main

import (
	"errors"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"syscall"

	"github.com/brettbedarf/treefs/internal/util"
	"github.com/brettbedarf/treefs/server"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
)

var umount bool

var mountCmd = &cobra.Command{
	Use:   "mount <mountpoint>",
	Short: "Load the tree from the configured store and serve it over FUSE",
	Args:  cobra.ExactArgs(1),
	RunE:  runMount,
}

func init() {
	mountCmd.Flags().BoolVarP(&umount, "umount", "u", false,
		"Unmount the fs first if needed before mounting again. Useful for debuggers that don't exit properly.")
}

func runMount(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger := util.GetLogger("main")
	mnt := args[0]
	logger.Info().Int("verbose", verbose).Str("mnt", mnt).Msg("treefs server initializing")

	// Try unmount if requested
	if umount { // send cli command
		c := exec.Command("fusermount", "-u", mnt)
		// we ignore error here if not already mounted
		c.Run() // nolint:errcheck
	}

	var reg *prometheus.Registry
	if cfg.MetricsAddr != "" {
		reg = prometheus.NewRegistry()
	}
	var registerer prometheus.Registerer
	if reg != nil {
		registerer = reg
	}
	fs, err := server.Open(cmd.Context(), cfg, registerer)
	if err != nil {
		return err
	}

	if reg != nil {
		srv := &http.Server{Addr: cfg.MetricsAddr, Handler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{})}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error().Err(err).Str("addr", cfg.MetricsAddr).Msg("Metrics server stopped")
			}
		}()
		defer srv.Close()
		logger.Info().Str("addr", cfg.MetricsAddr).Msg("Serving metrics")
	}

	// Serve
	if err := fs.Serve(mnt); err != nil {
		return err
	}

	// Setup signal handling for graceful shutdown
	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	logger.Info().Str("mountpoint", mnt).Msg("Filesystem mounted successfully")

	// Wait for termination signal
	sig := <-signalChan
	logger.Info().Str("signal", sig.String()).Msg("Received signal, unmounting filesystem")

	// Unmount the filesystem
	if err := fs.Unmount(); err != nil {
		logger.Error().Err(err).Msg("Failed to unmount filesystem")
		return err
	}
	logger.Info().Msg("Filesystem unmounted successfully")
	return nil
}
