package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/brettbedarf/treefs/filesystem"
	"github.com/brettbedarf/treefs/internal/util"
	"github.com/brettbedarf/treefs/storage"
	"github.com/spf13/cobra"
)

var mkfsForce bool

var mkfsCmd = &cobra.Command{
	Use:   "mkfs",
	Short: "Format the configured block store with an empty root directory",
	Args:  cobra.NoArgs,
	RunE:  runMkfs,
}

func init() {
	mkfsCmd.Flags().BoolVarP(&mkfsForce, "force", "f", false, "Format even if the store already holds a volume")
}

func runMkfs(cmd *cobra.Command, _ []string) (err error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger := util.GetLogger("mkfs")

	dev, err := storage.NewDevice(cmd.Context(), cfg.Store)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := dev.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	if existing, err := storage.Open(dev, cfg.Store.BlockSize); err == nil && !mkfsForce {
		return fmt.Errorf("store already holds volume %s; use --force to overwrite", existing.VolumeID())
	} else if err != nil && !errors.Is(err, storage.ErrNotFormatted) && !mkfsForce {
		return err
	}

	store, err := storage.Format(dev, cfg.Store.BlockSize, uint64(cfg.Store.BlockCount))
	if err != nil {
		return err
	}
	if _, err := filesystem.Load(cfg, store, uint32(os.Getuid()), uint32(os.Getgid())); err != nil {
		return err
	}

	logger.Info().
		Str("backend", string(cfg.Store.Backend)).
		Str("volume", store.VolumeID()).
		Uint64("blocks", store.TotalBlocks()).
		Uint64("free", store.FreeBlocks()).
		Msg("Formatted store")
	return nil
}
