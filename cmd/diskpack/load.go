package main

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"sort"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/bamsammich/diskpack/internal/catalog"
	"github.com/bamsammich/diskpack/internal/loader"
	"github.com/bamsammich/diskpack/internal/scanner"
)

func newLoadCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "load",
		Short: "Load inventory CSV files into the catalog",
		Long: `Load inventory CSV files into the catalog. Rows already present under their
natural key (host address, directory name and location, file name and
location, disk batch and serial) are skipped, so loads can be repeated.
Load directories before files: a file's directory is found by its location.`,
	}

	kinds := []struct {
		use   string
		short string
		load  func(*loader.Loader, context.Context, string) (loader.Result, error)
	}{
		{"hosts", "Load hosts (HostID,HostAddr)", (*loader.Loader).LoadHosts},
		{"dirs", "Load directories (DirID,DirName,DirSize,Location,HostID)", (*loader.Loader).LoadDirectories},
		{"files", "Load files (FileID,FileName,ExtName,FileSize,Location)", (*loader.Loader).LoadFiles},
		{"dests", "Load destinations (DestID,DiskBatch,DiskSN,DiskModel,DiskCapacity,DiskPath)",
			(*loader.Loader).LoadDestinations},
	}
	for _, k := range kinds {
		cmd.AddCommand(&cobra.Command{
			Use:   k.use + " FILE",
			Short: k.short,
			Args:  cobra.ExactArgs(1),
			RunE: a.withCatalog(func(ctx context.Context, cmd *cobra.Command, cat *catalog.Catalog, args []string) error {
				res, err := k.load(loader.New(cat, afero.NewOsFs(), a.logger), ctx, args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", k.use, res)
				return nil
			}),
		})
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "dictionary DIR",
		Short: "Load " + loader.HostsFile + ", " + loader.DirectoriesFile + ", " + loader.FilesFile + " and " + loader.DestinationsFile + " as one unit",
		Args:  cobra.ExactArgs(1),
		RunE: a.withCatalog(func(ctx context.Context, cmd *cobra.Command, cat *catalog.Catalog, args []string) error {
			results, err := loader.New(cat, afero.NewOsFs(), a.logger).LoadDictionary(ctx, args[0])
			if err != nil {
				return err
			}
			kinds := make([]string, 0, len(results))
			for k := range results {
				kinds = append(kinds, string(k))
			}
			sort.Strings(kinds)
			for _, k := range kinds {
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", k, results[catalog.Kind(k)])
			}
			return nil
		}),
	})
	return cmd
}

func newScanCmd(a *app) *cobra.Command {
	var from string
	cmd := &cobra.Command{
		Use:   "scan [PATH...]",
		Short: "Write an inventory CSV of directory trees to stdout",
		Long: `Walk each PATH (or every Location listed in the --from CSV) depth first and
write one CSV row per file and directory, children before their parent.
Directory rows carry the total size, file count, subdirectory count and
depth of everything below them.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if from == "" && len(args) == 0 {
				return errors.New("scan needs at least one PATH or --from")
			}
			ctx := cmd.Context()
			fsys := afero.NewOsFs()
			w := csv.NewWriter(cmd.OutOrStdout())

			if from != "" {
				f, err := fsys.Open(from)
				if err != nil {
					return fmt.Errorf("open %s: %w", from, err)
				}
				defer f.Close()
				infos, err := scanner.ScanLocations(ctx, fsys, f, w)
				if err != nil {
					return err
				}
				a.logger.Info("scan complete", "locations", len(infos))
				if len(args) == 0 {
					return nil
				}
			} else if err := scanner.WriteHeader(w); err != nil {
				return err
			}

			for _, root := range args {
				info, err := scanner.Scan(ctx, fsys, root, w)
				if err != nil {
					return err
				}
				a.logger.Info("scanned", "path", info.Path,
					"size", info.Size, "files", info.FileNum, "dirs", info.DirNum)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "CSV file with a Location column listing the trees to scan")
	return cmd
}
