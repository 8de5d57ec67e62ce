package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/aliskhannn/imgbatch/internal/session"
)

func init() {
	rootCmd.AddCommand(processCmd)

	processCmd.Flags().StringArrayP("set", "s", nil, "processing option as key=value (width, height, size, aspect, format, quality, compression, watermark)")
	processCmd.Flags().StringP("out", "o", "", "directory for results (default export.dir)")
	processCmd.Flags().Bool("zip", false, "write one zip archive instead of separate files (registered accounts)")
}

var processCmd = &cobra.Command{
	Use:   "process <file>...",
	Short: "Resize and compress files in one run, then export the results",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runProcess,
}

func runProcess(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	a, err := newApp(cfg, persist)
	if err != nil {
		return err
	}
	defer a.close()

	sets, _ := cmd.Flags().GetStringArray("set")
	opts, err := applyOptions(a.session.Store().Options(), sets)
	if err != nil {
		return err
	}
	if err := a.session.SetOptions(opts); err != nil {
		return err
	}

	files := make([]session.File, 0, len(args))
	for _, p := range args {
		f, err := session.LocalFile(p)
		if err != nil {
			return err
		}
		files = append(files, f)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	out := cmd.OutOrStdout()

	if _, err := a.session.Add(ctx, files); err != nil {
		return err
	}
	printOptions(out, opts)

	res, err := a.session.Process(ctx, progressPrinter(out))
	if err != nil {
		return err
	}
	printResult(out, res)

	dir, _ := cmd.Flags().GetString("out")
	if dir == "" {
		dir = cfg.Export.Dir
	}

	if zip, _ := cmd.Flags().GetBool("zip"); zip {
		path, n, err := a.session.ExportAll(ctx, dir)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "%s %d files -> %s\n", green("exported"), n, path)
		return nil
	}

	for _, it := range a.session.Store().Items() {
		if it.ResultRef == "" {
			continue
		}
		path, err := a.session.ExportItem(ctx, it.ID, dir)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "%s %s\n", green("exported"), path)
	}

	return nil
}
