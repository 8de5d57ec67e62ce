package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"

	"github.com/aliskhannn/imgbatch/internal/session"
)

func init() {
	rootCmd.AddCommand(shellCmd)
}

var shellCmd = &cobra.Command{
	Use:   "shell",
	Short: "Build and process a batch interactively",
	Args:  cobra.NoArgs,
	RunE:  runShell,
}

var errQuit = errors.New("quit")

const shellHelp = `  o <path>...      add files or directories
  p                process the batch
  d [dir]          download all results as one zip (registered accounts)
  s <n> [dir]      save result n
  ls               list the batch
  rm <n>           remove item n
  c                clear the batch
  u / r            undo / redo
  set key=value... change options (size, width, height, aspect, format, quality, compression, watermark)
  quota            show today's allowance
  q                quit`

var imageExts = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".webp": true,
	".gif": true, ".bmp": true, ".tif": true, ".tiff": true,
}

func runShell(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	a, err := newApp(cfg, persist)
	if err != nil {
		return err
	}
	defer a.close()

	home, _ := os.UserHomeDir()
	rl, err := readline.NewEx(&readline.Config{
		Prompt:            bold("imgbatch> "),
		HistoryFile:       filepath.Join(home, ".imgbatch", "history"),
		InterruptPrompt:   "^C",
		EOFPrompt:         "q",
		HistorySearchFold: true,
		AutoComplete: readline.NewPrefixCompleter(
			readline.PcItem("o"), readline.PcItem("p"), readline.PcItem("d"), readline.PcItem("s"),
			readline.PcItem("ls"), readline.PcItem("rm"), readline.PcItem("c"),
			readline.PcItem("u"), readline.PcItem("r"), readline.PcItem("quota"), readline.PcItem("help"),
			readline.PcItem("set",
				readline.PcItem("size="), readline.PcItem("format="), readline.PcItem("quality="),
				readline.PcItem("compression="), readline.PcItem("aspect="), readline.PcItem("watermark="),
			),
		),
		Stdin:  readline.NewCancelableStdin(os.Stdin),
		Stdout: os.Stdout,
		Stderr: os.Stderr,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize readline: %w", err)
	}
	defer rl.Close()

	sh := &shell{app: a, out: rl.Stdout(), exportDir: cfg.Export.Dir}

	fmt.Fprintf(sh.out, "%s  type %s for commands\n", bold("imgbatch"), cyan("help"))
	printOptions(sh.out, a.session.Store().Options())

	for {
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			if len(line) == 0 {
				return nil
			}
			continue
		}
		if errors.Is(err, io.EOF) {
			return nil
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		if err := sh.exec(line); err != nil {
			if errors.Is(err, errQuit) {
				return nil
			}
			fmt.Fprintln(sh.out, errorText(err.Error()))
		}
	}
}

// shell executes one REPL command at a time against the app's session.
type shell struct {
	app       *app
	out       io.Writer
	exportDir string
}

func (sh *shell) exec(line string) error {
	fields := strings.Fields(line)
	name, args := fields[0], fields[1:]
	s := sh.app.session

	switch name {
	case "q", "quit", "exit":
		return errQuit
	case "help", "?":
		fmt.Fprintln(sh.out, shellHelp)
	case "o", "open":
		if len(args) == 0 {
			return errors.New("usage: o <path>...")
		}
		return sh.open(args)
	case "p", "process":
		return sh.process()
	case "d", "download":
		path, n, err := s.ExportAll(context.Background(), sh.dir(args, 0))
		if err != nil {
			return err
		}
		fmt.Fprintf(sh.out, "%s %d files -> %s\n", green("exported"), n, path)
	case "s", "save":
		it, err := sh.pick(args)
		if err != nil {
			return err
		}
		path, err := s.ExportItem(context.Background(), it, sh.dir(args, 1))
		if err != nil {
			return err
		}
		fmt.Fprintf(sh.out, "%s %s\n", green("exported"), path)
	case "ls", "list":
		printItems(sh.out, s.Store().Items())
	case "rm", "remove":
		id, err := sh.pick(args)
		if err != nil {
			return err
		}
		if err := s.Remove(id); err != nil {
			return err
		}
		printItems(sh.out, s.Store().Items())
	case "c", "clear":
		if err := s.Clear(); err != nil {
			return err
		}
		fmt.Fprintln(sh.out, gray("batch cleared"))
	case "u", "undo":
		return sh.history(s.Undo, "nothing to undo")
	case "r", "redo":
		return sh.history(s.Redo, "nothing to redo")
	case "set":
		opts, err := applyOptions(s.Store().Options(), args)
		if err != nil {
			return err
		}
		if err := s.SetOptions(opts); err != nil {
			return err
		}
		printOptions(sh.out, opts)
	case "quota":
		q, err := s.Quota(context.Background())
		if err != nil {
			return err
		}
		printQuota(sh.out, s.Actor(), q)
	default:
		return fmt.Errorf("unknown command %q, type help", name)
	}

	return nil
}

func (sh *shell) open(args []string) error {
	paths, err := expandPaths(args)
	if err != nil {
		return err
	}
	if len(paths) == 0 {
		return errors.New("no image files found")
	}

	files := make([]session.File, 0, len(paths))
	for _, p := range paths {
		f, err := session.LocalFile(p)
		if err != nil {
			return err
		}
		files = append(files, f)
	}

	added, err := sh.app.session.Add(context.Background(), files)
	if err != nil {
		return err
	}

	fmt.Fprintf(sh.out, "%s %d files\n", green("added"), len(added))
	printItems(sh.out, sh.app.session.Store().Items())

	return nil
}

func (sh *shell) process() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	res, err := sh.app.session.Process(ctx, progressPrinter(sh.out))
	if err != nil {
		return err
	}
	printResult(sh.out, res)

	return nil
}

func (sh *shell) history(step func() (bool, error), empty string) error {
	changed, err := step()
	if err != nil {
		return err
	}
	if !changed {
		fmt.Fprintln(sh.out, gray(empty))
		return nil
	}
	printItems(sh.out, sh.app.session.Store().Items())

	return nil
}

// pick resolves a 1-based item number from args[0] to an item id.
func (sh *shell) pick(args []string) (string, error) {
	if len(args) == 0 {
		return "", errors.New("item number required")
	}

	n, err := strconv.Atoi(args[0])
	items := sh.app.session.Store().Items()
	if err != nil || n < 1 || n > len(items) {
		return "", fmt.Errorf("no item %q", args[0])
	}

	return items[n-1].ID, nil
}

func (sh *shell) dir(args []string, i int) string {
	if len(args) > i {
		return args[i]
	}
	return sh.exportDir
}

// expandPaths resolves globs and directories into image file paths.
func expandPaths(args []string) ([]string, error) {
	var out []string

	for _, arg := range args {
		matches, err := filepath.Glob(arg)
		if err != nil {
			return nil, fmt.Errorf("bad pattern %q: %w", arg, err)
		}
		if len(matches) == 0 {
			matches = []string{arg}
		}

		for _, m := range matches {
			info, err := os.Stat(m)
			if err != nil {
				return nil, err
			}
			if !info.IsDir() {
				out = append(out, m)
				continue
			}

			entries, err := os.ReadDir(m)
			if err != nil {
				return nil, err
			}
			for _, e := range entries {
				if !e.IsDir() && imageExts[strings.ToLower(filepath.Ext(e.Name()))] {
					out = append(out, filepath.Join(m, e.Name()))
				}
			}
		}
	}

	return out, nil
}
