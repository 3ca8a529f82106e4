package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"taskdash/internal/lifecycle"
	"taskdash/internal/logging"
	"taskdash/internal/registry"
	"taskdash/internal/settings"
	"taskdash/internal/task"
)

// errTasksFailed is returned when the run finished with failed tasks. The
// summary has already been printed.
var errTasksFailed = errors.New("tasks failed")

func main() {
	if err := newRootCmd().Execute(); err != nil {
		if !errors.Is(err, errTasksFailed) {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
		}
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string
	var themeFlag string

	root := &cobra.Command{
		Use:           "taskdash [-- args]",
		Short:         "Run a task graph in a terminal dashboard",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDashboard(cmd.Context(), cmd.OutOrStdout(), configPath, themeFlag, args)
		},
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", defaultConfigName, "path to task file")
	root.Flags().StringVarP(&themeFlag, "theme", "t", "", "theme override: auto, light, or dark")

	run := &cobra.Command{
		Use:   "run [-- args]",
		Short: "Run the task file (default)",
		RunE:  root.RunE,
	}
	run.Flags().StringVarP(&themeFlag, "theme", "t", "", "theme override: auto, light, or dark")

	root.AddCommand(run, newInitCmd(&configPath), newOrphansCmd())
	return root
}

func newInitCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Write a starter task file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := runInit(*configPath); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created %s. Edit it, then re-run taskdash.\n", *configPath)
			return nil
		},
	}
}

func newOrphansCmd() *cobra.Command {
	var clearEntries bool
	cmd := &cobra.Command{
		Use:   "orphans",
		Short: "List tasks left running by a dashboard that did not shut down",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := settings.Load()
			if err != nil {
				return err
			}
			return listOrphans(cmd.Context(), cmd.OutOrStdout(), s.RegistryPath(), clearEntries)
		},
	}
	cmd.Flags().BoolVar(&clearEntries, "clear", false, "remove the listed entries")
	return cmd
}

func listOrphans(ctx context.Context, out io.Writer, path string, clearEntries bool) error {
	reg, err := registry.Open(path)
	if err != nil {
		return err
	}
	defer reg.Close()

	ids, err := reg.List(ctx)
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		fmt.Fprintln(out, "No orphaned tasks.")
		return nil
	}
	for _, id := range ids {
		fmt.Fprintln(out, id)
		if clearEntries {
			if err := reg.Remove(ctx, id); err != nil {
				return err
			}
		}
	}
	if clearEntries {
		fmt.Fprintf(out, "Cleared %d entries.\n", len(ids))
	}
	return nil
}

func runDashboard(ctx context.Context, out io.Writer, configPath, themeFlag string, args []string) error {
	cfg, err := LoadConfig(configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) && configPath == defaultConfigName {
			return offerInit(configPath, os.Stdin, out)
		}
		return fmt.Errorf("config: %w", err)
	}

	s, err := settings.Load()
	if err != nil {
		return err
	}
	if cfg.Shell != "" {
		s.Shell = cfg.Shell
	}

	theme := s.Theme
	if cfg.Theme != "" {
		theme = cfg.Theme
	}
	if strings.TrimSpace(themeFlag) != "" {
		theme = strings.TrimSpace(themeFlag)
	}
	applyTheme(theme)

	logger, logFile, err := logging.Open(s.LogPath(), s.LogLevel)
	if err != nil {
		return err
	}
	defer logFile.Close()
	logger = logger.With("run", uuid.NewString())
	logger.Info("dashboard starting", "config", configPath, "tasks", len(cfg.Tasks))

	tasks, err := plannedTasks(cfg)
	if err != nil {
		return err
	}
	lc, err := lifecycle.New(ctx, lifecycle.Options{
		Tasks:    tasks,
		Targets:  targetNames(tasks),
		Title:    cfg.Title,
		Settings: s,
		Logger:   logger,
	})
	if err != nil {
		return err
	}
	defer lc.Close()

	h, err := newHost(hostOptions{
		Config:    cfg,
		Lifecycle: lc,
		Cache:     newOutputCache(s.CacheDir()),
		Logger:    logger,
		Args:      strings.Join(args, " "),
	})
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	if err := lc.EnterInteractiveMode(cancel); err != nil {
		return err
	}

	if err := h.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("run stopped", "err", err)
	}
	lc.Wait()
	h.StopContinuous()
	lc.RestoreTerminal()

	return printSummary(out, h.Summary(), lc.Orphans())
}

func printSummary(out io.Writer, counts map[task.Status]int, orphans []string) error {
	var parts []string
	for _, status := range []task.Status{
		task.StatusSuccess,
		task.StatusLocalCache,
		task.StatusFailure,
		task.StatusSkipped,
		task.StatusStopped,
	} {
		if n := counts[status]; n > 0 {
			parts = append(parts, fmt.Sprintf("%d %s", n, status))
		}
	}
	if len(parts) == 0 {
		fmt.Fprintln(out, "No tasks finished.")
	} else {
		fmt.Fprintln(out, strings.Join(parts, ", "))
	}
	if len(orphans) > 0 {
		fmt.Fprintf(out, "%d tasks were left running by an earlier dashboard; see `taskdash orphans`.\n", len(orphans))
	}
	if counts[task.StatusFailure] > 0 {
		return errTasksFailed
	}
	return nil
}

func targetNames(tasks []task.Task) []string {
	seen := map[string]bool{}
	var names []string
	for _, t := range tasks {
		name := t.Target.Target
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		names = append(names, name)
	}
	return names
}

func applyTheme(theme string) {
	switch strings.ToLower(strings.TrimSpace(theme)) {
	case "light":
		lipgloss.SetHasDarkBackground(false)
	case "dark":
		lipgloss.SetHasDarkBackground(true)
	default:
		if os.Getenv("TMUX") != "" {
			if dark, ok := detectDarkBackgroundFromEnv(); ok {
				lipgloss.SetHasDarkBackground(dark)
			}
		}
	}
}

func detectDarkBackgroundFromEnv() (bool, bool) {
	value := strings.TrimSpace(os.Getenv("COLORFGBG"))
	if value == "" {
		return false, false
	}
	parts := strings.Split(value, ";")
	last := strings.TrimSpace(parts[len(parts)-1])
	if last == "" || strings.EqualFold(last, "default") {
		return false, false
	}
	bg, err := strconv.Atoi(last)
	if err != nil {
		return false, false
	}
	return bg <= 6, true
}
