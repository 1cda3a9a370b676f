package cmd

import (
	"context"
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"parbuild/internal/config"
	"parbuild/internal/session"
	"parbuild/internal/store/sqlite"
	"parbuild/internal/worker"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show sessions and workers",
	Long:  `Display every persisted session and worker from the durable store.`,
	RunE:  runStatus,
}

var statusAll bool

func init() {
	statusCmd.Flags().BoolVarP(&statusAll, "all", "a", false, "include finished sessions")
	rootCmd.AddCommand(statusCmd)
}

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))

	activeDot   = lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Render("●")
	pausedDot   = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Render("●")
	failedDot   = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Render("●")
	finishedDot = dimStyle.Render("●")
)

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if cfg.Store.Backend != "sqlite" {
		return fmt.Errorf("status requires the sqlite store backend, got %q", cfg.Store.Backend)
	}

	st, err := sqlite.Open(cfg.Store.Path)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	ctx := context.Background()
	sessions, err := st.ListSessions(ctx)
	if err != nil {
		return err
	}
	workers, err := st.ListWorkers(ctx)
	if err != nil {
		return err
	}

	printSessions(sessions)
	fmt.Println()
	printWorkers(workers)
	return nil
}

func printSessions(sessions []*session.Session) {
	fmt.Println(headerStyle.Render("Sessions"))
	shown := 0
	for _, s := range sessions {
		if !statusAll && s.Status.IsTerminal() {
			continue
		}
		shown++
		fmt.Printf("%s %s %s\n", sessionDot(s.Status), s.Name, dimStyle.Render(s.ID))
		fmt.Printf("   %s  %.0f%% (%d/%d done, %d failed, %d in flight)\n",
			s.Status, s.Progress(), s.CompletedTasks, s.TotalTasks, s.FailedTasks, s.InProgressTasks)
		if len(s.LockedFiles) > 0 {
			fmt.Printf("   locks: %v\n", s.LockedFiles)
		}
	}
	if shown == 0 {
		fmt.Println(dimStyle.Render("  none"))
	}
}

func printWorkers(workers []*worker.Worker) {
	fmt.Println(headerStyle.Render("Workers"))
	if len(workers) == 0 {
		fmt.Println(dimStyle.Render("  none"))
		return
	}
	for _, w := range workers {
		line := fmt.Sprintf("%s %s  %s  %d done / %d failed",
			workerDot(w.Status), w.ID, w.Status, w.TasksCompleted, w.TasksFailed)
		if w.CurrentTaskID != "" {
			line += dimStyle.Render(fmt.Sprintf("  task %s for %s", w.CurrentTaskID, w.SessionID))
		}
		fmt.Println(line)
	}
}

func sessionDot(s session.Status) string {
	switch s {
	case session.StatusRunning, session.StatusCreated:
		return activeDot
	case session.StatusPaused:
		return pausedDot
	case session.StatusFailed:
		return failedDot
	default:
		return finishedDot
	}
}

func workerDot(s worker.Status) string {
	switch s {
	case worker.StatusIdle, worker.StatusBusy:
		return activeDot
	case worker.StatusError:
		return failedDot
	default:
		return finishedDot
	}
}
