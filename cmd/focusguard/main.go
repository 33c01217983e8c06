package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"focusguard/internal/bootstrap"
	daemondomain "focusguard/internal/modules/daemon/domain"
	"focusguard/internal/platform/config"
	apperrors "focusguard/internal/platform/errors"
	"focusguard/internal/platform/logging"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		_, _ = fmt.Fprintln(os.Stderr, "load .env:", err)
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}

type globalFlags struct {
	dataDir    string
	configPath string
	socketPath string
}

func newRootCmd() *cobra.Command {
	flags := &globalFlags{}

	root := &cobra.Command{
		Use:           "focusguard",
		Short:         "Intention prompts and time budgets for distracting sites",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&flags.dataDir, "data-dir", defaultDataDir(), "focusguard data directory")
	root.PersistentFlags().StringVar(&flags.configPath, "config", "", "config file (default <data-dir>/config.yaml)")
	root.PersistentFlags().StringVar(&flags.socketPath, "socket", "", "daemon control socket (default <data-dir>/focusguard.sock)")

	root.AddCommand(newDaemonCmd(flags))
	root.AddCommand(newPingCmd(flags))
	root.AddCommand(newCheckCmd(flags))
	root.AddCommand(newStartCmd(flags))
	root.AddCommand(newSessionCmd(flags))
	root.AddCommand(newCloseTabCmd(flags))
	root.AddCommand(newTemplatesCmd(flags))
	root.AddCommand(newReflectCmd(flags))
	root.AddCommand(newSendCmd(flags))
	root.AddCommand(newClassifyCmd(flags))
	root.AddCommand(newStatsCmd(flags))
	root.AddCommand(newExportCmd(flags))
	root.AddCommand(newResetCmd(flags))
	root.AddCommand(newDashboardCmd(flags))
	return root
}

func defaultDataDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "focusguard")
	}
	return ".focusguard"
}

func loadConfig(flags *globalFlags) (config.Config, error) {
	cfg, err := config.Load(flags.dataDir, flags.configPath)
	if err != nil {
		return config.Config{}, err
	}
	if flags.socketPath != "" {
		cfg.SocketPath = flags.socketPath
	}
	return cfg, nil
}

func loadApp(flags *globalFlags) (*bootstrap.App, error) {
	cfg, err := loadConfig(flags)
	if err != nil {
		return nil, err
	}
	logger, err := logging.New(os.Stderr, "warn", cfg.LogFormat)
	if err != nil {
		return nil, err
	}
	return bootstrap.New(cfg, logger, runArgs(cfg, flags)), nil
}

func runArgs(cfg config.Config, flags *globalFlags) []string {
	args := []string{"daemon", "run", "--data-dir", cfg.DataDir, "--socket", cfg.SocketPath}
	if flags.configPath != "" {
		args = append(args, "--config", flags.configPath)
	}
	return args
}

func newDaemonCmd(flags *globalFlags) *cobra.Command {
	daemon := &cobra.Command{Use: "daemon", Short: "Manage the focusguard daemon"}
	daemon.AddCommand(&cobra.Command{
		Use:   "run",
		Short: "Run the daemon in the foreground",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			logger, err := logging.New(os.Stderr, cfg.LogLevel, cfg.LogFormat)
			if err != nil {
				return err
			}
			slog.SetDefault(logger)
			app, host, err := bootstrap.NewDaemon(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer host.Close()
			return app.DaemonCLI.RunDaemon(cmd.Context())
		},
	})
	daemon.AddCommand(&cobra.Command{
		Use:   "start",
		Short: "Start the daemon in the background",
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := loadApp(flags)
			if err != nil {
				return err
			}
			if err := app.DaemonCLI.StartDaemon(cmd.Context()); err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), "daemon started")
			return nil
		},
	})
	daemon.AddCommand(&cobra.Command{
		Use:   "stop",
		Short: "Stop the daemon",
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := loadApp(flags)
			if err != nil {
				return err
			}
			if err := app.DaemonCLI.StopDaemon(cmd.Context()); err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), "daemon stopped")
			return nil
		},
	})
	daemon.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show daemon status",
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := loadApp(flags)
			if err != nil {
				return err
			}
			status, err := app.DaemonCLI.DaemonStatus(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			_, _ = fmt.Fprintf(out, "running=%t pid=%d socket=%s\n", status.Running, status.PID, status.SocketPath)
			if status.Running {
				_, _ = fmt.Fprintf(out, "initialized=%t cooldown_ms=%d strict=%t active=%d\n",
					status.Status.Initialized, status.Status.CooldownMs, status.Status.StrictCooldown, len(status.Status.ActiveSessions))
			}
			return nil
		},
	})
	var tail int
	logs := &cobra.Command{
		Use:   "logs",
		Short: "Show daemon logs",
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := loadApp(flags)
			if err != nil {
				return err
			}
			payload, err := app.DaemonCLI.DaemonLogs(cmd.Context(), tail)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), payload)
			return nil
		},
	}
	logs.Flags().IntVar(&tail, "tail", 200, "number of lines")
	daemon.AddCommand(logs)
	return daemon
}

// sendMessage posts one message envelope to the daemon as tabID and prints
// the reply. A reply carrying an error fails the command.
func sendMessage(cmd *cobra.Command, flags *globalFlags, tabID int, msg map[string]any) error {
	app, err := loadApp(flags)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}
	return relay(cmd.Context(), cmd.OutOrStdout(), app, tabID, raw)
}

func relay(ctx context.Context, out io.Writer, app *bootstrap.App, tabID int, raw []byte) error {
	reply, err := app.DaemonCLI.Send(ctx, tabID, raw)
	if err != nil {
		return err
	}
	var pretty bytes.Buffer
	if err := json.Indent(&pretty, reply, "", "  "); err != nil {
		pretty.Reset()
		pretty.Write(reply)
	}
	_, _ = fmt.Fprintln(out, pretty.String())
	return replyError(reply, tabID)
}

// replyError turns a failed reply into an error. A getActiveSession reply
// with no session reports ErrNoActiveSession.
func replyError(reply []byte, tabID int) error {
	var envelope struct {
		Action   string          `json:"action"`
		Error    string          `json:"error"`
		Response json.RawMessage `json:"response"`
	}
	if err := json.Unmarshal(reply, &envelope); err != nil {
		return nil
	}
	if envelope.Error != "" {
		return errors.New(envelope.Error)
	}
	body := bytes.TrimSpace(envelope.Response)
	if envelope.Action == "getActiveSession" && (len(body) == 0 || bytes.Equal(body, []byte("null"))) {
		return fmt.Errorf("tab %d: %w", tabID, apperrors.ErrNoActiveSession)
	}
	var inner struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(body, &inner) == nil && inner.Error != "" {
		return errors.New(inner.Error)
	}
	return nil
}

func newPingCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "ping",
		Short: "Check the daemon answers messages",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return sendMessage(cmd, flags, 0, map[string]any{"action": "ping"})
		},
	}
}

func newCheckCmd(flags *globalFlags) *cobra.Command {
	var site string
	var tab int
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Ask whether a site visit owes an intention prompt",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return sendMessage(cmd, flags, tab, map[string]any{"action": "checkIntentionNeeded", "site": site, "tabId": tab})
		},
	}
	cmd.Flags().StringVar(&site, "site", "", "site name, e.g. YouTube")
	cmd.Flags().IntVar(&tab, "tab", 0, "tab id")
	_ = cmd.MarkFlagRequired("site")
	return cmd
}

func newStartCmd(flags *globalFlags) *cobra.Command {
	var site, intention string
	var tab int
	var minutes float64
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Declare an intention and start a timed session for a tab",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return sendMessage(cmd, flags, tab, map[string]any{
				"action":          "setIntention",
				"site":            site,
				"intention":       intention,
				"durationMinutes": minutes,
			})
		},
	}
	cmd.Flags().IntVar(&tab, "tab", 0, "tab id")
	cmd.Flags().StringVar(&site, "site", "", "site name")
	cmd.Flags().StringVar(&intention, "intention", "", "what this visit is for")
	cmd.Flags().Float64Var(&minutes, "minutes", 15, "session length in minutes (1-480)")
	_ = cmd.MarkFlagRequired("tab")
	return cmd
}

func newSessionCmd(flags *globalFlags) *cobra.Command {
	var tab int
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Show the active session of a tab",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return sendMessage(cmd, flags, tab, map[string]any{"action": "getActiveSession", "tabId": tab})
		},
	}
	cmd.Flags().IntVar(&tab, "tab", 0, "tab id")
	_ = cmd.MarkFlagRequired("tab")
	return cmd
}

func newCloseTabCmd(flags *globalFlags) *cobra.Command {
	var tab int
	cmd := &cobra.Command{
		Use:   "close-tab",
		Short: "End a tab's session as if the tab was closed",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return sendMessage(cmd, flags, tab, map[string]any{"action": "tabClosed", "tabId": tab})
		},
	}
	cmd.Flags().IntVar(&tab, "tab", 0, "tab id")
	_ = cmd.MarkFlagRequired("tab")
	return cmd
}

func newTemplatesCmd(flags *globalFlags) *cobra.Command {
	var site string
	cmd := &cobra.Command{
		Use:   "templates",
		Short: "List intention templates for a site",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return sendMessage(cmd, flags, 0, map[string]any{"action": "getIntentionTemplates", "site": site})
		},
	}
	cmd.Flags().StringVar(&site, "site", "", "site name")
	return cmd
}

func newReflectCmd(flags *globalFlags) *cobra.Command {
	var tab int
	cmd := &cobra.Command{
		Use:   "reflect <yes|partly|no>",
		Short: "Record whether the last session kept its intention",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return sendMessage(cmd, flags, tab, map[string]any{"action": "trackSessionReflection", "outcome": args[0]})
		},
	}
	cmd.Flags().IntVar(&tab, "tab", 0, "tab id")
	return cmd
}

func newSendCmd(flags *globalFlags) *cobra.Command {
	var tab int
	cmd := &cobra.Command{
		Use:   "send <json>",
		Short: "Send a raw message envelope to the daemon",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := loadApp(flags)
			if err != nil {
				return err
			}
			return relay(cmd.Context(), cmd.OutOrStdout(), app, tab, []byte(args[0]))
		},
	}
	cmd.Flags().IntVar(&tab, "tab", 0, "sender tab id")
	return cmd
}

func newClassifyCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "classify <url>",
		Short: "Show which monitored site a URL belongs to",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			match, err := bootstrap.Registry(cfg).ClassifyURL(args[0])
			if err != nil {
				return err
			}
			if !match.Monitored {
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s is not monitored\n", match.Hostname)
				return nil
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s -> %s\n", match.Hostname, match.Site)
			return nil
		},
	}
}

func newStatsCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show the analytics summary",
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := loadApp(flags)
			if err != nil {
				return err
			}
			summary, err := app.DaemonCLI.Summary(cmd.Context())
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(summary)
		},
	}
}

func newExportCmd(flags *globalFlags) *cobra.Command {
	var outPath, dir string
	cmd := &cobra.Command{
		Use:       "export <json|csv|notes>",
		Short:     "Export stored analytics",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{daemondomain.FormatJSON, daemondomain.FormatCSV, daemondomain.FormatNotes},
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := loadApp(flags)
			if err != nil {
				return err
			}
			if dir != "" {
				if dir, err = filepath.Abs(dir); err != nil {
					return err
				}
			}
			result, err := app.DaemonCLI.Export(cmd.Context(), args[0], dir)
			if err != nil {
				return err
			}
			if args[0] == daemondomain.FormatNotes {
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "wrote %d notes under %s\n", result.Written, result.Payload)
				return nil
			}
			if outPath == "" {
				_, _ = fmt.Fprint(cmd.OutOrStdout(), result.Payload)
				return nil
			}
			return os.WriteFile(outPath, []byte(result.Payload), 0o644)
		},
	}
	cmd.Flags().StringVarP(&outPath, "out", "o", "", "write json/csv to this file instead of stdout")
	cmd.Flags().StringVar(&dir, "dir", "", "notes directory (default <data-dir>/notes)")
	return cmd
}

func newResetCmd(flags *globalFlags) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Delete stored analytics and reseed intention templates",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !yes {
				return errors.New("reset deletes all stored analytics; pass --yes to confirm")
			}
			app, err := loadApp(flags)
			if err != nil {
				return err
			}
			if err := app.DaemonCLI.Reset(cmd.Context()); err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), "analytics reset")
			return nil
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "confirm deletion")
	return cmd
}

func newDashboardCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "dashboard",
		Short: "Open the terminal dashboard",
		RunE: func(_ *cobra.Command, _ []string) error {
			app, err := loadApp(flags)
			if err != nil {
				return err
			}
			return bootstrap.RunDashboard(app)
		},
	}
}
