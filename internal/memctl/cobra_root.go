package memctl

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"

	"memwatchd/internal/guard"
	"memwatchd/pkg/types"
)

// Config holds the CLI-wide settings resolved from flags and environment.
type Config struct {
	Server  string
	Timeout time.Duration
	JSON    bool
}

func defaultServer() string {
	v := os.Getenv("MEMWATCHD_ADDR")
	switch {
	case v == "":
		return "http://127.0.0.1:8090"
	case strings.HasPrefix(v, ":"):
		return "http://127.0.0.1" + v
	case strings.HasPrefix(v, "http://"), strings.HasPrefix(v, "https://"):
		return v
	default:
		return "http://" + v
	}
}

// BuildRootCmd constructs the Cobra command tree wired to a daemon client.
func BuildRootCmd(cfg *Config) *cobra.Command {
	root := &cobra.Command{
		Use:           "memctl",
		Short:         "Control and inspect a running memwatchd daemon",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&cfg.Server, "server", defaultServer(), "Daemon base URL")
	root.PersistentFlags().DurationVar(&cfg.Timeout, "timeout", 10*time.Second, "Request timeout")
	root.PersistentFlags().BoolVar(&cfg.JSON, "json", false, "Print raw JSON instead of tables")

	client := func() *Client { return NewClient(cfg.Server, cfg.Timeout) }
	reqCtx := func() (context.Context, context.CancelFunc) {
		return context.WithTimeout(context.Background(), cfg.Timeout)
	}

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show the watchdog state, memory and alert summary",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := reqCtx()
			defer cancel()
			st, err := client().Status(ctx)
			if err != nil {
				return err
			}
			if cfg.JSON {
				return printJSON(cmd.OutOrStdout(), st)
			}
			renderStatus(cmd.OutOrStdout(), st)
			return nil
		},
	}

	memoryCmd := &cobra.Command{
		Use:   "memory",
		Short: "Show the latest memory sample",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := reqCtx()
			defer cancel()
			m, err := client().Memory(ctx)
			if err != nil {
				return err
			}
			if cfg.JSON {
				return printJSON(cmd.OutOrStdout(), m)
			}
			renderMemory(cmd.OutOrStdout(), m)
			return nil
		},
	}

	modelsCmd := &cobra.Command{
		Use:   "models",
		Short: "Manage the model registry",
		RunE: func(cmd *cobra.Command, args []string) error {
			return fmt.Errorf("models requires a subcommand: list|register|rm|touch")
		},
	}
	modelsList := &cobra.Command{
		Use:   "list",
		Short: "List registered models",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := reqCtx()
			defer cancel()
			ms, err := client().Models(ctx)
			if err != nil {
				return err
			}
			if cfg.JSON {
				return printJSON(cmd.OutOrStdout(), ms)
			}
			renderModels(cmd.OutOrStdout(), ms)
			return nil
		},
	}
	var regInfo types.ModelMemoryInfo
	var regMemoryMB, regSavingsMB int
	modelsRegister := &cobra.Command{
		Use:     "register <model-id>",
		Short:   "Register a model with the watchdog",
		Example: "  memctl models register llama-3.1-8b-q4 --memory-mb 5120 --can-unload --priority 3",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			regInfo.ModelID = args[0]
			regInfo.MemoryBytes = uint64(regMemoryMB) << 20
			regInfo.UnloadSavingsBytes = uint64(regSavingsMB) << 20
			if regInfo.UnloadSavingsBytes == 0 {
				regInfo.UnloadSavingsBytes = regInfo.MemoryBytes
			}
			ctx, cancel := reqCtx()
			defer cancel()
			if err := client().RegisterModel(ctx, regInfo); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "registered %s\n", regInfo.ModelID)
			return nil
		},
	}
	modelsRegister.Flags().IntVar(&regMemoryMB, "memory-mb", 0, "Memory attributed to the model in MB")
	modelsRegister.Flags().IntVar(&regSavingsMB, "savings-mb", 0, "Expected reclaim in MB (defaults to memory-mb)")
	modelsRegister.Flags().IntVar(&regInfo.Priority, "priority", 0, "Eviction priority (lower evicted first by default)")
	modelsRegister.Flags().BoolVar(&regInfo.CanUnload, "can-unload", false, "Allow the watchdog to unload this model")
	modelsRegister.Flags().BoolVar(&regInfo.IsLoaded, "loaded", true, "Whether the model is currently resident")

	modelsRm := &cobra.Command{
		Use:   "rm <model-id>",
		Short: "Unregister a model",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := reqCtx()
			defer cancel()
			if err := client().RemoveModel(ctx, args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed %s\n", args[0])
			return nil
		},
	}
	modelsTouch := &cobra.Command{
		Use:   "touch <model-id>",
		Short: "Refresh a model's last-access time",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := reqCtx()
			defer cancel()
			if err := client().TouchModel(ctx, args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "touched %s\n", args[0])
			return nil
		},
	}
	modelsCmd.AddCommand(modelsList, modelsRegister, modelsRm, modelsTouch)

	alertsCmd := &cobra.Command{
		Use:   "alerts",
		Short: "Manage alerts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return fmt.Errorf("alerts requires a subcommand: list|create|ack|dismiss")
		},
	}
	alertsList := &cobra.Command{
		Use:   "list",
		Short: "List active alerts",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := reqCtx()
			defer cancel()
			alerts, err := client().Alerts(ctx)
			if err != nil {
				return err
			}
			if cfg.JSON {
				return printJSON(cmd.OutOrStdout(), alerts)
			}
			renderAlerts(cmd.OutOrStdout(), alerts)
			return nil
		},
	}
	var alertReq types.CreateAlertRequest
	var alertLevel string
	alertsCreate := &cobra.Command{
		Use:     "create <title>",
		Short:   "Raise a custom alert",
		Example: "  memctl alerts create \"Model load failed\" --level warning --category model",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			alertReq.Title = args[0]
			alertReq.Level = types.AlertLevel(alertLevel)
			ctx, cancel := reqCtx()
			defer cancel()
			a, err := client().CreateAlert(ctx, alertReq)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created alert %s\n", a.ID)
			return nil
		},
	}
	alertsCreate.Flags().StringVar(&alertLevel, "level", "info", "Severity: info|warning|critical|emergency")
	alertsCreate.Flags().StringVar(&alertReq.Category, "category", "model", "Alert category")
	alertsCreate.Flags().StringVar(&alertReq.Message, "message", "", "Full message")
	alertsCreate.Flags().BoolVar(&alertReq.AutoResolve, "auto-resolve", false, "Clear the alert automatically with its tier")

	alertsAck := &cobra.Command{
		Use:   "ack <alert-id>",
		Short: "Acknowledge an alert",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := reqCtx()
			defer cancel()
			ok, err := client().AckAlert(ctx, args[0])
			if err != nil {
				return err
			}
			if !ok {
				fmt.Fprintf(cmd.OutOrStdout(), "alert %s not active\n", args[0])
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "acknowledged %s\n", args[0])
			return nil
		},
	}
	alertsDismiss := &cobra.Command{
		Use:   "dismiss <alert-id>",
		Short: "Dismiss an alert",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := reqCtx()
			defer cancel()
			if err := client().DismissAlert(ctx, args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "dismissed %s\n", args[0])
			return nil
		},
	}
	alertsCmd.AddCommand(alertsList, alertsCreate, alertsAck, alertsDismiss)

	watchCmd := &cobra.Command{
		Use:   "watch",
		Short: "Stream watchdog events until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			return watchEvents(cmd, client())
		},
	}

	root.AddCommand(statusCmd, memoryCmd, modelsCmd, alertsCmd, watchCmd)
	return root
}

// watchEvents tails the daemon's WebSocket stream, printing one line per event.
func watchEvents(cmd *cobra.Command, c *Client) error {
	conn, resp, err := websocket.DefaultDialer.Dial(c.EventsURL(), nil)
	if err != nil {
		return fmt.Errorf("connect %s: %w", c.EventsURL(), err)
	}
	if resp != nil {
		_ = resp.Body.Close()
	}
	defer conn.Close()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(stop)
	go func() {
		<-stop
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		_ = conn.Close()
	}()

	out := cmd.OutOrStdout()
	for {
		var ev guard.Event
		if err := conn.ReadJSON(&ev); err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			select {
			case <-stop:
				return nil
			default:
			}
			return err
		}
		line := time.Now().Format(time.RFC3339) + " " + ev.Name
		if ev.Category != "" {
			line += " category=" + ev.Category
		}
		if ev.ModelID != "" {
			line += " model=" + ev.ModelID
		}
		for k, v := range ev.Fields {
			line += fmt.Sprintf(" %s=%v", k, v)
		}
		fmt.Fprintln(out, line)
	}
}

// Main is the entry point used by cmd/memctl.
func Main() {
	cfg := &Config{}
	root := BuildRootCmd(cfg)
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
