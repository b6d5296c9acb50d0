// cmd/server/commands.go
package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"gauge-service/internal/config"
	"gauge-service/internal/discovery"
	"gauge-service/internal/driver/mks937"
	"gauge-service/internal/poller"
	"gauge-service/internal/utils"
)

var (
	configPath string
	sendWait   time.Duration
)

var rootCmd = &cobra.Command{
	Use:   "gauge-service",
	Short: "MKS 937A vacuum gauge controller service",
	Long: `gauge-service polls an MKS 937A vacuum gauge controller over a serial line
or a terminal server, runs its state machine and exposes pressures, setpoints
and commands over HTTP and WebSocket.

Serial lines are given as a device path (/dev/ttyUSB0) or as host:port for a
terminal server.`,
	SilenceUsage: true,
	RunE:         runServe,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the gauge service",
	RunE:  runServe,
}

var sendCmd = &cobra.Command{
	Use:   "send <command>",
	Short: "Send one raw command to the controller and print the reply",
	Long: `Send opens the configured serial line, writes one command and prints the
reply. The protocol address prefix is added for RS-422/485 lines, so
"send PR1" talks to the controller on every protocol.`,
	Args: cobra.ExactArgs(1),
	RunE: runSend,
}

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Probe local serial ports for gauge controllers",
	Long: `Scan opens every local serial port matching the port patterns, asks for the
firmware version and the installed modules, and lists the ports that answered.`,
	Args: cobra.NoArgs,
	RunE: runScan,
}

var scanPatterns []string

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to the configuration file")
	rootCmd.PersistentFlags().DurationVar(&sendWait, "wait", 100*time.Millisecond, "Time to wait before reading the reply")

	scanCmd.Flags().StringSliceVar(&scanPatterns, "pattern", nil, "Port glob patterns to probe (default: common serial device names)")

	rootCmd.AddCommand(serveCmd, sendCmd, scanCmd)
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func runServe(cmd *cobra.Command, args []string) error {
	app, err := NewApplication(configPath)
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}
	return app.Start()
}

func runSend(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if cfg.Device.SerialLine == "" {
		return mks937.ErrNoSerialLine
	}

	logger, err := utils.NewLogger(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer utils.CloseLogger(logger)

	line, err := mks937.OpenLine(&cfg.Device, logger)
	if err != nil {
		return err
	}
	defer line.Close()

	command := strings.TrimSpace(args[0])
	prefix := poller.Prefix(cfg.Device.Protocol)
	if !strings.HasPrefix(command, prefix) {
		command = prefix + command
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), sendWait+cfg.Device.ReplyTimeout+5*time.Second)
	defer cancel()

	reply, err := line.Exchange(ctx, command, sendWait)
	if err != nil {
		logger.Error("Command failed", zap.String("command", command), zap.Error(err))
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), reply)
	return nil
}

func runScan(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, err := utils.NewLogger(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer utils.CloseLogger(logger)

	scanner := discovery.NewScanner(logger, &discovery.Config{
		Protocol:     cfg.Device.Protocol,
		PortPatterns: scanPatterns,
		Settle:       sendWait,
	})

	found, err := scanner.Scan(cmd.Context())
	if err != nil {
		return err
	}
	if len(found) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "no gauge controller found")
		return nil
	}
	for _, gauge := range found {
		fmt.Fprintf(cmd.OutOrStdout(), "%s\tfirmware %s\t%s\n", gauge.Port, gauge.FirmwareVersion, gauge.ModulesInstalled)
	}
	return nil
}
