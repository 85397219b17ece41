package main

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/danmuck/uartframe/internal/config"
	"github.com/danmuck/uartframe/internal/link"
	"github.com/danmuck/uartframe/internal/observability"
	"github.com/danmuck/uartframe/internal/packet"
	"github.com/danmuck/uartframe/internal/responder"
	"github.com/danmuck/uartframe/internal/scan"
	"github.com/danmuck/uartframe/internal/server"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

const defaultConfigPath = "cmd/framectl/framectl.toml"

var (
	configPath   string
	commandsPath string
	device       string

	sendText string
	sendLine string
	sendHex  string
	hexSeed  string
)

func main() {
	observability.InitLogger("framectl")
	if err := rootCmd().ExecuteContext(context.Background()); err != nil {
		log.Fatal().Err(err).Msg("framectl failed")
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "framectl",
		Short:         "Framed UART packet receiver and responder",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", defaultConfigPath, "link config (framectl.toml)")
	root.PersistentFlags().StringVar(&device, "device", "", "serial device, overrides [port].device")

	textCmd := &cobra.Command{
		Use:   "text",
		Short: "Answer @...\\r\\n command frames from the command table",
		RunE: func(cmd *cobra.Command, args []string) error {
			commands, unknown, err := loadCommands(commandsPath)
			if err != nil {
				return err
			}
			h, err := responder.NewText(commands, unknown, nil)
			if err != nil {
				return err
			}
			return runLink(cmd.Context(), config.ModeText, h)
		},
	}
	textCmd.Flags().StringVar(&commandsPath, "commands", "", "command table (commands.toml)")

	hexCmd := &cobra.Command{
		Use:   "hex",
		Short: "Answer FF..FE frames with an incrementing 4-byte packet",
		RunE: func(cmd *cobra.Command, args []string) error {
			initial, err := parseHexPayload(hexSeed)
			if err != nil {
				return err
			}
			return runLink(cmd.Context(), config.ModeHex, responder.NewHex(initial))
		},
	}
	hexCmd.Flags().StringVar(&hexSeed, "seed", "00000000", "initial response payload")

	echoCmd := &cobra.Command{
		Use:   "echo",
		Short: "Echo received bytes back on idle line or full buffer",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLink(cmd.Context(), config.ModeEcho, nil)
		},
	}

	sendCmd := &cobra.Command{
		Use:   "send",
		Short: "Send one frame and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			if sendText == "" && sendLine == "" && sendHex == "" {
				return errors.New("send: one of --text, --line or --hex is required")
			}
			return runSend()
		},
	}
	sendCmd.Flags().StringVar(&sendText, "text", "", "payload sent as @PAYLOAD\\r\\n")
	sendCmd.Flags().StringVar(&sendLine, "line", "", "line sent verbatim")
	sendCmd.Flags().StringVar(&sendHex, "hex", "", "4-byte payload sent as FF xx xx xx xx FE")
	sendCmd.MarkFlagsMutuallyExclusive("text", "line", "hex")

	portsCmd := &cobra.Command{
		Use:   "ports",
		Short: "List serial ports",
		RunE: func(cmd *cobra.Command, args []string) error {
			ports, err := link.ListPorts()
			if err != nil {
				return err
			}
			for _, p := range ports {
				fmt.Fprintln(cmd.OutOrStdout(), p)
			}
			return nil
		},
	}

	root.AddCommand(textCmd, hexCmd, echoCmd, sendCmd, portsCmd)
	return root
}

func loadLinkConfig(mode string) (config.LinkConfig, error) {
	fc, err := config.LoadLinkConfig(configPath)
	if err != nil {
		return config.LinkConfig{}, err
	}
	if mode != "" {
		fc.Mode = mode
	}
	if d := strings.TrimSpace(device); d != "" {
		fc.Port.Device = d
	}
	return fc, nil
}

func runLink(ctx context.Context, mode string, handler link.Handler) error {
	fc, err := loadLinkConfig(mode)
	if err != nil {
		return err
	}
	log.Info().Str("path", configPath).Str("mode", fc.Mode).Str("device", fc.Port.Device).Msg("loaded link config")

	cfg, err := link.ConfigFromFile(fc)
	if err != nil {
		return err
	}
	svc, err := link.NewService(cfg, link.SerialOpener(fc.Port), handler)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	scanner, scanPort, err := buildScanner(fc.Scan, openScanPort)
	if err != nil {
		return err
	}
	if scanPort != nil {
		defer scanPort.Close()
	}

	errCh := make(chan error, 3)
	go func() { errCh <- svc.Run(ctx) }()
	servers := 1
	if scanner != nil {
		log.Info().Str("scanner", scanner.Name).Str("device", fc.Scan.Port.Device).Msg("scanner started")
		go func() { errCh <- scanner.Run(ctx) }()
		servers++
	}
	if addr := strings.TrimSpace(fc.StatusAddr); addr != "" {
		srv := server.Appear(addr, svc, fc.CorsOrigins)
		srv.RegisterRoutes()
		if scanner != nil {
			srv.AttachScanner(scanner)
		}
		log.Info().Str("addr", addr).Msg("status server started")
		go func() { errCh <- srv.Serve(ctx) }()
		servers++
	}

	var firstErr error
	for i := 0; i < servers; i++ {
		err := <-errCh
		if err != nil && !errors.Is(err, context.Canceled) && firstErr == nil {
			firstErr = err
			stop()
		}
	}
	log.Info().Str("link", svc.Name()).Msg("link stopped")
	return firstErr
}

type scanOpener func(config.PortConfig) (io.ReadCloser, error)

func openScanPort(cfg config.PortConfig) (io.ReadCloser, error) {
	return link.OpenSerial(cfg)
}

// buildScanner opens the ADC bridge port when [scan] is enabled. Both results
// are nil when scanning is off.
func buildScanner(cfg config.ScanConfig, open scanOpener) (*scan.Scanner, io.Closer, error) {
	if !cfg.Enabled {
		return nil, nil, nil
	}
	port, err := open(cfg.Port)
	if err != nil {
		return nil, nil, fmt.Errorf("open scan port: %w", err)
	}
	s, err := scan.FromConfig(cfg, scan.NewReaderSampler(port))
	if err != nil {
		port.Close()
		return nil, nil, err
	}
	return s, port, nil
}

func runSend() error {
	fc, err := loadLinkConfig("")
	if err != nil {
		return err
	}
	port, err := link.OpenSerial(fc.Port)
	if err != nil {
		return err
	}
	defer port.Close()

	tx := packet.NewSender(packet.WriterSink(port))
	switch {
	case sendHex != "":
		payload, err := parseHexPayload(sendHex)
		if err != nil {
			return err
		}
		err = tx.Send(payload[:])
		if err == nil {
			log.Info().Str("device", fc.Port.Device).Hex("payload", payload[:]).Msg("sent binary frame")
		}
		return err
	case sendLine != "":
		return tx.SendText(sendLine)
	default:
		if err := tx.SendTextFrame(sendText); err != nil {
			return err
		}
		log.Info().Str("device", fc.Port.Device).Str("payload", sendText).Msg("sent text frame")
		return nil
	}
}

func parseHexPayload(s string) ([packet.BinaryPayloadLen]byte, error) {
	var out [packet.BinaryPayloadLen]byte
	raw, err := hex.DecodeString(strings.ReplaceAll(strings.TrimSpace(s), " ", ""))
	if err != nil {
		return out, fmt.Errorf("parse hex payload: %w", err)
	}
	if len(raw) != packet.BinaryPayloadLen {
		return out, fmt.Errorf("parse hex payload: %w: got %d bytes", packet.ErrPayloadLength, len(raw))
	}
	copy(out[:], raw)
	return out, nil
}
