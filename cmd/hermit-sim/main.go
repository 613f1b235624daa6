// Command hermit-sim boots a simulated kernel core from the
// command line: core count, frequency override, UART port selection, and
// an optional Prometheus metrics endpoint.
package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	hermit "github.com/hermit-os/kernel"
	"github.com/hermit-os/kernel/internal/logging"
)

// uartFlag is a pflag.Value parsing the kernel command line's
// "uart=io:<hex>" syntax directly, so a malformed port is
// rejected at flag-parse time rather than deep inside Boot.
type uartFlag struct {
	port uint16
	set  bool
}

func (u *uartFlag) String() string {
	if !u.set {
		return ""
	}
	return fmt.Sprintf("io:%#x", u.port)
}

func (u *uartFlag) Set(s string) error {
	port, err := parseUARTPort(s)
	if err != nil {
		return err
	}
	u.port = port
	u.set = true
	return nil
}

func (u *uartFlag) Type() string { return "uart" }

var _ pflag.Value = (*uartFlag)(nil)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		cores       int
		freqMHz     int
		uart        uartFlag
		mode        string
		ramMB       int
		metricsAddr string
		logLevel    string
	)

	cmd := &cobra.Command{
		Use:   "hermit-sim",
		Short: "Boot a simulated HermitCore-style kernel core",
		Long: "hermit-sim brings up a simulated kernel core in-process: per-core\n" +
			"scheduling, memory management, and the syscall surface, without any\n" +
			"real hardware or hypervisor underneath it.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), runOptions{
				cores: cores, freqMHz: freqMHz, uartPort: uart.port, mode: mode,
				ramMB: ramMB, metricsAddr: metricsAddr, logLevel: logLevel,
			})
		},
	}

	flags := cmd.Flags()
	flags.IntVar(&cores, "cores", 0, "number of simulated cores (0 = derive from --mode)")
	flags.IntVar(&freqMHz, "freq", 0, "CPU frequency override in MHz (kernel command line: -freq <MHz>)")
	flags.Var(&uart, "uart", "UART port selector, e.g. io:0x3f8 (kernel command line: uart=io:<hex>)")
	flags.StringVar(&mode, "mode", "uhyve", "runtime mode: uhyve, proxy, or bare-metal")
	flags.IntVar(&ramMB, "ram-mb", 64, "simulated physical RAM size in MiB")
	flags.StringVar(&metricsAddr, "metrics-addr", "", "if set, serve Prometheus metrics on this address (e.g. :9100)")
	flags.StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn, error")

	return cmd
}

type runOptions struct {
	cores       int
	freqMHz     int
	uartPort    uint16
	mode        string
	ramMB       int
	metricsAddr string
	logLevel    string
}

func parseMode(s string) (hermit.Mode, error) {
	switch strings.ToLower(s) {
	case "uhyve":
		return hermit.ModeUhyve, nil
	case "proxy":
		return hermit.ModeProxy, nil
	case "bare-metal", "baremetal", "bare":
		return hermit.ModeBareMetal, nil
	default:
		return 0, fmt.Errorf("hermit-sim: unknown mode %q", s)
	}
}

// parseUARTPort parses the kernel command line's "uart=io:<hex>" value
// into a 16-bit I/O port number.
func parseUARTPort(s string) (uint16, error) {
	if s == "" {
		return 0, nil
	}
	s = strings.TrimPrefix(s, "uart=")
	s = strings.TrimPrefix(s, "io:")
	s = strings.TrimPrefix(s, "0x")
	v, err := strconv.ParseUint(s, 16, 16)
	if err != nil {
		return 0, fmt.Errorf("hermit-sim: invalid uart port %q: %w", s, err)
	}
	return uint16(v), nil
}

func parseLogLevel(s string) logging.LogLevel {
	switch strings.ToLower(s) {
	case "debug":
		return logging.LevelDebug
	case "warn":
		return logging.LevelWarn
	case "error":
		return logging.LevelError
	default:
		return logging.LevelInfo
	}
}

func run(ctx context.Context, opts runOptions) error {
	mode, err := parseMode(opts.mode)
	if err != nil {
		return err
	}

	cfg := hermit.DefaultConfig()
	cfg.NumCores = opts.cores
	cfg.FreqMHz = opts.freqMHz
	cfg.UARTPort = opts.uartPort
	cfg.Mode = mode
	cfg.RAMBytes = opts.ramMB << 20
	cfg.Logging = &logging.Config{Level: parseLogLevel(opts.logLevel)}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	k, err := hermit.Boot(ctx, cfg, nil)
	if err != nil {
		return fmt.Errorf("hermit-sim: boot failed: %w", err)
	}
	logging.Default().Info("hermit-sim running", "cores", k.NumCores(), "mode", mode.String())

	var metricsSrv *http.Server
	if opts.metricsAddr != "" {
		reg := prometheus.NewRegistry()
		hermit.NewPromObserver(k.Metrics, reg)
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		metricsSrv = &http.Server{Addr: opts.metricsAddr, Handler: mux}
		ln, err := net.Listen("tcp", opts.metricsAddr)
		if err != nil {
			return fmt.Errorf("hermit-sim: metrics listener: %w", err)
		}
		go func() {
			logging.Default().Info("metrics endpoint listening", "addr", opts.metricsAddr)
			_ = metricsSrv.Serve(ln)
		}()
	}

	<-ctx.Done()
	logging.Default().Info("hermit-sim shutting down")

	if metricsSrv != nil {
		shCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		_ = metricsSrv.Shutdown(shCtx)
		cancel()
	}

	shCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return k.Shutdown(shCtx)
}
