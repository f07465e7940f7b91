package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/civicconnect/civic/internal/api"
	"github.com/civicconnect/civic/internal/daemon"
	"github.com/civicconnect/civic/internal/output"
	"github.com/civicconnect/civic/internal/ratelimit"
	"github.com/civicconnect/civic/internal/session"
)

var serveDaemon bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the REST API server",
	Long: `Start an HTTP server exposing the issue store under /api/v1.

By default it runs in the foreground on port 8080. Use --port to change it
and --daemon to run it in the background (see 'civic serve status|stop').`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if serveDaemon {
			return serveStartRun()
		}
		return serveRun(cmd.Context())
	},
}

var serveStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show whether the background server is running",
	RunE: func(cmd *cobra.Command, args []string) error {
		return serveStatusRun()
	},
}

var serveStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the background server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return serveStopRun()
	},
}

func init() {
	serveCmd.Flags().IntP("port", "p", 8080, "port to listen on")
	_ = viper.BindPFlag("server.port", serveCmd.Flags().Lookup("port"))
	serveCmd.Flags().BoolVarP(&serveDaemon, "daemon", "d", false, "Run the server in the background")

	serveCmd.AddCommand(serveStatusCmd)
	serveCmd.AddCommand(serveStopCmd)
	rootCmd.AddCommand(serveCmd)
}

func pidFile() *daemon.PIDFile {
	return daemon.NewPIDFile(filepath.Join(viper.GetString("state_dir"), "civic-serve.pid"))
}

func serveLogPath() string {
	return filepath.Join(viper.GetString("state_dir"), "civic-serve.log")
}

func serveRun(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	pf := pidFile()
	if pid, running := pf.IsRunning(); running && pid != os.Getpid() {
		return fmt.Errorf("server already running (pid %d)", pid)
	}
	if !verbose {
		setLogLevel(slog.LevelInfo)
	}

	s, err := getStore()
	if err != nil {
		return err
	}
	tr, err := getTracker()
	if err != nil {
		return err
	}

	secret := viper.GetString("auth.jwt_secret")
	if secret == "change-me" {
		ui.Warning("auth.jwt_secret is the default; set CIVIC_AUTH_JWT_SECRET outside development")
	}
	tokens := session.NewTokenIssuer(secret, viper.GetDuration("auth.token_ttl"))

	limiter := newLimiter(ctx)
	srv := api.NewServer(s, tr, tokens, limiter, newClassifier())

	port := viper.GetInt("server.port")
	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           srv.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	if err := pf.Write(port, storeLabel()); err != nil {
		return fmt.Errorf("write PID file: %w", err)
	}
	defer func() { _ = pf.Remove() }()

	ctx, stop := signal.NotifyContext(ctx, shutdownSignals()...)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.ListenAndServe()
	}()
	ui.Info("Serving API at http://localhost:%d/api/v1 (store %s)", port, storeLabel())

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// newLimiter returns the Redis submission limiter, or a no-op when Redis is
// not configured or unreachable at startup.
func newLimiter(ctx context.Context) ratelimit.Limiter {
	addr := viper.GetString("ratelimit.redis_addr")
	if addr == "" {
		return ratelimit.Nop{}
	}
	client, err := ratelimit.Connect(ctx, addr, viper.GetString("ratelimit.redis_password"))
	if err != nil {
		ui.Warning("Rate limiting disabled: %v", err)
		return ratelimit.Nop{}
	}
	limit := viper.GetInt("ratelimit.limit")
	window := viper.GetDuration("ratelimit.window")
	ui.VerboseLog("Rate limiting reports to %d per %s via %s", limit, window, addr)
	return ratelimit.NewRedis(client, limit, window, viper.GetString("ratelimit.prefix"))
}

// serveStartRun re-executes the binary as a detached `civic serve`.
func serveStartRun() error {
	pf := pidFile()
	if pid, running := pf.IsRunning(); running {
		return fmt.Errorf("server already running (pid %d)", pid)
	}

	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("locate executable: %w", err)
	}
	args := []string{"serve", "--port", strconv.Itoa(viper.GetInt("server.port"))}
	if cfgFile, _ := rootCmd.PersistentFlags().GetString("config"); cfgFile != "" {
		args = append(args, "--config", cfgFile)
	}

	if dryRun {
		ui.DryRunMsg("Would start %s %v (log %s)", exe, args, serveLogPath())
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(serveLogPath()), 0o755); err != nil {
		return fmt.Errorf("create state directory: %w", err)
	}
	logFile, err := os.OpenFile(serveLogPath(), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer logFile.Close()

	child := exec.Command(exe, args...)
	child.Stdout = logFile
	child.Stderr = logFile
	setDaemonAttrs(child)
	if err := child.Start(); err != nil {
		return fmt.Errorf("start server: %w", err)
	}
	pid := child.Process.Pid
	_ = child.Process.Release()

	ui.Success("Server started (pid %d), logging to %s", pid, serveLogPath())
	return nil
}

func serveStatusRun() error {
	pf := pidFile()
	pid, running := pf.IsRunning()
	if !running {
		ui.Info("Server not running")
		return nil
	}

	info, err := pf.ReadInfo()
	if err != nil {
		ui.Info("Server running (pid %d)", pid)
		return nil
	}
	fmt.Fprintf(ui.Out, "%s  pid %d\n", output.Green("running"), info.PID)
	fmt.Fprintf(ui.Out, "  Address:  %s/api/v1\n", info.Addr())
	fmt.Fprintf(ui.Out, "  Store:    %s\n", output.Dash(info.Store))
	fmt.Fprintf(ui.Out, "  Uptime:   %s\n", time.Since(info.StartedAt).Round(time.Second))
	return nil
}

func serveStopRun() error {
	pf := pidFile()
	pid, running := pf.IsRunning()
	if !running {
		_ = pf.Remove()
		return fmt.Errorf("server not running")
	}

	if dryRun {
		ui.DryRunMsg("Would stop server (pid %d)", pid)
		return nil
	}

	if err := pf.Signal(sigTERM()); err != nil {
		return fmt.Errorf("signal server: %w", err)
	}
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if _, alive := pf.IsRunning(); !alive {
			_ = pf.Remove()
			ui.Success("Server stopped (pid %d)", pid)
			return nil
		}
		time.Sleep(100 * time.Millisecond)
	}

	ui.Warning("Server did not exit in time, killing pid %d", pid)
	if err := pf.Signal(sigKILL()); err != nil {
		return fmt.Errorf("kill server: %w", err)
	}
	_ = pf.Remove()
	return nil
}
