package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/Cod-e-Codes/marchat-webui/internal/client"
	"github.com/Cod-e-Codes/marchat-webui/internal/config"
)

const usage = `Type messages and press Enter to send. Lines starting with ":" are chat commands (:help).
Client controls: /connect [url], /disconnect, /file <path>, /admin <command> [args], /status, /quit`

type options struct {
	configPath string
	serverURL  string
	name       string
	remember   bool
}

func newRootCmd() *cobra.Command {
	var opts options

	cmd := &cobra.Command{
		Use:          "marchat",
		Short:        "Terminal client for a marchat server",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), opts, cmd.InOrStdin(), cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}

	cmd.Flags().StringVarP(&opts.configPath, "config", "c", config.DefaultConfigFile, "path to the TOML config file")
	cmd.Flags().StringVarP(&opts.serverURL, "server", "s", "", "websocket server URL (overrides config)")
	cmd.Flags().StringVarP(&opts.name, "name", "n", "", "display name announced until the server assigns one")
	cmd.Flags().BoolVar(&opts.remember, "remember", true, "store the last-used server URL in the config file")
	return cmd
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, opts options, in io.Reader, out, errOut io.Writer) error {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return err
	}
	if opts.serverURL != "" {
		cfg.Server.URL = opts.serverURL
	}
	if opts.name != "" {
		cfg.Identity.DisplayName = opts.name
	}

	level, _ := config.ParseLevel(cfg.Log.Level)
	logger := slog.New(slog.NewTextHandler(errOut, &slog.HandlerOptions{Level: level}))

	c := client.New(client.Config{
		DisplayName: cfg.Identity.DisplayName,
		AdminKey:    cfg.Identity.AdminKey,
	}, client.WithLogger(logger))

	fe := newFrontend(c, out, logger)
	fe.serverURL = cfg.Server.URL
	if opts.remember {
		fe.configPath = opts.configPath
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	fmt.Fprintln(out, usage)
	if fe.serverURL != "" {
		fe.connect(ctx, fe.serverURL)
	}

	lines := make(chan string)
	go readLines(ctx, in, lines)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer cancel()
		for {
			select {
			case <-gctx.Done():
				return nil
			case line, ok := <-lines:
				if !ok || fe.handleLine(gctx, line) {
					return nil
				}
			}
		}
	})
	g.Go(func() error {
		<-gctx.Done()
		c.Disconnect()
		return nil
	})
	return g.Wait()
}

// readLines feeds input lines until EOF or until ctx ends. A read already
// blocked on a terminal only returns with the next line or EOF.
func readLines(ctx context.Context, in io.Reader, lines chan<- string) {
	defer close(lines)
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		select {
		case lines <- scanner.Text():
		case <-ctx.Done():
			return
		}
	}
}

// frontend renders notifications as text lines and routes input either to
// its own /controls or to the session's command interpreter.
type frontend struct {
	client     *client.Client
	logger     *slog.Logger
	serverURL  string
	configPath string

	mu  sync.Mutex
	out io.Writer
}

func newFrontend(c *client.Client, out io.Writer, logger *slog.Logger) *frontend {
	fe := &frontend{client: c, out: out, logger: logger}
	c.OnNotification(fe.render)
	c.OnStateChange(func(s client.StateChange) {
		fe.println("[status] " + s.To.String())
	})
	return fe
}

func (f *frontend) println(line string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fmt.Fprintln(f.out, line)
}

func (f *frontend) render(n client.Notification) {
	f.println(formatNotification(n, f.client.Session().Identity().DisplayName))
}

func formatNotification(n client.Notification, self string) string {
	switch n.Kind {
	case client.KindChat:
		m := n.Message
		ts := time.UnixMilli(m.Timestamp).Format(time.Kitchen)
		sender := m.Sender
		if sender == self {
			sender += " (you)"
		}
		if m.Encrypted {
			return fmt.Sprintf("[%s][%s] 🔒 %s", sender, ts, m.Content)
		}
		return fmt.Sprintf("[%s][%s] %s", sender, ts, m.Content)
	case client.KindError:
		return "[error] " + n.Text
	case client.KindCommand:
		return "[command] " + n.Text
	default:
		return "[system] " + n.Text
	}
}

// handleLine processes one input line and reports whether the user asked
// to quit.
func (f *frontend) handleLine(ctx context.Context, line string) bool {
	text := strings.TrimSpace(line)
	if !strings.HasPrefix(text, "/") {
		f.client.Submit(text)
		return false
	}

	fields := strings.Fields(text)
	switch fields[0] {
	case "/quit", "/exit":
		return true
	case "/connect":
		url := f.serverURL
		if len(fields) > 1 {
			url = fields[1]
		}
		f.connect(ctx, url)
	case "/disconnect":
		f.client.Disconnect()
	case "/file":
		if len(fields) < 2 {
			f.println("[error] usage: /file <path>")
			return false
		}
		f.announceFile(fields[1])
	case "/admin":
		if len(fields) < 2 {
			f.println("[error] usage: /admin <command> [args]")
			return false
		}
		_ = f.client.SendAdmin(fields[1], strings.Join(fields[2:], " "))
	case "/status":
		s := f.client.Session()
		f.println(fmt.Sprintf("[status] %s as %s; %s", f.client.State(), s.Identity().DisplayName, s.StatusLine()))
	default:
		f.println("[error] unknown control " + fields[0])
	}
	return false
}

func (f *frontend) connect(ctx context.Context, url string) {
	if err := f.client.Connect(ctx, url); err != nil {
		f.logger.Debug("connect rejected", "err", err)
		return
	}
	f.serverURL = strings.TrimSpace(url)
	if f.configPath == "" {
		return
	}
	if err := config.RememberServer(f.configPath, f.serverURL); err != nil {
		f.logger.Warn("could not remember server", "path", f.configPath, "err", err)
	}
}

func (f *frontend) announceFile(path string) {
	info, err := os.Stat(path)
	if err != nil {
		f.println("[error] " + err.Error())
		return
	}
	if info.IsDir() {
		f.println("[error] " + path + " is a directory")
		return
	}
	_ = f.client.AnnounceFile(filepath.Base(path), info.Size())
}
