// Command crucible runs the clinical agent mesh.
//
// Usage:
//
//	crucible serve --config crucible.yaml
//	crucible run transcript.txt --answer risk_assessment="no prior attempts"
//	crucible version
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"runtime/debug"
	"strings"
	"syscall"
	"time"

	"github.com/alecthomas/kong"

	"github.com/hupe1980/crucible/broadcast"
	"github.com/hupe1980/crucible/config"
	"github.com/hupe1980/crucible/engine"
	"github.com/hupe1980/crucible/server"
	"github.com/hupe1980/crucible/session"
)

// CLI defines the command-line interface.
type CLI struct {
	Version VersionCmd `cmd:"" help:"Show version information."`
	Serve   ServeCmd   `cmd:"" help:"Start the HTTP API."`
	Run     RunCmd     `cmd:"" help:"Analyse a transcript from the command line."`

	Config   string `short:"c" help:"Path to config file." type:"path"`
	LogLevel string `help:"Log level (debug, info, warn, error). Overrides the config file."`
}

// VersionCmd shows version information.
type VersionCmd struct{}

func (c *VersionCmd) Run() error {
	version := "dev"
	if info, ok := debug.ReadBuildInfo(); ok {
		if info.Main.Version != "(devel)" && info.Main.Version != "" {
			version = info.Main.Version
		}
	}
	fmt.Printf("crucible version %s\n", version)
	return nil
}

// ServeCmd starts the HTTP API.
type ServeCmd struct {
	Addr string `help:"Listen address. Overrides server.addr."`
}

func (c *ServeCmd) Run(cli *CLI) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig(cli)
	if err != nil {
		return err
	}
	if c.Addr != "" {
		cfg.Server.Addr = c.Addr
	}

	hub := broadcast.NewHub()
	defer hub.Close()

	app, err := build(ctx, cfg, hub)
	if err != nil {
		return err
	}
	defer app.Close()

	srv := server.New(app.Engine, func(o *server.Options) {
		o.Hub = hub
		o.Gatherer = app.Gatherer
		o.Logger = app.Logger
	})

	fmt.Printf("crucible listening on %s\n", cfg.Server.Addr)

	return srv.ListenAndServe(ctx, cfg.Server.Addr)
}

// RunCmd runs one session to its end in the foreground. Clarification
// requests are answered from --answer or, when interactive, from stdin.
type RunCmd struct {
	Transcript  string            `arg:"" help:"Transcript file, - for stdin."`
	PatientID   string            `name:"patient-id" help:"Patient identifier." default:"anonymous"`
	SessionDate string            `name:"session-date" help:"Session date (YYYY-MM-DD). Defaults to today."`
	SOAPNotes   string            `name:"soap-notes" help:"SOAP notes file." type:"existingfile"`
	Answer      map[string]string `help:"Pre-supplied clarification answers (agent=answer)."`
	Interactive bool              `short:"i" help:"Prompt for clarifications on stdin."`
	JSON        bool              `help:"Print notifications as JSON lines."`
}

func (c *RunCmd) Run(cli *CLI) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig(cli)
	if err != nil {
		return err
	}

	req, err := c.request()
	if err != nil {
		return err
	}

	hub := broadcast.NewHub(func(o *broadcast.HubOptions) { o.Buffer = 256 })
	defer hub.Close()

	notes, cancel := hub.Subscribe("")
	defer cancel()

	app, err := build(ctx, cfg, hub)
	if err != nil {
		return err
	}
	defer app.Close()

	id, err := app.Engine.StartRun(ctx, req.Input())
	if err != nil {
		return err
	}

	answers := newAnswerer(c.Answer, c.Interactive, os.Stdin)
	idle := idleAfter(app.Engine, id)

	for {
		select {
		case <-idle:
			// The run drained its queue without completing or pausing.
			if rec, err := app.Engine.Snapshot(id); err == nil && rec.Status == session.StatusRunning {
				fmt.Printf("-- run ended without completion (%d faults)\n", rec.Faults)
				return nil
			}
			idle = nil
		case <-ctx.Done():
			_ = app.Engine.Terminate(context.WithoutCancel(ctx), id)
			return ctx.Err()
		case n, ok := <-notes:
			if !ok {
				return nil
			}
			if n.SessionID != id {
				continue
			}

			c.print(os.Stdout, n)

			switch n.Type {
			case broadcast.TypeWorkflowComplete, broadcast.TypeWorkflowTerminated:
				return nil
			case broadcast.TypeWorkflowPause:
				answer, ok := answers.answer(n)
				if !ok {
					fmt.Printf("session %s paused; no answer for %s\n", id, n.AgentID)
					return nil
				}
				if err := app.Engine.SubmitClarification(ctx, id, n.AgentID, answer); err != nil {
					return err
				}
				idle = idleAfter(app.Engine, id)
			}
		}
	}
}

func (c *RunCmd) request() (server.AnalysisRequest, error) {
	transcript, err := readInput(c.Transcript)
	if err != nil {
		return server.AnalysisRequest{}, err
	}

	req := server.AnalysisRequest{
		PatientID:   c.PatientID,
		SessionDate: c.SessionDate,
		Transcript:  transcript,
	}
	if req.SessionDate == "" {
		req.SessionDate = time.Now().Format(time.DateOnly)
	}

	if c.SOAPNotes != "" {
		if req.SOAPNotes, err = readInput(c.SOAPNotes); err != nil {
			return server.AnalysisRequest{}, err
		}
	}

	return req, nil
}

func (c *RunCmd) print(w io.Writer, n broadcast.Notification) {
	if c.JSON {
		_ = json.NewEncoder(w).Encode(n)
		return
	}

	switch n.Type {
	case broadcast.TypeChatMessage:
		fmt.Fprintf(w, "[%s] %s\n", n.Sender, n.Text)
	case broadcast.TypeWorkflowPause:
		fmt.Fprintf(w, "-- paused (%s) %s: %s\n", n.Reason, n.AgentID, n.Question)
	case broadcast.TypeWorkflowComplete:
		data, _ := json.MarshalIndent(n.Data, "", "  ")
		fmt.Fprintf(w, "-- complete\n%s\n", data)
	case broadcast.TypeWorkflowTerminated:
		fmt.Fprintf(w, "-- terminated: %s\n", n.Reason)
	}
}

// answerer hands out pre-supplied answers first, then asks on stdin.
type answerer struct {
	preset      map[string]string
	interactive bool
	in          *bufio.Reader
}

func newAnswerer(preset map[string]string, interactive bool, in io.Reader) *answerer {
	return &answerer{preset: preset, interactive: interactive, in: bufio.NewReader(in)}
}

func (a *answerer) answer(n broadcast.Notification) (string, bool) {
	if v, ok := a.preset[n.AgentID]; ok {
		delete(a.preset, n.AgentID)
		return v, true
	}

	if !a.interactive {
		return "", false
	}

	prompt := "> "
	if n.SuggestedAnswer != "" {
		prompt = fmt.Sprintf("[%s] > ", n.SuggestedAnswer)
	}
	fmt.Print(prompt)

	line, err := a.in.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", false
	}

	line = strings.TrimSpace(line)
	if line == "" {
		line = n.SuggestedAnswer
	}

	return line, line != ""
}

// idleAfter closes the returned channel once no run of id is in flight.
func idleAfter(eng *engine.Engine, id string) <-chan struct{} {
	ch := make(chan struct{})
	go func() {
		_ = eng.Wait(id)
		close(ch)
	}()

	return ch
}

func readInput(path string) (string, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return "", fmt.Errorf("read %s: %w", path, err)
	}

	return string(data), nil
}

func loadConfig(cli *CLI) (config.Config, error) {
	cfg, err := config.Load(cli.Config)
	if err != nil {
		return config.Config{}, err
	}

	if cli.LogLevel != "" {
		cfg.Log.Level = cli.LogLevel
	}

	return cfg, nil
}

func main() {
	cli := CLI{}
	ctx := kong.Parse(&cli,
		kong.Name("crucible"),
		kong.Description("Event-driven clinical agent mesh."),
		kong.UsageOnError(),
	)

	err := ctx.Run(&cli)
	ctx.FatalIfErrorf(err)
}
