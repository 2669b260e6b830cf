package shell

import (
	"context"
	"sync"

	"github.com/abiosoft/ishell"

	logAdapter "github.com/bft-labs/hwv/internal/adapters/log"
	"github.com/bft-labs/hwv/internal/ports"
)

const prompt = "uart:~$ "

// Shell provides the ishell backed hwv shell.
type Shell struct {
	Shell *ishell.Shell

	logger ports.Logger

	mu  sync.RWMutex
	rec Recorder
	ctx context.Context
}

// New creates a shell driving rec.
func New(rec Recorder, logger ports.Logger) *Shell {
	if logger == nil {
		logger = logAdapter.NewNoopLogger()
	}
	s := &Shell{
		Shell:  ishell.New(),
		logger: logger,
		rec:    rec,
		ctx:    context.Background(),
	}
	s.Shell.SetPrompt(prompt)
	s.Shell.AddCmd(s.rootCmd())
	return s
}

// Swap replaces the recorder once any running command has finished and
// returns the previous one.
func (s *Shell) Swap(rec Recorder) Recorder {
	s.mu.Lock()
	defer s.mu.Unlock()
	old := s.rec
	s.rec = rec
	return old
}

// Run runs the interactive shell until the user exits or ctx is done.
func (s *Shell) Run(ctx context.Context) error {
	s.mu.Lock()
	s.ctx = ctx
	s.mu.Unlock()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			s.Shell.Close()
		case <-done:
		}
	}()

	s.Shell.Println("hwv shell, type 'help' for commands")
	s.Shell.Run()
	return nil
}

// Process runs a single command line.
func (s *Shell) Process(ctx context.Context, args ...string) error {
	s.mu.Lock()
	s.ctx = ctx
	s.mu.Unlock()
	return s.Shell.Process(args...)
}

// with runs fn holding the current recorder.
func (s *Shell) with(fn func(ctx context.Context, rec Recorder) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(s.ctx, s.rec)
}

func (s *Shell) rootCmd() *ishell.Cmd {
	root := &ishell.Cmd{
		Name: "hwv",
		Help: "Hardware validation commands",
	}

	mic := &ishell.Cmd{Name: "mic", Help: "Microphone"}
	mic.AddCmd(&ishell.Cmd{
		Name:     "capture",
		Help:     "Capture microphone data [seconds]",
		LongHelp: "Capture audio into flash, read it back and print one sample per line between S and E.",
		Func: func(c *ishell.Context) {
			err := s.with(func(ctx context.Context, rec Recorder) error {
				return MicCapture(ctx, contextWriter{c}, rec, c.Args)
			})
			s.logResult("mic capture", err)
		},
	})

	flash := &ishell.Cmd{Name: "flash", Help: "External flash"}
	flash.AddCmd(&ishell.Cmd{
		Name: "info",
		Help: "Show flash geometry and power state",
		Func: func(c *ishell.Context) {
			err := s.with(func(_ context.Context, rec Recorder) error {
				return FlashInfo(contextWriter{c}, rec)
			})
			s.logResult("flash info", err)
		},
	})
	flash.AddCmd(&ishell.Cmd{
		Name: "erase",
		Help: "Erase the capture region",
		Func: func(c *ishell.Context) {
			err := s.with(func(_ context.Context, rec Recorder) error {
				return FlashErase(contextWriter{c}, rec)
			})
			s.logResult("flash erase", err)
		},
	})

	root.AddCmd(mic)
	root.AddCmd(flash)
	return root
}

func (s *Shell) logResult(cmd string, err error) {
	if err != nil {
		s.logger.Debug("shell command failed", ports.String("command", cmd), ports.Err(err))
	}
}

// contextWriter adapts an ishell context to io.Writer.
type contextWriter struct {
	c *ishell.Context
}

func (w contextWriter) Write(p []byte) (int, error) {
	w.c.Print(string(p))
	return len(p), nil
}
