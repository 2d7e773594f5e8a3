package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/m4xw311/hai/agent"
	"github.com/m4xw311/hai/agent/terminal"
	"github.com/m4xw311/hai/config"
	"github.com/m4xw311/hai/errors"
	"github.com/m4xw311/hai/llm"
	"github.com/m4xw311/hai/session"
	"github.com/spf13/cobra"
	"pkt.systems/pslog"
)

type rootOptions struct {
	interact bool
	yes      bool
	chat     bool
	think    bool
	noThink  bool
	stream   bool
	noStream bool
	prompt   string
	profile  string
	files    []string
	maxSteps int
	timeout  int
	session  string
	resume   string
}

func newRootCmd(s streams) *cobra.Command {
	var (
		o          rootOptions
		configPath string
		debug      bool
	)

	root := &cobra.Command{
		Use:   "hai [message]",
		Short: "Ask an LLM to get things done in your shell",
		Long: `hai sends your message to a language model that can run shell commands.
Every command is shown and needs confirmation before it runs, unless it
matches allowed_commands or -y is given.

Without a message and with a terminal, hai starts an interactive
conversation.`,
		Args:          cobra.ArbitraryArgs,
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := pslog.ErrorLevel
			if debug {
				level = pslog.DebugLevel
			}
			logger := pslog.LoggerFromEnv(
				pslog.WithEnvWriter(s.err),
				pslog.WithEnvOptions(pslog.Options{Mode: pslog.ModeConsole, MinLevel: level}),
			)
			cmd.SetContext(pslog.ContextWithLogger(cmd.Context(), logger))
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAgent(cmd, s, configPath, o, strings.Join(args, " "))
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&configPath, "config", "", "configuration file, replaces the user and project files")
	pf.BoolVar(&debug, "debug", false, "log diagnostics to stderr")

	f := root.Flags()
	f.BoolVarP(&o.interact, "interact", "i", false, "start an interactive conversation")
	f.BoolVarP(&o.yes, "yes", "y", false, "run commands without asking")
	f.BoolVar(&o.chat, "chat", false, "plain chat, the model cannot run commands")
	f.StringVarP(&o.prompt, "prompt", "p", "", "prompt template from the configuration")
	f.StringVar(&o.profile, "profile", "", "profile to use instead of the default")
	f.StringArrayVarP(&o.files, "file", "f", nil, "add a file or glob pattern to the message (repeatable)")
	f.BoolVar(&o.think, "think", false, "enable extended thinking")
	f.BoolVar(&o.noThink, "no-think", false, "disable extended thinking")
	f.BoolVar(&o.stream, "stream", false, "stream the response")
	f.BoolVar(&o.noStream, "no-stream", false, "print the response when it is complete")
	f.IntVar(&o.maxSteps, "max-steps", 0, "maximum model requests per message")
	f.IntVar(&o.timeout, "timeout", 0, "command timeout in seconds")
	f.StringVarP(&o.session, "session", "s", "", "save the conversation under this name")
	f.StringVarP(&o.resume, "resume", "r", "", "continue a saved conversation")

	root.MarkFlagsMutuallyExclusive("think", "no-think")
	root.MarkFlagsMutuallyExclusive("stream", "no-stream")
	root.MarkFlagsMutuallyExclusive("session", "resume")

	root.AddCommand(newMCPCmd(s, &configPath))
	root.AddCommand(newVersionCmd())
	return root
}

// tristate turns an --x/--no-x pair into nil when neither was given.
func tristate(cmd *cobra.Command, on, off string) *bool {
	var v bool
	switch {
	case cmd.Flags().Changed(on):
		v = true
	case cmd.Flags().Changed(off):
		v = false
	default:
		return nil
	}
	return &v
}

func newErrorPrinter(s streams) *terminal.Printer {
	return terminal.NewPrinter(s.out, s.err, s.stdoutTTY)
}

func runAgent(cmd *cobra.Command, s streams, configPath string, o rootOptions, message string) error {
	ctx := cmd.Context()
	log := pslog.Ctx(ctx)
	printer := newErrorPrinter(s)

	loaded, err := config.LoadConfig(ctx, configPath)
	if err != nil {
		return err
	}
	if loaded.FirstRun {
		printer.Welcome(loaded.Path)
		return exitCode(1)
	}
	cfg := loaded.Config

	settings, err := cfg.Resolve(config.Overrides{
		Profile:  o.profile,
		Prompt:   o.prompt,
		Think:    tristate(cmd, "think", "no-think"),
		Stream:   tristate(cmd, "stream", "no-stream"),
		Chat:     o.chat,
		Yes:      o.yes,
		MaxSteps: o.maxSteps,
		Timeout:  o.timeout,
	}, config.Terminal{Stdin: s.stdinTTY, Stdout: s.stdoutTTY})
	if errors.Is(err, errors.ErrNoAPIKey) {
		name := o.profile
		if p, perr := cfg.GetProfile(o.profile); perr == nil {
			name = p.Name
		}
		printer.NoAPIKey(name, loaded.Path)
		return exitCode(1)
	}
	if err != nil {
		return err
	}
	log.Debug("resolved settings",
		"profile", settings.Profile.Name,
		"provider", settings.Profile.Provider,
		"mode", settings.Mode,
		"stream", settings.Stream,
		"think", settings.Think,
	)

	var pipe string
	if !s.stdinTTY {
		if pipe, err = terminal.ReadPipe(s.in); err != nil {
			return err
		}
	}
	files, err := terminal.ExpandFiles(o.files)
	if err != nil {
		return err
	}
	input, err := terminal.ProcessInput(message, settings.PromptTemplate, pipe, files)
	if err != nil {
		return err
	}

	interactive := o.interact || input.Full == ""
	if interactive && !s.stdoutTTY {
		if input.Full == "" {
			fmt.Fprintln(s.out, "No message provided. See usage below:")
			fmt.Fprintln(s.out)
			return cmd.Help()
		}
		log.Debug("interactive mode needs a terminal, sending one message")
		interactive = false
	}
	if interactive && !o.interact {
		printer.Info("Entering interactive mode...")
	}

	sess, err := openSession(o)
	if err != nil {
		return err
	}

	client, err := llm.NewClient(ctx, settings.Profile, settings.APIKey)
	if err != nil {
		return err
	}
	if c, ok := client.(io.Closer); ok {
		defer c.Close()
	}

	cwd, err := os.Getwd()
	if err != nil {
		return errors.Wrapf(err, "could not get working directory")
	}

	term := terminal.New(terminal.Options{
		Stdin:   s.in,
		Stdout:  s.out,
		Stderr:  s.err,
		TTY:     s.tty,
		Color:   settings.Color,
		Spinner: s.stdoutTTY,
		Exit:    s.exit,
	}, agent.RunConfig{
		Client:          client,
		MaxSteps:        settings.MaxSteps,
		Timeout:         settings.Timeout,
		AutoConfirm:     settings.AutoConfirm,
		AllowedCommands: settings.AllowedCommands,
		Cwd:             cwd,
		Stream:          settings.Stream,
		Options:         llm.Options{Think: settings.Think},
		DisableTools:    settings.Mode == config.ModeChat,
	}, sess)

	if interactive {
		return term.Interactive(ctx, input)
	}
	if _, err := term.Send(ctx, input.Full); err != nil {
		term.Printer().Error(err.Error())
		return exitCode(1)
	}
	return nil
}

func openSession(o rootOptions) (*session.Session, error) {
	if o.resume != "" {
		return session.Load(o.resume)
	}
	return session.New(o.session), nil
}
