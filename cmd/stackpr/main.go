package main

import (
	"context"
	"fmt"
	"os"

	"github.com/ejoffe/profiletimer"
	"github.com/ejoffe/rake"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"

	"github.com/corvidworks/stackpr/analyze"
	"github.com/corvidworks/stackpr/breakup"
	"github.com/corvidworks/stackpr/config"
	"github.com/corvidworks/stackpr/config/configparser"
	"github.com/corvidworks/stackpr/engine"
	"github.com/corvidworks/stackpr/engine/errs"
	"github.com/corvidworks/stackpr/forge/ghclient"
	"github.com/corvidworks/stackpr/git"
	"github.com/corvidworks/stackpr/git/realgit"
	"github.com/corvidworks/stackpr/guard"
	"github.com/corvidworks/stackpr/output"
)

var (
	version = "dev"
	commit  = "dversion"
	date    = "unknown"
)

func init() {
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	log.Logger = log.With().Caller().Logger().Output(zerolog.ConsoleWriter{Out: os.Stderr})
}

// app is everything one command invocation needs, built by setup after
// the -C chdir so config and the repo root resolve against the right
// directory.
type app struct {
	cfg    *config.Config
	gitcmd *realgit.Cmd
	eng    *engine.Engine
	brk    *breakup.Engine
}

func setup(c *cli.Context) *app {
	if dir := c.String("directory"); dir != "" {
		if err := os.Chdir(dir); err != nil {
			fmt.Println(err)
			os.Exit(2)
		}
	}

	// NewGitCmd exits with code 2 when the working directory is not
	// inside a git repository.
	gitcmd := realgit.NewGitCmd(config.DefaultConfig())

	var remoteURL string
	_ = gitcmd.Git("remote get-url origin", &remoteURL)

	cfg, err := configparser.ParseConfig(gitcmd.RootDir(), remoteURL)
	if err != nil {
		fmt.Println(err)
		os.Exit(2)
	}
	if err := configparser.CheckConfig(cfg); err != nil {
		fmt.Println(err)
		os.Exit(2)
	}
	gitcmd = realgit.NewGitCmd(cfg)

	if c.Bool("verbose") {
		cfg.User.LogGitCommands = true
		cfg.User.LogGitHubCalls = true
	}
	if c.Bool("debug") {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
		rake.LoadSources(cfg, rake.DebugWriter(os.Stdout))
	}

	var profile profiletimer.Timer = profiletimer.StartNoopTimer()
	if c.Bool("profile") {
		profile = profiletimer.StartProfileTimer()
	}

	client := ghclient.New(cfg, gitcmd)
	printer := output.New()
	return &app{
		cfg:    cfg,
		gitcmd: gitcmd,
		eng:    engine.New(cfg, gitcmd, client, printer, profile),
		brk:    breakup.New(cfg, gitcmd, client, printer),
	}
}

// exit converts an engine error into the documented process exit code:
// 2 for configuration problems, 1 for everything else.
func exit(err error) error {
	if err == nil {
		return nil
	}
	code := 1
	if errs.Is(err, errs.KindConfiguration) {
		code = 2
	}
	return cli.Exit(err.Error(), code)
}

// guarded runs fn inside the state-restoration guard: any failure
// restores the original branch and HEAD before the error is surfaced.
func (a *app) guarded(ctx context.Context, fn func() error) error {
	return guard.Run(ctx, a.gitcmd, a.cfg, fn)
}

func (a *app) finish(c *cli.Context) {
	configparser.SaveState(a.cfg)
	if c.Bool("profile") {
		if err := a.eng.Profile.ShowResults(); err != nil {
			fmt.Println(err)
		}
	}
}

func main() {
	ctx := context.Background()

	directoryFlag := &cli.StringFlag{
		Name:    "directory",
		Aliases: []string{"C"},
		Usage:   "Run as if started in the given directory",
	}
	countFlag := &cli.IntFlag{
		Name:    "count",
		Aliases: []string{"c"},
		Usage:   "Limit the operation to the given number of commits from the bottom of the stack",
	}
	noRebaseFlag := &cli.BoolFlag{
		Name:    "no-rebase",
		Aliases: []string{"nr"},
		Usage:   "Skip the fetch-then-rebase before syncing",
	}
	reviewerFlag := &cli.StringSliceFlag{
		Name:    "reviewer",
		Aliases: []string{"r"},
		Usage:   "Add the specified reviewer to every pull request in the stack",
	}
	pretendFlag := &cli.BoolFlag{
		Name:  "pretend",
		Usage: "Show what would be done without pushing or touching the forge",
	}

	cliApp := &cli.App{
		Name:                 "stackpr",
		Usage:                "Stacked pull requests",
		HideVersion:          true,
		Version:              fmt.Sprintf("%s : %s : %s\n", version, date, commit),
		EnableBashCompletion: true,
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "profile",
				Value: false,
				Usage: "Show runtime profiling info",
			},
			&cli.BoolFlag{
				Name:  "verbose",
				Value: false,
				Usage: "Log every git command and forge call",
			},
			&cli.BoolFlag{
				Name:  "debug",
				Value: false,
				Usage: "Show runtime debug info",
			},
		},
		Commands: []*cli.Command{
			{
				Name:    "update",
				Aliases: []string{"u", "up"},
				Usage:   "Create and update pull requests for the commits in the stack",
				Flags: []cli.Flag{
					directoryFlag, reviewerFlag, countFlag, noRebaseFlag, pretendFlag,
					&cli.StringSliceFlag{
						Name:    "label",
						Aliases: []string{"l"},
						Usage:   "Apply the given label to every pull request in the stack",
					},
				},
				Action: func(c *cli.Context) error {
					a := setup(c)
					defer a.finish(c)
					if c.Bool("no-rebase") {
						a.cfg.User.NoRebase = true
					}
					if c.Bool("pretend") {
						a.cfg.User.Pretend = true
					}
					if labels := c.StringSlice("label"); len(labels) > 0 {
						a.cfg.Repo.Labels = append(a.cfg.Repo.Labels, labels...)
					}
					return exit(a.guarded(ctx, func() error {
						stack, err := a.eng.Update(ctx, c.StringSlice("reviewer"), count(c))
						if err != nil {
							return err
						}
						a.eng.PrintStack(stack)
						return nil
					}))
				},
			},
			{
				Name:    "status",
				Aliases: []string{"s", "st"},
				Usage:   "Show the current stack of open pull requests",
				Flags:   []cli.Flag{directoryFlag},
				Action: func(c *cli.Context) error {
					a := setup(c)
					defer a.finish(c)
					stack, err := a.eng.Status(ctx)
					if err != nil {
						return exit(err)
					}
					a.eng.PrintStack(stack)
					return nil
				},
			},
			{
				Name:  "merge",
				Usage: "Merge the mergeable prefix of the stack",
				Flags: []cli.Flag{directoryFlag, countFlag, noRebaseFlag},
				Action: func(c *cli.Context) error {
					a := setup(c)
					defer a.finish(c)
					if c.Bool("no-rebase") {
						a.cfg.User.NoRebase = true
					}
					return exit(a.guarded(ctx, func() error {
						return a.eng.Merge(ctx, count(c))
					}))
				},
			},
			{
				Name:  "breakup",
				Usage: "Break the stack up into independent pull requests",
				Flags: []cli.Flag{
					directoryFlag, countFlag, reviewerFlag, pretendFlag,
					&cli.BoolFlag{
						Name:  "stacks",
						Usage: "Group dependent commits into independent stacks instead of skipping them",
					},
					&cli.StringFlag{
						Name:  "stack-mode",
						Value: string(breakup.ModeComponents),
						Usage: "Grouping algorithm for --stacks: components, trees, or stacks",
					},
				},
				Action: func(c *cli.Context) error {
					a := setup(c)
					defer a.finish(c)
					if c.Bool("pretend") {
						a.cfg.User.Pretend = true
					}
					mode := breakup.Mode(c.String("stack-mode"))
					switch mode {
					case breakup.ModeComponents, breakup.ModeTrees, breakup.ModeStacks:
					default:
						return cli.Exit(fmt.Sprintf("unknown stack-mode %q", mode), 2)
					}
					return exit(a.guarded(ctx, func() error {
						return a.brk.Run(ctx, breakup.Options{
							Reviewers: c.StringSlice("reviewer"),
							Count:     count(c),
							Stacks:    c.Bool("stacks"),
							Mode:      mode,
						})
					}))
				},
			},
			{
				Name:  "analyze",
				Usage: "Report which commits could be submitted independently",
				Flags: []cli.Flag{directoryFlag},
				Action: func(c *cli.Context) error {
					a := setup(c)
					defer a.finish(c)
					return exit(a.guarded(ctx, func() error {
						raw, err := a.gitcmd.UnmergedCommits(ctx)
						if err != nil {
							return err
						}
						commits := git.NonWIPPrefix(git.GenerateCommits(raw))
						trunkRef := a.cfg.Repo.GitHubRemote + "/" + a.cfg.Repo.GitHubBranchTarget
						res, err := analyze.Analyze(ctx, a.gitcmd, trunkRef, commits)
						if err != nil {
							return err
						}
						analyze.Report(output.New(), res)
						return nil
					}))
				},
			},
			{
				Name:  "check",
				Usage: "Run the configured pre-merge check and record the verified commit",
				Flags: []cli.Flag{directoryFlag},
				Action: func(c *cli.Context) error {
					a := setup(c)
					defer a.finish(c)
					return exit(a.eng.Check(ctx))
				},
			},
			{
				Name:  "amend",
				Usage: "Amend a commit in the middle of the stack",
				Flags: []cli.Flag{directoryFlag},
				Action: func(c *cli.Context) error {
					a := setup(c)
					defer a.finish(c)
					return exit(a.guarded(ctx, func() error {
						return a.eng.AmendCommit(ctx, os.Stdin)
					}))
				},
			},
			{
				Name:  "sync",
				Usage: "Synchronize the local stack with the remote",
				Flags: []cli.Flag{directoryFlag},
				Action: func(c *cli.Context) error {
					a := setup(c)
					defer a.finish(c)
					return exit(a.guarded(ctx, func() error {
						return a.eng.SyncStack(ctx)
					}))
				},
			},
			{
				Name:  "version",
				Usage: "Show version info",
				Action: func(c *cli.Context) error {
					return cli.Exit(c.App.Version, 0)
				},
			},
		},
	}

	if err := cliApp.Run(os.Args); err != nil {
		if exitErr, ok := err.(cli.ExitCoder); ok {
			if exitErr.Error() != "" {
				fmt.Fprintln(os.Stderr, exitErr.Error())
			}
			os.Exit(exitErr.ExitCode())
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func count(c *cli.Context) *int {
	if !c.IsSet("count") {
		return nil
	}
	n := c.Int("count")
	return &n
}
