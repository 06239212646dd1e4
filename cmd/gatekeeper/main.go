package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/forumgate/gatekeeper/engage/engine"
	"github.com/forumgate/gatekeeper/reddit"
	"github.com/forumgate/gatekeeper/util/cliutil"

	"github.com/carlmjohnson/versioninfo"
	_ "github.com/joho/godotenv/autoload"
	cli "github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"
)

func main() {
	if err := run(os.Args); err != nil {
		slog.Error("exiting", "err", err)
		os.Exit(-1)
	}
}

func run(args []string) error {

	app := cli.App{
		Name:    "gatekeeper",
		Usage:   "self-promotion gate for a link-sharing forum",
		Version: versioninfo.Short(),
	}

	app.Flags = []cli.Flag{
		&cli.StringFlag{
			Name:    "log-level",
			Usage:   "log verbosity level (eg: warn, info, debug)",
			EnvVars: []string{"GATEKEEPER_LOG_LEVEL", "LOG_LEVEL"},
		},
		&cli.StringFlag{
			Name:    "log-format",
			Usage:   "log output format (text or json)",
			EnvVars: []string{"GATEKEEPER_LOG_FMT", "LOG_FMT"},
		},
		&cli.StringFlag{
			Name:    "reddit-client-id",
			Usage:   "OAuth client ID of the bot's 'script' app",
			EnvVars: []string{"REDDIT_CLIENT_ID"},
		},
		&cli.StringFlag{
			Name:    "reddit-client-secret",
			Usage:   "OAuth client secret of the bot's 'script' app",
			EnvVars: []string{"REDDIT_CLIENT_SECRET"},
		},
		&cli.StringFlag{
			Name:    "reddit-username",
			Usage:   "username of the bot account (must moderate the forum)",
			EnvVars: []string{"REDDIT_USERNAME"},
		},
		&cli.StringFlag{
			Name:    "reddit-password",
			Usage:   "password of the bot account",
			EnvVars: []string{"REDDIT_PASSWORD"},
		},
		&cli.StringFlag{
			Name:    "reddit-host",
			Usage:   "API host for authenticated requests",
			Value:   reddit.DefaultHost,
			EnvVars: []string{"REDDIT_HOST"},
		},
		&cli.StringFlag{
			Name:    "reddit-auth-host",
			Usage:   "host of the OAuth token endpoint",
			Value:   reddit.DefaultAuthHost,
			EnvVars: []string{"REDDIT_AUTH_HOST"},
		},
		&cli.StringFlag{
			Name:    "forum",
			Usage:   "name of the subreddit to gate",
			Value:   engine.DefaultConfig().Forum,
			EnvVars: []string{"GATEKEEPER_FORUM"},
		},
		&cli.StringFlag{
			Name:    "link-pattern",
			Usage:   "regular expression matching links which make a post or comment relevant",
			Value:   engine.DefaultConfig().LinkPattern,
			EnvVars: []string{"GATEKEEPER_LINK_PATTERN"},
		},
		&cli.IntFlag{
			Name:    "min-comment-words",
			Usage:   "words a comment needs to count as engagement",
			Value:   engine.DefaultConfig().MinCommentWords,
			EnvVars: []string{"GATEKEEPER_MIN_COMMENT_WORDS"},
		},
		&cli.IntFlag{
			Name:    "min-qualifying-comments",
			Usage:   "qualifying comments needed before sharing own work",
			Value:   engine.DefaultConfig().MinQualifyingComments,
			EnvVars: []string{"GATEKEEPER_MIN_QUALIFYING_COMMENTS"},
		},
		&cli.IntFlag{
			Name:    "min-reputation",
			Usage:   "minimum account karma",
			Value:   engine.DefaultConfig().MinReputation,
			EnvVars: []string{"GATEKEEPER_MIN_REPUTATION"},
		},
		&cli.IntFlag{
			Name:    "cooldown-days",
			Usage:   "calendar days between accepted posts by the same author",
			Value:   engine.DefaultConfig().CooldownDays,
			EnvVars: []string{"GATEKEEPER_COOLDOWN_DAYS"},
		},
		&cli.IntFlag{
			Name:    "min-description-words",
			Usage:   "words a submission's own text needs",
			Value:   engine.DefaultConfig().MinDescriptionWords,
			EnvVars: []string{"GATEKEEPER_MIN_DESCRIPTION_WORDS"},
		},
		&cli.DurationFlag{
			Name:    "rate-limit-backoff",
			Usage:   "wait before retrying a moderation action that was rate-limited",
			Value:   engine.DefaultConfig().RateLimitBackoff,
			EnvVars: []string{"GATEKEEPER_RATE_LIMIT_BACKOFF"},
		},
		&cli.DurationFlag{
			Name:    "action-pacing",
			Usage:   "pause after each successful moderation action",
			Value:   engine.DefaultConfig().ActionPacing,
			EnvVars: []string{"GATEKEEPER_ACTION_PACING"},
		},
		&cli.StringFlag{
			Name:    "disclaimer",
			Usage:   "footer appended to every bot reply",
			Value:   engine.DefaultDisclaimer,
			EnvVars: []string{"GATEKEEPER_DISCLAIMER"},
		},
		&cli.StringFlag{
			Name:    "accept-message",
			Usage:   "reply left on accepted submissions (none if empty)",
			EnvVars: []string{"GATEKEEPER_ACCEPT_MESSAGE"},
		},
		&cli.BoolFlag{
			Name:    "comment-feedback",
			Usage:   "reply to each comment when it first counts as engagement",
			EnvVars: []string{"GATEKEEPER_COMMENT_FEEDBACK"},
		},
		&cli.StringFlag{
			Name:    "activity-store",
			Usage:   "where author activity records live: path to a CSV file, 'redis', or a database URL (sqlite://, postgres://)",
			Value:   "user_activity.csv",
			EnvVars: []string{"GATEKEEPER_ACTIVITY_STORE"},
		},
		&cli.StringFlag{
			Name:    "redis-url",
			Usage:   "redis connection URL, for shared state and the submission cursor",
			EnvVars: []string{"GATEKEEPER_REDIS_URL", "REDIS_URL"},
		},
		&cli.IntFlag{
			Name:    "max-db-connections",
			EnvVars: []string{"GATEKEEPER_MAX_DB_CONNECTIONS"},
			Value:   10,
		},
		&cli.StringFlag{
			Name:    "sets-json-path",
			Usage:   "file path of JSON file containing static sets (eg, bypass-users)",
			EnvVars: []string{"GATEKEEPER_SETS_JSON_PATH"},
		},
	}

	app.Commands = []*cli.Command{
		runCmd,
		checkUserCmd,
	}

	return app.Run(args)
}

func configLogger(cctx *cli.Context) (*slog.Logger, error) {
	return cliutil.SetupSlog(cliutil.LogOptions{
		LogLevel:  cctx.String("log-level"),
		LogFormat: cctx.String("log-format"),
	})
}

func configFromCLI(cctx *cli.Context, logger *slog.Logger) Config {
	return Config{
		Engine: engine.Config{
			Forum:                 cctx.String("forum"),
			LinkPattern:           cctx.String("link-pattern"),
			MinCommentWords:       cctx.Int("min-comment-words"),
			MinQualifyingComments: cctx.Int("min-qualifying-comments"),
			MinReputation:         cctx.Int("min-reputation"),
			CooldownDays:          cctx.Int("cooldown-days"),
			MinDescriptionWords:   cctx.Int("min-description-words"),
			RateLimitBackoff:      cctx.Duration("rate-limit-backoff"),
			ActionPacing:          cctx.Duration("action-pacing"),
			Disclaimer:            cctx.String("disclaimer"),
			AcceptMessage:         cctx.String("accept-message"),
			CommentFeedback:       cctx.Bool("comment-feedback"),
		},
		Reddit: reddit.Credentials{
			ClientID:     cctx.String("reddit-client-id"),
			ClientSecret: cctx.String("reddit-client-secret"),
			Username:     cctx.String("reddit-username"),
			Password:     cctx.String("reddit-password"),
		},
		RedditHost:       cctx.String("reddit-host"),
		RedditAuthHost:   cctx.String("reddit-auth-host"),
		ActivityStore:    cctx.String("activity-store"),
		RedisURL:         cctx.String("redis-url"),
		MaxDBConnections: cctx.Int("max-db-connections"),
		SetsFileJSON:     cctx.String("sets-json-path"),
		Logger:           logger,
	}
}

var runCmd = &cli.Command{
	Name:  "run",
	Usage: "run the service",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:    "metrics-listen",
			Usage:   "IP or address, and port, to listen on for metrics APIs",
			Value:   ":3989",
			EnvVars: []string{"GATEKEEPER_METRICS_LISTEN"},
		},
		&cli.StringFlag{
			Name:    "slack-webhook-url",
			Usage:   "full URL of slack webhook, to post a mod-log of rejections",
			EnvVars: []string{"SLACK_WEBHOOK_URL"},
		},
		&cli.DurationFlag{
			Name:    "poll-period",
			Usage:   "wait between polls of the forum which found nothing new",
			Value:   defaultPollPeriod,
			EnvVars: []string{"GATEKEEPER_POLL_PERIOD"},
		},
		&cli.IntFlag{
			Name:    "poll-limit",
			Usage:   "submissions requested per poll",
			Value:   defaultPollLimit,
			EnvVars: []string{"GATEKEEPER_POLL_LIMIT"},
		},
	},
	Action: func(cctx *cli.Context) error {
		// interrupt and terminate stop polling; a submission already in flight is finished first
		ctx, stop := signal.NotifyContext(cctx.Context, syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		logger, err := configLogger(cctx)
		if err != nil {
			return err
		}

		shutdownOTEL, err := configOTEL(ctx, "gatekeeper")
		if err != nil {
			return err
		}
		defer shutdownOTEL()

		config := configFromCLI(cctx, logger)
		config.SlackWebhookURL = cctx.String("slack-webhook-url")
		config.PollPeriod = cctx.Duration("poll-period")
		config.PollLimit = cctx.Int("poll-limit")

		srv, err := NewServer(config)
		if err != nil {
			return fmt.Errorf("failed to construct server: %v", err)
		}
		defer srv.Close()

		// the bot can do nothing without a working login
		if err := srv.Authenticate(ctx); err != nil {
			return err
		}

		// prometheus HTTP endpoint: /metrics
		go func() {
			if err := srv.RunMetrics(cctx.String("metrics-listen")); err != nil {
				slog.Error("failed to start metrics endpoint", "error", err)
				panic(fmt.Errorf("failed to start metrics endpoint: %w", err))
			}
		}()

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			return srv.poller.RunPersistCursor(gctx)
		})
		g.Go(func() error {
			return srv.poller.Run(gctx)
		})
		if err := g.Wait(); err != nil && ctx.Err() == nil {
			return err
		}
		logger.Info("shut down cleanly")
		return nil
	},
}

var checkUserCmd = &cli.Command{
	Name:      "check-user",
	Usage:     "report an author's stored activity and current eligibility, without acting",
	ArgsUsage: `<username>`,
	Action: func(cctx *cli.Context) error {
		ctx := context.Background()
		user := cctx.Args().First()
		if user == "" {
			return fmt.Errorf("need to provide username as an argument")
		}

		logger, err := configLogger(cctx)
		if err != nil {
			return err
		}

		srv, err := NewServer(configFromCLI(cctx, logger))
		if err != nil {
			return fmt.Errorf("failed to construct server: %v", err)
		}
		defer srv.Close()

		report, err := srv.CheckUser(ctx, user)
		if err != nil {
			return err
		}
		b, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(b))
		return nil
	},
}
