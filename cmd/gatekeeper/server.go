package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/forumgate/gatekeeper/engage/activitystore"
	"github.com/forumgate/gatekeeper/engage/cachestore"
	"github.com/forumgate/gatekeeper/engage/consumer"
	"github.com/forumgate/gatekeeper/engage/countstore"
	"github.com/forumgate/gatekeeper/engage/dedupe"
	"github.com/forumgate/gatekeeper/engage/engine"
	"github.com/forumgate/gatekeeper/engage/platform"
	"github.com/forumgate/gatekeeper/engage/setstore"
	"github.com/forumgate/gatekeeper/reddit"
	"github.com/forumgate/gatekeeper/util/cliutil"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
)

const (
	defaultPollPeriod = 30 * time.Second
	defaultPollLimit  = 25
)

type Server struct {
	engine  *engine.Engine
	poller  *consumer.Poller
	client  *reddit.Client
	logger  *slog.Logger
	rdb     *redis.Client
	closers []io.Closer
}

type Config struct {
	Engine           engine.Config
	Reddit           reddit.Credentials
	RedditHost       string
	RedditAuthHost   string
	ActivityStore    string
	RedisURL         string
	MaxDBConnections int
	SetsFileJSON     string
	SlackWebhookURL  string
	PollPeriod       time.Duration
	PollLimit        int
	Logger           *slog.Logger
}

func NewServer(config Config) (*Server, error) {
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	if err := checkCredentials(config.Reddit); err != nil {
		return nil, err
	}
	client := reddit.NewClient(config.Reddit, logger)
	if config.RedditHost != "" {
		client.Host = config.RedditHost
	}
	if config.RedditAuthHost != "" {
		client.AuthHost = config.RedditAuthHost
	}
	plat := platform.NewRedditPlatform(client)

	srv := &Server{
		client: client,
		logger: logger,
	}

	activity, err := srv.openActivityStore(config)
	if err != nil {
		return nil, fmt.Errorf("opening activity store: %w", err)
	}

	eng, err := engine.NewEngine(config.Engine, plat, activity, logger.With("component", "engine"))
	if err != nil {
		srv.Close()
		return nil, err
	}

	if config.RedisURL != "" {
		// check redis connection
		opt, err := redis.ParseURL(config.RedisURL)
		if err != nil {
			srv.Close()
			return nil, fmt.Errorf("parsing redis URL: %v", err)
		}
		rdb := redis.NewClient(opt)
		if _, err := rdb.Ping(context.TODO()).Result(); err != nil {
			srv.Close()
			return nil, fmt.Errorf("redis ping failed: %v", err)
		}
		srv.rdb = rdb
		srv.closers = append(srv.closers, rdb)

		tracker, err := dedupe.NewRedisTracker(config.RedisURL)
		if err != nil {
			srv.Close()
			return nil, fmt.Errorf("failed to create redis dedupe tracker: %v", err)
		}
		eng.Dedupe = tracker
		srv.closers = append(srv.closers, tracker.Client)

		cnt, err := countstore.NewRedisCountStore(config.RedisURL)
		if err != nil {
			srv.Close()
			return nil, fmt.Errorf("failed to create redis count store: %v", err)
		}
		eng.Counters = cnt
		srv.closers = append(srv.closers, cnt.Client)

		csh, err := cachestore.NewRedisCacheStore(config.RedisURL, 30*time.Minute)
		if err != nil {
			srv.Close()
			return nil, fmt.Errorf("failed to create redis cache store: %v", err)
		}
		eng.Cache = csh
		plat.Cache = csh
		srv.closers = append(srv.closers, csh.Client)
	} else {
		logger.Warn("no redis configured: evaluated comments will be re-counted after a restart, and the poller will skip submissions made while down")
	}

	sets := setstore.NewMemSetStore()
	if config.SetsFileJSON != "" {
		if err := sets.LoadFromFileJSON(config.SetsFileJSON); err != nil {
			srv.Close()
			return nil, fmt.Errorf("initializing in-process setstore: %v", err)
		}
		logger.Info("loaded set config from JSON", "path", config.SetsFileJSON)
	}
	eng.Sets = sets

	if config.SlackWebhookURL != "" {
		eng.Notifier = &engine.SlackNotifier{
			SlackWebhookURL: config.SlackWebhookURL,
		}
	}
	srv.engine = eng

	poller, err := consumer.NewPoller(logger, plat, eng, config.Engine.Forum)
	if err != nil {
		srv.Close()
		return nil, err
	}
	poller.RedisClient = srv.rdb
	if config.PollPeriod > 0 {
		poller.Period = config.PollPeriod
	}
	if config.PollLimit > 0 {
		poller.Limit = config.PollLimit
	}
	srv.poller = poller

	return srv, nil
}

func checkCredentials(creds reddit.Credentials) error {
	switch {
	case creds.ClientID == "":
		return &engine.ConfigError{Field: "reddit-client-id", Reason: "required"}
	case creds.ClientSecret == "":
		return &engine.ConfigError{Field: "reddit-client-secret", Reason: "required"}
	case creds.Username == "":
		return &engine.ConfigError{Field: "reddit-username", Reason: "required"}
	case creds.Password == "":
		return &engine.ConfigError{Field: "reddit-password", Reason: "required"}
	}
	return nil
}

// Picks the activity record backend from a location string: "redis" (using the configured redis URL), a sqlite or postgres database URL, or else a CSV file path (optionally "file://" prefixed).
func (s *Server) openActivityStore(config Config) (activitystore.ActivityStore, error) {
	loc := config.ActivityStore
	switch {
	case loc == "":
		return nil, &engine.ConfigError{Field: "activity-store", Reason: "required"}
	case loc == "redis":
		if config.RedisURL == "" {
			return nil, &engine.ConfigError{Field: "activity-store", Reason: "redis store requires a redis URL"}
		}
		st, err := activitystore.NewRedisActivityStore(config.RedisURL)
		if err != nil {
			return nil, err
		}
		s.closers = append(s.closers, st.Client)
		s.logger.Info("activity records in redis")
		return st, nil
	case strings.HasPrefix(loc, "sqlite"), strings.HasPrefix(loc, "postgres"):
		db, err := cliutil.SetupDatabase(loc, config.MaxDBConnections, s.logger)
		if err != nil {
			return nil, err
		}
		st, err := activitystore.NewSQLActivityStore(db)
		if err != nil {
			return nil, err
		}
		s.closers = append(s.closers, st)
		s.logger.Info("activity records in database")
		return st, nil
	default:
		path := strings.TrimPrefix(loc, "file://")
		st, err := activitystore.NewFileActivityStore(path)
		if err != nil {
			return nil, err
		}
		s.logger.Info("activity records in CSV file", "path", path)
		return st, nil
	}
}

// Fetches an access token, to fail fast on bad credentials.
func (s *Server) Authenticate(ctx context.Context) error {
	if _, err := s.client.AccessToken(ctx); err != nil {
		return &engine.ConfigError{Field: "reddit credentials", Reason: err.Error()}
	}
	s.logger.Info("authenticated to reddit", "username", s.client.Creds.Username)
	return nil
}

func (s *Server) RunMetrics(listen string) error {
	http.Handle("/metrics", promhttp.Handler())
	return http.ListenAndServe(listen, nil)
}

type UserReport struct {
	User               string `json:"user"`
	LastPostDate       string `json:"lastPostDate,omitempty"`
	BankedComments     int    `json:"bankedComments"`
	InCooldown         bool   `json:"inCooldown"`
	CooldownEnds       string `json:"cooldownEnds,omitempty"`
	Eligible           bool   `json:"eligible"`
	Reason             string `json:"reason"`
	QualifyingComments int    `json:"qualifyingComments"`
	NewlyQualified     int    `json:"newlyQualified"`

	Decisions *engine.DecisionStats `json:"decisions,omitempty"`
}

func (s *Server) CheckUser(ctx context.Context, user string) (*UserReport, error) {
	rec, v, err := s.engine.CheckEligibility(ctx, user)
	if err != nil {
		return nil, err
	}
	report := UserReport{
		User:               user,
		BankedComments:     rec.QualifyingCommentCount,
		Eligible:           v.Eligible,
		Reason:             v.Reason,
		QualifyingComments: v.QualifyingComments,
		NewlyQualified:     v.NewlyQualified,
	}
	now := time.Now
	if s.engine.Now != nil {
		now = s.engine.Now
	}
	if rec.HasPosted() {
		days := s.engine.Config.CooldownDays
		report.LastPostDate = rec.FormatDate()
		report.InCooldown = engine.InCooldown(rec.LastPostDate, now(), days)
		report.CooldownEnds = engine.CooldownEnds(rec.LastPostDate, days).Format(activitystore.DateLayout)
	}
	stats, err := s.engine.DecisionStats(ctx, user)
	if err != nil {
		return nil, fmt.Errorf("reading decision counts: %w", err)
	}
	report.Decisions = stats
	return &report, nil
}

func (s *Server) Close() {
	for _, c := range s.closers {
		if err := c.Close(); err != nil {
			s.logger.Warn("failed to close resource", "err", err)
		}
	}
	s.closers = nil
}
