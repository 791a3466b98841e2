package main

import (
	"context"
	"crypto/subtle"
	"crypto/tls"
	"errors"
	"os"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"wolfpack-sync/auth"
	"wolfpack-sync/chat"
	"wolfpack-sync/client"
	"wolfpack-sync/domain"
	"wolfpack-sync/server"
	"wolfpack-sync/session"
)

func main() {
	if dbg, err := strconv.ParseBool(os.Getenv("DEBUG")); err == nil && dbg {
		log.SetLevel(log.DebugLevel)
	}
	logger := log.StandardLogger()

	stateDir := os.Getenv("WOLFPACK_STATE_DIR")
	if stateDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			log.Fatalf("state dir: %v", err)
		}
		stateDir = home + "/.wolfpack"
	}
	store, err := auth.NewStore(stateDir)
	if err != nil {
		log.Fatalf("state store: %v", err)
	}

	var manager *auth.Manager
	api := client.New(os.Getenv("WOLFPACK_API_URL"), func() string {
		if manager == nil {
			return ""
		}
		return manager.Token()
	}, logger)
	manager = auth.NewManager(api, store, logger)

	sess, err := manager.Init(context.Background())
	if err != nil {
		if errors.Is(err, auth.ErrInitTimeout) {
			log.Fatal("session initialization timed out; backend unreachable")
		}
		log.Fatalf("session init: %v", err)
	}
	if sess == nil {
		if email, password := os.Getenv("WOLFPACK_EMAIL"), os.Getenv("WOLFPACK_PASSWORD"); email != "" {
			sess, err = manager.SignIn(context.Background(), email, password)
		} else {
			name := os.Getenv("WOLFPACK_LOCAL_NAME")
			if name == "" {
				name = "Lone Wolf"
			}
			sess, err = manager.SignInLocal(name)
		}
		if err != nil {
			log.Fatalf("sign-in: %v", err)
		}
	}
	logger.WithField("user", sess.User.ID).Info("session ready")

	wsURL := os.Getenv("WOLFPACK_WS_URL")
	if wsURL == "" {
		wsURL = strings.Replace(api.BaseURL(), "http", "ws", 1) + "/ws"
	}

	projSession := session.New(api, api, hooks(logger), logger)
	supervisor := session.NewSupervisor(projSession, session.WSConnector{URL: wsURL, Log: logger}, sess.User.ID, logger)
	defer supervisor.Close()

	if projectID := os.Getenv("WOLFPACK_PROJECT_ID"); projectID != "" {
		if err := supervisor.SetProject(context.Background(), projectID); err != nil {
			logger.WithError(err).Error("initial project load failed")
		}
	}

	var chatManager *chat.Manager
	if redisConn := os.Getenv("REDIS_CONNECTION_STRING"); redisConn != "" {
		rc := redis.NewClient(redisOptions(redisConn))
		chatManager = chat.NewManager(rc, logger)
	} else {
		logger.Warn("no realtime store configured, chat disabled")
	}

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
	}))

	token := sess.Token
	check := func(t string) bool {
		return subtle.ConstantTimeCompare([]byte(t), []byte(token)) == 1
	}
	server.Register(e, projSession, supervisor, check)
	if chatManager != nil {
		server.RegisterChat(e, chatManager, sess.User, check)
	}

	listenAddr := ":7420"
	if val, ok := os.LookupEnv("WOLFSYNC_PORT"); ok {
		listenAddr = ":" + val
	}
	e.Logger.Fatal(e.Start(listenAddr))
}

// hooks carries the fire-and-forget side effects of specific delta types
// out to the log; a UI process consuming /stream renders them.
func hooks(logger *log.Logger) session.Hooks {
	return session.Hooks{
		OnTaskCompleted: func(t domain.Task) {
			logger.WithFields(log.Fields{"task": t.ID, "title": t.Title}).Info("task completed, celebrate")
		},
		OnBoardInvitation: func(inv domain.BoardInvitation) {
			logger.WithField("project", inv.ProjectID).Info("board invitation received, navigate")
		},
		OnNewMatch: func(m domain.Match) {
			logger.WithField("match", m.ID).Info("new match")
		},
	}
}

// redisOptions parses either a redis URL or the comma-separated
// host,password=..,ssl=true connection string form.
func redisOptions(conn string) *redis.Options {
	opts, err := redis.ParseURL(conn)
	if err == nil {
		return opts
	}
	parts := strings.Split(conn, ",")
	opts = &redis.Options{Addr: parts[0]}
	for _, p := range parts[1:] {
		kv := strings.SplitN(p, "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch strings.ToLower(kv[0]) {
		case "password":
			opts.Password = kv[1]
		case "ssl":
			if strings.ToLower(kv[1]) == "true" {
				opts.TLSConfig = &tls.Config{}
			}
		}
	}
	return opts
}
