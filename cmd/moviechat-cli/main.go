package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/liliang-cn/moviechat/internal/auth"
	"github.com/liliang-cn/moviechat/internal/chat"
	"github.com/liliang-cn/moviechat/internal/cli"
	"github.com/liliang-cn/moviechat/internal/client"
	"github.com/liliang-cn/moviechat/internal/config"
	"github.com/liliang-cn/moviechat/internal/domain"
	"github.com/liliang-cn/moviechat/internal/logging"
	"github.com/liliang-cn/moviechat/internal/repository"
	"github.com/liliang-cn/moviechat/internal/service"
	"github.com/peterh/liner"
	"go.uber.org/zap"
	"golang.org/x/term"
)

var (
	configPath = flag.String("config", "", "Path to config file")
	movieID    = flag.Int64("movie", 0, "Chat about this movie ID")
	ask        = flag.String("ask", "", "Question to ask right away")
	exportDir  = flag.String("export-dir", ".", "Default directory for /export")
)

func main() {
	flag.Parse()
	if err := run(); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintln(os.Stderr, "moviechat:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}

	// Keep the terminal clean unless logs go to a file
	if cfg.Log.File == "" {
		cfg.Log.Level = "error"
	}
	logger, err := logging.New(cfg.Log)
	if err != nil {
		return err
	}
	defer logger.Sync()

	db, err := repository.NewDB(cfg.Auth.DBPath)
	if err != nil {
		return err
	}
	defer db.Close()

	backend := client.New(cfg.Backend.BaseURL,
		client.WithTimeout(cfg.Backend.Timeout),
		client.WithLogger(logger.Named("backend")),
	)
	provider := auth.NewProvider(repository.NewCredentialRepository(db), backend,
		auth.WithLeeway(cfg.Auth.RefreshLeeway),
		auth.WithLogger(logger.Named("auth")),
	)
	backend.SetCredentials(provider)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	authService := service.NewAuthService(backend, provider, logger.Named("auth"))
	if err := authService.EnsureLogin(ctx, cfg.Auth.Username, cfg.Auth.Password); err != nil {
		fmt.Fprintln(os.Stderr, "login failed, continuing anonymously:", err)
	}

	opts := []chat.Option{
		chat.WithLogger(logger.Named("session")),
		chat.WithRequestTimeout(cfg.Chat.RequestTimeout),
		chat.WithSuggestions(cfg.Chat.Suggestions),
	}
	consoleOpts := []cli.Option{cli.WithExportDir(*exportDir)}
	if width, ok := terminalWidth(); ok {
		consoleOpts = append(consoleOpts, cli.WithMarkdown(width))
	}

	if *movieID != 0 {
		catalog := service.NewCatalogService(backend, repository.NewMovieRepository(db), cfg.Cache.MovieTTL, logger.Named("catalog"))
		movie, err := catalog.GetMovie(ctx, *movieID)
		if errors.Is(err, domain.ErrNotFound) {
			return fmt.Errorf("movie %d not found", *movieID)
		}
		if err != nil {
			return err
		}
		opts = append(opts,
			chat.WithMovieID(movie.ID),
			chat.WithReveal(cfg.Chat.RevealInterval),
			chat.WithSuggestions(cfg.Chat.QuickQuestions),
		)
		consoleOpts = append(consoleOpts, cli.WithGreeting(service.Greeting(movie.Title)))
	}

	sess := chat.NewSession(backend, opts...)
	defer sess.Wait()
	defer sess.Close()

	console := cli.NewConsole(sess, os.Stdout, consoleOpts...)
	defer console.Close()

	line := liner.NewLiner()
	defer line.Close()
	line.SetCtrlCAborts(true)

	historyFile := historyPath()
	if f, err := os.Open(historyFile); err == nil {
		line.ReadHistory(f)
		f.Close()
	}
	defer saveHistory(line, historyFile, logger)

	return console.Run(ctx, &historyReader{line}, *ask)
}

// historyReader records non-empty input in the liner history
type historyReader struct {
	line *liner.State
}

func (h *historyReader) Prompt(prompt string) (string, error) {
	input, err := h.line.Prompt(prompt)
	if err != nil {
		return "", err
	}
	if input != "" {
		h.line.AppendHistory(input)
	}
	return input, nil
}

// terminalWidth reports the wrap width for markdown, false when stdout is piped
func terminalWidth() (int, bool) {
	fd := int(os.Stdout.Fd())
	if !term.IsTerminal(fd) {
		return 0, false
	}
	width, _, err := term.GetSize(fd)
	if err != nil || width <= 0 {
		return 80, true
	}
	return min(width, 120), true
}

func historyPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "moviechat", "history")
}

func saveHistory(line *liner.State, path string, logger *zap.Logger) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		logger.Warn("failed to create history directory", zap.Error(err))
		return
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		logger.Warn("failed to save history", zap.Error(err))
		return
	}
	defer f.Close()
	line.WriteHistory(f)
}
