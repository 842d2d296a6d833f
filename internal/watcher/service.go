package watcher

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Service watches the prompt-override directory and invokes onChange when
// a template file is written, created, renamed or removed.
type Service struct {
	dir      string
	logger   *slog.Logger
	onChange func(context.Context)
	watcher  *fsnotify.Watcher
}

func New(dir string, logger *slog.Logger, onChange func(context.Context)) (*Service, error) {
	fileWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}
	return &Service{
		dir:      dir,
		logger:   logger,
		onChange: onChange,
		watcher:  fileWatcher,
	}, nil
}

func (s *Service) Start(ctx context.Context) error {
	defer s.watcher.Close()

	if _, err := os.Stat(s.dir); os.IsNotExist(err) {
		s.logger.Info("prompt override dir missing, watcher idle", "dir", s.dir)
		<-ctx.Done()
		return nil
	}
	if err := s.watcher.Add(s.dir); err != nil {
		return fmt.Errorf("watch prompts dir %s: %w", s.dir, err)
	}
	s.logger.Info("prompt watcher started", "dir", s.dir)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("prompt watcher stopped")
			return nil
		case event := <-s.watcher.Events:
			s.handleEvent(ctx, event)
		case err := <-s.watcher.Errors:
			if err != nil {
				s.logger.Error("prompt watcher error", "error", err)
			}
		}
	}
}

func (s *Service) handleEvent(ctx context.Context, event fsnotify.Event) {
	if filepath.Ext(event.Name) != ".md" {
		return
	}
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) == 0 {
		return
	}
	s.logger.Info("prompt override changed", "path", event.Name, "op", event.Op.String())
	s.onChange(ctx)
}
