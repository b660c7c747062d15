package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/nhle/mailsync/internal/model"
	"github.com/nhle/mailsync/internal/remote/imap"
	"github.com/nhle/mailsync/internal/store"
	"github.com/nhle/mailsync/internal/sync"
)

func main() {
	configPath := flag.String("config", model.DefaultConfigPath(), "config file path")
	folderName := flag.String("folder", string(model.FolderInbox), "folder to activate")
	flag.Parse()

	cfg, err := model.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	folder := model.Folder(*folderName)
	if !folder.Valid() {
		log.Fatalf("unknown folder %q", *folderName)
	}

	// Credential handling is outside the engine; the password reaches
	// the transport through the environment.
	password := os.Getenv("MAILSYNC_PASSWORD")
	if cfg.Remote.Username == "" || password == "" {
		log.Fatal("remote.username and MAILSYNC_PASSWORD are required")
	}

	dbPath := cfg.DBPath
	if dbPath == "" {
		dbPath = filepath.Join(filepath.Dir(*configPath), "cache.db")
	}

	st, err := store.NewSQLiteStore(dbPath)
	if err != nil {
		log.Fatalf("opening snapshot store: %v", err)
	}
	defer st.Close()

	rc := imap.NewAdapter(
		cfg.Remote.IMAPHost, cfg.Remote.IMAPPort,
		cfg.Remote.SMTPHost, cfg.Remote.SMTPPort,
		cfg.Remote.Username, password,
		cfg.Remote.TLS,
		nil,
	)

	engine := sync.New(cfg.Remote.Username, rc, st, cfg.Sync)
	defer engine.Close()

	ctx, stop := signal.NotifyContext(
		context.Background(), os.Interrupt, syscall.SIGTERM,
	)
	defer stop()

	if err := engine.ActivateFolder(ctx, folder); err != nil {
		log.Printf("activating %s: %v", folder, err)
	}

	for _, msg := range engine.Messages(folder) {
		marker := " "
		if !msg.IsRead {
			marker = "*"
		}
		fmt.Printf("%s %s  %-25s  %s\n",
			marker, msg.Timestamp.Format("2006-01-02 15:04"),
			msg.From, msg.Subject,
		)
	}
	fmt.Printf("%d messages, %d unread\n",
		len(engine.Messages(folder)), engine.UnreadCount(folder),
	)

	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-engine.Events():
			switch ev.Type {
			case model.EventNewMessage:
				log.Printf("new message in %s", ev.Folder)
			case model.EventSynced:
				log.Printf("%s synced (%d messages)", ev.Folder, ev.Count)
			case model.EventFetchFailed:
				log.Printf("fetch of %s failed: %v", ev.Folder, ev.Err)
			case model.EventOfflineCacheMiss:
				log.Printf("no offline data for %s", ev.Folder)
			}
		}
	}
}
