package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kelvyncastro/kairoapp-sub002/config"
	"github.com/kelvyncastro/kairoapp-sub002/internal/clients/caldav"
	"github.com/kelvyncastro/kairoapp-sub002/internal/notify"
	"github.com/kelvyncastro/kairoapp-sub002/internal/scheduler"
	"github.com/kelvyncastro/kairoapp-sub002/internal/service"
	"github.com/kelvyncastro/kairoapp-sub002/internal/storage"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	store, err := storage.New(cfg.DatabasePath)
	if err != nil {
		log.Fatalf("Failed to init storage: %v", err)
	}
	defer store.Close()

	var remote *caldav.Client
	if cfg.HasCalDAV() {
		remote = caldav.NewClient(cfg.CalDAVURL, cfg.CalDAVUsername, cfg.CalDAVPassword)
		remote.SetCalendarPath(cfg.CalDAVCalendar)
	}

	blockSvc := service.NewBlockService(store, remote)

	var channel scheduler.Channel
	if cfg.HasTelegram() {
		tg, err := notify.NewTelegram(cfg.TelegramToken, cfg.TelegramChatID)
		if err != nil {
			log.Fatalf("Failed to init telegram channel: %v", err)
		}
		channel = tg
	} else {
		log.Println("No Telegram token configured, reminders go to the log")
		channel = notify.Log{}
	}

	sched := scheduler.New(cfg.Timezone, store, store, store, channel)

	session, err := sched.StartSession(cfg.OwnerUserID)
	if err != nil {
		log.Fatalf("Failed to start reminder session: %v", err)
	}

	// Morning replan: pull external obligations, repack the day around
	// them, and tell the owner what moved.
	morningSpec := fmt.Sprintf("0 %d %d * * *", cfg.MorningMinute, cfg.MorningHour)
	err = sched.AddDailyJob(morningSpec, func() {
		day := time.Now().In(cfg.Timezone)

		imported, err := blockSvc.ImportBusyEvents(context.Background(), cfg.OwnerUserID, day)
		if err != nil {
			log.Printf("Error importing busy events: %v", err)
		} else if imported > 0 {
			log.Printf("Imported %d external events as fixed blocks", imported)
		}

		result, _, err := blockSvc.ReorganizeDay(cfg.OwnerUserID, day, cfg.Workday)
		if err != nil {
			log.Printf("Error reorganizing day: %v", err)
			return
		}

		text := "Today's plan: " + result.Summary()
		if len(result.Removed) > 0 {
			text += "\nBlocks that did not fit can be postponed to tomorrow."
		}
		if err := channel.Notify(cfg.OwnerUserID, "🗓 Morning plan", text); err != nil {
			log.Printf("Error sending morning plan: %v", err)
		}
	})
	if err != nil {
		log.Fatalf("Failed to add morning replan job: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		if err := sched.Start(ctx); err != nil {
			log.Printf("Scheduler error: %v", err)
		}
	}()

	log.Println("Kairo daemon started")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Println("Shutting down...")

	sched.StopSession(session)
	cancel()
	sched.Stop()

	log.Println("Kairo daemon stopped")
}
