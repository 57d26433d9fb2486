package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"dicodingevent/internal/config"
	"dicodingevent/internal/dispatch"
	"dicodingevent/internal/eventapi"
	"dicodingevent/internal/eventsync"
	"dicodingevent/internal/favorite"
	appLog "dicodingevent/internal/log"
	"dicodingevent/internal/notify"
	"dicodingevent/internal/prefs"
	"dicodingevent/internal/reminder"
	"dicodingevent/internal/settings"
	"dicodingevent/internal/store"
	"dicodingevent/internal/web"
)

// flagConfig holds CLI flag values before config loading.
type flagConfig struct {
	configPath string
	envFile    string
	listen     string
	once       bool
}

func main() {
	appLog.Info("dicodingevent starting", "version", "0.1.0")

	flags := parseFlags()

	conf, err := config.Load(flags.configPath)
	if err != nil {
		appLog.Error("failed to load config", err, "config_path", flags.configPath)
		os.Exit(1)
	}
	var envFiles []string
	if flags.envFile != "" {
		envFiles = append(envFiles, flags.envFile)
	}
	if err := conf.ApplyEnv(envFiles...); err != nil {
		appLog.Error("failed to load environment", err)
		os.Exit(1)
	}

	// CLI --listen overrides config file listen if provided.
	if flags.listen != "" {
		conf.Listen = flags.listen
	}
	appLog.SetLevel(appLog.ParseLevel(conf.LogLevel))

	appLog.Info("effective config",
		"listen", conf.Listen,
		"base_url", conf.API.BaseURL,
		"db_driver", conf.Database.Driver,
		"workers", conf.Workers,
		"reminder", conf.Reminder.Name,
		"notify_permission", conf.Notifications.PermissionGranted,
		"once", flags.once,
	)

	// Root context with cancellation on SIGINT/SIGTERM.
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, conf, flags.once); err != nil {
		appLog.Error("dicodingevent failed", err)
		os.Exit(1)
	}
	appLog.Info("dicodingevent exiting")
}

func run(ctx context.Context, conf *config.Config, once bool) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	source, err := eventapi.NewClient(conf.API.BaseURL, conf.API.Timeout)
	if err != nil {
		return err
	}

	hub := web.NewHub()
	gate := notify.NewGate(notify.Multi{notify.LogNotifier{}, hub}, conf.Notifications.PermissionGranted)

	// One-shot: run the reminder job once and exit.
	if once {
		reminder.DailyJob(source, notify.NewGate(notify.LogNotifier{}, conf.Notifications.PermissionGranted))(ctx)
		return nil
	}

	loc := conf.Location()

	loop := dispatch.NewLoop()
	loopDone := make(chan struct{})
	go func() {
		loop.Run(ctx)
		close(loopDone)
	}()
	pool := dispatch.NewPool(ctx, conf.Workers)

	go hub.Run(ctx)

	favStore, err := store.Open(ctx, conf.Database.Driver, conf.Database.DSN)
	if err != nil {
		return err
	}
	defer favStore.Close()

	prefStore, err := prefs.OpenFile(conf.PreferencesPath)
	if err != nil {
		return err
	}

	sched := reminder.NewScheduler(ctx, loc)
	policy := reminder.Policy{
		Interval:     conf.Reminder.Interval,
		InitialDelay: conf.Reminder.InitialDelay,
		Cron:         conf.Reminder.Cron,
		RRule:        conf.Reminder.RRule,
		Location:     loc,
	}
	// Started first so restored entries log their real next run.
	sched.Start()
	settingsSvc := settings.NewService(prefStore, sched, conf.Reminder.Name, policy, reminder.DailyJob(source, gate))
	if err := settingsSvc.Restore(); err != nil {
		appLog.Error("failed to restore daily reminder", err)
	}

	var favOpts []favorite.Option
	if conf.SerializeToggles {
		favOpts = append(favOpts, favorite.WithSerializedToggles())
	}
	var syncOpts []eventsync.Option
	if conf.LatestOnly {
		syncOpts = append(syncOpts, eventsync.WithLatestOnly())
	}

	srv := web.NewServer(web.Options{
		Config:      conf,
		Source:      source,
		UI:          loop,
		IO:          pool,
		Favorites:   favorite.NewService(favStore, favOpts...),
		Settings:    settingsSvc,
		Hub:         hub,
		Location:    loc,
		SyncOptions: syncOpts,
	})

	if conf.Notifications.NotifyOnStartup {
		pool.Go(func(ctx context.Context) {
			reminder.NotifyLatest(ctx, source, gate, notify.ChannelNewEvent, notify.IDNewEvent)
		})
	}

	err = srv.ListenAndServe(ctx)
	// Also reached when the listener fails; stop the workers either way.
	cancel()

	stopCtx := sched.Stop()
	select {
	case <-stopCtx.Done():
	case <-time.After(5 * time.Second):
		appLog.Warn("reminder jobs still running at shutdown")
	}
	pool.Wait()
	<-loopDone
	return err
}

func parseFlags() flagConfig {
	var cfg flagConfig

	flag.StringVar(&cfg.configPath, "config", "config.yaml", "Path to config file")
	flag.StringVar(&cfg.envFile, "env", "", "Path to a .env file (default: ./.env if present)")
	flag.StringVar(&cfg.listen, "listen", "", "HTTP listen address (overrides config if set)")
	flag.BoolVar(&cfg.once, "once", false, "Run the daily reminder job once and exit")

	flag.Parse()

	return cfg
}
