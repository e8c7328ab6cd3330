package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/montana2ab/swarmclient/pkg/appconfig"
	"github.com/montana2ab/swarmclient/pkg/batch"
	"github.com/montana2ab/swarmclient/pkg/blinded"
	"github.com/montana2ab/swarmclient/pkg/cfgobject"
	"github.com/montana2ab/swarmclient/pkg/clockutil"
	"github.com/montana2ab/swarmclient/pkg/configsync"
	"github.com/montana2ab/swarmclient/pkg/groupsupervisor"
	"github.com/montana2ab/swarmclient/pkg/identity"
	"github.com/montana2ab/swarmclient/pkg/messagesync"
	"github.com/montana2ab/swarmclient/pkg/metrics"
	"github.com/montana2ab/swarmclient/pkg/middleware"
	"github.com/montana2ab/swarmclient/pkg/namespace"
	"github.com/montana2ab/swarmclient/pkg/nsworker"
	"github.com/montana2ab/swarmclient/pkg/store"
	"github.com/montana2ab/swarmclient/pkg/swarmmgr"
	"github.com/montana2ab/swarmclient/pkg/transport"
)

func newRunCmd() *cobra.Command {
	var seedPath string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the client: transport, swarm sync and the group supervisor",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaemon(seedPath)
		},
	}

	cmd.Flags().StringVar(&seedPath, "seed-file", "", "path to the account's hex-encoded identity seed (required)")
	_ = cmd.MarkFlagRequired("seed-file")
	return cmd
}

func runDaemon(seedPath string) error {
	cfg, err := appconfig.Load(flagConfigPath, flagEnvPath)
	if err != nil {
		return err
	}

	log := newLogger(cfg.Logging.Level, cfg.Logging.Format)

	seedHex, err := os.ReadFile(seedPath)
	if err != nil {
		return fmt.Errorf("run: read seed file: %w", err)
	}
	seed, err := hex.DecodeString(trimNewline(string(seedHex)))
	if err != nil {
		return fmt.Errorf("run: decode seed: %w", err)
	}
	id, err := identity.FromSeed(seed)
	if err != nil {
		return fmt.Errorf("run: derive identity: %w", err)
	}
	log = log.WithField("session_id", id.SessionID().String())
	log.Info("identity loaded")

	st, err := store.Open(cfg.Store.Path)
	if err != nil {
		return fmt.Errorf("run: open store: %w", err)
	}
	defer st.Close()

	seeds := transport.NewSeedClient(cfg.Network.SeedURLs, cfg.Network.RequestTimeout, cfg.Network.InsecureTLS)
	dispatch := transport.NewClient(*cfg, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reg := metrics.New()
	if cfg.Metrics.Enabled {
		metricsSrv := metrics.NewServer(reg, cfg.Metrics.ListenAddress, log)
		go func() {
			if err := metricsSrv.Run(ctx); err != nil {
				log.WithError(err).Warn("metrics server stopped")
			}
		}()
	}

	nodeLimit := middleware.NewNodeRateLimiter(cfg.RateLimit.PerNodeRPS, cfg.RateLimit.PerNodeBurst)

	mgr := swarmmgr.NewManager(id.SessionID().String(), seeds, dispatch, cfg.Network.ErrorCooldown, log)
	mgr.SetMetrics(reg)
	mgr.SetNodeRateLimiter(nodeLimit)
	if err := mgr.Resolve(ctx); err != nil {
		return fmt.Errorf("run: resolve own swarm: %w", err)
	}

	batchCaller := batch.NewBatchCaller(cfg.Batch.WindowDuration, mgr)
	batchCaller.SetMetrics(reg)

	signer := nsworker.IdentitySigner{ID: id}
	storeSigner := configsync.IdentityStoreSigner{ID: id}
	pubKeyHex := id.SessionID().String()

	userGroups, err := loadOrCreateUserGroups(ctx, st)
	if err != nil {
		return err
	}

	profile, err := loadOrCreateDocument(st, "user_profile", cfgobject.NewUserProfile)
	if err != nil {
		return err
	}
	contacts, err := loadOrCreateDocument(st, "contacts", cfgobject.NewContacts)
	if err != nil {
		return err
	}
	convoVolatile, err := loadOrCreateDocument(st, "convo_info_volatile", cfgobject.NewConvoInfoVolatile)
	if err != nil {
		return err
	}

	clock := clockutil.NewSource()

	profileWorker := nsworker.New(pubKeyHex, namespace.UserProfile, signer, batchCaller, st, cfg.Sync.DefaultPollInterval, nil, log)
	contactsWorker := nsworker.New(pubKeyHex, namespace.Contacts, signer, batchCaller, st, cfg.Sync.DefaultPollInterval, nil, log)
	convoWorker := nsworker.New(pubKeyHex, namespace.ConvoInfoVolatile, signer, batchCaller, st, cfg.Sync.DefaultPollInterval, nil, log)
	userGroupsWorker := nsworker.New(pubKeyHex, namespace.UserGroups, signer, batchCaller, st, cfg.Sync.DefaultPollInterval, nil, log)
	msgWorker := nsworker.New(pubKeyHex, namespace.Default, signer, batchCaller, st, cfg.Sync.DefaultPollInterval, nil, log)
	for _, w := range []*nsworker.Worker{profileWorker, contactsWorker, convoWorker, userGroupsWorker, msgWorker} {
		w.SetClock(clock)
	}

	profileSyncer := configsync.NewSyncer(profile, namespace.UserProfile, pubKeyHex, storeSigner, batchCaller, st, cfg.Sync.PushRetryDelay, log)
	contactsSyncer := configsync.NewSyncer(contacts, namespace.Contacts, pubKeyHex, storeSigner, batchCaller, st, cfg.Sync.PushRetryDelay, log)
	convoSyncer := configsync.NewSyncer(convoVolatile, namespace.ConvoInfoVolatile, pubKeyHex, storeSigner, batchCaller, st, cfg.Sync.PushRetryDelay, log)
	userGroupsSyncer := configsync.NewSyncer(userGroups, namespace.UserGroups, pubKeyHex, storeSigner, batchCaller, st, cfg.Sync.PushRetryDelay, log)
	for _, s := range []*configsync.Syncer{profileSyncer, contactsSyncer, convoSyncer, userGroupsSyncer} {
		s.SetClock(clock)
	}
	directSyncer := messagesync.NewDirect(id, st, log)

	go profileWorker.Run(ctx)
	go contactsWorker.Run(ctx)
	go convoWorker.Run(ctx)
	go userGroupsWorker.Run(ctx)
	go msgWorker.Run(ctx)

	go profileSyncer.Run(ctx, profileWorker.Output())
	go contactsSyncer.Run(ctx, contactsWorker.Output())
	go convoSyncer.Run(ctx, convoWorker.Output())
	go userGroupsSyncer.Run(ctx, userGroupsWorker.Output())
	go directSyncer.Run(ctx, msgWorker.Output())

	supervisor := groupsupervisor.NewSupervisor(
		id.SessionID(),
		userGroups,
		userGroupsSyncer.Changed(),
		&swarmSwarmFactory{seeds: seeds, dispatch: dispatch, errorCooldown: cfg.Network.ErrorCooldown, metrics: reg, nodeLimit: nodeLimit, log: log},
		&storeAuthFactory{self: id, st: st},
		st,
		cfg.Sync.GroupPollInterval,
		cfg.Sync.PushRetryDelay,
		log,
	)
	go supervisor.Run(ctx)

	deriver := blinded.NewDeriver(id.SessionID(), st, log)
	go deriver.Run(ctx, userGroups, userGroupsSyncer.Changed())

	log.Info("swarmclientd running")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	log.Info("shutting down")
	cancel()
	return nil
}

func newLogger(level, format string) *logrus.Entry {
	l := logrus.New()
	if lvl, err := logrus.ParseLevel(level); err == nil {
		l.SetLevel(lvl)
	}
	if format == "json" {
		l.SetFormatter(&logrus.JSONFormatter{})
	}
	return logrus.NewEntry(l)
}

func loadOrCreateUserGroups(ctx context.Context, st *store.Store) (*cfgobject.UserGroups, error) {
	row, ok, err := st.LoadConfig(ctx, "user_groups")
	if err != nil {
		return nil, fmt.Errorf("run: load user_groups: %w", err)
	}
	if !ok {
		return cfgobject.NewUserGroups(nil)
	}
	return cfgobject.NewUserGroups(row.Dump)
}

func loadOrCreateDocument[T any](st *store.Store, variant string, ctor func([]byte) (T, error)) (T, error) {
	row, ok, err := st.LoadConfig(context.Background(), variant)
	if err != nil {
		var zero T
		return zero, fmt.Errorf("run: load %s: %w", variant, err)
	}
	if !ok {
		return ctor(nil)
	}
	return ctor(row.Dump)
}

func trimNewline(s string) string {
	for len(s) > 0 && (s[len(s)-1] == '\n' || s[len(s)-1] == '\r') {
		s = s[:len(s)-1]
	}
	return s
}
