package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/anchoros/anchord/internal/core/application"
	"github.com/anchoros/anchord/internal/core/domain"
	"github.com/anchoros/anchord/internal/core/ports"
	alertsmanager "github.com/anchoros/anchord/internal/infrastructure/alertsmanager"
	"github.com/anchoros/anchord/internal/infrastructure/db"
	statickyc "github.com/anchoros/anchord/internal/infrastructure/kyc/static"
	inmemorylivestore "github.com/anchoros/anchord/internal/infrastructure/live-store/inmemory"
	redislivestore "github.com/anchoros/anchord/internal/infrastructure/live-store/redis"
	bitcoinproof "github.com/anchoros/anchord/internal/infrastructure/proof/bitcoin"
	timescheduler "github.com/anchoros/anchord/internal/infrastructure/scheduler/gocron"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
)

var (
	supportedEventDbs = supportedType{
		"gochannel": {},
	}
	supportedDbs = supportedType{
		"badger": {},
	}
	supportedLiveStores = supportedType{
		"inmemory": {},
		"redis":    {},
	}
	supportedNetworks = map[string]*chaincfg.Params{
		"mainnet": &chaincfg.MainNetParams,
		"testnet": &chaincfg.TestNet3Params,
		"signet":  &chaincfg.SigNetParams,
		"regtest": &chaincfg.RegressionNetParams,
	}
)

type Config struct {
	Datadir  string
	LogLevel int

	DbType      string
	EventDbType string
	DbDir       string

	LiveStoreType       string
	RedisUrl            string
	RedisTxNumOfRetries int

	Network       string
	OracleSources []string
	WindowSize    int

	MaxStaleness    int64 // seconds
	MaxFutureSkew   int64 // seconds
	MaxDeviationPct float64

	BaseTierLimit    uint64
	VerifyInterval   int64 // seconds
	VerifiedOwners   []string
	PrivilegedOwners []string

	TxTTL                 int64 // seconds
	MultisigSweepInterval int64 // seconds
	ChannelSweepInterval  int64 // seconds

	AlertManagerURL string

	repo          ports.RepoManager
	liveStore     ports.LiveStore
	scheduler     ports.SchedulerService
	alerts        ports.Alerts
	proofVerifier ports.ProofVerifier
	tierProvider  ports.TierProvider
	oracleSvc     application.OracleService
	commitmentSvc application.CommitmentService
	multisigSvc   application.MultisigService
	channelSvc    application.ChannelService
	rewardSvc     application.RewardService
}

func (c *Config) String() string {
	json, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Sprintf("error while marshalling config JSON: %s", err)
	}
	return string(json)
}

var (
	defaultDatadir             = "./data"
	defaultLogLevel            = 4
	defaultDbType              = "badger"
	defaultEventDbType         = "gochannel"
	defaultLiveStoreType       = "inmemory"
	defaultRedisTxNumOfRetries = 10
	defaultNetwork             = "mainnet"
	defaultWindowSize          = 12
	defaultMaxStaleness        = 120 // seconds
	defaultMaxFutureSkew       = 5   // seconds
	defaultMaxDeviationPct     = 5.0
	defaultBaseTierLimit       = 100_000_000 // 1 BTC in satoshis
	defaultVerifyInterval      = 60          // seconds
	defaultTxTTL               = 86400       // 24 hours
	defaultSweepInterval       = 60          // seconds
)

// env returns a list of strings prefixed with `ANCHORD_`.
// This is used as a syntax sugar for defining env vars.
func env(values ...string) []string {
	envs := make([]string, len(values))

	for i, value := range values {
		envs[i] = fmt.Sprintf("ANCHORD_%s", value)
	}

	return envs
}

var (
	Datadir = &cli.StringFlag{
		Usage: "Directory to store data",
		Name:  "datadir", EnvVars: env("DATADIR"),
		Value: defaultDatadir,
	}

	LogLevel = &cli.IntFlag{
		Usage: "Logging level (0-6, where 6 is trace)",
		Name:  "log-level", EnvVars: env("LOG_LEVEL"),
		Value: defaultLogLevel,
	}

	DbType = &cli.StringFlag{
		Usage: "Database type (badger)",
		Name:  "db-type", EnvVars: env("DB_TYPE"),
		Value: defaultDbType,
	}

	EventDbType = &cli.StringFlag{
		Usage: "Event database type (gochannel)",
		Name:  "event-db-type", EnvVars: env("EVENT_DB_TYPE"),
		Value: defaultEventDbType,
	}

	LiveStoreType = &cli.StringFlag{
		Usage: "Cache service type (redis, inmemory)",
		Name:  "live-store-type", EnvVars: env("LIVE_STORE_TYPE"),
		Value: defaultLiveStoreType,
	}

	RedisUrl = &cli.StringFlag{
		Usage: "Redis db connection url if ANCHORD_LIVE_STORE_TYPE is set to redis",
		Name:  "redis-url", EnvVars: env("REDIS_URL"),
	}

	RedisTxNumOfRetries = &cli.IntFlag{
		Usage: "Maximum number of retries for Redis write operations in case of conflicts",
		Name:  "redis-num-of-retries", EnvVars: env("REDIS_NUM_OF_RETRIES"),
		Value: defaultRedisTxNumOfRetries,
	}

	Network = &cli.StringFlag{
		Usage: "Bitcoin network for proof-of-control addresses (mainnet, testnet, signet, regtest)",
		Name:  "network", EnvVars: env("NETWORK"),
		Value: defaultNetwork,
	}

	OracleSources = &cli.StringSliceFlag{
		Usage: "Ids of the attestation sources allowed to submit",
		Name:  "oracle-sources", EnvVars: env("ORACLE_SOURCES"),
	}

	WindowSize = &cli.IntFlag{
		Usage: "Number of attestations kept per (asset pair, source) window",
		Name:  "window-size", EnvVars: env("WINDOW_SIZE"),
		Value: defaultWindowSize,
	}

	MaxStaleness = &cli.Int64Flag{
		Usage: "How old an attestation can be (in seconds) before it is rejected",
		Name:  "max-staleness", EnvVars: env("MAX_STALENESS"),
		Value: int64(defaultMaxStaleness),
	}

	MaxFutureSkew = &cli.Int64Flag{
		Usage: "How far in the future (in seconds) an attestation timestamp can be",
		Name:  "max-future-skew", EnvVars: env("MAX_FUTURE_SKEW"),
		Value: int64(defaultMaxFutureSkew),
	}

	MaxDeviationPct = &cli.Float64Flag{
		Usage: "Max allowed deviation (in %) of an attestation from the median of other sources",
		Name:  "max-deviation-pct", EnvVars: env("MAX_DEVIATION_PCT"),
		Value: defaultMaxDeviationPct,
	}

	BaseTierLimit = &cli.Uint64Flag{
		Usage: "Max total committed amount (in satoshis) for base tier owners",
		Name:  "base-tier-limit", EnvVars: env("BASE_TIER_LIMIT"),
		Value:       uint64(defaultBaseTierLimit),
		DefaultText: fmt.Sprintf("%d (1 BTC)", defaultBaseTierLimit),
	}

	VerifyInterval = &cli.Int64Flag{
		Usage: "Interval (in seconds) between periodic commitment re-verifications",
		Name:  "verify-interval", EnvVars: env("VERIFY_INTERVAL"),
		Value: int64(defaultVerifyInterval),
	}

	VerifiedOwners = &cli.StringSliceFlag{
		Usage: "Pubkeys of owners granted the verified tier",
		Name:  "verified-owners", EnvVars: env("VERIFIED_OWNERS"),
	}

	PrivilegedOwners = &cli.StringSliceFlag{
		Usage: "Pubkeys of owners granted the privileged tier",
		Name:  "privileged-owners", EnvVars: env("PRIVILEGED_OWNERS"),
	}

	TxTTL = &cli.Int64Flag{
		Usage: "How long (in seconds) a proposed multisig transaction collects signatures",
		Name:  "tx-ttl", EnvVars: env("TX_TTL"),
		Value: int64(defaultTxTTL),

		DefaultText: fmt.Sprintf("%d (~%0.f hours)", defaultTxTTL,
			(time.Duration(defaultTxTTL) * time.Second).Hours()),
	}

	MultisigSweepInterval = &cli.Int64Flag{
		Usage: "Interval (in seconds) between sweeps of expired multisig transactions",
		Name:  "multisig-sweep-interval", EnvVars: env("MULTISIG_SWEEP_INTERVAL"),
		Value: int64(defaultSweepInterval),
	}

	ChannelSweepInterval = &cli.Int64Flag{
		Usage: "Interval (in seconds) between sweeps of channels past their timeout",
		Name:  "channel-sweep-interval", EnvVars: env("CHANNEL_SWEEP_INTERVAL"),
		Value: int64(defaultSweepInterval),
	}

	AlertManagerURL = &cli.StringFlag{
		Usage: "AlertManager API URL to push alerts to, alerts are disabled if empty",
		Name:  "alert-manager-url", EnvVars: env("ALERT_MANAGER_URL"),
	}
)

var Flags = []cli.Flag{
	Datadir,
	LogLevel,
	DbType,
	EventDbType,
	LiveStoreType,
	RedisUrl,
	RedisTxNumOfRetries,
	Network,
	OracleSources,
	WindowSize,
	MaxStaleness,
	MaxFutureSkew,
	MaxDeviationPct,
	BaseTierLimit,
	VerifyInterval,
	VerifiedOwners,
	PrivilegedOwners,
	TxTTL,
	MultisigSweepInterval,
	ChannelSweepInterval,
	AlertManagerURL,
}

func LoadConfig(c *cli.Context) (*Config, error) {
	if err := initDatadir(c); err != nil {
		return nil, fmt.Errorf("failed to create datadir: %s", err)
	}

	dbPath := filepath.Join(c.String(Datadir.Name), "db")

	var redisUrl string
	if c.String(LiveStoreType.Name) == "redis" {
		redisUrl = c.String(RedisUrl.Name)
		if redisUrl == "" {
			return nil, fmt.Errorf("live store type set to 'redis' but redis url is missing")
		}
	}

	return &Config{
		Datadir:               c.String(Datadir.Name),
		LogLevel:              c.Int(LogLevel.Name),
		DbType:                c.String(DbType.Name),
		EventDbType:           c.String(EventDbType.Name),
		DbDir:                 dbPath,
		LiveStoreType:         c.String(LiveStoreType.Name),
		RedisUrl:              redisUrl,
		RedisTxNumOfRetries:   c.Int(RedisTxNumOfRetries.Name),
		Network:               c.String(Network.Name),
		OracleSources:         c.StringSlice(OracleSources.Name),
		WindowSize:            c.Int(WindowSize.Name),
		MaxStaleness:          c.Int64(MaxStaleness.Name),
		MaxFutureSkew:         c.Int64(MaxFutureSkew.Name),
		MaxDeviationPct:       c.Float64(MaxDeviationPct.Name),
		BaseTierLimit:         c.Uint64(BaseTierLimit.Name),
		VerifyInterval:        c.Int64(VerifyInterval.Name),
		VerifiedOwners:        c.StringSlice(VerifiedOwners.Name),
		PrivilegedOwners:      c.StringSlice(PrivilegedOwners.Name),
		TxTTL:                 c.Int64(TxTTL.Name),
		MultisigSweepInterval: c.Int64(MultisigSweepInterval.Name),
		ChannelSweepInterval:  c.Int64(ChannelSweepInterval.Name),
		AlertManagerURL:       c.String(AlertManagerURL.Name),
	}, nil
}

func initDatadir(c *cli.Context) error {
	datadir := c.String(Datadir.Name)
	return makeDirectoryIfNotExists(datadir)
}

func makeDirectoryIfNotExists(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return os.MkdirAll(path, os.ModeDir|0o755)
	}
	return nil
}

func (c *Config) Validate() error {
	if !supportedEventDbs.supports(c.EventDbType) {
		return fmt.Errorf(
			"event db type not supported, please select one of: %s",
			supportedEventDbs,
		)
	}
	if !supportedDbs.supports(c.DbType) {
		return fmt.Errorf("db type not supported, please select one of: %s", supportedDbs)
	}
	if !supportedLiveStores.supports(c.LiveStoreType) {
		return fmt.Errorf(
			"live store type not supported, please select one of: %s",
			supportedLiveStores,
		)
	}
	if _, ok := supportedNetworks[c.Network]; !ok {
		networks := make([]string, 0, len(supportedNetworks))
		for network := range supportedNetworks {
			networks = append(networks, network)
		}
		return fmt.Errorf(
			"network not supported, please select one of: %s", strings.Join(networks, " | "),
		)
	}
	if len(c.OracleSources) == 0 {
		return fmt.Errorf("missing oracle sources, at least one is required")
	}
	if c.WindowSize < 1 {
		return fmt.Errorf("invalid window size, must be at least 1")
	}
	if c.MaxStaleness < 1 {
		return fmt.Errorf("invalid max staleness, must be at least 1 second")
	}
	if c.MaxFutureSkew < 0 {
		return fmt.Errorf("invalid max future skew, must not be negative")
	}
	if c.MaxDeviationPct <= 0 {
		return fmt.Errorf("invalid max deviation, must be greater than 0")
	}
	if c.BaseTierLimit == 0 {
		return fmt.Errorf("invalid base tier limit, must be greater than 0")
	}
	if c.VerifyInterval < 1 {
		return fmt.Errorf("invalid verify interval, must be at least 1 second")
	}
	if c.TxTTL < 1 {
		return fmt.Errorf("invalid tx ttl, must be at least 1 second")
	}
	if c.MultisigSweepInterval < 1 || c.ChannelSweepInterval < 1 {
		return fmt.Errorf("invalid sweep interval, must be at least 1 second")
	}

	if err := c.repoManager(); err != nil {
		return err
	}
	if err := c.liveStoreService(); err != nil {
		return err
	}
	if err := c.schedulerService(); err != nil {
		return err
	}
	if err := c.proofVerifierService(); err != nil {
		return err
	}
	if err := c.tierProviderService(); err != nil {
		return err
	}
	if err := c.alertsService(); err != nil {
		return err
	}
	return nil
}

func (c *Config) OracleService() (application.OracleService, error) {
	if c.oracleSvc == nil {
		if err := c.appService(); err != nil {
			return nil, err
		}
	}
	return c.oracleSvc, nil
}

func (c *Config) CommitmentService() (application.CommitmentService, error) {
	if c.commitmentSvc == nil {
		if err := c.appService(); err != nil {
			return nil, err
		}
	}
	return c.commitmentSvc, nil
}

func (c *Config) MultisigService() (application.MultisigService, error) {
	if c.multisigSvc == nil {
		if err := c.appService(); err != nil {
			return nil, err
		}
	}
	return c.multisigSvc, nil
}

func (c *Config) ChannelService() (application.ChannelService, error) {
	if c.channelSvc == nil {
		if err := c.appService(); err != nil {
			return nil, err
		}
	}
	return c.channelSvc, nil
}

func (c *Config) RewardService() (application.RewardService, error) {
	if c.rewardSvc == nil {
		if err := c.appService(); err != nil {
			return nil, err
		}
	}
	return c.rewardSvc, nil
}

func (c *Config) RepoManager() ports.RepoManager {
	return c.repo
}

func (c *Config) SchedulerService() ports.SchedulerService {
	return c.scheduler
}

func (c *Config) repoManager() error {
	logger := log.New()

	svc, err := db.NewService(db.ServiceConfig{
		EventStoreType:  c.EventDbType,
		DataStoreType:   c.DbType,
		DataStoreConfig: []interface{}{c.DbDir, logger},
	})
	if err != nil {
		return err
	}

	c.repo = svc
	return nil
}

func (c *Config) liveStoreService() error {
	var liveStoreSvc ports.LiveStore
	switch c.LiveStoreType {
	case "inmemory":
		liveStoreSvc = inmemorylivestore.NewLiveStore(c.WindowSize)
	case "redis":
		redisOpts, err := redis.ParseURL(c.RedisUrl)
		if err != nil {
			return fmt.Errorf("invalid REDIS_URL: %w", err)
		}
		rdb := redis.NewClient(redisOpts)
		liveStoreSvc = redislivestore.NewLiveStore(rdb, c.WindowSize, c.RedisTxNumOfRetries)
	default:
		return fmt.Errorf("unknown live store type")
	}

	c.liveStore = liveStoreSvc
	return nil
}

func (c *Config) schedulerService() error {
	c.scheduler = timescheduler.NewScheduler()
	return nil
}

func (c *Config) proofVerifierService() error {
	c.proofVerifier = bitcoinproof.NewVerifier(supportedNetworks[c.Network])
	return nil
}

func (c *Config) tierProviderService() error {
	c.tierProvider = statickyc.NewService(c.VerifiedOwners, c.PrivilegedOwners)
	return nil
}

func (c *Config) alertsService() error {
	if c.AlertManagerURL == "" {
		return nil
	}

	c.alerts = alertsmanager.NewService(c.AlertManagerURL)
	return nil
}

func (c *Config) appService() error {
	oracleSvc := application.NewOracleService(
		c.repo, c.liveStore, c.alerts,
		time.Duration(c.MaxStaleness)*time.Second,
		time.Duration(c.MaxFutureSkew)*time.Second,
		c.MaxDeviationPct,
	)

	commitmentSvc := application.NewCommitmentService(
		c.repo, oracleSvc, c.proofVerifier, c.tierProvider, c.scheduler, c.alerts,
		c.BaseTierLimit, time.Duration(c.VerifyInterval)*time.Second,
	)

	multisigSvc := application.NewMultisigService(
		c.repo, c.scheduler,
		time.Duration(c.TxTTL)*time.Second,
		time.Duration(c.MultisigSweepInterval)*time.Second,
	)

	channelSvc := application.NewChannelService(
		c.repo, c.scheduler, c.alerts,
		time.Duration(c.ChannelSweepInterval)*time.Second,
	)

	rewardSvc := application.NewRewardService(c.repo)

	multisigSvc.RegisterExecutor(
		domain.PayloadKindOwnerSetUpdate, application.OwnerSetUpdateExecutor(c.repo),
	)
	multisigSvc.RegisterExecutor(
		domain.PayloadKindTierOverride, application.TierOverrideExecutor(commitmentSvc),
	)
	multisigSvc.RegisterExecutor(
		domain.PayloadKindChannelForceSettle, application.ForceSettleExecutor(channelSvc),
	)
	multisigSvc.RegisterExecutor(
		domain.PayloadKindTreasuryDisbursement, application.TreasuryDisbursementExecutor(),
	)

	c.oracleSvc = oracleSvc
	c.commitmentSvc = commitmentSvc
	c.multisigSvc = multisigSvc
	c.channelSvc = channelSvc
	c.rewardSvc = rewardSvc
	return nil
}

type supportedType map[string]struct{}

func (t supportedType) String() string {
	types := make([]string, 0, len(t))
	for tt := range t {
		types = append(types, tt)
	}
	return strings.Join(types, " | ")
}

func (t supportedType) supports(typeStr string) bool {
	_, ok := t[typeStr]
	return ok
}
