package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

const (
	// OperatorListeningPortKey is the port where the operator HTTP interface listens on
	OperatorListeningPortKey = "OPERATOR_LISTENING_PORT"
	// DatadirKey is the local data directory to store the internal state of the daemon
	DatadirKey = "DATA_DIR_PATH"
	// LogLevelKey are the different logging levels. For reference on the values https://godoc.org/github.com/sirupsen/logrus#Level
	LogLevelKey = "LOG_LEVEL"
	// SubstrateEndpointKey is the endpoint of the substrate node exposing the DHT and the routed messaging
	SubstrateEndpointKey = "SUBSTRATE_ENDPOINT"
	// SubstrateRequestTimeoutKey are the milliseconds to wait for substrate responses before timeouts
	SubstrateRequestTimeoutKey = "SUBSTRATE_REQUEST_TIMEOUT"
	// EnginePathKey is the path of the secure computation engine binary
	EnginePathKey = "ENGINE_PATH"
	// EngineProgramKey is the identifier of the auction program the engine runs
	EngineProgramKey = "ENGINE_PROGRAM"
	// AssignWindowKey is the duration in seconds of the party assignment phase
	AssignWindowKey = "ASSIGN_WINDOW"
	// ComputeWindowKey is the duration in seconds granted to a computation session before it is torn down
	ComputeWindowKey = "COMPUTE_WINDOW"
	// ChallengeWindowKey is the duration in seconds of the winner challenge phase
	ChallengeWindowKey = "CHALLENGE_WINDOW"
	// ConnectTimeoutKey are the seconds granted to every tunnel route establishment
	ConnectTimeoutKey = "CONNECT_TIMEOUT"
	// StallGraceKey are the seconds a peer may be unreachable before the listing is parked
	StallGraceKey = "STALL_GRACE"
	// StallTTLKey are the seconds a parked listing survives before being cancelled
	StallTTLKey = "STALL_TTL"
	// DHTPollIntervalKey is the interval in milliseconds between two polls of a watched DHT key
	DHTPollIntervalKey = "DHT_POLL_INTERVAL"
	// DHTPollLimitKey is the number of DHT requests per second the watcher is allowed to make
	DHTPollLimitKey = "DHT_POLL_LIMIT"
	// InboxSizeKey bounds the event inbox of every listing actor
	InboxSizeKey = "INBOX_SIZE"
	// AttestQuorumKey is the number of matching attestations required to trust a result. Zero means all parties
	AttestQuorumKey = "ATTEST_QUORUM"
	// EnableProfilerKey enables profiler that can be used to investigate performance issues
	EnableProfilerKey = "ENABLE_PROFILER"
	// StatsIntervalKey defines the interval in seconds for printing basic daemon statistics
	StatsIntervalKey = "STATS_INTERVAL"
	// NoSubstrateKey runs the daemon against an in-process substrate, for local testing only
	NoSubstrateKey = "NO_SUBSTRATE"

	DbLocation       = "db"
	ProfilerLocation = "stats"
)

var vip *viper.Viper
var defaultDatadir = appDataDir("sealbid-daemon")

func init() {
	vip = viper.New()
	vip.SetEnvPrefix("SEALBID")
	vip.AutomaticEnv()

	vip.SetDefault(OperatorListeningPortKey, 9000)
	vip.SetDefault(DatadirKey, defaultDatadir)
	vip.SetDefault(LogLevelKey, 4)
	vip.SetDefault(SubstrateEndpointKey, "http://localhost:7474")
	vip.SetDefault(SubstrateRequestTimeoutKey, 15000)
	vip.SetDefault(EngineProgramKey, "sealed-bid-auction")
	vip.SetDefault(AssignWindowKey, 60)
	vip.SetDefault(ComputeWindowKey, 300)
	vip.SetDefault(ChallengeWindowKey, 300)
	vip.SetDefault(ConnectTimeoutKey, 30)
	vip.SetDefault(StallGraceKey, 60)
	vip.SetDefault(StallTTLKey, 600)
	vip.SetDefault(DHTPollIntervalKey, 5000)
	vip.SetDefault(DHTPollLimitKey, 10)
	vip.SetDefault(InboxSizeKey, 64)
	vip.SetDefault(AttestQuorumKey, 0)
	vip.SetDefault(EnableProfilerKey, false)
	vip.SetDefault(StatsIntervalKey, 600)
	vip.SetDefault(NoSubstrateKey, false)

	if err := validate(); err != nil {
		log.WithError(err).Panic("error while validating config")
	}

	if err := initDatadir(); err != nil {
		log.WithError(err).Panic("error while creating datadir")
	}
}

// GetString ...
func GetString(key string) string {
	return vip.GetString(key)
}

// GetInt ...
func GetInt(key string) int {
	return vip.GetInt(key)
}

// GetDuration ...
func GetDuration(key string) time.Duration {
	return vip.GetDuration(key)
}

// GetBool ...
func GetBool(key string) bool {
	return vip.GetBool(key)
}

// GetDatadir returns the daemon data directory.
func GetDatadir() string {
	return GetString(DatadirKey)
}

// GetSeconds returns the value of the given key as a duration in seconds.
func GetSeconds(key string) time.Duration {
	return time.Duration(GetInt(key)) * time.Second
}

// GetMillis returns the value of the given key as a duration in milliseconds.
func GetMillis(key string) time.Duration {
	return time.Duration(GetInt(key)) * time.Millisecond
}

// Set a value for the given key
func Set(key string, value interface{}) {
	vip.Set(key, value)
}

// IsSet returns whether the given key is set
func IsSet(key string) bool {
	return vip.IsSet(key)
}

func validate() error {
	datadir := GetString(DatadirKey)
	if len(datadir) <= 0 {
		return fmt.Errorf("datadir must not be null")
	}

	if !GetBool(NoSubstrateKey) {
		endpoint := GetString(SubstrateEndpointKey)
		if _, err := url.ParseRequestURI(endpoint); err != nil {
			return fmt.Errorf("substrate endpoint is not a valid URI: %s", err)
		}
	}

	if port := GetInt(OperatorListeningPortKey); port <= 0 || port > 65535 {
		return fmt.Errorf("operator listening port is out of range")
	}

	for _, key := range []string{
		AssignWindowKey, ComputeWindowKey, ChallengeWindowKey,
		ConnectTimeoutKey, StallGraceKey, StallTTLKey,
	} {
		if GetInt(key) <= 0 {
			return fmt.Errorf("%s must be a positive number of seconds", key)
		}
	}

	if GetInt(AttestQuorumKey) < 0 {
		return fmt.Errorf("attestation quorum must not be negative")
	}
	return nil
}

func initDatadir() error {
	datadir := GetDatadir()
	if err := makeDirectoryIfNotExists(datadir); err != nil {
		return err
	}
	return makeDirectoryIfNotExists(filepath.Join(datadir, DbLocation))
}

func makeDirectoryIfNotExists(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return os.MkdirAll(path, os.ModeDir|0755)
	}
	return nil
}

func appDataDir(appName string) string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "." + appName
	}
	return filepath.Join(home, "."+appName)
}
