// Package config loads the framework's line-oriented configuration
// file ("key = value", "#" starts a comment; spec §6) via a
// koanf-pluggable custom Parser, validates the recognized framework
// keys into a typed Config, and forwards every unrecognized key to an
// application module's AppConfig.ParseKVPair, mirroring the
// init_app/parse_app_kv_pair split the external interface describes.
//
// Grounded on the teacher's internal/config: a koanf/v2 pipeline
// (file provider + env overlay + typed unmarshal + an explicit
// Validate pass with sentinel errors), generalized from a YAML parser
// to a from-scratch line parser the rest of the pack does not
// provide -- koanf's own parsers/{yaml,json,toml} cover shapes this
// format does not match.
package config

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/soconnect-project/soconnect/internal/rss"
	"github.com/soconnect-project/soconnect/pkg/apphooks"
)

// envPrefix is the environment variable prefix for framework overrides,
// e.g. SOCONNECT_CONTROL_CORE_ID -> control_core_id.
const envPrefix = "SOCONNECT_"

// Config holds the framework's own recognized configuration (spec §6's
// table); a module's private keys never appear here -- they reach the
// module through AppConfig.ParseKVPair instead.
type Config struct {
	PortMAC []apphooks.MAC

	NbRXRingsPerPort int
	NbTXRingsPerPort int
	RxQueueLen       int
	TxQueueLen       int

	EnablePromiscuous bool
	EnableRSS         bool
	EnableOffload     bool

	RSSSymmetric bool
	RSSHashField rss.FieldMask

	UsedCoreIDs []int

	NbMemoryChannelsPerSocket int
	ControlCoreID             int

	EnableTestDurationLimit bool
	TestDuration            time.Duration
}

// maxQueueDescriptors is the per-queue descriptor bound spec §6 names.
const maxQueueDescriptors = 8192

// Validation error values, one per rejected condition. Load reports
// failures as apphooks.Status values and does not return these.
var (
	ErrNoPortMAC          = fmt.Errorf("config: port_mac must name at least one port")
	ErrInvalidMAC         = fmt.Errorf("config: port_mac entry is not a valid MAC address")
	ErrInvalidQueueCount  = fmt.Errorf("config: nb_rx_rings_per_port and nb_tx_rings_per_port must be positive")
	ErrQueueLenOutOfRange = fmt.Errorf("config: rx_queue_len/tx_queue_len must be in (0, %d]", maxQueueDescriptors)
	ErrInvalidSymmetric   = fmt.Errorf("config: rss_symmetric_mode must be %q or %q", "symmetric", "asymmetric")
	ErrUnknownHashField   = fmt.Errorf("config: rss_hash_field entry is not recognized")
	ErrNoUsedCores        = fmt.Errorf("config: used_core_ids must name at least one core")
	ErrControlCoreOverlap = fmt.Errorf("config: control_core_id must not overlap used_core_ids")
	ErrInvalidBool        = fmt.Errorf("config: value is not a boolean")
	ErrInvalidInt         = fmt.Errorf("config: value is not an integer")
)

// hashFieldNames maps the configuration file's field tokens to the RSS
// package's HashField bits (spec §6's {ip, ipv4, ipv6, tcp, udp, sctp}).
var hashFieldNames = map[string]rss.HashField{
	"ip":   rss.HashFieldIP,
	"ipv4": rss.HashFieldIPv4,
	"ipv6": rss.HashFieldIPv6,
	"tcp":  rss.HashFieldTCP,
	"udp":  rss.HashFieldUDP,
	"sctp": rss.HashFieldSCTP,
}

// frameworkKeys is the recognized-key set; anything else in the file is
// an application module's own key, forwarded to ParseKVPair.
var frameworkKeys = map[string]bool{
	"port_mac": true, "nb_rx_rings_per_port": true, "nb_tx_rings_per_port": true,
	"rx_queue_len": true, "tx_queue_len": true,
	"enable_promiscuous": true, "enable_rss": true, "enable_offload": true,
	"rss_symmetric_mode": true, "rss_hash_field": true,
	"used_core_ids": true, "nb_memory_channels_per_socket": true,
	"control_core_id": true,
	"enable_test_duration_limit": true, "test_duration": true,
}

// lineParser implements koanf.Parser for the "key = value" / "#
// comment" format spec §6 describes: flat keys, no nesting, so the
// koanf delimiter is irrelevant here.
type lineParser struct{}

func (lineParser) Unmarshal(b []byte) (map[string]interface{}, error) {
	out := make(map[string]interface{})
	scanner := bufio.NewScanner(bytes.NewReader(b))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		idx := strings.IndexByte(line, '=')
		if idx < 0 {
			return nil, fmt.Errorf("config: malformed line %q: missing '='", line)
		}
		key := strings.TrimSpace(line[:idx])
		val := strings.TrimSpace(line[idx+1:])
		out[key] = val
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (lineParser) Marshal(m map[string]interface{}) ([]byte, error) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var buf bytes.Buffer
	for _, k := range keys {
		fmt.Fprintf(&buf, "%s = %v\n", k, m[k])
	}
	return buf.Bytes(), nil
}

// Load reads the configuration file at path, validates every
// recognized framework key into a Config, and forwards every other
// key to hooks.ParseKVPair(key, value, rt) in file order, then calls
// hooks.InitInternal(rt) once parsing completes -- the init_app /
// parse_app_kv_pair / init_app_internal sequence spec §6 describes.
// Environment variables prefixed SOCONNECT_ override framework keys
// only.
func Load[Cfg, AppState any](path string, hooks apphooks.AppConfig[Cfg, AppState], rt *apphooks.Runtime[Cfg, AppState]) (*Config, apphooks.Status) {
	raw, err := rawLines(path)
	if err != nil {
		return nil, apphooks.StatusNotExist
	}

	k := koanf.New(".")
	if err := k.Load(file.Provider(path), lineParser{}); err != nil {
		return nil, apphooks.StatusInvalidValue
	}
	if err := k.Load(env.Provider(envPrefix, ".", envKeyMapper), nil); err != nil {
		return nil, apphooks.StatusInvalidValue
	}

	cfg, status := buildConfig(k)
	if !status.OK() {
		return nil, status
	}

	for _, kv := range raw {
		key, val := kv[0], kv[1]
		if frameworkKeys[key] {
			continue
		}
		if status := hooks.ParseKVPair(key, val, rt); status.Fatal() {
			return nil, status
		}
	}

	if status := hooks.InitInternal(rt); status.Fatal() {
		return nil, status
	}

	return cfg, apphooks.StatusOK
}

// rawLines re-reads path's recognized "key = value" lines directly
// (bypassing koanf) so unrecognized keys can be forwarded in the
// file's own order rather than koanf's internal map iteration order.
func rawLines(path string) ([][2]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var out [][2]string
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		idx := strings.IndexByte(line, '=')
		if idx < 0 {
			continue
		}
		out = append(out, [2]string{strings.TrimSpace(line[:idx]), strings.TrimSpace(line[idx+1:])})
	}
	return out, scanner.Err()
}

func envKeyMapper(s string) string {
	s = strings.TrimPrefix(s, envPrefix)
	return strings.ToLower(s)
}

func buildConfig(k *koanf.Koanf) (*Config, apphooks.Status) {
	cfg := &Config{}

	macs, status := parseMACList(k.String("port_mac"))
	if !status.OK() {
		return nil, status
	}
	if len(macs) == 0 {
		return nil, apphooks.StatusInvalidValue
	}
	cfg.PortMAC = macs

	cfg.NbRXRingsPerPort = k.Int("nb_rx_rings_per_port")
	cfg.NbTXRingsPerPort = k.Int("nb_tx_rings_per_port")
	if cfg.NbRXRingsPerPort <= 0 || cfg.NbTXRingsPerPort <= 0 {
		return nil, apphooks.StatusInvalidValue
	}

	cfg.RxQueueLen = k.Int("rx_queue_len")
	cfg.TxQueueLen = k.Int("tx_queue_len")
	if !inQueueLenRange(cfg.RxQueueLen) || !inQueueLenRange(cfg.TxQueueLen) {
		return nil, apphooks.StatusInvalidValue
	}

	var ok bool
	if cfg.EnablePromiscuous, ok = parseBool(k.String("enable_promiscuous")); !ok {
		return nil, apphooks.StatusInvalidValue
	}
	if cfg.EnableRSS, ok = parseBool(k.String("enable_rss")); !ok {
		return nil, apphooks.StatusInvalidValue
	}
	if cfg.EnableOffload, ok = parseBool(k.String("enable_offload")); !ok {
		return nil, apphooks.StatusInvalidValue
	}

	switch strings.ToLower(strings.TrimSpace(k.String("rss_symmetric_mode"))) {
	case "symmetric":
		cfg.RSSSymmetric = true
	case "asymmetric":
		cfg.RSSSymmetric = false
	default:
		return nil, apphooks.StatusInvalidValue
	}

	mask, status := parseHashFields(k.String("rss_hash_field"))
	if !status.OK() {
		return nil, status
	}
	cfg.RSSHashField = mask

	cores, status := parseIntList(k.String("used_core_ids"))
	if !status.OK() {
		return nil, status
	}
	if len(cores) == 0 {
		return nil, apphooks.StatusInvalidValue
	}
	cfg.UsedCoreIDs = cores

	cfg.NbMemoryChannelsPerSocket = k.Int("nb_memory_channels_per_socket")
	if cfg.NbMemoryChannelsPerSocket <= 0 {
		return nil, apphooks.StatusInvalidValue
	}

	cfg.ControlCoreID = k.Int("control_core_id")
	for _, c := range cores {
		if c == cfg.ControlCoreID {
			return nil, apphooks.StatusInvalidValue
		}
	}

	if cfg.EnableTestDurationLimit, ok = parseBool(k.String("enable_test_duration_limit")); !ok {
		return nil, apphooks.StatusInvalidValue
	}
	if cfg.EnableTestDurationLimit {
		secs, err := strconv.Atoi(strings.TrimSpace(k.String("test_duration")))
		if err != nil || secs <= 0 {
			return nil, apphooks.StatusInvalidValue
		}
		cfg.TestDuration = time.Duration(secs) * time.Second
	}

	return cfg, apphooks.StatusOK
}

func inQueueLenRange(n int) bool { return n > 0 && n <= maxQueueDescriptors }

func parseBool(s string) (bool, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true":
		return true, true
	case "false":
		return false, true
	default:
		return false, false
	}
}

func parseMACList(s string) ([]apphooks.MAC, apphooks.Status) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, apphooks.StatusOK
	}
	parts := strings.Split(s, ",")
	out := make([]apphooks.MAC, 0, len(parts))
	for _, p := range parts {
		mac, status := apphooks.ParseMAC(strings.TrimSpace(p))
		if !status.OK() {
			return nil, apphooks.StatusInvalidValue
		}
		out = append(out, mac)
	}
	return out, apphooks.StatusOK
}

func parseIntList(s string) ([]int, apphooks.Status) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, apphooks.StatusOK
	}
	parts := strings.Split(s, ",")
	out := make([]int, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return nil, apphooks.StatusInvalidValue
		}
		out = append(out, n)
	}
	return out, apphooks.StatusOK
}

func parseHashFields(s string) (rss.FieldMask, apphooks.Status) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, apphooks.StatusOK
	}
	var mask rss.FieldMask
	for _, tok := range strings.Split(s, ",") {
		field, ok := hashFieldNames[strings.ToLower(strings.TrimSpace(tok))]
		if !ok {
			return 0, apphooks.StatusInvalidValue
		}
		mask = mask.WithField(field)
	}
	return mask, apphooks.StatusOK
}
