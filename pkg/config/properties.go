package config

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"

	"github.com/groboclown/p4ic4idea-sub032/pkg/transport"
)

// PropertyPrefix is the long form prefix of every RPC property key. Both
// "com.perforce.p4java.rpc.tcpNoDelay" and "tcpNoDelay" are accepted.
const PropertyPrefix = "com.perforce.p4java.rpc."

// Recognised property keys.
const (
	PropTCPNoDelay   = "tcpNoDelay"
	PropUseKeepAlive = "useKeepAlive"
	PropSoTimeout    = "sockSoTimeout"   // milliseconds
	PropPerfPrefs    = "sockPerfPrefs"   // "connectionTime,latency,bandwidth"
	PropRecvBufSize  = "sockRecvBufSize" // bytes
	PropSendBufSize  = "sockSendBufSize" // bytes
)

// rpcProperties mirrors Tuning with optional fields so that only the
// properties actually present override the base tuning.
type rpcProperties struct {
	TCPNoDelay  *bool                             `mapstructure:"tcpNoDelay"`
	KeepAlive   *bool                             `mapstructure:"useKeepAlive"`
	SoTimeout   *time.Duration                    `mapstructure:"sockSoTimeout"`
	Performance *transport.PerformancePreferences `mapstructure:"sockPerfPrefs"`
	RecvBuf     *int                              `mapstructure:"sockRecvBufSize"`
	SendBuf     *int                              `mapstructure:"sockSendBufSize"`
}

var (
	durationType  = reflect.TypeOf(time.Duration(0))
	perfPrefsType = reflect.TypeOf(transport.PerformancePreferences{})
)

// millisecondsHook decodes bare numbers as milliseconds. Strings with a
// unit ("45s") go through time.ParseDuration.
func millisecondsHook(from, to reflect.Type, data any) (any, error) {
	if to != durationType {
		return data, nil
	}
	switch v := data.(type) {
	case int:
		return time.Duration(v) * time.Millisecond, nil
	case int64:
		return time.Duration(v) * time.Millisecond, nil
	case float64:
		return time.Duration(v * float64(time.Millisecond)), nil
	case string:
		s := strings.TrimSpace(v)
		if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
			return time.Duration(ms) * time.Millisecond, nil
		}
		return time.ParseDuration(s)
	}
	return data, nil
}

// perfPrefsHook decodes "1,2,0" (or a three element list) into
// PerformancePreferences.
func perfPrefsHook(from, to reflect.Type, data any) (any, error) {
	if to != perfPrefsType {
		return data, nil
	}

	var parts []string
	switch v := data.(type) {
	case string:
		parts = strings.Split(v, ",")
	case []any:
		for _, p := range v {
			parts = append(parts, fmt.Sprint(p))
		}
	default:
		return data, nil
	}
	if len(parts) != 3 {
		return nil, fmt.Errorf("%s: want 3 comma separated values, got %q", PropPerfPrefs, data)
	}

	var vals [3]int
	for i, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return nil, fmt.Errorf("%s: %w", PropPerfPrefs, err)
		}
		vals[i] = n
	}
	return map[string]any{
		"connection_time": vals[0],
		"latency":         vals[1],
		"bandwidth":       vals[2],
	}, nil
}

// flattenProperties joins nested maps back into dotted keys and strips
// PropertyPrefix. Viper splits dotted keys into nested maps on load.
func flattenProperties(props map[string]any) map[string]any {
	out := make(map[string]any, len(props))
	var walk func(prefix string, m map[string]any)
	walk = func(prefix string, m map[string]any) {
		for k, v := range m {
			key := k
			if prefix != "" {
				key = prefix + "." + k
			}
			if nested, ok := v.(map[string]any); ok {
				walk(key, nested)
				continue
			}
			if len(key) >= len(PropertyPrefix) && strings.EqualFold(key[:len(PropertyPrefix)], PropertyPrefix) {
				key = key[len(PropertyPrefix):]
			}
			out[key] = v
		}
	}
	walk("", props)
	return out
}

// TuningFromProperties applies p4java-style RPC properties on top of base.
// Unknown keys are ignored. Values may be strings, as found in
// .properties files, or typed YAML scalars.
func TuningFromProperties(base transport.Tuning, props map[string]any) (transport.Tuning, error) {
	if len(props) == 0 {
		return base, nil
	}

	var parsed rpcProperties
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			millisecondsHook,
			perfPrefsHook,
		),
		WeaklyTypedInput: true,
		Result:           &parsed,
	})
	if err != nil {
		return base, fmt.Errorf("failed to create decoder: %w", err)
	}
	if err := decoder.Decode(flattenProperties(props)); err != nil {
		return base, fmt.Errorf("failed to decode rpc properties: %w", err)
	}

	t := base
	if parsed.TCPNoDelay != nil {
		t.TCPNoDelay = *parsed.TCPNoDelay
	}
	if parsed.KeepAlive != nil {
		t.KeepAlive = *parsed.KeepAlive
	}
	if parsed.SoTimeout != nil {
		t.SoTimeout = *parsed.SoTimeout
	}
	if parsed.Performance != nil {
		t.Performance = *parsed.Performance
	}
	if parsed.RecvBuf != nil {
		t.RecvBufferBytes = *parsed.RecvBuf
	}
	if parsed.SendBuf != nil {
		t.SendBufferBytes = *parsed.SendBuf
	}
	return t, nil
}
