package httpclient

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/rs/zerolog"

	"github.com/soyeahso/harvestagent/internal/logging"
)

// leveledLogger adapts logging.Logger to retryablehttp.LeveledLogger.
// Per-request chatter goes to trace; retries surface at warn.
type leveledLogger struct {
	log *logging.Logger
}

func (l leveledLogger) Error(msg string, kv ...any) { withFields(l.log.Error(), kv).Msg(msg) }
func (l leveledLogger) Info(msg string, kv ...any)  { withFields(l.log.Debug(), kv).Msg(msg) }
func (l leveledLogger) Debug(msg string, kv ...any) { withFields(l.log.Trace(), kv).Msg(msg) }
func (l leveledLogger) Warn(msg string, kv ...any)  { withFields(l.log.Warn(), kv).Msg(msg) }

func withFields(e *zerolog.Event, kv []any) *zerolog.Event {
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			key = fmt.Sprint(kv[i])
		}
		switch v := kv[i+1].(type) {
		case *url.URL:
			e = e.Str(key, RedactURL(v))
		case string:
			e = e.Str(key, redactText(v))
		case error:
			e = e.Str(key, redactText(v.Error()))
		default:
			e = e.Interface(key, v)
		}
	}
	return e
}

// redactText masks credentials in every absolute URL found in s. Error
// messages from net/http quote the request URL, so quotes are stripped
// before parsing.
func redactText(s string) string {
	for _, word := range strings.Fields(s) {
		word = strings.Trim(word, "\"'(),:")
		u, err := url.Parse(word)
		if err != nil || u.Scheme == "" || u.Host == "" {
			continue
		}
		if r := RedactURL(u); r != word {
			s = strings.ReplaceAll(s, word, r)
		}
	}
	return s
}
