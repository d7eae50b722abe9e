package localsched

import (
	"context"
	"net/http"
	"time"

	"golang.org/x/xerrors"
)

const (
	KindNoop     = "noop"
	KindLog      = "log"
	KindHTTPPing = "http-ping"
)

func noopFactory(map[string]string) (Runner, error) {
	return RunnerFunc(func(context.Context, TaskInfo) error { return nil }), nil
}

// logFactory builds a runner writing the "message" property to the log.
func logFactory(props map[string]string) (Runner, error) {
	msg := props["message"]
	if msg == "" {
		msg = "task fired"
	}
	return RunnerFunc(func(_ context.Context, info TaskInfo) error {
		log.Infow(msg, "task", info.Name)
		return nil
	}), nil
}

// httpPingFactory builds a runner issuing a GET to the "url" property and
// failing on any non-2xx answer. "timeout" bounds a single request.
func httpPingFactory(props map[string]string) (Runner, error) {
	url := props["url"]
	if url == "" {
		return nil, xerrors.Errorf("http-ping task requires the url property")
	}
	timeout := 10 * time.Second
	if s, ok := props["timeout"]; ok {
		d, err := time.ParseDuration(s)
		if err != nil {
			return nil, xerrors.Errorf("parsing timeout property: %w", err)
		}
		timeout = d
	}
	client := &http.Client{Timeout: timeout}

	return RunnerFunc(func(ctx context.Context, info TaskInfo) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return err
		}
		resp, err := client.Do(req)
		if err != nil {
			return xerrors.Errorf("pinging %s: %w", url, err)
		}
		_ = resp.Body.Close()
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return xerrors.Errorf("pinging %s: status %d", url, resp.StatusCode)
		}
		log.Debugw("ping ok", "task", info.Name, "url", url)
		return nil
	}), nil
}
