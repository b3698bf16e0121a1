package replay

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	retry "github.com/avast/retry-go/v4"
	"github.com/rs/zerolog/log"
)

var errBackendUnavailable = errors.New("backend not serving yet")

// Replayer re-issues a captured request against the backend until a
// definitive response arrives or the attempt budget runs out. 2xx and every
// status outside {502, 503} are definitive; 502/503 and network-level
// failures mean the backend is still coming up.
// SuccessPredicate decides which statuses end the replay loop as a success.
type SuccessPredicate func(statusCode int) bool

func defaultSuccess(statusCode int) bool {
	return statusCode/100 == 2
}

type Replayer struct {
	client    *http.Client
	interval  time.Duration
	attempts  uint
	isSuccess SuccessPredicate
}

func NewReplayer(interval time.Duration, attempts uint, perTryTimeout time.Duration) *Replayer {
	if interval == 0 {
		interval = 2 * time.Second
	}
	if attempts == 0 {
		attempts = 30
	}
	if perTryTimeout == 0 {
		perTryTimeout = 10 * time.Second
	}
	return &Replayer{
		client: &http.Client{
			Timeout: perTryTimeout,
			Transport: &http.Transport{
				DisableKeepAlives: true,
			},
		},
		interval:  interval,
		attempts:  attempts,
		isSuccess: defaultSuccess,
	}
}

// WithSuccessPredicate replaces the default 2xx check.
func (rp *Replayer) WithSuccessPredicate(pred SuccessPredicate) *Replayer {
	rp.isSuccess = pred
	return rp
}

func (rp *Replayer) Replay(ctx context.Context, req *Request) (*Response, error) {
	attempt := 0
	resp, err := retry.DoWithData(
		func() (*Response, error) {
			attempt++
			return rp.attemptOnce(ctx, req, attempt)
		},
		retry.Context(ctx),
		retry.Attempts(rp.attempts),
		retry.Delay(rp.interval),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			log.Info().Err(err).Msgf("replay attempt %d got no definitive response, backend still waking", n+1)
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("replay budget exhausted after %d attempts: %w", attempt, err)
	}
	return resp, nil
}

// attemptOnce returns a Response for every definitive outcome and an error
// for every retryable one.
func (rp *Replayer) attemptOnce(ctx context.Context, req *Request, attempt int) (*Response, error) {
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL, bytes.NewReader(req.Body))
	if err != nil {
		// malformed capture, no retry can change that
		log.Error().Err(err).Msg("failed to rebuild captured request")
		return syntheticBadGateway(err), nil
	}
	httpReq.Header = req.Header.Clone()

	httpResp, err := rp.client.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("backend unreachable: %w", err)
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		log.Error().Err(err).Msgf("failed to read backend response body on attempt %d", attempt)
		return syntheticBadGateway(err), nil
	}

	switch {
	case rp.isSuccess(httpResp.StatusCode):
		log.Info().Msgf("backend answered %d on attempt %d", httpResp.StatusCode, attempt)
		return &Response{
			StatusCode: httpResp.StatusCode,
			Header:     httpResp.Header.Clone(),
			Body:       body,
		}, nil
	case httpResp.StatusCode == http.StatusBadGateway || httpResp.StatusCode == http.StatusServiceUnavailable:
		return nil, fmt.Errorf("%w: status %d", errBackendUnavailable, httpResp.StatusCode)
	default:
		// a definitive backend error is surfaced as-is, never retried
		log.Info().Msgf("backend answered definitive %d on attempt %d", httpResp.StatusCode, attempt)
		return &Response{
			StatusCode: httpResp.StatusCode,
			Header:     httpResp.Header.Clone(),
			Body:       body,
		}, nil
	}
}

func syntheticBadGateway(err error) *Response {
	return &Response{
		StatusCode: http.StatusBadGateway,
		Header: http.Header{
			"Content-Type": []string{"text/plain; charset=utf-8"},
		},
		Body: []byte(fmt.Sprintf("replay failed: %v", err)),
	}
}
