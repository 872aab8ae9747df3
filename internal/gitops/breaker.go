package gitops

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/cenk/backoff"
	circuit "github.com/rubyist/circuitbreaker"

	"github.com/git-pkgs/gpk/internal/core"
)

// hostBreakers guards remote-talking Git Adapter operations with one
// circuit breaker per remote host. A host that fails repeatedly trips
// its breaker and further attempts fail fast instead of hanging the
// depth-first install traversal on a dead remote.
type hostBreakers struct {
	mu       sync.RWMutex
	breakers map[string]*circuit.Breaker
}

func newHostBreakers() *hostBreakers {
	return &hostBreakers{breakers: make(map[string]*circuit.Breaker)}
}

func (hb *hostBreakers) get(gitURL string) *circuit.Breaker {
	host := hostOf(gitURL)

	hb.mu.RLock()
	b, ok := hb.breakers[host]
	hb.mu.RUnlock()
	if ok {
		return b
	}

	hb.mu.Lock()
	defer hb.mu.Unlock()
	if b, ok := hb.breakers[host]; ok {
		return b
	}

	expBackoff := backoff.NewExponentialBackOff()
	expBackoff.InitialInterval = 2 * time.Second
	expBackoff.MaxInterval = 30 * time.Second
	expBackoff.Multiplier = 2.0
	expBackoff.Reset()

	b = circuit.NewBreakerWithOptions(&circuit.Options{
		BackOff:    expBackoff,
		ShouldTrip: circuit.ThresholdTripFunc(5),
	})
	hb.breakers[host] = b
	return b
}

// call runs fn guarded by the circuit breaker for gitURL's host. A tripped
// breaker fails fast with a GitError rather than invoking fn at all.
func (hb *hostBreakers) call(ctx context.Context, gitURL string, fn func() error) error {
	b := hb.get(gitURL)
	if !b.Ready() {
		msg := fmt.Sprintf("circuit breaker open for %s", hostOf(gitURL))
		return &core.GitError{Stage: "circuit breaker", Args: []string{gitURL}, Stderr: msg, Err: errors.New(msg)}
	}
	return b.Call(func() error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		return fn()
	}, 0)
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return rawURL
	}
	return u.Host
}
