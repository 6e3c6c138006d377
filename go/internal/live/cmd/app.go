package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/debatelive/go/clients/debate_client"
	"github.com/mcdev12/debatelive/go/internal/auth"
	"github.com/mcdev12/debatelive/go/internal/config"
	"github.com/mcdev12/debatelive/go/internal/live/hub"
	"github.com/mcdev12/debatelive/go/internal/live/session"
	"github.com/mcdev12/debatelive/go/internal/overlay"
)

const connectTimeout = 15 * time.Second

var errNoSession = errors.New("a session id is required (--session or DEBATELIVE_SESSION_ID)")

type app struct {
	cfg     *config.Config
	jsonOut bool
	clock   clockwork.Clock
	client  *debate_client.DebateClient
	tokens  *auth.TokenStore

	mu       sync.RWMutex
	token    string
	identity *auth.Identity
}

func newApp(cfg *config.Config, jsonOut bool) *app {
	client := debate_client.NewDebateClient(cfg.Server.BaseURL, cfg.Server.APIPrefix)
	client.SetTimeout(cfg.Server.Timeout)

	a := &app{
		cfg:     cfg,
		jsonOut: jsonOut,
		clock:   clockwork.NewRealClock(),
		client:  client,
		tokens:  auth.NewTokenStore(cfg.Auth.TokenFile),
	}
	a.loadToken()
	return a
}

// loadToken picks up a stored token. Expired tokens are dropped here so no
// request goes out with them.
func (a *app) loadToken() {
	token, err := a.tokens.Load()
	if err != nil {
		if !errors.Is(err, auth.ErrNoToken) {
			log.Warn().Err(err).Msg("failed to load token")
		}
		return
	}

	id, err := auth.ParseToken(token)
	if err != nil {
		log.Warn().Err(err).Msg("stored token is unreadable, ignoring it")
		return
	}
	if id.Expired(a.clock.Now()) {
		log.Info().Msg("stored token has expired, logging out")
		if err := a.tokens.Clear(); err != nil {
			log.Warn().Err(err).Str("path", a.tokens.Path()).Msg("failed to clear expired token")
		}
		return
	}
	a.setToken(token, &id)
}

func (a *app) setToken(token string, id *auth.Identity) {
	a.mu.Lock()
	a.token, a.identity = token, id
	a.mu.Unlock()
	a.client.SetToken(token)
}

func (a *app) currentToken() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.token
}

func (a *app) newDialer() hub.Dialer {
	switch a.cfg.Hub.Transport {
	case config.TransportNATS:
		nc := hub.DefaultNATSConfig(a.cfg.Session.ID)
		nc.URL = a.cfg.Hub.NATSURL
		nc.SubjectPrefix = a.cfg.Hub.NATSSubjectPrefix
		nc.Token = a.currentToken
		return hub.NewNATSDialer(nc)
	default:
		wc := hub.DefaultWebSocketConfig(a.client.HubURL(a.cfg.Server.HubPath))
		wc.Token = a.currentToken
		wc.KeepAliveInterval = a.cfg.Hub.KeepAliveInterval
		wc.ServerTimeout = a.cfg.Hub.ServerTimeout
		wc.Clock = a.clock
		return hub.NewWebSocketDialer(wc)
	}
}

func (a *app) newSession() *session.Session {
	scfg := session.DefaultConfig(a.cfg.Session.ID)
	scfg.StatusInterval = a.cfg.Session.StatusInterval
	scfg.HeatmapInterval = a.cfg.Session.HeatmapInterval
	scfg.Clock = a.clock

	a.mu.RLock()
	if a.identity != nil {
		scfg.UserID = a.identity.Subject
	}
	a.mu.RUnlock()

	manager := hub.NewManager(a.newDialer(), hub.WithClock(a.clock), hub.WithRetryDelay(a.cfg.Hub.RetryDelay))
	return session.New(scfg, a.client, manager)
}

func (a *app) watch(ctx context.Context) error {
	if a.cfg.Session.ID == "" {
		return errNoSession
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	a.mu.RLock()
	id := a.identity
	a.mu.RUnlock()
	if id != nil {
		watcher := auth.NewExpiryWatcher(a.clock, func() {
			if err := a.tokens.Clear(); err != nil {
				log.Warn().Err(err).Str("path", a.tokens.Path()).Msg("failed to clear expired token")
			}
			a.setToken("", nil)
			fmt.Fprintln(os.Stderr, "session expired, you have been logged out")
			cancel()
		})
		watcher.Watch(*id)
		defer watcher.Stop()
	}

	sess := a.newSession()
	renderer := newRenderer(os.Stdout, a.jsonOut)

	var wg sync.WaitGroup
	if a.cfg.Overlay.Enabled {
		ocfg := overlay.DefaultConfig(a.cfg.Overlay.Addr)
		ocfg.AllowedOrigins = a.cfg.Overlay.AllowedOrigins
		srv := overlay.NewServer(ocfg, sess)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := srv.Run(ctx); err != nil {
				log.Error().Err(err).Msg("overlay server failed")
				cancel()
			}
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		renderer.loop(ctx, a.clock, sess)
	}()

	err := sess.Run(ctx)
	cancel()
	wg.Wait()
	return err
}

func (a *app) fire(ctx context.Context, position float64) error {
	if a.cfg.Session.ID == "" {
		return errNoSession
	}

	out, err := a.newSession().SendFire(ctx, position)
	if err != nil {
		var rl *session.RateLimitedError
		if errors.As(err, &rl) {
			fmt.Println(rl.Error())
			return nil
		}
		return err
	}

	if a.jsonOut {
		return printJSON(out)
	}
	fmt.Printf("Fire sent. Total fires: %d\n", out.TotalFires)
	return nil
}

func (a *app) fires(ctx context.Context) error {
	if a.cfg.Session.ID == "" {
		return errNoSession
	}
	count, err := a.client.GetFireCount(ctx, a.cfg.Session.ID)
	if err != nil {
		return err
	}
	if a.jsonOut {
		return printJSON(count)
	}
	fmt.Printf("Total fires: %s\n", humanize.Comma(int64(count.TotalFires)))
	return nil
}

func (a *app) login(ctx context.Context, email, password string) error {
	token, err := a.client.Login(ctx, email, password)
	if err != nil {
		return err
	}
	id, err := auth.ParseToken(token)
	if err != nil {
		return err
	}
	if err := a.tokens.Save(token); err != nil {
		return err
	}
	a.setToken(token, &id)

	log.Debug().Str("path", a.tokens.Path()).Msg("token saved")
	fmt.Printf("Logged in as %s\n", describe(id))
	return nil
}

func (a *app) logout() error {
	if err := a.tokens.Clear(); err != nil {
		return err
	}
	a.setToken("", nil)
	fmt.Println("Logged out")
	return nil
}

func (a *app) whoami() error {
	a.mu.RLock()
	id := a.identity
	a.mu.RUnlock()

	if id == nil {
		fmt.Println("Not logged in")
		return nil
	}
	if a.jsonOut {
		return printJSON(id)
	}
	fmt.Println(describe(*id))
	if id.ExpiresAt != nil {
		fmt.Printf("Expires %s (%s)\n", id.ExpiresAt.Local().Format(time.RFC1123), humanize.Time(*id.ExpiresAt))
	}
	return nil
}

func (a *app) banned(ctx context.Context) error {
	list, err := a.client.ListBannedIPs(ctx)
	if err != nil {
		return err
	}
	if a.jsonOut {
		return printJSON(list)
	}
	if len(list) == 0 {
		fmt.Println("No banned IPs")
		return nil
	}
	for _, b := range list {
		fmt.Printf("%-40s %s  %s\n", b.IP, b.BannedAt.Local().Format(time.DateTime), b.Reason)
	}
	return nil
}

type action func(ctx context.Context, s *session.Session)

func actionStartRound(round, duration int) action {
	return func(ctx context.Context, s *session.Session) { s.StartRound(ctx, round, duration) }
}

func actionGoLive(ctx context.Context, s *session.Session) { s.GoLive(ctx) }
func actionPause(ctx context.Context, s *session.Session)  { s.PauseSession(ctx) }
func actionEnd(ctx context.Context, s *session.Session)    { s.EndSession(ctx) }

// control mounts a session, waits for the hub, fires one action and unmounts.
// The backend decides whether the caller may do it.
func (a *app) control(ctx context.Context, do action) error {
	if a.cfg.Session.ID == "" {
		return errNoSession
	}
	a.mu.RLock()
	id := a.identity
	a.mu.RUnlock()
	if id == nil || !id.IsDebateManager {
		log.Warn().Msg("not logged in as a debate manager, the backend will likely reject this")
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sess := a.newSession()
	connected := make(chan struct{})
	var once sync.Once
	unsubscribe := sess.OnChange(func() {
		if sess.ConnectionState() == hub.StateConnected {
			once.Do(func() { close(connected) })
		}
	})
	defer unsubscribe()

	done := make(chan error, 1)
	go func() { done <- sess.Run(ctx) }()

	select {
	case <-connected:
		do(ctx, sess)
	case <-a.clock.After(connectTimeout):
		cancel()
		<-done
		return fmt.Errorf("hub did not connect within %s", connectTimeout)
	case err := <-done:
		return err
	}

	cancel()
	return <-done
}

func describe(id auth.Identity) string {
	role := id.Role
	if role == "" {
		role = "viewer"
	}
	name := id.Email
	if name == "" {
		name = id.Subject
	}
	return fmt.Sprintf("%s (%s)", name, role)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
