package main

import (
	"github.com/spreads/client/internal/api"
	"github.com/spreads/client/internal/config"
	"github.com/spreads/client/internal/connection"
	"github.com/spreads/client/internal/notify"
	"github.com/spreads/client/internal/router"
	"github.com/spreads/client/internal/tui"
)

// live is the push-channel wiring shared by the capture, process and
// watch commands: one router, one notification center and one
// connection manager per process.
type live struct {
	cfg     *config.Config
	client  *api.Client
	router  *router.Router
	banners *notify.Center
	conn    *connection.Manager

	unsubs []func()
}

func (c *commandContext) openLive() (*live, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	client, err := c.apiClient()
	if err != nil {
		return nil, err
	}

	rt := router.New()
	banners := notify.New(notify.Options{
		ErrorTTL: cfg.ErrorBanner(),
		InfoTTL:  cfg.InfoBanner(),
	})
	rt.OnError(banners.ReportError)

	tlsCfg, err := c.tlsConfig()
	if err != nil {
		return nil, err
	}
	conn, err := connection.New(cfg.Server, rt, connection.Options{TLSConfig: tlsCfg})
	if err != nil {
		return nil, err
	}

	l := &live{
		cfg:     cfg,
		client:  client,
		router:  rt,
		banners: banners,
		conn:    conn,
	}
	l.unsubs = append(l.unsubs, rt.SubscribeApp(banners))
	return l, nil
}

func (l *live) tuiDeps() tui.Deps {
	return tui.Deps{Router: l.router, Conn: l.conn, Banners: l.banners}
}

// Close stops the channel and drops the app subscription.
func (l *live) Close() {
	for _, unsub := range l.unsubs {
		unsub()
	}
	l.conn.Close()
}
