package broker

import (
	"context"
	"fmt"
	"sync"

	"github.com/odin-msg/broker/internal/metrics"
	"github.com/odin-msg/broker/internal/ratelimit"
	"github.com/rs/zerolog"
)

// ServerConfig holds everything needed to assemble a running broker,
// grounded in servidor.rs's desde_configuracion: worker count,
// optional accounts file, and the listener address.
type ServerConfig struct {
	Addr         string
	Workers      int
	AccountsFile string
}

// Server owns the worker pool, the listener, and their lifecycle. It
// mirrors Servidor: build N workers, wire every worker's instruction
// channel into every other worker's peer map (canales_a_enviar_mensajes),
// then start accepting.
type Server struct {
	cfg     ServerConfig
	workers []*Worker
	ln      *Listener
	met     *metrics.Registry
	log     zerolog.Logger

	wg sync.WaitGroup
}

// NewServer builds the worker pool and peer wiring but does not start
// accepting connections yet; call Run for that.
func NewServer(cfg ServerConfig, limiter *ratelimit.AcceptLimiter, met *metrics.Registry, log zerolog.Logger) (*Server, error) {
	if cfg.Workers < 1 {
		cfg.Workers = 4
	}

	var accounts []Account
	if cfg.AccountsFile != "" {
		var err error
		accounts, err = LoadAccounts(cfg.AccountsFile)
		if err != nil {
			return nil, fmt.Errorf("load accounts: %w", err)
		}
		log.Info().Int("accounts", len(accounts)).Msg("loaded accounts")
	}

	workers := make([]*Worker, cfg.Workers)
	peers := make(map[WorkerID]chan Instruction, cfg.Workers)

	for i := 0; i < cfg.Workers; i++ {
		w := NewWorker(WorkerID(i), nil, met, log)
		workers[i] = w
		peers[WorkerID(i)] = w.instructions
	}
	for _, w := range workers {
		w.peers = peers
	}

	ln, err := NewListener(cfg.Addr, workers, accounts, limiter, met, log)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", cfg.Addr, err)
	}

	return &Server{
		cfg:     cfg,
		workers: workers,
		ln:      ln,
		met:     met,
		log:     log,
	}, nil
}

// Addr returns the bound listener address.
func (s *Server) Addr() string { return s.ln.Addr().String() }

// Run starts every worker and the listener, blocking until ctx is
// canceled and all goroutines have exited.
func (s *Server) Run(ctx context.Context) {
	for _, w := range s.workers {
		s.wg.Add(1)
		go func(w *Worker) {
			defer s.wg.Done()
			w.Run(ctx)
		}(w)
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.ln.Run(ctx)
	}()

	<-ctx.Done()
	s.wg.Wait()
}
