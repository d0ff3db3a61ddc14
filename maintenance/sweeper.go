package maintenance

import (
	"context"
	"log"
	"sync"
	"time"
)

// Sweeper runs the transitioner on a ticker so windows open and close
// without waiting for someone to list them
type Sweeper struct {
	transitioner *Transitioner
	status       StatusRefresher
	interval     time.Duration

	mu        sync.Mutex
	stop      chan struct{}
	done      chan struct{}
	isRunning bool
}

func NewSweeper(transitioner *Transitioner, status StatusRefresher, interval time.Duration) *Sweeper {
	return &Sweeper{
		transitioner: transitioner,
		status:       status,
		interval:     interval,
	}
}

// Start begins sweeping in the background
func (s *Sweeper) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isRunning {
		select {
		case <-s.done:
			// the previous loop exited with its context
			s.isRunning = false
		default:
			log.Println("[MAINTENANCE] Sweeper already running")
			return
		}
	}
	s.isRunning = true
	s.stop = make(chan struct{})
	s.done = make(chan struct{})

	log.Printf("[MAINTENANCE] Sweeping every %v\n", s.interval)
	go s.loop(ctx)
}

// Stop halts the sweeper and waits for an in-flight sweep to finish
func (s *Sweeper) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.isRunning {
		return
	}
	close(s.stop)
	<-s.done
	s.isRunning = false
}

// running reports whether a sweep loop is still alive
func (s *Sweeper) running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.isRunning {
		return false
	}
	select {
	case <-s.done:
		s.isRunning = false
		return false
	default:
		return true
	}
}

func (s *Sweeper) loop(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stop:
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep runs one transition pass and refreshes the status snapshot when anything moved
func (s *Sweeper) Sweep(ctx context.Context) int {
	changed, err := s.transitioner.Run(ctx)
	if err != nil {
		log.Printf("[MAINTENANCE] Sweep failed: %v\n", err)
		return 0
	}
	if changed == 0 || s.status == nil {
		return changed
	}
	if _, err := s.status.Refresh(ctx); err != nil {
		log.Printf("[MAINTENANCE] Failed to refresh status snapshot: %v\n", err)
	}
	return changed
}
