package serverapp

import (
	"fmt"
	"log/slog"
	"os"
)

// Stop reasons reported by WaitForStop.
const (
	StopReasonSignal      = "signal"
	StopReasonServerError = "server_error"
)

// Start launches the HTTP server goroutine. It requires Init to have
// completed; repeated calls return the same error channel.
func (a *App) Start() (<-chan error, error) {
	a.stateMu.Lock()
	defer a.stateMu.Unlock()

	if !a.initialized {
		return nil, fmt.Errorf("app is not initialized")
	}
	if !a.started {
		a.serverErrors = startServer(a.cfg, a.logger, a.srv, a.serverAddr)
		a.started = true
	}
	return a.serverErrors, nil
}

// WaitForStop blocks until stop delivers a signal or the server fails. A nil
// serverErrors falls back to the channel created by Start.
func (a *App) WaitForStop(stop <-chan os.Signal, serverErrors <-chan error) (reason string, err error) {
	if serverErrors == nil {
		a.stateMu.Lock()
		if a.serverErrors != nil {
			serverErrors = a.serverErrors
		}
		a.stateMu.Unlock()
	}
	if stop == nil && serverErrors == nil {
		return "", fmt.Errorf("both stop and serverErrors channels are nil")
	}

	// A nil channel never becomes ready, so one select covers every case.
	select {
	case err := <-serverErrors:
		if err == nil {
			return StopReasonServerError, fmt.Errorf("server stopped unexpectedly")
		}
		return StopReasonServerError, fmt.Errorf("server failed: %w", err)
	case sig := <-stop:
		if a.logger != nil {
			a.logger.Info("received shutdown signal", slog.String("signal", sig.String()))
		}
		return StopReasonSignal, nil
	}
}
