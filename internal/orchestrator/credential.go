package orchestrator

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/hpungsan/scout/internal/errors"
)

// Verification is the outcome of VerifyCredential.
type Verification struct {
	Valid   bool   `json:"valid"`
	Message string `json:"message,omitempty"`
}

// VerifyCredential tests key against the patent service. A valid key is
// stored and marked verified. A rejected key leaves the stored credential
// and its verification state untouched.
func (o *Orchestrator) VerifyCredential(ctx context.Context, key string) (*Verification, error) {
	key = strings.TrimSpace(key)
	if n := len([]rune(key)); n < MinCredentialChars {
		return nil, errors.NewInvalidRequest(fmt.Sprintf("GPSS credential must be at least %d characters (got %d)", MinCredentialChars, n))
	}

	resp, err := o.api.VerifyCredential(ctx, key)
	if err != nil {
		o.logger.Warn("credential verification failed", zap.Error(err))
		return nil, err
	}
	if !resp.Success {
		o.logger.Info("credential rejected")
		return &Verification{Valid: false, Message: resp.Message}, nil
	}

	if o.creds != nil {
		if err := o.creds.SetCredential(key); err != nil {
			return nil, err
		}
	}
	o.sessions.MarkVerified(true)
	o.logger.Info("credential verified")
	return &Verification{Valid: true, Message: resp.Message}, nil
}

// SetCredential stores key without contacting the service. The credential
// must be verified before searches accept it.
func (o *Orchestrator) SetCredential(key string) error {
	if o.creds == nil {
		return errors.NewInternal(fmt.Errorf("no credential store configured"))
	}
	key = strings.TrimSpace(key)
	if key != "" && len([]rune(key)) < MinCredentialChars {
		return errors.NewInvalidRequest(fmt.Sprintf("GPSS credential must be at least %d characters", MinCredentialChars))
	}
	if err := o.creds.SetCredential(key); err != nil {
		return err
	}
	o.sessions.MarkVerified(false)
	return nil
}
