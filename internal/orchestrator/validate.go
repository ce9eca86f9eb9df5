package orchestrator

import (
	"fmt"
	"strings"
	"time"

	"github.com/hpungsan/scout/internal/backend"
	"github.com/hpungsan/scout/internal/conditions"
	"github.com/hpungsan/scout/internal/errors"
)

// Input limits enforced before any network call.
const (
	MinDescriptionChars        = 50
	MaxSearchDescriptionChars  = 2000
	MaxKeywordDescriptionChars = 3000
	MinCredentialChars         = 16
	MaxResultsLimit            = 10000
)

const dateLayout = "2006-01-02"

func checkDescription(description string, max int) error {
	n := conditions.CountChars(description)
	if n < MinDescriptionChars {
		return errors.NewDescriptionTooShort(MinDescriptionChars, n)
	}
	if n > max {
		return errors.NewDescriptionTooLong(max, n)
	}
	return nil
}

// resolveMaxResults applies the configured default to 0 and bounds the rest.
func (o *Orchestrator) resolveMaxResults(n int) (int, error) {
	if n == 0 {
		n = o.cfg.MaxResults
	}
	if n == 0 {
		n = 1000
	}
	if n < 1 || n > MaxResultsLimit {
		return 0, errors.NewInvalidRequest(fmt.Sprintf("max results must be between 1 and %d (got %d)", MaxResultsLimit, n))
	}
	return n, nil
}

// credential returns the stored credential, failing when it is missing or
// has not been verified.
func (o *Orchestrator) credential() (string, error) {
	if o.creds == nil {
		return "", errors.NewCredentialRequired("GPSS credential is not set")
	}
	key, err := o.creds.Credential()
	if err != nil {
		return "", err
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return "", errors.NewCredentialRequired("GPSS credential is not set")
	}
	if !o.sessions.Verified() {
		return "", errors.NewCredentialRequired("GPSS credential has not been verified")
	}
	return key, nil
}

func checkFilters(f backend.ConditionFilters) error {
	if f.Empty() {
		return errors.NewInvalidRequest("at least one search condition is required")
	}
	if err := checkDateRange("application date", f.ApplicationDateFrom, f.ApplicationDateTo); err != nil {
		return err
	}
	return checkDateRange("publication date", f.PublicationDateFrom, f.PublicationDateTo)
}

func checkDateRange(name, from, to string) error {
	var start, end time.Time
	var err error
	if from != "" {
		if start, err = time.Parse(dateLayout, from); err != nil {
			return errors.NewInvalidRequest(fmt.Sprintf("%s from %q must be YYYY-MM-DD", name, from))
		}
	}
	if to != "" {
		if end, err = time.Parse(dateLayout, to); err != nil {
			return errors.NewInvalidRequest(fmt.Sprintf("%s to %q must be YYYY-MM-DD", name, to))
		}
	}
	if from != "" && to != "" && start.After(end) {
		return errors.NewInvalidRequest(fmt.Sprintf("%s range is reversed: %s is after %s", name, from, to))
	}
	return nil
}
