package risk

import (
	"errors"
	"sync"

	"github.com/dyike/StockMateGo/models"
)

var (
	ErrLockSealed   = errors.New("risk verdict already sealed")
	ErrLockUnsealed = errors.New("risk verdict not sealed yet")
)

// Lock holds the risk assessment for one run. It can be sealed once and never changes afterwards.
type Lock struct {
	mu         sync.Mutex
	sealed     bool
	assessment models.RiskAssessment
}

func (l *Lock) Seal(a models.RiskAssessment) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.sealed {
		return ErrLockSealed
	}
	l.assessment = a
	l.sealed = true
	return nil
}

// Open returns a copy of the sealed assessment.
func (l *Lock) Open() (models.RiskAssessment, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.sealed {
		return models.RiskAssessment{}, ErrLockUnsealed
	}
	a := l.assessment
	a.Breaches = append([]models.Breach(nil), l.assessment.Breaches...)
	return a, nil
}

func (l *Lock) Sealed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.sealed
}
