package status

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/suite"
)

type StatusSuite struct {
	suite.Suite
}

func TestStatusSuite(t *testing.T) {
	suite.Run(t, new(StatusSuite))
}

// TestCodesAreStable pins the numeric ABI values.
func (s *StatusSuite) TestCodesAreStable() {
	s.Equal(int32(0), int32(CodeOk))
	s.Equal(int32(1), int32(CodeNoConsent))
	s.Equal(int32(2), int32(CodePolicyDenied))
	s.Equal(int32(3), int32(CodeModelMissing))
	s.Equal(int32(4), int32(CodeInvalidInput))
	s.Equal(int32(5), int32(CodeInternal))
}

func (s *StatusSuite) TestCodeOf() {
	s.Run("nil is ok", func() {
		s.Equal(CodeOk, CodeOf(nil))
	})

	s.Run("coded error keeps its code", func() {
		s.Equal(CodeNoConsent, CodeOf(NoConsent("consent_missing")))
		s.Equal(CodePolicyDenied, CodeOf(PolicyDenied("dp_epsilon_exceeded")))
	})

	s.Run("wrapped coded error keeps its code", func() {
		err := fmt.Errorf("handler: %w", ModelMissing("model_version"))
		s.Equal(CodeModelMissing, CodeOf(err))
	})

	s.Run("unclassified errors fail closed as internal", func() {
		s.Equal(CodeInternal, CodeOf(errors.New("boom")))
	})
}

func (s *StatusSuite) TestIsMatching() {
	err := Wrap(CodeInternal, "ledger_append_failed", errors.New("disk full"))

	s.Run("matches bare code sentinel", func() {
		s.Require().ErrorIs(err, New(CodeInternal, ""))
	})

	s.Run("matches code plus reason", func() {
		s.Require().ErrorIs(err, New(CodeInternal, "ledger_append_failed"))
	})

	s.Run("does not match a different code", func() {
		s.False(errors.Is(err, New(CodeNoConsent, "")))
	})

	s.Run("cause stays unwrappable", func() {
		s.Contains(err.Error(), "disk full")
	})
}

func (s *StatusSuite) TestReasonOf() {
	s.Equal("dp_delta_exceeded", ReasonOf(PolicyDenied("dp_delta_exceeded")))
	s.Equal("internal", ReasonOf(errors.New("unknown")))
	s.Equal("", ReasonOf(nil))
}
