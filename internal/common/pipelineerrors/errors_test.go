package pipelineerrors

import (
	"context"
	"testing"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestExitCodeFromError(t *testing.T) {
	tests := map[string]struct {
		err  error
		want int
	}{
		"nil":                                 {nil, ExitOK},
		"ErrConfiguration":                    {&ErrConfiguration{}, ExitConfiguration},
		"ErrSubmission":                       {&ErrSubmission{}, ExitSubmission},
		"ErrWatchTimeout":                     {&ErrWatchTimeout{}, ExitWatchTimeout},
		"ErrArtifactMissing":                  {&ErrArtifactMissing{}, ExitArtifactMissing},
		"ErrCorrelationMismatch":              {&ErrCorrelationMismatch{}, ExitCorrelationMismatch},
		"pkg.Error => ErrConfiguration":       {errors.WithMessage(&ErrConfiguration{}, "foo"), ExitConfiguration},
		"pkg.Error => ErrSubmission":          {errors.WithStack(&ErrSubmission{}), ExitSubmission},
		"pkg.Error":                           {errors.New("foo"), ExitUnknown},
		"cancelled":                           {errors.WithStack(context.Canceled), ExitCancelled},
		"multierror => unknown, then timeout": {multierror.Append(errors.New("foo"), &ErrWatchTimeout{}), ExitWatchTimeout},
		"multierror => unknown only":          {multierror.Append(errors.New("foo"), errors.New("bar")), ExitUnknown},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tc.want, ExitCodeFromError(tc.err))
		})
	}
}

func TestErrorMessages(t *testing.T) {
	assert.Equal(t,
		`value [1 2 3] is invalid for "threshold"; takes one or two values`,
		(&ErrConfiguration{Name: "threshold", Value: []float64{1, 2, 3}, Message: "takes one or two values"}).Error(),
	)
	assert.Equal(t,
		`could not submit stage1 job for unit 133451-0: unparsable response "error: no queue"`,
		(&ErrSubmission{Unit: "133451-0", Stage: "stage1", Output: "error: no queue"}).Error(),
	)
	assert.Equal(t,
		"gave up waiting for 42 after 1m0s and 3 ambiguous status queries",
		(&ErrWatchTimeout{Target: "42", Waited: time.Minute, AmbiguousQueries: 3}).Error(),
	)
	assert.Equal(t,
		`unit 133451-0: 3 records for file "133451-0" but 2 auxiliary events`,
		(&ErrCorrelationMismatch{Unit: "133451-0", FileId: "133451-0", Records: 3, Events: 2}).Error(),
	)
}

func TestUnwrap(t *testing.T) {
	cause := errors.New("exec: qsub not found")
	err := errors.WithStack(&ErrSubmission{Unit: "a-0", Stage: "stage1", Cause: cause})
	assert.True(t, errors.Is(err, cause))
	assert.True(t, IsConfiguration(errors.WithStack(&ErrConfiguration{Name: "files"})))
	assert.False(t, IsConfiguration(err))
}
