package telephony

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BTreeMap/ShopAssist/internal/lang"
	"github.com/BTreeMap/ShopAssist/internal/models"
)

// scriptedService replays a fixed status sequence; the last entry repeats.
type scriptedService struct {
	mu       sync.Mutex
	placeErr error
	statuses []CallStatus
	errs     map[int]error
	polls    int
	scripts  []CallScript
}

func (s *scriptedService) PlaceCall(ctx context.Context, script CallScript) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scripts = append(s.scripts, script)
	if s.placeErr != nil {
		return "", s.placeErr
	}
	return "CA123", nil
}

func (s *scriptedService) CallStatus(ctx context.Context, callID string) (CallStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.polls
	s.polls++
	if err, ok := s.errs[i]; ok {
		return "", err
	}
	if i >= len(s.statuses) {
		i = len(s.statuses) - 1
	}
	return s.statuses[i], nil
}

// fakeWait records virtual elapsed time instead of sleeping.
type fakeWait struct {
	elapsed time.Duration
	calls   int
}

func (f *fakeWait) wait(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.calls++
	f.elapsed += d
	return nil
}

func newTestOrchestrator(svc Service) (*Orchestrator, *fakeWait) {
	fw := &fakeWait{}
	return NewOrchestrator(svc).WithWait(fw.wait), fw
}

var testRequest = CallRequest{
	OrderName:      "#12345",
	TrackingNumber: "TRK1",
	NewAddress:     "Calle Luna 2, 28004 Madrid",
	Phone:          "+34600000000",
	Language:       models.LanguageEnglish,
}

func TestChangeAddress_CompletedAfterQueued(t *testing.T) {
	svc := &scriptedService{statuses: []CallStatus{StatusQueued, StatusQueued, StatusCompleted}}
	o, fw := newTestOrchestrator(svc)

	out := o.ChangeAddress(context.Background(), testRequest)

	assert.Equal(t, CallResultCompleted, out.Result)
	assert.Equal(t, 3, out.Polls)
	assert.Equal(t, 10*time.Second, fw.elapsed)
	assert.Equal(t, lang.CallCompleted.EN, out.Reply(models.LanguageEnglish))
}

func TestChangeAddress_TimeoutStopsAtCeiling(t *testing.T) {
	svc := &scriptedService{statuses: []CallStatus{StatusQueued}}
	o, fw := newTestOrchestrator(svc)

	out := o.ChangeAddress(context.Background(), testRequest)

	assert.Equal(t, CallResultWaitTimeout, out.Result)
	assert.Equal(t, 61, svc.polls, "polls at 0,5,...,300 and never a 62nd")
	assert.Equal(t, 61, out.Polls)
	assert.Equal(t, WaitCeiling, fw.elapsed)
	assert.Equal(t, lang.CallWaitTimeout.ES, out.Reply(models.LanguageSpanish))
}

func TestChangeAddress_TerminalOnLastPoll(t *testing.T) {
	statuses := make([]CallStatus, 61)
	for i := range statuses {
		statuses[i] = StatusInProgress
	}
	statuses[60] = StatusCompleted
	svc := &scriptedService{statuses: statuses}
	o, _ := newTestOrchestrator(svc)

	out := o.ChangeAddress(context.Background(), testRequest)
	assert.Equal(t, CallResultCompleted, out.Result)
	assert.Equal(t, 61, svc.polls)
}

// Success is only reported for a completed call; other terminal statuses
// tell the shopper the call did not go through.
func TestChangeAddress_NonCompletedTerminalIsFailure(t *testing.T) {
	for _, st := range []CallStatus{StatusFailed, StatusBusy, StatusNoAnswer, StatusCanceled} {
		t.Run(string(st), func(t *testing.T) {
			svc := &scriptedService{statuses: []CallStatus{StatusRinging, st}}
			o, _ := newTestOrchestrator(svc)

			out := o.ChangeAddress(context.Background(), testRequest)
			assert.Equal(t, CallResultFailed, out.Result)
			assert.Equal(t, st, out.Status)
			assert.Equal(t, lang.CallFailed.EN, out.Reply(models.LanguageEnglish))
		})
	}
}

func TestChangeAddress_PollErrorsAreNotTerminal(t *testing.T) {
	svc := &scriptedService{
		statuses: []CallStatus{StatusQueued, StatusQueued, StatusQueued, StatusCompleted},
		errs:     map[int]error{1: errors.New("bridge down"), 2: errors.New("bridge down")},
	}
	o, _ := newTestOrchestrator(svc)

	out := o.ChangeAddress(context.Background(), testRequest)
	assert.Equal(t, CallResultCompleted, out.Result)
	assert.Equal(t, 4, svc.polls)
}

func TestChangeAddress_NotInitiated(t *testing.T) {
	svc := &scriptedService{placeErr: errors.New("HTTP 500")}
	o, fw := newTestOrchestrator(svc)

	out := o.ChangeAddress(context.Background(), testRequest)
	assert.Equal(t, CallResultNotInitiated, out.Result)
	assert.Equal(t, 0, svc.polls)
	assert.Equal(t, 0, fw.calls)
	assert.Equal(t, lang.CallNotInitiated.EN, out.Reply(models.LanguageEnglish))
}

func TestChangeAddress_CanceledContext(t *testing.T) {
	svc := &scriptedService{statuses: []CallStatus{StatusQueued}}
	o := NewOrchestrator(svc)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan CallOutcome, 1)
	go func() { done <- o.ChangeAddress(ctx, testRequest) }()
	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case out := <-done:
		assert.Equal(t, CallResultCanceled, out.Result)
	case <-time.After(2 * time.Second):
		t.Fatal("ChangeAddress did not return after cancel")
	}
}

func TestBuildScript(t *testing.T) {
	s := BuildScript(testRequest)
	assert.Contains(t, s.Prompt, "Silvia")
	assert.Contains(t, s.Prompt, "TRK1")
	assert.Contains(t, s.Prompt, "Calle Luna 2, 28004 Madrid")
	assert.Equal(t, lang.CallOpening.EN, s.FirstMessage)
	assert.Equal(t, "+34600000000", s.Number)

	es := testRequest
	es.Language = models.LanguageSpanish
	assert.Equal(t, lang.CallOpening.ES, BuildScript(es).FirstMessage)
}

func TestParseCallStatus(t *testing.T) {
	assert.Equal(t, StatusInProgress, ParseCallStatus("in_progress"))
	assert.Equal(t, StatusNoAnswer, ParseCallStatus(" No-Answer "))
	assert.Equal(t, StatusCanceled, ParseCallStatus("cancelled"))
	assert.False(t, StatusRinging.IsTerminal())
	require.True(t, StatusBusy.IsTerminal())
}
