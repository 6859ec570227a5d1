package telephony

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/BTreeMap/ShopAssist/internal/lang"
	"github.com/BTreeMap/ShopAssist/internal/models"
)

// Polling constants. A call is polled at elapsed 0, PollInterval, ... up to
// and including WaitCeiling.
const (
	PollInterval = 5 * time.Second
	WaitCeiling  = 300 * time.Second
)

// CallResult classifies how an address-change call ended.
type CallResult string

const (
	CallResultCompleted    CallResult = "completed"
	CallResultFailed       CallResult = "failed"
	CallResultWaitTimeout  CallResult = "wait_timeout"
	CallResultNotInitiated CallResult = "not_initiated"
	CallResultCanceled     CallResult = "canceled"
)

// CallRequest describes the address change to negotiate by phone.
type CallRequest struct {
	OrderName      string
	TrackingNumber string
	NewAddress     string
	Phone          string
	Language       models.Language
}

// CallOutcome is the result of ChangeAddress.
type CallOutcome struct {
	Result CallResult
	CallID string
	Status CallStatus
	Polls  int
}

// Reply returns the shopper-facing text for the outcome.
func (o CallOutcome) Reply(language models.Language) string {
	switch o.Result {
	case CallResultCompleted:
		return lang.CallCompleted.For(language)
	case CallResultFailed:
		return lang.CallFailed.For(language)
	case CallResultWaitTimeout, CallResultCanceled:
		return lang.CallWaitTimeout.For(language)
	default:
		return lang.CallNotInitiated.For(language)
	}
}

// WaitFunc blocks for d or until ctx is done.
type WaitFunc func(ctx context.Context, d time.Duration) error

// SleepContext is the production WaitFunc.
func SleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Orchestrator places an address-change call and waits for it to finish.
type Orchestrator struct {
	svc  Service
	wait WaitFunc
	now  func() time.Time
}

// NewOrchestrator creates an orchestrator on top of svc.
func NewOrchestrator(svc Service) *Orchestrator {
	return &Orchestrator{svc: svc, wait: SleepContext, now: time.Now}
}

// WithWait replaces the wait function. Used in tests.
func (o *Orchestrator) WithWait(w WaitFunc) *Orchestrator {
	o.wait = w
	return o
}

// ChangeAddress places the call and blocks until a terminal status, the
// wait ceiling, or ctx cancellation. It never returns an error; every
// failure is folded into the outcome.
func (o *Orchestrator) ChangeAddress(ctx context.Context, req CallRequest) CallOutcome {
	script := BuildScript(req)
	callID, err := o.svc.PlaceCall(ctx, script)
	if err != nil {
		slog.Error("Orchestrator.ChangeAddress: call not initiated", "order", req.OrderName, "error", err)
		return CallOutcome{Result: CallResultNotInitiated}
	}
	session := CallSession{CallID: callID, Status: StatusQueued, StartedAt: o.now()}
	slog.Info("Orchestrator.ChangeAddress: call placed", "order", req.OrderName, "callSid", callID)

	polls := 0
	for elapsed := time.Duration(0); ; elapsed += PollInterval {
		status, err := o.svc.CallStatus(ctx, callID)
		polls++
		if err != nil {
			slog.Warn("Orchestrator.ChangeAddress: status poll failed", "callSid", callID, "poll", polls, "error", err)
		} else {
			session.Status = status
			if status.IsTerminal() {
				slog.Info("Orchestrator.ChangeAddress: call finished", "callSid", callID, "status", status, "polls", polls)
				result := CallResultFailed
				if status == StatusCompleted {
					result = CallResultCompleted
				}
				return CallOutcome{Result: result, CallID: callID, Status: status, Polls: polls}
			}
		}

		if elapsed >= WaitCeiling {
			break
		}
		if err := o.wait(ctx, PollInterval); err != nil {
			slog.Warn("Orchestrator.ChangeAddress: wait canceled", "callSid", callID, "error", err)
			return CallOutcome{Result: CallResultCanceled, CallID: callID, Status: session.Status, Polls: polls}
		}
	}

	slog.Warn("Orchestrator.ChangeAddress: call timed out", "callSid", callID, "since", o.now().Sub(session.StartedAt), "polls", polls)
	return CallOutcome{Result: CallResultWaitTimeout, CallID: callID, Status: session.Status, Polls: polls}
}

// BuildScript renders the agent prompt and opening line for req. The agent
// always speaks Spanish to the carrier; only the opening line follows the
// shopper's language.
func BuildScript(req CallRequest) CallScript {
	prompt := fmt.Sprintf(`Eres una persona llamada Silvia. Estás llamando a una empresa de envíos para modificar la dirección de envío de tu paquete. Responde en 3 a 7 oraciones en la mayoría de los casos.
Si te pregunta, aquí tienes información adicional sobre el pedido:
- Número de seguimiento %s
- Nueva dirección de entrega: %s
Actúa como el cliente y no como un agente, es decir, la persona a la que llamas te tiene que dar la solución, tú no le tienes que ayudar en resolver sus problemas.`,
		req.TrackingNumber, req.NewAddress)

	return CallScript{
		Prompt:       prompt,
		FirstMessage: lang.CallOpening.For(req.Language),
		Number:       req.Phone,
		Summary:      fmt.Sprintf("El número de seguimiento es %s. La nueva dirección de entrega es %s.", req.TrackingNumber, req.NewAddress),
	}
}
