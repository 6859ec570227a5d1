package dispatch

import (
	"context"
	"sync"

	"github.com/BTreeMap/ShopAssist/internal/genai"
	"github.com/BTreeMap/ShopAssist/internal/mail"
	"github.com/BTreeMap/ShopAssist/internal/models"
	"github.com/BTreeMap/ShopAssist/internal/telephony"
)

type updateCall struct {
	OrderID   string
	Formatted string
	Contact   models.AddressContact
}

type fakeOrders struct {
	mu        sync.Mutex
	snap      models.OrderSnapshot
	err       error
	updateErr error
	lookups   int
	updates   []updateCall
}

func (f *fakeOrders) LookupOrder(ctx context.Context, number, email string) (models.OrderSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lookups++
	return f.snap, f.err
}

func (f *fakeOrders) UpdateShippingAddress(ctx context.Context, orderID, formatted string, contact models.AddressContact) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates = append(f.updates, updateCall{OrderID: orderID, Formatted: formatted, Contact: contact})
	return f.updateErr
}

type fakeCatalog struct {
	product *models.Product
	err     error
	calls   int
}

func (f *fakeCatalog) FindProduct(ctx context.Context, name string) (*models.Product, error) {
	f.calls++
	return f.product, f.err
}

type fakeCustomers struct {
	result    models.CustomerResult
	err       error
	code      string
	promoErr  error
	created   []string
	promoCall int
}

func (f *fakeCustomers) CreateCustomer(ctx context.Context, email string) (models.CustomerResult, error) {
	f.created = append(f.created, email)
	return f.result, f.err
}

func (f *fakeCustomers) CreatePromoCode(ctx context.Context) (string, error) {
	f.promoCall++
	return f.code, f.promoErr
}

type fakeGen struct {
	mu          sync.Mutex
	answer      string
	err         error
	panicMsg    string
	confirm     string
	confirmErr  error
	validation  models.AddressValidation
	validateErr error
	requests    []genai.GenerateRequest
	confirms    int
	validations int
}

func (f *fakeGen) Generate(ctx context.Context, req genai.GenerateRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.panicMsg != "" {
		panic(f.panicMsg)
	}
	f.requests = append(f.requests, req)
	return f.answer, f.err
}

func (f *fakeGen) ConfirmAddress(ctx context.Context, params models.Parameters, text string, turns []models.ChatTurn, language models.Language) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.confirms++
	return f.confirm, f.confirmErr
}

func (f *fakeGen) ValidateAddress(ctx context.Context, text string) (models.AddressValidation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.validations++
	return f.validation, f.validateErr
}

type fakeCaller struct {
	mu       sync.Mutex
	outcome  telephony.CallOutcome
	requests []telephony.CallRequest
	block    chan struct{}
}

func (f *fakeCaller) ChangeAddress(ctx context.Context, req telephony.CallRequest) telephony.CallOutcome {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()
	if f.block != nil {
		<-f.block
	}
	return f.outcome
}

type fakeMailer struct {
	mu   sync.Mutex
	sent []mail.Message
	err  error
}

func (f *fakeMailer) Send(ctx context.Context, msg mail.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, msg)
	return nil
}
